package notify

import (
	"context"
	"time"

	"github.com/JakeFAU/insight-curator/internal/crawler"
)

// Store decorates a crawler.Store and emits a change event after every
// successful mutation. Reads pass straight through.
type Store struct {
	crawler.Store
	emitter Emitter
	now     func() time.Time
}

var _ crawler.Store = (*Store)(nil)

// NewStore wraps inner so mutations are announced on emitter.
func NewStore(inner crawler.Store, emitter Emitter) *Store {
	return &Store{
		Store:   inner,
		emitter: emitter,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) emit(evt Event) {
	if s.emitter == nil {
		return
	}
	evt.TS = s.now()
	s.emitter.Emit(evt)
}

// CreateSource announces source_created.
func (s *Store) CreateSource(ctx context.Context, source crawler.CrawlSource) (crawler.CrawlSource, error) {
	created, err := s.Store.CreateSource(ctx, source)
	if err != nil {
		return created, err
	}
	s.emit(Event{Kind: KindSourceCreated, SourceID: created.ID, TopicID: created.TopicID, Status: created.Status})
	return created, nil
}

// UpdateSource announces source_updated with the new status, if any.
func (s *Store) UpdateSource(ctx context.Context, id string, update crawler.SourceUpdate) error {
	if err := s.Store.UpdateSource(ctx, id, update); err != nil {
		return err
	}
	evt := Event{Kind: KindSourceUpdated, SourceID: id}
	if update.Status != nil {
		evt.Status = *update.Status
	}
	s.emit(evt)
	return nil
}

// BeginCrawl announces the move into crawling.
func (s *Store) BeginCrawl(ctx context.Context, id string) (crawler.CrawlSource, error) {
	src, err := s.Store.BeginCrawl(ctx, id)
	if err != nil {
		return src, err
	}
	s.emit(Event{Kind: KindSourceUpdated, SourceID: id, TopicID: src.TopicID, Status: crawler.SourceStatusCrawling})
	return src, nil
}

// DeleteSource announces source_deleted.
func (s *Store) DeleteSource(ctx context.Context, id string) error {
	if err := s.Store.DeleteSource(ctx, id); err != nil {
		return err
	}
	s.emit(Event{Kind: KindSourceDeleted, SourceID: id})
	return nil
}

// InsertInsight announces insight_created under the insight's topic.
func (s *Store) InsertInsight(ctx context.Context, insight crawler.Insight) (string, error) {
	id, err := s.Store.InsertInsight(ctx, insight)
	if err != nil {
		return id, err
	}
	s.emit(Event{Kind: KindInsightCreated, TopicID: insight.TopicID})
	return id, nil
}
