// Package memory provides in-memory stores for development and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/insight-curator/internal/crawler"
)

const defaultInsightLimit = 50

type sourceRow struct {
	source crawler.CrawlSource
	seq    int64
}

// Store implements crawler.Store with maps guarded by a single mutex.
type Store struct {
	mu       sync.RWMutex
	sources  map[string]sourceRow
	insights []crawler.Insight
	topics   map[string]crawler.Topic
	seq      int64
}

var _ crawler.Store = (*Store)(nil)

// NewStore constructs a Store seeded with topics. A nil slice seeds the
// default catalogue.
func NewStore(topics []crawler.Topic) *Store {
	if topics == nil {
		topics = crawler.DefaultTopics()
	}
	s := &Store{
		sources: make(map[string]sourceRow),
		topics:  make(map[string]crawler.Topic, len(topics)),
	}
	for _, topic := range topics {
		s.topics[topic.ID] = topic
	}
	return s
}

// CreateSource stores a new idle source.
func (s *Store) CreateSource(_ context.Context, source crawler.CrawlSource) (crawler.CrawlSource, error) {
	if source.ID == "" {
		return crawler.CrawlSource{}, errors.New("source id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sources[source.ID]; exists {
		return crawler.CrawlSource{}, errors.New("source already exists")
	}
	for _, row := range s.sources {
		existing := row.source
		if existing.UserID == source.UserID && existing.URL == source.URL && existing.TopicID == source.TopicID {
			return crawler.CrawlSource{}, crawler.ErrDuplicateSource
		}
	}
	if _, ok := s.topics[source.TopicID]; !ok {
		return crawler.CrawlSource{}, crawler.ErrTopicNotFound
	}
	source.Status = crawler.SourceStatusIdle
	source.LastCrawledAt = nil
	source.ErrorMessage = nil
	if source.CreatedAt.IsZero() {
		source.CreatedAt = time.Now().UTC()
	}
	s.seq++
	s.sources[source.ID] = sourceRow{source: source, seq: s.seq}
	return cloneSource(source), nil
}

// GetSource fetches a source by ID.
func (s *Store) GetSource(_ context.Context, id string) (crawler.CrawlSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.sources[id]
	if !ok {
		return crawler.CrawlSource{}, crawler.ErrNotFound
	}
	return cloneSource(row.source), nil
}

// ListSources returns matching sources, newest first.
func (s *Store) ListSources(_ context.Context, filter crawler.SourceFilter) ([]crawler.CrawlSource, error) {
	s.mu.RLock()
	rows := make([]sourceRow, 0, len(s.sources))
	for _, row := range s.sources {
		src := row.source
		if filter.UserID != "" && src.UserID != filter.UserID {
			continue
		}
		if filter.TopicID != "" && src.TopicID != filter.TopicID {
			continue
		}
		if filter.Status != "" && src.Status != filter.Status {
			continue
		}
		rows = append(rows, row)
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].source.CreatedAt, rows[j].source.CreatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return rows[i].seq > rows[j].seq
	})
	out := make([]crawler.CrawlSource, len(rows))
	for i, row := range rows {
		out[i] = cloneSource(row.source)
	}
	return out, nil
}

// UpdateSource applies a partial update. It never re-creates a deleted source.
func (s *Store) UpdateSource(_ context.Context, id string, update crawler.SourceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.sources[id]
	if !ok {
		return crawler.ErrNotFound
	}
	row.source = applyUpdate(row.source, update)
	s.sources[id] = row
	return nil
}

// BeginCrawl takes the per-source lease.
func (s *Store) BeginCrawl(_ context.Context, id string) (crawler.CrawlSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.sources[id]
	if !ok {
		return crawler.CrawlSource{}, crawler.ErrNotFound
	}
	if row.source.Status == crawler.SourceStatusCrawling {
		return crawler.CrawlSource{}, crawler.ErrAlreadyCrawling
	}
	row.source.Status = crawler.SourceStatusCrawling
	s.sources[id] = row
	return cloneSource(row.source), nil
}

// DeleteSource removes a source that is not currently crawling.
func (s *Store) DeleteSource(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.sources[id]
	if !ok {
		return crawler.ErrNotFound
	}
	if row.source.Status == crawler.SourceStatusCrawling {
		return crawler.ErrSourceBusy
	}
	delete(s.sources, id)
	return nil
}

// InsertInsight appends an insight and returns its ID.
func (s *Store) InsertInsight(_ context.Context, insight crawler.Insight) (string, error) {
	if insight.ID == "" {
		return "", &crawler.StoreError{Op: "insert insight", Err: errors.New("insight id is required")}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.topics[insight.TopicID]; !ok {
		return "", &crawler.StoreError{Op: "insert insight", Err: crawler.ErrTopicNotFound}
	}
	if insight.CreatedAt.IsZero() {
		insight.CreatedAt = time.Now().UTC()
	}
	insight.SourceLinks = append([]crawler.SourceLink(nil), insight.SourceLinks...)
	s.insights = append(s.insights, insight)
	return insight.ID, nil
}

// ListInsights returns matching insights, newest first.
func (s *Store) ListInsights(_ context.Context, filter crawler.InsightFilter) ([]crawler.Insight, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultInsightLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Insight, 0, limit)
	for i := len(s.insights) - 1; i >= 0 && len(out) < limit; i-- {
		insight := s.insights[i]
		if filter.TopicID != "" && insight.TopicID != filter.TopicID {
			continue
		}
		if filter.Date != "" && insight.Date != filter.Date {
			continue
		}
		insight.SourceLinks = append([]crawler.SourceLink(nil), insight.SourceLinks...)
		out = append(out, insight)
	}
	return out, nil
}

// GetTopic fetches a topic by ID.
func (s *Store) GetTopic(_ context.Context, id string) (crawler.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	topic, ok := s.topics[id]
	if !ok {
		return crawler.Topic{}, crawler.ErrTopicNotFound
	}
	return topic, nil
}

// ListTopics returns all topics ordered by name.
func (s *Store) ListTopics(_ context.Context) ([]crawler.Topic, error) {
	s.mu.RLock()
	out := make([]crawler.Topic, 0, len(s.topics))
	for _, topic := range s.topics {
		out = append(out, topic)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func applyUpdate(src crawler.CrawlSource, update crawler.SourceUpdate) crawler.CrawlSource {
	if update.Status != nil {
		src.Status = *update.Status
	}
	if update.LastCrawledAt != nil {
		src.LastCrawledAt = pointerTime(*update.LastCrawledAt)
	}
	if update.ErrorMessage != nil {
		if *update.ErrorMessage == "" {
			src.ErrorMessage = nil
		} else {
			msg := *update.ErrorMessage
			src.ErrorMessage = &msg
		}
	}
	return src
}

func cloneSource(src crawler.CrawlSource) crawler.CrawlSource {
	if src.LastCrawledAt != nil {
		src.LastCrawledAt = pointerTime(*src.LastCrawledAt)
	}
	if src.ErrorMessage != nil {
		msg := *src.ErrorMessage
		src.ErrorMessage = &msg
	}
	return src
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
