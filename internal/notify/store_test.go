package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/insight-curator/internal/crawler"
	"github.com/JakeFAU/insight-curator/internal/storage/memory"
)

func TestStoreEmitsOnMutations(t *testing.T) {
	t.Parallel()

	rec := &recordingEmitter{}
	store := NewStore(memory.NewStore(nil), rec)
	ctx := context.Background()

	src, err := store.CreateSource(ctx, crawler.CrawlSource{
		ID:      "source-1",
		URL:     "https://example.com",
		TopicID: "science",
		UserID:  "user-1",
	})
	require.NoError(t, err)

	_, err = store.BeginCrawl(ctx, src.ID)
	require.NoError(t, err)

	_, err = store.InsertInsight(ctx, crawler.Insight{ID: "ins-1", TopicID: "science", Title: "t", Summary: "s", Date: "2024-01-01"})
	require.NoError(t, err)

	require.NoError(t, store.UpdateSource(ctx, src.ID, crawler.SourceUpdate{
		Status:        crawler.StatusPtr(crawler.SourceStatusCompleted),
		LastCrawledAt: crawler.TimePtr(time.Now()),
	}))
	require.NoError(t, store.DeleteSource(ctx, src.ID))

	events := rec.Events()
	require.Len(t, events, 5)
	require.Equal(t, KindSourceCreated, events[0].Kind)
	require.Equal(t, crawler.SourceStatusCrawling, events[1].Status)
	require.Equal(t, KindInsightCreated, events[2].Kind)
	require.Equal(t, "science", events[2].TopicID)
	require.Equal(t, crawler.SourceStatusCompleted, events[3].Status)
	require.Equal(t, KindSourceDeleted, events[4].Kind)
	for _, evt := range events {
		require.NoError(t, evt.Validate())
	}
}

func TestStoreSilentOnFailure(t *testing.T) {
	t.Parallel()

	rec := &recordingEmitter{}
	store := NewStore(memory.NewStore(nil), rec)
	ctx := context.Background()

	require.ErrorIs(t, store.DeleteSource(ctx, "missing"), crawler.ErrNotFound)
	require.ErrorIs(t, store.UpdateSource(ctx, "missing", crawler.SourceUpdate{
		Status: crawler.StatusPtr(crawler.SourceStatusFailed),
	}), crawler.ErrNotFound)
	_, err := store.BeginCrawl(ctx, "missing")
	require.ErrorIs(t, err, crawler.ErrNotFound)
	require.Empty(t, rec.Events())
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingEmitter) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
