package crawler

import (
	"context"
	"time"
)

// SourceStore persists crawl sources and their crawl status.
type SourceStore interface {
	// CreateSource inserts a new idle source. Returns ErrDuplicateSource when
	// the owner already registered the same URL under the same topic.
	CreateSource(ctx context.Context, source CrawlSource) (CrawlSource, error)
	GetSource(ctx context.Context, id string) (CrawlSource, error)
	// ListSources returns matching sources, newest first.
	ListSources(ctx context.Context, filter SourceFilter) ([]CrawlSource, error)
	UpdateSource(ctx context.Context, id string, update SourceUpdate) error
	// BeginCrawl atomically moves a source from idle, completed or failed
	// into crawling. Returns ErrAlreadyCrawling if the lease is held.
	BeginCrawl(ctx context.Context, id string) (CrawlSource, error)
	// DeleteSource removes a source unless it is crawling (ErrSourceBusy).
	DeleteSource(ctx context.Context, id string) error
}

// InsightStore persists curated insights.
type InsightStore interface {
	InsertInsight(ctx context.Context, insight Insight) (string, error)
	ListInsights(ctx context.Context, filter InsightFilter) ([]Insight, error)
}

// TopicStore exposes the read-only topic catalogue.
type TopicStore interface {
	GetTopic(ctx context.Context, id string) (Topic, error)
	// ListTopics returns all topics ordered by name.
	ListTopics(ctx context.Context) ([]Topic, error)
}

// Store is the full record store contract required by the service.
type Store interface {
	SourceStore
	InsightStore
	TopicStore
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes crawl completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Extractor turns raw HTML into bounded plain text. It never fails.
type Extractor interface {
	Extract(html string) string
}

// Curator asks a generative-text service for insights and returns its raw reply.
type Curator interface {
	Curate(ctx context.Context, request CurationRequest) (string, error)
}

// Queue provides enqueue/dequeue semantics for leased crawls.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Limiter throttles fetches per host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// RetryPolicy decides whether and when a failed stage is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
