// Package dispatcher takes crawl leases and fans queued crawls out to workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/insight-curator/internal/crawler"
	"github.com/JakeFAU/insight-curator/internal/worker"
)

const defaultEnqueueTimeout = 2 * time.Second

// Config controls enqueue behavior.
type Config struct {
	// EnqueueTimeout bounds how long TriggerCrawl waits for queue space.
	EnqueueTimeout time.Duration
}

// drainer is implemented by queues that can hand back items no worker took.
type drainer interface {
	Drain() []crawler.QueueItem
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   crawler.Queue
	store   crawler.SourceStore
	workers []*worker.Worker
	cfg     Config
	logger  *zap.Logger
	clock   func() time.Time
}

// New creates a Dispatcher.
func New(queue crawler.Queue, store crawler.SourceStore, workers []*worker.Worker, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = defaultEnqueueTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		store:   store,
		workers: workers,
		cfg:     cfg,
		logger:  logger,
		clock:   time.Now,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	d.logger.Info("crawl workers started", zap.Int("workers", len(d.workers)))
	<-ctx.Done()
	wg.Wait()
	d.ReleasePending(ctx)
}

// ReleasePending fails every leased crawl still waiting in the queue, so no
// source outlives the process in crawling. It returns the number released.
func (d *Dispatcher) ReleasePending(ctx context.Context) int {
	q, ok := d.queue.(drainer)
	if !ok {
		return 0
	}
	items := q.Drain()
	for _, item := range items {
		if len(d.workers) > 0 {
			d.workers[0].Abandon(ctx, item)
			continue
		}
		d.releaseLease(ctx, item.SourceID, crawler.ErrInterrupted)
	}
	if len(items) > 0 {
		d.logger.Warn("released pending crawls", zap.Int("count", len(items)))
	}
	return len(items)
}

// TriggerCrawl leases the source and queues it. It returns once the source is
// crawling; the crawl itself runs on a worker.
func (d *Dispatcher) TriggerCrawl(ctx context.Context, sourceID string) (crawler.CrawlSource, error) {
	source, err := d.store.BeginCrawl(ctx, sourceID)
	if err != nil {
		return crawler.CrawlSource{}, fmt.Errorf("begin crawl: %w", err)
	}

	item := crawler.QueueItem{
		SourceID:  source.ID,
		Source:    source,
		Attempt:   1,
		Submitted: d.clock().UnixNano(),
	}
	enqueueCtx, cancel := context.WithTimeout(ctx, d.cfg.EnqueueTimeout)
	defer cancel()
	if err := d.queue.Enqueue(enqueueCtx, item); err != nil {
		d.releaseLease(ctx, source.ID, err)
		if errors.Is(err, crawler.ErrQueueFull) || errors.Is(err, context.DeadlineExceeded) {
			return crawler.CrawlSource{}, crawler.ErrQueueFull
		}
		return crawler.CrawlSource{}, fmt.Errorf("queue enqueue: %w", err)
	}
	d.logger.Info("crawl queued", zap.String("source_id", source.ID), zap.String("url", source.URL))
	return source, nil
}

// releaseLease marks a source that never reached a worker as failed.
func (d *Dispatcher) releaseLease(ctx context.Context, sourceID string, cause error) {
	message := crawler.ErrQueueFull.Error()
	if !errors.Is(cause, crawler.ErrQueueFull) && !errors.Is(cause, context.DeadlineExceeded) {
		message = crawler.FailureMessage(cause)
	}
	update := crawler.SourceUpdate{
		Status:       crawler.StatusPtr(crawler.SourceStatusFailed),
		ErrorMessage: crawler.StringPtr(message),
	}
	if err := d.store.UpdateSource(context.WithoutCancel(ctx), sourceID, update); err != nil {
		d.logger.Error("release lease failed", zap.String("source_id", sourceID), zap.Error(err))
	}
	d.logger.Warn("crawl not queued", zap.String("source_id", sourceID), zap.Error(cause))
}

// CrawlNow leases the source and runs the crawl on w synchronously.
func (d *Dispatcher) CrawlNow(ctx context.Context, w *worker.Worker, sourceID string) (crawler.CrawlResult, error) {
	source, err := d.store.BeginCrawl(ctx, sourceID)
	if err != nil {
		return crawler.CrawlResult{}, fmt.Errorf("begin crawl: %w", err)
	}
	return w.Crawl(ctx, crawler.QueueItem{SourceID: source.ID, Source: source, Attempt: 1}), nil
}

// TriggerAll queues every source that is not already crawling. Sources whose
// lease is held are skipped. It returns the number of queued crawls.
func (d *Dispatcher) TriggerAll(ctx context.Context) (int, error) {
	sources, err := d.store.ListSources(ctx, crawler.SourceFilter{})
	if err != nil {
		return 0, fmt.Errorf("list sources: %w", err)
	}
	queued := 0
	for _, src := range sources {
		if src.Status == crawler.SourceStatusCrawling {
			continue
		}
		if _, err := d.TriggerCrawl(ctx, src.ID); err != nil {
			switch {
			case errors.Is(err, crawler.ErrAlreadyCrawling), errors.Is(err, crawler.ErrNotFound):
				d.logger.Debug("scheduled crawl skipped", zap.String("source_id", src.ID), zap.Error(err))
				continue
			case errors.Is(err, crawler.ErrQueueFull):
				return queued, err
			default:
				d.logger.Warn("scheduled crawl failed", zap.String("source_id", src.ID), zap.Error(err))
				continue
			}
		}
		queued++
	}
	return queued, nil
}
