// Package worker implements the crawl pipeline execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/insight-curator/internal/crawler"
	"github.com/JakeFAU/insight-curator/internal/metrics"
	"github.com/JakeFAU/insight-curator/internal/parser"
	"github.com/JakeFAU/insight-curator/internal/snapshot"
)

// CompletedEvent is the message type published after a successful crawl.
const CompletedEvent = "crawl.completed"

const statusWriteTimeout = 10 * time.Second

// Config controls Worker behavior.
type Config struct {
	// Topic receives crawl.completed messages. Empty disables publishing.
	Topic string
}

// Dependencies are the collaborators a Worker drives. Limiter, Archiver,
// Publisher and Retry are optional.
type Dependencies struct {
	Queue     crawler.Queue
	Store     crawler.Store
	Fetcher   crawler.Fetcher
	Extractor crawler.Extractor
	Curator   crawler.Curator
	Limiter   crawler.Limiter
	Archiver  *snapshot.Archiver
	Publisher crawler.Publisher
	Retry     crawler.RetryPolicy
	Clock     crawler.Clock
	IDs       crawler.IDGenerator
}

// Worker consumes queue items and executes the crawl pipeline.
type Worker struct {
	deps   Dependencies
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(deps Dependencies, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Retry == nil {
		deps.Retry = crawler.NoRetry()
	}
	return &Worker{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			if errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			continue
		}
		w.logger.Debug("dequeued crawl", zap.String("source_id", item.SourceID))
		w.Crawl(ctx, item)
	}
}

// Crawl runs the full pipeline for one leased source and records the
// terminal status. The source must already be crawling.
func (w *Worker) Crawl(ctx context.Context, item crawler.QueueItem) (result crawler.CrawlResult) {
	metrics.IncActiveCrawls()
	defer metrics.DecActiveCrawls()

	result = crawler.CrawlResult{SourceID: item.SourceID}
	logger := w.logger.With(zap.String("source_id", item.SourceID))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("crawl panicked", zap.Any("panic", r), zap.Stack("stack"))
			result = w.fail(ctx, item, fmt.Errorf("crawl panicked: %v", r), result)
		}
		metrics.ObserveCrawl(string(result.Status))
	}()

	source, err := w.resolveSource(ctx, item)
	if err != nil {
		return w.fail(ctx, item, err, result)
	}
	logger = logger.With(zap.String("url", source.URL), zap.String("topic_id", source.TopicID))

	created, dropped, err := w.pipeline(ctx, source, logger)
	result.InsightsCreated = created
	result.InsightsDropped = dropped
	metrics.AddInsights(created, dropped)
	if err != nil {
		return w.fail(ctx, item, err, result)
	}

	finishedAt := w.deps.Clock.Now().UTC()
	update := crawler.SourceUpdate{
		Status:        crawler.StatusPtr(crawler.SourceStatusCompleted),
		LastCrawledAt: crawler.TimePtr(finishedAt),
		ErrorMessage:  crawler.StringPtr(""),
	}
	if err := w.writeStatus(ctx, item.SourceID, update); err != nil {
		logger.Error("completed status update failed", zap.Error(err))
		result.Status = crawler.SourceStatusFailed
		result.Err = err
		return result
	}
	result.Status = crawler.SourceStatusCompleted
	logger.Info("crawl completed",
		zap.Int("insights_created", created),
		zap.Int("insights_dropped", dropped),
	)
	w.publishCompleted(ctx, source, result, finishedAt, logger)
	return result
}

// Abandon marks a leased item that will never run as failed.
func (w *Worker) Abandon(ctx context.Context, item crawler.QueueItem) crawler.CrawlResult {
	return w.fail(ctx, item, crawler.ErrInterrupted, crawler.CrawlResult{SourceID: item.SourceID})
}

func (w *Worker) resolveSource(ctx context.Context, item crawler.QueueItem) (crawler.CrawlSource, error) {
	if item.Source.ID != "" {
		return item.Source, nil
	}
	source, err := w.deps.Store.GetSource(ctx, item.SourceID)
	if err != nil {
		return crawler.CrawlSource{}, fmt.Errorf("load source: %w", err)
	}
	return source, nil
}

func (w *Worker) pipeline(ctx context.Context, source crawler.CrawlSource, logger *zap.Logger) (int, int, error) {
	topic := w.topicFor(ctx, source.TopicID, logger)

	if w.deps.Limiter != nil {
		if err := w.deps.Limiter.Wait(ctx, source.URL); err != nil {
			return 0, 0, err
		}
	}

	stageStart := time.Now()
	resp, err := withRetry(ctx, w, metrics.StageFetch, logger, func(ctx context.Context) (crawler.FetchResponse, error) {
		return w.deps.Fetcher.Fetch(ctx, crawler.FetchRequest{SourceID: source.ID, URL: source.URL})
	})
	metrics.ObserveStage(metrics.StageFetch, time.Since(stageStart))
	if err != nil {
		logger.Warn("fetch failed", zap.Error(err))
		return 0, 0, err
	}
	metrics.ObserveFetch(source.URL, resp.StatusCode, len(resp.Body))

	w.archive(ctx, source.ID, resp.Body, logger)

	stageStart = time.Now()
	text := w.deps.Extractor.Extract(string(resp.Body))
	metrics.ObserveStage(metrics.StageExtract, time.Since(stageStart))
	logger.Debug("content extracted", zap.Int("chars", len([]rune(text))))

	stageStart = time.Now()
	raw, err := withRetry(ctx, w, metrics.StageCurate, logger, func(ctx context.Context) (string, error) {
		return w.deps.Curator.Curate(ctx, crawler.CurationRequest{
			Text:             text,
			TopicName:        topic.Name,
			TopicDescription: topic.Description,
			SourceURL:        source.URL,
		})
	})
	metrics.ObserveStage(metrics.StageCurate, time.Since(stageStart))
	if err != nil {
		logger.Warn("curation failed", zap.Error(err))
		return 0, 0, err
	}

	parsed, err := parser.Parse(raw)
	if err != nil {
		logger.Warn("model response unparseable", zap.Error(err))
		return 0, 0, err
	}
	if parsed.Dropped > 0 {
		logger.Info("dropped malformed insights", zap.Int("dropped", parsed.Dropped))
	}

	stageStart = time.Now()
	created, failed := w.persistInsights(ctx, source, parsed.Insights, logger)
	metrics.ObserveStage(metrics.StagePersist, time.Since(stageStart))
	return created, parsed.Dropped + failed, nil
}

func (w *Worker) topicFor(ctx context.Context, topicID string, logger *zap.Logger) crawler.Topic {
	topic, err := w.deps.Store.GetTopic(ctx, topicID)
	if err != nil {
		logger.Debug("topic lookup failed, using id as name", zap.Error(err))
		return crawler.Topic{ID: topicID, Name: topicID}
	}
	return topic
}

func (w *Worker) archive(ctx context.Context, sourceID string, body []byte, logger *zap.Logger) {
	if w.deps.Archiver == nil {
		return
	}
	start := time.Now()
	res, err := w.deps.Archiver.Archive(ctx, sourceID, body)
	metrics.ObserveStage(metrics.StageSnapshot, time.Since(start))
	if err != nil {
		logger.Warn("snapshot archive failed", zap.Error(err))
		return
	}
	logger.Debug("snapshot archived", zap.String("blob_uri", res.URI), zap.String("hash", res.Digest))
}

func (w *Worker) persistInsights(
	ctx context.Context,
	source crawler.CrawlSource,
	candidates []crawler.InsightCandidate,
	logger *zap.Logger,
) (created, failed int) {
	now := w.deps.Clock.Now().UTC()
	day := now.Format(crawler.DateLayout)
	links := []crawler.SourceLink{{URL: source.URL, Title: crawler.HostLabel(source.URL)}}
	for _, candidate := range candidates {
		id, err := w.deps.IDs.NewID()
		if err != nil {
			failed++
			logger.Error("insight id generation failed", zap.Error(err))
			continue
		}
		insight := crawler.Insight{
			ID:          id,
			TopicID:     source.TopicID,
			Title:       candidate.Title,
			Summary:     candidate.Summary,
			SourceLinks: append([]crawler.SourceLink(nil), links...),
			Date:        day,
			CreatedAt:   now,
		}
		if _, err := w.deps.Store.InsertInsight(ctx, insight); err != nil {
			failed++
			logger.Error("insight insert failed", zap.String("title", candidate.Title), zap.Error(err))
			continue
		}
		created++
	}
	return created, failed
}

func (w *Worker) fail(ctx context.Context, item crawler.QueueItem, cause error, result crawler.CrawlResult) crawler.CrawlResult {
	message := crawler.FailureMessage(cause)
	result.Status = crawler.SourceStatusFailed
	result.Err = cause
	update := crawler.SourceUpdate{
		Status:       crawler.StatusPtr(crawler.SourceStatusFailed),
		ErrorMessage: crawler.StringPtr(message),
	}
	if err := w.writeStatus(ctx, item.SourceID, update); err != nil {
		w.logger.Error("failed status update failed",
			zap.String("source_id", item.SourceID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return result
	}
	w.logger.Warn("crawl failed",
		zap.String("source_id", item.SourceID),
		zap.String("error_message", message),
		zap.Error(cause),
	)
	return result
}

// writeStatus records a terminal status even when ctx was canceled by
// shutdown, so sources never stay stuck in crawling.
func (w *Worker) writeStatus(ctx context.Context, sourceID string, update crawler.SourceUpdate) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	if err := w.deps.Store.UpdateSource(writeCtx, sourceID, update); err != nil {
		if errors.Is(err, crawler.ErrNotFound) {
			return fmt.Errorf("source deleted during crawl: %w", err)
		}
		return fmt.Errorf("update source status: %w", err)
	}
	return nil
}

func (w *Worker) publishCompleted(
	ctx context.Context,
	source crawler.CrawlSource,
	result crawler.CrawlResult,
	finishedAt time.Time,
	logger *zap.Logger,
) {
	if w.cfg.Topic == "" || w.deps.Publisher == nil {
		return
	}
	payload := map[string]any{
		"event":            CompletedEvent,
		"source_id":        source.ID,
		"url":              source.URL,
		"topic_id":         source.TopicID,
		"status":           string(result.Status),
		"insights_created": result.InsightsCreated,
		"timestamp":        finishedAt.Format(time.RFC3339),
	}
	id, err := w.deps.Publisher.Publish(ctx, w.cfg.Topic, payload)
	if err != nil {
		logger.Warn("publish crawl completed failed", zap.Error(err))
		return
	}
	logger.Debug("crawl completed published", zap.String("message_id", id))
}

// withRetry runs fn until it succeeds or the policy gives up.
func withRetry[T any](
	ctx context.Context,
	w *Worker,
	stage string,
	logger *zap.Logger,
	fn func(context.Context) (T, error),
) (T, error) {
	for attempt := 1; ; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if !w.deps.Retry.ShouldRetry(err, attempt) {
			return out, err
		}
		delay := w.deps.Retry.Backoff(attempt)
		logger.Info("retrying stage",
			zap.String("stage", stage),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		metrics.ObserveRetry(stage)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return out, err
		case <-timer.C:
		}
	}
}
