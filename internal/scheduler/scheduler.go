// Package scheduler re-crawls every registered source on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/insight-curator/internal/crawler"
)

// DefaultSpec re-crawls every source four times a day.
const DefaultSpec = "@every 6h"

// Trigger queues a crawl for every source that is not already crawling.
type Trigger interface {
	TriggerAll(ctx context.Context) (int, error)
}

// Scheduler drives Trigger from a cron expression. Standard five-field specs
// and descriptors such as @hourly or @every 30m are accepted.
type Scheduler struct {
	cron    *cron.Cron
	sched   cron.Schedule
	spec    string
	trigger Trigger
	logger  *zap.Logger

	mu      sync.Mutex
	entry   cron.EntryID
	started bool
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New validates spec and builds a stopped Scheduler.
func New(trigger Trigger, spec string, logger *zap.Logger) (*Scheduler, error) {
	if trigger == nil {
		return nil, errors.New("scheduler trigger is required")
	}
	if spec == "" {
		spec = DefaultSpec
	}
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLogger := cronLogger{logger: logger.Sugar()}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	return &Scheduler{
		cron:    c,
		sched:   sched,
		spec:    spec,
		trigger: trigger,
		logger:  logger,
	}, nil
}

// Start registers the re-crawl job and starts the cron loop. Runs use ctx, so
// canceling it aborts in-flight triggers.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.entry = s.cron.Schedule(s.sched, cron.FuncJob(func() {
		s.RunOnce(ctx)
	}))
	s.cron.Start()
	s.started = true
	s.logger.Info("crawl scheduler started",
		zap.String("spec", s.spec),
		zap.Time("next_run", s.Next()),
	)
}

// Stop halts the cron loop and waits for a running trigger to finish or ctx
// to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Next reports when the job runs next. Before Start it is computed from now.
func (s *Scheduler) Next() time.Time {
	if s.entry != 0 {
		if entry := s.cron.Entry(s.entry); entry.Valid() && !entry.Next.IsZero() {
			return entry.Next
		}
	}
	return s.sched.Next(time.Now())
}

// RunOnce triggers every idle source once and returns how many were queued.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	start := time.Now()
	queued, err := s.trigger.TriggerAll(ctx)
	if err != nil {
		level := s.logger.Error
		if errors.Is(err, crawler.ErrQueueFull) {
			level = s.logger.Warn
		}
		level("scheduled crawl pass incomplete",
			zap.Int("queued", queued),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return queued
	}
	s.logger.Info("scheduled crawl pass queued", zap.Int("queued", queued), zap.Duration("elapsed", time.Since(start)))
	return queued
}

type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
