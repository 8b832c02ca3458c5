// Package server builds the application's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/insight-curator/internal/api"
	"github.com/JakeFAU/insight-curator/internal/clock/system"
	"github.com/JakeFAU/insight-curator/internal/config"
	"github.com/JakeFAU/insight-curator/internal/crawler"
	"github.com/JakeFAU/insight-curator/internal/dispatcher"
	"github.com/JakeFAU/insight-curator/internal/extract"
	collyfetcher "github.com/JakeFAU/insight-curator/internal/fetcher/colly"
	"github.com/JakeFAU/insight-curator/internal/id/uuid"
	anthropicllm "github.com/JakeFAU/insight-curator/internal/llm/anthropic"
	openaillm "github.com/JakeFAU/insight-curator/internal/llm/openai"
	"github.com/JakeFAU/insight-curator/internal/logging"
	"github.com/JakeFAU/insight-curator/internal/metrics"
	"github.com/JakeFAU/insight-curator/internal/notify"
	"github.com/JakeFAU/insight-curator/internal/notify/sinks"
	"github.com/JakeFAU/insight-curator/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/insight-curator/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/insight-curator/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/insight-curator/internal/queue/memory"
	"github.com/JakeFAU/insight-curator/internal/scheduler"
	"github.com/JakeFAU/insight-curator/internal/snapshot"
	gcsstorage "github.com/JakeFAU/insight-curator/internal/storage/gcs"
	localstorage "github.com/JakeFAU/insight-curator/internal/storage/local"
	memorystorage "github.com/JakeFAU/insight-curator/internal/storage/memory"
	pgstore "github.com/JakeFAU/insight-curator/internal/storage/postgres"
	"github.com/JakeFAU/insight-curator/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	store       crawler.Store
	pgStore     *pgstore.Store
	hub         *notify.Hub
	broadcaster *notify.Broadcaster
	queue       *queuememory.Queue
	workers     []*worker.Worker
	dispatch    *dispatcher.Dispatcher
	scheduler   *scheduler.Scheduler
	apiServer   *api.Server
	gcsClient   *storage.Client
	publisher   *gcppublisher.Publisher
	closeOnce   sync.Once
}

// Build creates the application's dependencies. On error, anything already
// opened is released.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg config.Config, logger *zap.Logger) (app *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
			app = nil
		}
	}()

	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("llm_provider", cfg.LLM.Provider),
	)
	metrics.Init()

	inner, err := app.setupStore(ctx)
	if err != nil {
		return app, err
	}
	if err = app.setupNotify(); err != nil {
		return app, err
	}
	app.store = notify.NewStore(inner, app.hub)

	archiver, err := app.setupSnapshots(ctx)
	if err != nil {
		return app, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return app, err
	}
	curator, err := app.setupCurator()
	if err != nil {
		return app, err
	}

	app.queue = queuememory.NewQueue(cfg.Crawler.QueueDepth)
	app.workers = app.setupWorkers(worker.Dependencies{
		Queue:     app.queue,
		Store:     app.store,
		Curator:   curator,
		Archiver:  archiver,
		Publisher: publisher,
	})
	app.dispatch = dispatcher.New(app.queue, app.store, app.workers,
		dispatcher.Config{EnqueueTimeout: cfg.EnqueueTimeout()},
		logger.Named("dispatcher"),
	)

	if cfg.Scheduler.Enabled {
		app.scheduler, err = scheduler.New(app.dispatch, cfg.Scheduler.Spec, logger.Named("scheduler"))
		if err != nil {
			return app, fmt.Errorf("scheduler init failed: %w", err)
		}
	}

	deps := api.Dependencies{
		Store:   app.store,
		Trigger: app.dispatch,
		Events:  app.broadcaster,
		IDs:     uuid.New(),
		Clock:   system.New(),
	}
	if app.pgStore != nil {
		deps.Ready = app.pgStore.Ping
	}
	app.apiServer = api.NewServer(deps, cfg, logger.Named("api"))
	return app, nil
}

func (a *App) setupStore(ctx context.Context) (crawler.Store, error) {
	switch strings.ToLower(a.cfg.Storage.Backend) {
	case "postgres":
		store, err := pgstore.New(ctx, pgstore.Config{
			DSN:      a.cfg.DB.DSN,
			MaxConns: int32(a.cfg.DB.MaxConns), //nolint:gosec // validated small pool size
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		a.pgStore = store
		if err := store.Migrate(ctx, nil); err != nil {
			return nil, fmt.Errorf("postgres migrate failed: %w", err)
		}
		released, err := store.ReleaseStaleLeases(ctx, crawler.ErrInterrupted.Error())
		if err != nil {
			return nil, fmt.Errorf("postgres lease recovery failed: %w", err)
		}
		if released > 0 {
			a.logger.Warn("released stale crawl leases", zap.Int64("count", released))
		}
		a.logger.Info("using postgres record store")
		return store, nil
	default:
		a.logger.Info("using in-memory record store")
		return memorystorage.NewStore(nil), nil
	}
}

func (a *App) setupNotify() error {
	a.broadcaster = notify.NewBroadcaster(0, a.logger.Named("broadcaster"))
	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return fmt.Errorf("notify metrics init failed: %w", err)
	}
	hubCfg := notify.Config{
		BufferSize:     a.cfg.Notify.BufferSize,
		MaxBatchEvents: a.cfg.Notify.MaxBatchEvents,
		MaxBatchWait:   a.cfg.BatchWait(),
		Logger:         a.logger.Named("notify_hub"),
	}
	a.hub = notify.NewHub(hubCfg,
		sinks.NewLogSink(a.logger.Named("notify_log")),
		promSink,
		a.broadcaster,
	)
	a.logger.Info("notify hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}

func (a *App) setupSnapshots(ctx context.Context) (*snapshot.Archiver, error) {
	var blobs crawler.BlobStore
	switch strings.ToLower(a.cfg.Storage.SnapshotBackend) {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		blobs, err = gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("archiving snapshots to GCS", zap.String("bucket", a.cfg.Storage.GCSBucket))
	case "local":
		var err error
		blobs, err = localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("archiving snapshots locally", zap.String("path", a.cfg.Storage.LocalDir))
	case "memory":
		blobs = memorystorage.NewBlobStore()
		a.logger.Info("archiving snapshots in memory")
	default:
		a.logger.Info("snapshot archiving disabled")
		return nil, nil
	}
	return snapshot.New(blobs, a.cfg.Storage.Prefix), nil
}

func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" {
		if a.cfg.PubSub.TopicName != "" {
			a.logger.Warn("no Pub/Sub project configured, using in-memory publisher",
				zap.String("topic", a.cfg.PubSub.TopicName))
		}
		return memorypublisher.New(), nil
	}
	pub, err := gcppublisher.New(ctx, a.cfg.PubSub.ProjectID, a.logger.Named("pubsub"))
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.publisher = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return pub, nil
}

func (a *App) setupCurator() (crawler.Curator, error) {
	llmCfg := a.cfg.LLM
	logger := a.logger.Named("llm")
	switch strings.ToLower(llmCfg.Provider) {
	case "anthropic":
		client, err := anthropicllm.New(anthropicllm.Config{
			BaseURL:     llmCfg.BaseURL,
			APIKey:      llmCfg.APIKey,
			Model:       llmCfg.Model,
			Temperature: llmCfg.Temperature,
			MaxTokens:   llmCfg.MaxTokens,
			Timeout:     a.cfg.LLMTimeout(),
		}, nil, logger)
		if err != nil {
			return nil, fmt.Errorf("anthropic curator init failed: %w", err)
		}
		return client, nil
	default:
		client, err := openaillm.New(openaillm.Config{
			BaseURL:     llmCfg.BaseURL,
			APIKey:      llmCfg.APIKey,
			Model:       llmCfg.Model,
			Temperature: llmCfg.Temperature,
			MaxTokens:   llmCfg.MaxTokens,
			Timeout:     a.cfg.LLMTimeout(),
		}, nil, logger)
		if err != nil {
			return nil, fmt.Errorf("openai curator init failed: %w", err)
		}
		return client, nil
	}
}

// setupWorkers fills in the shared pipeline stages and builds the pool.
func (a *App) setupWorkers(deps worker.Dependencies) []*worker.Worker {
	mode, ok := extract.ParseMode(a.cfg.Extractor.Mode)
	if !ok {
		a.logger.Warn("unknown extractor mode, using markup", zap.String("mode", a.cfg.Extractor.Mode))
	}
	deps.Extractor = extract.New(extract.Config{Mode: mode, MaxChars: a.cfg.Extractor.MaxChars})
	deps.Fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Crawler.UserAgent,
		Timeout:   a.cfg.HTTPTimeout(),
	})
	if a.cfg.RateLimit.Enabled {
		deps.Limiter = ratelimit.New(ratelimit.Config{
			PerSecond: a.cfg.RateLimit.PerSecond,
			Burst:     a.cfg.RateLimit.Burst,
		})
		a.logger.Info("per-host rate limiter enabled",
			zap.Float64("per_second", a.cfg.RateLimit.PerSecond),
			zap.Int("burst", a.cfg.RateLimit.Burst),
		)
	}
	deps.Retry = crawler.NewExponentialRetryPolicy(
		a.cfg.Retry.MaxAttempts,
		time.Duration(a.cfg.Retry.BaseDelayMs)*time.Millisecond,
		time.Duration(a.cfg.Retry.MaxDelayMs)*time.Millisecond,
	)
	deps.Clock = system.New()
	deps.IDs = uuid.New()

	workerCfg := worker.Config{Topic: a.cfg.PubSub.TopicName}
	a.logger.Info("worker config",
		zap.Int("concurrency", a.cfg.Crawler.Concurrency),
		zap.Int("queue_depth", a.cfg.Crawler.QueueDepth),
		zap.String("extractor_mode", string(mode)),
		zap.Int("retry_max_attempts", a.cfg.Retry.MaxAttempts),
		zap.String("topic", workerCfg.Topic),
	)

	workers := make([]*worker.Worker, 0, a.cfg.Crawler.Concurrency)
	for i := 0; i < a.cfg.Crawler.Concurrency; i++ {
		workers = append(workers, worker.New(deps, workerCfg,
			a.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	return workers
}

// Store exposes the change-announcing record store.
func (a *App) Store() crawler.Store {
	return a.store
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler returns the HTTP handler without starting a listener.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// CrawlOnce leases sourceID and crawls it on the calling goroutine.
func (a *App) CrawlOnce(ctx context.Context, sourceID string) (crawler.CrawlResult, error) {
	if len(a.workers) == 0 {
		return crawler.CrawlResult{}, errors.New("no workers configured")
	}
	if !uuid.Valid(sourceID) {
		return crawler.CrawlResult{SourceID: sourceID}, crawler.ErrNotFound
	}
	return a.dispatch.CrawlNow(ctx, a.workers[0], sourceID)
}

// Run starts the workers, the scheduler and the HTTP server, and blocks until
// ctx is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.dispatch.Run(ctx)
	}()

	if a.scheduler != nil {
		a.scheduler.Start(ctx)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout(),
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()

	// Open change streams would otherwise hold Shutdown until the deadline.
	if err := a.broadcaster.Close(shutdownCtx); err != nil {
		a.logger.Warn("broadcaster close failed", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if a.scheduler != nil {
		if err := a.scheduler.Stop(shutdownCtx); err != nil {
			a.logger.Warn("scheduler stop failed", zap.Error(err))
		}
	}
	wg.Wait()

	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close releases every opened resource. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	a.closeOnce.Do(func() {
		if a.queue != nil {
			a.queue.Close()
			if a.dispatch != nil {
				a.dispatch.ReleasePending(ctx)
			}
		}
		if a.hub != nil {
			if err := a.hub.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("notify hub close: %w", err))
			}
		}
		if a.publisher != nil {
			if err := a.publisher.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if a.gcsClient != nil {
			if err := a.gcsClient.Close(); err != nil {
				errs = append(errs, fmt.Errorf("gcs client close: %w", err))
			}
		}
		if a.pgStore != nil {
			a.pgStore.Close()
		}
		if err := a.logger.Sync(); err != nil {
			a.logger.Debug("logger sync failed", zap.Error(err))
		}
		a.logger.Info("shutdown complete")
	})
	return errors.Join(errs...)
}
