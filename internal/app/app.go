// Package app is the composition root: it turns a validated Config into the
// running set of collaborators and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/JakeFAU/award-digest/internal/api"
	"github.com/JakeFAU/award-digest/internal/award"
	"github.com/JakeFAU/award-digest/internal/clock/system"
	"github.com/JakeFAU/award-digest/internal/config"
	"github.com/JakeFAU/award-digest/internal/cycle"
	"github.com/JakeFAU/award-digest/internal/digest"
	"github.com/JakeFAU/award-digest/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/award-digest/internal/fetcher/colly"
	"github.com/JakeFAU/award-digest/internal/hash/sha256"
	"github.com/JakeFAU/award-digest/internal/id/uuid"
	"github.com/JakeFAU/award-digest/internal/policy/ratelimit"
	"github.com/JakeFAU/award-digest/internal/progress"
	progresssinks "github.com/JakeFAU/award-digest/internal/progress/sinks"
	logpublisher "github.com/JakeFAU/award-digest/internal/publisher/log"
	pubsubpublisher "github.com/JakeFAU/award-digest/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/award-digest/internal/queue/memory"
	"github.com/JakeFAU/award-digest/internal/registry"
	"github.com/JakeFAU/award-digest/internal/registry/anaf"
	"github.com/JakeFAU/award-digest/internal/scheduler"
	"github.com/JakeFAU/award-digest/internal/sicap"
	"github.com/JakeFAU/award-digest/internal/storage/cache"
	gcsstorage "github.com/JakeFAU/award-digest/internal/storage/gcs"
	localstorage "github.com/JakeFAU/award-digest/internal/storage/local"
	memorystorage "github.com/JakeFAU/award-digest/internal/storage/memory"
	pgstore "github.com/JakeFAU/award-digest/internal/storage/postgres"
	reststore "github.com/JakeFAU/award-digest/internal/storage/rest"
	"github.com/JakeFAU/award-digest/internal/store"
	"github.com/JakeFAU/award-digest/internal/telemetry"
	"github.com/JakeFAU/award-digest/internal/worker"
)

// ServiceName labels traces and logs.
const ServiceName = "award-digest"

const shutdownTimeout = 10 * time.Second

// Option customizes New.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	clock      award.Clock
}

// WithRegisterer registers the cycle metrics against reg instead of the
// default Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithClock replaces the system clock.
func WithClock(clock award.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  award.Clock

	coordinator *cycle.Coordinator
	dispatch    *dispatcher.Dispatcher
	queue       *queuememory.Queue
	schedule    *scheduler.Scheduler
	apiServer   *api.Server
	progressHub *progress.Hub

	awards   award.Lister
	runs     store.RunRepository
	registry registry.Lookup

	pool      *pgxpool.Pool
	redis     *redis.Client
	publisher *pubsubpublisher.Publisher
	archive   *gcsstorage.BlobStore

	tracerShutdown func(context.Context) error
	closeOnce      sync.Once
}

// New builds every collaborator described by cfg. On error, anything already
// opened is closed before returning.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{registerer: prometheus.DefaultRegisterer, clock: system.New()}
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{cfg: cfg, logger: logger, clock: o.clock}
	if err := a.build(ctx, o); err != nil {
		a.closeInfrastructure(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, o options) error {
	tp, err := telemetry.InitTracerProvider(ctx, ServiceName)
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracerShutdown = tp.Shutdown

	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: a.cfg.Source.RateLimit, DefaultBurst: 1})
	newFetcher := func(timeout time.Duration) *collyfetcher.Fetcher {
		return collyfetcher.New(collyfetcher.Config{
			UserAgent: a.cfg.Source.UserAgent,
			Timeout:   timeout,
			Limiter:   limiter,
		})
	}

	if a.cfg.Database.DSN != "" {
		if err := a.setupDatabase(ctx); err != nil {
			return err
		}
	}

	awardStore, err := a.setupStore(newFetcher(a.cfg.Store.Timeout))
	if err != nil {
		return err
	}
	if a.cfg.Cache.RedisAddr != "" {
		awardStore, err = a.setupCache(ctx, awardStore)
		if err != nil {
			return err
		}
	}

	a.setupProgress(ctx, o.registerer)

	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}
	archive, err := a.setupArchive(ctx)
	if err != nil {
		return err
	}

	sourceFetcher := sicap.NewFetcher(
		newFetcher(a.cfg.Source.Timeout),
		sicap.NewLinearRetryPolicy(a.cfg.Source.MaxAttempts, a.cfg.Source.BackoffBase),
		sicap.SleepContext,
		sicap.Config{PageSize: a.cfg.Source.PageSize, Origin: a.cfg.Source.Origin, Referer: a.cfg.Source.Referer},
		a.logger,
	)
	resolver := sicap.NewResolver(a.cfg.Source.Endpoints, sourceFetcher, a.logger)
	a.logger.Info("award source configured",
		zap.Strings("endpoints", resolver.Endpoints()),
		zap.Int("page_size", a.cfg.Source.PageSize),
		zap.Int("max_attempts", a.cfg.Source.MaxAttempts),
		zap.Float64("rate_limit", a.cfg.Source.RateLimit),
	)

	a.coordinator, err = cycle.New(cycle.Config{
		Prefixes:           a.cfg.Filter.Prefixes,
		BatchSize:          a.cfg.Store.BatchSize,
		PersistConcurrency: a.cfg.Store.Concurrency,
		Digest: digest.Options{
			PreviewSize: a.cfg.Digest.PreviewSize,
			Recipient:   a.cfg.Digest.Recipient,
			Currency:    a.cfg.Digest.Currency,
		},
		Topic:         a.cfg.PubSub.Topic,
		ArchivePrefix: a.cfg.Archive.Prefix,
	}, cycle.Deps{
		Resolver:  resolver,
		Store:     awardStore,
		Publisher: publisher,
		Archive:   archive,
		Progress:  a.progressHub,
		Clock:     a.clock,
		IDs:       uuid.New(),
		Hasher:    sha256.New(),
	}, a.logger)
	if err != nil {
		return fmt.Errorf("coordinator init failed: %w", err)
	}

	a.queue = queuememory.NewQueue(a.cfg.Server.QueueDepth)
	w := worker.New(a.queue, a.coordinator, worker.Config{}, a.logger)
	a.dispatch = dispatcher.New(a.queue, []*worker.Worker{w}, uuid.New(), a.clock)

	if a.cfg.Schedule.Cron != "" {
		a.schedule, err = scheduler.New(scheduler.Config{
			Spec:         a.cfg.Schedule.Cron,
			LookbackDays: a.cfg.Window.LookbackDays,
			MinValue:     a.cfg.Window.MinValue,
		}, a.dispatch, a.clock, a.logger)
		if err != nil {
			return fmt.Errorf("scheduler init failed: %w", err)
		}
	}

	a.registry = anaf.New(newFetcher(a.cfg.Registry.Timeout), a.cfg.Registry.URL, a.logger)

	a.apiServer = api.NewServer(api.Deps{
		Submitter: a.dispatch,
		Runs:      a.runs,
		Awards:    a.awards,
		Registry:  a.registry,
		Clock:     a.clock,
		Ready:     a.ready,
	}, api.Options{
		APIKey:       a.cfg.Server.APIKey,
		LookbackDays: a.cfg.Window.LookbackDays,
		MinValue:     a.cfg.Window.MinValue,
		Currency:     a.cfg.Digest.Currency,
	}, a.logger)

	a.logger.Info("application built",
		zap.String("store", a.cfg.Store.Driver),
		zap.String("notify", a.cfg.Notify.Driver),
		zap.String("archive", a.cfg.Archive.Driver),
		zap.Bool("postgres", a.pool != nil),
		zap.Bool("cache", a.redis != nil),
		zap.Bool("scheduled", a.schedule != nil),
	)
	return nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	pool, err := pgstore.NewPool(ctx, pgstore.PoolConfig{
		DSN:             a.cfg.Database.DSN,
		MaxConns:        a.cfg.Database.MaxConns,
		MinConns:        a.cfg.Database.MinConns,
		MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("database init failed: %w", err)
	}
	a.pool = pool
	if err := pgstore.Migrate(ctx, pool, a.logger); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	runs, err := pgstore.NewRunStore(pool)
	if err != nil {
		return fmt.Errorf("run store init failed: %w", err)
	}
	a.runs = runs
	a.logger.Info("postgres connected",
		zap.Int32("max_conns", a.cfg.Database.MaxConns),
		zap.Duration("max_conn_lifetime", a.cfg.Database.MaxConnLifetime),
	)
	return nil
}

// awardBackend is what every store driver offers.
type awardBackend interface {
	award.Store
	award.Lister
}

func (a *App) setupStore(client reststore.Doer) (award.Store, error) {
	if a.runs == nil {
		a.runs = memorystorage.NewRunStore()
	}
	var backend awardBackend
	switch a.cfg.Store.Driver {
	case config.StoreREST:
		s, err := reststore.New(client, reststore.Config{
			BaseURL: a.cfg.Store.URL,
			APIKey:  a.cfg.Store.APIKey,
			Table:   a.cfg.Store.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("rest store init failed: %w", err)
		}
		backend = s
		a.logger.Info("using REST record store", zap.String("table", a.cfg.Store.Table))
	case config.StorePostgres:
		if a.pool == nil {
			return nil, errors.New("postgres store requires database.dsn")
		}
		s, err := pgstore.NewAwardStore(a.pool, a.cfg.Store.Table)
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		backend = s
		a.logger.Info("using postgres record store", zap.String("table", a.cfg.Store.Table))
	default:
		backend = memorystorage.NewAwardStore()
		a.logger.Warn("using in-memory record store; records are lost on exit")
	}
	a.awards = backend
	return backend, nil
}

func (a *App) setupCache(ctx context.Context, next award.Store) (award.Store, error) {
	cacheCfg := cache.Config{Address: a.cfg.Cache.RedisAddr, TTL: a.cfg.Cache.TTL}
	client, err := cache.NewClient(ctx, cacheCfg)
	if err != nil {
		return nil, fmt.Errorf("redis init failed: %w", err)
	}
	a.redis = client
	lister := cache.NewLister(a.awards, client, cacheCfg, a.logger)
	a.awards = lister
	a.logger.Info("listing cache enabled",
		zap.String("address", a.cfg.Cache.RedisAddr),
		zap.Duration("ttl", a.cfg.Cache.TTL),
	)
	return lister.Wrap(next), nil
}

func (a *App) setupProgress(ctx context.Context, reg prometheus.Registerer) {
	sinkList := []progress.Sink{
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		progresssinks.NewStoreSink(a.runs, a.logger.Named("progress_store")),
	}
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		a.logger.Warn("prometheus progress sink disabled", zap.Error(err))
	} else {
		sinkList = append(sinkList, promSink)
	}
	a.progressHub = progress.NewHub(progress.Config{
		BaseContext: context.WithoutCancel(ctx),
		Logger:      a.logger.Named("progress_hub"),
	}, sinkList...)
	a.logger.Debug("progress hub initialized", zap.Int("sinks", len(sinkList)))
}

func (a *App) setupPublisher(ctx context.Context) (award.Publisher, error) {
	switch a.cfg.Notify.Driver {
	case config.NotifyPubSub:
		p, err := pubsubpublisher.Open(ctx, a.cfg.PubSub.ProjectID, pubsubpublisher.Config{
			DefaultTopic: a.cfg.PubSub.Topic,
			Propagator:   otel.GetTextMapPropagator(),
		})
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.publisher = p
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.PubSub.Topic),
		)
		return p, nil
	case config.NotifyLog:
		a.logger.Info("digests will be logged, not delivered")
		return logpublisher.New(a.logger), nil
	default:
		a.logger.Info("digest delivery disabled")
		return nil, nil
	}
}

func (a *App) setupArchive(ctx context.Context) (award.BlobStore, error) {
	switch a.cfg.Archive.Driver {
	case config.ArchiveLocal:
		s, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		a.logger.Info("archiving digests locally", zap.String("path", a.cfg.Archive.BaseDir))
		return s, nil
	case config.ArchiveGCS:
		s, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Archive.Bucket}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.archive = s
		a.logger.Info("archiving digests to GCS", zap.String("bucket", a.cfg.Archive.Bucket))
		return s, nil
	default:
		return nil, nil
	}
}

// RunCycle synchronously runs one cycle over w.
func (a *App) RunCycle(ctx context.Context, w award.Window) cycle.Report {
	return a.coordinator.RunCycle(ctx, w)
}

// Awards returns the listing backend, cached when Redis is configured.
func (a *App) Awards() award.Lister {
	return a.awards
}

// Runs returns the cycle history repository.
func (a *App) Runs() store.RunRepository {
	return a.runs
}

// Registry returns the company lookup.
func (a *App) Registry() registry.Lookup {
	return a.registry
}

// Clock returns the clock every component shares.
func (a *App) Clock() award.Clock {
	return a.clock
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

func (a *App) ready(ctx context.Context) error {
	var errs []error
	if a.pool != nil {
		if err := a.pool.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Serve runs the HTTP API, the worker pool and the scheduler until ctx is
// canceled or the process receives SIGINT/SIGTERM.
func (a *App) Serve(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()

	if a.schedule != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.schedule.Run(ctx); err != nil {
				a.logger.Error("scheduler error", zap.Error(err))
				stop()
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	wg.Wait()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases every resource. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		if a.queue != nil {
			a.queue.Close()
		}
		a.closeInfrastructure(ctx)
		if err := a.logger.Sync(); err != nil {
			a.logger.Debug("logger sync failed", zap.Error(err))
		}
	})
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}
