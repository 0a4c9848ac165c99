// Package control wires the ranking pipeline together and manages its
// lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/feedrank/internal/core/config"
	"github.com/vietddude/feedrank/internal/core/task"
	"github.com/vietddude/feedrank/internal/core/worker"
	"github.com/vietddude/feedrank/internal/infra/notify"
	redisclient "github.com/vietddude/feedrank/internal/infra/redis"
	"github.com/vietddude/feedrank/internal/infra/storage"
	"github.com/vietddude/feedrank/internal/infra/storage/memory"
	"github.com/vietddude/feedrank/internal/infra/storage/postgres"
	"github.com/vietddude/feedrank/internal/pipeline/dlq"
	"github.com/vietddude/feedrank/internal/pipeline/executor"
	"github.com/vietddude/feedrank/internal/pipeline/health"
	"github.com/vietddude/feedrank/internal/pipeline/metrics"
	"github.com/vietddude/feedrank/internal/pipeline/queue"
	"github.com/vietddude/feedrank/internal/pipeline/retry"
	"github.com/vietddude/feedrank/internal/pipeline/status"
	"github.com/vietddude/feedrank/internal/ranking/cache"
	"github.com/vietddude/feedrank/internal/ranking/score"
)

// App is the assembled service. Fields exported for the CLI are safe to use
// without calling Start.
type App struct {
	Status      *status.Service
	DeadLetters *dlq.Store
	Cache       *cache.ResultCache
	Tasks       *task.Manager
	Executor    *executor.Executor

	cfg          *config.AppConfig
	pool         *worker.Pool
	pruner       *dlq.Pruner
	healthMon    *health.Monitor
	healthServer *health.Server
	queue        queue.Queue
	memStore     *memory.MemoryStorage
	db           *postgres.DB
	redisClient  *redisclient.Client
	cancel       context.CancelFunc
	poolDone     chan error
	log          *slog.Logger
}

// NewApp builds every component from cfg. Postgres backs the interaction,
// candidate, user and dead-letter repositories when database.url is set;
// the redis backend moves the cache, queue and task tracker to Redis.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := slog.Default().With("component", "app")
	recorder := metrics.Prometheus{}

	app := &App{cfg: cfg, log: log}

	// 1. Read-side storage
	var (
		interactions storage.InteractionRepository
		candidates   storage.CandidateRepository
		users        storage.UserRepository
		dlqRepo      storage.DLQRepository
		storePinger  storage.Pinger
	)

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if cfg.Database.Migrate {
			if err := db.Migrate(ctx); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		app.db = db
		interactions = postgres.NewInteractionRepo(db)
		candidates = postgres.NewCandidateRepo(db)
		users = postgres.NewUserRepo(db)
		dlqRepo = postgres.NewDLQRepo(db)
		storePinger = db
		log.Info("Using PostgreSQL storage")
	} else {
		app.memStore = memory.NewMemoryStorage()
		interactions = memory.NewInteractionRepo(app.memStore)
		candidates = memory.NewCandidateRepo(app.memStore)
		users = memory.NewUserRepo(app.memStore)
		dlqRepo = memory.NewDLQRepo(app.memStore)
		storePinger = app.memStore
		log.Info("Using Memory storage")
	}

	breakerCfg := storage.DefaultBreakerConfig()
	breakerCfg.FailureThreshold = cfg.Worker.BreakerTrips
	guarded := storage.NewGuarded(breakerCfg, interactions, candidates, users)

	// 2. Cache, queue and task tracker
	var (
		cacheStore cache.Store
		taskRepo   storage.TaskRepository
	)
	components := []health.Component{{Name: "store", Pinger: storePinger, Critical: true}}

	switch cfg.Backend {
	case config.BackendRedis:
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			app.closeStores()
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		app.redisClient = client
		cacheStore = redisclient.NewCacheStore(client)
		taskRepo = redisclient.NewTaskRepo(client, cfg.Worker.TaskTTL)
		app.queue = redisclient.NewQueue(client, redisclient.QueueConfig{
			Name:       cfg.Worker.QueueName,
			Visibility: cfg.Worker.HardTimeout + time.Minute,
		})
		if app.db == nil {
			dlqRepo = redisclient.NewDLQRepo(client)
		}
		components = append(components, health.Component{Name: "redis", Pinger: client, Critical: true})
		log.Info("Using Redis broker", "queue", cfg.Worker.QueueName)
	default:
		if app.memStore == nil {
			app.memStore = memory.NewMemoryStorage()
		}
		cacheStore = cache.NewMemoryStore()
		taskRepo = memory.NewTaskRepo(app.memStore)
		app.queue = queue.NewMemoryQueue()
		log.Info("Using in-process broker")
	}

	app.Cache = cache.New(cacheStore, cfg.Cache.TTL, recorder)
	app.Tasks = task.NewManager(taskRepo)
	app.Tasks.SetStateChangeCallback(func(tr task.Transition) {
		log.Debug("Task transition", "task_id", tr.TaskID, "from", tr.From, "to", tr.To, "reason", tr.Reason)
	})
	app.Status = status.NewService(app.queue, app.Tasks)
	components = append(components, health.Component{Name: "cache", Pinger: app.Cache})

	// 3. Dead letters
	notifiers := notify.Multi{notify.NewLogNotifier()}
	if cfg.DLQ.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.DLQ.WebhookURL, cfg.DLQ.WebhookTimeout))
	}
	app.DeadLetters = dlq.NewStore(
		dlq.Config{WorkerID: cfg.Worker.ID, AlertsEnabled: cfg.DLQ.AlertsEnabled},
		dlqRepo,
		notifiers,
		recorder,
	)
	app.pruner = dlq.NewPruner(app.DeadLetters, cfg.DLQ.Retention)

	// 4. Executor and workers
	engine := score.NewEngine(cfg.Scoring.ScoringWeights, cfg.Scoring.Polarity(), nil)
	app.Executor = executor.New(
		executor.Config{SoftTimeout: cfg.Worker.SoftTimeout},
		executor.Dependencies{
			Interactions: guarded,
			Candidates:   guarded,
			Users:        guarded,
			Cache:        app.Cache,
			Engine:       engine,
			Health: &executor.DependencyHealth{
				Store:   storePinger,
				Cache:   app.Cache,
				Breaker: guarded,
				OnCacheDown: func(err error) {
					log.Warn("Cache unreachable, rankings will not be cached", "error", err)
				},
			},
			Permissions: executor.SuspensionChecker{},
			Recorder:    recorder,
		},
	)

	scheduler := retry.NewScheduler(retry.Config{
		BaseDelay:  cfg.Retry.BaseDelay,
		MaxDelay:   cfg.Retry.MaxDelay,
		MaxRetries: cfg.Retry.MaxRetries,
		KindBase:   cfg.Retry.KindBase,
	})

	app.pool = worker.NewPool(
		worker.Config{Workers: cfg.Worker.Concurrency, HardTimeout: cfg.Worker.HardTimeout},
		app.queue,
		app.Tasks,
		app.Executor,
		scheduler,
		app.DeadLetters,
		recorder,
	)

	// 5. Health
	app.healthMon = health.NewMonitor(components, app.queue, dlqRepo, guarded, health.DefaultThresholds())
	app.healthServer = health.NewServer(app.healthMon, app.Status, cfg.Server.Port)

	return app, nil
}

// Memory returns the in-process store, or nil when Postgres is configured.
func (a *App) Memory() *memory.MemoryStorage { return a.memStore }

// Health returns the current health report.
func (a *App) Health(ctx context.Context) *health.HealthReport {
	return a.healthMon.CheckHealth(ctx)
}

// Start starts the health server, the worker pool and the pruner.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	go func() {
		if err := a.healthServer.Start(); err != nil {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	if a.cfg.DLQ.Retention > 0 {
		a.log.Info("Starting dead-letter pruner", "retention", a.cfg.DLQ.Retention)
		go a.pruner.Start(ctx)
	}

	a.poolDone = make(chan error, 1)
	go func() {
		a.poolDone <- a.pool.Run(ctx)
	}()

	return nil
}

// Stop drains the workers and releases every connection.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping feedrank...")

	if a.cancel != nil {
		a.cancel()
	}
	var errs []error
	if a.poolDone != nil {
		select {
		case err := <-a.poolDone:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("worker pool did not stop: %w", ctx.Err()))
		}
	}

	if err := a.healthServer.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases connections without touching the workers.
func (a *App) Close() error {
	if mq, ok := a.queue.(*queue.MemoryQueue); ok {
		mq.Close()
	}
	return a.closeStores()
}

func (a *App) closeStores() error {
	var errs []error
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
		a.redisClient = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
		a.db = nil
	}
	return errors.Join(errs...)
}
