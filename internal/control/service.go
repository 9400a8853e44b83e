package control

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"

	"github.com/vietddude/handoff/internal/core/clock"
	"github.com/vietddude/handoff/internal/core/config"
	"github.com/vietddude/handoff/internal/health"
	"github.com/vietddude/handoff/internal/infra/cache"
	redisclient "github.com/vietddude/handoff/internal/infra/redis"
	"github.com/vietddude/handoff/internal/infra/storage"
	"github.com/vietddude/handoff/internal/infra/storage/memory"
	"github.com/vietddude/handoff/internal/infra/storage/postgres"
	"github.com/vietddude/handoff/internal/lifecycle"
	"github.com/vietddude/handoff/internal/resilience"
	"github.com/vietddude/handoff/internal/scheduler"
)

// Service is the main application struct that owns every long-lived
// component: storage, cache, the resilience primitives, the lifecycle
// manager, the retention scheduler, and the health endpoint.
type Service struct {
	cfg          *config.AppConfig
	store        *storage.Store
	db           *postgres.DB
	redisClient  *redisclient.Client
	cache        cache.Cache
	breakers     *resilience.BreakerRegistry
	alerter      *resilience.Alerter
	executor     *resilience.Executor
	manager      *lifecycle.Manager
	sched        *scheduler.Scheduler
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger
	clk          clock.Clock
}

// NewService creates a Service with all dependencies initialized.
func NewService(ctx context.Context, cfg *config.AppConfig) (*Service, error) {
	log := slog.Default()
	clk := clock.System()

	// 1. Initialize Storage
	var store *storage.Store
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = connectDB(ctx, cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(cfg.Database.MigrationsDir); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		store = db.NewStore()
		log.Info("Using PostgreSQL storage")
	} else {
		store = memory.NewStorage().NewStore()
		log.Info("Using memory storage")
	}

	// 2. Initialize Cache
	var c cache.Cache
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, using memory cache", "error", err)
			c = cache.NewMemory(clk)
		} else {
			c = redisclient.NewCache(redisClient)
			log.Info("Using Redis cache")
		}
	} else {
		c = cache.NewMemory(clk)
		log.Info("Using memory cache")
	}

	// 3. Initialize Resilience Components
	breakers := resilience.NewBreakerRegistry(
		cfg.Resilience.BreakerThreshold,
		cfg.Resilience.BreakerTimeout(),
		clk,
	)
	alerter := resilience.NewAlerter(log, clk, cfg.Resilience.AlertCooldown())
	executor := resilience.NewExecutor(log, clk, c, breakers, alerter)

	// 4. Initialize Lifecycle Manager
	manager := lifecycle.NewManager(store, c, clk, log)

	// 5. Initialize Scheduler and register lifecycle jobs
	sched := scheduler.NewScheduler(log, clk)
	if err := scheduler.RegisterLifecycleJobs(sched, manager, c, log, EffectiveJobConfigs(cfg)); err != nil {
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	// 6. Initialize Health Monitor and Server
	var dbPinger, cachePinger health.Pinger
	if db != nil {
		dbPinger = db
	}
	if redisClient != nil {
		cachePinger = redisClient
	}
	healthMon := health.NewMonitor(dbPinger, cachePinger, c, manager, sched, breakers, clk)
	healthServer := health.NewServer(healthMon, cfg.Server.Port)

	return &Service{
		cfg:          cfg,
		store:        store,
		db:           db,
		redisClient:  redisClient,
		cache:        c,
		breakers:     breakers,
		alerter:      alerter,
		executor:     executor,
		manager:      manager,
		sched:        sched,
		healthMon:    healthMon,
		healthServer: healthServer,
		log:          log,
		clk:          clk,
	}, nil
}

// EffectiveJobConfigs merges the configured job settings over the default
// schedule. Zero fields keep the default, so a config file can tune a
// single knob without restating the whole job.
func EffectiveJobConfigs(cfg *config.AppConfig) map[string]scheduler.JobConfig {
	out := scheduler.DefaultJobConfigs()
	for name, jc := range cfg.Jobs {
		base, ok := out[name]
		if !ok {
			base = scheduler.JobConfig{Interval: time.Hour}
		}
		if jc.IntervalMinutes > 0 {
			base.Interval = jc.Interval()
		}
		base.Enabled = jc.IsEnabled()
		if jc.MaxRetries > 0 {
			base.MaxRetries = jc.MaxRetries
		}
		if jc.RetryDelaySeconds > 0 {
			base.RetryDelay = jc.RetryDelay()
		}
		out[name] = base
	}
	return out
}

// connectDB opens the database, retrying while it comes up. Container
// orchestration often starts the service before the database accepts
// connections.
func connectDB(ctx context.Context, cfg postgres.Config, log *slog.Logger) (*postgres.DB, error) {
	var db *postgres.DB
	backoff := retry.WithMaxRetries(4, retry.NewConstant(2*time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		db, err = postgres.NewDB(ctx, cfg)
		if err != nil {
			log.Warn("Database not ready, retrying", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Start seeds retention policies and starts all components.
func (s *Service) Start(ctx context.Context) error {
	// Seed policies before the scheduler runs so the sweeps have TTLs to
	// work with.
	if err := s.seedPolicies(ctx); err != nil {
		return fmt.Errorf("failed to seed retention policies: %w", err)
	}

	// Start Health Server
	go func() {
		if err := s.healthServer.Start(); err != nil {
			s.log.Error("Health server failed", "error", err)
		}
	}()

	// Start Scheduled Jobs
	s.sched.StartAllJobs()

	s.log.Info("Service started", "port", s.cfg.Server.Port)
	return nil
}

// seedPolicies writes the configured retention policies through the
// recovery executor so a briefly unavailable database does not abort
// startup.
func (s *Service) seedPolicies(ctx context.Context) error {
	for _, pc := range s.cfg.Retention.Policies {
		policy := pc.ToDomain()
		res := s.executor.HandleWithRecovery(ctx,
			func(ctx context.Context) (any, error) {
				return nil, s.manager.UpdateRetentionPolicy(ctx, policy)
			},
			resilience.Config{
				Strategy:      resilience.StrategyRetry,
				MaxRetries:    3,
				InitialDelay:  500 * time.Millisecond,
				JitterEnabled: true,
			},
			resilience.ErrorContext{
				Category:  resilience.CategorySystem,
				Severity:  resilience.SeverityHigh,
				Component: "control",
				Operation: "seed_policy",
				Metadata:  map[string]any{"policy": policy.Name},
			},
		)
		if !res.Success {
			return res.Err
		}
		s.log.Info("Retention policy seeded", "policy", policy.Name)
	}
	return nil
}

// Manager exposes the lifecycle manager, mainly for tests and tooling.
func (s *Service) Manager() *lifecycle.Manager {
	return s.manager
}

// Scheduler exposes the retention scheduler.
func (s *Service) Scheduler() *scheduler.Scheduler {
	return s.sched
}

// Executor exposes the recovery executor.
func (s *Service) Executor() *resilience.Executor {
	return s.executor
}

// Stop stops the scheduler, the health server, and closes connections.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping service...")

	s.sched.StopAllJobs()

	var errs error
	if err := s.healthServer.Stop(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("health server: %w", err))
	}
	if closer, ok := s.cache.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cache: %w", err))
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("database: %w", err))
		}
	}
	return errs
}
