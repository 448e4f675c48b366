package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/riskibarqy/lineup-orchestrator/internal/config"
	"github.com/riskibarqy/lineup-orchestrator/internal/infrastructure/realtime/wsfeed"
	"github.com/riskibarqy/lineup-orchestrator/internal/infrastructure/remote/lineupapi"
	"github.com/riskibarqy/lineup-orchestrator/internal/interfaces/httpapi"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/cache"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/logging"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/metrics"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/resilience"
	"github.com/riskibarqy/lineup-orchestrator/internal/usecase"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const shutdownTimeout = 10 * time.Second

// App owns every long-lived component of the service.
type App struct {
	cfg    config.Config
	logger *logging.Logger

	Server       *http.Server
	Service      *usecase.LineupService
	Registry     *usecase.StoreRegistry
	Orchestrator *usecase.OptimizationOrchestrator
	Sync         *usecase.SyncChannel

	cache     *cache.Store
	pool      *ants.Pool
	closeJobs func() error
}

func New(ctx context.Context, cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.HTTPAddr == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	collectors := metrics.New()

	codec, err := cache.NewCodec(cfg.CacheCompression, cfg.CacheEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("build cache codec: %w", err)
	}
	store := cache.NewStore(cache.Config{
		MaxEntries: cfg.CacheMaxEntries,
		MaxBytes:   cfg.CacheMaxBytes,
		DefaultTTL: cfg.CacheLineupTTL,
		Codec:      codec,
		Observer: cache.ObserverFunc(func(ev cache.Event) {
			logger.Debug("cache event", "kind", ev.Kind, "key", ev.Key, "reason", ev.Reason)
		}),
		Metrics: collectors,
		Logger:  logger,
	})

	pool, err := ants.NewPool(cfg.WorkerPoolSize, ants.WithPanicHandler(func(rec any) {
		logger.Error("worker task panicked", "panic", rec)
	}))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	jobs, closeJobs, err := openJobLedger(ctx, cfg, store, logger)
	if err != nil {
		pool.Release()
		store.Close()
		return nil, err
	}

	guard := resilience.NewGuard(guardConfig(cfg), logger, collectors)
	credentials := lineupapi.StaticToken(cfg.RemoteToken)
	remote := lineupapi.NewClient(
		&http.Client{Timeout: cfg.RemoteTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		cfg.RemoteBaseURL,
		credentials,
		logger,
	)

	registry := usecase.NewStoreRegistry(usecase.StoreDeps{
		Remote:   remote,
		Guard:    guard,
		Cache:    store,
		Pool:     pool,
		Rules:    cfg.Rules(),
		CacheTTL: cfg.CacheLineupTTL,
		Logger:   logger,
	})
	orchestrator := usecase.NewOptimizationOrchestrator(usecase.OrchestratorDeps{
		Remote:  remote,
		Guard:   guard,
		Cache:   store,
		Stores:  registry,
		Jobs:    jobs,
		Pool:    pool,
		Logger:  logger,
		Metrics: collectors,
	}, usecase.OrchestratorConfig{
		PollInterval: cfg.OptimizationPollInterval,
		JobRetention: cfg.OptimizationJobRetention,
		CacheTTL:     cfg.CacheOptimizationTTL,
	})

	var syncChannel *usecase.SyncChannel
	if cfg.RealtimeEnabled {
		feed := wsfeed.New(wsfeed.Config{
			URL:             cfg.RealtimeURL,
			LivenessTimeout: cfg.RealtimeLivenessTimeout,
		}, credentials, logger)
		syncChannel = usecase.NewSyncChannel(feed, registry, usecase.SyncConfig{
			MaxReconnect: cfg.RealtimeMaxReconnect,
			BackoffBase:  cfg.RealtimeBackoffBase,
			BackoffMax:   cfg.RealtimeBackoffMax,
		}, logger, collectors)
	}

	service := usecase.NewLineupService(registry, orchestrator, syncChannel, guard, logger)
	handler := httpapi.NewHandler(service, cfg.LineupSport, logger)
	router := httpapi.NewRouter(handler, collectors.Handler(), logger, cfg.CORSAllowedOrigins)

	return &App{
		cfg:    cfg,
		logger: logger,
		Server: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		Service:      service,
		Registry:     registry,
		Orchestrator: orchestrator,
		Sync:         syncChannel,
		cache:        store,
		pool:         pool,
		closeJobs:    closeJobs,
	}, nil
}

// Run serves HTTP, the realtime channel and the job janitor until ctx ends
// or the server fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	var wg conc.WaitGroup

	wg.Go(func() {
		a.logger.Info("http server starting", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
		}
	})
	wg.Go(func() { a.Orchestrator.RunJanitor(ctx) })
	if a.Sync != nil {
		wg.Go(func() {
			if err := a.Sync.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				// The UI keeps working without realtime deltas.
				a.logger.Error("realtime sync stopped", "error", err)
			}
		})
	}

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer shutdownCancel()
	shutdownErr := a.Server.Shutdown(shutdownCtx)
	wg.Wait()
	a.close()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
	}
	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown: %w", shutdownErr)
	}
	a.logger.Info("http server stopped")
	return nil
}

func (a *App) close() {
	a.Service.Close()
	a.Orchestrator.Close()
	a.Registry.Close()
	a.pool.Release()
	a.cache.Close()
	if a.closeJobs != nil {
		if err := a.closeJobs(); err != nil {
			a.logger.Warn("close job ledger failed", "error", err)
		}
	}
}

func guardConfig(cfg config.Config) resilience.GuardConfig {
	perMinute := func(n int) resilience.RateLimit {
		return resilience.RateLimit{PerMinute: n, Burst: max(1, n/4)}
	}
	return resilience.GuardConfig{
		Retry: resilience.RetryPolicy{
			MaxAttempts: cfg.RemoteMaxAttempts,
			BaseDelay:   cfg.RemoteRetryBaseDelay,
			MaxDelay:    cfg.RemoteRetryMaxDelay,
		},
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.CircuitEnabled,
			FailureThreshold: cfg.CircuitFailureThreshold,
			Cooldown:         cfg.CircuitCooldown,
			HalfOpenMaxReq:   cfg.CircuitHalfOpenMaxReq,
		},
		AttemptTimeout: cfg.RemoteTimeout,
		RateLimits: map[resilience.OperationClass]resilience.RateLimit{
			resilience.OpLineupRead:         perMinute(cfg.RateLimitLineupPerMin),
			resilience.OpLineupWrite:        perMinute(cfg.RateLimitLineupPerMin),
			resilience.OpOptimizationSubmit: perMinute(cfg.RateLimitOptimizePerMin),
			resilience.OpTradeSubmit:        perMinute(cfg.RateLimitTradePerMin),
		},
	}
}
