package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/user/redeem-checker/internal/adapter/chromedp_browser"
	"github.com/user/redeem-checker/internal/adapter/httpstage"
	"github.com/user/redeem-checker/internal/adapter/memory"
	"github.com/user/redeem-checker/internal/adapter/postgres"
	redis_adapter "github.com/user/redeem-checker/internal/adapter/redis"
	"github.com/user/redeem-checker/internal/delivery/http/handler"
	"github.com/user/redeem-checker/internal/delivery/http/router"
	"github.com/user/redeem-checker/internal/profile"
	"github.com/user/redeem-checker/internal/repository"
	"github.com/user/redeem-checker/internal/usecase"
	"github.com/user/redeem-checker/pkg/config"
	"github.com/user/redeem-checker/pkg/logger"
	"github.com/user/redeem-checker/pkg/metrics"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("Service stopped with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	// --- Metrics ---
	m := metrics.New(prometheus.DefaultRegisterer)
	checks := map[string]handler.HealthCheck{}

	// --- Store ---
	var (
		jobs    repository.JobRepository
		results repository.ResultRepository
	)
	switch cfg.StoreDriver {
	case "memory":
		store := memory.NewStore()
		jobs, results = store.Jobs(), store.Results()
		log.Warn("Using in-memory store; jobs do not survive a restart")
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("unable to connect to database: %w", err)
		}
		defer pool.Close()
		jobs, results = postgres.NewJobRepo(pool), postgres.NewResultRepo(pool)
		checks["postgres"] = pool.Ping
		log.Info("PostgreSQL connection pool established")
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	// --- Profiles ---
	profiles := profile.NewStore(cfg.ProfilesDir, cfg.BaseDir, log.Named("profiles"))
	if err := profiles.Load(); err != nil {
		return err
	}

	// --- Stages ---
	policy := httpstage.DefaultRetryPolicy()
	policy.RetryBlockedOtherStatus = cfg.RetryBlockedOtherStatus
	httpStage := httpstage.NewStage(policy, log.Named("http_stage"), m)
	browserStage := chromedp_browser.NewLauncher(log.Named("browser_stage"), m)
	browserStage.ExecPath = cfg.ChromePath

	// --- Orchestrator ---
	orch := usecase.NewOrchestrator(jobs, results, profiles, httpStage, browserStage, m, log.Named("orchestrator"), cfg.MaxActiveJobs)
	if cfg.RedisAddr != "" {
		rdb, err := redis_adapter.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("unable to connect to redis: %w", err)
		}
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		orch.WithLease(redis_adapter.NewLeaseRepo(rdb), leaseOwner(), time.Duration(cfg.LeaseTTLSeconds)*time.Second)
		log.Info("Redis connection established")
	}

	if err := orch.Recover(ctx); err != nil {
		return err
	}
	started, err := orch.StartAllQueued(ctx)
	if err != nil {
		return err
	}
	log.Info("Queued jobs resumed", zap.Int("jobs", started))

	jobManager := usecase.NewJobManager(jobs, results, profiles, orch, usecase.Defaults{
		HTTPConcurrency:    cfg.DefaultHTTPConcurrency,
		BrowserConcurrency: cfg.DefaultBrowserConcurrency,
		MaxRetries:         cfg.DefaultMaxRetries,
		RequestDelayMS:     cfg.DefaultRequestDelayMS,
	}, log.Named("jobs"))

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(jobManager, profiles, checks, log.Named("api"))
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router.New(apiHandler, m, prometheus.DefaultGatherer, cfg.AllowedOrigins(), log.Named("http")),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		log.Info("Shutting down", zap.String("signal", sig.String()))
	case err := <-serveErr:
		runErr = fmt.Errorf("could not listen on port %s: %w", cfg.ServerPort, err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		log.Error("Job tasks did not stop in time", zap.Error(err))
	}

	log.Info("Server exiting")
	return runErr
}

func leaseOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return host + "-" + uuid.NewString()
}
