package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fundingboard/config"
	"fundingboard/internal/cache"
	"fundingboard/internal/dashboard"
	"fundingboard/internal/metrics"
	"fundingboard/internal/scheduler"
	"fundingboard/internal/session"
	"fundingboard/internal/source"
	"fundingboard/internal/store"
	"fundingboard/logger"
)

const (
	jobReload       = "reload"
	jobSessionSweep = "session_sweep"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolveConfigPath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.Environment,
	}).Info("starting fundingboard")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Logging.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Logging.CloudWatch.Region, cfg.Logging.CloudWatch.Namespace, cfg.Logging.CloudWatch.DashboardName)
	}
	if interval := cfg.Logging.ReportInterval; interval > 0 || logger.IsReportLevel(cfg.Logging.Level) {
		if interval <= 0 {
			interval = 30 * time.Second
		}
		logger.StartReport(ctx, log, interval)
	}

	metrics.Init()

	fetcher, _, err := source.NewRouterFor(ctx, s3Settings(cfg.Sources.S3), cfg.Sources.FetchTimeout,
		cfg.Sources.SnapshotURI, cfg.Sources.HistoryURI)
	if err != nil {
		log.WithError(err).Error("failed to create S3 client")
		os.Exit(1)
	}

	dataStore := store.New(store.Config{
		SnapshotURI:   cfg.Sources.SnapshotURI,
		HistoryURI:    cfg.Sources.HistoryURI,
		HistoryFormat: source.FormatFor(cfg.Sources.HistoryFormat, cfg.Sources.HistoryURI),
		FetchTimeout:  cfg.Sources.FetchTimeout,
		KeepStale:     cfg.Sources.KeepStale,
	}, fetcher, log)

	sessions := session.NewManager(cfg.Dashboard.SessionTTL)

	chartCache, closeCache := newChartCache(ctx, cfg.Cache, log)
	defer closeCache()

	srv, err := dashboard.NewServer(cfg.Dashboard, dashboard.Dependencies{
		Store:    dataStore,
		Sessions: sessions,
		Cache:    chartCache,
		CacheTTL: cfg.Cache.TTL,
	}, log)
	if err != nil {
		log.WithError(err).Error("failed to create dashboard")
		os.Exit(1)
	}

	sched := scheduler.New(log)
	reload := func(ctx context.Context) error {
		return dataStore.Reload(ctx).Err()
	}
	if err := sched.Add(jobReload, cfg.Schedule.ReloadSpec, reload); err != nil {
		log.WithError(err).Error("failed to schedule reload")
		os.Exit(1)
	}
	if cfg.Schedule.SessionSweepSpec != "" {
		sweep := func(context.Context) error {
			if n := sessions.Sweep(); n > 0 {
				log.WithComponent("session").WithFields(logger.Fields{"expired": n, "active": sessions.Len()}).Debug("expired sessions removed")
			}
			return nil
		}
		if err := sched.Add(jobSessionSweep, cfg.Schedule.SessionSweepSpec, sweep); err != nil {
			log.WithError(err).Error("failed to schedule session sweep")
			os.Exit(1)
		}
	}

	// first load happens before the dashboard accepts requests
	sched.RunNow(jobReload, reload)
	sched.Start(ctx)

	var wg sync.WaitGroup
	serverErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Run(ctx, cfg.App.Name); err != nil {
			serverErr <- err
		}
	}()

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case err := <-serverErr:
		log.WithError(err).Error("dashboard server failed")
		exitCode = 1
	}

	log.Info("starting graceful shutdown")
	cancel()

	log.Info("stopping scheduler")
	sched.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("fundingboard stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func s3Settings(c config.S3Config) source.S3Settings {
	return source.S3Settings{
		Region:          c.Region,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		Endpoint:        c.Endpoint,
		PathStyle:       c.PathStyle,
	}
}

// newChartCache builds the configured chart cache. An unreachable redis
// degrades to the in-memory cache.
func newChartCache(ctx context.Context, cfg config.CacheConfig, log *logger.Log) (cache.Cache, func()) {
	noop := func() {}
	entry := log.WithComponent("chart_cache")

	switch cfg.Backend {
	case "none":
		return nil, noop
	case "redis":
		memory := cache.NewMemoryCache(cfg.MaxItems)
		redisCache, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			entry.WithError(err).Warn("redis unavailable; using in-memory chart cache")
			return memory, noop
		}
		entry.WithFields(logger.Fields{"addr": cfg.Redis.Addr}).Info("using redis chart cache")
		return cache.NewFallback(redisCache, memory, log), func() {
			if err := redisCache.Close(); err != nil && !errors.Is(err, context.Canceled) {
				entry.WithError(err).Warn("failed to close redis client")
			}
		}
	default:
		return cache.NewMemoryCache(cfg.MaxItems), noop
	}
}
