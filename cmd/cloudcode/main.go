package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/sitewright/cloudcode/pkg/api"
	"github.com/sitewright/cloudcode/pkg/async"
	"github.com/sitewright/cloudcode/pkg/billing"
	"github.com/sitewright/cloudcode/pkg/cascade"
	"github.com/sitewright/cloudcode/pkg/config"
	"github.com/sitewright/cloudcode/pkg/hooks"
	"github.com/sitewright/cloudcode/pkg/observability"
	"github.com/sitewright/cloudcode/pkg/propagation"
	"github.com/sitewright/cloudcode/pkg/schema"
	"github.com/sitewright/cloudcode/pkg/store"
	"github.com/sitewright/cloudcode/pkg/store/memstore"
	"github.com/sitewright/cloudcode/pkg/store/postgres"
	"github.com/sitewright/cloudcode/pkg/tenant"
)

func main() {
	requestLogger := logrus.New()
	requestLogger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		requestLogger.WithError(err).Fatal("failed to load configuration")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	var docs store.Store
	switch cfg.Store.Type {
	case "postgres":
		pg, err := postgres.New(cfg.Store.PostgresURL, cfg.Store.PostgresMaxConns)
		if err != nil {
			requestLogger.WithError(err).Fatal("failed to connect to postgres")
		}
		defer pg.Close()
		docs = pg
	default:
		docs = memstore.New()
	}

	var gateway schema.Gateway = schema.NewClient(
		cfg.Schema.ServerURL,
		cfg.Schema.AppID,
		cfg.Schema.MasterKey,
		logger,
		schema.WithMetrics(metrics),
	)
	if cfg.Store.RedisURL != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisURL,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		defer rdb.Close()
		gateway = schema.NewCachedGateway(gateway, rdb, cfg.Schema.CacheTTL, logger, metrics)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	onError := func(taskName string) {
		if metrics != nil {
			metrics.BackgroundErrorsTotal.WithLabelValues(taskName).Inc()
		}
	}
	// The pool outlives the signal context so queued fan-out writes can
	// drain during shutdown.
	pool := async.NewPool(context.Background(), cfg.Background.Workers, cfg.Background.TaskTimeout, logger, onError)

	repo := tenant.NewRepo(docs)
	tableRegistry, err := tenant.NewTableRegistry(repo, cfg.Background.RegistryCacheSize)
	if err != nil {
		requestLogger.WithError(err).Fatal("failed to build table registry")
	}

	hookService := hooks.NewService(
		repo,
		tableRegistry,
		gateway,
		cascade.NewEngine(repo, gateway, pool, logger, metrics),
		propagation.NewEngine(repo, gateway, pool, logger, metrics),
		billing.NewService(repo),
		logger,
		metrics,
	)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      api.NewServer(hookService, requestLogger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	healthMux.Handle("/metrics", observability.Handler(registry))
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	go func() {
		requestLogger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			requestLogger.WithError(err).Error("health server failed")
		}
	}()

	go func() {
		requestLogger.WithField("addr", server.Addr).Info("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			requestLogger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	requestLogger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		requestLogger.WithError(err).Error("server shutdown failed")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		requestLogger.WithError(err).Error("health server shutdown failed")
	}
	if err := pool.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
		requestLogger.WithError(err).Error("background pool shutdown failed")
	}
}
