package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/triggerd/engine/config"
	"github.com/triggerd/engine/internal/catalog"
	"github.com/triggerd/engine/internal/engine"
	"github.com/triggerd/engine/internal/eventstore/postgres"
	"github.com/triggerd/engine/internal/generator"
	"github.com/triggerd/engine/internal/health"
	"github.com/triggerd/engine/internal/metrics"
	"github.com/triggerd/engine/internal/notify"
	"github.com/triggerd/engine/internal/obslog"
	"github.com/triggerd/engine/internal/oneoff"
	"github.com/triggerd/engine/internal/processor"
	"github.com/triggerd/engine/internal/registry"
	"github.com/triggerd/engine/internal/telemetry"
	httptransport "github.com/triggerd/engine/internal/transport/http"
	"github.com/triggerd/engine/internal/transport/http/handler"
	"github.com/triggerd/engine/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := obslog.New(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()
	logger.Info("db connected")

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			stop()
			log.Fatalf("redis url: %v", err)
		}
		rdb = redis.NewClient(opts)
		logger.Info("redis cache enabled")
	}

	metrics.Register()
	checker := health.NewChecker(pool, redisPinger(rdb), logger, prometheus.DefaultRegisterer)

	shutdownTelemetry := telemetry.Init(ctx, cfg.OTLPEndpoint, "triggerd", logger)

	gateway := postgres.NewGateway(pool)
	catalogStore := catalog.NewStore(pool, rdb, logger)
	if err := catalogStore.Refresh(ctx); err != nil {
		logger.Warn("initial catalog refresh failed", "error", err)
	}
	go catalogStore.RefreshLoop(ctx, 30*time.Second)

	reg := registry.New()
	webhookClient := webhook.NewClient(logger)
	sender := notify.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
	notifier := notify.New(sender, cfg.DeadEventNotify, cfg.DeadEventNotify != "", logger)

	gen := generator.New(gateway, catalogStore, logger,
		time.Duration(cfg.GeneratorIntervalSec)*time.Second, cfg.HydrationBuffer)

	proc := processor.New(gateway, catalogStore, reg, webhookClient, notifier, logger,
		time.Duration(cfg.ProcessorIntervalSec)*time.Second,
		cfg.LockBatchSize, cfg.ProcessorConcurrency,
		time.Duration(cfg.WebhookDefaultTimeoutSec)*time.Second)

	eng := engine.New(gateway, reg, gen, proc, logger)
	if err := eng.Start(ctx); err != nil {
		stop()
		log.Fatalf("engine start: %v", err)
	}

	oneoffStore := oneoff.NewStore(pool)
	triggerHandler := handler.NewTriggerHandler(catalogStore, oneoffStore, logger)
	eventHandler := handler.NewEventHandler(oneoffStore, logger)
	healthHandler := handler.NewHealthHandler(checker)

	router := httptransport.NewRouter(triggerHandler, eventHandler, healthHandler, []byte(cfg.AdminJWTSecret), logger)
	adminSrv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		logger.Info("admin server started", "port", cfg.Port)
		if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server", "error", err)
		}
	}()

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, nil)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := eng.Shutdown(shutdownCtx); err != nil {
		logger.Error("engine shutdown", "error", err)
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
	telemetry.Flush(shutdownTelemetry)

	logger.Info("triggerd shut down")
}

// redisPinger adapts a possibly-nil *redis.Client to the
// health.Pinger interface without leaking a typed-nil interface value.
func redisPinger(rdb *redis.Client) health.Pinger {
	if rdb == nil {
		return nil
	}
	return redisPingerImpl{rdb}
}

type redisPingerImpl struct{ c *redis.Client }

func (r redisPingerImpl) Ping(ctx context.Context) error {
	return r.c.Ping(ctx).Err()
}
