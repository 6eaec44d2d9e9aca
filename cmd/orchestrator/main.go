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

	"github.com/wealthops/wealthops-backend/internal/config"
	"github.com/wealthops/wealthops-backend/internal/observability"
	"github.com/wealthops/wealthops-backend/internal/orchestrator"
	"github.com/wealthops/wealthops-backend/internal/platform/envutil"
	"github.com/wealthops/wealthops-backend/internal/platform/logger"
)

func main() {
	// Logger
	log, err := logger.New(envutil.Str("LOG_MODE", "dev"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Config
	cfg, err := config.Load(envutil.Str("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal("Config load failed", "error", err)
	}

	// Tracing
	ctx := context.Background()
	shutdownOtel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "wealthops-orchestrator",
		Environment: cfg.Env,
		Enabled:     cfg.OtelEnabled,
	})

	// Audit store. The orchestrator answers queries even when the store
	// is down, so a failure here only loses the audit trail.
	var store *orchestrator.Store
	store, err = orchestrator.NewStore(orchestrator.StoreConfig{
		Driver: cfg.StoreDriver,
		DSN:    cfg.StoreDSN,
	}, log)
	if err != nil {
		log.Warn("Audit store init failed, continuing without it", "error", err)
		store = nil
	}

	// A2A broker: redis when configured, otherwise local log-only.
	var broker orchestrator.Broker
	if cfg.RedisAddr != "" {
		redisBroker, brokerErr := orchestrator.NewRedisBroker(orchestrator.RedisBrokerConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Channel:  cfg.A2AChannel,
		}, log)
		if brokerErr != nil {
			log.Warn("Redis broker init failed, falling back to local", "error", brokerErr)
		} else {
			broker = redisBroker
		}
	}

	// Pipeline
	agents := orchestrator.NewAgentClients(orchestrator.AgentClientsConfig{
		NL2SQLAgentURL: cfg.NL2SQLAgentURL,
		VectorAgentURL: cfg.VectorAgentURL,
		APIAgentURL:    cfg.APIAgentURL,
		Timeout:        cfg.AgentTimeout(),
	}, log)
	metrics := observability.NewMetrics()
	engine := orchestrator.NewEngine(log, agents, store, broker, metrics)
	handler := orchestrator.NewHandler(log, engine)

	router := orchestrator.NewRouter(orchestrator.RouterConfig{
		Handler:     handler,
		Metrics:     metrics,
		CORSOrigins: cfg.CORSOrigins,
		ServiceName: "wealthops-orchestrator",
		EnableOtel:  cfg.OtelEnabled,
		ReleaseMode: cfg.IsProd(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Orchestrator listening", "port", cfg.HTTPPort, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down orchestrator...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown error", "error", err)
	}
	if broker != nil {
		if err := broker.Close(); err != nil {
			log.Warn("Broker close error", "error", err)
		}
	}
	if shutdownOtel != nil {
		if err := shutdownOtel(shutdownCtx); err != nil {
			log.Warn("Otel shutdown error", "error", err)
		}
	}
}
