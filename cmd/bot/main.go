package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"property_agent/internal/app"
	"property_agent/internal/bot"
	"property_agent/internal/config"
	"property_agent/internal/metrics"
	"property_agent/internal/scheduler"
	"property_agent/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := app.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	b, err := bot.New(cfg.TelegramBotToken, store, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	orch, err := app.NewOrchestrator(cfg, store, b, collector, log)
	if err != nil {
		log.Error("create orchestrator", "error", err)
		os.Exit(1)
	}
	b.SetRunner(orch)

	sched, err := scheduler.New(orch, cfg.Schedule, cfg.Location(), log)
	if err != nil {
		log.Error("create scheduler", "error", err)
		os.Exit(1)
	}
	sched.SetRunOnStart(cfg.RunOnStart)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, metrics.Router(reg), log)
	}

	log.Info("starting bot",
		"source", cfg.Source.Kind,
		"schedule", cfg.Schedule,
		"timezone", cfg.Timezone,
	)

	go sched.Run(ctx)

	b.Run(ctx)

	log.Info("bot stopped")
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler, log *slog.Logger) {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown metrics server", "error", err)
		}
	}()

	log.Info("metrics server starting", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server", "error", err)
	}
}
