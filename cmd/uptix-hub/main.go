package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/uptix/hub/internal/alerting"
	"github.com/uptix/hub/internal/broadcast"
	"github.com/uptix/hub/internal/ingest"
	"github.com/uptix/hub/internal/reconcile"
	"github.com/uptix/hub/internal/registry"
	"github.com/uptix/hub/internal/retention"
	"github.com/uptix/hub/internal/server"
	"github.com/uptix/hub/internal/store"
	"github.com/uptix/hub/internal/version"
)

func main() {
	configPath := flag.String("config", server.DefaultServerConfigPath(), "path to config file")
	setup := flag.Bool("setup", false, "run initial setup")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.String())
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := server.LoadServerConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "err", err)
		os.Exit(1)
	}
	logger = newLogger(os.Stderr, cfg.Log)

	if *setup || cfg.AdminPasswordHash == "" {
		if err := runSetup(cfg, *configPath); err != nil {
			logger.Error("setup failed", "err", err)
			os.Exit(1)
		}
	}

	dbDir := filepath.Dir(cfg.DatabasePath)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		logger.Error("failed to create database directory", "path", dbDir, "err", err)
		os.Exit(1)
	}

	st, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DatabasePath, "err", err)
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("database ready", "path", cfg.DatabasePath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	memSuppressor := alerting.NewMemorySuppressor(cfg.Alerts.SuppressionWindow, cfg.Alerts.SuppressionCapacity)
	var suppressor alerting.Suppressor = memSuppressor
	if cfg.Redis.Addr != "" {
		rs, err := alerting.NewRedisSuppressor(ctx, cfg.Redis, cfg.Alerts.SuppressionWindow, memSuppressor, logger)
		if err != nil {
			logger.Warn("redis unavailable, using in-process suppression", "addr", cfg.Redis.Addr, "err", err)
		} else {
			defer rs.Close()
			suppressor = rs
			logger.Info("using redis for alert suppression", "addr", cfg.Redis.Addr)
		}
	}

	sender, err := alerting.NewSender(cfg.Alerts.Transport, cfg.Alerts.SMTP, cfg.Alerts.Webhook, logger)
	if err != nil {
		logger.Error("invalid alert transport", "err", err)
		os.Exit(1)
	}
	dispatcher := alerting.NewDispatcher(sender, cfg.Alerts.Dispatcher(), logger)
	hub := broadcast.NewHub(cfg.Broadcast.BufferSize, logger)

	coord := ingest.New(ingest.Deps{
		Store:         st,
		Registry:      registry.New(st, logger),
		Reconciler:    reconcile.New(st, logger),
		Engine:        alerting.NewEngine(cfg.Alerts.Thresholds(), suppressor, logger),
		Notifier:      dispatcher,
		Publisher:     hub,
		SubjectPrefix: cfg.Alerts.SubjectPrefix,
	}, logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		retention.New(st, cfg.Retention, logger).Run(ctx)
	}()

	srv := server.New(cfg, st, coord, hub, dispatcher, logger)

	logger.Info("Uptix Hub starting",
		"version", version.Version,
		"addr", cfg.ListenAddr,
		"tls", cfg.TLSMode,
		"alert_transport", sender.Name())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServeTLS()
	}()

	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down gracefully", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			exitCode = 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
	shutdownCancel()
	hub.Close()
	cancel()
	wg.Wait()
	logger.Info("server stopped")

	if exitCode != 0 {
		st.Close()
		os.Exit(exitCode)
	}
}

func newLogger(w io.Writer, cfg server.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
