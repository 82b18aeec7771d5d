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

	"github.com/rs/zerolog/log"

	"github.com/dedurus/openmct/internal/api"
	"github.com/dedurus/openmct/internal/config"
	"github.com/dedurus/openmct/internal/history"
	"github.com/dedurus/openmct/internal/logging"
	"github.com/dedurus/openmct/internal/sources"
	"github.com/dedurus/openmct/internal/websocket"
)

const shutdownTimeout = 30 * time.Second

func runServer(ctx context.Context) error {
	// Baseline logger for early startup messages
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "openmct",
	})
	defer logging.Shutdown()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var (
		store    *history.Store
		recorder history.Recorder
		querier  api.HistoryQuerier
	)
	if cfg.HistoryEnabled {
		store, err = history.Open(history.DefaultConfig(cfg.HistoryFile, cfg.HistoryRetention))
		if err != nil {
			log.Warn().Err(err).Str("file", cfg.HistoryFile).Msg("Failed to open history store, telemetry will not be recorded")
		} else {
			recorder, querier = store, store
			defer store.Close()
		}
	}

	reg, err := buildRegistry(cfg, recorder)
	if err != nil {
		return err
	}

	log.Info().Str("version", Version).Msg("Starting openmct telemetry service")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go sources.RefreshResolver(ctx, sources.SharedResolver(), cfg.DNSCacheTTL)

	if cfg.MetricsPort > 0 {
		startMetricsServer(ctx, fmt.Sprintf("%s:%d", cfg.BackendHost, cfg.MetricsPort))
	}

	hub := websocket.NewHub(websocket.Options{
		Objects:        reg,
		PollInterval:   cfg.PollInterval,
		BroadcastDelay: cfg.BroadcastDelay,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	go hub.Run()
	defer hub.Stop()

	router := api.NewRouter(api.Options{
		Registry:         reg,
		Hub:              hub,
		History:          querier,
		TelemetryTimeout: cfg.HTTPTimeout,
		Version:          Version,
	})

	// ReadTimeout would also apply to upgraded websocket connections, so only
	// the header read is bounded.
	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	configWatcher, err := config.NewConfigWatcher(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create config watcher, .env changes will require restart")
	} else {
		configWatcher.OnPollIntervalChange(hub.SetRefreshInterval)
		configWatcher.OnLogLevelChange(logging.SetGlobalLevel)
		if err := configWatcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start config watcher")
		}
		defer configWatcher.Stop()
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("host", cfg.BackendHost).
			Int("port", cfg.FrontendPort).
			Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	reloadChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	signal.Notify(reloadChan, syscall.SIGHUP)
	defer signal.Stop(sigChan)
	defer signal.Stop(reloadChan)

	var runErr error
loop:
	for {
		select {
		case <-reloadChan:
			log.Info().Msg("Received SIGHUP, reloading configuration")
			if configWatcher != nil {
				configWatcher.ReloadConfig()
			}
		case err := <-serveErr:
			runErr = fmt.Errorf("http server: %w", err)
			break loop
		case <-sigChan:
			log.Info().Msg("Shutting down server...")
			break loop
		case <-ctx.Done():
			break loop
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Server stopped")
	return runErr
}
