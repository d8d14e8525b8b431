// devteam runs the multi-agent software generation service: an HTTP API
// over a team of LLM agents (PM, Architect, Developer, optional QA) that
// turn a product prompt into project files with human checkpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"devteam/pkg/agent"
	"devteam/pkg/config"
	"devteam/pkg/contextmgr"
	"devteam/pkg/driver"
	"devteam/pkg/logx"
	"devteam/pkg/metrics"
	"devteam/pkg/persistence"
	"devteam/pkg/session"
	"devteam/pkg/version"
	"devteam/pkg/webapi"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "devteam: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "devteam.yaml", "Path to config file")
	flag.Parse()

	logger := logx.NewLogger("main")
	logger.Info("devteam %s (%s, built %s)", version.Version, version.Commit, version.Date)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client, err := agent.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to build LLM client: %w", err)
	}

	counter, err := contextmgr.NewTokenCounter()
	if err != nil {
		// Token accounting degrades to estimates; not fatal.
		logger.Warn("tokenizer unavailable, context warnings disabled: %v", err)
		counter = nil
	}

	var events *persistence.EventLog
	if cfg.Persistence.Enabled {
		events, err = persistence.Open(cfg.Persistence.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open event log: %w", err)
		}
		defer func() {
			if err := events.Close(); err != nil {
				logger.Error("event log close: %v", err)
			}
		}()
	}

	store := session.NewMemoryStore()
	d := driver.New(cfg, store, client, counter, events)
	stopEviction := d.StartEviction(cfg.Session.TTL)
	defer stopEviction()

	api := webapi.NewServer(d)
	if cfg.Metrics.PrometheusURL != "" {
		usage, usageErr := metrics.NewQueryService(cfg.Metrics.PrometheusURL)
		if usageErr != nil {
			return fmt.Errorf("failed to build usage query service: %w", usageErr)
		}
		api.SetUsageService(usage)
	}

	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s (model %s)", srv.Addr, cfg.Agent.Model)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal %v, shutting down", sig)
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown: %v", err)
	}
	if err := d.Wait(shutdownCtx); err != nil {
		logger.Error("%v", err)
	}
	logger.Info("shutdown complete")
	return nil
}
