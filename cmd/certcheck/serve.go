package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/use-agent/certcheck/api"
	"github.com/use-agent/certcheck/cleaner"
	"github.com/use-agent/certcheck/config"
	"github.com/use-agent/certcheck/metrics"
	"github.com/use-agent/certcheck/portal"
	"github.com/use-agent/certcheck/session"
	"github.com/use-agent/certcheck/verify"
	"github.com/use-agent/certcheck/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the verification HTTP service",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log, os.Stdout)
	slog.Info("certcheck starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"portal", cfg.Portal.URL,
		"headless", cfg.Browser.Headless,
	)

	// ── 3. Launch browser ───────────────────────────────────────────
	browser, err := portal.Launch(cfg.Browser, cfg.Portal)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer browser.Close()

	// ── 4. Session store and verifier ───────────────────────────────
	store := session.NewStore(cfg.Verify.SessionTTL)
	defer store.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	opts := []verify.Option{
		verify.WithMetrics(m),
		verify.WithTranscriber(cleaner.New(cfg.Portal.ResultSelector)),
	}
	if cfg.Webhook.URL != "" {
		opts = append(opts, verify.WithNotifier(webhook.New(cfg.Webhook.URL, cfg.Webhook.Secret)))
		slog.Info("decision webhook enabled", "url", cfg.Webhook.URL)
	}
	verifier := verify.New(store, browser, portal.NewFiller(), verify.Config{
		ExpectedID:      cfg.Verify.ExpectedID,
		PortalURL:       cfg.Portal.URL,
		ReferenceLayout: cfg.Portal.ReferenceLayout,
		LayoutTolerance: cfg.Portal.LayoutTolerance,
	}, opts...)

	// ── 5. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(api.Deps{
		Verifier: verifier,
		Sessions: store,
		Prober:   portal.NewProber(cfg.Portal.URL, cfg.Browser.Proxy, 5*time.Second),
		Gatherer: prometheus.DefaultGatherer,
	}, cfg, startTime)

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-serveErr:
		return fmt.Errorf("HTTP server: %w", err)
	}

	// Give in-flight starts and polls time to finish their page work.
	ctx, cancel := context.WithTimeout(context.Background(), max(cfg.Verify.StartTimeout, cfg.Verify.PollTimeout))
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// store.Close and browser.Close run via defer: open pages first, then Chrome.
	slog.Info("certcheck stopped")
	return nil
}
