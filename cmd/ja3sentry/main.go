package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/skywalker-88/ja3sentry/internal/alert"
	"github.com/skywalker-88/ja3sentry/internal/blocklist"
	"github.com/skywalker-88/ja3sentry/internal/capture"
	"github.com/skywalker-88/ja3sentry/internal/config"
	"github.com/skywalker-88/ja3sentry/internal/monitor"
	"github.com/skywalker-88/ja3sentry/internal/observability"
	"github.com/skywalker-88/ja3sentry/internal/pipeline"
	"github.com/skywalker-88/ja3sentry/internal/whitelist"
	"github.com/skywalker-88/ja3sentry/pkg/metrics"
)

func main() {
	log := observability.NewLogger()

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("parse configuration")
	}

	log.Info().
		Str("interface", cfg.Interface).
		Str("file", cfg.File).
		Uint16("threshold", cfg.Threshold).
		Int("window_seconds", cfg.WindowSeconds).
		Str("alert_url", cfg.AlertURL).
		Bool("dry_run", cfg.DryRun).
		Bool("aggregate_by_ip", cfg.AggregateByIP).
		Str("metrics_addr", cfg.MetricsAddr).
		Msg("ja3sentry starting")

	wl, err := whitelist.New(cfg.WhitelistNetworks, cfg.WhitelistJA3s)
	if err != nil {
		log.Fatal().Err(err).Msg("build whitelist")
	}

	metrics.Register(prometheus.DefaultRegisterer)

	now := time.Now()
	mon := monitor.New(monitor.Config{
		Threshold:        cfg.Threshold,
		WindowSeconds:    cfg.WindowSeconds,
		LogCreateBuckets: cfg.LogCreateBuckets,
	}, wl, log, now)

	var client alert.BlocklistClient
	if cfg.DryRun {
		client = blocklist.NewDryRun(log)
	} else {
		client = blocklist.New(cfg.AlertURL, cfg.PostTimeout, log)
	}
	alerter := alert.New(alert.Config{
		WindowSeconds: cfg.WindowSeconds,
		BlockSeconds:  int(cfg.BlockSeconds),
	}, client, log, now)

	source, err := openSource(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open packet source")
	}
	defer source.Close()

	pl := pipeline.New(pipeline.Config{
		AggregateByIP:    cfg.AggregateByIP,
		MonitorQueueSize: cfg.MonitorQueueSize,
		AlertQueueSize:   cfg.AlertQueueSize,
	}, source, wl, mon, alerter, log)

	admin := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           observability.NewAdminMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("admin server listening")
		if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("admin server stopped unexpectedly")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- pl.Run(ctx) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutdown requested; draining")
		observability.SetDraining(true)
		cancel()
		runErr = <-runDone
	case runErr = <-runDone:
		// File-mode source exhausted on its own; no signal needed.
	}

	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	if err := admin.Shutdown(shCtx); err != nil {
		log.Warn().Err(err).Msg("admin server shutdown did not complete in time")
	}

	if runErr != nil {
		log.Error().Err(runErr).Msg("pipeline exited with error")
		os.Exit(1)
	}
	log.Info().Msg("ja3sentry exited")
}

// openSource builds the LiveSource or FileSource config.Parse has already
// validated as mutually exclusive.
func openSource(cfg *config.Config, log zerolog.Logger) (capture.PacketSource, error) {
	if cfg.Interface != "" {
		return capture.NewLiveSource(cfg.Interface, 1600, log)
	}
	return capture.NewFileSource(cfg.File, log)
}
