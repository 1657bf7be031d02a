// Package server runs the replica maintenance daemon: the scheduled trim
// pass and the HTTP endpoints used to monitor it.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"

	"github.com/iudanet/sessionstore/internal/config"
	"github.com/iudanet/sessionstore/internal/metrics"
	"github.com/iudanet/sessionstore/internal/repl"
	"github.com/iudanet/sessionstore/internal/server/handlers"
	"github.com/iudanet/sessionstore/internal/server/middleware"
	"github.com/iudanet/sessionstore/internal/storage"
	"github.com/iudanet/sessionstore/internal/sync"
)

const shutdownTimeout = 10 * time.Second

// Daemon periodically trims every value-set of the local replica.
type Daemon struct {
	store    storage.Store
	sync     sync.Service
	registry *prometheus.Registry
	logger   *slog.Logger
	now      func() time.Time
	lastTrim atomic.Int64 // unix nanos, 0 пока trim не выполнялся
	addr     string
	version  string
	every    time.Duration
	maxAge   time.Duration
}

// New creates a daemon over store. Metrics are registered in a private
// registry together with the Go runtime collector.
func New(cfg *config.Config, store storage.Store, logger *slog.Logger, version string) *Daemon {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	collector := metrics.NewCollector(reg)

	return &Daemon{
		store:    store,
		sync:     sync.NewService(store, collector, logger),
		registry: reg,
		logger:   logger,
		now:      time.Now,
		addr:     cfg.MetricsAddr,
		version:  version,
		every:    cfg.TrimEvery(),
		maxAge:   cfg.MaxAge(),
	}
}

// TrimOnce runs a single trim pass at the cutoff derived from the
// changelog window.
func (d *Daemon) TrimOnce(ctx context.Context) (*sync.Result, error) {
	now := d.now()
	result, err := d.sync.TrimAll(ctx, repl.TrimCutoff(now, d.maxAge))
	if err != nil {
		return result, fmt.Errorf("trim pass failed: %w", err)
	}
	d.lastTrim.Store(now.UnixNano())
	return result, nil
}

// LastTrim returns the start time of the last successful trim pass.
func (d *Daemon) LastTrim() time.Time {
	ns := d.lastTrim.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// Handler returns the monitoring endpoints: /metrics and /health.
func (d *Daemon) Handler() http.Handler {
	probe := func(ctx context.Context) error {
		_, err := d.store.GetLastChange(ctx)
		return err
	}
	health := handlers.NewHealthHandler(d.logger, d.version, probe, d.LastTrim)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler(d.registry))
	mux.HandleFunc("GET /health", health.Health)

	return middleware.Chain(mux,
		middleware.Recovery(d.logger),
		middleware.Logging(d.logger, "/metrics", "/health"),
	)
}

// Run trims once at startup, then on schedule, and serves the monitoring
// endpoints until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if _, err := d.TrimOnce(ctx); err != nil {
		d.logger.Error("Initial trim failed", "error", err)
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every "+d.every.String(), func() {
		if _, err := d.TrimOnce(ctx); err != nil {
			d.logger.Error("Scheduled trim failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule trim: %w", err)
	}
	scheduler.Start()
	defer func() {
		// дожидаемся завершения выполняющегося trim
		<-scheduler.Stop().Done()
	}()

	srv := &http.Server{
		Addr:              d.addr,
		Handler:           d.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		d.logger.Info("Monitoring server listening", "addr", d.addr, "trim_every", d.every.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("monitoring server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown monitoring server: %w", err)
	}
	d.logger.Info("Daemon stopped")
	return nil
}
