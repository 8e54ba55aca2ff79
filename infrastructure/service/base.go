// Package service provides common background-service infrastructure: ticker
// workers, stop-channel lifecycle, and aggregated health state. The runtime
// builds one BaseService to host its background janitor and stats hook.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stefanposs/webmacs/infrastructure/logging"
)

// HealthPinger is implemented by anything whose reachability should be
// folded into a BaseService's aggregated health status (the persistence
// gateway, the cache).
type HealthPinger interface {
	HealthCheck(ctx context.Context) error
}

const healthCheckTimeout = 5 * time.Second

// BaseConfig contains shared configuration for a long-running component.
type BaseConfig struct {
	Name    string
	Version string
	DB      HealthPinger
	Logger  *logging.Logger
}

// BaseService wraps a named component with ticker-worker scheduling,
// idempotent Stop handling, and aggregated health state. The runtime uses
// it for the database ping at start, the blacklist janitor, and the stats
// hook; the ingestion pipeline, webhook dispatcher and rule engine do not
// run on it.
type BaseService struct {
	name    string
	version string
	db      HealthPinger

	stopCh   chan struct{}
	stopOnce sync.Once

	hydrate func(context.Context) error
	statsFn func() map[string]any

	workers []func(context.Context)

	healthMu        sync.RWMutex
	dbHealthy       bool
	lastHealthCheck time.Time
	startTime       time.Time

	logger *logging.Logger
}

// NewBase constructs a BaseService from shared config.
func NewBase(cfg *BaseConfig) *BaseService {
	cfgValue := BaseConfig{}
	if cfg != nil {
		cfgValue = *cfg
	}

	logger := cfgValue.Logger
	if logger == nil {
		name := cfgValue.Name
		if name == "" {
			name = "service"
		}
		logger = logging.NewFromEnv(name)
	}

	return &BaseService{
		name:      cfgValue.Name,
		version:   cfgValue.Version,
		db:        cfgValue.DB,
		stopCh:    make(chan struct{}),
		dbHealthy: cfgValue.DB == nil,
		logger:    logger,
	}
}

// Name returns the component's name.
func (b *BaseService) Name() string { return b.name }

// Version returns the component's version string.
func (b *BaseService) Version() string { return b.version }

// Logger returns the service's structured logger.
func (b *BaseService) Logger() *logging.Logger {
	if b == nil {
		return logging.NewFromEnv("service")
	}
	if b.logger != nil {
		return b.logger
	}
	name := b.name
	if name == "" {
		name = "service"
	}
	b.logger = logging.NewFromEnv(name)
	return b.logger
}

// WithHydrate sets an optional hydrate hook executed during Start, before
// any background worker is launched. Use this to warm in-memory state
// (e.g. the rule engine's cooldown table) from the persistence gateway.
func (b *BaseService) WithHydrate(fn func(context.Context) error) *BaseService {
	b.hydrate = fn
	return b
}

// WithStats sets the statistics provider returned by Statistics, which the
// runtime serves at /api/v1/stats.
func (b *BaseService) WithStats(fn func() map[string]any) *BaseService {
	b.statsFn = fn
	return b
}

// Statistics returns the current statistics snapshot, or nil if none was
// registered via WithStats.
func (b *BaseService) Statistics() map[string]any {
	if b.statsFn == nil {
		return nil
	}
	return b.statsFn()
}

// AddWorker registers a background worker started after hydrate completes.
func (b *BaseService) AddWorker(fn func(context.Context)) *BaseService {
	b.workers = append(b.workers, fn)
	return b
}

type tickerWorkerConfig struct {
	name           string
	runImmediately bool
}

// TickerWorkerOption configures AddTickerWorker behavior.
type TickerWorkerOption func(*tickerWorkerConfig)

// WithTickerWorkerName sets a friendly name used in worker error logs.
func WithTickerWorkerName(name string) TickerWorkerOption {
	return func(cfg *tickerWorkerConfig) { cfg.name = name }
}

// WithTickerWorkerImmediate runs the worker once immediately on start,
// before waiting for the first tick.
func WithTickerWorkerImmediate() TickerWorkerOption {
	return func(cfg *tickerWorkerConfig) { cfg.runImmediately = true }
}

// AddTickerWorker registers a periodic background worker. The runtime's
// only ticker worker is the expired-blacklist-token sweep.
func (b *BaseService) AddTickerWorker(interval time.Duration, fn func(context.Context) error, opts ...TickerWorkerOption) *BaseService {
	cfg := tickerWorkerConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	worker := func(ctx context.Context) {
		logErr := func(err error) {
			if err == nil {
				return
			}
			entry := b.Logger().WithContext(ctx).WithError(err)
			if cfg.name != "" {
				entry = entry.WithField("worker", cfg.name)
			}
			entry.Warn("worker error")
		}

		if cfg.runImmediately {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			default:
			}
			if err := fn(ctx); err != nil {
				logErr(err)
			}
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					logErr(err)
				}
			}
		}
	}
	b.workers = append(b.workers, worker)
	return b
}

// StopChan exposes the stop channel for worker goroutines that need to
// select on it directly.
func (b *BaseService) StopChan() <-chan struct{} {
	return b.stopCh
}

// Start runs the hydrate hook (if any) and launches every registered
// worker in its own goroutine.
func (b *BaseService) Start(ctx context.Context) error {
	b.healthMu.Lock()
	if b.startTime.IsZero() {
		b.startTime = time.Now()
	}
	b.healthMu.Unlock()

	if b.hydrate != nil {
		if err := b.hydrate(ctx); err != nil {
			return fmt.Errorf("hydrate: %w", err)
		}
	}

	for _, w := range b.workers {
		worker := w
		go worker(ctx)
	}
	return nil
}

// Stop signals every worker via the stop channel. Idempotent.
func (b *BaseService) Stop() error {
	b.stopOnce.Do(func() { close(b.stopCh) })
	return nil
}

// WorkerCount returns the number of registered background workers.
func (b *BaseService) WorkerCount() int { return len(b.workers) }

// CheckHealth refreshes the cached health state by probing the database
// dependency, if one was configured.
func (b *BaseService) CheckHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	dbHealthy := true
	if b.db != nil {
		if err := b.db.HealthCheck(ctx); err != nil {
			dbHealthy = false
		}
	}

	b.healthMu.Lock()
	b.dbHealthy = dbHealthy
	b.lastHealthCheck = time.Now()
	b.healthMu.Unlock()
}

// HealthStatus returns the aggregated health status string: "healthy" or
// "unhealthy".
func (b *BaseService) HealthStatus() string {
	b.CheckHealth()
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	if b.db != nil && !b.dbHealthy {
		return "unhealthy"
	}
	return "healthy"
}

// HealthDetails returns a map describing the most recent health state:
// db_connected, last_check (once a check has run) and uptime.
func (b *BaseService) HealthDetails() map[string]any {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()

	details := map[string]any{
		"db_connected": b.dbHealthy,
	}
	if !b.lastHealthCheck.IsZero() {
		details["last_check"] = b.lastHealthCheck.Format(time.RFC3339)
	}

	uptime := time.Duration(0)
	if !b.startTime.IsZero() {
		uptime = time.Since(b.startTime)
	}
	details["uptime"] = uptime.String()
	return details
}
