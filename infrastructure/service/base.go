package service

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/service_layer/infrastructure/logging"
)

const healthCheckTimeout = 5 * time.Second

// HealthChecker is satisfied by any dependency that can report its own
// reachability. Postgres pools, Redis clients and object store clients
// all implement it so BaseService can probe them uniformly.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BaseConfig contains shared configuration for a workflow/builder service.
type BaseConfig struct {
	ID      string
	Name    string
	Version string
	Deps    map[string]HealthChecker
	Logger  *logging.Logger
}

// BaseService provides the HTTP router, health tracking and background
// worker wiring shared by the workflow-service and builder-service
// binaries. It replaces per-service boilerplate with one composable type.
type BaseService struct {
	id      string
	name    string
	version string

	router *mux.Router
	logger *logging.Logger

	deps map[string]HealthChecker

	stopCh   chan struct{}
	stopOnce sync.Once

	workers []func(context.Context)

	statsFn func() map[string]any

	healthMu        sync.RWMutex
	depHealthy      map[string]bool
	lastHealthCheck time.Time
	startTime       time.Time

	draining atomic64
}

// atomic64 is a tiny bool-ish flag without importing sync/atomic's typed
// wrappers for a single field; kept as int64 so zero value means "not
// draining".
type atomic64 struct {
	v int64
}

// NewBase constructs a BaseService from shared config.
func NewBase(cfg *BaseConfig) *BaseService {
	cfgValue := BaseConfig{}
	if cfg != nil {
		cfgValue = *cfg
	}

	logger := cfgValue.Logger
	if logger == nil {
		name := cfgValue.ID
		if name == "" {
			name = "service"
		}
		logger = logging.NewFromEnv(name)
	}

	depHealthy := make(map[string]bool, len(cfgValue.Deps))
	for name := range cfgValue.Deps {
		depHealthy[name] = true
	}

	return &BaseService{
		id:         cfgValue.ID,
		name:       cfgValue.Name,
		version:    cfgValue.Version,
		router:     mux.NewRouter(),
		logger:     logger,
		deps:       cfgValue.Deps,
		depHealthy: depHealthy,
		stopCh:     make(chan struct{}),
		startTime:  time.Now(),
	}
}

// ID returns the service identifier.
func (b *BaseService) ID() string { return b.id }

// Name returns the service display name.
func (b *BaseService) Name() string { return b.name }

// Version returns the service version string.
func (b *BaseService) Version() string { return b.version }

// Router returns the mux.Router all handlers should be registered on.
func (b *BaseService) Router() *mux.Router { return b.router }

// Logger returns the service's structured logger.
func (b *BaseService) Logger() *logging.Logger {
	if b.logger != nil {
		return b.logger
	}
	return logging.NewFromEnv("service")
}

// WithStats sets a statistics provider function for the /info endpoint.
func (b *BaseService) WithStats(fn func() map[string]any) *BaseService {
	b.statsFn = fn
	return b
}

// AddWorker registers a background worker started by Start. Workers
// receive the context and should select on StopChan() for shutdown.
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

// WithTickerWorkerName sets a friendly name used in error logs.
func WithTickerWorkerName(name string) TickerWorkerOption {
	return func(cfg *tickerWorkerConfig) { cfg.name = name }
}

// WithTickerWorkerImmediate runs the worker once before the first tick.
func WithTickerWorkerImmediate() TickerWorkerOption {
	return func(cfg *tickerWorkerConfig) { cfg.runImmediately = true }
}

// AddTickerWorker registers a periodic background worker driven by a
// time.Ticker at the given interval, stopping when StopChan() closes.
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
			entry.Warn("worker tick failed")
		}

		if cfg.runImmediately {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			default:
				if err := fn(ctx); err != nil {
					logErr(err)
				}
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

// StopChan exposes the stop channel for worker goroutines.
func (b *BaseService) StopChan() <-chan struct{} { return b.stopCh }

// Start launches all registered background workers.
func (b *BaseService) Start(ctx context.Context) error {
	for _, w := range b.workers {
		worker := w
		go worker(ctx)
	}
	return nil
}

// Stop signals workers to exit. Idempotent.
func (b *BaseService) Stop() error {
	b.stopOnce.Do(func() { close(b.stopCh) })
	return nil
}

// WorkerCount returns the number of registered background workers.
func (b *BaseService) WorkerCount() int { return len(b.workers) }

// CheckHealth refreshes cached health state by probing every dependency.
func (b *BaseService) CheckHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	results := make(map[string]bool, len(b.deps))
	for name, dep := range b.deps {
		if dep == nil {
			results[name] = true
			continue
		}
		results[name] = dep.HealthCheck(ctx) == nil
	}

	b.healthMu.Lock()
	b.depHealthy = results
	b.lastHealthCheck = time.Now()
	b.healthMu.Unlock()
}

// HealthStatus returns "healthy" or "unhealthy" after refreshing state.
func (b *BaseService) HealthStatus() string {
	b.CheckHealth()
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	for _, ok := range b.depHealthy {
		if !ok {
			return "unhealthy"
		}
	}
	return "healthy"
}

// HealthDetails reports the most recent per-dependency health state.
func (b *BaseService) HealthDetails() map[string]any {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()

	deps := make(map[string]any, len(b.depHealthy))
	for name, ok := range b.depHealthy {
		deps[name] = ok
	}
	details := map[string]any{"dependencies": deps}
	if !b.lastHealthCheck.IsZero() {
		details["last_check"] = b.lastHealthCheck.Format(time.RFC3339)
	}
	details["uptime"] = time.Since(b.startTime).String()
	return details
}

// MarkDraining records that shutdown has begun; /ready starts failing so
// a load balancer stops routing new traffic while workers finish in-flight work.
func (b *BaseService) MarkDraining() {
	b.healthMu.Lock()
	defer b.healthMu.Unlock()
	b.draining.v = 1
}

// IsDraining reports whether MarkDraining has been called.
func (b *BaseService) IsDraining() bool {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	return b.draining.v == 1
}

var _ HealthChecker = (*noopHealthChecker)(nil)

type noopHealthChecker struct{}

func (noopHealthChecker) HealthCheck(context.Context) error { return nil }

// NamedDep is a convenience constructor for BaseConfig.Deps entries.
func NamedDep(name string, checker HealthChecker) (string, HealthChecker) {
	if checker == nil {
		return name, noopHealthChecker{}
	}
	return name, checker
}
