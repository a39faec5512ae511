// Package stepworker drains the workflow engine's job queue: it enforces
// the idempotency gate of §4.2 before ever dispatching into the engine,
// bounds concurrency and throughput, and broadcasts the engine's
// already-persisted events on the push bus afterward.
package stepworker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	domainworkflow "github.com/R3E-Network/service_layer/domain/workflow"
	"github.com/R3E-Network/service_layer/infrastructure/jobstore"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
	"github.com/R3E-Network/service_layer/packages/workflow"
)

// DefaultConcurrency is the spec's default per-process step-worker
// concurrency.
const DefaultConcurrency = 10

// DefaultRatePerSecond is the spec's default token-bucket throughput
// smoothing burst load on downstream services.
const DefaultRatePerSecond = 50

// DefaultDequeueTimeout bounds how long one dequeuing goroutine blocks
// waiting for a job before checking ctx again.
const DefaultDequeueTimeout = 5 * time.Second

// Broadcaster publishes an already-persisted Event to the Push Bus (§4.3),
// scoped to the owning tenant. Pool depends only on this narrow interface
// so it never imports the push bus package directly.
type Broadcaster interface {
	Broadcast(ctx context.Context, tenantID string, event domainworkflow.Event) error
}

// StepExecutor is the slice of *workflow.Engine the pool drives jobs
// through. Depending on this narrow interface, rather than the concrete
// Engine, keeps the dequeue/gate/dispatch loop unit-testable without a
// database.
type StepExecutor interface {
	ShouldSkip(ctx context.Context, runID, stepKey string) (bool, error)
	ExecuteStep(ctx context.Context, runID, stepKey string) (tenantID string, events []domainworkflow.Event, err error)
}

// Config configures a Pool. Zero values fall back to the spec's defaults.
type Config struct {
	Concurrency    int
	RatePerSecond  float64
	DequeueTimeout time.Duration
}

// Pool drains workflow.Queue with bounded concurrency, gating each job on
// the engine's idempotency check and smoothing throughput with a shared
// token-bucket limiter.
type Pool struct {
	jobs           *jobstore.Store
	engine         StepExecutor
	broadcaster    Broadcaster
	logger         *logging.Logger
	concurrency    int
	limiter        *rate.Limiter
	dequeueTimeout time.Duration
}

// New constructs a Pool.
func New(jobs *jobstore.Store, engine StepExecutor, broadcaster Broadcaster, logger *logging.Logger, cfg Config) *Pool {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	ratePerSecond := cfg.RatePerSecond
	if ratePerSecond <= 0 {
		ratePerSecond = DefaultRatePerSecond
	}
	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = DefaultDequeueTimeout
	}
	if logger == nil {
		logger = logging.NewFromEnv("stepworker")
	}

	return &Pool{
		jobs:           jobs,
		engine:         engine,
		broadcaster:    broadcaster,
		logger:         logger,
		concurrency:    concurrency,
		limiter:        rate.NewLimiter(rate.Limit(ratePerSecond), int(ratePerSecond)),
		dequeueTimeout: dequeueTimeout,
	}
}

// Run starts Concurrency dequeue loops and blocks until ctx is cancelled,
// matching infrastructure/service.BaseService.AddWorker's signature.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.loop(ctx)
		}()
	}
	wg.Wait()
}

// Sweep moves due delayed jobs (retry backoff, DELAY nodes) onto the ready
// list. Intended to be driven periodically via
// infrastructure/service.BaseService.AddTickerWorker.
func (p *Pool) Sweep(ctx context.Context) error {
	_, err := p.jobs.Sweep(ctx, workflow.Queue)
	return err
}

func (p *Pool) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return
		}

		job, err := p.jobs.Dequeue(ctx, workflow.Queue, p.dequeueTimeout)
		if errors.Is(err, jobstore.ErrEmpty) {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		if err != nil {
			p.logger.WithContext(ctx).WithError(err).Warn("stepworker: dequeue failed")
			continue
		}

		p.process(ctx, *job)
	}
}

func (p *Pool) process(ctx context.Context, job jobstore.Job) {
	var payload workflow.StepJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("stepworker: undecodable job payload, dropping")
		_ = p.jobs.Ack(ctx, workflow.Queue, job)
		return
	}

	logEntry := p.logger.WithContext(ctx).WithField("runId", payload.RunID).WithField("stepKey", payload.StepKey)

	skip, err := p.engine.ShouldSkip(ctx, payload.RunID, payload.StepKey)
	if err != nil {
		logEntry.WithError(err).Warn("stepworker: idempotency gate check failed, requeueing")
		if rqErr := p.jobs.Requeue(ctx, workflow.Queue, job); rqErr != nil {
			logEntry.WithError(rqErr).Error("stepworker: requeue failed")
		}
		return
	}
	if skip {
		_ = p.jobs.Ack(ctx, workflow.Queue, job)
		return
	}

	// Bound the executor's work at DefaultStepTimeout: a node that hangs
	// (a stalled HTTP_REQUEST or AI_COMPLETION call) must still fail into
	// the retry policy rather than occupying this worker slot forever.
	stepCtx, cancel := context.WithTimeout(ctx, domainworkflow.DefaultStepTimeout)
	tenantID, events, err := p.engine.ExecuteStep(stepCtx, payload.RunID, payload.StepKey)
	cancel()
	if err != nil {
		logEntry.WithError(err).Warn("stepworker: ExecuteStep failed, requeueing")
		if rqErr := p.jobs.Requeue(ctx, workflow.Queue, job); rqErr != nil {
			logEntry.WithError(rqErr).Error("stepworker: requeue failed")
		}
		return
	}

	if err := p.jobs.Ack(ctx, workflow.Queue, job); err != nil {
		logEntry.WithError(err).Warn("stepworker: ack failed")
	}

	if p.broadcaster == nil {
		return
	}
	for _, event := range events {
		if err := p.broadcaster.Broadcast(ctx, tenantID, event); err != nil {
			logEntry.WithError(err).Warn("stepworker: broadcast failed")
		}
	}
}
