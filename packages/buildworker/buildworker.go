// Package buildworker drains the site build pipeline's BuildJob queue:
// default concurrency 2 per §5, each worker goroutine on its own poll
// ticker claiming the QUEUED BuildJob with the lowest id via ClaimNext (backed by
// Postgres's FOR UPDATE SKIP LOCKED, so concurrent claims never collide)
// and running it to completion.
//
// The tick-and-claim shape is grounded on the teacher's
// automation.Scheduler polling loop, adapted from an in-process single
// loop into N independent poller goroutines; unlike
// packages/stepworker's Redis-backed queue, build jobs have no blocking
// dequeue primitive to wait on, so each poller sleeps PollInterval between
// empty claims instead of blocking in Dequeue.
package buildworker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/service_layer/domain/builder"
	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
)

// DefaultConcurrency is the spec's default per-process build-worker
// concurrency.
const DefaultConcurrency = 2

// DefaultPollInterval is how long a poller sleeps after finding no queued
// BuildJob before claiming again.
const DefaultPollInterval = 2 * time.Second

// BuildExecutor is the slice of *buildengine.Engine the pool drives jobs
// through. Depending on this narrow interface, rather than the concrete
// Engine, keeps the poll/dispatch loop unit-testable without a database
// or object store.
type BuildExecutor interface {
	ClaimNext(ctx context.Context, workerID string) (*builder.BuildJob, error)
	ExecuteBuild(ctx context.Context, job builder.BuildJob) error
}

// Config configures a Pool. Zero values fall back to the spec's defaults.
type Config struct {
	Concurrency  int
	PollInterval time.Duration
}

// Pool claims and runs BuildJobs with bounded concurrency.
type Pool struct {
	engine       BuildExecutor
	logger       *logging.Logger
	concurrency  int
	pollInterval time.Duration
}

// New constructs a Pool.
func New(engine BuildExecutor, logger *logging.Logger, cfg Config) *Pool {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = logging.NewFromEnv("buildworker")
	}
	return &Pool{
		engine:       engine,
		logger:       logger,
		concurrency:  concurrency,
		pollInterval: pollInterval,
	}
}

// Run starts Concurrency poller goroutines and blocks until ctx is
// cancelled, matching infrastructure/service.BaseService.AddWorker's
// signature.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		workerID := "build-worker-" + uuid.NewString()
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			p.loop(ctx, workerID)
		}(workerID)
	}
	wg.Wait()
}

func (p *Pool) loop(ctx context.Context, workerID string) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		job, err := p.engine.ClaimNext(ctx, workerID)
		if err != nil && !svcerrors.Is(err, svcerrors.CodeNotFound) {
			p.logger.WithContext(ctx).WithError(err).Warn("buildworker: claim failed")
		}
		if job != nil {
			p.process(ctx, *job)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Pool) process(ctx context.Context, job builder.BuildJob) {
	logEntry := p.logger.WithContext(ctx).WithField("siteVersionId", job.SiteVersionID).WithField("buildJobId", job.ID)
	if err := p.engine.ExecuteBuild(ctx, job); err != nil {
		logEntry.WithError(err).Warn("buildworker: ExecuteBuild failed")
	}
}
