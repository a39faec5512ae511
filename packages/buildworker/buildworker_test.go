package buildworker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/R3E-Network/service_layer/domain/builder"
	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
)

type fakeExecutor struct {
	mu         sync.Mutex
	queued     []builder.BuildJob
	claimed    []string
	executed   []string
	executeErr error
}

func (f *fakeExecutor) ClaimNext(ctx context.Context, workerID string) (*builder.BuildJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queued) == 0 {
		return nil, svcerrors.NotFound("build job", "")
	}
	job := f.queued[0]
	f.queued = f.queued[1:]
	f.claimed = append(f.claimed, job.ID)
	return &job, nil
}

func (f *fakeExecutor) ExecuteBuild(ctx context.Context, job builder.BuildJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, job.ID)
	return f.executeErr
}

func TestPool_ClaimsAndExecutesQueuedJob(t *testing.T) {
	exec := &fakeExecutor{queued: []builder.BuildJob{{ID: "job-1", SiteVersionID: "ver-1", TenantID: "tenant-1"}}}
	pool := New(exec, nil, Config{Concurrency: 1, PollInterval: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	pool.Run(ctx)

	exec.mu.Lock()
	defer exec.mu.Unlock()
	if len(exec.executed) != 1 || exec.executed[0] != "job-1" {
		t.Fatalf("executed = %v, want [job-1]", exec.executed)
	}
}

func TestPool_NoQueuedJobsNeverCallsExecuteBuild(t *testing.T) {
	exec := &fakeExecutor{}
	pool := New(exec, nil, Config{Concurrency: 1, PollInterval: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	pool.Run(ctx)

	exec.mu.Lock()
	defer exec.mu.Unlock()
	if len(exec.executed) != 0 {
		t.Fatalf("executed = %v, want none", exec.executed)
	}
}

func TestPool_ExecuteBuildErrorDoesNotPanicOrLoop(t *testing.T) {
	exec := &fakeExecutor{
		queued:     []builder.BuildJob{{ID: "job-2", SiteVersionID: "ver-2", TenantID: "tenant-1"}},
		executeErr: errBoom,
	}
	pool := New(exec, nil, Config{Concurrency: 1, PollInterval: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	pool.Run(ctx)

	exec.mu.Lock()
	defer exec.mu.Unlock()
	if len(exec.executed) != 1 {
		t.Fatalf("executed = %v, want exactly one attempt", exec.executed)
	}
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }
