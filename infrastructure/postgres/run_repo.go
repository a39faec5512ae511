package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/domain/workflow"
)

// RunRepo persists Run rows. Every method is tenant-scoped except GetByID
// and FailWithSteps, which the step-worker path calls with a runID alone.
type RunRepo struct {
	db *DB
}

// NewRunRepo constructs a RunRepo.
func NewRunRepo(db *DB) *RunRepo { return &RunRepo{db: db} }

// Create inserts a new Run with the status the caller set on it.
func (r *RunRepo) Create(ctx context.Context, run workflow.Run) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, tenant_id, workflow_id, status, input, started_at)
		 VALUES ($1, $2, $3, $4, $5, now())`,
		run.ID, run.TenantID, run.WorkflowID, run.Status, run.Input)
	if err != nil {
		return svcerrors.DatabaseError("run.create", err)
	}
	return nil
}

// Get fetches a Run scoped to tenantID.
func (r *RunRepo) Get(ctx context.Context, tenantID, id string) (*workflow.Run, error) {
	var run workflow.Run
	err := r.db.GetContext(ctx, &run,
		`SELECT id, tenant_id, workflow_id, status, input, output, error,
		        current_step_key, started_at, completed_at
		 FROM runs WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NotFound("run", id)
	}
	if err != nil {
		return nil, svcerrors.DatabaseError("run.get", err)
	}
	return &run, nil
}

// GetByID fetches a Run by id without a tenant predicate, for the
// step-worker pool's internal dispatch path, which knows only the runID a
// job payload carries and recovers the tenant from the loaded Run itself.
func (r *RunRepo) GetByID(ctx context.Context, id string) (*workflow.Run, error) {
	var run workflow.Run
	err := r.db.GetContext(ctx, &run,
		`SELECT id, tenant_id, workflow_id, status, input, output, error,
		        current_step_key, started_at, completed_at
		 FROM runs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NotFound("run", id)
	}
	if err != nil {
		return nil, svcerrors.DatabaseError("run.getByID", err)
	}
	return &run, nil
}

// ListByWorkflow returns a paginated run history for one workflow.
func (r *RunRepo) ListByWorkflow(ctx context.Context, tenantID, workflowID string, limit, offset int) ([]workflow.Run, int, error) {
	var runs []workflow.Run
	err := r.db.SelectContext(ctx, &runs,
		`SELECT id, tenant_id, workflow_id, status, input, output, error,
		        current_step_key, started_at, completed_at
		 FROM runs WHERE tenant_id = $1 AND workflow_id = $2
		 ORDER BY started_at DESC LIMIT $3 OFFSET $4`,
		tenantID, workflowID, limit, offset)
	if err != nil {
		return nil, 0, svcerrors.DatabaseError("run.listByWorkflow", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT count(*) FROM runs WHERE tenant_id = $1 AND workflow_id = $2`, tenantID, workflowID); err != nil {
		return nil, 0, svcerrors.DatabaseError("run.count", err)
	}
	return runs, total, nil
}

// UpdateStatus transitions a Run's status and current step, setting
// completedAt when the new status is terminal.
func (r *RunRepo) UpdateStatus(ctx context.Context, run workflow.Run) error {
	var completedAt *time.Time
	if run.Terminal() {
		now := time.Now().UTC()
		completedAt = &now
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = $3, current_step_key = $4, output = $5, error = $6, completed_at = $7
		 WHERE id = $1 AND tenant_id = $2`,
		run.ID, run.TenantID, run.Status, run.CurrentStepKey, run.Output, run.Error, completedAt)
	if err != nil {
		return svcerrors.DatabaseError("run.updateStatus", err)
	}
	return nil
}

// CancelWithSteps transitions a Run to CANCELLED and every one of its
// PENDING/RUNNING steps to SKIPPED in a single transaction, per the
// engine's CancelRun contract.
func (r *RunRepo) CancelWithSteps(ctx context.Context, tenantID, runID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return svcerrors.DatabaseError("run.cancel.begin", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = 'CANCELLED', completed_at = now()
		 WHERE id = $1 AND tenant_id = $2 AND status IN ('PENDING', 'RUNNING')`,
		runID, tenantID)
	if err != nil {
		return svcerrors.DatabaseError("run.cancel.update", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return svcerrors.Conflict("run is not cancellable")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE steps SET status = 'SKIPPED' WHERE run_id = $1 AND status IN ('PENDING', 'RUNNING')`,
		runID); err != nil {
		return svcerrors.DatabaseError("run.cancel.skipSteps", err)
	}

	if err := tx.Commit(); err != nil {
		return svcerrors.DatabaseError("run.cancel.commit", err)
	}
	return nil
}

// FailWithSteps transitions a Run to FAILED and every one of its
// PENDING/RUNNING steps to SKIPPED in a single transaction, mirroring
// CancelWithSteps for the engine's retry-exhaustion path. errMsg is the
// failing step's error, recorded on the Run for quick diagnosis without a
// join against its steps.
func (r *RunRepo) FailWithSteps(ctx context.Context, runID, errMsg string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return svcerrors.DatabaseError("run.fail.begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = 'FAILED', error = $2, completed_at = now()
		 WHERE id = $1 AND status IN ('PENDING', 'RUNNING')`,
		runID, errMsg); err != nil {
		return svcerrors.DatabaseError("run.fail.update", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE steps SET status = 'SKIPPED' WHERE run_id = $1 AND status IN ('PENDING', 'RUNNING')`,
		runID); err != nil {
		return svcerrors.DatabaseError("run.fail.skipSteps", err)
	}

	if err := tx.Commit(); err != nil {
		return svcerrors.DatabaseError("run.fail.commit", err)
	}
	return nil
}

// StepRepo persists Step rows belonging to a Run.
type StepRepo struct {
	db *DB
}

// NewStepRepo constructs a StepRepo.
func NewStepRepo(db *DB) *StepRepo { return &StepRepo{db: db} }

// CreateBatch inserts one or more new Step rows, each PENDING with a zero
// retry counter. The engine calls it once per Run, at StartRun, with a Step
// for every node in the Definition — including nodes an unselected CONDITION
// branch will later skip — so checkRunCompletion always has a full set of
// rows to reconcile against.
func (r *StepRepo) CreateBatch(ctx context.Context, steps []workflow.Step) error {
	if len(steps) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return svcerrors.DatabaseError("step.createBatch.begin", err)
	}
	defer tx.Rollback()

	for _, step := range steps {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO steps (id, run_id, step_key, type, status, input, idempotency_key, retry_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			step.ID, step.RunID, step.StepKey, step.Type, step.Status, step.Input, step.IdempotencyKey, step.RetryCount); err != nil {
			return svcerrors.DatabaseError("step.createBatch.insert", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return svcerrors.DatabaseError("step.createBatch.commit", err)
	}
	return nil
}

// Get fetches a Step by (runID, stepKey) — the engine's idempotency-gate
// lookup key.
func (r *StepRepo) Get(ctx context.Context, runID, stepKey string) (*workflow.Step, error) {
	var step workflow.Step
	err := r.db.GetContext(ctx, &step,
		`SELECT id, run_id, step_key, type, status, input, output, error,
		        retry_count, idempotency_key, started_at, completed_at
		 FROM steps WHERE run_id = $1 AND step_key = $2`, runID, stepKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NotFound("step", stepKey)
	}
	if err != nil {
		return nil, svcerrors.DatabaseError("step.get", err)
	}
	return &step, nil
}

// ListByRun returns every Step of a Run, ordered by started_at (steps not
// yet started first), then by id.
func (r *StepRepo) ListByRun(ctx context.Context, runID string) ([]workflow.Step, error) {
	var steps []workflow.Step
	err := r.db.SelectContext(ctx, &steps,
		`SELECT id, run_id, step_key, type, status, input, output, error,
		        retry_count, idempotency_key, started_at, completed_at
		 FROM steps WHERE run_id = $1 ORDER BY started_at NULLS FIRST, id`, runID)
	if err != nil {
		return nil, svcerrors.DatabaseError("step.listByRun", err)
	}
	return steps, nil
}

// Transition updates a Step's status, output/error and retry counter.
func (r *StepRepo) Transition(ctx context.Context, step workflow.Step) error {
	var completedAt *time.Time
	if step.Terminal() {
		now := time.Now().UTC()
		completedAt = &now
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE steps SET status = $2, output = $3, error = $4, retry_count = $5,
		        idempotency_key = $6, started_at = coalesce(started_at, now()), completed_at = $7
		 WHERE id = $1`,
		step.ID, step.Status, step.Output, step.Error, step.RetryCount, step.IdempotencyKey, completedAt)
	if err != nil {
		return svcerrors.DatabaseError("step.transition", err)
	}
	return nil
}

// EventRepo persists the append-only Event log.
type EventRepo struct {
	db *DB
}

// NewEventRepo constructs an EventRepo.
func NewEventRepo(db *DB) *EventRepo { return &EventRepo{db: db} }

// Append writes one Event. Events are never updated or deleted.
func (r *EventRepo) Append(ctx context.Context, event workflow.Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (id, run_id, step_id, type, payload, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.RunID, event.StepID, event.Type, event.Payload, event.Timestamp)
	if err != nil {
		return svcerrors.DatabaseError("event.append", err)
	}
	return nil
}

// ListSince returns a Run's events with timestamp > since, paginated.
func (r *EventRepo) ListSince(ctx context.Context, runID string, since time.Time, limit, offset int) ([]workflow.Event, error) {
	var events []workflow.Event
	err := r.db.SelectContext(ctx, &events,
		`SELECT id, run_id, step_id, type, payload, timestamp
		 FROM events WHERE run_id = $1 AND timestamp > $2
		 ORDER BY timestamp ASC LIMIT $3 OFFSET $4`,
		runID, since, limit, offset)
	if err != nil {
		return nil, svcerrors.DatabaseError("event.listSince", err)
	}
	return events, nil
}
