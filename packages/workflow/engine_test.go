package workflow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	domainworkflow "github.com/R3E-Network/service_layer/domain/workflow"
	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/jobstore"
)

// The fakes below back every repo interface the engine depends on
// (workflowRepo, runRepo, stepRepo, eventRepo, jobQueue) with plain maps, so
// these tests drive StartRun/ExecuteStep/CancelRun/ObserveRun directly
// against in-memory state instead of a live Postgres/Redis connection.

type fakeWorkflows struct {
	byID map[string]domainworkflow.Workflow
}

func (f *fakeWorkflows) Get(ctx context.Context, tenantID, id string) (*domainworkflow.Workflow, error) {
	wf, ok := f.byID[id]
	if !ok || wf.TenantID != tenantID {
		return nil, svcerrors.NotFound("workflow", id)
	}
	return &wf, nil
}

type fakeSteps struct {
	byKey map[string]domainworkflow.Step
}

func newFakeSteps() *fakeSteps { return &fakeSteps{byKey: map[string]domainworkflow.Step{}} }

func stepKey(runID, key string) string { return runID + "/" + key }

func (f *fakeSteps) CreateBatch(ctx context.Context, steps []domainworkflow.Step) error {
	for _, s := range steps {
		f.byKey[stepKey(s.RunID, s.StepKey)] = s
	}
	return nil
}

func (f *fakeSteps) Get(ctx context.Context, runID, key string) (*domainworkflow.Step, error) {
	s, ok := f.byKey[stepKey(runID, key)]
	if !ok {
		return nil, svcerrors.NotFound("step", key)
	}
	return &s, nil
}

func (f *fakeSteps) ListByRun(ctx context.Context, runID string) ([]domainworkflow.Step, error) {
	var out []domainworkflow.Step
	for _, s := range f.byKey {
		if s.RunID == runID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSteps) Transition(ctx context.Context, step domainworkflow.Step) error {
	if _, ok := f.byKey[stepKey(step.RunID, step.StepKey)]; !ok {
		return svcerrors.NotFound("step", step.StepKey)
	}
	f.byKey[stepKey(step.RunID, step.StepKey)] = step
	return nil
}

// skipPendingRunning mimics CancelWithSteps/FailWithSteps' companion
// "UPDATE steps SET status = 'SKIPPED' WHERE run_id = $1 AND status IN
// ('PENDING', 'RUNNING')" clause against the in-memory map.
func (f *fakeSteps) skipPendingRunning(runID string) {
	for k, s := range f.byKey {
		if s.RunID != runID {
			continue
		}
		if s.Status == domainworkflow.StepPending || s.Status == domainworkflow.StepRunning {
			s.Status = domainworkflow.StepSkipped
			f.byKey[k] = s
		}
	}
}

type fakeRuns struct {
	byID  map[string]domainworkflow.Run
	steps *fakeSteps
}

func newFakeRuns(steps *fakeSteps) *fakeRuns {
	return &fakeRuns{byID: map[string]domainworkflow.Run{}, steps: steps}
}

func (f *fakeRuns) Create(ctx context.Context, run domainworkflow.Run) error {
	f.byID[run.ID] = run
	return nil
}

func (f *fakeRuns) Get(ctx context.Context, tenantID, id string) (*domainworkflow.Run, error) {
	r, ok := f.byID[id]
	if !ok || r.TenantID != tenantID {
		return nil, svcerrors.NotFound("run", id)
	}
	return &r, nil
}

func (f *fakeRuns) GetByID(ctx context.Context, id string) (*domainworkflow.Run, error) {
	r, ok := f.byID[id]
	if !ok {
		return nil, svcerrors.NotFound("run", id)
	}
	return &r, nil
}

func (f *fakeRuns) UpdateStatus(ctx context.Context, run domainworkflow.Run) error {
	if _, ok := f.byID[run.ID]; !ok {
		return svcerrors.NotFound("run", run.ID)
	}
	f.byID[run.ID] = run
	return nil
}

func (f *fakeRuns) CancelWithSteps(ctx context.Context, tenantID, runID string) error {
	r, ok := f.byID[runID]
	if !ok || r.TenantID != tenantID {
		return svcerrors.NotFound("run", runID)
	}
	if r.Status != domainworkflow.RunPending && r.Status != domainworkflow.RunRunning {
		return svcerrors.Conflict("run is not cancellable")
	}
	r.Status = domainworkflow.RunCancelled
	f.byID[runID] = r
	f.steps.skipPendingRunning(runID)
	return nil
}

func (f *fakeRuns) FailWithSteps(ctx context.Context, runID, errMsg string) error {
	r, ok := f.byID[runID]
	if !ok {
		return svcerrors.NotFound("run", runID)
	}
	r.Status = domainworkflow.RunFailed
	r.Error = errMsg
	f.byID[runID] = r
	f.steps.skipPendingRunning(runID)
	return nil
}

type fakeEvents struct {
	items []domainworkflow.Event
}

func (f *fakeEvents) Append(ctx context.Context, event domainworkflow.Event) error {
	f.items = append(f.items, event)
	return nil
}

type fakeJobs struct {
	items []jobstore.Job
}

func (f *fakeJobs) Enqueue(ctx context.Context, queue string, job jobstore.Job) error {
	f.items = append(f.items, job)
	return nil
}

// pop removes and returns the job at index i, preserving the rest.
func (f *fakeJobs) pop(i int) jobstore.Job {
	job := f.items[i]
	f.items = append(f.items[:i], f.items[i+1:]...)
	return job
}

// testHarness wires a fresh Engine plus its fakes together and drives jobs
// off the fake queue the way packages/stepworker would, except
// synchronously and without honoring AvailableAt delays unless a test
// chooses to check them itself.
type testHarness struct {
	t         *testing.T
	engine    *Engine
	workflows *fakeWorkflows
	runs      *fakeRuns
	steps     *fakeSteps
	events    *fakeEvents
	jobs      *fakeJobs
}

func newHarness(t *testing.T, retry domainworkflow.RetryPolicy) *testHarness {
	t.Helper()
	steps := newFakeSteps()
	runs := newFakeRuns(steps)
	h := &testHarness{
		t:         t,
		workflows: &fakeWorkflows{byID: map[string]domainworkflow.Workflow{}},
		runs:      runs,
		steps:     steps,
		events:    &fakeEvents{},
		jobs:      &fakeJobs{},
	}
	if retry.MaxRetries == 0 && retry.BaseDelay == 0 {
		retry = domainworkflow.DefaultRetryPolicy()
	}
	h.engine = &Engine{
		workflows: h.workflows,
		runs:      h.runs,
		steps:     h.steps,
		events:    h.events,
		jobs:      h.jobs,
		retry:     retry,
	}
	return h
}

// runReady drains the fake queue, executing every job whose AvailableAt is
// not after now, until none remain ready. It returns the accumulated events
// in enqueue order. A DAG with unresolved future (delayed) jobs stops here
// rather than looping forever.
func (h *testHarness) runReady(ctx context.Context, now time.Time) []domainworkflow.Event {
	var all []domainworkflow.Event
	for {
		progressed := false
		for i := 0; i < len(h.jobs.items); i++ {
			job := h.jobs.items[i]
			if job.AvailableAt.After(now) {
				continue
			}
			h.jobs.pop(i)
			var payload StepJob
			if err := json.Unmarshal(job.Payload, &payload); err != nil {
				h.t.Fatalf("decode job payload: %v", err)
			}
			_, events, err := h.engine.ExecuteStep(ctx, payload.RunID, payload.StepKey)
			if err != nil {
				h.t.Fatalf("ExecuteStep(%s): %v", payload.StepKey, err)
			}
			all = append(all, events...)
			progressed = true
			break
		}
		if !progressed {
			return all
		}
	}
}

func transformNode(id string, next ...string) domainworkflow.Node {
	return domainworkflow.Node{
		ID:     id,
		Type:   domainworkflow.NodeTransform,
		Config: json.RawMessage(`{"template":{"step":"` + id + `"}}`),
		Next:   next,
	}
}

func delayNode(id string, delayMs int, next ...string) domainworkflow.Node {
	cfg, _ := json.Marshal(map[string]int{"delayMs": delayMs})
	return domainworkflow.Node{
		ID:     id,
		Type:   domainworkflow.NodeDelay,
		Config: cfg,
		Next:   next,
	}
}

func conditionNode(id, expr, trueBranch, falseBranch string) domainworkflow.Node {
	cfg, _ := json.Marshal(map[string]string{
		"expression":  expr,
		"trueBranch":  trueBranch,
		"falseBranch": falseBranch,
	})
	return domainworkflow.Node{
		ID:     id,
		Type:   domainworkflow.NodeCondition,
		Config: cfg,
		Next:   []string{trueBranch, falseBranch},
	}
}

func (h *testHarness) seedWorkflow(id string, def domainworkflow.Definition) {
	h.workflows.byID[id] = domainworkflow.Workflow{
		ID:         id,
		TenantID:   "tenant-1",
		Name:       "wf-" + id,
		Version:    1,
		Definition: def,
		IsActive:   true,
	}
}

// S1: a linear three-node workflow runs start to finish, every Step lands
// COMPLETED, and the Run itself completes.
func TestEngine_LinearWorkflowCompletes(t *testing.T) {
	h := newHarness(t, domainworkflow.RetryPolicy{})
	def := domainworkflow.Definition{
		Nodes: map[string]domainworkflow.Node{
			"a": transformNode("a", "b"),
			"b": transformNode("b", "c"),
			"c": transformNode("c"),
		},
		Entrypoint: "a",
	}
	h.seedWorkflow("wf-1", def)

	ctx := context.Background()
	run, err := h.engine.StartRun(ctx, "tenant-1", "wf-1", json.RawMessage(`{"x":1}`))
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	steps, err := h.steps.ListByRun(ctx, run.ID)
	if err != nil || len(steps) != 3 {
		t.Fatalf("expected 3 pre-created steps, got %d (err %v)", len(steps), err)
	}

	h.runReady(ctx, time.Now().UTC().Add(time.Hour))

	final, err := h.runs.Get(ctx, "tenant-1", run.ID)
	if err != nil {
		t.Fatalf("Get run: %v", err)
	}
	if final.Status != domainworkflow.RunCompleted {
		t.Fatalf("expected run COMPLETED, got %s", final.Status)
	}
	for _, key := range []string{"a", "b", "c"} {
		s, err := h.steps.Get(ctx, run.ID, key)
		if err != nil {
			t.Fatalf("Get step %s: %v", key, err)
		}
		if s.Status != domainworkflow.StepCompleted {
			t.Fatalf("step %s: expected COMPLETED, got %s", key, s.Status)
		}
	}
}

// S2: a CONDITION node selects one branch; the unselected branch's
// pre-created Step ends SKIPPED rather than staying PENDING forever.
func TestEngine_ConditionSkipsUnselectedBranch(t *testing.T) {
	h := newHarness(t, domainworkflow.RetryPolicy{})
	def := domainworkflow.Definition{
		Nodes: map[string]domainworkflow.Node{
			"start": conditionNode("start", "true", "onTrue", "onFalse"),
			"onTrue":  transformNode("onTrue"),
			"onFalse": transformNode("onFalse"),
		},
		Entrypoint: "start",
	}
	h.seedWorkflow("wf-2", def)

	ctx := context.Background()
	run, err := h.engine.StartRun(ctx, "tenant-1", "wf-2", nil)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	h.runReady(ctx, time.Now().UTC().Add(time.Hour))

	trueStep, err := h.steps.Get(ctx, run.ID, "onTrue")
	if err != nil {
		t.Fatalf("Get onTrue: %v", err)
	}
	if trueStep.Status != domainworkflow.StepCompleted {
		t.Fatalf("onTrue: expected COMPLETED, got %s", trueStep.Status)
	}

	falseStep, err := h.steps.Get(ctx, run.ID, "onFalse")
	if err != nil {
		t.Fatalf("Get onFalse: %v", err)
	}
	if falseStep.Status != domainworkflow.StepSkipped {
		t.Fatalf("onFalse: expected SKIPPED, got %s", falseStep.Status)
	}

	final, err := h.runs.Get(ctx, "tenant-1", run.ID)
	if err != nil {
		t.Fatalf("Get run: %v", err)
	}
	if final.Status != domainworkflow.RunCompleted {
		t.Fatalf("expected run COMPLETED, got %s", final.Status)
	}
}

// S3: a step that always errors exhausts DefaultRetryPolicy's 3 retries on
// the 1s/2s/4s backoff schedule, then the Step and Run both end FAILED.
func TestEngine_RetryThenFailFollowsBackoffSchedule(t *testing.T) {
	h := newHarness(t, domainworkflow.RetryPolicy{})
	def := domainworkflow.Definition{
		Nodes: map[string]domainworkflow.Node{
			// AI_COMPLETION with no userPromptTemplate always fails decode,
			// giving a deterministic executor error without a completion client.
			"bad": {ID: "bad", Type: domainworkflow.NodeAICompletion, Config: json.RawMessage(`{}`)},
		},
		Entrypoint: "bad",
	}
	h.seedWorkflow("wf-3", def)

	ctx := context.Background()
	run, err := h.engine.StartRun(ctx, "tenant-1", "wf-3", nil)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	wantDelays := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for attempt := 0; attempt < len(wantDelays); attempt++ {
		if len(h.jobs.items) != 1 {
			t.Fatalf("attempt %d: expected exactly 1 queued job, got %d", attempt, len(h.jobs.items))
		}
		job := h.jobs.items[0]

		var payload StepJob
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		before := time.Now().UTC()
		h.jobs.pop(0)
		if _, _, err := h.engine.ExecuteStep(ctx, payload.RunID, payload.StepKey); err != nil {
			t.Fatalf("ExecuteStep attempt %d: %v", attempt, err)
		}

		if len(h.jobs.items) != 1 {
			t.Fatalf("attempt %d: expected a retry job enqueued, got %d jobs", attempt, len(h.jobs.items))
		}
		delay := h.jobs.items[0].AvailableAt.Sub(before)
		// Allow slack for the time spent executing this attempt.
		if delay < wantDelays[attempt]-500*time.Millisecond || delay > wantDelays[attempt]+500*time.Millisecond {
			t.Fatalf("attempt %d: expected ~%s backoff, got %s", attempt, wantDelays[attempt], delay)
		}
	}

	// Final attempt: retries exhausted, Step and Run both FAILED.
	if len(h.jobs.items) != 1 {
		t.Fatalf("expected exactly 1 queued job before final attempt, got %d", len(h.jobs.items))
	}
	job := h.jobs.pop(0)
	var payload StepJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if _, _, err := h.engine.ExecuteStep(ctx, payload.RunID, payload.StepKey); err != nil {
		t.Fatalf("ExecuteStep final attempt: %v", err)
	}

	step, err := h.steps.Get(ctx, run.ID, "bad")
	if err != nil {
		t.Fatalf("Get step: %v", err)
	}
	if step.Status != domainworkflow.StepFailed {
		t.Fatalf("expected step FAILED, got %s", step.Status)
	}
	if step.RetryCount != domainworkflow.DefaultRetryPolicy().MaxRetries {
		t.Fatalf("expected retryCount %d, got %d", domainworkflow.DefaultRetryPolicy().MaxRetries, step.RetryCount)
	}

	final, err := h.runs.Get(ctx, "tenant-1", run.ID)
	if err != nil {
		t.Fatalf("Get run: %v", err)
	}
	if final.Status != domainworkflow.RunFailed {
		t.Fatalf("expected run FAILED, got %s", final.Status)
	}
	if len(h.jobs.items) != 0 {
		t.Fatalf("expected no further jobs queued after terminal failure, got %d", len(h.jobs.items))
	}
}

// S6: cancelling a Run while its next step is a DELAY node's successor,
// still scheduled in the future, leaves that job permanently inert —
// CancelRun skips every PENDING/RUNNING step, and ExecuteStep no-ops once
// the Run is terminal even if the delayed job is later drained regardless.
func TestEngine_CancelDuringDelaySkipsRemainder(t *testing.T) {
	h := newHarness(t, domainworkflow.RetryPolicy{})
	def := domainworkflow.Definition{
		Nodes: map[string]domainworkflow.Node{
			"wait": delayNode("wait", 30_000, "after"),
			"after": transformNode("after"),
		},
		Entrypoint: "wait",
	}
	h.seedWorkflow("wf-6", def)

	ctx := context.Background()
	run, err := h.engine.StartRun(ctx, "tenant-1", "wf-6", nil)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	// Execute the DELAY node itself: it completes immediately and enqueues
	// "after" for 30s in the future.
	if len(h.jobs.items) != 1 {
		t.Fatalf("expected 1 queued job, got %d", len(h.jobs.items))
	}
	job := h.jobs.pop(0)
	var payload StepJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if _, _, err := h.engine.ExecuteStep(ctx, payload.RunID, payload.StepKey); err != nil {
		t.Fatalf("ExecuteStep(wait): %v", err)
	}

	waitStep, err := h.steps.Get(ctx, run.ID, "wait")
	if err != nil || waitStep.Status != domainworkflow.StepCompleted {
		t.Fatalf("expected wait step COMPLETED, got %+v (err %v)", waitStep, err)
	}
	if len(h.jobs.items) != 1 {
		t.Fatalf("expected the delayed successor job to be queued, got %d", len(h.jobs.items))
	}

	// Cancel mid-delay, before "after" is ever dequeued.
	cancelled, err := h.engine.CancelRun(ctx, "tenant-1", run.ID)
	if err != nil {
		t.Fatalf("CancelRun: %v", err)
	}
	if cancelled.Status != domainworkflow.RunCancelled {
		t.Fatalf("expected run CANCELLED, got %s", cancelled.Status)
	}

	afterStep, err := h.steps.Get(ctx, run.ID, "after")
	if err != nil {
		t.Fatalf("Get after step: %v", err)
	}
	if afterStep.Status != domainworkflow.StepSkipped {
		t.Fatalf("expected after step SKIPPED by cancellation, got %s", afterStep.Status)
	}

	// Even if the worker pool later drains the stale delayed job, ExecuteStep
	// must no-op against a terminal Run rather than resurrecting the step.
	if _, events, err := h.engine.ExecuteStep(ctx, payload.RunID, "after"); err != nil || len(events) != 0 {
		t.Fatalf("ExecuteStep on cancelled run: expected no-op, got events=%v err=%v", events, err)
	}
	afterStep, err = h.steps.Get(ctx, run.ID, "after")
	if err != nil || afterStep.Status != domainworkflow.StepSkipped {
		t.Fatalf("after step must remain SKIPPED post-cancel, got %+v (err %v)", afterStep, err)
	}
}
