// Package workflow is the engine at the core of the workflow service: given
// a validated Definition and user-supplied input it drives a Run's DAG to
// completion or failure, producing Step records and Events while delegating
// persistence to the postgres repositories, queuing to the job store, and
// side-effect capabilities (completion, outbound HTTP) to injected clients.
//
// The engine never blocks on a node's work: ExecuteStep is invoked by a
// step-worker pool (packages/stepworker) draining the job store, and the
// engine itself never calls out to the job store's blocking Dequeue.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	domainworkflow "github.com/R3E-Network/service_layer/domain/workflow"
	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/expr"
	"github.com/R3E-Network/service_layer/infrastructure/httputil"
	"github.com/R3E-Network/service_layer/infrastructure/jobstore"
	"github.com/R3E-Network/service_layer/infrastructure/postgres"
	"github.com/R3E-Network/service_layer/infrastructure/ratelimit"
	"github.com/R3E-Network/service_layer/packages/completion"
)

// httpDoer is the slice of *http.Client the engine's HTTP_REQUEST/WEBHOOK
// executors need, satisfied by both a plain *http.Client and the
// rate-limited client New wraps it in.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// workflowRepo is the slice of postgres.WorkflowRepo the engine needs.
// Declaring it as an interface — rather than depending on *postgres.WorkflowRepo
// directly — lets engine_test.go exercise StartRun/ExecuteStep/CancelRun
// against in-memory fakes instead of a live Postgres connection.
type workflowRepo interface {
	Get(ctx context.Context, tenantID, id string) (*domainworkflow.Workflow, error)
}

// runRepo is the slice of postgres.RunRepo the engine needs.
type runRepo interface {
	Create(ctx context.Context, run domainworkflow.Run) error
	Get(ctx context.Context, tenantID, id string) (*domainworkflow.Run, error)
	GetByID(ctx context.Context, id string) (*domainworkflow.Run, error)
	UpdateStatus(ctx context.Context, run domainworkflow.Run) error
	CancelWithSteps(ctx context.Context, tenantID, runID string) error
	FailWithSteps(ctx context.Context, runID, errMsg string) error
}

// stepRepo is the slice of postgres.StepRepo the engine needs.
type stepRepo interface {
	CreateBatch(ctx context.Context, steps []domainworkflow.Step) error
	Get(ctx context.Context, runID, stepKey string) (*domainworkflow.Step, error)
	ListByRun(ctx context.Context, runID string) ([]domainworkflow.Step, error)
	Transition(ctx context.Context, step domainworkflow.Step) error
}

// eventRepo is the slice of postgres.EventRepo the engine needs.
type eventRepo interface {
	Append(ctx context.Context, event domainworkflow.Event) error
}

// jobQueue is the slice of jobstore.Store the engine needs to schedule step
// jobs; it enqueues onto Queue and never dequeues (packages/stepworker owns
// that side).
type jobQueue interface {
	Enqueue(ctx context.Context, queue string, job jobstore.Job) error
}

// Queue is the job-store queue name the engine enqueues step jobs onto and
// the step-worker pool drains.
const Queue = "workflow.steps"

// StepJob is the payload of every job enqueued onto Queue.
type StepJob struct {
	RunID   string `json:"runId"`
	StepKey string `json:"stepKey"`
}

// Engine owns the DAG execution loop. The zero value is not usable;
// construct with New.
type Engine struct {
	workflows  workflowRepo
	runs       runRepo
	steps      stepRepo
	events     eventRepo
	jobs       jobQueue
	completion completion.Completion
	httpClient httpDoer
	retry      domainworkflow.RetryPolicy
}

// Deps collects Engine's constructor dependencies.
type Deps struct {
	Workflows  *postgres.WorkflowRepo
	Runs       *postgres.RunRepo
	Steps      *postgres.StepRepo
	Events     *postgres.EventRepo
	Jobs       *jobstore.Store
	Completion completion.Completion
	HTTPClient *http.Client
	Retry      domainworkflow.RetryPolicy
}

// New constructs an Engine. A zero-value Retry falls back to
// domainworkflow.DefaultRetryPolicy, and a nil HTTPClient to a client with a
// 30s timeout.
func New(deps Deps) *Engine {
	retry := deps.Retry
	if retry.MaxRetries == 0 && retry.BaseDelay == 0 {
		retry = domainworkflow.DefaultRetryPolicy()
	}
	base := httputil.CopyHTTPClientWithTimeout(deps.HTTPClient, 30*time.Second, false)
	return &Engine{
		workflows:  deps.Workflows,
		runs:       deps.Runs,
		steps:      deps.Steps,
		events:     deps.Events,
		jobs:       deps.Jobs,
		completion: deps.Completion,
		httpClient: ratelimit.NewRateLimitedClient(base, ratelimit.DefaultConfig()),
		retry:      retry,
	}
}

// StartRun validates the Workflow's current Definition, creates a Run and a
// PENDING Step for every node of its Definition in one batch, enqueues only
// the entrypoint job, and returns immediately — the engine never blocks on
// the DAG's execution. Every node gets a Step row up front so a node the Run
// never reaches (e.g. a CONDITION's unselected branch) still has a record
// that checkRunCompletion can transition to SKIPPED, rather than an absent
// row that silently drops part of the graph from the Run's history.
func (e *Engine) StartRun(ctx context.Context, tenantID, workflowID string, input json.RawMessage) (*domainworkflow.Run, error) {
	wf, err := e.workflows.Get(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}
	if !wf.IsActive {
		return nil, svcerrors.Validation("workflowId", "workflow is not active")
	}
	if err := domainworkflow.ValidateDefinition(wf.Definition); err != nil {
		return nil, err
	}
	if len(input) == 0 {
		input = json.RawMessage("null")
	}

	now := time.Now().UTC()
	run := domainworkflow.Run{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		WorkflowID: wf.ID,
		Status:     domainworkflow.RunRunning,
		Input:      input,
		StartedAt:  now,
	}
	if err := e.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	steps := make([]domainworkflow.Step, 0, len(wf.Definition.Nodes))
	for _, node := range wf.Definition.Nodes {
		steps = append(steps, domainworkflow.Step{
			ID:             uuid.NewString(),
			RunID:          run.ID,
			StepKey:        node.ID,
			Type:           node.Type,
			Status:         domainworkflow.StepPending,
			IdempotencyKey: domainworkflow.IdempotencyKeyFor(run.ID, node.ID, 0),
		})
	}
	if err := e.steps.CreateBatch(ctx, steps); err != nil {
		return nil, err
	}

	if err := e.appendEvent(ctx, run.ID, "", domainworkflow.EventRunStarted, map[string]interface{}{"runId": run.ID}, now); err != nil {
		return nil, err
	}

	entry := wf.Definition.Nodes[wf.Definition.Entrypoint]
	entryIdempotencyKey := domainworkflow.IdempotencyKeyFor(run.ID, entry.ID, 0)
	if err := e.enqueueStep(ctx, run.ID, entry.ID, entryIdempotencyKey, now); err != nil {
		return nil, err
	}

	return &run, nil
}

// ShouldSkip implements the step-worker's idempotency gate (§4.2): a job
// is dropped without dispatching into the engine at all when its Step is
// already COMPLETED or SKIPPED, or its Run is already CANCELLED or FAILED.
func (e *Engine) ShouldSkip(ctx context.Context, runID, stepKey string) (bool, error) {
	run, err := e.runs.GetByID(ctx, runID)
	if err != nil {
		return false, err
	}
	if run.Status == domainworkflow.RunCancelled || run.Status == domainworkflow.RunFailed {
		return true, nil
	}

	step, err := e.steps.Get(ctx, runID, stepKey)
	if err != nil {
		return false, err
	}
	return step.Status == domainworkflow.StepCompleted || step.Status == domainworkflow.StepSkipped, nil
}

// ExecuteStep loads the named Step and its Run, dispatches to the node's
// type-specific executor, and folds the outcome back through the retry
// policy, edge selection and run-completion rule. The caller (the
// step-worker pool) is expected to have already passed the idempotency gate
// of §4.2 before calling ExecuteStep; ExecuteStep re-checks it defensively.
//
// The returned Events have already been durably persisted; the caller is
// responsible for broadcasting them on the push bus afterward, per the
// worker's side-effect-visibility contract. tenantID is returned alongside
// so the caller can scope that broadcast without a second lookup.
func (e *Engine) ExecuteStep(ctx context.Context, runID, stepKey string) (tenantID string, events []domainworkflow.Event, err error) {
	run, err := e.runs.GetByID(ctx, runID)
	if err != nil {
		return "", nil, err
	}
	if run.Terminal() {
		return run.TenantID, nil, nil
	}

	step, err := e.steps.Get(ctx, runID, stepKey)
	if err != nil {
		return run.TenantID, nil, err
	}
	if step.Terminal() {
		return run.TenantID, nil, nil
	}

	wf, err := e.workflows.Get(ctx, run.TenantID, run.WorkflowID)
	if err != nil {
		return run.TenantID, nil, err
	}
	node, ok := wf.Definition.Nodes[stepKey]
	if !ok {
		return run.TenantID, nil, fmt.Errorf("run %s: step %q has no matching node in the workflow definition", runID, stepKey)
	}

	now := time.Now().UTC()
	step.Status = domainworkflow.StepRunning
	if err := e.steps.Transition(ctx, *step); err != nil {
		return run.TenantID, nil, err
	}

	startedEvent, err := e.buildEvent(runID, step.ID, domainworkflow.EventStepStarted,
		map[string]interface{}{"stepKey": stepKey}, now)
	if err != nil {
		return run.TenantID, nil, err
	}
	if err := e.events.Append(ctx, startedEvent); err != nil {
		return run.TenantID, nil, err
	}
	events = append(events, startedEvent)

	stepCtx, err := e.buildStepContext(ctx, *run)
	if err != nil {
		return run.TenantID, nil, err
	}

	result, execErr := e.executeNode(ctx, node, stepCtx, now)
	if execErr != nil {
		failureEvents, err := e.handleStepError(ctx, run, step, execErr)
		if err != nil {
			return run.TenantID, nil, err
		}
		return run.TenantID, append(events, failureEvents...), nil
	}

	completionEvents, err := e.handleStepComplete(ctx, run, wf.Definition, node, step, result, now)
	if err != nil {
		return run.TenantID, nil, err
	}
	return run.TenantID, append(events, completionEvents...), nil
}

// CancelRun transitions a Run to CANCELLED and every one of its
// PENDING/RUNNING Steps to SKIPPED in a single transaction.
func (e *Engine) CancelRun(ctx context.Context, tenantID, runID string) (*domainworkflow.Run, error) {
	if err := e.runs.CancelWithSteps(ctx, tenantID, runID); err != nil {
		return nil, err
	}
	if err := e.appendEvent(ctx, runID, "", domainworkflow.EventRunCancelled, map[string]interface{}{"runId": runID}, time.Now().UTC()); err != nil {
		return nil, err
	}
	return e.runs.Get(ctx, tenantID, runID)
}

// ObserveRun returns a Run together with every Step recorded against it,
// for the HTTP read path and as the seed state a Push Bus subscriber
// replays before live events start arriving.
func (e *Engine) ObserveRun(ctx context.Context, tenantID, runID string) (*domainworkflow.Run, []domainworkflow.Step, error) {
	run, err := e.runs.Get(ctx, tenantID, runID)
	if err != nil {
		return nil, nil, err
	}
	steps, err := e.steps.ListByRun(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	return run, steps, nil
}

// buildStepContext assembles the read-only {input, steps, env} view handed
// to every node executor: input is the Run's original input, steps carries
// every COMPLETED predecessor's {output, status}.
func (e *Engine) buildStepContext(ctx context.Context, run domainworkflow.Run) (expr.StepContext, error) {
	all, err := e.steps.ListByRun(ctx, run.ID)
	if err != nil {
		return expr.StepContext{}, err
	}
	completed := make(map[string]expr.StepResult, len(all))
	for _, s := range all {
		if s.Status == domainworkflow.StepCompleted {
			completed[s.StepKey] = expr.StepResult{Output: s.Output, Status: string(s.Status)}
		}
	}
	return expr.StepContext{Input: run.Input, Steps: completed, Env: map[string]string{}}, nil
}

// handleStepComplete persists a successfully-executed Step, selects its
// successor node(s) per §4.1's edge-selection rule, enqueues each, and — if
// the Step is a leaf with no successor — evaluates the run-completion rule.
func (e *Engine) handleStepComplete(ctx context.Context, run *domainworkflow.Run, def domainworkflow.Definition, node domainworkflow.Node, step *domainworkflow.Step, result execResult, now time.Time) ([]domainworkflow.Event, error) {
	step.Status = domainworkflow.StepCompleted
	step.Output = result.Output
	step.Error = ""
	if err := e.steps.Transition(ctx, *step); err != nil {
		return nil, err
	}

	completedEvent, err := e.buildEvent(run.ID, step.ID, domainworkflow.EventStepCompleted,
		map[string]interface{}{"stepKey": step.StepKey, "output": json.RawMessage(result.Output)}, now)
	if err != nil {
		return nil, err
	}
	events := []domainworkflow.Event{completedEvent}
	if err := e.events.Append(ctx, completedEvent); err != nil {
		return nil, err
	}

	successors, err := successorsFor(node, result)
	if err != nil {
		return nil, err
	}

	delay := time.Duration(0)
	if node.Type == domainworkflow.NodeDelay {
		delay, err = delayDurationFor(node)
		if err != nil {
			return nil, err
		}
	}

	for _, key := range successors {
		if key == "" {
			continue
		}
		successorNode, ok := def.Nodes[key]
		if !ok {
			return nil, fmt.Errorf("run %s: step %q selected unknown successor %q", run.ID, step.StepKey, key)
		}
		idempotencyKey := domainworkflow.IdempotencyKeyFor(run.ID, successorNode.ID, 0)
		if err := e.enqueueStepAt(ctx, run.ID, successorNode.ID, idempotencyKey, now.Add(delay)); err != nil {
			return nil, err
		}
	}

	if node.Type == domainworkflow.NodeCondition {
		for _, candidate := range node.Next {
			if candidate == "" || candidate == result.SelectedBranch {
				continue
			}
			if err := e.skipUnreachable(ctx, run.ID, def, candidate); err != nil {
				return nil, err
			}
		}
	}

	if len(successors) > 0 {
		return events, nil
	}

	finished, err := e.checkRunCompletion(ctx, run, step.Output, now)
	if err != nil {
		return nil, err
	}
	events = append(events, finished...)
	return events, nil
}

// successorsFor returns the node keys to enqueue after node completes. A
// CONDITION node's successor is its selectedBranch alone; every other node
// type's successors are node.Next.
func successorsFor(node domainworkflow.Node, result execResult) ([]string, error) {
	if node.Type == domainworkflow.NodeCondition {
		if result.SelectedBranch == "" {
			return nil, nil
		}
		return []string{result.SelectedBranch}, nil
	}
	return node.Next, nil
}

// skipUnreachable marks start's Step SKIPPED, along with every node reached
// only through it, for a CONDITION branch that was not selected. Every
// node's Step row already exists — StartRun created one for the whole
// Definition up front — so there is never a missing row to create here,
// only an already-PENDING one that no predecessor will ever enqueue a job
// for. Traversal stops at a node whose Step is already terminal, since that
// node is reachable some other way and must not be skipped out from under
// whatever path is driving it.
func (e *Engine) skipUnreachable(ctx context.Context, runID string, def domainworkflow.Definition, start string) error {
	queue := []string{start}
	visited := map[string]bool{}
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		if visited[key] {
			continue
		}
		visited[key] = true

		step, err := e.steps.Get(ctx, runID, key)
		if err != nil {
			if svcerrors.Is(err, svcerrors.CodeNotFound) {
				continue
			}
			return err
		}
		if step.Terminal() {
			continue
		}
		step.Status = domainworkflow.StepSkipped
		if err := e.steps.Transition(ctx, *step); err != nil {
			return err
		}

		if node, ok := def.Nodes[key]; ok {
			queue = append(queue, node.Next...)
		}
	}
	return nil
}

func (e *Engine) enqueueStep(ctx context.Context, runID, stepKey, idempotencyKey string, now time.Time) error {
	return e.enqueueStepAt(ctx, runID, stepKey, idempotencyKey, now)
}

func (e *Engine) enqueueStepAt(ctx context.Context, runID, stepKey, idempotencyKey string, availableAt time.Time) error {
	payload, err := json.Marshal(StepJob{RunID: runID, StepKey: stepKey})
	if err != nil {
		return err
	}
	job := jobstore.Job{
		ID:          idempotencyKey,
		Payload:     payload,
		AvailableAt: availableAt,
	}
	if err := e.jobs.Enqueue(ctx, Queue, job); err != nil && !errors.Is(err, jobstore.ErrDuplicate) {
		return err
	}
	return nil
}

// checkRunCompletion evaluates §4.1's run-completion rule: the Run becomes
// COMPLETED once no Step is PENDING or RUNNING. It is only reached from a
// leaf step with no successor, so any Step still RUNNING belongs to a
// sibling branch genuinely in flight and the Run must wait for it. Once
// nothing is RUNNING, any Step still PENDING has no predecessor left to
// enqueue it — skipUnreachable already handles a CONDITION's own unselected
// branch, but this is the backstop for anything it missed (and for runs
// whose Definition changed shape between start and completion) — so those
// remaining PENDING steps are transitioned to SKIPPED here before the Run's
// own terminal status is decided. lastOutput is recorded as the Run's
// output, per "the last terminal step's output".
func (e *Engine) checkRunCompletion(ctx context.Context, run *domainworkflow.Run, lastOutput json.RawMessage, now time.Time) ([]domainworkflow.Event, error) {
	all, err := e.steps.ListByRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	for _, s := range all {
		if s.Status == domainworkflow.StepRunning {
			return nil, nil
		}
	}
	for i, s := range all {
		if s.Status != domainworkflow.StepPending {
			continue
		}
		s.Status = domainworkflow.StepSkipped
		if err := e.steps.Transition(ctx, s); err != nil {
			return nil, err
		}
		all[i] = s
	}

	anyFailed := false
	for _, s := range all {
		if s.Status == domainworkflow.StepFailed {
			anyFailed = true
			break
		}
	}

	if anyFailed {
		run.Status = domainworkflow.RunFailed
	} else {
		run.Status = domainworkflow.RunCompleted
		run.Output = lastOutput
	}
	if err := e.runs.UpdateStatus(ctx, *run); err != nil {
		return nil, err
	}

	eventType := domainworkflow.EventRunCompleted
	if anyFailed {
		eventType = domainworkflow.EventRunFailed
	}
	event, err := e.buildEvent(run.ID, "", eventType, map[string]interface{}{"runId": run.ID}, now)
	if err != nil {
		return nil, err
	}
	if err := e.events.Append(ctx, event); err != nil {
		return nil, err
	}
	return []domainworkflow.Event{event}, nil
}

// handleStepError folds an executor failure into the retry policy: while
// retryCount is within bounds the Step returns to PENDING with a fresh
// idempotency key and is re-enqueued after the policy's backoff; once
// exhausted the Step becomes FAILED, every remaining PENDING/RUNNING Step
// of the Run is SKIPPED, and the Run becomes FAILED.
func (e *Engine) handleStepError(ctx context.Context, run *domainworkflow.Run, step *domainworkflow.Step, execErr error) ([]domainworkflow.Event, error) {
	now := time.Now().UTC()
	nextRetry := step.RetryCount + 1

	if nextRetry <= e.retry.MaxRetries {
		step.Status = domainworkflow.StepPending
		step.RetryCount = nextRetry
		step.Error = execErr.Error()
		step.IdempotencyKey = domainworkflow.IdempotencyKeyFor(run.ID, step.StepKey, nextRetry)
		if err := e.steps.Transition(ctx, *step); err != nil {
			return nil, err
		}
		availableAt := now.Add(e.retry.DelayFor(nextRetry))
		if err := e.enqueueStepAt(ctx, run.ID, step.StepKey, step.IdempotencyKey, availableAt); err != nil {
			return nil, err
		}
		return nil, nil
	}

	step.Status = domainworkflow.StepFailed
	step.Error = execErr.Error()
	if err := e.steps.Transition(ctx, *step); err != nil {
		return nil, err
	}

	failedEvent, err := e.buildEvent(run.ID, step.ID, domainworkflow.EventStepFailed,
		map[string]interface{}{"stepKey": step.StepKey, "error": step.Error}, now)
	if err != nil {
		return nil, err
	}
	events := []domainworkflow.Event{failedEvent}
	if err := e.events.Append(ctx, failedEvent); err != nil {
		return nil, err
	}

	if err := e.runs.FailWithSteps(ctx, run.ID, step.Error); err != nil {
		return nil, err
	}
	run.Status = domainworkflow.RunFailed

	runFailedEvent, err := e.buildEvent(run.ID, "", domainworkflow.EventRunFailed,
		map[string]interface{}{"runId": run.ID, "error": step.Error}, now)
	if err != nil {
		return nil, err
	}
	if err := e.events.Append(ctx, runFailedEvent); err != nil {
		return nil, err
	}
	return append(events, runFailedEvent), nil
}

func (e *Engine) buildEvent(runID, stepID string, eventType domainworkflow.EventType, payload interface{}, at time.Time) (domainworkflow.Event, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return domainworkflow.Event{}, err
	}
	return domainworkflow.Event{
		ID:        uuid.NewString(),
		RunID:     runID,
		StepID:    stepID,
		Type:      eventType,
		Payload:   encoded,
		Timestamp: at,
	}, nil
}

func (e *Engine) appendEvent(ctx context.Context, runID, stepID string, eventType domainworkflow.EventType, payload interface{}, at time.Time) error {
	event, err := e.buildEvent(runID, stepID, eventType, payload, at)
	if err != nil {
		return err
	}
	return e.events.Append(ctx, event)
}
