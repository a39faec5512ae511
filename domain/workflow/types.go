// Package workflow holds the entity types for the workflow execution domain:
// workflows, their DAG definitions, runs, steps, and events.
package workflow

import (
	"encoding/json"
	"strconv"
	"time"
)

// NodeType identifies the executor a Node dispatches to.
type NodeType string

const (
	NodeAICompletion NodeType = "AI_COMPLETION"
	NodeHTTPRequest  NodeType = "HTTP_REQUEST"
	NodeCondition    NodeType = "CONDITION"
	NodeTransform    NodeType = "TRANSFORM"
	NodeDelay        NodeType = "DELAY"
	NodeWebhook      NodeType = "WEBHOOK"
)

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
	RunCancelled RunStatus = "CANCELLED"
)

// StepStatus is the lifecycle state of a Step.
type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepRunning   StepStatus = "RUNNING"
	StepCompleted StepStatus = "COMPLETED"
	StepFailed    StepStatus = "FAILED"
	StepSkipped   StepStatus = "SKIPPED"
)

// EventType names the kind of state transition an Event records.
type EventType string

const (
	EventRunStarted     EventType = "run.started"
	EventStepStarted    EventType = "step.started"
	EventStepCompleted  EventType = "step.completed"
	EventStepFailed     EventType = "step.failed"
	EventRunCompleted   EventType = "run.completed"
	EventRunFailed      EventType = "run.failed"
	EventRunCancelled   EventType = "run.cancelled"
)

// Node is a single vertex of a workflow DAG.
type Node struct {
	ID     string          `json:"id" db:"id"`
	Type   NodeType        `json:"type" db:"type"`
	Config json.RawMessage `json:"config" db:"config"`
	Next   []string        `json:"next" db:"next"`
}

// Edge is a directed connection between two nodes, used only during
// validation — traversal at runtime follows Node.Next.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DefinitionMetadata carries the descriptive fields of a WorkflowDefinition.
type DefinitionMetadata struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	Description string `json:"description,omitempty"`
}

// Definition is the DAG a Workflow executes: a set of nodes, the edges
// between them (used for validation), and the entrypoint node key.
type Definition struct {
	Metadata   DefinitionMetadata `json:"metadata"`
	Nodes      map[string]Node    `json:"nodes"`
	Edges      []Edge             `json:"edges"`
	Entrypoint string             `json:"entrypoint"`
}

// Workflow is a tenant-owned, versioned DAG definition.
type Workflow struct {
	ID         string     `json:"id" db:"id"`
	TenantID   string     `json:"tenantId" db:"tenant_id"`
	Name       string     `json:"name" db:"name"`
	Version    int        `json:"version" db:"version"`
	Definition Definition `json:"definition" db:"-"`
	IsActive   bool       `json:"isActive" db:"is_active"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time  `json:"updatedAt" db:"updated_at"`
}

// Run is one execution attempt of a Workflow.
type Run struct {
	ID             string          `json:"id" db:"id"`
	TenantID       string          `json:"tenantId" db:"tenant_id"`
	WorkflowID     string          `json:"workflowId" db:"workflow_id"`
	Status         RunStatus       `json:"status" db:"status"`
	Input          json.RawMessage `json:"input" db:"input"`
	Output         json.RawMessage `json:"output,omitempty" db:"output"`
	Error          string          `json:"error,omitempty" db:"error"`
	CurrentStepKey string          `json:"currentStepKey,omitempty" db:"current_step_key"`
	StartedAt      time.Time       `json:"startedAt" db:"started_at"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty" db:"completed_at"`
}

// Terminal reports whether the run is in one of its terminal states.
func (r *Run) Terminal() bool {
	switch r.Status {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	default:
		return false
	}
}

// Step is the per-node execution record within a Run.
type Step struct {
	ID             string          `json:"id" db:"id"`
	RunID          string          `json:"runId" db:"run_id"`
	StepKey        string          `json:"stepKey" db:"step_key"`
	Type           NodeType        `json:"type" db:"type"`
	Status         StepStatus      `json:"status" db:"status"`
	Input          json.RawMessage `json:"input,omitempty" db:"input"`
	Output         json.RawMessage `json:"output,omitempty" db:"output"`
	Error          string          `json:"error,omitempty" db:"error"`
	RetryCount     int             `json:"retryCount" db:"retry_count"`
	IdempotencyKey string          `json:"idempotencyKey" db:"idempotency_key"`
	StartedAt      *time.Time      `json:"startedAt,omitempty" db:"started_at"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty" db:"completed_at"`
}

// Terminal reports whether the step will not transition further on its own.
func (s *Step) Terminal() bool {
	switch s.Status {
	case StepCompleted, StepFailed, StepSkipped:
		return true
	default:
		return false
	}
}

// IdempotencyKeyFor builds the canonical idempotency key for a step attempt.
func IdempotencyKeyFor(runID, stepKey string, retryCount int) string {
	return runID + ":" + stepKey + ":" + strconv.Itoa(retryCount)
}

// Event is an append-only record of a state transition within a Run.
type Event struct {
	ID        string          `json:"id" db:"id"`
	RunID     string          `json:"runId" db:"run_id"`
	StepID    string          `json:"stepId,omitempty" db:"step_id"`
	Type      EventType       `json:"type" db:"type"`
	Payload   json.RawMessage `json:"payload" db:"payload"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// RetryPolicy bounds the engine's step retry behavior.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy matches the spec's default: 3 retries, 1s base delay
// (yielding 1s, 2s, 4s backoff).
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}
}

// DelayFor returns the backoff delay before the k-th retry (k starting at 1).
func (p RetryPolicy) DelayFor(k int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < k; i++ {
		d *= 2
	}
	return d
}

// MaxDelayMs is the spec's cap on an explicit DELAY node's configured delay.
const MaxDelayMs = 30_000

// DefaultStepTimeout is the per-step execution timeout before a step counts
// as failed and feeds into the retry policy.
const DefaultStepTimeout = 5 * time.Minute
