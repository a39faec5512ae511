// Package workflowsvc wraps infrastructure/postgres.WorkflowRepo with the
// validation the raw repository never performs: a Definition's DAG shape
// (entrypoint exists, every edge target exists, no cycle, no orphan node)
// is checked by domain/workflow.ValidateDefinition before a Create or
// Update is allowed to reach Postgres, the same validate-then-delegate
// shape packages/sitesvc uses for Site/Page mutations.
package workflowsvc

import (
	"context"
	"strings"

	"github.com/google/uuid"

	domainworkflow "github.com/R3E-Network/service_layer/domain/workflow"
	"github.com/R3E-Network/service_layer/infrastructure/database"
	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
)

// Repo is the slice of infrastructure/postgres.WorkflowRepo this package needs.
type Repo interface {
	Create(ctx context.Context, wf domainworkflow.Workflow) error
	Get(ctx context.Context, tenantID, id string) (*domainworkflow.Workflow, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]domainworkflow.Workflow, int, error)
	Update(ctx context.Context, tenantID, id string, def domainworkflow.Definition, name string) (*domainworkflow.Workflow, error)
	SoftDelete(ctx context.Context, tenantID, id string) error
}

// DefaultListLimit is applied when a caller asks for ListWorkflows without
// specifying one.
const DefaultListLimit = 20

// MaxListLimit bounds how large a page ListWorkflows will ever return,
// regardless of what a caller requests.
const MaxListLimit = 200

// Service is the validated CRUD surface cmd/workflow-service's HTTP
// handlers call into.
type Service struct {
	repo Repo
}

// New constructs a Service.
func New(repo Repo) *Service {
	return &Service{repo: repo}
}

// CreateWorkflow validates name and def.Definition's DAG shape, then
// persists a new Workflow at version 1, active by default.
func (s *Service) CreateWorkflow(ctx context.Context, tenantID, name string, def domainworkflow.Definition) (*domainworkflow.Workflow, error) {
	if strings.TrimSpace(name) == "" {
		return nil, svcerrors.Validation("name", "is required")
	}
	if err := domainworkflow.ValidateDefinition(def); err != nil {
		return nil, err
	}

	wf := domainworkflow.Workflow{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		Name:       name,
		Version:    1,
		Definition: def,
		IsActive:   true,
	}
	if err := s.repo.Create(ctx, wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// GetWorkflow returns the Workflow, tenant-scoped.
func (s *Service) GetWorkflow(ctx context.Context, tenantID, id string) (*domainworkflow.Workflow, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// ListWorkflows returns a page of the tenant's Workflows. limit <= 0
// defaults to DefaultListLimit.
func (s *Service) ListWorkflows(ctx context.Context, tenantID string, limit, offset int) ([]domainworkflow.Workflow, int, error) {
	limit = database.ValidateLimit(limit, DefaultListLimit, MaxListLimit)
	offset = database.ValidateOffset(offset)
	return s.repo.List(ctx, tenantID, limit, offset)
}

// UpdateWorkflow validates the replacement Definition's DAG shape and bumps
// the Workflow's version, per §6's "update(bumps version)".
func (s *Service) UpdateWorkflow(ctx context.Context, tenantID, id, name string, def domainworkflow.Definition) (*domainworkflow.Workflow, error) {
	if strings.TrimSpace(name) == "" {
		return nil, svcerrors.Validation("name", "is required")
	}
	if err := domainworkflow.ValidateDefinition(def); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, tenantID, id, def, name)
}

// DeleteWorkflow soft-deletes a Workflow, tenant-scoped.
func (s *Service) DeleteWorkflow(ctx context.Context, tenantID, id string) error {
	return s.repo.SoftDelete(ctx, tenantID, id)
}
