package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/domain/workflow"
)

// WorkflowRepo persists Workflow rows. Every method is tenant-scoped.
type WorkflowRepo struct {
	db *DB
}

// NewWorkflowRepo constructs a WorkflowRepo.
func NewWorkflowRepo(db *DB) *WorkflowRepo { return &WorkflowRepo{db: db} }

type workflowRow struct {
	ID         string `db:"id"`
	TenantID   string `db:"tenant_id"`
	Name       string `db:"name"`
	Version    int    `db:"version"`
	Definition []byte `db:"definition"`
	IsActive   bool      `db:"is_active"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (row workflowRow) toDomain() (*workflow.Workflow, error) {
	var def workflow.Definition
	if err := json.Unmarshal(row.Definition, &def); err != nil {
		return nil, svcerrors.Internal("decode workflow definition", err)
	}
	return &workflow.Workflow{
		ID:         row.ID,
		TenantID:   row.TenantID,
		Name:       row.Name,
		Version:    row.Version,
		Definition: def,
		IsActive:   row.IsActive,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}

// Create inserts a new Workflow at version 1.
func (r *WorkflowRepo) Create(ctx context.Context, wf workflow.Workflow) error {
	encoded, err := json.Marshal(wf.Definition)
	if err != nil {
		return svcerrors.Internal("encode workflow definition", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO workflows (id, tenant_id, name, version, definition, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now(), now())`,
		wf.ID, wf.TenantID, wf.Name, wf.Version, encoded, wf.IsActive)
	if err != nil {
		return svcerrors.DatabaseError("workflow.create", err)
	}
	return nil
}

// Get fetches a Workflow scoped to tenantID.
func (r *WorkflowRepo) Get(ctx context.Context, tenantID, id string) (*workflow.Workflow, error) {
	var row workflowRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, tenant_id, name, version, definition, is_active, created_at, updated_at
		 FROM workflows WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NotFound("workflow", id)
	}
	if err != nil {
		return nil, svcerrors.DatabaseError("workflow.get", err)
	}
	return row.toDomain()
}

// List returns a tenant's workflows ordered by most recently updated.
func (r *WorkflowRepo) List(ctx context.Context, tenantID string, limit, offset int) ([]workflow.Workflow, int, error) {
	var rows []workflowRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, tenant_id, name, version, definition, is_active, created_at, updated_at
		 FROM workflows WHERE tenant_id = $1 ORDER BY updated_at DESC LIMIT $2 OFFSET $3`,
		tenantID, limit, offset)
	if err != nil {
		return nil, 0, svcerrors.DatabaseError("workflow.list", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT count(*) FROM workflows WHERE tenant_id = $1`, tenantID); err != nil {
		return nil, 0, svcerrors.DatabaseError("workflow.count", err)
	}

	out := make([]workflow.Workflow, 0, len(rows))
	for _, row := range rows {
		wf, err := row.toDomain()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *wf)
	}
	return out, total, nil
}

// Update replaces a Workflow's definition, bumping its version by one.
func (r *WorkflowRepo) Update(ctx context.Context, tenantID, id string, def workflow.Definition, name string) (*workflow.Workflow, error) {
	encoded, err := json.Marshal(def)
	if err != nil {
		return nil, svcerrors.Internal("encode workflow definition", err)
	}

	var row workflowRow
	err = r.db.GetContext(ctx, &row,
		`UPDATE workflows SET name = $3, definition = $4, version = version + 1, updated_at = now()
		 WHERE id = $1 AND tenant_id = $2
		 RETURNING id, tenant_id, name, version, definition, is_active, created_at, updated_at`,
		id, tenantID, name, encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NotFound("workflow", id)
	}
	if err != nil {
		return nil, svcerrors.DatabaseError("workflow.update", err)
	}
	return row.toDomain()
}

// SoftDelete marks a Workflow inactive without removing it; referenced
// Runs remain queryable.
func (r *WorkflowRepo) SoftDelete(ctx context.Context, tenantID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE workflows SET is_active = false, updated_at = now() WHERE id = $1 AND tenant_id = $2`,
		id, tenantID)
	if err != nil {
		return svcerrors.DatabaseError("workflow.softDelete", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return svcerrors.NotFound("workflow", id)
	}
	return nil
}
