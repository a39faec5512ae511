package postgres

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/service_layer/domain/workflow"
)

func newTestDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	rawDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = rawDB.Close() })
	return &DB{DB: sqlx.NewDb(rawDB, "postgres")}, mock
}

func TestWorkflowRepo_Create(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewWorkflowRepo(db)

	wf := workflow.Workflow{
		ID:       "wf-1",
		TenantID: "tenant-1",
		Name:     "onboarding",
		Version:  1,
		Definition: workflow.Definition{
			Entrypoint: "a",
			Nodes:      map[string]workflow.Node{"a": {ID: "a", Type: workflow.NodeTransform}},
		},
		IsActive: true,
	}

	mock.ExpectExec(`INSERT INTO workflows`).
		WithArgs(wf.ID, wf.TenantID, wf.Name, wf.Version, sqlmock.AnyArg(), wf.IsActive).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), wf); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWorkflowRepo_Get_NotFound(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewWorkflowRepo(db)

	mock.ExpectQuery(`SELECT .* FROM workflows WHERE id = \$1 AND tenant_id = \$2`).
		WithArgs("missing", "tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name", "version", "definition", "is_active", "created_at", "updated_at"}))

	_, err := repo.Get(context.Background(), "tenant-1", "missing")
	if err == nil {
		t.Fatal("Get() expected not-found error")
	}
}
