package postgres

import (
	"context"
	"testing"
)

func TestDB_HealthCheck(t *testing.T) {
	db, mock := newTestDB(t)
	mock.ExpectPing()

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
