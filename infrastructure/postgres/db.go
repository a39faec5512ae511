// Package postgres is the relational system of record for both services:
// tenants, users, workflows, runs, steps, events, sites, pages, versions
// and build jobs. Tenant-owned lookups made on behalf of an API caller take a
// tenant ID and fold it into the WHERE clause. A few methods have no tenant
// predicate: the internal dispatch/worker paths (RunRepo.GetByID,
// RunRepo.FailWithSteps, SiteVersionRepo.GetByID, BuildJobRepo.ClaimNext),
// the public resolver lookup (SiteRepo.GetBySubdomain), and the Step, Event,
// Page and Tenant repositories, which key on a parent ID instead.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// DB wraps a sqlx connection pool and implements infrastructure/service's
// HealthChecker so it can be registered as a BaseService dependency.
type DB struct {
	*sqlx.DB
}

// Config holds pool-sizing options layered on top of the connection DSN.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Connect opens a pooled connection to Postgres via lib/pq, applying the
// pool-sizing defaults the workflow and builder services share.
func Connect(cfg Config) (*DB, error) {
	conn, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = 5
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime == 0 {
		lifetime = 5 * time.Minute
	}

	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxIdle)
	conn.SetConnMaxLifetime(lifetime)

	return &DB{DB: conn}, nil
}

// HealthCheck pings the pool with a bounded timeout.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}
