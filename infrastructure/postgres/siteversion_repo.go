package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/R3E-Network/service_layer/domain/builder"
	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
)

// SiteVersionRepo persists SiteVersion rows — immutable except for status.
type SiteVersionRepo struct {
	db *DB
}

// NewSiteVersionRepo constructs a SiteVersionRepo.
func NewSiteVersionRepo(db *DB) *SiteVersionRepo { return &SiteVersionRepo{db: db} }

// CreateNext inserts a new SiteVersion at siteID's next monotonic version
// number, in BUILDING status, within a transaction that also reserves the
// version number so concurrent publishes can't collide.
func (r *SiteVersionRepo) CreateNext(ctx context.Context, id, tenantID, siteID string) (*builder.SiteVersion, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, svcerrors.DatabaseError("siteversion.createNext.begin", err)
	}
	defer tx.Rollback()

	// Postgres rejects FOR UPDATE on an aggregate, so the site row is the lock.
	if _, err := tx.ExecContext(ctx,
		`SELECT id FROM sites WHERE id = $1 FOR UPDATE`, siteID); err != nil {
		return nil, svcerrors.DatabaseError("siteversion.createNext.lock", err)
	}

	var lastVersion int
	err = tx.GetContext(ctx, &lastVersion,
		`SELECT coalesce(max(version), 0) FROM site_versions WHERE site_id = $1`, siteID)
	if err != nil {
		return nil, svcerrors.DatabaseError("siteversion.createNext.max", err)
	}

	version := lastVersion + 1
	prefix := builder.ArtifactPrefix(tenantID, siteID, version)

	var row builder.SiteVersion
	err = tx.GetContext(ctx, &row,
		`INSERT INTO site_versions (id, site_id, version, artifact_prefix, status, created_at)
		 VALUES ($1, $2, $3, $4, 'BUILDING', now())
		 RETURNING id, site_id, version, artifact_prefix, status, page_count, asset_size,
		           manifest_hash, build_duration_ms, published_at, created_at`,
		id, siteID, version, prefix)
	if err != nil {
		return nil, svcerrors.DatabaseError("siteversion.createNext.insert", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, svcerrors.DatabaseError("siteversion.createNext.commit", err)
	}
	return &row, nil
}

// GetByID fetches a SiteVersion by its primary key alone, for callers that
// only hold a site_version_id — the build worker's claimed BuildJob rows,
// which don't carry their site's ID.
func (r *SiteVersionRepo) GetByID(ctx context.Context, id string) (*builder.SiteVersion, error) {
	var row builder.SiteVersion
	err := r.db.GetContext(ctx, &row,
		`SELECT id, site_id, version, artifact_prefix, status, page_count, asset_size,
		        manifest_hash, build_duration_ms, published_at, created_at
		 FROM site_versions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NotFound("site version", id)
	}
	if err != nil {
		return nil, svcerrors.DatabaseError("siteversion.getByID", err)
	}
	return &row, nil
}

// Get fetches a SiteVersion by ID.
func (r *SiteVersionRepo) Get(ctx context.Context, siteID, id string) (*builder.SiteVersion, error) {
	var row builder.SiteVersion
	err := r.db.GetContext(ctx, &row,
		`SELECT id, site_id, version, artifact_prefix, status, page_count, asset_size,
		        manifest_hash, build_duration_ms, published_at, created_at
		 FROM site_versions WHERE id = $1 AND site_id = $2`, id, siteID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NotFound("site version", id)
	}
	if err != nil {
		return nil, svcerrors.DatabaseError("siteversion.get", err)
	}
	return &row, nil
}

// ListBySite returns a site's versions newest-first, paginated.
func (r *SiteVersionRepo) ListBySite(ctx context.Context, siteID string, limit, offset int) ([]builder.SiteVersion, int, error) {
	var rows []builder.SiteVersion
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, site_id, version, artifact_prefix, status, page_count, asset_size,
		        manifest_hash, build_duration_ms, published_at, created_at
		 FROM site_versions WHERE site_id = $1 ORDER BY version DESC LIMIT $2 OFFSET $3`,
		siteID, limit, offset)
	if err != nil {
		return nil, 0, svcerrors.DatabaseError("siteversion.listBySite", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT count(*) FROM site_versions WHERE site_id = $1`, siteID); err != nil {
		return nil, 0, svcerrors.DatabaseError("siteversion.count", err)
	}
	return rows, total, nil
}

// MarkReady transitions a SiteVersion from BUILDING to READY, recording the
// build's page/asset totals, manifest hash and duration.
func (r *SiteVersionRepo) MarkReady(ctx context.Context, id string, pageCount int, assetSize int64, manifestHash string, buildDurationMs int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE site_versions SET status = 'READY', page_count = $2, asset_size = $3,
		        manifest_hash = $4, build_duration_ms = $5
		 WHERE id = $1 AND status = 'BUILDING'`,
		id, pageCount, assetSize, manifestHash, buildDurationMs)
	if err != nil {
		return svcerrors.DatabaseError("siteversion.markReady", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return svcerrors.Conflict("site version is not in BUILDING status")
	}
	return nil
}

// MarkFailed transitions a SiteVersion from BUILDING to FAILED.
func (r *SiteVersionRepo) MarkFailed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE site_versions SET status = 'FAILED' WHERE id = $1 AND status = 'BUILDING'`, id)
	if err != nil {
		return svcerrors.DatabaseError("siteversion.markFailed", err)
	}
	return nil
}

// ActivatePublish marks versionID READY-and-published and the site's prior
// active version SUPERSEDED, flipping the site's activeVersionId pointer —
// all in one transaction, the linearization point publish/rollback share.
func (r *SiteVersionRepo) ActivatePublish(ctx context.Context, tenantID, siteID, versionID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return svcerrors.DatabaseError("siteversion.activate.begin", err)
	}
	defer tx.Rollback()

	var previous sql.NullString
	if err := tx.GetContext(ctx, &previous,
		`SELECT active_version_id FROM sites WHERE id = $1 AND tenant_id = $2 FOR UPDATE`, siteID, tenantID); err != nil {
		return svcerrors.DatabaseError("siteversion.activate.lockSite", err)
	}

	if previous.Valid {
		if _, err := tx.ExecContext(ctx,
			`UPDATE site_versions SET status = 'SUPERSEDED' WHERE id = $1`, previous.String); err != nil {
			return svcerrors.DatabaseError("siteversion.activate.supersede", err)
		}
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE site_versions SET status = 'READY', published_at = $2 WHERE id = $1`, versionID, now); err != nil {
		return svcerrors.DatabaseError("siteversion.activate.markReady", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sites SET active_version_id = $2, updated_at = now() WHERE id = $1`, siteID, versionID); err != nil {
		return svcerrors.DatabaseError("siteversion.activate.pointer", err)
	}

	if err := tx.Commit(); err != nil {
		return svcerrors.DatabaseError("siteversion.activate.commit", err)
	}
	return nil
}

// BuildJobRepo persists BuildJob rows.
type BuildJobRepo struct {
	db *DB
}

// NewBuildJobRepo constructs a BuildJobRepo.
func NewBuildJobRepo(db *DB) *BuildJobRepo { return &BuildJobRepo{db: db} }

// Create inserts a new BuildJob in QUEUED status, paired with its SiteVersion.
func (r *BuildJobRepo) Create(ctx context.Context, job builder.BuildJob) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO build_jobs (id, site_version_id, tenant_id, status, retry_count)
		 VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.SiteVersionID, job.TenantID, job.Status, job.RetryCount)
	if err != nil {
		return svcerrors.DatabaseError("buildjob.create", err)
	}
	return nil
}

// Get fetches a BuildJob by ID.
func (r *BuildJobRepo) Get(ctx context.Context, tenantID, id string) (*builder.BuildJob, error) {
	var row builder.BuildJob
	err := r.db.GetContext(ctx, &row,
		`SELECT id, site_version_id, tenant_id, status, retry_count, worker_id, error, started_at, completed_at
		 FROM build_jobs WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NotFound("build job", id)
	}
	if err != nil {
		return nil, svcerrors.DatabaseError("buildjob.get", err)
	}
	return &row, nil
}

// ClaimNext atomically claims the QUEUED job with the lowest id for workerID,
// moving it to PROCESSING. Job ids are random UUIDs, so claim order is not
// creation order. Only one job per SiteVersion may be PROCESSING at a time,
// enforced by the unique partial index on (site_version_id) WHERE status =
// 'PROCESSING' declared in the migration.
func (r *BuildJobRepo) ClaimNext(ctx context.Context, workerID string) (*builder.BuildJob, error) {
	var row builder.BuildJob
	err := r.db.GetContext(ctx, &row,
		`UPDATE build_jobs SET status = 'PROCESSING', worker_id = $1, started_at = now()
		 WHERE id = (
		     SELECT id FROM build_jobs WHERE status = 'QUEUED' ORDER BY id FOR UPDATE SKIP LOCKED LIMIT 1
		 )
		 RETURNING id, site_version_id, tenant_id, status, retry_count, worker_id, error, started_at, completed_at`,
		workerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NotFound("build job", "")
	}
	if err != nil {
		return nil, svcerrors.DatabaseError("buildjob.claimNext", err)
	}
	return &row, nil
}

// Complete marks a BuildJob COMPLETED.
func (r *BuildJobRepo) Complete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE build_jobs SET status = 'COMPLETED', completed_at = now() WHERE id = $1`, id)
	if err != nil {
		return svcerrors.DatabaseError("buildjob.complete", err)
	}
	return nil
}

// Fail marks a BuildJob FAILED and records the error and retry counter.
func (r *BuildJobRepo) Fail(ctx context.Context, id, reason string, retryCount int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE build_jobs SET status = 'FAILED', error = $2, retry_count = $3, completed_at = now() WHERE id = $1`,
		id, reason, retryCount)
	if err != nil {
		return svcerrors.DatabaseError("buildjob.fail", err)
	}
	return nil
}
