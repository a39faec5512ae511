package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/R3E-Network/service_layer/domain/builder"
	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
)

// SiteRepo persists Site rows. Every method is tenant-scoped except
// GetBySubdomain, the public resolver lookup.
type SiteRepo struct {
	db *DB
}

// NewSiteRepo constructs a SiteRepo.
func NewSiteRepo(db *DB) *SiteRepo { return &SiteRepo{db: db} }

type siteRow struct {
	ID              string         `db:"id"`
	TenantID        string         `db:"tenant_id"`
	Name            string         `db:"name"`
	Slug            string         `db:"slug"`
	Subdomain       string         `db:"subdomain"`
	Settings        []byte         `db:"settings"`
	ActiveVersionID sql.NullString `db:"active_version_id"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (row siteRow) toDomain() (*builder.Site, error) {
	var settings builder.SiteSettings
	if len(row.Settings) > 0 {
		if err := json.Unmarshal(row.Settings, &settings); err != nil {
			return nil, svcerrors.Internal("decode site settings", err)
		}
	}
	site := &builder.Site{
		ID:        row.ID,
		TenantID:  row.TenantID,
		Name:      row.Name,
		Slug:      row.Slug,
		Subdomain: row.Subdomain,
		Settings:  settings,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.ActiveVersionID.Valid {
		site.ActiveVersionID = &row.ActiveVersionID.String
	}
	return site, nil
}

// Create inserts a new Site. Returns CONFLICT if slug (within tenant) or
// subdomain (globally) is already taken.
func (r *SiteRepo) Create(ctx context.Context, site builder.Site) error {
	settings, err := json.Marshal(site.Settings)
	if err != nil {
		return svcerrors.Internal("encode site settings", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sites (id, tenant_id, name, slug, subdomain, settings, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now(), now())`,
		site.ID, site.TenantID, site.Name, site.Slug, site.Subdomain, settings)
	if isUniqueViolation(err) {
		return svcerrors.Conflict("site slug or subdomain already in use")
	}
	if err != nil {
		return svcerrors.DatabaseError("site.create", err)
	}
	return nil
}

// Get fetches a Site scoped to tenantID.
func (r *SiteRepo) Get(ctx context.Context, tenantID, id string) (*builder.Site, error) {
	var row siteRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, tenant_id, name, slug, subdomain, settings, active_version_id, created_at, updated_at
		 FROM sites WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NotFound("site", id)
	}
	if err != nil {
		return nil, svcerrors.DatabaseError("site.get", err)
	}
	return row.toDomain()
}

// GetBySubdomain resolves a Site by its globally-unique subdomain — the
// lookup the Site Resolver's cache sits in front of. Not tenant-scoped
// because the resolver serves public, unauthenticated traffic.
func (r *SiteRepo) GetBySubdomain(ctx context.Context, subdomain string) (*builder.Site, error) {
	var row siteRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, tenant_id, name, slug, subdomain, settings, active_version_id, created_at, updated_at
		 FROM sites WHERE subdomain = $1`, subdomain)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NotFound("site", subdomain)
	}
	if err != nil {
		return nil, svcerrors.DatabaseError("site.getBySubdomain", err)
	}
	return row.toDomain()
}

// List returns a tenant's sites, paginated.
func (r *SiteRepo) List(ctx context.Context, tenantID string, limit, offset int) ([]builder.Site, int, error) {
	var rows []siteRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, tenant_id, name, slug, subdomain, settings, active_version_id, created_at, updated_at
		 FROM sites WHERE tenant_id = $1 ORDER BY updated_at DESC LIMIT $2 OFFSET $3`,
		tenantID, limit, offset)
	if err != nil {
		return nil, 0, svcerrors.DatabaseError("site.list", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT count(*) FROM sites WHERE tenant_id = $1`, tenantID); err != nil {
		return nil, 0, svcerrors.DatabaseError("site.count", err)
	}

	out := make([]builder.Site, 0, len(rows))
	for _, row := range rows {
		site, err := row.toDomain()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *site)
	}
	return out, total, nil
}

// Update replaces a Site's mutable fields (name, settings).
func (r *SiteRepo) Update(ctx context.Context, tenantID, id, name string, settings builder.SiteSettings) error {
	encoded, err := json.Marshal(settings)
	if err != nil {
		return svcerrors.Internal("encode site settings", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE sites SET name = $3, settings = $4, updated_at = now() WHERE id = $1 AND tenant_id = $2`,
		id, tenantID, name, encoded)
	if err != nil {
		return svcerrors.DatabaseError("site.update", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return svcerrors.NotFound("site", id)
	}
	return nil
}

// SetActiveVersion atomically flips a Site's activeVersionId pointer. This
// is the linearization point publish/rollback depend on.
func (r *SiteRepo) SetActiveVersion(ctx context.Context, tenantID, siteID, versionID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sites SET active_version_id = $3, updated_at = now() WHERE id = $1 AND tenant_id = $2`,
		siteID, tenantID, versionID)
	if err != nil {
		return svcerrors.DatabaseError("site.setActiveVersion", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return svcerrors.NotFound("site", siteID)
	}
	return nil
}

// Delete removes a Site; cascades to pages/versions/jobs via FK constraints.
func (r *SiteRepo) Delete(ctx context.Context, tenantID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sites WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return svcerrors.DatabaseError("site.delete", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return svcerrors.NotFound("site", id)
	}
	return nil
}

// PageRepo persists Page rows belonging to a Site.
type PageRepo struct {
	db *DB
}

// NewPageRepo constructs a PageRepo.
func NewPageRepo(db *DB) *PageRepo { return &PageRepo{db: db} }

type pageRow struct {
	ID             string    `db:"id"`
	SiteID         string    `db:"site_id"`
	Path           string    `db:"path"`
	Title          string    `db:"title"`
	Content        []byte    `db:"content"`
	SEOTitle       string    `db:"seo_title"`
	SEODescription string    `db:"seo_description"`
	IsPublished    bool      `db:"is_published"`
	SortOrder      int       `db:"sort_order"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (row pageRow) toDomain() (*builder.Page, error) {
	var content builder.PageContent
	if len(row.Content) > 0 {
		if err := json.Unmarshal(row.Content, &content); err != nil {
			return nil, svcerrors.Internal("decode page content", err)
		}
	}
	return &builder.Page{
		ID:             row.ID,
		SiteID:         row.SiteID,
		Path:           row.Path,
		Title:          row.Title,
		Content:        content,
		SEOTitle:       row.SEOTitle,
		SEODescription: row.SEODescription,
		IsPublished:    row.IsPublished,
		SortOrder:      row.SortOrder,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}, nil
}

// Create inserts a new Page. Returns CONFLICT on a duplicate (siteId, path).
func (r *PageRepo) Create(ctx context.Context, page builder.Page) error {
	content, err := json.Marshal(page.Content)
	if err != nil {
		return svcerrors.Internal("encode page content", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO pages (id, site_id, path, title, content, seo_title, seo_description, is_published, sort_order, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())`,
		page.ID, page.SiteID, page.Path, page.Title, content, page.SEOTitle, page.SEODescription, page.IsPublished, page.SortOrder)
	if isUniqueViolation(err) {
		return svcerrors.Conflict("page path already exists for this site")
	}
	if err != nil {
		return svcerrors.DatabaseError("page.create", err)
	}
	return nil
}

// ListBySite returns every page of a site, ordered for rendering/build.
func (r *PageRepo) ListBySite(ctx context.Context, siteID string) ([]builder.Page, error) {
	var rows []pageRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, site_id, path, title, content, seo_title, seo_description, is_published, sort_order, created_at, updated_at
		 FROM pages WHERE site_id = $1 ORDER BY sort_order, path`, siteID)
	if err != nil {
		return nil, svcerrors.DatabaseError("page.listBySite", err)
	}
	out := make([]builder.Page, 0, len(rows))
	for _, row := range rows {
		page, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *page)
	}
	return out, nil
}

// Get fetches a single Page.
func (r *PageRepo) Get(ctx context.Context, siteID, id string) (*builder.Page, error) {
	var row pageRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, site_id, path, title, content, seo_title, seo_description, is_published, sort_order, created_at, updated_at
		 FROM pages WHERE id = $1 AND site_id = $2`, id, siteID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NotFound("page", id)
	}
	if err != nil {
		return nil, svcerrors.DatabaseError("page.get", err)
	}
	return row.toDomain()
}

// Update replaces a Page's content and metadata.
func (r *PageRepo) Update(ctx context.Context, page builder.Page) error {
	content, err := json.Marshal(page.Content)
	if err != nil {
		return svcerrors.Internal("encode page content", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE pages SET title = $3, content = $4, seo_title = $5, seo_description = $6,
		        is_published = $7, sort_order = $8, updated_at = now()
		 WHERE id = $1 AND site_id = $2`,
		page.ID, page.SiteID, page.Title, content, page.SEOTitle, page.SEODescription, page.IsPublished, page.SortOrder)
	if err != nil {
		return svcerrors.DatabaseError("page.update", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return svcerrors.NotFound("page", page.ID)
	}
	return nil
}

// Delete removes a Page.
func (r *PageRepo) Delete(ctx context.Context, siteID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pages WHERE id = $1 AND site_id = $2`, id, siteID)
	if err != nil {
		return svcerrors.DatabaseError("page.delete", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return svcerrors.NotFound("page", id)
	}
	return nil
}
