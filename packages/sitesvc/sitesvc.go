// Package sitesvc implements Site and Page CRUD (§4.1, §6): validation of
// the fields the database's own uniqueness constraints can't enforce
// (slug/subdomain shape, page path shape) in front of
// infrastructure/postgres's SiteRepo/PageRepo, which already reject
// duplicate (tenantId, slug), duplicate subdomain, and duplicate
// (siteId, path) with CONFLICT.
//
// Validate-then-delegate mirrors packages/auth.Service.Register's shape:
// reject obviously malformed input before touching the database, let the
// database's own constraints catch the rest.
package sitesvc

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/service_layer/domain/builder"
	"github.com/R3E-Network/service_layer/infrastructure/database"
	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
)

// slugPattern matches lowercase alphanumeric segments joined by single
// hyphens — the same shape a subdomain label must have per RFC 1035,
// reused here for both Site.Slug and Site.Subdomain.
var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// pagePathPattern matches "/" or a "/"-prefixed path of lowercase
// alphanumeric/hyphen segments, with no trailing slash.
var pagePathPattern = regexp.MustCompile(`^/([a-z0-9]+(-[a-z0-9]+)*)(/[a-z0-9]+(-[a-z0-9]+)*)*$`)

// SiteRepo is the slice of infrastructure/postgres.SiteRepo this package needs.
type SiteRepo interface {
	Create(ctx context.Context, site builder.Site) error
	Get(ctx context.Context, tenantID, id string) (*builder.Site, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]builder.Site, int, error)
	Update(ctx context.Context, tenantID, id, name string, settings builder.SiteSettings) error
	Delete(ctx context.Context, tenantID, id string) error
}

// PageRepo is the slice of infrastructure/postgres.PageRepo this package needs.
type PageRepo interface {
	Create(ctx context.Context, page builder.Page) error
	ListBySite(ctx context.Context, siteID string) ([]builder.Page, error)
	Get(ctx context.Context, siteID, id string) (*builder.Page, error)
	Update(ctx context.Context, page builder.Page) error
	Delete(ctx context.Context, siteID, id string) error
}

// Service validates and persists Sites and their Pages.
type Service struct {
	sites SiteRepo
	pages PageRepo
}

// New constructs a Service.
func New(sites SiteRepo, pages PageRepo) *Service {
	return &Service{sites: sites, pages: pages}
}

// CreateSite validates and inserts a new Site, owned by tenantID.
func (s *Service) CreateSite(ctx context.Context, tenantID, name, slug, subdomain string, settings builder.SiteSettings) (*builder.Site, error) {
	if strings.TrimSpace(name) == "" {
		return nil, svcerrors.Validation("name", "required")
	}
	if !slugPattern.MatchString(slug) {
		return nil, svcerrors.Validation("slug", "must be lowercase alphanumeric segments separated by hyphens")
	}
	if !slugPattern.MatchString(subdomain) {
		return nil, svcerrors.Validation("subdomain", "must be lowercase alphanumeric segments separated by hyphens")
	}

	now := time.Now()
	site := builder.Site{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      name,
		Slug:      slug,
		Subdomain: subdomain,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sites.Create(ctx, site); err != nil {
		return nil, err
	}
	return &site, nil
}

// GetSite fetches a Site scoped to tenantID.
func (s *Service) GetSite(ctx context.Context, tenantID, id string) (*builder.Site, error) {
	return s.sites.Get(ctx, tenantID, id)
}

// ListSites returns a tenant's sites, paginated.
func (s *Service) ListSites(ctx context.Context, tenantID string, limit, offset int) ([]builder.Site, int, error) {
	limit = database.ValidateLimit(limit, 20, 200)
	offset = database.ValidateOffset(offset)
	return s.sites.List(ctx, tenantID, limit, offset)
}

// UpdateSite replaces a Site's name and settings. Slug and subdomain are
// immutable after creation since other systems (artifact prefixes, DNS)
// key off them.
func (s *Service) UpdateSite(ctx context.Context, tenantID, id, name string, settings builder.SiteSettings) (*builder.Site, error) {
	if strings.TrimSpace(name) == "" {
		return nil, svcerrors.Validation("name", "required")
	}
	if err := s.sites.Update(ctx, tenantID, id, name, settings); err != nil {
		return nil, err
	}
	return s.sites.Get(ctx, tenantID, id)
}

// DeleteSite removes a Site; the database cascades to its pages, versions
// and build jobs.
func (s *Service) DeleteSite(ctx context.Context, tenantID, id string) error {
	return s.sites.Delete(ctx, tenantID, id)
}

// CreatePage validates and inserts a new Page under siteID.
func (s *Service) CreatePage(ctx context.Context, siteID, path, title string, content builder.PageContent, seoTitle, seoDescription string, isPublished bool, sortOrder int) (*builder.Page, error) {
	if !pagePathPattern.MatchString(path) {
		return nil, svcerrors.Validation("path", "must be \"/\" or a \"/\"-prefixed lowercase slug path with no trailing slash")
	}
	if strings.TrimSpace(title) == "" {
		return nil, svcerrors.Validation("title", "required")
	}

	now := time.Now()
	page := builder.Page{
		ID:             uuid.NewString(),
		SiteID:         siteID,
		Path:           path,
		Title:          title,
		Content:        content,
		SEOTitle:       seoTitle,
		SEODescription: seoDescription,
		IsPublished:    isPublished,
		SortOrder:      sortOrder,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.pages.Create(ctx, page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListPages returns every page of a site, in render/build order.
func (s *Service) ListPages(ctx context.Context, siteID string) ([]builder.Page, error) {
	return s.pages.ListBySite(ctx, siteID)
}

// GetPage fetches a single Page.
func (s *Service) GetPage(ctx context.Context, siteID, id string) (*builder.Page, error) {
	return s.pages.Get(ctx, siteID, id)
}

// UpdatePage replaces a Page's content and metadata. The path may not
// change; moving a page is a delete-and-recreate.
func (s *Service) UpdatePage(ctx context.Context, siteID, id, title string, content builder.PageContent, seoTitle, seoDescription string, isPublished bool, sortOrder int) (*builder.Page, error) {
	if strings.TrimSpace(title) == "" {
		return nil, svcerrors.Validation("title", "required")
	}
	existing, err := s.pages.Get(ctx, siteID, id)
	if err != nil {
		return nil, err
	}

	page := builder.Page{
		ID:             id,
		SiteID:         siteID,
		Path:           existing.Path,
		Title:          title,
		Content:        content,
		SEOTitle:       seoTitle,
		SEODescription: seoDescription,
		IsPublished:    isPublished,
		SortOrder:      sortOrder,
	}
	if err := s.pages.Update(ctx, page); err != nil {
		return nil, err
	}
	return s.pages.Get(ctx, siteID, id)
}

// DeletePage removes a Page.
func (s *Service) DeletePage(ctx context.Context, siteID, id string) error {
	return s.pages.Delete(ctx, siteID, id)
}
