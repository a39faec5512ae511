package sitesvc

import (
	"context"
	"testing"

	"github.com/R3E-Network/service_layer/domain/builder"
	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
)

type fakeSiteRepo struct {
	sites map[string]builder.Site

	lastLimit, lastOffset int
}

func newFakeSiteRepo() *fakeSiteRepo { return &fakeSiteRepo{sites: map[string]builder.Site{}} }

func (f *fakeSiteRepo) Create(ctx context.Context, site builder.Site) error {
	for _, existing := range f.sites {
		if existing.TenantID == site.TenantID && existing.Slug == site.Slug {
			return svcerrors.Conflict("site slug already in use")
		}
		if existing.Subdomain == site.Subdomain {
			return svcerrors.Conflict("subdomain already in use")
		}
	}
	f.sites[site.ID] = site
	return nil
}

func (f *fakeSiteRepo) Get(ctx context.Context, tenantID, id string) (*builder.Site, error) {
	site, ok := f.sites[id]
	if !ok || site.TenantID != tenantID {
		return nil, svcerrors.NotFound("site", id)
	}
	return &site, nil
}

func (f *fakeSiteRepo) List(ctx context.Context, tenantID string, limit, offset int) ([]builder.Site, int, error) {
	f.lastLimit, f.lastOffset = limit, offset
	var out []builder.Site
	for _, site := range f.sites {
		if site.TenantID == tenantID {
			out = append(out, site)
		}
	}
	return out, len(out), nil
}

func (f *fakeSiteRepo) Update(ctx context.Context, tenantID, id, name string, settings builder.SiteSettings) error {
	site, ok := f.sites[id]
	if !ok || site.TenantID != tenantID {
		return svcerrors.NotFound("site", id)
	}
	site.Name = name
	site.Settings = settings
	f.sites[id] = site
	return nil
}

func (f *fakeSiteRepo) Delete(ctx context.Context, tenantID, id string) error {
	site, ok := f.sites[id]
	if !ok || site.TenantID != tenantID {
		return svcerrors.NotFound("site", id)
	}
	delete(f.sites, id)
	return nil
}

type fakePageRepo struct {
	pages map[string]builder.Page
}

func newFakePageRepo() *fakePageRepo { return &fakePageRepo{pages: map[string]builder.Page{}} }

func (f *fakePageRepo) Create(ctx context.Context, page builder.Page) error {
	for _, existing := range f.pages {
		if existing.SiteID == page.SiteID && existing.Path == page.Path {
			return svcerrors.Conflict("page path already exists for this site")
		}
	}
	f.pages[page.ID] = page
	return nil
}

func (f *fakePageRepo) ListBySite(ctx context.Context, siteID string) ([]builder.Page, error) {
	var out []builder.Page
	for _, page := range f.pages {
		if page.SiteID == siteID {
			out = append(out, page)
		}
	}
	return out, nil
}

func (f *fakePageRepo) Get(ctx context.Context, siteID, id string) (*builder.Page, error) {
	page, ok := f.pages[id]
	if !ok || page.SiteID != siteID {
		return nil, svcerrors.NotFound("page", id)
	}
	return &page, nil
}

func (f *fakePageRepo) Update(ctx context.Context, page builder.Page) error {
	existing, ok := f.pages[page.ID]
	if !ok || existing.SiteID != page.SiteID {
		return svcerrors.NotFound("page", page.ID)
	}
	f.pages[page.ID] = page
	return nil
}

func (f *fakePageRepo) Delete(ctx context.Context, siteID, id string) error {
	page, ok := f.pages[id]
	if !ok || page.SiteID != siteID {
		return svcerrors.NotFound("page", id)
	}
	delete(f.pages, id)
	return nil
}

func TestCreateSite_ValidatesSlugShape(t *testing.T) {
	svc := New(newFakeSiteRepo(), newFakePageRepo())
	cases := []string{"", "UPPER", "has_underscore", "-leading-hyphen", "trailing-hyphen-", "double--hyphen"}
	for _, slug := range cases {
		if _, err := svc.CreateSite(context.Background(), "tenant-1", "My Site", slug, "myslug", builder.SiteSettings{}); err == nil {
			t.Errorf("CreateSite(slug=%q) expected validation error", slug)
		}
	}
}

func TestCreateSite_ValidatesSubdomainShape(t *testing.T) {
	svc := New(newFakeSiteRepo(), newFakePageRepo())
	if _, err := svc.CreateSite(context.Background(), "tenant-1", "My Site", "my-site", "Not Valid", builder.SiteSettings{}); err == nil {
		t.Fatal("CreateSite() expected subdomain validation error")
	}
}

func TestCreateSite_RequiresName(t *testing.T) {
	svc := New(newFakeSiteRepo(), newFakePageRepo())
	if _, err := svc.CreateSite(context.Background(), "tenant-1", "  ", "my-site", "my-site", builder.SiteSettings{}); err == nil {
		t.Fatal("CreateSite() expected name validation error")
	}
}

func TestCreateSite_Succeeds(t *testing.T) {
	svc := New(newFakeSiteRepo(), newFakePageRepo())
	site, err := svc.CreateSite(context.Background(), "tenant-1", "My Site", "my-site", "my-site", builder.SiteSettings{})
	if err != nil {
		t.Fatalf("CreateSite() error = %v", err)
	}
	if site.ID == "" {
		t.Fatal("CreateSite() did not assign an ID")
	}

	got, err := svc.GetSite(context.Background(), "tenant-1", site.ID)
	if err != nil {
		t.Fatalf("GetSite() error = %v", err)
	}
	if got.Slug != "my-site" {
		t.Fatalf("GetSite() slug = %q, want my-site", got.Slug)
	}
}

func TestCreateSite_DuplicateSubdomainConflicts(t *testing.T) {
	sites := newFakeSiteRepo()
	svc := New(sites, newFakePageRepo())
	ctx := context.Background()
	if _, err := svc.CreateSite(ctx, "tenant-1", "First", "first", "shared", builder.SiteSettings{}); err != nil {
		t.Fatalf("first CreateSite() error = %v", err)
	}
	_, err := svc.CreateSite(ctx, "tenant-2", "Second", "second", "shared", builder.SiteSettings{})
	if !svcerrors.Is(err, svcerrors.CodeConflict) {
		t.Fatalf("CreateSite() error = %v, want CONFLICT", err)
	}
}

func TestUpdateSite_RequiresName(t *testing.T) {
	sites := newFakeSiteRepo()
	svc := New(sites, newFakePageRepo())
	site, _ := svc.CreateSite(context.Background(), "tenant-1", "My Site", "my-site", "my-site", builder.SiteSettings{})
	if _, err := svc.UpdateSite(context.Background(), "tenant-1", site.ID, "", builder.SiteSettings{}); err == nil {
		t.Fatal("UpdateSite() expected name validation error")
	}
}

func TestDeleteSite_NotFoundForWrongTenant(t *testing.T) {
	sites := newFakeSiteRepo()
	svc := New(sites, newFakePageRepo())
	site, _ := svc.CreateSite(context.Background(), "tenant-1", "My Site", "my-site", "my-site", builder.SiteSettings{})
	if err := svc.DeleteSite(context.Background(), "tenant-2", site.ID); !svcerrors.Is(err, svcerrors.CodeNotFound) {
		t.Fatalf("DeleteSite() error = %v, want NOT_FOUND", err)
	}
}

func TestListSites_ClampsLimitAndOffset(t *testing.T) {
	sites := newFakeSiteRepo()
	svc := New(sites, newFakePageRepo())

	if _, _, err := svc.ListSites(context.Background(), "tenant-1", 0, -1); err != nil {
		t.Fatalf("ListSites() error = %v", err)
	}
	if sites.lastLimit != 20 || sites.lastOffset != 0 {
		t.Fatalf("ListSites() passed limit=%d offset=%d, want limit=20 offset=0", sites.lastLimit, sites.lastOffset)
	}

	if _, _, err := svc.ListSites(context.Background(), "tenant-1", 100000, 5); err != nil {
		t.Fatalf("ListSites() error = %v", err)
	}
	if sites.lastLimit != 200 {
		t.Fatalf("ListSites() passed limit=%d, want it capped at 200", sites.lastLimit)
	}
}

func TestCreatePage_ValidatesPathShape(t *testing.T) {
	svc := New(newFakeSiteRepo(), newFakePageRepo())
	cases := []string{"", "no-leading-slash", "/trailing-slash/", "/Has/Upper", "/double//slash"}
	for _, path := range cases {
		if _, err := svc.CreatePage(context.Background(), "site-1", path, "Title", builder.PageContent{}, "", "", false, 0); err == nil {
			t.Errorf("CreatePage(path=%q) expected validation error", path)
		}
	}
}

func TestCreatePage_RootAndNestedPathsAccepted(t *testing.T) {
	svc := New(newFakeSiteRepo(), newFakePageRepo())
	for _, path := range []string{"/", "/about", "/blog/my-first-post"} {
		if _, err := svc.CreatePage(context.Background(), "site-1", path, "Title", builder.PageContent{}, "", "", false, 0); err != nil {
			t.Errorf("CreatePage(path=%q) error = %v", path, err)
		}
	}
}

func TestCreatePage_DuplicatePathConflicts(t *testing.T) {
	svc := New(newFakeSiteRepo(), newFakePageRepo())
	ctx := context.Background()
	if _, err := svc.CreatePage(ctx, "site-1", "/about", "About", builder.PageContent{}, "", "", false, 0); err != nil {
		t.Fatalf("first CreatePage() error = %v", err)
	}
	_, err := svc.CreatePage(ctx, "site-1", "/about", "About Again", builder.PageContent{}, "", "", false, 0)
	if !svcerrors.Is(err, svcerrors.CodeConflict) {
		t.Fatalf("CreatePage() error = %v, want CONFLICT", err)
	}
}

func TestUpdatePage_PathIsImmutable(t *testing.T) {
	svc := New(newFakeSiteRepo(), newFakePageRepo())
	ctx := context.Background()
	page, err := svc.CreatePage(ctx, "site-1", "/about", "About", builder.PageContent{}, "", "", false, 0)
	if err != nil {
		t.Fatalf("CreatePage() error = %v", err)
	}

	updated, err := svc.UpdatePage(ctx, "site-1", page.ID, "About Us", builder.PageContent{}, "seo", "desc", true, 1)
	if err != nil {
		t.Fatalf("UpdatePage() error = %v", err)
	}
	if updated.Path != "/about" {
		t.Fatalf("UpdatePage() path = %q, want unchanged /about", updated.Path)
	}
	if !updated.IsPublished || updated.Title != "About Us" {
		t.Fatalf("UpdatePage() did not apply mutable fields: %+v", updated)
	}
}

func TestDeletePage_NotFoundForWrongSite(t *testing.T) {
	svc := New(newFakeSiteRepo(), newFakePageRepo())
	page, _ := svc.CreatePage(context.Background(), "site-1", "/about", "About", builder.PageContent{}, "", "", false, 0)
	if err := svc.DeletePage(context.Background(), "site-2", page.ID); !svcerrors.Is(err, svcerrors.CodeNotFound) {
		t.Fatalf("DeletePage() error = %v, want NOT_FOUND", err)
	}
}
