package siteresolver

import (
	"context"
	"testing"

	"github.com/R3E-Network/service_layer/domain/builder"
	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
)

type fakeSites struct {
	bySubdomain map[string]*builder.Site
	calls       int
}

func (f *fakeSites) GetBySubdomain(ctx context.Context, subdomain string) (*builder.Site, error) {
	f.calls++
	site, ok := f.bySubdomain[subdomain]
	if !ok {
		return nil, svcerrors.NotFound("site", subdomain)
	}
	return site, nil
}

type fakeVersions struct {
	byID map[string]*builder.SiteVersion
}

func (f *fakeVersions) Get(ctx context.Context, siteID, versionID string) (*builder.SiteVersion, error) {
	version, ok := f.byID[versionID]
	if !ok {
		return nil, svcerrors.NotFound("site version", versionID)
	}
	return version, nil
}

type fakeStore struct {
	objects map[string][]byte
}

func (f *fakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	body, ok := f.objects[key]
	if !ok {
		return nil, svcerrors.NotFound("artifact", key)
	}
	return body, nil
}

func newFixture() (*Resolver, *fakeSites, *fakeStore) {
	activeVersion := "ver-1"
	sites := &fakeSites{bySubdomain: map[string]*builder.Site{
		"acme": {ID: "site-1", Subdomain: "acme", ActiveVersionID: &activeVersion},
	}}
	versions := &fakeVersions{byID: map[string]*builder.SiteVersion{
		"ver-1": {ID: "ver-1", SiteID: "site-1", Version: 1, ArtifactPrefix: "sites/tenant-1/site-1/1"},
	}}
	store := &fakeStore{objects: map[string][]byte{
		"sites/tenant-1/site-1/1/index.html":       []byte("<html>home</html>"),
		"sites/tenant-1/site-1/1/about/index.html": []byte("<html>about</html>"),
		"sites/tenant-1/site-1/1/404.html":         []byte("<html>not found</html>"),
		"sites/tenant-1/site-1/1/css/site.css":     []byte("body{}"),
	}}
	return New(sites, versions, store), sites, store
}

func TestResolve_RootPage(t *testing.T) {
	r, _, _ := newFixture()
	result, err := r.Resolve(context.Background(), "acme", "/")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if string(result.Body) != "<html>home</html>" {
		t.Fatalf("Resolve() body = %q", result.Body)
	}
	if result.StatusCode != 200 || result.Version != 1 || result.CacheControl != PageCacheControl {
		t.Fatalf("Resolve() = %+v, want 200/v1/page cache-control", result)
	}
}

func TestResolve_NestedPage(t *testing.T) {
	r, _, _ := newFixture()
	result, err := r.Resolve(context.Background(), "acme", "/about")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if string(result.Body) != "<html>about</html>" {
		t.Fatalf("Resolve() body = %q", result.Body)
	}
}

func TestResolve_MissingPageFallsBackTo404(t *testing.T) {
	r, _, _ := newFixture()
	result, err := r.Resolve(context.Background(), "acme", "/missing")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.StatusCode != 404 {
		t.Fatalf("Resolve() status = %d, want 404", result.StatusCode)
	}
	if string(result.Body) != "<html>not found</html>" {
		t.Fatalf("Resolve() body = %q, want 404 fallback", result.Body)
	}
}

func TestResolve_Asset(t *testing.T) {
	r, _, _ := newFixture()
	result, err := r.Resolve(context.Background(), "acme", "/css/site.css")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.CacheControl != AssetCacheControl {
		t.Fatalf("Resolve() cache-control = %q, want asset cache-control", result.CacheControl)
	}
	if result.ContentType != "text/css; charset=utf-8" {
		t.Fatalf("Resolve() content-type = %q", result.ContentType)
	}
}

func TestResolve_MissingAssetIsNotFoundWithoutFallback(t *testing.T) {
	r, _, _ := newFixture()
	_, err := r.Resolve(context.Background(), "acme", "/missing.js")
	if !svcerrors.Is(err, svcerrors.CodeNotFound) {
		t.Fatalf("Resolve() error = %v, want NOT_FOUND", err)
	}
}

func TestResolve_UnknownSubdomain(t *testing.T) {
	r, _, _ := newFixture()
	_, err := r.Resolve(context.Background(), "ghost", "/")
	if !svcerrors.Is(err, svcerrors.CodeNotFound) {
		t.Fatalf("Resolve() error = %v, want NOT_FOUND", err)
	}
}

func TestResolve_PointerIsCachedAcrossRequests(t *testing.T) {
	r, sites, _ := newFixture()
	if _, err := r.Resolve(context.Background(), "acme", "/"); err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}
	if _, err := r.Resolve(context.Background(), "acme", "/about"); err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if sites.calls != 1 {
		t.Fatalf("GetBySubdomain called %d times, want 1 (cached)", sites.calls)
	}
}

func TestInvalidate_ForcesReResolve(t *testing.T) {
	r, sites, _ := newFixture()
	if _, err := r.Resolve(context.Background(), "acme", "/"); err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}
	r.Invalidate("acme")
	if _, err := r.Resolve(context.Background(), "acme", "/"); err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if sites.calls != 2 {
		t.Fatalf("GetBySubdomain called %d times after Invalidate, want 2", sites.calls)
	}
}
