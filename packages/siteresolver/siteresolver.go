// Package siteresolver implements the serve-side half of the site build
// pipeline (§4.5): translate an incoming (subdomain, requestPath) into
// artifact bytes, fronted by a 30 s cache over the (artifactPrefix, version)
// triple so a request under load doesn't re-query Postgres on every hit.
//
// The cache is infrastructure/cache's existing TTLCache rather than a
// fresh map+mutex, since that's the one cache primitive already in the
// tree and its bounded-TTL-map shape is exactly what a 30 s resolver
// cache needs.
package siteresolver

import (
	"context"
	"mime"
	"path/filepath"
	"regexp"
	"time"

	"github.com/R3E-Network/service_layer/domain/builder"
	"github.com/R3E-Network/service_layer/infrastructure/cache"
	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/objectstore"
)

// CacheTTL is how long a resolved (artifactPrefix, version) pointer is
// cached per subdomain before being re-resolved from Postgres.
const CacheTTL = 30 * time.Second

// AssetCacheControl is the Cache-Control value for static asset responses.
const AssetCacheControl = "public, max-age=31536000, immutable"

// PageCacheControl is the Cache-Control value for page (and 404 fallback)
// responses.
const PageCacheControl = "public, max-age=60, s-maxage=300"

// assetPath matches a requestPath that names a file with an extension,
// per spec: `/.*\.\w+$`.
var assetPath = regexp.MustCompile(`\.\w+$`)

// SiteRepo is the slice of infrastructure/postgres.SiteRepo this package needs.
type SiteRepo interface {
	GetBySubdomain(ctx context.Context, subdomain string) (*builder.Site, error)
}

// SiteVersionRepo is the slice of infrastructure/postgres.SiteVersionRepo
// this package needs.
type SiteVersionRepo interface {
	Get(ctx context.Context, siteID, versionID string) (*builder.SiteVersion, error)
}

// ObjectStore is the slice of infrastructure/objectstore.Store this
// package needs.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// pointer is the cached (artifactPrefix, version) triple resolved for a
// subdomain.
type pointer struct {
	ArtifactPrefix string
	Version        int
}

// Result is a resolved artifact response.
type Result struct {
	Body         []byte
	ContentType  string
	Version      int
	CacheControl string
	// StatusCode is 200 for a direct hit and 404 when the 404.html
	// fallback is served. When the fallback is missing too, Resolve
	// returns a NOT_FOUND error instead of a Result.
	StatusCode int
}

// Resolver resolves (subdomain, requestPath) pairs into artifact bytes.
type Resolver struct {
	sites    SiteRepo
	versions SiteVersionRepo
	store    ObjectStore
	cache    *cache.TTLCache
}

// New constructs a Resolver with a fresh 30s-TTL pointer cache.
func New(sites SiteRepo, versions SiteVersionRepo, store ObjectStore) *Resolver {
	return &Resolver{
		sites:    sites,
		versions: versions,
		store:    store,
		cache:    cache.NewTTLCache(CacheTTL),
	}
}

// Invalidate evicts subdomain's cached pointer — called by the build
// pipeline immediately after a publish or rollback activates a new
// version, so the next request re-resolves rather than serving a stale
// pointer for up to CacheTTL.
func (r *Resolver) Invalidate(subdomain string) {
	r.cache.Delete(context.Background(), subdomain)
}

// Resolve translates (subdomain, requestPath) into a Result, following the
// static-asset vs. page classification and 404 fallback chain of §4.5.
func (r *Resolver) Resolve(ctx context.Context, subdomain, requestPath string) (*Result, error) {
	ptr, err := r.resolvePointer(ctx, subdomain)
	if err != nil {
		return nil, err
	}

	if assetPath.MatchString(requestPath) {
		key := objectstore.JoinKey(ptr.ArtifactPrefix, requestPath)
		body, err := r.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		return &Result{
			Body:         body,
			ContentType:  contentTypeFor(requestPath),
			Version:      ptr.Version,
			CacheControl: AssetCacheControl,
			StatusCode:   200,
		}, nil
	}

	pageKey := objectstore.JoinKey(ptr.ArtifactPrefix, builder.PagePathToFile(requestPath))
	body, err := r.store.Get(ctx, pageKey)
	if err == nil {
		return &Result{
			Body:         body,
			ContentType:  "text/html; charset=utf-8",
			Version:      ptr.Version,
			CacheControl: PageCacheControl,
			StatusCode:   200,
		}, nil
	}
	if !svcerrors.Is(err, svcerrors.CodeNotFound) {
		return nil, err
	}

	notFoundKey := objectstore.JoinKey(ptr.ArtifactPrefix, "404.html")
	body, ferr := r.store.Get(ctx, notFoundKey)
	if ferr != nil {
		return nil, svcerrors.NotFound("page", requestPath)
	}
	return &Result{
		Body:         body,
		ContentType:  "text/html; charset=utf-8",
		Version:      ptr.Version,
		CacheControl: PageCacheControl,
		StatusCode:   404,
	}, nil
}

func (r *Resolver) resolvePointer(ctx context.Context, subdomain string) (*pointer, error) {
	if cached, ok := r.cache.Get(ctx, subdomain); ok {
		return cached.(*pointer), nil
	}

	site, err := r.sites.GetBySubdomain(ctx, subdomain)
	if err != nil {
		return nil, err
	}
	if site.ActiveVersionID == nil {
		return nil, svcerrors.NotFound("site version", subdomain)
	}
	version, err := r.versions.Get(ctx, site.ID, *site.ActiveVersionID)
	if err != nil {
		return nil, err
	}

	ptr := &pointer{ArtifactPrefix: version.ArtifactPrefix, Version: version.Version}
	r.cache.Set(ctx, subdomain, ptr)
	return ptr, nil
}

func contentTypeFor(path string) string {
	ext := filepath.Ext(path)
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
