// Package buildengine implements the site build pipeline's three
// operations (§4.4): Publish reserves the next SiteVersion and creates its
// BuildJob; ExecuteBuild — invoked by packages/buildworker after it claims
// a queued BuildJob, never by an HTTP handler directly — renders every
// published Page, uploads the artifacts, and atomically activates the
// version, retrying internally up to MaxBuildRetries times, re-reading the
// page set on every attempt so a page edited mid-retry is reflected in the
// next attempt rather than a stale snapshot; Rollback reactivates an
// earlier version by the same activation path a successful build ends in.
//
// Struct/constructor shape (a Deps struct plus New(deps)) mirrors
// packages/workflow.Engine, since both engines sit at the same layer:
// orchestration atop already-transactional postgres repositories, with no
// DAG/render logic duplicated inside the repositories themselves. Build
// job dispatch itself rides BuildJobRepo's own ClaimNext/Complete/Fail —
// grounded on the teacher's automation.Scheduler tick-and-claim loop — so,
// unlike the workflow engine's step jobs, no separate Redis queue is
// needed for builds.
package buildengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/service_layer/domain/builder"
	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/objectstore"
	"github.com/R3E-Network/service_layer/infrastructure/postgres"
	"github.com/R3E-Network/service_layer/infrastructure/resilience"
	"github.com/R3E-Network/service_layer/packages/htmlrenderer"
)

// RetryBaseDelay is the base of the exponential backoff between build
// attempts within a single ExecuteBuild call.
const RetryBaseDelay = 2 * time.Second

// CacheInvalidator is the slice of packages/siteresolver.Resolver this
// package needs: evicting a subdomain's cached artifact pointer the
// instant a new version activates, so the resolver's 30s cache never
// serves a superseded version past the activation that just happened.
type CacheInvalidator interface {
	Invalidate(subdomain string)
}

// Engine owns the publish/build/rollback pipeline. The zero value is not
// usable; construct with New.
type Engine struct {
	sites       *postgres.SiteRepo
	pages       *postgres.PageRepo
	versions    *postgres.SiteVersionRepo
	jobs        *postgres.BuildJobRepo
	store       *objectstore.Store
	renderer    *htmlrenderer.Renderer
	invalidator CacheInvalidator
}

// Deps collects Engine's constructor dependencies. Invalidator is
// optional — a nil value simply skips cache invalidation, useful for
// tests that exercise the pipeline without a resolver.
type Deps struct {
	Sites       *postgres.SiteRepo
	Pages       *postgres.PageRepo
	Versions    *postgres.SiteVersionRepo
	Jobs        *postgres.BuildJobRepo
	Store       *objectstore.Store
	Renderer    *htmlrenderer.Renderer
	Invalidator CacheInvalidator
}

// New constructs an Engine.
func New(deps Deps) *Engine {
	return &Engine{
		sites:       deps.Sites,
		pages:       deps.Pages,
		versions:    deps.Versions,
		jobs:        deps.Jobs,
		store:       deps.Store,
		renderer:    deps.Renderer,
		invalidator: deps.Invalidator,
	}
}

func (e *Engine) invalidateCache(subdomain string) {
	if e.invalidator != nil {
		e.invalidator.Invalidate(subdomain)
	}
}

// Publish reserves the Site's next SiteVersion in BUILDING status and
// creates its BuildJob in QUEUED status. It never blocks on the build
// itself — packages/buildworker claims and runs the job asynchronously.
func (e *Engine) Publish(ctx context.Context, tenantID, siteID string) (*builder.SiteVersion, error) {
	site, err := e.sites.Get(ctx, tenantID, siteID)
	if err != nil {
		return nil, err
	}

	pages, err := e.pages.ListBySite(ctx, site.ID)
	if err != nil {
		return nil, err
	}
	if !hasPublishedPage(pages) {
		return nil, svcerrors.Validation("pages", "site has no published pages to publish")
	}

	version, err := e.versions.CreateNext(ctx, uuid.NewString(), tenantID, site.ID)
	if err != nil {
		return nil, err
	}

	job := builder.BuildJob{
		ID:            uuid.NewString(),
		SiteVersionID: version.ID,
		TenantID:      tenantID,
		Status:        builder.BuildQueued,
	}
	if err := e.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	return version, nil
}

func hasPublishedPage(pages []builder.Page) bool {
	for _, p := range pages {
		if p.IsPublished {
			return true
		}
	}
	return false
}

// ClaimNext claims the queued BuildJob with the lowest id for workerID, for
// packages/buildworker's poll loop.
func (e *Engine) ClaimNext(ctx context.Context, workerID string) (*builder.BuildJob, error) {
	return e.jobs.ClaimNext(ctx, workerID)
}

// ExecuteBuild runs job — already claimed via ClaimNext — to completion,
// retrying the render-and-upload attempt up to builder.MaxBuildRetries
// times before giving up. Only the final outcome (COMPLETED or FAILED) is
// recorded against the BuildJob row, and a failed build marks its
// SiteVersion FAILED. If ctx is cancelled, ExecuteBuild returns ctx.Err()
// without recording either, leaving the SiteVersion BUILDING and the job
// PROCESSING.
func (e *Engine) ExecuteBuild(ctx context.Context, job builder.BuildJob) error {
	var lastErr error
	retryErr := resilience.Retry(ctx, resilience.RetryConfig{
		MaxAttempts:  builder.MaxBuildRetries + 1,
		InitialDelay: RetryBaseDelay,
		MaxDelay:     RetryBaseDelay * time.Duration(1<<uint(builder.MaxBuildRetries-1)),
		Multiplier:   2.0,
	}, func() error {
		lastErr = e.buildOnce(ctx, job)
		return lastErr
	})
	if retryErr == nil {
		return e.jobs.Complete(ctx, job.ID)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	_ = e.versions.MarkFailed(ctx, job.SiteVersionID)
	_ = e.jobs.Fail(ctx, job.ID, lastErr.Error(), builder.MaxBuildRetries)
	return lastErr
}

// buildOnce is a single build attempt: re-read the version, site and
// current page set, render and upload every published page plus the
// 404 fallback, compose and upload the manifest, then activate the
// version. Re-reading the page set on every attempt (rather than reusing
// data captured at Publish or at the first attempt) means a page edited
// between retries is reflected in the next attempt.
func (e *Engine) buildOnce(ctx context.Context, job builder.BuildJob) error {
	started := time.Now()

	version, err := e.versions.GetByID(ctx, job.SiteVersionID)
	if err != nil {
		return err
	}
	site, err := e.sites.Get(ctx, job.TenantID, version.SiteID)
	if err != nil {
		return err
	}
	pages, err := e.pages.ListBySite(ctx, version.SiteID)
	if err != nil {
		return err
	}

	manifest := builder.Manifest{
		Version:  version.Version,
		SiteID:   site.ID,
		TenantID: job.TenantID,
		Assets:   []string{},
	}

	for _, page := range pages {
		if !page.IsPublished {
			continue
		}
		html, err := e.renderer.Render(page, *site, site.Settings)
		if err != nil {
			return err
		}
		hash := sha256.Sum256([]byte(html))
		hashHex := hex.EncodeToString(hash[:])
		key := objectstore.JoinKey(version.ArtifactPrefix, builder.PagePathToFile(page.Path))
		if err := e.store.Put(ctx, key, []byte(html), "text/html; charset=utf-8"); err != nil {
			return err
		}
		manifest.Pages = append(manifest.Pages, builder.ManifestPage{
			Path:        page.Path,
			ArtifactKey: key,
			Title:       page.Title,
			Hash:        hashHex,
			Size:        len(html),
		})
		manifest.TotalSize += int64(len(html))
	}

	notFoundHTML, err := e.renderer.Render404(*site, site.Settings)
	if err != nil {
		return err
	}
	notFoundKey := objectstore.JoinKey(version.ArtifactPrefix, "404.html")
	if err := e.store.Put(ctx, notFoundKey, []byte(notFoundHTML), "text/html; charset=utf-8"); err != nil {
		return err
	}

	manifest.GeneratedAt = started.UTC()
	manifest.Checksum = manifestChecksum(manifest.Pages)
	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return err
	}
	manifestKey := objectstore.JoinKey(version.ArtifactPrefix, "manifest.json")
	if err := e.store.Put(ctx, manifestKey, manifestJSON, "application/json"); err != nil {
		return err
	}

	buildDuration := time.Since(started).Milliseconds()
	if err := e.versions.MarkReady(ctx, version.ID, len(manifest.Pages), manifest.TotalSize, manifest.Checksum, buildDuration); err != nil {
		return err
	}
	if err := e.versions.ActivatePublish(ctx, job.TenantID, version.SiteID, version.ID); err != nil {
		return err
	}
	e.invalidateCache(site.Subdomain)
	return nil
}

// manifestChecksum hashes the page hashes concatenated in manifest order,
// so a single reordering or content change of any page changes the
// checksum while the per-page hashes remain independently verifiable.
func manifestChecksum(pages []builder.ManifestPage) string {
	h := sha256.New()
	for _, p := range pages {
		fmt.Fprint(h, p.Hash)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Rollback reactivates an earlier SiteVersion: targetVersionID must
// currently be READY or SUPERSEDED. It shares ExecuteBuild's activation
// step since promoting a past version and activating a freshly-built one
// are the same linearization point — supersede the current active
// version, mark the target READY-and-published, flip the pointer.
func (e *Engine) Rollback(ctx context.Context, tenantID, siteID, targetVersionID string) error {
	target, err := e.versions.Get(ctx, siteID, targetVersionID)
	if err != nil {
		return err
	}
	if target.Status != builder.VersionReady && target.Status != builder.VersionSuperseded {
		return svcerrors.Validation("versionId", "can only roll back to a READY or SUPERSEDED version")
	}
	site, err := e.sites.Get(ctx, tenantID, siteID)
	if err != nil {
		return err
	}
	if err := e.versions.ActivatePublish(ctx, tenantID, siteID, targetVersionID); err != nil {
		return err
	}
	e.invalidateCache(site.Subdomain)
	return nil
}
