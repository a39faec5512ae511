// Package builder holds the entity types for the site build/serve domain:
// sites, pages, versions, build jobs, and the artifact manifest.
package builder

import (
	"strconv"
	"strings"
	"time"
)

// SiteVersionStatus is the lifecycle state of a SiteVersion.
type SiteVersionStatus string

const (
	VersionBuilding  SiteVersionStatus = "BUILDING"
	VersionReady     SiteVersionStatus = "READY"
	VersionFailed    SiteVersionStatus = "FAILED"
	VersionSuperseded SiteVersionStatus = "SUPERSEDED"
)

// BuildJobStatus is the lifecycle state of a BuildJob.
type BuildJobStatus string

const (
	BuildQueued     BuildJobStatus = "QUEUED"
	BuildProcessing BuildJobStatus = "PROCESSING"
	BuildCompleted  BuildJobStatus = "COMPLETED"
	BuildFailed     BuildJobStatus = "FAILED"
)

// SectionType tags a PageContent section variant.
type SectionType string

const (
	SectionHero     SectionType = "hero"
	SectionText     SectionType = "text"
	SectionFeatures SectionType = "features"
	SectionCards    SectionType = "cards"
	SectionImage    SectionType = "image"
	SectionCTA      SectionType = "cta"
)

// Alignment is the horizontal alignment of a section's text content.
type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

// CTAVariant is the visual style of a call-to-action button.
type CTAVariant string

const (
	CTAPrimary   CTAVariant = "primary"
	CTASecondary CTAVariant = "secondary"
	CTAOutline   CTAVariant = "outline"
)

// HeroProps is the section payload for SectionHero.
type HeroProps struct {
	Heading         string    `json:"heading"`
	Subheading      string    `json:"subheading,omitempty"`
	CTAText         string    `json:"ctaText,omitempty"`
	CTALink         string    `json:"ctaLink,omitempty"`
	BackgroundImage string    `json:"backgroundImage,omitempty"`
	Alignment       Alignment `json:"alignment"`
}

// TextProps is the section payload for SectionText.
type TextProps struct {
	Heading   string    `json:"heading,omitempty"`
	Body      string    `json:"body"`
	Alignment Alignment `json:"alignment"`
}

// FeatureItem is one entry of a FeaturesProps list.
type FeatureItem struct {
	Icon        string `json:"icon"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// FeaturesProps is the section payload for SectionFeatures.
type FeaturesProps struct {
	Heading string        `json:"heading,omitempty"`
	Columns int           `json:"columns"`
	Items   []FeatureItem `json:"items"`
}

// CardItem is one entry of a CardsProps list.
type CardItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
	Link        string `json:"link,omitempty"`
}

// CardsProps is the section payload for SectionCards.
type CardsProps struct {
	Heading string     `json:"heading,omitempty"`
	Columns int        `json:"columns"`
	Items   []CardItem `json:"items"`
}

// ImageProps is the section payload for SectionImage.
type ImageProps struct {
	Src       string `json:"src"`
	Alt       string `json:"alt"`
	Caption   string `json:"caption,omitempty"`
	FullWidth bool   `json:"fullWidth"`
}

// CTAProps is the section payload for SectionCTA.
type CTAProps struct {
	Heading     string     `json:"heading"`
	Description string     `json:"description,omitempty"`
	ButtonText  string     `json:"buttonText"`
	ButtonLink  string     `json:"buttonLink"`
	Variant     CTAVariant `json:"variant"`
}

// Section is a single tagged-variant block of page content. Exactly one of
// the typed Props fields is populated, matching Type.
type Section struct {
	Type     SectionType    `json:"type"`
	Hero     *HeroProps     `json:"hero,omitempty"`
	Text     *TextProps     `json:"text,omitempty"`
	Features *FeaturesProps `json:"features,omitempty"`
	Cards    *CardsProps    `json:"cards,omitempty"`
	Image    *ImageProps    `json:"image,omitempty"`
	CTA      *CTAProps      `json:"cta,omitempty"`
}

// PageContent is the ordered, structured body of a Page.
type PageContent struct {
	Sections []Section `json:"sections"`
}

// SiteSettings carries theme tokens, navigation, and footer content shared
// across a Site's pages at render time.
type SiteSettings struct {
	Colors struct {
		Primary   string `json:"primary"`
		Secondary string `json:"secondary"`
		Background string `json:"background"`
		Text      string `json:"text"`
	} `json:"colors"`
	Fonts struct {
		Heading string `json:"heading"`
		Body    string `json:"body"`
	} `json:"fonts"`
	Navigation []NavItem `json:"navigation,omitempty"`
	Footer     *Footer   `json:"footer,omitempty"`
}

// NavItem is one entry of SiteSettings.Navigation.
type NavItem struct {
	Label string `json:"label"`
	Path  string `json:"path"`
}

// Footer is the optional footer content rendered on every page.
type Footer struct {
	Text  string    `json:"text,omitempty"`
	Links []NavItem `json:"links,omitempty"`
}

// Site is a tenant's publishable website.
type Site struct {
	ID              string       `json:"id" db:"id"`
	TenantID        string       `json:"tenantId" db:"tenant_id"`
	Name            string       `json:"name" db:"name"`
	Slug            string       `json:"slug" db:"slug"`
	Subdomain       string       `json:"subdomain" db:"subdomain"`
	Settings        SiteSettings `json:"settings" db:"-"`
	ActiveVersionID *string      `json:"activeVersionId,omitempty" db:"active_version_id"`
	CreatedAt       time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time    `json:"updatedAt" db:"updated_at"`
}

// Page is a structured content document attached to a Site.
type Page struct {
	ID             string      `json:"id" db:"id"`
	SiteID         string      `json:"siteId" db:"site_id"`
	Path           string      `json:"path" db:"path"`
	Title          string      `json:"title" db:"title"`
	Content        PageContent `json:"content" db:"-"`
	SEOTitle       string      `json:"seoTitle,omitempty" db:"seo_title"`
	SEODescription string      `json:"seoDescription,omitempty" db:"seo_description"`
	IsPublished    bool        `json:"isPublished" db:"is_published"`
	SortOrder      int         `json:"sortOrder" db:"sort_order"`
	CreatedAt      time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time   `json:"updatedAt" db:"updated_at"`
}

// SiteVersion is an immutable snapshot of a Site's pages stored in the
// artifact store.
type SiteVersion struct {
	ID              string            `json:"id" db:"id"`
	SiteID          string            `json:"siteId" db:"site_id"`
	Version         int               `json:"version" db:"version"`
	ArtifactPrefix  string            `json:"artifactPrefix" db:"artifact_prefix"`
	Status          SiteVersionStatus `json:"status" db:"status"`
	PageCount       int               `json:"pageCount" db:"page_count"`
	AssetSize       int64             `json:"assetSize" db:"asset_size"`
	ManifestHash    string            `json:"manifestHash,omitempty" db:"manifest_hash"`
	BuildDurationMs int64             `json:"buildDurationMs,omitempty" db:"build_duration_ms"`
	PublishedAt     *time.Time        `json:"publishedAt,omitempty" db:"published_at"`
	CreatedAt       time.Time         `json:"createdAt" db:"created_at"`
}

// BuildJob tracks one attempt to build a SiteVersion.
type BuildJob struct {
	ID            string         `json:"id" db:"id"`
	SiteVersionID string         `json:"siteVersionId" db:"site_version_id"`
	TenantID      string         `json:"tenantId" db:"tenant_id"`
	Status        BuildJobStatus `json:"status" db:"status"`
	RetryCount    int            `json:"retryCount" db:"retry_count"`
	WorkerID      string         `json:"workerId,omitempty" db:"worker_id"`
	Error         string         `json:"error,omitempty" db:"error"`
	StartedAt     *time.Time     `json:"startedAt,omitempty" db:"started_at"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty" db:"completed_at"`
}

// ManifestPage is one page entry of a Manifest.
type ManifestPage struct {
	Path        string `json:"path"`
	ArtifactKey string `json:"artifactKey"`
	Title       string `json:"title"`
	Hash        string `json:"hash"`
	Size        int    `json:"size"`
}

// Manifest enumerates a version's artifacts and their hashes.
type Manifest struct {
	Version     int            `json:"version"`
	SiteID      string         `json:"siteId"`
	TenantID    string         `json:"tenantId"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Pages       []ManifestPage `json:"pages"`
	Assets      []string       `json:"assets"`
	TotalSize   int64          `json:"totalSize"`
	Checksum    string         `json:"checksum"`
}

// MaxBuildRetries bounds BuildJob retries by default.
const MaxBuildRetries = 3

// ArtifactPrefix builds the canonical prefix a SiteVersion's artifacts are
// stored under.
func ArtifactPrefix(tenantID, siteID string, version int) string {
	return "sites/" + tenantID + "/" + siteID + "/" + strconv.Itoa(version)
}

// PagePathToFile maps a page's URL path to its artifact file key, relative
// to the version's artifact prefix.
func PagePathToFile(path string) string {
	if path == "/" {
		return "index.html"
	}
	return strings.TrimLeft(path, "/") + "/index.html"
}
