package main

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/service_layer/domain/builder"
	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/httputil"
	"github.com/R3E-Network/service_layer/infrastructure/postgres"
	"github.com/R3E-Network/service_layer/packages/auth"
	"github.com/R3E-Network/service_layer/packages/buildengine"
	"github.com/R3E-Network/service_layer/packages/siteresolver"
	"github.com/R3E-Network/service_layer/packages/sitesvc"
)

// api bundles every dependency the route handlers below close over.
type api struct {
	auth     *auth.Service
	sites    *sitesvc.Service
	build    *buildengine.Engine
	versions *postgres.SiteVersionRepo
	resolver *siteresolver.Resolver
}

// listResponse is the standard paginated-list envelope across both services.
type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// --- auth ---------------------------------------------------------------

type registerRequest struct {
	TenantName string `json:"tenantName"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (a *api) registerHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	token, err := a.auth.Register(r.Context(), req.TenantName, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.RespondCreated(w, tokenResponse{Token: token})
}

func (a *api) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	token, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// --- sites ----------------------------------------------------------------

type siteRequest struct {
	Name      string               `json:"name"`
	Slug      string               `json:"slug"`
	Subdomain string               `json:"subdomain"`
	Settings  builder.SiteSettings `json:"settings"`
}

type updateSiteRequest struct {
	Name     string               `json:"name"`
	Settings builder.SiteSettings `json:"settings"`
}

func (a *api) createSiteHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.RequireTenantID(w, r)
	if !ok {
		return
	}
	var req siteRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	site, err := a.sites.CreateSite(r.Context(), tenantID, req.Name, req.Slug, req.Subdomain, req.Settings)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.RespondCreated(w, site)
}

func (a *api) listSitesHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.RequireTenantID(w, r)
	if !ok {
		return
	}
	offset, limit := httputil.PaginationParams(r, 20, 100)
	sites, total, err := a.sites.ListSites(r.Context(), tenantID, limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse[builder.Site]{Items: sites, Total: total})
}

func (a *api) getSiteHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.RequireTenantID(w, r)
	if !ok {
		return
	}
	site, err := a.sites.GetSite(r.Context(), tenantID, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, site)
}

func (a *api) updateSiteHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.RequireTenantID(w, r)
	if !ok {
		return
	}
	var req updateSiteRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	site, err := a.sites.UpdateSite(r.Context(), tenantID, mux.Vars(r)["id"], req.Name, req.Settings)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, site)
}

func (a *api) deleteSiteHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.RequireTenantID(w, r)
	if !ok {
		return
	}
	if err := a.sites.DeleteSite(r.Context(), tenantID, mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.RespondNoContent(w)
}

// --- publish / rollback / versions -----------------------------------------

func (a *api) publishSiteHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.RequireTenantID(w, r)
	if !ok {
		return
	}
	version, err := a.build.Publish(r.Context(), tenantID, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, version)
}

type rollbackRequest struct {
	VersionID string `json:"versionId"`
}

func (a *api) rollbackSiteHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.RequireTenantID(w, r)
	if !ok {
		return
	}
	var req rollbackRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	siteID := mux.Vars(r)["id"]
	if err := a.build.Rollback(r.Context(), tenantID, siteID, req.VersionID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.RespondNoContent(w)
}

func (a *api) listSiteVersionsHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.RequireTenantID(w, r)
	if !ok {
		return
	}
	siteID := mux.Vars(r)["id"]
	if _, err := a.sites.GetSite(r.Context(), tenantID, siteID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	offset, limit := httputil.PaginationParams(r, 20, 100)
	versions, total, err := a.versions.ListBySite(r.Context(), siteID, limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse[builder.SiteVersion]{Items: versions, Total: total})
}

// --- pages ------------------------------------------------------------

type pageRequest struct {
	Path           string              `json:"path"`
	Title          string              `json:"title"`
	Content        builder.PageContent `json:"content"`
	SEOTitle       string              `json:"seoTitle"`
	SEODescription string              `json:"seoDescription"`
	IsPublished    bool                `json:"isPublished"`
	SortOrder      int                 `json:"sortOrder"`
}

// requireSiteOwnership verifies siteID belongs to tenantID before any page
// operation below, since PageRepo's own methods are only scoped by siteID.
func (a *api) requireSiteOwnership(ctx context.Context, tenantID, siteID string) error {
	_, err := a.sites.GetSite(ctx, tenantID, siteID)
	return err
}

func (a *api) createPageHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.RequireTenantID(w, r)
	if !ok {
		return
	}
	siteID := mux.Vars(r)["id"]
	if err := a.requireSiteOwnership(r.Context(), tenantID, siteID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req pageRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	page, err := a.sites.CreatePage(r.Context(), siteID, req.Path, req.Title, req.Content, req.SEOTitle, req.SEODescription, req.IsPublished, req.SortOrder)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.RespondCreated(w, page)
}

func (a *api) listPagesHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.RequireTenantID(w, r)
	if !ok {
		return
	}
	siteID := mux.Vars(r)["id"]
	if err := a.requireSiteOwnership(r.Context(), tenantID, siteID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	pages, err := a.sites.ListPages(r.Context(), siteID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse[builder.Page]{Items: pages, Total: len(pages)})
}

func (a *api) updatePageHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.RequireTenantID(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	siteID, pageID := vars["id"], vars["pageId"]
	if err := a.requireSiteOwnership(r.Context(), tenantID, siteID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req pageRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	page, err := a.sites.UpdatePage(r.Context(), siteID, pageID, req.Title, req.Content, req.SEOTitle, req.SEODescription, req.IsPublished, req.SortOrder)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (a *api) deletePageHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.RequireTenantID(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	siteID, pageID := vars["id"], vars["pageId"]
	if err := a.requireSiteOwnership(r.Context(), tenantID, siteID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := a.sites.DeletePage(r.Context(), siteID, pageID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.RespondNoContent(w)
}

// --- serve (public) -----------------------------------------------------

func (a *api) serveHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	subdomain := vars["subdomain"]
	requestPath := "/" + vars["path"]

	result, err := a.resolver.Resolve(r.Context(), subdomain, requestPath)
	if err != nil {
		if se := svcerrors.GetServiceError(err); se != nil && se.Code == svcerrors.CodeNotFound {
			http.NotFound(w, r)
			return
		}
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Cache-Control", result.CacheControl)
	w.Header().Set("X-Site-Version", strconv.Itoa(result.Version))
	w.WriteHeader(result.StatusCode)
	_, _ = w.Write(result.Body)
}
