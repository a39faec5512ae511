package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	slmetrics "github.com/R3E-Network/service_layer/infrastructure/metrics"
	"github.com/R3E-Network/service_layer/infrastructure/service"
)

// registerRoutes wires every §6 builder-service route onto base's router:
// the public unauthenticated serve path, bearer-guarded site/page/publish
// endpoints, and the standard health/ready/info/metrics surface.
func registerRoutes(base *service.BaseService, a *api, deepChecker *service.DeepHealthChecker, startedAt time.Time) {
	router := base.Router()
	base.RegisterStandardRoutesWithOptions(service.RouteOptions{})

	router.Handle("/health/deep", service.DeepHealthHandler(deepChecker, base.Name(), base.Version(), false, func() time.Duration {
		return time.Since(startedAt)
	})).Methods(http.MethodGet)

	if slmetrics.Enabled() {
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	router.HandleFunc("/serve/{subdomain}", a.serveHandler).Methods(http.MethodGet)
	router.HandleFunc("/serve/{subdomain}/{path:.*}", a.serveHandler).Methods(http.MethodGet)

	public := router.PathPrefix("/auth").Subrouter()
	public.HandleFunc("/register", a.registerHandler).Methods(http.MethodPost)
	public.HandleFunc("/login", a.loginHandler).Methods(http.MethodPost)

	protected := router.PathPrefix("").Subrouter()
	protected.Use(a.auth.Middleware)

	protected.HandleFunc("/sites", a.listSitesHandler).Methods(http.MethodGet)
	protected.HandleFunc("/sites", a.createSiteHandler).Methods(http.MethodPost)
	protected.HandleFunc("/sites/{id}", a.getSiteHandler).Methods(http.MethodGet)
	protected.HandleFunc("/sites/{id}", a.updateSiteHandler).Methods(http.MethodPut)
	protected.HandleFunc("/sites/{id}", a.deleteSiteHandler).Methods(http.MethodDelete)
	protected.HandleFunc("/sites/{id}/publish", a.publishSiteHandler).Methods(http.MethodPost)
	protected.HandleFunc("/sites/{id}/rollback", a.rollbackSiteHandler).Methods(http.MethodPost)
	protected.HandleFunc("/sites/{id}/versions", a.listSiteVersionsHandler).Methods(http.MethodGet)

	protected.HandleFunc("/sites/{id}/pages", a.listPagesHandler).Methods(http.MethodGet)
	protected.HandleFunc("/sites/{id}/pages", a.createPageHandler).Methods(http.MethodPost)
	protected.HandleFunc("/sites/{id}/pages/{pageId}", a.updatePageHandler).Methods(http.MethodPut)
	protected.HandleFunc("/sites/{id}/pages/{pageId}", a.deletePageHandler).Methods(http.MethodDelete)
}
