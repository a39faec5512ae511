package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	slmetrics "github.com/R3E-Network/service_layer/infrastructure/metrics"
	"github.com/R3E-Network/service_layer/infrastructure/service"
	"github.com/R3E-Network/service_layer/packages/pushbus"
)

// registerRoutes wires every §6 workflow-service route onto base's router:
// public auth endpoints, bearer-guarded workflow/run endpoints, the
// authenticated push-bus upgrade, and the standard health/ready/info/metrics
// surface.
func registerRoutes(base *service.BaseService, a *api, hub *pushbus.Hub, deepChecker *service.DeepHealthChecker, startedAt time.Time) {
	router := base.Router()
	base.RegisterStandardRoutesWithOptions(service.RouteOptions{})

	router.Handle("/health/deep", service.DeepHealthHandler(deepChecker, base.Name(), base.Version(), false, func() time.Duration {
		return time.Since(startedAt)
	})).Methods(http.MethodGet)

	if slmetrics.Enabled() {
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	router.Handle("/ws", hub).Methods(http.MethodGet)

	public := router.PathPrefix("/auth").Subrouter()
	public.HandleFunc("/register", a.registerHandler).Methods(http.MethodPost)
	public.HandleFunc("/login", a.loginHandler).Methods(http.MethodPost)

	protected := router.PathPrefix("").Subrouter()
	protected.Use(a.auth.Middleware)

	protected.HandleFunc("/workflows", a.listWorkflowsHandler).Methods(http.MethodGet)
	protected.HandleFunc("/workflows", a.createWorkflowHandler).Methods(http.MethodPost)
	protected.HandleFunc("/workflows/{id}", a.getWorkflowHandler).Methods(http.MethodGet)
	protected.HandleFunc("/workflows/{id}", a.updateWorkflowHandler).Methods(http.MethodPut)
	protected.HandleFunc("/workflows/{id}", a.deleteWorkflowHandler).Methods(http.MethodDelete)
	protected.HandleFunc("/workflows/{id}/execute", a.executeWorkflowHandler).Methods(http.MethodPost)
	protected.HandleFunc("/workflows/{id}/runs", a.listWorkflowRunsHandler).Methods(http.MethodGet)

	protected.HandleFunc("/runs/{id}", a.getRunHandler).Methods(http.MethodGet)
	protected.HandleFunc("/runs/{id}/events", a.listRunEventsHandler).Methods(http.MethodGet)
	protected.HandleFunc("/runs/{id}/cancel", a.cancelRunHandler).Methods(http.MethodPost)
}
