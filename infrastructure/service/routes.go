// Package service provides common service infrastructure for the workflow
// and builder services.
package service

import (
	"net/http"
	"time"

	"github.com/R3E-Network/service_layer/infrastructure/httputil"
)

// =============================================================================
// Standard Response Types
// =============================================================================

// HealthResponse is the standard response for /health endpoint.
type HealthResponse struct {
	Status    string         `json:"status"`
	Service   string         `json:"service"`
	Version   string         `json:"version"`
	Timestamp string         `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// InfoResponse is the standard response for /info endpoint.
type InfoResponse struct {
	Status     string         `json:"status"`
	Service    string         `json:"service"`
	Version    string         `json:"version"`
	Timestamp  string         `json:"timestamp"`
	Statistics map[string]any `json:"statistics,omitempty"`
}

// =============================================================================
// Standard Handlers
// =============================================================================

// HealthHandler returns a standardized /health handler for BaseService.
func HealthHandler(b *BaseService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := b.HealthStatus()
		var details map[string]any
		if status != "healthy" {
			details = b.HealthDetails()
		}

		httputil.WriteJSON(w, http.StatusOK, HealthResponse{
			Status:    status,
			Service:   b.Name(),
			Version:   b.Version(),
			Timestamp: time.Now().Format(time.RFC3339),
			Details:   details,
		})
	}
}

// ReadinessHandler returns a readiness probe handler. It fails once the
// service has begun draining for shutdown, independent of dependency
// health, so a load balancer stops routing new requests immediately.
func ReadinessHandler(b *BaseService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := b.HealthStatus()
		if b.IsDraining() {
			status = "draining"
		}

		var details map[string]any
		code := http.StatusOK
		if status != "healthy" {
			code = http.StatusServiceUnavailable
			details = b.HealthDetails()
		}

		httputil.WriteJSON(w, code, HealthResponse{
			Status:    status,
			Service:   b.Name(),
			Version:   b.Version(),
			Timestamp: time.Now().Format(time.RFC3339),
			Details:   details,
		})
	}
}

// InfoHandler returns a standardized /info handler for BaseService.
// It includes statistics from the registered stats function if available.
func InfoHandler(b *BaseService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := InfoResponse{
			Status:    "active",
			Service:   b.Name(),
			Version:   b.Version(),
			Timestamp: time.Now().Format(time.RFC3339),
		}

		if b.statsFn != nil {
			resp.Statistics = b.statsFn()
		}

		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

// =============================================================================
// Route Registration
// =============================================================================

// RouteOptions configures which standard routes to register.
type RouteOptions struct {
	SkipInfo bool // Skip /info registration (for services with custom /info)
}

// RegisterStandardRoutes registers the standard /health, /ready, and /info endpoints.
func (b *BaseService) RegisterStandardRoutes() {
	b.RegisterStandardRoutesWithOptions(RouteOptions{})
}

// RegisterStandardRoutesWithOptions registers standard routes with configurable options.
// Use SkipInfo: true when the service provides a custom /info endpoint.
func (b *BaseService) RegisterStandardRoutesWithOptions(opts RouteOptions) {
	router := b.Router()
	router.HandleFunc("/health", HealthHandler(b)).Methods("GET")
	router.HandleFunc("/ready", ReadinessHandler(b)).Methods("GET")
	if !opts.SkipInfo {
		router.HandleFunc("/info", InfoHandler(b)).Methods("GET")
	}
}
