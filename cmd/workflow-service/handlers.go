package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	domainworkflow "github.com/R3E-Network/service_layer/domain/workflow"
	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/httputil"
	"github.com/R3E-Network/service_layer/infrastructure/postgres"
	"github.com/R3E-Network/service_layer/packages/auth"
	"github.com/R3E-Network/service_layer/packages/workflow"
	"github.com/R3E-Network/service_layer/packages/workflowsvc"
)

// api bundles every dependency the route handlers below close over.
type api struct {
	auth      *auth.Service
	workflows *workflowsvc.Service
	engine    *workflow.Engine
	runs      *postgres.RunRepo
	events    *postgres.EventRepo
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

// --- workflows ------------------------------------------------------------

type workflowRequest struct {
	Name       string                    `json:"name"`
	Definition domainworkflow.Definition `json:"definition"`
}

func (a *api) createWorkflowHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.RequireTenantID(w, r)
	if !ok {
		return
	}
	var req workflowRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	wf, err := a.workflows.CreateWorkflow(r.Context(), tenantID, req.Name, req.Definition)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.RespondCreated(w, wf)
}

func (a *api) listWorkflowsHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.RequireTenantID(w, r)
	if !ok {
		return
	}
	offset, limit := httputil.PaginationParams(r, workflowsvc.DefaultListLimit, 100)
	workflows, total, err := a.workflows.ListWorkflows(r.Context(), tenantID, limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse[domainworkflow.Workflow]{Items: workflows, Total: total})
}

func (a *api) getWorkflowHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.RequireTenantID(w, r)
	if !ok {
		return
	}
	wf, err := a.workflows.GetWorkflow(r.Context(), tenantID, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, wf)
}

func (a *api) updateWorkflowHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.RequireTenantID(w, r)
	if !ok {
		return
	}
	var req workflowRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	wf, err := a.workflows.UpdateWorkflow(r.Context(), tenantID, mux.Vars(r)["id"], req.Name, req.Definition)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, wf)
}

func (a *api) deleteWorkflowHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.RequireTenantID(w, r)
	if !ok {
		return
	}
	if err := a.workflows.DeleteWorkflow(r.Context(), tenantID, mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.RespondNoContent(w)
}

// --- runs -------------------------------------------------------------

type executeRequest struct {
	Input json.RawMessage `json:"input"`
}

func (a *api) executeWorkflowHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.RequireTenantID(w, r)
	if !ok {
		return
	}
	var req executeRequest
	if !httputil.DecodeJSONOptional(w, r, &req) {
		return
	}
	run, err := a.engine.StartRun(r.Context(), tenantID, mux.Vars(r)["id"], req.Input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, run)
}

func (a *api) listWorkflowRunsHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.RequireTenantID(w, r)
	if !ok {
		return
	}
	offset, limit := httputil.PaginationParams(r, workflowsvc.DefaultListLimit, 100)
	runs, total, err := a.runs.ListByWorkflow(r.Context(), tenantID, mux.Vars(r)["id"], limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse[domainworkflow.Run]{Items: runs, Total: total})
}

type runWithSteps struct {
	*domainworkflow.Run
	Steps []domainworkflow.Step `json:"steps"`
}

func (a *api) getRunHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.RequireTenantID(w, r)
	if !ok {
		return
	}
	run, steps, err := a.engine.ObserveRun(r.Context(), tenantID, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, runWithSteps{Run: run, Steps: steps})
}

func (a *api) listRunEventsHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.RequireTenantID(w, r)
	if !ok {
		return
	}
	runID := mux.Vars(r)["id"]
	if _, err := a.runs.Get(r.Context(), tenantID, runID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	since := time.Unix(0, 0).UTC()
	if raw := httputil.QueryString(r, "since", ""); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeServiceError(w, r, svcerrors.Validation("since", "must be RFC3339"))
			return
		}
		since = parsed
	}
	offset, limit := httputil.PaginationParams(r, workflowsvc.DefaultListLimit, 200)

	events, err := a.events.ListSince(r.Context(), runID, since, limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse[domainworkflow.Event]{Items: events, Total: len(events)})
}

func (a *api) cancelRunHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.RequireTenantID(w, r)
	if !ok {
		return
	}
	run, err := a.engine.CancelRun(r.Context(), tenantID, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, run)
}

// listResponse is the standard paginated-list envelope across both services.
type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}
