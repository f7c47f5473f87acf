/*
handlers.go - HTTP API handlers for the approval and vacation engine

PURPOSE:
  Exposes request submission, balance views, approval workflows and
  policy administration via REST. Handles HTTP request/response and JSON
  serialization, and delegates everything else to the services.

ENDPOINTS:
  Users:
    GET    /api/users                         List users
    POST   /api/users                         Create or update a user
    GET    /api/users/{id}                    Get user
    GET    /api/users/{id}/balance?year=      Available and remaining days
    PUT    /api/users/{id}/balance            Set yearly allotment

  Requests:
    GET    /api/users/{id}/requests           User's requests
    POST   /api/users/{id}/requests           Submit (422 + alternatives on rule failure)
    POST   /api/users/{id}/requests/validate  Dry run
    GET    /api/requests/pending              Pending and moreInfo requests
    GET    /api/requests/{id}                 Get request
    GET    /api/requests/{id}/workflow        Workflow, created on demand

  Workflows:
    GET    /api/workflows?status=a,b          List workflows
    GET    /api/workflows/{id}                Get workflow
    POST   /api/workflows/{id}/steps/{stepId} Approve, reject or request info

  Policies:
    GET    /api/policies                      List approval policies
    POST   /api/policies                      Upsert policy from JSON
    GET    /api/policies/{id}                 Get policy

  Admin:
    POST   /api/admin/escalations/run         Run the escalation pass now

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed input, unknown action or request type
  - 404: User, request, workflow, step or policy not found
  - 409: Closed workflow, step out of order, stale version
  - 422: Date rule failure (body carries the result and alternatives)
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The caller identity for policy edits comes from the
  X-User-ID header and is only recorded in the audit log.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo data loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rioja-cuida/approval-engine/approval"
	"github.com/rioja-cuida/approval-engine/factory"
	"github.com/rioja-cuida/approval-engine/generic"
	"github.com/rioja-cuida/approval-engine/timeoff"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence the handler touches directly: user and balance
// administration plus the demo reset.
type Store interface {
	timeoff.Store
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store         Store
	Requests      *timeoff.RequestService
	Approvals     *approval.Service
	PolicyFactory *factory.ApprovalPolicyFactory
	Logger        *zap.Logger
	Clock         func() time.Time

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over the given services.
func NewHandler(store Store, requests *timeoff.RequestService, approvals *approval.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:         store,
		Requests:      requests,
		Approvals:     approvals,
		PolicyFactory: factory.NewApprovalPolicyFactory(),
		Logger:        logger,
		Clock:         time.Now,
	}
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns all users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to list users", err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetUser returns a single user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Store.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "User not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// SaveUser creates or updates a user.
func (h *Handler) SaveUser(w http.ResponseWriter, r *http.Request) {
	var req UserDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	user := req.toUser()
	if err := h.Store.SaveUser(r.Context(), user); err != nil {
		h.writeServiceError(w, "Failed to save user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(user))
}

// GetBalance returns the balance screen for a year (default: current).
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	year, err := h.yearParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}

	view, available, err := h.Requests.BalanceView(r.Context(), chi.URLParam(r, "id"), year)
	if err != nil {
		h.writeServiceError(w, "Failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(view, available))
}

// SetBalance stores a user's yearly allotment.
func (h *Handler) SetBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "id")

	var req SetBalanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Year == 0 {
		req.Year = h.Clock().Year()
	}
	if req.VacationDays < 0 || req.PersonalDays < 0 || req.LeaveDays < 0 {
		writeError(w, http.StatusBadRequest, "Allotments must not be negative", nil)
		return
	}
	if _, err := h.Store.GetUser(ctx, userID); err != nil {
		h.writeServiceError(w, "User not found", err)
		return
	}

	balance := timeoff.Balance{
		UserID:       userID,
		Year:         req.Year,
		VacationDays: req.VacationDays,
		PersonalDays: req.PersonalDays,
		LeaveDays:    req.LeaveDays,
	}
	if err := h.Store.SaveBalance(ctx, balance); err != nil {
		h.writeServiceError(w, "Failed to save balance", err)
		return
	}

	view, available, err := h.Requests.BalanceView(ctx, userID, req.Year)
	if err != nil {
		h.writeServiceError(w, "Failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(view, available))
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// ListUserRequests returns a user's requests, oldest first.
func (h *Handler) ListUserRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Requests.ListByUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "Failed to list requests", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(requests))
}

// SubmitRequest validates and records a request, then opens its workflow.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	in, err := h.submitInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	req, res, err := h.Requests.Submit(ctx, in)
	if err != nil {
		h.writeServiceError(w, "Request not accepted", err)
		return
	}

	resp := SubmitResponse{Request: toRequestDTO(req), Result: toResultDTO(res)}
	wf, err := h.Approvals.EnsureWorkflow(ctx, req.ID)
	if err != nil {
		// The scheduler's SyncPending pass picks it up later.
		h.Logger.Warn("workflow not created on submit", zap.String("request_id", req.ID), zap.Error(err))
	} else {
		dto := toWorkflowDTO(wf)
		resp.Workflow = &dto
	}

	writeJSON(w, http.StatusCreated, resp)
}

// ValidateRequest runs the date rules without recording anything.
func (h *Handler) ValidateRequest(w http.ResponseWriter, r *http.Request) {
	in, err := h.submitInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	res, alternatives, err := h.Requests.Validate(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, "Failed to validate request", err)
		return
	}
	writeJSON(w, http.StatusOK, ValidationResponse{Result: toResultDTO(res), Alternatives: toPeriodDTOs(alternatives)})
}

// ListPendingRequests returns requests waiting on HR.
func (h *Handler) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Requests.ListPending(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to list pending requests", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(requests))
}

// GetRequest returns a single request.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Requests.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "Request not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// GetRequestWorkflow returns the request's workflow, creating it for an
// open request that has none yet.
func (h *Handler) GetRequestWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.Approvals.EnsureWorkflow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "Workflow not available", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkflowDTO(wf))
}

// =============================================================================
// WORKFLOW HANDLERS
// =============================================================================

// ListWorkflows returns workflows, optionally filtered by ?status=a,b.
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	var statuses []approval.WorkflowStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st, err := approval.ParseWorkflowStatus(strings.TrimSpace(s))
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid status filter", err)
				return
			}
			statuses = append(statuses, st)
		}
	}

	wfs, err := h.Approvals.ListWorkflows(r.Context(), statuses...)
	if err != nil {
		h.writeServiceError(w, "Failed to list workflows", err)
		return
	}

	dtos := make([]WorkflowDTO, len(wfs))
	for i, wf := range wfs {
		dtos[i] = toWorkflowDTO(wf)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetWorkflow returns a single workflow.
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.Approvals.GetWorkflow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "Workflow not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkflowDTO(wf))
}

// ActOnStep applies an approver decision to the current step.
func (h *Handler) ActOnStep(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ApproverID == "" {
		writeError(w, http.StatusBadRequest, "approver_id is required", nil)
		return
	}
	action, err := approval.ParseAction(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid action", err)
		return
	}

	wf, err := h.Approvals.Act(r.Context(), approval.ActInput{
		WorkflowID:      chi.URLParam(r, "id"),
		StepID:          chi.URLParam(r, "stepId"),
		ApproverID:      req.ApproverID,
		Action:          action,
		Comments:        req.Comments,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		h.writeServiceError(w, "Action not applied", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkflowDTO(wf))
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// ListPolicies returns the approval policies in their JSON form.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies := h.Approvals.Policies.List()
	dtos := make([]factory.PolicyJSON, len(policies))
	for i, p := range policies {
		dtos[i] = h.PolicyFactory.ToJSON(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPolicy returns one policy.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.Approvals.Policies.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "Policy not found", err)
		return
	}
	writeJSON(w, http.StatusOK, h.PolicyFactory.ToJSON(p))
}

// SavePolicy validates and upserts a policy from its JSON form.
func (h *Handler) SavePolicy(w http.ResponseWriter, r *http.Request) {
	var pj factory.PolicyJSON
	if err := decodeJSON(r, &pj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	policy, err := h.PolicyFactory.FromJSON(pj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid policy", err)
		return
	}

	actor := r.Header.Get("X-User-ID")
	if actor == "" {
		actor = "admin"
	}
	if err := h.Approvals.SavePolicy(r.Context(), actor, policy); err != nil {
		h.writeServiceError(w, "Failed to save policy", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.PolicyFactory.ToJSON(policy))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunEscalations runs the scheduled pass immediately.
func (h *Handler) RunEscalations(w http.ResponseWriter, r *http.Request) {
	created, escalated, err := RunEscalation(r.Context(), h.Approvals, h.Logger)
	if err != nil {
		h.writeServiceError(w, "Escalation run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, EscalationRunResponse{WorkflowsCreated: created, Escalated: escalated})
}

// Health reports whether the server is up.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) submitInput(r *http.Request) (timeoff.SubmitInput, error) {
	var req SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		return timeoff.SubmitInput{}, err
	}

	typ, err := timeoff.ParseRequestType(req.Type)
	if err != nil {
		return timeoff.SubmitInput{}, err
	}
	start, err := generic.ParseDate(req.StartDate)
	if err != nil {
		return timeoff.SubmitInput{}, fmt.Errorf("start_date: %w", err)
	}
	end := start
	if req.EndDate != "" {
		if end, err = generic.ParseDate(req.EndDate); err != nil {
			return timeoff.SubmitInput{}, fmt.Errorf("end_date: %w", err)
		}
	}

	return timeoff.SubmitInput{
		UserID:        chi.URLParam(r, "id"),
		Type:          typ,
		StartDate:     start,
		EndDate:       end,
		Reason:        req.Reason,
		Observations:  req.Observations,
		AttachmentURL: req.AttachmentURL,
		Force:         req.Force,
	}, nil
}

func (h *Handler) yearParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("year")
	if raw == "" {
		return h.Clock().Year(), nil
	}
	return strconv.Atoi(raw)
}

// writeServiceError maps domain errors onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, message string, err error) {
	var verr *timeoff.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, ValidationResponse{
			Result:       toResultDTO(verr.Result),
			Alternatives: toPeriodDTOs(verr.Alternatives),
		})
	case generic.IsNotFound(err), errors.Is(err, approval.ErrStepNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case approval.IsConflict(err), generic.IsRetryable(err), errors.Is(err, generic.ErrDuplicateWorkflow):
		writeError(w, http.StatusConflict, message, err)
	case generic.IsClientError(err), errors.Is(err, approval.ErrInvalidAction), errors.Is(err, approval.ErrInvalidPolicy):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.Logger.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
