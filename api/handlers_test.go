/*
handlers_test.go - HTTP tests for the API handlers

Tests run the full stack (router, services, in-memory SQLite) with a
fixed clock.
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rioja-cuida/approval-engine/api"
	"github.com/rioja-cuida/approval-engine/approval"
	"github.com/rioja-cuida/approval-engine/store/sqlite"
	"github.com/rioja-cuida/approval-engine/timeoff"
)

type fixture struct {
	t       *testing.T
	now     time.Time
	store   *sqlite.Store
	handler *api.Handler
	router  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{t: t, now: time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC), store: store}
	clock := func() time.Time { return f.now }

	validator := timeoff.NewValidator(timeoff.DefaultValidatorConfig(), timeoff.WithClock(clock))
	requests := timeoff.NewRequestService(store, validator, store, zap.NewNop())
	requests.Clock = clock

	policies, err := approval.NewPolicyStore()
	require.NoError(t, err)
	engine := approval.NewEngine(policies, approval.WithClock(clock))
	approvals := approval.NewService(engine, store, policies, requests, store, store, zap.NewNop())
	require.NoError(t, approvals.LoadPolicies(ctx, approval.DefaultPolicies()))

	f.handler = api.NewHandler(store, requests, approvals, zap.NewNop())
	f.handler.Clock = clock
	f.router = api.NewRouter(f.handler, []string{"*"})
	return f
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seedWorker creates a Localizado cook with 22 vacation days for 2025.
func (f *fixture) seedWorker(id string, seniority int) {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/api/users", api.UserDTO{
		ID: id, Name: "Worker " + id, Department: "Cocina",
		WorkGroup: timeoff.GroupLocalizado, Seniority: seniority,
	})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPut, "/api/users/"+id+"/balance", api.SetBalanceRequest{
		Year: 2025, AllotmentDTO: api.AllotmentDTO{VacationDays: 22, PersonalDays: 4, LeaveDays: 10},
	})
	require.Equal(f.t, http.StatusOK, rec.Code, rec.Body.String())
}

func (f *fixture) submit(userID string, body api.SubmitRequest) *httptest.ResponseRecorder {
	f.t.Helper()
	return f.do(http.MethodPost, "/api/users/"+userID+"/requests", body)
}

// =============================================================================
// USERS & BALANCES
// =============================================================================

func TestUsersAndBalance(t *testing.T) {
	f := newFixture(t)
	f.seedWorker("ana", 6)

	rec := f.do(http.MethodGet, "/api/users/ana", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	user := decode[api.UserDTO](t, rec)
	assert.Equal(t, "worker", user.Role)
	assert.Equal(t, timeoff.GroupLocalizado, user.WorkGroup)

	rec = f.do(http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.UserDTO](t, rec), 1)

	// GIVEN: Six years of seniority
	// WHEN: Reading the balance
	// THEN: One bonus day on top of 22
	rec = f.do(http.MethodGet, "/api/users/ana/balance?year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	balance := decode[api.BalanceDTO](t, rec)
	assert.Equal(t, 23, balance.Available.VacationDays)

	rec = f.do(http.MethodGet, "/api/users/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/api/users/ana/balance?year=twenty", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPut, "/api/users/nobody/balance", api.SetBalanceRequest{Year: 2025})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// SUBMISSION
// =============================================================================

func TestSubmitRequest_OpensWorkflow(t *testing.T) {
	f := newFixture(t)
	f.seedWorker("ana", 2)

	rec := f.submit("ana", api.SubmitRequest{Type: "vacation", StartDate: "2025-04-01", EndDate: "2025-04-05"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[api.SubmitResponse](t, rec)
	assert.True(t, resp.Result.Valid)
	assert.Equal(t, 5, resp.Request.Days)
	assert.Equal(t, "pending", resp.Request.Status)
	require.NotNil(t, resp.Workflow)
	require.Len(t, resp.Workflow.Steps, 1)
	assert.Equal(t, "supervisor", resp.Workflow.Steps[0].Level)
	assert.NotEmpty(t, resp.Workflow.Steps[0].DueDate)

	rec = f.do(http.MethodGet, "/api/users/ana/requests", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.RequestDTO](t, rec), 1)

	rec = f.do(http.MethodGet, "/api/requests/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.RequestDTO](t, rec), 1)
}

func TestSubmitRequest_RuleFailureReturnsAlternatives(t *testing.T) {
	// GIVEN: A Localizado worker asking to start on the 2nd
	// WHEN: Submitting
	// THEN: 422 with the reason and alternatives; nothing recorded
	f := newFixture(t)
	f.seedWorker("ana", 2)

	rec := f.submit("ana", api.SubmitRequest{Type: "vacation", StartDate: "2025-04-02", EndDate: "2025-04-08"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	resp := decode[api.ValidationResponse](t, rec)
	assert.False(t, resp.Result.Valid)
	assert.Equal(t, string(timeoff.ReasonStartDayNotFirstOrSixteenth), resp.Result.Reason)
	require.NotEmpty(t, resp.Alternatives)
	assert.Equal(t, "2025-04-01", resp.Alternatives[0].StartDate)
	assert.Equal(t, "2025-04-07", resp.Alternatives[0].EndDate)

	rec = f.do(http.MethodGet, "/api/users/ana/requests", nil)
	assert.Empty(t, decode[[]api.RequestDTO](t, rec))
}

func TestSubmitRequest_BadInput(t *testing.T) {
	f := newFixture(t)
	f.seedWorker("ana", 2)

	tests := []struct {
		name string
		body api.SubmitRequest
		code int
	}{
		{"unknown type", api.SubmitRequest{Type: "holiday", StartDate: "2025-04-01"}, http.StatusBadRequest},
		{"bad date", api.SubmitRequest{Type: "vacation", StartDate: "01/04/2025"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.submit("ana", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}

	rec := f.submit("ghost", api.SubmitRequest{Type: "vacation", StartDate: "2025-04-01", EndDate: "2025-04-05"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidateRequest_DryRun(t *testing.T) {
	f := newFixture(t)
	f.seedWorker("ana", 2)

	rec := f.do(http.MethodPost, "/api/users/ana/requests/validate",
		api.SubmitRequest{Type: "vacation", StartDate: "2025-04-16", EndDate: "2025-05-30"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[api.ValidationResponse](t, rec)
	assert.False(t, resp.Result.Valid)
	assert.Equal(t, string(timeoff.ReasonInsufficientBalance), resp.Result.Reason)
	assert.Equal(t, 45, resp.Result.Requested)

	rec = f.do(http.MethodGet, "/api/requests/pending", nil)
	assert.Empty(t, decode[[]api.RequestDTO](t, rec))
}

// =============================================================================
// APPROVAL ACTIONS
// =============================================================================

func TestActOnStep_ApprovalChain(t *testing.T) {
	// GIVEN: A 10-day vacation (supervisor, then hr)
	// WHEN: Both approve
	// THEN: Workflow completed and request approved
	f := newFixture(t)
	f.seedWorker("ana", 2)

	rec := f.submit("ana", api.SubmitRequest{Type: "vacation", StartDate: "2025-04-01", EndDate: "2025-04-10"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	submitted := decode[api.SubmitResponse](t, rec)
	wf := *submitted.Workflow
	require.Len(t, wf.Steps, 2)

	path := "/api/workflows/" + wf.ID + "/steps/"

	// HR cannot act before the supervisor.
	rec = f.do(http.MethodPost, path+wf.Steps[1].ID, api.ActionRequest{ApproverID: "hr-1", Action: "approve"})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPost, path+wf.Steps[0].ID, api.ActionRequest{ApproverID: "sup-1", Action: "approve", Comments: "ok"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	wf = decode[api.WorkflowDTO](t, rec)
	assert.Equal(t, "in_progress", wf.Status)
	assert.Equal(t, 1, wf.CurrentStep)

	// Stale version from before the first approval.
	rec = f.do(http.MethodPost, path+wf.Steps[1].ID, api.ActionRequest{ApproverID: "hr-1", Action: "approve", ExpectedVersion: 1})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, path+wf.Steps[1].ID, api.ActionRequest{ApproverID: "hr-1", Action: "approve", ExpectedVersion: wf.Version})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	wf = decode[api.WorkflowDTO](t, rec)
	assert.Equal(t, "completed", wf.Status)
	assert.NotEmpty(t, wf.CompletedAt)

	rec = f.do(http.MethodGet, "/api/requests/"+submitted.Request.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "approved", decode[api.RequestDTO](t, rec).Status)

	// Closed workflow.
	rec = f.do(http.MethodPost, path+wf.Steps[1].ID, api.ActionRequest{ApproverID: "hr-1", Action: "reject"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodGet, "/api/workflows?status=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.WorkflowDTO](t, rec), 1)
}

func TestActOnStep_Errors(t *testing.T) {
	f := newFixture(t)
	f.seedWorker("ana", 2)

	rec := f.submit("ana", api.SubmitRequest{Type: "leave", StartDate: "2025-05-05", EndDate: "2025-05-06"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	wf := *decode[api.SubmitResponse](t, rec).Workflow
	path := "/api/workflows/" + wf.ID + "/steps/"

	rec = f.do(http.MethodPost, path+wf.Steps[0].ID, api.ActionRequest{ApproverID: "x", Action: "delegate"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, path+wf.Steps[0].ID, api.ActionRequest{Action: "approve"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, path+"no-such-step", api.ActionRequest{ApproverID: "x", Action: "approve"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/api/workflows/nope/steps/s", api.ActionRequest{ApproverID: "x", Action: "approve"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/api/workflows?status=done", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// GIVEN: HR asks for more information
	// THEN: Request goes to moreInfo and stays in the pending list
	rec = f.do(http.MethodPost, path+wf.Steps[0].ID, api.ActionRequest{ApproverID: "hr-1", Action: "request_info", Comments: "Justificante"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/requests/"+wf.RequestID, nil)
	req := decode[api.RequestDTO](t, rec)
	assert.Equal(t, "moreInfo", req.Status)
	assert.Equal(t, "Justificante", req.Observations)
}

func TestGetRequestWorkflow_CreatedOnDemand(t *testing.T) {
	f := newFixture(t)
	f.seedWorker("ana", 2)

	rec := f.submit("ana", api.SubmitRequest{Type: "personalDay", StartDate: "2025-04-09"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[api.SubmitResponse](t, rec)

	rec = f.do(http.MethodGet, "/api/requests/"+resp.Request.ID+"/workflow", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	wf := decode[api.WorkflowDTO](t, rec)
	assert.Equal(t, resp.Workflow.ID, wf.ID, "same workflow, not a second one")

	rec = f.do(http.MethodGet, "/api/workflows/"+wf.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/requests/missing/workflow", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// POLICIES
// =============================================================================

func TestPolicies(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/policies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[[]map[string]any](t, rec)
	assert.Len(t, listed, len(approval.DefaultPolicies()))

	policy := map[string]any{
		"id":   "laundry",
		"name": "Lavandería",
		"rules": []map[string]any{{
			"id": "laundry-any", "request_type": "*", "department": "Lavandería",
			"required_approvers": []string{"hr", "director"}, "escalation_days": 2,
		}},
	}
	rec = f.do(http.MethodPost, "/api/policies", policy)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/policies/laundry", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// GIVEN: A Lavandería worker
	// WHEN: Submitting a short vacation
	// THEN: The new department rule adds hr and director after the supervisor
	rec = f.do(http.MethodPost, "/api/users", api.UserDTO{ID: "luis", Name: "Luis", Department: "Lavandería"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.submit("luis", api.SubmitRequest{Type: "vacation", StartDate: "2025-06-02", EndDate: "2025-06-04"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	wf := decode[api.SubmitResponse](t, rec).Workflow
	require.NotNil(t, wf)
	levels := make([]string, len(wf.Steps))
	for i, st := range wf.Steps {
		levels[i] = st.Level
	}
	assert.Equal(t, []string{"supervisor", "hr", "director"}, levels)

	rec = f.do(http.MethodPost, "/api/policies", map[string]any{
		"id": "broken", "rules": []map[string]any{{"id": "r", "request_type": "vacation", "required_approvers": []string{"janitor"}}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/api/policies/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// ESCALATION
// =============================================================================

func TestRunEscalations(t *testing.T) {
	// GIVEN: A pending supervisor step with a 3-day window
	// WHEN: Four days pass and the escalation run is triggered
	// THEN: The step is escalated exactly once
	f := newFixture(t)
	f.seedWorker("ana", 2)

	rec := f.submit("ana", api.SubmitRequest{Type: "vacation", StartDate: "2025-04-01", EndDate: "2025-04-03"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	wfID := decode[api.SubmitResponse](t, rec).Workflow.ID

	rec = f.do(http.MethodPost, "/api/admin/escalations/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[api.EscalationRunResponse](t, rec).Escalated)

	f.now = f.now.AddDate(0, 0, 4)

	rec = f.do(http.MethodPost, "/api/admin/escalations/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[api.EscalationRunResponse](t, rec).Escalated)

	rec = f.do(http.MethodPost, "/api/admin/escalations/run", nil)
	assert.Equal(t, 0, decode[api.EscalationRunResponse](t, rec).Escalated)

	rec = f.do(http.MethodGet, "/api/workflows/"+wfID, nil)
	wf := decode[api.WorkflowDTO](t, rec)
	assert.Equal(t, "escalated", wf.Status)
	assert.True(t, wf.AutoEscalated)
	assert.True(t, wf.Steps[0].Escalated)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
