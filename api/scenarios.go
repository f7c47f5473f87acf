/*
scenarios.go - Demo data loaders

PURPOSE:
  Populates the database with realistic data for demos and manual
  testing of the approval flow. Dates are relative to the handler clock
  so a scenario always shows upcoming requests.

AVAILABLE SCENARIOS:
  kitchen-summer:   Cocina staff, three colleagues off the same fortnight;
                    a fourth request trips the 30% staffing limit
  overdue-approval: Limpieza requests whose supervisor step is past due,
                    ready for POST /api/admin/escalations/run
  management:       A Dirección request routed straight to the CEO

HOW SCENARIOS WORK:
 1. Reset database (clear all data) and reseed default approval policies
 2. Create users and yearly balances
 3. Submit requests through RequestService (forced, so seed data is
    recorded even when it would break a rule)
 4. Open workflows and move some of them along

NOTE:
  Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler
  - approval/policies.go: DefaultPolicies
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rioja-cuida/approval-engine/approval"
	"github.com/rioja-cuida/approval-engine/generic"
	"github.com/rioja-cuida/approval-engine/timeoff"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "kitchen-summer",
		Name:        "Kitchen fortnight",
		Description: "Ten Localizado cooks; three already off the same fortnight, so a fourth hits the staffing limit",
	},
	{
		ID:          "overdue-approval",
		Name:        "Overdue approval",
		Description: "Cleaning staff requests whose supervisor step is past its due date",
	},
	{
		ID:          "management",
		Name:        "Management request",
		Description: "A Dirección vacation that only the CEO approves",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "kitchen-summer":
		load = h.loadKitchenSummerScenario
	case "overdue-approval":
		load = h.loadOverdueApprovalScenario
	case "management":
		load = h.loadManagementScenario
	default:
		writeError(w, http.StatusNotFound, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		h.writeServiceError(w, "Failed to reset database", err)
		return
	}
	if err := load(ctx); err != nil {
		h.writeServiceError(w, "Failed to load scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data and reseeds the default policies.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.reset(r.Context()); err != nil {
		h.writeServiceError(w, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	return h.Approvals.LoadPolicies(ctx, approval.DefaultPolicies())
}

// =============================================================================
// SCENARIO: KITCHEN FORTNIGHT
// =============================================================================

func (h *Handler) loadKitchenSummerScenario(ctx context.Context) error {
	year := h.Clock().Year()
	start := nextFirstOrSixteenth(generic.DateOf(h.Clock()))
	end := start.AddDays(14)

	if err := h.seedHR(ctx, year); err != nil {
		return err
	}

	for i := 1; i <= 10; i++ {
		u := timeoff.User{
			ID:         fmt.Sprintf("cocina-%02d", i),
			Name:       fmt.Sprintf("Cocinero %d", i),
			Role:       timeoff.RoleWorker,
			Department: "Cocina",
			Shift:      "mañana",
			WorkGroup:  timeoff.GroupLocalizado,
			Seniority:  i,
		}
		if err := h.seedUser(ctx, u, year, 22); err != nil {
			return err
		}
	}

	// Two approved and one pending: three of ten absent for the fortnight.
	for i, id := range []string{"cocina-02", "cocina-03", "cocina-04"} {
		req, err := h.seedRequest(ctx, id, timeoff.TypeVacation, start, end, "Vacaciones de verano")
		if err != nil {
			return err
		}
		if i < 2 {
			if err := h.approveAll(ctx, req.ID); err != nil {
				return err
			}
		}
	}

	// A personal day for someone else later in the month.
	_, err := h.seedRequest(ctx, "cocina-05", timeoff.TypePersonalDay, end.AddDays(3), end.AddDays(3), "Asuntos propios")
	return err
}

// =============================================================================
// SCENARIO: OVERDUE APPROVAL
// =============================================================================

func (h *Handler) loadOverdueApprovalScenario(ctx context.Context) error {
	year := h.Clock().Year()
	today := generic.DateOf(h.Clock())

	if err := h.seedHR(ctx, year); err != nil {
		return err
	}

	staff := []timeoff.User{
		{ID: "limpieza-01", Name: "Lucía", Surname: "Martínez", Department: "Limpieza", WorkGroup: timeoff.GroupProgramado, Seniority: 12},
		{ID: "limpieza-02", Name: "Jorge", Surname: "Sáenz", Department: "Limpieza", WorkGroup: timeoff.GroupProgramado, Seniority: 3},
		{ID: "limpieza-03", Name: "Marta", Surname: "Ochoa", Department: "Limpieza", WorkGroup: timeoff.GroupProgramado, Seniority: 7},
	}
	for _, u := range staff {
		u.Role = timeoff.RoleWorker
		if err := h.seedUser(ctx, u, year, 22); err != nil {
			return err
		}
	}

	monday := nextWeekday(today.AddDays(14), time.Monday)
	requests := []struct {
		userID string
		days   int
	}{
		{"limpieza-01", 5},  // supervisor
		{"limpieza-02", 10}, // supervisor, hr
		{"limpieza-03", 19}, // supervisor, hr, director
	}
	for i, spec := range requests {
		start := monday.AddDays(7 * i * 4)
		req, err := h.seedRequest(ctx, spec.userID, timeoff.TypeVacation, start, start.AddDays(spec.days-1), "")
		if err != nil {
			return err
		}
		if err := h.backdateCurrentStep(ctx, req.ID, 4); err != nil {
			return err
		}
	}
	return nil
}

// backdateCurrentStep moves the current step's due date into the past.
func (h *Handler) backdateCurrentStep(ctx context.Context, requestID string, daysAgo int) error {
	wf, err := h.Approvals.EnsureWorkflow(ctx, requestID)
	if err != nil {
		return err
	}
	if wf.CurrentStep >= len(wf.Steps) {
		return nil
	}
	due := h.Clock().AddDate(0, 0, -daysAgo)
	wf.Steps[wf.CurrentStep].DueDate = &due
	_, err = h.Approvals.Store.UpdateWorkflow(ctx, wf)
	return err
}

// =============================================================================
// SCENARIO: MANAGEMENT
// =============================================================================

func (h *Handler) loadManagementScenario(ctx context.Context) error {
	year := h.Clock().Year()
	if err := h.seedHR(ctx, year); err != nil {
		return err
	}

	director := timeoff.User{
		ID:         "direccion-01",
		Name:       "Elena",
		Surname:    "Garrido",
		Role:       timeoff.RoleWorker,
		Department: "Dirección",
		WorkGroup:  timeoff.GroupTopProgramado,
		Seniority:  15,
	}
	if err := h.seedUser(ctx, director, year, 25); err != nil {
		return err
	}

	start := nextWeekday(generic.DateOf(h.Clock()).AddDays(21), time.Monday)
	_, err := h.seedRequest(ctx, director.ID, timeoff.TypeVacation, start, start.AddDays(11), "Congreso y descanso")
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) seedHR(ctx context.Context, year int) error {
	return h.seedUser(ctx, timeoff.User{
		ID:         "rrhh-01",
		Name:       "Carmen",
		Surname:    "López",
		Role:       timeoff.RoleHR,
		Department: "Recursos Humanos",
		Seniority:  9,
	}, year, 22)
}

func (h *Handler) seedUser(ctx context.Context, u timeoff.User, year, vacationDays int) error {
	if err := h.Store.SaveUser(ctx, u); err != nil {
		return fmt.Errorf("failed to create user %s: %w", u.ID, err)
	}
	return h.Store.SaveBalance(ctx, timeoff.Balance{
		UserID:       u.ID,
		Year:         year,
		VacationDays: vacationDays,
		PersonalDays: 4,
		LeaveDays:    10,
	})
}

func (h *Handler) seedRequest(ctx context.Context, userID string, typ timeoff.RequestType, start, end generic.TimePoint, reason string) (timeoff.Request, error) {
	req, _, err := h.Requests.Submit(ctx, timeoff.SubmitInput{
		UserID:    userID,
		Type:      typ,
		StartDate: start,
		EndDate:   end,
		Reason:    reason,
		Force:     true,
	})
	if err != nil {
		return timeoff.Request{}, fmt.Errorf("failed to seed request for %s: %w", userID, err)
	}
	if _, err := h.Approvals.EnsureWorkflow(ctx, req.ID); err != nil {
		return timeoff.Request{}, err
	}
	return req, nil
}

// approveAll walks a request's workflow to completion as HR.
func (h *Handler) approveAll(ctx context.Context, requestID string) error {
	wf, err := h.Approvals.EnsureWorkflow(ctx, requestID)
	if err != nil {
		return err
	}
	for !wf.Status.Terminal() {
		step, ok := wf.Current()
		if !ok {
			return nil
		}
		wf, err = h.Approvals.Act(ctx, approval.ActInput{
			WorkflowID: wf.ID,
			StepID:     step.ID,
			ApproverID: "rrhh-01",
			Action:     approval.ActionApprove,
			Comments:   "Aprobado",
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// nextFirstOrSixteenth returns the first 1st or 16th strictly after day.
func nextFirstOrSixteenth(day generic.TimePoint) generic.TimePoint {
	if day.Day() < 16 {
		return generic.NewTimePoint(day.Year(), day.Month(), 16)
	}
	return generic.NewTimePoint(day.Year(), day.Month()+1, 1)
}

// nextWeekday returns the first wd on or after day.
func nextWeekday(day generic.TimePoint, wd time.Weekday) generic.TimePoint {
	for day.Weekday() != wd {
		day = day.AddDays(1)
	}
	return day
}
