/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication so the domain types
  (timeoff.Request, approval.Workflow, ...) can change without breaking
  the frontend contract.

NAMING CONVENTION:
  - *DTO:      Response types returned to clients
  - *Request:  Request body types from clients
  - *Response: Complex response wrappers

DATES:
  Calendar dates are YYYY-MM-DD strings, instants are RFC3339.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: PolicyJSON, the policy wire format
*/
package api

import (
	"time"

	"github.com/rioja-cuida/approval-engine/approval"
	"github.com/rioja-cuida/approval-engine/generic"
	"github.com/rioja-cuida/approval-engine/timeoff"
)

// =============================================================================
// USERS
// =============================================================================

// UserDTO represents a user in requests and responses.
type UserDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Surname    string `json:"surname,omitempty"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role"`
	Department string `json:"department"`
	Shift      string `json:"shift,omitempty"`
	WorkGroup  string `json:"work_group,omitempty"`
	Workday    string `json:"workday,omitempty"`
	Seniority  int    `json:"seniority"`
	Phone      string `json:"phone,omitempty"`
}

func toUserDTO(u timeoff.User) UserDTO {
	return UserDTO{
		ID:         u.ID,
		Name:       u.Name,
		Surname:    u.Surname,
		Email:      u.Email,
		Role:       string(u.Role),
		Department: u.Department,
		Shift:      u.Shift,
		WorkGroup:  u.WorkGroup,
		Workday:    u.Workday,
		Seniority:  u.Seniority,
		Phone:      u.Phone,
	}
}

func (d UserDTO) toUser() timeoff.User {
	role := timeoff.Role(d.Role)
	if role == "" {
		role = timeoff.RoleWorker
	}
	return timeoff.User{
		ID:         d.ID,
		Name:       d.Name,
		Surname:    d.Surname,
		Email:      d.Email,
		Role:       role,
		Department: d.Department,
		Shift:      d.Shift,
		WorkGroup:  d.WorkGroup,
		Workday:    d.Workday,
		Seniority:  d.Seniority,
		Phone:      d.Phone,
	}
}

// =============================================================================
// BALANCES
// =============================================================================

// AllotmentDTO is a yearly allotment by type.
type AllotmentDTO struct {
	VacationDays int `json:"vacation_days"`
	PersonalDays int `json:"personal_days"`
	LeaveDays    int `json:"leave_days"`
}

// SetBalanceRequest sets a user's allotment for a year.
type SetBalanceRequest struct {
	Year int `json:"year"`
	AllotmentDTO
}

// BalanceLineDTO is the derived state of one request type.
type BalanceLineDTO struct {
	Type      string  `json:"type"`
	Allotment float64 `json:"allotment"`
	Bonus     float64 `json:"bonus"`
	Approved  float64 `json:"approved"`
	Pending   float64 `json:"pending"`
	Remaining float64 `json:"remaining"`
}

// BalanceDTO is the balance screen: the stored allotment, what the worker
// sees as available (seniority bonus included) and the derived lines.
type BalanceDTO struct {
	UserID    string           `json:"user_id"`
	Year      int              `json:"year"`
	Available AllotmentDTO     `json:"available"`
	Lines     []BalanceLineDTO `json:"lines"`
}

func toBalanceDTO(view timeoff.BalanceView, available timeoff.Balance) BalanceDTO {
	dto := BalanceDTO{
		UserID: view.UserID,
		Year:   view.Year,
		Available: AllotmentDTO{
			VacationDays: available.VacationDays,
			PersonalDays: available.PersonalDays,
			LeaveDays:    available.LeaveDays,
		},
		Lines: make([]BalanceLineDTO, len(view.Lines)),
	}
	for i, l := range view.Lines {
		dto.Lines[i] = BalanceLineDTO{
			Type:      string(l.Type),
			Allotment: l.Allotment.Value.InexactFloat64(),
			Bonus:     l.Bonus.Value.InexactFloat64(),
			Approved:  l.Approved.Value.InexactFloat64(),
			Pending:   l.Pending.Value.InexactFloat64(),
			Remaining: l.Remaining.Value.InexactFloat64(),
		}
	}
	return dto
}

// =============================================================================
// REQUESTS
// =============================================================================

// SubmitRequest is the body of a new time-off request.
type SubmitRequest struct {
	Type          string `json:"type"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	Reason        string `json:"reason,omitempty"`
	Observations  string `json:"observations,omitempty"`
	AttachmentURL string `json:"attachment_url,omitempty"`
	// Force records the request even when a date rule fails; HR decides.
	Force bool `json:"force,omitempty"`
}

// RequestDTO represents a request in API responses.
type RequestDTO struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	Type          string `json:"type"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	Days          int    `json:"days"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	Observations  string `json:"observations,omitempty"`
	AttachmentURL string `json:"attachment_url,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func toRequestDTO(r timeoff.Request) RequestDTO {
	return RequestDTO{
		ID:            r.ID,
		UserID:        r.UserID,
		Type:          string(r.Type),
		StartDate:     r.StartDate.String(),
		EndDate:       r.EndDate.String(),
		Days:          r.DayCount(),
		Status:        string(r.Status),
		Reason:        r.Reason,
		Observations:  r.Observations,
		AttachmentURL: r.AttachmentURL,
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     r.UpdatedAt.Format(time.RFC3339),
	}
}

func toRequestDTOs(rs []timeoff.Request) []RequestDTO {
	dtos := make([]RequestDTO, len(rs))
	for i, r := range rs {
		dtos[i] = toRequestDTO(r)
	}
	return dtos
}

// ResultDTO is a validation outcome.
type ResultDTO struct {
	Valid     bool   `json:"valid"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message"`
	WorkGroup string `json:"work_group,omitempty"`
	Date      string `json:"date,omitempty"`
	Absent    int    `json:"absent,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Headcount int    `json:"headcount,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available int    `json:"available,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func toResultDTO(r timeoff.Result) ResultDTO {
	dto := ResultDTO{
		Valid:     r.Valid,
		Reason:    string(r.Reason),
		Message:   r.Message,
		WorkGroup: r.WorkGroup,
		Absent:    r.Absent,
		Limit:     r.Limit,
		Headcount: r.Headcount,
		Requested: r.Requested,
		Available: r.Available,
		RequestID: r.RequestID,
	}
	if r.Date != nil {
		dto.Date = r.Date.String()
	}
	return dto
}

// PeriodDTO is an inclusive date range.
type PeriodDTO struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func toPeriodDTOs(ps []generic.Period) []PeriodDTO {
	dtos := make([]PeriodDTO, len(ps))
	for i, p := range ps {
		dtos[i] = PeriodDTO{StartDate: p.Start.String(), EndDate: p.End.String()}
	}
	return dtos
}

// ValidationResponse is returned by the dry run and by a rejected submit.
type ValidationResponse struct {
	Result       ResultDTO   `json:"result"`
	Alternatives []PeriodDTO `json:"alternatives"`
}

// SubmitResponse is returned when a request is recorded.
type SubmitResponse struct {
	Request  RequestDTO   `json:"request"`
	Result   ResultDTO    `json:"result"`
	Workflow *WorkflowDTO `json:"workflow,omitempty"`
}

// =============================================================================
// WORKFLOWS
// =============================================================================

// StepDTO represents one approval step.
type StepDTO struct {
	ID             string `json:"id"`
	Level          string `json:"level"`
	ApproverID     string `json:"approver_id,omitempty"`
	Status         string `json:"status"`
	Action         string `json:"action,omitempty"`
	Comments       string `json:"comments,omitempty"`
	CreatedAt      string `json:"created_at"`
	ProcessedAt    string `json:"processed_at,omitempty"`
	DueDate        string `json:"due_date,omitempty"`
	EscalationDays int    `json:"escalation_days"`
	Escalated      bool   `json:"escalated"`
}

// WorkflowDTO represents an approval workflow.
type WorkflowDTO struct {
	ID            string    `json:"id"`
	RequestID     string    `json:"request_id"`
	Status        string    `json:"status"`
	CurrentStep   int       `json:"current_step"`
	AutoEscalated bool      `json:"auto_escalated"`
	Version       int       `json:"version"`
	CreatedAt     string    `json:"created_at"`
	CompletedAt   string    `json:"completed_at,omitempty"`
	Steps         []StepDTO `json:"steps"`
}

func toWorkflowDTO(wf approval.Workflow) WorkflowDTO {
	dto := WorkflowDTO{
		ID:            wf.ID,
		RequestID:     wf.RequestID,
		Status:        string(wf.Status),
		CurrentStep:   wf.CurrentStep,
		AutoEscalated: wf.AutoEscalated,
		Version:       wf.Version,
		CreatedAt:     wf.CreatedAt.Format(time.RFC3339),
		CompletedAt:   formatOptional(wf.CompletedAt),
		Steps:         make([]StepDTO, len(wf.Steps)),
	}
	for i, st := range wf.Steps {
		dto.Steps[i] = StepDTO{
			ID:             st.ID,
			Level:          st.Level.String(),
			ApproverID:     st.ApproverID,
			Status:         string(st.Status),
			Action:         string(st.Action),
			Comments:       st.Comments,
			CreatedAt:      st.CreatedAt.Format(time.RFC3339),
			ProcessedAt:    formatOptional(st.ProcessedAt),
			DueDate:        formatOptional(st.DueDate),
			EscalationDays: st.EscalationDays,
			Escalated:      st.Escalated,
		}
	}
	return dto
}

// ActionRequest is an approver's decision on a step.
type ActionRequest struct {
	ApproverID      string `json:"approver_id"`
	Action          string `json:"action"`
	Comments        string `json:"comments,omitempty"`
	ExpectedVersion int    `json:"expected_version,omitempty"`
}

// EscalationRunResponse reports a manual escalation pass.
type EscalationRunResponse struct {
	WorkflowsCreated int `json:"workflows_created"`
	Escalated        int `json:"escalated"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO describes a demo data set.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a demo data set.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
