/*
store.go - Audit log contract

PURPOSE:
  Every state change driven by a person or by the escalation timer is
  recorded as an AuditEntry: who did what, to which request, when. The
  audit log is separate from the business tables so that workflows can be
  rewritten (status transitions) while the history of how they got there
  stays intact.

APPEND-ONLY CONTRACT:
  - Append(): the only write
  - Query():  filtered reads, newest last
  - NO Update() or Delete() methods exist

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite-backed
  - store/memory/memory.go: In-memory for testing

SEE ALSO:
  - approval/service.go: Writes entries for every approval action
  - timeoff/request.go:  Writes entries on submission
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// AUDIT LOG - Tracks who did what when
// =============================================================================

// AuditEntry records who did what when.
type AuditEntry struct {
	ID         string
	Timestamp  time.Time
	ActorID    string // who performed the action; "system" for the escalation timer
	Action     AuditAction
	RequestID  string
	WorkflowID string
	Payload    map[string]any // action-specific data
}

type AuditAction string

const (
	AuditRequestCreated   AuditAction = "request_created"
	AuditWorkflowCreated  AuditAction = "workflow_created"
	AuditStepApproved     AuditAction = "step_approved"
	AuditStepRejected     AuditAction = "step_rejected"
	AuditInfoRequested    AuditAction = "info_requested"
	AuditStepEscalated    AuditAction = "step_escalated"
	AuditWorkflowComplete AuditAction = "workflow_completed"
	AuditPolicyChanged    AuditAction = "policy_changed"
)

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	RequestID  *string
	WorkflowID *string
	ActorID    *string
	Actions    []AuditAction
	From       *time.Time
	To         *time.Time
}

// Matches reports whether the entry passes every set field of the filter.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.RequestID != nil && e.RequestID != *f.RequestID {
		return false
	}
	if f.WorkflowID != nil && e.WorkflowID != *f.WorkflowID {
		return false
	}
	if f.ActorID != nil && e.ActorID != *f.ActorID {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	return true
}
