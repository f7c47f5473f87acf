/*
Package approval implements the multi-level approval workflow for
time-off requests.

PURPOSE:
  A submitted request is matched against approval policies. Every matched
  rule names the authority levels that must sign off; the union of those
  levels, ordered by hierarchy, becomes the workflow's steps. HR actors
  then walk the steps one at a time. Steps that sit too long past their
  due date are flagged for escalation by a periodic check.

HIERARCHY (fixed, not configurable per policy):
  supervisor < hr < director < ceo

STATE MACHINE:
  Workflow: in_progress -> completed            (last step approved)
            in_progress -> rejected             (any step rejected)
            in_progress <-> escalated           (current step overdue; cleared on advance)
  Step:     pending -> approved | rejected
            pending -> pending                  (request_info)
            pending -> skipped                  (an earlier step was rejected)

  completed and rejected are terminal.

LAYERS:
  - matcher.go:    Rule selection (pure)
  - builder.go:    Rules -> Workflow (pure, clock and ids injected)
  - executor.go:   Approval actions (pure, works on copies)
  - escalation.go: Overdue detection (pure)
  - service.go:    Persistence, request status sync, audit

SEE ALSO:
  - timeoff/validator.go: Date rules that gate submission
*/
package approval

import (
	"fmt"
	"strings"
	"time"

	"github.com/rioja-cuida/approval-engine/timeoff"
)

// =============================================================================
// LEVEL - Approval authority tier
// =============================================================================

// Level is an approval authority. Levels are totally ordered; a lower value
// signs off earlier.
type Level int

const (
	LevelSupervisor Level = iota + 1
	LevelHR
	LevelDirector
	LevelCEO
)

// Hierarchy lists every level in sign-off order.
var Hierarchy = []Level{LevelSupervisor, LevelHR, LevelDirector, LevelCEO}

func (l Level) String() string {
	switch l {
	case LevelSupervisor:
		return "supervisor"
	case LevelHR:
		return "hr"
	case LevelDirector:
		return "director"
	case LevelCEO:
		return "ceo"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	return l >= LevelSupervisor && l <= LevelCEO
}

// ParseLevel parses a level name, case-insensitively.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, l := range Hierarchy {
		if l.String() == name {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown approval level %q", s)
}

func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid approval level %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// =============================================================================
// ACTION
// =============================================================================

// Action is what an approver does to the current step.
type Action string

const (
	ActionApprove     Action = "approve"
	ActionReject      Action = "reject"
	ActionRequestInfo Action = "request_info"
)

// ParseAction accepts the canonical action names.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionApprove, ActionReject, ActionRequestInfo:
		return Action(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// =============================================================================
// RULES AND POLICIES
// =============================================================================

// AnyRequestType is the wildcard request type in a rule.
const AnyRequestType timeoff.RequestType = "*"

// Rule names the levels that must approve matching requests.
//
// MinDays and MaxDays bound the inclusive day count of vacation requests;
// zero leaves that side open. EscalationDays, when positive, is how long a
// step for one of this rule's levels may stay pending before escalation.
type Rule struct {
	ID                string
	RequestType       timeoff.RequestType
	Department        string
	MinDays           int
	MaxDays           int
	RequiredApprovers []Level
	EscalationDays    int
}

// Policy groups rules. Only active policies take part in matching.
type Policy struct {
	ID     string
	Name   string
	Active bool
	Rules  []Rule
}

// =============================================================================
// STEPS AND WORKFLOWS
// =============================================================================

type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepApproved StepStatus = "approved"
	StepRejected StepStatus = "rejected"
	StepSkipped  StepStatus = "skipped"
)

// Step is one level's sign-off within a workflow.
type Step struct {
	ID             string
	RequestID      string
	Level          Level
	ApproverID     string
	Status         StepStatus
	Action         Action
	Comments       string
	CreatedAt      time.Time
	ProcessedAt    *time.Time
	DueDate        *time.Time // set when the step becomes current
	EscalationDays int
	Escalated      bool
}

type WorkflowStatus string

const (
	WorkflowInProgress WorkflowStatus = "in_progress"
	WorkflowCompleted  WorkflowStatus = "completed"
	WorkflowRejected   WorkflowStatus = "rejected"
	WorkflowEscalated  WorkflowStatus = "escalated"
)

// ParseWorkflowStatus accepts the canonical status names.
func ParseWorkflowStatus(s string) (WorkflowStatus, error) {
	switch WorkflowStatus(s) {
	case WorkflowInProgress, WorkflowCompleted, WorkflowRejected, WorkflowEscalated:
		return WorkflowStatus(s), nil
	}
	return "", fmt.Errorf("unknown workflow status %q", s)
}

// Terminal reports whether no further action is accepted.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowCompleted || s == WorkflowRejected
}

// Workflow is the ordered chain of steps for a single request.
//
// While the workflow is open, CurrentStep indexes a pending step.
// Version increases on every persisted change.
type Workflow struct {
	ID            string
	RequestID     string
	Status        WorkflowStatus
	CurrentStep   int
	Steps         []Step
	CreatedAt     time.Time
	CompletedAt   *time.Time
	AutoEscalated bool
	Version       int
}

// Current returns the step awaiting action, if any.
func (w Workflow) Current() (Step, bool) {
	if w.Status.Terminal() || w.CurrentStep < 0 || w.CurrentStep >= len(w.Steps) {
		return Step{}, false
	}
	return w.Steps[w.CurrentStep], true
}

// Levels returns the levels of the workflow's steps in order.
func (w Workflow) Levels() []Level {
	levels := make([]Level, len(w.Steps))
	for i, s := range w.Steps {
		levels[i] = s.Level
	}
	return levels
}

// StepIndex returns the position of a step id, or -1.
func (w Workflow) StepIndex(stepID string) int {
	for i, s := range w.Steps {
		if s.ID == stepID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy.
func (w Workflow) Clone() Workflow {
	out := w
	out.Steps = make([]Step, len(w.Steps))
	for i, s := range w.Steps {
		out.Steps[i] = s
		out.Steps[i].ProcessedAt = copyTime(s.ProcessedAt)
		out.Steps[i].DueDate = copyTime(s.DueDate)
	}
	out.CompletedAt = copyTime(w.CompletedAt)
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
