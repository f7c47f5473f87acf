package approval

import (
	"sort"

	"go.uber.org/zap"

	"github.com/rioja-cuida/approval-engine/timeoff"
)

// =============================================================================
// WORKFLOW BUILDER
// =============================================================================

// CreateWorkflow builds the approval chain for a request.
//
// Levels required by the matched rules are de-duplicated and ordered by
// Hierarchy. A step's escalation window is the smallest EscalationDays
// among the matched rules requiring its level, else the engine default.
// Only the first step gets a due date now; later steps get theirs when
// they become current. When nothing matches, the chain is the single
// fallback level.
func (e *Engine) CreateWorkflow(req timeoff.Request, user timeoff.User) Workflow {
	now := e.clock()
	rules := e.ApplicableRules(req, user)

	windows := make(map[Level]int)
	for _, r := range rules {
		for _, l := range r.RequiredApprovers {
			current, seen := windows[l]
			switch {
			case !seen:
				windows[l] = r.EscalationDays
			case r.EscalationDays > 0 && (current == 0 || r.EscalationDays < current):
				windows[l] = r.EscalationDays
			}
		}
	}
	if len(windows) == 0 {
		e.logger.Warn("no approval rule matched, using fallback level",
			zap.String("request_id", req.ID),
			zap.String("type", string(req.Type)),
			zap.String("department", user.Department),
			zap.Stringer("level", e.fallbackLevel))
		windows[e.fallbackLevel] = 0
	}

	levels := make([]Level, 0, len(windows))
	for l := range windows {
		levels = append(levels, l)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	wf := Workflow{
		ID:        e.newID(),
		RequestID: req.ID,
		Status:    WorkflowInProgress,
		Steps:     make([]Step, len(levels)),
		CreatedAt: now,
	}
	for i, l := range levels {
		window := windows[l]
		if window <= 0 {
			window = e.defaultEscalation
		}
		wf.Steps[i] = Step{
			ID:             e.newID(),
			RequestID:      req.ID,
			Level:          l,
			Status:         StepPending,
			CreatedAt:      now,
			EscalationDays: window,
		}
	}
	wf.Steps[0].DueDate = e.dueAfter(now, wf.Steps[0].EscalationDays)

	return wf
}
