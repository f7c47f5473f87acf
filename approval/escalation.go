package approval

import (
	"go.uber.org/zap"
)

// =============================================================================
// ESCALATION
// =============================================================================

// CheckEscalation flags the current step when it is past its due date.
// The workflow moves to escalated and AutoEscalated is set. The boolean
// reports whether anything changed; a step is only ever flagged once.
//
// Later steps are not checked: they have no due date until they become
// current.
func (e *Engine) CheckEscalation(wf Workflow) (Workflow, bool) {
	step, ok := wf.Current()
	if !ok || step.Status != StepPending || step.Escalated || step.DueDate == nil {
		return wf, false
	}
	if !e.clock().After(*step.DueDate) {
		return wf, false
	}

	out := wf.Clone()
	out.Steps[out.CurrentStep].Escalated = true
	out.AutoEscalated = true
	out.Status = WorkflowEscalated

	e.logger.Info("approval step escalated",
		zap.String("workflow_id", wf.ID),
		zap.String("request_id", wf.RequestID),
		zap.String("step_id", step.ID),
		zap.Stringer("level", step.Level),
		zap.Time("due_date", *step.DueDate))

	return out, true
}
