package approval

// =============================================================================
// WORKFLOW EXECUTOR
// =============================================================================

// ProcessApproval applies an approver's action to a step and returns the
// resulting workflow. The input is never modified.
//
//	approve       step approved; next step becomes current, or the
//	              workflow completes after the last one
//	reject        step rejected, later steps skipped, workflow rejected
//	request_info  step stays pending and current
//
// Errors (all wrapped in *StepError):
//
//	ErrInvalidAction   unknown action
//	ErrWorkflowClosed  workflow already completed or rejected
//	ErrStepNotFound    step id not in the workflow
//	ErrStepNotCurrent  step is not the one awaiting action
func (e *Engine) ProcessApproval(wf Workflow, stepID, approverID string, action Action, comments string) (Workflow, error) {
	fail := func(err error) (Workflow, error) {
		return wf, &StepError{WorkflowID: wf.ID, StepID: stepID, Err: err}
	}

	if _, err := ParseAction(string(action)); err != nil {
		return fail(ErrInvalidAction)
	}
	if wf.Status.Terminal() {
		return fail(ErrWorkflowClosed)
	}
	idx := wf.StepIndex(stepID)
	if idx < 0 {
		return fail(ErrStepNotFound)
	}
	if idx != wf.CurrentStep {
		return fail(ErrStepNotCurrent)
	}

	now := e.clock()
	out := wf.Clone()
	step := &out.Steps[idx]
	step.ApproverID = approverID
	step.Action = action
	step.Comments = comments
	step.ProcessedAt = &now

	switch action {
	case ActionApprove:
		step.Status = StepApproved
		out.CurrentStep++
		if out.CurrentStep >= len(out.Steps) {
			out.Status = WorkflowCompleted
			out.CompletedAt = &now
			break
		}
		out.Status = WorkflowInProgress
		next := &out.Steps[out.CurrentStep]
		next.DueDate = e.dueAfter(now, next.EscalationDays)

	case ActionReject:
		step.Status = StepRejected
		for i := idx + 1; i < len(out.Steps); i++ {
			out.Steps[i].Status = StepSkipped
		}
		out.Status = WorkflowRejected
		out.CompletedAt = &now

	case ActionRequestInfo:
		step.Status = StepPending
	}

	return out, nil
}
