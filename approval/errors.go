package approval

import (
	"errors"
	"fmt"
)

var (
	// ErrStepNotFound means the step id is not part of the workflow.
	ErrStepNotFound = errors.New("approval step not found")

	// ErrStepNotCurrent means the action targets a step other than the current one.
	ErrStepNotCurrent = errors.New("approval step is not the current step")

	// ErrWorkflowClosed means the workflow is completed or rejected.
	ErrWorkflowClosed = errors.New("approval workflow is closed")

	// ErrInvalidAction means the action is not approve, reject or request_info.
	ErrInvalidAction = errors.New("invalid approval action")

	// ErrInvalidPolicy means a policy or one of its rules is malformed.
	ErrInvalidPolicy = errors.New("invalid approval policy")
)

// StepError ties an executor error to the workflow and step it concerns.
type StepError struct {
	WorkflowID string
	StepID     string
	Err        error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("workflow %s, step %s: %v", e.WorkflowID, e.StepID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// IsConflict reports whether err is a state conflict (closed workflow or
// out-of-order step) rather than a malformed call.
func IsConflict(err error) bool {
	return errors.Is(err, ErrWorkflowClosed) || errors.Is(err, ErrStepNotCurrent)
}
