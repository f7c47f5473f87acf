package approval

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rioja-cuida/approval-engine/generic"
	"github.com/rioja-cuida/approval-engine/timeoff"
)

// =============================================================================
// STORE - Workflow and policy persistence
// =============================================================================

// Store persists workflows and policies.
//
// CreateWorkflow returns generic.ErrDuplicateWorkflow when the request
// already has one. UpdateWorkflow succeeds only if the stored version
// equals wf.Version and returns the workflow with its new version;
// otherwise it returns a *generic.VersionConflictError.
type Store interface {
	CreateWorkflow(ctx context.Context, wf Workflow) (Workflow, error)
	UpdateWorkflow(ctx context.Context, wf Workflow) (Workflow, error)
	GetWorkflow(ctx context.Context, id string) (Workflow, error)
	GetWorkflowByRequest(ctx context.Context, requestID string) (Workflow, error)
	ListWorkflows(ctx context.Context, statuses ...WorkflowStatus) ([]Workflow, error)

	SavePolicy(ctx context.Context, p Policy) error
	ListPolicies(ctx context.Context) ([]Policy, error)
}

// Requests is the slice of timeoff.RequestService the workflow side needs.
type Requests interface {
	Get(ctx context.Context, id string) (timeoff.Request, error)
	ListPending(ctx context.Context) ([]timeoff.Request, error)
	SetStatus(ctx context.Context, id string, status timeoff.RequestStatus, observations string) (timeoff.Request, error)
}

// Users looks up requesters.
type Users interface {
	GetUser(ctx context.Context, id string) (timeoff.User, error)
}

// =============================================================================
// SERVICE
// =============================================================================

// SystemActor is the audit actor for timer-driven changes.
const SystemActor = "system"

// Service persists workflows and keeps request status in step with them.
type Service struct {
	Engine   *Engine
	Store    Store
	Policies *PolicyStore
	Requests Requests
	Users    Users
	AuditLog generic.AuditLog // optional
	Logger   *zap.Logger
}

// NewService wires a workflow service.
func NewService(engine *Engine, store Store, policies *PolicyStore, requests Requests, users Users, auditLog generic.AuditLog, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Engine:   engine,
		Store:    store,
		Policies: policies,
		Requests: requests,
		Users:    users,
		AuditLog: auditLog,
		Logger:   logger,
	}
}

// EnsureWorkflow returns the request's workflow, building and storing one
// if none exists. Only open requests (pending or moreInfo) get a new one.
func (s *Service) EnsureWorkflow(ctx context.Context, requestID string) (Workflow, error) {
	wf, err := s.Store.GetWorkflowByRequest(ctx, requestID)
	if err == nil {
		return wf, nil
	}
	if !errors.Is(err, generic.ErrEntityNotFound) {
		return Workflow{}, err
	}

	req, err := s.Requests.Get(ctx, requestID)
	if err != nil {
		return Workflow{}, err
	}
	if req.Status != timeoff.StatusPending && req.Status != timeoff.StatusMoreInfo {
		return Workflow{}, fmt.Errorf("%w: request %s is already %s", ErrWorkflowClosed, requestID, req.Status)
	}
	user, err := s.Users.GetUser(ctx, req.UserID)
	if err != nil {
		return Workflow{}, err
	}

	built := s.Engine.CreateWorkflow(req, user)
	wf, err = s.Store.CreateWorkflow(ctx, built)
	if errors.Is(err, generic.ErrDuplicateWorkflow) {
		// Another caller won the race; theirs is the one.
		return s.Store.GetWorkflowByRequest(ctx, requestID)
	}
	if err != nil {
		return Workflow{}, fmt.Errorf("failed to store workflow for request %s: %w", requestID, err)
	}

	s.audit(ctx, generic.AuditEntry{
		ActorID:    req.UserID,
		Action:     generic.AuditWorkflowCreated,
		RequestID:  requestID,
		WorkflowID: wf.ID,
		Payload:    map[string]any{"levels": levelNames(wf.Levels())},
	})
	s.Logger.Info("workflow created",
		zap.String("workflow_id", wf.ID),
		zap.String("request_id", requestID),
		zap.Strings("levels", levelNames(wf.Levels())))

	return wf, nil
}

// SyncPending makes sure every open request has a workflow. It returns
// how many were created.
func (s *Service) SyncPending(ctx context.Context) (int, error) {
	pending, err := s.Requests.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, req := range pending {
		if _, err := s.Store.GetWorkflowByRequest(ctx, req.ID); err == nil {
			continue
		} else if !errors.Is(err, generic.ErrEntityNotFound) {
			return created, err
		}
		if _, err := s.EnsureWorkflow(ctx, req.ID); err != nil {
			s.Logger.Warn("failed to create workflow", zap.String("request_id", req.ID), zap.Error(err))
			continue
		}
		created++
	}
	return created, nil
}

// ActInput is one approver decision.
type ActInput struct {
	WorkflowID string
	StepID     string
	ApproverID string
	Action     Action
	Comments   string
	// ExpectedVersion, when positive, must equal the stored version.
	ExpectedVersion int
}

// Act applies an approval action, persists and audits the workflow, then
// syncs the request status:
//
//	completed                          -> approved
//	rejected                           -> rejected
//	request_info                       -> moreInfo
//	approve (not last) while moreInfo  -> pending
func (s *Service) Act(ctx context.Context, in ActInput) (Workflow, error) {
	wf, err := s.Store.GetWorkflow(ctx, in.WorkflowID)
	if err != nil {
		return Workflow{}, err
	}
	if in.ExpectedVersion > 0 && in.ExpectedVersion != wf.Version {
		return Workflow{}, &generic.VersionConflictError{Kind: "workflow", ID: wf.ID, Expected: in.ExpectedVersion}
	}

	next, err := s.Engine.ProcessApproval(wf, in.StepID, in.ApproverID, in.Action, in.Comments)
	if err != nil {
		return Workflow{}, err
	}

	saved, err := s.Store.UpdateWorkflow(ctx, next)
	if err != nil {
		return Workflow{}, err
	}

	s.audit(ctx, generic.AuditEntry{
		ActorID:    in.ApproverID,
		Action:     auditAction(in.Action),
		RequestID:  saved.RequestID,
		WorkflowID: saved.ID,
		Payload: map[string]any{
			"step_id":  in.StepID,
			"comments": in.Comments,
		},
	})
	if saved.Status == WorkflowCompleted {
		s.audit(ctx, generic.AuditEntry{
			ActorID:    in.ApproverID,
			Action:     generic.AuditWorkflowComplete,
			RequestID:  saved.RequestID,
			WorkflowID: saved.ID,
		})
	}

	// The workflow is already stored; SyncPending and operators repair
	// the request from this log line.
	if err := s.syncRequest(ctx, saved, in); err != nil {
		s.Logger.Error("request status out of step with workflow",
			zap.String("workflow_id", saved.ID),
			zap.String("request_id", saved.RequestID),
			zap.String("workflow_status", string(saved.Status)),
			zap.Int("version", saved.Version),
			zap.Error(err))
		return saved, err
	}

	s.Logger.Info("approval action processed",
		zap.String("workflow_id", saved.ID),
		zap.String("step_id", in.StepID),
		zap.String("approver_id", in.ApproverID),
		zap.String("action", string(in.Action)),
		zap.String("status", string(saved.Status)),
		zap.Int("version", saved.Version))

	return saved, nil
}

func (s *Service) syncRequest(ctx context.Context, wf Workflow, in ActInput) error {
	var status timeoff.RequestStatus
	observations := in.Comments

	switch {
	case wf.Status == WorkflowCompleted:
		status = timeoff.StatusApproved
	case wf.Status == WorkflowRejected:
		status = timeoff.StatusRejected
	case in.Action == ActionRequestInfo:
		status = timeoff.StatusMoreInfo
	case in.Action == ActionApprove:
		req, err := s.Requests.Get(ctx, wf.RequestID)
		if err != nil {
			return err
		}
		if req.Status != timeoff.StatusMoreInfo {
			return nil
		}
		status = timeoff.StatusPending
		observations = ""
	default:
		return nil
	}

	if _, err := s.Requests.SetStatus(ctx, wf.RequestID, status, observations); err != nil {
		return fmt.Errorf("workflow %s saved but request %s status not updated: %w", wf.ID, wf.RequestID, err)
	}
	return nil
}

// EscalateAll runs the escalation check over every open workflow and
// stores the ones that changed. A workflow modified concurrently is
// skipped until the next run.
func (s *Service) EscalateAll(ctx context.Context) (int, error) {
	open, err := s.Store.ListWorkflows(ctx, WorkflowInProgress, WorkflowEscalated)
	if err != nil {
		return 0, err
	}

	escalated := 0
	for _, wf := range open {
		if err := ctx.Err(); err != nil {
			return escalated, err
		}
		next, changed := s.Engine.CheckEscalation(wf)
		if !changed {
			continue
		}
		saved, err := s.Store.UpdateWorkflow(ctx, next)
		if generic.IsRetryable(err) {
			s.Logger.Debug("workflow changed during escalation, skipping", zap.String("workflow_id", wf.ID))
			continue
		}
		if err != nil {
			return escalated, err
		}
		step, _ := saved.Current()
		s.audit(ctx, generic.AuditEntry{
			ActorID:    SystemActor,
			Action:     generic.AuditStepEscalated,
			RequestID:  saved.RequestID,
			WorkflowID: saved.ID,
			Payload: map[string]any{
				"step_id": step.ID,
				"level":   step.Level.String(),
			},
		})
		escalated++
	}
	return escalated, nil
}

// GetWorkflow returns a workflow by id.
func (s *Service) GetWorkflow(ctx context.Context, id string) (Workflow, error) {
	return s.Store.GetWorkflow(ctx, id)
}

// WorkflowForRequest returns the workflow of a request without creating one.
func (s *Service) WorkflowForRequest(ctx context.Context, requestID string) (Workflow, error) {
	return s.Store.GetWorkflowByRequest(ctx, requestID)
}

// ListWorkflows returns workflows, optionally filtered by status.
func (s *Service) ListWorkflows(ctx context.Context, statuses ...WorkflowStatus) ([]Workflow, error) {
	return s.Store.ListWorkflows(ctx, statuses...)
}

// =============================================================================
// POLICIES
// =============================================================================

// LoadPolicies fills the in-memory policy set from the store. When the
// store holds none, defaults are stored first.
func (s *Service) LoadPolicies(ctx context.Context, defaults []Policy) error {
	stored, err := s.Store.ListPolicies(ctx)
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		for _, p := range defaults {
			if err := p.Validate(); err != nil {
				return err
			}
			if err := s.Store.SavePolicy(ctx, p); err != nil {
				return err
			}
		}
		stored = defaults
		s.Logger.Info("seeded approval policies", zap.Int("count", len(defaults)))
	}
	return s.Policies.Replace(stored)
}

// SavePolicy validates, stores and activates a policy.
func (s *Service) SavePolicy(ctx context.Context, actorID string, p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.Store.SavePolicy(ctx, p); err != nil {
		return err
	}
	if err := s.Policies.Upsert(p); err != nil {
		return err
	}
	s.audit(ctx, generic.AuditEntry{
		ActorID: actorID,
		Action:  generic.AuditPolicyChanged,
		Payload: map[string]any{"policy_id": p.ID, "active": p.Active, "rules": len(p.Rules)},
	})
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) audit(ctx context.Context, entry generic.AuditEntry) {
	if s.AuditLog == nil {
		return
	}
	entry.ID = uuid.NewString()
	entry.Timestamp = s.Engine.Now()
	if err := s.AuditLog.Append(ctx, entry); err != nil {
		s.Logger.Warn("failed to append audit entry", zap.String("action", string(entry.Action)), zap.Error(err))
	}
}

func auditAction(a Action) generic.AuditAction {
	switch a {
	case ActionApprove:
		return generic.AuditStepApproved
	case ActionReject:
		return generic.AuditStepRejected
	}
	return generic.AuditInfoRequested
}

func levelNames(levels []Level) []string {
	names := make([]string, len(levels))
	for i, l := range levels {
		names[i] = l.String()
	}
	return names
}
