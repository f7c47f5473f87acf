// Package memory provides an in-memory store for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/rioja-cuida/approval-engine/approval"
	"github.com/rioja-cuida/approval-engine/generic"
	"github.com/rioja-cuida/approval-engine/timeoff"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Store implements timeoff.Store, approval.Store and generic.AuditLog.
type Store struct {
	mu        sync.RWMutex
	users     map[string]timeoff.User
	balances  map[balanceKey]timeoff.Balance
	requests  map[string]timeoff.Request
	workflows map[string]approval.Workflow
	byRequest map[string]string // request id -> workflow id
	policies  map[string]approval.Policy
	audit     []generic.AuditEntry
}

type balanceKey struct {
	UserID string
	Year   int
}

var (
	_ timeoff.Store    = (*Store)(nil)
	_ approval.Store   = (*Store)(nil)
	_ generic.AuditLog = (*Store)(nil)
)

func New() *Store {
	s := &Store{}
	s.reset()
	return s
}

// Reset drops everything.
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

func (s *Store) reset() {
	s.users = make(map[string]timeoff.User)
	s.balances = make(map[balanceKey]timeoff.Balance)
	s.requests = make(map[string]timeoff.Request)
	s.workflows = make(map[string]approval.Workflow)
	s.byRequest = make(map[string]string)
	s.policies = make(map[string]approval.Policy)
	s.audit = nil
}

// =============================================================================
// USERS AND BALANCES
// =============================================================================

func (s *Store) SaveUser(_ context.Context, user timeoff.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (timeoff.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return timeoff.User{}, generic.NotFound("user", id)
	}
	return u, nil
}

func (s *Store) ListUsers(_ context.Context) ([]timeoff.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]timeoff.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListUsersByDepartment(ctx context.Context, department string) ([]timeoff.User, error) {
	all, _ := s.ListUsers(ctx)
	var out []timeoff.User
	for _, u := range all {
		if u.Department == department {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) SaveBalance(_ context.Context, b timeoff.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[balanceKey{b.UserID, b.Year}] = b
	return nil
}

func (s *Store) GetBalance(_ context.Context, userID string, year int) (timeoff.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.balances[balanceKey{userID, year}]
	if !ok {
		return timeoff.Balance{}, generic.NotFound("balance", userID)
	}
	return b, nil
}

// =============================================================================
// REQUESTS
// =============================================================================

func (s *Store) SaveRequest(_ context.Context, req timeoff.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	return nil
}

func (s *Store) GetRequest(_ context.Context, id string) (timeoff.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return timeoff.Request{}, generic.NotFound("request", id)
	}
	return r, nil
}

// ListRequests returns matching requests, oldest first.
func (s *Store) ListRequests(_ context.Context, filter timeoff.RequestFilter) ([]timeoff.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []timeoff.Request
	for _, r := range s.requests {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// WORKFLOWS
// =============================================================================

func (s *Store) CreateWorkflow(_ context.Context, wf approval.Workflow) (approval.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byRequest[wf.RequestID]; exists {
		return approval.Workflow{}, generic.ErrDuplicateWorkflow
	}
	stored := wf.Clone()
	stored.Version = 1
	s.workflows[stored.ID] = stored
	s.byRequest[stored.RequestID] = stored.ID
	return stored.Clone(), nil
}

func (s *Store) UpdateWorkflow(_ context.Context, wf approval.Workflow) (approval.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.workflows[wf.ID]
	if !ok {
		return approval.Workflow{}, generic.NotFound("workflow", wf.ID)
	}
	if current.Version != wf.Version {
		return approval.Workflow{}, &generic.VersionConflictError{Kind: "workflow", ID: wf.ID, Expected: wf.Version}
	}
	stored := wf.Clone()
	stored.Version = current.Version + 1
	s.workflows[stored.ID] = stored
	return stored.Clone(), nil
}

func (s *Store) GetWorkflow(_ context.Context, id string) (approval.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return approval.Workflow{}, generic.NotFound("workflow", id)
	}
	return wf.Clone(), nil
}

func (s *Store) GetWorkflowByRequest(ctx context.Context, requestID string) (approval.Workflow, error) {
	s.mu.RLock()
	id, ok := s.byRequest[requestID]
	s.mu.RUnlock()
	if !ok {
		return approval.Workflow{}, generic.NotFound("workflow", "request "+requestID)
	}
	return s.GetWorkflow(ctx, id)
}

func (s *Store) ListWorkflows(_ context.Context, statuses ...approval.WorkflowStatus) ([]approval.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []approval.Workflow
	for _, wf := range s.workflows {
		if len(statuses) > 0 && !hasStatus(statuses, wf.Status) {
			continue
		}
		out = append(out, wf.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func hasStatus(statuses []approval.WorkflowStatus, s approval.WorkflowStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

// =============================================================================
// POLICIES
// =============================================================================

func (s *Store) SavePolicy(_ context.Context, p approval.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.ID] = p
	return nil
}

func (s *Store) ListPolicies(_ context.Context) ([]approval.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]approval.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) Append(_ context.Context, entry generic.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
	return nil
}

func (s *Store) Query(_ context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []generic.AuditEntry
	for _, e := range s.audit {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}
