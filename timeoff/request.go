package timeoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rioja-cuida/approval-engine/generic"
)

// =============================================================================
// STORE - Persistence contract for users, balances and requests
// =============================================================================

// Store persists the time-off model. Implementations: store/sqlite and
// store/memory.
type Store interface {
	SaveUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	ListUsersByDepartment(ctx context.Context, department string) ([]User, error)

	SaveBalance(ctx context.Context, balance Balance) error
	GetBalance(ctx context.Context, userID string, year int) (Balance, error)

	SaveRequest(ctx context.Context, req Request) error
	GetRequest(ctx context.Context, id string) (Request, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]Request, error)
}

// RequestFilter selects requests. Empty fields match everything.
type RequestFilter struct {
	UserIDs  []string
	Statuses []RequestStatus
	Type     RequestType
}

// Matches reports whether a request passes the filter.
func (f RequestFilter) Matches(r Request) bool {
	if len(f.UserIDs) > 0 && !contains(f.UserIDs, r.UserID) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, r.Status) {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	return true
}

func contains[T comparable](xs []T, x T) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// =============================================================================
// VALIDATION ERROR
// =============================================================================

// ValidationError carries the Result of a failed submission.
type ValidationError struct {
	Result       Result
	Alternatives []generic.Period
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Result.Reason, e.Result.Message)
}

func (e *ValidationError) Unwrap() error {
	return generic.ErrValidationFailed
}

// =============================================================================
// REQUEST SERVICE - Submission and status lifecycle
// =============================================================================

// RequestService validates and records requests. Workflow creation lives
// in approval.Service, which calls SetStatus when a workflow closes.
type RequestService struct {
	Store     Store
	Validator *Validator
	Ledger    *BalanceLedger
	AuditLog  generic.AuditLog // optional
	Logger    *zap.Logger
	NewID     func() string
	Clock     func() time.Time
}

// NewRequestService wires a service with production defaults.
func NewRequestService(store Store, validator *Validator, auditLog generic.AuditLog, logger *zap.Logger) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestService{
		Store:     store,
		Validator: validator,
		Ledger:    NewBalanceLedger(validator.Config().SeniorityBonusEvery),
		AuditLog:  auditLog,
		Logger:    logger,
		NewID:     uuid.NewString,
		Clock:     time.Now,
	}
}

// SubmitInput is what a worker fills in.
type SubmitInput struct {
	UserID        string
	Type          RequestType
	StartDate     generic.TimePoint
	EndDate       generic.TimePoint
	Reason        string
	Observations  string
	AttachmentURL string
	// Force records the request even when validation fails. Used by HR
	// when filing on behalf of a worker.
	Force bool
}

func (in SubmitInput) draft() Request {
	return Request{
		UserID:        in.UserID,
		Type:          in.Type,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		Status:        StatusPending,
		Reason:        in.Reason,
		Observations:  in.Observations,
		AttachmentURL: in.AttachmentURL,
	}
}

// Validate runs the date rules for a prospective request without writing
// anything. Alternatives are only searched for failed vacation requests.
func (rs *RequestService) Validate(ctx context.Context, in SubmitInput) (Result, []generic.Period, error) {
	user, snap, err := rs.snapshot(ctx, in.UserID, in.StartDate.Year())
	if err != nil {
		return Result{}, nil, err
	}

	res := rs.Validator.ValidateRequest(in.draft(), user, snap)
	if res.Valid || in.Type != TypeVacation {
		return res, nil, nil
	}
	return res, rs.Validator.SuggestAlternativeDates(in.StartDate, in.EndDate, user, snap), nil
}

// Submit validates and records a pending request. A failed validation
// returns a *ValidationError unless in.Force is set.
func (rs *RequestService) Submit(ctx context.Context, in SubmitInput) (Request, Result, error) {
	if _, err := ParseRequestType(string(in.Type)); err != nil {
		return Request{}, Result{}, fmt.Errorf("%w: %v", generic.ErrValidationFailed, err)
	}

	res, alternatives, err := rs.Validate(ctx, in)
	if err != nil {
		return Request{}, Result{}, err
	}
	if !res.Valid && !in.Force {
		rs.Logger.Info("request rejected by date rules",
			zap.String("user_id", in.UserID),
			zap.String("type", string(in.Type)),
			zap.String("reason", string(res.Reason)))
		return Request{}, res, &ValidationError{Result: res, Alternatives: alternatives}
	}

	now := rs.Clock()
	req := in.draft()
	req.ID = rs.NewID()
	req.CreatedAt = now
	req.UpdatedAt = now

	if err := rs.Store.SaveRequest(ctx, req); err != nil {
		return Request{}, res, fmt.Errorf("failed to save request: %w", err)
	}

	rs.audit(ctx, generic.AuditEntry{
		Timestamp: now,
		ActorID:   in.UserID,
		Action:    generic.AuditRequestCreated,
		RequestID: req.ID,
		Payload: map[string]any{
			"type":   string(req.Type),
			"start":  req.StartDate.String(),
			"end":    req.EndDate.String(),
			"days":   req.DayCount(),
			"forced": in.Force && !res.Valid,
		},
	})

	rs.Logger.Info("request submitted",
		zap.String("request_id", req.ID),
		zap.String("user_id", req.UserID),
		zap.String("type", string(req.Type)),
		zap.Int("days", req.DayCount()))

	return req, res, nil
}

// SetStatus moves a request to a new status. Observations, when not
// empty, replace the stored ones.
func (rs *RequestService) SetStatus(ctx context.Context, id string, status RequestStatus, observations string) (Request, error) {
	req, err := rs.Store.GetRequest(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if req.Status == status && observations == "" {
		return req, nil
	}

	previous := req.Status
	req.Status = status
	if observations != "" {
		req.Observations = observations
	}
	req.UpdatedAt = rs.Clock()

	if err := rs.Store.SaveRequest(ctx, req); err != nil {
		return Request{}, fmt.Errorf("failed to update request %s: %w", id, err)
	}

	rs.Logger.Info("request status changed",
		zap.String("request_id", id),
		zap.String("from", string(previous)),
		zap.String("to", string(status)))
	return req, nil
}

// Get returns a request by id.
func (rs *RequestService) Get(ctx context.Context, id string) (Request, error) {
	return rs.Store.GetRequest(ctx, id)
}

// ListByUser returns a user's requests.
func (rs *RequestService) ListByUser(ctx context.Context, userID string) ([]Request, error) {
	return rs.Store.ListRequests(ctx, RequestFilter{UserIDs: []string{userID}})
}

// ListPending returns requests waiting on HR: pending or awaiting more info.
func (rs *RequestService) ListPending(ctx context.Context) ([]Request, error) {
	return rs.Store.ListRequests(ctx, RequestFilter{Statuses: []RequestStatus{StatusPending, StatusMoreInfo}})
}

// BalanceView returns the derived balance for a user's year together with
// the allotment as shown to the worker (seniority bonus included).
func (rs *RequestService) BalanceView(ctx context.Context, userID string, year int) (BalanceView, Balance, error) {
	user, err := rs.Store.GetUser(ctx, userID)
	if err != nil {
		return BalanceView{}, Balance{}, err
	}
	balance, err := rs.Store.GetBalance(ctx, userID, year)
	if err != nil {
		return BalanceView{}, Balance{}, err
	}
	requests, err := rs.ListByUser(ctx, userID)
	if err != nil {
		return BalanceView{}, Balance{}, err
	}
	return rs.Ledger.Remaining(user, balance, requests),
		calculateAvailableDays(user, balance, rs.Ledger.BonusEvery), nil
}

// =============================================================================
// HELPERS
// =============================================================================

// snapshot loads what the validator needs: the user, the balance for the
// year (nil when none is recorded), the department and its requests.
func (rs *RequestService) snapshot(ctx context.Context, userID string, year int) (User, Snapshot, error) {
	user, err := rs.Store.GetUser(ctx, userID)
	if err != nil {
		return User{}, Snapshot{}, err
	}

	var snap Snapshot

	balance, err := rs.Store.GetBalance(ctx, userID, year)
	switch {
	case err == nil:
		snap.Balance = &balance
	case errors.Is(err, generic.ErrEntityNotFound):
		rs.Logger.Warn("no balance recorded, skipping balance check",
			zap.String("user_id", userID), zap.Int("year", year))
	default:
		return User{}, Snapshot{}, err
	}

	if user.Department != "" {
		snap.Department, err = rs.Store.ListUsersByDepartment(ctx, user.Department)
		if err != nil {
			return User{}, Snapshot{}, err
		}
	}

	ids := []string{user.ID}
	for _, u := range snap.Department {
		if u.ID != user.ID {
			ids = append(ids, u.ID)
		}
	}
	snap.Requests, err = rs.Store.ListRequests(ctx, RequestFilter{UserIDs: ids})
	if err != nil {
		return User{}, Snapshot{}, err
	}

	return user, snap, nil
}

func (rs *RequestService) audit(ctx context.Context, entry generic.AuditEntry) {
	if rs.AuditLog == nil {
		return
	}
	entry.ID = rs.NewID()
	if err := rs.AuditLog.Append(ctx, entry); err != nil {
		rs.Logger.Warn("failed to append audit entry",
			zap.String("action", string(entry.Action)), zap.Error(err))
	}
}
