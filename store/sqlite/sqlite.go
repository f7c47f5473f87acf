/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Persists everything the services need: users, yearly balances,
  requests, approval workflows, approval policies and the audit log.

INTERFACES IMPLEMENTED:
  timeoff.Store:     users, balances, requests
  approval.Store:    workflows (versioned), policies
  generic.AuditLog:  append-only audit entries

KEY TABLES:
  users:      Read-only profile data, owned by profile management
  balances:   One row per (user, year); never decremented
  requests:   Never deleted; status transitions overwrite the row
  workflows:  One per request (UNIQUE request_id); steps stored as JSON
  policies:   Rules stored as the factory's JSON form
  audit_log:  Append-only

CONCURRENCY:
  Workflow writes are optimistic: UPDATE ... WHERE version = ? and a zero
  row count means somebody else wrote first. A sync.RWMutex serializes
  access within the process.

USAGE:
  store, err := sqlite.New("./data/cuida.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/rioja-cuida/approval-engine/approval"
	"github.com/rioja-cuida/approval-engine/factory"
	"github.com/rioja-cuida/approval-engine/generic"
	"github.com/rioja-cuida/approval-engine/timeoff"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ timeoff.Store    = (*Store)(nil)
	_ approval.Store   = (*Store)(nil)
	_ generic.AuditLog = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		surname TEXT,
		email TEXT,
		role TEXT NOT NULL DEFAULT 'worker',
		department TEXT NOT NULL DEFAULT '',
		shift TEXT,
		work_group TEXT,
		workday TEXT,
		seniority INTEGER NOT NULL DEFAULT 0,
		phone TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_users_department
		ON users(department);

	CREATE TABLE IF NOT EXISTS balances (
		user_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		vacation_days INTEGER NOT NULL DEFAULT 0,
		personal_days INTEGER NOT NULL DEFAULT 0,
		leave_days INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, year)
	);

	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		reason TEXT,
		observations TEXT,
		attachment_url TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_user
		ON requests(user_id);
	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_dates
		ON requests(start_date, end_date);

	-- Exactly one workflow per request
	CREATE TABLE IF NOT EXISTS workflows (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		current_step INTEGER NOT NULL DEFAULT 0,
		steps_json TEXT NOT NULL,
		auto_escalated BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		completed_at TEXT,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_workflows_status
		ON workflows(status);

	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		config_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		request_id TEXT,
		workflow_id TEXT,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_request
		ON audit_log(request_id) WHERE request_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_audit_workflow
		ON audit_log(workflow_id) WHERE workflow_id IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// USER STORE
// =============================================================================

const userColumns = `id, name, surname, email, role, department, shift, work_group, workday, seniority, phone`

// SaveUser inserts or replaces a user.
func (s *Store) SaveUser(ctx context.Context, u timeoff.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			surname = excluded.surname,
			email = excluded.email,
			role = excluded.role,
			department = excluded.department,
			shift = excluded.shift,
			work_group = excluded.work_group,
			workday = excluded.workday,
			seniority = excluded.seniority,
			phone = excluded.phone
	`
	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.Name, u.Surname, u.Email, string(u.Role), u.Department,
		u.Shift, u.WorkGroup, u.Workday, u.Seniority, u.Phone,
	)
	return err
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (timeoff.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users, err := s.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil {
		return timeoff.User{}, err
	}
	if len(users) == 0 {
		return timeoff.User{}, generic.NotFound("user", id)
	}
	return users[0], nil
}

// ListUsers returns all users.
func (s *Store) ListUsers(ctx context.Context) ([]timeoff.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
}

// ListUsersByDepartment returns the members of a department.
func (s *Store) ListUsersByDepartment(ctx context.Context, department string) ([]timeoff.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE department = ? ORDER BY id`, department)
}

func (s *Store) queryUsers(ctx context.Context, query string, args ...any) ([]timeoff.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []timeoff.User
	for rows.Next() {
		var u timeoff.User
		var role string
		var surname, email, shift, workGroup, workday, phone sql.NullString
		if err := rows.Scan(&u.ID, &u.Name, &surname, &email, &role, &u.Department,
			&shift, &workGroup, &workday, &u.Seniority, &phone); err != nil {
			return nil, err
		}
		u.Role = timeoff.Role(role)
		u.Surname = surname.String
		u.Email = email.String
		u.Shift = shift.String
		u.WorkGroup = workGroup.String
		u.Workday = workday.String
		u.Phone = phone.String
		users = append(users, u)
	}
	return users, rows.Err()
}

// =============================================================================
// BALANCE STORE
// =============================================================================

// SaveBalance inserts or replaces a yearly allotment.
func (s *Store) SaveBalance(ctx context.Context, b timeoff.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO balances (user_id, year, vacation_days, personal_days, leave_days)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, year) DO UPDATE SET
			vacation_days = excluded.vacation_days,
			personal_days = excluded.personal_days,
			leave_days = excluded.leave_days
	`
	_, err := s.db.ExecContext(ctx, query, b.UserID, b.Year, b.VacationDays, b.PersonalDays, b.LeaveDays)
	return err
}

// GetBalance retrieves a user's allotment for a year.
func (s *Store) GetBalance(ctx context.Context, userID string, year int) (timeoff.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b := timeoff.Balance{UserID: userID, Year: year}
	err := s.db.QueryRowContext(ctx,
		`SELECT vacation_days, personal_days, leave_days FROM balances WHERE user_id = ? AND year = ?`,
		userID, year,
	).Scan(&b.VacationDays, &b.PersonalDays, &b.LeaveDays)
	if errors.Is(err, sql.ErrNoRows) {
		return timeoff.Balance{}, generic.NotFound("balance", fmt.Sprintf("%s/%d", userID, year))
	}
	if err != nil {
		return timeoff.Balance{}, err
	}
	return b, nil
}

// =============================================================================
// REQUEST STORE
// =============================================================================

const requestColumns = `id, user_id, type, start_date, end_date, status, reason, observations,
	attachment_url, created_at, updated_at`

// SaveRequest inserts a request or updates its mutable fields.
func (s *Store) SaveRequest(ctx context.Context, r timeoff.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			observations = excluded.observations,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.UserID, string(r.Type), r.StartDate.String(), r.EndDate.String(),
		string(r.Status), r.Reason, r.Observations, r.AttachmentURL,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	return err
}

// GetRequest retrieves a request by ID.
func (s *Store) GetRequest(ctx context.Context, id string) (timeoff.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	requests, err := s.queryRequests(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	if err != nil {
		return timeoff.Request{}, err
	}
	if len(requests) == 0 {
		return timeoff.Request{}, generic.NotFound("request", id)
	}
	return requests[0], nil
}

// ListRequests returns the requests matching a filter, oldest first.
func (s *Store) ListRequests(ctx context.Context, filter timeoff.RequestFilter) ([]timeoff.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if len(filter.UserIDs) > 0 {
		where = append(where, "user_id IN ("+placeholders(len(filter.UserIDs))+")")
		for _, id := range filter.UserIDs {
			args = append(args, id)
		}
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}

	query := `SELECT ` + requestColumns + ` FROM requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	return s.queryRequests(ctx, query, args...)
}

func (s *Store) queryRequests(ctx context.Context, query string, args ...any) ([]timeoff.Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []timeoff.Request
	for rows.Next() {
		var r timeoff.Request
		var typ, status, start, end, createdAt, updatedAt string
		var reason, observations, attachment sql.NullString
		if err := rows.Scan(&r.ID, &r.UserID, &typ, &start, &end, &status,
			&reason, &observations, &attachment, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		r.Type = timeoff.RequestType(typ)
		r.Status = timeoff.RequestStatus(status)
		if r.StartDate, err = generic.ParseDate(start); err != nil {
			return nil, fmt.Errorf("request %s: bad start date: %w", r.ID, err)
		}
		if r.EndDate, err = generic.ParseDate(end); err != nil {
			return nil, fmt.Errorf("request %s: bad end date: %w", r.ID, err)
		}
		r.Reason = reason.String
		r.Observations = observations.String
		r.AttachmentURL = attachment.String
		r.CreatedAt = parseTime(createdAt)
		r.UpdatedAt = parseTime(updatedAt)
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// =============================================================================
// WORKFLOW STORE (approval.Store interface)
// =============================================================================

// stepRecord is the JSON form of a step inside workflows.steps_json.
type stepRecord struct {
	ID             string         `json:"id"`
	RequestID      string         `json:"request_id"`
	Level          approval.Level `json:"level"`
	ApproverID     string         `json:"approver_id,omitempty"`
	Status         string         `json:"status"`
	Action         string         `json:"action,omitempty"`
	Comments       string         `json:"comments,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	ProcessedAt    *time.Time     `json:"processed_at,omitempty"`
	DueDate        *time.Time     `json:"due_date,omitempty"`
	EscalationDays int            `json:"escalation_days"`
	Escalated      bool           `json:"escalated"`
}

func encodeSteps(steps []approval.Step) (string, error) {
	records := make([]stepRecord, len(steps))
	for i, st := range steps {
		records[i] = stepRecord{
			ID:             st.ID,
			RequestID:      st.RequestID,
			Level:          st.Level,
			ApproverID:     st.ApproverID,
			Status:         string(st.Status),
			Action:         string(st.Action),
			Comments:       st.Comments,
			CreatedAt:      st.CreatedAt,
			ProcessedAt:    st.ProcessedAt,
			DueDate:        st.DueDate,
			EscalationDays: st.EscalationDays,
			Escalated:      st.Escalated,
		}
	}
	data, err := json.Marshal(records)
	return string(data), err
}

func decodeSteps(data string) ([]approval.Step, error) {
	var records []stepRecord
	if err := json.Unmarshal([]byte(data), &records); err != nil {
		return nil, err
	}
	steps := make([]approval.Step, len(records))
	for i, r := range records {
		steps[i] = approval.Step{
			ID:             r.ID,
			RequestID:      r.RequestID,
			Level:          r.Level,
			ApproverID:     r.ApproverID,
			Status:         approval.StepStatus(r.Status),
			Action:         approval.Action(r.Action),
			Comments:       r.Comments,
			CreatedAt:      r.CreatedAt,
			ProcessedAt:    r.ProcessedAt,
			DueDate:        r.DueDate,
			EscalationDays: r.EscalationDays,
			Escalated:      r.Escalated,
		}
	}
	return steps, nil
}

const workflowColumns = `id, request_id, status, current_step, steps_json, auto_escalated,
	created_at, completed_at, version`

// CreateWorkflow stores a new workflow at version 1.
func (s *Store) CreateWorkflow(ctx context.Context, wf approval.Workflow) (approval.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps, err := encodeSteps(wf.Steps)
	if err != nil {
		return approval.Workflow{}, fmt.Errorf("failed to encode steps: %w", err)
	}

	query := `INSERT INTO workflows (` + workflowColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`
	_, err = s.db.ExecContext(ctx, query,
		wf.ID, wf.RequestID, string(wf.Status), wf.CurrentStep, steps, wf.AutoEscalated,
		formatTime(wf.CreatedAt), formatOptionalTime(wf.CompletedAt),
	)
	if isUniqueConstraintError(err) {
		return approval.Workflow{}, generic.ErrDuplicateWorkflow
	}
	if err != nil {
		return approval.Workflow{}, fmt.Errorf("failed to insert workflow: %w", err)
	}

	stored := wf.Clone()
	stored.Version = 1
	return stored, nil
}

// UpdateWorkflow writes wf if the stored version still equals wf.Version.
func (s *Store) UpdateWorkflow(ctx context.Context, wf approval.Workflow) (approval.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps, err := encodeSteps(wf.Steps)
	if err != nil {
		return approval.Workflow{}, fmt.Errorf("failed to encode steps: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE workflows SET
			status = ?, current_step = ?, steps_json = ?, auto_escalated = ?,
			completed_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(wf.Status), wf.CurrentStep, steps, wf.AutoEscalated,
		formatOptionalTime(wf.CompletedAt), wf.ID, wf.Version,
	)
	if err != nil {
		return approval.Workflow{}, fmt.Errorf("failed to update workflow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return approval.Workflow{}, err
	}
	if n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflows WHERE id = ?`, wf.ID).Scan(&exists)
		if err != nil {
			return approval.Workflow{}, err
		}
		if exists == 0 {
			return approval.Workflow{}, generic.NotFound("workflow", wf.ID)
		}
		return approval.Workflow{}, &generic.VersionConflictError{Kind: "workflow", ID: wf.ID, Expected: wf.Version}
	}

	stored := wf.Clone()
	stored.Version = wf.Version + 1
	return stored, nil
}

// GetWorkflow retrieves a workflow by ID.
func (s *Store) GetWorkflow(ctx context.Context, id string) (approval.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wfs, err := s.queryWorkflows(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
	if err != nil {
		return approval.Workflow{}, err
	}
	if len(wfs) == 0 {
		return approval.Workflow{}, generic.NotFound("workflow", id)
	}
	return wfs[0], nil
}

// GetWorkflowByRequest retrieves the workflow of a request.
func (s *Store) GetWorkflowByRequest(ctx context.Context, requestID string) (approval.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wfs, err := s.queryWorkflows(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE request_id = ?`, requestID)
	if err != nil {
		return approval.Workflow{}, err
	}
	if len(wfs) == 0 {
		return approval.Workflow{}, generic.NotFound("workflow", "request "+requestID)
	}
	return wfs[0], nil
}

// ListWorkflows returns workflows in the given statuses (all when none).
func (s *Store) ListWorkflows(ctx context.Context, statuses ...approval.WorkflowStatus) ([]approval.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + workflowColumns + ` FROM workflows`
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + placeholders(len(statuses)) + `)`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	return s.queryWorkflows(ctx, query, args...)
}

func (s *Store) queryWorkflows(ctx context.Context, query string, args ...any) ([]approval.Workflow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wfs []approval.Workflow
	for rows.Next() {
		var wf approval.Workflow
		var status, steps, createdAt string
		var completedAt sql.NullString
		if err := rows.Scan(&wf.ID, &wf.RequestID, &status, &wf.CurrentStep, &steps,
			&wf.AutoEscalated, &createdAt, &completedAt, &wf.Version); err != nil {
			return nil, err
		}
		wf.Status = approval.WorkflowStatus(status)
		if wf.Steps, err = decodeSteps(steps); err != nil {
			return nil, fmt.Errorf("workflow %s: bad steps: %w", wf.ID, err)
		}
		wf.CreatedAt = parseTime(createdAt)
		if completedAt.Valid {
			t := parseTime(completedAt.String)
			wf.CompletedAt = &t
		}
		wfs = append(wfs, wf)
	}
	return wfs, rows.Err()
}

// =============================================================================
// POLICY STORE
// =============================================================================

// SavePolicy inserts or replaces a policy.
func (s *Store) SavePolicy(ctx context.Context, p approval.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	config, err := json.Marshal(factory.NewApprovalPolicyFactory().ToJSON(p))
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}

	query := `
		INSERT INTO policies (id, name, active, config_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			active = excluded.active,
			config_json = excluded.config_json,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query, p.ID, p.Name, p.Active, string(config), formatTime(time.Now()))
	return err
}

// ListPolicies returns all policies ordered by id.
func (s *Store) ListPolicies(ctx context.Context) ([]approval.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, config_json FROM policies ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	f := factory.NewApprovalPolicyFactory()
	var policies []approval.Policy
	for rows.Next() {
		var id, config string
		if err := rows.Scan(&id, &config); err != nil {
			return nil, err
		}
		p, err := f.ParsePolicy([]byte(config))
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", id, err)
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// DeletePolicy removes a policy.
func (s *Store) DeletePolicy(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM policies WHERE id = ?", id)
	return err
}

// =============================================================================
// AUDIT LOG (generic.AuditLog interface)
// =============================================================================

// Append records an audit entry.
func (s *Store) Append(ctx context.Context, e generic.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, actor_id, action, request_id, workflow_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, formatTime(e.Timestamp), e.ActorID, string(e.Action),
		nullString(e.RequestID), nullString(e.WorkflowID), string(payload),
	)
	return err
}

// Query returns audit entries matching the filter, oldest first.
func (s *Store) Query(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if filter.RequestID != nil {
		where = append(where, "request_id = ?")
		args = append(args, *filter.RequestID)
	}
	if filter.WorkflowID != nil {
		where = append(where, "workflow_id = ?")
		args = append(args, *filter.WorkflowID)
	}
	if filter.ActorID != nil {
		where = append(where, "actor_id = ?")
		args = append(args, *filter.ActorID)
	}

	query := `SELECT id, timestamp, actor_id, action, request_id, workflow_id, payload_json FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp ASC, rowid ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []generic.AuditEntry
	for rows.Next() {
		var e generic.AuditEntry
		var ts, action string
		var requestID, workflowID, payload sql.NullString
		if err := rows.Scan(&e.ID, &ts, &e.ActorID, &action, &requestID, &workflowID, &payload); err != nil {
			return nil, err
		}
		e.Timestamp = parseTime(ts)
		e.Action = generic.AuditAction(action)
		e.RequestID = requestID.String
		e.WorkflowID = workflowID.String
		if payload.Valid && payload.String != "" && payload.String != "null" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("audit %s: bad payload: %w", e.ID, err)
			}
		}
		// Actions and time bounds are checked in Go; the filter is small.
		if filter.Matches(e) {
			entries = append(entries, e)
		}
	}
	return entries, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"audit_log", "workflows", "requests", "balances", "users", "policies"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
