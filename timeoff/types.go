// Package timeoff implements absence requests for the La Rioja Cuida staff:
// the request/user/balance model, the vacation date rules, the balance
// ledger and the submission service.
package timeoff

import (
	"fmt"
	"strings"
	"time"

	"github.com/rioja-cuida/approval-engine/generic"
)

// =============================================================================
// REQUEST TYPE
// =============================================================================

// RequestType is the kind of absence (or shift swap) being requested.
type RequestType string

const (
	TypeVacation    RequestType = "vacation"
	TypePersonalDay RequestType = "personalDay"
	TypeLeave       RequestType = "leave"
	TypeShiftChange RequestType = "shift-change"
)

// RequestTypes lists every request type in display order.
var RequestTypes = []RequestType{TypeVacation, TypePersonalDay, TypeLeave, TypeShiftChange}

// ParseRequestType accepts the canonical names.
func ParseRequestType(s string) (RequestType, error) {
	for _, t := range RequestTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown request type %q", s)
}

// IsAbsence reports whether the type takes the worker off the roster.
// Shift changes move a worker, they don't remove one.
func (t RequestType) IsAbsence() bool {
	switch t {
	case TypeVacation, TypePersonalDay, TypeLeave:
		return true
	case TypeShiftChange:
		return false
	}
	return false
}

// =============================================================================
// REQUEST STATUS
// =============================================================================

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
	StatusMoreInfo RequestStatus = "moreInfo"
)

// ParseRequestStatus accepts the canonical names.
func ParseRequestStatus(s string) (RequestStatus, error) {
	switch RequestStatus(s) {
	case StatusPending, StatusApproved, StatusRejected, StatusMoreInfo:
		return RequestStatus(s), nil
	}
	return "", fmt.Errorf("unknown request status %q", s)
}

// Consumes reports whether a request in this status is subtracted from the balance.
func (s RequestStatus) Consumes() bool {
	return s == StatusPending || s == StatusApproved
}

// Active reports whether the request still occupies its dates on the roster.
func (s RequestStatus) Active() bool {
	return s != StatusRejected
}

// =============================================================================
// REQUEST
// =============================================================================

// Request is a worker's absence or shift-change request.
// It is never deleted; status transitions supersede it.
type Request struct {
	ID            string
	UserID        string
	Type          RequestType
	StartDate     generic.TimePoint
	EndDate       generic.TimePoint
	Status        RequestStatus
	Reason        string
	Observations  string
	AttachmentURL string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Period returns the inclusive date range of the request.
func (r Request) Period() generic.Period {
	return generic.Period{Start: r.StartDate, End: r.EndDate}
}

// DayCount returns the inclusive number of days requested.
func (r Request) DayCount() int {
	return r.Period().DayCount()
}

// =============================================================================
// USER
// =============================================================================

type Role string

const (
	RoleWorker Role = "worker"
	RoleHR     Role = "hr"
)

// User is read-only to this package; profile management owns it.
type User struct {
	ID         string
	Name       string
	Surname    string
	Email      string
	Role       Role
	Department string
	Shift      string
	WorkGroup  string
	Workday    string
	Seniority  int // years
	Phone      string
}

// FullName joins name and surname.
func (u User) FullName() string {
	return strings.TrimSpace(u.Name + " " + u.Surname)
}

// =============================================================================
// BALANCE
// =============================================================================

// Balance is the yearly allotment for one user. Consumption is never
// subtracted here; it is derived from requests by the BalanceLedger.
type Balance struct {
	UserID       string
	Year         int
	VacationDays int
	PersonalDays int
	LeaveDays    int
}

// Allotment returns the days granted for a request type.
func (b Balance) Allotment(t RequestType) int {
	switch t {
	case TypeVacation:
		return b.VacationDays
	case TypePersonalDay:
		return b.PersonalDays
	case TypeLeave:
		return b.LeaveDays
	case TypeShiftChange:
		return 0
	}
	return 0
}
