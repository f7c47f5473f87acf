/*
validator.go - Vacation and personal-day rules

PURPOSE:
  Decides whether a requested date range may be submitted. The validator
  is advisory and pure: it reads a snapshot of the world (balance,
  department roster, known requests), returns a structured Result and
  never writes anything. The caller decides whether to block.

VACATION CHECKS (first failure wins):
  1. Range:      end must not be before start
  2. Start day:  work-group rule (1st/16th or Monday)
  3. Overlap:    no overlap with the worker's own active absences
  4. Balance:    requested <= allotment - own pending/approved vacation days
  5. Staffing:   on every day of the range, fewer than
                 ceil(threshold * headcount) colleagues already absent

PERSONAL DAY CHECKS:
  1. Overlap with own absences
  2. Personal-day balance (when a Balance is supplied)
  3. Department absence cap: reject when the share of the department
     already absent that day reaches the cap (default 10%)

RESULTS:
  Result carries a stable Reason tag plus the numbers behind it, so a
  caller can render its own message. Message holds an English rendering.

EXAMPLE:
  v := timeoff.NewValidator(timeoff.DefaultValidatorConfig())
  res := v.ValidateVacationRequest(start, end, user, timeoff.Snapshot{
      Balance:    &balance,
      Department: colleagues,
      Requests:   requests,
  })
  if !res.Valid {
      alternatives := v.SuggestAlternativeDates(start, end, user, snapshot)
  }

SEE ALSO:
  - policies.go: Work-group start-day rules
  - staffing.go: Day-by-day staffing analysis
  - suggest.go:  Alternative date search
*/
package timeoff

import (
	"fmt"
	"time"

	"github.com/rioja-cuida/approval-engine/generic"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// ValidatorConfig holds the tunable thresholds.
type ValidatorConfig struct {
	StaffingThreshold    float64 // share of headcount that may be absent (0.3)
	PersonalDayCap       float64 // share of headcount absent that blocks a personal day (0.10)
	SeniorityBonusEvery  int     // years of service per bonus day (5)
	SuggestionWindowDays int     // how far to look for alternatives (60)
	MaxSuggestions       int     // how many alternatives to return (3)
}

// DefaultValidatorConfig returns the production thresholds.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		StaffingThreshold:    0.3,
		PersonalDayCap:       0.10,
		SeniorityBonusEvery:  DefaultSeniorityBonusEvery,
		SuggestionWindowDays: 60,
		MaxSuggestions:       3,
	}
}

// =============================================================================
// RESULT
// =============================================================================

// Reason tags a validation outcome.
type Reason string

const (
	ReasonNone                        Reason = ""
	ReasonInvalidRange                Reason = "invalid_range"
	ReasonStartDayNotFirstOrSixteenth Reason = "start_day_not_first_or_sixteenth"
	ReasonStartDayNotMonday           Reason = "start_day_not_monday"
	ReasonOverlapsOwnRequest          Reason = "overlaps_own_request"
	ReasonInsufficientBalance         Reason = "insufficient_balance"
	ReasonStaffingConflict            Reason = "staffing_conflict"
	ReasonDepartmentAbsenceCap        Reason = "department_absence_cap"
)

// Result is the outcome of a validation. Zero-valued numeric fields are
// unused for the given Reason.
type Result struct {
	Valid     bool
	Reason    Reason
	Message   string
	WorkGroup string
	Date      *generic.TimePoint // first offending day
	Absent    int                // colleagues absent on Date
	Limit     int                // absentee count that triggers a conflict
	Headcount int
	Requested int
	Available int
	RequestID string // conflicting own request
}

func ok() Result {
	return Result{Valid: true, Message: "request satisfies all date rules"}
}

// Snapshot is the state a validation runs against.
type Snapshot struct {
	Balance    *Balance  // nil skips the balance check
	Department []User    // members of the requester's department; empty skips staffing checks
	Requests   []Request // every known request, own and colleagues'
}

// =============================================================================
// VALIDATOR
// =============================================================================

// Validator evaluates date rules. It is safe for concurrent use.
type Validator struct {
	cfg   ValidatorConfig
	clock func() time.Time
}

// ValidatorOption customizes a Validator.
type ValidatorOption func(*Validator)

// WithClock injects the clock used to decide what "today" is.
func WithClock(clock func() time.Time) ValidatorOption {
	return func(v *Validator) { v.clock = clock }
}

// NewValidator creates a validator with the given thresholds.
func NewValidator(cfg ValidatorConfig, opts ...ValidatorOption) *Validator {
	v := &Validator{cfg: cfg, clock: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Config returns the thresholds in use.
func (v *Validator) Config() ValidatorConfig { return v.cfg }

// ValidateVacationRequest checks a vacation range for a user.
func (v *Validator) ValidateVacationRequest(start, end generic.TimePoint, user User, snap Snapshot) Result {
	span := generic.Period{Start: start, End: end}
	if err := span.Validate(); err != nil {
		return Result{
			Reason:  ReasonInvalidRange,
			Message: fmt.Sprintf("end date %s is before start date %s", end, start),
		}
	}

	group := LookupWorkGroup(user.WorkGroup)
	if !group.Rule.Allows(start) {
		return startDayFailure(group, start)
	}

	if res, conflict := ownOverlap(span, user, snap.Requests); conflict {
		return res
	}

	if snap.Balance != nil {
		requested := span.DayCount()
		available := RemainingDays(balanceFor(*snap.Balance, user), TypeVacation, snap.Requests)
		if generic.Days(requested).GreaterThan(available) {
			return Result{
				Reason:    ReasonInsufficientBalance,
				Message:   fmt.Sprintf("requested %d vacation days but only %d remain", requested, available.IntPart()),
				Requested: requested,
				Available: available.IntPart(),
			}
		}
	}

	if res := v.AnalyzeStaffingConflicts(span, user, snap); !res.Valid {
		return res
	}

	return ok()
}

// ValidatePersonalDay checks a single personal day for a user.
func (v *Validator) ValidatePersonalDay(date generic.TimePoint, user User, snap Snapshot) Result {
	return v.validatePersonalDays(generic.Period{Start: date, End: date}, user, snap)
}

// validatePersonalDays charges the whole span against the personal-day
// allotment once, then applies the department cap to every day.
func (v *Validator) validatePersonalDays(span generic.Period, user User, snap Snapshot) Result {
	if res, conflict := ownOverlap(span, user, snap.Requests); conflict {
		return res
	}

	if snap.Balance != nil {
		requested := span.DayCount()
		available := RemainingDays(balanceFor(*snap.Balance, user), TypePersonalDay, snap.Requests)
		if generic.Days(requested).GreaterThan(available) {
			return Result{
				Reason:    ReasonInsufficientBalance,
				Message:   fmt.Sprintf("requested %d personal days but only %d remain", requested, available.IntPart()),
				Requested: requested,
				Available: available.IntPart(),
			}
		}
	}

	members := departmentMembers(user, snap.Department)
	if len(members) == 0 {
		return ok()
	}
	for _, day := range span.Days() {
		absent := absentOn(day, user, members, snap.Requests)
		if reachesShare(absent, len(members), v.cfg.PersonalDayCap) {
			d := day
			return Result{
				Reason: ReasonDepartmentAbsenceCap,
				Message: fmt.Sprintf("%d of %d colleagues in %s are already absent on %s (limit %.0f%%)",
					absent, len(members), user.Department, day, v.cfg.PersonalDayCap*100),
				Date:      &d,
				Absent:    absent,
				Headcount: len(members),
			}
		}
	}

	return ok()
}

// ValidateRequest dispatches on request type. Leave and shift-change
// requests only get the structural checks.
func (v *Validator) ValidateRequest(req Request, user User, snap Snapshot) Result {
	switch req.Type {
	case TypeVacation:
		return v.ValidateVacationRequest(req.StartDate, req.EndDate, user, snap)
	case TypePersonalDay:
		span := req.Period()
		if err := span.Validate(); err != nil {
			return Result{Reason: ReasonInvalidRange, Message: fmt.Sprintf("end date %s is before start date %s", req.EndDate, req.StartDate)}
		}
		return v.validatePersonalDays(span, user, snap)
	case TypeLeave:
		span := req.Period()
		if err := span.Validate(); err != nil {
			return Result{Reason: ReasonInvalidRange, Message: fmt.Sprintf("end date %s is before start date %s", req.EndDate, req.StartDate)}
		}
		if res, conflict := ownOverlap(span, user, snap.Requests); conflict {
			return res
		}
		return ok()
	case TypeShiftChange:
		if err := req.Period().Validate(); err != nil {
			return Result{Reason: ReasonInvalidRange, Message: fmt.Sprintf("end date %s is before start date %s", req.EndDate, req.StartDate)}
		}
		return ok()
	}
	return Result{Reason: ReasonInvalidRange, Message: fmt.Sprintf("unknown request type %q", req.Type)}
}

// =============================================================================
// HELPERS
// =============================================================================

func startDayFailure(group WorkGroup, start generic.TimePoint) Result {
	d := start
	res := Result{WorkGroup: group.Name, Date: &d}
	switch group.Rule {
	case RuleFirstOrSixteenth:
		res.Reason = ReasonStartDayNotFirstOrSixteenth
		res.Message = fmt.Sprintf("%s vacations must start on the 1st or 16th of the month, not %s", group.Name, start)
	case RuleMonday:
		res.Reason = ReasonStartDayNotMonday
		res.Message = fmt.Sprintf("%s vacations must start on a Monday, %s is a %s", group.Name, start, start.Weekday())
	}
	return res
}

func ownOverlap(span generic.Period, user User, requests []Request) (Result, bool) {
	for _, r := range requests {
		if r.UserID != user.ID || !r.Type.IsAbsence() || !r.Status.Active() {
			continue
		}
		if r.Period().Overlaps(span) {
			first := latest(span.Start, r.StartDate)
			return Result{
				Reason:    ReasonOverlapsOwnRequest,
				Message:   fmt.Sprintf("dates overlap your existing %s request %s", r.Type, r.Period()),
				Date:      &first,
				RequestID: r.ID,
			}, true
		}
	}
	return Result{}, false
}

// balanceFor pins the balance to the requesting user so that a balance
// record loaded without its owner id still matches the user's requests.
func balanceFor(b Balance, user User) Balance {
	if b.UserID == "" {
		b.UserID = user.ID
	}
	return b
}

func latest(a, b generic.TimePoint) generic.TimePoint {
	if a.After(b) {
		return a
	}
	return b
}
