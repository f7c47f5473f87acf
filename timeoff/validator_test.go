package timeoff_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rioja-cuida/approval-engine/generic"
	"github.com/rioja-cuida/approval-engine/timeoff"
)

func newValidator() *timeoff.Validator {
	return timeoff.NewValidator(timeoff.DefaultValidatorConfig(),
		timeoff.WithClock(fixedClock(time.Date(2025, time.January, 1, 9, 0, 0, 0, time.UTC))))
}

// =============================================================================
// WORK-GROUP START DAY
// =============================================================================

func TestValidateVacation_LocalizadoMustStartOnFirstOrSixteenth(t *testing.T) {
	// GIVEN: A worker in Grupo Localizado
	// WHEN: Vacation starts on the 2nd, then on the 16th
	// THEN: The 2nd is rejected, the 16th passes
	v := newValidator()
	user := worker("w1", "Cocina", timeoff.GroupLocalizado)

	res := v.ValidateVacationRequest(date(2025, time.April, 2), date(2025, time.April, 8), user, timeoff.Snapshot{})
	assert.False(t, res.Valid)
	assert.Equal(t, timeoff.ReasonStartDayNotFirstOrSixteenth, res.Reason)
	assert.Equal(t, timeoff.GroupLocalizado, res.WorkGroup)
	require.NotNil(t, res.Date)
	assert.True(t, res.Date.Equal(date(2025, time.April, 2)))

	res = v.ValidateVacationRequest(date(2025, time.April, 16), date(2025, time.April, 22), user, timeoff.Snapshot{})
	assert.True(t, res.Valid, res.Message)
}

func TestValidateVacation_ProgramadoMustStartOnMonday(t *testing.T) {
	// GIVEN: A worker in Grupo Programado
	// WHEN: Vacation starts on Tuesday 2025-04-08, then Monday 2025-04-07
	// THEN: Tuesday is rejected, Monday passes
	v := newValidator()
	user := worker("w1", "Cocina", timeoff.GroupProgramado)

	res := v.ValidateVacationRequest(date(2025, time.April, 8), date(2025, time.April, 14), user, timeoff.Snapshot{})
	assert.False(t, res.Valid)
	assert.Equal(t, timeoff.ReasonStartDayNotMonday, res.Reason)
	assert.Contains(t, res.Message, "Tuesday")

	res = v.ValidateVacationRequest(date(2025, time.April, 7), date(2025, time.April, 13), user, timeoff.Snapshot{})
	assert.True(t, res.Valid, res.Message)
}

func TestValidateVacation_UnconstrainedGroupAcceptsAnyStart(t *testing.T) {
	v := newValidator()
	user := worker("w1", "Cocina", "Grupo Oficina")

	res := v.ValidateVacationRequest(date(2025, time.April, 9), date(2025, time.April, 9), user, timeoff.Snapshot{})
	assert.True(t, res.Valid)
	assert.Equal(t, timeoff.ReasonNone, res.Reason)
}

func TestValidateVacation_EndBeforeStart(t *testing.T) {
	v := newValidator()
	user := worker("w1", "Cocina", "")

	res := v.ValidateVacationRequest(date(2025, time.April, 9), date(2025, time.April, 1), user, timeoff.Snapshot{})
	assert.False(t, res.Valid)
	assert.Equal(t, timeoff.ReasonInvalidRange, res.Reason)
}

// =============================================================================
// BALANCE SUFFICIENCY
// =============================================================================

func TestValidateVacation_BalanceSubtractsPendingAndApproved(t *testing.T) {
	// GIVEN: 22 vacation days; 10 approved, 5 pending, 4 rejected
	// WHEN: Requesting 8 days, then 7 days
	// THEN: 8 exceeds the 7 remaining, 7 fits exactly
	v := newValidator()
	user := worker("w1", "Cocina", "")
	balance := timeoff.Balance{UserID: "w1", Year: 2025, VacationDays: 22}
	requests := []timeoff.Request{
		request("r1", "w1", timeoff.TypeVacation, date(2025, time.January, 1), date(2025, time.January, 10), timeoff.StatusApproved),
		request("r2", "w1", timeoff.TypeVacation, date(2025, time.February, 3), date(2025, time.February, 7), timeoff.StatusPending),
		request("r3", "w1", timeoff.TypeVacation, date(2025, time.March, 3), date(2025, time.March, 6), timeoff.StatusRejected),
	}
	snap := timeoff.Snapshot{Balance: &balance, Requests: requests}

	res := v.ValidateVacationRequest(date(2025, time.June, 2), date(2025, time.June, 9), user, snap)
	assert.False(t, res.Valid)
	assert.Equal(t, timeoff.ReasonInsufficientBalance, res.Reason)
	assert.Equal(t, 8, res.Requested)
	assert.Equal(t, 7, res.Available)

	res = v.ValidateVacationRequest(date(2025, time.June, 2), date(2025, time.June, 8), user, snap)
	assert.True(t, res.Valid, res.Message)
}

func TestValidateVacation_BalanceBoundary(t *testing.T) {
	// GIVEN: 22 vacation days and one approved 5-day vacation
	// WHEN: Requesting 18 days, then 17 days
	// THEN: 18 > 22 - 5 is rejected, 17 is accepted at the boundary
	v := newValidator()
	user := worker("w1", "Cocina", "")
	balance := timeoff.Balance{UserID: "w1", Year: 2025, VacationDays: 22}
	requests := []timeoff.Request{
		request("r1", "w1", timeoff.TypeVacation, date(2025, time.March, 3), date(2025, time.March, 7), timeoff.StatusApproved),
	}
	snap := timeoff.Snapshot{Balance: &balance, Requests: requests}

	res := v.ValidateVacationRequest(date(2025, time.July, 1), date(2025, time.July, 18), user, snap)
	assert.False(t, res.Valid)
	assert.Equal(t, timeoff.ReasonInsufficientBalance, res.Reason)
	assert.Equal(t, 18, res.Requested)
	assert.Equal(t, 17, res.Available)

	res = v.ValidateVacationRequest(date(2025, time.July, 1), date(2025, time.July, 17), user, snap)
	assert.True(t, res.Valid, res.Message)
}

func TestValidateVacation_BalanceIgnoresOtherTypesAndUsers(t *testing.T) {
	v := newValidator()
	user := worker("w1", "Cocina", "")
	balance := timeoff.Balance{UserID: "w1", Year: 2025, VacationDays: 5}
	requests := []timeoff.Request{
		request("r1", "w1", timeoff.TypePersonalDay, date(2025, time.January, 2), date(2025, time.January, 3), timeoff.StatusApproved),
		request("r2", "other", timeoff.TypeVacation, date(2025, time.January, 1), date(2025, time.January, 20), timeoff.StatusApproved),
	}

	res := v.ValidateVacationRequest(date(2025, time.June, 2), date(2025, time.June, 6), user,
		timeoff.Snapshot{Balance: &balance, Requests: requests})
	assert.True(t, res.Valid, res.Message)
}

func TestValidateVacation_OverlapWithOwnRequest(t *testing.T) {
	// GIVEN: A pending leave from June 4 to June 6
	// WHEN: Vacation requested June 2 - June 8
	// THEN: Rejected as overlapping, pointing at the existing request
	v := newValidator()
	user := worker("w1", "Cocina", "")
	requests := []timeoff.Request{
		request("leave-1", "w1", timeoff.TypeLeave, date(2025, time.June, 4), date(2025, time.June, 6), timeoff.StatusPending),
	}

	res := v.ValidateVacationRequest(date(2025, time.June, 2), date(2025, time.June, 8), user, timeoff.Snapshot{Requests: requests})
	assert.False(t, res.Valid)
	assert.Equal(t, timeoff.ReasonOverlapsOwnRequest, res.Reason)
	assert.Equal(t, "leave-1", res.RequestID)
	require.NotNil(t, res.Date)
	assert.True(t, res.Date.Equal(date(2025, time.June, 4)))
}

// =============================================================================
// STAFFING CONFLICTS
// =============================================================================

func TestStaffing_ThreeAbsenteesInTenTriggersConflict(t *testing.T) {
	// GIVEN: A department of 10, threshold ceil(0.3*10) = 3
	// WHEN: 3 distinct colleagues are off on 2025-05-05
	// THEN: Conflict on that day with counts in the result
	v := newValidator()
	dept := department("Limpieza", 10)
	user := dept[0]
	day := date(2025, time.May, 5)
	requests := []timeoff.Request{
		request("a", "u1", timeoff.TypeVacation, day, day.AddDays(2), timeoff.StatusApproved),
		request("b", "u2", timeoff.TypePersonalDay, day, day, timeoff.StatusPending),
		request("c", "u3", timeoff.TypeLeave, day.AddDays(-3), day, timeoff.StatusMoreInfo),
	}

	res := v.AnalyzeStaffingConflicts(generic.Period{Start: day, End: day.AddDays(4)}, user,
		timeoff.Snapshot{Department: dept, Requests: requests})
	assert.False(t, res.Valid)
	assert.Equal(t, timeoff.ReasonStaffingConflict, res.Reason)
	assert.Equal(t, 3, res.Absent)
	assert.Equal(t, 3, res.Limit)
	assert.Equal(t, 10, res.Headcount)
	require.NotNil(t, res.Date)
	assert.True(t, res.Date.Equal(day))
	assert.Contains(t, res.Message, "2025-05-05")
}

func TestStaffing_TwoAbsenteesInTenPasses(t *testing.T) {
	v := newValidator()
	dept := department("Limpieza", 10)
	day := date(2025, time.May, 5)
	requests := []timeoff.Request{
		request("a", "u1", timeoff.TypeVacation, day, day, timeoff.StatusApproved),
		request("b", "u2", timeoff.TypeVacation, day, day, timeoff.StatusPending),
		// Same colleague twice counts once.
		request("c", "u2", timeoff.TypeLeave, day, day, timeoff.StatusPending),
	}

	res := v.AnalyzeStaffingConflicts(generic.Period{Start: day, End: day}, dept[0],
		timeoff.Snapshot{Department: dept, Requests: requests})
	assert.True(t, res.Valid, res.Message)
}

func TestStaffing_IgnoresRejectedShiftChangesOwnAndOtherDepartments(t *testing.T) {
	v := newValidator()
	dept := department("Limpieza", 10)
	outsider := worker("x1", "Cocina", "")
	day := date(2025, time.May, 5)
	requests := []timeoff.Request{
		request("a", "u1", timeoff.TypeVacation, day, day, timeoff.StatusApproved),
		request("b", "u2", timeoff.TypeVacation, day, day, timeoff.StatusRejected),
		request("c", "u3", timeoff.TypeShiftChange, day, day, timeoff.StatusApproved),
		request("d", "u0", timeoff.TypeLeave, day, day, timeoff.StatusApproved),
		request("e", outsider.ID, timeoff.TypeVacation, day, day, timeoff.StatusApproved),
	}

	res := v.AnalyzeStaffingConflicts(generic.Period{Start: day, End: day}, dept[0],
		timeoff.Snapshot{Department: append(dept, outsider), Requests: requests})
	assert.True(t, res.Valid, res.Message)
}

func TestStaffing_ReportsFirstOffendingDay(t *testing.T) {
	// GIVEN: Two colleagues off all week, a third joins on Wednesday
	// WHEN: Checking Monday to Friday
	// THEN: The conflict is reported on Wednesday
	v := newValidator()
	dept := department("Limpieza", 10)
	monday := date(2025, time.May, 5)
	requests := []timeoff.Request{
		request("a", "u1", timeoff.TypeVacation, monday, monday.AddDays(4), timeoff.StatusApproved),
		request("b", "u2", timeoff.TypeVacation, monday, monday.AddDays(4), timeoff.StatusApproved),
		request("c", "u3", timeoff.TypeVacation, monday.AddDays(2), monday.AddDays(4), timeoff.StatusPending),
	}

	res := v.AnalyzeStaffingConflicts(generic.Period{Start: monday, End: monday.AddDays(4)}, dept[0],
		timeoff.Snapshot{Department: dept, Requests: requests})
	require.False(t, res.Valid)
	assert.True(t, res.Date.Equal(monday.AddDays(2)))
}

func TestStaffing_EmptyRosterSkipsCheck(t *testing.T) {
	v := newValidator()
	day := date(2025, time.May, 5)
	requests := []timeoff.Request{
		request("a", "u1", timeoff.TypeVacation, day, day, timeoff.StatusApproved),
	}

	res := v.AnalyzeStaffingConflicts(generic.Period{Start: day, End: day}, worker("u0", "Limpieza", ""),
		timeoff.Snapshot{Requests: requests})
	assert.True(t, res.Valid)
}

func TestStaffingLimit(t *testing.T) {
	tests := []struct {
		headcount int
		threshold float64
		want      int
	}{
		{10, 0.3, 3},
		{7, 0.3, 3},
		{20, 0.3, 6},
		{3, 0.3, 1},
		{1, 0.3, 1},
		{0, 0.3, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, timeoff.StaffingLimit(tt.headcount, tt.threshold),
			"headcount=%d threshold=%v", tt.headcount, tt.threshold)
	}
}

func TestValidateVacation_StaffingRunsAfterBalance(t *testing.T) {
	v := newValidator()
	dept := department("Limpieza", 3)
	day := date(2025, time.May, 5)
	balance := timeoff.Balance{UserID: "u0", Year: 2025, VacationDays: 22}
	requests := []timeoff.Request{
		request("a", "u1", timeoff.TypeVacation, day, day, timeoff.StatusApproved),
	}

	res := v.ValidateVacationRequest(day, day, dept[0],
		timeoff.Snapshot{Balance: &balance, Department: dept, Requests: requests})
	assert.False(t, res.Valid)
	assert.Equal(t, timeoff.ReasonStaffingConflict, res.Reason)
	assert.Equal(t, 1, res.Limit)
}

// =============================================================================
// PERSONAL DAYS
// =============================================================================

func TestPersonalDay_TenPercentCapReached(t *testing.T) {
	// GIVEN: A department of 10 with one colleague on leave that day
	// WHEN: Another member asks for a personal day
	// THEN: 1/10 = 10% reaches the cap and is rejected
	v := newValidator()
	dept := department("Limpieza", 10)
	day := date(2025, time.May, 5)
	requests := []timeoff.Request{
		request("a", "u1", timeoff.TypeLeave, day, day, timeoff.StatusPending),
	}

	res := v.ValidatePersonalDay(day, dept[0], timeoff.Snapshot{Department: dept, Requests: requests})
	assert.False(t, res.Valid)
	assert.Equal(t, timeoff.ReasonDepartmentAbsenceCap, res.Reason)
	assert.Equal(t, 1, res.Absent)
	assert.Equal(t, 10, res.Headcount)
}

func TestPersonalDay_BelowCapPasses(t *testing.T) {
	v := newValidator()
	dept := department("Limpieza", 20)
	day := date(2025, time.May, 5)
	requests := []timeoff.Request{
		request("a", "u1", timeoff.TypeVacation, day, day, timeoff.StatusApproved),
	}

	res := v.ValidatePersonalDay(day, dept[0], timeoff.Snapshot{Department: dept, Requests: requests})
	assert.True(t, res.Valid, res.Message)

	res = v.ValidatePersonalDay(day, dept[0], timeoff.Snapshot{Department: dept})
	assert.True(t, res.Valid)
}

func TestPersonalDay_NoneLeft(t *testing.T) {
	v := newValidator()
	user := worker("w1", "Cocina", "")
	balance := timeoff.Balance{UserID: "w1", Year: 2025, PersonalDays: 2}
	requests := []timeoff.Request{
		request("p1", "w1", timeoff.TypePersonalDay, date(2025, time.March, 3), date(2025, time.March, 3), timeoff.StatusApproved),
		request("p2", "w1", timeoff.TypePersonalDay, date(2025, time.March, 10), date(2025, time.March, 10), timeoff.StatusPending),
	}

	res := v.ValidatePersonalDay(date(2025, time.May, 5), user, timeoff.Snapshot{Balance: &balance, Requests: requests})
	assert.False(t, res.Valid)
	assert.Equal(t, timeoff.ReasonInsufficientBalance, res.Reason)
	assert.Equal(t, 0, res.Available)
}

func TestPersonalDays_MultiDayRequestChargesWholeSpan(t *testing.T) {
	// GIVEN: One personal day left in the year
	// WHEN: A personal-day request covers Mon-Fri
	// THEN: All five days are charged at once and the request is refused
	v := newValidator()
	user := worker("w1", "Cocina", "")
	balance := timeoff.Balance{UserID: "w1", Year: 2025, PersonalDays: 1}
	monday := date(2025, time.May, 5)

	res := v.ValidateRequest(request("", "w1", timeoff.TypePersonalDay, monday, monday.AddDays(4), timeoff.StatusPending),
		user, timeoff.Snapshot{Balance: &balance})
	assert.False(t, res.Valid)
	assert.Equal(t, timeoff.ReasonInsufficientBalance, res.Reason)
	assert.Equal(t, 5, res.Requested)
	assert.Equal(t, 1, res.Available)

	// A single day still fits.
	res = v.ValidateRequest(request("", "w1", timeoff.TypePersonalDay, monday, monday, timeoff.StatusPending),
		user, timeoff.Snapshot{Balance: &balance})
	assert.True(t, res.Valid, res.Message)
}

func TestPersonalDays_CapCheckedOnEveryDay(t *testing.T) {
	// GIVEN: A colleague on leave only on the third day of the range
	// THEN: The cap failure names that day
	v := newValidator()
	dept := department("Limpieza", 10)
	monday := date(2025, time.May, 5)
	wednesday := monday.AddDays(2)
	requests := []timeoff.Request{
		request("a", "u1", timeoff.TypeLeave, wednesday, wednesday, timeoff.StatusApproved),
	}

	res := v.ValidateRequest(request("", "u0", timeoff.TypePersonalDay, monday, monday.AddDays(3), timeoff.StatusPending),
		dept[0], timeoff.Snapshot{Department: dept, Requests: requests})
	assert.False(t, res.Valid)
	assert.Equal(t, timeoff.ReasonDepartmentAbsenceCap, res.Reason)
	require.NotNil(t, res.Date)
	assert.True(t, res.Date.Equal(wednesday))
}

func TestValidateRequest_DispatchesByType(t *testing.T) {
	v := newValidator()
	user := worker("w1", "Cocina", timeoff.GroupProgramado)
	tuesday := date(2025, time.April, 8)

	// Work-group rules only apply to vacations.
	res := v.ValidateRequest(request("", "w1", timeoff.TypeLeave, tuesday, tuesday.AddDays(2), timeoff.StatusPending), user, timeoff.Snapshot{})
	assert.True(t, res.Valid)

	res = v.ValidateRequest(request("", "w1", timeoff.TypeVacation, tuesday, tuesday.AddDays(2), timeoff.StatusPending), user, timeoff.Snapshot{})
	assert.Equal(t, timeoff.ReasonStartDayNotMonday, res.Reason)

	res = v.ValidateRequest(request("", "w1", timeoff.TypeShiftChange, tuesday, tuesday.AddDays(-1), timeoff.StatusPending), user, timeoff.Snapshot{})
	assert.Equal(t, timeoff.ReasonInvalidRange, res.Reason)
}

// =============================================================================
// ALTERNATIVE DATES
// =============================================================================

func TestSuggest_NearestValidStartsFirst(t *testing.T) {
	// GIVEN: Grupo Localizado asks for Apr 2-8 (7 days), today is Mar 1
	// WHEN: Suggesting alternatives
	// THEN: Apr 1 (1 day away), Apr 16 (14 days), Mar 16 (17 days), all 7 days long
	v := timeoff.NewValidator(timeoff.DefaultValidatorConfig(),
		timeoff.WithClock(fixedClock(time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC))))
	user := worker("w1", "Cocina", timeoff.GroupLocalizado)

	got := v.SuggestAlternativeDates(date(2025, time.April, 2), date(2025, time.April, 8), user, timeoff.Snapshot{})
	require.Len(t, got, 3)
	assert.True(t, got[0].Start.Equal(date(2025, time.April, 1)))
	assert.True(t, got[1].Start.Equal(date(2025, time.April, 16)))
	assert.True(t, got[2].Start.Equal(date(2025, time.March, 16)))
	for _, p := range got {
		assert.Equal(t, 7, p.DayCount())
	}
}

func TestSuggest_NeverProposesPastDates(t *testing.T) {
	v := timeoff.NewValidator(timeoff.DefaultValidatorConfig(),
		timeoff.WithClock(fixedClock(time.Date(2025, time.April, 10, 8, 0, 0, 0, time.UTC))))
	user := worker("w1", "Cocina", timeoff.GroupLocalizado)

	got := v.SuggestAlternativeDates(date(2025, time.April, 2), date(2025, time.April, 8), user, timeoff.Snapshot{})
	require.Len(t, got, 3)
	assert.True(t, got[0].Start.Equal(date(2025, time.April, 16)))
	assert.True(t, got[1].Start.Equal(date(2025, time.May, 1)))
	assert.True(t, got[2].Start.Equal(date(2025, time.May, 16)))
}

func TestSuggest_SkipsRangesWithStaffingConflicts(t *testing.T) {
	// GIVEN: Programado worker in a department of 3; a colleague is off the week of Apr 14
	// WHEN: Asking for Tue Apr 15 - Mon Apr 21
	// THEN: The Apr 14 week is skipped; Apr 21 (6 days later) then Apr 7 (8 days earlier)
	dept := department("Cocina", 3)
	for i := range dept {
		dept[i].WorkGroup = timeoff.GroupProgramado
	}
	requests := []timeoff.Request{
		request("a", "u1", timeoff.TypeVacation, date(2025, time.April, 14), date(2025, time.April, 18), timeoff.StatusApproved),
	}
	cfg := timeoff.DefaultValidatorConfig()
	cfg.MaxSuggestions = 2
	v := timeoff.NewValidator(cfg, timeoff.WithClock(fixedClock(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))))

	got := v.SuggestAlternativeDates(date(2025, time.April, 15), date(2025, time.April, 21), dept[0],
		timeoff.Snapshot{Department: dept, Requests: requests})
	require.Len(t, got, 2)
	assert.True(t, got[0].Start.Equal(date(2025, time.April, 21)))
	assert.True(t, got[1].Start.Equal(date(2025, time.April, 7)))
}

func TestSuggest_InvalidRangeYieldsNothing(t *testing.T) {
	v := newValidator()
	got := v.SuggestAlternativeDates(date(2025, time.April, 8), date(2025, time.April, 2), worker("w1", "Cocina", ""), timeoff.Snapshot{})
	assert.Empty(t, got)
}
