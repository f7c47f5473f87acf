package timeoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rioja-cuida/approval-engine/generic"
	"github.com/rioja-cuida/approval-engine/store/memory"
	"github.com/rioja-cuida/approval-engine/timeoff"
)

func newRequestService(t *testing.T) (*timeoff.RequestService, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	clock := fixedClock(time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC))
	validator := timeoff.NewValidator(timeoff.DefaultValidatorConfig(), timeoff.WithClock(clock))
	svc := timeoff.NewRequestService(store, validator, store, nil)
	svc.Clock = clock

	for _, u := range department("Urgencias", 10) {
		u.WorkGroup = timeoff.GroupLocalizado
		require.NoError(t, store.SaveUser(ctx, u))
		require.NoError(t, store.SaveBalance(ctx, timeoff.Balance{UserID: u.ID, Year: 2025, VacationDays: 22, PersonalDays: 4, LeaveDays: 10}))
	}
	return svc, store
}

func TestRequestService_SubmitPersistsPending(t *testing.T) {
	svc, store := newRequestService(t)
	ctx := context.Background()

	req, res, err := svc.Submit(ctx, timeoff.SubmitInput{
		UserID:    "u0",
		Type:      timeoff.TypeVacation,
		StartDate: date(2025, time.April, 16),
		EndDate:   date(2025, time.April, 30),
		Reason:    "Family trip",
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, timeoff.StatusPending, req.Status)
	assert.Equal(t, 15, req.DayCount())

	stored, err := svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "Family trip", stored.Reason)

	entries, err := store.Query(ctx, generic.AuditFilter{RequestID: &req.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, generic.AuditRequestCreated, entries[0].Action)
	assert.Equal(t, "u0", entries[0].ActorID)
}

func TestRequestService_SubmitRejectedWithAlternatives(t *testing.T) {
	// GIVEN: A Localizado worker asking to start on the 2nd
	// WHEN: Submitting
	// THEN: Nothing is stored; the error carries the result and alternatives
	svc, _ := newRequestService(t)
	ctx := context.Background()

	_, res, err := svc.Submit(ctx, timeoff.SubmitInput{
		UserID:    "u0",
		Type:      timeoff.TypeVacation,
		StartDate: date(2025, time.April, 2),
		EndDate:   date(2025, time.April, 8),
	})
	require.ErrorIs(t, err, generic.ErrValidationFailed)
	assert.Equal(t, timeoff.ReasonStartDayNotFirstOrSixteenth, res.Reason)

	var verr *timeoff.ValidationError
	require.True(t, errors.As(err, &verr))
	require.NotEmpty(t, verr.Alternatives)
	assert.True(t, verr.Alternatives[0].Start.Equal(date(2025, time.April, 1)))

	mine, err := svc.ListByUser(ctx, "u0")
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestRequestService_ForceRecordsDespiteFailure(t *testing.T) {
	svc, _ := newRequestService(t)
	ctx := context.Background()

	req, res, err := svc.Submit(ctx, timeoff.SubmitInput{
		UserID:    "u0",
		Type:      timeoff.TypeVacation,
		StartDate: date(2025, time.April, 2),
		EndDate:   date(2025, time.April, 8),
		Force:     true,
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, timeoff.StatusPending, req.Status)
}

func TestRequestService_StaffingSeesColleaguesFromStore(t *testing.T) {
	// GIVEN: Three colleagues in a department of 10 already off from Apr 16
	// WHEN: A fourth asks for the same fortnight
	// THEN: Staffing conflict
	svc, _ := newRequestService(t)
	ctx := context.Background()

	for _, id := range []string{"u1", "u2", "u3"} {
		_, _, err := svc.Submit(ctx, timeoff.SubmitInput{
			UserID: id, Type: timeoff.TypeVacation,
			StartDate: date(2025, time.April, 16), EndDate: date(2025, time.April, 20),
		})
		require.NoError(t, err)
	}

	_, res, err := svc.Submit(ctx, timeoff.SubmitInput{
		UserID: "u0", Type: timeoff.TypeVacation,
		StartDate: date(2025, time.April, 16), EndDate: date(2025, time.April, 20),
	})
	require.ErrorIs(t, err, generic.ErrValidationFailed)
	assert.Equal(t, timeoff.ReasonStaffingConflict, res.Reason)
	assert.Equal(t, 3, res.Absent)
}

func TestRequestService_SetStatusAndListPending(t *testing.T) {
	svc, _ := newRequestService(t)
	ctx := context.Background()

	a, _, err := svc.Submit(ctx, timeoff.SubmitInput{UserID: "u0", Type: timeoff.TypeLeave,
		StartDate: date(2025, time.May, 5), EndDate: date(2025, time.May, 6)})
	require.NoError(t, err)
	b, _, err := svc.Submit(ctx, timeoff.SubmitInput{UserID: "u1", Type: timeoff.TypeShiftChange,
		StartDate: date(2025, time.May, 7), EndDate: date(2025, time.May, 7)})
	require.NoError(t, err)

	updated, err := svc.SetStatus(ctx, a.ID, timeoff.StatusApproved, "ok")
	require.NoError(t, err)
	assert.Equal(t, timeoff.StatusApproved, updated.Status)
	assert.Equal(t, "ok", updated.Observations)

	_, err = svc.SetStatus(ctx, b.ID, timeoff.StatusMoreInfo, "which shift?")
	require.NoError(t, err)

	pending, err := svc.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].ID)

	_, err = svc.SetStatus(ctx, "missing", timeoff.StatusApproved, "")
	assert.True(t, generic.IsNotFound(err))
}

func TestRequestService_BalanceView(t *testing.T) {
	svc, store := newRequestService(t)
	ctx := context.Background()

	u := worker("senior", "Urgencias", "")
	u.Seniority = 10
	require.NoError(t, store.SaveUser(ctx, u))
	require.NoError(t, store.SaveBalance(ctx, timeoff.Balance{UserID: "senior", Year: 2025, VacationDays: 22, PersonalDays: 4}))

	_, _, err := svc.Submit(ctx, timeoff.SubmitInput{UserID: "senior", Type: timeoff.TypeVacation,
		StartDate: date(2025, time.July, 7), EndDate: date(2025, time.July, 11)})
	require.NoError(t, err)

	view, shown, err := svc.BalanceView(ctx, "senior", 2025)
	require.NoError(t, err)
	assert.Equal(t, 24, shown.VacationDays)
	line := view.Line(timeoff.TypeVacation)
	assert.True(t, line.Pending.Equal(generic.Days(5)))
	assert.True(t, line.Remaining.Equal(generic.Days(17)))
}

func TestRequestService_MissingBalanceSkipsCheck(t *testing.T) {
	svc, store := newRequestService(t)
	ctx := context.Background()
	require.NoError(t, store.SaveUser(ctx, worker("new", "Admin", "")))

	_, res, err := svc.Submit(ctx, timeoff.SubmitInput{UserID: "new", Type: timeoff.TypeVacation,
		StartDate: date(2025, time.July, 7), EndDate: date(2025, time.July, 30)})
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestRequestService_UnknownTypeRejected(t *testing.T) {
	svc, _ := newRequestService(t)

	_, _, err := svc.Submit(context.Background(), timeoff.SubmitInput{UserID: "u0", Type: "holiday",
		StartDate: date(2025, time.July, 7), EndDate: date(2025, time.July, 8)})
	assert.ErrorIs(t, err, generic.ErrValidationFailed)
}
