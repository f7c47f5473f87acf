package timeoff_test

import (
	"fmt"
	"time"

	"github.com/rioja-cuida/approval-engine/generic"
	"github.com/rioja-cuida/approval-engine/timeoff"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(year int, month time.Month, day int) generic.TimePoint {
	return generic.NewTimePoint(year, month, day)
}

func worker(id, department, workGroup string) timeoff.User {
	return timeoff.User{
		ID:         id,
		Name:       "Worker",
		Surname:    id,
		Role:       timeoff.RoleWorker,
		Department: department,
		WorkGroup:  workGroup,
	}
}

// department returns n users in dept named u0..u(n-1).
func department(dept string, n int) []timeoff.User {
	users := make([]timeoff.User, n)
	for i := range users {
		users[i] = worker(fmt.Sprintf("u%d", i), dept, "")
	}
	return users
}

func request(id, userID string, t timeoff.RequestType, start, end generic.TimePoint, status timeoff.RequestStatus) timeoff.Request {
	return timeoff.Request{
		ID:        id,
		UserID:    userID,
		Type:      t,
		StartDate: start,
		EndDate:   end,
		Status:    status,
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
