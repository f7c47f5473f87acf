package timeoff

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rioja-cuida/approval-engine/generic"
)

// =============================================================================
// STAFFING ANALYSIS
// =============================================================================

// AnalyzeStaffingConflicts walks the range day by day and reports the
// first day on which the number of distinct department colleagues already
// absent reaches ceil(StaffingThreshold * headcount).
//
// Headcount is the department roster including the requester. Colleagues
// count when they hold a non-rejected absence (vacation, personal day,
// leave) covering the day. The requester's own requests never count.
// Shift-change requests are not absences and are never counted.
func (v *Validator) AnalyzeStaffingConflicts(span generic.Period, user User, snap Snapshot) Result {
	members := departmentMembers(user, snap.Department)
	if len(members) == 0 {
		return ok()
	}
	limit := StaffingLimit(len(members), v.cfg.StaffingThreshold)

	for _, day := range span.Days() {
		absent := absentOn(day, user, members, snap.Requests)
		if absent >= limit {
			d := day
			return Result{
				Reason: ReasonStaffingConflict,
				Message: fmt.Sprintf("on %s, %d of %d people in %s are already absent (limit %d)",
					day, absent, len(members), user.Department, limit),
				Date:      &d,
				Absent:    absent,
				Limit:     limit,
				Headcount: len(members),
			}
		}
	}
	return ok()
}

// StaffingLimit returns ceil(threshold * headcount), never below one.
func StaffingLimit(headcount int, threshold float64) int {
	limit := decimal.NewFromFloat(threshold).Mul(decimal.NewFromInt(int64(headcount))).Ceil().IntPart()
	if limit < 1 {
		return 1
	}
	return int(limit)
}

// departmentMembers returns the distinct ids of the requester's department,
// always including the requester.
func departmentMembers(user User, roster []User) map[string]struct{} {
	if len(roster) == 0 {
		return nil
	}
	members := make(map[string]struct{}, len(roster)+1)
	for _, u := range roster {
		if u.Department == user.Department {
			members[u.ID] = struct{}{}
		}
	}
	members[user.ID] = struct{}{}
	return members
}

// absentOn counts distinct colleagues holding an active absence on day.
func absentOn(day generic.TimePoint, user User, members map[string]struct{}, requests []Request) int {
	absent := make(map[string]struct{})
	for _, r := range requests {
		if r.UserID == user.ID || !r.Type.IsAbsence() || !r.Status.Active() {
			continue
		}
		if _, ok := members[r.UserID]; !ok {
			continue
		}
		if r.Period().Contains(day) {
			absent[r.UserID] = struct{}{}
		}
	}
	return len(absent)
}

// reachesShare reports whether count/headcount >= share.
func reachesShare(count, headcount int, share float64) bool {
	if headcount == 0 {
		return false
	}
	ratio := decimal.NewFromInt(int64(count)).Div(decimal.NewFromInt(int64(headcount)))
	return ratio.GreaterThanOrEqual(decimal.NewFromFloat(share))
}
