package approval

import (
	"github.com/rioja-cuida/approval-engine/timeoff"
)

// =============================================================================
// RULE MATCHER
// =============================================================================

// Matches reports whether the rule applies to a request from user.
//
// The day-count bounds only constrain vacation requests.
func (r Rule) Matches(req timeoff.Request, user timeoff.User) bool {
	if r.RequestType != AnyRequestType && r.RequestType != req.Type {
		return false
	}
	if r.Department != "" && r.Department != user.Department {
		return false
	}
	if req.Type == timeoff.TypeVacation {
		days := req.DayCount()
		if r.MinDays > 0 && days < r.MinDays {
			return false
		}
		if r.MaxDays > 0 && days > r.MaxDays {
			return false
		}
	}
	return true
}

// ApplicableRules returns every rule of an active policy that matches the
// request, ordered by policy id and then by position within the policy.
func (e *Engine) ApplicableRules(req timeoff.Request, user timeoff.User) []Rule {
	policies := e.policies.Active()
	sortPolicies(policies)

	var matched []Rule
	for _, p := range policies {
		if !p.Active {
			continue
		}
		for _, r := range p.Rules {
			if r.Matches(req, user) {
				matched = append(matched, r)
			}
		}
	}
	return matched
}
