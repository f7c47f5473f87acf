package timeoff

import (
	"github.com/rioja-cuida/approval-engine/generic"
)

// SuggestAlternativeDates proposes up to MaxSuggestions ranges of the same
// length as [start, end] that pass ValidateVacationRequest.
//
// Candidates are searched outward from start, nearest first, alternating
// later then earlier, within SuggestionWindowDays. Candidate starts that
// break the work-group rule or fall before today are skipped.
func (v *Validator) SuggestAlternativeDates(start, end generic.TimePoint, user User, snap Snapshot) []generic.Period {
	original := generic.Period{Start: start, End: end}
	if original.Validate() != nil || v.cfg.MaxSuggestions <= 0 {
		return nil
	}

	rule := LookupWorkGroup(user.WorkGroup).Rule
	today := generic.DateOf(v.clock())

	var out []generic.Period
	for offset := 1; offset <= v.cfg.SuggestionWindowDays; offset++ {
		for _, delta := range []int{offset, -offset} {
			candidate := original.WithStart(start.AddDays(delta))
			if candidate.Start.Before(today) || !rule.Allows(candidate.Start) {
				continue
			}
			if res := v.ValidateVacationRequest(candidate.Start, candidate.End, user, snap); !res.Valid {
				continue
			}
			out = append(out, candidate)
			if len(out) == v.cfg.MaxSuggestions {
				return out
			}
		}
	}
	return out
}
