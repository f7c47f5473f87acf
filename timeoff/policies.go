/*
policies.go - Work-group date rules

PURPOSE:
  Each worker belongs to a scheduling cohort ("work group") and the cohort
  decides on which days a vacation may begin. Rotating on-call cohorts
  restart their rota on the 1st and 16th of the month; programmed cohorts
  plan by whole weeks and start on Mondays. Everything else is free.

WORK GROUPS:
  Grupo Localizado       start on day 1 or 16
  Grupo Urgente 12h      start on day 1 or 16
  Grupo 1/3              start on day 1 or 16
  Grupo Programado       start on a Monday
  Grupo Top Programado   start on a Monday
  (anything else)        unconstrained

NAME MATCHING:
  Names arrive from profile data typed by people. Matching ignores case,
  surrounding spaces and an optional "Grupo " prefix, so "programado",
  "Grupo Programado" and "GRUPO PROGRAMADO" are the same cohort.

EXAMPLE:
  ok := timeoff.ValidateDatesForWorkGroup(generic.NewTimePoint(2025, 4, 7), "Grupo Programado")
  // true: 2025-04-07 is a Monday

SEE ALSO:
  - validator.go: Applies the rule as the first vacation check
  - suggest.go:   Searches for nearby dates that satisfy it
*/
package timeoff

import (
	"strings"
	"time"

	"github.com/rioja-cuida/approval-engine/generic"
)

// =============================================================================
// START-DAY RULES
// =============================================================================

// StartDayRule constrains the first day of a vacation.
type StartDayRule int

const (
	RuleNone StartDayRule = iota
	RuleFirstOrSixteenth
	RuleMonday
)

func (r StartDayRule) String() string {
	switch r {
	case RuleFirstOrSixteenth:
		return "first_or_sixteenth"
	case RuleMonday:
		return "monday"
	default:
		return "none"
	}
}

// Allows reports whether a vacation may start on the given day.
func (r StartDayRule) Allows(day generic.TimePoint) bool {
	switch r {
	case RuleFirstOrSixteenth:
		return day.Day() == 1 || day.Day() == 16
	case RuleMonday:
		return day.Weekday() == time.Monday
	default:
		return true
	}
}

// =============================================================================
// WORK GROUPS
// =============================================================================

// WorkGroup is a scheduling cohort with its start-day rule.
type WorkGroup struct {
	Name string
	Rule StartDayRule
}

const (
	GroupLocalizado    = "Grupo Localizado"
	GroupUrgente12h    = "Grupo Urgente 12h"
	GroupOneThird      = "Grupo 1/3"
	GroupProgramado    = "Grupo Programado"
	GroupTopProgramado = "Grupo Top Programado"
)

// WorkGroups is the catalogue of constrained cohorts.
var WorkGroups = []WorkGroup{
	{Name: GroupLocalizado, Rule: RuleFirstOrSixteenth},
	{Name: GroupUrgente12h, Rule: RuleFirstOrSixteenth},
	{Name: GroupOneThird, Rule: RuleFirstOrSixteenth},
	{Name: GroupProgramado, Rule: RuleMonday},
	{Name: GroupTopProgramado, Rule: RuleMonday},
}

var workGroupIndex = func() map[string]WorkGroup {
	idx := make(map[string]WorkGroup, len(WorkGroups))
	for _, g := range WorkGroups {
		idx[normalizeGroup(g.Name)] = g
	}
	return idx
}()

func normalizeGroup(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "grupo ")
	return strings.Join(strings.Fields(n), " ")
}

// LookupWorkGroup returns the cohort for a name. Unknown names yield an
// unconstrained group carrying the original name.
func LookupWorkGroup(name string) WorkGroup {
	if g, ok := workGroupIndex[normalizeGroup(name)]; ok {
		return g
	}
	return WorkGroup{Name: name, Rule: RuleNone}
}

// ValidateDatesForWorkGroup reports whether a vacation may start on date
// for the given work group.
func ValidateDatesForWorkGroup(date generic.TimePoint, workGroup string) bool {
	return LookupWorkGroup(workGroup).Rule.Allows(date)
}
