/*
Package generic provides the domain-agnostic building blocks shared by the
time-off validator and the approval engine.

KEY CONCEPTS:
  - Amount:    A quantity with a unit (e.g., 5 days), decimal-backed
  - TimePoint: A calendar date (day granularity for this system)
  - Period:    An inclusive date range [Start, End]
  - AuditLog:  Append-only record of who did what, when

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal so balance arithmetic never drifts
  2. Day granularity: Every date comparison normalizes to midnight UTC
  3. No ambient state: Nothing here reads globals or the wall clock

USAGE:
  span := generic.Period{Start: generic.NewTimePoint(2025, 4, 1), End: generic.NewTimePoint(2025, 4, 15)}
  days := generic.NewAmountFromInt(span.DayCount(), generic.UnitDays)

SEE ALSO:
  - period.go: Period arithmetic (day counts, overlap, iteration)
  - errors.go: Sentinel errors shared by the stores and services
  - store.go:  Audit log contract
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const UnitDays Unit = "days"

func NewAmountFromInt(value int, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

// Days is shorthand for an integer amount of days.
func Days(n int) Amount { return NewAmountFromInt(n, UnitDays) }

func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool       { return a.Value.Equal(b.Value) }

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

// IntPart truncates the amount to whole units.
func (a Amount) IntPart() int { return int(a.Value.IntPart()) }

func (a Amount) String() string { return a.Value.String() + " " + string(a.Unit) }
