/*
ledger.go - Remaining-days derivation

PURPOSE:
  A Balance record is the yearly allotment. It is never decremented.
  What a worker has left is DERIVED on every read by subtracting the
  inclusive day spans of their own requests from the allotment.

INVARIANT:
  remaining = allotment - sum(DayCount of own pending + approved requests
                              of the same type starting in the same year)

  Remaining can go negative: two submissions validated against the same
  stale snapshot both pass. The ledger reports the overdraft; it does not
  prevent it.

ARITHMETIC:
  Uses generic.Amount (decimal) so the figures shown in the UI and the
  figures used for validation come from the same code path.

EXAMPLE:
  ledger := timeoff.NewBalanceLedger(timeoff.DefaultSeniorityBonusEvery)
  view := ledger.Remaining(user, balance, requests)
  view.Line(timeoff.TypeVacation).Remaining // e.g. 17 days

SEE ALSO:
  - accrual.go:   Seniority bonus
  - validator.go: Uses ConsumedDays for balance sufficiency
*/
package timeoff

import (
	"github.com/rioja-cuida/approval-engine/generic"
)

// =============================================================================
// BALANCE LEDGER
// =============================================================================

// BalanceLedger derives remaining days from an allotment and requests.
type BalanceLedger struct {
	BonusEvery int
}

// NewBalanceLedger creates a ledger using the given seniority bonus step.
func NewBalanceLedger(bonusEvery int) *BalanceLedger {
	return &BalanceLedger{BonusEvery: bonusEvery}
}

// BalanceLine is the derived state of one request type.
type BalanceLine struct {
	Type      RequestType
	Allotment generic.Amount
	Bonus     generic.Amount
	Approved  generic.Amount
	Pending   generic.Amount
	Remaining generic.Amount
}

// BalanceView is the per-type summary shown to the worker.
type BalanceView struct {
	UserID string
	Year   int
	Lines  []BalanceLine
}

// Line returns the line for a request type (zero line if absent).
func (v BalanceView) Line(t RequestType) BalanceLine {
	for _, l := range v.Lines {
		if l.Type == t {
			return l
		}
	}
	zero := generic.Days(0)
	return BalanceLine{Type: t, Allotment: zero, Bonus: zero, Approved: zero, Pending: zero, Remaining: zero}
}

// Remaining computes the balance view for a user's year.
// Only the user's own requests are considered; others are ignored.
func (l *BalanceLedger) Remaining(user User, balance Balance, requests []Request) BalanceView {
	view := BalanceView{UserID: user.ID, Year: balance.Year}

	for _, t := range []RequestType{TypeVacation, TypePersonalDay, TypeLeave} {
		line := BalanceLine{
			Type:      t,
			Allotment: generic.Days(balance.Allotment(t)),
			Bonus:     generic.Days(0),
			Approved:  generic.Days(0),
			Pending:   generic.Days(0),
		}
		if t == TypeVacation {
			line.Bonus = generic.Days(SeniorityBonus(user.Seniority, l.BonusEvery))
		}

		for _, r := range requests {
			if !countsFor(r, user.ID, t, balance.Year) {
				continue
			}
			span := generic.Days(r.DayCount())
			if r.Status == StatusApproved {
				line.Approved = line.Approved.Add(span)
			} else {
				line.Pending = line.Pending.Add(span)
			}
		}

		line.Remaining = line.Allotment.Sub(line.Approved).Sub(line.Pending)
		view.Lines = append(view.Lines, line)
	}

	return view
}

// ConsumedDays returns the inclusive day total of a user's pending and
// approved requests of one type that start in the given year.
func ConsumedDays(userID string, t RequestType, year int, requests []Request) generic.Amount {
	total := generic.Days(0)
	for _, r := range requests {
		if countsFor(r, userID, t, year) {
			total = total.Add(generic.Days(r.DayCount()))
		}
	}
	return total
}

// RemainingDays returns allotment minus consumed days for one type.
func RemainingDays(balance Balance, t RequestType, requests []Request) generic.Amount {
	return generic.Days(balance.Allotment(t)).Sub(ConsumedDays(balance.UserID, t, balance.Year, requests))
}

func countsFor(r Request, userID string, t RequestType, year int) bool {
	return r.UserID == userID &&
		r.Type == t &&
		r.Status.Consumes() &&
		generic.YearPeriod(year).Contains(r.StartDate)
}
