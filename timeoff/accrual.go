/*
accrual.go - Seniority bonus and displayed allotment

PURPOSE:
  Workers earn one extra vacation day for every five full years of
  service. The bonus is informational: it is added to what the worker sees
  as available, never written back to the stored Balance.

FORMULA:
  bonus = floor(seniority / BonusEvery)      (BonusEvery defaults to 5)

  seniority  0-4  -> +0
  seniority  5-9  -> +1
  seniority 10-14 -> +2

EXAMPLE:
  shown := timeoff.CalculateAvailableDays(user, balance)
  // shown.VacationDays == balance.VacationDays + user.Seniority/5

SEE ALSO:
  - ledger.go: Remaining days after subtracting requests
*/
package timeoff

// DefaultSeniorityBonusEvery is the number of service years per bonus day.
const DefaultSeniorityBonusEvery = 5

// SeniorityBonus returns the extra vacation days for a seniority in years.
func SeniorityBonus(seniority, every int) int {
	if every <= 0 || seniority <= 0 {
		return 0
	}
	return seniority / every
}

// CalculateAvailableDays returns the allotment as shown to the worker,
// with the seniority bonus folded into vacation days.
func CalculateAvailableDays(user User, balance Balance) Balance {
	return calculateAvailableDays(user, balance, DefaultSeniorityBonusEvery)
}

func calculateAvailableDays(user User, balance Balance, every int) Balance {
	shown := balance
	shown.UserID = user.ID
	shown.VacationDays += SeniorityBonus(user.Seniority, every)
	return shown
}
