package billing

import "contas/internal/core"

// ResolveInitialPeriod computes the statement period the first parcel of a
// purchase belongs to.
//
// A purchase made after the card's due day lands on the next month's
// statement: the current cycle is already closed. A purchase on or before
// the due day always belongs to the purchase month. No other rollover
// condition applies.
func ResolveInitialPeriod(purchase core.Date, dueDay int) core.Period {
	period := purchase.Period()
	if purchase.Day() > dueDay {
		period = period.Advance(1)
	}
	return period
}
