// Package billing implements the billing-cycle engine: splitting a
// purchase into monthly parcels, resolving which statement each parcel
// belongs to, and keeping statement totals consistent as plans are
// created, edited and unwound.
package billing

import (
	"fmt"

	"contas/internal/core"
)

// MaxParcels is the upper bound on installments for one purchase.
const MaxParcels = 24

// Allocate splits total into n monthly parcels in integer cents.
// Every parcel gets floor(total/n); the remainder (at most n-1 cents)
// goes to the last parcel so the sum is cent-perfect.
func Allocate(total core.Money, n int) ([]core.Money, error) {
	if n < 1 || n > MaxParcels {
		return nil, fmt.Errorf("%w: parcels must be between 1 and %d, got %d",
			core.ErrInvalidInstallmentPlan, MaxParcels, n)
	}
	if total.Cents <= 0 {
		return nil, fmt.Errorf("%w: total must be positive, got %s",
			core.ErrInvalidInstallmentPlan, total)
	}

	base := total.Cents / int64(n)
	remainder := total.Cents % int64(n)

	parcels := make([]core.Money, n)
	for i := range parcels {
		parcels[i] = core.NewMoney(base)
	}
	parcels[n-1] = parcels[n-1].Add(core.NewMoney(remainder))

	return parcels, nil
}
