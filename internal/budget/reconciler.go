// Package budget reconciles a user's budgeted figures against what
// actually happened each month.
package budget

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"contas/internal/core"
)

// MonthTotals is the realized income/expense of one month, summed from
// the user's transactions.
type MonthTotals struct {
	Income  core.Money
	Expense core.Money
}

// BillMismatch reports a bill whose stored total diverges from the sum of
// its installments. Unreachable given plan atomicity; if one shows up it
// is a bug, not data to repair.
type BillMismatch struct {
	BillID          int64
	Total           core.Money
	InstallmentsSum core.Money
}

// Store is the persistence surface the reconciler needs.
type Store interface {
	ListBudgetEntries(ctx context.Context, userID int64, year int) ([]core.BudgetEntry, error)
	// RealizedTotals sums the user's transactions per month for the year,
	// keyed by month (1..12). Months without transactions are absent.
	RealizedTotals(ctx context.Context, userID int64, year int) (map[int]MonthTotals, error)
	// UpdateBudgetRealized persists the realized and derived fields of an
	// entry; budgeted fields are untouched.
	UpdateBudgetRealized(ctx context.Context, e *core.BudgetEntry) error
	// VerifyBillTotals returns bills of the user whose total diverges from
	// their installment sum.
	VerifyBillTotals(ctx context.Context, userID int64) ([]BillMismatch, error)
}

// Reconciler recomputes realized figures, gap and status for every month
// of a user's budget. Reconciliation is idempotent and safe to re-run; it
// never creates or deletes budget entries.
type Reconciler struct {
	store Store
}

func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store}
}

// Reconcile updates every budget entry of (user, year) from the user's
// transactions. It runs over all months with an entry, not only the
// current one: a transaction backdated into a past month must correct
// that month's figures retroactively.
func (r *Reconciler) Reconcile(ctx context.Context, userID int64, year int) error {
	entries, err := r.store.ListBudgetEntries(ctx, userID, year)
	if err != nil {
		return fmt.Errorf("list budget entries: %w", err)
	}
	if len(entries) == 0 {
		slog.DebugContext(ctx, "No budget entries to reconcile",
			"user_id", userID, "year", year)
		return nil
	}

	totals, err := r.store.RealizedTotals(ctx, userID, year)
	if err != nil {
		return fmt.Errorf("sum realized totals: %w", err)
	}

	for i := range entries {
		entry := &entries[i]
		t := totals[entry.Month]

		entry.RealizedIncome = t.Income
		entry.RealizedExpense = t.Expense

		gap := entry.RealizedBalance().Sub(entry.BudgetedBalance())
		entry.GapAmount = gap
		entry.GapPercent = gapPercent(gap, entry.BudgetedBalance())
		entry.Status = Classify(gap)

		if err := r.store.UpdateBudgetRealized(ctx, entry); err != nil {
			return fmt.Errorf("update budget entry %d/%d: %w", entry.Month, entry.Year, err)
		}
	}

	r.assertBillConsistency(ctx, userID)

	slog.InfoContext(ctx, "Budget reconciled",
		"user_id", userID,
		"year", year,
		"months", len(entries))

	return nil
}

// gapPercent is gap / |budgeted balance|, zero when the budgeted balance
// is zero. Fixed-point division, four decimal places.
func gapPercent(gap, budgetedBalance core.Money) decimal.Decimal {
	if budgetedBalance.IsZero() {
		return decimal.Zero
	}
	return gap.Decimal().Div(budgetedBalance.Abs().Decimal()).Round(4)
}

// Classify maps a gap amount to its status: surplus when positive,
// deficit when negative, neutral at exactly zero.
func Classify(gap core.Money) core.BudgetStatus {
	switch {
	case gap.Cents > 0:
		return core.StatusSurplus
	case gap.Cents < 0:
		return core.StatusDeficit
	default:
		return core.StatusNeutral
	}
}

// assertBillConsistency cross-checks bill totals against installment
// sums. A mismatch means a plan mutation escaped its transaction; log
// loudly and leave the data alone.
func (r *Reconciler) assertBillConsistency(ctx context.Context, userID int64) {
	mismatches, err := r.store.VerifyBillTotals(ctx, userID)
	if err != nil {
		slog.WarnContext(ctx, "Bill consistency check failed to run",
			"user_id", userID, "error", err)
		return
	}
	for _, m := range mismatches {
		slog.ErrorContext(ctx, "BUG: bill total diverges from installment sum",
			"bill_id", m.BillID,
			"total_cents", m.Total.Cents,
			"installments_sum_cents", m.InstallmentsSum.Cents,
			"user_id", userID)
	}
}
