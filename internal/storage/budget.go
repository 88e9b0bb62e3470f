package storage

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"contas/internal/budget"
	"contas/internal/core"
)

// Budget entry persistence. Budgeted fields are written by user edits
// (last writer wins), realized and derived fields only by the
// reconciler.

func (r *SQLiteRepository) ListBudgetEntries(ctx context.Context, userID int64, year int) ([]core.BudgetEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, month, year,
			budgeted_income_cents, budgeted_expense_cents,
			realized_income_cents, realized_expense_cents,
			gap_cents, gap_percent, status
		 FROM budget_entries
		 WHERE user_id = ? AND year = ?
		 ORDER BY month`,
		userID, year)
	if err != nil {
		return nil, fmt.Errorf("list budget entries: %w", err)
	}
	defer rows.Close()

	var out []core.BudgetEntry
	for rows.Next() {
		var e core.BudgetEntry
		var gapPercent string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Month, &e.Year,
			&e.BudgetedIncome.Cents, &e.BudgetedExpense.Cents,
			&e.RealizedIncome.Cents, &e.RealizedExpense.Cents,
			&e.GapAmount.Cents, &gapPercent, &e.Status); err != nil {
			return nil, err
		}
		e.GapPercent, err = decimal.NewFromString(gapPercent)
		if err != nil {
			return nil, fmt.Errorf("parse gap percent %q: %w", gapPercent, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) RealizedTotals(ctx context.Context, userID int64, year int) (map[int]budget.MonthTotals, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT month,
			COALESCE(SUM(CASE WHEN kind = 'income' THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'expense' THEN amount_cents ELSE 0 END), 0)
		 FROM transactions
		 WHERE user_id = ? AND year = ?
		 GROUP BY month`,
		userID, year)
	if err != nil {
		return nil, fmt.Errorf("sum realized totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[int]budget.MonthTotals)
	for rows.Next() {
		var month int
		var income, expense int64
		if err := rows.Scan(&month, &income, &expense); err != nil {
			return nil, err
		}
		totals[month] = budget.MonthTotals{
			Income:  core.NewMoney(income),
			Expense: core.NewMoney(expense),
		}
	}
	return totals, rows.Err()
}

func (r *SQLiteRepository) UpdateBudgetRealized(ctx context.Context, e *core.BudgetEntry) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE budget_entries
		 SET realized_income_cents = ?, realized_expense_cents = ?,
		     gap_cents = ?, gap_percent = ?, status = ?
		 WHERE id = ?`,
		e.RealizedIncome.Cents, e.RealizedExpense.Cents,
		e.GapAmount.Cents, e.GapPercent.String(), e.Status, e.ID)
	if err != nil {
		return fmt.Errorf("update budget realized: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) VerifyBillTotals(ctx context.Context, userID int64) ([]budget.BillMismatch, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT b.id, b.total_cents, COALESCE(SUM(i.amount_cents), 0) AS parcel_sum
		 FROM bills b
		 JOIN cards c ON c.id = b.card_id
		 LEFT JOIN installments i ON i.bill_id = b.id
		 WHERE c.user_id = ?
		 GROUP BY b.id
		 HAVING b.total_cents != parcel_sum`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("verify bill totals: %w", err)
	}
	defer rows.Close()

	var out []budget.BillMismatch
	for rows.Next() {
		var m budget.BillMismatch
		var total, sum int64
		if err := rows.Scan(&m.BillID, &total, &sum); err != nil {
			return nil, err
		}
		m.Total = core.NewMoney(total)
		m.InstallmentsSum = core.NewMoney(sum)
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpsertBudgetEntry creates or overwrites the budgeted figures of one
// (user, month, year); realized fields of an existing row are preserved.
func (r *SQLiteRepository) UpsertBudgetEntry(ctx context.Context, e *core.BudgetEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budget_entries
			(user_id, month, year, budgeted_income_cents, budgeted_expense_cents)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, month, year) DO UPDATE SET
			budgeted_income_cents = excluded.budgeted_income_cents,
			budgeted_expense_cents = excluded.budgeted_expense_cents`,
		e.UserID, e.Month, e.Year, e.BudgetedIncome.Cents, e.BudgetedExpense.Cents)
	if err != nil {
		return fmt.Errorf("upsert budget entry: %w", err)
	}
	return nil
}

// ListBudgetUsers returns the users holding budget entries for a year;
// the worker's backup sweep reconciles each of them.
func (r *SQLiteRepository) ListBudgetUsers(ctx context.Context, year int) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT user_id FROM budget_entries WHERE year = ?", year)
	if err != nil {
		return nil, fmt.Errorf("list budget users: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
