package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"contas/internal/core"
)

// Recurring cost templates and the transactions generated from them.

const recurringColumns = `id, user_id, name, amount_cents, source, card_id, day_of_month,
	start_day, start_month, start_year, end_day, end_month, end_year,
	cancelled, last_day, last_month, last_year`

func scanRecurring(scan func(dest ...any) error) (*core.RecurringCost, error) {
	var rc core.RecurringCost
	var sd, sm, sy, ed, em, ey, ld, lm, ly int
	err := scan(&rc.ID, &rc.UserID, &rc.Name, &rc.Amount.Cents, &rc.Source, &rc.CardID,
		&rc.DayOfMonth, &sd, &sm, &sy, &ed, &em, &ey, &rc.Cancelled, &ld, &lm, &ly)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	rc.StartDate = core.NewDate(sy, sm, sd)
	if ey != 0 {
		rc.EndDate = core.NewDate(ey, em, ed)
	}
	if ly != 0 {
		rc.LastGenerated = core.NewDate(ly, lm, ld)
	}
	return &rc, nil
}

func (r *SQLiteRepository) CreateRecurringCost(ctx context.Context, rc *core.RecurringCost) error {
	var ed, em, ey int
	if !rc.EndDate.IsZero() {
		ed, em, ey = rc.EndDate.Day(), rc.EndDate.Month(), rc.EndDate.Year()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO recurring_costs
			(user_id, name, amount_cents, source, card_id, day_of_month,
			 start_day, start_month, start_year, end_day, end_month, end_year, cancelled)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		rc.UserID, rc.Name, rc.Amount.Cents, rc.Source, rc.CardID, rc.DayOfMonth,
		rc.StartDate.Day(), rc.StartDate.Month(), rc.StartDate.Year(), ed, em, ey)
	if err != nil {
		return fmt.Errorf("insert recurring cost: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("recurring cost insert id: %w", err)
	}
	rc.ID = id
	return nil
}

func (r *SQLiteRepository) GetRecurringCost(ctx context.Context, id int64) (*core.RecurringCost, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+recurringColumns+" FROM recurring_costs WHERE id = ?", id)
	return scanRecurring(row.Scan)
}

// ListActiveRecurringCosts returns every template that is not cancelled
// and has started by now; the processor decides what is actually due.
func (r *SQLiteRepository) ListActiveRecurringCosts(ctx context.Context, now time.Time) ([]core.RecurringCost, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recurringColumns+`
		 FROM recurring_costs
		 WHERE cancelled = 0
		   AND (start_year < ? OR (start_year = ? AND start_month <= ?))`,
		now.Year(), now.Year(), int(now.Month()))
	if err != nil {
		return nil, fmt.Errorf("list active recurring costs: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringCost
	for rows.Next() {
		rc, err := scanRecurring(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *rc)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateRecurringLastGenerated(ctx context.Context, id int64, d core.Date) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE recurring_costs SET last_day = ?, last_month = ?, last_year = ? WHERE id = ?",
		d.Day(), d.Month(), d.Year(), id)
	if err != nil {
		return fmt.Errorf("update recurring last generated: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CancelRecurringCost(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE recurring_costs SET cancelled = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("cancel recurring cost: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ListFutureRecurringTransactions returns transactions generated by the
// template and dated strictly after the given day. Cancellation removes
// these; past occurrences stay.
func (r *SQLiteRepository) ListFutureRecurringTransactions(ctx context.Context, recurringID int64, after core.Date) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+transactionColumns+` FROM transactions
		 WHERE recurring_id = ?
		   AND (year > ? OR (year = ? AND month > ?) OR (year = ? AND month = ? AND day > ?))`,
		recurringID,
		after.Year(), after.Year(), after.Month(), after.Year(), after.Month(), after.Day())
	if err != nil {
		return nil, fmt.Errorf("list future recurring transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var day, month, year int
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Kind, &t.Source, &t.SourceDetail,
			&day, &month, &year, &t.Amount.Cents, &t.GroupID, &t.CardID, &t.RecurringID); err != nil {
			return nil, err
		}
		t.Date = core.NewDate(year, month, day)
		out = append(out, t)
	}
	return out, rows.Err()
}
