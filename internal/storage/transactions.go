package storage

import (
	"context"
	"fmt"

	"contas/internal/core"
)

// Plain (non-card) transaction persistence, used by the transaction
// service. Card purchases go through the planner and billing.Tx instead.

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t *core.Transaction) error {
	return insertTransaction(ctx, r.db, t)
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t *core.Transaction) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions
		 SET name = ?, source = ?, source_detail = ?, day = ?, month = ?, year = ?, amount_cents = ?
		 WHERE id = ?`,
		t.Name, t.Source, t.SourceDetail,
		t.Date.Day(), t.Date.Month(), t.Date.Year(),
		t.Amount.Cents, t.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
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

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
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

func (r *SQLiteRepository) ListRecentTransactions(ctx context.Context, userID int64, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+transactionColumns+` FROM transactions
		 WHERE user_id = ?
		 ORDER BY year DESC, month DESC, day DESC, id DESC
		 LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent transactions: %w", err)
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

// InsertCard exists for provisioning and tests; card CRUD itself lives
// outside the engine.
func (r *SQLiteRepository) InsertCard(ctx context.Context, c *core.Card) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO cards (user_id, name, due_day) VALUES (?, ?, ?)",
		c.UserID, c.Name, c.DueDay)
	if err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("card insert id: %w", err)
	}
	c.ID = id
	return nil
}
