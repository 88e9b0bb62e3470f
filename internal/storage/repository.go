// Package storage persists the billing domain in SQLite. Bill totals are
// only mutated through atomic SQL increments, and the open-bill-per-period
// rule is enforced by a partial unique index rather than application
// checks.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"contas/internal/billing"
	"contas/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Serialized writes; the engine's transactions assume it.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// InTx implements billing.Store: all writes of one plan mutation commit
// or roll back together.
func (r *SQLiteRepository) InTx(ctx context.Context, fn func(tx billing.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&storeTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx so read helpers can
// serve reads inside and outside transactions.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// storeTx implements billing.Tx over one *sql.Tx.
type storeTx struct {
	tx *sql.Tx
}

const billColumns = "id, card_id, month, year, total_cents, due_day, paid"

func scanBill(row *sql.Row) (*core.Bill, error) {
	var b core.Bill
	err := row.Scan(&b.ID, &b.CardID, &b.Period.Month, &b.Period.Year, &b.Total.Cents, &b.DueDay, &b.Paid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func getBill(ctx context.Context, q querier, id int64) (*core.Bill, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+billColumns+" FROM bills WHERE id = ?", id)
	return scanBill(row)
}

func findOpenBill(ctx context.Context, q querier, cardID int64, p core.Period) (*core.Bill, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+billColumns+" FROM bills WHERE card_id = ? AND month = ? AND year = ? AND paid = 0",
		cardID, p.Month, p.Year)
	return scanBill(row)
}

func getCard(ctx context.Context, q querier, id int64) (*core.Card, error) {
	var c core.Card
	err := q.QueryRowContext(ctx,
		"SELECT id, user_id, name, due_day FROM cards WHERE id = ?", id).
		Scan(&c.ID, &c.UserID, &c.Name, &c.DueDay)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("get card: %w", err)
	}
	return &c, nil
}

const transactionColumns = `id, user_id, name, kind, source, source_detail,
	day, month, year, amount_cents, group_id, card_id, recurring_id`

func scanTransaction(row *sql.Row) (*core.Transaction, error) {
	var t core.Transaction
	var day, month, year int
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Kind, &t.Source, &t.SourceDetail,
		&day, &month, &year, &t.Amount.Cents, &t.GroupID, &t.CardID, &t.RecurringID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	t.Date = core.NewDate(year, month, day)
	return &t, nil
}

func getTransaction(ctx context.Context, q querier, id int64) (*core.Transaction, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	return scanTransaction(row)
}

func getTransactionByGroup(ctx context.Context, q querier, groupID string) (*core.Transaction, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE group_id = ?", groupID)
	return scanTransaction(row)
}

func insertTransaction(ctx context.Context, q querier, t *core.Transaction) error {
	res, err := q.ExecContext(ctx,
		`INSERT INTO transactions
			(user_id, name, kind, source, source_detail, day, month, year,
			 amount_cents, group_id, card_id, recurring_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.Name, t.Kind, t.Source, t.SourceDetail,
		t.Date.Day(), t.Date.Month(), t.Date.Year(),
		t.Amount.Cents, t.GroupID, t.CardID, t.RecurringID)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("transaction insert id: %w", err)
	}
	t.ID = id
	return nil
}

func listInstallments(ctx context.Context, q querier, query string, arg any) ([]core.Installment, error) {
	rows, err := q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Installment
	for rows.Next() {
		var in core.Installment
		if err := rows.Scan(&in.ID, &in.TransactionID, &in.BillID, &in.Seq,
			&in.Amount.Cents, &in.Period.Month, &in.Period.Year, &in.Paid); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

const installmentColumns = "i.id, i.transaction_id, i.bill_id, i.seq, i.amount_cents, i.month, i.year, i.paid"

// --- billing.Store reads ---

func (r *SQLiteRepository) GetCard(ctx context.Context, id int64) (*core.Card, error) {
	return getCard(ctx, r.db, id)
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (*core.Transaction, error) {
	return getTransaction(ctx, r.db, id)
}

func (r *SQLiteRepository) GetTransactionByGroup(ctx context.Context, groupID string) (*core.Transaction, error) {
	return getTransactionByGroup(ctx, r.db, groupID)
}

func (r *SQLiteRepository) GetBill(ctx context.Context, id int64) (*core.Bill, error) {
	return getBill(ctx, r.db, id)
}

func (r *SQLiteRepository) ListOpenBills(ctx context.Context, cardID int64) ([]core.Bill, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+billColumns+" FROM bills WHERE card_id = ? AND paid = 0 ORDER BY year, month",
		cardID)
	if err != nil {
		return nil, fmt.Errorf("list open bills: %w", err)
	}
	defer rows.Close()

	var out []core.Bill
	for rows.Next() {
		var b core.Bill
		if err := rows.Scan(&b.ID, &b.CardID, &b.Period.Month, &b.Period.Year,
			&b.Total.Cents, &b.DueDay, &b.Paid); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListInstallmentsByBill(ctx context.Context, billID int64) ([]core.Installment, error) {
	return listInstallments(ctx, r.db,
		"SELECT "+installmentColumns+" FROM installments i WHERE i.bill_id = ? ORDER BY i.seq",
		billID)
}

func (r *SQLiteRepository) ListInstallmentsByGroup(ctx context.Context, groupID string) ([]core.Installment, error) {
	return listInstallments(ctx, r.db,
		`SELECT `+installmentColumns+`
		 FROM installments i
		 JOIN transactions tr ON tr.id = i.transaction_id
		 WHERE tr.group_id = ?
		 ORDER BY i.seq`,
		groupID)
}

// --- billing.Tx ---

func (t *storeTx) FindOpenBill(ctx context.Context, cardID int64, p core.Period) (*core.Bill, error) {
	return findOpenBill(ctx, t.tx, cardID, p)
}

func (t *storeTx) InsertBill(ctx context.Context, b *core.Bill) error {
	res, err := t.tx.ExecContext(ctx,
		"INSERT INTO bills (card_id, month, year, total_cents, due_day, paid) VALUES (?, ?, ?, ?, ?, 0)",
		b.CardID, b.Period.Month, b.Period.Year, b.Total.Cents, b.DueDay)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrDuplicateBill
		}
		return fmt.Errorf("insert bill: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("bill insert id: %w", err)
	}
	b.ID = id
	return nil
}

func (t *storeTx) IncrementBillTotal(ctx context.Context, billID int64, deltaCents int64) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE bills SET total_cents = total_cents + ? WHERE id = ?",
		deltaCents, billID)
	return err
}

func (t *storeTx) CountBillInstallments(ctx context.Context, billID int64) (int64, error) {
	var n int64
	err := t.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM installments WHERE bill_id = ?", billID).Scan(&n)
	return n, err
}

func (t *storeTx) DeleteBill(ctx context.Context, billID int64) error {
	_, err := t.tx.ExecContext(ctx, "DELETE FROM bills WHERE id = ?", billID)
	return err
}

func (t *storeTx) GetBill(ctx context.Context, id int64) (*core.Bill, error) {
	return getBill(ctx, t.tx, id)
}

func (t *storeTx) GetCard(ctx context.Context, id int64) (*core.Card, error) {
	return getCard(ctx, t.tx, id)
}

func (t *storeTx) MarkBillPaid(ctx context.Context, billID int64) error {
	_, err := t.tx.ExecContext(ctx, "UPDATE bills SET paid = 1 WHERE id = ?", billID)
	return err
}

func (t *storeTx) MarkBillInstallmentsPaid(ctx context.Context, billID int64) error {
	_, err := t.tx.ExecContext(ctx, "UPDATE installments SET paid = 1 WHERE bill_id = ?", billID)
	return err
}

func (t *storeTx) InsertTransaction(ctx context.Context, txn *core.Transaction) error {
	return insertTransaction(ctx, t.tx, txn)
}

func (t *storeTx) UpdateTransactionAmount(ctx context.Context, id int64, cents int64) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE transactions SET amount_cents = ? WHERE id = ?", cents, id)
	return err
}

func (t *storeTx) DeleteTransaction(ctx context.Context, id int64) error {
	_, err := t.tx.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	return err
}

func (t *storeTx) InsertInstallment(ctx context.Context, in *core.Installment) error {
	res, err := t.tx.ExecContext(ctx,
		"INSERT INTO installments (transaction_id, bill_id, seq, amount_cents, month, year, paid) VALUES (?, ?, ?, ?, ?, ?, 0)",
		in.TransactionID, in.BillID, in.Seq, in.Amount.Cents, in.Period.Month, in.Period.Year)
	if err != nil {
		return fmt.Errorf("insert installment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("installment insert id: %w", err)
	}
	in.ID = id
	return nil
}

func (t *storeTx) ListInstallmentsByGroup(ctx context.Context, groupID string) ([]core.Installment, error) {
	return listInstallments(ctx, t.tx,
		`SELECT `+installmentColumns+`
		 FROM installments i
		 JOIN transactions tr ON tr.id = i.transaction_id
		 WHERE tr.group_id = ?
		 ORDER BY i.seq`,
		groupID)
}

func (t *storeTx) DeleteInstallment(ctx context.Context, id int64) error {
	_, err := t.tx.ExecContext(ctx, "DELETE FROM installments WHERE id = ?", id)
	return err
}

// isUniqueViolation detects the partial unique index on open bills.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
