package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"contas/internal/core"
)

// Ledger owns Bill rows: it opens or reuses the statement for a period and
// keeps running totals in step with installment attach/detach. It is only
// ever invoked by the Planner, never by API handlers.
type Ledger struct{}

// GetOrOpenBill returns the open bill for (card, period), creating one
// with total zero when none exists.
//
// A paid bill for the period is never reused: that statement is closed,
// so new charges open a fresh cycle. Two concurrent callers racing on the
// same period are resolved by the storage uniqueness constraint; the
// loser re-reads the bill the winner created.
func (Ledger) GetOrOpenBill(ctx context.Context, tx Tx, card *core.Card, period core.Period) (*core.Bill, error) {
	bill, err := tx.FindOpenBill(ctx, card.ID, period)
	if err == nil {
		return bill, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("find open bill: %w", err)
	}

	bill = &core.Bill{
		CardID: card.ID,
		Period: period,
		Total:  core.NewMoney(0),
		DueDay: card.DueDay,
	}
	if err := tx.InsertBill(ctx, bill); err != nil {
		if errors.Is(err, core.ErrDuplicateBill) {
			return tx.FindOpenBill(ctx, card.ID, period)
		}
		return nil, fmt.Errorf("insert bill: %w", err)
	}
	return bill, nil
}

// Attach adds an installment's amount to the bill total.
func (Ledger) Attach(ctx context.Context, tx Tx, billID int64, amount core.Money) error {
	if err := tx.IncrementBillTotal(ctx, billID, amount.Cents); err != nil {
		return fmt.Errorf("attach to bill %d: %w", billID, err)
	}
	return nil
}

// Detach subtracts an installment's amount from the bill total after the
// installment row is gone. A bill left with no installments is deleted,
// unless it was already paid: paid statements are history and stay.
// Detaching from a missing bill is a no-op.
func (Ledger) Detach(ctx context.Context, tx Tx, billID int64, amount core.Money) error {
	bill, err := tx.GetBill(ctx, billID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "Detach on missing bill, ignoring", "bill_id", billID)
			return nil
		}
		return fmt.Errorf("get bill %d: %w", billID, err)
	}

	if err := tx.IncrementBillTotal(ctx, billID, -amount.Cents); err != nil {
		return fmt.Errorf("detach from bill %d: %w", billID, err)
	}

	remaining, err := tx.CountBillInstallments(ctx, billID)
	if err != nil {
		return fmt.Errorf("count installments of bill %d: %w", billID, err)
	}
	if remaining == 0 && !bill.Paid {
		if err := tx.DeleteBill(ctx, billID); err != nil {
			return fmt.Errorf("delete empty bill %d: %w", billID, err)
		}
		slog.InfoContext(ctx, "Deleted empty unpaid bill",
			"bill_id", billID,
			"card_id", bill.CardID,
			"month", bill.Period.Month,
			"year", bill.Period.Year)
	}
	return nil
}

// MarkPaid sets the paid flag on the bill and every installment under it
// and returns the owning user. Idempotent: paying a paid bill changes
// nothing.
func (Ledger) MarkPaid(ctx context.Context, store Store, billID int64) (int64, error) {
	var userID int64
	err := store.InTx(ctx, func(tx Tx) error {
		bill, err := tx.GetBill(ctx, billID)
		if err != nil {
			return fmt.Errorf("get bill %d: %w", billID, err)
		}
		card, err := tx.GetCard(ctx, bill.CardID)
		if err != nil {
			return fmt.Errorf("get card %d: %w", bill.CardID, err)
		}
		userID = card.UserID

		if bill.Paid {
			return nil
		}
		if err := tx.MarkBillPaid(ctx, billID); err != nil {
			return fmt.Errorf("mark bill paid: %w", err)
		}
		if err := tx.MarkBillInstallmentsPaid(ctx, billID); err != nil {
			return fmt.Errorf("mark installments paid: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return userID, nil
}
