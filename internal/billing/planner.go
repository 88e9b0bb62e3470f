package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"contas/internal/core"
)

// Planner materializes installment plans: one purchase becomes a
// transaction plus 1..N installments attached to the right statements.
// All writes of one plan happen inside a single storage transaction, so
// a partial plan is never observable.
type Planner struct {
	store  Store
	ledger Ledger
}

func NewPlanner(store Store) *Planner {
	return &Planner{store: store}
}

// PlanRequest describes one credit-card purchase to be split.
type PlanRequest struct {
	UserID       int64
	CardID       int64
	Name         string
	SourceDetail string
	Amount       core.Money
	PurchaseDate core.Date
	Parcels      int
	RecurringID  int64
}

func (r PlanRequest) validate() error {
	if len(strings.TrimSpace(r.Name)) == 0 {
		return core.ErrEmptyName
	}
	if err := r.PurchaseDate.Validate(); err != nil {
		return err
	}
	// Amount and parcel count are checked by Allocate.
	return nil
}

// CreatePlan splits the purchase into parcels, resolves each parcel's
// statement period and persists transaction, installments and bill totals
// atomically. Returns the created transaction; its GroupID is the plan id.
func (p *Planner) CreatePlan(ctx context.Context, req PlanRequest) (*core.Transaction, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	amounts, err := Allocate(req.Amount, req.Parcels)
	if err != nil {
		return nil, err
	}
	card, err := p.store.GetCard(ctx, req.CardID)
	if err != nil {
		return nil, fmt.Errorf("get card %d: %w", req.CardID, err)
	}

	first := ResolveInitialPeriod(req.PurchaseDate, card.DueDay)
	txn := &core.Transaction{
		UserID:       req.UserID,
		Name:         req.Name,
		Kind:         core.Expense,
		Source:       core.SourceCreditCard,
		SourceDetail: req.SourceDetail,
		Date:         req.PurchaseDate,
		Amount:       req.Amount,
		GroupID:      uuid.NewString(),
		CardID:       req.CardID,
		RecurringID:  req.RecurringID,
	}

	err = p.store.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertTransaction(ctx, txn); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return p.materialize(ctx, tx, card, txn, first, amounts)
	})
	if err != nil {
		return nil, fmt.Errorf("create installment plan: %w", err)
	}

	slog.InfoContext(ctx, "Installment plan created",
		"plan_id", txn.GroupID,
		"user_id", txn.UserID,
		"card_id", card.ID,
		"amount_cents", txn.Amount.Cents,
		"parcels", req.Parcels,
		"first_month", first.Month,
		"first_year", first.Year)

	return txn, nil
}

// materialize creates the installment rows for txn and attaches their
// amounts to the corresponding bills. Must run inside the plan's
// transaction.
func (p *Planner) materialize(ctx context.Context, tx Tx, card *core.Card, txn *core.Transaction, first core.Period, amounts []core.Money) error {
	for k, amount := range amounts {
		period := first.Advance(k)
		bill, err := p.ledger.GetOrOpenBill(ctx, tx, card, period)
		if err != nil {
			return err
		}
		inst := &core.Installment{
			TransactionID: txn.ID,
			BillID:        bill.ID,
			Seq:           k + 1,
			Amount:        amount,
			Period:        period,
		}
		if err := tx.InsertInstallment(ctx, inst); err != nil {
			return fmt.Errorf("insert installment %d/%d: %w", k+1, len(amounts), err)
		}
		if err := p.ledger.Attach(ctx, tx, bill.ID, amount); err != nil {
			return err
		}
	}
	return nil
}

// unwind detaches and deletes every installment of the plan. Must run
// inside the caller's transaction.
func (p *Planner) unwind(ctx context.Context, tx Tx, groupID string) error {
	installments, err := tx.ListInstallmentsByGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("list plan installments: %w", err)
	}
	for _, inst := range installments {
		if err := tx.DeleteInstallment(ctx, inst.ID); err != nil {
			return fmt.Errorf("delete installment %d: %w", inst.ID, err)
		}
		if err := p.ledger.Detach(ctx, tx, inst.BillID, inst.Amount); err != nil {
			return err
		}
	}
	return nil
}

// DeletePlan unwinds every installment of the plan and deletes its
// transaction, returning the transaction for cache invalidation.
// Bills emptied by the unwind are removed unless paid.
func (p *Planner) DeletePlan(ctx context.Context, planID string) (*core.Transaction, error) {
	txn, err := p.store.GetTransactionByGroup(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("get plan %s: %w", planID, err)
	}

	err = p.store.InTx(ctx, func(tx Tx) error {
		if err := p.unwind(ctx, tx, planID); err != nil {
			return err
		}
		if err := tx.DeleteTransaction(ctx, txn.ID); err != nil {
			return fmt.Errorf("delete transaction %d: %w", txn.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete installment plan: %w", err)
	}

	slog.InfoContext(ctx, "Installment plan deleted",
		"plan_id", planID,
		"user_id", txn.UserID,
		"card_id", txn.CardID)

	return txn, nil
}

// EditPlanAmount rewrites the plan with a new total: old installments are
// detached and deleted, then a fresh set is materialized over the same
// card, date and parcel count. Never scales amounts in place; rebuilding
// keeps the cent-exactness invariant trivially true.
func (p *Planner) EditPlanAmount(ctx context.Context, planID string, newAmount core.Money) (*core.Transaction, error) {
	txn, err := p.store.GetTransactionByGroup(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("get plan %s: %w", planID, err)
	}
	card, err := p.store.GetCard(ctx, txn.CardID)
	if err != nil {
		return nil, fmt.Errorf("get card %d: %w", txn.CardID, err)
	}

	err = p.store.InTx(ctx, func(tx Tx) error {
		old, err := tx.ListInstallmentsByGroup(ctx, planID)
		if err != nil {
			return fmt.Errorf("list plan installments: %w", err)
		}
		amounts, err := Allocate(newAmount, len(old))
		if err != nil {
			return err
		}
		if err := p.unwind(ctx, tx, planID); err != nil {
			return err
		}
		if err := tx.UpdateTransactionAmount(ctx, txn.ID, newAmount.Cents); err != nil {
			return fmt.Errorf("update transaction amount: %w", err)
		}
		first := ResolveInitialPeriod(txn.Date, card.DueDay)
		return p.materialize(ctx, tx, card, txn, first, amounts)
	})
	if err != nil {
		return nil, fmt.Errorf("edit installment plan: %w", err)
	}
	txn.Amount = newAmount

	slog.InfoContext(ctx, "Installment plan amount edited",
		"plan_id", planID,
		"user_id", txn.UserID,
		"new_amount_cents", newAmount.Cents)

	return txn, nil
}

// MarkBillPaid closes a statement and returns the owning user so the
// caller can invalidate that user's cached views.
func (p *Planner) MarkBillPaid(ctx context.Context, billID int64) (int64, error) {
	return p.ledger.MarkPaid(ctx, p.store, billID)
}

// OpenBills lists the unpaid statements of a card.
func (p *Planner) OpenBills(ctx context.Context, cardID int64) ([]core.Bill, error) {
	return p.store.ListOpenBills(ctx, cardID)
}

// Installments lists the parcels attached to one statement.
func (p *Planner) Installments(ctx context.Context, billID int64) ([]core.Installment, error) {
	return p.store.ListInstallmentsByBill(ctx, billID)
}
