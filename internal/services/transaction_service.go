package services

import (
	"context"
	"fmt"
	"log/slog"

	"contas/internal/cache"
	"contas/internal/core"
)

// TransactionStore is the persistence surface for plain (non-card)
// transactions.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, t *core.Transaction) error
	UpdateTransaction(ctx context.Context, t *core.Transaction) error
	DeleteTransaction(ctx context.Context, id int64) error
	GetTransaction(ctx context.Context, id int64) (*core.Transaction, error)
	ListRecentTransactions(ctx context.Context, userID int64, limit int) ([]core.Transaction, error)
}

const recentTransactionsLimit = 50

// TransactionService handles transactions paid by pix, debit, boleto or
// cash. Credit-card purchases go through BillingService so their
// installments and bills stay consistent.
type TransactionService struct {
	store  TransactionStore
	coord  *cache.Coordinator
	shared *cache.Redis
	recent *cache.LRUCache[[]core.Transaction]
}

func NewTransactionService(store TransactionStore, coord *cache.Coordinator, shared *cache.Redis, recent *cache.LRUCache[[]core.Transaction]) *TransactionService {
	s := &TransactionService{
		store:  store,
		coord:  coord,
		shared: shared,
		recent: recent,
	}
	coord.Register(recent)
	return s
}

func (s *TransactionService) Create(ctx context.Context, t *core.Transaction) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	if t.Source == core.SourceCreditCard {
		return 0, fmt.Errorf("%w: credit-card purchases must go through an installment plan",
			core.ErrInvalidSource)
	}
	if err := s.store.CreateTransaction(ctx, t); err != nil {
		return 0, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction created",
		"id", t.ID,
		"user_id", t.UserID,
		"kind", t.Kind,
		"source", t.Source,
		"amount_cents", t.Amount.Cents)

	s.coord.TransactionMutated(ctx, t.UserID, t.Date.Year())
	return t.ID, nil
}

// Update edits name, date, amount or source of an existing transaction.
// When the date moves across years both years' views go stale.
func (s *TransactionService) Update(ctx context.Context, t *core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	old, err := s.store.GetTransaction(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("get transaction %d: %w", t.ID, err)
	}
	if old.Source == core.SourceCreditCard {
		return fmt.Errorf("%w: installment plans are edited through the billing service",
			core.ErrInvalidSource)
	}
	t.UserID = old.UserID
	if err := s.store.UpdateTransaction(ctx, t); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}

	s.coord.TransactionMutated(ctx, t.UserID, t.Date.Year())
	if old.Date.Year() != t.Date.Year() {
		s.coord.TransactionMutated(ctx, t.UserID, old.Date.Year())
	}
	return nil
}

func (s *TransactionService) Delete(ctx context.Context, id int64) error {
	t, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("get transaction %d: %w", id, err)
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction deleted",
		"id", id, "user_id", t.UserID)

	s.coord.TransactionMutated(ctx, t.UserID, t.Date.Year())
	return nil
}

// Recent reads a user's latest transactions through the cache tiers.
func (s *TransactionService) Recent(ctx context.Context, userID int64) ([]core.Transaction, error) {
	key := cache.UserTransactionsKey(userID)
	if txns, ok := s.recent.Get(key); ok {
		return txns, nil
	}
	var txns []core.Transaction
	if hit, err := s.shared.GetJSON(ctx, key, &txns); err != nil {
		slog.WarnContext(ctx, "Shared cache read failed", "key", key, "error", err)
	} else if hit {
		s.recent.Set(key, txns)
		return txns, nil
	}

	txns, err := s.store.ListRecentTransactions(ctx, userID, recentTransactionsLimit)
	if err != nil {
		return nil, err
	}
	s.recent.Set(key, txns)
	if err := s.shared.SetJSON(ctx, key, txns); err != nil {
		slog.WarnContext(ctx, "Shared cache write failed", "key", key, "error", err)
	}
	return txns, nil
}
