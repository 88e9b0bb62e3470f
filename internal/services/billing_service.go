// Package services orchestrates the billing engine, the budget
// reconciler and the cache layers behind the external operations.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"contas/internal/billing"
	"contas/internal/cache"
	"contas/internal/core"
)

// BillingService exposes the installment-plan operations. It is the only
// path into the StatementLedger; handlers never touch bills directly.
type BillingService struct {
	planner *billing.Planner
	store   billing.Store
	coord   *cache.Coordinator
	shared  *cache.Redis
	bills   *cache.LRUCache[[]core.Bill]
	parcels *cache.LRUCache[[]core.Installment]
}

func NewBillingService(planner *billing.Planner, store billing.Store, coord *cache.Coordinator, shared *cache.Redis, bills *cache.LRUCache[[]core.Bill], parcels *cache.LRUCache[[]core.Installment]) *BillingService {
	s := &BillingService{
		planner: planner,
		store:   store,
		coord:   coord,
		shared:  shared,
		bills:   bills,
		parcels: parcels,
	}
	coord.Register(bills)
	coord.Register(parcels)
	return s
}

// CreateInstallmentPlan materializes a plan and returns its id (the
// installment-group id shared by all parcels).
func (s *BillingService) CreateInstallmentPlan(ctx context.Context, req billing.PlanRequest) (string, error) {
	txn, err := s.planner.CreatePlan(ctx, req)
	if err != nil {
		return "", err
	}
	s.coord.PlanMutated(ctx, txn.UserID, txn.CardID, txn.Date.Year(),
		s.touchedBills(ctx, txn.GroupID)...)
	return txn.GroupID, nil
}

// DeletePlan unwinds a plan; bills emptied by the unwind disappear
// unless already paid.
func (s *BillingService) DeletePlan(ctx context.Context, planID string) error {
	billIDs := s.touchedBills(ctx, planID)
	txn, err := s.planner.DeletePlan(ctx, planID)
	if err != nil {
		return err
	}
	s.coord.PlanMutated(ctx, txn.UserID, txn.CardID, txn.Date.Year(), billIDs...)
	return nil
}

// EditPlanAmount redistributes a new total over the plan's parcels.
func (s *BillingService) EditPlanAmount(ctx context.Context, planID string, newAmount core.Money) error {
	if err := newAmount.Validate(); err != nil {
		return err
	}
	before := s.touchedBills(ctx, planID)
	txn, err := s.planner.EditPlanAmount(ctx, planID, newAmount)
	if err != nil {
		return err
	}
	after := s.touchedBills(ctx, planID)
	s.coord.PlanMutated(ctx, txn.UserID, txn.CardID, txn.Date.Year(),
		append(before, after...)...)
	return nil
}

// MarkBillPaid closes a statement and returns the owning user so the
// caller can invalidate that user's views.
func (s *BillingService) MarkBillPaid(ctx context.Context, billID int64) (int64, error) {
	bill, err := s.store.GetBill(ctx, billID)
	if err != nil {
		return 0, fmt.Errorf("get bill %d: %w", billID, err)
	}
	userID, err := s.planner.MarkBillPaid(ctx, billID)
	if err != nil {
		return 0, err
	}
	s.coord.BillPaid(ctx, userID, bill.CardID, billID, bill.Period.Year)
	return userID, nil
}

// GetOpenBills reads a card's unpaid statements through the cache tiers.
func (s *BillingService) GetOpenBills(ctx context.Context, cardID int64) ([]core.Bill, error) {
	key := cache.CardKey(cardID)
	if bills, ok := s.bills.Get(key); ok {
		return bills, nil
	}
	var bills []core.Bill
	if hit, err := s.shared.GetJSON(ctx, key, &bills); err != nil {
		slog.WarnContext(ctx, "Shared cache read failed", "key", key, "error", err)
	} else if hit {
		s.bills.Set(key, bills)
		return bills, nil
	}

	bills, err := s.store.ListOpenBills(ctx, cardID)
	if err != nil {
		return nil, err
	}
	s.bills.Set(key, bills)
	if err := s.shared.SetJSON(ctx, key, bills); err != nil {
		slog.WarnContext(ctx, "Shared cache write failed", "key", key, "error", err)
	}
	return bills, nil
}

// GetInstallments reads a statement's parcels through the cache tiers.
func (s *BillingService) GetInstallments(ctx context.Context, billID int64) ([]core.Installment, error) {
	key := cache.BillInstallmentsKey(billID)
	if parcels, ok := s.parcels.Get(key); ok {
		return parcels, nil
	}
	var parcels []core.Installment
	if hit, err := s.shared.GetJSON(ctx, key, &parcels); err != nil {
		slog.WarnContext(ctx, "Shared cache read failed", "key", key, "error", err)
	} else if hit {
		s.parcels.Set(key, parcels)
		return parcels, nil
	}

	parcels, err := s.store.ListInstallmentsByBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	s.parcels.Set(key, parcels)
	if err := s.shared.SetJSON(ctx, key, parcels); err != nil {
		slog.WarnContext(ctx, "Shared cache write failed", "key", key, "error", err)
	}
	return parcels, nil
}

// touchedBills lists the bills currently holding the plan's parcels.
// Best-effort: invalidation falls back to the card key when this fails.
func (s *BillingService) touchedBills(ctx context.Context, planID string) []int64 {
	installments, err := s.store.ListInstallmentsByGroup(ctx, planID)
	if err != nil {
		slog.WarnContext(ctx, "Could not list plan bills for invalidation",
			"plan_id", planID, "error", err)
		return nil
	}
	seen := make(map[int64]struct{}, len(installments))
	var ids []int64
	for _, in := range installments {
		if _, ok := seen[in.BillID]; ok {
			continue
		}
		seen[in.BillID] = struct{}{}
		ids = append(ids, in.BillID)
	}
	return ids
}
