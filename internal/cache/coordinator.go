package cache

import (
	"context"
	"log/slog"
)

// ReconcileQueue is the fire-and-forget recompute channel: the
// coordinator publishes one message per affected (user, year) and the
// worker does the rest. Publish failures are the queue's problem, never
// the mutation's.
type ReconcileQueue interface {
	PublishReconcile(ctx context.Context, userID int64, year int) error
}

// Coordinator keeps cached views consistent with mutations. Every
// mutation site calls exactly one of the *Mutated methods before
// returning to the caller:
//
//  1. synchronous invalidation of the views whose staleness would be
//     immediately user-visible, in every registered local tier and in
//     the shared tier;
//  2. asynchronous recompute via the reconcile queue.
//
// All cache and queue errors are logged and swallowed; a committed
// mutation is never rolled back by this layer.
type Coordinator struct {
	locals []Invalidator
	shared *Redis
	queue  ReconcileQueue
}

func NewCoordinator(shared *Redis, queue ReconcileQueue) *Coordinator {
	return &Coordinator{shared: shared, queue: queue}
}

// Register adds an in-process tier to be invalidated on mutations.
func (c *Coordinator) Register(inv Invalidator) {
	c.locals = append(c.locals, inv)
}

// invalidate drops keys from every tier.
func (c *Coordinator) invalidate(ctx context.Context, keys ...string) {
	for _, key := range keys {
		for _, local := range c.locals {
			local.Delete(key)
		}
	}
	if err := c.shared.Del(ctx, keys...); err != nil {
		slog.WarnContext(ctx, "Shared cache invalidation failed",
			"keys", keys, "error", err)
	}
}

// enqueueReconcile triggers the asynchronous recompute for (user, year).
func (c *Coordinator) enqueueReconcile(ctx context.Context, userID int64, year int) {
	if c.queue == nil {
		slog.WarnContext(ctx, "Reconcile queue not configured, skipping recompute",
			"user_id", userID, "year", year)
		return
	}
	if err := c.queue.PublishReconcile(ctx, userID, year); err != nil {
		slog.ErrorContext(ctx, "Failed to enqueue reconcile",
			"user_id", userID, "year", year, "error", err)
	}
}

// TransactionMutated handles a created/edited/deleted plain transaction.
func (c *Coordinator) TransactionMutated(ctx context.Context, userID int64, year int) {
	c.invalidate(ctx,
		UserFlowKey(userID, year),
		YearSummaryKey(userID, year),
		UserTransactionsKey(userID),
	)
	c.enqueueReconcile(ctx, userID, year)
}

// PlanMutated handles a created/edited/deleted installment plan: the
// user views for the purchase year plus the card's statement views.
// billIDs are the bills the plan touched.
func (c *Coordinator) PlanMutated(ctx context.Context, userID, cardID int64, year int, billIDs ...int64) {
	keys := []string{
		UserFlowKey(userID, year),
		YearSummaryKey(userID, year),
		UserTransactionsKey(userID),
		CardKey(cardID),
	}
	for _, billID := range billIDs {
		keys = append(keys, BillInstallmentsKey(billID))
	}
	c.invalidate(ctx, keys...)
	c.enqueueReconcile(ctx, userID, year)
}

// BillPaid handles a statement being marked paid.
func (c *Coordinator) BillPaid(ctx context.Context, userID, cardID, billID int64, year int) {
	c.invalidate(ctx,
		CardKey(cardID),
		BillInstallmentsKey(billID),
		UserFlowKey(userID, year),
		YearSummaryKey(userID, year),
	)
	c.enqueueReconcile(ctx, userID, year)
}

// BudgetMutated handles edits to budgeted figures.
func (c *Coordinator) BudgetMutated(ctx context.Context, userID int64, year int) {
	c.invalidate(ctx,
		UserFlowKey(userID, year),
		YearSummaryKey(userID, year),
	)
	c.enqueueReconcile(ctx, userID, year)
}
