// Package worker runs budget reconciliation off the request path,
// driven by queued messages with a periodic sweep as backstop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"

	"contas/internal/amqp"
	"contas/internal/budget"
	"contas/internal/cache"
	"contas/internal/services"
)

// SweepStore lists the users the backup sweep must reconcile.
type SweepStore interface {
	ListBudgetUsers(ctx context.Context, year int) ([]int64, error)
}

// ReconcileWorker consumes reconcile messages and recomputes budget
// figures. Runs are serialized per (user, year) with a distributed lock
// so concurrent replicas do not chew the same work.
type ReconcileWorker struct {
	reconciler *budget.Reconciler
	budgets    *services.BudgetService
	store      SweepStore
	locker     *redislock.Client
	timeout    time.Duration
	lockTTL    time.Duration
}

func NewReconcileWorker(reconciler *budget.Reconciler, budgets *services.BudgetService, store SweepStore, locker *redislock.Client, timeout time.Duration) *ReconcileWorker {
	return &ReconcileWorker{
		reconciler: reconciler,
		budgets:    budgets,
		store:      store,
		locker:     locker,
		timeout:    timeout,
		lockTTL:    2 * timeout,
	}
}

// HandleReconcileMessage processes one queued reconcile request. The
// run detaches from the delivery context: a consumer shutting down mid
// reconcile must not leave half-updated months behind.
func (w *ReconcileWorker) HandleReconcileMessage(ctx context.Context, msg *amqp.ReconcileMessage) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()

	slog.InfoContext(ctx, "Processing reconcile message",
		"user_id", msg.UserID,
		"year", msg.Year,
		"enqueued_at", msg.Timestamp)

	return w.reconcile(ctx, msg.UserID, msg.Year)
}

func (w *ReconcileWorker) reconcile(ctx context.Context, userID int64, year int) error {
	if w.locker != nil {
		lock, err := w.locker.Obtain(ctx, cache.ReconcileLockKey(userID, year), w.lockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			// Another replica holds it; its run covers this message too,
			// reconciliation is idempotent over the whole year.
			slog.DebugContext(ctx, "Reconcile already running elsewhere",
				"user_id", userID, "year", year)
			return nil
		}
		if err != nil {
			return fmt.Errorf("obtain reconcile lock: %w", err)
		}
		defer func() {
			if err := lock.Release(ctx); err != nil {
				slog.WarnContext(ctx, "Failed to release reconcile lock",
					"user_id", userID, "year", year, "error", err)
			}
		}()
	}

	if err := w.reconciler.Reconcile(ctx, userID, year); err != nil {
		return fmt.Errorf("reconcile user %d year %d: %w", userID, year, err)
	}

	// Warm the flow view back up; readers hitting the empty key would
	// rebuild it anyway.
	if _, err := w.budgets.GetUserFlow(ctx, userID, year); err != nil {
		slog.WarnContext(ctx, "Failed to repopulate user flow after reconcile",
			"user_id", userID, "year", year, "error", err)
	}
	return nil
}

// SweepPending reconciles every user holding budget entries for the
// current year. Backup path for lost or dropped messages.
func (w *ReconcileWorker) SweepPending(ctx context.Context, now time.Time) error {
	year := now.Year()
	users, err := w.store.ListBudgetUsers(ctx, year)
	if err != nil {
		return fmt.Errorf("list budget users: %w", err)
	}
	if len(users) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Sweeping budget users", "count", len(users), "year", year)

	for _, userID := range users {
		if err := w.reconcile(ctx, userID, year); err != nil {
			slog.ErrorContext(ctx, "Sweep reconcile failed",
				"user_id", userID, "year", year, "error", err)
		}
	}
	return nil
}
