package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"contas/internal/billing"
	"contas/internal/core"
)

// RecurringStore is the persistence surface for recurring cost
// templates.
type RecurringStore interface {
	CreateRecurringCost(ctx context.Context, rc *core.RecurringCost) error
	GetRecurringCost(ctx context.Context, id int64) (*core.RecurringCost, error)
	ListActiveRecurringCosts(ctx context.Context, now time.Time) ([]core.RecurringCost, error)
	UpdateRecurringLastGenerated(ctx context.Context, id int64, d core.Date) error
	CancelRecurringCost(ctx context.Context, id int64) error
	ListFutureRecurringTransactions(ctx context.Context, recurringID int64, after core.Date) ([]core.Transaction, error)
}

// RecurringProcessor turns recurring cost templates into transactions,
// once per month each. Card-backed templates become single-parcel
// installment plans so their amounts land on the right statement.
type RecurringProcessor struct {
	store   RecurringStore
	txns    *TransactionService
	billing *BillingService
}

func NewRecurringProcessor(store RecurringStore, txns *TransactionService, billing *BillingService) *RecurringProcessor {
	return &RecurringProcessor{
		store:   store,
		txns:    txns,
		billing: billing,
	}
}

func (p *RecurringProcessor) CreateTemplate(ctx context.Context, rc *core.RecurringCost) (int64, error) {
	if err := rc.Validate(); err != nil {
		return 0, err
	}
	if err := p.store.CreateRecurringCost(ctx, rc); err != nil {
		return 0, fmt.Errorf("create recurring cost: %w", err)
	}
	slog.InfoContext(ctx, "Recurring cost created",
		"id", rc.ID,
		"user_id", rc.UserID,
		"name", rc.Name,
		"day_of_month", rc.DayOfMonth)
	return rc.ID, nil
}

// ProcessDue generates this month's transaction for every template that
// is due. A failure on one template is logged and skipped; the rest
// still run.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	templates, err := p.store.ListActiveRecurringCosts(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list active recurring costs: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring costs",
		"total_active", len(templates),
		"processing_date", now.Format("2006-01-02"))

	processed := 0
	for _, rc := range templates {
		if !isDue(rc, now) {
			continue
		}
		if err := p.generate(ctx, rc, now); err != nil {
			slog.ErrorContext(ctx, "Failed to generate from recurring template",
				"recurring_id", rc.ID,
				"name", rc.Name,
				"error", err)
			continue
		}
		if err := p.store.UpdateRecurringLastGenerated(ctx, rc.ID, core.Date{Time: now}); err != nil {
			// The transaction exists; a stale marker means the next run
			// would generate a duplicate.
			slog.ErrorContext(ctx, "Failed to update last generated date",
				"recurring_id", rc.ID,
				"error", err)
		}
		processed++
	}

	slog.InfoContext(ctx, "Recurring cost processing complete",
		"processed", processed,
		"total_checked", len(templates))
	return processed, nil
}

// generate creates the concrete transaction for one template: a
// single-parcel plan when the template charges a card, a plain
// transaction otherwise.
func (p *RecurringProcessor) generate(ctx context.Context, rc core.RecurringCost, now time.Time) error {
	date := occurrenceDate(rc, now)

	if rc.Source == core.SourceCreditCard {
		_, err := p.billing.CreateInstallmentPlan(ctx, billing.PlanRequest{
			UserID:       rc.UserID,
			CardID:       rc.CardID,
			Name:         rc.Name,
			Amount:       rc.Amount,
			PurchaseDate: date,
			Parcels:      1,
			RecurringID:  rc.ID,
		})
		return err
	}

	t := &core.Transaction{
		UserID:      rc.UserID,
		Name:        rc.Name,
		Kind:        core.Expense,
		Source:      rc.Source,
		Date:        date,
		Amount:      rc.Amount,
		RecurringID: rc.ID,
	}
	_, err := p.txns.Create(ctx, t)
	return err
}

// Cancel stops a template and removes its future occurrences. Past
// occurrences stay: they were real charges when they happened.
func (p *RecurringProcessor) Cancel(ctx context.Context, id int64, now time.Time) error {
	if err := p.store.CancelRecurringCost(ctx, id); err != nil {
		return fmt.Errorf("cancel recurring cost %d: %w", id, err)
	}

	future, err := p.store.ListFutureRecurringTransactions(ctx, id, core.Date{Time: now})
	if err != nil {
		return fmt.Errorf("list future occurrences: %w", err)
	}

	plans := make(map[string]struct{})
	for _, t := range future {
		if t.GroupID != "" {
			if _, done := plans[t.GroupID]; done {
				continue
			}
			plans[t.GroupID] = struct{}{}
			if err := p.billing.DeletePlan(ctx, t.GroupID); err != nil {
				return fmt.Errorf("delete future plan %s: %w", t.GroupID, err)
			}
			continue
		}
		if err := p.txns.Delete(ctx, t.ID); err != nil {
			return fmt.Errorf("delete future transaction %d: %w", t.ID, err)
		}
	}

	slog.InfoContext(ctx, "Recurring cost cancelled",
		"recurring_id", id,
		"future_removed", len(future))
	return nil
}

// isDue reports whether the template should generate for now's month:
// on or after the start date, not past the end month, not already
// generated this month, and the target day reached. A target day past
// the month's end clamps to the last day of the month.
func isDue(rc core.RecurringCost, now time.Time) bool {
	if now.Before(rc.StartDate.Time) {
		return false
	}
	if !rc.EndDate.IsZero() && now.After(rc.EndDate.Time) && !sameMonth(rc.EndDate.Time, now) {
		return false
	}
	if !rc.LastGenerated.IsZero() && sameMonth(rc.LastGenerated.Time, now) {
		return false
	}

	target := rc.DayOfMonth
	lastDay := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if target > lastDay {
		target = lastDay
	}
	return now.Day() >= target
}

// occurrenceDate is the template's charge date within now's month, with
// the day clamped to the month's end and never before the start date.
func occurrenceDate(rc core.RecurringCost, now time.Time) core.Date {
	day := rc.DayOfMonth
	lastDay := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > lastDay {
		day = lastDay
	}
	d := core.NewDate(now.Year(), int(now.Month()), day)
	if d.Time.Before(rc.StartDate.Time) {
		return rc.StartDate
	}
	return d
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
