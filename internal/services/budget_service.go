package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"contas/internal/cache"
	"contas/internal/core"
)

// BudgetStore is the persistence surface for budget definitions and flow
// reads.
type BudgetStore interface {
	UpsertBudgetEntry(ctx context.Context, e *core.BudgetEntry) error
	ListBudgetEntries(ctx context.Context, userID int64, year int) ([]core.BudgetEntry, error)
}

// YearlyBudget is a user's planned income and expense, applied to the
// months of a year that still lie ahead.
type YearlyBudget struct {
	UserID          int64
	Year            int
	BudgetedIncome  core.Money
	BudgetedExpense core.Money
}

func (b YearlyBudget) Validate() error {
	if b.Year < 1 {
		return fmt.Errorf("%w: year %d", core.ErrInvalidMonth, b.Year)
	}
	if b.BudgetedIncome.Cents < 0 || b.BudgetedExpense.Cents < 0 {
		return core.ErrInvalidAmount
	}
	return nil
}

// BudgetService maintains budget definitions and serves the per-month
// flow view.
type BudgetService struct {
	store  BudgetStore
	coord  *cache.Coordinator
	shared *cache.Redis
	flows  *cache.LRUCache[[]core.BudgetEntry]
	now    func() time.Time
}

func NewBudgetService(store BudgetStore, coord *cache.Coordinator, shared *cache.Redis, flows *cache.LRUCache[[]core.BudgetEntry]) *BudgetService {
	s := &BudgetService{
		store:  store,
		coord:  coord,
		shared: shared,
		flows:  flows,
		now:    time.Now,
	}
	coord.Register(flows)
	return s
}

// SetYearlyBudget writes the budgeted figures for every month of the
// year not yet past: the current month onward for the current year, all
// twelve for a future year. Past months keep whatever was budgeted when
// they were live. Realized figures of existing entries are preserved and
// refreshed by the reconcile that follows.
func (s *BudgetService) SetYearlyBudget(ctx context.Context, b YearlyBudget) error {
	if err := b.Validate(); err != nil {
		return err
	}

	months := monthsForYear(b.Year, s.now())
	if len(months) == 0 {
		return fmt.Errorf("%w: year %d is over", core.ErrInvalidMonth, b.Year)
	}
	for _, month := range months {
		entry := &core.BudgetEntry{
			UserID:          b.UserID,
			Month:           month,
			Year:            b.Year,
			BudgetedIncome:  b.BudgetedIncome,
			BudgetedExpense: b.BudgetedExpense,
		}
		if err := s.store.UpsertBudgetEntry(ctx, entry); err != nil {
			return fmt.Errorf("upsert budget %d/%d: %w", month, b.Year, err)
		}
	}

	slog.InfoContext(ctx, "Yearly budget set",
		"user_id", b.UserID,
		"year", b.Year,
		"months", len(months))

	s.coord.BudgetMutated(ctx, b.UserID, b.Year)
	return nil
}

// GetUserFlow returns the user's budget entries for a year, months in
// order, through the cache tiers.
func (s *BudgetService) GetUserFlow(ctx context.Context, userID int64, year int) ([]core.BudgetEntry, error) {
	key := cache.UserFlowKey(userID, year)
	if entries, ok := s.flows.Get(key); ok {
		return entries, nil
	}
	var entries []core.BudgetEntry
	if hit, err := s.shared.GetJSON(ctx, key, &entries); err != nil {
		slog.WarnContext(ctx, "Shared cache read failed", "key", key, "error", err)
	} else if hit {
		s.flows.Set(key, entries)
		return entries, nil
	}

	entries, err := s.store.ListBudgetEntries(ctx, userID, year)
	if err != nil {
		return nil, err
	}
	s.flows.Set(key, entries)
	if err := s.shared.SetJSON(ctx, key, entries); err != nil {
		slog.WarnContext(ctx, "Shared cache write failed", "key", key, "error", err)
	}
	return entries, nil
}

// YearSummary collapses the monthly flow into one set of yearly figures.
type YearSummary struct {
	Year            int
	BudgetedIncome  core.Money
	BudgetedExpense core.Money
	RealizedIncome  core.Money
	RealizedExpense core.Money
	GapAmount       core.Money
}

// GetYearSummary returns the user's yearly totals, read through the
// shared tier and rebuilt from the flow view on a miss.
func (s *BudgetService) GetYearSummary(ctx context.Context, userID int64, year int) (*YearSummary, error) {
	key := cache.YearSummaryKey(userID, year)
	var summary YearSummary
	if hit, err := s.shared.GetJSON(ctx, key, &summary); err != nil {
		slog.WarnContext(ctx, "Shared cache read failed", "key", key, "error", err)
	} else if hit {
		return &summary, nil
	}

	entries, err := s.GetUserFlow(ctx, userID, year)
	if err != nil {
		return nil, err
	}
	summary = YearSummary{Year: year}
	for _, e := range entries {
		summary.BudgetedIncome = summary.BudgetedIncome.Add(e.BudgetedIncome)
		summary.BudgetedExpense = summary.BudgetedExpense.Add(e.BudgetedExpense)
		summary.RealizedIncome = summary.RealizedIncome.Add(e.RealizedIncome)
		summary.RealizedExpense = summary.RealizedExpense.Add(e.RealizedExpense)
		summary.GapAmount = summary.GapAmount.Add(e.GapAmount)
	}
	if err := s.shared.SetJSON(ctx, key, summary); err != nil {
		slog.WarnContext(ctx, "Shared cache write failed", "key", key, "error", err)
	}
	return &summary, nil
}

// monthsForYear lists the months of year that budgeting may still touch,
// relative to now: none for a past year, the current month onward for
// the current year, 1..12 for a future one.
func monthsForYear(year int, now time.Time) []int {
	if year < now.Year() {
		return nil
	}
	start := 1
	if year == now.Year() {
		start = int(now.Month())
	}
	months := make([]int, 0, 12-start+1)
	for m := start; m <= 12; m++ {
		months = append(months, m)
	}
	return months
}
