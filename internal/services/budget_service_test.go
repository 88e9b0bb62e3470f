package services

import (
	"context"
	"testing"
	"time"

	"contas/internal/cache"
	"contas/internal/core"
)

type fakeBudgetStore struct {
	entries []core.BudgetEntry
	upserts []core.BudgetEntry
}

func (s *fakeBudgetStore) UpsertBudgetEntry(ctx context.Context, e *core.BudgetEntry) error {
	s.upserts = append(s.upserts, *e)
	return nil
}

func (s *fakeBudgetStore) ListBudgetEntries(ctx context.Context, userID int64, year int) ([]core.BudgetEntry, error) {
	return s.entries, nil
}

func newTestBudgetService(store *fakeBudgetStore) *BudgetService {
	coord := cache.NewCoordinator(nil, nil)
	flows := cache.NewLRUCache[[]core.BudgetEntry](10, time.Minute)
	return NewBudgetService(store, coord, nil, flows)
}

func TestGetYearSummary(t *testing.T) {
	store := &fakeBudgetStore{
		entries: []core.BudgetEntry{
			{
				UserID: 1, Month: 1, Year: 2026,
				BudgetedIncome:  core.NewMoney(100000),
				BudgetedExpense: core.NewMoney(40000),
				RealizedIncome:  core.NewMoney(100000),
				RealizedExpense: core.NewMoney(42000),
				GapAmount:       core.NewMoney(-2000),
			},
			{
				UserID: 1, Month: 2, Year: 2026,
				BudgetedIncome:  core.NewMoney(100000),
				BudgetedExpense: core.NewMoney(40000),
				RealizedIncome:  core.NewMoney(105000),
				RealizedExpense: core.NewMoney(39000),
				GapAmount:       core.NewMoney(6000),
			},
		},
	}
	svc := newTestBudgetService(store)

	summary, err := svc.GetYearSummary(context.Background(), 1, 2026)
	if err != nil {
		t.Fatalf("GetYearSummary() error = %v", err)
	}
	if summary.Year != 2026 {
		t.Errorf("year = %d, want 2026", summary.Year)
	}
	if summary.BudgetedIncome.Cents != 200000 {
		t.Errorf("budgeted income = %d, want 200000", summary.BudgetedIncome.Cents)
	}
	if summary.RealizedExpense.Cents != 81000 {
		t.Errorf("realized expense = %d, want 81000", summary.RealizedExpense.Cents)
	}
	if summary.GapAmount.Cents != 4000 {
		t.Errorf("gap = %d, want 4000", summary.GapAmount.Cents)
	}
}

func TestGetYearSummaryEmptyYear(t *testing.T) {
	svc := newTestBudgetService(&fakeBudgetStore{})

	summary, err := svc.GetYearSummary(context.Background(), 1, 2030)
	if err != nil {
		t.Fatalf("GetYearSummary() error = %v", err)
	}
	if !summary.GapAmount.IsZero() || !summary.BudgetedIncome.IsZero() {
		t.Errorf("summary of empty year not zero: %+v", summary)
	}
}

func TestMonthsForYear(t *testing.T) {
	now := time.Date(2026, time.August, 28, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		year int
		want []int
	}{
		{"past year", 2025, nil},
		{"current year starts at current month", 2026, []int{8, 9, 10, 11, 12}},
		{"future year covers all months", 2027, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := monthsForYear(tt.year, now)
			if len(got) != len(tt.want) {
				t.Fatalf("monthsForYear(%d) = %v, want %v", tt.year, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("monthsForYear(%d)[%d] = %d, want %d", tt.year, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestMonthsForYearDecember(t *testing.T) {
	now := time.Date(2026, time.December, 31, 23, 59, 0, 0, time.UTC)
	got := monthsForYear(2026, now)
	if len(got) != 1 || got[0] != 12 {
		t.Errorf("monthsForYear in december = %v, want [12]", got)
	}
}
