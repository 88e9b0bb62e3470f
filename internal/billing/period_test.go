package billing

import (
	"testing"

	"contas/internal/core"
)

func TestResolveInitialPeriod(t *testing.T) {
	tests := []struct {
		name     string
		purchase core.Date
		dueDay   int
		want     core.Period
	}{
		{
			name:     "before due day stays in month",
			purchase: core.NewDate(2026, 3, 10),
			dueDay:   15,
			want:     core.Period{Month: 3, Year: 2026},
		},
		{
			name:     "on due day stays in month",
			purchase: core.NewDate(2026, 3, 15),
			dueDay:   15,
			want:     core.Period{Month: 3, Year: 2026},
		},
		{
			name:     "after due day rolls to next month",
			purchase: core.NewDate(2026, 3, 20),
			dueDay:   15,
			want:     core.Period{Month: 4, Year: 2026},
		},
		{
			name:     "december rollover wraps year",
			purchase: core.NewDate(2026, 12, 28),
			dueDay:   15,
			want:     core.Period{Month: 1, Year: 2027},
		},
		{
			name:     "first of month with due day 1",
			purchase: core.NewDate(2026, 6, 1),
			dueDay:   1,
			want:     core.Period{Month: 6, Year: 2026},
		},
		{
			name:     "day 2 with due day 1 rolls",
			purchase: core.NewDate(2026, 6, 2),
			dueDay:   1,
			want:     core.Period{Month: 7, Year: 2026},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveInitialPeriod(tt.purchase, tt.dueDay); got != tt.want {
				t.Errorf("ResolveInitialPeriod(%v, %d) = %+v, want %+v",
					tt.purchase.Format("2006-01-02"), tt.dueDay, got, tt.want)
			}
		})
	}
}

func TestResolveInitialPeriodParcelSequence(t *testing.T) {
	// A purchase on March 20 with due day 15 starts in April; the second
	// parcel of a 2x split lands in May.
	first := ResolveInitialPeriod(core.NewDate(2026, 3, 20), 15)
	if first != (core.Period{Month: 4, Year: 2026}) {
		t.Fatalf("first period = %+v, want 4/2026", first)
	}
	second := first.Advance(1)
	if second != (core.Period{Month: 5, Year: 2026}) {
		t.Errorf("second period = %+v, want 5/2026", second)
	}
}
