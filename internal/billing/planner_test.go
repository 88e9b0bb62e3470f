package billing

import (
	"context"
	"errors"
	"testing"

	"contas/internal/core"
)

func testCard(store *memStore, dueDay int) core.Card {
	return store.addCard(core.Card{UserID: 1, Name: "card", DueDay: dueDay})
}

func createPlan(t *testing.T, p *Planner, req PlanRequest) *core.Transaction {
	t.Helper()
	txn, err := p.CreatePlan(context.Background(), req)
	if err != nil {
		t.Fatalf("CreatePlan() error = %v", err)
	}
	return txn
}

func TestCreatePlanMaterializesParcels(t *testing.T) {
	store := newMemStore()
	card := testCard(store, 15)
	p := NewPlanner(store)

	txn := createPlan(t, p, PlanRequest{
		UserID:       1,
		CardID:       card.ID,
		Name:         "notebook",
		Amount:       core.NewMoney(10000),
		PurchaseDate: core.NewDate(2026, 3, 20),
		Parcels:      3,
	})

	if txn.GroupID == "" {
		t.Fatal("plan transaction has no group id")
	}
	if txn.Source != core.SourceCreditCard {
		t.Errorf("Source = %s, want credit-card", txn.Source)
	}

	insts, err := store.ListInstallmentsByGroup(context.Background(), txn.GroupID)
	if err != nil {
		t.Fatalf("ListInstallmentsByGroup() error = %v", err)
	}
	if len(insts) != 3 {
		t.Fatalf("got %d installments, want 3", len(insts))
	}

	// Purchased after the due day, so the first parcel lands in April.
	wantPeriods := []core.Period{
		{Month: 4, Year: 2026},
		{Month: 5, Year: 2026},
		{Month: 6, Year: 2026},
	}
	wantCents := []int64{3333, 3333, 3334}
	for i, in := range insts {
		if in.Period != wantPeriods[i] {
			t.Errorf("installment %d period = %+v, want %+v", i+1, in.Period, wantPeriods[i])
		}
		if in.Amount.Cents != wantCents[i] {
			t.Errorf("installment %d = %d cents, want %d", i+1, in.Amount.Cents, wantCents[i])
		}
		if in.Seq != i+1 {
			t.Errorf("installment %d seq = %d", i+1, in.Seq)
		}
	}

	assertBillTotalsMatch(t, store)
}

func TestCreatePlanReusesOpenBill(t *testing.T) {
	store := newMemStore()
	card := testCard(store, 15)
	p := NewPlanner(store)

	createPlan(t, p, PlanRequest{
		UserID: 1, CardID: card.ID, Name: "a",
		Amount: core.NewMoney(3000), PurchaseDate: core.NewDate(2026, 3, 10), Parcels: 1,
	})
	createPlan(t, p, PlanRequest{
		UserID: 1, CardID: card.ID, Name: "b",
		Amount: core.NewMoney(2000), PurchaseDate: core.NewDate(2026, 3, 12), Parcels: 1,
	})

	bills, _ := store.ListOpenBills(context.Background(), card.ID)
	if len(bills) != 1 {
		t.Fatalf("got %d bills, want 1 shared bill", len(bills))
	}
	if bills[0].Total.Cents != 5000 {
		t.Errorf("bill total = %d, want 5000", bills[0].Total.Cents)
	}
}

func TestCreatePlanOpensFreshBillWhenPaid(t *testing.T) {
	store := newMemStore()
	card := testCard(store, 15)
	p := NewPlanner(store)

	first := createPlan(t, p, PlanRequest{
		UserID: 1, CardID: card.ID, Name: "a",
		Amount: core.NewMoney(3000), PurchaseDate: core.NewDate(2026, 3, 10), Parcels: 1,
	})
	insts, _ := store.ListInstallmentsByGroup(context.Background(), first.GroupID)
	if _, err := p.MarkBillPaid(context.Background(), insts[0].BillID); err != nil {
		t.Fatalf("MarkBillPaid() error = %v", err)
	}

	// Same period again: the paid statement is closed, a new bill opens.
	createPlan(t, p, PlanRequest{
		UserID: 1, CardID: card.ID, Name: "b",
		Amount: core.NewMoney(2000), PurchaseDate: core.NewDate(2026, 3, 12), Parcels: 1,
	})

	if len(store.bills) != 2 {
		t.Fatalf("got %d bills, want paid bill plus fresh one", len(store.bills))
	}
	open, _ := store.ListOpenBills(context.Background(), card.ID)
	if len(open) != 1 || open[0].Total.Cents != 2000 {
		t.Errorf("open bills = %+v, want one with 2000 cents", open)
	}
}

func TestDeletePlanRemovesEmptyBills(t *testing.T) {
	store := newMemStore()
	card := testCard(store, 15)
	p := NewPlanner(store)

	txn := createPlan(t, p, PlanRequest{
		UserID: 1, CardID: card.ID, Name: "tv",
		Amount: core.NewMoney(120000), PurchaseDate: core.NewDate(2026, 1, 5), Parcels: 12,
	})

	if _, err := p.DeletePlan(context.Background(), txn.GroupID); err != nil {
		t.Fatalf("DeletePlan() error = %v", err)
	}

	if len(store.bills) != 0 {
		t.Errorf("%d bills left after delete, want 0", len(store.bills))
	}
	if len(store.insts) != 0 {
		t.Errorf("%d installments left after delete, want 0", len(store.insts))
	}
	if len(store.txns) != 0 {
		t.Errorf("%d transactions left after delete, want 0", len(store.txns))
	}
}

func TestDeletePlanKeepsPaidBill(t *testing.T) {
	store := newMemStore()
	card := testCard(store, 15)
	p := NewPlanner(store)

	txn := createPlan(t, p, PlanRequest{
		UserID: 1, CardID: card.ID, Name: "phone",
		Amount: core.NewMoney(6000), PurchaseDate: core.NewDate(2026, 1, 5), Parcels: 2,
	})
	insts, _ := store.ListInstallmentsByGroup(context.Background(), txn.GroupID)
	paidBillID := insts[0].BillID
	if _, err := p.MarkBillPaid(context.Background(), paidBillID); err != nil {
		t.Fatalf("MarkBillPaid() error = %v", err)
	}

	if _, err := p.DeletePlan(context.Background(), txn.GroupID); err != nil {
		t.Fatalf("DeletePlan() error = %v", err)
	}

	// The paid bill survives, empty, at total zero; the unpaid one is gone.
	bill, err := store.GetBill(context.Background(), paidBillID)
	if err != nil {
		t.Fatalf("paid bill was deleted: %v", err)
	}
	if !bill.Paid {
		t.Error("bill lost its paid flag")
	}
	if bill.Total.Cents != 0 {
		t.Errorf("paid bill total = %d, want 0 after detach", bill.Total.Cents)
	}
	if len(store.bills) != 1 {
		t.Errorf("%d bills left, want only the paid one", len(store.bills))
	}
}

func TestEditPlanAmountRedistributes(t *testing.T) {
	store := newMemStore()
	card := testCard(store, 15)
	p := NewPlanner(store)

	txn := createPlan(t, p, PlanRequest{
		UserID: 1, CardID: card.ID, Name: "sofa",
		Amount: core.NewMoney(9000), PurchaseDate: core.NewDate(2026, 2, 1), Parcels: 3,
	})

	if _, err := p.EditPlanAmount(context.Background(), txn.GroupID, core.NewMoney(10000)); err != nil {
		t.Fatalf("EditPlanAmount() error = %v", err)
	}

	got, err := store.GetTransactionByGroup(context.Background(), txn.GroupID)
	if err != nil {
		t.Fatalf("GetTransactionByGroup() error = %v", err)
	}
	if got.Amount.Cents != 10000 {
		t.Errorf("transaction amount = %d, want 10000", got.Amount.Cents)
	}

	insts, _ := store.ListInstallmentsByGroup(context.Background(), txn.GroupID)
	if len(insts) != 3 {
		t.Fatalf("got %d installments after edit, want 3", len(insts))
	}
	wantCents := []int64{3333, 3333, 3334}
	for i, in := range insts {
		if in.Amount.Cents != wantCents[i] {
			t.Errorf("installment %d = %d cents, want %d", i+1, in.Amount.Cents, wantCents[i])
		}
	}

	assertBillTotalsMatch(t, store)
}

func TestCreatePlanValidation(t *testing.T) {
	store := newMemStore()
	card := testCard(store, 15)
	p := NewPlanner(store)

	tests := []struct {
		name    string
		req     PlanRequest
		wantErr error
	}{
		{
			name: "empty name",
			req: PlanRequest{
				UserID: 1, CardID: card.ID, Name: " ",
				Amount: core.NewMoney(1000), PurchaseDate: core.NewDate(2026, 1, 1), Parcels: 2,
			},
			wantErr: core.ErrEmptyName,
		},
		{
			name: "zero parcels",
			req: PlanRequest{
				UserID: 1, CardID: card.ID, Name: "x",
				Amount: core.NewMoney(1000), PurchaseDate: core.NewDate(2026, 1, 1), Parcels: 0,
			},
			wantErr: core.ErrInvalidInstallmentPlan,
		},
		{
			name: "too many parcels",
			req: PlanRequest{
				UserID: 1, CardID: card.ID, Name: "x",
				Amount: core.NewMoney(1000), PurchaseDate: core.NewDate(2026, 1, 1), Parcels: 25,
			},
			wantErr: core.ErrInvalidInstallmentPlan,
		},
		{
			name: "missing card",
			req: PlanRequest{
				UserID: 1, CardID: 999, Name: "x",
				Amount: core.NewMoney(1000), PurchaseDate: core.NewDate(2026, 1, 1), Parcels: 2,
			},
			wantErr: core.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.CreatePlan(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CreatePlan() error = %v, want %v", err, tt.wantErr)
			}
			if len(store.txns) != 0 || len(store.insts) != 0 || len(store.bills) != 0 {
				t.Error("failed plan left rows behind")
			}
		})
	}
}

func TestDeleteUnknownPlan(t *testing.T) {
	p := NewPlanner(newMemStore())
	if _, err := p.DeletePlan(context.Background(), "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeletePlan() error = %v, want ErrNotFound", err)
	}
}

func TestMarkBillPaidIdempotent(t *testing.T) {
	store := newMemStore()
	card := testCard(store, 15)
	p := NewPlanner(store)

	txn := createPlan(t, p, PlanRequest{
		UserID: 1, CardID: card.ID, Name: "x",
		Amount: core.NewMoney(4000), PurchaseDate: core.NewDate(2026, 5, 3), Parcels: 1,
	})
	insts, _ := store.ListInstallmentsByGroup(context.Background(), txn.GroupID)
	billID := insts[0].BillID

	for i := 0; i < 2; i++ {
		userID, err := p.MarkBillPaid(context.Background(), billID)
		if err != nil {
			t.Fatalf("MarkBillPaid() run %d error = %v", i+1, err)
		}
		if userID != card.UserID {
			t.Errorf("MarkBillPaid() user = %d, want %d", userID, card.UserID)
		}
	}

	bill, _ := store.GetBill(context.Background(), billID)
	if !bill.Paid || bill.Total.Cents != 4000 {
		t.Errorf("bill after double pay = %+v", bill)
	}
	insts, _ = store.ListInstallmentsByBill(context.Background(), billID)
	if !insts[0].Paid {
		t.Error("installment not marked paid")
	}
}

// assertBillTotalsMatch checks the ledger invariant: every bill total
// equals the sum of its installments.
func assertBillTotalsMatch(t *testing.T, store *memStore) {
	t.Helper()
	for id, b := range store.bills {
		var sum int64
		for _, in := range store.insts {
			if in.BillID == id {
				sum += in.Amount.Cents
			}
		}
		if b.Total.Cents != sum {
			t.Errorf("bill %d total = %d, installments sum = %d", id, b.Total.Cents, sum)
		}
	}
}
