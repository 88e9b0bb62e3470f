package http

import (
	"context"
	"sort"
	"time"

	"contas/internal/billing"
	"contas/internal/core"
)

// fakeBackend is an in-memory store behind every service the server
// wires, so handler tests run against the real service and planner
// code. InTx snapshots state and restores it when fn fails, mirroring
// the rollback the SQL store provides.
type fakeBackend struct {
	cards   map[int64]core.Card
	txns    map[int64]core.Transaction
	bills   map[int64]core.Bill
	insts   map[int64]core.Installment
	budgets map[int64]core.BudgetEntry
	recurs  map[int64]core.RecurringCost
	nextID  int64

	openBillsErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		cards:   make(map[int64]core.Card),
		txns:    make(map[int64]core.Transaction),
		bills:   make(map[int64]core.Bill),
		insts:   make(map[int64]core.Installment),
		budgets: make(map[int64]core.BudgetEntry),
		recurs:  make(map[int64]core.RecurringCost),
	}
}

func (m *fakeBackend) addCard(c core.Card) core.Card {
	c.ID = m.id()
	m.cards[c.ID] = c
	return c
}

func (m *fakeBackend) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *fakeBackend) snapshot() (map[int64]core.Transaction, map[int64]core.Bill, map[int64]core.Installment, int64) {
	txns := make(map[int64]core.Transaction, len(m.txns))
	for k, v := range m.txns {
		txns[k] = v
	}
	bills := make(map[int64]core.Bill, len(m.bills))
	for k, v := range m.bills {
		bills[k] = v
	}
	insts := make(map[int64]core.Installment, len(m.insts))
	for k, v := range m.insts {
		insts[k] = v
	}
	return txns, bills, insts, m.nextID
}

func (m *fakeBackend) InTx(ctx context.Context, fn func(tx billing.Tx) error) error {
	txns, bills, insts, nextID := m.snapshot()
	if err := fn(m); err != nil {
		m.txns, m.bills, m.insts, m.nextID = txns, bills, insts, nextID
		return err
	}
	return nil
}

func (m *fakeBackend) GetCard(ctx context.Context, id int64) (*core.Card, error) {
	c, ok := m.cards[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &c, nil
}

func (m *fakeBackend) GetTransaction(ctx context.Context, id int64) (*core.Transaction, error) {
	t, ok := m.txns[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &t, nil
}

func (m *fakeBackend) GetTransactionByGroup(ctx context.Context, groupID string) (*core.Transaction, error) {
	for _, t := range m.txns {
		if t.GroupID == groupID {
			return &t, nil
		}
	}
	return nil, core.ErrNotFound
}

func (m *fakeBackend) GetBill(ctx context.Context, id int64) (*core.Bill, error) {
	b, ok := m.bills[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &b, nil
}

func (m *fakeBackend) ListOpenBills(ctx context.Context, cardID int64) ([]core.Bill, error) {
	if m.openBillsErr != nil {
		return nil, m.openBillsErr
	}
	var out []core.Bill
	for _, b := range m.bills {
		if b.CardID == cardID && !b.Paid {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	return out, nil
}

func (m *fakeBackend) ListInstallmentsByBill(ctx context.Context, billID int64) ([]core.Installment, error) {
	var out []core.Installment
	for _, in := range m.insts {
		if in.BillID == billID {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *fakeBackend) ListInstallmentsByGroup(ctx context.Context, groupID string) ([]core.Installment, error) {
	var txnID int64 = -1
	for _, txn := range m.txns {
		if txn.GroupID == groupID {
			txnID = txn.ID
			break
		}
	}
	var out []core.Installment
	for _, in := range m.insts {
		if in.TransactionID == txnID {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *fakeBackend) FindOpenBill(ctx context.Context, cardID int64, period core.Period) (*core.Bill, error) {
	for _, b := range m.bills {
		if b.CardID == cardID && b.Period == period && !b.Paid {
			return &b, nil
		}
	}
	return nil, core.ErrNotFound
}

func (m *fakeBackend) InsertBill(ctx context.Context, b *core.Bill) error {
	if existing, err := m.FindOpenBill(ctx, b.CardID, b.Period); err == nil && existing != nil {
		return core.ErrDuplicateBill
	}
	b.ID = m.id()
	m.bills[b.ID] = *b
	return nil
}

func (m *fakeBackend) IncrementBillTotal(ctx context.Context, billID int64, deltaCents int64) error {
	b, ok := m.bills[billID]
	if !ok {
		return core.ErrNotFound
	}
	b.Total = b.Total.Add(core.NewMoney(deltaCents))
	m.bills[billID] = b
	return nil
}

func (m *fakeBackend) CountBillInstallments(ctx context.Context, billID int64) (int64, error) {
	var n int64
	for _, in := range m.insts {
		if in.BillID == billID {
			n++
		}
	}
	return n, nil
}

func (m *fakeBackend) DeleteBill(ctx context.Context, billID int64) error {
	delete(m.bills, billID)
	return nil
}

func (m *fakeBackend) MarkBillPaid(ctx context.Context, billID int64) error {
	b, ok := m.bills[billID]
	if !ok {
		return core.ErrNotFound
	}
	b.Paid = true
	m.bills[billID] = b
	return nil
}

func (m *fakeBackend) MarkBillInstallmentsPaid(ctx context.Context, billID int64) error {
	for id, in := range m.insts {
		if in.BillID == billID {
			in.Paid = true
			m.insts[id] = in
		}
	}
	return nil
}

func (m *fakeBackend) InsertTransaction(ctx context.Context, txn *core.Transaction) error {
	txn.ID = m.id()
	m.txns[txn.ID] = *txn
	return nil
}

func (m *fakeBackend) UpdateTransactionAmount(ctx context.Context, id int64, cents int64) error {
	txn, ok := m.txns[id]
	if !ok {
		return core.ErrNotFound
	}
	txn.Amount = core.NewMoney(cents)
	m.txns[id] = txn
	return nil
}

func (m *fakeBackend) DeleteTransaction(ctx context.Context, id int64) error {
	if _, ok := m.txns[id]; !ok {
		return core.ErrNotFound
	}
	delete(m.txns, id)
	return nil
}

func (m *fakeBackend) InsertInstallment(ctx context.Context, in *core.Installment) error {
	in.ID = m.id()
	m.insts[in.ID] = *in
	return nil
}

func (m *fakeBackend) DeleteInstallment(ctx context.Context, id int64) error {
	delete(m.insts, id)
	return nil
}

func (m *fakeBackend) CreateTransaction(ctx context.Context, t *core.Transaction) error {
	t.ID = m.id()
	m.txns[t.ID] = *t
	return nil
}

func (m *fakeBackend) UpdateTransaction(ctx context.Context, t *core.Transaction) error {
	if _, ok := m.txns[t.ID]; !ok {
		return core.ErrNotFound
	}
	m.txns[t.ID] = *t
	return nil
}

func (m *fakeBackend) ListRecentTransactions(ctx context.Context, userID int64, limit int) ([]core.Transaction, error) {
	var out []core.Transaction
	for _, t := range m.txns {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Time.After(out[j].Date.Time) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *fakeBackend) UpsertBudgetEntry(ctx context.Context, e *core.BudgetEntry) error {
	for id, existing := range m.budgets {
		if existing.UserID == e.UserID && existing.Month == e.Month && existing.Year == e.Year {
			existing.BudgetedIncome = e.BudgetedIncome
			existing.BudgetedExpense = e.BudgetedExpense
			m.budgets[id] = existing
			e.ID = id
			return nil
		}
	}
	e.ID = m.id()
	m.budgets[e.ID] = *e
	return nil
}

func (m *fakeBackend) ListBudgetEntries(ctx context.Context, userID int64, year int) ([]core.BudgetEntry, error) {
	var out []core.BudgetEntry
	for _, e := range m.budgets {
		if e.UserID == userID && e.Year == year {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func (m *fakeBackend) CreateRecurringCost(ctx context.Context, rc *core.RecurringCost) error {
	rc.ID = m.id()
	m.recurs[rc.ID] = *rc
	return nil
}

func (m *fakeBackend) GetRecurringCost(ctx context.Context, id int64) (*core.RecurringCost, error) {
	rc, ok := m.recurs[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &rc, nil
}

func (m *fakeBackend) ListActiveRecurringCosts(ctx context.Context, now time.Time) ([]core.RecurringCost, error) {
	var out []core.RecurringCost
	for _, rc := range m.recurs {
		if !rc.Cancelled {
			out = append(out, rc)
		}
	}
	return out, nil
}

func (m *fakeBackend) UpdateRecurringLastGenerated(ctx context.Context, id int64, d core.Date) error {
	rc, ok := m.recurs[id]
	if !ok {
		return core.ErrNotFound
	}
	rc.LastGenerated = d
	m.recurs[id] = rc
	return nil
}

func (m *fakeBackend) CancelRecurringCost(ctx context.Context, id int64) error {
	rc, ok := m.recurs[id]
	if !ok {
		return core.ErrNotFound
	}
	rc.Cancelled = true
	m.recurs[id] = rc
	return nil
}

func (m *fakeBackend) ListFutureRecurringTransactions(ctx context.Context, recurringID int64, after core.Date) ([]core.Transaction, error) {
	var out []core.Transaction
	for _, t := range m.txns {
		if t.RecurringID == recurringID && t.Date.Time.After(after.Time) {
			out = append(out, t)
		}
	}
	return out, nil
}
