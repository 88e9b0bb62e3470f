package billing

import (
	"context"
	"sort"

	"contas/internal/core"
)

// memStore is an in-memory Store for exercising the planner and ledger.
// InTx snapshots state and restores it when fn fails, mirroring the
// rollback the SQL store provides.
type memStore struct {
	cards  map[int64]core.Card
	txns   map[int64]core.Transaction
	bills  map[int64]core.Bill
	insts  map[int64]core.Installment
	nextID int64
}

func newMemStore() *memStore {
	return &memStore{
		cards: make(map[int64]core.Card),
		txns:  make(map[int64]core.Transaction),
		bills: make(map[int64]core.Bill),
		insts: make(map[int64]core.Installment),
	}
}

func (m *memStore) addCard(c core.Card) core.Card {
	m.nextID++
	c.ID = m.nextID
	m.cards[c.ID] = c
	return c
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) snapshot() *memStore {
	cp := newMemStore()
	cp.nextID = m.nextID
	for k, v := range m.cards {
		cp.cards[k] = v
	}
	for k, v := range m.txns {
		cp.txns[k] = v
	}
	for k, v := range m.bills {
		cp.bills[k] = v
	}
	for k, v := range m.insts {
		cp.insts[k] = v
	}
	return cp
}

func (m *memStore) restore(snap *memStore) {
	m.cards, m.txns, m.bills, m.insts = snap.cards, snap.txns, snap.bills, snap.insts
	m.nextID = snap.nextID
}

func (m *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	snap := m.snapshot()
	if err := fn(&memTx{store: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memStore) GetCard(ctx context.Context, id int64) (*core.Card, error) {
	c, ok := m.cards[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &c, nil
}

func (m *memStore) GetTransaction(ctx context.Context, id int64) (*core.Transaction, error) {
	t, ok := m.txns[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &t, nil
}

func (m *memStore) GetTransactionByGroup(ctx context.Context, groupID string) (*core.Transaction, error) {
	for _, t := range m.txns {
		if t.GroupID == groupID {
			return &t, nil
		}
	}
	return nil, core.ErrNotFound
}

func (m *memStore) GetBill(ctx context.Context, id int64) (*core.Bill, error) {
	b, ok := m.bills[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &b, nil
}

func (m *memStore) ListOpenBills(ctx context.Context, cardID int64) ([]core.Bill, error) {
	var out []core.Bill
	for _, b := range m.bills {
		if b.CardID == cardID && !b.Paid {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	return out, nil
}

func (m *memStore) ListInstallmentsByBill(ctx context.Context, billID int64) ([]core.Installment, error) {
	var out []core.Installment
	for _, in := range m.insts {
		if in.BillID == billID {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *memStore) ListInstallmentsByGroup(ctx context.Context, groupID string) ([]core.Installment, error) {
	return (&memTx{store: m}).ListInstallmentsByGroup(ctx, groupID)
}

type memTx struct {
	store *memStore
}

func (t *memTx) FindOpenBill(ctx context.Context, cardID int64, period core.Period) (*core.Bill, error) {
	for _, b := range t.store.bills {
		if b.CardID == cardID && b.Period == period && !b.Paid {
			return &b, nil
		}
	}
	return nil, core.ErrNotFound
}

func (t *memTx) InsertBill(ctx context.Context, b *core.Bill) error {
	if existing, err := t.FindOpenBill(ctx, b.CardID, b.Period); err == nil && existing != nil {
		return core.ErrDuplicateBill
	}
	b.ID = t.store.id()
	t.store.bills[b.ID] = *b
	return nil
}

func (t *memTx) IncrementBillTotal(ctx context.Context, billID int64, deltaCents int64) error {
	b, ok := t.store.bills[billID]
	if !ok {
		return core.ErrNotFound
	}
	b.Total = b.Total.Add(core.NewMoney(deltaCents))
	t.store.bills[billID] = b
	return nil
}

func (t *memTx) CountBillInstallments(ctx context.Context, billID int64) (int64, error) {
	var n int64
	for _, in := range t.store.insts {
		if in.BillID == billID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) DeleteBill(ctx context.Context, billID int64) error {
	delete(t.store.bills, billID)
	return nil
}

func (t *memTx) GetBill(ctx context.Context, id int64) (*core.Bill, error) {
	return t.store.GetBill(ctx, id)
}

func (t *memTx) GetCard(ctx context.Context, id int64) (*core.Card, error) {
	return t.store.GetCard(ctx, id)
}

func (t *memTx) MarkBillPaid(ctx context.Context, billID int64) error {
	b, ok := t.store.bills[billID]
	if !ok {
		return core.ErrNotFound
	}
	b.Paid = true
	t.store.bills[billID] = b
	return nil
}

func (t *memTx) MarkBillInstallmentsPaid(ctx context.Context, billID int64) error {
	for id, in := range t.store.insts {
		if in.BillID == billID {
			in.Paid = true
			t.store.insts[id] = in
		}
	}
	return nil
}

func (t *memTx) InsertTransaction(ctx context.Context, txn *core.Transaction) error {
	txn.ID = t.store.id()
	t.store.txns[txn.ID] = *txn
	return nil
}

func (t *memTx) UpdateTransactionAmount(ctx context.Context, id int64, cents int64) error {
	txn, ok := t.store.txns[id]
	if !ok {
		return core.ErrNotFound
	}
	txn.Amount = core.NewMoney(cents)
	t.store.txns[id] = txn
	return nil
}

func (t *memTx) DeleteTransaction(ctx context.Context, id int64) error {
	if _, ok := t.store.txns[id]; !ok {
		return core.ErrNotFound
	}
	delete(t.store.txns, id)
	return nil
}

func (t *memTx) InsertInstallment(ctx context.Context, in *core.Installment) error {
	in.ID = t.store.id()
	t.store.insts[in.ID] = *in
	return nil
}

func (t *memTx) ListInstallmentsByGroup(ctx context.Context, groupID string) ([]core.Installment, error) {
	var txnID int64 = -1
	for _, txn := range t.store.txns {
		if txn.GroupID == groupID {
			txnID = txn.ID
			break
		}
	}
	var out []core.Installment
	for _, in := range t.store.insts {
		if in.TransactionID == txnID {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (t *memTx) DeleteInstallment(ctx context.Context, id int64) error {
	delete(t.store.insts, id)
	return nil
}
