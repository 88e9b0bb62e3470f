package billing

import (
	"context"

	"contas/internal/core"
)

// Store is the persistence surface the billing engine needs. Reads run
// outside transactions; every plan mutation runs inside InTx so that a
// failure at any step rolls the whole plan back.
type Store interface {
	// InTx runs fn inside one storage transaction, committing if fn
	// returns nil and rolling back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetCard(ctx context.Context, id int64) (*core.Card, error)
	GetTransaction(ctx context.Context, id int64) (*core.Transaction, error)
	GetTransactionByGroup(ctx context.Context, groupID string) (*core.Transaction, error)
	GetBill(ctx context.Context, id int64) (*core.Bill, error)
	ListOpenBills(ctx context.Context, cardID int64) ([]core.Bill, error)
	ListInstallmentsByBill(ctx context.Context, billID int64) ([]core.Installment, error)
	ListInstallmentsByGroup(ctx context.Context, groupID string) ([]core.Installment, error)
}

// Tx is the transactional slice of the store. Bill totals are only ever
// changed through IncrementBillTotal, an atomic increment at the storage
// layer; nothing reads-modifies-writes a total in application code.
type Tx interface {
	FindOpenBill(ctx context.Context, cardID int64, period core.Period) (*core.Bill, error)
	// InsertBill persists b and fills in its ID. A concurrent insert for
	// the same open period surfaces as core.ErrDuplicateBill.
	InsertBill(ctx context.Context, b *core.Bill) error
	IncrementBillTotal(ctx context.Context, billID int64, deltaCents int64) error
	CountBillInstallments(ctx context.Context, billID int64) (int64, error)
	DeleteBill(ctx context.Context, billID int64) error
	GetBill(ctx context.Context, id int64) (*core.Bill, error)
	GetCard(ctx context.Context, id int64) (*core.Card, error)
	MarkBillPaid(ctx context.Context, billID int64) error
	MarkBillInstallmentsPaid(ctx context.Context, billID int64) error

	InsertTransaction(ctx context.Context, t *core.Transaction) error
	UpdateTransactionAmount(ctx context.Context, id int64, cents int64) error
	DeleteTransaction(ctx context.Context, id int64) error

	InsertInstallment(ctx context.Context, in *core.Installment) error
	ListInstallmentsByGroup(ctx context.Context, groupID string) ([]core.Installment, error)
	DeleteInstallment(ctx context.Context, id int64) error
}
