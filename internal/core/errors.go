package core

import "errors"

var (
	// Validation errors, rejected before any write.
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidDay             = errors.New("invalid day")
	ErrInvalidMonth           = errors.New("invalid month")
	ErrInvalidDueDay          = errors.New("invalid due day")
	ErrInvalidKind            = errors.New("invalid transaction kind")
	ErrInvalidSource          = errors.New("invalid transaction source")
	ErrEmptyName              = errors.New("empty name")
	ErrInvalidInstallmentPlan = errors.New("invalid installment plan")

	// ErrNotFound reports a missing card, bill, transaction or plan.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateBill reports a unique-constraint violation on the open
	// bill for a (card, month, year) period. Callers re-read the bill that
	// won the race instead of failing.
	ErrDuplicateBill = errors.New("open bill already exists for period")
)
