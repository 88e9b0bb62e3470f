package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionKind = "income"
	Expense TransactionKind = "expense"
)

const (
	SourcePix        TransactionSource = "pix"
	SourceDebit      TransactionSource = "debit"
	SourceCreditCard TransactionSource = "credit-card"
	SourceBoleto     TransactionSource = "boleto"
	SourceCash       TransactionSource = "cash"
)

const (
	StatusSurplus BudgetStatus = "surplus"
	StatusDeficit BudgetStatus = "deficit"
	StatusNeutral BudgetStatus = "neutral"
)

type (
	TransactionKind   string
	TransactionSource string
	BudgetStatus      string

	// Date is a calendar day without a time component.
	Date struct {
		time.Time
	}

	// Period identifies one credit-card statement cycle: the (month, year)
	// a group of installments is due in.
	Period struct {
		Month int
		Year  int
	}

	// Card is credit-card metadata owned elsewhere; the engine only reads
	// the fixed due day.
	Card struct {
		ID     int64
		UserID int64
		Name   string
		DueDay int
	}

	// Transaction is the shared root entity referenced by installments and
	// budget figures. GroupID links all parcels of one purchase; it is empty
	// for non-card transactions.
	Transaction struct {
		ID           int64
		UserID       int64
		Name         string
		Kind         TransactionKind
		Source       TransactionSource
		SourceDetail string
		Date         Date
		Amount       Money
		GroupID      string
		CardID       int64
		RecurringID  int64
	}

	// Installment is one monthly slice of a multi-part purchase, linked to
	// exactly one transaction and exactly one bill.
	Installment struct {
		ID            int64
		TransactionID int64
		BillID        int64
		Seq           int
		Amount        Money
		Period        Period
		Paid          bool
	}

	// Bill is one credit-card statement for a (card, month, year) period.
	// Its total always equals the sum of its installments once a mutation
	// completes.
	Bill struct {
		ID     int64
		CardID int64
		Period Period
		Total  Money
		DueDay int
		Paid   bool
	}

	// BudgetEntry holds one month's budgeted-vs-realized figures for a user.
	// Budgeted fields are user input; realized and derived fields are owned
	// by the reconciler.
	BudgetEntry struct {
		ID              int64
		UserID          int64
		Month           int
		Year            int
		BudgetedIncome  Money
		BudgetedExpense Money
		RealizedIncome  Money
		RealizedExpense Money
		GapAmount       Money
		GapPercent      decimal.Decimal
		Status          BudgetStatus
	}

	// RecurringCost is a template that generates one transaction per month
	// from its start date until its end date or year-end.
	RecurringCost struct {
		ID            int64
		UserID        int64
		Name          string
		Amount        Money
		Source        TransactionSource
		CardID        int64
		DayOfMonth    int
		StartDate     Date
		EndDate       Date
		Cancelled     bool
		LastGenerated Date
	}
)

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month.
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the calendar month as an int.
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the calendar year.
func (d Date) Year() int {
	return d.Time.Year()
}

// Period returns the (month, year) pair the date falls in.
func (d Date) Period() Period {
	return Period{Month: d.Month(), Year: d.Year()}
}

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Advance returns the period k months later, wrapping the year at
// December. k must be non-negative.
func (p Period) Advance(k int) Period {
	m := p.Month + k
	return Period{
		Month: (m-1)%12 + 1,
		Year:  p.Year + (m-1)/12,
	}
}

// Before reports whether p is an earlier statement cycle than o.
func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

func (k TransactionKind) Validate() error {
	switch k {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidKind
	}
}

func (s TransactionSource) Validate() error {
	switch s {
	case SourcePix, SourceDebit, SourceCreditCard, SourceBoleto, SourceCash:
		return nil
	default:
		return ErrInvalidSource
	}
}

func (c Card) Validate() error {
	if c.DueDay < 1 || c.DueDay > 28 {
		return ErrInvalidDueDay
	}
	if len(strings.TrimSpace(c.Name)) == 0 {
		return ErrEmptyName
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Name)) == 0 {
		return ErrEmptyName
	}
	if len(t.Name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if err := t.Source.Validate(); err != nil {
		return err
	}
	return t.Amount.Validate()
}

// BudgetedBalance is budgeted income minus budgeted expense.
func (e BudgetEntry) BudgetedBalance() Money {
	return e.BudgetedIncome.Sub(e.BudgetedExpense)
}

// RealizedBalance is realized income minus realized expense.
func (e BudgetEntry) RealizedBalance() Money {
	return e.RealizedIncome.Sub(e.RealizedExpense)
}

func (rc RecurringCost) Validate() error {
	if len(strings.TrimSpace(rc.Name)) == 0 {
		return ErrEmptyName
	}
	if err := rc.Amount.Validate(); err != nil {
		return err
	}
	if err := rc.Source.Validate(); err != nil {
		return err
	}
	if rc.Source == SourceCreditCard && rc.CardID == 0 {
		return errors.New("card id required for credit-card recurring cost")
	}
	if rc.DayOfMonth < 1 || rc.DayOfMonth > 28 {
		return ErrInvalidDay
	}
	if err := rc.StartDate.Validate(); err != nil {
		return errors.New("invalid start date: " + err.Error())
	}
	if !rc.EndDate.IsZero() {
		if err := rc.EndDate.Validate(); err != nil {
			return errors.New("invalid end date: " + err.Error())
		}
		if rc.EndDate.Before(rc.StartDate.Time) {
			return errors.New("end date must be after start date")
		}
	}
	return nil
}
