package http

import (
	"fmt"
	"net/http"
	"time"

	"contas/internal/billing"
	"contas/internal/core"
	"contas/internal/services"
)

// Response shapes. Money travels as a fixed two-decimal string, dates
// as YYYY-MM-DD.

type billDTO struct {
	ID     int64  `json:"id"`
	CardID int64  `json:"card_id"`
	Month  int    `json:"month"`
	Year   int    `json:"year"`
	Total  string `json:"total"`
	DueDay int    `json:"due_day"`
	Paid   bool   `json:"paid"`
}

func toBillDTO(b core.Bill) billDTO {
	return billDTO{
		ID:     b.ID,
		CardID: b.CardID,
		Month:  b.Period.Month,
		Year:   b.Period.Year,
		Total:  b.Total.String(),
		DueDay: b.DueDay,
		Paid:   b.Paid,
	}
}

type installmentDTO struct {
	ID            int64  `json:"id"`
	TransactionID int64  `json:"transaction_id"`
	BillID        int64  `json:"bill_id"`
	Seq           int    `json:"seq"`
	Amount        string `json:"amount"`
	Month         int    `json:"month"`
	Year          int    `json:"year"`
	Paid          bool   `json:"paid"`
}

func toInstallmentDTO(in core.Installment) installmentDTO {
	return installmentDTO{
		ID:            in.ID,
		TransactionID: in.TransactionID,
		BillID:        in.BillID,
		Seq:           in.Seq,
		Amount:        in.Amount.String(),
		Month:         in.Period.Month,
		Year:          in.Period.Year,
		Paid:          in.Paid,
	}
}

type transactionDTO struct {
	ID           int64  `json:"id"`
	UserID       int64  `json:"user_id"`
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	Source       string `json:"source"`
	SourceDetail string `json:"source_detail,omitempty"`
	Date         string `json:"date"`
	Amount       string `json:"amount"`
	PlanID       string `json:"plan_id,omitempty"`
}

func toTransactionDTO(t core.Transaction) transactionDTO {
	return transactionDTO{
		ID:           t.ID,
		UserID:       t.UserID,
		Name:         t.Name,
		Kind:         string(t.Kind),
		Source:       string(t.Source),
		SourceDetail: t.SourceDetail,
		Date:         t.Date.Format("2006-01-02"),
		Amount:       t.Amount.String(),
		PlanID:       t.GroupID,
	}
}

type budgetEntryDTO struct {
	Month           int    `json:"month"`
	Year            int    `json:"year"`
	BudgetedIncome  string `json:"budgeted_income"`
	BudgetedExpense string `json:"budgeted_expense"`
	RealizedIncome  string `json:"realized_income"`
	RealizedExpense string `json:"realized_expense"`
	GapAmount       string `json:"gap_amount"`
	GapPercent      string `json:"gap_percent"`
	Status          string `json:"status"`
}

func toBudgetEntryDTO(e core.BudgetEntry) budgetEntryDTO {
	return budgetEntryDTO{
		Month:           e.Month,
		Year:            e.Year,
		BudgetedIncome:  e.BudgetedIncome.String(),
		BudgetedExpense: e.BudgetedExpense.String(),
		RealizedIncome:  e.RealizedIncome.String(),
		RealizedExpense: e.RealizedExpense.String(),
		GapAmount:       e.GapAmount.String(),
		GapPercent:      e.GapPercent.String(),
		Status:          string(e.Status),
	}
}

type yearSummaryDTO struct {
	Year            int    `json:"year"`
	BudgetedIncome  string `json:"budgeted_income"`
	BudgetedExpense string `json:"budgeted_expense"`
	RealizedIncome  string `json:"realized_income"`
	RealizedExpense string `json:"realized_expense"`
	GapAmount       string `json:"gap_amount"`
}

type createPlanRequest struct {
	UserID       int64  `json:"user_id"`
	CardID       int64  `json:"card_id"`
	Name         string `json:"name"`
	SourceDetail string `json:"source_detail"`
	Amount       string `json:"amount"`
	PurchaseDate string `json:"purchase_date"`
	Parcels      int    `json:"parcels"`
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	amount, err := core.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	date, err := parseDate(req.PurchaseDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid purchase_date, want YYYY-MM-DD"})
		return
	}

	planID, err := s.billing.CreateInstallmentPlan(r.Context(), billing.PlanRequest{
		UserID:       req.UserID,
		CardID:       req.CardID,
		Name:         req.Name,
		SourceDetail: req.SourceDetail,
		Amount:       amount,
		PurchaseDate: date,
		Parcels:      req.Parcels,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"plan_id": planID})
}

func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	if err := s.billing.DeletePlan(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEditPlanAmount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount string `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	amount, err := core.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.billing.EditPlanAmount(r.Context(), r.PathValue("id"), amount); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transactionRequest struct {
	UserID       int64  `json:"user_id"`
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	Source       string `json:"source"`
	SourceDetail string `json:"source_detail"`
	Date         string `json:"date"`
	Amount       string `json:"amount"`
}

func (req transactionRequest) toTransaction() (*core.Transaction, error) {
	amount, err := core.ParseMoney(req.Amount)
	if err != nil {
		return nil, err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q, want YYYY-MM-DD", core.ErrInvalidDay, req.Date)
	}
	return &core.Transaction{
		UserID:       req.UserID,
		Name:         req.Name,
		Kind:         core.TransactionKind(req.Kind),
		Source:       core.TransactionSource(req.Source),
		SourceDetail: req.SourceDetail,
		Date:         date,
		Amount:       amount,
	}, nil
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	t, err := req.toTransaction()
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := s.txns.Create(r.Context(), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return
	}
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	t, err := req.toTransaction()
	if err != nil {
		writeError(w, r, err)
		return
	}
	t.ID = id
	if err := s.txns.Update(r.Context(), t); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return
	}
	if err := s.txns.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOpenBills(w http.ResponseWriter, r *http.Request) {
	cardID, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return
	}
	bills, err := s.billing.GetOpenBills(r.Context(), cardID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]billDTO, 0, len(bills))
	for _, b := range bills {
		out = append(out, toBillDTO(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bills": out})
}

func (s *Server) handleInstallments(w http.ResponseWriter, r *http.Request) {
	billID, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return
	}
	installments, err := s.billing.GetInstallments(r.Context(), billID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]installmentDTO, 0, len(installments))
	for _, in := range installments {
		out = append(out, toInstallmentDTO(in))
	}
	writeJSON(w, http.StatusOK, map[string]any{"installments": out})
}

func (s *Server) handlePayBill(w http.ResponseWriter, r *http.Request) {
	billID, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return
	}
	userID, err := s.billing.MarkBillPaid(r.Context(), billID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"user_id": userID})
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID          int64  `json:"user_id"`
		Year            int    `json:"year"`
		BudgetedIncome  string `json:"budgeted_income"`
		BudgetedExpense string `json:"budgeted_expense"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	income, err := core.ParseMoneyNonNegative(req.BudgetedIncome)
	if err != nil {
		writeError(w, r, err)
		return
	}
	expense, err := core.ParseMoneyNonNegative(req.BudgetedExpense)
	if err != nil {
		writeError(w, r, err)
		return
	}
	err = s.budgets.SetYearlyBudget(r.Context(), services.YearlyBudget{
		UserID:          req.UserID,
		Year:            req.Year,
		BudgetedIncome:  income,
		BudgetedExpense: expense,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUserFlow(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return
	}
	year := yearParam(r)
	entries, err := s.budgets.GetUserFlow(r.Context(), userID, year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]budgetEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toBudgetEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": year, "months": out})
}

func (s *Server) handleYearSummary(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return
	}
	year := yearParam(r)
	summary, err := s.budgets.GetYearSummary(r.Context(), userID, year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, yearSummaryDTO{
		Year:            summary.Year,
		BudgetedIncome:  summary.BudgetedIncome.String(),
		BudgetedExpense: summary.BudgetedExpense.String(),
		RealizedIncome:  summary.RealizedIncome.String(),
		RealizedExpense: summary.RealizedExpense.String(),
		GapAmount:       summary.GapAmount.String(),
	})
}

func (s *Server) handleRecentTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return
	}
	txns, err := s.txns.Recent(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]transactionDTO, 0, len(txns))
	for _, t := range txns {
		out = append(out, toTransactionDTO(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

// handleReconcile queues a reconcile run instead of running it inline;
// the worker picks it up.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID int64 `json:"user_id"`
		Year   int   `json:"year"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Year == 0 {
		req.Year = time.Now().Year()
	}
	if s.queue == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "reconcile queue not configured"})
		return
	}
	if err := s.queue.PublishReconcile(r.Context(), req.UserID, req.Year); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type createRecurringRequest struct {
	UserID     int64  `json:"user_id"`
	Name       string `json:"name"`
	Amount     string `json:"amount"`
	Source     string `json:"source"`
	CardID     int64  `json:"card_id"`
	DayOfMonth int    `json:"day_of_month"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	var req createRecurringRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	amount, err := core.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid start_date, want YYYY-MM-DD"})
		return
	}
	var end core.Date
	if req.EndDate != "" {
		if end, err = parseDate(req.EndDate); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid end_date, want YYYY-MM-DD"})
			return
		}
	}

	id, err := s.recurring.CreateTemplate(r.Context(), &core.RecurringCost{
		UserID:     req.UserID,
		Name:       req.Name,
		Amount:     amount,
		Source:     core.TransactionSource(req.Source),
		CardID:     req.CardID,
		DayOfMonth: req.DayOfMonth,
		StartDate:  start,
		EndDate:    end,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleCancelRecurring(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return
	}
	if err := s.recurring.Cancel(r.Context(), id, time.Now()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
