// Package http serves the JSON API over the billing and budget
// services.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	applog "contas/internal/log"
	"contas/internal/services"
)

// ReconcilePublisher enqueues a budget reconcile for one (user, year).
type ReconcilePublisher interface {
	PublishReconcile(ctx context.Context, userID int64, year int) error
}

type Server struct {
	http.Server
	billing   *services.BillingService
	txns      *services.TransactionService
	budgets   *services.BudgetService
	recurring *services.RecurringProcessor
	queue     ReconcilePublisher

	logger       *applog.Logger
	structured   *applog.StructuredLogger
	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, billing *services.BillingService, txns *services.TransactionService, budgets *services.BudgetService, recurring *services.RecurringProcessor, queue ReconcilePublisher) *Server {
	mux := http.NewServeMux()
	logger := applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		billing:     billing,
		txns:        txns,
		budgets:     budgets,
		recurring:   recurring,
		queue:       queue,
		logger:      logger,
		structured:  applog.NewStructuredLogger(logger),
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /plans", s.withMiddleware(s.handleCreatePlan))
	mux.HandleFunc("DELETE /plans/{id}", s.withMiddleware(s.handleDeletePlan))
	mux.HandleFunc("PATCH /plans/{id}", s.withMiddleware(s.handleEditPlanAmount))

	mux.HandleFunc("POST /transactions", s.withMiddleware(s.handleCreateTransaction))
	mux.HandleFunc("PUT /transactions/{id}", s.withMiddleware(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /transactions/{id}", s.withMiddleware(s.handleDeleteTransaction))

	mux.HandleFunc("GET /cards/{id}/bills", s.withMiddleware(s.handleOpenBills))
	mux.HandleFunc("GET /bills/{id}/installments", s.withMiddleware(s.handleInstallments))
	mux.HandleFunc("POST /bills/{id}/pay", s.withMiddleware(s.handlePayBill))

	mux.HandleFunc("PUT /budgets", s.withMiddleware(s.handleSetBudget))
	mux.HandleFunc("GET /users/{id}/flow", s.withMiddleware(s.handleUserFlow))
	mux.HandleFunc("GET /users/{id}/summary", s.withMiddleware(s.handleYearSummary))
	mux.HandleFunc("GET /users/{id}/transactions", s.withMiddleware(s.handleRecentTransactions))
	mux.HandleFunc("POST /reconcile", s.withMiddleware(s.handleReconcile))

	mux.HandleFunc("POST /recurring", s.withMiddleware(s.handleCreateRecurring))
	mux.HandleFunc("DELETE /recurring/{id}", s.withMiddleware(s.handleCancelRecurring))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withMiddleware adds security headers, rate limiting on writes and
// request logging.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		ctx = applog.NewContext(ctx, s.logger.With(applog.FieldRequestID, requestID))
		r = r.WithContext(ctx)

		s.structured.LogHTTPStart(ctx, r, clientIP)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			s.logger.WarnContext(ctx, "Rate limit exceeded",
				applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.structured.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	}
}

type contextKey string

const requestIDKey contextKey = "request_id"

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
