package http

import (
	"fmt"
	"net/http"
	"time"

	"budgetd/internal/core"
	"budgetd/internal/log"
)

type dashboardExpenses struct {
	Recent     []transactionJSON  `json:"recent"`
	Total      float64            `json:"total"`
	Average    float64            `json:"average"`
	ByCategory map[string]float64 `json:"by_category"`
	Monthly    map[string]float64 `json:"monthly"`
}

type dashboardJSON struct {
	Expenses dashboardExpenses `json:"expenses"`
	Goals    []goalJSON        `json:"goals"`
}

// handleDashboard aggregates the whole dataset into one payload: recent
// spending, all-time totals, a six-month trend and goal progress.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	txs, err := s.store.ListAllTransactions(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Dashboard transaction list failed", log.FieldError, err.Error())
		writeError(w, http.StatusInternalServerError, "failed to build dashboard")
		return
	}

	goals, err := s.store.ListGoals(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Dashboard goal list failed", log.FieldError, err.Error())
		writeError(w, http.StatusInternalServerError, "failed to build dashboard")
		return
	}

	out := dashboardJSON{
		Expenses: buildExpenseStats(txs, time.Now()),
		Goals:    make([]goalJSON, len(goals)),
	}
	now := time.Now()
	for i, g := range goals {
		out.Goals[i] = toGoalJSON(g, now)
	}

	writeJSON(w, http.StatusOK, out)
}

// buildExpenseStats computes the dashboard aggregates. Transactions arrive
// newest first, so recent is a prefix. The monthly trend covers the last
// 180 days keyed "YYYY-MM".
func buildExpenseStats(txs []core.Transaction, now time.Time) dashboardExpenses {
	stats := dashboardExpenses{
		Recent:     []transactionJSON{},
		ByCategory: make(map[string]float64),
		Monthly:    make(map[string]float64),
	}

	var totalCents int64
	cutoff := now.AddDate(0, 0, -180)
	byCategory := make(map[string]int64)
	monthly := make(map[string]int64)

	for i, t := range txs {
		totalCents += t.Amount.Cents
		byCategory[t.Category] += t.Amount.Cents
		if !t.Date.Before(cutoff) {
			key := fmt.Sprintf("%04d-%02d", t.Date.Year(), t.Date.Month())
			monthly[key] += t.Amount.Cents
		}
		if i < 5 {
			stats.Recent = append(stats.Recent, toTransactionJSON(t))
		}
	}

	stats.Total = core.Money{Cents: totalCents}.Float()
	if len(txs) > 0 {
		stats.Average = core.Money{Cents: totalCents / int64(len(txs))}.Float()
	}
	for cat, cents := range byCategory {
		stats.ByCategory[cat] = core.Money{Cents: cents}.Float()
	}
	for key, cents := range monthly {
		stats.Monthly[key] = core.Money{Cents: cents}.Float()
	}

	return stats
}
