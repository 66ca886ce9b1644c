package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"budgetd/internal/budget"
	"budgetd/internal/core"
	"budgetd/internal/log"
)

// defaultCategories is the starter set served before any spending exists.
var defaultCategories = []string{
	"Housing", "Food", "Transportation", "Entertainment",
	"Utilities", "Healthcare", "Shopping", "Other",
}

// handleListTransactions lists transactions, filtered to one period when
// both month and year are given.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		txs []core.Transaction
		err error
	)
	if q.Get("month") != "" && q.Get("year") != "" {
		year, month := parseYearMonth(r)
		txs, err = s.store.ListTransactions(r.Context(), year, month)
	} else {
		txs, err = s.store.ListAllTransactions(r.Context())
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Transaction list failed", log.FieldError, err.Error())
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	writeJSON(w, http.StatusOK, toTransactionListJSON(txs))
}

type createTransactionRequest struct {
	Date        string      `json:"date"`
	Amount      amountField `json:"amount"`
	Category    string      `json:"category"`
	Description string      `json:"description"`

	// Optional selected period; when set, the date must fall inside it and
	// the period must exist in the catalog.
	Month int `json:"month"`
	Year  int `json:"year"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	date, err := core.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid date, expected YYYY-MM-DD")
		return
	}
	if date.After(time.Now()) {
		writeError(w, http.StatusUnprocessableEntity, core.ErrFutureDate.Error())
		return
	}

	tx := core.Transaction{
		Date:        date,
		Amount:      core.Money{Cents: req.Amount.Cents},
		Category:    sanitizeInput(req.Category),
		Description: sanitizeInput(req.Description),
	}
	if err := tx.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if req.Month != 0 || req.Year != 0 {
		if !s.periodAllowed(r, tx, req.Year, req.Month) {
			writeError(w, http.StatusUnprocessableEntity, "period not available")
			return
		}
	}

	created, err := s.store.CreateTransaction(r.Context(), tx)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Transaction create failed",
			log.FieldError, err.Error(),
			log.FieldCategory, tx.Category,
			log.FieldAmount, tx.Amount.Cents)
		writeError(w, http.StatusInternalServerError, "failed to save transaction")
		return
	}

	s.invalidatePeriod(created.Date.Year(), created.Date.Month())
	s.appMetrics.transactionCreated()
	writeJSON(w, http.StatusCreated, toTransactionJSON(created))
}

// periodAllowed enforces the selected-period rule: the named period must
// exist in the catalog and the transaction date must fall inside it. An
// empty catalog allows everything, validity is undecidable before any data.
func (s *Server) periodAllowed(r *http.Request, tx core.Transaction, year, month int) bool {
	if tx.Date.Year() != year || tx.Date.Month() != month {
		return false
	}

	catalog, err := s.getPeriods(r.Context())
	if err != nil {
		s.logger.WarnContext(r.Context(), "Period catalog unavailable", log.FieldError, err.Error())
		return true
	}
	if catalog.IsEmpty() {
		return true
	}
	return catalog.Contains(core.Period{Year: year, Month: month})
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	// Find the period before deleting so the right cache entry is dropped.
	var year, month int
	if all, err := s.store.ListAllTransactions(r.Context()); err == nil {
		for _, t := range all {
			if t.ID == id {
				year, month = t.Date.Year(), t.Date.Month()
				break
			}
		}
	}

	if err := s.store.DeleteTransaction(r.Context(), id); err != nil {
		if errors.Is(err, budget.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		s.logger.ErrorContext(r.Context(), "Transaction delete failed",
			log.FieldError, err.Error(), "id", id)
		writeError(w, http.StatusInternalServerError, "failed to delete transaction")
		return
	}

	if year != 0 {
		s.invalidatePeriod(year, month)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListCategories returns the distinct recorded categories, or the
// starter set when nothing is recorded yet.
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.store.ListCategories(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Category list failed", log.FieldError, err.Error())
		writeError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}
	if len(cats) == 0 {
		cats = defaultCategories
	}
	writeJSON(w, http.StatusOK, cats)
}
