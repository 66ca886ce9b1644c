package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"budgetd/internal/budget"
	"budgetd/internal/core"
	"budgetd/internal/log"
)

// handleGetIncome returns the income recorded for a period, or a zero
// amount when none is set. Missing income is not an error for callers.
func (s *Server) handleGetIncome(w http.ResponseWriter, r *http.Request) {
	year, month := parseYearMonth(r)

	in, err := s.store.GetIncome(r.Context(), year, month)
	if errors.Is(err, budget.ErrNotFound) {
		writeJSON(w, http.StatusOK, incomeJSON{Year: year, Month: month})
		return
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Income read failed",
			log.FieldError, err.Error(),
			log.FieldYear, year,
			log.FieldMonth, month)
		writeError(w, http.StatusInternalServerError, "failed to read income")
		return
	}

	writeJSON(w, http.StatusOK, incomeJSON{Year: in.Year, Month: in.Month, Amount: in.Amount.Float()})
}

type upsertIncomeRequest struct {
	Year   int         `json:"year"`
	Month  int         `json:"month"`
	Amount amountField `json:"amount"`
}

// handleUpsertIncome records income for a period, overwriting any existing
// record. There is at most one income row per (year, month).
func (s *Server) handleUpsertIncome(w http.ResponseWriter, r *http.Request) {
	var req upsertIncomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !req.Amount.set {
		writeError(w, http.StatusUnprocessableEntity, "amount is required")
		return
	}

	in := core.Income{
		Year:   req.Year,
		Month:  req.Month,
		Amount: core.Money{Cents: req.Amount.Cents},
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := s.store.UpsertIncome(r.Context(), in); err != nil {
		s.logger.ErrorContext(r.Context(), "Income upsert failed",
			log.FieldError, err.Error(),
			log.FieldYear, in.Year,
			log.FieldMonth, in.Month)
		writeError(w, http.StatusInternalServerError, "failed to save income")
		return
	}

	s.invalidatePeriod(in.Year, in.Month)
	writeJSON(w, http.StatusOK, incomeJSON{Year: in.Year, Month: in.Month, Amount: in.Amount.Float()})
}
