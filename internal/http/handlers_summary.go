package http

import (
	"encoding/json"
	"net/http"

	"budgetd/internal/log"
)

type summaryRequest struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// handleSummary serves the monthly narrative summary. The service prefers
// the inference bridge and falls back locally, so this never 502s on a
// bridge outage.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Month < 1 || req.Month > 12 {
		writeError(w, http.StatusUnprocessableEntity, "month must be between 1 and 12")
		return
	}
	if req.Year < 1970 || req.Year > 9999 {
		writeError(w, http.StatusUnprocessableEntity, "invalid year")
		return
	}

	resp, err := s.summaries.MonthlySummary(r.Context(), req.Year, req.Month)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Summary failed",
			log.FieldError, err.Error(),
			log.FieldYear, req.Year,
			log.FieldMonth, req.Month)
		writeError(w, http.StatusInternalServerError, "failed to generate summary")
		return
	}

	s.appMetrics.summaryServed()
	writeJSON(w, http.StatusOK, resp)
}

// handleMonthOverview serves the cached aggregate for one period.
func (s *Server) handleMonthOverview(w http.ResponseWriter, r *http.Request) {
	year, month := parseYearMonth(r)
	if month < 1 || month > 12 {
		writeError(w, http.StatusUnprocessableEntity, "month must be between 1 and 12")
		return
	}

	ov, err := s.getOverview(r.Context(), year, month)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Overview failed",
			log.FieldError, err.Error(),
			log.FieldYear, year,
			log.FieldMonth, month)
		writeError(w, http.StatusInternalServerError, "failed to build overview")
		return
	}

	writeJSON(w, http.StatusOK, toOverviewJSON(ov))
}

// handleAvailablePeriods serves the period catalog derived from recorded
// transaction dates.
func (s *Server) handleAvailablePeriods(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.getPeriods(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Period catalog failed", log.FieldError, err.Error())
		writeError(w, http.StatusInternalServerError, "failed to list periods")
		return
	}

	// Serve stable JSON even when nothing is recorded yet.
	if catalog.Years == nil {
		catalog.Years = []int{}
	}
	if catalog.Months == nil {
		catalog.Months = map[int][]int{}
	}
	writeJSON(w, http.StatusOK, catalog)
}
