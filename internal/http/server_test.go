package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"budgetd/internal/budget/memory"
	"budgetd/internal/core"
	"budgetd/internal/log"
	"budgetd/internal/services"
)

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()

	logger := log.New(log.Config{
		Component: "test",
		Handler:   slog.NewTextHandler(io.Discard, nil),
	})
	store := memory.NewStore()
	summaries := services.NewSummaryService(store, nil, logger)
	goals := services.NewGoalService(store, nil, nil, true, logger)

	s := NewServer(":0", store, summaries, goals, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s, store
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	s, _ := newTestServer(t)

	if rec := doRequest(t, s, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Errorf("GET /healthz = %d, want 200", rec.Code)
	}
	rec := doRequest(t, s, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /readyz = %d, want 200", rec.Code)
	}
	ready := decodeBody[map[string]any](t, rec)
	if ready["status"] != "ready" {
		t.Errorf("readiness status = %v, want ready", ready["status"])
	}
}

func TestCreateAndListTransactions(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/transactions", map[string]any{
		"date":        "2025-03-10",
		"amount":      45.50,
		"category":    "Food",
		"description": "groceries",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /transactions = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[transactionJSON](t, rec)
	if created.ID == 0 || created.Amount != 45.50 || created.Date != "2025-03-10" {
		t.Errorf("created = %+v", created)
	}

	// String amounts with a decimal comma are accepted too.
	rec = doRequest(t, s, http.MethodPost, "/transactions", map[string]any{
		"date":     "2025-04-02",
		"amount":   "12,34",
		"category": "Transport",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST with string amount = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, "/transactions?year=2025&month=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /transactions = %d", rec.Code)
	}
	listed := decodeBody[[]transactionJSON](t, rec)
	if len(listed) != 1 || listed[0].Category != "Food" {
		t.Errorf("filtered list = %+v, want only March", listed)
	}

	rec = doRequest(t, s, http.MethodGet, "/transactions", nil)
	if all := decodeBody[[]transactionJSON](t, rec); len(all) != 2 {
		t.Errorf("unfiltered list has %d entries, want 2", len(all))
	}
}

func TestCreateTransactionRejections(t *testing.T) {
	s, _ := newTestServer(t)

	future := time.Now().AddDate(0, 0, 7).Format("2006-01-02")
	cases := []struct {
		name string
		body map[string]any
	}{
		{"future date", map[string]any{"date": future, "amount": 10, "category": "Food"}},
		{"zero amount", map[string]any{"date": "2025-03-10", "amount": 0, "category": "Food"}},
		{"negative amount", map[string]any{"date": "2025-03-10", "amount": -5, "category": "Food"}},
		{"missing category", map[string]any{"date": "2025-03-10", "amount": 10}},
		{"bad date", map[string]any{"date": "10/03/2025", "amount": 10, "category": "Food"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/transactions", tc.body)
			if rec.Code != http.StatusUnprocessableEntity && rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 422 or 400, body %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCreateTransactionPeriodGate(t *testing.T) {
	s, _ := newTestServer(t)

	// Seed the catalog with November 2023.
	rec := doRequest(t, s, http.MethodPost, "/transactions", map[string]any{
		"date": "2023-11-05", "amount": 10, "category": "Food",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed transaction = %d", rec.Code)
	}

	// Selected period not in the catalog.
	rec = doRequest(t, s, http.MethodPost, "/transactions", map[string]any{
		"date": "2024-05-10", "amount": 10, "category": "Food",
		"month": 5, "year": 2024,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown period = %d, want 422", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "period not available") {
		t.Errorf("body = %s, want period not available", body)
	}

	// Date outside the selected period.
	rec = doRequest(t, s, http.MethodPost, "/transactions", map[string]any{
		"date": "2023-12-01", "amount": 10, "category": "Food",
		"month": 11, "year": 2023,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("date outside period = %d, want 422", rec.Code)
	}

	// Date inside a catalogued period passes.
	rec = doRequest(t, s, http.MethodPost, "/transactions", map[string]any{
		"date": "2023-11-20", "amount": 10, "category": "Food",
		"month": 11, "year": 2023,
	})
	if rec.Code != http.StatusCreated {
		t.Errorf("valid period = %d, want 201, body %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteTransaction(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/transactions", map[string]any{
		"date": "2025-03-10", "amount": 10, "category": "Food",
	})
	created := decodeBody[transactionJSON](t, rec)

	if rec := doRequest(t, s, http.MethodDelete, fmt.Sprintf("/transactions/%d", created.ID), nil); rec.Code != http.StatusNoContent {
		t.Errorf("DELETE = %d, want 204", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodDelete, fmt.Sprintf("/transactions/%d", created.ID), nil); rec.Code != http.StatusNotFound {
		t.Errorf("second DELETE = %d, want 404", rec.Code)
	}
}

func TestCategoriesStarterSet(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/categories", nil)
	cats := decodeBody[[]string](t, rec)
	if len(cats) != len(defaultCategories) {
		t.Fatalf("empty store categories = %v, want the starter set", cats)
	}

	doRequest(t, s, http.MethodPost, "/transactions", map[string]any{
		"date": "2025-03-10", "amount": 10, "category": "Books",
	})

	rec = doRequest(t, s, http.MethodGet, "/categories", nil)
	cats = decodeBody[[]string](t, rec)
	if len(cats) != 1 || cats[0] != "Books" {
		t.Errorf("categories = %v, want only recorded ones", cats)
	}
}

func TestIncomeEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/income?year=2025&month=3", nil)
	if got := decodeBody[incomeJSON](t, rec); got.Amount != 0 {
		t.Errorf("unset income = %+v, want zero amount", got)
	}

	for _, amount := range []any{1000, 2500.00} {
		rec = doRequest(t, s, http.MethodPost, "/income", map[string]any{
			"year": 2025, "month": 3, "amount": amount,
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("POST /income = %d, body %s", rec.Code, rec.Body.String())
		}
	}

	rec = doRequest(t, s, http.MethodGet, "/income?year=2025&month=3", nil)
	if got := decodeBody[incomeJSON](t, rec); got.Amount != 2500.00 {
		t.Errorf("income after upsert = %v, want 2500 (overwrite)", got.Amount)
	}

	rec = doRequest(t, s, http.MethodPost, "/income", map[string]any{
		"year": 2025, "month": 13, "amount": 100,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("month 13 = %d, want 422", rec.Code)
	}
}

func TestGoalLifecycle(t *testing.T) {
	s, _ := newTestServer(t)
	deadline := time.Now().AddDate(1, 0, 0).Format("2006-01-02")

	rec := doRequest(t, s, http.MethodPost, "/goals", map[string]any{
		"name":           "Vacation",
		"target_amount":  1000.00,
		"current_amount": 250.00,
		"target_date":    deadline,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /goals = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[goalJSON](t, rec)
	if created.Progress != 25.0 {
		t.Errorf("Progress = %v, want 25", created.Progress)
	}

	rec = doRequest(t, s, http.MethodGet, fmt.Sprintf("/goals/%d", created.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /goals/{id} = %d", rec.Code)
	}

	// Partial update keeps unnamed fields.
	rec = doRequest(t, s, http.MethodPut, fmt.Sprintf("/goals/%d", created.ID), map[string]any{
		"current_amount": 500.00,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT /goals/{id} = %d, body %s", rec.Code, rec.Body.String())
	}
	updated := decodeBody[goalJSON](t, rec)
	if updated.Name != "Vacation" || updated.CurrentAmount != 500.00 {
		t.Errorf("updated = %+v, want name kept and amount changed", updated)
	}

	rec = doRequest(t, s, http.MethodGet, "/goals", nil)
	if goals := decodeBody[[]goalJSON](t, rec); len(goals) != 1 {
		t.Errorf("GET /goals returned %d goals, want 1", len(goals))
	}

	if rec := doRequest(t, s, http.MethodDelete, fmt.Sprintf("/goals/%d", created.ID), nil); rec.Code != http.StatusNoContent {
		t.Errorf("DELETE /goals/{id} = %d, want 204", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, fmt.Sprintf("/goals/%d", created.ID), nil); rec.Code != http.StatusNotFound {
		t.Errorf("GET deleted goal = %d, want 404", rec.Code)
	}
}

func TestGoalValidationResponses(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"past deadline", map[string]any{"name": "x", "target_amount": 100, "target_date": "2020-01-01"}},
		{"zero target", map[string]any{"name": "x", "target_amount": 0, "target_date": "2030-01-01"}},
		{"current over target", map[string]any{"name": "x", "target_amount": 100, "current_amount": 200, "target_date": "2030-01-01"}},
		{"empty name", map[string]any{"name": "  ", "target_amount": 100, "target_date": "2030-01-01"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/goals", tc.body)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422, body %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGoalPlanEndpoints(t *testing.T) {
	s, _ := newTestServer(t)
	deadline := time.Now().AddDate(0, 2, 0).Format("2006-01-02")

	rec := doRequest(t, s, http.MethodPost, "/goals", map[string]any{
		"name": "Laptop", "target_amount": 1200.00, "target_date": deadline,
	})
	created := decodeBody[goalJSON](t, rec)

	// No bridge and no broker: regeneration is synchronous via fallback.
	rec = doRequest(t, s, http.MethodPost, fmt.Sprintf("/goals/%d/plan", created.ID), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST plan = %d, body %s", rec.Code, rec.Body.String())
	}
	plan := decodeBody[planJSON](t, rec)
	if plan.PlanText == "" || plan.MonthlySaving <= 0 {
		t.Errorf("plan = %+v", plan)
	}

	rec = doRequest(t, s, http.MethodGet, fmt.Sprintf("/goals/%d/plan", created.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET plan = %d", rec.Code)
	}

	if rec := doRequest(t, s, http.MethodGet, "/goals/999/plan", nil); rec.Code != http.StatusNotFound {
		t.Errorf("GET plan for missing goal = %d, want 404", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodPost, "/goals/999/plan", nil); rec.Code != http.StatusNotFound {
		t.Errorf("POST plan for missing goal = %d, want 404", rec.Code)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	doRequest(t, s, http.MethodPost, "/transactions", map[string]any{
		"date": "2025-03-10", "amount": 100, "category": "Food",
	})
	doRequest(t, s, http.MethodPost, "/income", map[string]any{
		"year": 2025, "month": 3, "amount": 500,
	})

	rec := doRequest(t, s, http.MethodPost, "/summary", map[string]any{"year": 2025, "month": 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /summary = %d, body %s", rec.Code, rec.Body.String())
	}
	summary := decodeBody[map[string]any](t, rec)
	if summary["budget_status"] != "Under Budget" {
		t.Errorf("budget_status = %v", summary["budget_status"])
	}
	if summary["total_spending"] != 100.0 {
		t.Errorf("total_spending = %v, want 100", summary["total_spending"])
	}

	if rec := doRequest(t, s, http.MethodPost, "/summary", map[string]any{"year": 2025, "month": 13}); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("month 13 = %d, want 422", rec.Code)
	}
}

func TestAvailablePeriodsReflectWrites(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/available-periods", nil)
	empty := decodeBody[core.Catalog](t, rec)
	if len(empty.Years) != 0 {
		t.Errorf("empty catalog years = %v", empty.Years)
	}

	doRequest(t, s, http.MethodPost, "/transactions", map[string]any{
		"date": "2025-03-10", "amount": 10, "category": "Food",
	})

	// The write must invalidate the cached catalog.
	rec = doRequest(t, s, http.MethodGet, "/available-periods", nil)
	catalog := decodeBody[core.Catalog](t, rec)
	if len(catalog.Years) != 1 || catalog.Years[0] != 2025 {
		t.Errorf("catalog after write = %+v", catalog)
	}
	if months := catalog.Months[2025]; len(months) != 1 || months[0] != 3 {
		t.Errorf("months = %v, want [3]", catalog.Months)
	}
}

func TestOverviewEndpointAndInvalidation(t *testing.T) {
	s, _ := newTestServer(t)

	doRequest(t, s, http.MethodPost, "/transactions", map[string]any{
		"date": "2025-03-10", "amount": 100, "category": "Food",
	})
	doRequest(t, s, http.MethodPost, "/income", map[string]any{
		"year": 2025, "month": 3, "amount": 500,
	})

	rec := doRequest(t, s, http.MethodGet, "/overview?year=2025&month=3", nil)
	ov := decodeBody[overviewJSON](t, rec)
	if ov.Total != 100.0 || ov.Remaining != 400.0 {
		t.Errorf("overview = %+v", ov)
	}

	// A second write to the same period must not serve the stale overview.
	doRequest(t, s, http.MethodPost, "/transactions", map[string]any{
		"date": "2025-03-11", "amount": 50, "category": "Food",
	})
	rec = doRequest(t, s, http.MethodGet, "/overview?year=2025&month=3", nil)
	ov = decodeBody[overviewJSON](t, rec)
	if ov.Total != 150.0 {
		t.Errorf("overview after write = %+v, want total 150", ov)
	}
}

func TestDashboardShape(t *testing.T) {
	s, _ := newTestServer(t)

	today := time.Now().Format("2006-01-02")
	for i := 0; i < 7; i++ {
		doRequest(t, s, http.MethodPost, "/transactions", map[string]any{
			"date": today, "amount": 10, "category": "Food",
		})
	}
	deadline := time.Now().AddDate(1, 0, 0).Format("2006-01-02")
	doRequest(t, s, http.MethodPost, "/goals", map[string]any{
		"name": "Trip", "target_amount": 100, "current_amount": 50, "target_date": deadline,
	})

	rec := doRequest(t, s, http.MethodGet, "/dashboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /dashboard = %d", rec.Code)
	}
	dash := decodeBody[dashboardJSON](t, rec)

	if len(dash.Expenses.Recent) != 5 {
		t.Errorf("recent = %d entries, want capped at 5", len(dash.Expenses.Recent))
	}
	if dash.Expenses.Total != 70.0 {
		t.Errorf("total = %v, want 70", dash.Expenses.Total)
	}
	if dash.Expenses.Average != 10.0 {
		t.Errorf("average = %v, want 10", dash.Expenses.Average)
	}
	if dash.Expenses.ByCategory["Food"] != 70.0 {
		t.Errorf("by_category = %v", dash.Expenses.ByCategory)
	}
	if len(dash.Goals) != 1 || dash.Goals[0].Progress != 50.0 {
		t.Errorf("goals = %+v", dash.Goals)
	}
}

func TestRateLimitOnWrites(t *testing.T) {
	s, _ := newTestServer(t)

	var lastCode int
	for i := 0; i < 61; i++ {
		rec := doRequest(t, s, http.MethodPost, "/income", map[string]any{
			"year": 2025, "month": 3, "amount": 100,
		})
		lastCode = rec.Code
	}
	if lastCode != http.StatusTooManyRequests {
		t.Errorf("61st write = %d, want 429", lastCode)
	}

	// Reads stay unthrottled.
	if rec := doRequest(t, s, http.MethodGet, "/transactions", nil); rec.Code != http.StatusOK {
		t.Errorf("read after throttle = %d, want 200", rec.Code)
	}
}
