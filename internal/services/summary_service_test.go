package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"budgetd/internal/budget/memory"
	"budgetd/internal/core"
	"budgetd/internal/inference"
	"budgetd/internal/log"
)

func testLogger() *log.Logger {
	return log.New(log.Config{
		Component: "test",
		Handler:   slog.NewTextHandler(io.Discard, nil),
	})
}

func seedMarch(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()
	for _, tx := range []core.Transaction{
		{Date: core.NewDate(2025, 3, 2), Amount: core.Money{Cents: 4500}, Category: "Groceries"},
		{Date: core.NewDate(2025, 3, 5), Amount: core.Money{Cents: 120000}, Category: "Rent"},
		{Date: core.NewDate(2025, 3, 9), Amount: core.Money{Cents: 2300}, Category: "Groceries"},
	} {
		if _, err := store.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("CreateTransaction() error = %v", err)
		}
	}
	if err := store.UpsertIncome(ctx, core.Income{Year: 2025, Month: 3, Amount: core.Money{Cents: 250000}}); err != nil {
		t.Fatalf("UpsertIncome() error = %v", err)
	}
}

func TestMonthlySummaryLocalFallback(t *testing.T) {
	store := memory.NewStore()
	seedMarch(t, store)

	svc := NewSummaryService(store, nil, testLogger())
	resp, err := svc.MonthlySummary(context.Background(), 2025, 3)
	if err != nil {
		t.Fatalf("MonthlySummary() error = %v", err)
	}

	if resp.TotalSpending != 1268.00 {
		t.Errorf("TotalSpending = %v, want 1268", resp.TotalSpending)
	}
	if resp.BudgetStatus != "Under Budget" {
		t.Errorf("BudgetStatus = %q, want \"Under Budget\"", resp.BudgetStatus)
	}
	if !reflect.DeepEqual(resp.TopCategories, []string{"Rent", "Groceries"}) {
		t.Errorf("TopCategories = %v, want [Rent Groceries]", resp.TopCategories)
	}
	if resp.Summary == "" {
		t.Error("fallback summary text should not be empty")
	}
}

func TestMonthlySummaryOverBudget(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	if _, err := store.CreateTransaction(ctx, core.Transaction{
		Date: core.NewDate(2025, 3, 5), Amount: core.Money{Cents: 120000}, Category: "Rent",
	}); err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	if err := store.UpsertIncome(ctx, core.Income{Year: 2025, Month: 3, Amount: core.Money{Cents: 100000}}); err != nil {
		t.Fatalf("UpsertIncome() error = %v", err)
	}

	svc := NewSummaryService(store, nil, testLogger())
	resp, err := svc.MonthlySummary(ctx, 2025, 3)
	if err != nil {
		t.Fatalf("MonthlySummary() error = %v", err)
	}
	if resp.BudgetStatus != "Over Budget" {
		t.Errorf("BudgetStatus = %q, want \"Over Budget\"", resp.BudgetStatus)
	}
}

func TestMonthlySummaryUsesBridge(t *testing.T) {
	store := memory.NewStore()
	seedMarch(t, store)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req inference.SummaryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode bridge request: %v", err)
		}
		if req.Income != 2500.00 {
			t.Errorf("bridge income = %v, want 2500", req.Income)
		}
		if len(req.Transactions) != 3 {
			t.Errorf("bridge received %d transactions, want 3", len(req.Transactions))
		}
		json.NewEncoder(w).Encode(inference.SummaryResponse{
			Summary:      "AI says hello.",
			BudgetStatus: "Under Budget",
		})
	}))
	defer srv.Close()

	svc := NewSummaryService(store, inference.NewClient(srv.URL, 5*time.Second), testLogger())
	resp, err := svc.MonthlySummary(context.Background(), 2025, 3)
	if err != nil {
		t.Fatalf("MonthlySummary() error = %v", err)
	}
	if resp.Summary != "AI says hello." {
		t.Errorf("Summary = %q, want the bridge response", resp.Summary)
	}
}

func TestMonthlySummaryBridgeFailureFallsBack(t *testing.T) {
	store := memory.NewStore()
	seedMarch(t, store)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := NewSummaryService(store, inference.NewClient(srv.URL, 5*time.Second), testLogger())
	resp, err := svc.MonthlySummary(context.Background(), 2025, 3)
	if err != nil {
		t.Fatalf("MonthlySummary() should fall back, got error %v", err)
	}
	if resp.TotalSpending != 1268.00 {
		t.Errorf("fallback TotalSpending = %v, want 1268", resp.TotalSpending)
	}
}
