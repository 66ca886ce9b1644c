package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"budgetd/internal/budget"
	"budgetd/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "budgetd.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestTransactionRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	created, err := repo.CreateTransaction(ctx, core.Transaction{
		Date:        core.NewDate(2025, 3, 10),
		Amount:      core.Money{Cents: 4500},
		Category:    "Groceries",
		Description: "weekly shop",
	})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	if created.ID == 0 {
		t.Fatal("CreateTransaction() should assign an ID")
	}

	listed, err := repo.ListTransactions(ctx, 2025, 3)
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("ListTransactions() returned %d rows, want 1", len(listed))
	}
	got := listed[0]
	if got.Date.String() != "2025-03-10" || got.Amount.Cents != 4500 ||
		got.Category != "Groceries" || got.Description != "weekly shop" {
		t.Errorf("round trip mismatch: %+v", got)
	}

	other, err := repo.ListTransactions(ctx, 2025, 4)
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(other) != 0 {
		t.Errorf("ListTransactions for another month returned %d rows, want 0", len(other))
	}

	if err := repo.DeleteTransaction(ctx, created.ID); err != nil {
		t.Fatalf("DeleteTransaction() error = %v", err)
	}
	if err := repo.DeleteTransaction(ctx, created.ID); !errors.Is(err, budget.ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestAvailablePeriodsAndCategories(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	for _, tx := range []core.Transaction{
		{Date: core.NewDate(2024, 2, 1), Amount: core.Money{Cents: 100}, Category: "Transport"},
		{Date: core.NewDate(2023, 11, 9), Amount: core.Money{Cents: 100}, Category: "Groceries"},
		{Date: core.NewDate(2023, 12, 5), Amount: core.Money{Cents: 100}, Category: "Groceries"},
		{Date: core.NewDate(2024, 1, 20), Amount: core.Money{Cents: 100}, Category: "Rent"},
	} {
		if _, err := repo.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("CreateTransaction() error = %v", err)
		}
	}

	catalog, err := repo.AvailablePeriods(ctx)
	if err != nil {
		t.Fatalf("AvailablePeriods() error = %v", err)
	}
	if !reflect.DeepEqual(catalog.Years, []int{2023, 2024}) {
		t.Errorf("Years = %v, want [2023 2024]", catalog.Years)
	}
	if !reflect.DeepEqual(catalog.Months[2023], []int{11, 12}) {
		t.Errorf("Months[2023] = %v, want [11 12]", catalog.Months[2023])
	}
	if !reflect.DeepEqual(catalog.Months[2024], []int{1, 2}) {
		t.Errorf("Months[2024] = %v, want [1 2]", catalog.Months[2024])
	}

	cats, err := repo.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}
	if !reflect.DeepEqual(cats, []string{"Groceries", "Rent", "Transport"}) {
		t.Errorf("ListCategories() = %v, want distinct sorted categories", cats)
	}
}

func TestIncomeUpsert(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if _, err := repo.GetIncome(ctx, 2025, 3); !errors.Is(err, budget.ErrNotFound) {
		t.Errorf("GetIncome on empty table = %v, want ErrNotFound", err)
	}

	if err := repo.UpsertIncome(ctx, core.Income{Year: 2025, Month: 3, Amount: core.Money{Cents: 100000}}); err != nil {
		t.Fatalf("UpsertIncome() error = %v", err)
	}
	if err := repo.UpsertIncome(ctx, core.Income{Year: 2025, Month: 3, Amount: core.Money{Cents: 250000}}); err != nil {
		t.Fatalf("UpsertIncome() error = %v", err)
	}

	in, err := repo.GetIncome(ctx, 2025, 3)
	if err != nil {
		t.Fatalf("GetIncome() error = %v", err)
	}
	if in.Amount.Cents != 250000 {
		t.Errorf("Amount = %d cents, want 250000 (overwrite, not append)", in.Amount.Cents)
	}
}

func TestGoalCRUDAndPlans(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	g, err := repo.CreateGoal(ctx, core.Goal{
		Name:       "Vacation",
		Target:     core.Money{Cents: 80000},
		Current:    core.Money{Cents: 20000},
		TargetDate: core.NewDate(2026, 6, 1),
	})
	if err != nil {
		t.Fatalf("CreateGoal() error = %v", err)
	}

	g.Current = core.Money{Cents: 30000}
	if err := repo.UpdateGoal(ctx, g); err != nil {
		t.Fatalf("UpdateGoal() error = %v", err)
	}

	got, err := repo.GetGoal(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGoal() error = %v", err)
	}
	if got.Current.Cents != 30000 || got.TargetDate.String() != "2026-06-01" {
		t.Errorf("GetGoal() = %+v, want updated goal", got)
	}

	if _, err := repo.LatestPlan(ctx, g.ID); !errors.Is(err, budget.ErrNotFound) {
		t.Errorf("LatestPlan with no rows = %v, want ErrNotFound", err)
	}

	for _, text := range []string{"first", "second"} {
		if _, err := repo.SavePlan(ctx, core.SavingsPlan{
			GoalID:          g.ID,
			PlanText:        text,
			MonthlySaving:   core.Money{Cents: 25000},
			Recommendations: []string{"skip takeout", "sell unused gear"},
		}); err != nil {
			t.Fatalf("SavePlan() error = %v", err)
		}
	}

	plan, err := repo.LatestPlan(ctx, g.ID)
	if err != nil {
		t.Fatalf("LatestPlan() error = %v", err)
	}
	if plan.PlanText != "second" {
		t.Errorf("PlanText = %q, want the latest plan", plan.PlanText)
	}
	if len(plan.Recommendations) != 2 {
		t.Errorf("Recommendations = %v, want 2 entries", plan.Recommendations)
	}

	if err := repo.SetGoalPlan(ctx, g.ID, "second"); err != nil {
		t.Fatalf("SetGoalPlan() error = %v", err)
	}

	if err := repo.DeleteGoal(ctx, g.ID); err != nil {
		t.Fatalf("DeleteGoal() error = %v", err)
	}
	if _, err := repo.GetGoal(ctx, g.ID); !errors.Is(err, budget.ErrNotFound) {
		t.Errorf("GetGoal after delete = %v, want ErrNotFound", err)
	}
}

func TestPlanQueue(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	req, err := repo.EnqueuePlanRequest(ctx, 7)
	if err != nil {
		t.Fatalf("EnqueuePlanRequest() error = %v", err)
	}

	batch, err := repo.DequeuePlanBatch(ctx, 10)
	if err != nil {
		t.Fatalf("DequeuePlanBatch() error = %v", err)
	}
	if len(batch) != 1 || batch[0].GoalID != 7 {
		t.Fatalf("DequeuePlanBatch() = %+v, want one pending request for goal 7", batch)
	}

	if err := repo.MarkPlanProcessing(ctx, req.ID); err != nil {
		t.Fatalf("MarkPlanProcessing() error = %v", err)
	}
	batch, _ = repo.DequeuePlanBatch(ctx, 10)
	if len(batch) != 0 {
		t.Error("processing request should not be dequeued")
	}

	if err := repo.ResetStalePlanRequests(ctx); err != nil {
		t.Fatalf("ResetStalePlanRequests() error = %v", err)
	}
	batch, _ = repo.DequeuePlanBatch(ctx, 10)
	if len(batch) != 1 {
		t.Error("stale processing request should return to pending")
	}

	if err := repo.IncrementPlanAttempt(ctx, req.ID, "bridge down"); err != nil {
		t.Fatalf("IncrementPlanAttempt() error = %v", err)
	}
	batch, _ = repo.DequeuePlanBatch(ctx, 10)
	if len(batch) != 1 || batch[0].Attempts != 1 || batch[0].LastError != "bridge down" {
		t.Errorf("after retry batch = %+v", batch)
	}

	if err := repo.MarkPlanFailed(ctx, req.ID, "gave up"); err != nil {
		t.Fatalf("MarkPlanFailed() error = %v", err)
	}
	batch, _ = repo.DequeuePlanBatch(ctx, 10)
	if len(batch) != 0 {
		t.Error("failed request should not be dequeued")
	}
}
