package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"budgetd/internal/amqp"
	"budgetd/internal/budget/memory"
	"budgetd/internal/core"
	"budgetd/internal/inference"
	"budgetd/internal/log"
	"budgetd/internal/services"
)

func testLogger() *log.Logger {
	return log.New(log.Config{
		Component: "test",
		Handler:   slog.NewTextHandler(io.Discard, nil),
	})
}

func enqueueGoal(t *testing.T, store *memory.Store) (core.Goal, *amqp.PlanRequestMessage) {
	t.Helper()
	ctx := context.Background()

	goal, err := store.CreateGoal(ctx, core.Goal{
		Name:       "Bike",
		Target:     core.Money{Cents: 60000},
		Current:    core.Money{Cents: 10000},
		TargetDate: core.NewDate(time.Now().Year()+1, 5, 1),
	})
	if err != nil {
		t.Fatalf("CreateGoal() error = %v", err)
	}
	req, err := store.EnqueuePlanRequest(ctx, goal.ID)
	if err != nil {
		t.Fatalf("EnqueuePlanRequest() error = %v", err)
	}
	return goal, amqp.NewPlanRequestMessage(goal.ID, req.ID)
}

func TestHandlePlanMessageSuccess(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(inference.PlanResponse{
			PlanText:      "save steadily",
			MonthlySaving: 50.00,
		})
	}))
	defer srv.Close()

	goals := services.NewGoalService(store, inference.NewClient(srv.URL, 5*time.Second), nil, true, testLogger())
	goal, msg := enqueueGoal(t, store)

	w := NewPlanWorker(store, goals, testLogger())
	if err := w.HandlePlanMessage(msg); err != nil {
		t.Fatalf("HandlePlanMessage() error = %v", err)
	}

	plan, err := store.LatestPlan(ctx, goal.ID)
	if err != nil {
		t.Fatalf("LatestPlan() error = %v", err)
	}
	if plan.PlanText != "save steadily" {
		t.Errorf("PlanText = %q, want the bridge plan", plan.PlanText)
	}

	batch, _ := store.DequeuePlanBatch(ctx, 10)
	if len(batch) != 0 {
		t.Errorf("request should be completed, got pending %+v", batch)
	}
}

func TestHandlePlanMessageBridgeFailureAcks(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	// No bridge: generation fails, but the message must still be acked so
	// the broker does not requeue forever.
	goals := services.NewGoalService(store, nil, nil, true, testLogger())
	_, msg := enqueueGoal(t, store)

	w := NewPlanWorker(store, goals, testLogger())
	if err := w.HandlePlanMessage(msg); err != nil {
		t.Fatalf("HandlePlanMessage() error = %v, want nil so the delivery is acked", err)
	}

	batch, err := store.DequeuePlanBatch(ctx, 10)
	if err != nil {
		t.Fatalf("DequeuePlanBatch() error = %v", err)
	}
	if len(batch) != 1 || batch[0].Attempts != 1 {
		t.Errorf("request should return to pending with one attempt, got %+v", batch)
	}
}

func TestHandlePlanMessageDeletedGoal(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	goals := services.NewGoalService(store, nil, nil, true, testLogger())

	goal, msg := enqueueGoal(t, store)
	if err := store.DeleteGoal(ctx, goal.ID); err != nil {
		t.Fatalf("DeleteGoal() error = %v", err)
	}

	w := NewPlanWorker(store, goals, testLogger())
	if err := w.HandlePlanMessage(msg); err != nil {
		t.Fatalf("HandlePlanMessage() error = %v", err)
	}

	batch, _ := store.DequeuePlanBatch(ctx, 10)
	if len(batch) != 0 {
		t.Errorf("request for a deleted goal should complete, got %+v", batch)
	}
}

func TestHandlePlanMessageUnknownRequest(t *testing.T) {
	store := memory.NewStore()
	goals := services.NewGoalService(store, nil, nil, true, testLogger())

	w := NewPlanWorker(store, goals, testLogger())
	msg := amqp.NewPlanRequestMessage(1, 12345)
	if err := w.HandlePlanMessage(msg); err != nil {
		t.Errorf("HandlePlanMessage() for an already-handled request = %v, want nil", err)
	}
}
