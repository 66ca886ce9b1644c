// Package budget defines the persistence ports the HTTP layer and the plan
// pipeline are written against. The SQLite repository and the in-memory
// store both satisfy Store.
package budget

import (
	"context"
	"errors"
	"time"

	"budgetd/internal/core"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Plan request lifecycle states.
const (
	PlanStatusPending    = "pending"
	PlanStatusProcessing = "processing"
	PlanStatusCompleted  = "completed"
	PlanStatusFailed     = "failed"
)

// PlanRequest is one queued plan-generation job.
type PlanRequest struct {
	ID        int64
	GoalID    int64
	Status    string
	Attempts  int64
	LastError string
	CreatedAt time.Time
}

type TransactionStore interface {
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	// ListTransactions returns the transactions of one (year, month).
	ListTransactions(ctx context.Context, year, month int) ([]core.Transaction, error)
	// ListAllTransactions returns every transaction ordered by date descending.
	ListAllTransactions(ctx context.Context) ([]core.Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) error
	ListCategories(ctx context.Context) ([]string, error)
	// AvailablePeriods derives the period catalog from recorded dates.
	AvailablePeriods(ctx context.Context) (core.Catalog, error)
}

type IncomeStore interface {
	// UpsertIncome overwrites the record for (year, month).
	UpsertIncome(ctx context.Context, in core.Income) error
	GetIncome(ctx context.Context, year, month int) (core.Income, error)
}

type GoalStore interface {
	CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error)
	GetGoal(ctx context.Context, id int64) (core.Goal, error)
	ListGoals(ctx context.Context) ([]core.Goal, error)
	UpdateGoal(ctx context.Context, g core.Goal) error
	DeleteGoal(ctx context.Context, id int64) error
	// SetGoalPlan mirrors the latest plan text onto the goal record.
	SetGoalPlan(ctx context.Context, id int64, planText string) error
}

type PlanStore interface {
	SavePlan(ctx context.Context, p core.SavingsPlan) (core.SavingsPlan, error)
	LatestPlan(ctx context.Context, goalID int64) (core.SavingsPlan, error)
}

// PlanQueue is the durable queue backing asynchronous plan generation.
// AMQP messages are only wake-up signals; this queue is the source of truth.
type PlanQueue interface {
	EnqueuePlanRequest(ctx context.Context, goalID int64) (PlanRequest, error)
	DequeuePlanBatch(ctx context.Context, limit int) ([]PlanRequest, error)
	MarkPlanProcessing(ctx context.Context, id int64) error
	MarkPlanCompleted(ctx context.Context, id int64) error
	MarkPlanFailed(ctx context.Context, id int64, reason string) error
	IncrementPlanAttempt(ctx context.Context, id int64, reason string) error
	// ResetStalePlanRequests returns crashed processing rows to pending.
	ResetStalePlanRequests(ctx context.Context) error
	CleanupCompletedPlanRequests(ctx context.Context, before time.Time) error
}

// Store is the full persistence surface of the service.
type Store interface {
	TransactionStore
	IncomeStore
	GoalStore
	PlanStore
	PlanQueue
}
