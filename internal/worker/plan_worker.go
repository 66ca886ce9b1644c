// Package worker connects AMQP plan request signals to the durable plan
// queue. The message only carries the goal ID and the durable request ID;
// the row in plan_requests is the source of truth.
package worker

import (
	"context"
	"errors"
	"fmt"

	"budgetd/internal/amqp"
	"budgetd/internal/budget"
	"budgetd/internal/log"
	"budgetd/internal/services"
)

// PlanWorker handles plan request messages delivered over AMQP.
type PlanWorker struct {
	store  budget.Store
	goals  *services.GoalService
	logger *log.Logger
}

func NewPlanWorker(store budget.Store, goals *services.GoalService, logger *log.Logger) *PlanWorker {
	return &PlanWorker{
		store:  store,
		goals:  goals,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandlePlanMessage processes one plan request signal. Bridge failures are
// recorded on the durable request and the message is acked; the poll
// processor owns retries and the eventual fallback, so a dead bridge never
// turns into an AMQP requeue storm.
func (w *PlanWorker) HandlePlanMessage(msg *amqp.PlanRequestMessage) error {
	ctx := context.Background()

	if err := w.store.MarkPlanProcessing(ctx, msg.Version); err != nil {
		if errors.Is(err, budget.ErrNotFound) {
			// Request already handled or cleaned up; nothing to do.
			w.logger.DebugContext(ctx, "Plan request not found, skipping",
				"version", msg.Version,
				log.FieldGoalID, msg.GoalID)
			return nil
		}
		return fmt.Errorf("mark plan request processing: %w", err)
	}

	goal, err := w.store.GetGoal(ctx, msg.GoalID)
	if errors.Is(err, budget.ErrNotFound) {
		w.logger.InfoContext(ctx, "Goal deleted before plan generation",
			log.FieldGoalID, msg.GoalID)
		return w.completeRequest(ctx, msg.Version)
	}
	if err != nil {
		w.recordFailure(ctx, msg, fmt.Errorf("get goal: %w", err))
		return nil
	}

	plan, err := w.goals.BridgePlan(ctx, goal)
	if err != nil {
		w.recordFailure(ctx, msg, err)
		return nil
	}

	if _, err := w.goals.StorePlan(ctx, plan); err != nil {
		w.recordFailure(ctx, msg, fmt.Errorf("store plan: %w", err))
		return nil
	}

	w.logger.InfoContext(ctx, "Generated savings plan from message",
		log.FieldGoalID, msg.GoalID,
		"version", msg.Version)

	return w.completeRequest(ctx, msg.Version)
}

func (w *PlanWorker) completeRequest(ctx context.Context, requestID int64) error {
	if err := w.store.MarkPlanCompleted(ctx, requestID); err != nil && !errors.Is(err, budget.ErrNotFound) {
		return fmt.Errorf("mark plan request completed: %w", err)
	}
	return nil
}

// recordFailure puts the request back into the poll processor's hands.
func (w *PlanWorker) recordFailure(ctx context.Context, msg *amqp.PlanRequestMessage, cause error) {
	w.logger.WarnContext(ctx, "Plan generation from message failed",
		log.FieldGoalID, msg.GoalID,
		"version", msg.Version,
		log.FieldError, cause.Error())

	if err := w.store.IncrementPlanAttempt(ctx, msg.Version, cause.Error()); err != nil {
		w.logger.ErrorContext(ctx, "Failed to record plan attempt",
			"version", msg.Version,
			log.FieldError, err.Error())
	}
}
