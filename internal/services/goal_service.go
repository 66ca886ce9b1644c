package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budgetd/internal/budget"
	"budgetd/internal/core"
	"budgetd/internal/inference"
	"budgetd/internal/log"
)

// PlanPublisher signals the plan worker that a plan request was enqueued.
type PlanPublisher interface {
	PublishPlanRequest(ctx context.Context, goalID, version int64) error
}

// ErrNoBridge is returned when a bridge plan is requested but no inference
// bridge is configured.
var ErrNoBridge = errors.New("no inference bridge configured")

// GoalService owns goal validation and the plan-generation flow. Plans are
// generated out-of-band when a publisher is configured; otherwise the
// in-process queue processor picks the request up.
type GoalService struct {
	store       budget.Store
	bridge      *inference.Client
	publisher   PlanPublisher
	strictDates bool
	logger      *log.Logger
}

func NewGoalService(store budget.Store, bridge *inference.Client, publisher PlanPublisher, strictDates bool, logger *log.Logger) *GoalService {
	return &GoalService{
		store:       store,
		bridge:      bridge,
		publisher:   publisher,
		strictDates: strictDates,
		logger:      logger.WithComponent(log.ComponentGoals),
	}
}

// Create validates and stores a goal, then requests a savings plan for it.
// A failing plan request never fails the creation.
func (s *GoalService) Create(ctx context.Context, g core.Goal) (core.Goal, error) {
	// Creation always requires a future target date; the strict-dates
	// setting only relaxes updates.
	if err := g.Validate(time.Now(), true); err != nil {
		return core.Goal{}, err
	}

	created, err := s.store.CreateGoal(ctx, g)
	if err != nil {
		return core.Goal{}, fmt.Errorf("store goal: %w", err)
	}

	s.requestPlan(ctx, created.ID)
	return created, nil
}

// Update validates and stores changed goal fields.
func (s *GoalService) Update(ctx context.Context, g core.Goal) error {
	if err := g.Validate(time.Now(), s.strictDates); err != nil {
		return err
	}
	return s.store.UpdateGoal(ctx, g)
}

// RegeneratePlan requests a fresh plan for the goal. With a publisher the
// request is queued and queued=true is returned; otherwise the plan is
// generated synchronously (bridge first, deterministic fallback).
func (s *GoalService) RegeneratePlan(ctx context.Context, goalID int64) (core.SavingsPlan, bool, error) {
	goal, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return core.SavingsPlan{}, false, err
	}

	if s.publisher != nil {
		s.requestPlan(ctx, goal.ID)
		return core.SavingsPlan{}, true, nil
	}

	plan, err := s.GeneratePlan(ctx, goal)
	if err != nil {
		return core.SavingsPlan{}, false, err
	}
	stored, err := s.StorePlan(ctx, plan)
	if err != nil {
		return core.SavingsPlan{}, false, err
	}
	return stored, false, nil
}

// ProcessGoal generates and stores a plan for the goal, bridge first with
// deterministic fallback. Used by the queue processor's synchronous path.
func (s *GoalService) ProcessGoal(ctx context.Context, goalID int64) error {
	goal, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return err
	}
	plan, err := s.GeneratePlan(ctx, goal)
	if err != nil {
		return err
	}
	_, err = s.StorePlan(ctx, plan)
	return err
}

// GeneratePlan asks the bridge for a plan and falls back to the
// deterministic plan when the bridge is missing or fails.
func (s *GoalService) GeneratePlan(ctx context.Context, g core.Goal) (core.SavingsPlan, error) {
	plan, err := s.BridgePlan(ctx, g)
	if err == nil {
		return plan, nil
	}
	if !errors.Is(err, ErrNoBridge) {
		s.logger.WarnContext(ctx, "Bridge plan failed, using fallback",
			log.FieldError, err.Error(),
			log.FieldGoalID, g.ID)
	}
	return s.FallbackPlan(g, time.Now())
}

// BridgePlan asks the inference bridge for a plan. It errors when the
// bridge is not configured or the call fails; callers decide on fallback.
func (s *GoalService) BridgePlan(ctx context.Context, g core.Goal) (core.SavingsPlan, error) {
	if s.bridge == nil {
		return core.SavingsPlan{}, ErrNoBridge
	}

	txs, income, avgSpending, err := s.planContext(ctx)
	if err != nil {
		return core.SavingsPlan{}, err
	}

	cctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	resp, err := s.bridge.GoalPlan(cctx, inference.PlanRequest{
		GoalID:             g.ID,
		GoalDescription:    g.Name,
		TargetAmount:       g.Target.Float(),
		CurrentAmount:      g.Current.Float(),
		Deadline:           g.TargetDate.String(),
		UserIncome:         income.Float(),
		AvgMonthlySpending: avgSpending.Float(),
		Transactions:       toTransactionRecords(txs),
	})
	if err != nil {
		return core.SavingsPlan{}, err
	}

	return core.SavingsPlan{
		GoalID:          g.ID,
		PlanText:        resp.PlanText,
		MonthlySaving:   core.FromFloat(resp.MonthlySaving),
		Recommendations: resp.Recommendations,
	}, nil
}

// FallbackPlan builds the deterministic plan: spread the remainder across
// the 30-day months left until the deadline.
func (s *GoalService) FallbackPlan(g core.Goal, now time.Time) (core.SavingsPlan, error) {
	projection, err := core.ProjectGoal(g, now)
	if err != nil {
		return core.SavingsPlan{}, err
	}

	var text string
	if projection.Overdue {
		text = fmt.Sprintf("The target date for %q has passed. Saving the remaining %s now would complete the goal.",
			g.Name, projection.RequiredMonthlySaving.String())
	} else {
		text = fmt.Sprintf("Save %s per month to reach %s for %q by %s (%s left).",
			projection.RequiredMonthlySaving.String(), g.Target.String(), g.Name,
			g.TargetDate.String(), projection.TimeRemaining)
	}

	return core.SavingsPlan{
		GoalID:        g.ID,
		PlanText:      text,
		MonthlySaving: projection.RequiredMonthlySaving,
		Recommendations: []string{
			"Set the monthly amount aside right after income arrives",
			"Review subscriptions and recurring charges for savings",
			"Put unexpected windfalls toward the goal",
		},
	}, nil
}

// StorePlan persists the plan and mirrors its text onto the goal record.
func (s *GoalService) StorePlan(ctx context.Context, plan core.SavingsPlan) (core.SavingsPlan, error) {
	stored, err := s.store.SavePlan(ctx, plan)
	if err != nil {
		return core.SavingsPlan{}, fmt.Errorf("save plan: %w", err)
	}
	if err := s.store.SetGoalPlan(ctx, plan.GoalID, plan.PlanText); err != nil {
		s.logger.WarnContext(ctx, "Failed to mirror plan text onto goal",
			log.FieldError, err.Error(),
			log.FieldGoalID, plan.GoalID)
	}
	return stored, nil
}

// requestPlan enqueues a durable plan request and signals the worker.
// Failures are logged only; the originating request must not fail.
func (s *GoalService) requestPlan(ctx context.Context, goalID int64) {
	req, err := s.store.EnqueuePlanRequest(ctx, goalID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to enqueue plan request",
			log.FieldError, err.Error(),
			log.FieldGoalID, goalID)
		return
	}

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishPlanRequest(ctx, goalID, req.ID); err != nil {
		// The durable request stays pending; the poll path picks it up.
		s.logger.WarnContext(ctx, "Failed to publish plan request",
			log.FieldError, err.Error(),
			log.FieldOperation, log.OpPublish,
			log.FieldGoalID, goalID)
	}
}

// planContext gathers the spending context sent to the bridge: the last
// three months of transactions, the latest recorded income and the average
// monthly spending across recorded periods.
func (s *GoalService) planContext(ctx context.Context) ([]core.Transaction, core.Money, core.Money, error) {
	all, err := s.store.ListAllTransactions(ctx)
	if err != nil {
		return nil, core.Money{}, core.Money{}, fmt.Errorf("list transactions: %w", err)
	}

	cutoff := time.Now().AddDate(0, -3, 0)
	var recent []core.Transaction
	periods := make(map[core.Period]bool)
	var total int64
	for _, t := range all {
		total += t.Amount.Cents
		periods[t.Period()] = true
		if t.Date.After(cutoff) {
			recent = append(recent, t)
		}
	}

	months := int64(len(periods))
	if months < 1 {
		months = 1
	}
	avg := core.Money{Cents: total / months}

	income := core.Money{}
	if catalog, err := s.store.AvailablePeriods(ctx); err == nil {
		if latest, ok := catalog.Latest(); ok {
			if in, err := s.store.GetIncome(ctx, latest.Year, latest.Month); err == nil {
				income = in.Amount
			}
		}
	}

	return recent, income, avg, nil
}
