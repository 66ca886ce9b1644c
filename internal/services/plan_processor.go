package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"budgetd/internal/budget"
	"budgetd/internal/log"
)

// PlanProcessorConfig holds configuration for the plan processor
type PlanProcessorConfig struct {
	// PollInterval is how often to check for pending requests (default: 15s)
	PollInterval time.Duration

	// BatchSize is the max number of requests to process per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the maximum retry attempts before falling back (default: 3)
	MaxRetries int

	// CleanupInterval is how often to clean up completed requests (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old completed requests must be before cleanup (default: 24h)
	CleanupAge time.Duration
}

// DefaultPlanProcessorConfig returns sensible defaults
func DefaultPlanProcessorConfig() PlanProcessorConfig {
	return PlanProcessorConfig{
		PollInterval:    15 * time.Second,
		BatchSize:       10,
		MaxRetries:      3,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

// PlanProcessor drains the durable plan request queue. It is the backup
// path for lost AMQP messages and the only path when no broker is
// configured. After MaxRetries failed bridge calls it stores the
// deterministic fallback plan so every goal ends up with a plan.
type PlanProcessor struct {
	store  budget.Store
	goals  *GoalService
	config PlanProcessorConfig
	logger *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewPlanProcessor(store budget.Store, goals *GoalService, config PlanProcessorConfig, logger *log.Logger) *PlanProcessor {
	return &PlanProcessor{
		store:  store,
		goals:  goals,
		config: config,
		logger: logger.WithComponent(log.ComponentPlans),
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *PlanProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("plan processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	// Requests stuck in processing from a previous crash go back to pending.
	if err := p.store.ResetStalePlanRequests(ctx); err != nil {
		p.logger.WarnContext(ctx, "Failed to reset stale plan requests", log.FieldError, err.Error())
	}

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Plan processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *PlanProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.InfoContext(ctx, "Plan processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Plan processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *PlanProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *PlanProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	// Process immediately on startup
	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.ProcessBatch(ctx)
		case <-cleanupTicker.C:
			p.cleanupCompleted(ctx)
		}
	}
}

// ProcessBatch processes a single batch of pending plan requests.
func (p *PlanProcessor) ProcessBatch(ctx context.Context) {
	requests, err := p.store.DequeuePlanBatch(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to dequeue plan batch", log.FieldError, err.Error())
		return
	}

	if len(requests) == 0 {
		return
	}

	p.logger.DebugContext(ctx, "Processing plan batch", "count", len(requests))

	for _, req := range requests {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := p.store.MarkPlanProcessing(ctx, req.ID); err != nil {
			p.logger.ErrorContext(ctx, "Failed to mark plan request as processing",
				"id", req.ID, log.FieldError, err.Error())
			continue
		}

		if err := p.processRequest(ctx, req); err != nil {
			p.handleFailure(ctx, req, err)
		} else {
			if err := p.store.MarkPlanCompleted(ctx, req.ID); err != nil {
				p.logger.ErrorContext(ctx, "Failed to mark plan request complete",
					"id", req.ID, log.FieldError, err.Error())
			}
		}
	}
}

func (p *PlanProcessor) processRequest(ctx context.Context, req budget.PlanRequest) error {
	goal, err := p.store.GetGoal(ctx, req.GoalID)
	if errors.Is(err, budget.ErrNotFound) {
		// Goal deleted while queued; nothing to generate.
		p.logger.InfoContext(ctx, "Skipping plan request for deleted goal",
			log.FieldGoalID, req.GoalID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get goal %d: %w", req.GoalID, err)
	}

	plan, err := p.goals.BridgePlan(ctx, goal)
	if err != nil {
		return fmt.Errorf("bridge plan for goal %d: %w", req.GoalID, err)
	}

	if _, err := p.goals.StorePlan(ctx, plan); err != nil {
		return fmt.Errorf("store plan for goal %d: %w", req.GoalID, err)
	}

	p.logger.InfoContext(ctx, "Generated savings plan",
		log.FieldOperation, log.OpGenerate,
		log.FieldGoalID, req.GoalID,
		log.FieldAttempts, req.Attempts+1)

	return nil
}

// handleFailure retries up to MaxRetries, then stores the deterministic
// fallback plan and marks the request failed.
func (p *PlanProcessor) handleFailure(ctx context.Context, req budget.PlanRequest, processErr error) {
	p.logger.WarnContext(ctx, "Plan generation failed",
		"id", req.ID,
		log.FieldGoalID, req.GoalID,
		log.FieldAttempts, req.Attempts+1,
		log.FieldError, processErr.Error())

	if req.Attempts+1 < int64(p.config.MaxRetries) {
		if err := p.store.IncrementPlanAttempt(ctx, req.ID, processErr.Error()); err != nil {
			p.logger.ErrorContext(ctx, "Failed to increment plan attempt",
				"id", req.ID, log.FieldError, err.Error())
		}
		return
	}

	// Retries exhausted: the goal still gets the deterministic plan.
	if goal, err := p.store.GetGoal(ctx, req.GoalID); err == nil {
		if plan, err := p.goals.FallbackPlan(goal, time.Now()); err == nil {
			if _, err := p.goals.StorePlan(ctx, plan); err != nil {
				p.logger.ErrorContext(ctx, "Failed to store fallback plan",
					log.FieldGoalID, req.GoalID, log.FieldError, err.Error())
			}
		}
	}

	if err := p.store.MarkPlanFailed(ctx, req.ID, processErr.Error()); err != nil {
		p.logger.ErrorContext(ctx, "Failed to mark plan request failed",
			"id", req.ID, log.FieldError, err.Error())
	}

	p.logger.ErrorContext(ctx, "Plan request failed permanently after max retries",
		"id", req.ID,
		log.FieldGoalID, req.GoalID,
		log.FieldAttempts, req.Attempts+1)
}

func (p *PlanProcessor) cleanupCompleted(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupAge)
	if err := p.store.CleanupCompletedPlanRequests(ctx, cutoff); err != nil {
		p.logger.ErrorContext(ctx, "Failed to cleanup completed plan requests", log.FieldError, err.Error())
	}
}
