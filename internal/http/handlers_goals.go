package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"budgetd/internal/budget"
	"budgetd/internal/core"
	"budgetd/internal/log"
	"budgetd/internal/services"
)

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.store.ListGoals(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Goal list failed", log.FieldError, err.Error())
		writeError(w, http.StatusInternalServerError, "failed to list goals")
		return
	}

	now := time.Now()
	out := make([]goalJSON, len(goals))
	for i, g := range goals {
		out[i] = toGoalJSON(g, now)
	}
	writeJSON(w, http.StatusOK, out)
}

type createGoalRequest struct {
	Name          string      `json:"name"`
	TargetAmount  amountField `json:"target_amount"`
	CurrentAmount amountField `json:"current_amount"`
	TargetDate    string      `json:"target_date"`
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	date, err := core.ParseDate(req.TargetDate)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid target_date, expected YYYY-MM-DD")
		return
	}

	goal := core.Goal{
		Name:       sanitizeInput(req.Name),
		Target:     core.Money{Cents: req.TargetAmount.Cents},
		Current:    core.Money{Cents: req.CurrentAmount.Cents},
		TargetDate: date,
	}

	created, err := s.goals.Create(r.Context(), goal)
	if err != nil {
		if isGoalValidationError(err) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.ErrorContext(r.Context(), "Goal create failed", log.FieldError, err.Error())
		writeError(w, http.StatusInternalServerError, "failed to save goal")
		return
	}

	s.appMetrics.goalCreated()
	writeJSON(w, http.StatusCreated, toGoalJSON(created, time.Now()))
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid goal id")
		return
	}

	goal, err := s.store.GetGoal(r.Context(), id)
	if errors.Is(err, budget.ErrNotFound) {
		writeError(w, http.StatusNotFound, "goal not found")
		return
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Goal read failed", log.FieldError, err.Error(), log.FieldGoalID, id)
		writeError(w, http.StatusInternalServerError, "failed to read goal")
		return
	}

	writeJSON(w, http.StatusOK, toGoalJSON(goal, time.Now()))
}

type updateGoalRequest struct {
	Name          *string      `json:"name"`
	TargetAmount  *amountField `json:"target_amount"`
	CurrentAmount *amountField `json:"current_amount"`
	TargetDate    *string      `json:"target_date"`
}

// handleUpdateGoal applies a partial update: absent fields keep their
// stored values.
func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid goal id")
		return
	}

	goal, err := s.store.GetGoal(r.Context(), id)
	if errors.Is(err, budget.ErrNotFound) {
		writeError(w, http.StatusNotFound, "goal not found")
		return
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Goal read failed", log.FieldError, err.Error(), log.FieldGoalID, id)
		writeError(w, http.StatusInternalServerError, "failed to read goal")
		return
	}

	var req updateGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.Name != nil {
		goal.Name = sanitizeInput(*req.Name)
	}
	if req.TargetAmount != nil {
		goal.Target = core.Money{Cents: req.TargetAmount.Cents}
	}
	if req.CurrentAmount != nil {
		goal.Current = core.Money{Cents: req.CurrentAmount.Cents}
	}
	if req.TargetDate != nil {
		date, err := core.ParseDate(*req.TargetDate)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid target_date, expected YYYY-MM-DD")
			return
		}
		goal.TargetDate = date
	}

	if err := s.goals.Update(r.Context(), goal); err != nil {
		if isGoalValidationError(err) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if errors.Is(err, budget.ErrNotFound) {
			writeError(w, http.StatusNotFound, "goal not found")
			return
		}
		s.logger.ErrorContext(r.Context(), "Goal update failed", log.FieldError, err.Error(), log.FieldGoalID, id)
		writeError(w, http.StatusInternalServerError, "failed to update goal")
		return
	}

	writeJSON(w, http.StatusOK, toGoalJSON(goal, time.Now()))
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid goal id")
		return
	}

	if err := s.store.DeleteGoal(r.Context(), id); err != nil {
		if errors.Is(err, budget.ErrNotFound) {
			writeError(w, http.StatusNotFound, "goal not found")
			return
		}
		s.logger.ErrorContext(r.Context(), "Goal delete failed", log.FieldError, err.Error(), log.FieldGoalID, id)
		writeError(w, http.StatusInternalServerError, "failed to delete goal")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleGetGoalPlan returns the latest stored savings plan for a goal.
func (s *Server) handleGetGoalPlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid goal id")
		return
	}

	if _, err := s.store.GetGoal(r.Context(), id); errors.Is(err, budget.ErrNotFound) {
		writeError(w, http.StatusNotFound, "goal not found")
		return
	}

	plan, err := s.store.LatestPlan(r.Context(), id)
	if errors.Is(err, budget.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no plan generated yet")
		return
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Plan read failed", log.FieldError, err.Error(), log.FieldGoalID, id)
		writeError(w, http.StatusInternalServerError, "failed to read plan")
		return
	}

	writeJSON(w, http.StatusOK, toPlanJSON(plan))
}

// handleRegeneratePlan requests a fresh plan. With AMQP configured the
// request is queued (202); otherwise the plan is generated inline (201).
func (s *Server) handleRegeneratePlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid goal id")
		return
	}

	plan, queued, err := s.goals.RegeneratePlan(r.Context(), id)
	if errors.Is(err, budget.ErrNotFound) {
		writeError(w, http.StatusNotFound, "goal not found")
		return
	}
	if err != nil && !errors.Is(err, services.ErrNoBridge) {
		s.logger.ErrorContext(r.Context(), "Plan regeneration failed", log.FieldError, err.Error(), log.FieldGoalID, id)
		writeError(w, http.StatusInternalServerError, "failed to generate plan")
		return
	}

	if queued {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":  "queued",
			"goal_id": id,
		})
		return
	}

	writeJSON(w, http.StatusCreated, toPlanJSON(plan))
}

// isGoalValidationError separates field errors (client's fault) from
// storage failures.
func isGoalValidationError(err error) bool {
	for _, sentinel := range []error{
		core.ErrEmptyName,
		core.ErrInvalidAmount,
		core.ErrNegativeAmount,
		core.ErrCurrentExceedsTarget,
		core.ErrPastDeadline,
		core.ErrInvalidDay,
		core.ErrInvalidMonth,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	// Length limits carry descriptive one-off messages.
	return err != nil && (err.Error() == "name too long (max 100 characters)" ||
		err.Error() == "date cannot be zero")
}
