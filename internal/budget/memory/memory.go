// Package memory provides an in-memory Store implementation. It backs the
// default development backend and the handler and service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"budgetd/internal/budget"
	"budgetd/internal/core"
)

type Store struct {
	mu sync.RWMutex

	nextTxID   int64
	nextGoalID int64
	nextPlanID int64
	nextReqID  int64

	transactions []core.Transaction
	income       map[core.Period]core.Income
	goals        map[int64]core.Goal
	plans        []core.SavingsPlan
	planRequests []budget.PlanRequest
}

var _ budget.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		nextTxID:   1,
		nextGoalID: 1,
		nextPlanID: 1,
		nextReqID:  1,
		income:     make(map[core.Period]core.Income),
		goals:      make(map[int64]core.Goal),
	}
}

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = s.nextTxID
	s.nextTxID++
	s.transactions = append(s.transactions, t)
	return t, nil
}

func (s *Store) ListTransactions(_ context.Context, year, month int) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Transaction
	for _, t := range s.transactions {
		if t.Date.Year() == year && t.Date.Month() == month {
			out = append(out, t)
		}
	}
	sortByDateDesc(out)
	return out, nil
}

func (s *Store) ListAllTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Transaction, len(s.transactions))
	copy(out, s.transactions)
	sortByDateDesc(out)
	return out, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.transactions {
		if t.ID == id {
			s.transactions = append(s.transactions[:i], s.transactions[i+1:]...)
			return nil
		}
	}
	return budget.ErrNotFound
}

func (s *Store) ListCategories(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, t := range s.transactions {
		if !seen[t.Category] {
			seen[t.Category] = true
			out = append(out, t.Category)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) AvailablePeriods(_ context.Context) (core.Catalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	months := make(map[int][]int)
	for _, t := range s.transactions {
		p := t.Period()
		found := false
		for _, m := range months[p.Year] {
			if m == p.Month {
				found = true
				break
			}
		}
		if !found {
			months[p.Year] = append(months[p.Year], p.Month)
		}
	}

	catalog := core.Catalog{Months: months}
	for y := range months {
		catalog.Years = append(catalog.Years, y)
		sort.Ints(months[y])
	}
	sort.Ints(catalog.Years)
	return catalog, nil
}

func (s *Store) UpsertIncome(_ context.Context, in core.Income) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.income[core.Period{Year: in.Year, Month: in.Month}] = in
	return nil
}

func (s *Store) GetIncome(_ context.Context, year, month int) (core.Income, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in, ok := s.income[core.Period{Year: year, Month: month}]
	if !ok {
		return core.Income{}, budget.ErrNotFound
	}
	return in, nil
}

func (s *Store) CreateGoal(_ context.Context, g core.Goal) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g.ID = s.nextGoalID
	s.nextGoalID++
	s.goals[g.ID] = g
	return g, nil
}

func (s *Store) GetGoal(_ context.Context, id int64) (core.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.goals[id]
	if !ok {
		return core.Goal{}, budget.ErrNotFound
	}
	return g, nil
}

func (s *Store) ListGoals(_ context.Context) ([]core.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Goal, 0, len(s.goals))
	for _, g := range s.goals {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateGoal(_ context.Context, g core.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.goals[g.ID]; !ok {
		return budget.ErrNotFound
	}
	s.goals[g.ID] = g
	return nil
}

func (s *Store) DeleteGoal(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.goals[id]; !ok {
		return budget.ErrNotFound
	}
	delete(s.goals, id)
	return nil
}

func (s *Store) SetGoalPlan(_ context.Context, id int64, planText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.goals[id]
	if !ok {
		return budget.ErrNotFound
	}
	g.AIPlan = planText
	s.goals[id] = g
	return nil
}

func (s *Store) SavePlan(_ context.Context, p core.SavingsPlan) (core.SavingsPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = s.nextPlanID
	s.nextPlanID++
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.plans = append(s.plans, p)
	return p, nil
}

func (s *Store) LatestPlan(_ context.Context, goalID int64) (core.SavingsPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.plans) - 1; i >= 0; i-- {
		if s.plans[i].GoalID == goalID {
			return s.plans[i], nil
		}
	}
	return core.SavingsPlan{}, budget.ErrNotFound
}

func (s *Store) EnqueuePlanRequest(_ context.Context, goalID int64) (budget.PlanRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := budget.PlanRequest{
		ID:        s.nextReqID,
		GoalID:    goalID,
		Status:    budget.PlanStatusPending,
		CreatedAt: time.Now(),
	}
	s.nextReqID++
	s.planRequests = append(s.planRequests, req)
	return req, nil
}

func (s *Store) DequeuePlanBatch(_ context.Context, limit int) ([]budget.PlanRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []budget.PlanRequest
	for _, r := range s.planRequests {
		if r.Status == budget.PlanStatusPending {
			out = append(out, r)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) MarkPlanProcessing(_ context.Context, id int64) error {
	return s.setRequestStatus(id, budget.PlanStatusProcessing, "")
}

func (s *Store) MarkPlanCompleted(_ context.Context, id int64) error {
	return s.setRequestStatus(id, budget.PlanStatusCompleted, "")
}

func (s *Store) MarkPlanFailed(_ context.Context, id int64, reason string) error {
	return s.setRequestStatus(id, budget.PlanStatusFailed, reason)
}

func (s *Store) IncrementPlanAttempt(_ context.Context, id int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.planRequests {
		if r.ID == id {
			s.planRequests[i].Attempts++
			s.planRequests[i].Status = budget.PlanStatusPending
			s.planRequests[i].LastError = reason
			return nil
		}
	}
	return budget.ErrNotFound
}

func (s *Store) ResetStalePlanRequests(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.planRequests {
		if r.Status == budget.PlanStatusProcessing {
			s.planRequests[i].Status = budget.PlanStatusPending
		}
	}
	return nil
}

func (s *Store) CleanupCompletedPlanRequests(_ context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.planRequests[:0]
	for _, r := range s.planRequests {
		if r.Status == budget.PlanStatusCompleted && r.CreatedAt.Before(before) {
			continue
		}
		kept = append(kept, r)
	}
	s.planRequests = kept
	return nil
}

func (s *Store) setRequestStatus(id int64, status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.planRequests {
		if r.ID == id {
			s.planRequests[i].Status = status
			if reason != "" {
				s.planRequests[i].LastError = reason
			}
			return nil
		}
	}
	return budget.ErrNotFound
}

func sortByDateDesc(txs []core.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].Date.Equal(txs[j].Date.Time) {
			return txs[i].ID > txs[j].ID
		}
		return txs[i].Date.After(txs[j].Date.Time)
	})
}
