package http

import (
	"time"

	"budgetd/internal/core"
)

// JSON shapes served by the API. Amounts are decimal numbers at this
// boundary and integer cents everywhere inside.

type transactionJSON struct {
	ID          int64   `json:"id"`
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description,omitempty"`
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:          t.ID,
		Date:        t.Date.String(),
		Amount:      t.Amount.Float(),
		Category:    t.Category,
		Description: t.Description,
	}
}

func toTransactionListJSON(txs []core.Transaction) []transactionJSON {
	out := make([]transactionJSON, len(txs))
	for i, t := range txs {
		out[i] = toTransactionJSON(t)
	}
	return out
}

type incomeJSON struct {
	Year   int     `json:"year"`
	Month  int     `json:"month"`
	Amount float64 `json:"amount"`
}

type goalJSON struct {
	ID                    int64   `json:"id"`
	Name                  string  `json:"name"`
	TargetAmount          float64 `json:"target_amount"`
	CurrentAmount         float64 `json:"current_amount"`
	TargetDate            string  `json:"target_date"`
	AIPlan                string  `json:"ai_plan,omitempty"`
	Progress              float64 `json:"progress"`
	TimeRemaining         string  `json:"time_remaining,omitempty"`
	RequiredMonthlySaving float64 `json:"required_monthly_saving,omitempty"`
	Overdue               bool    `json:"overdue,omitempty"`
}

func toGoalJSON(g core.Goal, now time.Time) goalJSON {
	out := goalJSON{
		ID:            g.ID,
		Name:          g.Name,
		TargetAmount:  g.Target.Float(),
		CurrentAmount: g.Current.Float(),
		TargetDate:    g.TargetDate.String(),
		AIPlan:        g.AIPlan,
	}
	if p, err := core.ProjectGoal(g, now); err == nil {
		out.Progress = p.ProgressPercent
		out.TimeRemaining = p.TimeRemaining
		out.RequiredMonthlySaving = p.RequiredMonthlySaving.Float()
		out.Overdue = p.Overdue
	}
	return out
}

type planJSON struct {
	ID              int64    `json:"id"`
	GoalID          int64    `json:"goal_id"`
	PlanText        string   `json:"plan_text"`
	MonthlySaving   float64  `json:"monthly_saving"`
	Recommendations []string `json:"recommendations"`
	CreatedAt       string   `json:"created_at,omitempty"`
}

func toPlanJSON(p core.SavingsPlan) planJSON {
	out := planJSON{
		ID:              p.ID,
		GoalID:          p.GoalID,
		PlanText:        p.PlanText,
		MonthlySaving:   p.MonthlySaving.Float(),
		Recommendations: p.Recommendations,
	}
	if !p.CreatedAt.IsZero() {
		out.CreatedAt = p.CreatedAt.Format(time.RFC3339)
	}
	return out
}

type overviewJSON struct {
	Year       int                `json:"year"`
	Month      int                `json:"month"`
	Total      float64            `json:"total"`
	Income     float64            `json:"income"`
	Remaining  float64            `json:"remaining"`
	ByCategory map[string]float64 `json:"by_category"`
}

func toOverviewJSON(ov core.MonthOverview) overviewJSON {
	byCategory := make(map[string]float64, len(ov.ByCategory))
	for _, ca := range ov.ByCategory {
		byCategory[ca.Name] = ca.Amount.Float()
	}
	return overviewJSON{
		Year:       ov.Year,
		Month:      ov.Month,
		Total:      ov.Total.Float(),
		Income:     ov.Income.Float(),
		Remaining:  ov.Remaining.Float(),
		ByCategory: byCategory,
	}
}
