package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrZeroTarget is returned when a projection is requested for a goal whose
// target amount is not positive.
var ErrZeroTarget = errors.New("goal target amount must be positive")

// GoalProjection describes how a goal is tracking at a point in time.
type GoalProjection struct {
	ProgressPercent       float64
	TimeRemaining         string
	RequiredMonthlySaving Money
	Overdue               bool
}

// ProjectGoal computes progress and the saving pace needed to hit the goal
// by its target date.
//
// Months are approximated as 30 days on purpose: the rendered countdown
// ("N months, D days") and the required saving must agree with each other,
// and both divide the remaining days by 30.
func ProjectGoal(g Goal, now time.Time) (GoalProjection, error) {
	if g.Target.Cents <= 0 {
		return GoalProjection{}, ErrZeroTarget
	}

	p := GoalProjection{
		ProgressPercent: progressPercent(g.Current.Cents, g.Target.Cents),
	}

	remaining := g.Target.Cents - g.Current.Cents
	if remaining < 0 {
		remaining = 0
	}

	deadline := g.TargetDate.Time
	if !deadline.After(now) {
		p.Overdue = true
		p.TimeRemaining = "Overdue"
		p.RequiredMonthlySaving = Money{Cents: remaining}
		return p, nil
	}

	days := int(deadline.Sub(now).Hours() / 24)
	months := monthsBetween(now, deadline)
	p.TimeRemaining = formatTimeRemaining(months, days%30)

	monthsLeft := (days + 29) / 30
	if monthsLeft < 1 {
		monthsLeft = 1
	}
	p.RequiredMonthlySaving = Money{Cents: divideRound(remaining, int64(monthsLeft))}

	return p, nil
}

func progressPercent(current, target int64) float64 {
	pct := float64(current) / float64(target) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// monthsBetween counts whole calendar months from a to b (a before b).
func monthsBetween(a, b time.Time) int {
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if months <= 0 {
		return 0
	}
	if a.AddDate(0, months, 0).After(b) {
		months--
	}
	return months
}

func formatTimeRemaining(months, days int) string {
	if months <= 0 {
		return pluralize(days, "day")
	}
	if days > 0 {
		return pluralize(months, "month") + ", " + pluralize(days, "day")
	}
	return pluralize(months, "month")
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// divideRound divides cents by n with half-up rounding.
func divideRound(cents, n int64) int64 {
	if n <= 0 {
		return cents
	}
	return (cents + n/2) / n
}
