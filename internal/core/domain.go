package core

import (
	"errors"
	"strings"
	"time"
)

type (
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Transaction struct {
		ID          int64
		Date        Date
		Amount      Money
		Category    string
		Description string
	}

	// Income is the recorded income for one calendar month.
	// There is at most one record per (year, month); writes overwrite.
	Income struct {
		Year   int
		Month  int
		Amount Money
	}

	Goal struct {
		ID         int64
		Name       string
		Target     Money
		Current    Money
		TargetDate Date
		AIPlan     string
	}

	// SavingsPlan is a generated plan for a goal. Regeneration appends a
	// new row; the latest row wins.
	SavingsPlan struct {
		ID              int64
		GoalID          int64
		PlanText        string
		MonthlySaving   Money
		Recommendations []string
		CreatedAt       time.Time
	}
)

var (
	ErrInvalidDay           = errors.New("invalid day")
	ErrInvalidMonth         = errors.New("invalid month")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrNegativeAmount       = errors.New("amount cannot be negative")
	ErrEmptyCategory        = errors.New("empty category")
	ErrEmptyName            = errors.New("empty name")
	ErrFutureDate           = errors.New("date cannot be in the future")
	ErrPastDeadline         = errors.New("target date must be in the future")
	ErrCurrentExceedsTarget = errors.New("current amount cannot exceed target amount")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a date in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

// Period returns the calendar period the transaction belongs to.
func (t Transaction) Period() Period {
	return Period{Year: t.Date.Year(), Month: t.Date.Month()}
}

func (in Income) Validate() error {
	if in.Month < 1 || in.Month > 12 {
		return ErrInvalidMonth
	}
	if in.Year < 1970 || in.Year > 9999 {
		return errors.New("invalid year")
	}
	if in.Amount.Cents < 0 {
		return ErrNegativeAmount
	}
	return nil
}

// Validate checks goal field rules. When strictDeadline is set the target
// date must be strictly in the future relative to now.
func (g Goal) Validate(now time.Time, strictDeadline bool) error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if len(g.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	if g.Target.Cents <= 0 {
		return ErrInvalidAmount
	}
	if g.Current.Cents < 0 {
		return ErrNegativeAmount
	}
	if g.Current.Cents > g.Target.Cents {
		return ErrCurrentExceedsTarget
	}
	if err := g.TargetDate.Validate(); err != nil {
		return err
	}
	if strictDeadline && !g.TargetDate.After(now) {
		return ErrPastDeadline
	}
	return nil
}
