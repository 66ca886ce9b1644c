package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"budgetd/internal/budget"
	"budgetd/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository implements budget.Store on a local SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

var _ budget.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (tx_date, amount_cents, category, description) VALUES (?, ?, ?, ?)`,
		t.Date.String(), t.Amount.Cents, t.Category, t.Description)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("last insert id: %w", err)
	}
	t.ID = id

	slog.InfoContext(ctx, "Transaction saved",
		"id", t.ID,
		"date", t.Date.String(),
		"amount_cents", t.Amount.Cents,
		"category", t.Category)

	return t, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, year, month int) ([]core.Transaction, error) {
	prefix := fmt.Sprintf("%04d-%02d-", year, month)
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tx_date, amount_cents, category, description
		 FROM transactions WHERE tx_date LIKE ? || '%'
		 ORDER BY tx_date DESC, id DESC`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func (r *SQLiteRepository) ListAllTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tx_date, amount_cents, category, description
		 FROM transactions ORDER BY tx_date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list all transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		var (
			t       core.Transaction
			dateStr string
		)
		if err := rows.Scan(&t.ID, &dateStr, &t.Amount.Cents, &t.Category, &t.Description); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		d, err := core.ParseDate(dateStr)
		if err != nil {
			return nil, fmt.Errorf("parse stored date %q: %w", dateStr, err)
		}
		t.Date = d
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return budget.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT category FROM transactions ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) AvailablePeriods(ctx context.Context) (core.Catalog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT CAST(substr(tx_date, 1, 4) AS INTEGER) AS y,
		        CAST(substr(tx_date, 6, 2) AS INTEGER) AS m
		 FROM transactions ORDER BY y, m`)
	if err != nil {
		return core.Catalog{}, fmt.Errorf("available periods: %w", err)
	}
	defer rows.Close()

	catalog := core.Catalog{Months: make(map[int][]int)}
	for rows.Next() {
		var y, m int
		if err := rows.Scan(&y, &m); err != nil {
			return core.Catalog{}, fmt.Errorf("scan period: %w", err)
		}
		if _, seen := catalog.Months[y]; !seen {
			catalog.Years = append(catalog.Years, y)
		}
		catalog.Months[y] = append(catalog.Months[y], m)
	}
	return catalog, rows.Err()
}

func (r *SQLiteRepository) UpsertIncome(ctx context.Context, in core.Income) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO income (year, month, amount_cents, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(year, month) DO UPDATE SET
		   amount_cents = excluded.amount_cents,
		   updated_at = CURRENT_TIMESTAMP`,
		in.Year, in.Month, in.Amount.Cents)
	if err != nil {
		return fmt.Errorf("upsert income: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetIncome(ctx context.Context, year, month int) (core.Income, error) {
	in := core.Income{Year: year, Month: month}
	err := r.db.QueryRowContext(ctx,
		`SELECT amount_cents FROM income WHERE year = ? AND month = ?`,
		year, month).Scan(&in.Amount.Cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Income{}, budget.ErrNotFound
	}
	if err != nil {
		return core.Income{}, fmt.Errorf("get income: %w", err)
	}
	return in, nil
}

func (r *SQLiteRepository) CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO goals (name, target_cents, current_cents, target_date, ai_plan)
		 VALUES (?, ?, ?, ?, ?)`,
		g.Name, g.Target.Cents, g.Current.Cents, g.TargetDate.String(), g.AIPlan)
	if err != nil {
		return core.Goal{}, fmt.Errorf("create goal: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Goal{}, fmt.Errorf("last insert id: %w", err)
	}
	g.ID = id

	slog.InfoContext(ctx, "Goal saved",
		"id", g.ID,
		"name", g.Name,
		"target_cents", g.Target.Cents,
		"target_date", g.TargetDate.String())

	return g, nil
}

func (r *SQLiteRepository) GetGoal(ctx context.Context, id int64) (core.Goal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, target_cents, current_cents, target_date, ai_plan
		 FROM goals WHERE id = ?`, id)
	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Goal{}, budget.ErrNotFound
	}
	if err != nil {
		return core.Goal{}, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

func (r *SQLiteRepository) ListGoals(ctx context.Context) ([]core.Goal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, target_cents, current_cents, target_date, ai_plan
		 FROM goals ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var out []core.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGoal(row rowScanner) (core.Goal, error) {
	var (
		g       core.Goal
		dateStr string
	)
	if err := row.Scan(&g.ID, &g.Name, &g.Target.Cents, &g.Current.Cents, &dateStr, &g.AIPlan); err != nil {
		return core.Goal{}, err
	}
	d, err := core.ParseDate(dateStr)
	if err != nil {
		return core.Goal{}, fmt.Errorf("parse stored target date %q: %w", dateStr, err)
	}
	g.TargetDate = d
	return g, nil
}

func (r *SQLiteRepository) UpdateGoal(ctx context.Context, g core.Goal) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE goals SET name = ?, target_cents = ?, current_cents = ?, target_date = ?, ai_plan = ?
		 WHERE id = ?`,
		g.Name, g.Target.Cents, g.Current.Cents, g.TargetDate.String(), g.AIPlan, g.ID)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return budget.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteGoal(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return budget.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) SetGoalPlan(ctx context.Context, id int64, planText string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE goals SET ai_plan = ? WHERE id = ?`, planText, id)
	if err != nil {
		return fmt.Errorf("set goal plan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return budget.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) SavePlan(ctx context.Context, p core.SavingsPlan) (core.SavingsPlan, error) {
	recs, err := json.Marshal(p.Recommendations)
	if err != nil {
		return core.SavingsPlan{}, fmt.Errorf("marshal recommendations: %w", err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO savings_plans (goal_id, plan_text, monthly_saving_cents, recommendations, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.GoalID, p.PlanText, p.MonthlySaving.Cents, string(recs), p.CreatedAt)
	if err != nil {
		return core.SavingsPlan{}, fmt.Errorf("save plan: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.SavingsPlan{}, fmt.Errorf("last insert id: %w", err)
	}
	p.ID = id
	return p, nil
}

func (r *SQLiteRepository) LatestPlan(ctx context.Context, goalID int64) (core.SavingsPlan, error) {
	var (
		p       core.SavingsPlan
		recsRaw string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, goal_id, plan_text, monthly_saving_cents, recommendations, created_at
		 FROM savings_plans WHERE goal_id = ? ORDER BY id DESC LIMIT 1`,
		goalID).Scan(&p.ID, &p.GoalID, &p.PlanText, &p.MonthlySaving.Cents, &recsRaw, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SavingsPlan{}, budget.ErrNotFound
	}
	if err != nil {
		return core.SavingsPlan{}, fmt.Errorf("latest plan: %w", err)
	}

	if err := json.Unmarshal([]byte(recsRaw), &p.Recommendations); err != nil {
		return core.SavingsPlan{}, fmt.Errorf("unmarshal recommendations: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) EnqueuePlanRequest(ctx context.Context, goalID int64) (budget.PlanRequest, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO plan_requests (goal_id, status) VALUES (?, 'pending')`, goalID)
	if err != nil {
		return budget.PlanRequest{}, fmt.Errorf("enqueue plan request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return budget.PlanRequest{}, fmt.Errorf("last insert id: %w", err)
	}
	return budget.PlanRequest{
		ID:        id,
		GoalID:    goalID,
		Status:    budget.PlanStatusPending,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (r *SQLiteRepository) DequeuePlanBatch(ctx context.Context, limit int) ([]budget.PlanRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, goal_id, status, attempts, last_error, created_at
		 FROM plan_requests WHERE status = 'pending'
		 ORDER BY created_at LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue plan batch: %w", err)
	}
	defer rows.Close()

	var out []budget.PlanRequest
	for rows.Next() {
		var req budget.PlanRequest
		if err := rows.Scan(&req.ID, &req.GoalID, &req.Status, &req.Attempts, &req.LastError, &req.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan plan request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) MarkPlanProcessing(ctx context.Context, id int64) error {
	return r.setPlanStatus(ctx, id, budget.PlanStatusProcessing, "")
}

func (r *SQLiteRepository) MarkPlanCompleted(ctx context.Context, id int64) error {
	return r.setPlanStatus(ctx, id, budget.PlanStatusCompleted, "")
}

func (r *SQLiteRepository) MarkPlanFailed(ctx context.Context, id int64, reason string) error {
	return r.setPlanStatus(ctx, id, budget.PlanStatusFailed, reason)
}

func (r *SQLiteRepository) setPlanStatus(ctx context.Context, id int64, status, reason string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE plan_requests
		 SET status = ?, last_error = CASE WHEN ? != '' THEN ? ELSE last_error END,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		status, reason, reason, id)
	if err != nil {
		return fmt.Errorf("set plan request status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return budget.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) IncrementPlanAttempt(ctx context.Context, id int64, reason string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE plan_requests
		 SET attempts = attempts + 1, status = 'pending', last_error = ?,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		reason, id)
	if err != nil {
		return fmt.Errorf("increment plan attempt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return budget.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ResetStalePlanRequests(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE plan_requests SET status = 'pending', updated_at = CURRENT_TIMESTAMP
		 WHERE status = 'processing'`)
	if err != nil {
		return fmt.Errorf("reset stale plan requests: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CleanupCompletedPlanRequests(ctx context.Context, before time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM plan_requests WHERE status = 'completed' AND created_at < ?`, before)
	if err != nil {
		return fmt.Errorf("cleanup completed plan requests: %w", err)
	}
	return nil
}
