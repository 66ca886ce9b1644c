// Package inference is the HTTP client for the AI inference bridge. The
// bridge is language neutral, so amounts cross this boundary as decimal
// floats and dates as YYYY-MM-DD strings.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// TransactionRecord is the wire form of a transaction sent to the bridge.
type TransactionRecord struct {
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description,omitempty"`
}

type SummaryRequest struct {
	Month        int                 `json:"month"`
	Year         int                 `json:"year"`
	Income       float64             `json:"income"`
	Transactions []TransactionRecord `json:"transactions"`
}

type SummaryResponse struct {
	Summary       string   `json:"summary"`
	TopCategories []string `json:"top_categories"`
	TotalSpending float64  `json:"total_spending"`
	BudgetStatus  string   `json:"budget_status"`
}

type PlanRequest struct {
	GoalID             int64               `json:"goal_id"`
	GoalDescription    string              `json:"goal_description"`
	TargetAmount       float64             `json:"target_amount"`
	CurrentAmount      float64             `json:"current_amount"`
	Deadline           string              `json:"deadline"`
	UserIncome         float64             `json:"user_income"`
	AvgMonthlySpending float64             `json:"avg_monthly_spending"`
	Transactions       []TransactionRecord `json:"transactions"`
}

type PlanResponse struct {
	PlanText        string   `json:"plan_text"`
	MonthlySaving   float64  `json:"monthly_saving"`
	Recommendations []string `json:"recommendations"`
}

// StatusError reports a non-2xx bridge response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference bridge returned status %d: %s", e.StatusCode, e.Body)
}

// MonthlySummary asks the bridge for a narrative summary of one month.
func (c *Client) MonthlySummary(ctx context.Context, req SummaryRequest) (*SummaryResponse, error) {
	var resp SummaryResponse
	if err := c.post(ctx, "/monthly_summary", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GoalPlan asks the bridge for a savings plan for one goal.
func (c *Client) GoalPlan(ctx context.Context, req PlanRequest) (*PlanResponse, error) {
	var resp PlanResponse
	if err := c.post(ctx, "/goal_planning", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call inference bridge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Bounded read; error bodies are short.
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
