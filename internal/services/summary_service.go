package services

import (
	"context"
	"fmt"
	"time"

	"budgetd/internal/budget"
	"budgetd/internal/core"
	"budgetd/internal/inference"
	"budgetd/internal/log"
)

// SummaryService produces the monthly narrative summary. It prefers the
// inference bridge and falls back to a deterministic local summary when the
// bridge is unavailable or failing; a summary request never errors because
// of the bridge.
type SummaryService struct {
	store  budget.Store
	bridge *inference.Client
	logger *log.Logger
}

func NewSummaryService(store budget.Store, bridge *inference.Client, logger *log.Logger) *SummaryService {
	return &SummaryService{
		store:  store,
		bridge: bridge,
		logger: logger.WithComponent(log.ComponentSummary),
	}
}

// MonthlySummary summarizes one (year, month) of spending.
func (s *SummaryService) MonthlySummary(ctx context.Context, year, month int) (*inference.SummaryResponse, error) {
	txs, err := s.store.ListTransactions(ctx, year, month)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	income := core.Money{}
	if in, err := s.store.GetIncome(ctx, year, month); err == nil {
		income = in.Amount
	}

	if s.bridge != nil {
		cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		resp, err := s.bridge.MonthlySummary(cctx, inference.SummaryRequest{
			Month:        month,
			Year:         year,
			Income:       income.Float(),
			Transactions: toTransactionRecords(txs),
		})
		if err == nil {
			return resp, nil
		}
		s.logger.WarnContext(ctx, "Bridge summary failed, using local fallback",
			log.FieldError, err.Error(),
			log.FieldYear, year,
			log.FieldMonth, month)
	}

	return localSummary(year, month, txs, income), nil
}

// localSummary is the deterministic fallback used when the bridge is down.
func localSummary(year, month int, txs []core.Transaction, income core.Money) *inference.SummaryResponse {
	ov := core.Summarize(year, month, txs, income)

	status := "Under Budget"
	if ov.Remaining.Cents < 0 {
		status = "Over Budget"
	}

	return &inference.SummaryResponse{
		Summary: fmt.Sprintf("In %d/%d you spent %s against an income of %s across %d transactions.",
			month, year, ov.Total.String(), income.String(), len(txs)),
		TopCategories: ov.TopCategories(3),
		TotalSpending: ov.Total.Float(),
		BudgetStatus:  status,
	}
}

func toTransactionRecords(txs []core.Transaction) []inference.TransactionRecord {
	records := make([]inference.TransactionRecord, len(txs))
	for i, t := range txs {
		records[i] = inference.TransactionRecord{
			Date:        t.Date.String(),
			Amount:      t.Amount.Float(),
			Category:    t.Category,
			Description: t.Description,
		}
	}
	return records
}
