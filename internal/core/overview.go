package core

type CategoryAmount struct {
	Name   string
	Amount Money
}

// MonthOverview aggregates one month of spending against recorded income.
type MonthOverview struct {
	Year       int
	Month      int
	Total      Money
	Income     Money
	Remaining  Money
	ByCategory []CategoryAmount
}

// Summarize aggregates the given transactions against income for a month.
// Categories keep first-occurrence order. Remaining may go negative; an
// overspent month is reported, not clamped.
func Summarize(year, month int, txs []Transaction, income Money) MonthOverview {
	ov := MonthOverview{
		Year:   year,
		Month:  month,
		Income: income,
	}

	index := make(map[string]int)
	for _, t := range txs {
		ov.Total.Cents += t.Amount.Cents
		if i, ok := index[t.Category]; ok {
			ov.ByCategory[i].Amount.Cents += t.Amount.Cents
			continue
		}
		index[t.Category] = len(ov.ByCategory)
		ov.ByCategory = append(ov.ByCategory, CategoryAmount{
			Name:   t.Category,
			Amount: t.Amount,
		})
	}

	ov.Remaining = Money{Cents: income.Cents - ov.Total.Cents}
	return ov
}

// TopCategories returns up to n category names ordered by descending amount.
// Ties keep first-occurrence order.
func (ov MonthOverview) TopCategories(n int) []string {
	sorted := make([]CategoryAmount, len(ov.ByCategory))
	copy(sorted, ov.ByCategory)
	// Insertion sort keeps the original order on equal amounts.
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Amount.Cents > sorted[j-1].Amount.Cents; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	if n > len(sorted) {
		n = len(sorted)
	}
	names := make([]string, 0, n)
	for _, ca := range sorted[:n] {
		names = append(names, ca.Name)
	}
	return names
}
