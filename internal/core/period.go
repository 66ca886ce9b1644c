package core

// Period identifies one calendar month.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// Catalog lists the periods that have recorded transactions. Years is
// ascending; each entry in Months is non-empty and strictly increasing.
type Catalog struct {
	Years  []int         `json:"years"`
	Months map[int][]int `json:"months"`
}

func (c Catalog) IsEmpty() bool {
	return len(c.Years) == 0
}

// Contains reports whether the period has recorded data: the year must be
// listed and the month must be listed under that year.
func (c Catalog) Contains(p Period) bool {
	months, ok := c.Months[p.Year]
	if !ok {
		return false
	}
	for _, m := range months {
		if m == p.Month {
			return true
		}
	}
	return false
}

// Latest returns the most recent available period: the last year with the
// last month listed for it. ok is false when the catalog is empty.
func (c Catalog) Latest() (Period, bool) {
	if c.IsEmpty() {
		return Period{}, false
	}
	year := c.Years[len(c.Years)-1]
	months := c.Months[year]
	if len(months) == 0 {
		return Period{}, false
	}
	return Period{Year: year, Month: months[len(months)-1]}, true
}

// Resolve returns the candidate when it is available, otherwise the latest
// available period. An empty catalog keeps the candidate: validity cannot
// be decided before any data is loaded.
func (c Catalog) Resolve(candidate Period) Period {
	if c.IsEmpty() || c.Contains(candidate) {
		return candidate
	}
	latest, ok := c.Latest()
	if !ok {
		return candidate
	}
	return latest
}

// MonthForYear picks the month to show after switching to year: the current
// month when the year has it, else the first available month of that year.
// Note this tie-break differs from Resolve, which falls back to the last
// available period; both policies are intentional.
func (c Catalog) MonthForYear(year, currentMonth int) (int, bool) {
	months, ok := c.Months[year]
	if !ok || len(months) == 0 {
		return 0, false
	}
	for _, m := range months {
		if m == currentMonth {
			return m, true
		}
	}
	return months[0], true
}
