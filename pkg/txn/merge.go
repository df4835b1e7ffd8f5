package txn

import (
	"sort"
	"time"
)

// Merge concatenates one or more statements and sorts the result by date.
// The sort is stable so same-day transactions keep their statement order.
func Merge(statements ...[]Transaction) []Transaction {
	total := 0
	for _, s := range statements {
		total += len(s)
	}

	merged := make([]Transaction, 0, total)
	for _, s := range statements {
		merged = append(merged, s...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Date.Before(merged[j].Date)
	})
	return merged
}

// Coverage describes the period spanned by a transaction set.
type Coverage struct {
	FirstDate time.Time `json:"first_date"`
	LastDate  time.Time `json:"last_date"`
	Days      int       `json:"days"`
	Months    []string  `json:"months"`
}

// CoverageOf returns the statement period of a date-sorted transaction list.
func CoverageOf(transactions []Transaction) Coverage {
	if len(transactions) == 0 {
		return Coverage{Months: []string{}}
	}

	first := transactions[0].Date
	last := transactions[0].Date
	seen := make(map[string]bool)
	months := []string{}
	for _, t := range transactions {
		if t.Date.Before(first) {
			first = t.Date
		}
		if t.Date.After(last) {
			last = t.Date
		}
		key := t.MonthKey()
		if !seen[key] {
			seen[key] = true
			months = append(months, key)
		}
	}
	sort.Strings(months)

	return Coverage{
		FirstDate: first,
		LastDate:  last,
		Days:      DaysBetween(first, last) + 1,
		Months:    months,
	}
}

// LatestDate returns the most recent transaction date, or the zero time.
func LatestDate(transactions []Transaction) time.Time {
	var latest time.Time
	for _, t := range transactions {
		if t.Date.After(latest) {
			latest = t.Date
		}
	}
	return latest
}
