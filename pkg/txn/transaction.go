// Package txn provides the bank transaction model shared by every analysis stage,
// plus parsing, merging and advisory duplicate detection for statement data.
package txn

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category tags attached to transactions by the classifier.
const (
	CategoryRevenue = "revenue"
	CategoryDebit   = "debit"
)

// Transaction represents a single bank statement line.
// A positive Amount is a credit (deposit), a negative Amount is a debit (withdrawal).
type Transaction struct {
	Date        time.Time           `json:"date"`
	Description string              `json:"description"`
	Amount      decimal.Decimal     `json:"amount"`
	Balance     decimal.NullDecimal `json:"running_balance"`
	Category    string              `json:"category,omitempty"`
	Source      string              `json:"source,omitempty"`
}

// IsCredit reports whether the transaction is a deposit.
func (t Transaction) IsCredit() bool {
	return t.Amount.IsPositive()
}

// IsDebit reports whether the transaction is a withdrawal.
func (t Transaction) IsDebit() bool {
	return t.Amount.IsNegative()
}

// AbsAmount returns the unsigned transaction amount.
func (t Transaction) AbsAmount() decimal.Decimal {
	return t.Amount.Abs()
}

// Upper returns the description normalized for keyword matching.
func (t Transaction) Upper() string {
	return strings.ToUpper(t.Description)
}

// MonthKey returns the YYYY-MM bucket the transaction belongs to.
func (t Transaction) MonthKey() string {
	return t.Date.Format("2006-01")
}

// WithCategory returns a copy of the transaction carrying the given tag.
// The original amount is never altered.
func (t Transaction) WithCategory(category string) Transaction {
	t.Category = category
	return t
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	a = truncateDay(a)
	b = truncateDay(b)
	return int(b.Sub(a).Hours() / 24)
}

// truncateDay drops the clock part so day arithmetic stays calendar based.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
