package txn

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is the raw wire form of a transaction as produced by an upstream
// statement extractor.
type Record struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Balance     string `json:"running_balance,omitempty"`
}

// ParseIssue describes a record that was skipped during parsing.
type ParseIssue struct {
	Index  int    `json:"index"`
	Source string `json:"source,omitempty"`
	Reason string `json:"reason"`
}

// dateLayouts are tried in order when parsing statement dates.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"01/02/06",
	"1/2/06",
	time.RFC3339,
}

// ParseRecords converts raw records into transactions.
// Records with a malformed date or amount are skipped and reported as issues;
// a malformed balance only drops the balance.
func ParseRecords(records []Record, source string) ([]Transaction, []ParseIssue) {
	transactions := make([]Transaction, 0, len(records))
	var issues []ParseIssue

	for i, rec := range records {
		date, err := ParseDate(rec.Date)
		if err != nil {
			issues = append(issues, ParseIssue{Index: i, Source: source, Reason: err.Error()})
			continue
		}

		amount, err := ParseAmount(rec.Amount)
		if err != nil {
			issues = append(issues, ParseIssue{Index: i, Source: source, Reason: err.Error()})
			continue
		}

		t := Transaction{
			Date:        date,
			Description: strings.TrimSpace(rec.Description),
			Amount:      amount,
			Source:      source,
		}

		if strings.TrimSpace(rec.Balance) != "" {
			if balance, err := ParseAmount(rec.Balance); err == nil {
				t.Balance = decimal.NewNullDecimal(balance)
			} else {
				issues = append(issues, ParseIssue{Index: i, Source: source, Reason: "balance ignored: " + err.Error()})
			}
		}

		transactions = append(transactions, t)
	}

	return transactions, issues
}

// ParseDate parses a statement date in any supported layout.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("missing date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// ParseAmount converts strings like "1,234.56", "-$25.99" or "(25.99)" into a decimal.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00A0", "") // non-breaking space

	if s == "" || s == "-" {
		return decimal.Zero, fmt.Errorf("missing amount")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}
