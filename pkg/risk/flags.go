package risk

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pigeonworks-llc/mca-underwriter/pkg/txn"
)

// Severity of a red flag.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
)

// Red flag categories.
const (
	CategoryLegal      = "Legal"
	CategoryTax        = "Tax"
	CategoryBankruptcy = "Bankruptcy"
	CategoryOther      = "Other"
)

// RedFlag is a transaction matching a red-flag keyword.
type RedFlag struct {
	Severity    Severity        `json:"severity"`
	Category    string          `json:"category"`
	Keyword     string          `json:"keyword"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
}

func newRedFlag(term string, t txn.Transaction) RedFlag {
	return RedFlag{
		Severity:    severityOf(term),
		Category:    categoryOf(term),
		Keyword:     term,
		Description: t.Description,
		Date:        t.Date,
		Amount:      t.Amount,
	}
}

func severityOf(term string) Severity {
	if containsAny(strings.ToUpper(term), "GARNISH", "COURT ORDER", "LEVY", "LIEN", "JUDGMENT", "BANKRUPT") {
		return SeverityHigh
	}
	return SeverityMedium
}

func categoryOf(term string) string {
	term = strings.ToUpper(term)
	switch {
	case containsAny(term, "BANKRUPT", "CHAPTER", "TRUSTEE"):
		return CategoryBankruptcy
	case containsAny(term, "TAX", "IRS", "LEVY", "LIEN"):
		return CategoryTax
	case containsAny(term, "GARNISH", "COURT", "JUDGMENT", "LEGAL", "LAWSUIT", "ATTORNEY"):
		return CategoryLegal
	}
	return CategoryOther
}
