// Package classifier separates true revenue deposits from transfers, loan
// proceeds, lender fundings and owner draws, and rolls the result up into
// monthly revenue buckets.
package classifier

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/pigeonworks-llc/mca-underwriter/pkg/keywords"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/txn"
)

// Category tags attached to excluded deposits.
const (
	CategoryInternalTransfer = "internal_transfer"
	CategoryLoanProceeds     = "loan_proceeds"
	CategoryLenderFunding    = "lender_funding"
	CategoryLargeRound       = "large_round_deposit"
	CategoryOwnerDraw        = "owner_draw"
	CategoryNonRevenue       = "non_revenue"
)

var (
	// LenderFundingFloor is the smallest deposit from a known lender that is
	// treated as a funding rather than revenue.
	LenderFundingFloor = decimal.NewFromInt(5000)
	// LargeRoundMinimum is the smallest round deposit considered by the
	// large round-sum heuristic.
	LargeRoundMinimum = decimal.NewFromInt(10000)
	// LargeRoundUnit is the multiple a deposit must be to count as round.
	LargeRoundUnit = decimal.NewFromInt(1000)
)

var ruleCategories = map[string]string{
	keywords.RuleInternalTransfer:  CategoryInternalTransfer,
	keywords.RuleLoanProceeds:      CategoryLoanProceeds,
	keywords.RuleLenderFunding:     CategoryLenderFunding,
	keywords.RuleLargeRoundFunding: CategoryLargeRound,
	keywords.RuleOwnerDraw:         CategoryOwnerDraw,
	keywords.RuleRevenueExclude:    CategoryNonRevenue,
}

// Exclusion records why a deposit was removed from revenue.
type Exclusion struct {
	Transaction txn.Transaction `json:"transaction"`
	Rule        string          `json:"rule"`
	Reason      string          `json:"reason"`
}

// MonthlyBucket aggregates deposits for one calendar month.
type MonthlyBucket struct {
	Month         string          `json:"month"`
	GrossDeposits decimal.Decimal `json:"gross_deposits"`
	NetDeposits   decimal.Decimal `json:"net_deposits"`
	DepositCount  int             `json:"deposit_count"`
}

// Result is the output of Classify.
type Result struct {
	// Transactions holds every input transaction with its category tag.
	Transactions []txn.Transaction `json:"transactions"`
	// Clean holds the deposits counted as revenue.
	Clean               []txn.Transaction `json:"clean"`
	Excluded            []Exclusion       `json:"excluded"`
	Months              []MonthlyBucket   `json:"months"`
	TotalGross          decimal.Decimal   `json:"total_gross"`
	TotalNet            decimal.Decimal   `json:"total_net"`
	AverageMonthlyGross decimal.Decimal   `json:"average_monthly_gross"`
	AverageMonthlyNet   decimal.Decimal   `json:"average_monthly_net"`
	DepositsPerMonth    float64           `json:"deposits_per_month"`
}

// NetRevenueSeries returns the monthly net deposits in month order.
func (r Result) NetRevenueSeries() []decimal.Decimal {
	series := make([]decimal.Decimal, len(r.Months))
	for i, m := range r.Months {
		series[i] = m.NetDeposits
	}
	return series
}

// Classify tags every transaction and computes monthly revenue.
// Deposits are tested against the dictionary's exclusion rules in order and
// the first match wins. Debits are tagged but never excluded. A nil
// dictionary excludes nothing.
func Classify(transactions []txn.Transaction, dict *keywords.Dictionary) Result {
	result := Result{
		Transactions: make([]txn.Transaction, 0, len(transactions)),
		Clean:        []txn.Transaction{},
		Excluded:     []Exclusion{},
		Months:       []MonthlyBucket{},
	}

	buckets := make(map[string]*MonthlyBucket)
	bucketFor := func(key string) *MonthlyBucket {
		b, ok := buckets[key]
		if !ok {
			b = &MonthlyBucket{Month: key}
			buckets[key] = b
		}
		return b
	}

	for _, t := range transactions {
		bucket := bucketFor(t.MonthKey())

		if !t.IsCredit() {
			result.Transactions = append(result.Transactions, t.WithCategory(txn.CategoryDebit))
			continue
		}

		bucket.GrossDeposits = bucket.GrossDeposits.Add(t.Amount)
		result.TotalGross = result.TotalGross.Add(t.Amount)

		if rule, reason, ok := exclusionFor(t, dict); ok {
			tagged := t.WithCategory(ruleCategories[rule])
			result.Transactions = append(result.Transactions, tagged)
			result.Excluded = append(result.Excluded, Exclusion{Transaction: tagged, Rule: rule, Reason: reason})
			continue
		}

		tagged := t.WithCategory(txn.CategoryRevenue)
		result.Transactions = append(result.Transactions, tagged)
		result.Clean = append(result.Clean, tagged)
		bucket.NetDeposits = bucket.NetDeposits.Add(t.Amount)
		bucket.DepositCount++
		result.TotalNet = result.TotalNet.Add(t.Amount)
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		result.Months = append(result.Months, *buckets[k])
	}
	result.Months = trimEmptyEdges(result.Months)

	if n := len(result.Months); n > 0 {
		months := decimal.NewFromInt(int64(n))
		result.AverageMonthlyGross = result.TotalGross.Div(months).Round(2)
		result.AverageMonthlyNet = result.TotalNet.Div(months).Round(2)
		result.DepositsPerMonth = float64(len(result.Clean)) / float64(n)
	}

	return result
}

// trimEmptyEdges drops leading and trailing months without deposits, such as a
// statement tail holding only a fee. Empty months inside the period are kept.
func trimEmptyEdges(months []MonthlyBucket) []MonthlyBucket {
	first, last := 0, len(months)-1
	for first <= last && months[first].GrossDeposits.IsZero() {
		first++
	}
	for last >= first && months[last].GrossDeposits.IsZero() {
		last--
	}
	return months[first : last+1]
}

// exclusionFor returns the first exclusion rule that matches a deposit.
func exclusionFor(t txn.Transaction, dict *keywords.Dictionary) (rule, reason string, ok bool) {
	if dict == nil {
		return "", "", false
	}

	for _, rule := range dict.ExclusionOrder() {
		switch rule {
		case keywords.RuleLenderFunding:
			if t.Amount.LessThan(LenderFundingFloor) {
				continue
			}
			if name, alias, ok := dict.MatchLender(t.Description); ok {
				return rule, fmt.Sprintf("suspected funding from %s (alias %q, %s)", name, alias, money(t.Amount)), true
			}

		case keywords.RuleLargeRoundFunding:
			if t.Amount.LessThan(LargeRoundMinimum) || !t.Amount.Mod(LargeRoundUnit).IsZero() {
				continue
			}
			if term, ok := dict.Match(keywords.GroupFinancing, t.Description); ok {
				return rule, fmt.Sprintf("large round deposit %s with financing keyword %q", money(t.Amount), term), true
			}

		default:
			if term, ok := dict.Match(rule, t.Description); ok {
				return rule, fmt.Sprintf("%s keyword %q", rule, term), true
			}
		}
	}

	return "", "", false
}

func money(d decimal.Decimal) string {
	return "$" + humanize.CommafWithDigits(d.Round(2).InexactFloat64(), 2)
}
