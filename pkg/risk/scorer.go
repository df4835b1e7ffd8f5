// Package risk computes the risk profile of a merchant's transaction history:
// NSF events, negative balance days, cash concentration, gambling activity,
// red flags, expense mix and revenue velocity, combined into a 0-100 score.
package risk

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pigeonworks-llc/mca-underwriter/pkg/classifier"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/keywords"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/txn"
)

// Tiers.
const (
	TierA = "A"
	TierB = "B"
	TierC = "C"
	TierD = "D"
)

// Score deductions.
const (
	nsfPenalty          = 5
	nsfPenaltyCap       = 25
	negativeDayPenalty  = 2
	negativeDayCap      = 20
	streakThreshold     = 3
	streakPenalty       = 5
	cashPenalty         = 10
	gamblingPenalty     = 15
	highFlagPenalty     = 10
	highFlagCap         = 30
	mediumFlagPenalty   = 5
	mediumFlagCap       = 15
	acceleratingPenalty = 15
	decliningPenalty    = 10
)

// CashThresholdPercent is the share of net revenue above which cash deposits are flagged.
const CashThresholdPercent = 20.0

// ExpenseOther is the bucket for debits that match no expense category.
const ExpenseOther = "other"

// TierFor maps a 0-100 score to a tier.
func TierFor(score int) string {
	switch {
	case score >= 80:
		return TierA
	case score >= 60:
		return TierB
	case score >= 40:
		return TierC
	}
	return TierD
}

// Profile is the computed risk profile.
type Profile struct {
	NSFCount     int             `json:"nsf_count"`
	NSFTotalFees decimal.Decimal `json:"nsf_total_fees"`

	NegativeDays            int             `json:"negative_day_count"`
	ConsecutiveNegativeDays int             `json:"consecutive_negative_days"`
	MaxNegativeBalance      decimal.Decimal `json:"max_negative_balance"`
	AverageDailyBalance     decimal.Decimal `json:"average_daily_balance"`
	BalanceDays             int             `json:"balance_days"`

	CashDeposits decimal.Decimal `json:"cash_deposits"`
	CashPercent  float64         `json:"cash_percent"`
	CashFlag     bool            `json:"cash_flag"`

	GamblingFlag         bool              `json:"gambling_flag"`
	GamblingTotal        decimal.Decimal   `json:"gambling_total"`
	GamblingTransactions []txn.Transaction `json:"gambling_transactions"`

	RedFlags []RedFlag                  `json:"red_flags"`
	Expenses map[string]decimal.Decimal `json:"expenses"`
	Velocity Velocity                   `json:"velocity"`

	Score int    `json:"risk_score"`
	Tier  string `json:"risk_tier"`
}

// HighSeverityCount returns the number of HIGH red flags.
func (p Profile) HighSeverityCount() int {
	return p.countSeverity(SeverityHigh)
}

// MediumSeverityCount returns the number of MEDIUM red flags.
func (p Profile) MediumSeverityCount() int {
	return p.countSeverity(SeverityMedium)
}

func (p Profile) countSeverity(s Severity) int {
	n := 0
	for _, f := range p.RedFlags {
		if f.Severity == s {
			n++
		}
	}
	return n
}

// Score computes the risk profile. months supplies the monthly net revenue
// used for cash concentration and revenue velocity. A nil dictionary matches
// no keywords.
func Score(transactions []txn.Transaction, months []classifier.MonthlyBucket, dict *keywords.Dictionary) Profile {
	p := Profile{
		GamblingTransactions: []txn.Transaction{},
		RedFlags:             []RedFlag{},
		Expenses:             make(map[string]decimal.Decimal),
	}

	netRevenue := decimal.Zero
	for _, m := range months {
		netRevenue = netRevenue.Add(m.NetDeposits)
	}

	categories := dict.ExpenseCategories()
	for _, t := range transactions {
		desc := t.Description

		if _, ok := dict.Match(keywords.GroupNSF, desc); ok {
			p.NSFCount++
			p.NSFTotalFees = p.NSFTotalFees.Add(t.AbsAmount())
		}

		if t.IsCredit() {
			if _, ok := dict.Match(keywords.GroupCash, desc); ok {
				p.CashDeposits = p.CashDeposits.Add(t.Amount)
			}
		}

		if _, ok := dict.Match(keywords.GroupGambling, desc); ok {
			p.GamblingTotal = p.GamblingTotal.Add(t.AbsAmount())
			p.GamblingTransactions = append(p.GamblingTransactions, t)
		}

		if term, ok := dict.Match(keywords.GroupRedFlags, desc); ok {
			p.RedFlags = append(p.RedFlags, newRedFlag(term, t))
		}

		if t.IsDebit() {
			bucket := expenseCategory(desc, categories)
			p.Expenses[bucket] = p.Expenses[bucket].Add(t.AbsAmount())
		}
	}

	p.GamblingFlag = len(p.GamblingTransactions) > 0

	if netRevenue.IsPositive() {
		p.CashPercent = round2(p.CashDeposits.Div(netRevenue).InexactFloat64() * 100)
		p.CashFlag = p.CashPercent > CashThresholdPercent
	}

	scoreBalances(&p, transactions)
	p.Velocity = computeVelocity(months)
	p.Score = compositeScore(p)
	p.Tier = TierFor(p.Score)

	return p
}

// scoreBalances derives negative-day metrics and the average daily balance
// from end-of-day running balances.
func scoreBalances(p *Profile, transactions []txn.Transaction) {
	sorted := append([]txn.Transaction(nil), transactions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	endOfDay := make(map[time.Time]decimal.Decimal)
	var days []time.Time
	for _, t := range sorted {
		if !t.Balance.Valid {
			continue
		}
		if _, seen := endOfDay[t.Date]; !seen {
			days = append(days, t.Date)
		}
		endOfDay[t.Date] = t.Balance.Decimal
	}
	if len(days) == 0 {
		return
	}

	total := decimal.Zero
	streak := 0
	var prev time.Time
	for _, d := range days {
		balance := endOfDay[d]
		total = total.Add(balance)

		if !balance.IsNegative() {
			streak = 0
			continue
		}

		p.NegativeDays++
		if balance.LessThan(p.MaxNegativeBalance) {
			p.MaxNegativeBalance = balance
		}
		if streak > 0 && txn.DaysBetween(prev, d) == 1 {
			streak++
		} else {
			streak = 1
		}
		prev = d
		if streak > p.ConsecutiveNegativeDays {
			p.ConsecutiveNegativeDays = streak
		}
	}

	p.BalanceDays = len(days)
	p.AverageDailyBalance = total.Div(decimal.NewFromInt(int64(len(days)))).Round(2)
}

func compositeScore(p Profile) int {
	score := 100
	score -= min(p.NSFCount*nsfPenalty, nsfPenaltyCap)
	score -= min(p.NegativeDays*negativeDayPenalty, negativeDayCap)
	if p.ConsecutiveNegativeDays >= streakThreshold {
		score -= streakPenalty
	}
	if p.CashFlag {
		score -= cashPenalty
	}
	if p.GamblingFlag {
		score -= gamblingPenalty
	}
	score -= min(p.HighSeverityCount()*highFlagPenalty, highFlagCap)
	score -= min(p.MediumSeverityCount()*mediumFlagPenalty, mediumFlagCap)

	switch p.Velocity.Flag {
	case AcceleratingDecline:
		score -= acceleratingPenalty
	case Declining:
		score -= decliningPenalty
	}

	return max(0, min(100, score))
}

func expenseCategory(desc string, categories []keywords.ExpenseCategory) string {
	for _, c := range categories {
		if _, ok := keywords.FirstMatch(desc, c.Keywords); ok {
			return c.Name
		}
	}
	return ExpenseOther
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
