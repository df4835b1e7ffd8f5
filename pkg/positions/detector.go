// Package positions reverse-engineers existing merchant financing positions
// from recurring withdrawals: it clusters withdrawals by amount, infers the
// payment frequency, identifies the lender, backtracks the funding deposit and
// estimates the terms of the advance.
package positions

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pigeonworks-llc/mca-underwriter/pkg/keywords"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/txn"
)

// Frequency is the inferred payment cadence of a position.
type Frequency string

const (
	Daily    Frequency = "daily"
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
)

// Confidence describes how a position's lender was identified.
type Confidence string

const (
	High   Confidence = "high"
	Medium Confidence = "medium"
	Low    Confidence = "low"
)

// UnknownRecurringDebit labels a recurring cluster with no lender keyword.
const UnknownRecurringDebit = "Unknown Recurring Debit"

// Detection defaults.
const (
	DefaultFundingWindowDays = 7
	DefaultAmountTolerance   = 1
	DefaultMinOccurrences    = 4

	// SafetyNetMinOccurrences is the payment count above which an unlabelled
	// daily or weekly cluster is still reported as a position.
	SafetyNetMinOccurrences = 8

	// FundingPaymentMultiple is the minimum funding size as a multiple of the payment.
	FundingPaymentMultiple = 10

	BusinessDaysPerMonth = 21.5
	WeeksPerMonth        = 4.33
)

// FundingFloor is the smallest deposit considered as a funding deposit.
var FundingFloor = decimal.NewFromInt(5000)

// termMultipliers approximate the total number of payments over a typical term.
var termMultipliers = map[Frequency]int64{
	Daily:  160,
	Weekly: 45,
}

const defaultTermMultiplier = 12

// Options tunes detection thresholds. Zero values select the defaults. A nil
// AmountTolerance selects the default; zero or less keeps exact-amount buckets.
type Options struct {
	FundingWindowDays int
	AmountTolerance   *int64
	MinOccurrences    int
	// AsOf is the reference date for "days since funding". Defaults to the
	// latest transaction date.
	AsOf time.Time
}

func (o Options) withDefaults(transactions []txn.Transaction) Options {
	if o.FundingWindowDays <= 0 {
		o.FundingWindowDays = DefaultFundingWindowDays
	}
	tolerance := int64(DefaultAmountTolerance)
	if o.AmountTolerance != nil {
		tolerance = max(*o.AmountTolerance, 0)
	}
	o.AmountTolerance = &tolerance
	if o.MinOccurrences <= 0 {
		o.MinOccurrences = DefaultMinOccurrences
	}
	if o.AsOf.IsZero() {
		o.AsOf = txn.LatestDate(transactions)
	}
	return o
}

// FundingDeposit is the deposit believed to have funded a position.
type FundingDeposit struct {
	Date         time.Time       `json:"date"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	MatchedAlias bool            `json:"matched_alias"`
}

// Position is one detected financing position.
type Position struct {
	Lender       string          `json:"lender"`
	MatchedTerm  string          `json:"matched_term,omitempty"`
	Confidence   Confidence      `json:"confidence"`
	Frequency    Frequency       `json:"frequency"`
	Payment      decimal.Decimal `json:"payment_amount"`
	PaymentCount int             `json:"payment_count"`
	FirstPayment time.Time       `json:"first_payment"`
	LastPayment  time.Time       `json:"last_payment"`
	AverageGap   float64         `json:"average_gap_days"`

	FundingDeposit           *FundingDeposit `json:"funding_deposit,omitempty"`
	EstimatedOriginalFunding decimal.Decimal `json:"estimated_original_funding"`
	FactorRate               float64         `json:"factor_rate"`
	EstimatedPayback         decimal.Decimal `json:"estimated_payback"`
	TotalPaid                decimal.Decimal `json:"total_paid"`
	EstimatedRemaining       decimal.Decimal `json:"estimated_remaining"`
	PaidInPercent            float64         `json:"paid_in_percent"`
	EstimatedTermMonths      float64         `json:"estimated_term_months"`
	EstimatedPayoffDate      time.Time       `json:"estimated_payoff_date"`
	// EstimateUncertain is set when observed payments exceed the estimated payback.
	EstimateUncertain bool `json:"estimate_uncertain"`
}

// Identified reports whether the lender was matched by name.
func (p Position) Identified() bool {
	return p.Confidence == High
}

// DailyEquivalent returns the payment normalized to business days.
func (p Position) DailyEquivalent() decimal.Decimal {
	switch p.Frequency {
	case Weekly:
		return p.Payment.Div(decimal.NewFromInt(5))
	case Biweekly:
		return p.Payment.Div(decimal.NewFromInt(10))
	case Monthly:
		return p.Payment.Div(decimal.NewFromFloat(BusinessDaysPerMonth))
	}
	return p.Payment
}

// MonthlyEquivalent returns the payment normalized to a month.
func (p Position) MonthlyEquivalent() decimal.Decimal {
	switch p.Frequency {
	case Daily:
		return p.Payment.Mul(decimal.NewFromFloat(BusinessDaysPerMonth))
	case Weekly:
		return p.Payment.Mul(decimal.NewFromFloat(WeeksPerMonth))
	case Biweekly:
		return p.Payment.Mul(decimal.NewFromFloat(WeeksPerMonth / 2))
	}
	return p.Payment
}

// Summary is the detected position set and its aggregates.
type Summary struct {
	Positions            []Position      `json:"positions"`
	TotalDailyPayment    decimal.Decimal `json:"total_daily_payment"`
	TotalMonthlyPayment  decimal.Decimal `json:"total_monthly_payment"`
	TotalRemaining       decimal.Decimal `json:"total_remaining"`
	DaysSinceLastFunding *int            `json:"days_since_last_funding"`
	IdentifiedLenders    []string        `json:"identified_lenders"`
}

// Count returns the number of detected positions.
func (s Summary) Count() int {
	return len(s.Positions)
}

// Detect finds financing positions in a transaction list.
func Detect(transactions []txn.Transaction, dict *keywords.Dictionary, opts Options) Summary {
	opts = opts.withDefaults(transactions)

	var deposits []txn.Transaction
	for _, t := range transactions {
		if t.IsCredit() {
			deposits = append(deposits, t)
		}
	}

	summary := Summary{
		Positions:         []Position{},
		IdentifiedLenders: []string{},
	}

	for _, c := range clusterWithdrawals(transactions, opts) {
		freq, gap, ok := inferFrequency(c.members)
		if !ok {
			continue
		}

		lender, term, confidence, ok := identifyLender(c.members, freq, dict)
		if !ok {
			continue
		}

		p := Position{
			Lender:       lender,
			MatchedTerm:  term,
			Confidence:   confidence,
			Frequency:    freq,
			Payment:      c.mean(),
			PaymentCount: len(c.members),
			FirstPayment: c.members[0].Date,
			LastPayment:  c.members[len(c.members)-1].Date,
			AverageGap:   math.Round(gap*100) / 100,
			FactorRate:   dict.FactorRate(lender),
		}
		p.FundingDeposit = findFundingDeposit(p, deposits, dict, opts.FundingWindowDays)
		estimateTerms(&p)

		summary.Positions = append(summary.Positions, p)
	}

	sort.SliceStable(summary.Positions, func(i, j int) bool {
		return summary.Positions[i].FirstPayment.Before(summary.Positions[j].FirstPayment)
	})

	summarize(&summary, opts.AsOf)
	return summary
}

// identifyLender names a cluster: alias match first, then a generic financing
// keyword, then the recurring-debit safety net.
func identifyLender(members []txn.Transaction, freq Frequency, dict *keywords.Dictionary) (name, term string, confidence Confidence, ok bool) {
	// Prefer the lender matched by the most payments; ties keep the first seen.
	counts := make(map[string]int)
	aliases := make(map[string]string)
	var order []string
	for _, m := range members {
		if n, alias, found := dict.MatchLender(m.Description); found {
			if _, seen := counts[n]; !seen {
				order = append(order, n)
				aliases[n] = alias
			}
			counts[n]++
		}
	}
	best := ""
	for _, n := range order {
		if best == "" || counts[n] > counts[best] {
			best = n
		}
	}
	if best != "" {
		return best, aliases[best], High, true
	}

	for _, m := range members {
		if kw, found := dict.Match(keywords.GroupFinancing, m.Description); found {
			return "Unknown MCA (" + kw + ")", kw, Medium, true
		}
	}

	if (freq == Daily || freq == Weekly) && len(members) >= SafetyNetMinOccurrences {
		return UnknownRecurringDebit, "", Low, true
	}

	return "", "", "", false
}

// inferFrequency classifies the average gap between consecutive payments.
func inferFrequency(members []txn.Transaction) (Frequency, float64, bool) {
	if len(members) < 2 {
		return "", 0, false
	}

	total := 0
	for i := 1; i < len(members); i++ {
		total += txn.DaysBetween(members[i-1].Date, members[i].Date)
	}
	gap := float64(total) / float64(len(members)-1)

	switch {
	case gap <= 2:
		return Daily, gap, true
	case gap >= 5 && gap <= 9:
		return Weekly, gap, true
	case gap >= 12 && gap <= 18:
		return Biweekly, gap, true
	case gap >= 25 && gap <= 35:
		return Monthly, gap, true
	case gap <= 4:
		return Daily, gap, true
	}
	return "", gap, false
}

// findFundingDeposit searches the window ending on the first payment for the
// deposit that most likely funded the position.
func findFundingDeposit(p Position, deposits []txn.Transaction, dict *keywords.Dictionary, windowDays int) *FundingDeposit {
	minimum := p.Payment.Mul(decimal.NewFromInt(FundingPaymentMultiple))
	if minimum.LessThan(FundingFloor) {
		minimum = FundingFloor
	}

	var best, bestAlias *txn.Transaction
	for i := range deposits {
		d := &deposits[i]
		days := txn.DaysBetween(d.Date, p.FirstPayment)
		if days < 0 || days > windowDays || d.Amount.LessThan(minimum) {
			continue
		}
		if best == nil || d.Amount.GreaterThan(best.Amount) {
			best = d
		}
		if p.Identified() && dict.DescribesLender(d.Description, p.Lender) {
			if bestAlias == nil || d.Amount.GreaterThan(bestAlias.Amount) {
				bestAlias = d
			}
		}
	}

	if bestAlias != nil {
		return &FundingDeposit{Date: bestAlias.Date, Description: bestAlias.Description, Amount: bestAlias.Amount, MatchedAlias: true}
	}
	if best != nil {
		return &FundingDeposit{Date: best.Date, Description: best.Description, Amount: best.Amount}
	}
	return nil
}

// estimateTerms derives funding, payback, remaining balance, term and payoff date.
func estimateTerms(p *Position) {
	factor := decimal.NewFromFloat(p.FactorRate)

	if p.FundingDeposit != nil {
		p.EstimatedOriginalFunding = p.FundingDeposit.Amount
	} else {
		multiplier, ok := termMultipliers[p.Frequency]
		if !ok {
			multiplier = defaultTermMultiplier
		}
		p.EstimatedOriginalFunding = p.Payment.Mul(decimal.NewFromInt(multiplier)).Div(factor).Round(2)
	}

	p.EstimatedPayback = p.EstimatedOriginalFunding.Mul(factor).Round(2)
	p.TotalPaid = p.Payment.Mul(decimal.NewFromInt(int64(p.PaymentCount)))

	p.EstimatedRemaining = p.EstimatedPayback.Sub(p.TotalPaid)
	if p.EstimatedRemaining.IsNegative() {
		p.EstimatedRemaining = decimal.Zero
	}

	if p.EstimatedPayback.IsPositive() {
		pct := p.TotalPaid.Div(p.EstimatedPayback).InexactFloat64() * 100
		if pct > 100 {
			pct = 100
			p.EstimateUncertain = true
		}
		p.PaidInPercent = math.Round(pct*100) / 100
	}

	if !p.Payment.IsPositive() {
		p.EstimatedPayoffDate = p.LastPayment
		return
	}

	totalPayments := p.EstimatedPayback.Div(p.Payment).InexactFloat64()
	p.EstimatedTermMonths = math.Round(totalPayments/paymentsPerMonth(p.Frequency)*100) / 100

	remainingPayments := p.EstimatedRemaining.Div(p.Payment).InexactFloat64()
	// Round away float noise before taking the ceiling.
	calendarDays := math.Round(remainingPayments*calendarDaysPerPayment(p.Frequency)*1e6) / 1e6
	days := int(math.Ceil(calendarDays))
	p.EstimatedPayoffDate = p.LastPayment.AddDate(0, 0, days)
}

func paymentsPerMonth(f Frequency) float64 {
	switch f {
	case Daily:
		return BusinessDaysPerMonth
	case Weekly:
		return WeeksPerMonth
	}
	return 1
}

func calendarDaysPerPayment(f Frequency) float64 {
	switch f {
	case Daily:
		return 7.0 / 5.0
	case Weekly:
		return 7
	}
	return 30
}

func summarize(s *Summary, asOf time.Time) {
	seen := make(map[string]bool)
	for _, p := range s.Positions {
		s.TotalDailyPayment = s.TotalDailyPayment.Add(p.DailyEquivalent())
		s.TotalMonthlyPayment = s.TotalMonthlyPayment.Add(p.MonthlyEquivalent())
		s.TotalRemaining = s.TotalRemaining.Add(p.EstimatedRemaining)

		event := p.FirstPayment
		if p.FundingDeposit != nil {
			event = p.FundingDeposit.Date
		}
		days := txn.DaysBetween(event, asOf)
		if s.DaysSinceLastFunding == nil || days < *s.DaysSinceLastFunding {
			d := days
			s.DaysSinceLastFunding = &d
		}

		if p.Identified() && !seen[p.Lender] {
			seen[p.Lender] = true
			s.IdentifiedLenders = append(s.IdentifiedLenders, p.Lender)
		}
	}

	s.TotalDailyPayment = s.TotalDailyPayment.Round(2)
	s.TotalMonthlyPayment = s.TotalMonthlyPayment.Round(2)
	sort.Strings(s.IdentifiedLenders)
}
