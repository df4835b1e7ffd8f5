// Package deal combines classifier, risk and position results into a single
// deal summary with affordability metrics, a business tier and readable risk
// flags.
package deal

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/pigeonworks-llc/mca-underwriter/pkg/classifier"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/keywords"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/lenders"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/positions"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/risk"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/txn"
)

const (
	// BusinessDaysPerMonth converts monthly figures to business-day figures.
	BusinessDaysPerMonth = 21.5
	// DefaultTermDays is the assumed advance term in business days.
	DefaultTermDays = 120
	// AffordabilityShare is the share of monthly revenue that total holdback may reach.
	AffordabilityShare = 0.35
)

// advanceCaps is the advance range, in percent of annual revenue, per risk tier.
var advanceCaps = map[string][2]float64{
	risk.TierA: {15, 25},
	risk.TierB: {12, 20},
	risk.TierC: {10, 15},
	risk.TierD: {8, 12},
}

// Applicant holds facts supplied with the application. Zero values are unknown.
type Applicant struct {
	MerchantName         string          `json:"merchant_name,omitempty"`
	FICO                 int             `json:"fico,omitempty"`
	TimeInBusinessMonths int             `json:"time_in_business_months,omitempty"`
	OwnershipPct         float64         `json:"ownership_pct,omitempty"`
	State                string          `json:"state,omitempty"`
	Industry             string          `json:"industry,omitempty"`
	RequestedAmount      decimal.Decimal `json:"requested_amount"`
	ProposedFactorRate   float64         `json:"proposed_factor_rate,omitempty"`
	ProposedTermDays     int             `json:"proposed_term_days,omitempty"`
	ProposedDailyPayment decimal.Decimal `json:"proposed_daily_payment"`
}

// Options holds the defaults applied when the applicant leaves terms unset.
type Options struct {
	DefaultTermDays   int
	DefaultFactorRate float64
}

// Input gathers the upstream results for Aggregate.
type Input struct {
	Classification classifier.Result
	Risk           risk.Profile
	Positions      positions.Summary
	Lenders        lenders.Result
	Applicant      Applicant
	Coverage       txn.Coverage
	Duplicates     []txn.DuplicateGroup
}

// AdvanceCap is the recommended advance range for the risk tier.
type AdvanceCap struct {
	MinPercent float64         `json:"min_percent"`
	MaxPercent float64         `json:"max_percent"`
	Min        decimal.Decimal `json:"min"`
	Max        decimal.Decimal `json:"max"`
}

// Summary is the final deal record.
type Summary struct {
	Applicant Applicant    `json:"applicant"`
	Coverage  txn.Coverage `json:"coverage"`

	MonthlyRevenue   decimal.Decimal            `json:"monthly_revenue"`
	MonthlyGross     decimal.Decimal            `json:"monthly_gross"`
	Months           []classifier.MonthlyBucket `json:"months"`
	DepositsPerMonth float64                    `json:"deposits_per_month"`
	Excluded         []classifier.Exclusion     `json:"excluded"`
	Risk             risk.Profile               `json:"risk"`
	Positions        positions.Summary          `json:"positions"`
	Duplicates       []txn.DuplicateGroup       `json:"duplicates"`

	MonthlyHoldback         decimal.Decimal `json:"monthly_holdback"`
	DebtToIncome            float64         `json:"debt_to_income"`
	HoldbackPercent         float64         `json:"holdback_percent"`
	NetAvailableRevenue     decimal.Decimal `json:"net_available_revenue"`
	FactorRate              float64         `json:"factor_rate"`
	TermDays                int             `json:"term_days"`
	MaxRecommendedFunding   decimal.Decimal `json:"max_recommended_funding"`
	AdvanceCap              AdvanceCap      `json:"advance_cap"`
	ProposedDailyPayment    decimal.Decimal `json:"proposed_daily_payment"`
	CombinedHoldbackPercent float64         `json:"combined_holdback_percent"`
	CashFlowCoverage        float64         `json:"cash_flow_coverage"`

	DealScore int      `json:"deal_score"`
	DealTier  string   `json:"deal_tier"`
	RiskFlags []string `json:"risk_flags"`

	Lenders lenders.Result `json:"lenders"`
}

// Aggregate derives the deal summary from upstream results.
func Aggregate(in Input, opts Options) Summary {
	cls := in.Classification
	s := Summary{
		Applicant:        in.Applicant,
		Coverage:         in.Coverage,
		MonthlyRevenue:   cls.AverageMonthlyNet,
		MonthlyGross:     cls.AverageMonthlyGross,
		Months:           cls.Months,
		DepositsPerMonth: math.Round(cls.DepositsPerMonth*100) / 100,
		Excluded:         cls.Excluded,
		Risk:             in.Risk,
		Positions:        in.Positions,
		Duplicates:       in.Duplicates,
		MonthlyHoldback:  in.Positions.TotalMonthlyPayment,
		Lenders:          in.Lenders,
	}
	if s.Months == nil {
		s.Months = []classifier.MonthlyBucket{}
	}
	if s.Excluded == nil {
		s.Excluded = []classifier.Exclusion{}
	}
	if s.Duplicates == nil {
		s.Duplicates = []txn.DuplicateGroup{}
	}
	if s.Lenders.Eligible == nil {
		s.Lenders = lenders.Result{Eligible: []lenders.Eligible{}, Disqualified: []lenders.Disqualified{}}
	}

	s.FactorRate = firstPositive(in.Applicant.ProposedFactorRate, opts.DefaultFactorRate, keywords.DefaultFactorRate)
	s.TermDays = in.Applicant.ProposedTermDays
	if s.TermDays <= 0 {
		s.TermDays = opts.DefaultTermDays
	}
	if s.TermDays <= 0 {
		s.TermDays = DefaultTermDays
	}

	revenue := s.MonthlyRevenue
	holdback := s.MonthlyHoldback
	businessDays := decimal.NewFromFloat(BusinessDaysPerMonth)
	factor := decimal.NewFromFloat(s.FactorRate)
	term := decimal.NewFromInt(int64(s.TermDays))

	if revenue.IsPositive() {
		s.DebtToIncome = round(holdback.Div(revenue).InexactFloat64(), 4)
		s.HoldbackPercent = round(s.DebtToIncome*100, 2)
	}
	s.NetAvailableRevenue = revenue.Sub(holdback)

	bracket := revenue.Mul(decimal.NewFromFloat(AffordabilityShare)).Sub(holdback)
	if bracket.IsPositive() {
		s.MaxRecommendedFunding = bracket.Div(businessDays).Mul(term).Div(factor).Round(2)
	}

	caps := advanceCaps[in.Risk.Tier]
	if in.Risk.Tier == "" {
		caps = advanceCaps[risk.TierA]
	}
	annual := revenue.Mul(decimal.NewFromInt(12))
	s.AdvanceCap = AdvanceCap{
		MinPercent: caps[0],
		MaxPercent: caps[1],
		Min:        annual.Mul(decimal.NewFromFloat(caps[0] / 100)).Round(2),
		Max:        annual.Mul(decimal.NewFromFloat(caps[1] / 100)).Round(2),
	}

	s.ProposedDailyPayment = in.Applicant.ProposedDailyPayment
	if !s.ProposedDailyPayment.IsPositive() {
		s.ProposedDailyPayment = s.MaxRecommendedFunding.Mul(factor).Div(term).Round(2)
	}

	if s.ProposedDailyPayment.IsPositive() {
		netDaily := s.NetAvailableRevenue.Div(businessDays)
		s.CashFlowCoverage = round(netDaily.Div(s.ProposedDailyPayment).InexactFloat64(), 2)
	}
	if revenue.IsPositive() {
		combined := holdback.Add(s.ProposedDailyPayment.Mul(businessDays))
		s.CombinedHoldbackPercent = round(combined.Div(revenue).InexactFloat64()*100, 2)
	}

	s.DealScore = dealScore(s)
	s.DealTier = risk.TierFor(s.DealScore)
	s.RiskFlags = riskFlags(s)

	return s
}

// LenderProfile projects the summary onto the lender matcher's view of the deal.
func (s Summary) LenderProfile() lenders.Profile {
	p := lenders.Profile{
		MonthlyRevenue:       s.MonthlyRevenue.InexactFloat64(),
		FICO:                 s.Applicant.FICO,
		NSFCount:             s.Risk.NSFCount,
		NegativeDays:         s.Risk.NegativeDays,
		PositionCount:        s.Positions.Count(),
		TimeInBusinessMonths: s.Applicant.TimeInBusinessMonths,
		OwnershipPct:         s.Applicant.OwnershipPct,
		AverageDailyBalance:  s.Risk.AverageDailyBalance.InexactFloat64(),
		BalanceDays:          s.Risk.BalanceDays,
		HoldbackPct:          s.HoldbackPercent,
		State:                s.Applicant.State,
		Industry:             s.Applicant.Industry,
		RequestedAmount:      s.Applicant.RequestedAmount.InexactFloat64(),
	}
	if s.Applicant.ProposedTermDays > 0 {
		p.TermMonths = round(float64(s.Applicant.ProposedTermDays)/BusinessDaysPerMonth, 2)
	}
	return p
}

func firstPositive(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
