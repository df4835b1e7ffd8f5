package deal

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/pigeonworks-llc/mca-underwriter/pkg/risk"
)

// Risk flag thresholds.
const (
	lowFICO              = 600
	highNSFCount         = 3
	manyNegativeDays     = 5
	highHoldbackPercent  = 25.0
	highCombinedHoldback = 35.0
	manyPositions        = 3
	recentFundingDays    = 30
	shortTimeInBusiness  = 12
	lowADBToPaymentRatio = 1.5
	lowDepositsPerMonth  = 5.0
)

// dealScore starts at 100 and applies penalties and adjustments for the deal tier.
func dealScore(s Summary) int {
	score := 100

	if fico := s.Applicant.FICO; fico > 0 {
		switch {
		case fico < 550:
			score -= 25
		case fico < 600:
			score -= 15
		case fico < 650:
			score -= 8
		}
	}

	score -= min(s.Risk.NSFCount*3, 15)
	score -= min(s.Risk.NegativeDays, 15)
	score -= 5 * s.Positions.Count()

	switch {
	case s.HoldbackPercent > 40:
		score -= 20
	case s.HoldbackPercent > 30:
		score -= 12
	case s.HoldbackPercent > 20:
		score -= 6
	}

	if tib := s.Applicant.TimeInBusinessMonths; tib > 0 {
		switch {
		case tib < 6:
			score -= 15
		case tib < 12:
			score -= 8
		}
	}

	switch s.Risk.Velocity.Flag {
	case risk.Growth:
		score += 5
	case risk.Declining:
		score -= 8
	case risk.AcceleratingDecline:
		score -= 12
	}

	if s.Risk.CashFlag {
		score -= 5
	}
	if s.Risk.GamblingFlag {
		score -= 10
	}
	score -= min(s.Risk.HighSeverityCount()*5, 15)

	return max(0, min(100, score))
}

// riskFlags runs each threshold check independently; every crossing adds one flag.
func riskFlags(s Summary) []string {
	flags := []string{}
	add := func(format string, args ...any) {
		flags = append(flags, fmt.Sprintf(format, args...))
	}

	if fico := s.Applicant.FICO; fico > 0 && fico < lowFICO {
		add("Low FICO score (%d)", fico)
	}
	if n := s.Risk.NSFCount; n >= highNSFCount {
		add("High NSF count (%d)", n)
	}
	if n := s.Risk.NegativeDays; n >= manyNegativeDays {
		add("Frequent negative balance days (%d)", n)
	}
	if s.HoldbackPercent > highHoldbackPercent {
		add("High current holdback (%.1f%% of revenue)", s.HoldbackPercent)
	}
	if s.CombinedHoldbackPercent > highCombinedHoldback {
		add("High combined holdback with proposed payment (%.1f%% of revenue)", s.CombinedHoldbackPercent)
	}
	if n := s.Positions.Count(); n >= manyPositions {
		add("Heavy stacking (%d existing positions)", n)
	}
	if d := s.Positions.DaysSinceLastFunding; d != nil && *d <= recentFundingDays {
		add("Recent funding (%d days ago)", *d)
	}
	if v := s.Risk.Velocity; v.Flag == risk.Declining || v.Flag == risk.AcceleratingDecline {
		add("Declining revenue trend (%.1f%% average month-over-month)", v.AverageChange)
	}
	if tib := s.Applicant.TimeInBusinessMonths; tib > 0 && tib < shortTimeInBusiness {
		add("Short time in business (%d months)", tib)
	}

	daily := s.Positions.TotalDailyPayment.Add(s.ProposedDailyPayment)
	if s.Risk.BalanceDays > 0 && daily.IsPositive() {
		ratio := s.Risk.AverageDailyBalance.Div(daily).InexactFloat64()
		if ratio < lowADBToPaymentRatio {
			add("Low average daily balance to daily payment ratio (%.2fx)", ratio)
		}
	}
	if len(s.Months) > 0 && s.DepositsPerMonth < lowDepositsPerMonth {
		add("Low deposit frequency (%.1f deposits per month)", s.DepositsPerMonth)
	}

	if s.Risk.CashFlag {
		add("Cash deposits are %.1f%% of revenue", s.Risk.CashPercent)
	}
	if s.Risk.GamblingFlag {
		add("Gambling activity (%s across %d transactions)", money(s.Risk.GamblingTotal), len(s.Risk.GamblingTransactions))
	}
	for _, f := range s.Risk.RedFlags {
		add("%s %s red flag: %s on %s", f.Severity, f.Category, f.Keyword, f.Date.Format("2006-01-02"))
	}
	if n := len(s.Duplicates); n > 0 {
		add("Possible duplicate transactions (%d groups)", n)
	}
	for _, p := range s.Positions.Positions {
		if p.EstimateUncertain {
			add("Position estimate uncertain: %s payments exceed estimated payback", p.Lender)
		}
	}

	return flags
}

func money(d decimal.Decimal) string {
	return "$" + humanize.CommafWithDigits(d.Round(2).InexactFloat64(), 2)
}
