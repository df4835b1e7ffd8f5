// Package lenders filters and ranks a lender criteria table against a deal
// profile. Every criterion is evaluated so disqualifications carry the full
// list of failing reasons.
package lenders

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// Preference score parameters.
const (
	baseScore          = 50.0
	revenueBonusPerX   = 20.0
	revenueBonusCap    = 20.0
	ficoPointsPerBonus = 5.0
	ficoBonusCap       = 15.0
	capacityBonus      = 5.0
	holdbackBonus      = 10.0
)

// Criteria is one lender's underwriting box. Nil bounds are not enforced.
type Criteria struct {
	Lender                  string   `json:"lender"`
	MinMonthlyRevenue       *float64 `json:"min_monthly_revenue,omitempty"`
	MaxMonthlyRevenue       *float64 `json:"max_monthly_revenue,omitempty"`
	MinFICO                 *int     `json:"min_fico,omitempty"`
	MaxNSF                  *int     `json:"max_nsf,omitempty"`
	MaxNegativeDays         *int     `json:"max_negative_days,omitempty"`
	MaxPositions            *int     `json:"max_positions,omitempty"`
	AllowsStacking          bool     `json:"allows_stacking"`
	MinTimeInBusinessMonths *int     `json:"min_time_in_business_months,omitempty"`
	MinOwnershipPct         *float64 `json:"min_ownership_pct,omitempty"`
	MinADB                  *float64 `json:"min_adb,omitempty"`
	MaxHoldbackPct          *float64 `json:"max_holdback_pct,omitempty"`
	MinAdvance              *float64 `json:"min_advance,omitempty"`
	MaxAdvance              *float64 `json:"max_advance,omitempty"`
	MinTermMonths           *float64 `json:"min_term_months,omitempty"`
	MaxTermMonths           *float64 `json:"max_term_months,omitempty"`
	ExcludedStates          []string `json:"excluded_states,omitempty"`
	ExcludedIndustries      []string `json:"excluded_industries,omitempty"`
}

// Profile is the deal as seen by lenders. Zero-valued applicant facts
// (FICO, time in business, ownership, state, industry, requested amount,
// term) are unknown and their criteria are not evaluated. The average daily
// balance is unknown when BalanceDays is zero.
type Profile struct {
	MonthlyRevenue       float64 `json:"monthly_revenue"`
	FICO                 int     `json:"fico"`
	NSFCount             int     `json:"nsf_count"`
	NegativeDays         int     `json:"negative_days"`
	PositionCount        int     `json:"position_count"`
	TimeInBusinessMonths int     `json:"time_in_business_months"`
	OwnershipPct         float64 `json:"ownership_pct"`
	AverageDailyBalance  float64 `json:"average_daily_balance"`
	BalanceDays          int     `json:"balance_days"`
	HoldbackPct          float64 `json:"holdback_pct"`
	State                string  `json:"state"`
	Industry             string  `json:"industry"`
	RequestedAmount      float64 `json:"requested_amount"`
	TermMonths           float64 `json:"term_months"`
}

// Eligible is a lender that passed every criterion.
type Eligible struct {
	Lender string  `json:"lender"`
	Score  float64 `json:"score"`
}

// Disqualified is a lender with at least one failing criterion.
type Disqualified struct {
	Lender  string   `json:"lender"`
	Reasons []string `json:"reasons"`
}

// Result is the outcome of matching a profile against a criteria table.
type Result struct {
	Eligible     []Eligible     `json:"eligible"`
	Disqualified []Disqualified `json:"disqualified"`
}

// Match evaluates every lender. Eligible lenders are sorted by descending
// preference score, ties keeping table order.
func Match(profile Profile, table []Criteria) Result {
	result := Result{Eligible: []Eligible{}, Disqualified: []Disqualified{}}

	for _, c := range table {
		if reasons := Evaluate(profile, c); len(reasons) > 0 {
			result.Disqualified = append(result.Disqualified, Disqualified{Lender: c.Lender, Reasons: reasons})
			continue
		}
		result.Eligible = append(result.Eligible, Eligible{Lender: c.Lender, Score: PreferenceScore(profile, c)})
	}

	sort.SliceStable(result.Eligible, func(i, j int) bool {
		return result.Eligible[i].Score > result.Eligible[j].Score
	})
	return result
}

// Evaluate returns every reason the profile fails the lender's criteria.
func Evaluate(p Profile, c Criteria) []string {
	var reasons []string
	fail := func(format string, args ...any) {
		reasons = append(reasons, fmt.Sprintf(format, args...))
	}

	if c.MinMonthlyRevenue != nil && p.MonthlyRevenue < *c.MinMonthlyRevenue {
		fail("monthly revenue %s below minimum %s", money(p.MonthlyRevenue), money(*c.MinMonthlyRevenue))
	}
	if c.MaxMonthlyRevenue != nil && p.MonthlyRevenue > *c.MaxMonthlyRevenue {
		fail("monthly revenue %s above maximum %s", money(p.MonthlyRevenue), money(*c.MaxMonthlyRevenue))
	}
	if c.MinFICO != nil && p.FICO > 0 && p.FICO < *c.MinFICO {
		fail("FICO %d below minimum %d", p.FICO, *c.MinFICO)
	}
	if c.MaxNSF != nil && p.NSFCount > *c.MaxNSF {
		fail("%d NSF events exceed maximum %d", p.NSFCount, *c.MaxNSF)
	}
	if c.MaxNegativeDays != nil && p.NegativeDays > *c.MaxNegativeDays {
		fail("%d negative balance days exceed maximum %d", p.NegativeDays, *c.MaxNegativeDays)
	}
	if c.MaxPositions != nil && p.PositionCount > *c.MaxPositions {
		fail("%d existing positions exceed maximum %d", p.PositionCount, *c.MaxPositions)
	}
	if !c.AllowsStacking && p.PositionCount > 0 {
		fail("stacking not allowed (%d existing positions)", p.PositionCount)
	}
	if c.MinTimeInBusinessMonths != nil && p.TimeInBusinessMonths > 0 && p.TimeInBusinessMonths < *c.MinTimeInBusinessMonths {
		fail("time in business %d months below minimum %d", p.TimeInBusinessMonths, *c.MinTimeInBusinessMonths)
	}
	if c.MinOwnershipPct != nil && p.OwnershipPct > 0 && p.OwnershipPct < *c.MinOwnershipPct {
		fail("ownership %.0f%% below minimum %.0f%%", p.OwnershipPct, *c.MinOwnershipPct)
	}
	if c.MinADB != nil && p.BalanceDays > 0 && p.AverageDailyBalance < *c.MinADB {
		fail("average daily balance %s below minimum %s", money(p.AverageDailyBalance), money(*c.MinADB))
	}
	if c.MaxHoldbackPct != nil && p.HoldbackPct > *c.MaxHoldbackPct {
		fail("holdback %.1f%% exceeds maximum %.1f%%", p.HoldbackPct, *c.MaxHoldbackPct)
	}
	if p.RequestedAmount > 0 {
		if c.MinAdvance != nil && p.RequestedAmount < *c.MinAdvance {
			fail("requested %s below minimum advance %s", money(p.RequestedAmount), money(*c.MinAdvance))
		}
		if c.MaxAdvance != nil && p.RequestedAmount > *c.MaxAdvance {
			fail("requested %s above maximum advance %s", money(p.RequestedAmount), money(*c.MaxAdvance))
		}
	}
	if p.TermMonths > 0 {
		if c.MinTermMonths != nil && p.TermMonths < *c.MinTermMonths {
			fail("term %.1f months below minimum %.1f", p.TermMonths, *c.MinTermMonths)
		}
		if c.MaxTermMonths != nil && p.TermMonths > *c.MaxTermMonths {
			fail("term %.1f months above maximum %.1f", p.TermMonths, *c.MaxTermMonths)
		}
	}
	if p.State != "" && containsFold(c.ExcludedStates, p.State) {
		fail("state %s excluded", strings.ToUpper(p.State))
	}
	if p.Industry != "" && containsFold(c.ExcludedIndustries, p.Industry) {
		fail("industry %s excluded", p.Industry)
	}

	return reasons
}

// PreferenceScore ranks an eligible lender by the headroom the deal leaves
// above each of its limits.
func PreferenceScore(p Profile, c Criteria) float64 {
	score := baseScore

	if c.MinMonthlyRevenue != nil && *c.MinMonthlyRevenue > 0 {
		ratio := p.MonthlyRevenue / *c.MinMonthlyRevenue
		if ratio > 1 {
			score += math.Min((ratio-1)*revenueBonusPerX, revenueBonusCap)
		}
	}
	if c.MinFICO != nil && p.FICO > *c.MinFICO {
		score += math.Min(float64(p.FICO-*c.MinFICO)/ficoPointsPerBonus, ficoBonusCap)
	}
	if c.MaxNSF != nil {
		score += remainingCapacity(p.NSFCount, *c.MaxNSF)
	}
	if c.MaxNegativeDays != nil {
		score += remainingCapacity(p.NegativeDays, *c.MaxNegativeDays)
	}
	if c.MaxHoldbackPct != nil && *c.MaxHoldbackPct > 0 {
		limit := *c.MaxHoldbackPct
		score += math.Max(0, holdbackBonus*(limit-p.HoldbackPct)/limit)
	}

	score = math.Max(0, math.Min(100, score))
	return math.Round(score*100) / 100
}

// remainingCapacity awards up to capacityBonus for unused allowance.
func remainingCapacity(used, limit int) float64 {
	if limit <= 0 {
		if used == 0 {
			return capacityBonus
		}
		return 0
	}
	bonus := capacityBonus * float64(limit-used) / float64(limit)
	return math.Max(0, math.Min(bonus, capacityBonus))
}

func containsFold(list []string, value string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(value)) {
			return true
		}
	}
	return false
}

// money formats whole-dollar amounts as "$20,000".
func money(v float64) string {
	return "$" + humanize.Comma(int64(math.Round(v)))
}
