package deal

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pigeonworks-llc/mca-underwriter/pkg/classifier"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/lenders"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/positions"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/risk"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/txn"
)

func revenue(monthly int64, months int, depositsPerMonth float64) classifier.Result {
	r := classifier.Result{
		AverageMonthlyNet:   decimal.NewFromInt(monthly),
		AverageMonthlyGross: decimal.NewFromInt(monthly),
		DepositsPerMonth:    depositsPerMonth,
	}
	for i := 0; i < months; i++ {
		r.Months = append(r.Months, classifier.MonthlyBucket{
			Month:       time.Date(2024, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC).Format("2006-01"),
			NetDeposits: decimal.NewFromInt(monthly),
		})
	}
	return r
}

func dailyPosition(lender string, payment int64) positions.Position {
	return positions.Position{
		Lender:     lender,
		Confidence: positions.High,
		Frequency:  positions.Daily,
		Payment:    decimal.NewFromInt(payment),
	}
}

func positionSummary(ps ...positions.Position) positions.Summary {
	s := positions.Summary{Positions: ps}
	for _, p := range ps {
		s.TotalDailyPayment = s.TotalDailyPayment.Add(p.DailyEquivalent())
		s.TotalMonthlyPayment = s.TotalMonthlyPayment.Add(p.MonthlyEquivalent())
	}
	return s
}

func TestAggregateAffordability(t *testing.T) {
	// $15,000 revenue with a $6,000 monthly holdback leaves no room for new funding.
	loaded := Aggregate(Input{
		Classification: revenue(15000, 3, 12),
		Risk:           risk.Profile{Tier: risk.TierB},
		Positions:      positions.Summary{TotalMonthlyPayment: decimal.NewFromInt(6000)},
	}, Options{})

	if loaded.DebtToIncome != 0.4 || loaded.HoldbackPercent != 40 {
		t.Errorf("DTI = %v / %v%%, expected 0.4 / 40%%", loaded.DebtToIncome, loaded.HoldbackPercent)
	}
	if !loaded.NetAvailableRevenue.Equal(decimal.NewFromInt(9000)) {
		t.Errorf("net available = %s, expected 9000", loaded.NetAvailableRevenue)
	}
	if !loaded.MaxRecommendedFunding.IsZero() {
		t.Errorf("max funding = %s, expected 0", loaded.MaxRecommendedFunding)
	}
	if loaded.CashFlowCoverage != 0 {
		t.Errorf("coverage = %v, expected 0 without a payment", loaded.CashFlowCoverage)
	}
	if loaded.AdvanceCap.MinPercent != 12 || !loaded.AdvanceCap.Min.Equal(decimal.NewFromInt(21600)) || !loaded.AdvanceCap.Max.Equal(decimal.NewFromInt(36000)) {
		t.Errorf("unexpected advance cap %+v", loaded.AdvanceCap)
	}

	clean := Aggregate(Input{
		Classification: revenue(30000, 3, 20),
		Risk:           risk.Profile{Tier: risk.TierA},
	}, Options{DefaultFactorRate: 1.35})

	if !clean.MaxRecommendedFunding.Equal(decimal.RequireFromString("43410.85")) {
		t.Errorf("max funding = %s, expected 43410.85", clean.MaxRecommendedFunding)
	}
	if clean.TermDays != DefaultTermDays || clean.FactorRate != 1.35 {
		t.Errorf("term/factor = %d/%v", clean.TermDays, clean.FactorRate)
	}
	if !clean.ProposedDailyPayment.Equal(decimal.RequireFromString("488.37")) {
		t.Errorf("proposed daily = %s, expected 488.37", clean.ProposedDailyPayment)
	}
	if clean.CashFlowCoverage != 2.86 {
		t.Errorf("coverage = %v, expected 2.86", clean.CashFlowCoverage)
	}
}

func TestAggregateUsesApplicantTerms(t *testing.T) {
	s := Aggregate(Input{
		Classification: revenue(40000, 2, 30),
		Applicant: Applicant{
			ProposedFactorRate:   1.4,
			ProposedTermDays:     86,
			ProposedDailyPayment: decimal.NewFromInt(400),
		},
	}, Options{DefaultTermDays: 120, DefaultFactorRate: 1.35})

	if s.FactorRate != 1.4 || s.TermDays != 86 {
		t.Errorf("factor/term = %v/%d, expected 1.4/86", s.FactorRate, s.TermDays)
	}
	if !s.ProposedDailyPayment.Equal(decimal.NewFromInt(400)) {
		t.Errorf("proposed daily = %s, expected 400", s.ProposedDailyPayment)
	}
	// 400 x 21.5 = 8,600 of 40,000
	if s.CombinedHoldbackPercent != 21.5 {
		t.Errorf("combined holdback = %v, expected 21.5", s.CombinedHoldbackPercent)
	}
	if p := s.LenderProfile(); p.TermMonths != 4 || p.MonthlyRevenue != 40000 {
		t.Errorf("unexpected lender profile %+v", p)
	}
}

func TestDealScoreAndFlags(t *testing.T) {
	recent := 10
	ps := positionSummary(dailyPosition("OnDeck", 279))
	ps.Positions[0].EstimateUncertain = true
	ps.DaysSinceLastFunding = &recent

	in := Input{
		Classification: revenue(15000, 3, 3),
		Risk: risk.Profile{
			NSFCount:             4,
			NegativeDays:         6,
			BalanceDays:          60,
			AverageDailyBalance:  decimal.NewFromInt(300),
			CashFlag:             true,
			CashPercent:          32,
			GamblingFlag:         true,
			GamblingTotal:        decimal.NewFromInt(1250),
			GamblingTransactions: []txn.Transaction{{}, {}},
			RedFlags: []risk.RedFlag{
				{Severity: risk.SeverityHigh, Category: risk.CategoryLegal, Keyword: "GARNISHMENT", Date: time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)},
			},
			Velocity: risk.Velocity{Flag: risk.Declining, AverageChange: -8.2},
			Tier:     risk.TierC,
		},
		Positions:  ps,
		Applicant:  Applicant{FICO: 580, TimeInBusinessMonths: 8},
		Duplicates: []txn.DuplicateGroup{{Date: "2024-02-01"}},
	}

	s := Aggregate(in, Options{})

	// 279 x 21.5 = 5,998.50 monthly holdback, 39.99% of revenue.
	// 100 - 15 FICO - 12 NSF - 6 negative days - 5 position - 12 holdback
	//     - 8 time in business - 8 trend - 5 cash - 10 gambling - 5 high flag = 14
	if s.DealScore != 14 || s.DealTier != risk.TierD {
		t.Errorf("deal score = %d/%s, expected 14/D", s.DealScore, s.DealTier)
	}

	wants := []string{
		"Low FICO score (580)",
		"High NSF count (4)",
		"Frequent negative balance days (6)",
		"High current holdback (40.0% of revenue)",
		"High combined holdback",
		"Recent funding (10 days ago)",
		"Declining revenue trend (-8.2%",
		"Short time in business (8 months)",
		"Low average daily balance to daily payment ratio",
		"Low deposit frequency (3.0 deposits per month)",
		"Cash deposits are 32.0% of revenue",
		"Gambling activity ($1,250 across 2 transactions)",
		"HIGH Legal red flag: GARNISHMENT on 2024-02-03",
		"Possible duplicate transactions (1 groups)",
		"Position estimate uncertain: OnDeck",
	}
	if len(s.RiskFlags) != len(wants) {
		t.Fatalf("expected %d flags, got %d: %v", len(wants), len(s.RiskFlags), s.RiskFlags)
	}
	for i, want := range wants {
		if !strings.HasPrefix(s.RiskFlags[i], want) {
			t.Errorf("flag %d = %q, expected prefix %q", i, s.RiskFlags[i], want)
		}
	}
}

func TestDealScoreGrowthBonusIsClamped(t *testing.T) {
	s := Aggregate(Input{
		Classification: revenue(50000, 4, 40),
		Risk:           risk.Profile{Velocity: risk.Velocity{Flag: risk.Growth}, Tier: risk.TierA},
		Applicant:      Applicant{FICO: 720, TimeInBusinessMonths: 60},
	}, Options{})

	if s.DealScore != 100 || s.DealTier != risk.TierA {
		t.Errorf("deal score = %d/%s, expected 100/A", s.DealScore, s.DealTier)
	}
	if len(s.RiskFlags) != 0 {
		t.Errorf("expected no flags, got %v", s.RiskFlags)
	}
}

func TestAggregateEmpty(t *testing.T) {
	s := Aggregate(Input{}, Options{})

	if s.DealScore != 100 || s.DealTier != risk.TierA {
		t.Errorf("deal score = %d/%s, expected 100/A", s.DealScore, s.DealTier)
	}
	if !s.MaxRecommendedFunding.IsZero() || s.CashFlowCoverage != 0 || len(s.RiskFlags) != 0 {
		t.Errorf("expected neutral summary, got %+v", s)
	}
	if s.Months == nil || s.Excluded == nil || s.Lenders.Eligible == nil {
		t.Error("empty summary should serialize empty lists")
	}
}

func TestLenderProfileWithoutBalances(t *testing.T) {
	table := []lenders.Criteria{{Lender: "BalanceFloor", AllowsStacking: true, MinADB: ptrFloat(2500)}}

	tests := []struct {
		name         string
		risk         risk.Profile
		wantEligible bool
	}{
		{"statements without balances", risk.Profile{}, true},
		{"low observed balance", risk.Profile{BalanceDays: 30, AverageDailyBalance: decimal.NewFromInt(900)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Aggregate(Input{Classification: revenue(30000, 3, 20), Risk: tt.risk}, Options{})

			p := s.LenderProfile()
			if p.BalanceDays != tt.risk.BalanceDays {
				t.Errorf("balance days = %d, expected %d", p.BalanceDays, tt.risk.BalanceDays)
			}
			result := lenders.Match(p, table)
			if got := len(result.Eligible) == 1; got != tt.wantEligible {
				t.Errorf("eligible = %v, expected %v (%+v)", got, tt.wantEligible, result)
			}
		})
	}
}

func ptrFloat(v float64) *float64 { return &v }
