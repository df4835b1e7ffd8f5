package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pigeonworks-llc/mca-underwriter/pkg/classifier"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/keywords"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/txn"
)

func testDictionary() *keywords.Dictionary {
	return keywords.New(keywords.Config{
		NSF:      []string{"NSF FEE", "RETURNED ITEM"},
		Cash:     []string{"CASH DEPOSIT"},
		Gambling: []string{"CASINO", "DRAFTKINGS"},
		RedFlags: []string{"GARNISHMENT", "TAX LEVY", "ATTORNEY", "STOP PAYMENT", "CHAPTER 13 TRUSTEE"},
		ExpenseCategories: []keywords.ExpenseCategory{
			{Name: "payroll", Keywords: []string{"PAYROLL", "GUSTO"}},
			{Name: "rent", Keywords: []string{"RENT"}},
		},
	})
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func entry(d int, desc, amount string) txn.Transaction {
	return txn.Transaction{Date: day(d), Description: desc, Amount: decimal.RequireFromString(amount)}
}

func withBalance(t txn.Transaction, balance string) txn.Transaction {
	t.Balance = decimal.NewNullDecimal(decimal.RequireFromString(balance))
	return t
}

func month(key string, net int64) classifier.MonthlyBucket {
	return classifier.MonthlyBucket{Month: key, NetDeposits: decimal.NewFromInt(net), GrossDeposits: decimal.NewFromInt(net)}
}

func TestScoreNSFAndNegativeDaysScenario(t *testing.T) {
	balances := []string{"100", "50", "-10", "-20", "-5", "30", "10", "-40", "5", "-1", "20", "-3"}
	var txns []txn.Transaction
	for i, b := range balances {
		txns = append(txns, withBalance(entry(i+1, "DAILY ACTIVITY", "1"), b))
	}
	for _, d := range []int{3, 4, 8, 10} {
		txns = append(txns, entry(d, "NSF FEE RETURNED CHECK", "-35"))
	}

	p := Score(txn.Merge(txns), nil, testDictionary())

	if p.NSFCount != 4 {
		t.Errorf("nsf count = %d, expected 4", p.NSFCount)
	}
	if !p.NSFTotalFees.Equal(decimal.RequireFromString("140.00")) {
		t.Errorf("nsf fees = %s, expected 140.00", p.NSFTotalFees)
	}
	if p.NegativeDays != 6 {
		t.Errorf("negative days = %d, expected 6", p.NegativeDays)
	}
	if p.ConsecutiveNegativeDays != 3 {
		t.Errorf("consecutive negative days = %d, expected 3", p.ConsecutiveNegativeDays)
	}
	if !p.MaxNegativeBalance.Equal(decimal.NewFromInt(-40)) {
		t.Errorf("max negative balance = %s, expected -40", p.MaxNegativeBalance)
	}
	if !p.AverageDailyBalance.Equal(decimal.RequireFromString("11.33")) {
		t.Errorf("average daily balance = %s, expected 11.33", p.AverageDailyBalance)
	}
	if p.Score != 63 || p.Tier != TierB {
		t.Errorf("score = %d/%s, expected 63/B", p.Score, p.Tier)
	}
}

func TestNegativeDaysUseEndOfDayBalance(t *testing.T) {
	txns := []txn.Transaction{
		withBalance(entry(2, "PAYROLL", "-5000"), "-1200"),
		withBalance(entry(2, "CARD SETTLEMENT", "3000"), "1800"),
		withBalance(entry(3, "RENT", "-2500"), "-700"),
	}

	p := Score(txns, nil, testDictionary())
	if p.NegativeDays != 1 {
		t.Errorf("negative days = %d, expected 1", p.NegativeDays)
	}
	if !p.Expenses["payroll"].Equal(decimal.NewFromInt(5000)) || !p.Expenses["rent"].Equal(decimal.NewFromInt(2500)) {
		t.Errorf("unexpected expenses %v", p.Expenses)
	}
}

func TestCashConcentration(t *testing.T) {
	txns := []txn.Transaction{
		entry(5, "CASH DEPOSIT BRANCH 12", "3000"),
		entry(6, "CARD SETTLEMENT", "7000"),
	}

	tests := []struct {
		name    string
		months  []classifier.MonthlyBucket
		percent float64
		flagged bool
	}{
		{"above threshold", []classifier.MonthlyBucket{month("2024-01", 10000)}, 30, true},
		{"below threshold", []classifier.MonthlyBucket{month("2024-01", 20000)}, 15, false},
		{"no revenue", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Score(txns, tt.months, testDictionary())
			if p.CashPercent != tt.percent || p.CashFlag != tt.flagged {
				t.Errorf("cash = %v/%v, expected %v/%v", p.CashPercent, p.CashFlag, tt.percent, tt.flagged)
			}
		})
	}
}

func TestRedFlagsAndGambling(t *testing.T) {
	txns := []txn.Transaction{
		entry(2, "WAGE GARNISHMENT ORDER", "-400"),
		entry(3, "STATE TAX LEVY", "-900"),
		entry(4, "ATTORNEY FEES LLC", "-250"),
		entry(5, "STOP PAYMENT FEE", "-30"),
		entry(6, "CHAPTER 13 TRUSTEE PMT", "-150"),
		entry(7, "DRAFTKINGS", "-200"),
		entry(8, "CASINO WINNINGS", "500"),
	}

	p := Score(txns, nil, testDictionary())

	want := []struct {
		severity Severity
		category string
	}{
		{SeverityHigh, CategoryLegal},
		{SeverityHigh, CategoryTax},
		{SeverityMedium, CategoryLegal},
		{SeverityMedium, CategoryOther},
		{SeverityMedium, CategoryBankruptcy},
	}
	if len(p.RedFlags) != len(want) {
		t.Fatalf("expected %d red flags, got %d", len(want), len(p.RedFlags))
	}
	for i, w := range want {
		if p.RedFlags[i].Severity != w.severity || p.RedFlags[i].Category != w.category {
			t.Errorf("flag %d (%s) = %s/%s, expected %s/%s", i, p.RedFlags[i].Keyword,
				p.RedFlags[i].Severity, p.RedFlags[i].Category, w.severity, w.category)
		}
	}

	if !p.GamblingFlag || !p.GamblingTotal.Equal(decimal.NewFromInt(700)) {
		t.Errorf("gambling = %v/%s, expected true/700", p.GamblingFlag, p.GamblingTotal)
	}
	// 100 - 15 gambling - 20 high - 15 medium (capped)
	if p.Score != 50 || p.Tier != TierC {
		t.Errorf("score = %d/%s, expected 50/C", p.Score, p.Tier)
	}
}

func TestVelocityFlags(t *testing.T) {
	tests := []struct {
		name   string
		months []classifier.MonthlyBucket
		flag   string
	}{
		{"accelerating decline", []classifier.MonthlyBucket{month("2024-01", 10000), month("2024-02", 9000), month("2024-03", 7500), month("2024-04", 5000)}, AcceleratingDecline},
		{"steady decline", []classifier.MonthlyBucket{month("2024-01", 10000), month("2024-02", 9000), month("2024-03", 8100)}, Declining},
		{"growth", []classifier.MonthlyBucket{month("2024-01", 10000), month("2024-02", 11000)}, Growth},
		{"flat", []classifier.MonthlyBucket{month("2024-01", 10000), month("2024-02", 10200)}, Stable},
		{"zero month skipped", []classifier.MonthlyBucket{month("2024-01", 0), month("2024-02", 5000), month("2024-03", 5000)}, Stable},
		{"single month", []classifier.MonthlyBucket{month("2024-01", 5000)}, Stable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := computeVelocity(tt.months)
			if v.Flag != tt.flag {
				t.Errorf("flag = %s, expected %s (avg %v, accel %v)", v.Flag, tt.flag, v.AverageChange, v.Acceleration)
			}
		})
	}

	v := computeVelocity([]classifier.MonthlyBucket{month("2024-01", 0), month("2024-02", 5000), month("2024-03", 5000)})
	if len(v.Changes) != 1 {
		t.Errorf("expected pair with zero revenue to be skipped, got %+v", v.Changes)
	}
}

func TestScoreBoundsAndTier(t *testing.T) {
	var txns []txn.Transaction
	for d := 1; d <= 20; d++ {
		txns = append(txns,
			withBalance(entry(d, "NSF FEE", "-35"), "-100"),
			entry(d, "WAGE GARNISHMENT", "-10"),
			entry(d, "ATTORNEY", "-10"),
			entry(d, "CASINO", "-10"),
			entry(d, "CASH DEPOSIT", "1000"),
		)
	}
	months := []classifier.MonthlyBucket{month("2023-11", 20000), month("2023-12", 15000), month("2024-01", 5000)}

	p := Score(txns, months, testDictionary())
	if p.Score != 0 || p.Tier != TierD {
		t.Errorf("score = %d/%s, expected 0/D", p.Score, p.Tier)
	}

	tiers := map[int]string{100: TierA, 80: TierA, 79: TierB, 60: TierB, 59: TierC, 40: TierC, 39: TierD, 0: TierD}
	for score, tier := range tiers {
		if got := TierFor(score); got != tier {
			t.Errorf("TierFor(%d) = %s, expected %s", score, got, tier)
		}
	}
}

func TestScoreEmpty(t *testing.T) {
	p := Score(nil, nil, nil)
	if p.Score != 100 || p.Tier != TierA {
		t.Errorf("score = %d/%s, expected 100/A", p.Score, p.Tier)
	}
	if p.Velocity.Flag != Stable || len(p.RedFlags) != 0 {
		t.Errorf("expected neutral profile, got %+v", p)
	}
}
