package positions

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pigeonworks-llc/mca-underwriter/pkg/keywords"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/txn"
)

func testDictionary() *keywords.Dictionary {
	return keywords.New(keywords.Config{
		Financing: []string{"FUNDING", "CAPITAL"},
		Lenders: keywords.LenderTiers{
			Tier1: []keywords.Lender{{Name: "OnDeck", Aliases: []string{"ON DECK", "ON DECK CAPITAL", "ONDECK"}}},
			Tier2: []keywords.Lender{{Name: "Credibly", Aliases: []string{"CREDIBLY"}}},
		},
	})
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func debit(d time.Time, desc string, amount string) txn.Transaction {
	return txn.Transaction{Date: d, Description: desc, Amount: decimal.RequireFromString(amount).Neg()}
}

func credit(d time.Time, desc string, amount string) txn.Transaction {
	return txn.Transaction{Date: d, Description: desc, Amount: decimal.RequireFromString(amount)}
}

// businessDays returns n consecutive weekdays starting at start.
func businessDays(start time.Time, n int) []time.Time {
	var days []time.Time
	for d := start; len(days) < n; d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			days = append(days, d)
		}
	}
	return days
}

func onDeckScenario() []txn.Transaction {
	first := date(2024, 3, 4) // Monday
	txns := []txn.Transaction{
		credit(first.AddDate(0, 0, -3), "ON DECK CAPITAL", "40000"),
		credit(first.AddDate(0, 0, -2), "CARD SETTLEMENT", "1800"),
		debit(first.AddDate(0, 0, 2), "RENT", "4500"),
	}
	for _, d := range businessDays(first, 30) {
		txns = append(txns,
			debit(d, "ON DECK CAPITAL ACH DEBIT", "300"),
			credit(d, "CARD SETTLEMENT", "950"),
		)
	}
	return txn.Merge(txns)
}

func TestDetectOnDeckScenario(t *testing.T) {
	summary := Detect(onDeckScenario(), testDictionary(), Options{})

	if summary.Count() != 1 {
		t.Fatalf("expected 1 position, got %d: %+v", summary.Count(), summary.Positions)
	}
	p := summary.Positions[0]

	if p.Lender != "OnDeck" {
		t.Errorf("lender = %q, expected OnDeck", p.Lender)
	}
	if p.Frequency != Daily {
		t.Errorf("frequency = %q, expected daily", p.Frequency)
	}
	if p.Confidence != High {
		t.Errorf("confidence = %q, expected high", p.Confidence)
	}
	if p.PaymentCount != 30 || !p.Payment.Equal(decimal.NewFromInt(300)) {
		t.Errorf("payments = %d x %s, expected 30 x 300", p.PaymentCount, p.Payment)
	}
	if p.FundingDeposit == nil || !p.FundingDeposit.MatchedAlias {
		t.Fatalf("expected alias-matched funding deposit, got %+v", p.FundingDeposit)
	}
	if !p.EstimatedOriginalFunding.Equal(decimal.NewFromInt(40000)) {
		t.Errorf("original funding = %s, expected 40000", p.EstimatedOriginalFunding)
	}
	if !p.EstimatedPayback.Equal(decimal.NewFromInt(54000)) {
		t.Errorf("payback = %s, expected 54000", p.EstimatedPayback)
	}
	if !p.EstimatedRemaining.Equal(decimal.NewFromInt(45000)) {
		t.Errorf("remaining = %s, expected 45000", p.EstimatedRemaining)
	}
	if p.PaidInPercent != 16.67 {
		t.Errorf("paid in = %v, expected 16.67", p.PaidInPercent)
	}
	if p.EstimatedTermMonths != 8.37 {
		t.Errorf("term months = %v, expected 8.37", p.EstimatedTermMonths)
	}
	if want := p.LastPayment.AddDate(0, 0, 210); !p.EstimatedPayoffDate.Equal(want) {
		t.Errorf("payoff = %v, expected %v", p.EstimatedPayoffDate, want)
	}

	if !summary.TotalDailyPayment.Equal(decimal.NewFromInt(300)) {
		t.Errorf("total daily = %s, expected 300", summary.TotalDailyPayment)
	}
	if !summary.TotalMonthlyPayment.Equal(decimal.NewFromInt(6450)) {
		t.Errorf("total monthly = %s, expected 6450", summary.TotalMonthlyPayment)
	}
	if summary.DaysSinceLastFunding == nil || *summary.DaysSinceLastFunding != 42 {
		t.Errorf("days since funding = %v, expected 42", summary.DaysSinceLastFunding)
	}
	if len(summary.IdentifiedLenders) != 1 || summary.IdentifiedLenders[0] != "OnDeck" {
		t.Errorf("identified lenders = %v", summary.IdentifiedLenders)
	}
}

func TestDetectEstimatesFundingWithoutDeposit(t *testing.T) {
	var txns []txn.Transaction
	for i := 0; i < 6; i++ {
		txns = append(txns, debit(date(2024, 1, 5).AddDate(0, 0, 7*i), "XYZ FUNDING LLC", "1000"))
	}

	summary := Detect(txns, testDictionary(), Options{})
	if summary.Count() != 1 {
		t.Fatalf("expected 1 position, got %d", summary.Count())
	}
	p := summary.Positions[0]

	if p.Lender != "Unknown MCA (FUNDING)" || p.Confidence != Medium {
		t.Errorf("got %q/%q, expected Unknown MCA (FUNDING)/medium", p.Lender, p.Confidence)
	}
	if p.Frequency != Weekly {
		t.Errorf("frequency = %q, expected weekly", p.Frequency)
	}
	if p.FundingDeposit != nil {
		t.Errorf("expected no funding deposit, got %+v", p.FundingDeposit)
	}
	if !p.EstimatedOriginalFunding.Equal(decimal.RequireFromString("33333.33")) {
		t.Errorf("original funding = %s, expected 33333.33", p.EstimatedOriginalFunding)
	}
	if !summary.TotalDailyPayment.Equal(decimal.NewFromInt(200)) {
		t.Errorf("daily equivalent = %s, expected 200", summary.TotalDailyPayment)
	}
	if !summary.TotalMonthlyPayment.Equal(decimal.NewFromInt(4330)) {
		t.Errorf("monthly equivalent = %s, expected 4330", summary.TotalMonthlyPayment)
	}
	if len(summary.IdentifiedLenders) != 0 {
		t.Errorf("unknown lenders must not be listed, got %v", summary.IdentifiedLenders)
	}
}

func TestDetectOverpaidPositionIsClamped(t *testing.T) {
	var txns []txn.Transaction
	for i := 0; i < 14; i++ {
		txns = append(txns, debit(date(2023, 1, 15).AddDate(0, i, 0), "ONDECK PAYMENT", "2000"))
	}

	summary := Detect(txns, testDictionary(), Options{})
	if summary.Count() != 1 {
		t.Fatalf("expected 1 position, got %d", summary.Count())
	}
	p := summary.Positions[0]

	if p.Frequency != Monthly {
		t.Errorf("frequency = %q, expected monthly", p.Frequency)
	}
	if !p.EstimatedRemaining.IsZero() {
		t.Errorf("remaining = %s, expected 0", p.EstimatedRemaining)
	}
	if p.PaidInPercent != 100 || !p.EstimateUncertain {
		t.Errorf("expected clamped paid-in with uncertainty, got %v / %v", p.PaidInPercent, p.EstimateUncertain)
	}
	if !p.EstimatedPayoffDate.Equal(p.LastPayment) {
		t.Errorf("payoff = %v, expected last payment %v", p.EstimatedPayoffDate, p.LastPayment)
	}
}

func TestDetectClusterRules(t *testing.T) {
	start := date(2024, 5, 6)
	days := businessDays(start, 12)

	tests := []struct {
		name       string
		txns       []txn.Transaction
		wantCount  int
		wantLender string
	}{
		{
			name: "below minimum occurrences",
			txns: []txn.Transaction{
				debit(days[0], "CREDIBLY", "250"),
				debit(days[1], "CREDIBLY", "250"),
				debit(days[2], "CREDIBLY", "250"),
			},
			wantCount: 0,
		},
		{
			name: "fee drift merged within tolerance",
			txns: []txn.Transaction{
				debit(days[0], "CREDIBLY", "250.00"),
				debit(days[1], "CREDIBLY", "251.10"),
				debit(days[2], "CREDIBLY", "249.80"),
				debit(days[3], "CREDIBLY", "250.40"),
			},
			wantCount:  1,
			wantLender: "Credibly",
		},
		{
			name: "irregular gaps dropped",
			txns: []txn.Transaction{
				debit(start, "CREDIBLY", "250"),
				debit(start.AddDate(0, 0, 20), "CREDIBLY", "250"),
				debit(start.AddDate(0, 0, 40), "CREDIBLY", "250"),
				debit(start.AddDate(0, 0, 60), "CREDIBLY", "250"),
			},
			wantCount: 0,
		},
		{
			name:       "safety net for frequent unlabelled debit",
			txns:       repeat(days[:8], "ACH DEBIT XYZ CORP", "77"),
			wantCount:  1,
			wantLender: UnknownRecurringDebit,
		},
		{
			name:      "unlabelled debit below safety net",
			txns:      repeat(days[:7], "ACH DEBIT XYZ CORP", "77"),
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary := Detect(tt.txns, testDictionary(), Options{})
			if summary.Count() != tt.wantCount {
				t.Fatalf("expected %d positions, got %d", tt.wantCount, summary.Count())
			}
			if tt.wantCount > 0 && summary.Positions[0].Lender != tt.wantLender {
				t.Errorf("lender = %q, expected %q", summary.Positions[0].Lender, tt.wantLender)
			}
		})
	}
}

func TestDetectToleranceOption(t *testing.T) {
	days := businessDays(date(2024, 5, 6), 8)
	var txns []txn.Transaction
	for i, d := range days {
		amount := "250"
		if i%2 == 1 {
			amount = "251"
		}
		txns = append(txns, debit(d, "CREDIBLY", amount))
	}

	tolerance := func(v int64) *int64 { return &v }

	// Without merging each bucket has 4 members spaced two business days apart.
	tests := []struct {
		name      string
		tolerance *int64
		want      int
	}{
		{"default merges", nil, 1},
		{"zero keeps exact amounts", tolerance(0), 2},
		{"negative keeps exact amounts", tolerance(-1), 2},
		{"wide tolerance merges", tolerance(5), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(txns, testDictionary(), Options{AmountTolerance: tt.tolerance})
			if got.Count() != tt.want {
				t.Errorf("expected %d positions, got %d", tt.want, got.Count())
			}
		})
	}
}

// everyNDays returns n dates spaced gap calendar days apart.
func everyNDays(start time.Time, gap, n int) []time.Time {
	days := make([]time.Time, n)
	for i := range days {
		days[i] = start.AddDate(0, 0, gap*i)
	}
	return days
}

func TestDetectFrequencyBands(t *testing.T) {
	tests := []struct {
		gap  int
		want Frequency
	}{
		{1, Daily},
		{2, Daily},
		{3, Daily},
		{4, Daily},
		{5, Weekly},
		{9, Weekly},
		{10, ""},
		{12, Biweekly},
		{18, Biweekly},
		{21, ""},
		{25, Monthly},
		{35, Monthly},
		{40, ""},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("every %d days", tt.gap), func(t *testing.T) {
			txns := repeat(everyNDays(date(2024, 1, 3), tt.gap, 6), "CREDIBLY ACH", "500")
			summary := Detect(txns, testDictionary(), Options{})

			if tt.want == "" {
				if summary.Count() != 0 {
					t.Errorf("expected no position, got %s", summary.Positions[0].Frequency)
				}
				return
			}
			if summary.Count() != 1 {
				t.Fatalf("expected 1 position, got %d", summary.Count())
			}
			if got := summary.Positions[0].Frequency; got != tt.want {
				t.Errorf("frequency = %q, expected %q", got, tt.want)
			}
		})
	}
}

func TestDetectTermsByFrequency(t *testing.T) {
	start := date(2024, 1, 15)
	monthly := make([]time.Time, 4)
	for i := range monthly {
		monthly[i] = start.AddDate(0, i, 0)
	}

	// No funding deposits: original funding comes from the term multiplier at
	// the default 1.35 factor rate.
	tests := []struct {
		name           string
		days           []time.Time
		freq           Frequency
		wantDaily      string
		wantMonthly    string
		wantRemaining  string
		wantTermMonths float64
		wantPayoffDays int
	}{
		{"daily by second check", everyNDays(start, 3, 6), Daily, "1000", "21500", "154000", 7.44, 216},
		{"weekly", everyNDays(start, 7, 6), Weekly, "200", "4330", "39000", 10.39, 273},
		{"biweekly", everyNDays(start, 14, 6), Biweekly, "100", "2165", "6000", 12, 180},
		{"monthly", monthly, Monthly, "46.51", "1000", "8000", 12, 240},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary := Detect(repeat(tt.days, "CREDIBLY ACH", "1000"), testDictionary(), Options{})
			if summary.Count() != 1 {
				t.Fatalf("expected 1 position, got %d", summary.Count())
			}
			p := summary.Positions[0]

			if p.Frequency != tt.freq {
				t.Errorf("frequency = %q, expected %q", p.Frequency, tt.freq)
			}
			if !summary.TotalDailyPayment.Equal(decimal.RequireFromString(tt.wantDaily)) {
				t.Errorf("daily equivalent = %s, expected %s", summary.TotalDailyPayment, tt.wantDaily)
			}
			if !summary.TotalMonthlyPayment.Equal(decimal.RequireFromString(tt.wantMonthly)) {
				t.Errorf("monthly equivalent = %s, expected %s", summary.TotalMonthlyPayment, tt.wantMonthly)
			}
			if !p.EstimatedRemaining.Equal(decimal.RequireFromString(tt.wantRemaining)) {
				t.Errorf("remaining = %s, expected %s", p.EstimatedRemaining, tt.wantRemaining)
			}
			if p.EstimatedTermMonths != tt.wantTermMonths {
				t.Errorf("term months = %v, expected %v", p.EstimatedTermMonths, tt.wantTermMonths)
			}
			if want := p.LastPayment.AddDate(0, 0, tt.wantPayoffDays); !p.EstimatedPayoffDate.Equal(want) {
				t.Errorf("payoff = %s, expected %s", p.EstimatedPayoffDate.Format("2006-01-02"), want.Format("2006-01-02"))
			}
		})
	}
}

func TestDetectFundingDepositWindow(t *testing.T) {
	first := date(2024, 3, 4) // Monday
	payments := repeat(businessDays(first, 10), "CREDIBLY ACH", "300")
	before := func(days int) time.Time { return first.AddDate(0, 0, -days) }

	tests := []struct {
		name      string
		deposits  []txn.Transaction
		wantFound bool
		wantAmt   string
		wantAlias bool
	}{
		{
			name: "largest unmatched deposit inside window",
			deposits: []txn.Transaction{
				credit(before(8), "WIRE IN XYZ", "90000"),
				credit(before(3), "WIRE IN XYZ", "30000"),
				credit(before(2), "WIRE IN ABC", "12000"),
			},
			wantFound: true,
			wantAmt:   "30000",
		},
		{
			name: "alias match preferred over larger deposit",
			deposits: []txn.Transaction{
				credit(before(3), "CREDIBLY FUNDING", "20000"),
				credit(before(2), "WIRE IN XYZ", "50000"),
			},
			wantFound: true,
			wantAmt:   "20000",
			wantAlias: true,
		},
		{
			name:      "deposit on first payment day counts",
			deposits:  []txn.Transaction{credit(first, "WIRE IN XYZ", "25000")},
			wantFound: true,
			wantAmt:   "25000",
		},
		{
			name:      "deposit seven days before counts",
			deposits:  []txn.Transaction{credit(before(7), "WIRE IN XYZ", "40000")},
			wantFound: true,
			wantAmt:   "40000",
		},
		{
			name:     "deposit eight days before is outside window",
			deposits: []txn.Transaction{credit(before(8), "WIRE IN XYZ", "90000")},
		},
		{
			name:     "deposit after first payment ignored",
			deposits: []txn.Transaction{credit(first.AddDate(0, 0, 1), "WIRE IN XYZ", "90000")},
		},
		{
			name:     "deposit below funding floor ignored",
			deposits: []txn.Transaction{credit(before(2), "WIRE IN XYZ", "4999.99")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txns := txn.Merge(payments, tt.deposits)
			summary := Detect(txns, testDictionary(), Options{})
			if summary.Count() != 1 {
				t.Fatalf("expected 1 position, got %d", summary.Count())
			}
			p := summary.Positions[0]

			if !tt.wantFound {
				if p.FundingDeposit != nil {
					t.Fatalf("expected no funding deposit, got %+v", p.FundingDeposit)
				}
				// 300 x 160 / 1.35
				if !p.EstimatedOriginalFunding.Equal(decimal.RequireFromString("35555.56")) {
					t.Errorf("original funding = %s, expected 35555.56", p.EstimatedOriginalFunding)
				}
				return
			}
			if p.FundingDeposit == nil {
				t.Fatal("expected a funding deposit")
			}
			if !p.FundingDeposit.Amount.Equal(decimal.RequireFromString(tt.wantAmt)) {
				t.Errorf("funding amount = %s, expected %s", p.FundingDeposit.Amount, tt.wantAmt)
			}
			if p.FundingDeposit.MatchedAlias != tt.wantAlias {
				t.Errorf("matched alias = %v, expected %v", p.FundingDeposit.MatchedAlias, tt.wantAlias)
			}
			if !p.EstimatedOriginalFunding.Equal(p.FundingDeposit.Amount) {
				t.Errorf("original funding = %s, expected the deposit amount", p.EstimatedOriginalFunding)
			}
		})
	}
}

func TestRemainingNeverNegative(t *testing.T) {
	amounts := []string{"50", "300", "1000", "4999"}
	counts := []int{4, 20, 60, 200}

	for _, a := range amounts {
		for _, n := range counts {
			txns := repeat(businessDays(date(2023, 1, 2), n), "ON DECK", a)
			for _, p := range Detect(txns, testDictionary(), Options{}).Positions {
				if p.EstimatedRemaining.IsNegative() {
					t.Errorf("%s x %d: remaining %s is negative", a, n, p.EstimatedRemaining)
				}
				if p.PaidInPercent < 0 || p.PaidInPercent > 100 {
					t.Errorf("%s x %d: paid-in %v out of range", a, n, p.PaidInPercent)
				}
			}
		}
	}
}

func TestDetectEmpty(t *testing.T) {
	summary := Detect(nil, nil, Options{})
	if summary.Count() != 0 || summary.DaysSinceLastFunding != nil || !summary.TotalRemaining.IsZero() {
		t.Errorf("expected neutral summary, got %+v", summary)
	}
}

func repeat(days []time.Time, desc, amount string) []txn.Transaction {
	txns := make([]txn.Transaction, 0, len(days))
	for _, d := range days {
		txns = append(txns, debit(d, desc, amount))
	}
	return txns
}
