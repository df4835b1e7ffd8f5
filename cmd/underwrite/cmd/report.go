package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/pigeonworks-llc/mca-underwriter/pkg/db"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/underwriter"
)

func money(d decimal.Decimal) string {
	return "$" + humanize.CommafWithDigits(d.Round(2).InexactFloat64(), 2)
}

// printResult writes a human-readable deal summary.
func printResult(w io.Writer, r *underwriter.Result) {
	s := r.Summary

	fmt.Fprintln(w, "\n=== Deal Summary ===")
	if r.RunID != "" {
		status := "new"
		if r.Reused {
			status = "reused"
		}
		fmt.Fprintf(w, "Run:                  %s (%s)\n", r.RunID, status)
	}
	if s.Applicant.MerchantName != "" {
		fmt.Fprintf(w, "Merchant:             %s\n", s.Applicant.MerchantName)
	}
	if !s.Coverage.FirstDate.IsZero() {
		fmt.Fprintf(w, "Statement period:     %s to %s (%d months)\n",
			s.Coverage.FirstDate.Format("2006-01-02"), s.Coverage.LastDate.Format("2006-01-02"), len(s.Coverage.Months))
	}
	fmt.Fprintf(w, "Monthly revenue:      %s (gross %s)\n", money(s.MonthlyRevenue), money(s.MonthlyGross))
	fmt.Fprintf(w, "Excluded deposits:    %d\n", len(s.Excluded))
	fmt.Fprintf(w, "Risk score:           %d (%s)\n", s.Risk.Score, s.Risk.Tier)
	fmt.Fprintf(w, "Deal score:           %d (%s)\n", s.DealScore, s.DealTier)
	fmt.Fprintf(w, "Holdback:             %s/month (%.1f%% of revenue)\n", money(s.MonthlyHoldback), s.HoldbackPercent)
	fmt.Fprintf(w, "Max funding:          %s at %.2f over %d days\n", money(s.MaxRecommendedFunding), s.FactorRate, s.TermDays)
	fmt.Fprintf(w, "Proposed payment:     %s/day (coverage %.2fx)\n", money(s.ProposedDailyPayment), s.CashFlowCoverage)

	if len(s.Months) > 0 {
		fmt.Fprintln(w, "\nMonths:")
		table := newTable(w, "Month", "Gross", "Net", "Deposits")
		for _, m := range s.Months {
			table.Append([]string{m.Month, money(m.GrossDeposits), money(m.NetDeposits), strconv.Itoa(m.DepositCount)})
		}
		table.Render()
	}

	if s.Positions.Count() > 0 {
		fmt.Fprintln(w, "\nPositions:")
		table := newTable(w, "Lender", "Frequency", "Payment", "Remaining", "Paid In")
		for _, p := range s.Positions.Positions {
			table.Append([]string{
				p.Lender,
				string(p.Frequency),
				money(p.Payment),
				money(p.EstimatedRemaining),
				fmt.Sprintf("%.1f%%", p.PaidInPercent),
			})
		}
		table.Render()
	}

	if len(s.RiskFlags) > 0 {
		fmt.Fprintln(w, "\nRisk flags:")
		for _, f := range s.RiskFlags {
			fmt.Fprintf(w, "  - %s\n", f)
		}
	}

	fmt.Fprintf(w, "\nLenders: %d eligible, %d disqualified\n", len(s.Lenders.Eligible), len(s.Lenders.Disqualified))
	for _, e := range s.Lenders.Eligible {
		fmt.Fprintf(w, "  + %s (%.1f)\n", e.Lender, e.Score)
	}
	for _, d := range s.Lenders.Disqualified {
		fmt.Fprintf(w, "  x %s: %s\n", d.Lender, d.Reasons[0])
		for _, reason := range d.Reasons[1:] {
			fmt.Fprintf(w, "      %s\n", reason)
		}
	}
	fmt.Fprintln(w)
}

// printRuns writes a run history table.
func printRuns(w io.Writer, runs []db.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No evaluations recorded")
		return
	}

	table := newTable(w, "Run ID", "Created", "Merchant", "Revenue", "Risk", "Deal", "Lenders")
	for _, r := range runs {
		revenue, err := decimal.NewFromString(r.MonthlyRevenue)
		if err != nil {
			revenue = decimal.Zero
		}
		table.Append([]string{
			r.ID,
			humanize.Time(r.CreatedAt),
			r.MerchantName,
			money(revenue),
			fmt.Sprintf("%d %s", r.RiskScore, r.RiskTier),
			fmt.Sprintf("%d %s", r.DealScore, r.DealTier),
			strconv.Itoa(r.EligibleLenders),
		})
	}
	table.Render()
}

// newTable returns a borderless, left-aligned table. Headers are upper-cased.
func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}
