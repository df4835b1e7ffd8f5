package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/pigeonworks-llc/mca-underwriter/pkg/deal"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/pipeline"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/txn"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/underwriter"
)

var (
	statementFiles []string
	outputFile     string
	noSave         bool
	writeReport    bool
	applicantFlags struct {
		merchant     string
		fico         int
		tib          int
		ownership    float64
		state        string
		industry     string
		requested    string
		factorRate   float64
		termDays     int
		dailyPayment string
	}
)

// evaluateCmd represents the evaluate command.
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a deal from bank statement CSV files",
	Long: `Evaluate a merchant cash advance deal from one or more bank statements.

This command:
1. Reads and merges the statement CSV files
2. Classifies deposits and computes monthly revenue
3. Detects existing positions and scores risk
4. Aggregates the deal and matches lenders
5. Records the run in history unless --no-save is set

Identical statements and applicant facts reuse the stored run.

Example:
  underwrite evaluate --statement jan.csv --statement feb.csv --statement mar.csv
  underwrite evaluate --statement q1.csv --fico 640 --tib 30 --state TX --requested 50000
  underwrite evaluate --statement q1.csv --output summary.json --no-save`,
	Run: runEvaluate,
}

func init() {
	f := evaluateCmd.Flags()
	f.StringArrayVarP(&statementFiles, "statement", "s", nil, "statement CSV file (repeatable) (required)")
	f.StringVarP(&outputFile, "output", "o", "", "write the full result as JSON to this file")
	f.BoolVar(&noSave, "no-save", false, "do not record or reuse runs")
	f.BoolVar(&writeReport, "report", false, "write the result to the reports directory")

	f.StringVar(&applicantFlags.merchant, "merchant", "", "merchant name")
	f.IntVar(&applicantFlags.fico, "fico", 0, "owner FICO score")
	f.IntVar(&applicantFlags.tib, "tib", 0, "time in business in months")
	f.Float64Var(&applicantFlags.ownership, "ownership", 0, "applicant ownership percent")
	f.StringVar(&applicantFlags.state, "state", "", "business state code")
	f.StringVar(&applicantFlags.industry, "industry", "", "business industry")
	f.StringVar(&applicantFlags.requested, "requested", "", "requested advance amount")
	f.Float64Var(&applicantFlags.factorRate, "factor-rate", 0, "proposed factor rate")
	f.IntVar(&applicantFlags.termDays, "term-days", 0, "proposed term in business days")
	f.StringVar(&applicantFlags.dailyPayment, "daily-payment", "", "proposed daily payment")

	evaluateCmd.MarkFlagRequired("statement")
}

func runEvaluate(cmd *cobra.Command, args []string) {
	slog.Info("Starting evaluation", "statements", len(statementFiles), "no_save", noSave)

	applicant, err := applicantFromFlags()
	exitOnError(err, "invalid applicant")

	in := pipeline.Input{Applicant: applicant}
	for _, path := range statementFiles {
		transactions, issues, err := txn.LoadCSV(path)
		exitOnError(err, "failed to read statement")
		for _, issue := range issues {
			slog.Warn("Skipped statement row", "source", issue.Source, "row", issue.Index, "reason", issue.Reason)
		}
		slog.Debug("Loaded statement", "path", path, "transactions", len(transactions), "skipped", len(issues))
		in.Statements = append(in.Statements, pipeline.Statement{Source: filepath.Base(path), Transactions: transactions})
	}

	env, err := loadEnvironment(!noSave)
	exitOnError(err, "failed to initialize")
	defer env.Close()

	result, err := env.service.Evaluate(context.Background(), in, underwriter.EvaluateOptions{NoSave: noSave})
	exitOnError(err, "evaluation failed")

	printResult(os.Stdout, result)

	if outputFile != "" {
		exitOnError(writeJSONFile(outputFile, result), "failed to write output")
		slog.Info("Wrote result", "path", outputFile)
	}

	if writeReport && result.RunID != "" {
		path, err := env.paths.GetReportPath(result.CreatedAt.Format("2006-01"), result.RunID)
		exitOnError(err, "failed to resolve report path")
		exitOnError(env.paths.EnsureParentDir(path), "failed to create reports directory")
		exitOnError(writeJSONFile(path, result), "failed to write report")
		slog.Info("Wrote report", "path", path)
	}

	slog.Info("Evaluation completed",
		"run_id", result.RunID,
		"reused", result.Reused,
		"deal_tier", result.Summary.DealTier,
	)
}

func applicantFromFlags() (deal.Applicant, error) {
	a := deal.Applicant{
		MerchantName:         applicantFlags.merchant,
		FICO:                 applicantFlags.fico,
		TimeInBusinessMonths: applicantFlags.tib,
		OwnershipPct:         applicantFlags.ownership,
		State:                strings.ToUpper(applicantFlags.state),
		Industry:             applicantFlags.industry,
		ProposedFactorRate:   applicantFlags.factorRate,
		ProposedTermDays:     applicantFlags.termDays,
	}

	var err error
	if a.RequestedAmount, err = optionalAmount("requested", applicantFlags.requested); err != nil {
		return a, err
	}
	if a.ProposedDailyPayment, err = optionalAmount("daily-payment", applicantFlags.dailyPayment); err != nil {
		return a, err
	}
	return a, nil
}

func optionalAmount(name, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := txn.ParseAmount(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return d, nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
