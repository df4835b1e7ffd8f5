// Package pipeline runs the underwriting stages in order over one or more
// statements and produces the deal summary.
package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pigeonworks-llc/mca-underwriter/pkg/classifier"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/deal"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/keywords"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/lenders"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/positions"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/risk"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/txn"
)

// Config is the read-only configuration shared by every run.
type Config struct {
	Dictionary      *keywords.Dictionary
	Lenders         []lenders.Criteria
	Positions       positions.Options
	DefaultTermDays int
}

// Statement is one bank statement's transactions.
type Statement struct {
	Source       string            `json:"source"`
	Transactions []txn.Transaction `json:"transactions"`
}

// Input is everything a single evaluation depends on besides Config.
type Input struct {
	Statements []Statement    `json:"statements"`
	Applicant  deal.Applicant `json:"applicant"`
}

// Pipeline evaluates inputs against a fixed configuration.
// It holds no mutable state and is safe for concurrent use.
type Pipeline struct {
	cfg Config
}

// New creates a pipeline over cfg.
func New(cfg Config) *Pipeline {
	if cfg.Lenders == nil {
		cfg.Lenders = []lenders.Criteria{}
	}
	return &Pipeline{cfg: cfg}
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Run evaluates in and returns the deal summary. Identical inputs and
// configuration always give identical summaries.
func (p *Pipeline) Run(in Input) deal.Summary {
	dict := p.cfg.Dictionary

	statements := make([][]txn.Transaction, len(in.Statements))
	for i, s := range in.Statements {
		statements[i] = s.Transactions
	}
	merged := txn.Merge(statements...)
	slog.Debug("merged statements", "statements", len(statements), "transactions", len(merged))

	cls := classifier.Classify(merged, dict)
	slog.Debug("classified",
		"months", len(cls.Months),
		"excluded", len(cls.Excluded),
		"monthly_net", cls.AverageMonthlyNet.String(),
	)

	profile := risk.Score(cls.Transactions, cls.Months, dict)
	slog.Debug("scored risk", "score", profile.Score, "tier", profile.Tier, "nsf", profile.NSFCount)

	found := positions.Detect(cls.Transactions, dict, p.cfg.Positions)
	slog.Debug("detected positions", "positions", found.Count(), "daily", found.TotalDailyPayment.String())

	duplicates := txn.FindDuplicates(merged)
	if len(duplicates) > 0 {
		slog.Debug("possible duplicate transactions", "groups", len(duplicates))
	}

	summary := deal.Aggregate(deal.Input{
		Classification: cls,
		Risk:           profile,
		Positions:      found,
		Applicant:      in.Applicant,
		Coverage:       txn.CoverageOf(merged),
		Duplicates:     duplicates,
	}, deal.Options{
		DefaultTermDays:   p.cfg.DefaultTermDays,
		DefaultFactorRate: dict.FactorRate(""),
	})

	summary.Lenders = lenders.Match(summary.LenderProfile(), p.cfg.Lenders)
	slog.Debug("matched lenders",
		"eligible", len(summary.Lenders.Eligible),
		"disqualified", len(summary.Lenders.Disqualified),
		"deal_score", summary.DealScore,
	)

	return summary
}

// fingerprintInput is the canonical form hashed by Fingerprint.
type fingerprintInput struct {
	Transactions []txn.Transaction  `json:"transactions"`
	Applicant    deal.Applicant     `json:"applicant"`
	Dictionary   keywords.Config    `json:"dictionary"`
	Lenders      []lenders.Criteria `json:"lenders"`
	Positions    positions.Options  `json:"positions"`
	TermDays     int                `json:"term_days"`
}

// Fingerprint returns a hex sha256 over the merged transactions, the
// applicant and the configuration. Statement order and source names do not
// change the fingerprint unless they change the merged order.
func (p *Pipeline) Fingerprint(in Input) (string, error) {
	statements := make([][]txn.Transaction, len(in.Statements))
	for i, s := range in.Statements {
		statements[i] = stripSource(s.Transactions)
	}

	data, err := json.Marshal(fingerprintInput{
		Transactions: txn.Merge(statements...),
		Applicant:    in.Applicant,
		Dictionary:   p.cfg.Dictionary.Config(),
		Lenders:      p.cfg.Lenders,
		Positions:    p.cfg.Positions,
		TermDays:     p.cfg.DefaultTermDays,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode fingerprint input: %w", err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func stripSource(transactions []txn.Transaction) []txn.Transaction {
	out := make([]txn.Transaction, len(transactions))
	for i, t := range transactions {
		t.Source = ""
		out[i] = t
	}
	return out
}
