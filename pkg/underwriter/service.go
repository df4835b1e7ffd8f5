// Package underwriter evaluates deals and keeps their history.
//
// A Service runs the pipeline, stores each summary under a new run ID and
// answers repeated evaluations of identical inputs from the stored run.
package underwriter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pigeonworks-llc/mca-underwriter/pkg/db"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/deal"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/pipeline"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/store"
)

// ErrNotFound is returned when no evaluation exists for a run ID.
var ErrNotFound = errors.New("evaluation not found")

const metadataLastRun = "last_run_id"

// Result is the outcome of an evaluation.
type Result struct {
	RunID       string       `json:"run_id,omitempty"`
	Fingerprint string       `json:"fingerprint"`
	Reused      bool         `json:"reused"`
	CreatedAt   time.Time    `json:"created_at"`
	Summary     deal.Summary `json:"summary"`
}

// EvaluateOptions controls persistence for one evaluation.
type EvaluateOptions struct {
	// NoSave runs the pipeline without storing or reusing runs.
	NoSave bool
}

// Stats combines run history and summary store statistics.
type Stats struct {
	db.Stats
	StoredSummaries int
	LastRunID       string
}

// Service evaluates deals and manages stored runs. history and summaries may
// both be nil, in which case every evaluation is transient.
type Service struct {
	pipeline  *pipeline.Pipeline
	history   *db.RunHistory
	summaries *store.Store
	now       func() time.Time
}

// New creates a service.
func New(p *pipeline.Pipeline, history *db.RunHistory, summaries *store.Store) *Service {
	return &Service{
		pipeline:  p,
		history:   history,
		summaries: summaries,
		now:       time.Now,
	}
}

func (s *Service) persistent() bool {
	return s.history != nil && s.summaries != nil
}

// Evaluate runs the pipeline on in. When a stored run has the same
// fingerprint, its summary is returned with Reused set.
func (s *Service) Evaluate(ctx context.Context, in pipeline.Input, opts EvaluateOptions) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fingerprint, err := s.pipeline.Fingerprint(in)
	if err != nil {
		return nil, err
	}
	save := s.persistent() && !opts.NoSave

	if save {
		prior, err := s.findPrior(fingerprint)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			slog.Info("reusing prior evaluation", "run_id", prior.RunID, "fingerprint", fingerprint[:12])
			return prior, nil
		}
	}

	summary := s.pipeline.Run(in)
	result := &Result{
		Fingerprint: fingerprint,
		CreatedAt:   s.now().UTC(),
		Summary:     summary,
	}
	if !save {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.RunID = uuid.NewString()
	if err := s.save(result, in); err != nil {
		return nil, err
	}

	slog.Info("evaluation stored",
		"run_id", result.RunID,
		"deal_score", summary.DealScore,
		"deal_tier", summary.DealTier,
		"positions", summary.Positions.Count(),
	)
	return result, nil
}

// findPrior returns the stored result for fingerprint, or nil. A history row
// whose summary is missing from the store is ignored.
func (s *Service) findPrior(fingerprint string) (*Result, error) {
	record, err := s.history.FindByFingerprint(fingerprint)
	if errors.Is(err, db.ErrRunNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up prior run: %w", err)
	}

	ev, err := s.summaries.GetEvaluation(record.ID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("run history entry has no stored summary", "run_id", record.ID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &Result{
		RunID:       ev.RunID,
		Fingerprint: ev.Fingerprint,
		Reused:      true,
		CreatedAt:   ev.CreatedAt,
		Summary:     ev.Summary,
	}, nil
}

func (s *Service) save(result *Result, in pipeline.Input) error {
	ev := &store.Evaluation{
		RunID:       result.RunID,
		Fingerprint: result.Fingerprint,
		CreatedAt:   result.CreatedAt,
		Summary:     result.Summary,
	}
	if err := s.summaries.SaveEvaluation(ev, in); err != nil {
		return err
	}

	if err := s.history.RecordRun(runRecord(result, in)); err != nil {
		if delErr := s.summaries.DeleteEvaluation(result.RunID); delErr != nil {
			slog.Error("failed to remove orphaned summary", "run_id", result.RunID, "error", delErr)
		}
		return err
	}

	if err := s.history.SetMetadata(metadataLastRun, result.RunID); err != nil {
		slog.Warn("failed to update last run", "error", err)
	}
	return nil
}

// Get returns a stored evaluation.
func (s *Service) Get(ctx context.Context, runID string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.persistent() {
		return nil, ErrNotFound
	}

	ev, err := s.summaries.GetEvaluation(runID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &Result{
		RunID:       ev.RunID,
		Fingerprint: ev.Fingerprint,
		CreatedAt:   ev.CreatedAt,
		Summary:     ev.Summary,
	}, nil
}

// Input returns the input a stored evaluation was run on.
func (s *Service) Input(ctx context.Context, runID string) (*pipeline.Input, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.persistent() {
		return nil, ErrNotFound
	}

	in, err := s.summaries.GetInput(runID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return in, err
}

// Run returns the history record of a stored evaluation.
func (s *Service) Run(ctx context.Context, runID string) (*db.RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.persistent() {
		return nil, ErrNotFound
	}

	record, err := s.history.GetRun(runID)
	if errors.Is(err, db.ErrRunNotFound) {
		return nil, ErrNotFound
	}
	return record, err
}

// List returns recent runs, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]db.RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.persistent() {
		return []db.RunRecord{}, nil
	}
	return s.history.ListRuns(limit)
}

// Delete removes a run from history and the summary store.
func (s *Service) Delete(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.persistent() {
		return ErrNotFound
	}

	deleted, err := s.history.DeleteRun(runID)
	if err != nil {
		return err
	}
	if err := s.summaries.DeleteEvaluation(runID); err != nil {
		return fmt.Errorf("failed to delete summary: %w", err)
	}
	if !deleted {
		return ErrNotFound
	}

	slog.Info("evaluation deleted", "run_id", runID)
	return nil
}

// Stats returns run history statistics.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.persistent() {
		return &Stats{Stats: db.Stats{RunsByDealTier: map[string]int{}}}, nil
	}

	history, err := s.history.GetStats()
	if err != nil {
		return nil, err
	}
	keys, err := s.summaries.Keys(store.BucketSummaries)
	if err != nil {
		return nil, fmt.Errorf("failed to count summaries: %w", err)
	}
	last, err := s.history.GetMetadata(metadataLastRun)
	if err != nil {
		return nil, err
	}

	return &Stats{Stats: *history, StoredSummaries: len(keys), LastRunID: last}, nil
}

func runRecord(r *Result, in pipeline.Input) db.RunRecord {
	s := r.Summary
	record := db.RunRecord{
		ID:              r.RunID,
		Fingerprint:     r.Fingerprint,
		MerchantName:    s.Applicant.MerchantName,
		StatementCount:  len(in.Statements),
		MonthlyRevenue:  s.MonthlyRevenue.String(),
		MaxFunding:      s.MaxRecommendedFunding.String(),
		RiskScore:       s.Risk.Score,
		RiskTier:        s.Risk.Tier,
		DealScore:       s.DealScore,
		DealTier:        s.DealTier,
		EligibleLenders: len(s.Lenders.Eligible),
		CreatedAt:       r.CreatedAt,
	}
	for _, st := range in.Statements {
		record.TransactionCount += len(st.Transactions)
	}
	if !s.Coverage.FirstDate.IsZero() {
		record.FirstDate = s.Coverage.FirstDate.Format("2006-01-02")
		record.LastDate = s.Coverage.LastDate.Format("2006-01-02")
	}
	for _, p := range s.Positions.Positions {
		record.Positions = append(record.Positions, db.PositionRecord{
			Lender:             p.Lender,
			Frequency:          string(p.Frequency),
			Confidence:         string(p.Confidence),
			Payment:            p.Payment.String(),
			EstimatedRemaining: p.EstimatedRemaining.String(),
		})
	}
	return record
}
