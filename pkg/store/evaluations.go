package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pigeonworks-llc/mca-underwriter/pkg/deal"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/pipeline"
)

// Evaluation is a stored deal summary.
type Evaluation struct {
	RunID       string       `json:"run_id"`
	Fingerprint string       `json:"fingerprint"`
	CreatedAt   time.Time    `json:"created_at"`
	Summary     deal.Summary `json:"summary"`
}

// SaveEvaluation stores an evaluation and the input that produced it in one
// transaction.
func (s *Store) SaveEvaluation(ev *Evaluation, in pipeline.Input) error {
	if ev.RunID == "" {
		return ErrInvalidKey
	}

	summary, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	input, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal input: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(BucketSummaries)).Put([]byte(ev.RunID), summary); err != nil {
			return fmt.Errorf("failed to save summary %s: %w", ev.RunID, err)
		}
		if err := tx.Bucket([]byte(BucketInputs)).Put([]byte(ev.RunID), input); err != nil {
			return fmt.Errorf("failed to save input %s: %w", ev.RunID, err)
		}
		return nil
	})
}

// GetEvaluation retrieves an evaluation by run ID.
func (s *Store) GetEvaluation(runID string) (*Evaluation, error) {
	var ev Evaluation
	if err := s.Get(BucketSummaries, runID, &ev); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get summary %s: %w", runID, err)
	}
	return &ev, nil
}

// GetInput retrieves the input an evaluation was run on.
func (s *Store) GetInput(runID string) (*pipeline.Input, error) {
	var in pipeline.Input
	if err := s.Get(BucketInputs, runID, &in); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get input %s: %w", runID, err)
	}
	return &in, nil
}

// DeleteEvaluation removes the summary and input for a run.
func (s *Store) DeleteEvaluation(runID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{BucketSummaries, BucketInputs} {
			b := tx.Bucket([]byte(bucket))
			if b == nil {
				return fmt.Errorf("bucket %s not found", bucket)
			}
			if err := b.Delete([]byte(runID)); err != nil {
				return err
			}
		}
		return nil
	})
}
