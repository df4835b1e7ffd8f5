package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned when no run matches the lookup.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one evaluation run.
type RunRecord struct {
	ID               string           `json:"id"`
	Fingerprint      string           `json:"fingerprint"`
	MerchantName     string           `json:"merchant_name"`
	StatementCount   int              `json:"statement_count"`
	TransactionCount int              `json:"transaction_count"`
	FirstDate        string           `json:"first_date"`
	LastDate         string           `json:"last_date"`
	MonthlyRevenue   string           `json:"monthly_revenue"`
	MaxFunding       string           `json:"max_funding"`
	RiskScore        int              `json:"risk_score"`
	RiskTier         string           `json:"risk_tier"`
	DealScore        int              `json:"deal_score"`
	DealTier         string           `json:"deal_tier"`
	EligibleLenders  int              `json:"eligible_lenders"`
	CreatedAt        time.Time        `json:"created_at"`
	Positions        []PositionRecord `json:"positions,omitempty"`
}

// PositionRecord is a position detected in a run.
type PositionRecord struct {
	Lender             string `json:"lender"`
	Frequency          string `json:"frequency"`
	Confidence         string `json:"confidence"`
	Payment            string `json:"payment"`
	EstimatedRemaining string `json:"estimated_remaining"`
}

// RunHistory manages evaluation run history operations.
type RunHistory struct {
	conn *Connection
}

// NewRunHistory creates a new RunHistory instance.
func NewRunHistory(conn *Connection) *RunHistory {
	return &RunHistory{conn: conn}
}

const runColumns = `id, fingerprint, merchant_name, statement_count, transaction_count,
	first_date, last_date, monthly_revenue, max_funding, risk_score, risk_tier,
	deal_score, deal_tier, eligible_lenders, created_at`

// RecordRun stores a run and its positions in one transaction.
func (h *RunHistory) RecordRun(record RunRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	return h.conn.inTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO evaluation_runs (`+runColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.ID,
			record.Fingerprint,
			record.MerchantName,
			record.StatementCount,
			record.TransactionCount,
			record.FirstDate,
			record.LastDate,
			record.MonthlyRevenue,
			record.MaxFunding,
			record.RiskScore,
			record.RiskTier,
			record.DealScore,
			record.DealTier,
			record.EligibleLenders,
			record.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}

		for _, p := range record.Positions {
			_, err := tx.Exec(`
				INSERT INTO run_positions (run_id, lender, frequency, confidence, payment, estimated_remaining)
				VALUES (?, ?, ?, ?, ?, ?)`,
				record.ID, p.Lender, p.Frequency, p.Confidence, p.Payment, p.EstimatedRemaining,
			)
			if err != nil {
				return fmt.Errorf("failed to record position for run %s: %w", record.ID, err)
			}
		}
		return nil
	})
}

// GetRun retrieves a run and its positions by ID.
func (h *RunHistory) GetRun(id string) (*RunRecord, error) {
	record, err := scanRun(h.conn.queryRow(`SELECT `+runColumns+` FROM evaluation_runs WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}

	positions, err := h.getPositions(id)
	if err != nil {
		return nil, err
	}
	record.Positions = positions
	return record, nil
}

// FindByFingerprint returns the most recent run with the given fingerprint.
func (h *RunHistory) FindByFingerprint(fingerprint string) (*RunRecord, error) {
	record, err := scanRun(h.conn.queryRow(`
		SELECT `+runColumns+` FROM evaluation_runs
		WHERE fingerprint = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`, fingerprint))
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListRuns returns the most recent runs, newest first. A limit of zero or
// less returns every run.
func (h *RunHistory) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := h.conn.query(`
		SELECT `+runColumns+` FROM evaluation_runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	records := []RunRecord{}
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return records, nil
}

// DeleteRun deletes a run and its positions. It reports whether a run was removed.
func (h *RunHistory) DeleteRun(id string) (bool, error) {
	result, err := h.conn.exec(`DELETE FROM evaluation_runs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

func (h *RunHistory) getPositions(runID string) ([]PositionRecord, error) {
	rows, err := h.conn.query(`
		SELECT lender, frequency, confidence, payment, estimated_remaining
		FROM run_positions
		WHERE run_id = ?
		ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	defer rows.Close()

	var positions []PositionRecord
	for rows.Next() {
		var p PositionRecord
		if err := rows.Scan(&p.Lender, &p.Frequency, &p.Confidence, &p.Payment, &p.EstimatedRemaining); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}

	return positions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var r RunRecord
	err := row.Scan(
		&r.ID,
		&r.Fingerprint,
		&r.MerchantName,
		&r.StatementCount,
		&r.TransactionCount,
		&r.FirstDate,
		&r.LastDate,
		&r.MonthlyRevenue,
		&r.MaxFunding,
		&r.RiskScore,
		&r.RiskTier,
		&r.DealScore,
		&r.DealTier,
		&r.EligibleLenders,
		&r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	return &r, nil
}

// Stats represents run history statistics.
type Stats struct {
	TotalRuns         int
	DistinctMerchants int
	TotalPositions    int
	AverageDealScore  sql.NullFloat64
	RunsByDealTier    map[string]int
	LastRun           sql.NullString
}

// GetStats retrieves run history statistics.
func (h *RunHistory) GetStats() (*Stats, error) {
	stats := Stats{RunsByDealTier: make(map[string]int)}

	err := h.conn.queryRow(`SELECT COUNT(*), COUNT(DISTINCT NULLIF(merchant_name, '')), AVG(deal_score) FROM evaluation_runs`).
		Scan(&stats.TotalRuns, &stats.DistinctMerchants, &stats.AverageDealScore)
	if err != nil {
		return nil, fmt.Errorf("failed to get run count: %w", err)
	}

	err = h.conn.queryRow(`SELECT COUNT(*) FROM run_positions`).Scan(&stats.TotalPositions)
	if err != nil {
		return nil, fmt.Errorf("failed to get position count: %w", err)
	}

	rows, err := h.conn.query(`SELECT deal_tier, COUNT(*) FROM evaluation_runs GROUP BY deal_tier`)
	if err != nil {
		return nil, fmt.Errorf("failed to get tier counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tier string
		var count int
		if err := rows.Scan(&tier, &count); err != nil {
			return nil, fmt.Errorf("failed to scan tier count: %w", err)
		}
		stats.RunsByDealTier[tier] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get tier counts: %w", err)
	}

	err = h.conn.queryRow(`SELECT MAX(created_at) FROM evaluation_runs`).Scan(&stats.LastRun)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get last run time: %w", err)
	}

	return &stats, nil
}

// GetMetadata retrieves a metadata value. A missing key returns "".
func (h *RunHistory) GetMetadata(key string) (string, error) {
	var value string
	err := h.conn.queryRow(`SELECT value FROM run_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata: %w", err)
	}

	return value, nil
}

// SetMetadata sets a metadata value.
func (h *RunHistory) SetMetadata(key, value string) error {
	query := `
		INSERT INTO run_metadata (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := h.conn.exec(query, key, value); err != nil {
		return fmt.Errorf("failed to set metadata: %w", err)
	}

	return nil
}
