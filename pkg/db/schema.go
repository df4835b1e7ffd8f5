// Package db provides SQLite database management for evaluation run history and metadata.
package db

// Schema defines the SQL statements to create database tables.
const Schema = `
-- Evaluation runs
-- One row per underwriting evaluation; the full summary lives in the summary store
CREATE TABLE IF NOT EXISTS evaluation_runs (
    id TEXT PRIMARY KEY,                   -- run UUID
    fingerprint TEXT NOT NULL,             -- sha256 of inputs and configuration
    merchant_name TEXT NOT NULL DEFAULT '',
    statement_count INTEGER NOT NULL,
    transaction_count INTEGER NOT NULL,
    first_date TEXT NOT NULL DEFAULT '',   -- YYYY-MM-DD
    last_date TEXT NOT NULL DEFAULT '',    -- YYYY-MM-DD
    monthly_revenue TEXT NOT NULL,         -- decimal string
    max_funding TEXT NOT NULL,             -- decimal string
    risk_score INTEGER NOT NULL,
    risk_tier TEXT NOT NULL,
    deal_score INTEGER NOT NULL,
    deal_tier TEXT NOT NULL,
    eligible_lenders INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluation_runs_fingerprint
    ON evaluation_runs(fingerprint);

CREATE INDEX IF NOT EXISTS idx_evaluation_runs_created
    ON evaluation_runs(created_at);

-- Positions detected in a run
CREATE TABLE IF NOT EXISTS run_positions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES evaluation_runs(id) ON DELETE CASCADE,
    lender TEXT NOT NULL,
    frequency TEXT NOT NULL,
    confidence TEXT NOT NULL,
    payment TEXT NOT NULL,                 -- decimal string
    estimated_remaining TEXT NOT NULL      -- decimal string
);

CREATE INDEX IF NOT EXISTS idx_run_positions_run
    ON run_positions(run_id);

-- Run metadata table
-- Stores key-value metadata such as the last run ID
CREATE TABLE IF NOT EXISTS run_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// InitializeSchema creates all tables if they don't exist.
func InitializeSchema(conn *Connection) error {
	if _, err := conn.exec(Schema); err != nil {
		return err
	}
	return nil
}
