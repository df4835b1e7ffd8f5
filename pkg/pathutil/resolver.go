// Package pathutil provides centralized path management for underwriting data files.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathResolver manages paths for the run history database, summary store and reports.
type PathResolver struct {
	dataDir      string
	databasePath string
	storePath    string
	reportsDir   string
}

// Config represents the configuration for PathResolver.
type Config struct {
	// DataDir is the root directory for persisted data (e.g., ./data)
	DataDir string
	// DatabasePath is the path to the SQLite database file for run history
	DatabasePath string
	// StorePath is the path to the bbolt file holding deal summaries
	StorePath string
}

// New creates a new PathResolver with the given configuration.
// If DatabasePath is empty, it defaults to {DataDir}/runs.db
// If StorePath is empty, it defaults to {DataDir}/summaries.db
func New(config Config) *PathResolver {
	dbPath := config.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(config.DataDir, "runs.db")
	}

	storePath := config.StorePath
	if storePath == "" {
		storePath = filepath.Join(config.DataDir, "summaries.db")
	}

	return &PathResolver{
		dataDir:      config.DataDir,
		databasePath: dbPath,
		storePath:    storePath,
		reportsDir:   filepath.Join(config.DataDir, "reports"),
	}
}

// GetDataDir returns the data root directory.
func (p *PathResolver) GetDataDir() string {
	return p.dataDir
}

// GetDatabasePath returns the run history database path.
func (p *PathResolver) GetDatabasePath() string {
	return p.databasePath
}

// GetStorePath returns the summary store path.
func (p *PathResolver) GetStorePath() string {
	return p.storePath
}

// GetReportsDir returns the directory for exported summaries.
func (p *PathResolver) GetReportsDir() string {
	return p.reportsDir
}

// GetReportPath returns the exported summary path for a run.
// Example: data/reports/2024-05/<run-id>.json
func (p *PathResolver) GetReportPath(yearMonth, runID string) (string, error) {
	parts := strings.Split(yearMonth, "-")
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 2 {
		return "", fmt.Errorf("invalid year-month format: %s. Expected YYYY-MM", yearMonth)
	}
	if runID == "" || strings.ContainsAny(runID, `/\`) {
		return "", fmt.Errorf("invalid run ID: %q", runID)
	}

	return filepath.Join(p.reportsDir, yearMonth, runID+".json"), nil
}

// EnsureDir creates a directory if it doesn't exist.
// It creates all parent directories as needed (like mkdir -p).
func (p *PathResolver) EnsureDir(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dirPath, err)
	}
	return nil
}

// EnsureParentDir ensures the parent directory of a file exists.
func (p *PathResolver) EnsureParentDir(filePath string) error {
	return p.EnsureDir(filepath.Dir(filePath))
}

// FileExists checks if a file exists.
func (p *PathResolver) FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}
