package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"UNDERWRITE_DATA_DIR", "UNDERWRITE_DB_PATH", "UNDERWRITE_STORE_PATH",
		"UNDERWRITE_KEYWORDS", "UNDERWRITE_LENDERS", "PORT",
		"FUNDING_WINDOW_DAYS", "AMOUNT_TOLERANCE", "DEFAULT_TERM_DAYS", "DEBUG",
	} {
		t.Setenv(key, "")
	}
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Paths.DataDir != "./data" || cfg.Paths.KeywordsFile != "config/keywords.yaml" || cfg.Paths.LendersFile != "config/lenders.csv" {
		t.Errorf("unexpected paths %+v", cfg.Paths)
	}
	if cfg.Analysis.FundingWindowDays != 7 || cfg.Analysis.AmountTolerance != 1 || cfg.Analysis.DefaultTermDays != 120 {
		t.Errorf("unexpected analysis defaults %+v", cfg.Analysis)
	}
	if cfg.Server.Port != 8080 || cfg.Debug {
		t.Errorf("unexpected server/debug %+v %v", cfg.Server, cfg.Debug)
	}
	if err := cfg.Validate([]string{"paths", "dataDir"}); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	for _, key := range []string{"PORT", "AMOUNT_TOLERANCE", "DEBUG", "UNDERWRITE_DB_PATH"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	envFile := filepath.Join(t.TempDir(), ".env")
	content := "PORT=9090\nAMOUNT_TOLERANCE=0\nDEBUG=true\nUNDERWRITE_DB_PATH=/tmp/runs.db\n"
	if err := os.WriteFile(envFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(envFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Analysis.AmountTolerance != 0 || !cfg.Debug || cfg.Paths.DBPath != "/tmp/runs.db" {
		t.Errorf("env file not applied: %+v", cfg)
	}
}

func TestLoadRejectsInvalidNumbers(t *testing.T) {
	t.Setenv("FUNDING_WINDOW_DAYS", "seven")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "FUNDING_WINDOW_DAYS") {
		t.Errorf("expected FUNDING_WINDOW_DAYS error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		Paths:    PathsConfig{DataDir: "./data"},
		Analysis: AnalysisConfig{FundingWindowDays: 7, DefaultTermDays: 120},
		Server:   ServerConfig{Port: 8080},
	}

	tests := []struct {
		name     string
		modify   func(c *Config)
		required [][]string
		wantErr  string
	}{
		{"valid", func(c *Config) {}, [][]string{{"paths", "dataDir"}}, ""},
		{"missing store path", func(c *Config) {}, [][]string{{"paths", "storePath"}}, "paths.storePath"},
		{"zero window", func(c *Config) { c.Analysis.FundingWindowDays = 0 }, nil, "FUNDING_WINDOW_DAYS"},
		{"zero term", func(c *Config) { c.Analysis.DefaultTermDays = 0 }, nil, "DEFAULT_TERM_DAYS"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, nil, "PORT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.modify(&c)
			err := c.Validate(tt.required...)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
