// Package cmd provides CLI commands for underwrite.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pigeonworks-llc/mca-underwriter/pkg/config"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/db"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/keywords"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/lenders"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/pathutil"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/pipeline"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/positions"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/store"
	"github.com/pigeonworks-llc/mca-underwriter/pkg/underwriter"
)

var (
	cfgFile string
	debug   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "underwrite",
	Short: "Underwrite merchant cash advance deals from bank statements",
	Long: `underwrite analyzes business bank statements for merchant cash
advance underwriting.

It supports:
- Classifying deposits into true revenue and excluded items
- Detecting existing financing positions
- Scoring statement risk and deal affordability
- Matching the deal against a lender criteria table
- Keeping evaluation history in SQLite and summaries in bbolt

Example:
  underwrite evaluate --statement jan.csv --statement feb.csv --fico 640
  underwrite runs --limit 10
  underwrite serve`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logLevel := slog.LevelInfo
		if debug || os.Getenv("DEBUG") == "true" {
			logLevel = slog.LevelDebug
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(serveCmd)
}

// environment holds the loaded configuration and opened resources for a command.
type environment struct {
	cfg     *config.Config
	paths   *pathutil.PathResolver
	service *underwriter.Service
	closers []func() error
}

func (e *environment) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			slog.Warn("failed to close resource", "error", err)
		}
	}
}

// loadEnvironment loads configuration and tables and builds the service. With
// persist set, the run history database and summary store are opened too.
func loadEnvironment(persist bool) (*environment, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate([]string{"paths", "dataDir"}); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dict, err := keywords.LoadOrEmpty(cfg.Paths.KeywordsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load keyword dictionary: %w", err)
	}
	table, issues, err := lenders.LoadTable(cfg.Paths.LendersFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load lender table: %w", err)
	}
	for _, issue := range issues {
		slog.Warn("skipped lender criteria row", "row", issue.Row, "lender", issue.Lender, "reason", issue.Reason)
	}
	slog.Debug("Loaded configuration tables",
		"keywords", cfg.Paths.KeywordsFile,
		"lenders", len(table),
	)

	p := pipeline.New(pipeline.Config{
		Dictionary: dict,
		Lenders:    table,
		Positions: positions.Options{
			FundingWindowDays: cfg.Analysis.FundingWindowDays,
			AmountTolerance:   &cfg.Analysis.AmountTolerance,
		},
		DefaultTermDays: cfg.Analysis.DefaultTermDays,
	})

	env := &environment{
		cfg: cfg,
		paths: pathutil.New(pathutil.Config{
			DataDir:      cfg.Paths.DataDir,
			DatabasePath: cfg.Paths.DBPath,
			StorePath:    cfg.Paths.StorePath,
		}),
	}

	if !persist {
		env.service = underwriter.New(p, nil, nil)
		return env, nil
	}

	dbPath := env.paths.GetDatabasePath()
	slog.Debug("Opening database", "path", dbPath)
	conn, err := db.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	env.closers = append(env.closers, conn.Close)

	storePath := env.paths.GetStorePath()
	slog.Debug("Opening summary store", "path", storePath)
	st, err := store.New(storePath)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to open summary store: %w", err)
	}
	env.closers = append(env.closers, st.Close)

	env.service = underwriter.New(p, db.NewRunHistory(conn), st)
	return env, nil
}

// Helper function to handle errors and exit.
func exitOnError(err error, msg string) {
	if err != nil {
		slog.Error(msg, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}
