package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"
)

// statsCmd represents the stats command.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display evaluation statistics",
	Long: `Display statistics about recorded evaluations.

Shows:
- Total number of evaluations and distinct merchants
- Positions detected across all runs
- Average deal score and runs per deal tier
- Last evaluation timestamp

Example:
  underwrite stats`,
	Run: runStats,
}

func runStats(cmd *cobra.Command, args []string) {
	slog.Info("Loading configuration")

	env, err := loadEnvironment(true)
	exitOnError(err, "failed to initialize")
	defer env.Close()

	stats, err := env.service.Stats(context.Background())
	exitOnError(err, "failed to get statistics")

	fmt.Println("\n=== Evaluation Statistics ===")
	fmt.Printf("Total evaluations:     %d\n", stats.TotalRuns)
	fmt.Printf("Stored summaries:      %d\n", stats.StoredSummaries)
	fmt.Printf("Distinct merchants:    %d\n", stats.DistinctMerchants)
	fmt.Printf("Positions detected:    %d\n", stats.TotalPositions)

	if stats.AverageDealScore.Valid {
		fmt.Printf("Average deal score:    %.1f\n", stats.AverageDealScore.Float64)
	}

	tiers := make([]string, 0, len(stats.RunsByDealTier))
	for tier := range stats.RunsByDealTier {
		tiers = append(tiers, tier)
	}
	sort.Strings(tiers)
	for _, tier := range tiers {
		fmt.Printf("  Tier %s:              %d\n", tier, stats.RunsByDealTier[tier])
	}

	if stats.LastRun.Valid {
		fmt.Printf("Last evaluation:       %s (%s)\n", stats.LastRun.String, stats.LastRunID)
	} else {
		fmt.Printf("Last evaluation:       (never)\n")
	}

	fmt.Println()

	slog.Info("Statistics displayed successfully")
}
