package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pigeonworks-llc/mca-underwriter/pkg/underwriter"
)

var (
	runsLimit int
	showJSON  bool
)

// runsCmd represents the runs command.
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded evaluations",
	Long: `List recorded evaluations, newest first.

Example:
  underwrite runs --limit 10
  underwrite runs show 6f1c2b9e-...
  underwrite runs delete 6f1c2b9e-...`,
	Args: cobra.NoArgs,
	Run:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a recorded evaluation",
	Args:  cobra.ExactArgs(1),
	Run:   runRunsShow,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a recorded evaluation",
	Args:  cobra.ExactArgs(1),
	Run:   runRunsDelete,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum number of runs to list (0 for all)")
	runsShowCmd.Flags().BoolVar(&showJSON, "json", false, "print the stored result as JSON")

	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)
}

func runRunsList(cmd *cobra.Command, args []string) {
	env, err := loadEnvironment(true)
	exitOnError(err, "failed to initialize")
	defer env.Close()

	runs, err := env.service.List(context.Background(), runsLimit)
	exitOnError(err, "failed to list runs")

	printRuns(os.Stdout, runs)
}

func runRunsShow(cmd *cobra.Command, args []string) {
	env, err := loadEnvironment(true)
	exitOnError(err, "failed to initialize")
	defer env.Close()

	result, err := env.service.Get(context.Background(), args[0])
	if errors.Is(err, underwriter.ErrNotFound) {
		exitOnError(fmt.Errorf("no run with ID %s", args[0]), "run not found")
	}
	exitOnError(err, "failed to load run")

	if showJSON {
		enc := newJSONEncoder(os.Stdout)
		exitOnError(enc.Encode(result), "failed to encode result")
		return
	}
	printResult(os.Stdout, result)
}

func runRunsDelete(cmd *cobra.Command, args []string) {
	env, err := loadEnvironment(true)
	exitOnError(err, "failed to initialize")
	defer env.Close()

	err = env.service.Delete(context.Background(), args[0])
	if errors.Is(err, underwriter.ErrNotFound) {
		exitOnError(fmt.Errorf("no run with ID %s", args[0]), "run not found")
	}
	exitOnError(err, "failed to delete run")

	fmt.Printf("Deleted run %s\n", args[0])
}
