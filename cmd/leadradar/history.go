package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent pipeline runs",
	Long:  "Prints the run ledger, newest first.",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, logger := mustSetup()
	if !cfg.History.Enabled {
		fmt.Println("run history is disabled (history.enabled: false)")
		return nil
	}
	ctx := context.Background()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	runs, err := a.ledger.ListRuns(ctx, historyLimit)
	if err != nil {
		logger.Error("failed to list runs", "error", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded yet")
		return nil
	}

	fmt.Printf("%-20s %-11s %-34s %8s %9s %10s\n", "Started", "Pipeline", "Result", "Skipped", "Tokens", "Duration")
	fmt.Println(strings.Repeat("─", 97))
	for _, r := range runs {
		fmt.Printf("%-20s %-11s %-34s %8d %9d %10s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Pipeline,
			r.Tally(),
			r.Skipped,
			r.Tokens,
			r.Duration().Round(time.Second),
		)
	}
	return nil
}
