package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amishk599/leadradar/internal/checkpoint"
	"github.com/amishk599/leadradar/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show checkpoint progress for every pipeline",
	Long:  "Prints how many items each pipeline has completed, how many failed, and how many are still pending.",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, logger := mustSetup()
	ctx := context.Background()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	doc, docErr := a.loadDocument()
	if docErr != nil {
		fmt.Fprintf(os.Stderr, "pending counts unavailable: %v\n", docErr)
	}

	fmt.Printf("%-12s %-9s %10s %8s %8s\n", "Pipeline", "Status", "Succeeded", "Failed", "Pending")
	fmt.Println(strings.Repeat("─", 51))

	for _, name := range config.PipelineNames {
		cp, err := checkpoint.Open(ctx, a.backend(name), 1, logger)
		if err != nil {
			logger.Error("failed to read checkpoint", "pipeline", name, "error", err)
			os.Exit(1)
		}
		succeeded, failed := cp.Counts()

		pending := "-"
		if docErr == nil {
			p, _, err := a.buildPipeline(ctx, name, doc, nil)
			if err == nil {
				items, _ := p.Plan()
				pending = fmt.Sprint(len(items))
			}
		}

		state := "enabled"
		if !cfg.Pipelines[name].Enabled {
			state = "disabled"
		}
		fmt.Printf("%-12s %-9s %10d %8d %8s\n", name, state, succeeded, failed, pending)
	}
	return nil
}
