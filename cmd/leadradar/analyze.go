package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/leadradar/internal/config"
	"github.com/amishk599/leadradar/internal/dispatch"
	"github.com/amishk599/leadradar/internal/model"
	"github.com/amishk599/leadradar/internal/source"
	"github.com/amishk599/leadradar/internal/tui"
)

var (
	analyzeProgress bool
	analyzeCompany  string
	analyzeDays     int
)

const analyzeRefreshHelp = "With --company, news and interviews search that company again, optionally limited to the last --days, and merge the findings into its previous report."

var analyzeCmd = &cobra.Command{
	Use:       "analyze <pipeline>",
	Short:     "Run one analysis pipeline",
	Long:      "Runs one pipeline (" + strings.Join(config.PipelineNames, ", ") + ") over the input document, skipping items that already succeeded.\n\n" + analyzeRefreshHelp,
	Args:      cobra.ExactArgs(1),
	ValidArgs: config.PipelineNames,
	RunE:      runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeProgress, "tui", false, "show a live progress view instead of log lines")
	analyzeCmd.Flags().StringVar(&analyzeCompany, "company", "", "refresh one company (news and interviews only)")
	analyzeCmd.Flags().IntVar(&analyzeDays, "days", 0, "with --company, only search content from the last N days")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	name := args[0]
	if !slices.Contains(config.PipelineNames, name) {
		return fmt.Errorf("unknown pipeline %q (want one of %s)", name, strings.Join(config.PipelineNames, ", "))
	}
	refresh, err := newsRefreshFor(name, analyzeCompany, analyzeDays)
	if err != nil {
		return err
	}

	cfg, logger := mustSetup()
	if err := cfg.CheckCredentials(name); err != nil {
		logger.Error("missing credentials", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	defer a.Close()
	a.refresh = refresh

	doc, err := a.loadDocument()
	if err != nil {
		logger.Error("failed to load input", "error", err)
		os.Exit(1)
	}

	report, err := runPipeline(ctx, a, name, doc, analyzeProgress)
	if errors.Is(err, context.Canceled) {
		logger.Info("stopped, progress saved", "tally", report.Tally())
		return nil
	}
	if err != nil {
		logger.Error("pipeline failed", "pipeline", name, "error", err)
		os.Exit(1)
	}
	if analyzeProgress {
		fmt.Printf("%s: %s (%d skipped, %d tokens)\n", name, report.Tally(), report.Skipped, report.Tokens)
	}
	return nil
}

// newsRefreshFor validates the refresh flags for the named pipeline.
func newsRefreshFor(name, company string, days int) (newsRefresh, error) {
	company = strings.TrimSpace(company)
	switch {
	case days < 0:
		return newsRefresh{}, fmt.Errorf("--days must not be negative, got %d", days)
	case company == "" && days > 0:
		return newsRefresh{}, errors.New("--days requires --company")
	case company != "" && name != config.PipelineNews && name != config.PipelineInterviews:
		return newsRefresh{}, fmt.Errorf("--company only applies to %s and %s, not %s", config.PipelineNews, config.PipelineInterviews, name)
	}
	return newsRefresh{Company: company, Days: days}, nil
}

// runPipeline builds and runs one pipeline, optionally behind the progress view.
func runPipeline(ctx context.Context, a *app, name string, doc *source.Document, progress bool) (model.RunReport, error) {
	if !progress {
		n := setupNotifier(a.cfg, newNotifierClient(), a.logger)
		p, _, err := a.buildPipeline(ctx, name, doc, n)
		if err != nil {
			return model.RunReport{}, err
		}
		return p.Run(ctx)
	}

	// Log lines would tear the progress view; keep errors only.
	quiet := *a
	quiet.logger = setupQuietLogger()
	n := setupNotifier(quiet.cfg, newNotifierClient(), quiet.logger)
	p, d, err := quiet.buildPipeline(ctx, name, doc, n)
	if err != nil {
		return model.RunReport{}, err
	}
	pending, _ := p.Plan()
	return tui.RunProgress(ctx, name, len(pending), func(ctx context.Context, obs dispatch.Observer) (model.RunReport, error) {
		d.WithObserver(obs)
		return p.Run(ctx)
	})
}
