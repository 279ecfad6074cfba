package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/leadradar/internal/export"
	"github.com/amishk599/leadradar/internal/runner"
)

var (
	runEvery      time.Duration
	runFetchFlag  bool
	runExportFlag bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every enabled pipeline, once or on a schedule",
	Long: "Runs fetch (optional), then jobs, trends, news and interviews in order, then exports the data document.\n" +
		"With --every (or schedule.interval) the cycle repeats until SIGINT/SIGTERM.",
	RunE: runRun,
}

func init() {
	runCmd.Flags().DurationVar(&runEvery, "every", 0, "repeat the cycle at this interval (overrides schedule.interval)")
	runCmd.Flags().BoolVar(&runFetchFlag, "fetch", false, "refresh the input document before the pipelines (overrides schedule.fetch)")
	runCmd.Flags().BoolVar(&runExportFlag, "export", true, "write the data document after the pipelines")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, logger := mustSetup()

	interval := cfg.Schedule.Interval
	if cmd.Flags().Changed("every") {
		interval = runEvery
	}
	fetch := cfg.Schedule.Fetch
	if cmd.Flags().Changed("fetch") {
		fetch = runFetchFlag
	}

	names := cfg.EnabledPipelines()
	if len(names) == 0 {
		logger.Error("no pipelines enabled")
		os.Exit(1)
	}
	stagesNeeded := names
	if fetch {
		stagesNeeded = append([]string{"fetch"}, names...)
	}
	if err := cfg.CheckCredentials(stagesNeeded...); err != nil {
		logger.Error("missing credentials", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"companies", len(cfg.Companies),
		"pipelines", names,
		"concurrency", cfg.Pipeline.Concurrency,
		"checkpoint_backend", cfg.Checkpoint.Backend,
		"interval", interval.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	var stages []runner.Stage
	if fetch {
		stages = append(stages, runner.Stage{Name: "fetch", Run: func(ctx context.Context) error {
			return fetchDocument(ctx, a)
		}})
	}
	for _, name := range names {
		stages = append(stages, runner.Stage{Name: name, Run: func(ctx context.Context) error {
			doc, err := a.loadDocument()
			if err != nil {
				return err
			}
			_, err = runPipeline(ctx, a, name, doc, false)
			return err
		}})
	}
	if runExportFlag {
		stages = append(stages, runner.Stage{Name: "export", Run: func(ctx context.Context) error {
			return exportDataStore(ctx, a, cfg.ExportPath)
		}})
	}

	r := runner.New(stages, interval, logger).WithPause(cfg.Schedule.Pause)
	if err := r.Run(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Info("stopped, progress saved")
			return nil
		}
		logger.Error("cycle finished with errors", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}

// exportDataStore writes the frontend data document to path.
func exportDataStore(ctx context.Context, a *app, path string) error {
	ds, err := a.loader().DataStore(ctx)
	if err != nil {
		return err
	}
	if err := export.Write(path, ds); err != nil {
		return err
	}
	a.logger.Info("data document written",
		"path", path,
		"companies", len(ds.Companies),
		"total_jobs", ds.Metadata.TotalJobs,
	)
	return nil
}
