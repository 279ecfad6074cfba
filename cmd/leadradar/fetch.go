package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/leadradar/internal/jobs"
	"github.com/amishk599/leadradar/internal/source"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch job postings for every configured company",
	Long:  "Queries the jobs-data provider once per company and writes the input document atomically.",
	RunE:  runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, logger := mustSetup()
	if err := cfg.CheckCredentials("fetch"); err != nil {
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

	if err := fetchDocument(ctx, a); err != nil {
		logger.Error("fetch failed", "error", err)
		os.Exit(1)
	}
	return nil
}

// fetchDocument rebuilds the input document from the jobs-data provider.
func fetchDocument(ctx context.Context, a *app) error {
	if len(a.cfg.Companies) == 0 {
		return errNoCompanies
	}
	doc, err := jobs.BuildDocument(ctx, a.fetcher(), a.cfg.Companies, a.logger)
	if err != nil {
		return err
	}
	if err := source.Save(a.cfg.Input, doc); err != nil {
		return err
	}
	a.logger.Info("input document written", "path", a.cfg.Input, "companies", len(doc.Companies))
	return nil
}
