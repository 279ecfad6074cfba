package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var exportPath string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the frontend data document",
	Long:  "Combines the input document with every pipeline's checkpoint into one JSON data document.",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportPath, "output", "o", "", "output path (default: export_path from config)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, logger := mustSetup()
	ctx := context.Background()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	path := exportPath
	if path == "" {
		path = cfg.ExportPath
	}
	if err := exportDataStore(ctx, a, path); err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}
	return nil
}
