package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/leadradar/internal/config"
	"github.com/amishk599/leadradar/internal/tui"
)

var browseCmd = &cobra.Command{
	Use:   "browse [pipeline]",
	Short: "Browse pipeline results interactively",
	Long:  "Opens a terminal UI: pick a pipeline, then page through its successes and failures.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := setupQuietLogger()
	ctx := context.Background()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open stores: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()
	loader := a.loader()

	// A pipeline named on the command line skips the picker.
	if len(args) == 1 {
		results, err := loader.Results(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		_, err = tui.RunBrowser(args[0], results, tui.LeadFunc(leadFuncs[args[0]]))
		return err
	}

	for {
		items := make([]tui.PickerItem, 0, len(config.PipelineNames))
		for _, name := range config.PipelineNames {
			results, err := loader.Results(ctx, name)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
				os.Exit(1)
			}
			ok := 0
			for _, r := range results {
				if r.Succeeded() {
					ok++
				}
			}
			items = append(items, tui.PickerItem{
				Name:   name,
				Detail: fmt.Sprintf("%d succeeded, %d failed", ok, len(results)-ok),
			})
		}

		idx, err := tui.RunPicker(items)
		if err != nil {
			return fmt.Errorf("picker: %w", err)
		}
		if idx < 0 {
			return nil
		}

		name := items[idx].Name
		results, err := loader.Results(ctx, name)
		if err != nil {
			return err
		}
		quit, err := tui.RunBrowser(name, results, tui.LeadFunc(leadFuncs[name]))
		if err != nil {
			return fmt.Errorf("browser: %w", err)
		}
		if quit {
			return nil
		}
	}
}
