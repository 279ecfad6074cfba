package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amishk599/leadradar/internal/jobs"
)

var companiesCmd = &cobra.Command{
	Use:   "companies",
	Short: "List all configured companies",
	Long:  "Reads the config and prints a table of the target companies.",
	RunE:  runCompanies,
}

func init() {
	rootCmd.AddCommand(companiesCmd)
}

func runCompanies(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%-28s %-22s %-28s %s\n", "Company", "Industry", "Website", "Employees")
	fmt.Println(strings.Repeat("─", 90))

	noWebsite := 0
	for _, c := range cfg.Companies {
		website := jobs.CleanWebsite(c.Website)
		if website == "" {
			website = "(missing)"
			noWebsite++
		}
		fmt.Printf("%-28s %-22s %-28s %s\n", c.Name, c.Industry, website, c.Employees)
	}

	fmt.Printf("\nTotal: %d companies", len(cfg.Companies))
	if noWebsite > 0 {
		fmt.Printf(" (%d without a website will fail to fetch)", noWebsite)
	}
	fmt.Println()
	return nil
}
