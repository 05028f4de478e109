package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opusguard/rosterops/cmd/rosterops/commands"
	"github.com/opusguard/rosterops/logger"
)

var rootCmd = &cobra.Command{
	Use:   "rosterops",
	Short: "RosterOps - bulk employee change engine",
	Long: `RosterOps - bulk employee change engine.

RosterOps drives staged bulk changes across an employee directory:
drafts are validated and submitted as jobs, each job propagates its
changes through downstream systems unit by unit, and every run leaves a
persistent result and audit trail that survives restarts.

Available commands:
  db      - Manage the sqlite database (migrate, seed, stats)
  csv     - Generate import templates and run CSV imports
  jobs    - List, inspect, run, cancel, and retry jobs
  version - Show version information

Examples:
  rosterops db seed                 # Load the demo employee dataset
  rosterops csv template -o t.csv   # Write an import template
  rosterops csv import changes.csv  # Run an import
  rosterops jobs ls                 # List jobs`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit structured JSON logs instead of console output")

	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.CsvCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
