package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/opusguard/rosterops/bulk"
	"github.com/opusguard/rosterops/errors"
	"github.com/opusguard/rosterops/internal/util"
)

// CsvCmd represents the csv command
var CsvCmd = &cobra.Command{
	Use:   "csv",
	Short: "CSV import tools",
	Long: `csv - Bulk-change CSV import tools

Examples:
  rosterops csv template                          # Print an import template for all fields
  rosterops csv template --fields team,level      # Template limited to two columns
  rosterops csv import changes.csv                # Resolve and run an import
  rosterops csv import changes.csv --at 2026-10-01T09:00:00Z`,
}

var (
	csvDbFlag       string
	csvFieldsFlag   []string
	csvTemplateOut  string
	csvEffectiveArg string
)

var csvTemplateCmd = &cobra.Command{
	Use:   "template",
	Short: "Generate an import template pre-filled with current values",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(csvDbFlag)
		if err != nil {
			return err
		}
		defer eng.Close()

		employees, err := eng.dir.GetEmployees()
		if err != nil {
			return err
		}
		fields := make([]bulk.Field, 0, len(csvFieldsFlag))
		for _, f := range csvFieldsFlag {
			field := bulk.Field(f)
			if !bulk.ValidField(field) {
				return errors.NewInvalidRequestError("unknown field %q", f)
			}
			fields = append(fields, field)
		}

		text, err := bulk.MakeTemplateCSV(employees, fields)
		if err != nil {
			return err
		}
		if csvTemplateOut == "" {
			fmt.Print(text)
			return nil
		}
		if err := os.WriteFile(csvTemplateOut, []byte(text), 0o644); err != nil {
			return errors.Wrap(err, "write template file")
		}
		pterm.Success.Printf("Wrote template for %d employees to %s\n", len(employees), csvTemplateOut)
		return nil
	},
}

var csvImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Resolve a CSV and run the import job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(csvDbFlag)
		if err != nil {
			return err
		}
		defer eng.Close()

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrap(err, "read csv file")
		}

		var effectiveAt *time.Time
		if csvEffectiveArg != "" {
			at, err := time.Parse(time.RFC3339, csvEffectiveArg)
			if err != nil {
				return errors.Wrap(err, "parse --at (want RFC3339)")
			}
			effectiveAt = util.Ptr(at)
		}

		job, err := eng.store.StartCSVJob(cmd.Context(), string(raw), effectiveAt, "cli")
		if err != nil {
			return err
		}
		if job.Status == bulk.StatusReady {
			pterm.Info.Printf("Job %s scheduled for %s\n", job.ID, job.EffectiveAt.Local().Format(time.RFC1123))
			return nil
		}

		spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Importing %d rows", job.TotalCount))
		done, err := waitForTerminal(cmd.Context(), eng.store, job.ID)
		if err != nil {
			spinner.Fail(err.Error())
			return err
		}
		msg := fmt.Sprintf("Job %s: %s (%d/%d, %d failed)",
			done.ID, done.Status, done.ProcessedCount(), done.TotalCount, done.FailureCount())
		if done.FailureCount() > 0 {
			spinner.Warning(msg)
		} else {
			spinner.Success(msg)
		}
		return nil
	},
}

func init() {
	CsvCmd.PersistentFlags().StringVar(&csvDbFlag, "db", "", "Override the configured database path")
	csvTemplateCmd.Flags().StringSliceVar(&csvFieldsFlag, "fields", nil, "Fields to include (default: all)")
	csvTemplateCmd.Flags().StringVarP(&csvTemplateOut, "out", "o", "", "Write the template to a file instead of stdout")
	csvImportCmd.Flags().StringVar(&csvEffectiveArg, "at", "", "Schedule the import for a future RFC3339 time")
	CsvCmd.AddCommand(csvTemplateCmd)
	CsvCmd.AddCommand(csvImportCmd)
}
