package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// JobsCmd represents the jobs command
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage bulk-change jobs",
	Long: `jobs - Inspect and manage bulk-change jobs

Examples:
  rosterops jobs ls                       # List all jobs, newest first
  rosterops jobs show job_1a2b3c4d        # Show one job with results and audit log
  rosterops jobs run job_1a2b3c4d         # Resume an interrupted job
  rosterops jobs cancel job_1a2b3c4d      # Cancel a scheduled job
  rosterops jobs retry job_1a2b3c4d       # Retry app-sync failures`,
}

var jobsDbFlag string

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List jobs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(jobsDbFlag)
		if err != nil {
			return err
		}
		defer eng.Close()

		jobs, err := eng.store.Jobs()
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			pterm.Info.Println("No jobs yet")
			return nil
		}

		rows := pterm.TableData{{"ID", "NAME", "STATUS", "PROGRESS", "FAILED", "CREATED"}}
		for _, j := range jobs {
			rows = append(rows, []string{
				j.ID,
				j.DisplayName(),
				string(j.Status),
				fmt.Sprintf("%d/%d", j.ProcessedCount(), j.TotalCount),
				fmt.Sprintf("%d", j.FailureCount()),
				j.CreatedAt.Local().Format("2006-01-02 15:04"),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one job with results and audit log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(jobsDbFlag)
		if err != nil {
			return err
		}
		defer eng.Close()

		job, err := eng.store.Job(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s  %s\n", job.ID, job.DisplayName())
		fmt.Printf("Status:          %s\n", job.Status)
		fmt.Printf("Created:         %s by %s\n", job.CreatedAt.Local().Format(time.RFC1123), job.CreatedBy)
		if job.EffectiveAt != nil {
			fmt.Printf("Effective:       %s\n", job.EffectiveAt.Local().Format(time.RFC1123))
		}
		fmt.Printf("Progress:        %d/%d (%d failed)\n", job.ProcessedCount(), job.TotalCount, job.FailureCount())
		fmt.Printf("Changes applied: %v\n", job.ChangesApplied)

		if len(job.Results) > 0 {
			fmt.Println("\nResults:")
			for _, r := range job.Results {
				mark := pterm.Green("ok")
				detail := r.Message
				if !r.OK {
					mark = pterm.Red("FAIL")
					detail = fmt.Sprintf("%s at %s", r.Message, r.FailedStep)
				}
				fmt.Printf("  %-12s %-6s %s\n", r.UnitID, mark, detail)
			}
		}

		if len(job.AuditLog) > 0 {
			fmt.Println("\nAudit log:")
			for _, a := range job.AuditLog {
				fmt.Printf("  %s  %s\n", a.At.Local().Format("15:04:05"), a.Message)
			}
		}
		return nil
	},
}

var jobsRunCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Drive a job to completion in the foreground",
	Long:  "Resume an interrupted job (or start an immediate one) and wait for it to finish. Recorded units are never reprocessed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(jobsDbFlag)
		if err != nil {
			return err
		}
		defer eng.Close()

		spinner, _ := pterm.DefaultSpinner.Start("Running job " + args[0])
		if err := eng.store.RunJobToCompletion(cmd.Context(), args[0]); err != nil {
			spinner.Fail(err.Error())
			return err
		}
		job, err := eng.store.Job(args[0])
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("Job %s finished: %s (%d/%d, %d failed)",
			job.ID, job.Status, job.ProcessedCount(), job.TotalCount, job.FailureCount())
		if job.FailureCount() > 0 {
			spinner.Warning(msg)
		} else {
			spinner.Success(msg)
		}
		return nil
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a scheduled job before it starts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(jobsDbFlag)
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.store.CancelJob(args[0]); err != nil {
			return err
		}
		pterm.Success.Printf("Job %s canceled\n", args[0])
		return nil
	},
}

var (
	retryUnitsFlag []string
	retryRowsFlag  []string
	retryNoteFlag  string
)

var jobsRetryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Retry failures on a finished job",
	Long: `Retry failures on a finished job.

Without flags, reattempts the apps-and-integrations sync for every unit
that failed at that step. With --rows, clears and reruns the named CSV
rows through the full pipeline instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(jobsDbFlag)
		if err != nil {
			return err
		}
		defer eng.Close()

		jobID := args[0]
		if len(retryRowsFlag) > 0 {
			if err := eng.store.RetryCSVRows(cmd.Context(), jobID, retryRowsFlag, retryNoteFlag); err != nil {
				return err
			}
			spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Rerunning %d row(s)", len(retryRowsFlag)))
			if _, err := waitForTerminal(cmd.Context(), eng.store, jobID); err != nil {
				spinner.Fail(err.Error())
				return err
			}
			spinner.Success("Retry finished")
		} else {
			if err := eng.store.RetryAppSync(cmd.Context(), jobID, retryUnitsFlag); err != nil {
				return err
			}
		}

		job, err := eng.store.Job(jobID)
		if err != nil {
			return err
		}
		pterm.Info.Printf("Job %s is now %s (%d failed)\n", job.ID, job.Status, job.FailureCount())
		return nil
	},
}

func init() {
	JobsCmd.PersistentFlags().StringVar(&jobsDbFlag, "db", "", "Override the configured database path")
	jobsRetryCmd.Flags().StringSliceVar(&retryUnitsFlag, "units", nil, "Limit app-sync retry to these unit ids")
	jobsRetryCmd.Flags().StringSliceVar(&retryRowsFlag, "rows", nil, "CSV row ids to clear and rerun")
	jobsRetryCmd.Flags().StringVar(&retryNoteFlag, "note", "", "Note to record on the retry audit line")
	JobsCmd.AddCommand(jobsLsCmd)
	JobsCmd.AddCommand(jobsShowCmd)
	JobsCmd.AddCommand(jobsRunCmd)
	JobsCmd.AddCommand(jobsCancelCmd)
	JobsCmd.AddCommand(jobsRetryCmd)
}
