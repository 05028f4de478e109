package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/opusguard/rosterops/errors"
	"github.com/opusguard/rosterops/people"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the RosterOps database",
	Long: `db - Manage RosterOps database operations

Examples:
  rosterops db migrate             # Apply pending migrations
  rosterops db seed                # Load the demo employee dataset
  rosterops db stats               # Show table counts and job breakdown`,
}

var dbPathFlag string

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, _, err := openDatabase(dbPathFlag)
		if err != nil {
			return err
		}
		defer conn.Close()
		pterm.Success.Println("Database is up to date")
		return nil
	},
}

var dbSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the demo employee dataset",
	Long:  "Populate the employee directory with the deterministic demo dataset. Safe to run repeatedly; existing rows are overwritten.",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, _, err := openDatabase(dbPathFlag)
		if err != nil {
			return err
		}
		defer conn.Close()

		n, err := people.NewDirectory(conn).Seed()
		if err != nil {
			return errors.Wrap(err, "seed directory")
		}
		pterm.Success.Printf("Seeded %d employees\n", n)
		return nil
	},
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, cfg, err := openDatabase(dbPathFlag)
		if err != nil {
			return err
		}
		defer conn.Close()

		var employees, jobs, results, audit int
		if err := conn.QueryRow(`SELECT COUNT(*) FROM employees`).Scan(&employees); err != nil {
			return errors.Wrap(err, "count employees")
		}
		if err := conn.QueryRow(`SELECT COUNT(*) FROM bulk_jobs`).Scan(&jobs); err != nil {
			return errors.Wrap(err, "count jobs")
		}
		if err := conn.QueryRow(`SELECT COUNT(*) FROM bulk_job_results`).Scan(&results); err != nil {
			return errors.Wrap(err, "count results")
		}
		if err := conn.QueryRow(`SELECT COUNT(*) FROM bulk_job_audit`).Scan(&audit); err != nil {
			return errors.Wrap(err, "count audit entries")
		}

		fmt.Println("Database Statistics")
		fmt.Printf("Database Path:  %s\n", cfg.Database.Path)
		fmt.Printf("Employees:      %d\n", employees)
		fmt.Printf("Jobs:           %d\n", jobs)
		fmt.Printf("Unit Results:   %d\n", results)
		fmt.Printf("Audit Entries:  %d\n", audit)

		rows, err := conn.Query(`SELECT status, COUNT(*) FROM bulk_jobs GROUP BY status ORDER BY status`)
		if err != nil {
			return errors.Wrap(err, "query job status breakdown")
		}
		defer rows.Close()
		first := true
		for rows.Next() {
			var status string
			var n int
			if err := rows.Scan(&status, &n); err != nil {
				return errors.Wrap(err, "scan status row")
			}
			if first {
				fmt.Println("\nJobs by status:")
				first = false
			}
			fmt.Printf("  %-22s %d\n", status, n)
		}
		return rows.Err()
	},
}

func init() {
	DbCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "Override the configured database path")
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbSeedCmd)
	DbCmd.AddCommand(dbStatsCmd)
}
