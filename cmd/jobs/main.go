// Command jobs inspects the embedding job queue (embedding_jobs table)
// directly against Postgres, grounded on the donor's job_cli.py.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/biorag/engine/internal/model"
	"github.com/biorag/engine/internal/repository"
)

// Exit codes per §6's CLI surface: 0 success, 1 database error, 2 unknown command.
const (
	exitOK      = 0
	exitDBError = 1
	exitUnknown = 2
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// cliError carries the exit code a cobra RunE failure should produce.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	var ce *cliError
	if ok := asCliError(err, &ce); ok {
		return ce.code
	}
	return exitUnknown
}

func asCliError(err error, target **cliError) bool {
	ce, ok := err.(*cliError)
	if !ok {
		return false
	}
	*target = ce
	return true
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "jobs",
		Short:         "Inspect the embedding job queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newSummaryCmd(), newListCmd())
	return cmd
}

func connectJobRepo(ctx context.Context) (*repository.JobRepo, func(), error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, nil, &cliError{code: exitDBError, err: fmt.Errorf("jobs: DATABASE_URL is required")}
	}
	pool, err := repository.NewPool(ctx, dbURL, 4)
	if err != nil {
		return nil, nil, &cliError{code: exitDBError, err: fmt.Errorf("jobs: connect: %w", err)}
	}
	return repository.NewJobRepo(pool, nil), pool.Close, nil
}

func newSummaryCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show queue totals by status, the oldest pending job, and active workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, closePool, err := connectJobRepo(ctx)
			if err != nil {
				return err
			}
			defer closePool()

			summary, err := repo.Summary(ctx)
			if err != nil {
				return &cliError{code: exitDBError, err: fmt.Errorf("jobs summary: %w", err)}
			}

			if format == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(summary)
			}
			return printSummary(cmd, summary)
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "output format: table|json")
	return cmd
}

func printSummary(cmd *cobra.Command, summary repository.JobQueueSummary) error {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Total jobs: %d\n\n", summary.TotalJobs)

	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tCOUNT")
	for _, status := range []model.JobStatus{model.JobPending, model.JobRunning, model.JobSucceeded, model.JobFailed} {
		fmt.Fprintf(tw, "%s\t%d\n", status, summary.ByStatus[status])
	}
	tw.Flush()

	fmt.Fprintln(w)
	if summary.OldestPending != nil {
		fmt.Fprintf(w, "Oldest pending: %s (%s/%s, queued %s)\n",
			summary.OldestPending.ID, summary.OldestPending.SourceType, summary.OldestPending.SourceID,
			summary.OldestPending.CreatedAt.Format(time.RFC3339))
	} else {
		fmt.Fprintln(w, "Oldest pending: none")
	}

	if len(summary.ActiveWorkers) > 0 {
		fmt.Fprintf(w, "Active workers: %v\n", summary.ActiveWorkers)
	} else {
		fmt.Fprintln(w, "Active workers: none")
	}
	return nil
}

func newListCmd() *cobra.Command {
	var statusFlags []string
	var limit int
	var includeError bool
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent embedding jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, closePool, err := connectJobRepo(ctx)
			if err != nil {
				return err
			}
			defer closePool()

			var statuses []model.JobStatus
			for _, s := range statusFlags {
				statuses = append(statuses, model.JobStatus(s))
			}

			jobs, err := repo.List(ctx, statuses, limit)
			if err != nil {
				return &cliError{code: exitDBError, err: fmt.Errorf("jobs list: %w", err)}
			}

			if format == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(jobs)
			}
			return printJobsTable(cmd, jobs, includeError)
		},
	}

	cmd.Flags().StringSliceVar(&statusFlags, "status", nil, "filter by status (repeatable): PENDING|RUNNING|SUCCEEDED|FAILED")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to return")
	cmd.Flags().BoolVar(&includeError, "include-error", false, "include the error_log column")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table|json")
	return cmd
}

func printJobsTable(cmd *cobra.Command, jobs []model.EmbeddingJob, includeError bool) error {
	w := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	if includeError {
		fmt.Fprintln(tw, "ID\tSOURCE\tMODEL\tSTATUS\tPRIORITY\tUPDATED\tERROR")
	} else {
		fmt.Fprintln(tw, "ID\tSOURCE\tMODEL\tSTATUS\tPRIORITY\tUPDATED")
	}
	for _, j := range jobs {
		source := j.SourceType + "/" + j.SourceID
		if includeError {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				j.ID, source, j.ModelName, j.Status, j.Priority, j.UpdatedAt.Format(time.RFC3339), j.ErrorLog)
		} else {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
				j.ID, source, j.ModelName, j.Status, j.Priority, j.UpdatedAt.Format(time.RFC3339))
		}
	}
	return tw.Flush()
}
