package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lpsinger/hydrate/pkg/project"
)

func newHistoryCommand(opts *options) *cobra.Command {
	var (
		limit int
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded hydration runs",
		Long: `List the most recent runs recorded in the project's ledger, newest first.

Use "hydrate history show <run-id>" to see the step outcomes and event
timeline of a single run.`,
		Example: `  # Last 20 runs of this project
  hydrate history

  # Runs of every project sharing this ledger
  hydrate history --all --limit 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := openSession(cmd, opts, "history", sessionOptions{
				project: []project.Option{project.WithLedger()},
			})
			if err != nil {
				return err
			}
			defer func() { err = s.close(err) }()

			root := s.project.Root
			if all {
				root = ""
			}
			runs, err := s.project.Store().ListRuns(s.ctx, root, limit, 0)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs recorded")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tDURATION\tOK\tFAILED\tCANCELLED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
					r.ID,
					r.StartedAt.Local().Format(time.DateTime),
					r.Status,
					r.Duration.Round(time.Millisecond),
					r.Summary.Succeeded,
					r.Summary.Failed,
					r.Summary.Cancelled,
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list")
	cmd.Flags().BoolVar(&all, "all", false, "list runs of every project in the ledger")

	cmd.AddCommand(newHistoryShowCommand(opts))

	return cmd
}

func newHistoryShowCommand(opts *options) *cobra.Command {
	var events bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded run",
		Example: `  # Step table of a run
  hydrate history show 6f1c0d2e-8a55-4c1e-9a0b-7d4e0c6b2f10

  # Include the event timeline
  hydrate history show 6f1c0d2e-8a55-4c1e-9a0b-7d4e0c6b2f10 --events`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := openSession(cmd, opts, "history show", sessionOptions{
				project: []project.Option{project.WithLedger()},
			})
			if err != nil {
				return err
			}
			defer func() { err = s.close(err) }()

			store := s.project.Store()
			report, err := store.GetRun(s.ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput && !events {
				return writeJSON(out, report)
			}
			if !opts.jsonOutput {
				printReport(out, report)
			}
			if !events {
				return nil
			}

			timeline, err := store.GetEvents(s.ctx, report.ID)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(out, map[string]interface{}{"run": report, "events": timeline})
			}

			fmt.Fprintln(out)
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tLEVEL\tTYPE\tFUNCTION\tMESSAGE")
			for _, e := range timeline {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					e.Timestamp.Local().Format("15:04:05.000"),
					e.Level,
					e.Type,
					e.Function,
					e.Message,
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&events, "events", false, "include the event timeline")

	return cmd
}
