package commands

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lpsinger/hydrate/pkg/engine"
	"github.com/lpsinger/hydrate/pkg/project"
	"github.com/lpsinger/hydrate/pkg/telemetry"
)

func newRunCommand(opts *options) *cobra.Command {
	var (
		sharedOnly  bool
		only        []string
		retryFailed bool
		parallelism int
		metricsAddr string
		noLedger    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Hydrate every function of the project",
		Long: `Install dependencies and copy shared and views code into every function.

Each function is processed independently: one function's failure never
stops the others. Within a function, dependencies are installed first and
shared and views code are then copied concurrently. The static asset
manifest is written next to the shared code.

The outcome of every run is recorded in the project's ledger
(.hydrate/state.db by default).`,
		Example: `  # Hydrate the project in the current directory
  hydrate run

  # Re-copy shared and views code without reinstalling dependencies
  hydrate run --shared-only

  # Hydrate selected functions
  hydrate run --only "get /" --only event:ping --only post-items

  # Retry whatever failed last time
  hydrate run --retry-failed

  # Machine-readable report
  hydrate run --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if retryFailed && len(only) > 0 {
				return errors.New("--retry-failed and --only are mutually exclusive")
			}
			if retryFailed && noLedger {
				return errors.New("--retry-failed needs the run ledger")
			}

			so := sessionOptions{metricsAddr: metricsAddr}
			if parallelism > 0 {
				so.project = append(so.project, project.WithParallelism(parallelism))
			}
			if !noLedger {
				so.project = append(so.project, project.WithLedger())
			}

			s, err := openSession(cmd, opts, "run", so)
			if err != nil {
				return err
			}
			defer func() { err = s.close(err) }()

			runOpts := engine.RunOptions{SkipInstall: sharedOnly}
			for _, ref := range only {
				id, err := s.project.Resolution.Lookup(ref)
				if err != nil {
					return fmt.Errorf("invalid --only value: %w", err)
				}
				runOpts.Only = append(runOpts.Only, id)
			}

			out := cmd.OutOrStdout()
			if !opts.jsonOutput {
				s.telemetry.Events.Subscribe(progressPrinter(out), telemetry.FilterByType(
					engine.EventTypeFunctionCompleted,
					engine.EventTypeFunctionFailed,
					engine.EventTypeWarning,
				))
			}

			logger := zerolog.Ctx(s.ctx)
			logger.Info().
				Str("root", s.project.Root).
				Int("functions", len(s.project.Functions)).
				Bool("shared_only", sharedOnly).
				Bool("retry_failed", retryFailed).
				Msg("Hydrating project")

			var report *engine.RunReport
			if retryFailed {
				report, err = s.project.RetryFailed(s.ctx, runOpts)
				if errors.Is(err, project.ErrNothingToRetry) {
					fmt.Fprintln(out, "nothing to retry: every function succeeded last time")
					return nil
				}
			} else {
				report, err = s.project.Hydrate(s.ctx, runOpts)
			}
			if report == nil {
				return err
			}

			if opts.jsonOutput {
				if werr := writeJSON(out, report); werr != nil {
					return werr
				}
			} else {
				fmt.Fprintln(out)
				printReport(out, report)
			}

			if err != nil {
				return err
			}
			return runError(report)
		},
	}

	cmd.Flags().BoolVar(&sharedOnly, "shared-only", false, "skip dependency installation")
	cmd.Flags().StringArrayVar(&only, "only", nil, `hydrate only this function ("trigger:name", "method /path" or a unique name); repeatable`)
	cmd.Flags().BoolVar(&retryFailed, "retry-failed", false, "hydrate only functions whose last recorded run failed")
	cmd.Flags().IntVarP(&parallelism, "parallelism", "j", 0, "maximum functions hydrated concurrently (default from project settings)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	cmd.Flags().BoolVar(&noLedger, "no-ledger", false, "do not record the run")

	return cmd
}
