package commands

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lpsinger/hydrate/pkg/engine"
	"github.com/lpsinger/hydrate/pkg/project"
	"github.com/lpsinger/hydrate/pkg/watch"
)

func newWatchCommand(opts *options) *cobra.Command {
	var (
		install     bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-hydrate shared and views code when sources change",
		Long: `Watch the shared and views source trees, the static asset manifest and
the project file, and re-copy shared and views code into every function
after each burst of changes. Dependencies are not reinstalled.

A change to the project file reloads the function list and hydration
policies before the next run.`,
		Example: `  # Watch the project in the current directory
  hydrate watch

  # Do a full hydration, including dependencies, before watching
  hydrate watch --install`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := openSession(cmd, opts, "watch", sessionOptions{
				metricsAddr: metricsAddr,
				project:     []project.Option{project.WithLedger()},
			})
			if err != nil {
				return err
			}
			defer func() { err = s.close(err) }()

			ctx := s.ctx
			p := s.project
			out := cmd.OutOrStdout()
			logger := zerolog.Ctx(ctx)

			hydrateOnce := func(ctx context.Context, skipInstall bool) {
				report, err := p.Hydrate(ctx, engine.RunOptions{SkipInstall: skipInstall})
				if report == nil {
					logger.Error().Err(err).Msg("Hydration failed")
					return
				}
				fmt.Fprintf(out, "[%s] %s: %d succeeded, %d failed\n",
					report.CompletedAt.Format("15:04:05"),
					report.Status,
					report.Summary.Succeeded,
					report.Summary.Failed,
				)
				for _, fr := range report.Functions {
					if ferr := fr.Err(); ferr != nil {
						fmt.Fprintf(out, "  FAIL  %s: %v\n", fr.Function.ID, ferr)
					}
				}
			}

			hydrateOnce(ctx, !install)

			debounce := p.Config.Settings().Watch.Debounce
			for ctx.Err() == nil {
				paths := p.WatchPaths()
				wctx, restart := context.WithCancel(ctx)
				w := watch.New(*logger, debounce, paths...)

				err := w.Watch(wctx, func(ctx context.Context, changed []string) error {
					if slices.Contains(changed, p.Config.Path) {
						if err := p.Reload(); err != nil {
							return fmt.Errorf("project file is invalid, keeping previous definition: %w", err)
						}
						logger.Info().Int("functions", len(p.Functions)).Msg("Reloaded project file")
					}
					hydrateOnce(ctx, true)
					if !slices.Equal(paths, p.WatchPaths()) {
						logger.Info().Msg("Source locations changed, restarting watcher")
						restart()
					}
					return nil
				})
				restart()
				if err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&install, "install", false, "install dependencies before the first hydration")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}
