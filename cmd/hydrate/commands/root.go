package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// options holds the persistent flags shared by every command.
type options struct {
	dir        string
	verbose    bool
	jsonOutput bool
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "hydrate",
		Short: "Hydrate serverless functions with dependencies and shared code",
		Long: `hydrate prepares every function of a declarative serverless app for
deployment. For each function it installs runtime dependencies and copies
in the project's shared code and, for read-style HTTP handlers, its views.

Supported runtimes:
  - node    (npm, node_modules/@architect/{shared,views})
  - python  (pip, vendor/{shared,views})
  - ruby    (bundler, vendor/{shared,views})

Runs are recorded in a local ledger so failed functions can be retried.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.dir, "dir", "C", ".", "project directory")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newRunCommand(opts))
	rootCmd.AddCommand(newWatchCommand(opts))
	rootCmd.AddCommand(newHistoryCommand(opts))
	rootCmd.AddCommand(newValidateCommand(opts))

	return rootCmd
}
