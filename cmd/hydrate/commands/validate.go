package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lpsinger/hydrate/pkg/config"
	"github.com/lpsinger/hydrate/pkg/manifest"
)

func newValidateCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the project file",
		Long: `Validate the project file without touching any function directory.

This command checks:
  - Schema conformance (unknown keys, wrong types)
  - Supported runtimes and state paths
  - Route syntax and duplicate functions
  - Shared and views lists naming declared functions`,
		Example: `  # Validate the project in the current directory
  hydrate validate

  # Validate another project, printing errors as JSON
  hydrate validate -C ./app --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			p, err := config.NewLoader().LoadDir(opts.dir)
			if err != nil {
				if errs := config.Errors(err); len(errs) > 0 {
					if opts.jsonOutput {
						_ = writeJSON(out, errs)
					} else {
						for _, e := range errs {
							fmt.Fprintln(out, e.Error())
						}
					}
					return fmt.Errorf("%d validation errors", len(errs))
				}
				return err
			}

			res, err := manifest.Resolve(p.App())
			if err != nil {
				return err
			}
			fns, err := res.Classified()
			if err != nil {
				return err
			}

			log.Debug().Str("path", p.Path).Int("functions", len(fns)).Msg("Project file is valid")

			if opts.jsonOutput {
				return writeJSON(out, fns)
			}
			fmt.Fprintf(out, "%s: %d functions\n", p.Path, len(fns))
			for _, fn := range fns {
				fmt.Fprintf(out, "  %-40s %s\n", fn.ID, fn.Runtime)
			}
			return nil
		},
	}

	return cmd
}
