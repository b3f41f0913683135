package commands

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lpsinger/hydrate/pkg/config"
	"github.com/lpsinger/hydrate/pkg/project"
	"github.com/lpsinger/hydrate/pkg/telemetry"
)

// session is a loaded project with telemetry for the duration of a command.
type session struct {
	ctx       context.Context
	project   *project.Project
	telemetry *telemetry.Telemetry
	end       func(error)
}

type sessionOptions struct {
	metricsAddr string
	project     []project.Option
}

// openSession loads the project in opts.dir, builds telemetry from its
// settings and opens the root span for command.
func openSession(cmd *cobra.Command, opts *options, command string, so sessionOptions) (*session, error) {
	cfg, err := config.NewLoader().LoadDir(opts.dir)
	if err != nil {
		return nil, err
	}

	tc := *cfg.Settings().Telemetry
	if opts.verbose {
		tc.Logging.Level = "debug"
	}
	if so.metricsAddr != "" {
		tc.Metrics.Enabled = true
		tc.Metrics.ListenAddress = so.metricsAddr
	}

	tel, err := telemetry.NewTelemetry(&tc)
	if err != nil {
		return nil, err
	}

	ctx := tel.WithContext(cmd.Context())
	ctx, end := tel.StartCommand(ctx, command, cfg.Root)

	if tc.Metrics.Enabled {
		addr, err := tel.Metrics.StartMetricsServer(ctx)
		if err != nil {
			end(err)
			_ = tel.Shutdown(context.Background())
			return nil, err
		}
		zerolog.Ctx(ctx).Info().Str("addr", addr).Msg("Serving metrics")
	}

	p, err := project.New(ctx, cfg, append(so.project, project.WithTelemetry(tel))...)
	if err != nil {
		end(err)
		_ = tel.Shutdown(context.Background())
		return nil, err
	}

	return &session{ctx: ctx, project: p, telemetry: tel, end: end}, nil
}

// close ends the command span, drains telemetry and releases the project.
// Events are flushed before the ledger closes.
func (s *session) close(err error) error {
	s.end(err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(err, s.telemetry.Shutdown(ctx), s.project.Close())
}
