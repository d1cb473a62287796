package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nais/gcp-cost/internal/api"
	"github.com/nais/gcp-cost/internal/monitor"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the cost summary over HTTP",
		Long:  "Serve the cost summary over HTTP, refreshing on an interval. SIGHUP reloads the configuration.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			m, closeHistory, err := a.newMonitor(ctx)
			if err != nil {
				return err
			}
			defer closeHistory()

			if err := m.Start(ctx); err != nil {
				return err
			}
			defer m.Stop()

			go a.reloadOnHangup(ctx, cmd, m)

			a.log.WithField("address", a.cfg.Server.ListenAddress).Info("serving cost summary")
			return api.Run(ctx, api.New(m, a.log), a.cfg.Server.ListenAddress)
		},
	}
}

func (a *app) reloadOnHangup(ctx context.Context, cmd *cobra.Command, m *monitor.Monitor) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}

		cfg, err := a.loadConfig(cmd)
		if err != nil {
			a.log.WithError(err).Error("failed to reload configuration")
			continue
		}
		if err := m.Reconfigure(ctx, cfg); err != nil {
			a.log.WithError(err).Error("failed to apply reloaded configuration")
		}
	}
}
