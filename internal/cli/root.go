// Package cli wires configuration, logging and the cost client into the gcp-cost commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/api/option"

	"github.com/nais/gcp-cost/internal/bigquery"
	"github.com/nais/gcp-cost/internal/config"
	"github.com/nais/gcp-cost/internal/log"
	"github.com/nais/gcp-cost/internal/monitor"
)

var (
	// ErrConfig is returned when configuration cannot be loaded or is invalid.
	ErrConfig = errors.New("invalid configuration")

	// ErrLogger is returned when the logger cannot be set up.
	ErrLogger = errors.New("failed to set up logger")
)

// defaultLogFile names the log file a command falls back to when it owns the terminal.
const defaultLogFile = "default-log-file"

type flags struct {
	configFile  string
	project     string
	dataset     string
	credentials string
	insecure    bool
	logLevel    string
	logFormat   string
	logFile     string
}

type app struct {
	flags   flags
	cfg     *config.Config
	log     *logrus.Logger
	logFile io.Closer

	// clientOptions configures BigQuery API access, see bigquery.ClientOptions.
	clientOptions func(ctx context.Context, cfg config.BigQuery) ([]option.ClientOption, error)
}

// Execute runs the gcp-cost command line.
func Execute(ctx context.Context, args []string) error {
	cmd := newRootCommand(&app{clientOptions: bigquery.ClientOptions})
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "gcp-cost",
		Short:         "Google Cloud cost summaries from the BigQuery billing export",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.teardown()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.flags.configFile, "config-file", "C", "", "Path to a YAML, TOML or JSON configuration file")
	pf.StringVarP(&a.flags.project, "project", "p", "", "Project holding the billing export dataset")
	pf.StringVarP(&a.flags.dataset, "dataset", "d", "", "Billing export dataset")
	pf.StringVar(&a.flags.credentials, "credentials", "", "Credentials JSON file, Application Default Credentials when empty")
	pf.BoolVar(&a.flags.insecure, "insecure", false, "Skip TLS certificate verification")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&a.flags.logFormat, "log-format", "", "Log format (text or json)")
	pf.StringVar(&a.flags.logFile, "log-file", "", "Write logs to this file instead of stderr")

	root.AddCommand(
		newSummaryCommand(a),
		newTablesCommand(a),
		newWatchCommand(a),
		newServeCommand(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Log.File == "" {
		cfg.Log.File = cmd.Annotations[defaultLogFile]
	}
	a.cfg = cfg

	logger, err := log.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLogger, err)
	}
	if cfg.Log.File != "" {
		f, err := log.ToFile(logger, cfg.Log.File)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrLogger, err)
		}
		a.logFile = f
	} else {
		logger.SetOutput(cmd.ErrOrStderr())
	}
	a.log = logger

	return nil
}

func (a *app) teardown() error {
	if a.logFile == nil {
		return nil
	}
	return a.logFile.Close()
}

// loadConfig layers defaults, environment, the config file and changed flags, in that order.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(a.flags.configFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	fs := cmd.Flags()
	if fs.Changed("project") {
		cfg.BigQuery.ProjectID = a.flags.project
	}
	if fs.Changed("dataset") {
		cfg.BigQuery.Dataset = a.flags.dataset
	}
	if fs.Changed("credentials") {
		cfg.BigQuery.CredentialsFile = a.flags.credentials
	}
	if fs.Changed("insecure") {
		cfg.BigQuery.StrictTransportSecurity = !a.flags.insecure
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = a.flags.logLevel
	}
	if fs.Changed("log-format") {
		cfg.Log.Format = a.flags.logFormat
	}
	if fs.Changed("log-file") {
		cfg.Log.File = a.flags.logFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return cfg, nil
}

func (a *app) newClient(ctx context.Context, cfg config.BigQuery) (*bigquery.Client, error) {
	opts, err := a.clientOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return bigquery.New(ctx, cfg, a.log, opts...)
}

// fetcherFactory adapts newClient for the monitor.
func (a *app) fetcherFactory() monitor.Factory {
	return func(ctx context.Context, cfg config.BigQuery) (monitor.Fetcher, error) {
		client, err := a.newClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// newHistory opens the history table when one is configured. It returns nil otherwise.
func (a *app) newHistory(ctx context.Context) (*bigquery.History, error) {
	if a.cfg.BigQuery.HistoryTable == "" {
		return nil, nil
	}

	opts, err := a.clientOptions(ctx, a.cfg.BigQuery)
	if err != nil {
		return nil, err
	}
	history, err := bigquery.NewHistory(ctx, a.cfg.BigQuery, opts...)
	if err != nil {
		return nil, err
	}

	a.log.WithField("table", a.cfg.BigQuery.HistoryTable).Info("create history table if not exists")
	if err := history.CreateTableIfNotExists(ctx); err != nil {
		_ = history.Close()
		return nil, fmt.Errorf("failed to create history table: %w", err)
	}
	return history, nil
}

// newMonitor builds a monitor over the configured client, recording history when enabled.
// The returned func releases the history client.
func (a *app) newMonitor(ctx context.Context) (*monitor.Monitor, func(), error) {
	history, err := a.newHistory(ctx)
	if err != nil {
		return nil, nil, err
	}

	var opts []monitor.Option
	closeHistory := func() {}
	if history != nil {
		opts = append(opts, monitor.WithRecorder(history))
		closeHistory = func() {
			if err := history.Close(); err != nil {
				a.log.WithError(err).Warn("failed to close history client")
			}
		}
	}

	m, err := monitor.New(a.cfg, a.fetcherFactory(), a.log, opts...)
	if err != nil {
		closeHistory()
		return nil, nil, err
	}
	return m, closeHistory, nil
}
