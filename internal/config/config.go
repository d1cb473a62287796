package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// BigQuery configuration
type BigQuery struct {
	// ProjectID is the project holding the billing export dataset
	ProjectID string `envconfig:"PROJECT_ID" yaml:"project_id"`

	// Dataset is the name of the dataset the billing export writes to
	Dataset string `envconfig:"BIGQUERY_DATASET" default:"billing_export" yaml:"dataset"`

	// CredentialsFile points to a credentials JSON file. Application Default Credentials are used when empty.
	CredentialsFile string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS" yaml:"credentials_file"`

	// StrictTransportSecurity verifies server certificates. Disable only behind intercepting proxies.
	StrictTransportSecurity bool `envconfig:"STRICT_TRANSPORT_SECURITY" default:"true" yaml:"strict_transport_security"`

	// Location is the BigQuery job location, e.g. "EU". Empty lets BigQuery pick.
	Location string `envconfig:"BIGQUERY_LOCATION" yaml:"location"`

	// QueryTimeout is how long BigQuery waits for the cost query before answering
	QueryTimeout time.Duration `envconfig:"QUERY_TIMEOUT" default:"60s" yaml:"query_timeout"`

	// HistoryTable receives one row per fetched summary. Disabled when empty.
	HistoryTable string `envconfig:"HISTORY_TABLE" yaml:"history_table"`
}

// Refresh configuration
type Refresh struct {
	// Interval between timer driven refreshes
	Interval time.Duration `envconfig:"REFRESH_INTERVAL" default:"1h" yaml:"interval"`

	// Timeout bounds a single refresh
	Timeout time.Duration `envconfig:"REFRESH_TIMEOUT" default:"2m" yaml:"timeout"`
}

// Server configuration
type Server struct {
	// ListenAddress is the address the HTTP API listens on
	ListenAddress string `envconfig:"LISTEN_ADDRESS" default:":8080" yaml:"listen_address"`
}

// Log configuration
type Log struct {
	// LogFormat Customize the log format. Can be "text" or "json".
	Format string `envconfig:"LOG_FORMAT" default:"text" yaml:"format"`

	// LogLevel The log level used in gcp-cost.
	Level string `envconfig:"LOG_LEVEL" default:"INFO" yaml:"level"`

	// File redirects log output. Stderr is used when empty.
	File string `envconfig:"LOG_FILE" yaml:"file"`
}

// Config is the configuration for the application
type Config struct {
	BigQuery BigQuery `yaml:"bigquery"`
	Refresh  Refresh  `yaml:"refresh"`
	Server   Server   `yaml:"server"`
	Log      Log      `yaml:"log"`
}

func New() (*Config, error) {
	cfg := &Config{}

	err := envconfig.Process("", cfg)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load reads defaults and environment, then overlays the optional config file.
func Load(path string) (*Config, error) {
	cfg, err := New()
	if err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if c.BigQuery.ProjectID == "" {
		return fmt.Errorf("project id is required (PROJECT_ID or --project)")
	}
	if c.BigQuery.Dataset == "" {
		return fmt.Errorf("dataset is required (BIGQUERY_DATASET or --dataset)")
	}
	if c.BigQuery.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive, got %s", c.BigQuery.QueryTimeout)
	}
	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %s", c.Refresh.Interval)
	}
	if c.Refresh.Timeout <= 0 {
		return fmt.Errorf("refresh timeout must be positive, got %s", c.Refresh.Timeout)
	}
	return nil
}
