// Package destination opens the warehouse selected on the command line.
package destination

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openaviation/grievance-insights/internal/common/constants"
	"github.com/openaviation/grievance-insights/internal/dashboard"
	"github.com/openaviation/grievance-insights/internal/warehouse"
	"github.com/openaviation/grievance-insights/internal/warehouse/bigquery"
	"github.com/openaviation/grievance-insights/internal/warehouse/postgres"
	"github.com/spf13/pflag"
)

// Config selects and configures one warehouse.
type Config struct {
	Destination string
	Table       string

	Postgres postgres.Config
	BigQuery bigquery.Config
}

// Warehouse is a destination both loaded by the ingest service and read by the dashboard.
type Warehouse interface {
	Begin(ctx context.Context, table string, mode warehouse.WriteMode) (warehouse.Batch, error)
	dashboard.Warehouse
	Close() error
}

type options struct {
	logger *slog.Logger
}

// Options represents an optional function to override Open default values.
type Options func(*options)

// WithLogger sets the logger handed to the warehouse.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// Open connects to the warehouse named by cfg.Destination.
func Open(ctx context.Context, cfg Config, args ...Options) (Warehouse, error) {
	opts := options{logger: slog.Default()}
	for _, opt := range args {
		opt(&opts)
	}

	d, err := warehouse.ParseDestination(cfg.Destination)
	if err != nil {
		return nil, err
	}
	table := cfg.Table
	if table == "" {
		table = constants.DefaultDatasetName
	}
	if err := warehouse.ValidateTable(table); err != nil {
		return nil, err
	}

	switch d {
	case warehouse.Postgres:
		m, err := postgres.New(ctx, cfg.Postgres, postgres.WithTable(table), postgres.WithLogger(opts.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		return m, nil
	default:
		m, err := bigquery.New(ctx, cfg.BigQuery, bigquery.WithTable(table), bigquery.WithLogger(opts.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open BigQuery: %w", err)
		}
		return m, nil
	}
}

// AddFlags installs the destination selection flags on fs, writing into cfg.
func AddFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Destination, "destination", string(warehouse.BigQuery), "warehouse to use: bigquery or postgres")
	fs.StringVar(&cfg.Table, "table", constants.DefaultDatasetName, "warehouse table read by the dashboard")

	fs.StringVar(&cfg.BigQuery.ProjectID, "bq-project", "", "Google Cloud project of the BigQuery warehouse")
	fs.StringVar(&cfg.BigQuery.Dataset, "bq-dataset", constants.DefaultBigQueryDataset, "BigQuery dataset")
	fs.StringVar(&cfg.BigQuery.CredentialsFile, "bq-credentials", "", "service account credentials file, application default credentials when empty")
	fs.StringVar(&cfg.BigQuery.StagingBucket, "bq-staging-bucket", "", "Cloud Storage bucket used to stage load files, direct upload when empty")
	fs.StringVar(&cfg.BigQuery.Location, "bq-location", "", "BigQuery jobs location")

	fs.StringVar(&cfg.Postgres.Host, "db-host", "", "database host")
	fs.IntVarP(&cfg.Postgres.Port, "db-port", "p", 5432, "database port")
	fs.StringVarP(&cfg.Postgres.User, "db-user", "u", "", "database user")
	fs.StringVarP(&cfg.Postgres.Password, "db-password", "P", "", "database password")
	fs.StringVarP(&cfg.Postgres.DBName, "db-name", "n", "", "database name")
	fs.StringVarP(&cfg.Postgres.SSLMode, "db-sslmode", "s", "", "database SSL mode")
}
