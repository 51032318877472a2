// Package bigquery loads grievance records into Google BigQuery and runs the dashboard queries against it.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/openaviation/grievance-insights/internal/common/constants"
	"google.golang.org/api/option"
)

// Config holds the BigQuery destination settings.
type Config struct {
	// ProjectID is the Google Cloud project owning the dataset.
	ProjectID string
	// Dataset is the BigQuery dataset holding the grievance tables.
	Dataset string
	// CredentialsFile is a service account key file. Application default credentials are used when empty.
	CredentialsFile string
	// StagingBucket, when set, receives the load files before the load job reads them from Cloud Storage.
	StagingBucket string
	// Location is the BigQuery location of the dataset.
	Location string
}

// Manager holds the BigQuery and Cloud Storage clients.
type Manager struct {
	client  *bigquery.Client
	storage *storage.Client

	dataset string
	bucket  string
	table   string

	load func(context.Context, loadRequest) error
	log  *slog.Logger
}

type options struct {
	clientOptions []option.ClientOption
	table         string
	logger        *slog.Logger
	load          func(context.Context, loadRequest) error
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// WithClientOptions appends Google API client options, such as an endpoint override.
func WithClientOptions(opts ...option.ClientOption) Options {
	return func(o *options) {
		o.clientOptions = append(o.clientOptions, opts...)
	}
}

// WithTable sets the table read by the dashboard queries.
func WithTable(table string) Options {
	return func(o *options) {
		o.table = table
	}
}

// WithLogger sets the logger used by the manager.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// New creates the clients for cfg. No request is sent until the first load or query.
func New(ctx context.Context, cfg Config, args ...Options) (m *Manager, err error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("BigQuery project ID is required")
	}
	if cfg.Dataset == "" {
		cfg.Dataset = constants.DefaultBigQueryDataset
	}

	opts := options{
		table:  constants.DefaultDatasetName,
		logger: slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	clientOpts := opts.clientOptions
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery client: %v", err)
	}
	client.Location = cfg.Location
	defer func() {
		if err != nil {
			client.Close()
		}
	}()

	m = &Manager{
		client:  client,
		dataset: cfg.Dataset,
		bucket:  cfg.StagingBucket,
		table:   opts.table,
		log:     opts.logger,
	}

	if cfg.StagingBucket != "" {
		m.storage, err = storage.NewClient(ctx, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Cloud Storage client: %v", err)
		}
	}
	m.load = opts.load
	if m.load == nil {
		m.load = m.runLoadJob
	}

	m.log.Debug("BigQuery destination ready", "project", cfg.ProjectID, "dataset", cfg.Dataset, "staging_bucket", cfg.StagingBucket)
	return m, nil
}

// Close releases the clients.
func (m *Manager) Close() error {
	var errs []error
	if err := m.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close BigQuery client: %v", err))
	}
	if m.storage != nil {
		if err := m.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Cloud Storage client: %v", err))
		}
	}
	return errors.Join(errs...)
}

// fullTableName returns the quoted project.dataset.table name of table.
func (m *Manager) fullTableName(table string) string {
	return fmt.Sprintf("`%s.%s.%s`", m.client.Project(), m.dataset, table)
}
