package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openaviation/grievance-insights/internal/ingest/config"
	"github.com/openaviation/grievance-insights/internal/ingest/pipeline"
	"github.com/openaviation/grievance-insights/internal/ingest/source"
	"github.com/openaviation/grievance-insights/internal/warehouse"
)

// SourceConfig holds the settings shared by every dataset pulled from the API.
type SourceConfig struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	PageSize  int
	MaxOffset int
}

// Runner loads one dataset per call into a shared warehouse sink.
type Runner struct {
	src  SourceConfig
	sink pipeline.Sink
	mode warehouse.WriteMode

	httpClient *http.Client
	metrics    *pipeline.Metrics
	log        *slog.Logger
}

type runnerOptions struct {
	httpClient *http.Client
	metrics    *pipeline.Metrics
	logger     *slog.Logger
}

// RunnerOption represents an optional function to override Runner default values.
type RunnerOption func(*runnerOptions)

// WithHTTPClient overrides the HTTP client used to reach the API.
func WithHTTPClient(c *http.Client) RunnerOption {
	return func(o *runnerOptions) {
		o.httpClient = c
	}
}

// WithPipelineMetrics sets the collectors updated by every run.
func WithPipelineMetrics(m *pipeline.Metrics) RunnerOption {
	return func(o *runnerOptions) {
		o.metrics = m
	}
}

// WithRunnerLogger sets the logger used by the runner and the pipelines it builds.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(o *runnerOptions) {
		o.logger = l
	}
}

// NewRunner validates the shared settings and returns a runner loading into sink.
func NewRunner(src SourceConfig, sink pipeline.Sink, mode warehouse.WriteMode, args ...RunnerOption) (*Runner, error) {
	if sink == nil {
		return nil, errors.New("warehouse sink is required")
	}
	if src.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	if src.PageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", src.PageSize)
	}
	if src.MaxOffset < 0 {
		return nil, fmt.Errorf("maximum offset must not be negative, got %d", src.MaxOffset)
	}
	if _, err := warehouse.ParseWriteMode(string(mode)); err != nil {
		return nil, err
	}

	opts := runnerOptions{logger: slog.Default()}
	for _, opt := range args {
		opt(&opts)
	}
	if opts.httpClient == nil {
		opts.httpClient = &http.Client{Timeout: src.Timeout}
	}

	return &Runner{
		src:        src,
		sink:       sink,
		mode:       mode,
		httpClient: opts.httpClient,
		metrics:    opts.metrics,
		log:        opts.logger,
	}, nil
}

// Run walks the dataset resource and loads it into the table named after the dataset.
func (r Runner) Run(ctx context.Context, ds config.Dataset) (pipeline.LoadInfo, error) {
	log := r.log.With("dataset", ds.Name)

	client, err := source.NewClient(source.Config{
		BaseURL:    r.src.BaseURL,
		ResourceID: ds.ResourceID,
		APIKey:     r.src.APIKey,
		Timeout:    r.src.Timeout,
	}, source.WithHTTPClient(r.httpClient), source.WithLogger(log))
	if err != nil {
		return pipeline.LoadInfo{}, fmt.Errorf("invalid source for dataset %s: %v", ds.Name, err)
	}

	walker, err := source.NewWalker(client, r.src.PageSize, r.src.MaxOffset, source.WithWalkerLogger(log))
	if err != nil {
		return pipeline.LoadInfo{}, err
	}

	p, err := pipeline.New(walker, r.sink, ds.Name, r.mode,
		pipeline.WithLogger(log), pipeline.WithMetrics(r.metrics))
	if err != nil {
		return pipeline.LoadInfo{}, err
	}
	return p.Run(ctx)
}
