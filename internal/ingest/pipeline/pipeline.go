// Package pipeline runs one extract-load pass: offset walk, record transform and warehouse load.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/openaviation/grievance-insights/internal/ingest/source"
	"github.com/openaviation/grievance-insights/internal/ingest/transform"
	"github.com/openaviation/grievance-insights/internal/warehouse"
)

// PageSource lazily enumerates the pages of a resource.
type PageSource interface {
	Pages(ctx context.Context) iter.Seq2[source.Page, error]
}

// Sink opens load batches on a warehouse table.
type Sink interface {
	Begin(ctx context.Context, table string, mode warehouse.WriteMode) (warehouse.Batch, error)
}

// LoadInfo describes a completed run.
type LoadInfo struct {
	RunID      string
	Table      string
	Mode       warehouse.WriteMode
	Pages      int
	Records    int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Pipeline loads a resource into a warehouse table.
type Pipeline struct {
	pages PageSource
	sink  Sink
	table string
	mode  warehouse.WriteMode

	now     func() time.Time
	log     *slog.Logger
	metrics *Metrics
}

type options struct {
	now     func() time.Time
	logger  *slog.Logger
	metrics *Metrics
}

// Options represents an optional function to override Pipeline default values.
type Options func(*options)

// WithClock overrides the clock used for the ingestion timestamps.
func WithClock(now func() time.Time) Options {
	return func(o *options) {
		o.now = now
	}
}

// WithLogger sets the logger used by the pipeline.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets the collectors updated by each run.
func WithMetrics(m *Metrics) Options {
	return func(o *options) {
		o.metrics = m
	}
}

// New returns a pipeline loading pages into table with the given write mode.
func New(pages PageSource, sink Sink, table string, mode warehouse.WriteMode, args ...Options) (*Pipeline, error) {
	if table == "" {
		return nil, errors.New("destination table is required")
	}
	if _, err := warehouse.ParseWriteMode(string(mode)); err != nil {
		return nil, err
	}

	opts := options{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Pipeline{
		pages:   pages,
		sink:    sink,
		table:   table,
		mode:    mode,
		now:     opts.now,
		log:     opts.logger,
		metrics: opts.metrics,
	}, nil
}

// Run walks the whole resource from offset 0 and loads every record.
//
// The ingestion timestamp is taken once and shared by every record of the run.
// Any fetch, decode or sink failure aborts the batch: a run loads everything or nothing.
func (p Pipeline) Run(ctx context.Context) (info LoadInfo, err error) {
	insertedAt := p.now().UTC()
	info = LoadInfo{
		RunID:     uuid.NewString(),
		Table:     p.table,
		Mode:      p.mode,
		StartedAt: insertedAt,
	}
	log := p.log.With("run_id", info.RunID, "table", p.table)
	log.Info("Running ingestion", "date", insertedAt.Format(transform.InsertedDateLayout), "mode", p.mode)

	batch, err := p.sink.Begin(ctx, p.table, p.mode)
	if err != nil {
		return info, fmt.Errorf("failed to open load batch: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if abortErr := batch.Abort(context.WithoutCancel(ctx)); abortErr != nil {
			log.Warn("Failed to abort load batch", "err", abortErr)
		}
	}()

	written := 0
	for page, fetchErr := range p.pages.Pages(ctx) {
		if fetchErr != nil {
			return info, fmt.Errorf("ingestion aborted after %d pages: %w", info.Pages, fetchErr)
		}
		info.Pages++
		p.metrics.pageFetched(p.table)

		for _, raw := range page.Records {
			rec := transform.Apply(raw, page.UpdatedDate, insertedAt)
			if err := batch.Write(ctx, rec); err != nil {
				return info, fmt.Errorf("failed to write record %d: %w", written, err)
			}
			written++
		}
		log.Debug("Page processed", "offset", page.Offset, "records", len(page.Records))
	}

	n, err := batch.Commit(ctx)
	if err != nil {
		return info, fmt.Errorf("failed to commit %d records: %w", written, err)
	}
	info.Records = n
	info.FinishedAt = p.now().UTC()
	p.metrics.recordsLoaded(p.table, n)

	log.Info("Ingestion complete", "pages", info.Pages, "records", info.Records,
		"duration", info.FinishedAt.Sub(info.StartedAt))
	return info, nil
}
