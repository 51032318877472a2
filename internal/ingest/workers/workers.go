// Package workers schedules one ingestion worker per configured dataset.
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/openaviation/grievance-insights/internal/ingest/config"
	"github.com/openaviation/grievance-insights/internal/ingest/pipeline"
	"github.com/prometheus/client_golang/prometheus"
)

// Pool is a struct that holds the worker management logic.
type Pool struct {
	cm     dConfigManager
	runner dRunner

	interval    time.Duration
	baseBackoff time.Duration
	maxBackoff  time.Duration
	debounce    time.Duration

	mu       sync.Mutex
	workers  map[string]worker
	workerWG sync.WaitGroup

	activeWorkers prometheus.Gauge
	runs          *prometheus.CounterVec
	lastSuccess   *prometheus.GaugeVec

	log *slog.Logger
}

type worker struct {
	dataset config.Dataset
	cancel  context.CancelFunc
}

type dConfigManager interface {
	Watch(context.Context) (<-chan struct{}, <-chan error, error)
	Datasets() []config.Dataset
}

type dRunner interface {
	Run(ctx context.Context, ds config.Dataset) (pipeline.LoadInfo, error)
}

type options struct {
	interval    time.Duration
	baseBackoff time.Duration
	maxBackoff  time.Duration
	debounce    time.Duration
	logger      *slog.Logger
}

// Options represents an optional function to override Pool default values.
type Options func(*options)

// WithInterval sets the delay between two successful runs of a dataset.
func WithInterval(d time.Duration) Options {
	return func(o *options) {
		o.interval = d
	}
}

// WithBackoff sets the retry delay bounds after a failed run.
func WithBackoff(base, maxDelay time.Duration) Options {
	return func(o *options) {
		o.baseBackoff = base
		o.maxBackoff = maxDelay
	}
}

// WithLogger sets the logger used by the pool.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// New creates a new worker pool instance with the provided datasets manager, runner, and Prometheus registerer.
func New(cm dConfigManager, runner dRunner, reg prometheus.Registerer, args ...Options) (*Pool, error) {
	opts := options{
		interval:    24 * time.Hour,
		baseBackoff: time.Minute,
		maxBackoff:  30 * time.Minute,
		debounce:    5 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}
	if opts.interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", opts.interval)
	}
	if opts.baseBackoff <= 0 || opts.maxBackoff < opts.baseBackoff {
		return nil, fmt.Errorf("invalid backoff bounds %s..%s", opts.baseBackoff, opts.maxBackoff)
	}

	activeWorkers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_active_workers",
		Help: "Number of active dataset workers in the ingest service.",
	})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_runs_total",
		Help: "Number of ingestion runs by dataset and result.",
	}, []string{"dataset", "result"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ingest_last_success_timestamp_seconds",
		Help: "Unix time of the last successful ingestion run of a dataset.",
	}, []string{"dataset"})

	for _, c := range []prometheus.Collector{activeWorkers, runs, lastSuccess} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register worker metrics: %v", err)
		}
	}

	return &Pool{
		cm:            cm,
		runner:        runner,
		interval:      opts.interval,
		baseBackoff:   opts.baseBackoff,
		maxBackoff:    opts.maxBackoff,
		debounce:      opts.debounce,
		workers:       make(map[string]worker),
		activeWorkers: activeWorkers,
		runs:          runs,
		lastSuccess:   lastSuccess,
		log:           opts.logger,
	}, nil
}

// Run orchestrates and manages the pool of workers.
//
// It watches the datasets configuration and keeps one scheduled worker per dataset.
//
// This is blocking until an error occurs or the context is canceled and all workers are done.
//
// Always returns a non-nil error, which is either a context error or a watcher error.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info("Ingest workers started")

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		p.workerWG.Wait()
	}()

	reloadEventCh, cfgWatchErrCh, err := p.cm.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to start watch configuration: %v", err)
	}

	// Initial sync
	p.syncWorkers(ctx)

	// Debounce timer for handling bursts of events
	debounceTimer := time.NewTimer(p.debounce)
	defer debounceTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("Context canceled, stopping worker pool")
			return ctx.Err()

		case _, ok := <-reloadEventCh:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("reloadEventCh closed unexpectedly")
			}
			if !debounceTimer.Stop() {
				select {
				case <-debounceTimer.C:
				default:
				}
			}
			debounceTimer.Reset(p.debounce)

		case <-debounceTimer.C:
			p.log.Debug("Resyncing workers")
			p.syncWorkers(ctx)

		case err, ok := <-cfgWatchErrCh:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("cfgWatchErrCh closed unexpectedly")
			}
			if err != nil {
				p.log.Error("Configuration watcher error", "err", err)
			}
		}
	}
}

// RunOnce runs every configured dataset once, one after the other.
func (p *Pool) RunOnce(ctx context.Context) ([]pipeline.LoadInfo, error) {
	var (
		infos []pipeline.LoadInfo
		errs  []error
	)
	for _, ds := range p.cm.Datasets() {
		if err := ctx.Err(); err != nil {
			return infos, errors.Join(append(errs, err)...)
		}
		info, err := p.runDataset(ctx, ds)
		if err != nil {
			errs = append(errs, fmt.Errorf("dataset %s: %w", ds.Name, err))
			continue
		}
		infos = append(infos, info)
	}
	return infos, errors.Join(errs...)
}

// syncWorkers diffs the configured datasets and starts/stops goroutines.
// A dataset whose resource changed is restarted.
func (p *Pool) syncWorkers(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	wanted := make(map[string]config.Dataset)
	for _, ds := range p.cm.Datasets() {
		wanted[ds.Name] = ds
	}

	// stop removed or changed
	for name, w := range p.workers {
		if ds, ok := wanted[name]; ok && ds == w.dataset {
			continue
		}
		p.log.Info("Stopping dataset worker", "dataset", name)
		w.cancel()
		delete(p.workers, name)
	}

	// start added
	for name, ds := range wanted {
		if _, ok := p.workers[name]; ok {
			continue
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
		dsCtx, cancel := context.WithCancel(ctx)
		p.workers[name] = worker{dataset: ds, cancel: cancel}
		p.log.Info("Starting dataset worker", "dataset", name, "resource", ds.ResourceID)
		p.workerWG.Add(1)
		go p.datasetWorker(dsCtx, ds)
	}
}

// datasetWorker runs the dataset right away, then once per interval until ctx is canceled.
// Failed runs are retried with a jittered exponential backoff.
func (p *Pool) datasetWorker(ctx context.Context, ds config.Dataset) {
	defer p.workerWG.Done()

	p.activeWorkers.Inc()
	defer p.activeWorkers.Dec()

	backoff := p.baseBackoff
	for {
		wait := p.interval
		if _, err := p.runDataset(ctx, ds); err != nil {
			if ctx.Err() != nil {
				return
			}
			// #nosec:G404 We don't need cryptographic randomness.
			wait = backoff/2 + time.Duration(rand.Int63n(int64(backoff/2)+1))
			backoff = min(backoff*2, p.maxBackoff)
			p.log.Warn("Ingestion run failed, retrying", "dataset", ds.Name, "in", wait, "err", err)
		} else {
			backoff = p.baseBackoff
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			p.log.Debug("Dataset worker context canceled", "dataset", ds.Name)
			return
		}
	}
}

func (p *Pool) runDataset(ctx context.Context, ds config.Dataset) (pipeline.LoadInfo, error) {
	info, err := p.runner.Run(ctx, ds)
	if err != nil {
		p.runs.WithLabelValues(ds.Name, "failure").Inc()
		return info, err
	}
	p.runs.WithLabelValues(ds.Name, "success").Inc()
	p.lastSuccess.WithLabelValues(ds.Name).Set(float64(time.Now().Unix()))
	p.log.Info("Ingestion run succeeded", "dataset", ds.Name, "run_id", info.RunID,
		"pages", info.Pages, "records", info.Records, "mode", info.Mode)
	return info, nil
}
