package workers_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/openaviation/grievance-insights/internal/ingest/config"
	"github.com/openaviation/grievance-insights/internal/ingest/pipeline"
	"github.com/openaviation/grievance-insights/internal/ingest/workers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		opts []workers.Options

		wantErr bool
	}{
		"Defaults": {},
		"Custom schedule": {
			opts: []workers.Options{workers.WithInterval(time.Hour), workers.WithBackoff(time.Second, time.Minute)},
		},

		"Error on zero interval":    {opts: []workers.Options{workers.WithInterval(0)}, wantErr: true},
		"Error on inverted backoff": {opts: []workers.Options{workers.WithBackoff(time.Minute, time.Second)}, wantErr: true},
		"Error on zero backoff":     {opts: []workers.Options{workers.WithBackoff(0, time.Second)}, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := workers.New(newConfigManager(), newRunner(nil), prometheus.NewRegistry(), tc.opts...)
			if tc.wantErr {
				require.Error(t, err, "New should fail")
				return
			}
			require.NoError(t, err, "New should not fail")
		})
	}

	reg := prometheus.NewRegistry()
	_, err := workers.New(newConfigManager(), newRunner(nil), reg)
	require.NoError(t, err, "Setup: New should not fail")
	_, err = workers.New(newConfigManager(), newRunner(nil), reg)
	require.Error(t, err, "New should fail when metrics are already registered")
}

func TestRun(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		cm       *mockConfigManager
		failures map[string]error

		wantRuns    []string
		wantFailure bool
		wantErr     bool
	}{
		"No datasets": {
			cm: newConfigManager(),
		},
		"Single dataset": {
			cm:       newConfigManager("aviation"),
			wantRuns: []string{"aviation"},
		},
		"Multiple datasets": {
			cm:       newConfigManager("aviation", "rail", "ports"),
			wantRuns: []string{"aviation", "ports", "rail"},
		},
		"Failing dataset is retried": {
			cm:          newConfigManager("aviation"),
			failures:    map[string]error{"aviation": errors.New("HTTP 502")},
			wantRuns:    []string{"aviation"},
			wantFailure: true,
		},

		"Exits on watch error": {
			cm:      &mockConfigManager{datasets: datasets("aviation"), watchErr: errors.New("watch error")},
			wantErr: true,
		},
		"Exits on reload channel early close": {
			cm:      &mockConfigManager{datasets: datasets("aviation"), closeReloadCh: true},
			wantErr: true,
		},
		"Exits on error channel early close": {
			cm:      &mockConfigManager{datasets: datasets("aviation"), closeWatchErr: true},
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			reg := prometheus.NewRegistry()
			runner := newRunner(tc.failures)
			p, err := workers.New(tc.cm, runner, reg,
				workers.WithInterval(time.Hour),
				workers.WithBackoff(10*time.Millisecond, 20*time.Millisecond))
			require.NoError(t, err, "Setup: New should not fail")

			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()
			errCh := runAsync(ctx, p)

			if tc.wantErr {
				select {
				case err := <-errCh:
					require.Error(t, err, "Run should fail")
					require.NotErrorIs(t, err, context.Canceled)
				case <-time.After(3 * time.Second):
					require.Fail(t, "Run should have returned")
				}
				return
			}

			require.Eventually(t, func() bool {
				return slices.Equal(tc.wantRuns, runner.ranDatasets())
			}, 3*time.Second, 10*time.Millisecond, "Every dataset should run once started")
			assert.ElementsMatch(t, tc.wantRuns, p.ActiveDatasets(), "Every dataset should have a worker")

			if tc.wantFailure {
				require.Eventually(t, func() bool {
					return runner.count(tc.wantRuns[0]) >= 3
				}, 3*time.Second, 10*time.Millisecond, "Failed runs should be retried")
				assert.GreaterOrEqual(t, sumMetric(t, reg, "ingest_runs_total"), 3.0)
			} else {
				// Successful runs wait for the interval.
				time.Sleep(100 * time.Millisecond)
				for _, name := range tc.wantRuns {
					assert.Equal(t, 1, runner.count(name), "Dataset %s should run once per interval", name)
				}
			}
			assert.Equal(t, float64(len(tc.wantRuns)), sumMetric(t, reg, "ingest_active_workers"))

			cancel()
			select {
			case err := <-errCh:
				require.ErrorIs(t, err, context.Canceled, "Run should return the context error")
			case <-time.After(3 * time.Second):
				require.Fail(t, "Run should stop once canceled")
			}
			assert.Zero(t, sumMetric(t, reg, "ingest_active_workers"), "Workers should be stopped")
		})
	}
}

func TestRunFollowsConfiguration(t *testing.T) {
	t.Parallel()

	cm := newConfigManager("aviation")
	runner := newRunner(nil)
	p, err := workers.New(cm, runner, prometheus.NewRegistry(), workers.WithDebounce(10*time.Millisecond))
	require.NoError(t, err, "Setup: New should not fail")

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	errCh := runAsync(ctx, p)

	require.Eventually(t, func() bool { return slices.Equal([]string{"aviation"}, p.ActiveDatasets()) },
		3*time.Second, 10*time.Millisecond, "Initial dataset should start")

	cm.set(datasets("rail", "ports")...)
	require.Eventually(t, func() bool { return slices.Equal([]string{"ports", "rail"}, p.ActiveDatasets()) },
		3*time.Second, 10*time.Millisecond, "Workers should follow the configuration")

	cm.set(config.Dataset{Name: "rail", ResourceID: "new-resource"})
	require.Eventually(t, func() bool {
		return slices.Equal([]string{"rail"}, p.ActiveDatasets()) && runner.count("rail") == 2
	}, 3*time.Second, 10*time.Millisecond, "A changed resource should restart its worker")

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestRunOnce(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		datasets []string
		failures map[string]error
		canceled bool

		wantInfos int
		wantErr   bool
	}{
		"All datasets": {datasets: []string{"a", "b"}, wantInfos: 2},
		"No datasets":  {},

		"Error keeps running other datasets": {
			datasets: []string{"a", "b", "c"}, failures: map[string]error{"b": errors.New("boom")},
			wantInfos: 2, wantErr: true,
		},
		"Error on canceled context": {datasets: []string{"a"}, canceled: true, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			runner := newRunner(tc.failures)
			p, err := workers.New(newConfigManager(tc.datasets...), runner, prometheus.NewRegistry())
			require.NoError(t, err, "Setup: New should not fail")

			ctx, cancel := context.WithCancel(t.Context())
			if tc.canceled {
				cancel()
			}
			defer cancel()

			infos, err := p.RunOnce(ctx)
			if tc.wantErr {
				require.Error(t, err, "RunOnce should fail")
			} else {
				require.NoError(t, err, "RunOnce should not fail")
			}
			assert.Len(t, infos, tc.wantInfos)
		})
	}
}

func runAsync(ctx context.Context, p *workers.Pool) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Run(ctx)
	}()
	return errCh
}

// sumMetric adds up every sample of the named counter or gauge family.
func sumMetric(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	mfs, err := reg.Gather()
	require.NoError(t, err, "Gathering metrics should not fail")

	var sum float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue() + m.GetGauge().GetValue()
		}
	}
	return sum
}

func datasets(names ...string) []config.Dataset {
	ds := make([]config.Dataset, 0, len(names))
	for _, n := range names {
		ds = append(ds, config.Dataset{Name: n, ResourceID: "resource-" + n})
	}
	return ds
}

type mockConfigManager struct {
	mu       sync.Mutex
	datasets []config.Dataset
	reloadCh chan struct{}

	watchErr      error
	closeReloadCh bool
	closeWatchErr bool
}

func newConfigManager(names ...string) *mockConfigManager {
	return &mockConfigManager{datasets: datasets(names...)}
}

func (m *mockConfigManager) Watch(context.Context) (<-chan struct{}, <-chan error, error) {
	if m.watchErr != nil {
		return nil, nil, m.watchErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloadCh = make(chan struct{}, 1)
	errCh := make(chan error, 1)
	if m.closeReloadCh {
		close(m.reloadCh)
	}
	if m.closeWatchErr {
		close(errCh)
	}
	return m.reloadCh, errCh, nil
}

func (m *mockConfigManager) Datasets() []config.Dataset {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.datasets)
}

func (m *mockConfigManager) set(ds ...config.Dataset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets = ds
	select {
	case m.reloadCh <- struct{}{}:
	default:
	}
}

type mockRunner struct {
	mu       sync.Mutex
	failures map[string]error
	runs     map[string]int
}

func newRunner(failures map[string]error) *mockRunner {
	return &mockRunner{failures: failures, runs: make(map[string]int)}
}

func (r *mockRunner) Run(_ context.Context, ds config.Dataset) (pipeline.LoadInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[ds.Name]++
	if err := r.failures[ds.Name]; err != nil {
		return pipeline.LoadInfo{}, err
	}
	return pipeline.LoadInfo{RunID: "run", Table: ds.Name, Records: 23}, nil
}

func (r *mockRunner) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[name]
}

func (r *mockRunner) ranDatasets() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.runs))
	for name := range r.runs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
