package bigquery_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	bq "cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/openaviation/grievance-insights/internal/dashboard"
	"github.com/openaviation/grievance-insights/internal/warehouse"
	"github.com/openaviation/grievance-insights/internal/warehouse/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newManager(t *testing.T, args ...bigquery.Options) *bigquery.Manager {
	t.Helper()

	args = append([]bigquery.Options{bigquery.WithClientOptions(option.WithoutAuthentication())}, args...)
	m, err := bigquery.New(t.Context(), bigquery.Config{ProjectID: "upheld-setting-420306"}, args...)
	require.NoError(t, err, "Setup: New should not fail")
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		cfg bigquery.Config

		wantErr bool
	}{
		"Project only uses the default dataset": {cfg: bigquery.Config{ProjectID: "p"}},
		"With staging bucket": {
			cfg: bigquery.Config{ProjectID: "p", Dataset: "d", StagingBucket: "b", Location: "asia-south1"},
		},

		"Error without project": {cfg: bigquery.Config{Dataset: "d"}, wantErr: true},
		"Error on missing credentials file": {
			cfg:     bigquery.Config{ProjectID: "p", CredentialsFile: "/does/not/exist.json"},
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var opts []bigquery.Options
			if tc.cfg.CredentialsFile == "" {
				opts = append(opts, bigquery.WithClientOptions(option.WithoutAuthentication()))
			}

			m, err := bigquery.New(t.Context(), tc.cfg, opts...)
			if tc.wantErr {
				require.Error(t, err, "New should fail")
				return
			}
			require.NoError(t, err, "New should not fail")
			require.NoError(t, m.Close(), "Close should not fail")
		})
	}
}

func TestBatch(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		mode    warehouse.WriteMode
		records []map[string]any
		loadErr error

		wantLoads int
		wantErr   bool
	}{
		"Append loads every record": {
			mode:      warehouse.Append,
			records:   []map[string]any{{"subcategory": "IndiGo", "inserted_date": "2025-03-04"}, {"subcategory": "SpiceJet"}},
			wantLoads: 1,
		},
		"Replace passes the mode": {
			mode:      warehouse.Replace,
			records:   []map[string]any{{"subcategory": "IndiGo"}},
			wantLoads: 1,
		},
		"Empty batch does not load": {
			mode: warehouse.Append,
		},

		"Error when load job fails": {
			mode:      warehouse.Append,
			records:   []map[string]any{{"subcategory": "IndiGo"}},
			loadErr:   errors.New("quota exceeded"),
			wantLoads: 1,
			wantErr:   true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var (
				loads []bigquery.LoadRequest
				lines []map[string]any
			)
			load := func(_ context.Context, req bigquery.LoadRequest) error {
				loads = append(loads, req)

				f, err := os.Open(req.File)
				if err != nil {
					return err
				}
				defer f.Close()
				sc := bufio.NewScanner(f)
				for sc.Scan() {
					var rec map[string]any
					if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
						return err
					}
					lines = append(lines, rec)
				}
				if err := sc.Err(); err != nil {
					return err
				}
				return tc.loadErr
			}

			m := newManager(t, bigquery.WithLoadFunc(load))

			b, err := m.Begin(t.Context(), "aviation_grievances_api", tc.mode)
			require.NoError(t, err, "Begin should not fail")
			for _, rec := range tc.records {
				require.NoError(t, b.Write(t.Context(), rec), "Write should not fail")
			}

			n, err := b.Commit(t.Context())
			require.Len(t, loads, tc.wantLoads, "Unexpected number of load jobs")
			if tc.wantLoads > 0 {
				assert.Equal(t, "aviation_grievances_api", loads[0].Table)
				assert.Equal(t, tc.mode, loads[0].Mode)
				assert.Empty(t, loads[0].GCSURI, "No staging bucket was configured")
				assert.NoFileExists(t, loads[0].File, "Load file should be removed after commit")
			}
			if tc.wantErr {
				require.Error(t, err, "Commit should fail")
				return
			}
			require.NoError(t, err, "Commit should not fail")
			assert.Equal(t, len(tc.records), n)
			if len(tc.records) > 0 {
				assert.Equal(t, tc.records, lines, "Load file should hold one JSON document per record, in order")
			}

			_, err = b.Commit(t.Context())
			require.ErrorIs(t, err, bigquery.ErrBatchClosed, "Second commit should fail")
			require.ErrorIs(t, b.Write(t.Context(), map[string]any{}), bigquery.ErrBatchClosed, "Write after commit should fail")
		})
	}
}

func TestBatchAbort(t *testing.T) {
	t.Parallel()

	m := newManager(t, bigquery.WithLoadFunc(func(context.Context, bigquery.LoadRequest) error {
		require.Fail(t, "Aborted batch should never be loaded")
		return nil
	}))

	b, err := m.Begin(t.Context(), "t", warehouse.Append)
	require.NoError(t, err, "Begin should not fail")
	require.NoError(t, b.Write(t.Context(), map[string]any{"a": 1}), "Write should not fail")
	require.NoError(t, b.Abort(t.Context()), "Abort should not fail")
	require.NoError(t, b.Abort(t.Context()), "Abort should be idempotent")

	_, err = b.Commit(t.Context())
	require.ErrorIs(t, err, bigquery.ErrBatchClosed, "Commit after abort should fail")
}

func TestBegin(t *testing.T) {
	t.Parallel()

	m := newManager(t)

	_, err := m.Begin(t.Context(), "", warehouse.Append)
	require.Error(t, err, "Begin should fail without table")

	_, err = m.Begin(t.Context(), "t", "merge")
	require.Error(t, err, "Begin should fail on unknown mode")
}

func TestConfigureLoader(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		mode warehouse.WriteMode

		wantDisposition bq.TableWriteDisposition
		wantFieldAdd    bool
	}{
		"Append":  {mode: warehouse.Append, wantDisposition: bq.WriteAppend, wantFieldAdd: true},
		"Replace": {mode: warehouse.Replace, wantDisposition: bq.WriteTruncate},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			l := &bq.Loader{}
			bigquery.ConfigureLoader(l, tc.mode)

			assert.Equal(t, tc.wantDisposition, l.WriteDisposition)
			assert.Equal(t, bq.CreateIfNeeded, l.CreateDisposition)
			require.NotNil(t, l.TimePartitioning, "Table should be partitioned")
			assert.Equal(t, "inserted_date", l.TimePartitioning.Field)
			assert.Equal(t, bq.DayPartitioningType, l.TimePartitioning.Type)
			assert.Equal(t, tc.wantFieldAdd, len(l.SchemaUpdateOptions) > 0)
		})
	}
}

func TestQueries(t *testing.T) {
	t.Parallel()

	m := newManager(t, bigquery.WithTable("grievances"))

	assert.Contains(t, m.DateRangeQuery(), "FROM `upheld-setting-420306.aviation_grievances_data.grievances`")

	query, params := m.AirlinesQuery()
	assert.Contains(t, query, "_categoryx = @category")
	assert.Equal(t, []bq.QueryParameter{{Name: "category", Value: "Airline"}}, params)

	f := dashboard.Filter{
		Start: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC),
	}
	query, params = m.GrievancesQuery(f)
	for _, want := range []string{"@start", "@end", "@category", "UNNEST(@airlines)", "SAFE_CAST(totalreceived AS INT64)", "ORDER BY inserted_date DESC"} {
		assert.Contains(t, query, want)
	}
	assert.NotContains(t, query, "2025-03-01", "Filter values must be bound, never interpolated")
	assert.Equal(t, []bq.QueryParameter{
		{Name: "start", Value: civil.Date{Year: 2025, Month: time.March, Day: 1}},
		{Name: "end", Value: civil.Date{Year: 2025, Month: time.March, Day: 4}},
		{Name: "category", Value: "Airline"},
		{Name: "airlines", Value: []string{}},
	}, params)

	f.Airlines = []string{"IndiGo' OR 1=1 --"}
	query, params = m.GrievancesQuery(f)
	assert.NotContains(t, query, "IndiGo", "Airline names must be bound, never interpolated")
	assert.Equal(t, []string{"IndiGo' OR 1=1 --"}, params[3].Value)
}

func TestToDate(t *testing.T) {
	t.Parallel()

	want := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		value bq.Value

		wantOK  bool
		wantErr bool
	}{
		"Civil date": {value: civil.Date{Year: 2025, Month: time.March, Day: 4}, wantOK: true},
		"Timestamp":  {value: time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC), wantOK: true},
		"String":     {value: "2025-03-04", wantOK: true},
		"Null":       {value: nil},

		"Error on bad string": {value: "March 4th", wantErr: true},
		"Error on number":     {value: int64(20250304), wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, ok, err := bigquery.ToDate(tc.value)
			if tc.wantErr {
				require.Error(t, err, "ToDate should fail")
				return
			}
			require.NoError(t, err, "ToDate should not fail")
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, want, got)
			}
		})
	}
}
