package bigquery

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/openaviation/grievance-insights/internal/common/constants"
	"github.com/openaviation/grievance-insights/internal/warehouse"
	"github.com/ubuntu/decorate"
)

// ErrBatchClosed is returned when a batch is used after Commit or Abort.
var ErrBatchClosed = errors.New("batch already committed or aborted")

const stagingPrefix = "staging"

// loadRequest describes one load job. Exactly one of File and GCSURI is set.
type loadRequest struct {
	Table  string
	Mode   warehouse.WriteMode
	File   string
	GCSURI string
}

// Begin opens a batch loading into table.
//
// Records are spooled as newline-delimited JSON to a temporary file and loaded by a single
// load job on Commit, so a failed run never reaches the table.
func (m *Manager) Begin(_ context.Context, table string, mode warehouse.WriteMode) (warehouse.Batch, error) {
	if table == "" {
		return nil, errors.New("table name is required")
	}
	if _, err := warehouse.ParseWriteMode(string(mode)); err != nil {
		return nil, err
	}

	f, err := os.CreateTemp("", fmt.Sprintf("%s-*.json", table))
	if err != nil {
		return nil, fmt.Errorf("failed to create load file: %v", err)
	}

	buf := bufio.NewWriter(f)
	return &batch{
		m:     m,
		table: table,
		mode:  mode,
		file:  f,
		buf:   buf,
		enc:   json.NewEncoder(buf),
	}, nil
}

type batch struct {
	m     *Manager
	table string
	mode  warehouse.WriteMode

	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
	n    int

	closed bool
}

// Write appends rec to the load file.
func (b *batch) Write(_ context.Context, rec map[string]any) error {
	if b.closed {
		return ErrBatchClosed
	}
	if err := b.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to encode record %d: %v", b.n, err)
	}
	b.n++
	return nil
}

// Commit runs the load job. An empty batch commits without loading.
func (b *batch) Commit(ctx context.Context) (n int, err error) {
	if b.closed {
		return 0, ErrBatchClosed
	}
	b.closed = true
	defer b.cleanup()
	defer decorate.OnError(&err, "could not load %s.%s", b.m.dataset, b.table)

	if err := b.buf.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush load file: %v", err)
	}
	if b.n == 0 {
		b.m.log.Info("Nothing to load", "table", b.table)
		return 0, nil
	}

	req := loadRequest{Table: b.table, Mode: b.mode, File: b.file.Name()}
	if b.m.storage != nil {
		uri, remove, err := b.stage(ctx)
		if err != nil {
			return 0, err
		}
		defer remove()
		req = loadRequest{Table: b.table, Mode: b.mode, GCSURI: uri}
	}

	if err := b.m.load(ctx, req); err != nil {
		return 0, err
	}
	return b.n, nil
}

// Abort discards the load file.
func (b *batch) Abort(context.Context) error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.cleanup()
	return nil
}

func (b *batch) cleanup() {
	if err := b.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		b.m.log.Warn("Failed to close load file", "file", b.file.Name(), "err", err)
	}
	if err := os.Remove(b.file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		b.m.log.Warn("Failed to remove load file", "file", b.file.Name(), "err", err)
	}
}

// stage uploads the load file to the staging bucket and returns its URI and a function removing it.
func (b *batch) stage(ctx context.Context) (string, func(), error) {
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return "", nil, fmt.Errorf("failed to rewind load file: %v", err)
	}

	name := path.Join(stagingPrefix, b.table, uuid.NewString()+".json")
	obj := b.m.storage.Bucket(b.m.bucket).Object(name)

	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := io.Copy(w, b.file); err != nil {
		_ = w.Close()
		return "", nil, fmt.Errorf("failed to upload load file: %v", err)
	}
	if err := w.Close(); err != nil {
		return "", nil, fmt.Errorf("failed to upload load file: %v", err)
	}

	uri := fmt.Sprintf("gs://%s/%s", b.m.bucket, name)
	b.m.log.Debug("Load file staged", "uri", uri)

	remove := func() {
		if err := obj.Delete(context.WithoutCancel(ctx)); err != nil {
			b.m.log.Warn("Failed to delete staged load file", "uri", uri, "err", err)
		}
	}
	return uri, remove, nil
}

// runLoadJob loads the request source into the partitioned table and waits for the job.
func (m *Manager) runLoadJob(ctx context.Context, req loadRequest) error {
	var src bigquery.LoadSource
	if req.GCSURI != "" {
		gcs := bigquery.NewGCSReference(req.GCSURI)
		gcs.SourceFormat = bigquery.JSON
		gcs.AutoDetect = true
		src = gcs
	} else {
		f, err := os.Open(req.File)
		if err != nil {
			return fmt.Errorf("failed to open load file: %v", err)
		}
		defer f.Close()

		rs := bigquery.NewReaderSource(f)
		rs.SourceFormat = bigquery.JSON
		rs.AutoDetect = true
		src = rs
	}

	loader := m.client.Dataset(m.dataset).Table(req.Table).LoaderFrom(src)
	configureLoader(loader, req.Mode)

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("submission of load job: %v", err)
	}
	m.log.Debug("Load job submitted", "job", job.ID(), "table", req.Table)

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("failure waiting for load job %s: %v", job.ID(), err)
	}
	if err := status.Err(); err != nil {
		details := make([]string, 0, len(status.Errors))
		for i, inner := range status.Errors {
			details = append(details, fmt.Sprintf("[%2d] %v", i, inner))
		}
		return fmt.Errorf("load job %s failed: %v: %s", job.ID(), err, strings.Join(details, "; "))
	}

	m.log.Info("Load job done", "job", job.ID(), "table", req.Table, "mode", req.Mode)
	return nil
}

// configureLoader sets the write disposition and partitioning of a load.
func configureLoader(l *bigquery.Loader, mode warehouse.WriteMode) {
	l.CreateDisposition = bigquery.CreateIfNeeded
	l.TimePartitioning = &bigquery.TimePartitioning{
		Type:  bigquery.DayPartitioningType,
		Field: constants.PartitionColumn,
	}

	switch mode {
	case warehouse.Replace:
		l.WriteDisposition = bigquery.WriteTruncate
	default:
		l.WriteDisposition = bigquery.WriteAppend
		l.SchemaUpdateOptions = []string{"ALLOW_FIELD_ADDITION"}
	}
}
