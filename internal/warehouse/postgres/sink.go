package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/openaviation/grievance-insights/internal/ingest/transform"
	"github.com/openaviation/grievance-insights/internal/warehouse"
	"github.com/ubuntu/decorate"
)

var copyColumns = []string{"record", "updated_at", "inserted_at", "inserted_date"}

// ErrBatchClosed is returned when a batch is used after Commit or Abort.
var ErrBatchClosed = errors.New("batch already committed or aborted")

// Begin opens a batch loading into table.
//
// The batch holds a transaction streaming the written rows to the table with COPY, so memory
// stays bounded whatever the run size. The table is created when missing and truncated first
// in replace mode. Nothing is visible to other sessions before Commit.
func (db *Manager) Begin(ctx context.Context, table string, mode warehouse.WriteMode) (_ warehouse.Batch, err error) {
	pool, err := db.pool()
	if err != nil {
		return nil, err
	}
	if table == "" {
		return nil, errors.New("table name is required")
	}
	if _, err := warehouse.ParseWriteMode(string(mode)); err != nil {
		return nil, err
	}
	defer decorate.OnError(&err, "could not start loading %s", table)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %v", err)
	}
	defer func() {
		if err != nil {
			db.rollback(ctx, tx, table)
		}
	}()

	if err := ensureTable(ctx, tx, table); err != nil {
		return nil, err
	}
	if mode == warehouse.Replace {
		if _, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", pgx.Identifier{table}.Sanitize())); err != nil {
			return nil, fmt.Errorf("failed to truncate table %s: %v", table, err)
		}
	}

	copyCtx, cancel := context.WithCancel(ctx)
	b := &batch{
		db:       db,
		table:    table,
		mode:     mode,
		tx:       tx,
		rows:     make(chan []any),
		cancel:   cancel,
		copyDone: make(chan struct{}),
	}
	go func() {
		defer close(b.copyDone)
		b.copied, b.copyErr = tx.CopyFrom(copyCtx, pgx.Identifier{table}, copyColumns, &rowStream{ctx: copyCtx, rows: b.rows})
	}()
	return b, nil
}

type batch struct {
	db    *Manager
	table string
	mode  warehouse.WriteMode
	tx    pgx.Tx

	// rows feeds the COPY running until copyDone is closed.
	rows     chan []any
	cancel   context.CancelFunc
	copyDone chan struct{}
	copied   int64
	copyErr  error

	closed bool
}

// Write validates rec and streams it to the running COPY.
func (b *batch) Write(ctx context.Context, rec map[string]any) error {
	if b.closed {
		return ErrBatchClosed
	}

	insertedAt, insertedDate, err := ingestionTimes(rec)
	if err != nil {
		return err
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %v", err)
	}

	var updatedAt *string
	if v, ok := rec[transform.FieldUpdatedAt]; ok && v != nil {
		s := fmt.Sprint(v)
		updatedAt = &s
	}

	select {
	case b.rows <- []any{doc, updatedAt, insertedAt, insertedDate}:
		return nil
	case <-b.copyDone:
		if b.copyErr != nil {
			return fmt.Errorf("failed to copy rows into %s: %v", b.table, b.copyErr)
		}
		return fmt.Errorf("copy into %s ended early", b.table)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Commit ends the COPY and commits the transaction.
func (b *batch) Commit(ctx context.Context) (n int, err error) {
	if b.closed {
		return 0, ErrBatchClosed
	}
	b.closed = true
	defer decorate.OnError(&err, "could not load %s", b.table)
	defer func() {
		if err != nil {
			b.db.rollback(ctx, b.tx, b.table)
		}
	}()

	close(b.rows)
	<-b.copyDone
	b.cancel()
	if b.copyErr != nil {
		return 0, fmt.Errorf("failed to copy rows into %s: %v", b.table, b.copyErr)
	}

	if err := b.tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %v", err)
	}

	b.db.log.Debug("Rows committed", "table", b.table, "rows", b.copied, "mode", b.mode)
	return int(b.copied), nil
}

// Abort stops the COPY and rolls the transaction back. It is a no-op on a finished batch.
func (b *batch) Abort(ctx context.Context) error {
	if b.closed {
		return nil
	}
	b.closed = true

	b.cancel()
	<-b.copyDone
	if err := b.tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to roll back load of %s: %v", b.table, err)
	}
	return nil
}

func (db *Manager) rollback(ctx context.Context, tx pgx.Tx, table string) {
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		db.log.Warn("Failed to roll back transaction", "table", table, "err", err)
	}
}

// rowStream is a pgx.CopyFromSource reading rows from a channel until it is closed.
// Canceling ctx fails the COPY.
type rowStream struct {
	ctx  context.Context
	rows <-chan []any

	cur []any
	err error
}

func (s *rowStream) Next() bool {
	select {
	case row, ok := <-s.rows:
		if !ok {
			return false
		}
		s.cur = row
		return true
	case <-s.ctx.Done():
		s.err = s.ctx.Err()
		return false
	}
}

func (s *rowStream) Values() ([]any, error) {
	return s.cur, nil
}

func (s *rowStream) Err() error {
	return s.err
}

func ingestionTimes(rec map[string]any) (insertedAt, insertedDate time.Time, err error) {
	at, ok := rec[transform.FieldInsertedAt].(string)
	if !ok {
		return insertedAt, insertedDate, fmt.Errorf("record has no %s column", transform.FieldInsertedAt)
	}
	date, ok := rec[transform.FieldInsertedDate].(string)
	if !ok {
		return insertedAt, insertedDate, fmt.Errorf("record has no %s column", transform.FieldInsertedDate)
	}

	if insertedAt, err = time.Parse(transform.InsertedAtLayout, at); err != nil {
		return insertedAt, insertedDate, fmt.Errorf("invalid %s: %v", transform.FieldInsertedAt, err)
	}
	if insertedDate, err = time.Parse(transform.InsertedDateLayout, date); err != nil {
		return insertedAt, insertedDate, fmt.Errorf("invalid %s: %v", transform.FieldInsertedDate, err)
	}
	return insertedAt, insertedDate, nil
}
