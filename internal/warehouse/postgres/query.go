package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/openaviation/grievance-insights/internal/common/constants"
	"github.com/openaviation/grievance-insights/internal/dashboard"
)

// countExpr reads a JSON count as BIGINT, mapping missing or non-numeric values to 0.
const countExpr = `COALESCE(CASE WHEN record->>'%[1]s' ~ '^\s*-?[0-9]+(\.[0-9]+)?\s*$' THEN (record->>'%[1]s')::NUMERIC::BIGINT END, 0)`

func selectList() string {
	exprs := []string{"inserted_date"}
	for _, c := range dashboard.Columns[1:dashboard.TextColumns] {
		exprs = append(exprs, fmt.Sprintf("COALESCE(record->>'%s', '')", c))
	}
	for _, c := range dashboard.Columns[dashboard.TextColumns:] {
		exprs = append(exprs, fmt.Sprintf(countExpr, c))
	}
	return strings.Join(exprs, ",\n\t\t")
}

// DateRange returns the first and last ingestion dates of the table.
func (db *Manager) DateRange(ctx context.Context) (dashboard.DateRange, error) {
	pool, err := db.pool()
	if err != nil {
		return dashboard.DateRange{}, err
	}

	query := fmt.Sprintf(`SELECT MIN(inserted_date), MAX(inserted_date) FROM %s`, pgx.Identifier{db.table}.Sanitize())

	var minDate, maxDate *time.Time
	if err := pool.QueryRow(ctx, query).Scan(&minDate, &maxDate); err != nil {
		return dashboard.DateRange{}, fmt.Errorf("failed to query date range: %v", err)
	}
	if minDate == nil || maxDate == nil {
		return dashboard.DateRange{}, dashboard.ErrNoData
	}
	return dashboard.DateRange{Min: *minDate, Max: *maxDate}, nil
}

// Airlines returns the distinct airlines of the table, sorted by name.
func (db *Manager) Airlines(ctx context.Context) ([]string, error) {
	pool, err := db.pool()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT DISTINCT record->>'subcategory' AS subcategory
	FROM %s
	WHERE record->>'_categoryx' = $1
	AND record->>'subcategory' IS NOT NULL
	ORDER BY subcategory`, pgx.Identifier{db.table}.Sanitize())

	rows, err := pool.Query(ctx, query, constants.AirlineCategory)
	if err != nil {
		return nil, fmt.Errorf("failed to query airlines: %v", err)
	}
	airlines, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read airlines: %v", err)
	}
	return airlines, nil
}

// Grievances returns the Airline rows matching f, most recent first.
func (db *Manager) Grievances(ctx context.Context, f dashboard.Filter) ([]dashboard.Row, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	pool, err := db.pool()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT
		%s
	FROM %s
	WHERE inserted_date >= $1
	AND inserted_date <= $2
	AND record->>'_categoryx' = $3
	AND (cardinality($4::TEXT[]) = 0 OR record->>'subcategory' = ANY($4::TEXT[]))
	ORDER BY inserted_date DESC`, selectList(), pgx.Identifier{db.table}.Sanitize())

	airlines := f.Airlines
	if airlines == nil {
		airlines = []string{}
	}

	rows, err := pool.Query(ctx, query,
		f.Start,
		f.End,
		constants.AirlineCategory,
		airlines,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query grievances: %v", err)
	}

	result, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (dashboard.Row, error) {
		values, err := row.Values()
		if err != nil {
			return dashboard.Row{}, err
		}
		return dashboard.RowFromValues(values)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read grievances: %v", err)
	}
	return result, nil
}
