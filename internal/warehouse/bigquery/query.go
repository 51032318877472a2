package bigquery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/openaviation/grievance-insights/internal/common/constants"
	"github.com/openaviation/grievance-insights/internal/dashboard"
	"google.golang.org/api/iterator"
)

func selectList() string {
	exprs := []string{"inserted_date"}
	for _, c := range dashboard.Columns[1:dashboard.TextColumns] {
		exprs = append(exprs, fmt.Sprintf("COALESCE(CAST(%[1]s AS STRING), '') AS %[1]s", c))
	}
	for _, c := range dashboard.Columns[dashboard.TextColumns:] {
		exprs = append(exprs, fmt.Sprintf("COALESCE(SAFE_CAST(%[1]s AS INT64), 0) AS %[1]s", c))
	}
	return strings.Join(exprs, ",\n\t\t")
}

func (m *Manager) dateRangeQuery() string {
	return fmt.Sprintf(`SELECT
		MIN(inserted_date) AS min_date,
		MAX(inserted_date) AS max_date
	FROM %s`, m.fullTableName(m.table))
}

func (m *Manager) airlinesQuery() (string, []bigquery.QueryParameter) {
	return fmt.Sprintf(`SELECT DISTINCT subcategory
	FROM %s
	WHERE _categoryx = @category
	AND subcategory IS NOT NULL
	ORDER BY subcategory`, m.fullTableName(m.table)),
		[]bigquery.QueryParameter{{Name: "category", Value: constants.AirlineCategory}}
}

func (m *Manager) grievancesQuery(f dashboard.Filter) (string, []bigquery.QueryParameter) {
	airlines := f.Airlines
	if airlines == nil {
		airlines = []string{}
	}

	return fmt.Sprintf(`SELECT
		%s
	FROM %s
	WHERE inserted_date >= @start
	AND inserted_date <= @end
	AND _categoryx = @category
	AND (ARRAY_LENGTH(@airlines) = 0 OR subcategory IN UNNEST(@airlines))
	ORDER BY inserted_date DESC`, selectList(), m.fullTableName(m.table)),
		[]bigquery.QueryParameter{
			{Name: "start", Value: civil.DateOf(f.Start)},
			{Name: "end", Value: civil.DateOf(f.End)},
			{Name: "category", Value: constants.AirlineCategory},
			{Name: "airlines", Value: airlines},
		}
}

// DateRange returns the first and last ingestion dates of the table.
func (m *Manager) DateRange(ctx context.Context) (dashboard.DateRange, error) {
	var row []bigquery.Value
	err := m.queryRows(ctx, m.dateRangeQuery(), nil, func(values []bigquery.Value) error {
		row = values
		return nil
	})
	if err != nil {
		return dashboard.DateRange{}, fmt.Errorf("failed to query date range: %v", err)
	}
	if len(row) != 2 {
		return dashboard.DateRange{}, dashboard.ErrNoData
	}

	minDate, okMin, err := toDate(row[0])
	if err != nil {
		return dashboard.DateRange{}, err
	}
	maxDate, okMax, err := toDate(row[1])
	if err != nil {
		return dashboard.DateRange{}, err
	}
	if !okMin || !okMax {
		return dashboard.DateRange{}, dashboard.ErrNoData
	}
	return dashboard.DateRange{Min: minDate, Max: maxDate}, nil
}

// Airlines returns the distinct airlines of the table, sorted by name.
func (m *Manager) Airlines(ctx context.Context) ([]string, error) {
	query, params := m.airlinesQuery()

	var airlines []string
	err := m.queryRows(ctx, query, params, func(values []bigquery.Value) error {
		if len(values) == 0 || values[0] == nil {
			return nil
		}
		airlines = append(airlines, fmt.Sprint(values[0]))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query airlines: %v", err)
	}
	return airlines, nil
}

// Grievances returns the Airline rows matching f, most recent first.
func (m *Manager) Grievances(ctx context.Context, f dashboard.Filter) ([]dashboard.Row, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	query, params := m.grievancesQuery(f)

	var rows []dashboard.Row
	err := m.queryRows(ctx, query, params, func(values []bigquery.Value) error {
		generic := make([]any, len(values))
		for i, v := range values {
			generic[i] = v
		}
		r, err := dashboard.RowFromValues(generic)
		if err != nil {
			return err
		}
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query grievances: %v", err)
	}
	return rows, nil
}

// queryRows runs query and calls fn for each result row.
func (m *Manager) queryRows(ctx context.Context, query string, params []bigquery.QueryParameter, fn func([]bigquery.Value) error) error {
	q := m.client.Query(query)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return err
	}

	for {
		var values []bigquery.Value
		err := it.Next(&values)
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(values); err != nil {
			return err
		}
	}
}

// toDate converts a DATE, TIMESTAMP or date string value. A NULL value returns false.
func toDate(v bigquery.Value) (time.Time, bool, error) {
	switch d := v.(type) {
	case nil:
		return time.Time{}, false, nil
	case civil.Date:
		return d.In(time.UTC), true, nil
	case time.Time:
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), true, nil
	case string:
		t, err := time.Parse(time.DateOnly, d)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid date %q: %v", d, err)
		}
		return t, true, nil
	default:
		return time.Time{}, false, fmt.Errorf("unsupported date type %T", v)
	}
}
