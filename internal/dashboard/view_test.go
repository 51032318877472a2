package dashboard_test

import (
	"testing"

	"github.com/openaviation/grievance-insights/internal/dashboard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	t.Parallel()

	rows := sampleRows(t)
	v := dashboard.Build(rows, dashboard.TableOptions{})

	assert.Equal(t, 3, v.DataPoints)
	assert.Equal(t, int64(200), v.MaxReceived)

	// KPIs
	assert.Equal(t, int64(350), v.KPIs.TotalReceived)
	assert.Equal(t, int64(45), v.KPIs.TotalActive)
	assert.Equal(t, int64(305), v.KPIs.TotalClosed)
	assert.InDelta(t, 230.0/3, v.KPIs.AvgResolutionRate, 1e-9, "Resolution KPI is the mean of row rates")
	assert.InDelta(t, 20.0/3, v.KPIs.AvgEscalationRate, 1e-9, "Escalation KPI is the mean of row rates")

	// Time series
	require.Len(t, v.TimeSeries, 2)
	assert.Equal(t, dashboard.DailyPoint{Date: date(t, "2025-03-01"), Received: 100, Active: 20, Closed: 80}, v.TimeSeries[0])
	assert.Equal(t, dashboard.DailyPoint{Date: date(t, "2025-03-02"), Received: 250, Active: 25, Closed: 225}, v.TimeSeries[1])

	// Distribution
	assert.Equal(t, []dashboard.AirlineShare{{Airline: "IndiGo", Received: 300}, {Airline: "Air India", Received: 50}}, v.Airlines)
	assert.Equal(t, v.Airlines[:1], v.TopAirlines(1))
	assert.Equal(t, v.Airlines, v.TopAirlines(5))

	// Ratings
	require.Len(t, v.Ratings.Buckets, 5)
	var counts []int64
	for _, b := range v.Ratings.Buckets {
		counts = append(counts, b.Count)
	}
	assert.Equal(t, []int64{5, 5, 10, 0, 10}, counts)
	assert.Equal(t, "Very Good", v.Ratings.Buckets[0].Label)
	assert.InDelta(t, 2.83, v.Ratings.Score, 1e-9)

	// Social and feedback
	assert.Equal(t, []dashboard.PlatformCount{{Platform: "Twitter", Count: 4}, {Platform: "Facebook", Count: 5}}, v.Social)
	assert.Equal(t, dashboard.Feedback{Resolved: 10, NotResolved: 5}, v.Feedback)

	// Resolution
	require.Len(t, v.Resolution, 2)
	assert.Equal(t, "Air India", v.Resolution[0].Airline)
	assert.InDelta(t, 50, v.Resolution[0].ResolutionRate, 1e-9)
	assert.Equal(t, int64(280), v.Resolution[1].Closed)
	assert.InDelta(t, 90, v.Resolution[1].ResolutionRate, 1e-9)

	// Summary
	assert.Equal(t, []dashboard.AirlineSummary{
		{Airline: "Air India", Total: 50, DailyAvg: 50, AvgResolutionRate: 50, AvgEscalationRate: 10},
		{Airline: "IndiGo", Total: 300, DailyAvg: 150, AvgResolutionRate: 90, AvgEscalationRate: 5},
	}, v.Summary)

	// Overall
	assert.Equal(t, int64(350), v.Overall.Total)
	assert.Equal(t, int64(200), v.Overall.Peak)
	assert.InDelta(t, 350.0/3, v.Overall.AvgDaily, 1e-9)
	assert.InDelta(t, 305.0/350*100, v.Overall.ResolutionRate, 1e-9, "Overall rate is computed on sums")
	assert.InDelta(t, 15.0/350*100, v.Overall.EscalationRate, 1e-9)

	assert.Equal(t, sampleRows(t), rows, "Build should not modify its input")
}

func TestBuildTable(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		opts dashboard.TableOptions

		wantAirlines []string
		wantDates    []string
	}{
		"All rows by date descending": {
			wantAirlines: []string{"IndiGo", "Air India", "IndiGo"},
			wantDates:    []string{"2025-03-02", "2025-03-02", "2025-03-01"},
		},
		"Only active": {
			opts:         dashboard.TableOptions{OnlyActive: true},
			wantAirlines: []string{"Air India", "IndiGo"},
			wantDates:    []string{"2025-03-02", "2025-03-01"},
		},
		"Minimum grievances": {
			opts:         dashboard.TableOptions{MinGrievances: 100},
			wantAirlines: []string{"IndiGo", "IndiGo"},
			wantDates:    []string{"2025-03-02", "2025-03-01"},
		},
		"Both filters": {
			opts:         dashboard.TableOptions{OnlyActive: true, MinGrievances: 100},
			wantAirlines: []string{"IndiGo"},
			wantDates:    []string{"2025-03-01"},
		},
		"Nothing matches": {
			opts: dashboard.TableOptions{MinGrievances: 1000},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			v := dashboard.Build(sampleRows(t), tc.opts)

			var airlines, dates []string
			for _, r := range v.Table {
				airlines = append(airlines, r.Airline)
				dates = append(dates, r.Date.Format("2006-01-02"))
			}
			assert.Equal(t, tc.wantAirlines, airlines)
			assert.Equal(t, tc.wantDates, dates)
			assert.Equal(t, int64(350), v.KPIs.TotalReceived, "Table options should not affect the other views")
		})
	}
}

func TestBuildEmpty(t *testing.T) {
	t.Parallel()

	v := dashboard.Build(nil, dashboard.TableOptions{OnlyActive: true})

	assert.Zero(t, v.DataPoints)
	assert.Zero(t, v.KPIs)
	assert.Zero(t, v.Overall)
	assert.Empty(t, v.Table)
	assert.NotNil(t, v.Table)
	assert.Len(t, v.Ratings.Buckets, 5, "Rating buckets should always be present")
	assert.Zero(t, v.Ratings.Score)
	assert.Len(t, v.Social, 2)
}
