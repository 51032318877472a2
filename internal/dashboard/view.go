package dashboard

import (
	"cmp"
	"math"
	"slices"
	"time"
)

// TableOptions narrows the detailed table. They never affect the other views.
type TableOptions struct {
	// OnlyActive keeps rows with at least one active grievance.
	OnlyActive bool
	// MinGrievances keeps rows with at least that many received grievances, when positive.
	MinGrievances int64
}

// View holds every aggregation displayed by the dashboard for one set of rows.
type View struct {
	DataPoints  int                 `json:"data_points"`
	MaxReceived int64               `json:"max_received"`
	KPIs        KPIs                `json:"kpis"`
	TimeSeries  []DailyPoint        `json:"time_series"`
	Airlines    []AirlineShare      `json:"airlines"`
	Ratings     Ratings             `json:"ratings"`
	Social      []PlatformCount     `json:"social"`
	Resolution  []AirlineResolution `json:"resolution"`
	Feedback    Feedback            `json:"feedback"`
	Table       []TableRow          `json:"table"`
	Summary     []AirlineSummary    `json:"summary"`
	Overall     Overall             `json:"overall"`
}

// KPIs are the headline indicators. Rates are means of the per-row rates.
type KPIs struct {
	TotalReceived     int64   `json:"total_received"`
	TotalActive       int64   `json:"total_active"`
	TotalClosed       int64   `json:"total_closed"`
	AvgResolutionRate float64 `json:"avg_resolution_rate"`
	AvgEscalationRate float64 `json:"avg_escalation_rate"`
}

// DailyPoint sums one ingestion date.
type DailyPoint struct {
	Date     time.Time `json:"date"`
	Received int64     `json:"received"`
	Active   int64     `json:"active"`
	Closed   int64     `json:"closed"`
}

// AirlineShare is the number of grievances received by one airline.
type AirlineShare struct {
	Airline  string `json:"airline"`
	Received int64  `json:"received"`
}

// RatingBucket counts one rating level.
type RatingBucket struct {
	Label  string `json:"label"`
	Weight int    `json:"weight"`
	Count  int64  `json:"count"`
}

// Ratings is the rating distribution, from best to worst, and its weighted score out of 5.
type Ratings struct {
	Buckets []RatingBucket `json:"buckets"`
	Score   float64        `json:"score"`
}

// PlatformCount is the number of grievances raised on a social platform.
type PlatformCount struct {
	Platform string `json:"platform"`
	Count    int64  `json:"count"`
}

// AirlineResolution relates the volume of an airline to its mean resolution rate.
type AirlineResolution struct {
	Airline        string  `json:"airline"`
	Received       int64   `json:"received"`
	Closed         int64   `json:"closed"`
	ResolutionRate float64 `json:"resolution_rate"`
}

// Feedback splits the grievances with feedback by outcome.
type Feedback struct {
	Resolved    int64 `json:"resolved"`
	NotResolved int64 `json:"not_resolved"`
}

// TableRow is one line of the detailed table.
type TableRow struct {
	Date           time.Time `json:"date"`
	Airline        string    `json:"airline"`
	Received       int64     `json:"received"`
	Active         int64     `json:"active"`
	Closed         int64     `json:"closed"`
	ResolutionRate float64   `json:"resolution_rate"`
	EscalationRate float64   `json:"escalation_rate"`
}

// AirlineSummary is the per-airline performance, rounded to 2 decimals.
type AirlineSummary struct {
	Airline           string  `json:"airline"`
	Total             int64   `json:"total"`
	DailyAvg          float64 `json:"daily_avg"`
	AvgResolutionRate float64 `json:"avg_resolution_rate"`
	AvgEscalationRate float64 `json:"avg_escalation_rate"`
}

// Overall holds the whole-period figures. Rates are computed on the sums.
type Overall struct {
	Total          int64   `json:"total"`
	AvgDaily       float64 `json:"avg_daily"`
	Peak           int64   `json:"peak"`
	ResolutionRate float64 `json:"resolution_rate"`
	EscalationRate float64 `json:"escalation_rate"`
}

type airlineAcc struct {
	rows           int
	received       int64
	closed         int64
	resolutionRate float64
	escalationRate float64
}

// Build computes every view over rows. rows is not modified.
func Build(rows []Row, opts TableOptions) View {
	v := View{
		DataPoints: len(rows),
		Ratings:    Ratings{Buckets: ratingBuckets()},
	}
	if len(rows) == 0 {
		v.Social = socialCounts(0, 0)
		v.TimeSeries = []DailyPoint{}
		v.Airlines = []AirlineShare{}
		v.Resolution = []AirlineResolution{}
		v.Table = []TableRow{}
		v.Summary = []AirlineSummary{}
		return v
	}

	var (
		resolutionSum, escalationSum float64
		escalated                    int64
		twitter, facebook            int64
	)
	daily := make(map[time.Time]*DailyPoint)
	airlines := make(map[string]*airlineAcc)

	for _, r := range rows {
		v.KPIs.TotalReceived += r.TotalReceived
		v.KPIs.TotalActive += r.TotalActive()
		v.KPIs.TotalClosed += r.TotalClosed()
		resolutionSum += r.ResolutionRate()
		escalationSum += r.EscalationRate()
		escalated += r.ActiveWithEscalation
		v.MaxReceived = max(v.MaxReceived, r.TotalReceived)

		d, ok := daily[r.InsertedDate]
		if !ok {
			d = &DailyPoint{Date: r.InsertedDate}
			daily[r.InsertedDate] = d
		}
		d.Received += r.TotalReceived
		d.Active += r.TotalActive()
		d.Closed += r.TotalClosed()

		a, ok := airlines[r.Subcategory]
		if !ok {
			a = &airlineAcc{}
			airlines[r.Subcategory] = a
		}
		a.rows++
		a.received += r.TotalReceived
		a.closed += r.TotalClosed()
		a.resolutionRate += r.ResolutionRate()
		a.escalationRate += r.EscalationRate()

		for i, n := range []int64{r.VeryGoodRating, r.GoodRating, r.OKRating, r.BadRating, r.VeryBadRating} {
			v.Ratings.Buckets[i].Count += n
		}
		twitter += r.Twitter
		facebook += r.Facebook
		v.Feedback.Resolved += r.FeedbackIssueResolved
		v.Feedback.NotResolved += r.FeedbackIssueNotResolved
	}

	n := float64(len(rows))
	v.KPIs.AvgResolutionRate = resolutionSum / n
	v.KPIs.AvgEscalationRate = escalationSum / n

	v.TimeSeries = make([]DailyPoint, 0, len(daily))
	for _, d := range daily {
		v.TimeSeries = append(v.TimeSeries, *d)
	}
	slices.SortFunc(v.TimeSeries, func(a, b DailyPoint) int { return a.Date.Compare(b.Date) })

	names := make([]string, 0, len(airlines))
	for name := range airlines {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		a := airlines[name]
		count := float64(a.rows)
		v.Airlines = append(v.Airlines, AirlineShare{Airline: name, Received: a.received})
		v.Resolution = append(v.Resolution, AirlineResolution{
			Airline:        name,
			Received:       a.received,
			Closed:         a.closed,
			ResolutionRate: a.resolutionRate / count,
		})
		v.Summary = append(v.Summary, AirlineSummary{
			Airline:           name,
			Total:             a.received,
			DailyAvg:          round2(float64(a.received) / count),
			AvgResolutionRate: round2(a.resolutionRate / count),
			AvgEscalationRate: round2(a.escalationRate / count),
		})
	}
	slices.SortStableFunc(v.Airlines, func(a, b AirlineShare) int { return cmp.Compare(b.Received, a.Received) })

	v.Ratings.Score = ratingScore(v.Ratings.Buckets)
	v.Social = socialCounts(twitter, facebook)
	v.Table = buildTable(rows, opts)
	v.Overall = Overall{
		Total:          v.KPIs.TotalReceived,
		AvgDaily:       float64(v.KPIs.TotalReceived) / n,
		Peak:           v.MaxReceived,
		ResolutionRate: percent(v.KPIs.TotalClosed, v.KPIs.TotalReceived),
		EscalationRate: percent(escalated, v.KPIs.TotalReceived),
	}
	return v
}

// TopAirlines returns at most n airlines with the most grievances.
func (v View) TopAirlines(n int) []AirlineShare {
	if len(v.Airlines) <= n {
		return v.Airlines
	}
	return v.Airlines[:n]
}

func buildTable(rows []Row, opts TableOptions) []TableRow {
	table := make([]TableRow, 0, len(rows))
	for _, r := range rows {
		if opts.OnlyActive && r.TotalActive() <= 0 {
			continue
		}
		if opts.MinGrievances > 0 && r.TotalReceived < opts.MinGrievances {
			continue
		}
		table = append(table, TableRow{
			Date:           r.InsertedDate,
			Airline:        r.Subcategory,
			Received:       r.TotalReceived,
			Active:         r.TotalActive(),
			Closed:         r.TotalClosed(),
			ResolutionRate: r.ResolutionRate(),
			EscalationRate: r.EscalationRate(),
		})
	}
	slices.SortStableFunc(table, func(a, b TableRow) int { return b.Date.Compare(a.Date) })
	return table
}

func ratingBuckets() []RatingBucket {
	return []RatingBucket{
		{Label: "Very Good", Weight: 5},
		{Label: "Good", Weight: 4},
		{Label: "OK", Weight: 3},
		{Label: "Bad", Weight: 2},
		{Label: "Very Bad", Weight: 1},
	}
}

// ratingScore is the weighted mean rating, 0 when nothing was rated.
func ratingScore(buckets []RatingBucket) float64 {
	var total, weighted int64
	for _, b := range buckets {
		total += b.Count
		weighted += b.Count * int64(b.Weight)
	}
	if total == 0 {
		return 0
	}
	return round2(float64(weighted) / float64(total))
}

func socialCounts(twitter, facebook int64) []PlatformCount {
	return []PlatformCount{
		{Platform: "Twitter", Count: twitter},
		{Platform: "Facebook", Count: facebook},
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
