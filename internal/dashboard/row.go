package dashboard

import (
	"fmt"
	"strconv"
	"time"
)

// Columns lists the warehouse columns read by the dashboard, in scan order.
var Columns = []string{
	"inserted_date",
	"_categoryx",
	"subcategory",
	"type",
	"totalreceived",
	"activegrievanceswithoutescalation",
	"active_grievanceswithescalation",
	"closed_grievanceswithoutescalation",
	"closed_grievanceswithescalation",
	"successfultransferin",
	"grievanceswithoutratings",
	"grievanceswithratings",
	"grievanceswithverygoodrating",
	"grievanceswithgoodrating",
	"grievanceswithokrating",
	"grievanceswithbadrating",
	"grievanceswithverybadrating",
	"twittergrievances",
	"facebookgrievances",
	"grievancesadditionalinfoprovided",
	"grievancesadditionalinfonotprovided",
	"grievanceswithoutfeedback",
	"grievanceswithfeedback",
	"grievanceswithfeedbackissuenotresolved",
	"grievanceswithfeedbackissueresolved",
}

// TextColumns is the number of leading non-count columns in Columns: the date and three labels.
const TextColumns = 4

// Row is one daily grievance snapshot for a category and subcategory.
type Row struct {
	InsertedDate time.Time `json:"inserted_date"`
	Category     string    `json:"category"`
	Subcategory  string    `json:"subcategory"`
	Type         string    `json:"type"`

	TotalReceived             int64 `json:"total_received"`
	ActiveWithoutEscalation   int64 `json:"active_without_escalation"`
	ActiveWithEscalation      int64 `json:"active_with_escalation"`
	ClosedWithoutEscalation   int64 `json:"closed_without_escalation"`
	ClosedWithEscalation      int64 `json:"closed_with_escalation"`
	SuccessfulTransferIn      int64 `json:"successful_transfer_in"`
	WithoutRatings            int64 `json:"without_ratings"`
	WithRatings               int64 `json:"with_ratings"`
	VeryGoodRating            int64 `json:"very_good_rating"`
	GoodRating                int64 `json:"good_rating"`
	OKRating                  int64 `json:"ok_rating"`
	BadRating                 int64 `json:"bad_rating"`
	VeryBadRating             int64 `json:"very_bad_rating"`
	Twitter                   int64 `json:"twitter"`
	Facebook                  int64 `json:"facebook"`
	AdditionalInfoProvided    int64 `json:"additional_info_provided"`
	AdditionalInfoNotProvided int64 `json:"additional_info_not_provided"`
	WithoutFeedback           int64 `json:"without_feedback"`
	WithFeedback              int64 `json:"with_feedback"`
	FeedbackIssueNotResolved  int64 `json:"feedback_issue_not_resolved"`
	FeedbackIssueResolved     int64 `json:"feedback_issue_resolved"`
}

// TotalActive is the number of grievances still open, escalated or not.
func (r Row) TotalActive() int64 {
	return r.ActiveWithoutEscalation + r.ActiveWithEscalation
}

// TotalClosed is the number of closed grievances, escalated or not.
func (r Row) TotalClosed() int64 {
	return r.ClosedWithoutEscalation + r.ClosedWithEscalation
}

// ResolutionRate is the closed share of received grievances, in percent.
func (r Row) ResolutionRate() float64 {
	return percent(r.TotalClosed(), r.TotalReceived)
}

// EscalationRate is the active escalated share of received grievances, in percent.
func (r Row) EscalationRate() float64 {
	return percent(r.ActiveWithEscalation, r.TotalReceived)
}

func (r *Row) counts() []*int64 {
	return []*int64{
		&r.TotalReceived,
		&r.ActiveWithoutEscalation,
		&r.ActiveWithEscalation,
		&r.ClosedWithoutEscalation,
		&r.ClosedWithEscalation,
		&r.SuccessfulTransferIn,
		&r.WithoutRatings,
		&r.WithRatings,
		&r.VeryGoodRating,
		&r.GoodRating,
		&r.OKRating,
		&r.BadRating,
		&r.VeryBadRating,
		&r.Twitter,
		&r.Facebook,
		&r.AdditionalInfoProvided,
		&r.AdditionalInfoNotProvided,
		&r.WithoutFeedback,
		&r.WithFeedback,
		&r.FeedbackIssueNotResolved,
		&r.FeedbackIssueResolved,
	}
}

// RowFromValues builds a row from warehouse values given in Columns order.
//
// The date accepts a time.Time, a "2006-01-02" string or a value with a String method in that layout.
// Counts accept any integer, float or numeric string; nil is read as 0.
func RowFromValues(values []any) (Row, error) {
	if len(values) != len(Columns) {
		return Row{}, fmt.Errorf("expected %d columns, got %d", len(Columns), len(values))
	}

	var r Row
	d, err := toDate(values[0])
	if err != nil {
		return Row{}, fmt.Errorf("column %s: %v", Columns[0], err)
	}
	r.InsertedDate = d
	r.Category = toText(values[1])
	r.Subcategory = toText(values[2])
	r.Type = toText(values[3])

	for i, dst := range r.counts() {
		col := TextColumns + i
		n, err := toCount(values[col])
		if err != nil {
			return Row{}, fmt.Errorf("column %s: %v", Columns[col], err)
		}
		*dst = n
	}
	return r, nil
}

func toDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
	case string:
		return time.Parse(time.DateOnly, d)
	case fmt.Stringer:
		return time.Parse(time.DateOnly, d.String())
	case nil:
		return time.Time{}, fmt.Errorf("missing date")
	default:
		return time.Time{}, fmt.Errorf("unsupported date type %T", v)
	}
}

func toText(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func toCount(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		if n == "" {
			return 0, nil
		}
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(n, 64)
			if ferr != nil {
				return 0, fmt.Errorf("not a number: %q", n)
			}
			return int64(f), nil
		}
		return i, nil
	default:
		return 0, fmt.Errorf("unsupported count type %T", v)
	}
}

func percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
