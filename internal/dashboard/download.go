package dashboard

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var derivedColumns = []string{"total_active", "total_closed", "resolution_rate", "escalation_rate"}

// WriteCSV writes rows with a header line: the warehouse columns followed by the derived metrics.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, Columns...), derivedColumns...)); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for i, r := range rows {
		rec := make([]string, 0, len(Columns)+len(derivedColumns))
		rec = append(rec, r.InsertedDate.Format(time.DateOnly), r.Category, r.Subcategory, r.Type)
		for _, n := range r.counts() {
			rec = append(rec, strconv.FormatInt(*n, 10))
		}
		rec = append(rec,
			strconv.FormatInt(r.TotalActive(), 10),
			strconv.FormatInt(r.TotalClosed(), 10),
			strconv.FormatFloat(r.ResolutionRate(), 'f', -1, 64),
			strconv.FormatFloat(r.EscalationRate(), 'f', -1, 64),
		)
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %v", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Report renders the Markdown summary of v for the period of f.
func Report(v View, f Filter, now time.Time) string {
	var b strings.Builder

	fmt.Fprintln(&b, "# Airlines Grievance Analytics Report")
	fmt.Fprintf(&b, "## Period: %s to %s\n\n", f.Start.Format(time.DateOnly), f.End.Format(time.DateOnly))

	fmt.Fprintln(&b, "### Key Metrics:")
	fmt.Fprintf(&b, "- Total Grievances: %s\n", thousands(v.KPIs.TotalReceived))
	fmt.Fprintf(&b, "- Active Grievances: %s\n", thousands(v.KPIs.TotalActive))
	fmt.Fprintf(&b, "- Closed Grievances: %s\n", thousands(v.KPIs.TotalClosed))
	fmt.Fprintf(&b, "- Average Resolution Rate: %.1f%%\n", v.KPIs.AvgResolutionRate)
	fmt.Fprintf(&b, "- Average Escalation Rate: %.1f%%\n\n", v.KPIs.AvgEscalationRate)

	fmt.Fprintln(&b, "### Top Airlines:")
	fmt.Fprintln(&b, "| Airline | Total Received |")
	fmt.Fprintln(&b, "|---|---:|")
	for _, a := range v.TopAirlines(DefaultAirlineCount) {
		fmt.Fprintf(&b, "| %s | %s |\n", escapeCell(a.Airline), thousands(a.Received))
	}

	fmt.Fprintf(&b, "\nGenerated on: %s\n", now.Format(time.DateTime))
	return b.String()
}

var printer = message.NewPrinter(language.English)

// thousands formats n with comma separators.
func thousands(n int64) string {
	return printer.Sprintf("%d", n)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
