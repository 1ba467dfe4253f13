package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"footprint/internal/analytics"
)

// Execute implements the go-flags Commander interface for StatsCommand.
func (c *StatsCommand) Execute(_ []string) error {
	services, closeFn, err := openServices(c.env.globals.Verbose)
	if err != nil {
		return err
	}
	defer closeFn()

	report, err := services.Analytics.Query(context.Background(), analytics.Query{
		Domain:    c.Domain,
		Days:      c.Days,
		StartDate: c.Start,
		EndDate:   c.End,
	})
	if err != nil {
		return err
	}

	if c.env.wantJSON() {
		return writeJSON(c.env.out, report)
	}

	w := tabwriter.NewWriter(c.env.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Window:\t%s .. %s (%s)\n", report.Window.StartDate, report.Window.EndDate, report.Window.Timezone)
	fmt.Fprintf(w, "Page views:\t%d\n", report.Overview.TotalPageViews)
	fmt.Fprintf(w, "Unique visitors:\t%d\n", report.Overview.UniqueVisitors)
	fmt.Fprintf(w, "Events:\t%d\n", report.Overview.TotalEvents)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "DATE\tVIEWS\tVISITORS")
	for _, d := range report.DailyStats {
		fmt.Fprintf(w, "%s\t%d\t%d\n", d.Date, d.PageViews, d.UniqueVisitors)
	}
	if len(report.URLStats) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "URL\tVIEWS")
		for _, u := range report.URLStats {
			fmt.Fprintf(w, "%s\t%d\n", u.URL, u.Views)
		}
	}
	return w.Flush()
}
