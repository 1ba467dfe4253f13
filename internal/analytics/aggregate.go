// Package analytics folds canonical events into the statistics the dashboard
// renders, and serves them for a requested window.
package analytics

import (
	"net/url"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"footprint/internal/events"
	"footprint/internal/pkg/referrers"
	"footprint/internal/pkg/user_agent"
	"footprint/internal/timeframe"
)

// MetricCountResult is one row of a breakdown.
type MetricCountResult struct {
	Name       string  `json:"name"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

type DailyStat struct {
	Date           string `json:"date"`
	PageViews      int64  `json:"pageViews"`
	UniqueVisitors int64  `json:"uniqueVisitors"`
}

type URLStat struct {
	URL   string `json:"url"`
	Views int64  `json:"views"`
}

type ReferrerStat struct {
	Referrer   string  `json:"referrer"`
	Label      string  `json:"label"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

type Overview struct {
	TotalPageViews int64 `json:"totalPageViews"`
	UniqueVisitors int64 `json:"uniqueVisitors"`
	TotalEvents    int64 `json:"totalEvents"`
}

type WindowInfo struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Timezone  string `json:"timezone"`
}

// Report is the result of aggregating one window.
type Report struct {
	Window        WindowInfo          `json:"window"`
	Overview      Overview            `json:"overview"`
	DailyStats    []DailyStat         `json:"dailyStats"`
	URLStats      []URLStat           `json:"urlStats"`
	ReferrerStats []ReferrerStat      `json:"referrerStats"`
	BrowserStats  []MetricCountResult `json:"browserStats"`
	OSStats       []MetricCountResult `json:"osStats"`
	DeviceStats   []MetricCountResult `json:"deviceStats"`
}

var titleCaser = cases.Title(language.English)

// orderedCounter counts keys and remembers the order they were first seen.
type orderedCounter struct {
	counts map[string]int64
	order  []string
}

func newOrderedCounter() *orderedCounter {
	return &orderedCounter{counts: make(map[string]int64)}
}

func (c *orderedCounter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

// sorted returns keys by descending count, ties in first-seen order.
func (c *orderedCounter) sorted() []string {
	keys := append([]string(nil), c.order...)
	sort.SliceStable(keys, func(i, j int) bool {
		return c.counts[keys[i]] > c.counts[keys[j]]
	})
	return keys
}

// Aggregate computes the report for window. Events outside the window, bots,
// heartbeats and unknown types are ignored. Input order only matters for
// tie-breaking, so callers pass events oldest first.
func Aggregate(evts []*events.CanonicalEvent, window timeframe.Window) *Report {
	report := &Report{
		Window: WindowInfo{
			StartDate: window.Start.Format(timeframe.DateLayout),
			EndDate:   window.End.Format(timeframe.DateLayout),
			Timezone:  window.Loc.String(),
		},
		URLStats:      []URLStat{},
		ReferrerStats: []ReferrerStat{},
	}

	days := window.Days()
	daily := make(map[string]*DailyStat, len(days))
	dailyVisitors := make(map[string]map[string]struct{}, len(days))
	report.DailyStats = make([]DailyStat, len(days))
	for i, day := range days {
		report.DailyStats[i] = DailyStat{Date: day}
		daily[day] = &report.DailyStats[i]
		dailyVisitors[day] = make(map[string]struct{})
	}

	visitors := make(map[string]struct{})
	urls := newOrderedCounter()
	refs := newOrderedCounter()
	browsers := newOrderedCounter()
	systems := newOrderedCounter()
	devices := newOrderedCounter()

	for _, e := range evts {
		if e == nil || e.Bot || !e.Type.Aggregatable() || !window.Contains(e.Timestamp) {
			continue
		}
		day := window.DayKey(e.Timestamp)
		bucket, ok := daily[day]
		if !ok {
			continue
		}

		report.Overview.TotalEvents++
		if id := e.VisitorID(); id != "" {
			visitors[id] = struct{}{}
			dailyVisitors[day][id] = struct{}{}
		}

		if e.Type != events.TypeView {
			continue
		}
		report.Overview.TotalPageViews++
		bucket.PageViews++

		if u := NormalizeURL(e.URL); u != "" {
			urls.add(u)
		}
		refs.add(referrerHost(e.Referrer))
		browsers.add(label(e.Browser.Name))
		systems.add(label(e.OS))
		devices.add(label(string(e.Device)))
	}

	for i := range report.DailyStats {
		report.DailyStats[i].UniqueVisitors = int64(len(dailyVisitors[report.DailyStats[i].Date]))
	}
	report.Overview.UniqueVisitors = int64(len(visitors))

	for _, u := range urls.sorted() {
		report.URLStats = append(report.URLStats, URLStat{URL: u, Views: urls.counts[u]})
	}

	total := report.Overview.TotalPageViews
	for _, host := range refs.sorted() {
		report.ReferrerStats = append(report.ReferrerStats, ReferrerStat{
			Referrer:   host,
			Label:      referrers.FriendlyName(host),
			Count:      refs.counts[host],
			Percentage: percentage(refs.counts[host], total),
		})
	}

	report.BrowserStats = breakdown(browsers, total)
	report.OSStats = breakdown(systems, total)
	report.DeviceStats = breakdown(devices, total)

	return report
}

func breakdown(c *orderedCounter, total int64) []MetricCountResult {
	results := make([]MetricCountResult, 0, len(c.order))
	for _, name := range c.sorted() {
		results = append(results, MetricCountResult{
			Name:       name,
			Count:      c.counts[name],
			Percentage: percentage(c.counts[name], total),
		})
	}
	return results
}

func referrerHost(referrer string) string {
	if events.IsSentinel(referrer) {
		return referrers.Direct
	}
	return referrers.Hostname(referrer)
}

func percentage(count, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}

// label normalizes a display name. All-lowercase client values are title
// cased; names with deliberate casing such as "macOS" are kept.
func label(name string) string {
	name = strings.TrimSpace(name)
	if events.IsSentinel(name) {
		return user_agent.Unknown
	}
	if name == strings.ToLower(name) {
		return titleCaser.String(name)
	}
	return name
}

// NormalizeURL reduces a page URL to scheme, host and path. The query string
// and fragment are dropped.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			raw = raw[:i]
		}
		return raw
	}
	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host) + path
}
