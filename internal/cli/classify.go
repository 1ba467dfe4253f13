package cli

import (
	"fmt"
	"text/tabwriter"

	"footprint/internal/pkg/user_agent"
)

type classifyResult struct {
	UserAgent string `json:"userAgent"`
	user_agent.Classification
}

// Execute implements the go-flags Commander interface for ClassifyCommand.
func (c *ClassifyCommand) Execute(_ []string) error {
	hints := user_agent.Hints{MaxTouchPoints: c.TouchPoints}
	results := make([]classifyResult, 0, len(c.Args.UserAgents))
	for _, ua := range c.Args.UserAgents {
		results = append(results, classifyResult{UserAgent: ua, Classification: user_agent.ClassifyWithHints(ua, hints)})
	}

	if c.env.wantJSON() {
		return writeJSON(c.env.out, results)
	}

	w := tabwriter.NewWriter(c.env.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BROWSER\tOS\tDEVICE\tBOT")
	for _, r := range results {
		fmt.Fprintf(w, "%s %s\t%s %s\t%s\t%t\n",
			r.BrowserName, r.BrowserVersion, r.OSName, r.OSVersion, r.DeviceClass, r.Bot)
	}
	return w.Flush()
}
