// Package cli implements fpctl, the operator command line of footprint.
package cli

import (
	"encoding/json"
	"io"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(out io.Writer) *goflags.Parser {
	var globals GlobalFlags
	e := &env{globals: &globals, out: out}

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "fpctl"
	parser.LongDescription = "Inspect visitor fingerprints, presence and statistics of a footprint installation."

	parser.AddCommand("classify", "Classify user agents", "Classify one or more user-agent strings into browser, OS and device.", &ClassifyCommand{env: e})
	parser.AddCommand("fingerprint", "Compute a fingerprint", "Compute a fingerprint from client signals, reusing the stored one while it is fresh.", &FingerprintCommand{env: e})
	parser.AddCommand("stats", "Print aggregated statistics", "Aggregate stored events over a day window in the canonical timezone.", &StatsCommand{env: e})
	parser.AddCommand("online", "List online visitors", "List visitors seen within the presence timeout on a domain.", &OnlineCommand{env: e})
	parser.AddCommand("seed", "Generate demo traffic", "Simulate visitor sessions through the ingest pipeline. Refuses to run in production.", &SeedCommand{env: e})
	parser.AddCommand("maintenance", "Run background jobs once", "Run the presence sweep, event retention and GeoLite reload jobs once.", &MaintenanceCommand{env: e})

	return parser
}

// Run parses os.Args and executes the matched subcommand.
func Run() error {
	return RunWithArgs(os.Args[1:], os.Stdout)
}

// RunWithArgs parses args and executes the matched subcommand, writing its
// output to out.
func RunWithArgs(args []string, out io.Writer) error {
	parser := buildParser(out)
	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok && flagsErr.Type == goflags.ErrHelp {
			return nil
		}
		return err
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
