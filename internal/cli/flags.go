package cli

import (
	"io"
	"os"

	"golang.org/x/term"
)

// GlobalFlags apply to every subcommand.
type GlobalFlags struct {
	JSON    bool `long:"json" description:"Output in JSON format (default when stdout is not a terminal)"`
	Verbose bool `long:"verbose" description:"Log diagnostics to stderr"`
}

// env is shared by all subcommands.
type env struct {
	globals *GlobalFlags
	out     io.Writer
}

// wantJSON reports whether output should be machine readable.
func (e *env) wantJSON() bool {
	if e.globals.JSON {
		return true
	}
	f, ok := e.out.(*os.File)
	return !ok || !term.IsTerminal(int(f.Fd()))
}

// ClassifyCommand classifies user-agent strings.
type ClassifyCommand struct {
	TouchPoints int `long:"touch-points" description:"navigator.maxTouchPoints reported by the client" default:"0"`
	Args        struct {
		UserAgents []string `positional-arg-name:"user-agent" required:"1"`
	} `positional-args:"yes"`

	env *env
}

// FingerprintCommand computes or reuses a fingerprint kept in a JSON file.
type FingerprintCommand struct {
	Store     string  `long:"store" description:"Path of the stored fingerprint record" default:"fingerprint.json"`
	UserAgent string  `long:"user-agent" description:"Browser user agent"`
	Language  string  `long:"language" description:"navigator.language"`
	Platform  string  `long:"platform" description:"navigator.platform"`
	Screen    string  `long:"screen" description:"Screen resolution, e.g. 1920x1080"`
	Cores     int     `long:"cores" description:"navigator.hardwareConcurrency"`
	Memory    float64 `long:"memory" description:"navigator.deviceMemory in GiB"`
	Timezone  string  `long:"timezone" description:"IANA zone of the client"`
	IP        string  `long:"ip" description:"Client address; only its network prefix is used"`
	TTLDays   int     `long:"ttl-days" description:"Days before a stored fingerprint rotates" default:"30"`
	Drift     float64 `long:"drift" description:"Fraction of changed signals that forces rotation" default:"0.3"`

	env *env
}

// StatsCommand prints aggregated statistics from the configured database.
type StatsCommand struct {
	Domain string `long:"domain" description:"Domain to aggregate (all when empty)"`
	Days   int    `long:"days" description:"Window length in days ending today" default:"7"`
	Start  string `long:"start" description:"Window start date (YYYY-MM-DD)"`
	End    string `long:"end" description:"Window end date (YYYY-MM-DD)"`

	env *env
}

// OnlineCommand lists visitors active within the presence timeout.
type OnlineCommand struct {
	Domain string `long:"domain" description:"Domain to inspect" required:"true"`

	env *env
}

// MaintenanceCommand runs every background job once.
type MaintenanceCommand struct {
	env *env
}

// SeedCommand generates demo traffic through the ingest pipeline.
type SeedCommand struct {
	Domains  []string `long:"domain" description:"Domain to seed (repeatable)" default:"example.com"`
	Visitors int      `long:"visitors" description:"Number of visitors to simulate" default:"50"`
	Days     int      `long:"days" description:"Spread sessions over this many days" default:"7"`
	Seed     uint64   `long:"seed" description:"Random seed for reproducible traffic (0 picks one)"`

	env *env
}
