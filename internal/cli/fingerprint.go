package cli

import (
	"fmt"
	"time"

	"footprint/internal/fingerprint"
	"footprint/internal/visitors"
)

// Execute implements the go-flags Commander interface for FingerprintCommand.
func (c *FingerprintCommand) Execute(_ []string) error {
	signals := fingerprint.Signals{
		UserAgent:           c.UserAgent,
		Language:            c.Language,
		Platform:            c.Platform,
		ScreenResolution:    c.Screen,
		HardwareConcurrency: c.Cores,
		DeviceMemory:        c.Memory,
		Timezone:            c.Timezone,
		IP:                  fingerprint.TruncateIP(c.IP),
	}

	gen := fingerprint.NewGenerator(time.Duration(c.TTLDays)*24*time.Hour, c.Drift, newLogger(c.env.globals.Verbose))
	id := gen.Generate(signals, fingerprint.FileStore{Path: c.Store})

	if c.env.wantJSON() {
		return writeJSON(c.env.out, map[string]string{
			"fingerprint": id,
			"alias":       visitors.Alias(id),
			"store":       c.Store,
		})
	}
	_, err := fmt.Fprintf(c.env.out, "%s (%s)\n", id, visitors.Alias(id))
	return err
}
