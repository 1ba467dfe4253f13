package cli

import (
	"context"
	"fmt"
	"time"

	"footprint/internal/events"
	"footprint/internal/visitors"
)

// Execute implements the go-flags Commander interface for OnlineCommand.
func (c *OnlineCommand) Execute(_ []string) error {
	services, closeFn, err := openServices(c.env.globals.Verbose)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := context.Background()
	// A fresh process has an empty in-memory tracker.
	if err := services.WarmPresence(ctx); err != nil {
		return fmt.Errorf("failed to warm presence: %w", err)
	}

	domain := events.NormalizeDomain(c.Domain)
	fingerprints, err := services.Presence.OnlineFingerprints(ctx, domain, time.Now())
	if err != nil {
		return err
	}

	if c.env.wantJSON() {
		if fingerprints == nil {
			fingerprints = []string{}
		}
		return writeJSON(c.env.out, map[string]any{
			"domain":             domain,
			"onlineFingerprints": fingerprints,
		})
	}

	fmt.Fprintf(c.env.out, "%d online on %s\n", len(fingerprints), domain)
	for _, fp := range fingerprints {
		fmt.Fprintf(c.env.out, "  %s  %s\n", fp, visitors.Alias(fp))
	}
	return nil
}
