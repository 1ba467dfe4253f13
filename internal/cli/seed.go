package cli

import (
	"context"
	"errors"
	"fmt"

	"footprint/internal/seeder"
)

// Execute implements the go-flags Commander interface for SeedCommand.
func (c *SeedCommand) Execute(_ []string) error {
	services, closeFn, err := openServices(c.env.globals.Verbose)
	if err != nil {
		return err
	}
	defer closeFn()

	if services.Config.IsProduction() {
		return errors.New("refusing to seed a production database")
	}

	summary, err := seeder.NewSeeder(services.Pipeline, services.Logger, seeder.Options{
		Domains:  c.Domains,
		Visitors: c.Visitors,
		Days:     c.Days,
		Seed:     c.Seed,
	}).Run(context.Background())
	if err != nil {
		return err
	}

	if c.env.wantJSON() {
		return writeJSON(c.env.out, summary)
	}
	_, err = fmt.Fprintf(c.env.out, "seeded %d visitors, %d events (%d stored)\n",
		summary.Visitors, summary.Events, summary.Stored)
	return err
}
