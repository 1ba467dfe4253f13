package cli

import (
	"context"
	"fmt"
)

// Execute implements the go-flags Commander interface for MaintenanceCommand.
func (c *MaintenanceCommand) Execute(_ []string) error {
	services, closeFn, err := openServices(c.env.globals.Verbose)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := services.Scheduler.RunOnce(context.Background()); err != nil {
		return err
	}
	if c.env.wantJSON() {
		return writeJSON(c.env.out, map[string]string{"status": "ok"})
	}
	_, err = fmt.Fprintln(c.env.out, "maintenance completed")
	return err
}
