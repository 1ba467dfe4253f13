// Package jobs runs the periodic maintenance work of the service: presence
// sweeps, event retention and GeoLite database reloads.
package jobs

import "context"

// Job is one unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}
