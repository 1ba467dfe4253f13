// Package presence tracks which visitors are currently on each domain.
//
// Membership is always derived from the last activity time of a
// fingerprint: a visitor is online while now - lastSeen < timeout. Counts are
// recomputed from that data on every read, so a page that closes without an
// exit signal still ages out.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"footprint/internal/models"
)

// DefaultTimeout is how long a visitor stays online after its last view or
// heartbeat.
const DefaultTimeout = 5 * time.Minute

// Tracker maintains per-domain presence. Implementations are safe for
// concurrent use.
type Tracker interface {
	// RecordActivity moves lastSeen for fingerprint to max(lastSeen, at).
	RecordActivity(ctx context.Context, domain, fingerprint string, at time.Time) error
	// Remove drops fingerprint when at is not older than its lastSeen, so a
	// delayed exit cannot evict a visitor who has since come back.
	Remove(ctx context.Context, domain, fingerprint string, at time.Time) error
	IsOnline(ctx context.Context, domain, fingerprint string, now time.Time) (bool, error)
	OnlineCount(ctx context.Context, domain string, now time.Time) (int, error)
	OnlineFingerprints(ctx context.Context, domain string, now time.Time) ([]string, error)
	// Sweep discards expired entries and reports how many were dropped.
	Sweep(ctx context.Context, now time.Time) (int, error)
	Close() error
}

// Pinger is implemented by trackers backed by a remote store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ActivitySource lists visitors seen since a point in time.
type ActivitySource interface {
	ActiveUsers(ctx context.Context, since time.Time) ([]models.User, error)
}

// Warm seeds tracker with the visitors source saw within timeout of now, so a
// restart does not report everyone offline until their next heartbeat.
func Warm(ctx context.Context, tracker Tracker, source ActivitySource, timeout time.Duration, now time.Time, logger *slog.Logger) error {
	users, err := source.ActiveUsers(ctx, now.Add(-timeout))
	if err != nil {
		return fmt.Errorf("load active users: %w", err)
	}
	for _, u := range users {
		if err := tracker.RecordActivity(ctx, u.Domain, u.Fingerprint, u.LastSeen); err != nil {
			return fmt.Errorf("seed presence for %s: %w", u.Fingerprint, err)
		}
	}
	logger.Info("Presence tracker warmed", slog.Int("visitors", len(users)))
	return nil
}

func online(lastSeen, now time.Time, timeout time.Duration) bool {
	return now.Sub(lastSeen) < timeout
}
