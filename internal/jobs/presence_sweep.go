package jobs

import (
	"context"
	"log/slog"
	"time"

	"footprint/internal/presence"
)

// PresenceSweepJob drops expired presence entries so tracker memory stays
// bounded by the number of recently active visitors.
type PresenceSweepJob struct {
	tracker presence.Tracker
	logger  *slog.Logger
	now     func() time.Time
}

func NewPresenceSweepJob(tracker presence.Tracker, logger *slog.Logger) *PresenceSweepJob {
	return &PresenceSweepJob{tracker: tracker, logger: logger, now: time.Now}
}

func (j *PresenceSweepJob) Name() string { return "presence_sweep" }

func (j *PresenceSweepJob) Run(ctx context.Context) error {
	dropped, err := j.tracker.Sweep(ctx, j.now())
	if err != nil {
		return err
	}
	if dropped > 0 {
		j.logger.Debug("Swept expired presence entries", slog.Int("dropped", dropped))
	}
	return nil
}
