package jobs

import (
	"context"
	"log/slog"
	"time"
)

const (
	retentionBatchSize  = 1000
	retentionBatchPause = 100 * time.Millisecond
)

// EventDeleter is the slice of the repository the retention job needs.
type EventDeleter interface {
	DeleteEventsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// RetentionJob deletes stored events older than the retention period.
type RetentionJob struct {
	repo          EventDeleter
	logger        *slog.Logger
	retentionDays int
	batchSize     int
	pause         time.Duration
	now           func() time.Time
}

func NewRetentionJob(repo EventDeleter, logger *slog.Logger, retentionDays int) *RetentionJob {
	return &RetentionJob{
		repo:          repo,
		logger:        logger,
		retentionDays: retentionDays,
		batchSize:     retentionBatchSize,
		pause:         retentionBatchPause,
		now:           time.Now,
	}
}

func (j *RetentionJob) Name() string { return "event_retention" }

// Run removes events older than the retention period. A retention of zero
// keeps everything.
func (j *RetentionJob) Run(ctx context.Context) error {
	if j.retentionDays <= 0 {
		return nil
	}
	cutoff := j.now().UTC().AddDate(0, 0, -j.retentionDays)

	j.logger.Info("Starting cleanup of old events",
		slog.Int("retention_days", j.retentionDays),
		slog.Time("cutoff_date", cutoff))

	// Delete in batches to avoid locking the database for too long
	var totalDeleted int64
	for {
		deleted, err := j.repo.DeleteEventsBefore(ctx, cutoff, j.batchSize)
		if err != nil {
			j.logger.Error("Failed to delete old events",
				slog.Any("error", err),
				slog.Int64("deleted_so_far", totalDeleted))
			return err
		}
		totalDeleted += deleted

		if deleted < int64(j.batchSize) {
			break
		}

		select {
		case <-time.After(j.pause):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if totalDeleted == 0 {
		j.logger.Debug("No old events to clean up")
		return nil
	}
	j.logger.Info("Cleaned up old events",
		slog.Int64("deleted_count", totalDeleted),
		slog.Int("retention_days", j.retentionDays))
	return nil
}
