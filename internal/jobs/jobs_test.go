package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"footprint/internal/events"
	"footprint/internal/pkg/logging"
	"footprint/internal/presence"
	"footprint/internal/store"
)

func view(ts time.Time) *events.CanonicalEvent {
	return &events.CanonicalEvent{
		ID:          ulid.Make().String(),
		Type:        events.TypeView,
		Domain:      "a.com",
		Fingerprint: "fp",
		IP:          "1.1.1.1",
		URL:         "https://a.com/",
		Data:        events.ViewData{PageURL: "https://a.com/"},
		Timestamp:   ts.UTC(),
	}
}

func TestRetentionJobDeletesInBatches(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryRepository()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.AppendEvent(ctx, view(now.AddDate(0, 0, -40).Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, repo.AppendEvent(ctx, view(now.AddDate(0, 0, -1))))

	job := NewRetentionJob(repo, logging.Discard(), 30)
	job.batchSize = 2
	job.pause = time.Millisecond
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(ctx))

	remaining, err := repo.ListEvents(ctx, store.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestRetentionJobDisabled(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryRepository()
	require.NoError(t, repo.AppendEvent(ctx, view(time.Now().AddDate(-5, 0, 0))))

	require.NoError(t, NewRetentionJob(repo, logging.Discard(), 0).Run(ctx))

	remaining, err := repo.ListEvents(ctx, store.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

type failingDeleter struct{}

func (failingDeleter) DeleteEventsBefore(context.Context, time.Time, int) (int64, error) {
	return 0, errors.New("locked")
}

func TestRetentionJobPropagatesErrors(t *testing.T) {
	assert.Error(t, NewRetentionJob(failingDeleter{}, logging.Discard(), 7).Run(context.Background()))
}

func TestPresenceSweepJob(t *testing.T) {
	ctx := context.Background()
	tracker := presence.NewMemoryTracker(time.Minute)
	now := time.Now()
	require.NoError(t, tracker.RecordActivity(ctx, "a.com", "old", now.Add(-time.Hour)))
	require.NoError(t, tracker.RecordActivity(ctx, "a.com", "new", now))

	job := NewPresenceSweepJob(tracker, logging.Discard())
	job.now = func() time.Time { return now }
	require.NoError(t, job.Run(ctx))

	fingerprints, err := tracker.OnlineFingerprints(ctx, "a.com", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, fingerprints)

	dropped, err := tracker.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, dropped)
}

type countingReloader struct{ calls atomic.Int32 }

func (r *countingReloader) Reload() error {
	r.calls.Add(1)
	return nil
}

func TestGeoLiteReloadJobReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "GeoLite2-City.mmdb")
	reloader := &countingReloader{}

	job := NewGeoLiteReloadJob(path, reloader, logging.Discard())
	require.NoError(t, job.Run(context.Background()))
	assert.Zero(t, reloader.calls.Load())

	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, int32(1), reloader.calls.Load())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, int32(1), reloader.calls.Load())

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, int32(2), reloader.calls.Load())
}

type countingJob struct {
	runs  atomic.Int32
	block chan struct{}
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
		}
	}
	return nil
}

func TestSchedulerRunsJobsUntilStopped(t *testing.T) {
	job := &countingJob{}
	s := NewScheduler(logging.Discard()).Every(10*time.Millisecond, job)

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.Eventually(t, func() bool { return job.runs.Load() >= 3 }, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	after := job.runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, job.runs.Load())
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	job := &countingJob{block: make(chan struct{})}
	s := NewScheduler(logging.Discard()).Every(5*time.Millisecond, job)

	require.NoError(t, s.Start())
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), job.runs.Load())

	close(job.block)
	s.Stop()
}

func TestSchedulerRunOnce(t *testing.T) {
	job := &countingJob{}
	s := NewScheduler(logging.Discard()).Every(time.Hour, job).Every(0, &countingJob{})

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, int32(1), job.runs.Load())
}
