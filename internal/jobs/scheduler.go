package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type scheduledJob struct {
	job      Job
	interval time.Duration

	// running guards against overlapping executions of the same job
	running sync.Mutex
}

// Scheduler is responsible for running background jobs. It implements
// cartridge's BackgroundWorker.
type Scheduler struct {
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	isRunning bool
	jobs      []*scheduledJob
	wg        sync.WaitGroup
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Every registers job to run immediately on Start and then every interval.
// Jobs added after Start are ignored until the next Start.
func (s *Scheduler) Every(interval time.Duration, job Job) *Scheduler {
	if interval <= 0 || job == nil {
		return s
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &scheduledJob{job: job, interval: interval})
	return s
}

// executeJobSafely runs a job unless a previous run of it is still going.
func (s *Scheduler) executeJobSafely(sj *scheduledJob) {
	name := sj.job.Name()
	if !sj.running.TryLock() {
		s.logger.Debug("Skipping job execution - previous run still going", slog.String("job", name))
		return
	}
	defer sj.running.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", name),
				slog.Any("panic", r))
		}
	}()

	if err := sj.job.Run(s.ctx); err != nil && s.ctx.Err() == nil {
		s.logger.Error("Error executing job", slog.String("job", name), slog.Any("error", err))
	}
}

// Start begins all background jobs
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}

	s.logger.Info("Starting background jobs...", slog.Int("jobs", len(s.jobs)))
	s.isRunning = true

	for _, sj := range s.jobs {
		s.wg.Add(1)
		go s.loop(sj)
	}
	return nil
}

func (s *Scheduler) loop(sj *scheduledJob) {
	defer s.wg.Done()

	s.logger.Info("Starting job", slog.String("job", sj.job.Name()), slog.Duration("interval", sj.interval))
	s.executeJobSafely(sj)

	ticker := time.NewTicker(sj.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.executeJobSafely(sj)
		case <-s.ctx.Done():
			s.logger.Info("Job stopped", slog.String("job", sj.job.Name()))
			return
		}
	}
}

// Stop halts all background jobs and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.logger.Info("Stopping background jobs...")
	s.cancel()
	s.isRunning = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// RunOnce runs every registered job a single time, in registration order.
// It is used by fpctl for manual maintenance.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	jobs := append([]*scheduledJob(nil), s.jobs...)
	s.mu.Unlock()

	for _, sj := range jobs {
		if err := sj.job.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}
