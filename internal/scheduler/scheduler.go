package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/finadvisor/pkg/logger"
)

// ErrJobRunning is returned when a job is triggered while a run is in flight
var ErrJobRunning = errors.New("job already running")

// Scheduler manages scheduled jobs
// ⭐ SSOT: 스케줄 관리는 이 스케줄러에서만
type Scheduler struct {
	cron    *cron.Cron
	logger  *logger.Logger
	jobs    map[string]Job
	entries map[string]cron.EntryID
	history map[string]*JobHistory
	running map[string]bool
	mu      sync.RWMutex

	// stop cancels retry waits of in-flight runs
	stop     chan struct{}
	stopOnce sync.Once

	maxRetries  int
	retryDelay  time.Duration
	jobTimeout  time.Duration
	historySize int
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithRetry overrides the retry policy (default 3 retries, 1 minute apart)
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(s *Scheduler) {
		s.maxRetries = max(maxRetries, 0)
		s.retryDelay = delay
	}
}

// WithJobTimeout bounds a single job attempt (default 2 minutes)
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.jobTimeout = d
	}
}

// WithHistorySize bounds the results kept per job
func WithHistorySize(n int) Option {
	return func(s *Scheduler) {
		s.historySize = n
	}
}

// New creates a new scheduler. Schedules use six fields (with seconds).
func New(log *logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		cron:        cron.New(cron.WithSeconds()),
		logger:      log,
		jobs:        make(map[string]Job),
		entries:     make(map[string]cron.EntryID),
		history:     make(map[string]*JobHistory),
		running:     make(map[string]bool),
		stop:        make(chan struct{}),
		maxRetries:  3,
		retryDelay:  1 * time.Minute,
		jobTimeout:  2 * time.Minute,
		historySize: DefaultHistorySize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddJob registers a job under its unique name
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobName := job.Name()
	if _, exists := s.jobs[jobName]; exists {
		return fmt.Errorf("job %s already exists", jobName)
	}

	entryID, err := s.cron.AddFunc(job.Schedule(), func() {
		if _, err := s.execute(job); errors.Is(err, ErrJobRunning) {
			s.logger.WithField("job", job.Name()).Warn("Previous run still in progress, skipping tick")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", jobName, err)
	}

	s.jobs[jobName] = job
	s.entries[jobName] = entryID
	s.history[jobName] = newJobHistory(s.historySize)

	s.logger.WithFields(map[string]interface{}{
		"job":      jobName,
		"schedule": job.Schedule(),
	}).Info("Job added to scheduler")

	return nil
}

// RemoveJob unschedules a job and drops its history
func (s *Scheduler) RemoveJob(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobName]; !exists {
		return fmt.Errorf("job %s not found", jobName)
	}

	s.cron.Remove(s.entries[jobName])
	delete(s.jobs, jobName)
	delete(s.entries, jobName)
	delete(s.history, jobName)
	s.logger.WithField("job", jobName).Info("Job removed from scheduler")

	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop stops scheduling, aborts pending retry waits and waits for running jobs
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// RunJob runs a job immediately in the background
func (s *Scheduler) RunJob(jobName string) error {
	job, err := s.lookup(jobName)
	if err != nil {
		return err
	}

	go func() {
		_, _ = s.execute(job)
	}()
	return nil
}

// RunJobSync runs a job immediately and waits for its recorded result
func (s *Scheduler) RunJobSync(jobName string) (JobResult, error) {
	job, err := s.lookup(jobName)
	if err != nil {
		return JobResult{}, err
	}
	return s.execute(job)
}

func (s *Scheduler) lookup(jobName string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobName]
	if !exists {
		return nil, fmt.Errorf("job %s not found", jobName)
	}
	return job, nil
}

// execute runs job unless a run of the same job is in flight
func (s *Scheduler) execute(job Job) (JobResult, error) {
	jobName := job.Name()

	s.mu.Lock()
	if s.running[jobName] {
		s.mu.Unlock()
		return JobResult{}, fmt.Errorf("%s: %w", jobName, ErrJobRunning)
	}
	s.running[jobName] = true
	s.mu.Unlock()

	result := s.runWithRetry(job)

	s.mu.Lock()
	delete(s.running, jobName)
	if history, exists := s.history[jobName]; exists {
		history.AddResult(result)
	}
	s.mu.Unlock()

	return result, nil
}

// runWithRetry executes a job with per-attempt timeouts and retries
func (s *Scheduler) runWithRetry(job Job) JobResult {
	jobName := job.Name()
	log := s.logger.WithField("job", jobName)
	result := JobResult{JobName: jobName, StartTime: time.Now()}

	log.Info("Job started")

	var lastErr error
attempts:
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		result.Attempts = attempt + 1

		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		lastErr = job.Run(ctx)
		cancel()
		if lastErr == nil {
			result.Success = true
			break
		}

		log.WithFields(map[string]interface{}{
			"attempt": attempt + 1,
			"error":   lastErr.Error(),
		}).Warn("Job execution failed, retrying")

		if attempt == s.maxRetries {
			break
		}
		select {
		case <-time.After(s.retryDelay):
		case <-s.stop:
			break attempts
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	if result.Success {
		log.WithFields(map[string]interface{}{
			"duration": result.Duration,
			"attempts": result.Attempts,
		}).Info("Job completed successfully")
		return result
	}

	result.Error = lastErr.Error()
	log.WithFields(map[string]interface{}{
		"duration": result.Duration,
		"attempts": result.Attempts,
		"error":    result.Error,
	}).Error("Job failed after all retries")

	return result
}

// GetJobHistory returns the history for a specific job
func (s *Scheduler) GetJobHistory(jobName string) (*JobHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, exists := s.history[jobName]
	if !exists {
		return nil, fmt.Errorf("job %s not found", jobName)
	}

	return history, nil
}

// GetAllJobs returns registered job names, sorted
func (s *Scheduler) GetAllJobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]string, 0, len(s.jobs))
	for jobName := range s.jobs {
		jobs = append(jobs, jobName)
	}
	slices.Sort(jobs)

	return jobs
}

// GetJobStats returns statistics for all jobs
func (s *Scheduler) GetJobStats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats, len(s.history))
	for jobName, history := range s.history {
		failed := len(history.GetFailedResults())
		stat := JobStats{
			JobName:      jobName,
			Schedule:     s.jobs[jobName].Schedule(),
			Running:      s.running[jobName],
			TotalRuns:    len(history.Results),
			SuccessCount: len(history.Results) - failed,
			FailureCount: failed,
			SuccessRate:  history.GetSuccessRate(),
		}

		if latest := history.GetLatestResults(1); len(latest) == 1 {
			stat.LastRun = timePtr(latest[0].StartTime)
		}
		if r, ok := history.Last(true); ok {
			stat.LastSuccess = timePtr(r.StartTime)
		}
		if r, ok := history.Last(false); ok {
			stat.LastFailure = timePtr(r.StartTime)
			stat.LastError = r.Error
		}
		if entry := s.cron.Entry(s.entries[jobName]); !entry.Next.IsZero() {
			stat.NextRun = timePtr(entry.Next)
		}

		stats[jobName] = stat
	}

	return stats
}

func timePtr(t time.Time) *time.Time { return &t }

// JobStats represents statistics for a job
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	Running      bool       `json:"running"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	SuccessRate  float64    `json:"success_rate"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
}
