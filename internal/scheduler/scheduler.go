package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/urdash/pkg/logger"
)

var (
	// ErrAlreadyStarted is returned by Start while a previous Handle is live
	ErrAlreadyStarted = errors.New("scheduler already started")

	// ErrJobRunning is returned when a job is triggered while it is still running
	ErrJobRunning = errors.New("job already running")

	// ErrJobNotFound is returned for unknown job names
	ErrJobNotFound = errors.New("job not found")

	// ErrNotRunning is returned by Trigger when no Handle is live
	ErrNotRunning = errors.New("scheduler not running")
)

type entry struct {
	job      Job
	schedule cron.Schedule
	history  *JobHistory
	state    State
	running  sync.Mutex
}

// Scheduler manages scheduled jobs
// ⭐ SSOT: job scheduling only happens in this scheduler
type Scheduler struct {
	logger  *logger.Logger
	mu      sync.RWMutex
	entries map[string]*entry
	active  *Handle
}

// Handle controls one run of the scheduler
type Handle struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// runs started outside the cron runner (immediate and triggered)
	runs     sync.WaitGroup
	stopping bool
}

// Stop cancels in-flight sleeps and waits for every job to return,
// including triggered runs
func (h *Handle) Stop() {
	h.cancel()
	<-h.done
}

// Done is closed once the scheduler has fully stopped
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// New creates a new scheduler
func New(log *logger.Logger) *Scheduler {
	return &Scheduler{
		logger:  log.Component("scheduler"),
		entries: make(map[string]*entry),
	}
}

// AddJob registers a job. Jobs must be added before Start.
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobName := job.Name()

	if s.active != nil {
		return fmt.Errorf("cannot add job %s while scheduler is running", jobName)
	}

	if _, exists := s.entries[jobName]; exists {
		return fmt.Errorf("job %s already exists", jobName)
	}

	sched, err := ParseSchedule(job.Schedule())
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", jobName, err)
	}

	s.entries[jobName] = &entry{
		job:      job,
		schedule: sched,
		history:  &JobHistory{},
		state:    StateIdle,
	}

	s.logger.WithFields(map[string]interface{}{
		"job":      jobName,
		"schedule": job.Schedule(),
	}).Info("Job added to scheduler")

	return nil
}

// Start runs every registered job on its schedule until ctx is cancelled or
// the returned Handle is stopped. Jobs implementing Immediate run right away.
func (s *Scheduler) Start(ctx context.Context) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return nil, ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{ctx: runCtx, cancel: cancel, done: make(chan struct{})}

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(newCronLogger(s.logger)),
	)

	for _, e := range s.entries {
		c.Schedule(e.schedule, cron.FuncJob(func() {
			_ = s.runJob(runCtx, e)
		}))
		e.state = StateSleeping

		if im, ok := e.job.(Immediate); ok && im.RunOnStart() {
			h.runs.Add(1)
			go func() {
				defer h.runs.Done()
				_ = s.runJob(runCtx, e)
			}()
		}
	}

	s.active = h
	c.Start()
	s.logger.WithField("jobs", len(s.entries)).Info("Scheduler started")

	go func() {
		<-runCtx.Done()

		stopped := c.Stop()
		<-stopped.Done()

		s.mu.Lock()
		h.stopping = true
		s.mu.Unlock()
		h.runs.Wait()

		s.mu.Lock()
		s.active = nil
		for _, e := range s.entries {
			e.state = StateIdle
		}
		s.mu.Unlock()

		s.logger.Info("Scheduler stopped")
		close(h.done)
	}()

	return h, nil
}

// RunNow runs a job synchronously, outside of its schedule
func (s *Scheduler) RunNow(ctx context.Context, jobName string) error {
	s.mu.RLock()
	e, exists := s.entries[jobName]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	return s.runJob(ctx, e)
}

// Trigger starts a job in the background on the live Handle. Stop waits for
// the run to finish.
func (s *Scheduler) Trigger(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[jobName]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	h := s.active
	if h == nil || h.stopping {
		return ErrNotRunning
	}

	if !e.running.TryLock() {
		return fmt.Errorf("%w: %s", ErrJobRunning, jobName)
	}

	h.runs.Add(1)
	go func() {
		defer h.runs.Done()
		defer e.running.Unlock()
		_ = s.runLocked(h.ctx, e)
	}()

	return nil
}

// runJob executes one run of a job. A job never overlaps itself; a panic is
// recovered and recorded as a failure.
func (s *Scheduler) runJob(ctx context.Context, e *entry) error {
	jobName := e.job.Name()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if !e.running.TryLock() {
		s.logger.WithField("job", jobName).Warn("Job still running, skipping")
		return fmt.Errorf("%w: %s", ErrJobRunning, jobName)
	}
	defer e.running.Unlock()

	return s.runLocked(ctx, e)
}

// runLocked runs a job whose running lock is already held
func (s *Scheduler) runLocked(ctx context.Context, e *entry) error {
	jobName := e.job.Name()

	startTime := time.Now()
	s.logger.WithField("job", jobName).Info("Job started")

	err := s.execute(ctx, e)

	endTime := time.Now()
	duration := endTime.Sub(startTime)

	s.mu.Lock()
	if s.active != nil {
		e.state = StateSleeping
	} else {
		e.state = StateIdle
	}
	s.mu.Unlock()

	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		s.logger.WithField("job", jobName).Info("Job cancelled")
		return err
	}

	result := JobResult{
		JobName:   jobName,
		StartTime: startTime,
		EndTime:   endTime,
		Duration:  duration,
		Success:   err == nil,
	}
	if err != nil {
		result.Error = err.Error()
	}

	s.mu.Lock()
	e.history.AddResult(result)
	s.mu.Unlock()

	if err != nil {
		s.logger.WithFields(map[string]interface{}{
			"job":      jobName,
			"duration": duration,
			"error":    err.Error(),
		}).Error("Job failed")
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"job":      jobName,
		"duration": duration,
	}).Info("Job completed successfully")

	return nil
}

func (s *Scheduler) execute(ctx context.Context, e *entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", e.job.Name(), r)
		}
	}()

	report := func(st State) {
		s.mu.Lock()
		e.state = st
		s.mu.Unlock()
	}

	return e.job.Run(ctx, report)
}

// State returns the current state of a job
func (s *Scheduler) State(jobName string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entries[jobName]
	if !exists {
		return StateIdle, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	return e.state, nil
}

// GetJobHistory returns a copy of the history for a specific job
func (s *Scheduler) GetJobHistory(jobName string) (*JobHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entries[jobName]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	return &JobHistory{Results: append([]JobResult(nil), e.history.Results...)}, nil
}

// GetAllJobs returns all registered job names, sorted
func (s *Scheduler) GetAllJobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]string, 0, len(s.entries))
	for jobName := range s.entries {
		jobs = append(jobs, jobName)
	}
	sort.Strings(jobs)

	return jobs
}

// GetJobStats returns statistics for all jobs
func (s *Scheduler) GetJobStats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	stats := make(map[string]JobStats, len(s.entries))

	for jobName, e := range s.entries {
		history := e.history
		latestResults := history.GetLatestResults(1)
		failedResults := history.GetFailedResults()

		var lastRun, lastSuccess, lastFailure *time.Time
		for i := len(history.Results) - 1; i >= 0; i-- {
			r := history.Results[i]
			if r.Success && lastSuccess == nil {
				t := r.StartTime
				lastSuccess = &t
			}
			if !r.Success && lastFailure == nil {
				t := r.StartTime
				lastFailure = &t
			}
		}
		if len(latestResults) > 0 {
			t := latestResults[0].StartTime
			lastRun = &t
		}

		next := e.schedule.Next(now)

		stats[jobName] = JobStats{
			JobName:      jobName,
			Schedule:     e.job.Schedule(),
			State:        e.state,
			TotalRuns:    len(history.Results),
			SuccessCount: len(history.Results) - len(failedResults),
			FailureCount: len(failedResults),
			SuccessRate:  history.GetSuccessRate(),
			LastRun:      lastRun,
			LastSuccess:  lastSuccess,
			LastFailure:  lastFailure,
			NextRun:      &next,
		}
	}

	return stats
}

// JobStats represents statistics for a job
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	State        State      `json:"state"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	SuccessRate  float64    `json:"success_rate"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
}

// cronLogger routes robfig/cron's internal logging through our logger
type cronLogger struct {
	log *logger.Logger
}

func newCronLogger(log *logger.Logger) cron.Logger {
	return cronLogger{log: log}
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func kvFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
