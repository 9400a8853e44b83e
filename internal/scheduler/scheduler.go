// Package scheduler runs the named recurring sweep jobs that drive session
// retention. Each job gets exclusive execution, a bounded retry chain, and
// run statistics.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/handoff/internal/core/clock"
	"github.com/vietddude/handoff/internal/metrics"
)

var (
	// ErrJobNotFound is returned when a job name is not registered.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobActive is returned when an out-of-band run is requested while
	// the job is executing or has a retry pending.
	ErrJobActive = errors.New("job already active")

	// ErrJobDisabled is returned when starting a job whose config disables
	// it.
	ErrJobDisabled = errors.New("job disabled")
)

// JobFunc is a job body. It must honor ctx, which is cancelled when the
// scheduler shuts down.
type JobFunc func(ctx context.Context) error

// JobConfig tunes one named job.
type JobConfig struct {
	Interval   time.Duration `json:"interval"`
	Enabled    bool          `json:"enabled"`
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`
}

func (c JobConfig) validate() error {
	if c.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.New("max retries must not be negative")
	}
	if c.RetryDelay < 0 {
		return errors.New("retry delay must not be negative")
	}
	return nil
}

// JobStats accumulates per-job run statistics. A run chain (first attempt
// plus its retries) counts as a single run.
type JobStats struct {
	TotalRuns      int64         `json:"total_runs"`
	SuccessfulRuns int64         `json:"successful_runs"`
	FailedRuns     int64         `json:"failed_runs"`
	AvgDuration    time.Duration `json:"avg_duration"`
	LastRun        time.Time     `json:"last_run"`
	LastSuccess    time.Time     `json:"last_success"`
	LastFailure    time.Time     `json:"last_failure"`
}

// JobStatus is the externally visible state of one job.
type JobStatus struct {
	Name    string    `json:"name"`
	Enabled bool      `json:"enabled"`
	Started bool      `json:"started"`
	Active  bool      `json:"active"`
	Config  JobConfig `json:"config"`
	Stats   JobStats  `json:"stats"`
}

type job struct {
	name string
	body JobFunc

	cfg        JobConfig
	started    bool
	stop       chan struct{}
	active     bool
	retryArmed bool
	stats      JobStats
}

// Scheduler owns the job registry. All guards and stats are instance state
// under one mutex; nothing is process-global.
type Scheduler struct {
	log *slog.Logger
	clk clock.Clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*job
}

// NewScheduler builds an empty scheduler. StopAllJobs is terminal: it
// cancels the context handed to job bodies.
func NewScheduler(log *slog.Logger, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.System()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		log:    log,
		clk:    clk,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*job),
	}
}

// Register adds a named job. Registering a duplicate name or an invalid
// config is an error.
func (s *Scheduler) Register(name string, cfg JobConfig, body JobFunc) error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %s already registered", name)
	}
	s.jobs[name] = &job{name: name, body: body, cfg: cfg}
	return nil
}

// StartJob runs the job immediately, then on its configured interval.
// Starting an already-started job is a logged no-op; no second timer is
// created.
func (s *Scheduler) StartJob(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if !j.cfg.Enabled {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobDisabled, name)
	}
	if j.started {
		s.mu.Unlock()
		s.log.Warn("job already started", "job", name)
		return nil
	}
	j.started = true
	stop := make(chan struct{})
	j.stop = stop
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runLoop(j, stop)
	s.log.Info("job started", "job", name)
	return nil
}

func (s *Scheduler) runLoop(j *job, stop chan struct{}) {
	defer s.wg.Done()

	s.tick(j)
	for {
		s.mu.Lock()
		interval := j.cfg.Interval
		s.mu.Unlock()

		select {
		case <-stop:
			return
		case <-s.ctx.Done():
			return
		case <-s.clk.After(interval):
			s.tick(j)
		}
	}
}

// tick runs a scheduled execution unless the job is already busy, in which
// case the tick is skipped rather than queued.
func (s *Scheduler) tick(j *job) {
	s.mu.Lock()
	if j.active || j.retryArmed {
		s.mu.Unlock()
		s.log.Warn("job still active, skipping tick", "job", j.name)
		return
	}
	j.active = true
	s.mu.Unlock()

	s.execute(j, 0)
}

// execute runs the body with the active guard already held. retryCount is
// how many retries this chain has consumed.
func (s *Scheduler) execute(j *job, retryCount int) {
	metrics.JobActive.WithLabelValues(j.name).Set(1)
	start := s.clk.Now()
	err := s.runBody(j)
	duration := s.clk.Since(start)
	metrics.JobDuration.WithLabelValues(j.name).Observe(duration.Seconds())
	metrics.JobActive.WithLabelValues(j.name).Set(0)

	if err == nil {
		s.mu.Lock()
		j.active = false
		s.recordRunLocked(j, duration, true)
		s.mu.Unlock()

		if retryCount > 0 {
			s.log.Info("job recovered", "job", j.name, "retries", retryCount)
		}
		metrics.JobRuns.WithLabelValues(j.name, "success").Inc()
		return
	}

	s.mu.Lock()
	j.active = false
	if retryCount < j.cfg.MaxRetries {
		// Exactly one retry is armed; final failure recording is deferred
		// until the chain ends.
		j.retryArmed = true
		delay := j.cfg.RetryDelay
		stop := j.stop
		s.mu.Unlock()

		s.log.Warn("job failed, scheduling retry",
			"job", j.name,
			"attempt", retryCount+1,
			"delay", delay.String(),
			"error", err.Error())
		s.wg.Add(1)
		go s.retryLater(j, stop, delay, retryCount+1)
		return
	}
	s.recordRunLocked(j, duration, false)
	s.mu.Unlock()

	metrics.JobRuns.WithLabelValues(j.name, "failure").Inc()
	s.log.Error("job failed permanently", "job", j.name, "retries", retryCount, "error", err.Error())
}

func (s *Scheduler) retryLater(j *job, stop chan struct{}, delay time.Duration, attempt int) {
	defer s.wg.Done()

	select {
	case <-stop:
		s.clearRetry(j)
		return
	case <-s.ctx.Done():
		s.clearRetry(j)
		return
	case <-s.clk.After(delay):
	}

	s.mu.Lock()
	j.retryArmed = false
	j.active = true
	s.mu.Unlock()
	s.execute(j, attempt)
}

func (s *Scheduler) clearRetry(j *job) {
	s.mu.Lock()
	j.retryArmed = false
	s.mu.Unlock()
}

func (s *Scheduler) runBody(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in job %s: %v", j.name, r)
		}
	}()
	return j.body(s.ctx)
}

// recordRunLocked updates stats once per run chain. Must be called with mu
// held.
func (s *Scheduler) recordRunLocked(j *job, duration time.Duration, ok bool) {
	now := s.clk.Now()
	j.stats.TotalRuns++
	j.stats.LastRun = now
	j.stats.AvgDuration += (duration - j.stats.AvgDuration) / time.Duration(j.stats.TotalRuns)
	if ok {
		j.stats.SuccessfulRuns++
		j.stats.LastSuccess = now
	} else {
		j.stats.FailedRuns++
		j.stats.LastFailure = now
	}
}

// StopJob clears the job's timer and blocks until any in-flight execution
// or pending retry has drained, so no execution outlives the stop.
func (s *Scheduler) StopJob(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if j.started {
		close(j.stop)
		j.started = false
		j.stop = nil
	}
	s.mu.Unlock()

	for {
		s.mu.Lock()
		idle := !j.active && !j.retryArmed
		s.mu.Unlock()
		if idle {
			s.log.Info("job stopped", "job", name)
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// RunJobNow performs an out-of-band execution. It fails with ErrJobActive
// when the job is executing or a retry is pending. The body runs
// synchronously; a failure outcome lands in the job's stats, not in the
// return value.
func (s *Scheduler) RunJobNow(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if j.active || j.retryArmed {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobActive, name)
	}
	j.active = true
	s.mu.Unlock()

	s.log.Info("job triggered manually", "job", name)
	s.execute(j, 0)
	return nil
}

// StartAllJobs starts every enabled job in name order.
func (s *Scheduler) StartAllJobs() {
	s.mu.Lock()
	var enabled, disabled []string
	for name, j := range s.jobs {
		if j.cfg.Enabled {
			enabled = append(enabled, name)
		} else {
			disabled = append(disabled, name)
		}
	}
	s.mu.Unlock()

	sort.Strings(enabled)
	for _, name := range disabled {
		s.log.Info("job disabled, not starting", "job", name)
	}
	for _, name := range enabled {
		_ = s.StartJob(name)
	}
}

// StopAllJobs cancels the job context, stops every job, and waits for all
// executions and pending retries to drain. The scheduler cannot be
// restarted afterwards.
func (s *Scheduler) StopAllJobs() {
	s.cancel()

	s.mu.Lock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	s.mu.Unlock()

	sort.Strings(names)
	for _, name := range names {
		_ = s.StopJob(name)
	}
	s.wg.Wait()
	s.log.Info("all jobs stopped")
}

// Stats returns a copy of the job's statistics.
func (s *Scheduler) Stats(name string) (JobStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return JobStats{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return j.stats, nil
}

// Status returns the job's current state.
func (s *Scheduler) Status(name string) (JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return JobStatus{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.statusLocked(j), nil
}

// Statuses returns every job's state in name order.
func (s *Scheduler) Statuses() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, s.statusLocked(j))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

func (s *Scheduler) statusLocked(j *job) JobStatus {
	return JobStatus{
		Name:    j.name,
		Enabled: j.cfg.Enabled,
		Started: j.started,
		Active:  j.active || j.retryArmed,
		Config:  j.cfg,
		Stats:   j.stats,
	}
}

// UpdateJobConfig replaces a job's config. A new interval takes effect on
// the next tick; enabling or disabling does not start or stop the job.
func (s *Scheduler) UpdateJobConfig(name string, cfg JobConfig) error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	j.cfg = cfg
	return nil
}
