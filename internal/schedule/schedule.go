package schedule

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"vertbot/internal/logger"
	"vertbot/internal/trace"
	"vertbot/internal/types"
)

// Job ids registered by the bot.
const (
	JobDailyReport = "daily_market_report"
	JobDailyReset  = "daily_reset"
)

type JobFunc func(ctx context.Context) error

type Job struct {
	ID   string
	Spec string // five-field cron expression in the scheduler's timezone
	Run  JobFunc
}

// Scheduler owns a table of cron jobs and the gocron engine running them.
// Restarts always discard the engine and build a new one from the table,
// so repeated restarts never accumulate duplicate jobs.
type Scheduler struct {
	loc *time.Location
	now func() time.Time

	mu          sync.Mutex
	cron        *gocron.Scheduler
	table       map[string]Job
	order       []string
	restarts    int
	lastRestart time.Time
	lastErr     string
	overdue     time.Duration

	fireMu   sync.Mutex
	jobCtx   context.Context
	lastFire map[string]time.Time
}

func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		loc:      loc,
		now:      time.Now,
		table:    make(map[string]Job),
		lastFire: make(map[string]time.Time),
		overdue:  5 * time.Minute,
		jobCtx:   context.Background(),
	}
}

// Register adds or replaces a job by id. A running engine is rebuilt so the
// change takes effect immediately.
func (s *Scheduler) Register(job Job) error {
	if job.ID == "" || job.Spec == "" || job.Run == nil {
		return fmt.Errorf("invalid job %q", job.ID)
	}

	s.mu.Lock()
	if _, ok := s.table[job.ID]; !ok {
		s.order = append(s.order, job.ID)
	}
	s.table[job.ID] = job

	var old *gocron.Scheduler
	var err error
	if s.cron != nil && s.cron.IsRunning() {
		old, err = s.rebuildLocked()
	}
	s.mu.Unlock()

	stopEngine(old)
	return err
}

// Start builds the engine and starts it. Jobs run with ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.fireMu.Lock()
	s.jobCtx = ctx
	s.fireMu.Unlock()

	s.mu.Lock()
	if s.cron != nil && s.cron.IsRunning() {
		s.mu.Unlock()
		return nil
	}
	old, err := s.rebuildLocked()
	jobs := slices.Clone(s.order)
	s.mu.Unlock()

	stopEngine(old)
	if err != nil {
		return err
	}
	logger.Info(ctx, "Scheduler started", "jobs", jobs, "timezone", s.loc.String())
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	old := s.cron
	s.cron = nil
	s.mu.Unlock()

	stopEngine(old)
}

// ForceRestart tears down whatever engine exists and starts a fresh one with
// every job in the table. Safe to call in any state.
func (s *Scheduler) ForceRestart(ctx context.Context) error {
	s.mu.Lock()
	s.restarts++
	restarts, jobs := s.restarts, len(s.order)
	old, err := s.rebuildLocked()
	s.mu.Unlock()

	stopEngine(old)
	if err != nil {
		return err
	}
	logger.Info(ctx, "Scheduler restarted", "restarts", restarts, "jobs", jobs)
	return nil
}

// rebuildLocked swaps in a fresh engine and returns the previous one. The
// caller stops it after releasing s.mu, because gocron's Stop waits for
// running jobs and a daily report can take minutes.
func (s *Scheduler) rebuildLocked() (old *gocron.Scheduler, err error) {
	old = s.cron
	s.cron = nil

	cron := gocron.NewScheduler(s.loc)
	cron.TagsUnique()
	cron.SingletonModeAll()
	for _, id := range s.order {
		job := s.table[id]
		if _, err := cron.Cron(job.Spec).Tag(job.ID).Do(s.fire, job); err != nil {
			err = fmt.Errorf("schedule job %s: %w", job.ID, err)
			s.lastErr = err.Error()
			return old, err
		}
	}
	cron.StartAsync()

	s.cron = cron
	s.lastRestart = s.now()
	s.lastErr = ""
	return old, nil
}

func stopEngine(c *gocron.Scheduler) {
	if c != nil {
		c.Stop()
	}
}

// fire runs on a gocron goroutine. It must not take s.mu.
func (s *Scheduler) fire(job Job) {
	s.fireMu.Lock()
	s.lastFire[job.ID] = s.now()
	ctx := s.jobCtx
	s.fireMu.Unlock()

	if ctx.Err() != nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "Scheduled job panicked", "job", job.ID, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()

	ctx, span := trace.StartJob(ctx, job.ID)
	defer span.End()
	logger.Debug(ctx, "Scheduled job firing", "job", job.ID)
	if err := job.Run(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Scheduled job failed", err, "job", job.ID)
	}
}

// Healthy reports whether the engine is running with every table job
// scheduled and none overdue. reason is set when it is not.
func (s *Scheduler) Healthy() (ok bool, reason string) {
	s.mu.Lock()
	cron := s.cron
	ids := slices.Clone(s.order)
	grace := s.overdue
	s.mu.Unlock()

	if cron == nil || !cron.IsRunning() {
		return false, "engine not running"
	}

	scheduled := map[string]time.Time{}
	for _, j := range cron.Jobs() {
		for _, tag := range j.Tags() {
			scheduled[tag] = j.NextRun()
		}
	}
	now := s.now()
	for _, id := range ids {
		next, ok := scheduled[id]
		if !ok {
			return false, "job " + id + " missing"
		}
		if !next.IsZero() && next.Before(now.Add(-grace)) {
			return false, "job " + id + " overdue"
		}
	}
	if len(scheduled) != len(ids) {
		return false, fmt.Sprintf("expected %d jobs, engine has %d", len(ids), len(scheduled))
	}
	return true, ""
}

func (s *Scheduler) Health() types.SchedulerHealth {
	s.mu.Lock()
	cron := s.cron
	h := types.SchedulerHealth{
		Restarts:    s.restarts,
		LastRestart: s.lastRestart,
		LastError:   s.lastErr,
		NextRun:     map[string]time.Time{},
		LastFire:    map[string]time.Time{},
	}
	s.mu.Unlock()

	if cron != nil {
		h.Running = cron.IsRunning()
		for _, j := range cron.Jobs() {
			for _, tag := range j.Tags() {
				h.Jobs = append(h.Jobs, tag)
				h.NextRun[tag] = j.NextRun()
			}
		}
	}

	s.fireMu.Lock()
	for id, t := range s.lastFire {
		h.LastFire[id] = t
	}
	s.fireMu.Unlock()
	return h
}

// Watch checks the engine every interval and rebuilds it when unhealthy.
// A failed rebuild is logged as critical and retried on the next tick.
func (s *Scheduler) Watch(ctx context.Context, interval time.Duration) {
	logger.Info(ctx, "Scheduler watchdog started", "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Scheduler watchdog stopped")
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *Scheduler) check(ctx context.Context) {
	ok, reason := s.Healthy()
	if ok {
		logger.Debug(ctx, "Scheduler healthy")
		return
	}
	logger.Warn(ctx, "Scheduler unhealthy, restarting", "reason", reason)
	if err := s.ForceRestart(ctx); err != nil {
		logger.Critical(ctx, "Scheduler restart failed", err, "reason", reason)
	}
}
