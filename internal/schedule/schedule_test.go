package schedule

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"
)

func noop(context.Context) error { return nil }

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := New(nil)
	for _, job := range []Job{
		{ID: JobDailyReport, Spec: "0 16 * * 1-5", Run: noop},
		{ID: JobDailyReset, Spec: "0 0 * * *", Run: noop},
	} {
		if err := s.Register(job); err != nil {
			t.Fatalf("Register %s: %v", job.ID, err)
		}
	}
	t.Cleanup(s.Stop)
	return s
}

func jobIDs(s *Scheduler) []string {
	ids := s.Health().Jobs
	sort.Strings(ids)
	return ids
}

func TestForceRestartIsIdempotent(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.ForceRestart(ctx); err != nil {
			t.Fatalf("ForceRestart %d: %v", i, err)
		}
	}

	h := s.Health()
	if !h.Running {
		t.Error("Expected scheduler running after restarts")
	}
	ids := jobIDs(s)
	if len(ids) != 2 || ids[0] != JobDailyReport || ids[1] != JobDailyReset {
		t.Errorf("Expected exactly the two named jobs, got %v", ids)
	}
	if h.Restarts != 3 {
		t.Errorf("Expected 3 restarts, got %d", h.Restarts)
	}
}

func TestForceRestartFromStopped(t *testing.T) {
	s := newTestScheduler(t)
	if err := s.ForceRestart(context.Background()); err != nil {
		t.Fatalf("ForceRestart: %v", err)
	}
	if ok, reason := s.Healthy(); !ok {
		t.Errorf("Expected healthy after restart from stopped, got %s", reason)
	}
}

func TestWatchdogRestartsDeadEngine(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}

	// Kill the engine behind the scheduler's back.
	s.mu.Lock()
	s.cron.Stop()
	s.mu.Unlock()

	if ok, _ := s.Healthy(); ok {
		t.Fatal("Expected stopped engine to be unhealthy")
	}
	s.check(ctx)

	if ok, reason := s.Healthy(); !ok {
		t.Errorf("Expected watchdog to restore the engine, got %s", reason)
	}
	if n := len(jobIDs(s)); n != 2 {
		t.Errorf("Expected 2 jobs after watchdog restart, got %d", n)
	}
	if s.Health().Restarts != 1 {
		t.Errorf("Expected one restart, got %d", s.Health().Restarts)
	}
}

func TestWatchdogLeavesHealthyEngine(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	s.check(ctx)
	if s.Health().Restarts != 0 {
		t.Error("Expected no restart for a healthy engine")
	}
}

func TestHealthAnswersWhileRestartDrainsRunningJob(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	s := New(nil)
	t.Cleanup(s.Stop)
	slow := func(context.Context) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	}
	if err := s.Register(Job{ID: JobDailyReport, Spec: "0 0 1 1 *", Run: slow}); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}

	s.mu.Lock()
	engine := s.cron
	s.mu.Unlock()
	if err := engine.RunByTag(JobDailyReport); err != nil {
		t.Fatal(err)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("Job never started")
	}

	restarted := make(chan error, 1)
	go func() { restarted <- s.ForceRestart(ctx) }()
	time.Sleep(50 * time.Millisecond)

	answered := make(chan bool, 1)
	go func() {
		ok, _ := s.Healthy()
		s.Health()
		answered <- ok
	}()
	select {
	case ok := <-answered:
		if !ok {
			t.Error("Expected the replacement engine to report healthy")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Health checks blocked while the old engine drained")
	}

	close(release)
	select {
	case err := <-restarted:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Restart never finished")
	}
}

func TestRegisterUpserts(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Register(Job{ID: JobDailyReport, Spec: "30 16 * * 1-5", Run: noop}); err != nil {
		t.Fatal(err)
	}
	if n := len(jobIDs(s)); n != 2 {
		t.Errorf("Expected replacement rather than a third job, got %d", n)
	}
}

func TestBadSpecFailsRestart(t *testing.T) {
	s := New(nil)
	t.Cleanup(s.Stop)
	if err := s.Register(Job{ID: "broken", Spec: "not a cron", Run: noop}); err != nil {
		t.Fatal(err)
	}
	if err := s.ForceRestart(context.Background()); err == nil {
		t.Fatal("Expected restart to fail on a bad cron spec")
	}
	h := s.Health()
	if h.Running || h.LastError == "" {
		t.Errorf("Expected stopped scheduler with an error, got %+v", h)
	}

	// The watchdog keeps trying and does not panic.
	s.check(context.Background())
}

func TestFireRecordsLastFire(t *testing.T) {
	s := New(nil)
	ran := false
	s.fire(Job{ID: "x", Run: func(context.Context) error { ran = true; return nil }})
	if !ran {
		t.Error("Expected job to run")
	}
	if _, ok := s.Health().LastFire["x"]; !ok {
		t.Error("Expected last fire time recorded")
	}
}

func TestFireRecoversPanic(t *testing.T) {
	s := New(nil)
	s.fire(Job{ID: "boom", Run: func(context.Context) error { panic("kaboom") }})
}
