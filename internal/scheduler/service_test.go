package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"wbautoslot/internal/domain"
	"wbautoslot/internal/search"
	"wbautoslot/pkg/logx"
)

// scriptRunner returns a per-task scripted outcome and counts calls.
type scriptRunner struct {
	mu       sync.Mutex
	calls    map[string]int
	outcomes map[string]search.Outcome
	block    map[string]chan struct{} // if set, RunOnce blocks until closed
	panics   map[string]bool
}

func newScriptRunner() *scriptRunner {
	return &scriptRunner{
		calls:    map[string]int{},
		outcomes: map[string]search.Outcome{},
		block:    map[string]chan struct{}{},
		panics:   map[string]bool{},
	}
}

func (r *scriptRunner) RunOnce(_ context.Context, taskID string) search.Outcome {
	r.mu.Lock()
	r.calls[taskID]++
	blockCh := r.block[taskID]
	out := r.outcomes[taskID]
	doPanic := r.panics[taskID]
	r.mu.Unlock()

	if blockCh != nil {
		<-blockCh
	}
	if doPanic {
		panic("runner exploded")
	}
	return out
}

func (r *scriptRunner) callCount(taskID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[taskID]
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRegisteredTaskIsDueOnFirstTick(t *testing.T) {
	t.Parallel()
	runner := newScriptRunner()
	runner.outcomes["a"] = search.Outcome{Status: domain.TaskCompleted, Unregister: true}

	s := New(Config{TickInterval: 5 * time.Millisecond}, runner, logx.Nop())
	s.Register("a", time.Hour)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	// Interval is an hour, but lastRun is backdated so the first tick fires.
	waitFor(t, func() bool { return runner.callCount("a") == 1 }, "task never dispatched")
}

func TestTerminalOutcomeUnregisters(t *testing.T) {
	t.Parallel()
	runner := newScriptRunner()
	runner.outcomes["a"] = search.Outcome{Status: domain.TaskCompleted, SlotsFound: 2, Unregister: true}

	s := New(Config{TickInterval: 2 * time.Millisecond}, runner, logx.Nop())
	s.Register("a", time.Millisecond)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	waitFor(t, func() bool { return !s.Registered("a") }, "task not unregistered after terminal run")
	got := runner.callCount("a")
	time.Sleep(20 * time.Millisecond)
	if runner.callCount("a") != got {
		t.Fatalf("unregistered task kept running: %d -> %d calls", got, runner.callCount("a"))
	}
	snap := s.Snapshot()
	if snap.Completed == 0 {
		t.Fatal("completed counter not advanced")
	}
}

func TestAtMostOneRunInFlightPerTask(t *testing.T) {
	t.Parallel()
	runner := newScriptRunner()
	release := make(chan struct{})
	runner.block["a"] = release

	s := New(Config{TickInterval: 2 * time.Millisecond}, runner, logx.Nop())
	s.Register("a", time.Millisecond)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	waitFor(t, func() bool { return runner.callCount("a") == 1 }, "first run never dispatched")

	// Task stays due on every tick, but the in-flight run blocks re-dispatch.
	time.Sleep(30 * time.Millisecond)
	if n := runner.callCount("a"); n != 1 {
		t.Fatalf("overlapping dispatch: %d runs in flight window", n)
	}

	close(release)
	waitFor(t, func() bool { return runner.callCount("a") >= 2 }, "task not re-dispatched after run finished")
}

func TestPanicInOneTaskDoesNotStarveOthers(t *testing.T) {
	t.Parallel()
	runner := newScriptRunner()
	runner.panics["bad"] = true

	s := New(Config{TickInterval: 2 * time.Millisecond}, runner, logx.Nop())
	s.Register("bad", time.Millisecond)
	s.Register("good", time.Millisecond)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	waitFor(t, func() bool { return runner.callCount("good") >= 3 }, "healthy task starved")
	if runner.callCount("bad") == 0 {
		t.Fatal("panicking task never dispatched")
	}
	// A panic is a failed run, not a removal.
	if !s.Registered("bad") {
		t.Fatal("panicking task must stay registered for retry")
	}
	if s.Snapshot().Failed == 0 {
		t.Fatal("failed counter not advanced")
	}
}

func TestRegisterDuringFlightPreservesInFlight(t *testing.T) {
	t.Parallel()
	runner := newScriptRunner()
	release := make(chan struct{})
	runner.block["a"] = release

	s := New(Config{TickInterval: 2 * time.Millisecond}, runner, logx.Nop())
	s.Register("a", time.Millisecond)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	waitFor(t, func() bool { return runner.callCount("a") == 1 }, "first run never dispatched")

	// Interval change while the run is blocked must not reset the in-flight
	// flag; the task stays due every tick but nothing may overlap.
	s.Register("a", 2*time.Millisecond)
	if err := s.RunNow("a"); err != ErrRunInFlight {
		t.Fatalf("RunNow after re-register = %v, want ErrRunInFlight", err)
	}
	time.Sleep(30 * time.Millisecond)
	if n := runner.callCount("a"); n != 1 {
		t.Fatalf("re-register released the in-flight flag: %d runs", n)
	}

	close(release)
	waitFor(t, func() bool { return runner.callCount("a") >= 2 }, "task not re-dispatched after run finished")
}

func TestRestartDuringFlightSurvivesStaleTerminalOutcome(t *testing.T) {
	t.Parallel()
	runner := newScriptRunner()
	release := make(chan struct{})
	runner.block["a"] = release
	runner.outcomes["a"] = search.Outcome{Status: domain.TaskCompleted, Unregister: true}

	s := New(Config{TickInterval: time.Hour}, runner, logx.Nop())
	s.Register("a", time.Hour)
	if err := s.RunNow("a"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	waitFor(t, func() bool { return runner.callCount("a") == 1 }, "run never dispatched")

	// Restart while the old run is blocked: a fresh registration.
	s.Unregister("a")
	s.Register("a", time.Hour)

	close(release)
	waitFor(t, func() bool { return s.Snapshot().Completed == 1 }, "old run never finished")

	// The terminal outcome belonged to the old registration; the new one
	// must still be scheduled and runnable.
	if !s.Registered("a") {
		t.Fatal("restarted task dropped by the previous activation's outcome")
	}
	if err := s.RunNow("a"); err != nil {
		t.Fatalf("RunNow on restarted task = %v", err)
	}
	waitFor(t, func() bool { return runner.callCount("a") == 2 }, "restarted task never dispatched")
}

func TestUnregisterDuringFlightDiscardsOutcome(t *testing.T) {
	t.Parallel()
	runner := newScriptRunner()
	release := make(chan struct{})
	runner.block["a"] = release
	runner.outcomes["a"] = search.Outcome{Status: domain.TaskCompleted, Unregister: true}

	s := New(Config{TickInterval: 2 * time.Millisecond}, runner, logx.Nop())
	s.Register("a", time.Millisecond)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	waitFor(t, func() bool { return runner.callCount("a") == 1 }, "run never dispatched")
	s.Unregister("a")
	close(release)

	time.Sleep(20 * time.Millisecond)
	if s.Registered("a") {
		t.Fatal("task reappeared after unregister")
	}
}

func TestRunNow(t *testing.T) {
	t.Parallel()
	runner := newScriptRunner()
	s := New(Config{}, runner, logx.Nop())

	if err := s.RunNow("ghost"); err != ErrNotRegistered {
		t.Fatalf("RunNow(ghost) = %v, want ErrNotRegistered", err)
	}

	release := make(chan struct{})
	runner.block["a"] = release
	s.Register("a", time.Hour)

	if err := s.RunNow("a"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	waitFor(t, func() bool { return runner.callCount("a") == 1 }, "RunNow never dispatched")

	if err := s.RunNow("a"); err != ErrRunInFlight {
		t.Fatalf("second RunNow = %v, want ErrRunInFlight", err)
	}
	close(release)
}

func TestStartStopIdempotent(t *testing.T) {
	t.Parallel()
	s := New(Config{TickInterval: time.Millisecond}, newScriptRunner(), logx.Nop())

	s.Start(context.Background())
	s.Start(context.Background()) // no-op
	if !s.Snapshot().Running {
		t.Fatal("not running after Start")
	}

	s.Stop(context.Background())
	s.Stop(context.Background()) // no-op
	if s.Snapshot().Running {
		t.Fatal("still running after Stop")
	}

	// Entries survive a stop/start cycle.
	s.Register("a", time.Hour)
	s.Start(context.Background())
	defer s.Stop(context.Background())
	if !s.Registered("a") {
		t.Fatal("entry lost across restart")
	}
}
