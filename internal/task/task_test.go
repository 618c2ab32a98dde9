package task

import (
	"testing"
)

type captureReporter struct {
	updates []Update
}

func (c *captureReporter) Publish(u Update) { c.updates = append(c.updates, u) }

func TestTrackerLifecycle(t *testing.T) {
	rep := &captureReporter{}
	tr := NewTracker(rep)

	if tr.State() != StatePending {
		t.Fatalf("initial state = %s, want %s", tr.State(), StatePending)
	}

	tr.Start("starting")
	tr.Progress(0.5, "processing frame 5 of 10")
	tr.Complete("done")

	if tr.State() != StateCompleted {
		t.Fatalf("state = %s, want %s", tr.State(), StateCompleted)
	}
	if len(rep.updates) != 3 {
		t.Fatalf("got %d updates, want 3", len(rep.updates))
	}
	if rep.updates[1].Progress != 0.5 {
		t.Errorf("progress = %v, want 0.5", rep.updates[1].Progress)
	}
}

func TestTerminalStateIsSticky(t *testing.T) {
	rep := &captureReporter{}
	tr := NewTracker(rep)

	tr.Start("go")
	tr.Fail("boom")

	// Later transitions after a terminal state must be ignored.
	tr.Progress(0.9, "late")
	tr.Complete("late complete")

	if tr.State() != StateFailed {
		t.Fatalf("state = %s, want %s", tr.State(), StateFailed)
	}
	if len(rep.updates) != 2 {
		t.Fatalf("got %d updates, want 2 (terminal state must stick)", len(rep.updates))
	}
}

func TestCancelIsDistinguishable(t *testing.T) {
	rep := &captureReporter{}
	tr := NewTracker(rep)

	tr.Start("go")
	tr.Cancel()

	last := rep.updates[len(rep.updates)-1]
	if last.State != StateFailed {
		t.Fatalf("state = %s, want %s", last.State, StateFailed)
	}
	if last.Status != StatusCancelled {
		t.Fatalf("status = %q, want %q", last.Status, StatusCancelled)
	}
}

func TestProgressClamped(t *testing.T) {
	rep := &captureReporter{}
	tr := NewTracker(rep)
	tr.Progress(1.7, "over")
	tr.Progress(-0.3, "under")

	if rep.updates[0].Progress != 1 {
		t.Errorf("progress = %v, want 1", rep.updates[0].Progress)
	}
	if rep.updates[1].Progress != 0 {
		t.Errorf("progress = %v, want 0", rep.updates[1].Progress)
	}
}

func TestChanReporterDropsWhenFull(t *testing.T) {
	r := NewChanReporter(1)
	r.Publish(Update{Status: "a"})
	r.Publish(Update{Status: "b"}) // buffer full, must drop without blocking

	if r.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", r.Dropped())
	}
	u := <-r.Updates()
	if u.Status != "a" {
		t.Fatalf("received %q, want %q", u.Status, "a")
	}
}
