// Package task publishes pipeline lifecycle and progress to a supervising
// observer without ever blocking the pipeline.
package task

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// State is the coarse lifecycle of a background unit of work.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// StatusCancelled is the status string published when a run is cancelled by
// the user, distinguishing cancellation from genuine failure.
const StatusCancelled = "Cancelled"

// Update is one progress notification. Progress is in [0,1].
type Update struct {
	TaskID   uuid.UUID
	Progress float64
	Status   string
	State    State
}

// Reporter receives high-frequency updates. Implementations must not block.
type Reporter interface {
	Publish(Update)
}

// Discard is a Reporter that drops everything.
type Discard struct{}

// Publish implements Reporter.
func (Discard) Publish(Update) {}

// Tracker owns one task's lifecycle and fans updates out to a Reporter.
// Publishing is fire-and-forget; a slow observer loses updates rather than
// stalling the pipeline.
type Tracker struct {
	id       uuid.UUID
	reporter Reporter

	mu    sync.Mutex
	state State

	dropped atomic.Uint64
}

// NewTracker creates a tracker in the pending state.
func NewTracker(reporter Reporter) *Tracker {
	if reporter == nil {
		reporter = Discard{}
	}
	return &Tracker{
		id:       uuid.New(),
		reporter: reporter,
		state:    StatePending,
	}
}

// ID returns the task identifier.
func (t *Tracker) ID() uuid.UUID { return t.id }

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start moves the task to running.
func (t *Tracker) Start(status string) {
	t.transition(StateRunning, 0, status)
}

// Progress publishes a running update.
func (t *Tracker) Progress(fraction float64, status string) {
	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}
	t.transition(StateRunning, fraction, status)
}

// Complete marks the task successful. Terminal; later transitions are ignored.
func (t *Tracker) Complete(status string) {
	t.transition(StateCompleted, 1, status)
}

// Fail marks the task failed with a descriptive status.
func (t *Tracker) Fail(status string) {
	t.transition(StateFailed, 0, status)
}

// Cancel marks the task failed with the cancellation status. Cancellation is
// terminal: a cancelled task cannot resume and must be restarted.
func (t *Tracker) Cancel() {
	t.transition(StateFailed, 0, StatusCancelled)
}

func (t *Tracker) transition(state State, progress float64, status string) {
	t.mu.Lock()
	if t.state == StateCompleted || t.state == StateFailed {
		t.mu.Unlock()
		return
	}
	t.state = state
	t.mu.Unlock()

	t.reporter.Publish(Update{
		TaskID:   t.id,
		Progress: progress,
		Status:   status,
		State:    state,
	})
}

// ChanReporter bridges updates onto a buffered channel, dropping when the
// consumer falls behind.
type ChanReporter struct {
	ch      chan Update
	dropped atomic.Uint64
}

// NewChanReporter creates a reporter with the given buffer depth.
func NewChanReporter(depth int) *ChanReporter {
	if depth <= 0 {
		depth = 64
	}
	return &ChanReporter{ch: make(chan Update, depth)}
}

// Publish implements Reporter.
func (r *ChanReporter) Publish(u Update) {
	select {
	case r.ch <- u:
	default:
		r.dropped.Add(1)
	}
}

// Updates returns the receive side of the reporter.
func (r *ChanReporter) Updates() <-chan Update { return r.ch }

// Dropped returns how many updates were discarded due to backpressure.
func (r *ChanReporter) Dropped() uint64 { return r.dropped.Load() }
