// Package pipeline drives the build → test → analyze → fix → verify state
// machine. At most one run is active process-wide; every mutation of the
// working tree is checkpointed through git so a failed repair attempt can be
// rolled back without human intervention.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lucasnoah/buildmedic/internal/artifacts"
	"github.com/lucasnoah/buildmedic/internal/checkpoint"
	"github.com/lucasnoah/buildmedic/internal/command"
	"github.com/lucasnoah/buildmedic/internal/db"
	"github.com/lucasnoah/buildmedic/internal/history"
	"github.com/lucasnoah/buildmedic/internal/oracle"
)

// ErrRunActive is returned by Start when another run holds the single-flight
// lock.
var ErrRunActive = errors.New("another run is already active")

// Orchestrator owns the run state machine. All run state lives behind its
// mutex; the "single run at a time" rule is the lock held for the run's
// lifetime, not a bare flag.
type Orchestrator struct {
	runner   command.Runner
	git      checkpoint.GitRunner
	oracle   oracle.Oracle
	ring     *history.Ring
	store    *artifacts.Store // nil disables artifact persistence
	events   *db.DB           // nil disables the event log
	progress io.Writer        // live progress output; nil = silent

	mu      sync.Mutex
	active  *Run
	broker  *Broker
	cancel  context.CancelFunc
	stopped bool // set by Stop; turns the terminal reason into "manually stopped"
}

// NewOrchestrator creates an Orchestrator. store and events may be nil.
func NewOrchestrator(runner command.Runner, git checkpoint.GitRunner, orc oracle.Oracle, ring *history.Ring, store *artifacts.Store, events *db.DB) *Orchestrator {
	if ring == nil {
		ring = history.NewRing(0)
	}
	return &Orchestrator{
		runner: runner,
		git:    git,
		oracle: orc,
		ring:   ring,
		store:  store,
		events: events,
	}
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (o *Orchestrator) SetProgress(w io.Writer) {
	o.progress = w
}

func (o *Orchestrator) logf(format string, args ...interface{}) {
	if o.progress != nil {
		fmt.Fprintf(o.progress, "  → "+format+"\n", args...)
	}
}

// Start begins a new run. It returns ErrRunActive if another run holds the
// lock; otherwise the run executes on its own goroutine and the returned Run
// is a read-only copy of its initial state.
func (o *Orchestrator) Start(cfg Config) (*Run, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("invalid run config: %w", err)
	}

	o.mu.Lock()
	if o.active != nil {
		o.mu.Unlock()
		return nil, ErrRunActive
	}

	run := &Run{
		ID:          uuid.NewString(),
		ProjectRoot: cfg.ProjectRoot,
		Stage:       StageIdle,
		StartedAt:   time.Now().UTC(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.active = run
	o.broker = NewBroker()
	o.cancel = cancel
	o.stopped = false
	o.mu.Unlock()

	go o.execute(ctx, run, cfg)
	return run.clone(), nil
}

// StartWait is the webhook-triggered variant of Start: instead of rejecting
// on conflict it retries after a fixed backoff until the lock clears or
// maxWait elapses.
func (o *Orchestrator) StartWait(cfg Config, backoff, maxWait time.Duration) (*Run, error) {
	deadline := time.Now().Add(maxWait)
	for {
		run, err := o.Start(cfg)
		if !errors.Is(err, ErrRunActive) {
			return run, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for active run to finish: %w", ErrRunActive)
		}
		time.Sleep(backoff)
	}
}

// Stop force-terminates the active run: it is marked failed with reason
// "manually stopped" and the single-flight lock is released once the run
// goroutine observes the cancellation. Idempotent: with no active run it
// reports false.
func (o *Orchestrator) Stop() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return false
	}
	o.stopped = true
	o.cancel()
	return true
}

// Active returns a copy of the active run, or nil.
func (o *Orchestrator) Active() *Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return nil
	}
	return o.active.clone()
}

// History returns the frozen run history ring.
func (o *Orchestrator) History() *history.Ring {
	return o.ring
}

// Subscribe attaches to the active run's event stream. The returned snapshot
// event carries the full current run state so late subscribers can render
// progress without scrollback; it is delivered before anything from the
// channel. With no active run the channel is already closed.
func (o *Orchestrator) Subscribe() (Event, <-chan Event, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active == nil || o.broker == nil {
		ch := make(chan Event)
		close(ch)
		return Event{Type: EventState, Payload: nil}, ch, func() {}
	}

	snapshot := Event{Type: EventState, RunID: o.active.ID, Payload: o.active.clone()}
	ch, cancel := o.broker.Subscribe(0)
	return snapshot, ch, cancel
}

// --- internals shared by the run loop ---

// publish emits an event to subscribers and mirrors it into the sqlite
// event log, best-effort.
func (o *Orchestrator) publish(run *Run, typ EventType, payload interface{}) {
	o.mu.Lock()
	broker := o.broker
	o.mu.Unlock()
	if broker != nil {
		broker.Publish(Event{Type: typ, RunID: run.ID, Payload: payload})
	}
	if o.events != nil && typ != EventLog {
		detail := ""
		if s, ok := payload.(string); ok {
			detail = s
		}
		_ = o.events.LogRunEvent(run.ID, string(typ), string(run.Stage), detail)
	}
}

// setStage advances the run's stage and emits the transition.
func (o *Orchestrator) setStage(run *Run, stage Stage) {
	o.mu.Lock()
	run.Stage = stage
	o.mu.Unlock()
	o.logf("run %s: stage %s", shortID(run.ID), stage)
	o.publish(run, EventStage, StagePayload{Stage: stage})
}

// finalize freezes the run into history, closes the broker, and releases
// the single-flight lock. The lock is released last so an observer that
// sees the orchestrator go idle also sees the run fully persisted.
func (o *Orchestrator) finalize(run *Run) {
	o.mu.Lock()
	run.EndedAt = time.Now().UTC()
	rec := history.RunRecord{
		ID:          run.ID,
		ProjectRoot: run.ProjectRoot,
		Stage:       string(run.Stage),
		Attempts:    len(run.Attempts),
		Success:     run.Success,
		Summary:     run.Summary,
		Error:       run.Error,
		StartedAt:   run.StartedAt,
		EndedAt:     run.EndedAt,
	}
	successfulFixes := 0
	for _, a := range run.Attempts {
		if a.Success {
			successfulFixes++
		}
	}
	broker := o.broker
	frozen := run.clone()
	o.mu.Unlock()

	o.ring.Add(rec, successfulFixes)
	if o.store != nil {
		_ = o.store.SaveRun(run.ID, frozen)
	}

	typ := EventComplete
	if !rec.Success {
		typ = EventType("failed")
	}
	if o.events != nil {
		_ = o.events.LogRunEvent(run.ID, string(typ), rec.Stage, rec.Summary)
	}
	if broker != nil {
		broker.Publish(Event{Type: EventComplete, RunID: run.ID, Payload: frozen})
		broker.Close()
	}

	o.mu.Lock()
	o.active = nil
	o.broker = nil
	o.cancel = nil
	o.mu.Unlock()

	o.logf("run %s: %s: %s", shortID(run.ID), rec.Stage, rec.Summary)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
