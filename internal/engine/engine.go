// Package engine implements the Loop Engine (spec §4.5): the central
// orchestrator owning the step cursor, playback state, and anchor clock,
// running five cooperative tasks (step, clock, note-off, apply, heartbeat).
// Scheduled Pending Changes are folded into the Session on the step task;
// apply.timing=now changes are folded in by ApplyImmediate on the caller's
// goroutine.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/oiduna/loopd/internal/apply"
	"github.com/oiduna/loopd/internal/clock"
	"github.com/oiduna/loopd/internal/extension"
	"github.com/oiduna/loopd/internal/noteoff"
	"github.com/oiduna/loopd/internal/router"
	"github.com/oiduna/loopd/internal/store"
	"github.com/oiduna/loopd/internal/types"
)

// PlaybackState is one of the three transport states (spec §4.5).
type PlaybackState int

const (
	Stopped PlaybackState = iota
	Playing
	Paused
)

func (s PlaybackState) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// MIDISender is the subset of internal/midisend.Sender the engine drives
// directly: clock/transport bytes and note messages bypass the Router
// because the engine's own step-task MIDI lowering is not a generic
// destination dispatch (spec §4.5/§6).
type MIDISender interface {
	NoteOn(channel, note, velocity uint8) error
	NoteOff(channel, note uint8) error
	CC(channel, ccNumber, value uint8) error
	PitchBend(channel uint8, value uint16) error
	Aftertouch(channel, value uint8) error
	Clock() error
	Start() error
	Stop() error
	Continue() error
	Panic()
}

// Publisher is the subset of internal/sse.Broker the engine depends on.
type Publisher interface {
	Publish(event string, payload interface{})
}

// Metrics is a point-in-time snapshot of engine health, published as the
// payload of each SSE heartbeat event.
type Metrics struct {
	TicksProcessed   int64
	ErrorsLastWindow int
	SubscriberCount  int
}

// errorBudget implements the "> K errors in T seconds -> STOPPED" fatal
// escalation rule (spec §4.5/§7).
type errorBudget struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
	limit       int
	window      time.Duration
}

func newErrorBudget(limit int, window time.Duration) *errorBudget {
	return &errorBudget{limit: limit, window: window}
}

// record logs one error and reports whether the budget has been exceeded
// within the current window.
func (b *errorBudget) record(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.Sub(b.windowStart) > b.window {
		b.windowStart = now
		b.count = 0
	}
	b.count++
	return b.count > b.limit
}

func (b *errorBudget) snapshotCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Engine wires together every component named in spec §4 and drives the
// five cooperative tasks.
type Engine struct {
	store    *store.Store
	router   *router.Router
	apply    *apply.Scheduler
	noteoff  *noteoff.Scheduler
	clockGen *clock.Generator
	ext      *extension.Pipeline
	midi     MIDISender
	pub      Publisher
	errors   *errorBudget

	mu            sync.Mutex
	state         PlaybackState
	step          int
	anchor        time.Time
	currentScene  string
	ticksProcessed int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Deps bundles the components New needs; midi and pub may be nil (a
// headless/no-MIDI or no-SSE configuration still runs, it simply skips
// those outputs).
type Deps struct {
	Store    *store.Store
	Router   *router.Router
	Apply    *apply.Scheduler
	NoteOff  *noteoff.Scheduler
	Clock    *clock.Generator
	Ext      *extension.Pipeline
	MIDI     MIDISender
	Pub      Publisher
}

// New returns a stopped Engine wired to deps. ErrorBudget defaults to the
// spec's illustrative "K errors in T seconds" rule: 20 errors in 10s.
func New(deps Deps) *Engine {
	e := &Engine{
		store:    deps.Store,
		router:   deps.Router,
		apply:    deps.Apply,
		noteoff:  deps.NoteOff,
		clockGen: deps.Clock,
		ext:      deps.Ext,
		midi:     deps.MIDI,
		pub:      deps.Pub,
		errors:   newErrorBudget(20, 10*time.Second),
		state:    Stopped,
	}
	if e.apply != nil {
		e.apply.OnQueueSizeChanged(func(nonEmpty bool) {
			if e.store != nil {
				e.store.SetHasPending(nonEmpty)
			}
		})
	}
	return e
}

// State returns the current playback state.
func (e *Engine) State() PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Position returns the current step/beat/bar.
func (e *Engine) Position() Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return PositionAt(e.step)
}

// CurrentScene returns the name of the last scene activated, or "".
func (e *Engine) CurrentScene() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentScene
}

// Metrics returns a snapshot of engine health counters.
func (e *Engine) Metrics() Metrics {
	e.mu.Lock()
	ticks := e.ticksProcessed
	e.mu.Unlock()
	m := Metrics{TicksProcessed: ticks, ErrorsLastWindow: e.errors.snapshotCount()}
	if e.pub != nil {
		if b, ok := e.pub.(interface{ SubscriberCount() int }); ok {
			m.SubscriberCount = b.SubscriberCount()
		}
	}
	return m
}

// Start transitions STOPPED->PLAYING (resetting position to 0 and taking a
// fresh anchor) or PAUSED->PLAYING (re-anchoring without resetting
// position); it is idempotent while already PLAYING (spec §4.5).
func (e *Engine) Start() {
	e.mu.Lock()
	switch e.state {
	case Playing:
		e.mu.Unlock()
		return
	case Stopped:
		e.step = 0
		e.anchor = time.Now()
	case Paused:
		e.anchor = reanchor(e.step, e.currentStepDuration())
	}
	e.state = Playing
	e.clockGen.Start(e.anchor, e.currentBPM())
	e.mu.Unlock()

	e.ensureRunning()
	if e.midi != nil {
		_ = e.midi.Start()
	}
	e.publish("status", e.buildStatusPayload())
}

// Stop transitions to STOPPED from any state: flushes all pending
// note-offs (panic), emits MIDI Stop, and resets the cursor to 0.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.state = Stopped
	e.step = 0
	e.mu.Unlock()

	e.clockGen.Stop()
	e.flushPanic()
	if e.midi != nil {
		_ = e.midi.Stop()
	}
	e.stopTasks()
	e.publish("status", e.buildStatusPayload())
}

// Pause freezes the cursor; queued note-offs are left to complete and
// clock pulses cease (spec §5).
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.state != Playing {
		e.mu.Unlock()
		return
	}
	e.state = Paused
	e.mu.Unlock()

	e.clockGen.Stop()
	e.publish("status", e.buildStatusPayload())
}

// Panic flushes all pending note-offs and sends MIDI all-notes-off/
// all-sound-off on every channel (P6: idempotent).
func (e *Engine) Panic() {
	e.flushPanic()
}

func (e *Engine) flushPanic() {
	for _, p := range e.noteoff.FlushAll() {
		if e.midi != nil {
			_ = e.midi.NoteOff(p.Channel, p.Note)
		}
	}
	if e.midi != nil {
		e.midi.Panic()
	}
}

// ApplyImmediate folds a change into the active Session right away, for
// apply.timing=now requests: those have nowhere useful to queue (the step
// task only wakes changes whose target step is reached at a future step
// boundary, and "now" by definition isn't one), so the control plane calls
// this directly instead of going through the Apply Scheduler. Store.Replace
// is a single atomic pointer swap, so this is safe to call from an HTTP
// handler goroutine without going through the step task.
func (e *Engine) ApplyImmediate(kind types.PendingChangeKind, payload interface{}) {
	session := e.store.Snapshot()
	prevBPM := session.Environment.BPM

	session = applyChange(session, types.PendingChange{Kind: kind, Payload: payload})
	if kind == types.ChangeScene {
		if name, ok := payload.(string); ok {
			e.mu.Lock()
			e.currentScene = name
			e.mu.Unlock()
		}
	}
	e.store.Replace(session)

	if session.Environment.BPM != prevBPM {
		e.mu.Lock()
		step := e.step
		e.mu.Unlock()
		e.reanchorForBPMChange(step, session.Environment.BPM)
	}
}

func (e *Engine) currentBPM() float64 {
	return e.store.Snapshot().Environment.BPM
}

func (e *Engine) currentStepDuration() time.Duration {
	return StepDuration(e.currentBPM())
}

func (e *Engine) buildStatusPayload() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos := PositionAt(e.step)
	return map[string]interface{}{
		"playing":         e.state == Playing,
		"playback_state":  e.state.String(),
		"bpm":             e.currentBPM(),
		"position":        map[string]int{"step": pos.Step, "beat": pos.Beat, "bar": pos.Bar},
		"active_tracks":   len(e.store.ActiveTrackIDs()),
		"has_pending":     e.store.HasPending(),
		"scenes":          e.store.Scenes(),
		"current_scene":   e.currentScene,
	}
}

// StatusPayload is the public accessor for internal/api's status handler.
func (e *Engine) StatusPayload() map[string]interface{} {
	return e.buildStatusPayload()
}

func (e *Engine) publish(event string, payload interface{}) {
	if e.pub != nil {
		e.pub.Publish(event, payload)
	}
}

// recordError feeds the fatal-condition escalation rule; when the budget
// is exceeded the engine force-stops itself and emits an SSE error event
// (spec §4.5/§7). Stop is triggered on its own goroutine: recordError is
// always called from inside one of the engine's own tasks, and Stop
// waits for every task to exit — calling it inline here would be a task
// waiting on its own exit.
func (e *Engine) recordError(errContext string, err error) {
	log.Printf("[ENGINE] %s: %v", errContext, err)
	if e.errors.record(time.Now()) {
		log.Printf("[ENGINE] error budget exceeded, stopping")
		sentry.CaptureException(err)
		e.publish("error", map[string]string{"reason": "error_budget_exceeded", "context": errContext})
		go e.Stop()
	}
}
