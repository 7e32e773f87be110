// tasks.go runs the five cooperative tasks named in spec §4.5. The apply
// task is folded into the step task's per-transition call rather than a
// separate goroutine: both must serialize through the same point (spec
// §9's "step task is the serialization point for all Session mutations"),
// so giving it its own goroutine would just require the same lock back.
package engine

import (
	"context"
	"time"

	"github.com/oiduna/loopd/internal/types"
)

const idlePoll = 5 * time.Millisecond

func (e *Engine) ensureRunning() {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()

	e.wg.Add(4)
	go func() { defer e.wg.Done(); e.stepTask(ctx) }()
	go func() { defer e.wg.Done(); e.clockTask(ctx) }()
	go func() { defer e.wg.Done(); e.noteoffTask(ctx) }()
	go func() { defer e.wg.Done(); e.heartbeatTask(ctx) }()
}

func (e *Engine) stopTasks() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
		e.wg.Wait()
	}
}

// sleepUntil blocks until target or ctx cancellation, returning false if
// cancelled first (spec §5: "aborts the next step task's pending sleep").
func sleepUntil(ctx context.Context, target time.Time) bool {
	d := time.Until(target)
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) stepTask(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		e.mu.Lock()
		playing := e.state == Playing
		anchor := e.anchor
		step := e.step
		e.mu.Unlock()
		if !playing {
			time.Sleep(idlePoll)
			continue
		}

		env := e.store.Snapshot().Environment
		dur := StepDuration(env.BPM)
		if dur <= 0 {
			time.Sleep(idlePoll)
			continue
		}

		nextStep := step + 1
		target := eventTargetTime(anchor, nextStep, dur, env.Swing, 0)
		if !sleepUntil(ctx, target) {
			return
		}

		e.mu.Lock()
		if e.state != Playing {
			e.mu.Unlock()
			continue
		}
		activeSteps := e.store.ActiveSteps()
		if activeSteps <= 0 {
			activeSteps = types.LoopSteps
		}
		wrapped := nextStep % activeSteps
		e.step = wrapped
		e.ticksProcessed++
		e.mu.Unlock()

		e.processStep(ctx, wrapped)
	}
}

func (e *Engine) clockTask(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if e.State() != Playing {
			time.Sleep(idlePoll)
			continue
		}

		due := e.clockGen.NextDue(time.Now())
		if due.IsZero() {
			time.Sleep(time.Millisecond)
			continue
		}
		if !sleepUntil(ctx, due) {
			return
		}
		e.clockGen.Advance(due)
		if e.midi != nil {
			if err := e.midi.Clock(); err != nil {
				e.recordError("midi clock", err)
			}
		}
	}
}

func (e *Engine) noteoffTask(ctx context.Context) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, p := range e.noteoff.Tick(now) {
				if e.midi == nil {
					continue
				}
				if err := e.midi.NoteOff(p.Channel, p.Note); err != nil {
					e.recordError("midi note-off", err)
				}
			}
		}
	}
}

func (e *Engine) heartbeatTask(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.publish("heartbeat", e.Metrics())
		}
	}
}

// processStep is called once per step transition: it integrates any due
// Pending Changes, then lowers and dispatches that step's events.
func (e *Engine) processStep(ctx context.Context, step int) {
	e.applyDueChanges(step)

	session := e.store.Snapshot()

	messages := e.collectAudioMessages(session, step)
	messages = e.ext.RunBeforeSend(messages, session.Environment.BPM, step)
	e.router.Dispatch(messages)

	e.dispatchMidiEvents(ctx, session, step)

	pos := PositionAt(step)
	e.publish("position", map[string]int{"step": pos.Step, "beat": pos.Beat, "bar": pos.Bar})
}

func (e *Engine) collectAudioMessages(session types.Session, step int) []types.ScheduledMessage {
	if e.store.IsBatch() {
		return e.store.MessagesAt(step)
	}
	solo, mute := audioSoloMute(session.Tracks)
	silenced := resolveSilenced(solo, mute)

	var out []types.ScheduledMessage
	for trackID, track := range session.Tracks {
		if silenced[trackID] {
			continue
		}
		seq, ok := session.Sequences[trackID]
		if !ok {
			continue
		}
		for _, ev := range seq.EventsAt(step) {
			out = append(out, lowerAudioEvent(trackID, track, ev, step))
		}
	}
	return out
}

func (e *Engine) dispatchMidiEvents(ctx context.Context, session types.Session, step int) {
	if e.store.IsBatch() || e.midi == nil {
		return
	}
	solo, mute := midiSoloMute(session.TracksMIDI)
	silenced := resolveSilenced(solo, mute)
	stepDuration := StepDuration(session.Environment.BPM)

	for trackID, track := range session.TracksMIDI {
		if silenced[trackID] {
			continue
		}
		seq, ok := session.Sequences[trackID]
		if !ok {
			continue
		}
		for _, ev := range seq.EventsAt(step) {
			note, ok := lowerMidiEvent(track, ev)
			if !ok {
				continue
			}
			gateDur := time.Duration(note.GateRatio * float64(stepDuration))
			offsetDur := time.Duration(ev.OffsetMs * float64(time.Millisecond))
			if offsetDur > 0 {
				// Positive offset_ms shifts both the NoteOn and its matching
				// NoteOff later by the same amount (spec §4.5): the onset
				// itself is delayed, not just the release.
				e.scheduleDelayedNoteOn(ctx, note, offsetDur, gateDur)
				continue
			}
			if err := e.midi.NoteOn(note.Channel, note.Note, note.Velocity); err != nil {
				e.recordError("midi note-on", err)
				continue
			}
			// Negative offsets would sound the note before step's target
			// time, which already happened — spec §4.5 has those emit
			// immediately rather than retroactively, so NoteOff is scheduled
			// from now rather than from the unreachable negative target.
			e.noteoff.Schedule(note.Channel, note.Note, time.Now().Add(gateDur))
		}
	}
}

// scheduleDelayedNoteOn fires note's NoteOn after delay elapses, then
// schedules its NoteOff gateDur after that — the pair used for a positive
// offset_ms, which must shift both scheduling times (spec §4.5). Cancelled
// if ctx ends first (engine stopped) so a pending delayed note never fires
// against a torn-down MIDI sender.
func (e *Engine) scheduleDelayedNoteOn(ctx context.Context, note midiNoteEvent, delay, gateDur time.Duration) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if !sleepUntil(ctx, time.Now().Add(delay)) {
			return
		}
		if err := e.midi.NoteOn(note.Channel, note.Note, note.Velocity); err != nil {
			e.recordError("midi note-on", err)
			return
		}
		e.noteoff.Schedule(note.Channel, note.Note, time.Now().Add(gateDur))
	}()
}

func (e *Engine) applyDueChanges(step int) {
	if e.apply == nil {
		return
	}
	due := e.apply.DueAt(step)
	if len(due) == 0 {
		return
	}

	session := e.store.Snapshot()
	prevBPM := session.Environment.BPM
	for _, c := range due {
		session = applyChange(session, *c)
		if c.Kind == types.ChangeScene {
			if name, ok := c.Payload.(string); ok {
				e.mu.Lock()
				e.currentScene = name
				e.mu.Unlock()
			}
		}
		e.apply.MarkApplied(c.ID)
	}
	e.store.Replace(session)
	e.apply.Sweep()

	if session.Environment.BPM != prevBPM {
		e.reanchorForBPMChange(step, session.Environment.BPM)
	}
}

// reanchorForBPMChange preserves current position across a BPM change
// (spec §4.5): the new anchor makes target(step) still resolve to "now".
func (e *Engine) reanchorForBPMChange(step int, newBPM float64) {
	newDur := StepDuration(newBPM)
	e.mu.Lock()
	e.anchor = reanchor(step, newDur)
	e.mu.Unlock()
	e.clockGen.SetBPM(newBPM)
}
