// Package store owns the currently active playback state (§4.1): either a
// layered Session or a flat ScheduledMessageBatch, indexed for O(1) per-step
// retrieval, installed atomically so that readers — the engine's step task —
// never observe a partially loaded state.
package store

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/oiduna/loopd/internal/types"
)

// snapshot is the internal, fully-indexed representation installed in one
// atomic swap. Either session is populated (the layered form) or messages
// is (the flat ScheduledMessageBatch form) — see SPEC_FULL.md Module 1 on
// why both wire shapes are preserved rather than unified.
type snapshot struct {
	session       types.Session
	isBatch       bool
	messagesByStep map[int][]types.ScheduledMessage
	activeSteps   int
}

// Store is the Message Store. Zero value is not usable; use New.
type Store struct {
	ptr atomic.Pointer[snapshot]

	// hasPending is set by the Apply Scheduler to reflect whether the
	// active Session has changes awaiting their apply boundary.
	hasPending atomic.Bool

	warnMu  sync.Mutex
	warned  map[string]bool
}

// New returns an empty, ready-to-use Store.
func New() *Store {
	s := &Store{warned: make(map[string]bool)}
	s.ptr.Store(&snapshot{
		session:     emptySession(),
		activeSteps: types.LoopSteps,
	})
	return s
}

func emptySession() types.Session {
	return types.Session{
		Environment: types.Environment{BPM: 120, LoopSteps: types.LoopSteps},
		Tracks:      map[string]types.AudioTrack{},
		TracksMIDI:  map[string]types.MIDITrack{},
		MixerLines:  map[string]types.MixerLine{},
		Sequences:   map[string]types.EventSequence{},
		Scenes:      map[string]types.Scene{},
	}
}

// Load installs a fully validated Session as the current active state.
// Callers must validate before calling Load (see internal/ir); Load itself
// does not re-validate, it only builds derived indices and swaps them in.
func (st *Store) Load(session types.Session) {
	st.ptr.Store(&snapshot{
		session:     session,
		activeSteps: types.LoopSteps,
	})
	log.Printf("[STORE] loaded session: %d audio tracks, %d midi tracks, %d sequences",
		len(session.Tracks), len(session.TracksMIDI), len(session.Sequences))
}

// LoadBatch installs a ScheduledMessageBatch, indexing its flat messages by
// step for O(1) retrieval via MessagesAt.
func (st *Store) LoadBatch(batch types.ScheduledMessageBatch) {
	byStep := make(map[int][]types.ScheduledMessage, len(batch.Messages))
	for _, m := range batch.Messages {
		byStep[m.Step] = append(byStep[m.Step], m)
	}
	st.ptr.Store(&snapshot{
		session:        types.Session{Environment: types.Environment{BPM: batch.BPM, LoopSteps: types.LoopSteps}},
		isBatch:        true,
		messagesByStep: byStep,
		activeSteps:    batch.ActiveSteps(),
	})
	log.Printf("[STORE] loaded scheduled-message batch: %d messages, bpm=%v, active_steps=%d",
		len(batch.Messages), batch.BPM, batch.ActiveSteps())
}

// Snapshot returns the currently active Session for read-modify-write by
// the Apply Scheduler. Callers must not mutate map fields in place; build
// a new Session and call Load/Replace.
func (st *Store) Snapshot() types.Session {
	return st.ptr.Load().session
}

// IsBatch reports whether the active state was loaded via LoadBatch.
func (st *Store) IsBatch() bool {
	return st.ptr.Load().isBatch
}

// ActiveSteps returns the number of steps in use (LoopSteps unless a
// ScheduledMessageBatch with pattern_length < 16 cycles is active).
func (st *Store) ActiveSteps() int {
	return st.ptr.Load().activeSteps
}

// Replace atomically installs session as the new current state. It is an
// alias for Load: the result is always in Session form with LoopSteps
// active steps, so any active ScheduledMessageBatch messages are dropped.
func (st *Store) Replace(session types.Session) {
	st.Load(session)
}

// EventsAt returns the events for trackID at step, in input order, or nil
// if the track has no sequence or no events land on that step.
func (st *Store) EventsAt(trackID string, step int) []types.Event {
	snap := st.ptr.Load()
	seq, ok := snap.session.Sequences[trackID]
	if !ok {
		return nil
	}
	return seq.EventsAt(step)
}

// MessagesAt returns the flat ScheduledMessages at step, in insertion
// order, for the ScheduledMessageBatch wire form.
func (st *Store) MessagesAt(step int) []types.ScheduledMessage {
	snap := st.ptr.Load()
	return snap.messagesByStep[step]
}

// ActiveTrackIDs returns the set of track ids currently loaded (audio and
// MIDI combined).
func (st *Store) ActiveTrackIDs() map[string]struct{} {
	snap := st.ptr.Load()
	out := make(map[string]struct{}, len(snap.session.Tracks)+len(snap.session.TracksMIDI))
	for id := range snap.session.Tracks {
		out[id] = struct{}{}
	}
	for id := range snap.session.TracksMIDI {
		out[id] = struct{}{}
	}
	return out
}

// Scenes returns the sorted scene names of the active Session.
func (st *Store) Scenes() []string {
	snap := st.ptr.Load()
	names := snap.session.SceneNames()
	sort.Strings(names)
	return names
}

// HasPending reports whether the Apply Scheduler currently holds a change
// that has not yet reached its apply boundary.
func (st *Store) HasPending() bool {
	return st.hasPending.Load()
}

// SetHasPending is called by the Apply Scheduler whenever its queue becomes
// empty or non-empty.
func (st *Store) SetHasPending(v bool) {
	st.hasPending.Store(v)
}

// WarnUnknownOnce logs once per id the first time it is referenced but not
// found, mirroring the teacher's "log once per state transition" pattern
// instead of flooding on every tick.
func (st *Store) WarnUnknownOnce(kind, id string) {
	st.warnMu.Lock()
	defer st.warnMu.Unlock()
	key := kind + ":" + id
	if st.warned[key] {
		return
	}
	st.warned[key] = true
	log.Printf("[STORE] unknown %s %q referenced, skipping", kind, id)
}

// ErrTrackNotFound is returned by lookups against an id the active Session
// does not carry.
var ErrTrackNotFound = fmt.Errorf("track not found")

// RequireTrackKind resolves trackID against the active Session, wrapping
// ErrTrackNotFound with the id when it does not resolve to an audio or MIDI
// track. Callers in internal/api use errors.Is to map this to a 404.
func (st *Store) RequireTrackKind(trackID string) (types.TrackKind, error) {
	kind := st.Snapshot().ResolveTrackKind(trackID)
	if kind == types.TrackUnknown {
		return kind, fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
	}
	return kind, nil
}
