package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oiduna/loopd/internal/apply"
	"github.com/oiduna/loopd/internal/clock"
	"github.com/oiduna/loopd/internal/extension"
	"github.com/oiduna/loopd/internal/noteoff"
	"github.com/oiduna/loopd/internal/router"
	"github.com/oiduna/loopd/internal/store"
)

type fakeMIDI struct{}

func (fakeMIDI) NoteOn(channel, note, velocity uint8) error { return nil }
func (fakeMIDI) NoteOff(channel, note uint8) error          { return nil }
func (fakeMIDI) CC(channel, ccNumber, value uint8) error    { return nil }
func (fakeMIDI) PitchBend(channel uint8, value uint16) error { return nil }
func (fakeMIDI) Aftertouch(channel, value uint8) error      { return nil }
func (fakeMIDI) Clock() error                               { return nil }
func (fakeMIDI) Start() error                                { return nil }
func (fakeMIDI) Stop() error                                 { return nil }
func (fakeMIDI) Continue() error                             { return nil }
func (fakeMIDI) Panic()                                      {}

type fakePub struct {
	events []string
}

func (f *fakePub) Publish(event string, payload interface{}) {
	f.events = append(f.events, event)
}

func newTestEngine() *Engine {
	return New(Deps{
		Store:   store.New(),
		Router:  router.New(nil),
		Apply:   apply.New(),
		NoteOff: noteoff.New(),
		Clock:   clock.New(),
		Ext:     extension.New(),
		MIDI:    fakeMIDI{},
		Pub:     &fakePub{},
	})
}

func TestEngine_Start_TransitionsToPlayingAndResetsPosition(t *testing.T) {
	e := newTestEngine()
	e.Start()
	defer e.Stop()

	assert.Equal(t, Playing, e.State())
	assert.Equal(t, Position{Step: 0, Beat: 0, Bar: 0}, e.Position())
}

func TestEngine_Start_IsIdempotentWhilePlaying(t *testing.T) {
	e := newTestEngine()
	e.Start()
	defer e.Stop()
	e.Start()
	assert.Equal(t, Playing, e.State())
}

func TestEngine_Stop_ResetsToStoppedAndZeroStep(t *testing.T) {
	e := newTestEngine()
	e.Start()
	e.Stop()
	assert.Equal(t, Stopped, e.State())
	assert.Equal(t, 0, e.Position().Step)
}

func TestEngine_Pause_FreezesStateWithoutStoppingTasks(t *testing.T) {
	e := newTestEngine()
	e.Start()
	defer e.Stop()
	e.Pause()
	assert.Equal(t, Paused, e.State())
}

func TestEngine_Pause_OnlyValidFromPlaying(t *testing.T) {
	e := newTestEngine()
	e.Pause()
	assert.Equal(t, Stopped, e.State())
}

func TestEngine_StatusPayload_ReflectsState(t *testing.T) {
	e := newTestEngine()
	status := e.StatusPayload()
	assert.Equal(t, false, status["playing"])
	assert.Equal(t, "stopped", status["playback_state"])
}

func TestEngine_Panic_FlushesNoteOffScheduler(t *testing.T) {
	e := newTestEngine()
	e.noteoff.Schedule(0, 60, time.Now().Add(time.Hour))
	require.Equal(t, 1, e.noteoff.Len())

	e.Panic()
	assert.Equal(t, 0, e.noteoff.Len())
}

func TestErrorBudget_TripsAfterLimitExceededWithinWindow(t *testing.T) {
	b := newErrorBudget(2, time.Second)
	now := time.Now()
	assert.False(t, b.record(now))
	assert.False(t, b.record(now))
	assert.True(t, b.record(now)) // third error within the window exceeds the limit of 2
}

func TestErrorBudget_ResetsAfterWindowElapses(t *testing.T) {
	b := newErrorBudget(1, 10*time.Millisecond)
	now := time.Now()
	assert.False(t, b.record(now))
	later := now.Add(20 * time.Millisecond)
	assert.False(t, b.record(later))
}
