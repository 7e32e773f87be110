package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oiduna/loopd/internal/types"
)

func TestResolveSilenced_NoSolo_MuteWins(t *testing.T) {
	solo := map[string]bool{"a": false, "b": false}
	mute := map[string]bool{"a": true, "b": false}
	got := resolveSilenced(solo, mute)
	assert.True(t, got["a"])
	assert.False(t, got["b"])
}

func TestResolveSilenced_SoloOverridesMute(t *testing.T) {
	solo := map[string]bool{"a": true, "b": false}
	mute := map[string]bool{"a": true, "b": false}
	got := resolveSilenced(solo, mute)
	assert.False(t, got["a"]) // solo'd, not silenced even though it is muted
	assert.True(t, got["b"])  // not solo'd, silenced regardless of its own mute=false
}

func TestLowerAudioEvent_BuildsExpectedParams(t *testing.T) {
	cut := 1
	track := types.AudioTrack{
		Params: types.AudioParams{
			S: "bd", N: 0, Gain: 0.8, Pan: 0.5, Speed: 1, Begin: 0, End: 1,
			Cut:         &cut,
			ExtraParams: map[string]interface{}{"room": 0.3},
		},
		Sends: []types.Send{{MixerLineID: "drums"}},
	}
	ev := types.Event{Step: 4, Velocity: 0.5, Gate: 1}

	msg := lowerAudioEvent("kick", track, ev, 4)
	assert.Equal(t, DestinationOSC, msg.DestinationID)
	assert.Equal(t, 4, msg.Step)
	assert.Equal(t, "bd", msg.Params["s"])
	assert.InDelta(t, 0.4, msg.Params["gain"], 1e-9) // 0.8 * 0.5
	assert.Equal(t, 1, msg.Params["cut"])
	assert.Equal(t, 0.3, msg.Params["room"])
	assert.Equal(t, "drums", msg.Params["mixer_line_id"])
}

func TestLowerAudioEvent_EmptySendsYieldsEmptyMixerLineID(t *testing.T) {
	track := types.AudioTrack{Params: types.AudioParams{S: "sn"}}
	msg := lowerAudioEvent("snare", track, types.Event{Gate: 1}, 0)
	assert.Equal(t, "", msg.Params["mixer_line_id"])
}

func TestLowerMidiEvent_TransposesAndScalesVelocity(t *testing.T) {
	note := 60
	track := types.MIDITrack{Channel: 2, Transpose: 12}
	ev := types.Event{Note: &note, Velocity: 1.0, Gate: 0.5}

	got, ok := lowerMidiEvent(track, ev)
	require.True(t, ok)
	assert.Equal(t, uint8(2), got.Channel)
	assert.Equal(t, uint8(72), got.Note)
	assert.Equal(t, uint8(127), got.Velocity)
	assert.Equal(t, 0.5, got.GateRatio)
}

func TestLowerMidiEvent_ClampsTransposedNoteToRange(t *testing.T) {
	note := 125
	track := types.MIDITrack{Transpose: 10}
	got, ok := lowerMidiEvent(track, types.Event{Note: &note, Gate: 1})
	require.True(t, ok)
	assert.Equal(t, uint8(127), got.Note)
}

func TestLowerMidiEvent_RestHasNoNote(t *testing.T) {
	_, ok := lowerMidiEvent(types.MIDITrack{}, types.Event{Gate: 1})
	assert.False(t, ok)
}
