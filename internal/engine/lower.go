// lower.go implements event -> output lowering (spec §4.5): turning Events
// read off the Message Store into either OSC ScheduledMessages or direct
// MIDI sender calls, after solo/mute resolution.
package engine

import (
	"github.com/oiduna/loopd/internal/types"
)

// DestinationOSC is the single OSC destination id this engine routes audio
// events to; one OSC Sender is registered under it at startup (host/port
// come from internal/config, a single configured destination per spec §6's
// environment variables).
const DestinationOSC = "osc"

// resolveSilenced implements solo-over-mute (spec §4.5, P5): if any entry
// in solo is true, every entry whose solo is false is silenced regardless
// of mute; otherwise entries with mute=true are silenced.
func resolveSilenced(solo, mute map[string]bool) map[string]bool {
	anySolo := false
	for _, v := range solo {
		if v {
			anySolo = true
			break
		}
	}
	silenced := make(map[string]bool, len(mute))
	for id := range mute {
		if anySolo {
			silenced[id] = !solo[id]
		} else {
			silenced[id] = mute[id]
		}
	}
	return silenced
}

// audioSoloMute extracts the solo/mute flags from a Session's audio tracks.
func audioSoloMute(tracks map[string]types.AudioTrack) (solo, mute map[string]bool) {
	solo, mute = make(map[string]bool, len(tracks)), make(map[string]bool, len(tracks))
	for id, tr := range tracks {
		solo[id] = tr.Meta.Solo
		mute[id] = tr.Meta.Mute
	}
	return
}

// midiSoloMute extracts the solo/mute flags from a Session's MIDI tracks.
func midiSoloMute(tracks map[string]types.MIDITrack) (solo, mute map[string]bool) {
	solo, mute = make(map[string]bool, len(tracks)), make(map[string]bool, len(tracks))
	for id, tr := range tracks {
		solo[id] = tr.Solo
		mute[id] = tr.Mute
	}
	return
}

// lowerAudioEvent builds the OSC params mapping for one Event on an Audio
// Track (spec §4.5): extra_params, then the fixed parameter set, then the
// routing hint. gain is scaled by the event's velocity; the core never
// injects audio-engine-specific keys (e.g. orbit/cps) — extensions add
// those in before_send.
func lowerAudioEvent(trackID string, track types.AudioTrack, ev types.Event, step int) types.ScheduledMessage {
	params := make(map[string]interface{}, len(track.Params.ExtraParams)+8)
	for k, v := range track.Params.ExtraParams {
		params[k] = v
	}

	params["s"] = track.Params.S
	params["n"] = track.Params.N
	params["gain"] = track.Params.Gain * ev.Velocity
	params["pan"] = track.Params.Pan
	params["speed"] = track.Params.Speed
	params["begin"] = track.Params.Begin
	params["end"] = track.Params.End
	if track.Params.Legato != nil {
		params["legato"] = *track.Params.Legato
	}
	if track.Params.Cut != nil {
		params["cut"] = *track.Params.Cut
	}
	params["mixer_line_id"] = firstSendTarget(track.Sends)

	return types.ScheduledMessage{
		DestinationID: DestinationOSC,
		Step:          step,
		Params:        params,
	}
}

// LowerAudioTrigger builds the ScheduledMessage for an ad-hoc
// POST /playback/trigger/osc call: the same lowering lowerAudioEvent
// applies on the hot path, for a one-off event that isn't read from a
// sequence (spec §6).
func LowerAudioTrigger(trackID string, track types.AudioTrack, velocity float64) types.ScheduledMessage {
	return lowerAudioEvent(trackID, track, types.Event{Velocity: velocity, Gate: 1}, 0)
}

// LowerMidiTrigger resolves channel/note/velocity for an ad-hoc
// POST /playback/trigger/midi call, reusing the same transpose/clamp rules
// lowerMidiEvent applies on the hot path.
func LowerMidiTrigger(track types.MIDITrack, note int, velocity float64) (channel, resolvedNote, resolvedVelocity uint8, ok bool) {
	n := note
	ev := types.Event{Note: &n, Velocity: velocity, Gate: 1}
	out, ok := lowerMidiEvent(track, ev)
	return out.Channel, out.Note, out.Velocity, ok
}

func firstSendTarget(sends []types.Send) string {
	if len(sends) == 0 {
		return ""
	}
	return sends[0].MixerLineID
}

// midiNoteEvent is the resolved outcome of lowering one Event on a MIDI
// Track: the concrete NoteOn to send now, and when to send its matching
// NoteOff (spec §4.5's NoteOn/NoteOff + offset_ms rule).
type midiNoteEvent struct {
	Channel   uint8
	Note      uint8
	Velocity  uint8
	GateRatio float64
}

// lowerMidiEvent resolves channel/note/velocity for one Event on a MIDI
// Track. note is transposed by the track's transpose field and clamped
// into [0,127]; events without a note (rests) return ok=false.
func lowerMidiEvent(track types.MIDITrack, ev types.Event) (midiNoteEvent, bool) {
	if ev.Note == nil {
		return midiNoteEvent{}, false
	}
	note := *ev.Note + track.Transpose
	if note < 0 {
		note = 0
	}
	if note > 127 {
		note = 127
	}
	velocity := int(ev.Velocity * 127)
	if velocity < 0 {
		velocity = 0
	}
	if velocity > 127 {
		velocity = 127
	}
	return midiNoteEvent{
		Channel:   uint8(track.Channel),
		Note:      uint8(note),
		Velocity:  uint8(velocity),
		GateRatio: ev.Gate,
	}, true
}
