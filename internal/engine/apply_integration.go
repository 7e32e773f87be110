// apply_integration.go implements the read-modify-write semantics the
// Apply Scheduler's Pending Changes fold into a Session (spec §4.6). It
// runs on the step task for scheduled changes and on the caller's
// goroutine for ApplyImmediate; either way the result is installed with a
// single Store.Replace.
package engine

import "github.com/oiduna/loopd/internal/types"

// EnvironmentPatch is the payload carried by a types.ChangeEnvironment
// PendingChange: any non-nil field overwrites the corresponding
// Environment field, the rest are left untouched.
type EnvironmentPatch struct {
	BPM         *float64
	Swing       *float64
	DefaultGate *float64
}

// TrackParamsPatch is the payload carried by a types.ChangeTrackParams
// PendingChange. Params/FX/TrackFX are shallow key-merged into the named
// tracks' opaque bags; Mute/Solo, when non-nil, overwrite the track's meta
// flags directly (spec §6's /tracks/{id}/mute and /solo endpoints reuse
// this same apply path).
type TrackParamsPatch struct {
	TrackIDs []string
	Params   map[string]interface{}
	FX       map[string]interface{}
	TrackFX  map[string]interface{}
	Mute     *bool
	Solo     *bool
}

// applyChange dispatches on change.Kind and returns the new Session. Any
// payload of the wrong shape for its declared kind is ignored rather than
// panicking — a malformed PendingChange should never take down the step
// task (spec §7's "transient errors never stall the engine" extends here).
func applyChange(session types.Session, change types.PendingChange) types.Session {
	switch change.Kind {
	case types.ChangeEnvironment:
		if patch, ok := change.Payload.(EnvironmentPatch); ok {
			session.Environment = mergeEnvironment(session.Environment, patch)
		}
	case types.ChangeTrackParams:
		if patch, ok := change.Payload.(TrackParamsPatch); ok {
			session = mergeTrackParams(session, patch)
		}
	case types.ChangeSession:
		if full, ok := change.Payload.(types.Session); ok {
			session = full
		}
	case types.ChangeScene:
		if name, ok := change.Payload.(string); ok {
			session = mergeScene(session, name)
		}
	}
	return session
}

func mergeEnvironment(env types.Environment, patch EnvironmentPatch) types.Environment {
	if patch.BPM != nil {
		env.BPM = *patch.BPM
	}
	if patch.Swing != nil {
		env.Swing = *patch.Swing
	}
	if patch.DefaultGate != nil {
		env.DefaultGate = *patch.DefaultGate
	}
	return env
}

// mergeTrackParams never mutates session.Tracks/TracksMIDI in place: those
// maps are the same map values a live Store snapshot hands out from
// Snapshot() (store.go), shared with readers (e.g. GET /tracks) and with
// the step task's own per-tick iteration. Mutating them in place would be a
// write racing those readers — including on the ApplyImmediate path, which
// runs on the calling HTTP handler's goroutine, not the step task. Each
// affected map is copied at most once per call, then only the copy is
// written, before the new Session is installed by a single Store.Replace.
func mergeTrackParams(session types.Session, patch TrackParamsPatch) types.Session {
	var audioCopied, midiCopied bool
	for _, id := range patch.TrackIDs {
		switch session.ResolveTrackKind(id) {
		case types.TrackAudio:
			if !audioCopied {
				session.Tracks = copyAudioTracks(session.Tracks)
				audioCopied = true
			}
			tr := session.Tracks[id]
			tr.Params.ExtraParams = mergeMaps(tr.Params.ExtraParams, patch.Params)
			tr.FX = types.FXBundle(mergeMaps(map[string]interface{}(tr.FX), patch.FX))
			tr.TrackFX = types.FXBundle(mergeMaps(map[string]interface{}(tr.TrackFX), patch.TrackFX))
			if patch.Mute != nil {
				tr.Meta.Mute = *patch.Mute
			}
			if patch.Solo != nil {
				tr.Meta.Solo = *patch.Solo
			}
			session.Tracks[id] = tr
		case types.TrackMIDI:
			if !midiCopied {
				session.TracksMIDI = copyMIDITracks(session.TracksMIDI)
				midiCopied = true
			}
			tr := session.TracksMIDI[id]
			if patch.Mute != nil {
				tr.Mute = *patch.Mute
			}
			if patch.Solo != nil {
				tr.Solo = *patch.Solo
			}
			session.TracksMIDI[id] = tr
		}
	}
	return session
}

func copyAudioTracks(base map[string]types.AudioTrack) map[string]types.AudioTrack {
	out := make(map[string]types.AudioTrack, len(base))
	for k, v := range base {
		out[k] = v
	}
	return out
}

func copyMIDITracks(base map[string]types.MIDITrack) map[string]types.MIDITrack {
	out := make(map[string]types.MIDITrack, len(base))
	for k, v := range base {
		out[k] = v
	}
	return out
}

func mergeMaps(base, patch map[string]interface{}) map[string]interface{} {
	if len(patch) == 0 {
		return base
	}
	out := make(map[string]interface{}, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// mergeScene implements scene activation (spec §4.6): environment is
// replaced wholesale if the scene carries one; tracks/tracks_midi/
// sequences/mixer_lines are merged by key — scene entries overwrite
// same-keyed entries, entries absent from the scene are preserved, and
// there is no deletion semantics via scenes.
func mergeScene(session types.Session, sceneName string) types.Session {
	scene, ok := session.Scenes[sceneName]
	if !ok {
		return session
	}
	if scene.Environment != nil {
		session.Environment = *scene.Environment
	}
	session.Tracks = mergeAudioTracks(session.Tracks, scene.Tracks)
	session.TracksMIDI = mergeMIDITracks(session.TracksMIDI, scene.TracksMIDI)
	session.Sequences = mergeSequences(session.Sequences, scene.Sequences)
	session.MixerLines = mergeMixerLines(session.MixerLines, scene.MixerLines)
	return session
}

func mergeAudioTracks(base, overlay map[string]types.AudioTrack) map[string]types.AudioTrack {
	if len(overlay) == 0 {
		return base
	}
	out := make(map[string]types.AudioTrack, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func mergeMIDITracks(base, overlay map[string]types.MIDITrack) map[string]types.MIDITrack {
	if len(overlay) == 0 {
		return base
	}
	out := make(map[string]types.MIDITrack, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func mergeSequences(base, overlay map[string]types.EventSequence) map[string]types.EventSequence {
	if len(overlay) == 0 {
		return base
	}
	out := make(map[string]types.EventSequence, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func mergeMixerLines(base, overlay map[string]types.MixerLine) map[string]types.MixerLine {
	if len(overlay) == 0 {
		return base
	}
	out := make(map[string]types.MixerLine, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}
