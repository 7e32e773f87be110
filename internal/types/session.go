// Package types holds the core data model: Session and everything it owns.
// Every value here is immutable after construction — updates always produce
// a new value rather than mutating in place, so the engine's single-writer
// discipline (see internal/engine) never has to reason about partial state.
package types

import "fmt"

// LoopSteps is the fixed length of the step grid. Variable loop lengths are
// a non-goal; this constant is never varied at runtime.
const LoopSteps = 256

// Environment holds global performance settings for a Session.
type Environment struct {
	BPM         float64 `json:"bpm"`
	Swing       float64 `json:"swing"`
	DefaultGate float64 `json:"default_gate"`
	LoopSteps   int     `json:"loop_steps"`
}

// Validate checks Environment's numeric ranges.
func (e Environment) Validate() error {
	if e.BPM <= 0 {
		return fmt.Errorf("environment: bpm must be > 0, got %v", e.BPM)
	}
	if e.Swing < 0 || e.Swing > 1 {
		return fmt.Errorf("environment: swing must be in [0,1], got %v", e.Swing)
	}
	if e.DefaultGate < 0 || e.DefaultGate > 1 {
		return fmt.Errorf("environment: default_gate must be in [0,1], got %v", e.DefaultGate)
	}
	if e.LoopSteps != 0 && e.LoopSteps != LoopSteps {
		return fmt.Errorf("environment: loop_steps is constant at %d, got %d", LoopSteps, e.LoopSteps)
	}
	return nil
}

// ApplyTiming names the musical boundary at which a change takes effect.
type ApplyTiming string

const (
	TimingNow  ApplyTiming = "now"
	TimingBeat ApplyTiming = "beat"
	TimingBar  ApplyTiming = "bar"
	TimingSeq  ApplyTiming = "seq"
)

func (t ApplyTiming) Valid() bool {
	switch t {
	case TimingNow, TimingBeat, TimingBar, TimingSeq:
		return true
	}
	return false
}

// ApplyCommand controls when a loaded or patched Session takes effect.
type ApplyCommand struct {
	Timing    ApplyTiming `json:"timing"`
	TrackIDs  []string    `json:"track_ids,omitempty"`
	SceneName string      `json:"scene_name,omitempty"`
}

// Session is the top-level, immutable performance description.
type Session struct {
	Environment Environment                `json:"environment"`
	Tracks      map[string]AudioTrack      `json:"tracks"`
	TracksMIDI  map[string]MIDITrack       `json:"tracks_midi"`
	MixerLines  map[string]MixerLine       `json:"mixer_lines"`
	Sequences   map[string]EventSequence   `json:"sequences"`
	Scenes      map[string]Scene           `json:"scenes,omitempty"`
	Apply       *ApplyCommand              `json:"apply,omitempty"`
}

// Scene is a snapshot of a subset of Session fields, used for atomic
// switching. It never carries nested scenes or an apply command.
type Scene struct {
	Environment *Environment             `json:"environment,omitempty"`
	Tracks      map[string]AudioTrack    `json:"tracks,omitempty"`
	TracksMIDI  map[string]MIDITrack     `json:"tracks_midi,omitempty"`
	Sequences   map[string]EventSequence `json:"sequences,omitempty"`
	MixerLines  map[string]MixerLine     `json:"mixer_lines,omitempty"`
}

// TrackKind distinguishes audio and MIDI tracks when only the id is known.
type TrackKind int

const (
	TrackUnknown TrackKind = iota
	TrackAudio
	TrackMIDI
)

// ResolveTrackKind reports which track map, if any, holds trackID.
func (s Session) ResolveTrackKind(trackID string) TrackKind {
	if _, ok := s.Tracks[trackID]; ok {
		return TrackAudio
	}
	if _, ok := s.TracksMIDI[trackID]; ok {
		return TrackMIDI
	}
	return TrackUnknown
}

// Validate checks the cross-reference invariants from spec §3: every id
// referenced by a Send, MixerLine.Include, ApplyCommand.TrackIDs, or
// ApplyCommand.SceneName must resolve within this Session, and every
// sequence key must name a track that exists.
func (s Session) Validate() error {
	if err := s.Environment.Validate(); err != nil {
		return err
	}
	for id, tr := range s.Tracks {
		for _, send := range tr.Sends {
			if _, ok := s.MixerLines[send.MixerLineID]; !ok {
				return fmt.Errorf("track %q: send references unknown mixer line %q", id, send.MixerLineID)
			}
		}
	}
	for mixID, mix := range s.MixerLines {
		for _, trackID := range mix.Include {
			if s.ResolveTrackKind(trackID) == TrackUnknown {
				return fmt.Errorf("mixer line %q: include references unknown track %q", mixID, trackID)
			}
		}
	}
	for seqTrackID := range s.Sequences {
		if s.ResolveTrackKind(seqTrackID) == TrackUnknown {
			return fmt.Errorf("sequence %q: does not match any track in tracks or tracks_midi", seqTrackID)
		}
	}
	if s.Apply != nil {
		if !s.Apply.Timing.Valid() {
			return fmt.Errorf("apply: invalid timing %q", s.Apply.Timing)
		}
		for _, trackID := range s.Apply.TrackIDs {
			if s.ResolveTrackKind(trackID) == TrackUnknown {
				return fmt.Errorf("apply: track_ids references unknown track %q", trackID)
			}
		}
		if s.Apply.SceneName != "" {
			if _, ok := s.Scenes[s.Apply.SceneName]; !ok {
				return fmt.Errorf("apply: scene_name references unknown scene %q", s.Apply.SceneName)
			}
		}
	}
	return nil
}

// SceneNames returns the scene names in map iteration order, which is not
// stable; callers needing a stable list should sort.
func (s Session) SceneNames() []string {
	names := make([]string, 0, len(s.Scenes))
	for name := range s.Scenes {
		names = append(names, name)
	}
	return names
}
