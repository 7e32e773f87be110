package types

// TrackMeta holds the small identity/mute/solo fields shared by an Audio
// Track's header.
type TrackMeta struct {
	TrackID string `json:"track_id"`
	Mute    bool   `json:"mute"`
	Solo    bool   `json:"solo"`
}

// AudioParams are the per-track sound parameters sent on to the audio
// engine. Core never interprets extra_params; it is passed through opaquely.
type AudioParams struct {
	S           string                 `json:"s"`
	N           int                    `json:"n"`
	Gain        float64                `json:"gain"`
	Pan         float64                `json:"pan"`
	Speed       float64                `json:"speed"`
	Begin       float64                `json:"begin"`
	End         float64                `json:"end"`
	Cut         *int                   `json:"cut,omitempty"`
	Legato      *bool                  `json:"legato,omitempty"`
	ExtraParams map[string]interface{} `json:"extra_params,omitempty"`
}

// Send routes a slice of a track's signal to a mixer line.
type Send struct {
	MixerLineID string  `json:"mixer_line_id"`
	Gain        float64 `json:"gain"`
	Pan         float64 `json:"pan"`
}

// Modulation describes a time-varying parameter; the core carries it
// opaquely and does not resolve it — modulation resolution belongs to the
// DSL/compiler layer that produced the session (spec §1, out of scope).
type Modulation struct {
	Type   string                 `json:"type"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// FXBundle is an opaque bag of effect parameters. The core never interprets
// these fields; they round-trip unchanged through load/save.
type FXBundle map[string]interface{}

// AudioTrack is a fully resolved audio (SuperDirt-style) track.
type AudioTrack struct {
	Meta         TrackMeta             `json:"meta"`
	Params       AudioParams           `json:"params"`
	Sends        []Send                `json:"sends,omitempty"`
	Modulations  map[string]Modulation `json:"modulations,omitempty"`
	FX           FXBundle              `json:"fx,omitempty"`
	TrackFX      FXBundle              `json:"track_fx,omitempty"`
}

// MIDITrack is a fully resolved MIDI track.
type MIDITrack struct {
	TrackID          string                `json:"track_id"`
	Channel          int                   `json:"channel"`
	Velocity         int                   `json:"velocity"`
	Transpose        int                   `json:"transpose"`
	Mute             bool                  `json:"mute"`
	Solo             bool                  `json:"solo"`
	CCModulations    map[string]Modulation `json:"cc_modulations,omitempty"`
	ExpressionMods   map[string]Modulation `json:"expression_modulations,omitempty"`
}

// DynamicsParams are opaque limiter/compressor settings on a mixer line.
type DynamicsParams map[string]interface{}

// MixerLine aggregates a set of tracks behind a shared volume/pan/output.
type MixerLine struct {
	Name     string         `json:"name"`
	Include  []string       `json:"include"`
	Volume   float64        `json:"volume"`
	Pan      float64        `json:"pan"`
	Mute     bool           `json:"mute"`
	Solo     bool           `json:"solo"`
	Output   int            `json:"output"`
	Dynamics DynamicsParams `json:"dynamics,omitempty"`
	FX       FXBundle       `json:"fx,omitempty"`
}
