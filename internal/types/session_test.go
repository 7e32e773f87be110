package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validSession() Session {
	return Session{
		Environment: Environment{BPM: 120, Swing: 0, DefaultGate: 0.8},
		Tracks: map[string]AudioTrack{
			"kick": {
				Meta:   TrackMeta{TrackID: "kick"},
				Params: AudioParams{S: "kick", Gain: 1, Pan: 0.5, Speed: 1, Begin: 0, End: 1},
				Sends:  []Send{{MixerLineID: "main", Gain: 1}},
			},
		},
		MixerLines: map[string]MixerLine{
			"main": {Name: "main", Include: []string{"kick"}},
		},
		Sequences: map[string]EventSequence{
			"kick": NewEventSequence("kick", []Event{{Step: 0, Velocity: 1, Gate: 0.5}}),
		},
	}
}

func TestSession_Validate(t *testing.T) {
	t.Run("valid session passes", func(t *testing.T) {
		assert.NoError(t, validSession().Validate())
	})

	t.Run("send to unknown mixer line fails", func(t *testing.T) {
		s := validSession()
		tr := s.Tracks["kick"]
		tr.Sends = []Send{{MixerLineID: "missing"}}
		s.Tracks["kick"] = tr
		assert.Error(t, s.Validate())
	})

	t.Run("mixer include of unknown track fails", func(t *testing.T) {
		s := validSession()
		mix := s.MixerLines["main"]
		mix.Include = []string{"ghost"}
		s.MixerLines["main"] = mix
		assert.Error(t, s.Validate())
	})

	t.Run("sequence key without a matching track fails", func(t *testing.T) {
		s := validSession()
		s.Sequences["orphan"] = NewEventSequence("orphan", nil)
		assert.Error(t, s.Validate())
	})

	t.Run("apply referencing unknown scene fails", func(t *testing.T) {
		s := validSession()
		s.Apply = &ApplyCommand{Timing: TimingBar, SceneName: "missing"}
		assert.Error(t, s.Validate())
	})

	t.Run("bad environment fails", func(t *testing.T) {
		s := validSession()
		s.Environment.BPM = 0
		assert.Error(t, s.Validate())
	})
}
