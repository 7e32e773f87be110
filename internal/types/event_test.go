package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSequence_EventsAt(t *testing.T) {
	t.Run("index returns exactly the events at a step, in input order", func(t *testing.T) {
		events := []Event{
			{Step: 4, Velocity: 0.5, Gate: 1},
			{Step: 0, Velocity: 0.1, Gate: 1},
			{Step: 4, Velocity: 0.9, Gate: 1},
			{Step: 8, Velocity: 1.0, Gate: 1},
		}
		seq := NewEventSequence("kick", events)

		at4 := seq.EventsAt(4)
		require.Len(t, at4, 2)
		assert.Equal(t, 0.5, at4[0].Velocity)
		assert.Equal(t, 0.9, at4[1].Velocity)

		assert.Len(t, seq.EventsAt(0), 1)
		assert.Len(t, seq.EventsAt(8), 1)
	})

	t.Run("steps with no events return nil, not an empty allocated slice", func(t *testing.T) {
		seq := NewEventSequence("kick", []Event{{Step: 0, Velocity: 1, Gate: 1}})
		assert.Nil(t, seq.EventsAt(1))
	})

	t.Run("unmarshal rebuilds the step index", func(t *testing.T) {
		raw := `{"track_id":"kick","events":[{"step":3,"velocity":0.8,"gate":0.5}]}`
		var seq EventSequence
		require.NoError(t, json.Unmarshal([]byte(raw), &seq))
		assert.Len(t, seq.EventsAt(3), 1)
		assert.Equal(t, 0.8, seq.EventsAt(3)[0].Velocity)
	})
}

func TestEvent_Validate(t *testing.T) {
	cases := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{"valid", Event{Step: 0, Velocity: 1, Gate: 0.5}, false},
		{"step too high", Event{Step: 256, Velocity: 1, Gate: 0.5}, true},
		{"negative velocity", Event{Step: 0, Velocity: -0.1, Gate: 0.5}, true},
		{"zero gate", Event{Step: 0, Velocity: 1, Gate: 0}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.event.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
