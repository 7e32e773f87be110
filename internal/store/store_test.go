package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oiduna/loopd/internal/types"
)

func TestStore_EventsAt(t *testing.T) {
	st := New()
	session := types.Session{
		Environment: types.Environment{BPM: 120},
		Tracks: map[string]types.AudioTrack{
			"kick": {Meta: types.TrackMeta{TrackID: "kick"}},
		},
		Sequences: map[string]types.EventSequence{
			"kick": types.NewEventSequence("kick", []types.Event{
				{Step: 0, Velocity: 1, Gate: 0.5},
				{Step: 4, Velocity: 0.5, Gate: 0.5},
			}),
		},
	}
	st.Load(session)

	require.Len(t, st.EventsAt("kick", 0), 1)
	require.Len(t, st.EventsAt("kick", 4), 1)
	assert.Nil(t, st.EventsAt("kick", 1))
	assert.Nil(t, st.EventsAt("missing", 0))
}

func TestStore_LoadBatch(t *testing.T) {
	st := New()
	batch := types.ScheduledMessageBatch{
		BPM:           128,
		PatternLength: 1,
		Messages: []types.ScheduledMessage{
			{DestinationID: "d1", Step: 0, Params: map[string]interface{}{"s": "bd"}},
			{DestinationID: "d1", Step: 0, Params: map[string]interface{}{"s": "sn"}},
		},
	}
	st.LoadBatch(batch)

	assert.True(t, st.IsBatch())
	assert.Equal(t, 16, st.ActiveSteps())
	msgs := st.MessagesAt(0)
	require.Len(t, msgs, 2)
	assert.Equal(t, "bd", msgs[0].Params["s"])
	assert.Equal(t, "sn", msgs[1].Params["s"])
}

func TestStore_Load_NoPartialReads(t *testing.T) {
	st := New()
	session1 := types.Session{Environment: types.Environment{BPM: 100}, Sequences: map[string]types.EventSequence{}}
	session2 := types.Session{Environment: types.Environment{BPM: 140}, Sequences: map[string]types.EventSequence{}}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); st.Load(session1) }()
	go func() { defer wg.Done(); st.Load(session2) }()
	wg.Wait()

	bpm := st.Snapshot().Environment.BPM
	assert.True(t, bpm == 100 || bpm == 140)
}

func TestStore_HasPending(t *testing.T) {
	st := New()
	assert.False(t, st.HasPending())
	st.SetHasPending(true)
	assert.True(t, st.HasPending())
}
