package noteoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_Tick_OnlyDueEntries(t *testing.T) {
	s := New()
	base := time.Now()
	s.Schedule(0, 60, base.Add(10*time.Millisecond))
	s.Schedule(0, 61, base.Add(20*time.Millisecond))

	due := s.Tick(base.Add(15 * time.Millisecond))
	require.Len(t, due, 1)
	assert.Equal(t, uint8(60), due[0].Note)
	assert.Equal(t, 1, s.Len())

	due = s.Tick(base.Add(25 * time.Millisecond))
	require.Len(t, due, 1)
	assert.Equal(t, uint8(61), due[0].Note)
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_Tick_EqualTimestampsPopInInsertionOrder(t *testing.T) {
	s := New()
	at := time.Now()
	s.Schedule(0, 10, at)
	s.Schedule(0, 11, at)
	s.Schedule(0, 12, at)

	due := s.Tick(at)
	require.Len(t, due, 3)
	assert.Equal(t, []uint8{10, 11, 12}, []uint8{due[0].Note, due[1].Note, due[2].Note})
}

func TestScheduler_FlushAll(t *testing.T) {
	s := New()
	far := time.Now().Add(time.Hour)
	s.Schedule(0, 1, far)
	s.Schedule(1, 2, far)

	all := s.FlushAll()
	assert.Len(t, all, 2)
	assert.Equal(t, 0, s.Len())
}
