package oscsend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oiduna/loopd/internal/types"
)

func TestSender_ToOSCMessage_FlattensParamsSortedByKey(t *testing.T) {
	s := New("dirt", Config{Host: "127.0.0.1", Port: 57120})

	msg := s.toOSCMessage(types.ScheduledMessage{
		DestinationID: "d1",
		Params: map[string]interface{}{
			"pan":  0.5,
			"gain": 1,
			"s":    "bd",
		},
	})

	assert.Equal(t, "/dirt/play", msg.Address)
	require.Len(t, msg.Arguments, 6)
	// sorted keys: gain, pan, s
	assert.Equal(t, "gain", msg.Arguments[0])
	assert.Equal(t, int32(1), msg.Arguments[1])
	assert.Equal(t, "pan", msg.Arguments[2])
	assert.Equal(t, 0.5, msg.Arguments[3])
	assert.Equal(t, "s", msg.Arguments[4])
	assert.Equal(t, "bd", msg.Arguments[5])
}

func TestSender_ConfiguredAddressOverridesDefault(t *testing.T) {
	s := New("dirt", Config{Host: "127.0.0.1", Port: 57120, Address: "/custom"})
	msg := s.toOSCMessage(types.ScheduledMessage{})
	assert.Equal(t, "/custom", msg.Address)
}

func TestFlattenValue(t *testing.T) {
	assert.Equal(t, int32(3), flattenValue(3))
	assert.Equal(t, float32(1.5), flattenValue(float32(1.5)))
	assert.Equal(t, "x", flattenValue("x"))
	assert.Equal(t, "1,2", flattenValue([]interface{}{1, 2}))
}
