package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_RecognizesScheduledMessageBatch(t *testing.T) {
	payload := []byte(`{
		"bpm": 120,
		"pattern_length": 1,
		"messages": [{"destination_id": "kick", "step": 0}]
	}`)

	out, err := Decode(payload)
	require.NoError(t, err)
	require.NotNil(t, out.Batch)
	assert.Nil(t, out.Session)
	assert.Equal(t, 120.0, out.Batch.BPM)
	assert.Len(t, out.Batch.Messages, 1)
}

func TestDecode_RecognizesSession(t *testing.T) {
	payload := []byte(`{
		"environment": {"bpm": 120, "swing": 0, "default_gate": 0.5},
		"tracks": {},
		"tracks_midi": {},
		"mixer_lines": {},
		"sequences": {}
	}`)

	out, err := Decode(payload)
	require.NoError(t, err)
	require.NotNil(t, out.Session)
	assert.Nil(t, out.Batch)
	assert.Equal(t, 120.0, out.Session.Environment.BPM)
}

func TestDecode_RejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.Error(t, err)
}

func TestDecode_RejectsBatchWithZeroBPM(t *testing.T) {
	payload := []byte(`{"bpm": 0, "messages": []}`)
	_, err := Decode(payload)
	assert.Error(t, err)
}

func TestDecode_RejectsBatchMessageWithOutOfRangeStep(t *testing.T) {
	payload := []byte(`{"bpm": 120, "messages": [{"destination_id": "kick", "step": 999}]}`)
	_, err := Decode(payload)
	assert.Error(t, err)
}

func TestDecode_RejectsSessionWithDanglingSendReference(t *testing.T) {
	payload := []byte(`{
		"environment": {"bpm": 120},
		"tracks": {"kick": {"sends": [{"mixer_line_id": "missing"}]}},
		"mixer_lines": {}
	}`)
	_, err := Decode(payload)
	assert.Error(t, err)
}

func TestEncode_RoundTrips(t *testing.T) {
	payload := []byte(`{"bpm": 120, "messages": [{"destination_id": "kick", "step": 0}]}`)
	out, err := Decode(payload)
	require.NoError(t, err)

	encoded, err := Encode(out.Batch)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"destination_id":"kick"`)
}
