package extension

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oiduna/loopd/internal/types"
)

func TestPipeline_RunTransform_SequentialOrder(t *testing.T) {
	p := New()
	p.RegisterTransform("uppercase-marker", func(payload []byte) ([]byte, error) {
		return append(payload, 'A'), nil
	})
	p.RegisterTransform("second-marker", func(payload []byte) ([]byte, error) {
		return append(payload, 'B'), nil
	})

	out, err := p.RunTransform([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "xAB", string(out))
}

func TestPipeline_RunTransform_ErrorNamesExtension(t *testing.T) {
	p := New()
	p.RegisterTransform("broken", func(payload []byte) ([]byte, error) {
		return nil, errors.New("boom")
	})

	_, err := p.RunTransform([]byte("x"))
	require.Error(t, err)
	var te *TransformError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "broken", te.Extension)
}

func TestPipeline_RunBeforeSend_FallsBackOnPanic(t *testing.T) {
	p := New()
	var reported string
	p.OnBeforeSendError(func(name string, err error) { reported = name })

	p.RegisterBeforeSend("flaky", func(messages []types.ScheduledMessage, bpm float64, step int) []types.ScheduledMessage {
		panic("kaboom")
	})

	input := []types.ScheduledMessage{{DestinationID: "d1", Step: 3}}
	out := p.RunBeforeSend(input, 120, 3)

	assert.Equal(t, input, out)
	assert.Equal(t, "flaky", reported)
}

func TestPipeline_RunBeforeSend_AppliesMutation(t *testing.T) {
	p := New()
	p.RegisterBeforeSend("add-orbit", func(messages []types.ScheduledMessage, bpm float64, step int) []types.ScheduledMessage {
		out := make([]types.ScheduledMessage, len(messages))
		copy(out, messages)
		for i := range out {
			if out[i].Params == nil {
				out[i].Params = map[string]interface{}{}
			}
			out[i].Params["orbit"] = 0
		}
		return out
	})

	out := p.RunBeforeSend([]types.ScheduledMessage{{DestinationID: "d1"}}, 120, 0)
	require.Len(t, out, 1)
	assert.Equal(t, 0, out[0].Params["orbit"])
}
