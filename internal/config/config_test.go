package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	c := Load()
	assert.Equal(t, "7070", c.APIPort)
	assert.Equal(t, 57120, c.OSCPort)
	assert.False(t, c.LogDebug)
}

func TestLoad_ReadsOverrides(t *testing.T) {
	t.Setenv("API_PORT", "9090")
	t.Setenv("OSC_PORT", "9000")
	t.Setenv("LOG_DEBUG", "true")

	c := Load()
	assert.Equal(t, "9090", c.APIPort)
	assert.Equal(t, 9000, c.OSCPort)
	assert.True(t, c.LogDebug)
}

func TestGetEnvInt_FallsBackOnUnparseable(t *testing.T) {
	t.Setenv("OSC_PORT", "not-a-number")
	c := Load()
	assert.Equal(t, 57120, c.OSCPort)
}
