// Package config loads runtime configuration from the environment,
// following the getEnv(key, default) pattern used throughout the retrieval
// pack rather than introducing a flags/viper dependency the corpus never
// reaches for. godotenv optionally loads a local .env file first so
// development doesn't require exporting variables by hand.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds everything cmd/loopd needs to wire the engine, senders, and
// HTTP control plane together.
type Config struct {
	// HTTP control plane
	APIHost string
	APIPort string

	// OSC destination
	OSCHost string
	OSCPort int

	// MIDI output port name, matched substring-insensitively (see
	// internal/midisend); empty means "first available port".
	MIDIPort string

	// Observability
	SentryDSN string
	LogDebug  bool

	// SSE per-subscriber buffer size; 0 means use internal/sse's default.
	SSEBufferSize int
}

// Load reads configuration from the environment, loading a .env file first
// if present (missing .env is not an error — most deployments set real
// environment variables instead).
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		// A malformed .env is worth knowing about; a missing one is normal.
	}

	return &Config{
		APIHost:       getEnv("API_HOST", "0.0.0.0"),
		APIPort:       getEnv("API_PORT", "7070"),
		OSCHost:       getEnv("OSC_HOST", "127.0.0.1"),
		OSCPort:       getEnvInt("OSC_PORT", 57120),
		MIDIPort:      getEnv("MIDI_PORT", ""),
		SentryDSN:     getEnv("SENTRY_DSN", ""),
		LogDebug:      getEnv("LOG_DEBUG", "false") == "true",
		SSEBufferSize: getEnvInt("SSE_BUFFER_SIZE", 0),
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}
