// Package ir implements the IR Deserializer (spec §4.11): it turns a raw
// session-load payload into either a types.Session or a
// types.ScheduledMessageBatch, deciding which wire shape was sent by
// structural probe rather than a version tag, since the spec's Open
// Question on unifying the two shapes was resolved by keeping both (see
// DESIGN.md and internal/store).
package ir

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/oiduna/loopd/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Decoded is the result of Decode: exactly one of Session or Batch is set.
type Decoded struct {
	Session *types.Session
	Batch   *types.ScheduledMessageBatch
}

// probe is decoded first to tell the two wire shapes apart without fully
// committing to either: ScheduledMessageBatch always carries a top-level
// "messages" array, Session never does.
type probe struct {
	Messages *[]interface{} `json:"messages"`
}

// Decode parses payload, discriminates its wire shape, and validates it.
// It returns an error naming the first validation failure (spec §3), never
// a partially valid result.
func Decode(payload []byte) (Decoded, error) {
	var p probe
	if err := json.Unmarshal(payload, &p); err != nil {
		return Decoded{}, fmt.Errorf("ir: malformed payload: %w", err)
	}

	if p.Messages != nil {
		var batch types.ScheduledMessageBatch
		if err := json.Unmarshal(payload, &batch); err != nil {
			return Decoded{}, fmt.Errorf("ir: malformed scheduled-message batch: %w", err)
		}
		if err := validateBatch(batch); err != nil {
			return Decoded{}, err
		}
		return Decoded{Batch: &batch}, nil
	}

	var session types.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return Decoded{}, fmt.Errorf("ir: malformed session: %w", err)
	}
	if err := session.Validate(); err != nil {
		return Decoded{}, fmt.Errorf("ir: %w", err)
	}
	return Decoded{Session: &session}, nil
}

func validateBatch(b types.ScheduledMessageBatch) error {
	if b.BPM <= 0 {
		return fmt.Errorf("ir: batch bpm must be > 0, got %v", b.BPM)
	}
	for i, m := range b.Messages {
		if m.DestinationID == "" {
			return fmt.Errorf("ir: batch message %d: destination_id is required", i)
		}
		if m.Step < 0 || m.Step >= types.LoopSteps {
			return fmt.Errorf("ir: batch message %d: step %d out of range [0,%d)", i, m.Step, types.LoopSteps)
		}
	}
	if b.Apply != nil && !b.Apply.Timing.Valid() {
		return fmt.Errorf("ir: batch apply: invalid timing %q", b.Apply.Timing)
	}
	return nil
}

// Encode serializes v (a Session, ScheduledMessageBatch, or any other
// response payload) using the same jsoniter configuration as Decode, for
// symmetry across the control plane's wire boundary.
func Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
