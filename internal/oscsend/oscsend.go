// Package oscsend implements the OSC Sender (spec §4.2): one UDP message
// per event, destination-agnostic (the address path and host:port are
// configured per sender, not per message — different destinations use
// different Sender instances).
package oscsend

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/hypebeast/go-osc/osc"

	"github.com/oiduna/loopd/internal/types"
)

// Config configures one OSC Sender.
type Config struct {
	Host       string
	Port       int
	Address    string // default "/dirt/play"
	BundleMode bool   // when true, a tick's messages are sent as one OSC bundle
}

// Sender sends ScheduledMessages as OSC packets over UDP. Send errors never
// stall the caller: they are counted and logged, not returned, per spec
// §4.2 ("fire-and-forget... never stall the engine").
type Sender struct {
	name    string
	client  *osc.Client
	address string
	bundle  bool

	errorCount int64
}

// New builds an OSC Sender. name identifies the sender for logging and
// Name(); it need not match the destination id.
func New(name string, cfg Config) *Sender {
	addr := cfg.Address
	if addr == "" {
		addr = "/dirt/play"
	}
	return &Sender{
		name:    name,
		client:  osc.NewClient(cfg.Host, cfg.Port),
		address: addr,
		bundle:  cfg.BundleMode,
	}
}

// Name implements router.Sender.
func (s *Sender) Name() string { return s.name }

// Close implements router.Sender; the go-osc UDP client has no persistent
// handle to release, so this is a no-op.
func (s *Sender) Close() error { return nil }

// ErrorCount returns the number of send failures observed so far.
func (s *Sender) ErrorCount() int64 { return s.errorCount }

// SendBatch emits one OSC message per ScheduledMessage, in order, to the
// configured address. When BundleMode is set the batch is sent as a single
// OSC bundle instead of individual packets.
func (s *Sender) SendBatch(messages []types.ScheduledMessage) {
	if s.bundle {
		bundle := osc.NewBundle(time.Now())
		for _, m := range messages {
			bundle.Append(s.toOSCMessage(m))
		}
		if err := s.client.Send(bundle); err != nil {
			s.errorCount++
			log.Printf("[OSC] %s: bundle send error: %v", s.name, err)
		}
		return
	}

	for _, m := range messages {
		msg := s.toOSCMessage(m)
		if err := s.client.Send(msg); err != nil {
			s.errorCount++
			log.Printf("[OSC] %s: send error to %s: %v", s.name, s.address, err)
		}
	}
}

// toOSCMessage flattens a ScheduledMessage's params to alternating
// key/value OSC arguments, with the value's OSC type tag inferred from its
// concrete Go runtime type. Keys are sorted for deterministic wire output —
// map iteration order is not stable and every other field of this system
// promises ordering guarantees (spec §5).
func (s *Sender) toOSCMessage(m types.ScheduledMessage) *osc.Message {
	msg := osc.NewMessage(s.address)

	keys := make([]string, 0, len(m.Params))
	for k := range m.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		msg.Append(k)
		msg.Append(flattenValue(m.Params[k]))
	}
	return msg
}

// flattenValue maps a Go runtime value to the OSC argument type go-osc can
// tag, with deterministic fallback to a string for anything else.
func flattenValue(v interface{}) interface{} {
	switch val := v.(type) {
	case int:
		return int32(val)
	case int32, int64, float32, float64, string, bool, nil:
		return val
	default:
		return stringify(val)
	}
}

func stringify(v interface{}) string {
	// OSC has no native array tag; a nested value is rare for this
	// parameter surface (params are flat key/value per spec §4.2) but must
	// not panic the sender if one shows up.
	if val, ok := v.([]interface{}); ok {
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = fmt.Sprintf("%v", item)
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprintf("%v", v)
}
