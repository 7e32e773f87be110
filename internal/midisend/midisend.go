// Package midisend implements the MIDI Sender (spec §4.2): one open output
// port, note/CC/pitch-bend/aftertouch messages, the system real-time
// transport bytes, and panic. Adapted from the teacher's
// internal/midiconnector, generalized from a single hard-coded channel
// device to the full channel-message surface spec §6 requires.
package midisend

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/oiduna/loopd/internal/types"
)

// Sender owns exactly one open MIDI output port. Selecting a new port
// closes the prior one before opening the new one (P7).
type Sender struct {
	mu   sync.Mutex
	port string
	out  drivers.Out

	// available degrades to false on open/send failure; events targeting
	// MIDI destinations are dropped while unavailable, with a single
	// warning per state transition (spec §4.2/§7).
	available     bool
	warnedOffline bool

	notesOn map[uint16]struct{} // (channel<<8 | note) -> on, for Panic/Close note tracking
}

// New constructs a Sender with no port selected. Call SelectPort before
// sending.
func New() *Sender {
	return &Sender{notesOn: make(map[uint16]struct{})}
}

// Name implements router.Sender.
func (s *Sender) Name() string { return "midi:" + s.port }

// Ports lists the MIDI output port names currently visible to the system.
func Ports() []string {
	var names []string
	for _, o := range midi.GetOutPorts() {
		names = append(names, o.String())
	}
	return names
}

// SelectPort closes any currently open port and opens portName. Matching
// is by case-insensitive substring, following the teacher's filterName
// behavior in internal/midiconnector.
func (s *Sender) SelectPort(portName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.out != nil {
		s.closeLocked()
	}

	out, err := findPort(portName)
	if err != nil {
		s.available = false
		return err
	}
	if err := out.Open(); err != nil {
		s.available = false
		return fmt.Errorf("open midi port %q: %w", portName, err)
	}

	s.out = out
	s.port = out.String()
	s.available = true
	s.warnedOffline = false
	log.Printf("[MIDI] port selected: %s", s.port)
	return nil
}

func findPort(name string) (drivers.Out, error) {
	outs := midi.GetOutPorts()
	idx, err := matchPortIndex(name, portNames(outs))
	if err != nil {
		return nil, err
	}
	return outs[idx], nil
}

func portNames(outs []drivers.Out) []string {
	names := make([]string, len(outs))
	for i, o := range outs {
		names[i] = o.String()
	}
	return names
}

// matchPortIndex finds the first available port whose name contains name
// (case-insensitive), mirroring the teacher's filterName behavior in
// internal/midiconnector. Split out from findPort so the matching logic is
// testable without a real MIDI driver backend.
func matchPortIndex(name string, available []string) (int, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for i, n := range available {
		if strings.Contains(strings.ToLower(n), want) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("no midi output port matching %q", name)
}

// Close closes the currently open port, sending note-off for every note
// this sender believes is on first so nothing is left stuck.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Sender) closeLocked() error {
	if s.out == nil {
		return nil
	}
	for key := range s.notesOn {
		ch, note := splitKey(key)
		_ = s.sendLocked([]byte{0x80 | ch, note, 0})
	}
	s.notesOn = make(map[uint16]struct{})
	err := s.out.Close()
	s.out = nil
	s.available = false
	return err
}

func key(channel, note uint8) uint16 { return uint16(channel)<<8 | uint16(note) }
func splitKey(k uint16) (channel, note uint8) {
	return uint8(k >> 8), uint8(k & 0xff)
}

// sendLocked writes raw bytes to the open port, degrading to the
// unavailable state on error and logging once per transition.
func (s *Sender) sendLocked(bytes []byte) error {
	if s.out == nil || !s.available {
		if !s.warnedOffline {
			log.Printf("[MIDI] dropping message, port unavailable")
			s.warnedOffline = true
		}
		return fmt.Errorf("midi unavailable")
	}
	if err := s.out.Send(bytes); err != nil {
		s.available = false
		log.Printf("[MIDI] send error, marking unavailable: %v", err)
		return err
	}
	return nil
}

// NoteOn sends a channel NoteOn message (0x90).
func (s *Sender) NoteOn(channel, note, velocity uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sendLocked([]byte{0x90 | (channel & 0x0f), note, velocity}); err != nil {
		return err
	}
	s.notesOn[key(channel, note)] = struct{}{}
	return nil
}

// NoteOff sends a channel NoteOff message (0x80).
func (s *Sender) NoteOff(channel, note uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notesOn, key(channel, note))
	return s.sendLocked([]byte{0x80 | (channel & 0x0f), note, 0})
}

// CC sends a Control Change message (0xB0).
func (s *Sender) CC(channel, ccNumber, value uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked([]byte{0xb0 | (channel & 0x0f), ccNumber, value})
}

// PitchBend sends a 14-bit Pitch Bend message (0xE0). value is centered at
// 8192 (0 = full down, 16383 = full up).
func (s *Sender) PitchBend(channel uint8, value uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lsb := byte(value & 0x7f)
	msb := byte((value >> 7) & 0x7f)
	return s.sendLocked([]byte{0xe0 | (channel & 0x0f), lsb, msb})
}

// Aftertouch sends a channel-pressure message (0xD0).
func (s *Sender) Aftertouch(channel, value uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked([]byte{0xd0 | (channel & 0x0f), value})
}

// System real-time bytes, sent with no channel nibble.
const (
	byteClock    = 0xf8
	byteStart    = 0xfa
	byteContinue = 0xfb
	byteStop     = 0xfc
)

func (s *Sender) Clock() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked([]byte{byteClock})
}
func (s *Sender) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked([]byte{byteStart})
}
func (s *Sender) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked([]byte{byteStop})
}
func (s *Sender) Continue() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked([]byte{byteContinue})
}

// Panic sends all-notes-off (CC 123) and all-sound-off (CC 120) on every
// channel. Idempotent: calling it twice in succession is harmless — the
// second call still emits the CC sweep (P6 only requires that no stray
// note-offs are produced beyond the active-note set seen by the first
// call, which is satisfied because Panic does not consult notesOn at all).
func (s *Sender) Panic() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := uint8(0); ch < 16; ch++ {
		_ = s.sendLocked([]byte{0xb0 | ch, 120, 0})
		_ = s.sendLocked([]byte{0xb0 | ch, 123, 0})
	}
	s.notesOn = make(map[uint16]struct{})
}

// SendBatch implements router.Sender for extensions that register a MIDI
// destination id for generic dispatch. Each message's params are expected
// to carry "channel", "note", "velocity" (note-on) — this path exists for
// extension-authored destinations; the engine's own step-task MIDI lowering
// calls NoteOn/NoteOff directly (spec §4.5), not through Dispatch.
func (s *Sender) SendBatch(messages []types.ScheduledMessage) {
	for _, m := range messages {
		ch := paramUint8(m.Params, "channel", 0)
		note := paramUint8(m.Params, "note", 60)
		vel := paramUint8(m.Params, "velocity", 100)
		if err := s.NoteOn(ch, note, vel); err != nil {
			log.Printf("[MIDI] SendBatch note-on error: %v", err)
		}
	}
}

func paramUint8(params map[string]interface{}, key string, def uint8) uint8 {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return uint8(n)
	case int32:
		return uint8(n)
	case int64:
		return uint8(n)
	case float64:
		return uint8(n)
	case float32:
		return uint8(n)
	default:
		return def
	}
}
