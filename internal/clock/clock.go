// Package clock implements the Clock Generator (spec §4.4): 24-PPQ MIDI
// clock pulses locked to an anchor timestamp, never to accumulated sleeps,
// so drift never grows with elapsed run time (P2).
package clock

import (
	"sync"
	"time"
)

const pulsesPerQuarterNote = 24

// Generator computes successive 24-PPQ pulse targets from a single stored
// anchor. Changing BPM while running moves the anchor so that the current
// pulse count lands at the moment of the change under the new interval;
// the pulse count is not reset, so playback position does not jump.
type Generator struct {
	mu sync.Mutex

	running bool
	anchor  time.Time
	bpm     float64
	pulse   int64 // count of pulses emitted since anchor, for recomputation
}

// New returns a stopped Generator.
func New() *Generator {
	return &Generator{}
}

// Start anchors the generator at anchorTime with the given bpm and resets
// the pulse count to zero.
func (g *Generator) Start(anchorTime time.Time, bpm float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = true
	g.anchor = anchorTime
	g.bpm = bpm
	g.pulse = 0
}

// Stop marks the generator as not running; NextDue after Stop returns the
// zero time.
func (g *Generator) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = false
}

// Running reports whether Start has been called without a matching Stop.
func (g *Generator) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// SetBPM recomputes the pulse interval going forward without resetting the
// anchor: the anchor and already-elapsed pulse count are preserved, so the
// next pulse's target time is computed from the new interval applied from
// now, not from the original tempo.
func (g *Generator) SetBPM(bpm float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		g.bpm = bpm
		return
	}
	// Re-anchor at "now" against the current pulse count so the count
	// carries over and the next pulse follows the new interval, matching the
	// loop engine's BPM-change re-anchoring rule in spec §4.5.
	now := time.Now()
	g.anchor = now.Add(-time.Duration(float64(g.pulse) * g.intervalLocked(bpm) * float64(time.Second)))
	g.bpm = bpm
}

func (g *Generator) intervalLocked(bpm float64) float64 {
	if bpm <= 0 {
		return 0
	}
	return 60.0 / (bpm * pulsesPerQuarterNote)
}

// Interval returns the current pulse interval in seconds.
func (g *Generator) Interval() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.intervalLocked(g.bpm)
}

// NextDue returns the target time of the next pulse strictly after now,
// without mutating state. Callers emit the pulse and then call Advance.
func (g *Generator) NextDue(now time.Time) time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return time.Time{}
	}
	interval := g.intervalLocked(g.bpm)
	if interval <= 0 {
		return time.Time{}
	}
	k := g.pulse
	for {
		target := g.anchor.Add(time.Duration(float64(k) * interval * float64(time.Second)))
		if target.After(now) {
			return target
		}
		k++
	}
}

// Advance records that the pulse at NextDue's returned time has been
// emitted, moving the generator's pulse count forward to match.
func (g *Generator) Advance(dueTime time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	interval := g.intervalLocked(g.bpm)
	if interval <= 0 {
		return
	}
	elapsed := dueTime.Sub(g.anchor).Seconds()
	g.pulse = int64(elapsed/interval) + 1
}
