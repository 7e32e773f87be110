// Package apply implements the Apply Scheduler (spec §4.6): it holds
// deferred patches and releases them at the next beat/bar/seq/now
// boundary. Application itself — the read-modify-write into the active
// Session — happens on the engine's step task, the sole serialization
// point (spec §4.5/§9); this package only computes target steps and holds
// the queue.
package apply

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oiduna/loopd/internal/types"
)

// gracePeriod is how long an applied change's id is still reported by
// Pending as "applied", so idempotent client retries can observe
// completion (spec §4.6).
const gracePeriod = 1 * time.Second

// Scheduler holds PendingChanges keyed by id.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]*types.PendingChange

	// onQueueSizeChanged is invoked whenever the queue transitions between
	// empty and non-empty, so the Message Store's has_pending() contract
	// (spec §4.1) can be kept in sync without a direct dependency cycle.
	onQueueSizeChanged func(nonEmpty bool)
}

// New returns an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{pending: make(map[string]*types.PendingChange)}
}

// OnQueueSizeChanged installs a callback fired whenever the queue becomes
// empty or non-empty.
func (s *Scheduler) OnQueueSizeChanged(fn func(nonEmpty bool)) {
	s.onQueueSizeChanged = fn
}

// TargetStep computes the step at which timing resolves, given the current
// step cursor and the number of active steps in the loop (spec §4.6):
//   - now  -> currentStep (applied on the very next step boundary)
//   - beat -> smallest step > currentStep with step mod 4 == 0
//   - bar  -> smallest step > currentStep with step mod 16 == 0
//   - seq  -> smallest step > currentStep with step == 0 (wraps)
//
// The step task only recognizes a change as due when the cursor transitions
// *into* its target step (DueAt), so the boundary must be strictly after
// currentStep: currentStep itself has already been processed, and a target
// equal to it would not come due again until the cursor wrapped all the way
// around (P4 bounds the delay at 16·⌈(s+1)/16⌉+1, not the current step).
func TargetStep(timing types.ApplyTiming, currentStep, activeSteps int) int {
	switch timing {
	case types.TimingBeat:
		return ceilToMultiple(currentStep+1, 4, activeSteps)
	case types.TimingBar:
		return ceilToMultiple(currentStep+1, 16, activeSteps)
	case types.TimingSeq:
		return 0 // next step 0 is the wrap boundary; see Scheduler.Schedule for "next occurrence" semantics
	default: // now
		return currentStep
	}
}

func ceilToMultiple(current, multiple, activeSteps int) int {
	next := ((current + multiple - 1) / multiple) * multiple
	if activeSteps > 0 {
		next %= activeSteps
	}
	return next
}

// Schedule enqueues a new PendingChange, computing its target step from
// timing and the supplied current step / active-steps pair. For seq
// timing, target step is always 0 (the next wrap).
func (s *Scheduler) Schedule(kind types.PendingChangeKind, payload interface{}, timing types.ApplyTiming, trackIDs []string, currentStep, activeSteps int) types.PendingChange {
	s.mu.Lock()
	defer s.mu.Unlock()

	change := types.PendingChange{
		ID:         uuid.New().String(),
		Kind:       kind,
		Payload:    payload,
		Timing:     timing,
		TrackIDs:   trackIDs,
		TargetStep: TargetStep(timing, currentStep, activeSteps),
		CreatedAt:  time.Now(),
	}
	wasEmpty := len(s.pending) == 0
	s.pending[change.ID] = &change
	if wasEmpty && s.onQueueSizeChanged != nil {
		s.onQueueSizeChanged(true)
	}
	return change
}

// DueAt returns every not-yet-applied change whose target step equals
// step, in the order they were submitted — spec §5's "submission order"
// ordering guarantee for same-boundary patches.
func (s *Scheduler) DueAt(step int) []*types.PendingChange {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*types.PendingChange
	for _, c := range s.pending {
		if !c.Applied() && c.TargetStep == step {
			due = append(due, c)
		}
	}
	sortByCreatedAt(due)
	return due
}

func sortByCreatedAt(cs []*types.PendingChange) {
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && cs[j].CreatedAt.Before(cs[j-1].CreatedAt); j-- {
			cs[j], cs[j-1] = cs[j-1], cs[j]
		}
	}
}

// MarkApplied records that a change has been integrated, starting its
// grace period. The Apply task calls this immediately after the
// read-modify-write that folds the change into the Session.
func (s *Scheduler) MarkApplied(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.pending[id]
	if !ok {
		return
	}
	now := time.Now()
	c.AppliedAt = &now
}

// Cancel removes a change if it has not yet been applied. Returns false if
// the id is unknown or already applied.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.pending[id]
	if !ok || c.Applied() {
		return false
	}
	delete(s.pending, id)
	s.notifyIfEmptyLocked()
	return true
}

// CancelAll empties the queue of not-yet-applied changes.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.pending {
		if !c.Applied() {
			delete(s.pending, id)
		}
	}
	s.notifyIfEmptyLocked()
}

func (s *Scheduler) notifyIfEmptyLocked() {
	if len(s.pending) == 0 && s.onQueueSizeChanged != nil {
		s.onQueueSizeChanged(false)
	}
}

// Pending returns every change still worth reporting to clients: not yet
// applied, or applied within the last gracePeriod.
func (s *Scheduler) Pending() []types.PendingChange {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	out := make([]types.PendingChange, 0, len(s.pending))
	for id, c := range s.pending {
		if c.Applied() && now.Sub(*c.AppliedAt) > gracePeriod {
			delete(s.pending, id)
			continue
		}
		out = append(out, *c)
	}
	return out
}

// Sweep removes applied changes past their grace period without returning
// anything; called periodically by the engine's apply task so long-running
// sessions don't accumulate applied entries forever even if nobody polls
// Pending.
func (s *Scheduler) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, c := range s.pending {
		if c.Applied() && now.Sub(*c.AppliedAt) > gracePeriod {
			delete(s.pending, id)
		}
	}
}
