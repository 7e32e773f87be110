package types

import "time"

// PendingChangeKind names what a PendingChange carries.
type PendingChangeKind string

const (
	ChangeEnvironment  PendingChangeKind = "environment"
	ChangeTrackParams  PendingChangeKind = "track_params"
	ChangeSession      PendingChangeKind = "session"
	ChangeScene        PendingChangeKind = "scene"
)

// PendingChange is the internal bookkeeping record for a deferred patch
// awaiting its apply boundary (spec §3/§4.6).
type PendingChange struct {
	ID         string            `json:"id"`
	Kind       PendingChangeKind `json:"kind"`
	Payload    interface{}       `json:"payload"`
	TargetStep int               `json:"target_step"`
	Timing     ApplyTiming       `json:"timing"`
	TrackIDs   []string          `json:"track_ids,omitempty"`

	// AppliedAt is zero until the change is integrated; CreatedAt is used
	// only for logging/ordering, never for apply-time decisions (those are
	// step-cursor driven, not wall-clock driven).
	CreatedAt time.Time  `json:"created_at"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

// Applied reports whether this change has been integrated into the Session.
func (c PendingChange) Applied() bool {
	return c.AppliedAt != nil
}
