package api

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"

	"github.com/oiduna/loopd/internal/engine"
	"github.com/oiduna/loopd/internal/ir"
	"github.com/oiduna/loopd/internal/types"
)

// handleLoadSession implements POST /playback/session (spec §6): the body
// is either a full Session or a ScheduledMessageBatch, run through the
// Extension Pipeline's transform hook before validation (spec §4.7), then
// installed via the Apply Scheduler at its own apply.timing — "bar" if
// unspecified.
func (s *Server) handleLoadSession(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	transformed, err := s.Ext.RunTransform(body)
	if err != nil {
		sentry.CaptureException(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	decoded, err := ir.Decode(transformed)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	if decoded.Batch != nil {
		s.loadOrRejectBatch(c, *decoded.Batch)
		return
	}
	s.loadOrScheduleSession(c, *decoded.Session)
}

func (s *Server) loadOrScheduleSession(c *gin.Context, session types.Session) {
	timing := types.TimingBar
	var trackIDs []string
	if session.Apply != nil {
		timing = session.Apply.Timing
		trackIDs = session.Apply.TrackIDs
	}
	if timing == types.TimingNow {
		s.Store.Load(session)
		s.Broker.Publish("session_loaded", gin.H{"tracks": len(session.Tracks), "tracks_midi": len(session.TracksMIDI)})
		c.JSON(http.StatusOK, gin.H{"status": "applied"})
		return
	}
	step, active := s.currentStepAndActive()
	change := s.Apply.Schedule(types.ChangeSession, session, timing, trackIDs, step, active)
	c.JSON(http.StatusAccepted, gin.H{"id": change.ID, "target_step": change.TargetStep})
}

// loadOrRejectBatch loads a ScheduledMessageBatch immediately. A batch is a
// full replacement of the active state, not a keyed patch, so it has no
// meaningful partial-merge semantics the way a Session's Pending Changes do
// (spec §4.6 only defines merge-by-key for environment/tracks/scenes);
// deferred batch loads are rejected rather than silently applied at the
// wrong time.
func (s *Server) loadOrRejectBatch(c *gin.Context, batch types.ScheduledMessageBatch) {
	if batch.Apply != nil && batch.Apply.Timing != types.TimingNow {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "scheduled-message batches only support apply.timing=now"})
		return
	}
	s.Store.LoadBatch(batch)
	s.Broker.Publish("session_loaded", gin.H{"messages": len(batch.Messages)})
	c.JSON(http.StatusOK, gin.H{"status": "applied"})
}

func (s *Server) handleStart(c *gin.Context) {
	s.Engine.Start()
	c.JSON(http.StatusOK, s.Engine.StatusPayload())
}

func (s *Server) handleStop(c *gin.Context) {
	s.Engine.Stop()
	c.JSON(http.StatusOK, s.Engine.StatusPayload())
}

func (s *Server) handlePause(c *gin.Context) {
	s.Engine.Pause()
	c.JSON(http.StatusOK, s.Engine.StatusPayload())
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.StatusPayload())
}

// environmentPatchRequest is the PATCH /playback/environment body; every
// field is optional, and only the fields present are changed.
type environmentPatchRequest struct {
	BPM         *float64            `json:"bpm"`
	Swing       *float64            `json:"swing"`
	DefaultGate *float64            `json:"default_gate"`
	Apply       *types.ApplyCommand `json:"apply"`
}

func (r environmentPatchRequest) validate() error {
	if r.BPM != nil && *r.BPM <= 0 {
		return errInvalid("bpm must be > 0")
	}
	if r.Swing != nil && (*r.Swing < 0 || *r.Swing > 1) {
		return errInvalid("swing must be in [0,1]")
	}
	if r.DefaultGate != nil && (*r.DefaultGate < 0 || *r.DefaultGate > 1) {
		return errInvalid("default_gate must be in [0,1]")
	}
	if r.Apply != nil && !r.Apply.Timing.Valid() {
		return errInvalid("apply.timing is invalid")
	}
	return nil
}

func (s *Server) handlePatchEnvironment(c *gin.Context) {
	var req environmentPatchRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := req.validate(); err != nil {
		respondInvalid(c, err)
		return
	}

	patch := engine.EnvironmentPatch{BPM: req.BPM, Swing: req.Swing, DefaultGate: req.DefaultGate}
	timing := types.TimingNow
	if req.Apply != nil {
		timing = req.Apply.Timing
	}
	if timing == types.TimingNow {
		s.Engine.ApplyImmediate(types.ChangeEnvironment, patch)
		c.JSON(http.StatusOK, gin.H{"status": "applied"})
		return
	}
	step, active := s.currentStepAndActive()
	change := s.Apply.Schedule(types.ChangeEnvironment, patch, timing, nil, step, active)
	c.JSON(http.StatusAccepted, gin.H{"id": change.ID, "target_step": change.TargetStep})
}

// trackParamsPatchRequest is the PATCH /playback/tracks/{id}/params body.
type trackParamsPatchRequest struct {
	Params  map[string]interface{} `json:"params"`
	FX      map[string]interface{} `json:"fx"`
	TrackFX map[string]interface{} `json:"track_fx"`
	Mute    *bool                  `json:"mute"`
	Solo    *bool                  `json:"solo"`
	Apply   *types.ApplyCommand    `json:"apply"`
}

func (s *Server) handlePatchTrackParams(c *gin.Context) {
	trackID := c.Param("id")
	if _, ok := s.requireTrack(c, trackID); !ok {
		return
	}

	var req trackParamsPatchRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Apply != nil && !req.Apply.Timing.Valid() {
		respondInvalid(c, errInvalid("apply.timing is invalid"))
		return
	}

	timing := types.TimingNow
	if req.Apply != nil {
		timing = req.Apply.Timing
	}
	s.submitTrackParamsPatch(c, trackID, req, timing)
}

func trackParamsPatchToEngine(trackID string, req trackParamsPatchRequest) engine.TrackParamsPatch {
	return engine.TrackParamsPatch{
		TrackIDs: []string{trackID},
		Params:   req.Params,
		FX:       req.FX,
		TrackFX:  req.TrackFX,
		Mute:     req.Mute,
		Solo:     req.Solo,
	}
}

func (s *Server) submitTrackParamsPatch(c *gin.Context, trackID string, req trackParamsPatchRequest, timing types.ApplyTiming) {
	patch := trackParamsPatchToEngine(trackID, req)
	if timing == types.TimingNow {
		s.Engine.ApplyImmediate(types.ChangeTrackParams, patch)
		c.JSON(http.StatusOK, gin.H{"status": "applied"})
		return
	}
	step, active := s.currentStepAndActive()
	change := s.Apply.Schedule(types.ChangeTrackParams, patch, timing, []string{trackID}, step, active)
	c.JSON(http.StatusAccepted, gin.H{"id": change.ID, "target_step": change.TargetStep})
}

// triggerOSCRequest is the POST /playback/trigger/osc body (spec §6): an
// ad-hoc one-off event fired against an existing audio track's own params,
// bypassing the sequencer entirely.
type triggerOSCRequest struct {
	TrackID  string  `json:"track_id"`
	Velocity float64 `json:"velocity"`
	Note     *int    `json:"note,omitempty"`
}

func (s *Server) handleTriggerOSC(c *gin.Context) {
	var req triggerOSCRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Velocity < 0 || req.Velocity > 1 {
		respondInvalid(c, errInvalid("velocity must be in [0,1]"))
		return
	}
	track, ok := s.Store.Snapshot().Tracks[req.TrackID]
	if !ok {
		respondNotFound(c, "track", req.TrackID)
		return
	}
	msg := engine.LowerAudioTrigger(req.TrackID, track, req.Velocity)
	s.Router.Dispatch([]types.ScheduledMessage{msg})
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

// triggerMIDIRequest is the POST /playback/trigger/midi body (spec §6): an
// immediate NoteOn against an existing MIDI track's channel/transpose,
// with NoteOff scheduled at now+duration_ms when given.
type triggerMIDIRequest struct {
	TrackID    string  `json:"track_id"`
	Note       int     `json:"note"`
	Velocity   float64 `json:"velocity"`
	DurationMs float64 `json:"duration_ms"`
}

func (s *Server) handleTriggerMIDI(c *gin.Context) {
	var req triggerMIDIRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Note < 0 || req.Note > 127 {
		respondInvalid(c, errInvalid("note must be in [0,127]"))
		return
	}
	track, ok := s.Store.Snapshot().TracksMIDI[req.TrackID]
	if !ok {
		respondNotFound(c, "track", req.TrackID)
		return
	}
	if s.MIDI == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no midi port selected"})
		return
	}

	channel, note, velocity, ok := engine.LowerMidiTrigger(track, req.Note, req.Velocity)
	if !ok {
		respondInvalid(c, errInvalid("note is required"))
		return
	}
	if err := s.MIDI.NoteOn(channel, note, velocity); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if req.DurationMs > 0 && s.NoteOff != nil {
		s.NoteOff.Schedule(channel, note, nowPlusMillis(req.DurationMs))
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func (s *Server) handlePendingChanges(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"changes": s.Apply.Pending()})
}

func (s *Server) handleCancelChange(c *gin.Context) {
	id := c.Param("id")
	if !s.Apply.Cancel(id) {
		respondNotFound(c, "change", id)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) handleCancelAllChanges(c *gin.Context) {
	s.Apply.CancelAll()
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}
