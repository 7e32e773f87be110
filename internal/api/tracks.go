package api

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/oiduna/loopd/internal/engine"
	"github.com/oiduna/loopd/internal/types"
)

// trackSummary is the uniform shape GET /tracks and /tracks/{id} return for
// either an AudioTrack or a MIDITrack, so clients don't need to branch on
// kind just to read id/mute/solo.
type trackSummary struct {
	TrackID string      `json:"track_id"`
	Kind    string      `json:"kind"`
	Mute    bool        `json:"mute"`
	Solo    bool        `json:"solo"`
	Track   interface{} `json:"track"`
}

func (s *Server) handleListTracks(c *gin.Context) {
	session := s.Store.Snapshot()
	out := make([]trackSummary, 0, len(session.Tracks)+len(session.TracksMIDI))
	for id, tr := range session.Tracks {
		out = append(out, trackSummary{TrackID: id, Kind: "audio", Mute: tr.Meta.Mute, Solo: tr.Meta.Solo, Track: tr})
	}
	for id, tr := range session.TracksMIDI {
		out = append(out, trackSummary{TrackID: id, Kind: "midi", Mute: tr.Mute, Solo: tr.Solo, Track: tr})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrackID < out[j].TrackID })
	c.JSON(http.StatusOK, gin.H{"tracks": out})
}

func (s *Server) handleGetTrack(c *gin.Context) {
	trackID := c.Param("id")
	kind, ok := s.requireTrack(c, trackID)
	if !ok {
		return
	}
	session := s.Store.Snapshot()
	switch kind {
	case types.TrackAudio:
		tr := session.Tracks[trackID]
		c.JSON(http.StatusOK, trackSummary{TrackID: trackID, Kind: "audio", Mute: tr.Meta.Mute, Solo: tr.Meta.Solo, Track: tr})
	case types.TrackMIDI:
		tr := session.TracksMIDI[trackID]
		c.JSON(http.StatusOK, trackSummary{TrackID: trackID, Kind: "midi", Mute: tr.Mute, Solo: tr.Solo, Track: tr})
	}
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

func (s *Server) handleMuteTrack(c *gin.Context) {
	trackID := c.Param("id")
	if _, ok := s.requireTrack(c, trackID); !ok {
		return
	}
	var req muteRequest
	if !bindJSON(c, &req) {
		return
	}
	s.Engine.ApplyImmediate(types.ChangeTrackParams, engine.TrackParamsPatch{TrackIDs: []string{trackID}, Mute: &req.Muted})
	c.JSON(http.StatusOK, gin.H{"status": "applied"})
}

type soloRequest struct {
	Solo bool `json:"solo"`
}

func (s *Server) handleSoloTrack(c *gin.Context) {
	trackID := c.Param("id")
	if _, ok := s.requireTrack(c, trackID); !ok {
		return
	}
	var req soloRequest
	if !bindJSON(c, &req) {
		return
	}
	s.Engine.ApplyImmediate(types.ChangeTrackParams, engine.TrackParamsPatch{TrackIDs: []string{trackID}, Solo: &req.Solo})
	c.JSON(http.StatusOK, gin.H{"status": "applied"})
}
