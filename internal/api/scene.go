package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oiduna/loopd/internal/types"
)

// activateSceneRequest is the POST /scene/activate body (spec §4.6).
type activateSceneRequest struct {
	SceneID string             `json:"scene_id"`
	Timing  types.ApplyTiming  `json:"timing"`
}

func (s *Server) handleActivateScene(c *gin.Context) {
	var req activateSceneRequest
	if !bindJSON(c, &req) {
		return
	}
	if _, ok := s.Store.Snapshot().Scenes[req.SceneID]; !ok {
		respondNotFound(c, "scene", req.SceneID)
		return
	}
	timing := req.Timing
	if timing == "" {
		timing = types.TimingNow
	}
	if !timing.Valid() {
		respondInvalid(c, errInvalid("timing is invalid"))
		return
	}

	if timing == types.TimingNow {
		s.Engine.ApplyImmediate(types.ChangeScene, req.SceneID)
		c.JSON(http.StatusOK, gin.H{"status": "applied", "scene_id": req.SceneID})
		return
	}
	step, active := s.currentStepAndActive()
	change := s.Apply.Schedule(types.ChangeScene, req.SceneID, timing, nil, step, active)
	c.JSON(http.StatusAccepted, gin.H{"id": change.ID, "target_step": change.TargetStep})
}
