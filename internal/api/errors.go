package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oiduna/loopd/internal/store"
	"github.com/oiduna/loopd/internal/types"
)

// errInvalid wraps a validation message as an error, matching the style of
// the fmt.Errorf-based Validate methods in internal/types.
func errInvalid(msg string) error {
	return errors.New(msg)
}

// bindJSON decodes the request body into dst, writing a 422 on failure.
// Returns false if the response has already been written.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func respondInvalid(c *gin.Context, err error) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
}

func respondNotFound(c *gin.Context, kind, id string) {
	c.JSON(http.StatusNotFound, gin.H{"error": kind + " not found", "id": id})
}

// requireTrack resolves trackID through the Store, writing a 404 (via
// store.ErrTrackNotFound) and returning ok=false if it isn't an audio or
// MIDI track in the active Session.
func (s *Server) requireTrack(c *gin.Context, trackID string) (types.TrackKind, bool) {
	kind, err := s.Store.RequireTrackKind(trackID)
	if errors.Is(err, store.ErrTrackNotFound) {
		respondNotFound(c, "track", trackID)
		return kind, false
	}
	return kind, true
}

func nowPlusMillis(ms float64) time.Time {
	return time.Now().Add(time.Duration(ms * float64(time.Millisecond)))
}
