package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oiduna/loopd/internal/midisend"
)

func (s *Server) handleMIDIPorts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ports": midisend.Ports()})
}

type selectPortRequest struct {
	PortName string `json:"port_name"`
}

func (s *Server) handleMIDISelectPort(c *gin.Context) {
	var req selectPortRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.PortName == "" {
		respondInvalid(c, errInvalid("port_name is required"))
		return
	}
	if s.MIDI == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "midi sender not configured"})
		return
	}
	if err := s.MIDI.SelectPort(req.PortName); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "selected", "port_name": req.PortName})
}

func (s *Server) handleMIDIPanic(c *gin.Context) {
	s.Engine.Panic()
	c.JSON(http.StatusOK, gin.H{"status": "panicked"})
}
