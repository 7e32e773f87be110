package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleUpsertClientMetadata implements POST /session/clients/{client_id}/metadata:
// an opaque JSON body is stored as-is against the client id (spec §4.8).
func (s *Server) handleUpsertClientMetadata(c *gin.Context) {
	clientID := c.Param("client_id")
	var metadata interface{}
	if !bindJSON(c, &metadata) {
		return
	}
	rec := s.Clients.Upsert(clientID, metadata)
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleListClients(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"clients": s.Clients.GetAll()})
}

func (s *Server) handleGetClient(c *gin.Context) {
	clientID := c.Param("client_id")
	rec, ok := s.Clients.Get(clientID)
	if !ok {
		respondNotFound(c, "client", clientID)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleDeleteClient(c *gin.Context) {
	clientID := c.Param("client_id")
	if !s.Clients.Delete(clientID) {
		respondNotFound(c, "client", clientID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
