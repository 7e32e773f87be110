// Package api implements the HTTP Control Plane (spec §4.10): request
// validation, then dispatch to the Message Store, Apply Scheduler, Loop
// Engine, Extension Pipeline, Client Metadata Store, or SSE Broker.
// Changes timed beat/bar/seq are submitted through the Apply Scheduler;
// apply.timing=now changes are installed at once, through
// Engine.ApplyImmediate or, for session and batch loads, Store.Load and
// Store.LoadBatch.
package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oiduna/loopd/internal/apply"
	"github.com/oiduna/loopd/internal/clientmeta"
	"github.com/oiduna/loopd/internal/engine"
	"github.com/oiduna/loopd/internal/extension"
	"github.com/oiduna/loopd/internal/midisend"
	"github.com/oiduna/loopd/internal/noteoff"
	"github.com/oiduna/loopd/internal/router"
	"github.com/oiduna/loopd/internal/sse"
	"github.com/oiduna/loopd/internal/store"
)

// Server holds every component the control plane routes requests to.
type Server struct {
	Store   *store.Store
	Router  *router.Router
	Apply   *apply.Scheduler
	Engine  *engine.Engine
	Ext     *extension.Pipeline
	Clients *clientmeta.Store
	Broker  *sse.Broker
	MIDI    *midisend.Sender
	NoteOff *noteoff.Scheduler
}

// currentStepAndActive reads the engine's current step cursor and the
// store's active step count, the two inputs apply.TargetStep needs to
// resolve a beat/bar/seq timing into a concrete target step.
func (s *Server) currentStepAndActive() (int, int) {
	return s.Engine.Position().Step, s.Store.ActiveSteps()
}

// NewRouter builds a *gin.Engine with every spec §6 endpoint registered,
// following the teacher's router-setup shape (middleware first, then
// grouped routes).
func (s *Server) NewRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	r.GET("/health", s.handleHealth)
	r.GET("/stream", s.handleStream)

	playback := r.Group("/playback")
	{
		playback.POST("/session", s.handleLoadSession)
		playback.POST("/start", s.handleStart)
		playback.POST("/stop", s.handleStop)
		playback.POST("/pause", s.handlePause)
		playback.GET("/status", s.handleStatus)
		playback.PATCH("/environment", s.handlePatchEnvironment)
		playback.PATCH("/tracks/:id/params", s.handlePatchTrackParams)
		playback.POST("/trigger/osc", s.handleTriggerOSC)
		playback.POST("/trigger/midi", s.handleTriggerMIDI)
		playback.GET("/changes/pending", s.handlePendingChanges)
		playback.DELETE("/changes/:id", s.handleCancelChange)
		playback.POST("/changes/cancel-all", s.handleCancelAllChanges)
	}

	session := r.Group("/session")
	{
		session.POST("/clients/:client_id/metadata", s.handleUpsertClientMetadata)
		session.GET("/clients", s.handleListClients)
		session.GET("/clients/:client_id", s.handleGetClient)
		session.DELETE("/clients/:client_id", s.handleDeleteClient)
	}

	tracks := r.Group("/tracks")
	{
		tracks.GET("", s.handleListTracks)
		tracks.GET("/:id", s.handleGetTrack)
		tracks.POST("/:id/mute", s.handleMuteTrack)
		tracks.POST("/:id/solo", s.handleSoloTrack)
	}

	r.POST("/scene/activate", s.handleActivateScene)

	midi := r.Group("/midi")
	{
		midi.GET("/ports", s.handleMIDIPorts)
		midi.POST("/port", s.handleMIDISelectPort)
		midi.POST("/panic", s.handleMIDIPanic)
	}

	for _, rg := range s.Ext.Routes() {
		group := r.Group(rg.Prefix)
		if rg.Mount != nil {
			rg.Mount(group)
		}
	}

	return r
}

// requestLogger logs one line per request in the bracketed-tag style the
// rest of the codebase uses for its own component logs.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("[API] %s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
