package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oiduna/loopd/internal/sse"
)

// handleStream implements GET /stream (spec §4.9): a long-lived
// Server-Sent-Events connection fanning out every Broker-published event,
// with a periodic comment-line heartbeat to hold the connection open
// through intermediate proxies.
func (s *Server) handleStream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	events, subID := s.Broker.Subscribe()
	defer s.Broker.Unsubscribe(subID)

	ticker := time.NewTicker(sse.HeartbeatInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			writeEvent(c, ev)
			c.Writer.Flush()
		case <-ticker.C:
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			c.Writer.Flush()
		}
	}
}

func writeEvent(c *gin.Context, ev sse.Event) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		payload = []byte(`{}`)
	}
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Name, payload)
}

