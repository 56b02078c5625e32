package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/pkg/events"
)

func nowTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// sseFrame is one Server-Sent-Events data payload.
type sseFrame struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
	ID        int    `json:"id"`
}

// streamEventsHandler handles GET /api/v1/generations/:id/events.
//
// The first frame is always initial_state with the full request and image
// snapshot, written synchronously after subscribing so no event between
// snapshot and stream start is lost. The stream ends when the request
// reaches a terminal status or the client disconnects.
func (s *Server) streamEventsHandler(c *gin.Context) {
	id := c.Param("id")

	// Subscribe before snapshotting: anything emitted after the snapshot
	// read is buffered on the subscription.
	sub := s.deps.Bus.Subscribe(id)
	defer sub.Cancel()

	req, err := s.deps.Requests.Get(c.Request.Context(), id)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	images, err := s.deps.Images.ListByRequest(c.Request.Context(), id)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	nextID := 0
	writeFrame := func(eventType string, data any, timestamp string) bool {
		frame := sseFrame{Type: eventType, Data: data, Timestamp: timestamp, ID: nextID}
		nextID++
		payload, err := json.Marshal(frame)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(c.Writer, "id: %d\ndata: %s\n\n", frame.ID, payload); err != nil {
			return false
		}
		c.Writer.Flush()
		return true
	}

	if !writeFrame(events.EventTypeInitialState, events.InitialStatePayload{
		Request: req,
		Images:  images,
	}, nowTimestamp()) {
		return
	}

	// A request that is already terminal has nothing more to say; close
	// after the snapshot so EventSource clients do not reconnect forever.
	if req.Status.IsTerminal() {
		return
	}

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case evt, ok := <-sub.Events:
			if !ok {
				return
			}
			if !writeFrame(evt.Type, evt.Data, evt.Timestamp) {
				return
			}
			if events.IsTerminal(evt.Type) {
				return
			}
		}
	}
}
