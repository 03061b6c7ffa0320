package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/agency-ops/internal/domain/apperr"
	"github.com/garyjia/agency-ops/internal/domain/event"
	"github.com/garyjia/agency-ops/internal/domain/role"
)

// GET /api/events/stream
//
// Server-sent events: a ready sentinel, then one data frame per workflow
// event and a comment line every heartbeat interval. Clients only receive
// events of projects they own.
func (s *Server) streamEvents(c *gin.Context) {
	actor := actorFrom(c)
	ctx := c.Request.Context()

	events := make(chan *event.Event, s.config.StreamBuffer)
	unsubscribe := s.bus.SubscribeNamed("stream:"+actor.UserID, func(_ context.Context, evt *event.Event) error {
		select {
		case events <- evt:
			return nil
		default:
			return fmt.Errorf("stream buffer full for %s", actor.UserID)
		}
	})
	defer unsubscribe()
	s.logger.Info("Event stream opened", "user_id", actor.UserID, "subscribers", s.bus.SubscriberCount())

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	if err := writeFrame(c.Writer, event.NewStreamReady()); err != nil {
		return
	}
	c.Writer.Flush()

	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	visible := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(c.Writer, ": heartbeat\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		case evt := <-events:
			if !s.canSee(ctx, actor, evt, visible) {
				continue
			}
			if err := writeFrame(c.Writer, evt); err != nil {
				s.logger.Error("Failed to write stream frame", "user_id", actor.UserID, "error", err)
				return
			}
			c.Writer.Flush()
		}
	}
}

// canSee caches per-connection project visibility for client actors
func (s *Server) canSee(ctx context.Context, actor role.Actor, evt *event.Event, visible map[string]bool) bool {
	if actor.Can(role.Developer) {
		return true
	}
	if evt.ProjectID == "" {
		return false
	}

	ok, cached := visible[evt.ProjectID]
	if !cached {
		_, err := s.services.Projects.GetProject(ctx, actor, evt.ProjectID)
		ok = err == nil
		if ok || apperr.KindOf(err) == apperr.KindNotFound {
			visible[evt.ProjectID] = ok
		}
	}
	return ok
}

func writeFrame(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
