package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tradieiq/engine/internal/api/dto"
	"github.com/tradieiq/engine/internal/domain"
)

const streamHeartbeat = 10 * time.Second

// State handles GET /api/v1/state
func (h *StateHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, dto.StateFrom(h.engine.Snapshot()))
}

// Stream handles GET /api/v1/state/stream
// Snapshots are pushed as server-sent events. Every event is a complete
// frame, so clients replace state rather than merging deltas.
func (h *StateHandler) Stream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	id, ch := h.feed.Subscribe()
	defer h.feed.Unsubscribe(id)

	h.logger.Info("State stream opened",
		slog.Int("subscriber_id", id),
		slog.String("ip", c.ClientIP()),
	)

	// A client connecting before the first render still gets a frame.
	if _, ok := h.feed.Last(); !ok {
		if err := writeEvent(c, h.engine.Snapshot()); err != nil {
			return
		}
	}

	// Heartbeat comments keep idle connections from being reaped by proxies.
	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			h.logger.Info("State stream closed", slog.Int("subscriber_id", id))
			return

		case snap, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(c, snap); err != nil {
				h.logger.Info("State stream client disconnected",
					slog.Int("subscriber_id", id),
					slog.String("error", err.Error()),
				)
				return
			}

		case <-heartbeat.C:
			if _, err := c.Writer.Write([]byte(": heartbeat\n\n")); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

func writeEvent(c *gin.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(dto.StateFrom(snap))
	if err != nil {
		return err
	}
	if _, err := c.Writer.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}
