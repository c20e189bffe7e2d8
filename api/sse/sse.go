// Package sse streams chat room traffic to browsers as server-sent events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/gamecaps/cache"
	"github.com/kasuganosora/gamecaps/game/chat"
	mw "github.com/kasuganosora/gamecaps/middleware"
	"go.uber.org/zap"
)

const announceChannel = "announce"

// DefaultKeepalive is the interval between keepalive comments.
const DefaultKeepalive = 30 * time.Second

// Handler handles the SSE endpoints.
type Handler struct {
	feed      *chat.CacheFeed
	pubsub    cache.PubSub
	keepalive time.Duration
	logger    *zap.Logger
}

// NewHandler creates a new SSE Handler. A keepalive of zero uses
// DefaultKeepalive.
func NewHandler(feed *chat.CacheFeed, pubsub cache.PubSub, keepalive time.Duration, logger *zap.Logger) *Handler {
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	return &Handler{feed: feed, pubsub: pubsub, keepalive: keepalive, logger: logger}
}

// ServeRoom handles GET /sse/rooms/:name. It replays the cached history of
// the room as "history" events, then streams new messages as "message"
// events and announcements as "announce" events.
func (h *Handler) ServeRoom(c *gin.Context) {
	room := c.Param("name")

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	// Subscribe before reading history so nothing falls between the two.
	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, chat.Channel(room), announceChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.String("room", room), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "subscribe failed", "trace_id": mw.GetTraceID(c)})
		return
	}
	defer unsub()

	history, err := h.feed.Recent(subCtx, room, chat.HistoryLen)
	if err != nil {
		h.logger.Warn("sse history read failed", zap.String("room", room), zap.Error(err))
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"room\":%q}\n\n", room)
	replayed := make(map[string]int, len(history))
	for _, payload := range history {
		fmt.Fprintf(c.Writer, "event: history\ndata: %s\n\n", payload)
		replayed[payload]++
	}
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			if msg.Channel == announceChannel {
				fmt.Fprintf(c.Writer, "event: announce\ndata: %s\n\n", msg.Payload)
				c.Writer.Flush()
				continue
			}
			// Messages sent between subscribe and the history read arrive twice.
			if n := replayed[msg.Payload]; n > 0 {
				replayed[msg.Payload] = n - 1
				continue
			}
			fmt.Fprintf(c.Writer, "event: message\ndata: %s\n\n", msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

// Announce publishes an announcement to every SSE subscriber.
func (h *Handler) Announce(ctx context.Context, message string) error {
	payload, err := json.Marshal(struct {
		Message string `json:"message"`
	}{message})
	if err != nil {
		return err
	}
	return h.pubsub.Publish(ctx, announceChannel, string(payload))
}
