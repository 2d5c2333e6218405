package websocket

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/coder/websocket"

	"github.com/johndosdos/roomchat/internal/model"
)

// ReadMessage reads the incoming data from the websocket stream and hands
// each event to the hub. It returns when the connection drops, and the
// client is unregistered on the way out.
func (c *Client) ReadMessage(ctx context.Context) {
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.done:
		}
		c.conn.CloseNow()
	}()

	for {
		msgType, p, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != -1 {
				slog.WarnContext(ctx, "websocket read failed",
					"error", err,
					"connection_id", c.ID,
					"addr", c.Addr)
			}
			return
		}

		// Events are JSON text frames only.
		if msgType != websocket.MessageText {
			continue
		}

		if c.messageLim != nil && !c.messageLim.Allow() {
			slog.WarnContext(ctx, "client rate limit exceeded; dropping event",
				"connection_id", c.ID,
				"addr", c.Addr)
			continue
		}

		var env model.Envelope
		if err := json.Unmarshal(p, &env); err != nil {
			slog.WarnContext(ctx, "failed to process payload from client",
				"error", err,
				"connection_id", c.ID)
			continue
		}

		select {
		case c.Hub.ClientMsg <- Inbound{Client: c, Envelope: env}:
		case <-c.Hub.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
