// Package websocket is the connection gateway: it owns client sockets and
// feeds their events through the hub into the chat service.
package websocket

import (
	"context"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/johndosdos/roomchat/internal/session"
)

const writeTimeout = 10 * time.Second

type Client struct {
	ID         session.ConnectionID
	Addr       string
	conn       *websocket.Conn
	Hub        *Hub
	MessageCh  chan []byte
	messageLim *rate.Limiter
}

func NewClient(conn *websocket.Conn, id session.ConnectionID, addr string) *Client {
	return &Client{
		ID:        id,
		Addr:      addr,
		conn:      conn,
		MessageCh: make(chan []byte, 64),
	}
}

// SetMessageLimiter caps inbound events at requests per window, with a
// burst of requests.
func (c *Client) SetMessageLimiter(requests int, window time.Duration) {
	l := rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests)
	c.messageLim = l
}

// WriteMessage writes queued frames to the outgoing websocket stream until
// the hub closes MessageCh or ctx is done.
func (c *Client) WriteMessage(ctx context.Context) {
	for {
		select {
		case frame, ok := <-c.MessageCh:
			// We don't want to continue processing when the channel has already been
			// closed.
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				slog.WarnContext(ctx, "failed to write frame",
					"error", err,
					"connection_id", c.ID,
					"addr", c.Addr)
				c.conn.CloseNow()
				return
			}

		case <-ctx.Done():
			c.conn.Close(websocket.StatusGoingAway, "context cancelled")
			return
		}
	}
}
