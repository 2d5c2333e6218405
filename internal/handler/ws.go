package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	ws "github.com/johndosdos/roomchat/internal/websocket"
)

// WsOptions configures the websocket upgrade.
type WsOptions struct {
	// OriginPatterns are host patterns accepted in the Origin header. A
	// single "*" accepts any origin.
	OriginPatterns []string
	MaxMessageSize int64
	MessageLimit   int
	MessageWindow  time.Duration
}

// ServeWs handles the client's websocket connection upgrade.
func ServeWs(h *ws.Hub, opts WsOptions) http.HandlerFunc {
	acceptOpts := &websocket.AcceptOptions{}
	for _, p := range opts.OriginPatterns {
		if p == "*" {
			acceptOpts.InsecureSkipVerify = true
		}
	}
	if !acceptOpts.InsecureSkipVerify {
		acceptOpts.OriginPatterns = opts.OriginPatterns
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		conn, err := websocket.Accept(w, r, acceptOpts)
		if err != nil {
			slog.WarnContext(ctx, "failed to upgrade connection to websocket",
				"error", err,
				"remote_addr", r.RemoteAddr)
			return
		}
		if opts.MaxMessageSize > 0 {
			conn.SetReadLimit(opts.MaxMessageSize)
		}

		// We'll register our new client to the central hub.
		c := ws.NewClient(conn, uuid.New(), r.RemoteAddr)
		if opts.MessageLimit > 0 && opts.MessageWindow > 0 {
			c.SetMessageLimiter(opts.MessageLimit, opts.MessageWindow)
		}
		reg := ws.Registration{
			Client: c,
			Done:   make(chan struct{}),
		}

		select {
		case h.Register <- reg:
		case <-h.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case <-ctx.Done():
			conn.CloseNow()
			return
		}

		// Wait for registration to complete
		<-reg.Done

		// We block on c.ReadMessage() because the request context will be canceled as soon
		// we return from the ServeWs() handler.
		go c.WriteMessage(ctx)
		c.ReadMessage(ctx)
	}
}
