// Package handler wires the HTTP surface: the websocket endpoint, the
// online-user snapshot and a health check.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/johndosdos/roomchat/internal"
	ratelimiter "github.com/johndosdos/roomchat/internal/rate_limiter"
	ws "github.com/johndosdos/roomchat/internal/websocket"
)

// Router returns the application routes. limiter may be nil.
//
// trustProxy enables X-Forwarded-For and X-Real-IP handling. Only set it
// behind a proxy that overwrites those headers, otherwise a client can pick
// its own address and slip past the per-IP limiter.
func Router(hub *ws.Hub, limiter *ratelimiter.IPRateLimiter, opts WsOptions, trustProxy bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(internal.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", ServeHealth())
	r.Get("/api/users", ServeUsers(hub.Service().Registry()))

	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Middleware)
		}
		r.Get("/ws", ServeWs(hub, opts))
	})

	return r
}
