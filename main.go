// Package main our entry point.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/johndosdos/roomchat/internal/broker"
	"github.com/johndosdos/roomchat/internal/chat"
	"github.com/johndosdos/roomchat/internal/config"
	"github.com/johndosdos/roomchat/internal/handler"
	ratelimiter "github.com/johndosdos/roomchat/internal/rate_limiter"
	"github.com/johndosdos/roomchat/internal/session"
	ws "github.com/johndosdos/roomchat/internal/websocket"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetOutput(os.Stdout)

	cfg := config.Load()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Println("Starting application...")

	opts := chat.Options{SanitizeMessages: cfg.SanitizeMessages}

	// The NATS relay is optional; without NATS_URL the room stays local.
	var natsConn *nats.Conn
	if cfg.NATS.URL != "" {
		log.Println("Initializing NATS connection...")
		conn, err := broker.Connect(cfg.NATS)
		if err != nil {
			log.Fatalf("nats: %v", err)
		}
		natsConn = conn
		opts.Relay = broker.NewRelay(conn, cfg.NATS.SubjectPrefix)
	}

	// hub.Run is our central hub that is always listening for client related events.
	hub := ws.NewHub(session.NewRegistry(cfg.NicknameMaxLen), opts)
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	limiter := ratelimiter.NewIPRateLimiter(cfg.ConnectRate.Requests, cfg.ConnectRate.Window, ratelimiter.CleanupOpts{
		TTL:      10 * time.Minute,
		Interval: time.Minute,
	})

	server := &http.Server{
		Addr: cfg.Addr(),
		Handler: handler.Router(hub, limiter, handler.WsOptions{
			OriginPatterns: cfg.AllowedOrigins,
			MaxMessageSize: cfg.MaxMessageSize,
			MessageLimit:   cfg.MessageRate.Requests,
			MessageWindow:  cfg.MessageRate.Window,
		}, cfg.TrustProxyHeaders),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		log.Printf("Server starting at %s", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutdown signal received; shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown, so the hub
	// is stopped first to close every client.
	stopHub()
	select {
	case <-hub.Done():
	case <-shutdownCtx.Done():
		log.Println("hub did not stop in time")
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Println(err)
	}

	limiter.Stop()

	// Drain NATS connection.
	if natsConn != nil {
		if err := natsConn.Drain(); err != nil {
			log.Printf("couldn't drain NATS conn: %+v", err)
		}
	}

	log.Println("Server stopped")
}
