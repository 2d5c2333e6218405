package websocket

import (
	"context"
	"log"
	"log/slog"
	"sync"

	"github.com/johndosdos/roomchat/internal/chat"
	"github.com/johndosdos/roomchat/internal/model"
	"github.com/johndosdos/roomchat/internal/session"
)

type Registration struct {
	Client *Client
	Done   chan struct{}
}

// Inbound is one decoded frame read from a client.
type Inbound struct {
	Client   *Client
	Envelope model.Envelope
}

// Hub owns every live client. All lifecycle and inbound events pass
// through Run, so the chat service sees them one at a time.
type Hub struct {
	service *chat.Service

	mu      sync.RWMutex
	clients map[session.ConnectionID]*Client

	Register   chan Registration
	Unregister chan *Client
	ClientMsg  chan Inbound

	done chan struct{}
}

// NewHub returns a new instance of Hub.
func NewHub(registry *session.Registry, opts chat.Options) *Hub {
	h := &Hub{
		clients:    make(map[session.ConnectionID]*Client),
		Register:   make(chan Registration),
		Unregister: make(chan *Client),
		ClientMsg:  make(chan Inbound, 1024),
		done:       make(chan struct{}),
	}
	h.service = chat.NewService(registry, h, opts)
	return h
}

// Service returns the chat service driven by the hub.
func (h *Hub) Service() *chat.Service {
	return h.service
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run manages incoming and outgoing hub traffic until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case reg := <-h.Register:
			client := reg.Client
			client.Hub = h
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.service.Connect(ctx, client.ID)
			close(reg.Done)

		case client := <-h.Unregister:
			if !h.remove(client) {
				continue
			}
			h.service.Disconnect(ctx, client.ID)

		case in := <-h.ClientMsg:
			// Frames still queued when their client unregistered are dropped.
			if !h.registered(in.Client) {
				slog.DebugContext(ctx, "dropping event from unregistered client",
					"connection_id", in.Client.ID,
					"event", in.Envelope.Event)
				continue
			}
			h.service.Handle(ctx, in.Client.ID, in.Envelope)

		case <-ctx.Done():
			log.Printf("context cancelled: %v", ctx.Err())
			h.closeAll(ctx)
			return
		}
	}
}

// EmitToConnection queues ev for one client. A full queue drops the event.
func (h *Hub) EmitToConnection(id session.ConnectionID, ev model.Event) {
	frame, err := ev.Encode()
	if err != nil {
		slog.Error("failed to encode event", "event", ev.Name, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if client, ok := h.clients[id]; ok {
		h.send(client, ev.Name, frame)
	}
}

// EmitToRoom queues ev for every session joined to room.
func (h *Hub) EmitToRoom(room session.RoomID, ev model.Event) {
	frame, err := ev.Encode()
	if err != nil {
		slog.Error("failed to encode event", "event", ev.Name, "error", err)
		return
	}

	members := h.service.Registry().Members(room)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range members {
		if client, ok := h.clients[id]; ok {
			h.send(client, ev.Name, frame)
		}
	}
}

// send must be called with mu held; the channel is only closed under the
// write lock.
func (h *Hub) send(client *Client, event string, frame []byte) {
	select {
	case client.MessageCh <- frame:
	default:
		slog.Warn("skipping event - channel full or client slow",
			"connection_id", client.ID,
			"event", event)
	}
}

// Len returns the number of registered clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registered(client *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[client.ID]
	return ok && c == client
}

func (h *Hub) remove(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[client.ID]
	if !ok || c != client {
		return false
	}
	delete(h.clients, client.ID)
	close(client.MessageCh)
	return true
}

func (h *Hub) closeAll(ctx context.Context) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.MessageCh)
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		h.service.Registry().Disconnect(client.ID)
	}
	slog.InfoContext(ctx, "hub stopped", "closed_clients", len(clients))
}
