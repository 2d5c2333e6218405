// Package room fans chat and presence events out to the members of a room.
package room

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/johndosdos/roomchat/internal/command"
	"github.com/johndosdos/roomchat/internal/model"
	"github.com/johndosdos/roomchat/internal/session"
)

// TimestampLayout is the new_message timestamp format, in server local time.
const TimestampLayout = "2006-01-02 15:04:05"

// Emitter delivers events to connections. Delivery is best-effort.
type Emitter interface {
	EmitToConnection(id session.ConnectionID, ev model.Event)
	EmitToRoom(room session.RoomID, ev model.Event)
}

// Relay receives every chat record after it has been fanned out.
type Relay interface {
	PublishChat(ctx context.Context, room session.RoomID, rec model.ChatRecord) error
}

// Snapshotter provides the current online nicknames.
type Snapshotter interface {
	Snapshot() []string
}

// Broadcaster builds room events and hands them to an Emitter.
type Broadcaster struct {
	room    session.RoomID
	emitter Emitter
	users   Snapshotter
	relay   Relay
	now     func() time.Time
}

type Option func(*Broadcaster)

// WithRelay forwards chat records to r.
func WithRelay(r Relay) Option {
	return func(b *Broadcaster) { b.relay = r }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Broadcaster) { b.now = now }
}

func NewBroadcaster(room session.RoomID, emitter Emitter, users Snapshotter, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		room:    room,
		emitter: emitter,
		users:   users,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broadcaster) AnnounceJoin(nickname string) {
	b.emitter.EmitToRoom(b.room, model.Event{
		Name: model.EventUserJoined,
		Data: model.Presence{Nickname: nickname, Message: fmt.Sprintf("%s 加入了聊天室", nickname)},
	})
}

func (b *Broadcaster) AnnounceLeave(nickname string) {
	b.emitter.EmitToRoom(b.room, model.Event{
		Name: model.EventUserLeft,
		Data: model.Presence{Nickname: nickname, Message: fmt.Sprintf("%s 离开了聊天室", nickname)},
	})
}

// BroadcastChat sends a chat record from sender to every room member,
// sender included, and returns the record that was sent.
func (b *Broadcaster) BroadcastChat(ctx context.Context, sender string, ev command.ChatEvent) model.ChatRecord {
	rec := model.ChatRecord{
		Sender:      sender,
		Message:     ev.Content,
		Type:        ev.Type,
		Timestamp:   b.now().Format(TimestampLayout),
		CommandData: ev.CommandData(),
	}
	b.emitter.EmitToRoom(b.room, model.Event{Name: model.EventNewMessage, Data: rec})

	if b.relay != nil {
		if err := b.relay.PublishChat(ctx, b.room, rec); err != nil {
			slog.WarnContext(ctx, "failed to relay chat record",
				"error", err,
				"room", b.room,
				"sender", sender)
		}
	}
	return rec
}

// BroadcastUserList sends the current online nicknames to the room.
func (b *Broadcaster) BroadcastUserList() {
	b.emitter.EmitToRoom(b.room, model.Event{
		Name: model.EventUpdateUsersList,
		Data: model.UsersList{Users: b.users.Snapshot()},
	})
}
