// Package chat dispatches connection lifecycle and inbound client events to
// the session registry, the command interpreter and the room broadcaster.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"log/slog"

	"github.com/microcosm-cc/bluemonday"

	"github.com/johndosdos/roomchat/internal/command"
	"github.com/johndosdos/roomchat/internal/model"
	"github.com/johndosdos/roomchat/internal/room"
	"github.com/johndosdos/roomchat/internal/session"
)

// Messages sent back in login_error.
const (
	MsgNicknameTaken   = "该昵称已被使用，请选择其他昵称"
	MsgInvalidNickname = "昵称无效，请重新输入"
	MsgAlreadyLoggedIn = "您已登录，请先退出"
)

type sanitizer interface {
	Sanitize(s string) string
}

type Options struct {
	// SanitizeMessages strips markup from chat text before interpretation.
	SanitizeMessages bool
	Relay            room.Relay
}

// Service is the transport independent half of the connection gateway.
type Service struct {
	registry    *session.Registry
	interpreter *command.Interpreter
	broadcaster *room.Broadcaster
	emitter     room.Emitter
	sanitizer   sanitizer
}

func NewService(registry *session.Registry, emitter room.Emitter, opts Options) *Service {
	var bopts []room.Option
	if opts.Relay != nil {
		bopts = append(bopts, room.WithRelay(opts.Relay))
	}

	s := &Service{
		registry:    registry,
		interpreter: command.New(nil),
		broadcaster: room.NewBroadcaster(session.DefaultRoom, emitter, registry, bopts...),
		emitter:     emitter,
	}
	if opts.SanitizeMessages {
		s.sanitizer = bluemonday.StrictPolicy()
	}
	return s
}

// Registry exposes the session registry for read-only callers.
func (s *Service) Registry() *session.Registry {
	return s.registry
}

// Connect registers connection id and greets it with its display id.
func (s *Service) Connect(ctx context.Context, id session.ConnectionID) session.Session {
	sess := s.registry.Connect(id)
	s.emitter.EmitToConnection(sess.ConnectionID, model.Event{
		Name: model.EventConnectionEstablished,
		Data: model.ConnectionEstablished{ClientID: sess.DisplayID},
	})
	slog.InfoContext(ctx, "client connected",
		"connection_id", sess.ConnectionID,
		"client_id", sess.DisplayID)
	return sess
}

// Disconnect forgets the connection and announces the departure if it
// held a nickname.
func (s *Service) Disconnect(ctx context.Context, id session.ConnectionID) {
	sess, _ := s.registry.Session(id)
	nickname, released := s.registry.Disconnect(id)
	if !released {
		slog.InfoContext(ctx, "client disconnected before login",
			"connection_id", id,
			"client_id", sess.DisplayID)
		return
	}

	s.broadcaster.AnnounceLeave(nickname)
	s.broadcaster.BroadcastUserList()
	slog.InfoContext(ctx, "user disconnected", "nickname", nickname)
}

// Handle dispatches one inbound envelope from connection id.
func (s *Service) Handle(ctx context.Context, id session.ConnectionID, env model.Envelope) {
	switch env.Event {
	case model.EventLogin:
		var req model.LoginRequest
		if !decode(ctx, id, env, &req) {
			return
		}
		s.Login(ctx, id, req)

	case model.EventLogout:
		s.Logout(ctx, id)

	case model.EventSendMessage:
		var req model.SendMessageRequest
		if !decode(ctx, id, env, &req) {
			return
		}
		s.SendMessage(ctx, id, req)

	default:
		slog.WarnContext(ctx, "unknown event",
			"connection_id", id,
			"event", env.Event)
	}
}

func (s *Service) Login(ctx context.Context, id session.ConnectionID, req model.LoginRequest) {
	err := s.registry.Login(id, req.Nickname, req.ServerAddress)
	if err != nil {
		slog.InfoContext(ctx, "login rejected",
			"connection_id", id,
			"nickname", req.Nickname,
			"error", err)

		msg, ok := loginErrorMessage(err)
		if ok {
			s.emitter.EmitToConnection(id, model.Event{
				Name: model.EventLoginError,
				Data: model.LoginError{Message: msg},
			})
		}
		return
	}

	s.emitter.EmitToConnection(id, model.Event{
		Name: model.EventLoginSuccess,
		Data: model.LoginSuccess{Nickname: req.Nickname},
	})
	s.broadcaster.AnnounceJoin(req.Nickname)
	s.broadcaster.BroadcastUserList()
	slog.InfoContext(ctx, "user logged in",
		"connection_id", id,
		"nickname", req.Nickname)
}

func (s *Service) Logout(ctx context.Context, id session.ConnectionID) {
	nickname, released := s.registry.Logout(id)
	if !released {
		slog.DebugContext(ctx, "logout ignored; not logged in", "connection_id", id)
		return
	}

	s.broadcaster.AnnounceLeave(nickname)
	s.broadcaster.BroadcastUserList()
	slog.InfoContext(ctx, "user logged out", "nickname", nickname)
}

func (s *Service) SendMessage(ctx context.Context, id session.ConnectionID, req model.SendMessageRequest) {
	nickname, ok := s.registry.Nickname(id)
	if !ok {
		slog.DebugContext(ctx, "message ignored; not logged in", "connection_id", id)
		return
	}

	text := req.Message
	if s.sanitizer != nil {
		// Tags are stripped, but the text stays unescaped: clients escape on
		// render and command_data.url must remain a usable URL.
		text = html.UnescapeString(s.sanitizer.Sanitize(text))
	}

	ev := s.interpreter.Interpret(text)
	s.broadcaster.BroadcastChat(ctx, nickname, ev)
	slog.DebugContext(ctx, "message broadcast",
		"sender", nickname,
		"kind", ev.Kind.String())
}

func loginErrorMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, session.ErrNicknameTaken):
		return MsgNicknameTaken, true
	case errors.Is(err, session.ErrInvalidNickname):
		return MsgInvalidNickname, true
	case errors.Is(err, session.ErrAlreadyLoggedIn):
		return MsgAlreadyLoggedIn, true
	default:
		// The connection is already gone.
		return "", false
	}
}

func decode(ctx context.Context, id session.ConnectionID, env model.Envelope, v any) bool {
	if len(env.Data) == 0 {
		return true
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		slog.WarnContext(ctx, "failed to decode event payload",
			"connection_id", id,
			"event", env.Event,
			"error", err)
		return false
	}
	return true
}
