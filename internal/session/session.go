// Package session tracks live connections, their login state and the
// nicknames they hold.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// RoomID names a broadcast group.
type RoomID string

// DefaultRoom is the room every logged-in session joins.
const DefaultRoom RoomID = "main_chat_room"

// ConnectionID is assigned once per connection and never reused.
type ConnectionID = uuid.UUID

var (
	ErrNicknameTaken   = errors.New("nickname already in use")
	ErrInvalidNickname = errors.New("invalid nickname")
	ErrAlreadyLoggedIn = errors.New("session already logged in")
	ErrSessionNotFound = errors.New("session not found")
)

// Session is a copy of the server-side state for one connection.
type Session struct {
	ConnectionID  ConnectionID
	DisplayID     string
	Nickname      string
	LoggedIn      bool
	ServerAddress string
	Rooms         []RoomID
	ConnectedAt   time.Time
}

type entry struct {
	displayID     string
	nickname      string
	loggedIn      bool
	serverAddress string
	rooms         map[RoomID]struct{}
	connectedAt   time.Time
}

func (e *entry) copy(id ConnectionID) Session {
	s := Session{
		ConnectionID:  id,
		DisplayID:     e.displayID,
		Nickname:      e.nickname,
		LoggedIn:      e.loggedIn,
		ServerAddress: e.serverAddress,
		ConnectedAt:   e.connectedAt,
	}
	for r := range e.rooms {
		s.Rooms = append(s.Rooms, r)
	}
	return s
}

func newDisplayID() string {
	return uuid.NewString()[:8]
}
