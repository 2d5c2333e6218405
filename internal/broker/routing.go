package broker

import (
	"github.com/johndosdos/roomchat/internal/session"
)

// RoomSubject carries every chat record broadcast in room.
func RoomSubject(prefix string, room session.RoomID) string {
	return prefix + ".room." + string(room) + ".messages"
}

// CommandSubject carries records produced by a chat command such as "ai"
// or "movie", for bots that answer them.
func CommandSubject(prefix, msgType string) string {
	return prefix + ".command." + msgType
}
