package session

import (
	"fmt"
	"html"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

type sanitizer interface {
	Sanitize(s string) string
}

// Registry is the single owner of session, nickname and room membership
// state. Every mutation holds mu for the whole change, so the claim set
// and the per-session nickname never disagree.
type Registry struct {
	mu       sync.RWMutex
	sessions map[ConnectionID]*entry
	claims   map[string]ConnectionID
	rooms    map[RoomID]map[ConnectionID]struct{}

	maxNickLen int
	sanitizer  sanitizer
	now        func() time.Time
}

// NewRegistry returns an empty Registry. maxNickLen <= 0 disables the
// length check.
func NewRegistry(maxNickLen int) *Registry {
	return &Registry{
		sessions:   make(map[ConnectionID]*entry),
		claims:     make(map[string]ConnectionID),
		rooms:      make(map[RoomID]map[ConnectionID]struct{}),
		maxNickLen: maxNickLen,
		sanitizer:  bluemonday.StrictPolicy(),
		now:        time.Now,
	}
}

// Connect allocates a session for the connection id. Connecting an id
// that is already live returns its existing session.
func (r *Registry) Connect(id ConnectionID) Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[id]; ok {
		return e.copy(id)
	}

	e := &entry{
		displayID:   newDisplayID(),
		rooms:       make(map[RoomID]struct{}),
		connectedAt: r.now(),
	}
	r.sessions[id] = e
	return e.copy(id)
}

// ValidateNickname reports whether nickname may be claimed at all.
func (r *Registry) ValidateNickname(nickname string) error {
	if strings.TrimSpace(nickname) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidNickname)
	}
	if r.maxNickLen > 0 && utf8.RuneCountInString(nickname) > r.maxNickLen {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidNickname, r.maxNickLen)
	}
	// Nicknames are rendered in every client's user list.
	if html.UnescapeString(r.sanitizer.Sanitize(nickname)) != nickname {
		return fmt.Errorf("%w: contains markup", ErrInvalidNickname)
	}
	return nil
}

// Login claims nickname for the session and joins it to DefaultRoom.
// Concurrent logins racing on one nickname have exactly one winner.
func (r *Registry) Login(id ConnectionID, nickname, serverAddress string) error {
	if err := r.ValidateNickname(nickname); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if e.loggedIn {
		return ErrAlreadyLoggedIn
	}
	if _, taken := r.claims[nickname]; taken {
		return ErrNicknameTaken
	}

	r.claims[nickname] = id
	e.nickname = nickname
	e.loggedIn = true
	e.serverAddress = serverAddress
	r.join(id, e, DefaultRoom)
	return nil
}

// Logout releases the session's nickname and leaves every room. It
// returns false when the session was not logged in.
func (r *Registry) Logout(id ConnectionID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return "", false
	}
	return r.release(id, e)
}

// Disconnect releases any held nickname and forgets the session. Calling
// it twice, or for a session that never logged in, is safe.
func (r *Registry) Disconnect(id ConnectionID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return "", false
	}
	nickname, released := r.release(id, e)
	delete(r.sessions, id)
	return nickname, released
}

// Snapshot returns the logged-in nicknames in sorted order.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.claims))
	for nickname := range r.claims {
		users = append(users, nickname)
	}
	r.mu.RUnlock()

	slices.Sort(users)
	return users
}

// Members returns the connections currently joined to room.
func (r *Registry) Members(room RoomID) []ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]ConnectionID, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		members = append(members, id)
	}
	return members
}

// Session returns a copy of the session for id.
func (r *Registry) Session(id ConnectionID) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return e.copy(id), true
}

// Nickname returns the session's nickname while it is logged in.
func (r *Registry) Nickname(id ConnectionID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[id]
	if !ok || !e.loggedIn {
		return "", false
	}
	return e.nickname, true
}

// Len returns the number of live sessions, logged in or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) join(id ConnectionID, e *entry, room RoomID) {
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[ConnectionID]struct{})
		r.rooms[room] = members
	}
	members[id] = struct{}{}
	e.rooms[room] = struct{}{}
}

// release must be called with mu held.
func (r *Registry) release(id ConnectionID, e *entry) (string, bool) {
	for room := range e.rooms {
		if members, ok := r.rooms[room]; ok {
			delete(members, id)
			if len(members) == 0 {
				delete(r.rooms, room)
			}
		}
		delete(e.rooms, room)
	}

	if !e.loggedIn {
		return "", false
	}

	nickname := e.nickname
	if owner, ok := r.claims[nickname]; ok && owner == id {
		delete(r.claims, nickname)
	}
	e.nickname = ""
	e.loggedIn = false
	e.serverAddress = ""
	return nickname, true
}
