package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/johndosdos/roomchat/internal/session"
)

// ServeHealth reports that the process is up.
func ServeHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	}
}

type usersResponse struct {
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// ServeUsers returns the nicknames currently online.
func ServeUsers(registry *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		users := registry.Snapshot()

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(usersResponse{Users: users, Count: len(users)}); err != nil {
			log.Printf("handler/users: failed to encode response: %v", err)
		}
	}
}
