// Package model defines the JSON payloads exchanged with chat clients.
package model

import "encoding/json"

// Inbound event names.
const (
	EventLogin       = "login"
	EventLogout      = "logout"
	EventSendMessage = "send_message"
)

// Outbound event names.
const (
	EventConnectionEstablished = "connection_established"
	EventLoginSuccess          = "login_success"
	EventLoginError            = "login_error"
	EventUserJoined            = "user_joined"
	EventUserLeft              = "user_left"
	EventNewMessage            = "new_message"
	EventUpdateUsersList       = "update_users_list"
)

// Envelope wraps every frame on the websocket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound event before encoding.
type Event struct {
	Name string
	Data any
}

// Encode marshals e into an Envelope frame.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: e.Name, Data: data})
}

type LoginRequest struct {
	Nickname      string `json:"nickname"`
	ServerAddress string `json:"server_address"`
}

type SendMessageRequest struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type ConnectionEstablished struct {
	ClientID string `json:"client_id"`
}

type LoginSuccess struct {
	Nickname string `json:"nickname"`
}

type LoginError struct {
	Message string `json:"message"`
}

// Presence is the payload of user_joined and user_left.
type Presence struct {
	Nickname string `json:"nickname"`
	Message  string `json:"message"`
}

type UsersList struct {
	Users []string `json:"users"`
}

// ChatRecord is a timestamped chat line as broadcast in new_message.
type ChatRecord struct {
	Sender      string            `json:"sender"`
	Message     string            `json:"message"`
	Type        string            `json:"type"`
	Timestamp   string            `json:"timestamp"`
	CommandData map[string]string `json:"command_data"`
}
