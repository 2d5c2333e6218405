package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/roomchat/internal/chat"
	"github.com/johndosdos/roomchat/internal/model"
	ratelimiter "github.com/johndosdos/roomchat/internal/rate_limiter"
	"github.com/johndosdos/roomchat/internal/session"
	ws "github.com/johndosdos/roomchat/internal/websocket"
)

func testWsOptions() WsOptions {
	return WsOptions{
		OriginPatterns: []string{"localhost:8080"},
		MaxMessageSize: 4096,
		MessageLimit:   100,
		MessageWindow:  time.Second,
	}
}

func newTestServer(t *testing.T, limiter *ratelimiter.IPRateLimiter) (*httptest.Server, *ws.Hub) {
	t.Helper()
	return newTestServerWith(t, limiter, testWsOptions(), false)
}

func newTestServerWith(t *testing.T, limiter *ratelimiter.IPRateLimiter, opts WsOptions, trustProxy bool) (*httptest.Server, *ws.Hub) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := ws.NewHub(session.NewRegistry(32), chat.Options{})
	go hub.Run(ctx)

	srv := httptest.NewServer(Router(hub, limiter, opts, trustProxy))
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
		srv.Close()
	})
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, model.Envelope{Event: event, Data: raw}))
}

func expect(t *testing.T, conn *websocket.Conn, event string, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var env model.Envelope
	require.NoError(t, wsjson.Read(ctx, conn, &env))
	require.Equal(t, event, env.Event)
	if v != nil {
		require.NoError(t, json.Unmarshal(env.Data, v))
	}
}

func TestChatOverWebsocket(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	alice := dial(t, srv)
	var hello model.ConnectionEstablished
	expect(t, alice, model.EventConnectionEstablished, &hello)
	assert.Len(t, hello.ClientID, 8)

	emit(t, alice, model.EventLogin, model.LoginRequest{Nickname: "alice", ServerAddress: srv.URL})
	var ok model.LoginSuccess
	expect(t, alice, model.EventLoginSuccess, &ok)
	assert.Equal(t, "alice", ok.Nickname)
	expect(t, alice, model.EventUserJoined, nil)
	var users model.UsersList
	expect(t, alice, model.EventUpdateUsersList, &users)
	assert.Equal(t, []string{"alice"}, users.Users)

	bob := dial(t, srv)
	expect(t, bob, model.EventConnectionEstablished, nil)

	emit(t, bob, model.EventSendMessage, model.SendMessageRequest{Message: "before login"})

	emit(t, bob, model.EventLogin, model.LoginRequest{Nickname: "alice"})
	var loginErr model.LoginError
	expect(t, bob, model.EventLoginError, &loginErr)
	assert.Equal(t, chat.MsgNicknameTaken, loginErr.Message)

	emit(t, bob, model.EventLogin, model.LoginRequest{Nickname: "bob"})
	expect(t, bob, model.EventLoginSuccess, nil)
	expect(t, bob, model.EventUserJoined, nil)
	expect(t, bob, model.EventUpdateUsersList, nil)

	var joined model.Presence
	expect(t, alice, model.EventUserJoined, &joined)
	assert.Equal(t, model.Presence{Nickname: "bob", Message: "bob 加入了聊天室"}, joined)
	expect(t, alice, model.EventUpdateUsersList, &users)
	assert.Equal(t, []string{"alice", "bob"}, users.Users)

	emit(t, bob, model.EventSendMessage, model.SendMessageRequest{Message: "@alice hi", Type: "text"})
	for _, conn := range []*websocket.Conn{alice, bob} {
		var rec model.ChatRecord
		expect(t, conn, model.EventNewMessage, &rec)
		assert.Equal(t, "bob", rec.Sender)
		assert.Equal(t, "@alice hi", rec.Message)
		assert.Equal(t, "mention", rec.Type)
		assert.Nil(t, rec.CommandData)
	}

	require.NoError(t, bob.Close(websocket.StatusNormalClosure, "bye"))

	var left model.Presence
	expect(t, alice, model.EventUserLeft, &left)
	assert.Equal(t, "bob", left.Nickname)
	expect(t, alice, model.EventUpdateUsersList, &users)
	assert.Equal(t, []string{"alice"}, users.Users)
}

func TestServeUsers(t *testing.T) {
	srv, hub := newTestServer(t, nil)

	reg := hub.Service().Registry()
	for _, nick := range []string{"carol", "alice"} {
		s := reg.Connect(uuid.New())
		require.NoError(t, reg.Login(s.ConnectionID, nick, ""))
	}

	resp, err := http.Get(srv.URL + "/api/users")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body usersResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, usersResponse{Users: []string{"alice", "carol"}, Count: 2}, body)
}

func TestServeHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	ServeHealth()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestWsRateLimitedPerIP(t *testing.T) {
	limiter := ratelimiter.NewIPRateLimiter(1, time.Minute, ratelimiter.CleanupOpts{TTL: time.Minute, Interval: time.Hour})
	t.Cleanup(limiter.Stop)
	srv, _ := newTestServer(t, limiter)

	conn := dial(t, srv)
	expect(t, conn, model.EventConnectionEstablished, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestWsRateLimitIgnoresForwardedFor(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		wantStatus int
	}{
		{name: "untrusted headers", trustProxy: false, wantStatus: http.StatusTooManyRequests},
		{name: "trusted proxy", trustProxy: true, wantStatus: http.StatusSwitchingProtocols},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := ratelimiter.NewIPRateLimiter(1, time.Minute, ratelimiter.CleanupOpts{TTL: time.Minute, Interval: time.Hour})
			t.Cleanup(limiter.Stop)
			srv, _ := newTestServerWith(t, limiter, testWsOptions(), tt.trustProxy)
			url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

			for _, addr := range []string{"203.0.113.1", "203.0.113.2"} {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
					HTTPHeader: http.Header{"X-Forwarded-For": []string{addr}},
				})
				cancel()
				if err == nil {
					t.Cleanup(func() { conn.CloseNow() })
				}
				if addr == "203.0.113.1" {
					require.NoError(t, err)
					continue
				}
				require.NotNil(t, resp)
				assert.Equal(t, tt.wantStatus, resp.StatusCode)
			}
		})
	}
}

func TestWsMessageRateLimit(t *testing.T) {
	opts := testWsOptions()
	// The login frame spends one token, leaving two chat messages.
	opts.MessageLimit = 3
	opts.MessageWindow = time.Minute
	srv, _ := newTestServerWith(t, nil, opts, false)

	alice := dial(t, srv)
	expect(t, alice, model.EventConnectionEstablished, nil)
	emit(t, alice, model.EventLogin, model.LoginRequest{Nickname: "alice"})
	expect(t, alice, model.EventLoginSuccess, nil)
	expect(t, alice, model.EventUserJoined, nil)
	expect(t, alice, model.EventUpdateUsersList, nil)

	for _, msg := range []string{"one", "two", "three"} {
		emit(t, alice, model.EventSendMessage, model.SendMessageRequest{Message: msg})
	}

	for _, want := range []string{"one", "two"} {
		var rec model.ChatRecord
		expect(t, alice, model.EventNewMessage, &rec)
		assert.Equal(t, want, rec.Message)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	var env model.Envelope
	err := wsjson.Read(ctx, alice, &env)
	require.Error(t, err, "third message should have been dropped, got %q", env.Event)
}

func TestWsRejectsForeignOrigin(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"http://evil.test"}},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
