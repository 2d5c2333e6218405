package ratelimiter

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newLimiter(t *testing.T, requests int) *IPRateLimiter {
	t.Helper()
	rl := NewIPRateLimiter(requests, time.Minute, CleanupOpts{TTL: time.Minute, Interval: time.Hour})
	t.Cleanup(rl.Stop)
	return rl
}

func TestAllow(t *testing.T) {
	rl := newLimiter(t, 2)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "buckets are per IP")
	assert.Equal(t, 2, rl.Len())
}

func TestEvict(t *testing.T) {
	rl := newLimiter(t, 1)
	rl.Allow("10.0.0.1")

	rl.evict(time.Now())
	assert.Equal(t, 1, rl.Len())

	rl.evict(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 0, rl.Len())
	assert.True(t, rl.Allow("10.0.0.1"), "evicted IP starts with a full bucket")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		want       string
	}{
		{"host and port", "192.0.2.1:4321", "192.0.2.1"},
		{"ipv6", "[2001:db8::1]:80", "2001:db8::1"},
		{"already bare", "192.0.2.9", "192.0.2.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.RemoteAddr = tt.remoteAddr
			assert.Equal(t, tt.want, ClientIP(r))
		})
	}
}

func TestMiddleware(t *testing.T) {
	rl := newLimiter(t, 1)
	calls := 0
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.RemoteAddr = "192.0.2.1:1000"
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, "request %d", i)
	}
	assert.Equal(t, 1, calls)
}
