package api

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	assert.True(t, rl.Allow("b"), "clients have independent buckets")
	assert.Equal(t, 2, rl.Len())
}

func TestRateLimiter_Prune(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(20 * time.Minute)
	rl.Allow("new")

	assert.Equal(t, 1, rl.Prune(10*time.Minute))
	assert.Equal(t, 1, rl.Len())
}

func TestRateLimiter_MinimumBurst(t *testing.T) {
	rl := NewRateLimiter(1, 0)
	assert.True(t, rl.Allow("a"))
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", clientKey(req))

	req.Header.Set("X-Client-ID", "tab-42")
	assert.Equal(t, "tab-42", clientKey(req))

	req.Header.Del("X-Client-ID")
	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", clientKey(req))
}
