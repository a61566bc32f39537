package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/position-dashboard/internal/state"
	"github.com/position-dashboard/internal/types"
	"github.com/redis/go-redis/v9"
)

// StateKeyPrefix prefixes the mirrored state of every session
const StateKeyPrefix = "dashboard:state:"

// DefaultStateTTL is used when the configured TTL is not positive
const DefaultStateTTL = 2 * time.Minute

var (
	_ state.Sink    = (*StateMirror)(nil)
	_ state.Remover = (*StateMirror)(nil)
)

// StateMirror writes each committed DisplayState to Redis as JSON so other
// processes can read a session without holding a stream open. Keys expire
// when a session stops refreshing.
type StateMirror struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewStateMirror creates a mirror over cache
func NewStateMirror(cache *RedisCache, ttl time.Duration) *StateMirror {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateMirror{cache: cache, ttl: ttl}
}

// StateKey returns the Redis key of a session
func StateKey(sessionID string) string {
	return StateKeyPrefix + sessionID
}

// Name identifies the sink in logs and metrics
func (m *StateMirror) Name() string {
	return "redis"
}

// Publish stores st under its session key
func (m *StateMirror) Publish(ctx context.Context, st *types.DisplayState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode state for %s: %w", st.SessionID, err)
	}
	if err := m.cache.Set(ctx, StateKey(st.SessionID), data, m.ttl); err != nil {
		return fmt.Errorf("failed to mirror state for %s: %w", st.SessionID, err)
	}
	return nil
}

// Remove deletes the mirrored state of a session
func (m *StateMirror) Remove(ctx context.Context, sessionID string) error {
	return m.cache.Del(ctx, StateKey(sessionID))
}

// Load reads the mirrored state of a session. A missing key returns (nil, false, nil).
func (m *StateMirror) Load(ctx context.Context, sessionID string) (*types.DisplayState, bool, error) {
	raw, err := m.cache.Get(ctx, StateKey(sessionID))
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var st types.DisplayState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, false, fmt.Errorf("failed to decode mirrored state for %s: %w", sessionID, err)
	}
	return &st, true, nil
}
