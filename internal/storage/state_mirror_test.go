package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/position-dashboard/internal/config"
	"github.com/position-dashboard/internal/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func setupMirror(t *testing.T, ttl time.Duration) (*StateMirror, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisCacheFromClient(client)
	t.Cleanup(func() { _ = cache.Close() })

	return NewStateMirror(cache, ttl), mr
}

func populatedState() *types.DisplayState {
	st := types.NewDisconnectedState("s1")
	st.Wallet = "AdfUdxJZbZqv2ipXZ2CohmCYTADWp57BwtE9jfAUdwtk"
	st.Status = types.StatusPopulated
	st.BTCPrice = "60000.00"
	st.LendingStatus = types.SectionPopulated
	st.Lending = &types.LendingView{CollateralAmount: "1.500000", LTVRisk: types.RiskHealthy}
	st.PerpStatus = types.SectionNoPosition
	st.Sequence = 3
	return st
}

func TestStateMirror_PublishAndLoad(t *testing.T) {
	mirror, mr := setupMirror(t, time.Minute)
	ctx := testContext(t)

	require.NoError(t, mirror.Publish(ctx, populatedState()))

	assert.True(t, mr.Exists("dashboard:state:s1"))
	assert.Equal(t, time.Minute, mr.TTL("dashboard:state:s1"))

	got, ok, err := mirror.Load(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.StatusPopulated, got.Status)
	assert.Equal(t, "60000.00", got.BTCPrice)
	require.NotNil(t, got.Lending)
	assert.Equal(t, "1.500000", got.Lending.CollateralAmount)
	assert.Nil(t, got.Perp)
	assert.Equal(t, uint64(3), got.Sequence)
}

func TestStateMirror_KeyExpires(t *testing.T) {
	mirror, mr := setupMirror(t, 30*time.Second)
	ctx := testContext(t)

	require.NoError(t, mirror.Publish(ctx, populatedState()))
	mr.FastForward(31 * time.Second)

	_, ok, err := mirror.Load(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStateMirror_Remove(t *testing.T) {
	mirror, mr := setupMirror(t, time.Minute)
	ctx := testContext(t)

	require.NoError(t, mirror.Publish(ctx, populatedState()))
	require.NoError(t, mirror.Remove(ctx, "s1"))
	assert.False(t, mr.Exists(StateKey("s1")))

	require.NoError(t, mirror.Remove(ctx, "never-existed"))
}

func TestStateMirror_DefaultTTL(t *testing.T) {
	mirror, _ := setupMirror(t, 0)
	assert.Equal(t, DefaultStateTTL, mirror.ttl)
	assert.Equal(t, "redis", mirror.Name())
}

func TestStateMirror_LoadCorrupt(t *testing.T) {
	mirror, mr := setupMirror(t, time.Minute)
	require.NoError(t, mr.Set(StateKey("s1"), "{not json"))

	_, _, err := mirror.Load(testContext(t), "s1")
	assert.Error(t, err)
}

func TestStateMirror_PublishFailsWhenRedisDown(t *testing.T) {
	mirror, mr := setupMirror(t, time.Minute)
	mr.Close()

	err := mirror.Publish(testContext(t), populatedState())
	assert.Error(t, err)
}

func TestNewRedisCache_RetriesThenFails(t *testing.T) {
	ctx := testContext(t)
	_, err := NewRedisCache(ctx, &config.RedisConfig{
		Host:           "127.0.0.1",
		Port:           "1",
		MaxConnections: 2,
	})
	assert.Error(t, err)
}

func TestNewRedisCache_Connects(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cache, err := NewRedisCache(testContext(t), &config.RedisConfig{
		Host:           mr.Host(),
		Port:           mr.Port(),
		MaxConnections: 2,
	})
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	ctx := testContext(t)
	require.NoError(t, cache.Set(ctx, "k", "v", time.Minute))
	v, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	exists, err := cache.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, cache.Ping(ctx))
}
