package adapter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCProvider_Failover(t *testing.T) {
	p, err := NewRPCProvider("http://primary", "http://secondary")
	require.NoError(t, err)

	assert.Equal(t, "http://primary", p.CurrentURL())
	require.NoError(t, p.Failover())
	assert.Equal(t, "http://secondary", p.CurrentURL())
	require.NoError(t, p.Failover())
	assert.Equal(t, "http://primary", p.CurrentURL())

	require.NoError(t, p.Failover())
	p.Reset()
	assert.Equal(t, "http://primary", p.CurrentURL())
	assert.Equal(t, int64(3), p.Health().Failovers)
}

func TestRPCProvider_NoSecondary(t *testing.T) {
	p, err := NewRPCProvider("http://primary", "http://primary")
	require.NoError(t, err)

	assert.False(t, p.HasSecondary())
	assert.Error(t, p.Failover())
	assert.Equal(t, "http://primary", p.CurrentURL())
}

func TestRPCProvider_Health(t *testing.T) {
	p, err := NewRPCProvider("http://primary", "")
	require.NoError(t, err)
	p.SetHealthThresholds(3, 0.5)

	p.RecordSuccess(10 * time.Millisecond)
	p.RecordSuccess(30 * time.Millisecond)
	assert.True(t, p.IsHealthy())

	for i := 0; i < 3; i++ {
		p.RecordFailure(errors.New("connection refused"))
	}
	health := p.Health()
	assert.False(t, health.IsHealthy)
	assert.Equal(t, 3, health.ConsecutiveFails)
	assert.Equal(t, 20*time.Millisecond, health.AverageLatency)
	assert.Equal(t, "connection refused", health.LastError)

	p.RecordSuccess(time.Millisecond)
	assert.True(t, p.IsHealthy())
}
