package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	apperrors "github.com/position-dashboard/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newRPCServer answers every call with result, echoing the request id
func newRPCServer(t *testing.T, calls *int32, handle func(req rpcRequest) (interface{}, int)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		result, status := handle(req)
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSolanaRPC_GetSlot(t *testing.T) {
	var calls int32
	var gotParams []json.RawMessage
	srv := newRPCServer(t, &calls, func(req rpcRequest) (interface{}, int) {
		assert.Equal(t, "getSlot", req.Method)
		gotParams = req.Params
		return 312000123, http.StatusOK
	})

	client, err := NewSolanaRPC(srv.URL, "", "finalized")
	require.NoError(t, err)
	defer client.Close()

	slot, err := client.GetSlot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(312000123), slot)
	require.Len(t, gotParams, 1)
	assert.JSONEq(t, `{"commitment":"finalized"}`, string(gotParams[0]))
	assert.Equal(t, int64(1), client.Provider().Health().SuccessfulReqs)
}

func TestSolanaRPC_FailsOverToSecondary(t *testing.T) {
	var primaryCalls, secondaryCalls int32
	primary := newRPCServer(t, &primaryCalls, func(req rpcRequest) (interface{}, int) {
		return nil, http.StatusServiceUnavailable
	})
	secondary := newRPCServer(t, &secondaryCalls, func(req rpcRequest) (interface{}, int) {
		return 42, http.StatusOK
	})

	client, err := NewSolanaRPC(primary.URL, secondary.URL, "")
	require.NoError(t, err)
	defer client.Close()

	slot, err := client.GetSlot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), slot)
	assert.Equal(t, int32(1), atomic.LoadInt32(&primaryCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&secondaryCalls))

	health := client.Provider().Health()
	assert.Equal(t, secondary.URL, health.CurrentURL)
	assert.Equal(t, int64(1), health.Failovers)
	assert.Equal(t, int64(1), health.FailedReqs)
}

func TestSolanaRPC_BothEndpointsDown(t *testing.T) {
	var primaryCalls, secondaryCalls int32
	down := func(req rpcRequest) (interface{}, int) { return nil, http.StatusBadGateway }
	primary := newRPCServer(t, &primaryCalls, down)
	secondary := newRPCServer(t, &secondaryCalls, down)

	client, err := NewSolanaRPC(primary.URL, secondary.URL, "")
	require.NoError(t, err)
	defer client.Close()

	_, err = client.GetSlot(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNetworkFailure))
	assert.Equal(t, int32(1), atomic.LoadInt32(&primaryCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&secondaryCalls))
}

func TestSolanaRPC_NoSecondaryMeansSingleAttempt(t *testing.T) {
	var calls int32
	srv := newRPCServer(t, &calls, func(req rpcRequest) (interface{}, int) {
		return nil, http.StatusInternalServerError
	})

	client, err := NewSolanaRPC(srv.URL, "", "")
	require.NoError(t, err)
	defer client.Close()

	_, err = client.GetSlot(context.Background())
	assert.True(t, errors.Is(err, apperrors.ErrNetworkFailure))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSolanaRPC_MalformedResultIsParseFailure(t *testing.T) {
	var calls int32
	srv := newRPCServer(t, &calls, func(req rpcRequest) (interface{}, int) {
		return "not-a-slot", http.StatusOK
	})

	client, err := NewSolanaRPC(srv.URL, "", "")
	require.NoError(t, err)
	defer client.Close()

	_, err = client.GetSlot(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrParseFailure))
}

func TestSolanaRPC_GetHealth(t *testing.T) {
	var calls int32
	status := "ok"
	srv := newRPCServer(t, &calls, func(req rpcRequest) (interface{}, int) {
		assert.Equal(t, "getHealth", req.Method)
		return status, http.StatusOK
	})

	client, err := NewSolanaRPC(srv.URL, "", "")
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.GetHealth(context.Background()))

	status = "behind"
	err = client.GetHealth(context.Background())
	assert.True(t, errors.Is(err, apperrors.ErrNetworkFailure))
}

func TestNewSolanaRPC_RequiresPrimary(t *testing.T) {
	_, err := NewSolanaRPC("", "http://localhost:8899", "")
	assert.Error(t, err)
}
