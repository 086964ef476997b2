package circuitbreaker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"chatdesk/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackendDown = fmt.Errorf("backend unavailable")

func failing(ctx context.Context) error { return errBackendDown }
func succeeding(ctx context.Context) error { return nil }

func TestOpensAfterMaxFailures(t *testing.T) {
	cb := New("backend", 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := cb.Execute(ctx, failing)
		assert.ErrorIs(t, err, errBackendDown)
	}

	assert.Equal(t, StateOpen, cb.GetState())

	// Subsequent calls are rejected without invoking the function
	called := false
	err := cb.Execute(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := New("backend", 3, time.Minute)
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	require.Error(t, cb.Execute(ctx, failing))
	require.NoError(t, cb.Execute(ctx, succeeding))
	require.Error(t, cb.Execute(ctx, failing))
	require.Error(t, cb.Execute(ctx, failing))

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpenRecovery(t *testing.T) {
	cb := New("backend", 1, 10*time.Millisecond)
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(20 * time.Millisecond)

	// Enough successful probes close the circuit again
	for i := uint32(0); i < constants.CBHalfOpenMaxCalls; i++ {
		require.NoError(t, cb.Execute(ctx, succeeding))
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := New("backend", 1, 10*time.Millisecond)
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	time.Sleep(20 * time.Millisecond)

	require.Error(t, cb.Execute(ctx, failing))
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestReset(t *testing.T) {
	cb := New("backend", 1, time.Minute)
	require.Error(t, cb.Execute(context.Background(), failing))
	require.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())

	stats := cb.GetStats()
	assert.Equal(t, "closed", stats["state"])
	assert.Equal(t, uint32(0), stats["failures"])
}
