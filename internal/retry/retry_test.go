package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Policy{MaxAttempts: 3, InitialInterval: time.Millisecond}

func TestDo_TransientThenSuccess(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fast, Transient, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("connection refused")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestDo_FatalCalledOnce(t *testing.T) {
	calls := 0
	fatal := errors.New("malformed course payload")
	_, err := Do(context.Background(), fast, Transient, func() (int, error) {
		calls++
		return 0, fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fast, Transient, func() (int, error) {
		calls++
		return 0, errors.New("network timeout")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, Policy{MaxAttempts: 10, InitialInterval: 10 * time.Millisecond}, Transient, func() (int, error) {
		calls++
		cancel()
		return 0, errors.New("temporary outage")
	})
	assert.Error(t, err)
	assert.Less(t, calls, 10)
}

func TestTransient_Classification(t *testing.T) {
	assert.True(t, Transient(errors.New("dial tcp: connection reset")))
	assert.True(t, Transient(errors.New("request timeout")))
	assert.True(t, Transient(context.DeadlineExceeded))
	assert.False(t, Transient(errors.New("duplicate key violation")))
	assert.False(t, Transient(errors.New("invalid credentials")))
}
