package util

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallWithTimeout(t *testing.T) {
	t.Run("returns value", func(t *testing.T) {
		got, err := CallWithTimeout(context.Background(), time.Second, func(ctx context.Context) (int, error) {
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, got)
	})

	t.Run("propagates error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := CallWithTimeout(context.Background(), time.Second, func(ctx context.Context) (int, error) {
			return 0, boom
		})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("gives up on a callee ignoring its context", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)

		started := time.Now()
		_, err := CallWithTimeout(context.Background(), 20*time.Millisecond, func(ctx context.Context) (int, error) {
			<-release
			return 1, nil
		})
		assert.ErrorIs(t, err, ErrCallTimeout)
		assert.Less(t, time.Since(started), time.Second)
	})

	t.Run("parent cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := CallWithTimeout(ctx, time.Second, func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestErrCallTimeout_IsSentinel(t *testing.T) {
	wrapped := fmt.Errorf("poll BTCUSD: %w", ErrCallTimeout)

	assert.ErrorIs(t, wrapped, ErrCallTimeout)
	assert.Equal(t, "call timeout", ErrCallTimeout.Error())
	assert.Nil(t, errors.Unwrap(ErrCallTimeout))
}
