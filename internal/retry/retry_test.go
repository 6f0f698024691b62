package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestDo_SucceedsAfterTransientErrors(t *testing.T) {
	t.Parallel()
	attempts := 0
	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("dial tcp: connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	t.Parallel()
	attempts := 0
	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		return errors.New("password authentication failed")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	t.Parallel()
	sentinel := errors.New("connection reset by peer")
	attempts := 0
	err := Do(context.Background(), fastConfig(), func() error {
		attempts++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 3, attempts)
	require.Contains(t, err.Error(), "failed after 3 attempts")
}

func TestDo_CustomPredicate(t *testing.T) {
	t.Parallel()
	cfg := fastConfig()
	cfg.Retryable = func(error) bool { return true }
	attempts := 0
	_ = Do(context.Background(), cfg, func() error {
		attempts++
		return errors.New("anything")
	})
	require.Equal(t, 3, attempts)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 5, BaseBackoff: time.Second, MaxBackoff: time.Second}
	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		cancel()
		return errors.New("timeout")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, attempts)
}

func TestIsTransient(t *testing.T) {
	t.Parallel()
	require.False(t, IsTransient(nil))
	require.False(t, IsTransient(context.Canceled))
	require.True(t, IsTransient(errors.New("pq: the database system is starting up")))
	require.False(t, IsTransient(errors.New("syntax error")))
}

func TestBackoff_Capped(t *testing.T) {
	t.Parallel()
	for attempt := 0; attempt < 70; attempt++ {
		d := Backoff(10*time.Millisecond, 50*time.Millisecond, attempt)
		require.LessOrEqual(t, d, 50*time.Millisecond)
		require.Greater(t, d, time.Duration(0))
	}
}
