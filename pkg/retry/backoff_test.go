package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fastConfig() Config {
	return Config{
		MaxRetries:   4,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithBackoffEventuallySucceeds(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(), zaptest.NewLogger(t), "flaky", func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestWithBackoffGivesUp(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := WithBackoff(context.Background(), fastConfig(), zaptest.NewLogger(t), "broken", func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 4, calls)
}

func TestWithBackoffStopsOnPermanent(t *testing.T) {
	calls := 0
	boom := errors.New("bad url")
	err := WithBackoff(context.Background(), fastConfig(), zaptest.NewLogger(t), "parse", func() error {
		calls++
		return Permanent(boom)
	})
	require.ErrorIs(t, err, boom)
	require.True(t, IsPermanent(err))
	require.Equal(t, 1, calls)
}

func TestWithBackoffHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithBackoff(ctx, fastConfig(), zaptest.NewLogger(t), "cancelled", func() error {
		return errors.New("unreachable")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoffCapped(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2}
	require.Equal(t, time.Second, calculateBackoff(cfg, 1))
	require.Equal(t, 2*time.Second, calculateBackoff(cfg, 2))
	require.Equal(t, 3*time.Second, calculateBackoff(cfg, 5))
}

func TestShortConfigStaysUnderFewSeconds(t *testing.T) {
	cfg := Short()
	cfg.JitterEnabled = false
	var total time.Duration
	for attempt := 1; attempt < cfg.MaxRetries; attempt++ {
		total += calculateBackoff(cfg, attempt)
	}
	require.Less(t, total, 2*time.Second)
}
