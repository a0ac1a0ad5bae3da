package resilience

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RecoversAfterTransientFailure(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("attempt %d failed", calls)
		}
		return nil
	}, WithMaxRetries(3), WithInitialDelay(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return fmt.Errorf("persistent failure")
	}, WithMaxRetries(2), WithInitialDelay(time.Millisecond))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistent failure")
	assert.Equal(t, 3, calls, "initial attempt plus two retries")
}

func TestRetry_NotifiesEachRetry(t *testing.T) {
	var notified int
	_ = Retry(context.Background(), func() error {
		return fmt.Errorf("still failing")
	},
		WithMaxRetries(2),
		WithInitialDelay(time.Millisecond),
		WithOnRetry(func(err error, next time.Duration) {
			notified++
			assert.Contains(t, err.Error(), "still failing")
		}),
	)
	assert.Equal(t, 2, notified)
}

func TestRetry_StopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Retry(ctx, func() error {
		calls++
		cancel()
		return fmt.Errorf("failure under canceled context")
	}, WithMaxRetries(10), WithInitialDelay(time.Millisecond))

	require.Error(t, err)
	assert.Equal(t, 1, calls, "no retries once the context is gone")
}
