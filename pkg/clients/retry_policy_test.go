package clients

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/censusflow/censusflow/pkg/errors"
)

func testPolicy(attempts int) *RetryPolicy {
	p := NewRetryPolicy(attempts, time.Millisecond)
	p.MaxDelay = 5 * time.Millisecond
	return p
}

func TestExecuteSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := testPolicy(3).Execute(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New(errors.ErrorTypeConnection, "transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	calls := 0
	err := testPolicy(3).Execute(context.Background(), func() error {
		calls++
		return errors.New(errors.ErrorTypeConnection, "always down")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
}

func TestExecuteWithConditionStopsOnNonRetryable(t *testing.T) {
	calls := 0
	fatal := errors.New(errors.ErrorTypeNotFound, "gone")
	err := testPolicy(5).ExecuteWithCondition(context.Background(), func() error {
		calls++
		return fatal
	}, errors.IsRetryable)
	assert.Equal(t, 1, calls, "non-retryable errors do not consume attempts")
	assert.Equal(t, fatal, err, "error is returned unwrapped")
}

func TestExecuteHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := NewRetryPolicy(3, time.Minute)

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- policy.Execute(ctx, func() error {
			calls++
			return errors.New(errors.ErrorTypeConnection, "down")
		})
	}()
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, 1, calls, "cancellation interrupts the backoff wait")
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestDelayGrowsAndCaps(t *testing.T) {
	p := NewRetryPolicy(10, time.Second)
	assert.Equal(t, time.Second, p.delay(0))
	assert.Equal(t, 2*time.Second, p.delay(1))
	assert.Equal(t, 4*time.Second, p.delay(2))
	assert.Equal(t, 30*time.Second, p.delay(20), "capped at MaxDelay")
}
