package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errFlaky = errors.New("flaky")
	errBad   = errors.New("bad ticker")
)

func transient(err error) bool { return errors.Is(err, errFlaky) }

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, Retryable: transient}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errFlaky
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorIsNotRetried(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(5), func(context.Context) (string, error) {
		calls++
		return "", errBad
	})
	require.ErrorIs(t, err, errBad)
	assert.False(t, IsFailure(err))
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustionReturnsFailure(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(4), func(context.Context) (int, error) {
		calls++
		return 0, errFlaky
	})
	require.Error(t, err)

	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, 4, f.Attempts)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 4, calls)
}

func TestDo_NotifyCalledBetweenAttempts(t *testing.T) {
	var waits []time.Duration
	p := fastPolicy(3)
	p.Notify = func(_ error, d time.Duration) { waits = append(waits, d) }

	_, _ = Do(context.Background(), p, func(context.Context) (int, error) { return 0, errFlaky })
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, waits)
}

func TestPolicy_BackOffDoubles(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: 2 * time.Second}
	bo := p.backOff()

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, backoff.Stop}
	for i, w := range want {
		assert.Equal(t, w, bo.NextBackOff(), "wait %d", i+1)
	}
}

func TestDo_ZeroAttemptsStillCallsOnce(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{BaseDelay: time.Millisecond}, func(context.Context) (int, error) {
		calls++
		return 0, errFlaky
	})
	assert.True(t, IsFailure(err))
	assert.Equal(t, 1, calls)
}

func TestDo_CanceledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Hour}, func(context.Context) (int, error) {
		return 0, errFlaky
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
