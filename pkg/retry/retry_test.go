package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, Initial: time.Millisecond, Max: 5 * time.Millisecond}
}

func TestDo_StopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	var retried []int
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		return errors.New("write failed")
	}, func(attempt int, _ error) {
		retried = append(retried, attempt)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_SucceedsOnSecondAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	sentinel := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		return Permanent(sentinel)
	}, nil)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 5, Initial: time.Second}, func(context.Context) error {
		calls++
		return errors.New("x")
	}, nil)
	require.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}
