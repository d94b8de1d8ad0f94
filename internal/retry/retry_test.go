package retry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kapu/venue-match-go/pkg/errors"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, Delay: time.Millisecond, Multiplier: 1}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), zap.NewNop(), "test", func(_ context.Context, attempt int) error {
		calls++
		if attempt < 2 {
			return stderrors.New("flaky")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoReturnsLastErrorAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), zap.NewNop(), "test", func(_ context.Context, attempt int) error {
		calls++
		return errors.NewTransientError("fetch", "boom", nil).WithContext("attempt", attempt)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	var pe *errors.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Context["attempt"])
}

func TestDoStopsOnInputError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), zap.NewNop(), "test", func(context.Context, int) error {
		calls++
		return errors.NewInputError("load", "missing file", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 5, Delay: time.Hour}, zap.NewNop(), "test", func(context.Context, int) error {
		calls++
		cancel()
		return stderrors.New("down")
	})

	require.EqualError(t, err, "down")
	assert.Equal(t, 1, calls)
}

func TestDoValue(t *testing.T) {
	v, err := DoValue(context.Background(), fastPolicy(2), zap.NewNop(), "test", func(_ context.Context, attempt int) (string, error) {
		if attempt == 0 {
			return "", stderrors.New("first")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestDelayFor(t *testing.T) {
	fixed := DefaultPolicy()
	assert.Equal(t, 5*time.Second, fixed.DelayFor(0))
	assert.Equal(t, 5*time.Second, fixed.DelayFor(2))

	backoff := PlacesPolicy()
	assert.Equal(t, 2*time.Second, backoff.DelayFor(0))
	assert.Equal(t, 8*time.Second, backoff.DelayFor(2))

	capped := Policy{Delay: time.Second, Multiplier: 10, MaxDelay: 5 * time.Second}
	assert.Equal(t, 5*time.Second, capped.DelayFor(3))
}

func TestPacerFirstWaitIsImmediate(t *testing.T) {
	p := NewPacer(time.Hour)
	start := time.Now()
	require.NoError(t, p.Wait(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestPacerHonoursContext(t *testing.T) {
	p := NewPacer(time.Hour)
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, p.Wait(ctx))
}

func TestPacerZeroIntervalNeverBlocks(t *testing.T) {
	p := NewPacer(0)
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
}
