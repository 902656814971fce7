package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendaslab/prospect-cli/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
		AttemptTimeout: time.Second,
	}
}

func TestDo_BoundsConcurrency(t *testing.T) {
	g := New("test", Limits{MaxConcurrent: 2, MaxPerWindow: 1000, Window: time.Second}, fastRetry())

	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Do(context.Background(), g, "op", func(_ context.Context) (int, error) {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return 0, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestDo_EnforcesWindowSpacing(t *testing.T) {
	// 2 admissions per 100ms → at least ~50ms between the 1st and 2nd call.
	g := New("test", Limits{MaxConcurrent: 5, MaxPerWindow: 2, Window: 100 * time.Millisecond}, fastRetry())

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := Do(context.Background(), g, "op", func(_ context.Context) (int, error) {
			return i, nil
		})
		require.NoError(t, err)
	}
	// Third admission needs two 50ms intervals from the first.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestDo_RetriesTransient(t *testing.T) {
	g := New("test", Limits{MaxConcurrent: 1, MaxPerWindow: 1000, Window: time.Second}, fastRetry())

	var calls int
	val, err := Do(context.Background(), g, "op", func(_ context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", resilience.NewTransientError(errors.New("flaky"), 503)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 2, calls)
}

func TestDo_TerminalErrorNoRetry(t *testing.T) {
	g := New("test", Limits{MaxConcurrent: 1, MaxPerWindow: 1000, Window: time.Second}, fastRetry())

	var calls int
	_, err := Do(context.Background(), g, "op", func(_ context.Context) (string, error) {
		calls++
		return "", resilience.ErrNotFound
	})
	assert.ErrorIs(t, err, resilience.ErrNotFound)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCanceledDuringAdmission(t *testing.T) {
	g := New("test", Limits{MaxConcurrent: 1, MaxPerWindow: 1, Window: time.Hour}, fastRetry())

	// Consume the single window token.
	_, err := Do(context.Background(), g, "op", func(_ context.Context) (int, error) { return 0, nil })
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = Do(ctx, g, "op", func(_ context.Context) (int, error) { return 0, nil })
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Get("brasilapi"))

	g := r.Register("brasilapi", Limits{MaxConcurrent: 5, MaxPerWindow: 20, Window: time.Second}, fastRetry())
	assert.Same(t, g, r.Get("brasilapi"))
	assert.Equal(t, "brasilapi", g.Name())
}
