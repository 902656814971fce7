package scheduler

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendaslab/prospect-cli/internal/model"
	"github.com/vendaslab/prospect-cli/internal/store"
)

func newSchedStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "sched.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSchedulerRunsJobsOnInterval(t *testing.T) {
	st := newSchedStore(t)

	var fastRuns, slowRuns atomic.Int32
	sched, err := New(st, []Job{
		{ID: "fast", Interval: 20 * time.Millisecond, Run: func(context.Context) (string, error) {
			fastRuns.Add(1)
			return `{"ok":true}`, nil
		}},
		{ID: "slow", Interval: time.Hour, Run: func(context.Context) (string, error) {
			slowRuns.Add(1)
			return "", nil
		}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	err = sched.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.GreaterOrEqual(t, fastRuns.Load(), int32(3), "fast job recurs")
	assert.Equal(t, int32(1), slowRuns.Load(), "slow job fires once at boot")
}

func TestSchedulerRecordsFailure(t *testing.T) {
	st := newSchedStore(t)

	var runs atomic.Int32
	sched, err := New(st, []Job{
		{ID: "broken", Interval: time.Hour, Run: func(context.Context) (string, error) {
			runs.Add(1)
			return "", assert.AnError
		}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = sched.Start(ctx)

	assert.Equal(t, int32(1), runs.Load(), "a failing job does not kill the loop")
}

func TestSchedulerReconcilesOrphansOnBoot(t *testing.T) {
	st := newSchedStore(t)
	ctx := context.Background()

	// a run the previous process never finished
	require.NoError(t, st.CreateJobRun(ctx, &model.JobRun{ID: uuid.NewString(), Job: "campaign"}))

	sched, err := New(st, []Job{
		{ID: "noop", Interval: time.Hour, Run: func(context.Context) (string, error) { return "", nil }},
	})
	require.NoError(t, err)

	runCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_ = sched.Start(runCtx)

	n, err := st.ReconcileInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "boot already reconciled the orphaned run")
}

func TestSchedulerValidation(t *testing.T) {
	st := newSchedStore(t)

	_, err := New(st, nil)
	assert.Error(t, err)

	_, err = New(st, []Job{{ID: "x", Run: func(context.Context) (string, error) { return "", nil }}})
	assert.Error(t, err, "zero interval rejected")
}
