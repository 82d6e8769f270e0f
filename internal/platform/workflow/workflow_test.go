package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/errors"
)

var errTransient = errors.New("transient")

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDo_CheckpointsAndReplays(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()

	calls := 0
	step := func(context.Context) (string, error) {
		calls++
		return "cluster-1", nil
	}

	run, err := Start(ctx, log, "run-1", fastPolicy(3), nil)
	require.NoError(t, err)

	got, err := Do(ctx, run, "assignCluster", step)
	require.NoError(t, err)
	assert.Equal(t, "cluster-1", got)
	assert.True(t, run.Completed("assignCluster"))

	replay, err := Start(ctx, log, "run-1", fastPolicy(3), nil)
	require.NoError(t, err)

	got, err = Do(ctx, replay, "assignCluster", step)
	require.NoError(t, err)
	assert.Equal(t, "cluster-1", got)
	assert.Equal(t, 1, calls, "checkpointed step must not execute again")
}

func TestDo_ResumesAfterCrash(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	executed := map[string]int{}

	stepFn := func(name string, fail bool) func(context.Context) (int, error) {
		return func(context.Context) (int, error) {
			executed[name]++
			if fail {
				return 0, Permanent(errors.New("process died"))
			}

			return len(name), nil
		}
	}

	first, err := Start(ctx, log, "run-2", fastPolicy(3), nil)
	require.NoError(t, err)

	_, err = Do(ctx, first, "a", stepFn("a", false))
	require.NoError(t, err)
	_, err = Do(ctx, first, "b", stepFn("b", false))
	require.NoError(t, err)
	_, err = Do(ctx, first, "c", stepFn("c", true))
	require.Error(t, err)

	second, err := Start(ctx, log, "run-2", fastPolicy(3), nil)
	require.NoError(t, err)

	for _, name := range []string{"a", "b", "c"} {
		_, err := Do(ctx, second, name, stepFn(name, false))
		require.NoError(t, err)
	}

	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 2}, executed)
}

func TestDo_RetriesTransientErrors(t *testing.T) {
	ctx := context.Background()
	run, err := Start(ctx, NewMemoryLog(), "run-3", fastPolicy(3), nil)
	require.NoError(t, err)

	calls := 0
	got, err := Do(ctx, run, "flaky", func(context.Context) (bool, error) {
		calls++
		if calls < 3 {
			return false, errTransient
		}

		return true, nil
	})
	require.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	ctx := context.Background()
	run, err := Start(ctx, NewMemoryLog(), "run-4", fastPolicy(2), nil)
	require.NoError(t, err)

	calls := 0
	_, err = Do(ctx, run, "broken", func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, errTransient
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, coreerrors.ErrStepFailed)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 2, calls)
	assert.False(t, run.Completed("broken"))
}

func TestDo_PermanentErrorIsNotRetried(t *testing.T) {
	ctx := context.Background()
	run, err := Start(ctx, NewMemoryLog(), "run-5", fastPolicy(5), nil)
	require.NoError(t, err)

	calls := 0
	_, err = Do(ctx, run, "loadEvidence", func(context.Context) (string, error) {
		calls++
		return "", Permanent(coreerrors.ErrEvidenceNotFound)
	})

	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, coreerrors.ErrEvidenceNotFound)
	assert.Equal(t, 1, calls)
}

func TestMemoryLog_FirstWriteWins(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()

	require.NoError(t, log.SaveStep(ctx, "r", "s", json.RawMessage(`"first"`)))
	require.NoError(t, log.SaveStep(ctx, "r", "s", json.RawMessage(`"second"`)))

	steps, err := log.LoadSteps(ctx, "r")
	require.NoError(t, err)
	assert.JSONEq(t, `"first"`, string(steps["s"]))

	empty, err := log.LoadSteps(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
