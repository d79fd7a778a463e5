package runlog_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/taskcore/runtime/agent/hooks"
	"github.com/flowforge/taskcore/runtime/agent/run"
	"github.com/flowforge/taskcore/runtime/agent/runlog"
	"github.com/flowforge/taskcore/runtime/agent/runlog/inmem"
	"github.com/flowforge/taskcore/runtime/agent/toolerrors"
)

func TestSnapshotReplaysLifecycle(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	bus := hooks.NewBus()
	_, err := bus.Register(runlog.NewRecorder(store))
	require.NoError(t, err)

	const runID = "exec-snap"
	runCtx := run.Context{RunID: runID}

	require.NoError(t, bus.Publish(ctx, hooks.NewRunStartedEvent(runID, "a1", runCtx, map[string]any{"q": "go"})))
	require.NoError(t, bus.Publish(ctx, hooks.NewStepNoteEvent(runID, "a1", "", "searching", nil)))
	require.NoError(t, bus.Publish(ctx, hooks.NewToolCallScheduledEvent(runID, "a1", "", "search", "call-1", json.RawMessage(`{"q":"go"}`))))
	require.NoError(t, bus.Publish(ctx, hooks.NewToolResultReceivedEvent(runID, "a1", "", "search", "call-1", map[string]any{"hits": 3}, nil, nil, 40*time.Millisecond, nil, nil)))
	require.NoError(t, bus.Publish(ctx, hooks.NewRunCompletedEvent(runID, "a1", "", "success", run.PhaseCompleted, nil)))

	snap, err := runlog.Snapshot(ctx, store, runID)
	require.NoError(t, err)

	assert.Equal(t, runID, snap.RunID)
	assert.Equal(t, run.StatusCompleted, snap.Status)
	assert.Equal(t, run.PhaseCompleted, snap.Phase)
	assert.Equal(t, "searching", snap.LastNote)
	require.Len(t, snap.ToolCalls, 1)
	assert.Equal(t, "call-1", snap.ToolCalls[0].ToolCallID)
	assert.Empty(t, snap.ToolCalls[0].ErrorSummary)
	assert.Equal(t, 40*time.Millisecond, snap.ToolCalls[0].Duration)
}

func TestSnapshotSurfacesPauseAndFailure(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	bus := hooks.NewBus()
	_, err := bus.Register(runlog.NewRecorder(store))
	require.NoError(t, err)

	const runID = "exec-pause"
	require.NoError(t, bus.Publish(ctx, hooks.NewRunStartedEvent(runID, "a1", run.Context{RunID: runID}, nil)))
	require.NoError(t, bus.Publish(ctx, hooks.NewRunPausedEvent(runID, "a1", "", "need name", "", nil, nil)))

	snap, err := runlog.Snapshot(ctx, store, runID)
	require.NoError(t, err)
	assert.Equal(t, run.StatusPaused, snap.Status)
	require.NotNil(t, snap.Await)
	assert.Equal(t, "need name", snap.Await.Info)

	require.NoError(t, bus.Publish(ctx, hooks.NewRunResumedEvent(runID, "a1", "", "", "", nil)))
	require.NoError(t, bus.Publish(ctx, hooks.NewToolCallScheduledEvent(runID, "a1", "", "search", "call-9", nil)))
	require.NoError(t, bus.Publish(ctx, hooks.NewToolResultReceivedEvent(runID, "a1", "", "search", "call-9", nil, nil, nil, time.Millisecond, nil, toolerrors.FromError(errors.New("boom")))))
	require.NoError(t, bus.Publish(ctx, hooks.NewRunCompletedEvent(runID, "a1", "", "failed", run.PhaseFailed, errors.New("boom"))))

	snap, err = runlog.Snapshot(ctx, store, runID)
	require.NoError(t, err)
	assert.Equal(t, run.StatusFailed, snap.Status)
	assert.Nil(t, snap.Await)
	require.Len(t, snap.ToolCalls, 1)
	assert.Contains(t, snap.ToolCalls[0].ErrorSummary, "boom")
}
