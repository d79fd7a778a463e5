package facade_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/taskcore/runtime/agent/hooks"
	"github.com/flowforge/taskcore/runtime/agent/run"
	runinmem "github.com/flowforge/taskcore/runtime/agent/run/inmem"
	"github.com/flowforge/taskcore/runtime/agent/runlog"
	runloginmem "github.com/flowforge/taskcore/runtime/agent/runlog/inmem"
	"github.com/flowforge/taskcore/runtime/facade"
	"github.com/flowforge/taskcore/runtime/promptexec"
	"github.com/flowforge/taskcore/runtime/statemachine"
	"github.com/flowforge/taskcore/runtime/taskdef"
	"github.com/flowforge/taskcore/runtime/transition/inmem"
)

func TestExecutionLifecycleIsMirroredToRunStoreAndRunLog(t *testing.T) {
	task := &taskdef.Task{
		ID: "mirror",
		Workflows: map[string]taskdef.Workflow{
			taskdef.MainWorkflow: {
				{Kind: taskdef.StepLog, Log: "working on {{ input.name }}"},
				{Kind: taskdef.StepReturn, Return: map[string]string{"ok": "true"}},
			},
		},
	}
	agent := &taskdef.Agent{ID: "a1", Model: "gpt-4o"}

	bus := hooks.NewBus()
	events := runloginmem.New()
	_, err := bus.Register(runlog.NewRecorder(events))
	require.NoError(t, err)

	m, err := statemachine.New(task, agent, inmem.New(), &promptexec.Executor{}, nil)
	require.NoError(t, err)
	m.Hooks = bus

	f := facade.New(m)
	runs := runinmem.New()
	f.Runs = runs

	ctx := context.Background()
	executionID := facade.NewExecutionID(task.ID)
	require.True(t, strings.HasPrefix(executionID, "mirror-"))

	_, err = f.Start(ctx, executionID, map[string]any{"name": "ada"})
	require.NoError(t, err)

	rec, err := runs.Load(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, run.StatusRunning, rec.Status)

	for i := 0; i < 5; i++ {
		_, err = f.Step(ctx, executionID)
		require.NoError(t, err)
	}

	rec, err = runs.Load(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, run.StatusCompleted, rec.Status)

	page, err := events.List(ctx, executionID, "", 20)
	require.NoError(t, err)
	var types []hooks.EventType
	for _, e := range page.Events {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, hooks.RunStarted)
	assert.Contains(t, types, hooks.StepNote)
	assert.Contains(t, types, hooks.RunCompleted)
}
