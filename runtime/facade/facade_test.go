package facade_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/taskcore/runtime/facade"
	"github.com/flowforge/taskcore/runtime/promptexec"
	"github.com/flowforge/taskcore/runtime/statemachine"
	"github.com/flowforge/taskcore/runtime/taskdef"
	"github.com/flowforge/taskcore/runtime/transition/inmem"
)

func newFacade(t *testing.T, task *taskdef.Task) *facade.Facade {
	t.Helper()
	agent := &taskdef.Agent{ID: "a1", Model: "gpt-4o"}
	store := inmem.New()
	invoke := func(ctx context.Context, tool taskdef.Tool, args map[string]any) (any, error) {
		t.Fatalf("unexpected tool invocation: %s", tool.Name)
		return nil, nil
	}
	m, err := statemachine.New(task, agent, store, &promptexec.Executor{}, invoke)
	require.NoError(t, err)
	return facade.New(m)
}

func TestFacadeDrivesSequentialExecutionToSuccess(t *testing.T) {
	task := &taskdef.Task{
		ID: "t1",
		Workflows: map[string]taskdef.Workflow{
			taskdef.MainWorkflow: {
				{Kind: taskdef.StepEvaluate, Evaluate: map[string]string{"a": "1+2"}},
				{Kind: taskdef.StepReturn, Return: map[string]string{"x": "_.a"}},
			},
		},
	}
	f := newFacade(t, task)
	ctx := context.Background()

	_, err := f.Start(ctx, "exec-1", map[string]any{})
	require.NoError(t, err)

	status, err := f.Status(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, facade.StatusStarting, status.Status)

	for i := 0; i < 5; i++ {
		_, err := f.Step(ctx, "exec-1")
		require.NoError(t, err)
		status, err = f.Status(ctx, "exec-1")
		require.NoError(t, err)
		if status.Status == facade.StatusSucceeded {
			break
		}
	}
	require.Equal(t, facade.StatusSucceeded, status.Status)
	out, ok := status.Output.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 3, out["x"])
}

func TestFacadeWaitForInputStatusAndResume(t *testing.T) {
	task := &taskdef.Task{
		ID: "t2",
		Workflows: map[string]taskdef.Workflow{
			taskdef.MainWorkflow: {
				{Kind: taskdef.StepWaitForInput, WaitForInput: &taskdef.WaitForInputPayload{Info: "need name"}},
				{Kind: taskdef.StepReturn, Return: map[string]string{"g": "'hi ' + input.name"}},
			},
		},
	}
	f := newFacade(t, task)
	ctx := context.Background()

	_, err := f.Start(ctx, "exec-2", map[string]any{})
	require.NoError(t, err)
	_, err = f.Step(ctx, "exec-2")
	require.NoError(t, err)

	status, err := f.Status(ctx, "exec-2")
	require.NoError(t, err)
	assert.Equal(t, facade.StatusAwaitingInput, status.Status)

	_, err = f.Resume(ctx, "exec-2", map[string]any{"name": "ada"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := f.Step(ctx, "exec-2")
		require.NoError(t, err)
		status, err = f.Status(ctx, "exec-2")
		require.NoError(t, err)
		if status.Status == facade.StatusSucceeded {
			break
		}
	}
	require.Equal(t, facade.StatusSucceeded, status.Status)
	out := status.Output.(map[string]any)
	assert.Equal(t, "hi ada", out["g"])
}

func TestFacadeCancelIsIdempotent(t *testing.T) {
	task := &taskdef.Task{
		ID: "t3",
		Workflows: map[string]taskdef.Workflow{
			taskdef.MainWorkflow: {
				{Kind: taskdef.StepWaitForInput, WaitForInput: &taskdef.WaitForInputPayload{Info: "pause"}},
			},
		},
	}
	f := newFacade(t, task)
	ctx := context.Background()

	_, err := f.Start(ctx, "exec-3", map[string]any{})
	require.NoError(t, err)

	id1, err := f.Cancel(ctx, "exec-3", "user requested")
	require.NoError(t, err)

	status, err := f.Status(ctx, "exec-3")
	require.NoError(t, err)
	assert.Equal(t, facade.StatusCancelled, status.Status)

	id2, err := f.Cancel(ctx, "exec-3", "user requested again")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestFacadeHistoryReturnsTransitionPage(t *testing.T) {
	task := &taskdef.Task{
		ID: "t4",
		Workflows: map[string]taskdef.Workflow{
			taskdef.MainWorkflow: {
				{Kind: taskdef.StepReturn, Return: map[string]string{"x": "1"}},
			},
		},
	}
	f := newFacade(t, task)
	ctx := context.Background()
	_, err := f.Start(ctx, "exec-4", map[string]any{})
	require.NoError(t, err)
	_, err = f.Step(ctx, "exec-4")
	require.NoError(t, err)

	page, err := f.History(ctx, "exec-4", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Transitions, 2)
	assert.Empty(t, page.NextCursor)
}
