package statemachine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/taskcore/features/policy/basic"
	"github.com/flowforge/taskcore/runtime/taskdef"
	"github.com/flowforge/taskcore/runtime/transition"
)

func policyTask() *taskdef.Task {
	return &taskdef.Task{
		ID: "policy-task",
		Tools: []taskdef.Tool{
			{Name: "search", Integration: &taskdef.IntegrationTool{Provider: "brave", Method: "search"}},
		},
		Workflows: map[string]taskdef.Workflow{
			taskdef.MainWorkflow: {
				{Kind: taskdef.StepToolCall, ToolCall: &taskdef.ToolCallPayload{Tool: "search", Arguments: map[string]string{"q": "'go'"}}},
				{Kind: taskdef.StepReturn, Return: map[string]string{"out": "_"}},
			},
		},
	}
}

func TestPolicyEngineBlocksToolDispatch(t *testing.T) {
	m, _ := newMachine(t, policyTask(), nil)
	engine, err := basic.New(basic.Options{BlockTools: []string{"search"}})
	require.NoError(t, err)
	m.Policy = engine

	ctx := context.Background()
	_, err = m.Start(ctx, "pol-1", map[string]any{})
	require.NoError(t, err)

	last := runToTerminal(t, m, "pol-1", 5)
	require.Equal(t, transition.Error, last.Type)
	assert.Contains(t, last.Output.(string), "ErrToolBlockedByPolicy")
}

func TestPolicyEngineAllowsUnblockedTool(t *testing.T) {
	invoked := false
	m, _ := newMachine(t, policyTask(), func(_ context.Context, tool taskdef.Tool, _ map[string]any) (any, error) {
		invoked = true
		return map[string]any{"hits": 1}, nil
	})
	engine, err := basic.New(basic.Options{AllowTools: []string{"search"}})
	require.NoError(t, err)
	m.Policy = engine

	ctx := context.Background()
	_, err = m.Start(ctx, "pol-2", map[string]any{})
	require.NoError(t, err)

	last := runToTerminal(t, m, "pol-2", 6)
	require.Equal(t, transition.Finish, last.Type)
	assert.True(t, invoked)
}
