package interp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/taskcore/runtime/exprlang"
	"github.com/flowforge/taskcore/runtime/interp"
	"github.com/flowforge/taskcore/runtime/taskdef"
)

func TestInterpretEvaluate(t *testing.T) {
	step := taskdef.Step{Kind: taskdef.StepEvaluate, Evaluate: map[string]string{"a": "1+2"}}
	out, err := interp.Interpret(step, exprlang.Context{}, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), out.Output.(map[string]any)["a"])
	assert.Equal(t, interp.NextAdvance, out.Next.Kind)
}

func TestInterpretSetWritesScratchState(t *testing.T) {
	state := map[string]any{}
	step := taskdef.Step{Kind: taskdef.StepSet, Set: map[string]string{"x": "10"}}
	_, err := interp.Interpret(step, exprlang.Context{}, state)
	require.NoError(t, err)
	assert.EqualValues(t, 10, state["x"])
}

func TestInterpretGetMissingKey(t *testing.T) {
	step := taskdef.Step{Kind: taskdef.StepGet, Get: "missing"}
	_, err := interp.Interpret(step, exprlang.Context{}, map[string]any{})
	assert.ErrorIs(t, err, interp.ErrKeyMissing)
}

func TestInterpretSwitchNoMatchIsNoop(t *testing.T) {
	step := taskdef.Step{Kind: taskdef.StepSwitch, Switch: []taskdef.SwitchCase{
		{Case: "false", Then: taskdef.Workflow{}},
	}}
	out, err := interp.Interpret(step, exprlang.Context{}, map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, out.Output)
	assert.Equal(t, interp.NextAdvance, out.Next.Kind)
}

func TestInterpretForeachEmptySequenceProducesEmptyList(t *testing.T) {
	step := taskdef.Step{Kind: taskdef.StepForeach, Foreach: &taskdef.ForeachPayload{In: "[]", Do: taskdef.Workflow{}}}
	out, err := interp.Interpret(step, exprlang.Context{}, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, []any{}, out.Output)
}

func TestInterpretForeachNonEmptyProducesEnterBlock(t *testing.T) {
	step := taskdef.Step{Kind: taskdef.StepForeach, Foreach: &taskdef.ForeachPayload{In: "[1,2,3]", Do: taskdef.Workflow{
		{Kind: taskdef.StepEvaluate, Evaluate: map[string]string{"sq": "element"}},
	}}}
	out, err := interp.Interpret(step, exprlang.Context{}, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, interp.NextEnterBlock, out.Next.Kind)
	assert.Len(t, out.Next.Block.Blocks, 3)
	assert.Len(t, out.Next.Block.Elements, 3)
}

func TestInterpretIfElseBranchesOnCondition(t *testing.T) {
	step := taskdef.Step{Kind: taskdef.StepIfElse, IfElse: &taskdef.IfElsePayload{
		If:   "input.n > 0",
		Then: taskdef.Workflow{{Kind: taskdef.StepReturn, Return: map[string]string{"r": "'pos'"}}},
		Else: taskdef.Workflow{{Kind: taskdef.StepReturn, Return: map[string]string{"r": "'np'"}}},
	}}
	out, err := interp.Interpret(step, exprlang.Context{"input": map[string]any{"n": int64(-1)}}, map[string]any{})
	require.NoError(t, err)
	require.Equal(t, interp.NextEnterBlock, out.Next.Kind)
	require.Len(t, out.Next.Block.Blocks, 1)
	assert.Equal(t, "np", evalReturnLiteral(t, out.Next.Block.Blocks[0]))
}

func evalReturnLiteral(t *testing.T, wf taskdef.Workflow) any {
	t.Helper()
	require.Len(t, wf, 1)
	out, err := interp.Interpret(wf[0], exprlang.Context{}, map[string]any{})
	require.NoError(t, err)
	return out.Output.(map[string]any)["r"]
}

func TestInterpretReturnYieldsReturnNext(t *testing.T) {
	step := taskdef.Step{Kind: taskdef.StepReturn, Return: map[string]string{"x": "3"}}
	out, err := interp.Interpret(step, exprlang.Context{}, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, interp.NextReturn, out.Next.Kind)
	assert.EqualValues(t, 3, out.Next.Value.(map[string]any)["x"])
}

func TestInterpretParallelFansOutConcurrently(t *testing.T) {
	step := taskdef.Step{Kind: taskdef.StepParallel, Parallel: []taskdef.Workflow{
		{{Kind: taskdef.StepReturn, Return: map[string]string{"a": "1"}}},
		{{Kind: taskdef.StepError, Error: "boom"}},
		{{Kind: taskdef.StepReturn, Return: map[string]string{"c": "3"}}},
	}}
	out, err := interp.Interpret(step, exprlang.Context{}, map[string]any{})
	require.NoError(t, err)
	assert.True(t, out.Next.Block.Concurrent)
	assert.Len(t, out.Next.Block.Blocks, 3)
}
