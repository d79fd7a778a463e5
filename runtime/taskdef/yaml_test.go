package taskdef_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/taskcore/runtime/taskdef"
)

const sampleTaskYAML = `
id: triage
workflows:
  main:
    - log: "starting {{ input.topic }}"
    - evaluate: {a: "1 + 2"}
    - if_else:
        if: "input.n > 0"
        then:
          - return: {r: "'pos'"}
        else:
          - return: {r: "'np'"}
  enrich:
    - tool_call:
        tool: search
        arguments: {query: "input.topic"}
    - return: {hits: "_"}
tools:
  - name: search
    integration:
      provider: brave
      method: search
  - name: screen
    computer_20241022:
      display_width_px: 1280
      display_height_px: 800
policy:
  max_tool_calls: 10
  time_budget: 5m
`

func TestParseTaskDecodesWorkflowsAndTools(t *testing.T) {
	task, err := taskdef.ParseTask([]byte(sampleTaskYAML))
	require.NoError(t, err)

	assert.Equal(t, "triage", task.ID)
	require.Contains(t, task.Workflows, taskdef.MainWorkflow)
	main := task.Workflows[taskdef.MainWorkflow]
	require.Len(t, main, 3)
	assert.Equal(t, taskdef.StepLog, main[0].Kind)
	assert.Equal(t, taskdef.StepEvaluate, main[1].Kind)
	assert.Equal(t, taskdef.StepIfElse, main[2].Kind)
	require.NotNil(t, main[2].IfElse)
	require.Len(t, main[2].IfElse.Then, 1)
	assert.Equal(t, taskdef.StepReturn, main[2].IfElse.Then[0].Kind)

	enrich := task.Workflows["enrich"]
	require.Len(t, enrich, 2)
	require.NotNil(t, enrich[0].ToolCall)
	assert.Equal(t, "search", enrich[0].ToolCall.Tool)

	require.Len(t, task.Tools, 2)
	assert.Equal(t, taskdef.ToolIntegration, task.Tools[0].Kind())
	assert.Equal(t, taskdef.ToolModelNative, task.Tools[1].Kind())
	assert.Equal(t, 1280, task.Tools[1].ModelNative.DisplayWidthPX)

	assert.Equal(t, 10, task.Policy.MaxToolCalls)
	assert.Equal(t, "5m0s", task.Policy.TimeBudget.String())
}

func TestParseTaskValidatesAgainstAgent(t *testing.T) {
	task, err := taskdef.ParseTask([]byte(sampleTaskYAML))
	require.NoError(t, err)
	agent := &taskdef.Agent{ID: "a1", Model: "gpt-4o"}
	require.NoError(t, taskdef.Validate(agent, task))
}

func TestParseTaskRejectsAmbiguousStep(t *testing.T) {
	const bad = `
id: bad
workflows:
  main:
    - log: "x"
      error: "y"
`
	_, err := taskdef.ParseTask([]byte(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one step kind")
}

func TestParseTaskScalarPrompt(t *testing.T) {
	const doc = `
id: chat
workflows:
  main:
    - prompt: "summarize {{ input.text }}"
`
	task, err := taskdef.ParseTask([]byte(doc))
	require.NoError(t, err)
	step := task.Workflows[taskdef.MainWorkflow][0]
	require.Equal(t, taskdef.StepPrompt, step.Kind)
	assert.Equal(t, "summarize {{ input.text }}", step.Prompt.Text)
}
