package statemachine

import (
	"encoding/json"
	"fmt"

	"context"

	"github.com/flowforge/taskcore/runtime/exprlang"
	"github.com/flowforge/taskcore/runtime/promptexec"
	"github.com/flowforge/taskcore/runtime/taskdef"
	"github.com/flowforge/taskcore/runtime/agent/toolerrors"
)

// defaultToolLoopDepth is the documented default for auto_run_tools (spec
// §9 Open Questions: "implementers should expose both as configuration
// with documented defaults (e.g. depth 5)").
const defaultToolLoopDepth = 5

// runPrompt drives the Prompt Step Executor (spec §4.3) for one prompt
// step, including the Auto-run tools loop (spec §4.4): when
// auto_run_tools is set and a response comes back with tool calls, the
// interpreter layer synthesizes the tool invocations inline, appends
// their results as messages, and re-prompts until a response carries no
// tool calls or the configured depth cap is hit.
func (m *Machine) runPrompt(ctx context.Context, payload *taskdef.PromptPayload, stepCtx exprlang.Context) (any, error) {
	maxDepth := m.ToolLoopDepth
	if maxDepth <= 0 {
		maxDepth = defaultToolLoopDepth
	}

	current := payload
	for depth := 0; ; depth++ {
		dispatchCtx, cancel := ctx, context.CancelFunc(func() {})
		if m.ActivityTimeout > 0 {
			dispatchCtx, cancel = context.WithTimeout(ctx, m.ActivityTimeout)
		}
		resp, err := m.Executor.Execute(dispatchCtx, m.Agent, current, stepCtx, m.catalog, m.Debug)
		cancel()
		if err != nil {
			return nil, err
		}

		if !current.AutoRunTools || len(resp.Choices) == 0 || resp.Choices[0].FinishReason != promptexec.FinishToolCalls {
			if current.Unwrap {
				return promptexec.Unwrap(resp)
			}
			return resp, nil
		}

		if depth >= maxDepth {
			return nil, promptexec.ErrToolLoopDepthExceeded
		}

		choice := resp.Choices[0]
		followup := make([]taskdef.PromptMessage, 0, len(current.Messages)+len(choice.Message.ToolCalls)+1)
		followup = append(followup, current.Messages...)
		followup = append(followup, taskdef.PromptMessage{Role: "assistant", Content: choice.Message.Content})

		for _, call := range choice.Message.ToolCalls {
			name, argsJSON := toolCallTarget(call)
			tool, ok := m.toolIndex[name]
			if !ok {
				return nil, fmt.Errorf("%w: %q", promptexec.ErrUnknownTool, name)
			}
			if blocked, err := m.policyBlocks(ctx, tool); err != nil {
				return nil, err
			} else if blocked {
				return nil, fmt.Errorf("ErrToolBlockedByPolicy: %q", tool.Name)
			}
			var args map[string]any
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
					return nil, fmt.Errorf("statemachine: decoding tool call arguments for %q: %w", name, err)
				}
			}
			result, err := m.invokeTool(ctx, tool, args)
			if err != nil {
				return nil, toolerrors.FromError(err)
			}
			resultJSON, err := json.Marshal(result)
			if err != nil {
				return nil, fmt.Errorf("statemachine: encoding tool result for %q: %w", name, err)
			}
			followup = append(followup, taskdef.PromptMessage{Role: "tool", Content: string(resultJSON)})
		}

		current = &taskdef.PromptPayload{
			Messages:     followup,
			Unwrap:       payload.Unwrap,
			AutoRunTools: payload.AutoRunTools,
			DisableCache: payload.DisableCache,
			Settings:     payload.Settings,
		}
	}
}

// toolCallTarget extracts the {name, arguments} pair from a ToolCall
// regardless of whether it is still function-shaped or has been re-keyed
// to a native kind (spec §4.3 step 6).
func toolCallTarget(call promptexec.ToolCall) (name, argsJSON string) {
	if call.Function != nil {
		return call.Function.Name, call.Function.Arguments
	}
	for _, t := range call.Native {
		if t != nil {
			return t.Name, t.Arguments
		}
	}
	return "", ""
}
