package promptexec

import (
	"context"

	"github.com/flowforge/taskcore/runtime/exprlang"
	"github.com/flowforge/taskcore/runtime/taskdef"
	"github.com/flowforge/taskcore/runtime/toolcatalog"
)

// Executor ties message rendering, backend selection, dispatch, response
// normalization, and tool-call re-keying into the single algorithm
// described in spec §4.3.
type Executor struct {
	Selector BackendSelector
}

// Execute runs the full spec §4.3 algorithm for one prompt step. agent and
// settings together resolve the effective model/settings; catalog is the
// already-formatted tool set for this step's context (spec §4.2).
func (e Executor) Execute(ctx context.Context, agent *taskdef.Agent, p *taskdef.PromptPayload, ectx exprlang.Context, catalog toolcatalog.Catalog, debug bool) (Response, error) {
	messages, err := BuildMessages(p, ectx)
	if err != nil {
		return Response{}, err
	}

	backend, tools := e.Selector.Select(agent.Model, catalog.Descriptors)

	settings := mergeSettings(agent.DefaultSettings, p.Settings)

	resp, err := backend.Dispatch(ctx, Request{
		Model:        agent.Model,
		Messages:     messages,
		Tools:        tools,
		Settings:     settings,
		DisableCache: debug || p.DisableCache,
	})
	if err != nil {
		return Response{}, err
	}

	resp, err = Rekey(resp, catalog.Reverse)
	if err != nil {
		return Response{}, err
	}

	if p.Unwrap {
		if _, err := Unwrap(resp); err != nil {
			return Response{}, err
		}
	}
	return resp, nil
}

// Unwrap implements spec §4.3 step 7: require exactly one choice whose
// finish_reason isn't tool_calls, and return its message content.
func Unwrap(resp Response) (string, error) {
	if len(resp.Choices) != 1 {
		return "", ErrUnwrapMultipleChoices
	}
	choice := resp.Choices[0]
	if choice.FinishReason == FinishToolCalls {
		return "", ErrUnwrapToolCalls
	}
	return choice.Message.Content, nil
}

func mergeSettings(agentDefaults, stepSettings map[string]any) Settings {
	out := make(Settings, len(agentDefaults)+len(stepSettings))
	for k, v := range agentDefaults {
		out[k] = v
	}
	for k, v := range stepSettings {
		out[k] = v
	}
	return out
}
