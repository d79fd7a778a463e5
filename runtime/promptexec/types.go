// Package promptexec implements the Prompt Step Executor (spec §4.3):
// message rendering, backend selection between a generic chat-completion
// backend and a native-tools backend, response normalization, and
// tool-call re-keying back to each tool's original kind via the reverse
// map toolcatalog.Format produces.
package promptexec

import (
	"context"
	"encoding/json"

	"github.com/flowforge/taskcore/runtime/toolcatalog"
)

type (
	// Message is the uniform {role, content} message shape used for both
	// backend request payloads and the normalized response.
	Message struct {
		Role      string     `json:"role"`
		Content   string     `json:"content,omitempty"`
		ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	}

	// ToolCall is a single tool invocation requested by the model.
	// Function carries the raw {name, arguments} pair as reported by the
	// backend before re-keying; after re-keying (step 6) the descriptor
	// is replaced to reflect the tool's original kind.
	ToolCall struct {
		ID       string          `json:"id"`
		Type     string          `json:"type"`
		Function *ToolCallTarget `json:"function,omitempty"`
		// Native mirrors Type for non-function kinds after re-keying,
		// e.g. "integration": {"name": ..., "arguments": ...}. Stored
		// generically since the key name is the tool kind itself.
		Native map[string]*ToolCallTarget `json:"-"`
	}

	// ToolCallTarget is the {name, arguments} pair inside a tool call,
	// regardless of which kind key it is nested under.
	ToolCallTarget struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"` // raw JSON text, as providers emit it
	}

	// Choice is one candidate response.
	Choice struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	}

	// Response is the normalized shape every backend produces (spec
	// §4.3 step 5).
	Response struct {
		ID      string   `json:"id"`
		Model   string   `json:"model"`
		Created int64    `json:"created"`
		Choices []Choice `json:"choices"`
	}

	// Settings carries agent default_settings overlaid by step-level
	// settings (temperature, max_tokens, etc. — opaque to this package).
	Settings map[string]any

	// Request is the input to a Backend call after message rendering and
	// tool formatting are complete.
	Request struct {
		Model        string
		Messages     []Message
		Tools        []toolcatalog.Descriptor
		Settings     Settings
		DisableCache bool
	}

	// Backend dispatches a rendered prompt request to a concrete model
	// provider and returns its *raw* response already reshaped to the
	// normalized Response shape (steps 4-5 of spec §4.3; re-keying, step
	// 6, happens in Execute using the Backend-agnostic reverse map).
	Backend interface {
		Dispatch(ctx context.Context, req Request) (Response, error)
	}
)

const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
)

// MarshalJSON renders the call in its wire shape: function calls as
// {id, type: "function", function: {...}}, re-keyed calls as
// {id, type: <kind>, <kind>: {...}} with the kind itself as the key.
func (c ToolCall) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 3+len(c.Native))
	out["id"] = c.ID
	out["type"] = c.Type
	if c.Function != nil {
		out["function"] = c.Function
	}
	for kind, target := range c.Native {
		out[kind] = target
	}
	return json.Marshal(out)
}
