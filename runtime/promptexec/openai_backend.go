package promptexec

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/flowforge/taskcore/runtime/toolcatalog"
)

// openaiChatClient captures the subset of the OpenAI SDK used by the
// generic backend.
type openaiChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIBackend implements Backend using the generic chat-completion
// protocol (spec §4.3 step 4, "otherwise dispatch via the generic
// backend"). Unlike the teacher's FIXME'd path, tools are passed through
// here per the §9 correction.
type OpenAIBackend struct {
	chat openaiChatClient
}

// NewOpenAIBackend builds a backend from an API key using the default
// OpenAI HTTP client.
func NewOpenAIBackend(apiKey string) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("promptexec: openai api key is required")
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIBackend{chat: c.Chat.Completions}, nil
}

func (b *OpenAIBackend) Dispatch(ctx context.Context, req Request) (Response, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system", "developer":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
	}
	// If no tools are present, tool-choice must be omitted (spec §4.3 step 4).
	if len(req.Tools) > 0 {
		tools, err := encodeFunctionTools(req.Tools)
		if err != nil {
			return Response{}, err
		}
		params.Tools = tools
	}
	resp, err := b.chat.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("promptexec: openai chat.completions.new: %w", err)
	}
	return translateChatCompletion(resp), nil
}

func encodeFunctionTools(descriptors []toolcatalog.Descriptor) ([]openai.ChatCompletionToolUnionParam, error) {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(descriptors))
	for _, d := range descriptors {
		if d.Function == nil {
			continue // model-native kinds have no generic-backend representation
		}
		var params shared.FunctionParameters
		if err := json.Unmarshal(d.Function.Parameters, &params); err != nil {
			return nil, fmt.Errorf("promptexec: decode tool parameters for %q: %w", d.Function.Name, err)
		}
		out = append(out, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        d.Function.Name,
			Description: openai.String(d.Function.Description),
			Parameters:  params,
		}))
	}
	return out, nil
}

// translateChatCompletion implements spec §4.3 step 5 for the generic
// backend: a finish_reason of "tool_calls" carries the SDK's native
// array of function tool calls, already uniform with our Message shape.
func translateChatCompletion(resp *openai.ChatCompletion) Response {
	out := Response{ID: resp.ID, Model: resp.Model, Created: resp.Created}
	for _, c := range resp.Choices {
		msg := Message{Role: "assistant", Content: c.Message.Content}
		for _, tc := range c.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: &ToolCallTarget{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		// Preserve the provider's finish reason verbatim (length,
		// content_filter, etc.); only the empty case defaults to "stop".
		finish := string(c.FinishReason)
		if finish == "" {
			finish = FinishStop
		}
		out.Choices = append(out.Choices, Choice{Message: msg, FinishReason: finish})
	}
	return out
}
