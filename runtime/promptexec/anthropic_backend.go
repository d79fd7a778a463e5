package promptexec

import (
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/flowforge/taskcore/runtime/toolcatalog"
)

// anthropicMessagesClient captures the subset of the Anthropic SDK client
// used by the native-tools backend, so callers can pass either a real
// client or a test double.
type anthropicMessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicBackend implements Backend using Anthropic's native tool-use
// protocol (computer/bash/text_editor tools) — the native-tools backend of
// spec §4.3 step 4.
type AnthropicBackend struct {
	msg       anthropicMessagesClient
	maxTokens int64
}

const computerUseBeta = "computer-use-2024-10-22"

// NewAnthropicBackend builds a backend from an API key, using the default
// Anthropic HTTP client.
func NewAnthropicBackend(apiKey string, maxTokens int64) (*AnthropicBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("promptexec: anthropic api key is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicBackend{msg: &c.Messages, maxTokens: maxTokens}, nil
}

// Dispatch sends req through the Messages API with the beta computer-use
// header and only the tools already filtered to native kinds by the
// selector (spec §4.3 step 4: "only those tools").
func (b *AnthropicBackend) Dispatch(ctx context.Context, req Request) (Response, error) {
	msgs := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := sdk.NewTextBlock(m.Content)
		switch m.Role {
		case "assistant":
			msgs = append(msgs, sdk.NewAssistantMessage(block))
		default:
			msgs = append(msgs, sdk.NewUserMessage(block))
		}
	}
	tools, err := encodeNativeTools(req.Tools)
	if err != nil {
		return Response{}, err
	}
	maxTokens := b.maxTokens
	if v, ok := req.Settings["max_tokens"].(int); ok && v > 0 {
		maxTokens = int64(v)
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	msg, err := b.msg.New(ctx, params, option.WithHeader("anthropic-beta", computerUseBeta))
	if err != nil {
		return Response{}, fmt.Errorf("promptexec: anthropic messages.new: %w", err)
	}
	return translateAnthropicMessage(msg)
}

func encodeNativeTools(descriptors []toolcatalog.Descriptor) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(descriptors))
	for _, d := range descriptors {
		name, _ := d.Native["name"].(string)
		switch d.Type {
		case "computer_20241022":
			w, _ := d.Native["display_width_px"].(int)
			h, _ := d.Native["display_height_px"].(int)
			out = append(out, sdk.ToolUnionParamOfComputerUseTool20241022(int64(w), int64(h), name))
		case "bash_20241022":
			out = append(out, sdk.ToolUnionParamOfBashTool20241022())
		case "text_editor_20241022":
			out = append(out, sdk.ToolUnionParamOfTextEditorTool20241022())
		}
	}
	return out, nil
}

// translateAnthropicMessage implements spec §4.3 step 5 for the native
// backend: tool_use content blocks collect into ToolCalls with
// finish_reason "tool_calls"; otherwise the single text block becomes
// Content with finish_reason "stop".
func translateAnthropicMessage(msg *sdk.Message) (Response, error) {
	resp := Response{ID: msg.ID, Model: string(msg.Model)}
	var text string
	var textBlocks int
	var calls []ToolCall
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case sdk.TextBlock:
			textBlocks++
			text = variant.Text
		case sdk.ToolUseBlock:
			args, err := json.Marshal(variant.Input)
			if err != nil {
				return Response{}, fmt.Errorf("promptexec: encode tool_use input: %w", err)
			}
			calls = append(calls, ToolCall{
				ID:   variant.ID,
				Type: "function",
				Function: &ToolCallTarget{
					Name:      variant.Name,
					Arguments: string(args),
				},
			})
		}
	}
	if textBlocks > 1 {
		return Response{}, fmt.Errorf("promptexec: anthropic response has more than one text block")
	}
	choice := Choice{Message: Message{Role: "assistant", Content: text}}
	if msg.StopReason == sdk.StopReasonToolUse {
		choice.Message.ToolCalls = calls
		choice.FinishReason = FinishToolCalls
	} else {
		choice.FinishReason = FinishStop
	}
	resp.Choices = []Choice{choice}
	return resp, nil
}
