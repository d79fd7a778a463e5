package promptexec

import (
	"fmt"

	"github.com/flowforge/taskcore/runtime/exprlang"
	"github.com/flowforge/taskcore/runtime/taskdef"
)

// reservedRenderKeys are context keys skipped when rendering message
// templates (spec §4.3 step 2: "skipping a fixed set of reserved keys from
// rendering — at minimum developer_id").
var reservedRenderKeys = map[string]bool{
	"developer_id": true,
}

// renderedContext strips reserved keys so they never leak into a rendered
// template even if a step's context map happens to include one.
func renderedContext(ctx exprlang.Context) exprlang.Context {
	if len(reservedRenderKeys) == 0 {
		return ctx
	}
	out := make(exprlang.Context, len(ctx))
	for k, v := range ctx {
		if reservedRenderKeys[k] {
			continue
		}
		out[k] = v
	}
	return out
}

// BuildMessages implements spec §4.3 steps 1-3: evaluate a "$_ " prompt
// expression, or render every content field as a template, then wrap a
// bare string into a single user message.
func BuildMessages(p *taskdef.PromptPayload, ctx exprlang.Context) ([]Message, error) {
	rctx := renderedContext(ctx)

	if p.Text != "" {
		if expr, ok := exprlang.SplitPromptExpression(p.Text); ok {
			v, err := exprlang.Evaluate(expr, ctx)
			if err != nil {
				return nil, err
			}
			return promptExpressionResult(v)
		}
		rendered, err := exprlang.Render(p.Text, rctx)
		if err != nil {
			return nil, err
		}
		return []Message{{Role: "user", Content: rendered}}, nil
	}

	out := make([]Message, 0, len(p.Messages))
	for _, m := range p.Messages {
		rendered, err := exprlang.Render(m.Content, rctx)
		if err != nil {
			return nil, err
		}
		out = append(out, Message{Role: m.Role, Content: rendered})
	}
	return out, nil
}

// promptExpressionResult validates that a "$_ " expression produced a
// string or a list of messages (spec §4.1).
func promptExpressionResult(v any) ([]Message, error) {
	switch t := v.(type) {
	case string:
		return []Message{{Role: "user", Content: t}}, nil
	case []any:
		out := make([]Message, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, ErrInvalidPromptExpression
			}
			role, _ := m["role"].(string)
			content, _ := m["content"].(string)
			if role == "" {
				return nil, ErrInvalidPromptExpression
			}
			out = append(out, Message{Role: role, Content: content})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrInvalidPromptExpression, v)
	}
}
