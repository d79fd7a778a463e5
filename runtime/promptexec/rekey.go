package promptexec

import (
	"fmt"

	"github.com/flowforge/taskcore/runtime/taskdef"
	"github.com/flowforge/taskcore/runtime/toolcatalog"
)

// Rekey implements spec §4.3 step 6: for every tool call in a
// finish_reason=="tool_calls" choice, look up the original tool by name
// and, if its kind is not "function", rewrite the call from
// {function: {name, arguments}} to {type: <kind>, <kind>: {name, arguments}}.
func Rekey(resp Response, reverse toolcatalog.ReverseMap) (Response, error) {
	for ci, choice := range resp.Choices {
		if choice.FinishReason != FinishToolCalls {
			continue
		}
		for ti, call := range choice.Message.ToolCalls {
			if call.Function == nil {
				continue
			}
			tool, ok := reverse[call.Function.Name]
			if !ok {
				return Response{}, fmt.Errorf("%w: %q", ErrUnknownTool, call.Function.Name)
			}
			k := tool.Kind()
			if k == taskdef.ToolFunction || k == "" {
				continue
			}
			kind := string(k)
			if k == taskdef.ToolModelNative {
				kind = tool.ModelNative.NativeKind
			}
			target := &ToolCallTarget{Name: call.Function.Name, Arguments: call.Function.Arguments}
			resp.Choices[ci].Message.ToolCalls[ti] = ToolCall{
				ID:     call.ID,
				Type:   kind,
				Native: map[string]*ToolCallTarget{kind: target},
			}
		}
	}
	return resp, nil
}
