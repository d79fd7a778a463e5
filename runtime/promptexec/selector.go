package promptexec

import (
	"strings"

	"github.com/flowforge/taskcore/runtime/taskdef"
	"github.com/flowforge/taskcore/runtime/toolcatalog"
)

// claudeNativeFamily models "a model whose native protocol owns certain
// tool kinds" (spec §4.3 step 4): Claude 3.5+ models.
var claudeNativeFamily = []string{"claude-3-5", "claude-3.5", "claude-4", "claude-sonnet-4"}

func isClaudeNativeModel(model string) bool {
	m := strings.ToLower(model)
	for _, prefix := range claudeNativeFamily {
		if strings.Contains(m, prefix) {
			return true
		}
	}
	return false
}

var nativeToolKinds = map[string]bool{
	taskdef.ModelNativeComputer:   true,
	taskdef.ModelNativeBash:       true,
	taskdef.ModelNativeTextEditor: true,
}

// BackendSelector implements spec §4.3 step 4: choose the native-tools
// backend only when the agent's model owns a native tool protocol AND at
// least one formatted tool is one of the model-native kinds; otherwise the
// generic backend, with tools passed through unconditionally (the
// corrected behavior from spec §9, not the source's FIXME'd tools=None).
type BackendSelector struct {
	Generic Backend
	Native  Backend
}

// Select returns the backend to dispatch through and the tool subset it
// should receive: the native backend gets only the model-native tools
// ("only those tools"); the generic backend gets the full catalog
// unchanged.
func (s BackendSelector) Select(model string, tools []toolcatalog.Descriptor) (Backend, []toolcatalog.Descriptor) {
	if isClaudeNativeModel(model) {
		native := make([]toolcatalog.Descriptor, 0, len(tools))
		for _, t := range tools {
			if nativeToolKinds[t.Type] {
				native = append(native, t)
			}
		}
		if len(native) > 0 {
			return s.Native, native
		}
	}
	return s.Generic, tools
}
