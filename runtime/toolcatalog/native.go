package toolcatalog

import "github.com/flowforge/taskcore/runtime/taskdef"

// formatModelNative renders the provider-specific shape for a model-native
// tool kind (computer/bash/text_editor use), including display dimensions
// where applicable (spec §4.2).
func formatModelNative(t taskdef.Tool) (Descriptor, error) {
	mn := t.ModelNative
	native := map[string]any{"name": t.Name}
	if mn.NativeKind == taskdef.ModelNativeComputer {
		native["display_width_px"] = mn.DisplayWidthPX
		native["display_height_px"] = mn.DisplayHeightPX
	}
	return Descriptor{Type: mn.NativeKind, Native: native}, nil
}
