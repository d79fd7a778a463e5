package toolcatalog_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/taskcore/runtime/taskdef"
	"github.com/flowforge/taskcore/runtime/toolcatalog"
)

func TestFormatFunctionTool(t *testing.T) {
	tools := []taskdef.Tool{
		{Name: "add", Function: &taskdef.FunctionTool{
			Description: "adds numbers",
			Parameters:  []byte(`{"type":"object"}`),
		}},
	}
	cat, err := toolcatalog.Format(tools, nil, nil)
	require.NoError(t, err)
	require.Len(t, cat.Descriptors, 1)

	d := cat.Descriptors[0]
	assert.Equal(t, "function", d.Type)
	require.NotNil(t, d.Function)
	assert.Equal(t, "add", d.Function.Name)
	assert.Equal(t, "adds numbers", d.Function.Description)
	assert.JSONEq(t, `{"type":"object"}`, string(d.Function.Parameters))

	reverse, ok := cat.Reverse["add"]
	require.True(t, ok)
	assert.Equal(t, taskdef.ToolFunction, reverse.Kind())
}

func TestFormatIntegrationToolLooksUpSchema(t *testing.T) {
	tools := []taskdef.Tool{
		{Name: "search", Integration: &taskdef.IntegrationTool{
			Description: "web search",
			Provider:    "brave",
			Method:      "search",
		}},
	}
	lookup := func(provider, method string) (json.RawMessage, bool) {
		if provider == "brave" && method == "search" {
			return json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}}}`), true
		}
		return nil, false
	}
	cat, err := toolcatalog.Format(tools, lookup, nil)
	require.NoError(t, err)
	require.Len(t, cat.Descriptors, 1)
	assert.JSONEq(t, `{"type":"object","properties":{"q":{"type":"string"}}}`, string(cat.Descriptors[0].Function.Parameters))
}

func TestFormatIntegrationToolUnknownProviderYieldsEmptySchema(t *testing.T) {
	tools := []taskdef.Tool{
		{Name: "search", Integration: &taskdef.IntegrationTool{Provider: "unknown", Method: "x"}},
	}
	cat, err := toolcatalog.Format(tools, nil, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(cat.Descriptors[0].Function.Parameters))
}

func TestFormatSystemToolUsesReflector(t *testing.T) {
	tools := []taskdef.Tool{
		{Name: "lookup", System: &taskdef.SystemTool{Description: "sys", Handler: "doc_search"}},
	}
	reflector := func(handler string) (json.RawMessage, bool) {
		if handler == "doc_search" {
			return json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}}}`), true
		}
		return nil, false
	}
	cat, err := toolcatalog.Format(tools, nil, reflector)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","properties":{"query":{"type":"string"}}}`, string(cat.Descriptors[0].Function.Parameters))
}

func TestFormatAPICallTool(t *testing.T) {
	tools := []taskdef.Tool{
		{Name: "weather", APICall: &taskdef.APICallTool{
			Description: "current weather",
			Request:     []byte(`{"type":"object","properties":{"city":{"type":"string"}}}`),
		}},
	}
	cat, err := toolcatalog.Format(tools, nil, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","properties":{"city":{"type":"string"}}}`, string(cat.Descriptors[0].Function.Parameters))
}

func TestFormatModelNativeComputerIncludesDisplayDimensions(t *testing.T) {
	tools := []taskdef.Tool{
		{Name: "computer", ModelNative: &taskdef.ModelNativeTool{
			NativeKind:      taskdef.ModelNativeComputer,
			DisplayWidthPX:  1024,
			DisplayHeightPX: 768,
		}},
	}
	cat, err := toolcatalog.Format(tools, nil, nil)
	require.NoError(t, err)
	raw, err := json.Marshal(cat.Descriptors[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"computer_20241022","name":"computer","display_width_px":1024,"display_height_px":768}`, string(raw))
}

func TestFormatModelNativeBashHasNoDisplayDimensions(t *testing.T) {
	tools := []taskdef.Tool{
		{Name: "bash", ModelNative: &taskdef.ModelNativeTool{NativeKind: taskdef.ModelNativeBash}},
	}
	cat, err := toolcatalog.Format(tools, nil, nil)
	require.NoError(t, err)
	raw, err := json.Marshal(cat.Descriptors[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"bash_20241022","name":"bash"}`, string(raw))
}

func TestFormatRejectsDuplicateEmittedName(t *testing.T) {
	tools := []taskdef.Tool{
		{Name: "search", Function: &taskdef.FunctionTool{}},
		{Name: "search", Function: &taskdef.FunctionTool{}},
	}
	_, err := toolcatalog.Format(tools, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate emitted tool name")
}

func TestFormatRejectsUnpopulatedToolVariant(t *testing.T) {
	tools := []taskdef.Tool{{Name: "empty"}}
	_, err := toolcatalog.Format(tools, nil, nil)
	require.Error(t, err)
}

func TestReverseMapRoundTripsEveryToolKind(t *testing.T) {
	tools := []taskdef.Tool{
		{Name: "fn", Function: &taskdef.FunctionTool{}},
		{Name: "sys", System: &taskdef.SystemTool{Handler: "h"}},
		{Name: "integ", Integration: &taskdef.IntegrationTool{Provider: "brave", Method: "search"}},
		{Name: "api", APICall: &taskdef.APICallTool{}},
		{Name: "native", ModelNative: &taskdef.ModelNativeTool{NativeKind: taskdef.ModelNativeTextEditor}},
	}
	cat, err := toolcatalog.Format(tools, nil, nil)
	require.NoError(t, err)
	for _, want := range tools {
		got, ok := cat.Reverse[want.Name]
		require.True(t, ok, "missing reverse entry for %q", want.Name)
		assert.Equal(t, want.Kind(), got.Kind())
	}
}

func TestValidateSchemaAcceptsEmptyAndRejectsMalformed(t *testing.T) {
	assert.NoError(t, toolcatalog.ValidateSchema(nil))
	assert.NoError(t, toolcatalog.ValidateSchema([]byte(`{"type":"object"}`)))
	assert.Error(t, toolcatalog.ValidateSchema([]byte(`{"type": `)))
}
