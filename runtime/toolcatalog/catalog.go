package toolcatalog

import (
	"encoding/json"
	"fmt"

	"github.com/flowforge/taskcore/runtime/taskdef"
)

type (
	// Catalog is the resolved, formatted view of the tools available to a
	// step: the provider-facing descriptor array plus the reverse map
	// needed to translate tool-call responses back to their true kind.
	Catalog struct {
		Descriptors []Descriptor
		Reverse     ReverseMap
	}

	// Descriptor is the provider-facing tool schema: one JSON object per
	// tool, shaped per spec §4.2.
	Descriptor struct {
		Type     string          `json:"type"`
		Function *FunctionSchema `json:"function,omitempty"`
		// ModelNative descriptors are merged in via MarshalJSON on the
		// concrete native kind (see native.go); Native carries the raw
		// provider-specific object for those entries.
		Native map[string]any `json:"-"`
	}

	// FunctionSchema is the OpenAI-style {name, description, parameters}
	// function tool shape, reused for function/system/integration/api_call
	// tools — they differ only in how parameters is derived (spec §4.2).
	FunctionSchema struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters"`
	}

	// ReverseMap maps an emitted tool name back to the taskdef.Tool that
	// produced it, used to re-key tool_call outputs to their original
	// kind (spec §4.2, §4.3 step 6).
	ReverseMap map[string]taskdef.Tool

	// IntegrationSchemas looks up the JSON Schema for a (provider, method)
	// pair declared by an IntegrationTool. The lookup is supplied by the
	// caller (a collaborator outside this engine's scope, per spec §4.2);
	// an unknown pair yields the empty object schema.
	IntegrationSchemas func(provider, method string) (json.RawMessage, bool)

	// SystemReflector supplies the JSON Schema derived by reflecting a
	// system tool's declared handler arguments (spec §4.2: "collaborator
	// supplies the reflection").
	SystemReflector func(handler string) (json.RawMessage, bool)
)

// MarshalJSON renders a Descriptor in the provider's shape: function-style
// tools nest under "function"; model-native tools nest under their own
// type name, matching the Claude computer-use tool shape.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	if d.Native != nil {
		m := map[string]any{"type": d.Type}
		for k, v := range d.Native {
			m[k] = v
		}
		return json.Marshal(m)
	}
	return json.Marshal(struct {
		Type     string          `json:"type"`
		Function *FunctionSchema `json:"function,omitempty"`
	}{Type: d.Type, Function: d.Function})
}

// Format builds the Catalog for tools, the result of merging task tools
// over agent tools (see taskdef.ResolvedTools). Tool names must already be
// unique (enforced by taskdef.Validate); Format returns an error if a
// duplicate slips through, since emitted names collide under that
// condition (Design Note "Tool translation back-map").
func Format(tools []taskdef.Tool, integrations IntegrationSchemas, systemSchemas SystemReflector) (Catalog, error) {
	cat := Catalog{Reverse: make(ReverseMap, len(tools))}
	for _, t := range tools {
		if _, dup := cat.Reverse[t.Name]; dup {
			return Catalog{}, fmt.Errorf("toolcatalog: duplicate emitted tool name %q", t.Name)
		}
		d, err := formatOne(t, integrations, systemSchemas)
		if err != nil {
			return Catalog{}, fmt.Errorf("toolcatalog: tool %q: %w", t.Name, err)
		}
		cat.Descriptors = append(cat.Descriptors, d)
		cat.Reverse[t.Name] = t
	}
	return cat, nil
}

func formatOne(t taskdef.Tool, integrations IntegrationSchemas, systemSchemas SystemReflector) (Descriptor, error) {
	switch {
	case t.Function != nil:
		return Descriptor{
			Type: "function",
			Function: &FunctionSchema{
				Name:        t.Name,
				Description: t.Function.Description,
				Parameters:  rawSchemaOrEmptyObject(t.Function.Parameters),
			},
		}, nil

	case t.System != nil:
		params := rawSchemaOrEmptyObject(t.System.Parameters)
		if len(params) == 2 && systemSchemas != nil { // "{}" placeholder, try reflection
			if reflected, ok := systemSchemas(t.System.Handler); ok {
				params = rawSchemaOrEmptyObject(reflected)
			}
		}
		return Descriptor{
			Type: "function",
			Function: &FunctionSchema{
				Name:        t.Name,
				Description: t.System.Description,
				Parameters:  params,
			},
		}, nil

	case t.Integration != nil:
		params := json.RawMessage(`{}`)
		if integrations != nil {
			if schema, ok := integrations(t.Integration.Provider, t.Integration.Method); ok {
				params = rawSchemaOrEmptyObject(schema)
			}
		}
		return Descriptor{
			Type: "function",
			Function: &FunctionSchema{
				Name:        t.Name,
				Description: t.Integration.Description,
				Parameters:  params,
			},
		}, nil

	case t.APICall != nil:
		return Descriptor{
			Type: "function",
			Function: &FunctionSchema{
				Name:        t.Name,
				Description: t.APICall.Description,
				Parameters:  rawSchemaOrEmptyObject(t.APICall.Request),
			},
		}, nil

	case t.ModelNative != nil:
		return formatModelNative(t)

	default:
		return Descriptor{}, fmt.Errorf("no populated tool variant")
	}
}
