// Package toolcatalog merges task tools over agent tools and formats the
// result into the provider-facing tool-descriptor shape the Prompt Step
// Executor sends to a model backend, keeping a reverse mapping from
// emitted tool name back to the original taskdef.Tool so tool-call
// responses can be re-keyed to their true kind (spec §4.2).
package toolcatalog

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidateSchema compiles raw as a JSON Schema document, rejecting
// malformed schemas at task-definition time rather than at format time.
// An empty schema is treated as the trivial "{}" (accept-anything) schema.
func ValidateSchema(raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("toolcatalog: invalid JSON schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	const resourceName = "schema.json"
	if err := c.AddResource(resourceName, doc); err != nil {
		return fmt.Errorf("toolcatalog: invalid JSON schema: %w", err)
	}
	if _, err := c.Compile(resourceName); err != nil {
		return fmt.Errorf("toolcatalog: invalid JSON schema: %w", err)
	}
	return nil
}

func rawSchemaOrEmptyObject(raw []byte) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(raw)
}
