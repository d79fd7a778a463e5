// Package tools provides strong type identifiers for tools.
package tools

// Ident is the strong type for tool identifiers. Use this type when
// referencing tools in maps or APIs to avoid accidental mixing with
// free-form strings.
type Ident string
