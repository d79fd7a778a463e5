package exprlang

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

// Context is the read-only mapping expressions and templates evaluate
// against. Keys are top-level identifiers (spec: "a conventional scripting
// expression grammar... evaluated against a context mapping").
type Context map[string]any

// env is a single shared CEL environment. It is built once and registers
// nothing beyond CEL's own standard library of arithmetic/comparison/logical
// operators, list/map construction, indexing, and field selection, plus the
// sprig helper functions of sprigBridge. This gives "no statements, no
// assignments, no imports" as a property of the chosen sub-language rather
// than something policed by hand (see SPEC_FULL.md §4.1).
var env = mustBuildEnv()

func mustBuildEnv() *cel.Env {
	// No variable declarations are registered: arbitrary top-level
	// identifiers are resolved dynamically against the supplied Context at
	// evaluation time (via an unchecked Parse + Program, never Compile/
	// Check), because the context shape is per-task and per-step and
	// can't be known in advance.
	e, err := cel.NewEnv(
		cel.HomogeneousAggregateLiterals(),
		sprigBridge,
	)
	if err != nil {
		panic(fmt.Sprintf("exprlang: failed to build base CEL environment: %v", err))
	}
	return e
}

// ValidateExpression parses s and reports a syntax error without
// evaluating it. Called at task-definition time on every expression
// occurrence (spec §4.1).
func ValidateExpression(s string) error {
	_, iss := env.Parse(s)
	if iss != nil && iss.Err() != nil {
		return wrapSyntax(iss.Err())
	}
	return nil
}

// Evaluate parses expr (unchecked) and evaluates it against ctx. Evaluate is pure with
// respect to ctx: no I/O, clock, or randomness is exposed to the
// expression.
func Evaluate(expr string, ctx Context) (any, error) {
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, wrapSyntax(iss.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, wrapType(err)
	}
	activation, err := cel.NewActivation(toActivationVars(ctx))
	if err != nil {
		return nil, wrapType(err)
	}
	out, _, err := prg.Eval(activation)
	if err != nil {
		return nil, classifyEvalError(err)
	}
	return nativeValue(out)
}

func toActivationVars(ctx Context) map[string]any {
	vars := make(map[string]any, len(ctx))
	for k, v := range ctx {
		vars[k] = v
	}
	return vars
}

// classifyEvalError maps CEL runtime errors to the spec's failure
// taxonomy. CEL reports unresolved identifiers and missing attributes as
// plain errors with recognizable text; there is no typed distinction in
// the library, so classification is done by inspecting the message.
func classifyEvalError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such attribute"),
		strings.Contains(msg, "undeclared reference"),
		strings.Contains(msg, "unbound function"):
		return wrapName(msg, err)
	case strings.Contains(msg, "no matching overload"),
		strings.Contains(msg, "type conversion error"),
		strings.Contains(msg, "unsupported conversion"):
		return wrapType(err)
	case strings.Contains(msg, "range"),
		strings.Contains(msg, "index out of bounds"):
		return wrapArity(err)
	default:
		return wrapType(err)
	}
}

// nativeValue converts a CEL ref.Val back into plain Go data (map[string]any,
// []any, string, float64/int64, bool, nil) so downstream callers (the
// interpreter, the template renderer) never need to import cel-go types.
// Lists and maps are walked recursively: CEL's own aggregate values wrap
// their elements in ref.Val and Value() alone would leak those wrappers.
func nativeValue(v ref.Val) (any, error) {
	if v == nil || v == types.NullValue {
		return nil, nil
	}
	if types.IsError(v) {
		if err, ok := v.Value().(error); ok {
			return nil, wrapType(err)
		}
		return nil, wrapType(fmt.Errorf("%v", v.Value()))
	}
	switch t := v.(type) {
	case traits.Lister:
		out := []any{}
		it := t.Iterator()
		for it.HasNext() == types.True {
			ev, err := nativeValue(it.Next())
			if err != nil {
				return nil, err
			}
			out = append(out, ev)
		}
		return out, nil
	case traits.Mapper:
		out := make(map[string]any)
		it := t.Iterator()
		for it.HasNext() == types.True {
			k := it.Next()
			key, ok := k.Value().(string)
			if !ok {
				key = fmt.Sprintf("%v", k.Value())
			}
			ev, err := nativeValue(t.Get(k))
			if err != nil {
				return nil, err
			}
			out[key] = ev
		}
		return out, nil
	default:
		return v.Value(), nil
	}
}
