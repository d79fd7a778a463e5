package exprlang

import (
	"errors"

	"github.com/flowforge/taskcore/runtime/agent/toolerrors"
)

// Failure taxonomy for the expression and template dialects (spec §4.1,
// §7). Each sentinel is a plain error checked with errors.Is; callers that
// need a human-readable chain get one via the wrap* helpers, which nest the
// sentinel inside a toolerrors.ToolError so evaluator failures chain the
// same way tool and transition failures do.
var (
	ErrSyntax             = errors.New("expr: syntax error")
	ErrName               = errors.New("expr: undefined name")
	ErrType               = errors.New("expr: type error")
	ErrArity              = errors.New("expr: wrong number of arguments")
	ErrForbiddenOperation = errors.New("expr: forbidden operation")
)

func wrapSyntax(cause error) error {
	return &taggedError{sentinel: ErrSyntax, te: toolerrors.NewWithCause("expr: syntax error", cause)}
}

func wrapName(name string, cause error) error {
	return &taggedError{sentinel: ErrName, te: toolerrors.NewWithCause("expr: undefined name: "+name, cause)}
}

func wrapType(cause error) error {
	return &taggedError{sentinel: ErrType, te: toolerrors.NewWithCause("expr: type error", cause)}
}

func wrapArity(cause error) error {
	return &taggedError{sentinel: ErrArity, te: toolerrors.NewWithCause("expr: wrong number of arguments", cause)}
}

func wrapForbidden(op string) error {
	return &taggedError{sentinel: ErrForbiddenOperation, te: toolerrors.New("expr: forbidden operation: " + op)}
}

// taggedError pairs a classification sentinel with a ToolError chain so
// callers can both errors.Is(err, exprlang.ErrName) and walk the chain for
// diagnostics via errors.Unwrap.
type taggedError struct {
	sentinel error
	te       *toolerrors.ToolError
}

func (e *taggedError) Error() string { return e.te.Error() }
func (e *taggedError) Unwrap() error { return e.te }
func (e *taggedError) Is(target error) bool {
	return target == e.sentinel
}
