package statemachine

import "errors"

// Sentinel errors from spec §7, state-machine subset.
var (
	ErrTransitionPostTerminal = errors.New("statemachine: execution already terminal")
	ErrResumeNotAwaiting      = errors.New("statemachine: resume requires an execution awaiting input")
	ErrCursorOutOfRange       = errors.New("statemachine: cursor refers to a step outside its workflow")
	ErrUnknownWorkflow        = errors.New("statemachine: workflow not found")
	ErrToolLoopDepthExceeded  = errors.New("statemachine: auto_run_tools exceeded configured depth cap")
	ErrMaxToolCallsExceeded   = errors.New("statemachine: run policy max_tool_calls exceeded")
	ErrConsecutiveToolFailure = errors.New("statemachine: run policy max_consecutive_failed_tool_calls exceeded")
)
