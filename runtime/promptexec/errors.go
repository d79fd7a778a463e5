package promptexec

import "errors"

// Prompt Step Executor failure taxonomy (spec §7).
var (
	ErrUnknownTool             = errors.New("promptexec: unknown tool")
	ErrToolLoopDepthExceeded   = errors.New("promptexec: auto_run_tools depth cap exceeded")
	ErrInvalidPromptExpression = errors.New("promptexec: prompt expression must yield a string or message list")
	ErrUnwrapMultipleChoices   = errors.New("promptexec: unwrap requires exactly one choice")
	ErrUnwrapToolCalls         = errors.New("promptexec: unwrap is not valid when the choice contains tool calls")
)
