package hooks

// EventType enumerates the hook events broadcast on the Bus and persisted
// by the run log. Each type corresponds to a specific phase in the task
// execution lifecycle.
type EventType string

const (
	// RunStarted fires when an execution begins.
	RunStarted EventType = "run_started"

	// RunCompleted fires after an execution reaches a terminal transition,
	// whether successfully or with a failure.
	RunCompleted EventType = "run_completed"

	// RunPaused fires when an execution suspends awaiting external input.
	RunPaused EventType = "run_paused"

	// RunResumed fires when a paused execution resumes.
	RunResumed EventType = "run_resumed"

	// ToolCallScheduled fires when the engine dispatches a tool activity.
	ToolCallScheduled EventType = "tool_call_scheduled"

	// ToolResultReceived fires when a tool activity completes and returns a
	// result or error.
	ToolResultReceived EventType = "tool_result_received"

	// StepNote fires when a log step emits a rendered note during execution.
	StepNote EventType = "step_note"
)
