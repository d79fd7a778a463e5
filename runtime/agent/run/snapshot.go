package run

import (
	"time"

	"github.com/flowforge/taskcore/runtime/agent"
	"github.com/flowforge/taskcore/runtime/agent/tools"
)

type (
	// Snapshot is a derived view of an execution computed by replaying the
	// run event log.
	//
	// Snapshots are not stored directly; they are recomputed from the
	// canonical append-only run log.
	Snapshot struct {
		// RunID uniquely identifies the durable execution.
		RunID string
		// AgentID identifies the agent that owns the execution.
		AgentID agent.Ident
		// SessionID groups related executions into a logical session.
		SessionID string
		// TurnID groups events for a single external request.
		TurnID string

		// Status is the coarse-grained lifecycle status derived from events.
		Status Status
		// Phase is the current execution phase derived from events.
		Phase Phase

		// StartedAt is the timestamp of the first observed run event.
		StartedAt time.Time
		// UpdatedAt is the timestamp of the last observed run event.
		UpdatedAt time.Time

		// LastNote is the most recent log-step note emitted by the execution.
		LastNote string

		// Await describes the current await state when the execution is
		// suspended awaiting input.
		Await *AwaitSnapshot

		// ToolCalls summarizes observed tool calls (scheduled, completed).
		ToolCalls []*ToolCallSnapshot
	}

	// AwaitSnapshot describes the latest await state derived from run events.
	AwaitSnapshot struct {
		// Info is the rendered wait_for_input info that accompanied the pause.
		Info string
	}

	// ToolCallSnapshot summarizes the state of a tool invocation derived
	// from events.
	ToolCallSnapshot struct {
		// ToolCallID uniquely identifies the tool invocation.
		ToolCallID string
		// ToolName identifies the executed tool.
		ToolName tools.Ident
		// ScheduledAt is the timestamp of the tool scheduling event.
		ScheduledAt time.Time
		// CompletedAt is the timestamp of the tool result event.
		CompletedAt time.Time
		// Duration is the tool execution duration when the result is observed.
		Duration time.Duration
		// ErrorSummary is a human-readable error message when the tool failed.
		ErrorSummary string
	}
)
