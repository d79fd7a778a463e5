package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/flowforge/taskcore/runtime/agent"
	"github.com/flowforge/taskcore/runtime/agent/run"
	"github.com/flowforge/taskcore/runtime/agent/telemetry"
	"github.com/flowforge/taskcore/runtime/agent/toolerrors"
	"github.com/flowforge/taskcore/runtime/agent/tools"
)

type (
	// Event is the interface all hook events must implement. The engine
	// publishes events through the Bus, and subscribers receive them via
	// HandleEvent. Concrete event types carry typed payloads for each
	// lifecycle phase.
	//
	// Subscribers use type switches to access event-specific fields:
	//
	//	func (s *MySubscriber) HandleEvent(ctx context.Context, evt Event) error {
	//	    switch e := evt.(type) {
	//	    case *RunStartedEvent:
	//	        log.Printf("Context: %+v", e.RunContext)
	//	    case *ToolResultReceivedEvent:
	//	        log.Printf("Tool %s took %v", e.ToolName, e.Duration)
	//	    }
	//	    return nil
	//	}
	Event interface {
		// Type returns the specific event type constant (e.g., RunStarted,
		// ToolCallScheduled). Subscribers use this to filter events or route
		// to specific handlers without type assertions.
		Type() EventType
		// RunID returns the unique identifier for the execution that produced
		// this event. All events within a single execution share the same run
		// ID, enabling correlation and filtering.
		RunID() string
		// SessionID returns the logical session identifier associated with
		// the execution, a stable join key across processes and transports.
		SessionID() string
		// AgentID returns the agent identifier that triggered this event.
		AgentID() string
		// Timestamp returns the Unix timestamp in milliseconds when the event
		// occurred. Events are timestamped at creation, not at delivery.
		Timestamp() int64
		// TurnID returns the grouping identifier for the external request
		// being served when turn tracking is active, empty otherwise.
		TurnID() string
	}

	// RunStartedEvent fires when an execution begins.
	RunStartedEvent struct {
		baseEvent
		// RunContext carries the execution metadata (run ID, attempt, labels)
		// for this invocation.
		RunContext run.Context
		// Input is the initial input map passed to the execution.
		Input any
	}

	// RunCompletedEvent fires after an execution reaches a terminal
	// transition, whether successfully or with a failure.
	RunCompletedEvent struct {
		baseEvent
		// Status indicates the final outcome: "success", "failed", or "canceled".
		Status string
		// PublicError is a user-safe, deterministic summary of the terminal
		// failure. It is empty on success and cancellations and is intended
		// to be rendered directly in UIs without additional parsing.
		PublicError string
		// Error contains any terminal error that halted the execution. Nil on success.
		Error error
		// ErrorKind classifies failures into a small set of stable categories
		// suitable for retry and UX decisions (for example, "timeout").
		ErrorKind string
		// Retryable reports whether retrying may succeed without changing the input.
		Retryable bool
		// Phase captures the terminal phase: PhaseCompleted, PhaseFailed, or
		// PhaseCanceled.
		Phase run.Phase
	}

	// RunPausedEvent fires when an execution suspends awaiting external input.
	RunPausedEvent struct {
		baseEvent
		// Reason provides a human-readable explanation for the pause,
		// typically the rendered info of the wait_for_input step.
		Reason string
		// RequestedBy identifies the actor who initiated the pause when the
		// pause came from outside the workflow (empty for wait_for_input).
		RequestedBy string
		// Labels carries optional key-value metadata for categorizing the
		// pause. Nil if no labels were provided.
		Labels map[string]string
		// Metadata holds arbitrary structured data attached to the pause for
		// audit trails. Nil if no metadata was provided.
		Metadata map[string]any
	}

	// RunResumedEvent fires when a paused execution resumes with delivered input.
	RunResumedEvent struct {
		baseEvent
		// Notes carries optional human-readable context provided with the
		// resume request. Empty if none was provided.
		Notes string
		// RequestedBy identifies the actor who delivered the resume input.
		RequestedBy string
		// Labels carries optional key-value metadata for categorizing the
		// resume. Nil if no labels were provided.
		Labels map[string]string
	}

	// ToolCallScheduledEvent fires when the engine dispatches a tool activity.
	ToolCallScheduledEvent struct {
		baseEvent
		// ToolCallID identifies the tool invocation so the matching result
		// event can correlate with it. Derived from the execution's log
		// position, so replaying a step reports the same id.
		ToolCallID string
		// ToolName is the resolved tool's name.
		ToolName tools.Ident
		// Payload contains the canonical JSON tool arguments.
		Payload json.RawMessage
	}

	// ToolResultReceivedEvent fires when a tool activity completes and
	// returns a result or error.
	ToolResultReceivedEvent struct {
		baseEvent
		// ToolCallID identifies the tool invocation that produced this result.
		ToolCallID string
		// ToolName is the executed tool's name.
		ToolName tools.Ident
		// Result contains the tool's output payload. Nil if Error is set.
		Result any
		// Bounds, when non-nil, describes how the tool result has been
		// bounded relative to the full underlying data set. Supplied by tool
		// implementations; the engine does not modify it.
		Bounds *agent.Bounds
		// Artifacts holds rich, non-provider data attached to the tool result.
		Artifacts []*Artifact
		// Duration is the wall-clock execution time for the tool activity.
		Duration time.Duration
		// Telemetry holds structured observability metadata (tokens, model,
		// retries). Nil if no telemetry was collected.
		Telemetry *telemetry.ToolTelemetry
		// Error contains any error returned by the tool execution. Nil on success.
		Error *toolerrors.ToolError
	}

	// StepNoteEvent fires when a log step emits a rendered note.
	StepNoteEvent struct {
		baseEvent
		// Note is the rendered text of the note.
		Note string
		// Labels provide optional categorization metadata.
		Labels map[string]string
	}

	// Artifact carries rich, non-provider data attached to a tool result
	// (for example a generated file). Artifacts ride alongside
	// ToolResultReceivedEvent but are never serialized into model provider
	// requests. Data is kept as raw JSON so it survives the hook
	// encode/decode round-trip without losing type fidelity.
	Artifact struct {
		Kind       string
		Data       json.RawMessage
		SourceTool tools.Ident
	}

	baseEvent struct {
		runID     string
		agentID   agent.Ident
		timestamp int64
		// sessionID associates the event with the logical session that owns
		// the execution.
		sessionID string
		// turnID groups events for a single external request (optional).
		turnID string
	}
)

const (
	// ErrorKindTimeout indicates the execution failed because a required
	// operation timed out.
	ErrorKindTimeout = "timeout"

	// ErrorKindInternal indicates the execution failed for an unclassified
	// reason.
	ErrorKindInternal = "internal"
)

// NewRunStartedEvent constructs a RunStartedEvent with the current
// timestamp. RunContext and Input capture the initial execution state.
func NewRunStartedEvent(runID string, agentID agent.Ident, runContext run.Context, input any) *RunStartedEvent {
	be := newBaseEvent(runID, agentID)
	be.sessionID = runContext.SessionID
	return &RunStartedEvent{
		baseEvent:  be,
		RunContext: runContext,
		Input:      input,
	}
}

// NewRunCompletedEvent constructs a RunCompletedEvent. Status should be
// "success", "failed", or "canceled"; phase must be the terminal lifecycle
// phase. err may be nil on success.
func NewRunCompletedEvent(runID string, agentID agent.Ident, sessionID, status string, phase run.Phase, err error) *RunCompletedEvent {
	be := newBaseEvent(runID, agentID)
	be.sessionID = sessionID
	out := &RunCompletedEvent{
		baseEvent: be,
		Status:    status,
		Phase:     phase,
		Error:     err,
	}
	if err == nil || status != "failed" {
		// Cancellation is terminal but non-error for UX purposes.
		return out
	}
	out.ErrorKind, out.PublicError = classifyFailure(err)
	out.Retryable = true
	return out
}

// NewRunPausedEvent constructs a RunPausedEvent with provided metadata.
func NewRunPausedEvent(runID string, agentID agent.Ident, sessionID, reason, requestedBy string, labels map[string]string, metadata map[string]any) *RunPausedEvent {
	be := newBaseEvent(runID, agentID)
	be.sessionID = sessionID
	return &RunPausedEvent{
		baseEvent:   be,
		Reason:      reason,
		RequestedBy: requestedBy,
		Labels:      labels,
		Metadata:    metadata,
	}
}

// NewRunResumedEvent constructs a RunResumedEvent with provided metadata.
func NewRunResumedEvent(runID string, agentID agent.Ident, sessionID, notes, requestedBy string, labels map[string]string) *RunResumedEvent {
	be := newBaseEvent(runID, agentID)
	be.sessionID = sessionID
	return &RunResumedEvent{
		baseEvent:   be,
		Notes:       notes,
		RequestedBy: requestedBy,
		Labels:      labels,
	}
}

// NewToolCallScheduledEvent constructs a ToolCallScheduledEvent. Payload is
// the canonical JSON arguments for the scheduled tool.
func NewToolCallScheduledEvent(runID string, agentID agent.Ident, sessionID string, toolName tools.Ident, toolCallID string, payload json.RawMessage) *ToolCallScheduledEvent {
	be := newBaseEvent(runID, agentID)
	be.sessionID = sessionID
	return &ToolCallScheduledEvent{
		baseEvent:  be,
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Payload:    payload,
	}
}

// NewToolResultReceivedEvent constructs a ToolResultReceivedEvent. Result
// and err capture the tool outcome; duration is the wall-clock execution
// time; telemetry carries structured observability metadata (nil if not
// collected).
func NewToolResultReceivedEvent(runID string, agentID agent.Ident, sessionID string, toolName tools.Ident, toolCallID string, result any, bounds *agent.Bounds, artifacts []*Artifact, duration time.Duration, telemetry *telemetry.ToolTelemetry, err *toolerrors.ToolError) *ToolResultReceivedEvent {
	be := newBaseEvent(runID, agentID)
	be.sessionID = sessionID
	return &ToolResultReceivedEvent{
		baseEvent:  be,
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Result:     result,
		Bounds:     bounds,
		Artifacts:  artifacts,
		Duration:   duration,
		Telemetry:  telemetry,
		Error:      err,
	}
}

// NewStepNoteEvent constructs a StepNoteEvent with the given note text and
// optional labels for categorization.
func NewStepNoteEvent(runID string, agentID agent.Ident, sessionID string, note string, labels map[string]string) *StepNoteEvent {
	be := newBaseEvent(runID, agentID)
	be.sessionID = sessionID
	return &StepNoteEvent{
		baseEvent: be,
		Note:      note,
		Labels:    labels,
	}
}

func classifyFailure(err error) (kind, publicError string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout, PublicErrorTimeout
	}
	return ErrorKindInternal, PublicErrorInternal
}

// RunID returns the execution identifier.
func (e baseEvent) RunID() string { return e.runID }

// SessionID returns the logical session identifier associated with the execution.
func (e baseEvent) SessionID() string { return e.sessionID }

// AgentID returns the agent identifier.
func (e baseEvent) AgentID() string { return string(e.agentID) }

// Timestamp returns the Unix timestamp in milliseconds when the event occurred.
func (e baseEvent) Timestamp() int64 { return e.timestamp }

// TurnID returns the request-grouping identifier (empty if not set).
func (e baseEvent) TurnID() string { return e.turnID }

// SetTurnID updates the turn identifier. Called by the engine to stamp
// events with grouping information after construction.
func (e *baseEvent) SetTurnID(turnID string) {
	e.turnID = turnID
}

// SetSessionID updates the session identifier associated with the event so
// downstream subscribers can rely on SessionID as a stable join key.
func (e *baseEvent) SetSessionID(id string) {
	e.sessionID = id
}

// newBaseEvent constructs a baseEvent with the current timestamp.
func newBaseEvent(runID string, agentID agent.Ident) baseEvent {
	return baseEvent{
		runID:     runID,
		agentID:   agentID,
		timestamp: time.Now().UnixMilli(),
	}
}

// Type method implementations

func (e *RunStartedEvent) Type() EventType         { return RunStarted }
func (e *RunCompletedEvent) Type() EventType       { return RunCompleted }
func (e *RunPausedEvent) Type() EventType          { return RunPaused }
func (e *RunResumedEvent) Type() EventType         { return RunResumed }
func (e *ToolCallScheduledEvent) Type() EventType  { return ToolCallScheduled }
func (e *ToolResultReceivedEvent) Type() EventType { return ToolResultReceived }
func (e *StepNoteEvent) Type() EventType           { return StepNote }
