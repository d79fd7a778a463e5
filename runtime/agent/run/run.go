// Package run defines primitives for tracking task executions.
//
// A RunID names one durable execution of a task (the workflow engine's
// execution ID) and is globally unique. A SessionID optionally groups
// related executions into a larger interaction, and a TurnID groups the
// events produced while a single external request is being served. Both
// grouping identifiers are optional; the engine only requires RunID.
//
// Record is the durable, coarse-grained lifecycle view mirrored out of
// the transition log for observability and lookup; it never drives
// control flow. Context carries the per-invocation metadata (attempt,
// labels) threaded through hook events.
package run

import (
	"context"
	"errors"
	"time"

	"github.com/flowforge/taskcore/runtime/agent"
)

type (
	// Context carries execution metadata for the current invocation. It is
	// passed through the system during execution and contains the
	// identifiers, labels, and constraints active for this attempt.
	Context struct {
		// RunID uniquely identifies the durable execution. This corresponds
		// to the workflow engine's execution identifier and is used for
		// replay, cancellation, and observability.
		RunID string

		// SessionID associates related executions into an interaction
		// thread. Optional.
		SessionID string

		// TurnID groups the events produced while a single external request
		// is being served. Optional.
		TurnID string

		// Attempt counts how many times the execution has been attempted or
		// resumed.
		Attempt int

		// Labels carries caller-provided metadata (tenant, priority, etc.).
		Labels map[string]string

		// MaxDuration encodes the wall-clock budget remaining (string form
		// for telemetry).
		MaxDuration string
	}

	// Record captures persistent metadata associated with a task execution.
	// This is the durable record stored for observability and lifecycle
	// tracking. Each record represents a single execution and can be
	// associated with a session via SessionID for grouping related runs.
	Record struct {
		// AgentID identifies which agent the execution ran under.
		AgentID agent.Ident
		// RunID is the durable execution identifier.
		RunID string
		// SessionID associates related executions into a thread (optional).
		SessionID string
		// TurnID groups events for a single external request (optional).
		TurnID string
		// Status indicates the current lifecycle state.
		Status Status
		// StartedAt records when the execution began.
		StartedAt time.Time
		// UpdatedAt records when the metadata was last updated.
		UpdatedAt time.Time
		// Labels stores caller- or policy-provided labels.
		Labels map[string]string
		// Metadata stores implementation-specific metadata (e.g., error codes).
		Metadata map[string]any
	}

	// Store persists run metadata for observability and lookup.
	Store interface {
		Upsert(ctx context.Context, record Record) error
		Load(ctx context.Context, runID string) (Record, error)
	}

	// Status represents the coarse-grained lifecycle state of an execution.
	Status string

	// Phase represents a finer-grained lifecycle phase for an execution.
	// Phases track where an execution is in its step loop (accepted input,
	// executing tools, or in a terminal state). Phases are intended for
	// observability surfaces and do not replace Status, which is used for
	// durable run metadata.
	Phase string
)

var (
	// ErrNotFound indicates that no run record exists for the given identifier.
	// Callers use this to distinguish between missing runs and other failures
	// when querying run status or metadata.
	ErrNotFound = errors.New("run not found")
)

const (
	// StatusPending indicates the execution has been accepted but not started yet.
	StatusPending Status = "pending"
	// StatusRunning indicates the execution is actively stepping.
	StatusRunning Status = "running"
	// StatusCompleted indicates the execution finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the execution failed permanently.
	StatusFailed Status = "failed"
	// StatusCanceled indicates the execution was canceled externally.
	StatusCanceled Status = "canceled"
	// StatusPaused indicates execution is suspended awaiting external input.
	StatusPaused Status = "paused"

	// PhasePrompted indicates that input has been received and stepping is
	// about to begin.
	PhasePrompted Phase = "prompted"
	// PhaseExecutingTools indicates that a tool activity is currently
	// executing.
	PhaseExecutingTools Phase = "executing_tools"
	// PhaseCompleted indicates the execution has completed successfully.
	PhaseCompleted Phase = "completed"
	// PhaseFailed indicates the execution has failed.
	PhaseFailed Phase = "failed"
	// PhaseCanceled indicates the execution was canceled.
	PhaseCanceled Phase = "canceled"
)
