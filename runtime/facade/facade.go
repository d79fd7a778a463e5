// Package facade implements the Execution Facade (spec §4.6): the narrow
// activity interface the orchestrating workflow runtime calls. It wraps a
// statemachine.Machine with the Execution view (spec §3 "Execution") derived
// from the transition log, and exposes the six operations the runtime
// drives: start, step, resume, cancel, status, history.
//
// Grounded on the shape of runtime/agent/client.go's Client interface and
// runtime/agent/runtime/client.go's AgentClient (Run/Start split): this
// engine collapses that split into a single set of idempotent, retry-safe
// operations keyed by (execution_id, log_position), matching spec §4.6's
// "All are safe to retry" contract.
package facade

import (
	"context"
	"fmt"
	"time"

	"github.com/flowforge/taskcore/runtime/agent"
	"github.com/flowforge/taskcore/runtime/agent/run"
	"github.com/flowforge/taskcore/runtime/statemachine"
	"github.com/flowforge/taskcore/runtime/taskdef"
	"github.com/flowforge/taskcore/runtime/transition"
)

// Status is one of the seven derived Execution states (spec §3).
type Status string

const (
	StatusQueued        Status = "queued"
	StatusStarting      Status = "starting"
	StatusRunning       Status = "running"
	StatusAwaitingInput Status = "awaiting_input"
	StatusSucceeded     Status = "succeeded"
	StatusFailed        Status = "failed"
	StatusCancelled     Status = "cancelled"
)

// Execution is the read-model view over an execution's transition log
// (spec §3 "Execution"). Status is always a pure function of the most
// recent transition; Execution carries no state of its own.
type Execution struct {
	ID        string
	TaskID    string
	Status    Status
	Input     map[string]any
	Output    any
	CreatedAt any
	UpdatedAt any
}

// Facade exposes the minimal operations an orchestrating workflow runtime
// needs (spec §4.6). It is a thin wrapper over statemachine.Machine: Start,
// Step, Resume, and Cancel delegate directly (the Machine already satisfies
// their retry/idempotency contracts), and Status/History are new read-only
// projections over the same transition.Store.
type Facade struct {
	machine *statemachine.Machine
	store   transition.Store
	taskID  string
	input   map[string]any

	// Runs optionally mirrors each execution's coarse lifecycle state
	// into a run.Store for observability and lookup. Nil disables the
	// mirror; the transition log remains the authoritative record.
	Runs run.Store
}

// New binds a Facade to one Machine. Execution.Input in the Status view is
// read from the execution's init transition.
func New(machine *statemachine.Machine) *Facade {
	return &Facade{machine: machine, store: machine.Store, taskID: machine.Task.ID}
}

// Start begins a new execution (spec §4.6 "start"). Returns the init
// transition's id.
func (f *Facade) Start(ctx context.Context, executionID string, input map[string]any) (string, error) {
	t, err := f.machine.Start(ctx, executionID, input)
	if err != nil {
		return "", err
	}
	f.recordStatus(ctx, executionID, run.StatusRunning)
	return t.ID, nil
}

// Step advances an execution by exactly one durable transition (spec §4.6
// "step"). Idempotent per log position: re-invoking after a terminal or
// awaiting_input transition returns that same transition's id without
// recomputing anything (spec §8 invariant 3).
func (f *Facade) Step(ctx context.Context, executionID string) (string, error) {
	t, err := f.machine.Step(ctx, executionID)
	if err != nil {
		return "", err
	}
	f.recordStatus(ctx, executionID, runStatusFor(t))
	return t.ID, nil
}

// Resume delivers external input to an execution suspended on
// wait_for_input (spec §4.6 "resume"). Valid only from awaiting_input;
// returns statemachine.ErrResumeNotAwaiting otherwise.
func (f *Facade) Resume(ctx context.Context, executionID string, input map[string]any) (string, error) {
	t, err := f.machine.Resume(ctx, executionID, input)
	if err != nil {
		return "", err
	}
	f.recordStatus(ctx, executionID, run.StatusRunning)
	return t.ID, nil
}

// Cancel records a cancellation request at the next safe point (spec §4.6
// "cancel", §5). Idempotent against an already-terminal execution.
func (f *Facade) Cancel(ctx context.Context, executionID string, reason string) (string, error) {
	t, err := f.machine.Cancel(ctx, executionID, reason)
	if err != nil {
		return "", err
	}
	f.recordStatus(ctx, executionID, run.StatusCanceled)
	return t.ID, nil
}

// Status returns the current Execution view (spec §4.6 "status"), deriving
// Status purely from the most recent transition (spec §3: "status is a
// view derived from the most recent transition type").
func (f *Facade) Status(ctx context.Context, executionID string) (*Execution, error) {
	latest, err := f.store.Latest(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, fmt.Errorf("facade: execution %q not found", executionID)
	}

	first, err := f.firstTransition(ctx, executionID)
	if err != nil {
		return nil, err
	}

	ex := &Execution{
		ID:        executionID,
		TaskID:    f.taskID,
		Status:    deriveStatus(latest),
		CreatedAt: timeOrNil(first),
		UpdatedAt: timeOrNil(latest),
	}
	if first != nil {
		if m, ok := first.Output.(map[string]any); ok {
			ex.Input = m
		}
	}
	if latest.Type.Terminal() {
		ex.Output = latest.Output
	}
	return ex, nil
}

// History returns a forward page of the execution's transition log (spec
// §4.6 "history"). cursor is the opaque page token from a prior call;
// empty starts from the beginning.
func (f *Facade) History(ctx context.Context, executionID string, cursor string, limit int) (transition.Page, error) {
	if limit <= 0 {
		limit = 100
	}
	return f.store.List(ctx, executionID, cursor, limit)
}

func (f *Facade) firstTransition(ctx context.Context, executionID string) (*transition.Transition, error) {
	page, err := f.store.List(ctx, executionID, "", 1)
	if err != nil {
		return nil, err
	}
	if len(page.Transitions) == 0 {
		return nil, nil
	}
	return page.Transitions[0], nil
}

func timeOrNil(t *transition.Transition) any {
	if t == nil {
		return nil
	}
	return t.CreatedAt
}

// recordStatus mirrors an execution's lifecycle state into the optional
// run.Store. The mirror is advisory: failures are dropped because the
// transition log, not the run record, drives control flow.
func (f *Facade) recordStatus(ctx context.Context, executionID string, status run.Status) {
	if f.Runs == nil {
		return
	}
	now := time.Now().UTC()
	rec, err := f.Runs.Load(ctx, executionID)
	if err != nil || rec.RunID == "" {
		rec = run.Record{
			RunID:     executionID,
			AgentID:   agent.Ident(f.machine.Agent.ID),
			StartedAt: now,
		}
	}
	rec.Status = status
	rec.UpdatedAt = now
	_ = f.Runs.Upsert(ctx, rec)
}

// runStatusFor maps a transition to the coarse run.Status mirrored into
// the run.Store.
func runStatusFor(t *transition.Transition) run.Status {
	switch t.Type {
	case transition.Finish:
		return run.StatusCompleted
	case transition.Error:
		return run.StatusFailed
	case transition.Cancelled:
		return run.StatusCanceled
	case transition.Wait:
		if reason, _ := t.Metadata["reason"].(string); reason == "await_input" {
			return run.StatusPaused
		}
		return run.StatusRunning
	default:
		return run.StatusRunning
	}
}

// deriveStatus maps the most recent transition to an Execution status
// (spec §3, §4.5 "States"). running <-> awaiting_input is the only
// non-monotonic transition; all else advances forward.
func deriveStatus(latest *transition.Transition) Status {
	switch latest.Type {
	case transition.Init:
		return StatusStarting
	case transition.Finish:
		return StatusSucceeded
	case transition.Error:
		return StatusFailed
	case transition.Cancelled:
		return StatusCancelled
	case transition.Wait:
		if reason, _ := latest.Metadata["reason"].(string); reason == "await_input" {
			return StatusAwaitingInput
		}
		return StatusRunning
	case transition.Resume, transition.Step:
		return StatusRunning
	default:
		return StatusQueued
	}
}

// Ensure Facade's Task reference stays reachable for callers that need the
// static definition alongside the read-model view.
func (f *Facade) Task() *taskdef.Task { return f.machine.Task }
