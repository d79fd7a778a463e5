package statemachine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/flowforge/taskcore/runtime/agent"
	"github.com/flowforge/taskcore/runtime/agent/hooks"
	"github.com/flowforge/taskcore/runtime/agent/run"
	"github.com/flowforge/taskcore/runtime/agent/toolerrors"
	"github.com/flowforge/taskcore/runtime/agent/tools"
	"github.com/flowforge/taskcore/runtime/transition"
)

// Event publication is advisory: the transition log is the record of
// truth, and a subscriber failure must not wedge an execution mid-step.
// Subscribers that need durability (runlog.Recorder) surface their own
// failures through the bus, which emit drops on the floor here.
func (m *Machine) emit(ctx context.Context, evt hooks.Event) {
	if m.Hooks == nil {
		return
	}
	_ = m.Hooks.Publish(ctx, evt)
}

func (m *Machine) agentIdent() agent.Ident {
	return agent.Ident(m.Agent.ID)
}

func (m *Machine) emitStarted(ctx context.Context, executionID string, input map[string]any) {
	if m.Hooks == nil {
		return
	}
	m.emit(ctx, hooks.NewRunStartedEvent(executionID, m.agentIdent(), run.Context{RunID: executionID}, input))
}

func (m *Machine) emitCompleted(ctx context.Context, executionID, status string, err error) {
	if m.Hooks == nil {
		return
	}
	phase := run.PhaseCompleted
	switch status {
	case "failed":
		phase = run.PhaseFailed
	case "canceled":
		phase = run.PhaseCanceled
	}
	m.emit(ctx, hooks.NewRunCompletedEvent(executionID, m.agentIdent(), "", status, phase, err))
}

func (m *Machine) emitPaused(ctx context.Context, executionID, reason string) {
	if m.Hooks == nil {
		return
	}
	m.emit(ctx, hooks.NewRunPausedEvent(executionID, m.agentIdent(), "", reason, "", nil, nil))
}

func (m *Machine) emitResumed(ctx context.Context, executionID string) {
	if m.Hooks == nil {
		return
	}
	m.emit(ctx, hooks.NewRunResumedEvent(executionID, m.agentIdent(), "", "", "", nil))
}

func (m *Machine) emitNote(ctx context.Context, executionID string, output any) {
	if m.Hooks == nil {
		return
	}
	note, _ := output.(string)
	m.emit(ctx, hooks.NewStepNoteEvent(executionID, m.agentIdent(), "", note, nil))
}

// toolCallID derives a stable identifier for a tool dispatch from its log
// position, so replaying the same step reports the same call id.
func toolCallID(executionID string, cur transition.Cursor) string {
	parts := make([]string, 0, len(cur))
	for _, fr := range cur {
		parts = append(parts, fmt.Sprintf("%s.%d", fr.Workflow, fr.StepIndex))
	}
	return executionID + "#" + strings.Join(parts, "/")
}

func (m *Machine) emitToolScheduled(ctx context.Context, executionID, callID string, tool string, args map[string]any) {
	if m.Hooks == nil {
		return
	}
	payload, _ := json.Marshal(args)
	m.emit(ctx, hooks.NewToolCallScheduledEvent(executionID, m.agentIdent(), "", tools.Ident(tool), callID, payload))
}

var timeNow = time.Now

func (m *Machine) emitToolResult(ctx context.Context, executionID, callID string, tool string, result any, started time.Time, err error) {
	if m.Hooks == nil {
		return
	}
	var te *toolerrors.ToolError
	if err != nil {
		te = toolerrors.FromError(err)
	}
	m.emit(ctx, hooks.NewToolResultReceivedEvent(
		executionID, m.agentIdent(), "", tools.Ident(tool), callID,
		result, nil, nil, time.Since(started), nil, te,
	))
}
