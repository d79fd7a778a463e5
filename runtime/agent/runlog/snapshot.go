package runlog

import (
	"context"

	"github.com/flowforge/taskcore/runtime/agent/hooks"
	"github.com/flowforge/taskcore/runtime/agent/run"
)

// BuildSnapshot replays a run's event log into a derived run.Snapshot.
// Snapshots are never stored; they are recomputed from the canonical
// append-only log whenever a caller needs the current derived view
// (status, phase, tool-call progress, await state).
func BuildSnapshot(events []*Event) (*run.Snapshot, error) {
	snap := &run.Snapshot{}
	calls := make(map[string]*run.ToolCallSnapshot)

	for _, e := range events {
		evt, err := hooks.DecodeFromHookInput(&hooks.ActivityInput{
			Type:      e.Type,
			RunID:     e.RunID,
			AgentID:   e.AgentID,
			SessionID: e.SessionID,
			TurnID:    e.TurnID,
			Payload:   e.Payload,
		})
		if err != nil {
			return nil, err
		}

		if snap.RunID == "" {
			snap.RunID = e.RunID
			snap.AgentID = e.AgentID
			snap.SessionID = e.SessionID
			snap.TurnID = e.TurnID
			snap.StartedAt = e.Timestamp
		}
		snap.UpdatedAt = e.Timestamp

		switch ev := evt.(type) {
		case *hooks.RunStartedEvent:
			snap.Status = run.StatusRunning
			snap.Phase = run.PhasePrompted

		case *hooks.ToolCallScheduledEvent:
			tc := &run.ToolCallSnapshot{
				ToolCallID:  ev.ToolCallID,
				ToolName:    ev.ToolName,
				ScheduledAt: e.Timestamp,
			}
			calls[ev.ToolCallID] = tc
			snap.ToolCalls = append(snap.ToolCalls, tc)
			snap.Phase = run.PhaseExecutingTools

		case *hooks.ToolResultReceivedEvent:
			if tc, ok := calls[ev.ToolCallID]; ok {
				tc.CompletedAt = e.Timestamp
				tc.Duration = ev.Duration
				if ev.Error != nil {
					tc.ErrorSummary = ev.Error.Error()
				}
			}

		case *hooks.StepNoteEvent:
			snap.LastNote = ev.Note

		case *hooks.RunPausedEvent:
			snap.Status = run.StatusPaused
			snap.Await = &run.AwaitSnapshot{Info: ev.Reason}

		case *hooks.RunResumedEvent:
			snap.Status = run.StatusRunning
			snap.Await = nil

		case *hooks.RunCompletedEvent:
			snap.Await = nil
			snap.Phase = ev.Phase
			switch ev.Status {
			case "success":
				snap.Status = run.StatusCompleted
			case "failed":
				snap.Status = run.StatusFailed
			case "canceled":
				snap.Status = run.StatusCanceled
			}
		}
	}
	return snap, nil
}

// Snapshot pages through the full event log for runID and builds its
// derived Snapshot view.
func Snapshot(ctx context.Context, store Store, runID string) (*run.Snapshot, error) {
	var all []*Event
	cursor := ""
	for {
		page, err := store.List(ctx, runID, cursor, 200)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Events...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	return BuildSnapshot(all)
}
