package hooks

import (
	"context"

	"github.com/flowforge/taskcore/runtime/agent/telemetry"
)

// LoggingSubscriber mirrors every published event to a telemetry.Logger as
// a structured log line. Register it on the bus driving a state machine to
// get an execution trace in the process logs without any store.
type LoggingSubscriber struct {
	log telemetry.Logger
}

// NewLoggingSubscriber returns a subscriber logging to log. A nil logger
// falls back to the no-op implementation.
func NewLoggingSubscriber(log telemetry.Logger) *LoggingSubscriber {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &LoggingSubscriber{log: log}
}

// HandleEvent implements Subscriber. Logging never fails the publisher.
func (s *LoggingSubscriber) HandleEvent(ctx context.Context, evt Event) error {
	keyvals := []any{"event", string(evt.Type()), "run_id", evt.RunID()}
	if sid := evt.SessionID(); sid != "" {
		keyvals = append(keyvals, "session_id", sid)
	}
	switch e := evt.(type) {
	case *RunCompletedEvent:
		keyvals = append(keyvals, "status", e.Status)
		if e.Error != nil {
			keyvals = append(keyvals, "error", e.Error.Error())
			s.log.Error(ctx, "run completed", keyvals...)
			return nil
		}
	case *ToolCallScheduledEvent:
		keyvals = append(keyvals, "tool", string(e.ToolName), "tool_call_id", e.ToolCallID)
	case *ToolResultReceivedEvent:
		keyvals = append(keyvals, "tool", string(e.ToolName), "tool_call_id", e.ToolCallID, "duration", e.Duration)
		if e.Error != nil {
			keyvals = append(keyvals, "error", e.Error.Error())
			s.log.Warn(ctx, "tool result", keyvals...)
			return nil
		}
	case *StepNoteEvent:
		keyvals = append(keyvals, "note", e.Note)
	}
	s.log.Info(ctx, "run event", keyvals...)
	return nil
}
