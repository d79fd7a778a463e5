package runlog

import (
	"context"
	"time"

	"github.com/flowforge/taskcore/runtime/agent/hooks"
)

// Recorder subscribes to a hooks.Bus and appends every published event to a
// Store, making the run log a durable projection of the live event stream.
// Register it on the bus driving a state machine to capture the execution
// timeline without the machine knowing about persistence.
type Recorder struct {
	store Store
}

// NewRecorder returns a Recorder persisting to store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// HandleEvent implements hooks.Subscriber. Encoding failures and append
// failures are surfaced to the publisher so callers can fail fast when
// canonical logging is unavailable.
func (r *Recorder) HandleEvent(ctx context.Context, evt hooks.Event) error {
	input, err := hooks.EncodeToHookInput(evt, evt.TurnID())
	if err != nil {
		return err
	}
	return r.store.Append(ctx, &Event{
		RunID:     input.RunID,
		AgentID:   input.AgentID,
		SessionID: input.SessionID,
		TurnID:    input.TurnID,
		Type:      input.Type,
		Payload:   input.Payload,
		Timestamp: time.UnixMilli(evt.Timestamp()),
	})
}
