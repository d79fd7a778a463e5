package hooks_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/taskcore/runtime/agent/hooks"
	"github.com/flowforge/taskcore/runtime/agent/run"
)

type capturingLogger struct {
	infos  []string
	errors []string
	warns  []string
}

func (l *capturingLogger) Debug(_ context.Context, msg string, _ ...any) {}
func (l *capturingLogger) Info(_ context.Context, msg string, _ ...any)  { l.infos = append(l.infos, msg) }
func (l *capturingLogger) Warn(_ context.Context, msg string, _ ...any)  { l.warns = append(l.warns, msg) }
func (l *capturingLogger) Error(_ context.Context, msg string, _ ...any) {
	l.errors = append(l.errors, msg)
}

func TestLoggingSubscriberMirrorsEvents(t *testing.T) {
	logger := &capturingLogger{}
	bus := hooks.NewBus()
	_, err := bus.Register(hooks.NewLoggingSubscriber(logger))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, hooks.NewRunStartedEvent("r1", "a1", run.Context{RunID: "r1"}, nil)))
	require.NoError(t, bus.Publish(ctx, hooks.NewStepNoteEvent("r1", "a1", "", "working", nil)))
	require.NoError(t, bus.Publish(ctx, hooks.NewRunCompletedEvent("r1", "a1", "", "failed", run.PhaseFailed, errors.New("boom"))))

	assert.Len(t, logger.infos, 2)
	assert.Len(t, logger.errors, 1)
}

func TestLoggingSubscriberNilLoggerIsNoop(t *testing.T) {
	sub := hooks.NewLoggingSubscriber(nil)
	require.NoError(t, sub.HandleEvent(context.Background(), hooks.NewStepNoteEvent("r1", "a1", "", "x", nil)))
}
