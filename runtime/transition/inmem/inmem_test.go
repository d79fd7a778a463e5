package inmem_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/taskcore/runtime/transition"
	"github.com/flowforge/taskcore/runtime/transition/inmem"
)

func TestAppendAssignsDenseStrictlyIncreasingSeq(t *testing.T) {
	s := inmem.New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tr := &transition.Transition{ExecutionID: "e1", Type: transition.Step}
		require.NoError(t, s.Append(ctx, tr))
		assert.EqualValues(t, i+1, tr.Seq)
	}
}

func TestAppendRejectsAfterTerminal(t *testing.T) {
	s := inmem.New()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, &transition.Transition{ExecutionID: "e1", Type: transition.Finish}))
	err := s.Append(ctx, &transition.Transition{ExecutionID: "e1", Type: transition.Step})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already terminal")
}

func TestLatestReturnsNilForUnknownExecution(t *testing.T) {
	s := inmem.New()
	tr, err := s.Latest(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, tr)
}

func TestLatestReturnsMostRecent(t *testing.T) {
	s := inmem.New()
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, &transition.Transition{ExecutionID: "e1", Type: transition.Init}))
	require.NoError(t, s.Append(ctx, &transition.Transition{ExecutionID: "e1", Type: transition.Step}))
	latest, err := s.Latest(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, transition.Step, latest.Type)
	assert.EqualValues(t, 2, latest.Seq)
}

func TestListPaginatesForwardInOrder(t *testing.T) {
	s := inmem.New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, &transition.Transition{ExecutionID: "e1", Type: transition.Step}))
	}

	page1, err := s.List(ctx, "e1", "", 2)
	require.NoError(t, err)
	require.Len(t, page1.Transitions, 2)
	assert.EqualValues(t, 1, page1.Transitions[0].Seq)
	assert.EqualValues(t, 2, page1.Transitions[1].Seq)
	require.NotEmpty(t, page1.NextCursor)

	page2, err := s.List(ctx, "e1", page1.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page2.Transitions, 2)
	assert.EqualValues(t, 3, page2.Transitions[0].Seq)
	assert.EqualValues(t, 4, page2.Transitions[1].Seq)

	page3, err := s.List(ctx, "e1", page2.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page3.Transitions, 1)
	assert.Empty(t, page3.NextCursor)
}

func TestCursorPushPopAdvance(t *testing.T) {
	c := transition.Cursor{{Workflow: "main", StepIndex: 0}}
	pushed := c.Push(transition.CursorFrame{Workflow: "if:0:then", StepIndex: 0})
	require.Len(t, pushed, 2)
	assert.Equal(t, "if:0:then", pushed.Current().Workflow)

	popped := pushed.Pop()
	require.Len(t, popped, 1)
	assert.Equal(t, "main", popped.Current().Workflow)

	advanced := popped.Advance()
	assert.Equal(t, 1, advanced.Current().StepIndex)
	// Advance must not mutate the original cursor's backing array.
	assert.Equal(t, 0, popped.Current().StepIndex)
}

func TestCursorJSONRoundTrip(t *testing.T) {
	c := transition.Cursor{{Workflow: "main", StepIndex: 2}, {Workflow: "if:2:then", StepIndex: 0}}
	raw, err := c.MarshalJSON()
	require.NoError(t, err)

	var got transition.Cursor
	require.NoError(t, got.UnmarshalJSON(raw))
	assert.Equal(t, c, got)
}
