package inmem_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/flowforge/taskcore/runtime/transition"
	"github.com/flowforge/taskcore/runtime/transition/inmem"
)

// TestSequenceDensityProperty verifies that for any number of appended
// non-terminal transitions, sequence numbers are dense and strictly
// increasing starting at 1, and that a terminal transition blocks all
// further appends.
func TestSequenceDensityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("sequence ids are dense and strictly increasing", prop.ForAll(
		func(n uint8) bool {
			store := inmem.New()
			ctx := context.Background()
			count := int(n%20) + 1
			for i := 0; i < count; i++ {
				typ := transition.Step
				if i == 0 {
					typ = transition.Init
				}
				tr := &transition.Transition{ExecutionID: "e1", Type: typ}
				if err := store.Append(ctx, tr); err != nil {
					return false
				}
				if tr.Seq != int64(i+1) {
					return false
				}
			}
			page, err := store.List(ctx, "e1", "", count+1)
			if err != nil || len(page.Transitions) != count {
				return false
			}
			for i, tr := range page.Transitions {
				if tr.Seq != int64(i+1) {
					return false
				}
			}
			return true
		},
		gen.UInt8(),
	))

	properties.Property("terminal transition blocks further appends", prop.ForAll(
		func(pick uint8) bool {
			terminal := []transition.Type{transition.Finish, transition.Error, transition.Cancelled}[pick%3]
			store := inmem.New()
			ctx := context.Background()
			if err := store.Append(ctx, &transition.Transition{ExecutionID: "e1", Type: transition.Init}); err != nil {
				return false
			}
			if err := store.Append(ctx, &transition.Transition{ExecutionID: "e1", Type: terminal}); err != nil {
				return false
			}
			err := store.Append(ctx, &transition.Transition{ExecutionID: "e1", Type: transition.Step})
			return err != nil
		},
		gen.UInt8(),
	))

	properties.TestingRun(t)
}
