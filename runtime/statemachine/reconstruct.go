package statemachine

import (
	"context"

	"github.com/flowforge/taskcore/runtime/exprlang"
	"github.com/flowforge/taskcore/runtime/taskdef"
	"github.com/flowforge/taskcore/runtime/transition"
)

// reconstruct rebuilds the three pieces of ExecutionContext that are not
// present in the Task/Agent static definitions — the root input map, the
// scratch state, and the "pipe" value carried between steps as `_`/
// `results` — by replaying the full transition log from the beginning
// (spec §3 "Contexts are reconstructed from the transition log ... on
// every activation" — the interpreter is stateless between activations).
//
// Only `set` and `yield` steps mutate scratch (mirroring exactly what the
// live translate/interp code path does at the point each transition was
// first recorded), so reconstruction re-derives which step produced each
// transition and merges its recorded Output into scratch only for those
// two kinds. This keeps replay a pure function of already-persisted data:
// no tool or prompt activity is ever re-invoked.
func (m *Machine) reconstruct(ctx context.Context, executionID string) (map[string]any, map[string]any, any, error) {
	rootInput := map[string]any{}
	scratch := map[string]any{}
	var pipe any

	cursor := ""
	for {
		page, err := m.Store.List(ctx, executionID, cursor, 200)
		if err != nil {
			return nil, nil, nil, err
		}
		for _, t := range page.Transitions {
			switch t.Type {
			case transition.Init:
				if in, ok := t.Output.(map[string]any); ok {
					rootInput = in
				}
				continue
			case transition.Wait, transition.Cancelled, transition.Error, transition.Finish:
				continue
			case transition.Resume:
				// External resume input is merged into the root input map
				// so steps following wait_for_input can address it as
				// input.<key>, exactly like the input the execution
				// started with (spec §8 seed scenario 5).
				if in, ok := t.Output.(map[string]any); ok {
					for k, v := range in {
						rootInput[k] = v
					}
				}
			}

			pipe = t.Output
			if kind, ok := m.stepKindAt(rootInput, scratch, t.Current); ok {
				switch kind {
				case taskdef.StepSet, taskdef.StepYield:
					if mv, ok := t.Output.(map[string]any); ok {
						for k, v := range mv {
							scratch[k] = v
						}
					}
				}
			}
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	return rootInput, scratch, pipe, nil
}

// stepKindAt resolves the step a past transition's Current cursor pointed
// at, so reconstruct can tell whether it needs to replay a scratch
// mutation. Returns ok=false for cursors that address end-of-block
// bookkeeping rather than a literal step (e.g. a pop-and-advance after a
// nested workflow finishes), which carry nothing to replay into scratch.
func (m *Machine) stepKindAt(rootInput, scratch map[string]any, cur transition.Cursor) (taskdef.StepKind, bool) {
	if len(cur) == 0 {
		return "", false
	}
	baseCtx := exprlang.Context{"input": rootInput, "state": scratch}
	res, err := resolveCursor(m.Task, cur, baseCtx)
	if err != nil {
		return "", false
	}
	idx := cur.Current().StepIndex
	if idx < 0 || idx >= len(res.Workflow) {
		return "", false
	}
	return res.Workflow[idx].Kind, true
}
