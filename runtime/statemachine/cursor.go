package statemachine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flowforge/taskcore/runtime/exprlang"
	"github.com/flowforge/taskcore/runtime/taskdef"
	"github.com/flowforge/taskcore/runtime/transition"
)

// Nested control-flow blocks (if_else branches, switch cases, foreach/map
// iterations, parallel branches) are not named workflows in the task
// definition, so they have no entry in task.Workflows. We address them with
// a synthetic CursorFrame.Workflow value encoding the parent step index and
// a branch selector, resolved deterministically by re-walking the static
// task definition plus the minimal re-evaluation needed to pick a branch
// (the if/switch condition, or the foreach/map source sequence). Since
// expression evaluation is pure over ctx and ctx is itself reconstructed
// from the immutable task inputs plus replayed `set` mutations, this
// re-evaluation is deterministic across activations.
//
// Encoding: "<kind>:<parentStepIndex>:<selector>". Real workflow names
// (task.Workflows keys, including "main") never contain ':' — enforced at
// validation time — so any frame without ':' addresses a named workflow.
const (
	blockIfThen    = "if"
	blockSwitch    = "switch"
	blockForeach   = "foreach"
	blockParallel  = "parallel"
	blockMap       = "map"
	syntheticSep   = ":"
	branchThen     = "then"
	branchElse     = "else"
)

func isSyntheticFrame(name string) bool {
	return strings.Contains(name, syntheticSep)
}

// resolved holds the concrete workflow body and evaluation overlay for the
// innermost frame of a cursor.
type resolved struct {
	Workflow taskdef.Workflow
	Ctx      exprlang.Context
}

// resolveCursor walks cur from the root frame down, rebuilding the literal
// nested Workflow body and context overlay (loop/pipe bindings) for the
// innermost frame.
func resolveCursor(task *taskdef.Task, cur transition.Cursor, base exprlang.Context) (resolved, error) {
	if len(cur) == 0 {
		return resolved{}, fmt.Errorf("%w: empty cursor", ErrCursorOutOfRange)
	}

	root := cur[0]
	wf, ok := task.Workflows[root.Workflow]
	if !ok {
		return resolved{}, fmt.Errorf("%w: %q", ErrUnknownWorkflow, root.Workflow)
	}
	ctx := cloneCtx(base)

	for i := 1; i < len(cur); i++ {
		frame := cur[i]
		parentIdx := cur[i-1].StepIndex
		if parentIdx < 0 || parentIdx >= len(wf) {
			return resolved{}, fmt.Errorf("%w: step %d", ErrCursorOutOfRange, parentIdx)
		}
		parentStep := wf[parentIdx]

		next, nextCtx, err := descend(parentStep, frame.Workflow, ctx)
		if err != nil {
			return resolved{}, err
		}
		wf, ctx = next, nextCtx
	}

	return resolved{Workflow: wf, Ctx: ctx}, nil
}

func descend(step taskdef.Step, encoded string, ctx exprlang.Context) (taskdef.Workflow, exprlang.Context, error) {
	kind, parentIdxStr, selector, err := splitFrame(encoded)
	if err != nil {
		return nil, nil, err
	}
	_ = parentIdxStr // already consumed by caller via cur[i-1].StepIndex

	switch kind {
	case blockIfThen:
		if step.IfElse == nil {
			return nil, nil, fmt.Errorf("%w: step is not if_else", ErrCursorOutOfRange)
		}
		if selector == branchThen {
			return step.IfElse.Then, ctx, nil
		}
		return step.IfElse.Else, ctx, nil

	case blockSwitch:
		idx, convErr := strconv.Atoi(selector)
		if convErr != nil || step.Switch == nil || idx < 0 || idx >= len(step.Switch) {
			return nil, nil, fmt.Errorf("%w: switch case %q", ErrCursorOutOfRange, selector)
		}
		return step.Switch[idx].Then, ctx, nil

	case blockForeach:
		if step.Foreach == nil {
			return nil, nil, fmt.Errorf("%w: step is not foreach", ErrCursorOutOfRange)
		}
		elements, evalErr := evalSequence(step.Foreach.In, ctx)
		if evalErr != nil {
			return nil, nil, evalErr
		}
		idx, convErr := strconv.Atoi(selector)
		if convErr != nil || idx < 0 || idx >= len(elements) {
			return nil, nil, fmt.Errorf("%w: foreach element %q", ErrCursorOutOfRange, selector)
		}
		next := cloneCtx(ctx)
		next["element"] = elements[idx]
		next["_"] = elements[idx]
		return step.Foreach.Do, next, nil

	case blockParallel:
		idx, convErr := strconv.Atoi(selector)
		if convErr != nil || idx < 0 || idx >= len(step.Parallel) {
			return nil, nil, fmt.Errorf("%w: parallel branch %q", ErrCursorOutOfRange, selector)
		}
		return step.Parallel[idx], ctx, nil

	case blockMap:
		if step.Map == nil {
			return nil, nil, fmt.Errorf("%w: step is not map", ErrCursorOutOfRange)
		}
		elements, evalErr := evalSequence(step.Map.Over, ctx)
		if evalErr != nil {
			return nil, nil, evalErr
		}
		idx, convErr := strconv.Atoi(selector)
		if convErr != nil || idx < 0 || idx >= len(elements) {
			return nil, nil, fmt.Errorf("%w: map element %q", ErrCursorOutOfRange, selector)
		}
		next := cloneCtx(ctx)
		next["element"] = elements[idx]
		next["_"] = elements[idx]
		return step.Map.Map, next, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown block kind %q", ErrCursorOutOfRange, kind)
	}
}

func splitFrame(encoded string) (kind, parentIdx, selector string, err error) {
	parts := strings.SplitN(encoded, syntheticSep, 3)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("%w: malformed frame %q", ErrCursorOutOfRange, encoded)
	}
	return parts[0], parts[1], parts[2], nil
}

func frame(kind string, parentIdx int, selector string) string {
	return kind + syntheticSep + strconv.Itoa(parentIdx) + syntheticSep + selector
}

func evalSequence(expr string, ctx exprlang.Context) ([]any, error) {
	v, err := exprlang.Evaluate(expr, ctx)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case []any:
		return t, nil
	case nil:
		return nil, nil
	default:
		return []any{t}, nil
	}
}

func cloneCtx(ctx exprlang.Context) exprlang.Context {
	out := make(exprlang.Context, len(ctx)+2)
	for k, v := range ctx {
		out[k] = v
	}
	return out
}
