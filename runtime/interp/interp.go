// Package interp implements the Step Interpreter (spec §4.4): a pure
// dispatch table over taskdef.Step kinds. Interpret never performs I/O —
// suspending operations (tool calls, prompt dispatch, nested workflows,
// sleeps, wait_for_input) are reported as an Outcome.Next intent for the
// Transition State Machine to execute and re-enter on, per spec §4.5's
// "re-entering itself on sub-workflows". foreach, parallel and map are
// reported as a NextEnterBlock directive; the state machine runs their
// branches in-process within one activation, not as child workflows.
package interp

import (
	"fmt"

	"github.com/flowforge/taskcore/runtime/exprlang"
	"github.com/flowforge/taskcore/runtime/taskdef"
)

type (
	// Outcome is the result of interpreting one step: an observable
	// output value plus the Next directive telling the caller what to do
	// to make progress.
	Outcome struct {
		Output any
		Next   Next
	}

	// NextKind tags which Next field is meaningful.
	NextKind string

	// Next is a tagged union of everything a step can ask the state
	// machine to do next. Exactly the field named by Kind is populated.
	Next struct {
		Kind NextKind

		// NextAdvance has no payload: continue to the following step in
		// the current workflow (or finish/pop if there is none).

		// NextEnterBlock: run a sequence of nested workflows. Sequential
		// means run them one after another, threading LoopVar through
		// each iteration's context (foreach, and map with parallelism 1);
		// non-sequential (Concurrent=true) means fan them out
		// independently (parallel, and map with parallelism > 1).
		// Reduce/Initial/Parallelism configure a map step's fold;
		// zero values mean "not a map step".
		Block BlockDirective

		// NextInvokeTool: run this tool as an activity.
		Tool *ToolInvocation

		// NextInvokePrompt: dispatch this prompt as an activity.
		Prompt *PromptInvocation

		// NextCallWorkflow: push a named sibling workflow (yield).
		Call *WorkflowCall

		// NextReturn: terminate the current workflow frame with Value.
		Value any

		// NextSuspendSleep: wall-clock suspension.
		SleepFor string // duration expression, evaluated by the caller

		// NextSuspendInput: suspend pending external resume.
		AwaitInfo string // rendered template

		// NextError: terminal error with this message.
		ErrorMessage string
	}

	BlockDirective struct {
		Blocks      []taskdef.Workflow
		Concurrent  bool
		LoopVar     string // foreach: name bound to each element in the nested ctx
		Elements    []any  // foreach: the sequence being iterated; len(Elements) == len(Blocks) when LoopVar != ""
		Reduce      string // map: optional fold expression
		Initial     any
		HasInitial  bool
		Parallelism int
	}

	ToolInvocation struct {
		Tool      string
		Arguments map[string]any
	}

	PromptInvocation struct {
		Payload *taskdef.PromptPayload
	}

	WorkflowCall struct {
		Workflow  string
		Arguments map[string]any
	}
)

const (
	NextAdvance      NextKind = ""
	NextEnterBlock   NextKind = "enter_block"
	NextInvokeTool   NextKind = "invoke_tool"
	NextInvokePrompt NextKind = "invoke_prompt"
	NextCallWorkflow NextKind = "call_workflow"
	NextReturn       NextKind = "return"
	NextSuspendSleep NextKind = "suspend_sleep"
	NextSuspendInput NextKind = "suspend_input"
	NextError        NextKind = "error"
)

// ErrKeyMissing is returned by a "get" step referencing an absent scratch
// key (spec §4.4).
var ErrKeyMissing = fmt.Errorf("interp: key not found in scratch state")

// Interpret dispatches step against ctx, the read-only evaluation context
// (spec-level ExecutionContext flattened into an exprlang.Context: inputs,
// state, loop variables, etc). state is the mutable scratch map; get/set
// read and write it directly, matching spec §4.4's description of set/get
// as scratch-state operations rather than pure expression evaluation.
func Interpret(step taskdef.Step, ctx exprlang.Context, state map[string]any) (Outcome, error) {
	switch step.Kind {
	case taskdef.StepEvaluate:
		return interpretEvaluate(step, ctx)
	case taskdef.StepSet:
		return interpretSet(step, ctx, state)
	case taskdef.StepGet:
		return interpretGet(step, state)
	case taskdef.StepLog:
		return interpretLog(step, ctx)
	case taskdef.StepReturn:
		return interpretReturn(step, ctx)
	case taskdef.StepError:
		return Outcome{Next: Next{Kind: NextError, ErrorMessage: step.Error}}, nil
	case taskdef.StepSleep:
		return Outcome{Next: Next{Kind: NextSuspendSleep, SleepFor: step.Sleep}}, nil
	case taskdef.StepYield:
		return interpretYield(step, ctx)
	case taskdef.StepToolCall:
		return interpretToolCall(step, ctx)
	case taskdef.StepPrompt:
		return Outcome{Next: Next{Kind: NextInvokePrompt, Prompt: &PromptInvocation{Payload: step.Prompt}}}, nil
	case taskdef.StepWaitForInput:
		return interpretWaitForInput(step, ctx)
	case taskdef.StepIfElse:
		return interpretIfElse(step, ctx)
	case taskdef.StepSwitch:
		return interpretSwitch(step, ctx)
	case taskdef.StepForeach:
		return interpretForeach(step, ctx)
	case taskdef.StepParallel:
		return Outcome{Next: Next{Kind: NextEnterBlock, Block: BlockDirective{Blocks: step.Parallel, Concurrent: true}}}, nil
	case taskdef.StepMap:
		return interpretMap(step, ctx)
	default:
		return Outcome{}, fmt.Errorf("interp: unknown step kind %q", step.Kind)
	}
}

func evalMapInOrder(m map[string]string, ctx exprlang.Context) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for name, expr := range m {
		v, err := exprlang.Evaluate(expr, ctx)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func interpretEvaluate(step taskdef.Step, ctx exprlang.Context) (Outcome, error) {
	out, err := evalMapInOrder(step.Evaluate, ctx)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Output: out}, nil
}

func interpretSet(step taskdef.Step, ctx exprlang.Context, state map[string]any) (Outcome, error) {
	out, err := evalMapInOrder(step.Set, ctx)
	if err != nil {
		return Outcome{}, err
	}
	for k, v := range out {
		state[k] = v
	}
	return Outcome{Output: out}, nil
}

func interpretGet(step taskdef.Step, state map[string]any) (Outcome, error) {
	v, ok := state[step.Get]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrKeyMissing, step.Get)
	}
	return Outcome{Output: v}, nil
}

func interpretLog(step taskdef.Step, ctx exprlang.Context) (Outcome, error) {
	rendered, err := exprlang.Render(step.Log, ctx)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Output: rendered}, nil
}

func interpretReturn(step taskdef.Step, ctx exprlang.Context) (Outcome, error) {
	out, err := evalMapInOrder(step.Return, ctx)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Output: out, Next: Next{Kind: NextReturn, Value: out}}, nil
}

func interpretYield(step taskdef.Step, ctx exprlang.Context) (Outcome, error) {
	args, err := evalMapInOrder(step.Yield.Arguments, ctx)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Next: Next{Kind: NextCallWorkflow, Call: &WorkflowCall{Workflow: step.Yield.Workflow, Arguments: args}}}, nil
}

func interpretToolCall(step taskdef.Step, ctx exprlang.Context) (Outcome, error) {
	args, err := evalMapInOrder(step.ToolCall.Arguments, ctx)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Next: Next{Kind: NextInvokeTool, Tool: &ToolInvocation{Tool: step.ToolCall.Tool, Arguments: args}}}, nil
}

func interpretWaitForInput(step taskdef.Step, ctx exprlang.Context) (Outcome, error) {
	rendered, err := exprlang.Render(step.WaitForInput.Info, ctx)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Next: Next{Kind: NextSuspendInput, AwaitInfo: rendered}}, nil
}

func interpretIfElse(step taskdef.Step, ctx exprlang.Context) (Outcome, error) {
	cond, err := exprlang.Evaluate(step.IfElse.If, ctx)
	if err != nil {
		return Outcome{}, err
	}
	branch := step.IfElse.Else
	if truthy(cond) {
		branch = step.IfElse.Then
	}
	return Outcome{Next: Next{Kind: NextEnterBlock, Block: BlockDirective{Blocks: []taskdef.Workflow{branch}}}}, nil
}

func interpretSwitch(step taskdef.Step, ctx exprlang.Context) (Outcome, error) {
	for _, c := range step.Switch {
		v, err := exprlang.Evaluate(c.Case, ctx)
		if err != nil {
			return Outcome{}, err
		}
		if truthy(v) {
			return Outcome{Next: Next{Kind: NextEnterBlock, Block: BlockDirective{Blocks: []taskdef.Workflow{c.Then}}}}, nil
		}
	}
	return Outcome{Output: nil}, nil // no-match → no-op output null, spec §4.4
}

func interpretForeach(step taskdef.Step, ctx exprlang.Context) (Outcome, error) {
	seq, err := exprlang.Evaluate(step.Foreach.In, ctx)
	if err != nil {
		return Outcome{}, err
	}
	elements := toSlice(seq)
	if len(elements) == 0 {
		return Outcome{Output: []any{}}, nil
	}
	blocks := make([]taskdef.Workflow, len(elements))
	for i := range elements {
		blocks[i] = step.Foreach.Do
	}
	return Outcome{Next: Next{Kind: NextEnterBlock, Block: BlockDirective{
		Blocks:   blocks,
		LoopVar:  "element",
		Elements: elements,
	}}}, nil
}

func interpretMap(step taskdef.Step, ctx exprlang.Context) (Outcome, error) {
	seq, err := exprlang.Evaluate(step.Map.Over, ctx)
	if err != nil {
		return Outcome{}, err
	}
	elements := toSlice(seq)
	parallelism := step.Map.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	var initial any
	hasInitial := false
	if step.Map.Initial != "" {
		initial, err = exprlang.Evaluate(step.Map.Initial, ctx)
		if err != nil {
			return Outcome{}, err
		}
		hasInitial = true
	}
	if len(elements) == 0 {
		if step.Map.Reduce != "" && hasInitial {
			return Outcome{Output: initial}, nil
		}
		return Outcome{Output: []any{}}, nil
	}
	blocks := make([]taskdef.Workflow, len(elements))
	for i := range elements {
		blocks[i] = step.Map.Map
	}
	return Outcome{Next: Next{Kind: NextEnterBlock, Block: BlockDirective{
		Blocks:      blocks,
		Concurrent:  parallelism > 1,
		LoopVar:     "element",
		Elements:    elements,
		Reduce:      step.Map.Reduce,
		Initial:     initial,
		HasInitial:  hasInitial,
		Parallelism: parallelism,
	}}}, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func toSlice(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case nil:
		return nil
	default:
		return []any{t}
	}
}
