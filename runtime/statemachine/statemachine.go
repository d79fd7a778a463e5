// Package statemachine implements the durable Transition State Machine
// (spec §4.5): the driver that reconstructs an ExecutionContext from the
// transition log on every activation, pulls the current step via the
// interpreter, translates its Outcome into a persisted Transition, and
// re-enters itself on nested workflows by pushing/popping the cursor.
//
// Fan-out constructs (foreach, parallel, map) are resolved eagerly and
// synchronously within a single Step call rather than spanning multiple
// durable activations: per spec §9's Design Note, true durability for
// these belongs to child workflows, which is a larger undertaking than a
// single activity boundary gives us room for here. A single activation
// still durably records exactly one Transition for the whole construct
// (its aggregated output), and tool/prompt dispatch inside a branch still
// goes through the same injected activity callbacks as the top level —
// only mid-branch suspension (sleep, wait_for_input) is unsupported, and
// that is surfaced as an explicit error rather than silently dropped.
package statemachine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowforge/taskcore/runtime/agent/hooks"
	"github.com/flowforge/taskcore/runtime/agent/policy"
	"github.com/flowforge/taskcore/runtime/agent/tools"
	"github.com/flowforge/taskcore/runtime/exprlang"
	"github.com/flowforge/taskcore/runtime/interp"
	"github.com/flowforge/taskcore/runtime/promptexec"
	"github.com/flowforge/taskcore/runtime/taskdef"
	"github.com/flowforge/taskcore/runtime/toolcatalog"
	"github.com/flowforge/taskcore/runtime/agent/toolerrors"
	"github.com/flowforge/taskcore/runtime/transition"
)

type (
	// ToolInvoker runs a resolved tool as an activity (spec §6 "Tool
	// activity"). The state machine never interprets tool bodies.
	ToolInvoker func(ctx context.Context, tool taskdef.Tool, args map[string]any) (any, error)

	// Machine binds one Task+Agent definition to a transition.Store and
	// the activity callbacks the surrounding runtime provides.
	Machine struct {
		Task     *taskdef.Task
		Agent    *taskdef.Agent
		Store    transition.Store
		Executor *promptexec.Executor
		Invoke   ToolInvoker

		// Debug mirrors the "debug" environment variable (spec §6): when
		// set, prompt dispatch always opts out of backend caching
		// regardless of a step's own disable_cache flag (spec §4.3).
		Debug bool
		// ToolLoopDepth overrides the default auto_run_tools depth cap
		// (spec §4.4, §9); zero means defaultToolLoopDepth.
		ToolLoopDepth int
		// Policy is an optional allow/block-list engine consulted before
		// every tool_call step actually dispatches (spec §9; grounded on
		// features/policy/basic). Nil means every resolved tool is
		// allowed to run.
		Policy policy.Engine
		// Hooks optionally broadcasts lifecycle events (run started and
		// completed, tool calls, log-step notes) to subscribers such as
		// runlog.Recorder. Nil disables event publication.
		Hooks hooks.Bus
		// ActivityTimeout bounds each tool invocation and prompt dispatch
		// (config.Config.ScheduleToCloseTimeout). Zero means unbounded.
		ActivityTimeout time.Duration

		catalog   toolcatalog.Catalog
		toolIndex map[string]taskdef.Tool
	}
)

// New validates task+agent and builds the static tool catalog once; the
// resulting Machine is safe for concurrent use across executions (all
// mutable state lives in the transition.Store, keyed by execution id).
func New(task *taskdef.Task, agent *taskdef.Agent, store transition.Store, executor *promptexec.Executor, invoke ToolInvoker) (*Machine, error) {
	if err := taskdef.Validate(agent, task); err != nil {
		return nil, err
	}
	tools := taskdef.ResolvedTools(agent, task)
	catalog, err := toolcatalog.Format(tools, nil, nil)
	if err != nil {
		return nil, err
	}
	idx := make(map[string]taskdef.Tool, len(tools))
	for _, t := range tools {
		idx[t.Name] = t
	}
	return &Machine{
		Task: task, Agent: agent, Store: store, Executor: executor, Invoke: invoke,
		catalog: catalog, toolIndex: idx,
	}, nil
}

// Start appends the init transition for a new execution (spec §4.6).
func (m *Machine) Start(ctx context.Context, executionID string, input map[string]any) (*transition.Transition, error) {
	if existing, err := m.Store.Latest(ctx, executionID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("statemachine: execution %q already started", executionID)
	}

	entry := transition.Cursor{{Workflow: taskdef.MainWorkflow, StepIndex: 0}}
	t := &transition.Transition{
		ExecutionID: executionID,
		Type:        transition.Init,
		Current:     entry,
		Next:        entry,
		Output:      input,
	}
	if err := m.Store.Append(ctx, t); err != nil {
		return nil, err
	}
	m.emitStarted(ctx, executionID, input)
	return t, nil
}

// Step advances an execution by exactly one durable Transition (spec
// §4.6, §4.5). It is idempotent: calling it again after a terminal
// transition, or while awaiting_input, returns the existing transition
// unchanged rather than erroring (spec §7, §8 invariant 3).
func (m *Machine) Step(ctx context.Context, executionID string) (*transition.Transition, error) {
	latest, err := m.Store.Latest(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, fmt.Errorf("statemachine: execution %q not started", executionID)
	}
	if latest.Type.Terminal() {
		return latest, nil
	}
	if latest.Type == transition.Wait && waitReason(latest) == waitAwaitInput {
		return latest, nil
	}

	cur := latest.Next
	if cur == nil {
		return nil, fmt.Errorf("%w: execution %q", ErrCursorOutOfRange, executionID)
	}

	rootInput, scratch, pipe, err := m.reconstruct(ctx, executionID)
	if err != nil {
		return nil, err
	}
	baseCtx := exprlang.Context{"input": rootInput, "state": snapshotScratch(scratch), "_": pipe, "results": pipe}

	res, err := resolveCursor(m.Task, cur, baseCtx)
	if err != nil {
		return nil, err
	}

	idx := cur.Current().StepIndex
	if idx >= len(res.Workflow) {
		return m.appendEndOfBlock(ctx, executionID, cur, latest.Output)
	}

	step := res.Workflow[idx]
	outcome, err := interp.Interpret(step, res.Ctx, scratch)
	if err != nil {
		return m.appendError(ctx, executionID, cur, err.Error())
	}
	return m.translate(ctx, executionID, cur, step, outcome, scratch, res.Ctx)
}

// Resume delivers external input to an execution suspended on
// wait_for_input (spec §4.6). It is only valid from awaiting_input.
func (m *Machine) Resume(ctx context.Context, executionID string, input map[string]any) (*transition.Transition, error) {
	latest, err := m.Store.Latest(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if latest == nil || latest.Type != transition.Wait || waitReason(latest) != waitAwaitInput {
		return nil, ErrResumeNotAwaiting
	}
	t := &transition.Transition{
		ExecutionID: executionID,
		Type:        transition.Resume,
		Current:     latest.Next,
		Next:        latest.Next,
		Output:      input,
	}
	if err := m.Store.Append(ctx, t); err != nil {
		return nil, err
	}
	m.emitResumed(ctx, executionID)
	return t, nil
}

// Cancel records a cancellation at the next safe point (spec §5). It is
// idempotent against an already-terminal execution.
func (m *Machine) Cancel(ctx context.Context, executionID string, reason string) (*transition.Transition, error) {
	latest, err := m.Store.Latest(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, fmt.Errorf("statemachine: execution %q not started", executionID)
	}
	if latest.Type.Terminal() {
		return latest, nil
	}
	cur := latest.Next
	if cur == nil {
		cur = latest.Current
	}
	t := &transition.Transition{
		ExecutionID: executionID,
		Type:        transition.Cancelled,
		Current:     cur,
		Next:        nil,
		Output:      reason,
	}
	if err := m.Store.Append(ctx, t); err != nil {
		return nil, err
	}
	m.emitCompleted(ctx, executionID, "canceled", nil)
	return t, nil
}

const (
	waitSleep      = "sleep"
	waitAwaitInput = "await_input"
)

func waitReason(t *transition.Transition) string {
	if t == nil || t.Metadata == nil {
		return ""
	}
	r, _ := t.Metadata["reason"].(string)
	return r
}

func (m *Machine) appendError(ctx context.Context, executionID string, cur transition.Cursor, message string) (*transition.Transition, error) {
	t := &transition.Transition{ExecutionID: executionID, Type: transition.Error, Current: cur, Next: nil, Output: message}
	if err := m.Store.Append(ctx, t); err != nil {
		return nil, err
	}
	m.emitCompleted(ctx, executionID, "failed", errors.New(message))
	return t, nil
}

func (m *Machine) appendEndOfBlock(ctx context.Context, executionID string, cur transition.Cursor, carried any) (*transition.Transition, error) {
	if len(cur) == 1 {
		t := &transition.Transition{ExecutionID: executionID, Type: transition.Finish, Current: cur, Next: nil, Output: carried}
		if err := m.Store.Append(ctx, t); err != nil {
			return nil, err
		}
		m.emitCompleted(ctx, executionID, "success", nil)
		return t, nil
	}
	popped := cur.Pop().Advance()
	t := &transition.Transition{ExecutionID: executionID, Type: transition.Step, Current: cur, Next: popped, Output: carried}
	if err := m.Store.Append(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// translate implements spec §4.5's outcome-to-transition table.
func (m *Machine) translate(
	ctx context.Context, executionID string, cur transition.Cursor,
	step taskdef.Step, outcome interp.Outcome, scratch map[string]any, stepCtx exprlang.Context,
) (*transition.Transition, error) {
	next := outcome.Next
	switch next.Kind {
	case interp.NextAdvance:
		if step.Kind == taskdef.StepLog {
			m.emitNote(ctx, executionID, outcome.Output)
		}
		return m.appendStep(ctx, executionID, cur, cur.Advance(), outcome.Output, nil)

	case interp.NextReturn:
		if len(cur) == 1 {
			t := &transition.Transition{ExecutionID: executionID, Type: transition.Finish, Current: cur, Next: nil, Output: next.Value}
			if err := m.Store.Append(ctx, t); err != nil {
				return nil, err
			}
			m.emitCompleted(ctx, executionID, "success", nil)
			return t, nil
		}
		return m.appendStep(ctx, executionID, cur, cur.Pop().Advance(), next.Value, nil)

	case interp.NextError:
		return m.appendError(ctx, executionID, cur, next.ErrorMessage)

	case interp.NextSuspendSleep:
		sleepUntil, err := exprlang.Evaluate(next.SleepFor, stepCtx)
		if err != nil {
			return nil, err
		}
		t := &transition.Transition{
			ExecutionID: executionID, Type: transition.Wait, Current: cur, Next: cur.Advance(),
			Metadata: map[string]any{"reason": waitSleep, "sleep_until": sleepUntil},
		}
		if err := m.Store.Append(ctx, t); err != nil {
			return nil, err
		}
		return t, nil

	case interp.NextSuspendInput:
		t := &transition.Transition{
			ExecutionID: executionID, Type: transition.Wait, Current: cur, Next: cur.Advance(),
			Metadata: map[string]any{"reason": waitAwaitInput, "info": next.AwaitInfo},
		}
		if err := m.Store.Append(ctx, t); err != nil {
			return nil, err
		}
		m.emitPaused(ctx, executionID, next.AwaitInfo)
		return t, nil

	case interp.NextInvokeTool:
		tool, ok := m.toolIndex[next.Tool.Tool]
		if !ok {
			return m.appendError(ctx, executionID, cur, fmt.Sprintf("ErrUnknownTool: %q", next.Tool.Tool))
		}
		if blocked, err := m.policyBlocks(ctx, tool); err != nil {
			return m.appendError(ctx, executionID, cur, err.Error())
		} else if blocked {
			return m.appendError(ctx, executionID, cur, fmt.Sprintf("ErrToolBlockedByPolicy: %q", tool.Name))
		}
		callID := toolCallID(executionID, cur)
		started := timeNow()
		m.emitToolScheduled(ctx, executionID, callID, tool.Name, next.Tool.Arguments)
		result, err := m.invokeTool(ctx, tool, next.Tool.Arguments)
		m.emitToolResult(ctx, executionID, callID, tool.Name, result, started, err)
		if err != nil {
			return m.appendError(ctx, executionID, cur, toolerrors.FromError(err).Error())
		}
		return m.appendStep(ctx, executionID, cur, cur.Advance(), result, nil)

	case interp.NextInvokePrompt:
		result, err := m.runPrompt(ctx, next.Prompt.Payload, stepCtx)
		if err != nil {
			return m.appendError(ctx, executionID, cur, err.Error())
		}
		return m.appendStep(ctx, executionID, cur, cur.Advance(), result, nil)

	case interp.NextCallWorkflow:
		if _, ok := m.Task.Workflows[next.Call.Workflow]; !ok {
			return m.appendError(ctx, executionID, cur, fmt.Sprintf("ErrUnknownWorkflow: %q", next.Call.Workflow))
		}
		for k, v := range next.Call.Arguments {
			scratch[k] = v
		}
		pushed := cur.Push(transition.CursorFrame{Workflow: next.Call.Workflow, StepIndex: 0})
		return m.appendStep(ctx, executionID, cur, pushed, next.Call.Arguments, nil)

	case interp.NextEnterBlock:
		return m.enterBlock(ctx, executionID, cur, step, next.Block, scratch, stepCtx)

	default:
		return nil, fmt.Errorf("statemachine: unhandled next kind %q", next.Kind)
	}
}

// invokeTool runs the tool activity under the configured
// schedule-to-close bound (spec §5 "Timeouts").
func (m *Machine) invokeTool(ctx context.Context, tool taskdef.Tool, args map[string]any) (any, error) {
	if m.ActivityTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.ActivityTimeout)
		defer cancel()
	}
	return m.Invoke(ctx, tool, args)
}

// policyBlocks consults the optional Policy engine before a tool actually
// dispatches (spec §9). A nil Policy means every resolved tool is allowed.
func (m *Machine) policyBlocks(ctx context.Context, tool taskdef.Tool) (bool, error) {
	if m.Policy == nil {
		return false, nil
	}
	id := tools.Ident(tool.Name)
	decision, err := m.Policy.Decide(ctx, policy.Input{
		Tools:     []policy.ToolMetadata{{ID: id}},
		Requested: []tools.Ident{id},
	})
	if err != nil {
		return false, err
	}
	if decision.DisableTools {
		return true, nil
	}
	for _, allowed := range decision.AllowedTools {
		if allowed == id {
			return false, nil
		}
	}
	return true, nil
}

func (m *Machine) appendStep(ctx context.Context, executionID string, cur, nextCur transition.Cursor, output any, metadata map[string]any) (*transition.Transition, error) {
	t := &transition.Transition{ExecutionID: executionID, Type: transition.Step, Current: cur, Next: nextCur, Output: output, Metadata: metadata}
	if err := m.Store.Append(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (m *Machine) enterBlock(
	ctx context.Context, executionID string, cur transition.Cursor,
	step taskdef.Step, block interp.BlockDirective, scratch map[string]any, stepCtx exprlang.Context,
) (*transition.Transition, error) {
	if len(block.Blocks) == 1 && !block.Concurrent && block.LoopVar == "" {
		selector, err := branchSelector(step, cur.Current().StepIndex, stepCtx)
		if err != nil {
			return nil, err
		}
		pushed := cur.Push(transition.CursorFrame{Workflow: selector, StepIndex: 0})
		return m.appendStep(ctx, executionID, cur, pushed, nil, nil)
	}

	output, err := m.runBlockEager(ctx, block, scratch, stepCtx)
	if err != nil {
		return m.appendError(ctx, executionID, cur, err.Error())
	}
	return m.appendStep(ctx, executionID, cur, cur.Advance(), output, nil)
}

// branchSelector re-derives which synthetic child frame a single-branch
// compound step (if_else, switch) resolved to, duplicating the decision
// interp.Interpret already made (condition evaluation is pure and cheap)
// so the chosen branch can be addressed in the persisted cursor.
func branchSelector(step taskdef.Step, parentIdx int, ctx exprlang.Context) (string, error) {
	switch step.Kind {
	case taskdef.StepIfElse:
		cond, err := exprlang.Evaluate(step.IfElse.If, ctx)
		if err != nil {
			return "", err
		}
		if truthy(cond) {
			return frame(blockIfThen, parentIdx, branchThen), nil
		}
		return frame(blockIfThen, parentIdx, branchElse), nil
	case taskdef.StepSwitch:
		for i, c := range step.Switch {
			v, err := exprlang.Evaluate(c.Case, ctx)
			if err != nil {
				return "", err
			}
			if truthy(v) {
				return frame(blockSwitch, parentIdx, fmt.Sprint(i)), nil
			}
		}
		return "", fmt.Errorf("statemachine: switch has no matching case to enter")
	default:
		return "", fmt.Errorf("statemachine: step kind %q is not a single-branch block", step.Kind)
	}
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
	default:
		return true
	}
}

// runBlockEager drives a fan-out BlockDirective (foreach, parallel, or
// map) to completion synchronously, sequentially for foreach
// (block.Concurrent == false) and concurrently otherwise (spec §5:
// "foreach runs in declared element order"; parallel/map branches have
// no cross-ordering but their outputs are collected in declared order).
func (m *Machine) runBlockEager(ctx context.Context, block interp.BlockDirective, scratch map[string]any, base exprlang.Context) (any, error) {
	n := len(block.Blocks)
	outputs := make([]any, n)

	if !block.Concurrent {
		for i := 0; i < n; i++ {
			iterCtx := withLoopVar(base, block, i)
			out, err := m.runWorkflowEager(ctx, block.Blocks[i], scratch, iterCtx)
			if err != nil {
				return nil, fmt.Errorf("branch %d: %w", i, err)
			}
			outputs[i] = out
		}
		return reduceOrList(block, outputs)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		firstErr error
	)
	branchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			iterCtx := withLoopVar(base, block, i)
			out, err := m.runWorkflowEager(branchCtx, block.Blocks[i], scratch, iterCtx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("branch %d: %w", i, err)
					cancel()
				}
				return
			}
			outputs[i] = out
		}()
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return reduceOrList(block, outputs)
}

func withLoopVar(base exprlang.Context, block interp.BlockDirective, i int) exprlang.Context {
	if block.LoopVar == "" {
		return base
	}
	next := cloneCtx(base)
	next[block.LoopVar] = block.Elements[i]
	next["_"] = block.Elements[i]
	return next
}

func reduceOrList(block interp.BlockDirective, outputs []any) (any, error) {
	if block.Reduce == "" {
		return outputs, nil
	}
	acc := block.Initial
	if !block.HasInitial && len(outputs) > 0 {
		acc = outputs[0]
		outputs = outputs[1:]
	}
	for _, v := range outputs {
		foldCtx := exprlang.Context{"acc": acc, "element": v, "_": v}
		next, err := exprlang.Evaluate(block.Reduce, foldCtx)
		if err != nil {
			return nil, err
		}
		acc = next
	}
	return acc, nil
}

// runWorkflowEager interprets wf step by step without recording durable
// transitions, used only for the body of a fan-out branch. Mid-branch
// suspension has nowhere durable to record itself and is rejected.
func (m *Machine) runWorkflowEager(ctx context.Context, wf taskdef.Workflow, scratch map[string]any, base exprlang.Context) (any, error) {
	var pipe any
	stepCtx := base
	for i := 0; i < len(wf); i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		step := wf[i]
		outcome, err := interp.Interpret(step, stepCtx, scratch)
		if err != nil {
			return nil, err
		}
		switch outcome.Next.Kind {
		case interp.NextAdvance:
			pipe = outcome.Output
		case interp.NextReturn:
			return outcome.Next.Value, nil
		case interp.NextError:
			return nil, fmt.Errorf("%s", outcome.Next.ErrorMessage)
		case interp.NextSuspendSleep, interp.NextSuspendInput:
			return nil, fmt.Errorf("statemachine: %q is not supported inside a parallel/foreach/map branch", step.Kind)
		case interp.NextInvokeTool:
			tool, ok := m.toolIndex[outcome.Next.Tool.Tool]
			if !ok {
				return nil, fmt.Errorf("ErrUnknownTool: %q", outcome.Next.Tool.Tool)
			}
			if blocked, err := m.policyBlocks(ctx, tool); err != nil {
				return nil, err
			} else if blocked {
				return nil, fmt.Errorf("ErrToolBlockedByPolicy: %q", tool.Name)
			}
			result, err := m.invokeTool(ctx, tool, outcome.Next.Tool.Arguments)
			if err != nil {
				return nil, toolerrors.FromError(err)
			}
			pipe = result
		case interp.NextInvokePrompt:
			result, err := m.runPrompt(ctx, outcome.Next.Prompt.Payload, stepCtx)
			if err != nil {
				return nil, err
			}
			pipe = result
		case interp.NextCallWorkflow:
			sibling, ok := m.Task.Workflows[outcome.Next.Call.Workflow]
			if !ok {
				return nil, fmt.Errorf("ErrUnknownWorkflow: %q", outcome.Next.Call.Workflow)
			}
			for k, v := range outcome.Next.Call.Arguments {
				scratch[k] = v
			}
			out, err := m.runWorkflowEager(ctx, sibling, scratch, stepCtx)
			if err != nil {
				return nil, err
			}
			pipe = out
		case interp.NextEnterBlock:
			out, err := m.runNestedBlockEager(ctx, step, outcome.Next.Block, scratch, stepCtx)
			if err != nil {
				return nil, err
			}
			pipe = out
		}
		stepCtx = withPipe(stepCtx, pipe)
	}
	return pipe, nil
}

func (m *Machine) runNestedBlockEager(ctx context.Context, step taskdef.Step, block interp.BlockDirective, scratch map[string]any, base exprlang.Context) (any, error) {
	if len(block.Blocks) == 1 && !block.Concurrent && block.LoopVar == "" {
		return m.runWorkflowEager(ctx, block.Blocks[0], scratch, base)
	}
	return m.runBlockEager(ctx, block, scratch, base)
}

func withPipe(ctx exprlang.Context, value any) exprlang.Context {
	next := cloneCtx(ctx)
	next["_"] = value
	next["results"] = value
	return next
}

func snapshotScratch(scratch map[string]any) map[string]any {
	out := make(map[string]any, len(scratch))
	for k, v := range scratch {
		out[k] = v
	}
	return out
}
