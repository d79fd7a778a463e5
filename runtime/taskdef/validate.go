package taskdef

import (
	"fmt"
	"strings"

	"github.com/flowforge/taskcore/runtime/exprlang"
)

// Validate checks every expression and template occurrence in task against
// the Expression and Template dialects, and enforces the tool-name
// uniqueness invariants from spec §3 and Design Note "Tool translation
// back-map". Called once at task-definition time; a task that fails
// Validate must never be accepted for execution.
func Validate(agent *Agent, task *Task) error {
	if err := validateTools(agent.Tools); err != nil {
		return fmt.Errorf("agent %q: %w", agent.ID, err)
	}
	if err := validateTools(task.Tools); err != nil {
		return fmt.Errorf("task %q: %w", task.ID, err)
	}
	if _, ok := task.Workflows[MainWorkflow]; !ok {
		return fmt.Errorf("task %q: missing %q workflow", task.ID, MainWorkflow)
	}
	names := make(map[string]struct{}, len(task.Workflows))
	for name := range task.Workflows {
		if strings.Contains(name, ":") {
			return fmt.Errorf("task %q: workflow name %q must not contain ':'", task.ID, name)
		}
		names[name] = struct{}{}
	}
	for name, wf := range task.Workflows {
		if err := validateWorkflow(wf, names); err != nil {
			return fmt.Errorf("task %q workflow %q: %w", task.ID, name, err)
		}
	}
	return nil
}

func validateTools(tools []Tool) error {
	seen := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("duplicate tool name %q", t.Name)
		}
		seen[t.Name] = struct{}{}
		if err := validateToolVariant(t); err != nil {
			return fmt.Errorf("tool %q: %w", t.Name, err)
		}
	}
	return nil
}

func validateToolVariant(t Tool) error {
	count := 0
	if t.Function != nil {
		count++
	}
	if t.System != nil {
		count++
	}
	if t.Integration != nil {
		count++
	}
	if t.APICall != nil {
		count++
	}
	if t.ModelNative != nil {
		count++
	}
	if count != 1 {
		return fmt.Errorf("exactly one tool variant must be populated, got %d", count)
	}
	return nil
}

func validateWorkflow(wf Workflow, siblingWorkflows map[string]struct{}) error {
	for i, step := range wf {
		if err := validateStep(step, siblingWorkflows); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step, siblingWorkflows map[string]struct{}) error {
	validateExprMap := func(m map[string]string) error {
		for name, expr := range m {
			if err := exprlang.ValidateExpression(expr); err != nil {
				return fmt.Errorf("%q: %w", name, err)
			}
		}
		return nil
	}

	switch step.Kind {
	case StepEvaluate:
		return validateExprMap(step.Evaluate)
	case StepSet:
		return validateExprMap(step.Set)
	case StepGet:
		if step.Get == "" {
			return fmt.Errorf("get step requires a key")
		}
	case StepToolCall:
		if step.ToolCall == nil || step.ToolCall.Tool == "" {
			return fmt.Errorf("tool_call step requires a tool name")
		}
		return validateExprMap(step.ToolCall.Arguments)
	case StepPrompt:
		return validatePrompt(step.Prompt)
	case StepLog:
		return exprlang.ValidateTemplate(step.Log)
	case StepReturn:
		return validateExprMap(step.Return)
	case StepSleep:
		return exprlang.ValidateExpression(step.Sleep)
	case StepError:
		if step.Error == "" {
			return fmt.Errorf("error step requires a message")
		}
	case StepYield:
		if step.Yield == nil {
			return fmt.Errorf("yield step requires a payload")
		}
		if _, ok := siblingWorkflows[step.Yield.Workflow]; !ok {
			return fmt.Errorf("yield references unknown workflow %q", step.Yield.Workflow)
		}
		return validateExprMap(step.Yield.Arguments)
	case StepWaitForInput:
		if step.WaitForInput == nil {
			return fmt.Errorf("wait_for_input step requires a payload")
		}
		return exprlang.ValidateTemplate(step.WaitForInput.Info)
	case StepIfElse:
		if step.IfElse == nil {
			return fmt.Errorf("if_else step requires a payload")
		}
		if err := exprlang.ValidateExpression(step.IfElse.If); err != nil {
			return err
		}
		if err := validateWorkflow(step.IfElse.Then, siblingWorkflows); err != nil {
			return err
		}
		return validateWorkflow(step.IfElse.Else, siblingWorkflows)
	case StepSwitch:
		for i, c := range step.Switch {
			if err := exprlang.ValidateExpression(c.Case); err != nil {
				return fmt.Errorf("case %d: %w", i, err)
			}
			if err := validateWorkflow(c.Then, siblingWorkflows); err != nil {
				return fmt.Errorf("case %d: %w", i, err)
			}
		}
	case StepForeach:
		if step.Foreach == nil {
			return fmt.Errorf("foreach step requires a payload")
		}
		if err := exprlang.ValidateExpression(step.Foreach.In); err != nil {
			return err
		}
		return validateWorkflow(step.Foreach.Do, siblingWorkflows)
	case StepParallel:
		for i, branch := range step.Parallel {
			if err := validateWorkflow(branch, siblingWorkflows); err != nil {
				return fmt.Errorf("branch %d: %w", i, err)
			}
		}
	case StepMap:
		if step.Map == nil {
			return fmt.Errorf("map step requires a payload")
		}
		if err := exprlang.ValidateExpression(step.Map.Over); err != nil {
			return err
		}
		if step.Map.Reduce != "" {
			if err := exprlang.ValidateExpression(step.Map.Reduce); err != nil {
				return err
			}
		}
		if step.Map.Initial != "" {
			if err := exprlang.ValidateExpression(step.Map.Initial); err != nil {
				return err
			}
		}
		return validateWorkflow(step.Map.Map, siblingWorkflows)
	default:
		return fmt.Errorf("unknown step kind %q", step.Kind)
	}
	return nil
}

func validatePrompt(p *PromptPayload) error {
	if p == nil {
		return fmt.Errorf("prompt step requires a payload")
	}
	if p.Text != "" {
		if rest, ok := exprlang.SplitPromptExpression(p.Text); ok {
			return exprlang.ValidateExpression(rest)
		}
		return exprlang.ValidateTemplate(p.Text)
	}
	for i, m := range p.Messages {
		if err := exprlang.ValidateTemplate(m.Content); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	return nil
}
