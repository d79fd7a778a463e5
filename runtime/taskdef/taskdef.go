// Package taskdef defines the static, read-only entities a task execution
// is built from: Agent, Tool, Task, Workflow, Step, and the per-task
// RunPolicy. Instances are immutable once constructed and are shared
// read-only across every execution that references them.
package taskdef

import "time"

type (
	// Agent is an immutable-per-execution persona: a model binding, default
	// settings, instructions, and the set of tools it owns.
	Agent struct {
		ID              string
		Model           string
		DefaultSettings map[string]any
		Instructions    string
		Tools           []Tool
	}

	// Tool is a tagged union over exactly one populated variant. Kind
	// reports which field is populated; exactly one of Function, System,
	// Integration, APICall, or ModelNative is non-nil.
	Tool struct {
		Name        string
		Function    *FunctionTool
		System      *SystemTool
		Integration *IntegrationTool
		APICall     *APICallTool
		ModelNative *ModelNativeTool
	}

	// ToolKind identifies which variant of Tool is populated. The zero
	// value is never valid on a constructed Tool.
	ToolKind string

	// FunctionTool is a user-declared callable with a JSON Schema payload.
	FunctionTool struct {
		Description string
		Parameters  []byte // JSON Schema
	}

	// SystemTool is a runtime-provided handler. Parameters, when set, is its
	// JSON Schema; when it is empty, toolcatalog.Format asks the caller's
	// SystemReflector to derive one from the handler's declared arguments.
	SystemTool struct {
		Description string
		Handler     string
		Parameters  []byte
	}

	// IntegrationTool routes through a named external provider/method pair.
	// Its argument schema is looked up by (Provider, Method) through the
	// toolcatalog.IntegrationSchemas the caller passes to Format; an unknown
	// provider/method pair yields an empty object schema at format time.
	IntegrationTool struct {
		Description string
		Provider    string
		Method      string
	}

	// APICallTool declares a direct HTTP-style call with a fixed request
	// schema.
	APICallTool struct {
		Description string
		Request     []byte // JSON Schema
	}

	// ModelNativeTool is one of the model-native kinds
	// (computer_20241022, bash_20241022, text_editor_20241022) handled
	// entirely by the native-tools prompt backend. NativeKind holds the
	// exact kind name; DisplayWidthPX/DisplayHeightPX apply to the
	// computer_20241022 kind only.
	ModelNativeTool struct {
		NativeKind      string
		DisplayWidthPX  int
		DisplayHeightPX int
	}

	// Task is a named set of Workflows plus tools that merge with (and
	// shadow by name) the owning Agent's tools.
	Task struct {
		ID        string
		Workflows map[string]Workflow
		Tools     []Tool
		Policy    RunPolicy
	}

	// Workflow is an ordered list of Steps. "main" is the entry workflow;
	// others are invoked via a yield step.
	Workflow []Step

	// Step is a tagged union; Kind determines which payload field is
	// populated. Exactly one payload field is read per Kind — see
	// interp.Interpret for the dispatch.
	Step struct {
		Kind StepKind

		Evaluate map[string]string // name -> expression
		ToolCall *ToolCallPayload
		Prompt   *PromptPayload
		Get      string
		Set      map[string]string // key -> expression
		Log      string            // template
		Return   map[string]string // name -> expression
		Sleep    string            // duration expression or literal
		Error    string
		Yield    *YieldPayload
		WaitForInput *WaitForInputPayload
		IfElse   *IfElsePayload
		Switch   []SwitchCase
		Foreach  *ForeachPayload
		Parallel []Workflow
		Map      *MapPayload
	}

	// StepKind names the populated Step variant.
	StepKind string

	ToolCallPayload struct {
		Tool      string
		Arguments map[string]string // name -> expression
	}

	// PromptPayload carries either a bare string (possibly a "$_ "
	// expression prefix, see exprlang) or a rendered message list.
	PromptPayload struct {
		Text         string
		Messages     []PromptMessage
		Unwrap       bool
		AutoRunTools bool
		DisableCache bool
		Settings     map[string]any
	}

	PromptMessage struct {
		Role    string
		Content string // template
	}

	YieldPayload struct {
		Workflow  string
		Arguments map[string]string
	}

	WaitForInputPayload struct {
		Info string // template
	}

	IfElsePayload struct {
		If   string
		Then Workflow
		Else Workflow
	}

	SwitchCase struct {
		Case string
		Then Workflow
	}

	ForeachPayload struct {
		In string
		Do Workflow
	}

	MapPayload struct {
		Over        string
		Map         Workflow
		Reduce      string // optional expression, empty means none
		Initial     string // optional expression
		Parallelism int    // default 1
	}

	// RunPolicy bounds a task's runtime behavior. Grounded on the
	// teacher's runtime.RunPolicy. ParseTask fills it from a task
	// document's policy block; the statemachine package does not read it,
	// so these caps are not enforced during execution.
	RunPolicy struct {
		MaxToolCalls                  int
		MaxConsecutiveFailedToolCalls int
		TimeBudget                    time.Duration
		InterruptsAllowed             bool
		AutoRunToolDepthCap           int // default 5, see spec Design Notes §9
	}
)

const (
	ToolFunction    ToolKind = "function"
	ToolSystem      ToolKind = "system"
	ToolIntegration ToolKind = "integration"
	ToolAPICall     ToolKind = "api_call"
	ToolModelNative ToolKind = "model_native"
)

const (
	ModelNativeComputer   = "computer_20241022"
	ModelNativeBash       = "bash_20241022"
	ModelNativeTextEditor = "text_editor_20241022"
)

const (
	StepEvaluate     StepKind = "evaluate"
	StepToolCall     StepKind = "tool_call"
	StepPrompt       StepKind = "prompt"
	StepGet          StepKind = "get"
	StepSet          StepKind = "set"
	StepLog          StepKind = "log"
	StepReturn       StepKind = "return"
	StepSleep        StepKind = "sleep"
	StepError        StepKind = "error"
	StepYield        StepKind = "yield"
	StepWaitForInput StepKind = "wait_for_input"
	StepIfElse       StepKind = "if_else"
	StepSwitch       StepKind = "switch"
	StepForeach      StepKind = "foreach"
	StepParallel     StepKind = "parallel"
	StepMap          StepKind = "map"
)

// DefaultAutoRunToolDepthCap names the default for an unset
// RunPolicy.AutoRunToolDepthCap. No code in this module reads either; the
// cap in force is statemachine.Machine.ToolLoopDepth, which defaults to 5.
const DefaultAutoRunToolDepthCap = 5

// MainWorkflow is the name of a Task's entry workflow.
const MainWorkflow = "main"

// Kind reports which variant of t is populated, deriving the tagged-union
// discriminant from the populated field rather than storing it
// redundantly (the invariant "the derived type tag equals the name of the
// populated variant" from spec §3 holds by construction).
func (t Tool) Kind() ToolKind {
	switch {
	case t.Function != nil:
		return ToolFunction
	case t.System != nil:
		return ToolSystem
	case t.Integration != nil:
		return ToolIntegration
	case t.APICall != nil:
		return ToolAPICall
	case t.ModelNative != nil:
		return ToolModelNative
	default:
		return ""
	}
}

// ResolvedTools merges Task tools over Agent tools, task tools shadowing
// agent tools of the same Name. Order: agent tools first (in declaration
// order), then task tools that are new names; shadowed agent tools are
// replaced in place so iteration order stays stable for deterministic
// formatter output.
func ResolvedTools(agent *Agent, task *Task) []Tool {
	byName := make(map[string]int, len(agent.Tools)+len(task.Tools))
	out := make([]Tool, 0, len(agent.Tools)+len(task.Tools))
	for _, t := range agent.Tools {
		byName[t.Name] = len(out)
		out = append(out, t)
	}
	for _, t := range task.Tools {
		if idx, ok := byName[t.Name]; ok {
			out[idx] = t
			continue
		}
		byName[t.Name] = len(out)
		out = append(out, t)
	}
	return out
}
