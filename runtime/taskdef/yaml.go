package taskdef

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ParseTask decodes a YAML task definition into a Task. Each list entry
// under a workflow is a single-key mapping naming the step kind, mirroring
// how task authors write workflows:
//
//	id: demo
//	workflows:
//	  main:
//	    - evaluate: {a: "1 + 2"}
//	    - if_else:
//	        if: "input.n > 0"
//	        then:
//	          - return: {r: "'pos'"}
//	        else:
//	          - return: {r: "'np'"}
//	tools:
//	  - name: search
//	    integration: {provider: brave, method: search}
//
// ParseTask only decodes; expression and template validation happens in
// Validate once the owning Agent is known.
func ParseTask(data []byte) (*Task, error) {
	var doc taskDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("taskdef: parse yaml: %w", err)
	}
	return doc.toTask()
}

type (
	taskDoc struct {
		ID        string               `yaml:"id"`
		Workflows map[string][]stepDoc `yaml:"workflows"`
		Tools     []toolDoc            `yaml:"tools"`
		Policy    *policyDoc           `yaml:"policy"`
	}

	stepDoc struct {
		Evaluate     map[string]string `yaml:"evaluate"`
		ToolCall     *toolCallDoc      `yaml:"tool_call"`
		Prompt       *promptDoc        `yaml:"prompt"`
		Get          *string           `yaml:"get"`
		Set          map[string]string `yaml:"set"`
		Log          *string           `yaml:"log"`
		Return       map[string]string `yaml:"return"`
		Sleep        *string           `yaml:"sleep"`
		Error        *string           `yaml:"error"`
		Yield        *yieldDoc         `yaml:"yield"`
		WaitForInput *waitDoc          `yaml:"wait_for_input"`
		IfElse       *ifElseDoc        `yaml:"if_else"`
		Switch       []switchCaseDoc   `yaml:"switch"`
		Foreach      *foreachDoc       `yaml:"foreach"`
		Parallel     [][]stepDoc       `yaml:"parallel"`
		Map          *mapDoc           `yaml:"map"`
	}

	toolCallDoc struct {
		Tool      string            `yaml:"tool"`
		Arguments map[string]string `yaml:"arguments"`
	}

	// promptDoc accepts either a bare scalar (the prompt text) or a
	// mapping with the full payload.
	promptDoc struct {
		Text         string             `yaml:"text"`
		Messages     []promptMessageDoc `yaml:"messages"`
		Unwrap       bool               `yaml:"unwrap"`
		AutoRunTools bool               `yaml:"auto_run_tools"`
		DisableCache bool               `yaml:"disable_cache"`
		Settings     map[string]any     `yaml:"settings"`
	}

	promptMessageDoc struct {
		Role    string `yaml:"role"`
		Content string `yaml:"content"`
	}

	yieldDoc struct {
		Workflow  string            `yaml:"workflow"`
		Arguments map[string]string `yaml:"arguments"`
	}

	waitDoc struct {
		Info string `yaml:"info"`
	}

	ifElseDoc struct {
		If   string    `yaml:"if"`
		Then []stepDoc `yaml:"then"`
		Else []stepDoc `yaml:"else"`
	}

	switchCaseDoc struct {
		Case string    `yaml:"case"`
		Then []stepDoc `yaml:"then"`
	}

	foreachDoc struct {
		In string    `yaml:"in"`
		Do []stepDoc `yaml:"do"`
	}

	mapDoc struct {
		Over        string    `yaml:"over"`
		Map         []stepDoc `yaml:"map"`
		Reduce      string    `yaml:"reduce"`
		Initial     string    `yaml:"initial"`
		Parallelism int       `yaml:"parallelism"`
	}

	toolDoc struct {
		Name        string          `yaml:"name"`
		Function    *functionDoc    `yaml:"function"`
		System      *systemDoc      `yaml:"system"`
		Integration *integrationDoc `yaml:"integration"`
		APICall     *apiCallDoc     `yaml:"api_call"`
		Computer    *computerDoc    `yaml:"computer_20241022"`
		Bash        *emptyDoc       `yaml:"bash_20241022"`
		TextEditor  *emptyDoc       `yaml:"text_editor_20241022"`
	}

	functionDoc struct {
		Description string         `yaml:"description"`
		Parameters  map[string]any `yaml:"parameters"`
	}

	systemDoc struct {
		Description string         `yaml:"description"`
		Handler     string         `yaml:"handler"`
		Parameters  map[string]any `yaml:"parameters"`
	}

	integrationDoc struct {
		Description string `yaml:"description"`
		Provider    string `yaml:"provider"`
		Method      string `yaml:"method"`
	}

	apiCallDoc struct {
		Description string         `yaml:"description"`
		Request     map[string]any `yaml:"request"`
	}

	computerDoc struct {
		DisplayWidthPX  int `yaml:"display_width_px"`
		DisplayHeightPX int `yaml:"display_height_px"`
	}

	emptyDoc struct{}

	policyDoc struct {
		MaxToolCalls                  int    `yaml:"max_tool_calls"`
		MaxConsecutiveFailedToolCalls int    `yaml:"max_consecutive_failed_tool_calls"`
		TimeBudget                    string `yaml:"time_budget"`
		InterruptsAllowed             bool   `yaml:"interrupts_allowed"`
		AutoRunToolDepthCap           int    `yaml:"auto_run_tool_depth_cap"`
	}
)

// UnmarshalYAML lets a prompt step be written either as a bare scalar or
// as the full payload mapping.
func (p *promptDoc) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&p.Text)
	}
	type alias promptDoc
	var a alias
	if err := node.Decode(&a); err != nil {
		return err
	}
	*p = promptDoc(a)
	return nil
}

func (d taskDoc) toTask() (*Task, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("taskdef: task id is required")
	}
	task := &Task{ID: d.ID, Workflows: make(map[string]Workflow, len(d.Workflows))}
	for name, steps := range d.Workflows {
		wf, err := stepsFromDocs(steps)
		if err != nil {
			return nil, fmt.Errorf("taskdef: workflow %q: %w", name, err)
		}
		task.Workflows[name] = wf
	}
	for _, td := range d.Tools {
		tool, err := td.toTool()
		if err != nil {
			return nil, err
		}
		task.Tools = append(task.Tools, tool)
	}
	if d.Policy != nil {
		p := RunPolicy{
			MaxToolCalls:                  d.Policy.MaxToolCalls,
			MaxConsecutiveFailedToolCalls: d.Policy.MaxConsecutiveFailedToolCalls,
			InterruptsAllowed:             d.Policy.InterruptsAllowed,
			AutoRunToolDepthCap:           d.Policy.AutoRunToolDepthCap,
		}
		if d.Policy.TimeBudget != "" {
			budget, err := time.ParseDuration(d.Policy.TimeBudget)
			if err != nil {
				return nil, fmt.Errorf("taskdef: policy time_budget: %w", err)
			}
			p.TimeBudget = budget
		}
		task.Policy = p
	}
	return task, nil
}

func stepsFromDocs(docs []stepDoc) (Workflow, error) {
	wf := make(Workflow, 0, len(docs))
	for i, d := range docs {
		step, err := d.toStep()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		wf = append(wf, step)
	}
	return wf, nil
}

func (d stepDoc) toStep() (Step, error) {
	var (
		step Step
		set  int
	)
	if d.Evaluate != nil {
		step = Step{Kind: StepEvaluate, Evaluate: d.Evaluate}
		set++
	}
	if d.ToolCall != nil {
		step = Step{Kind: StepToolCall, ToolCall: &ToolCallPayload{Tool: d.ToolCall.Tool, Arguments: d.ToolCall.Arguments}}
		set++
	}
	if d.Prompt != nil {
		p := &PromptPayload{
			Text:         d.Prompt.Text,
			Unwrap:       d.Prompt.Unwrap,
			AutoRunTools: d.Prompt.AutoRunTools,
			DisableCache: d.Prompt.DisableCache,
			Settings:     d.Prompt.Settings,
		}
		for _, m := range d.Prompt.Messages {
			p.Messages = append(p.Messages, PromptMessage{Role: m.Role, Content: m.Content})
		}
		step = Step{Kind: StepPrompt, Prompt: p}
		set++
	}
	if d.Get != nil {
		step = Step{Kind: StepGet, Get: *d.Get}
		set++
	}
	if d.Set != nil {
		step = Step{Kind: StepSet, Set: d.Set}
		set++
	}
	if d.Log != nil {
		step = Step{Kind: StepLog, Log: *d.Log}
		set++
	}
	if d.Return != nil {
		step = Step{Kind: StepReturn, Return: d.Return}
		set++
	}
	if d.Sleep != nil {
		step = Step{Kind: StepSleep, Sleep: *d.Sleep}
		set++
	}
	if d.Error != nil {
		step = Step{Kind: StepError, Error: *d.Error}
		set++
	}
	if d.Yield != nil {
		step = Step{Kind: StepYield, Yield: &YieldPayload{Workflow: d.Yield.Workflow, Arguments: d.Yield.Arguments}}
		set++
	}
	if d.WaitForInput != nil {
		step = Step{Kind: StepWaitForInput, WaitForInput: &WaitForInputPayload{Info: d.WaitForInput.Info}}
		set++
	}
	if d.IfElse != nil {
		thenWF, err := stepsFromDocs(d.IfElse.Then)
		if err != nil {
			return Step{}, err
		}
		elseWF, err := stepsFromDocs(d.IfElse.Else)
		if err != nil {
			return Step{}, err
		}
		step = Step{Kind: StepIfElse, IfElse: &IfElsePayload{If: d.IfElse.If, Then: thenWF, Else: elseWF}}
		set++
	}
	if d.Switch != nil {
		cases := make([]SwitchCase, 0, len(d.Switch))
		for _, c := range d.Switch {
			thenWF, err := stepsFromDocs(c.Then)
			if err != nil {
				return Step{}, err
			}
			cases = append(cases, SwitchCase{Case: c.Case, Then: thenWF})
		}
		step = Step{Kind: StepSwitch, Switch: cases}
		set++
	}
	if d.Foreach != nil {
		do, err := stepsFromDocs(d.Foreach.Do)
		if err != nil {
			return Step{}, err
		}
		step = Step{Kind: StepForeach, Foreach: &ForeachPayload{In: d.Foreach.In, Do: do}}
		set++
	}
	if d.Parallel != nil {
		branches := make([]Workflow, 0, len(d.Parallel))
		for _, b := range d.Parallel {
			wf, err := stepsFromDocs(b)
			if err != nil {
				return Step{}, err
			}
			branches = append(branches, wf)
		}
		step = Step{Kind: StepParallel, Parallel: branches}
		set++
	}
	if d.Map != nil {
		body, err := stepsFromDocs(d.Map.Map)
		if err != nil {
			return Step{}, err
		}
		step = Step{Kind: StepMap, Map: &MapPayload{
			Over:        d.Map.Over,
			Map:         body,
			Reduce:      d.Map.Reduce,
			Initial:     d.Map.Initial,
			Parallelism: d.Map.Parallelism,
		}}
		set++
	}
	if set == 0 {
		return Step{}, fmt.Errorf("no step kind set")
	}
	if set > 1 {
		return Step{}, fmt.Errorf("more than one step kind set")
	}
	return step, nil
}

func (d toolDoc) toTool() (Tool, error) {
	if d.Name == "" {
		return Tool{}, fmt.Errorf("taskdef: tool name is required")
	}
	tool := Tool{Name: d.Name}
	variants := 0
	if d.Function != nil {
		params, err := schemaJSON(d.Function.Parameters)
		if err != nil {
			return Tool{}, fmt.Errorf("taskdef: tool %q: %w", d.Name, err)
		}
		tool.Function = &FunctionTool{Description: d.Function.Description, Parameters: params}
		variants++
	}
	if d.System != nil {
		params, err := schemaJSON(d.System.Parameters)
		if err != nil {
			return Tool{}, fmt.Errorf("taskdef: tool %q: %w", d.Name, err)
		}
		tool.System = &SystemTool{Description: d.System.Description, Handler: d.System.Handler, Parameters: params}
		variants++
	}
	if d.Integration != nil {
		tool.Integration = &IntegrationTool{
			Description: d.Integration.Description,
			Provider:    d.Integration.Provider,
			Method:      d.Integration.Method,
		}
		variants++
	}
	if d.APICall != nil {
		req, err := schemaJSON(d.APICall.Request)
		if err != nil {
			return Tool{}, fmt.Errorf("taskdef: tool %q: %w", d.Name, err)
		}
		tool.APICall = &APICallTool{Description: d.APICall.Description, Request: req}
		variants++
	}
	if d.Computer != nil {
		tool.ModelNative = &ModelNativeTool{
			NativeKind:      ModelNativeComputer,
			DisplayWidthPX:  d.Computer.DisplayWidthPX,
			DisplayHeightPX: d.Computer.DisplayHeightPX,
		}
		variants++
	}
	if d.Bash != nil {
		tool.ModelNative = &ModelNativeTool{NativeKind: ModelNativeBash}
		variants++
	}
	if d.TextEditor != nil {
		tool.ModelNative = &ModelNativeTool{NativeKind: ModelNativeTextEditor}
		variants++
	}
	if variants != 1 {
		return Tool{}, fmt.Errorf("taskdef: tool %q must declare exactly one variant, got %d", d.Name, variants)
	}
	return tool, nil
}

func schemaJSON(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	return b, nil
}
