// Package policy defines the pluggable tool-execution policy contract
// consulted before a tool_call step (or an auto_run_tools loop iteration)
// actually invokes its tool (spec §9 Design Notes). CapsState has the
// shape of the caps that taskdef.RunPolicy names.
//
// Grounded on the teacher's runtime/agent/runtime policy plumbing
// (workflow_policy.go's Runtime.applyRuntimePolicy, runtime.go's
// Policy policy.Engine field) — that package was not present in the
// retrieved example pack, so its Engine/Input/Decision/CapsState/
// ToolMetadata/RetryHint shapes are reconstructed here from their call
// sites in workflow_policy.go and helpers.go.
package policy

import (
	"context"

	"github.com/flowforge/taskcore/runtime/agent/tools"
)

type (
	// ToolMetadata is the policy-relevant view of one candidate tool.
	ToolMetadata struct {
		ID   tools.Ident
		Tags []string
	}

	// RetryReason classifies why a prior tool call needs retrying,
	// carried forward from an interpreter retry hint.
	RetryReason string

	// RetryHint narrows or redirects the next Decide call after a
	// failed or retried tool call.
	RetryHint struct {
		Tool           tools.Ident
		RestrictToTool bool
		Reason         RetryReason
	}

	// CapsState carries a remaining budget for tool invocations, in the
	// shape of RunPolicy's MaxToolCalls / MaxConsecutiveFailedToolCalls.
	// statemachine.policyBlocks sends a zero CapsState and does not read
	// the Caps a Decision returns.
	CapsState struct {
		MaxToolCalls                  int
		RemainingToolCalls            int
		MaxConsecutiveFailedToolCalls int
		RemainingConsecutiveFailedToolCalls int
	}

	// Input is what a policy Engine is asked to decide over.
	Input struct {
		Tools         []ToolMetadata
		Requested     []tools.Ident
		RemainingCaps CapsState
		RetryHint     *RetryHint
		Labels        map[string]string
	}

	// Decision is a policy Engine's verdict.
	Decision struct {
		AllowedTools []tools.Ident
		Caps         CapsState
		DisableTools bool
		Labels       map[string]string
		Metadata     map[string]any
	}

	// Engine decides which of the candidate tools may run and what caps
	// apply going forward.
	Engine interface {
		Decide(ctx context.Context, input Input) (Decision, error)
	}
)

const (
	RetryReasonToolUnavailable RetryReason = "tool_unavailable"
)
