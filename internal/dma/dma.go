// Package dma implements the Decision-Making Algorithm pipeline (C7):
// three evaluators run concurrently per thought — ethical, common-sense,
// domain-specific — followed by action selection, which consumes their
// outputs together with the thought, task, and SystemSnapshot. Grounded
// on the teacher's workflowagent.ParallelAgent (pkg/agent/workflowagent/
// parallel.go) for the concurrent-evaluator shape, generalized from
// sub-agent fan-out onto three fixed, typed evaluators since the DMA
// set is closed (spec.md §4.5), not user-composed.
package dma

import "github.com/ciris-ai/ciris-core/internal/graph"

// ActionType is one of the permitted-actions superset spec.md §4.5
// names. A Profile restricts which subset an agent may actually select.
type ActionType string

const (
	ActionSpeak        ActionType = "SPEAK"
	ActionObserve      ActionType = "OBSERVE"
	ActionMemorize     ActionType = "MEMORIZE"
	ActionRecall       ActionType = "RECALL"
	ActionForget       ActionType = "FORGET"
	ActionTool         ActionType = "TOOL"
	ActionDefer        ActionType = "DEFER"
	ActionReject       ActionType = "REJECT"
	ActionPonder       ActionType = "PONDER"
	ActionTaskComplete ActionType = "TASK_COMPLETE"
)

// AllActions is the full permitted-actions superset, in the order
// spec.md §4.5 lists them.
var AllActions = []ActionType{
	ActionSpeak, ActionObserve, ActionMemorize, ActionRecall, ActionForget,
	ActionTool, ActionDefer, ActionReject, ActionPonder, ActionTaskComplete,
}

// FlagInstructorValidationError is the well-known flags entry an
// evaluator attaches to its fallback result when an LLM call exhausted
// its retry budget (spec.md §4.5's failure policy).
const FlagInstructorValidationError = "Instructor_ValidationError"

// Profile carries the agent-profile inputs the domain DMA and action
// selector read: the domain identifier and prompt override the domain
// evaluator uses, and the permitted-actions subset action selection
// must restrict to. Absent a profile, BaseDomain and AllActions apply.
type Profile struct {
	DomainID            string
	DomainPromptOverride string
	PermittedActions    []ActionType
}

// BaseDomain is used when no agent profile supplies a domain identifier.
const BaseDomain = "general"

// Permits reports whether action is in the profile's permitted set. A
// zero-value Profile (no PermittedActions) permits nothing, matching
// spec.md §8's "empty permitted-actions set -> action selection always
// yields DEFER" boundary behavior.
func (p Profile) Permits(action ActionType) bool {
	for _, a := range p.PermittedActions {
		if a == action {
			return true
		}
	}
	return false
}

// EthicalResult is the PDMA ethical-reasoning artifact.
type EthicalResult struct {
	Context        string
	AlignmentCheck string
	Conflicts      []string
	Resolution     string
	Decision       string
	Monitoring     map[string]string
}

// CommonSenseResult is the CSDMA artifact.
type CommonSenseResult struct {
	PlausibilityScore float64
	Flags             []string
	Reasoning         string
}

// DomainResult is the DSDMA artifact.
type DomainResult struct {
	Domain            string
	Score             float64
	RecommendedAction string
	Flags             []string
	Reasoning         string
}

// EvaluatorResults aggregates the three concurrent evaluators' outputs,
// the input to action selection.
type EvaluatorResults struct {
	Ethical     *EthicalResult
	CommonSense *CommonSenseResult
	Domain      *DomainResult
}

// ActionParameters is the sum type spec.md DESIGN NOTES §9 calls for in
// place of a dynamic parameter union: exactly one field set, selected
// by the enclosing ActionSelectionResult.SelectedAction.
type ActionParameters struct {
	Speak    *SpeakParams
	Observe  *ObserveParams
	Memorize *MemorizeParams
	Recall   *RecallParams
	Forget   *ForgetParams
	Tool     *ToolParams
	Defer    *DeferParams
	Reject   *RejectParams
	Ponder   *PonderParams
	Complete *TaskCompleteParams
}

type SpeakParams struct{ Content string }
type ObserveParams struct{ ChannelID string }
type MemorizeParams struct {
	KnowledgeUnitDescription string
	Data                     map[string]graph.AttrValue
}
type RecallParams struct{ Query string }
type ForgetParams struct{ Key, Reason string }
type ToolParams struct {
	ToolName  string
	Arguments map[string]graph.AttrValue
}
type DeferParams struct{ Reason string }
type RejectParams struct{ Reason string }
type PonderParams struct{ KeyQuestions []string }
type TaskCompleteParams struct{ Summary string }

// ActionSelectionResult is the action-selection evaluator's output.
type ActionSelectionResult struct {
	SelectedAction ActionType
	Parameters     ActionParameters
	Rationale      string
	Monitoring     map[string]string
	ContextSummary string
	Flags          []string
}

// HasFlag reports whether result carries the named well-known flag.
func (r *ActionSelectionResult) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// ponderFallback builds the PONDER result the action selector and the
// per-DMA evaluators fall back to on validation or transport failure,
// carrying the problem in KeyQuestions per spec.md §4.5/§4.6.
func ponderFallback(reason string, flags ...string) *ActionSelectionResult {
	return &ActionSelectionResult{
		SelectedAction: ActionPonder,
		Parameters:     ActionParameters{Ponder: &PonderParams{KeyQuestions: []string{reason}}},
		Rationale:      reason,
		Flags:          flags,
	}
}
