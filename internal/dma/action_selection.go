package dma

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ciris-ai/ciris-core/internal/graph"
	"github.com/ciris-ai/ciris-core/internal/llm"
	"github.com/ciris-ai/ciris-core/internal/observability"
	"github.com/ciris-ai/ciris-core/internal/snapshot"
	"github.com/ciris-ai/ciris-core/internal/task"
	"github.com/ciris-ai/ciris-core/internal/thought"
)

// ActionSelectionEvaluator consumes the three concurrent DMA results
// plus the thought, task, and snapshot, and picks one action from the
// profile's permitted set.
type ActionSelectionEvaluator struct {
	LLM     llm.Service
	Metrics *observability.Metrics
	Config  Config
	Profile Profile
}

type actionSelectionWire struct {
	SelectedAction    string            `json:"selected_action"`
	ActionParameters  map[string]any    `json:"action_parameters"`
	Rationale         string            `json:"rationale"`
	Monitoring        map[string]string `json:"monitoring"`
	ContextSummary    string            `json:"context_summary"`
}

// Evaluate runs the action-selection DMA. It never returns an error:
// every failure mode (empty permitted set, unknown action, parameter
// validation, transport exhaustion) resolves to a concrete
// ActionSelectionResult per spec.md §4.5/§8's boundary behaviors.
// failureContext, when non-empty, is appended to the prompt as prior
// conscience feedback — the mechanism internal/conscience's Guard uses
// to drive spec.md §4.6's bounded recursive re-evaluation. Pass "" for
// a normal first-pass call.
func (e *ActionSelectionEvaluator) Evaluate(ctx context.Context, results *EvaluatorResults, th *thought.Thought, tsk *task.Task, snap *snapshot.SystemSnapshot, failureContext string) *ActionSelectionResult {
	if len(e.Profile.PermittedActions) == 0 {
		return &ActionSelectionResult{
			SelectedAction: ActionDefer,
			Parameters:     ActionParameters{Defer: &DeferParams{Reason: "no permitted actions configured for this agent"}},
			Rationale:      "empty permitted-actions set",
		}
	}

	payload, err := json.Marshal(struct {
		Task            string             `json:"task"`
		Thought         string             `json:"thought"`
		Ethical         *EthicalResult     `json:"ethical"`
		CommonSense     *CommonSenseResult `json:"common_sense"`
		Domain          *DomainResult      `json:"domain"`
		Permitted       []ActionType       `json:"permitted_actions"`
		PriorFeedback   string             `json:"prior_feedback,omitempty"`
	}{tsk.Description, th.Content, results.Ethical, results.CommonSense, results.Domain, e.Profile.PermittedActions, failureContext})
	if err != nil {
		return ponderFallback("failed to marshal action-selection context: "+err.Error(), FlagInstructorValidationError)
	}

	messages := []llm.Message{
		{Role: "system", Content: "You select exactly one action for this thought from the permitted_actions list, with action_parameters matching that action's schema. Respond only with the requested JSON object."},
		{Role: "user", Content: string(payload)},
	}

	text, err := structuredCall(ctx, e.LLM, e.Metrics, "dma.action_selection", messages, actionSelectionSchema, e.Config)
	if err != nil {
		return ponderFallback("action-selection call failed: "+err.Error(), FlagInstructorValidationError)
	}

	var w actionSelectionWire
	if err := llm.ExtractJSON(text, &w); err != nil {
		return ponderFallback("action-selection response unparseable: "+err.Error(), FlagInstructorValidationError)
	}

	action := ActionType(w.SelectedAction)
	if !e.Profile.Permits(action) {
		return ponderFallback(fmt.Sprintf("selected action %q is not in the permitted set", w.SelectedAction), FlagInstructorValidationError)
	}

	params, err := validateParameters(action, w.ActionParameters)
	if err != nil {
		return ponderFallback("parameter validation failed: "+err.Error(), FlagInstructorValidationError)
	}

	return &ActionSelectionResult{
		SelectedAction: action,
		Parameters:     params,
		Rationale:      w.Rationale,
		Monitoring:     w.Monitoring,
		ContextSummary: w.ContextSummary,
	}
}

// validateParameters checks raw against the declared schema for
// action, returning the typed ActionParameters or a validation error.
// This is the Go rendering of spec.md §4.5's per-action parameter
// schema (SPEAK -> {content}, TOOL -> {tool_name, arguments}, PONDER ->
// {key_questions}, ...).
func validateParameters(action ActionType, raw map[string]any) (ActionParameters, error) {
	switch action {
	case ActionSpeak:
		content, ok := raw["content"].(string)
		if !ok || content == "" {
			return ActionParameters{}, fmt.Errorf("SPEAK requires non-empty content")
		}
		return ActionParameters{Speak: &SpeakParams{Content: content}}, nil

	case ActionObserve:
		channelID, _ := raw["channel_id"].(string)
		return ActionParameters{Observe: &ObserveParams{ChannelID: channelID}}, nil

	case ActionMemorize:
		desc, ok := raw["knowledge_unit_description"].(string)
		if !ok || desc == "" {
			return ActionParameters{}, fmt.Errorf("MEMORIZE requires non-empty knowledge_unit_description")
		}
		data := map[string]graph.AttrValue{}
		if d, ok := raw["data"].(map[string]any); ok {
			for k, v := range d {
				data[k] = graph.FromAny(v)
			}
		}
		return ActionParameters{Memorize: &MemorizeParams{KnowledgeUnitDescription: desc, Data: data}}, nil

	case ActionRecall:
		query, ok := raw["query"].(string)
		if !ok || query == "" {
			return ActionParameters{}, fmt.Errorf("RECALL requires non-empty query")
		}
		return ActionParameters{Recall: &RecallParams{Query: query}}, nil

	case ActionForget:
		key, ok := raw["key"].(string)
		if !ok || key == "" {
			return ActionParameters{}, fmt.Errorf("FORGET requires non-empty key")
		}
		reason, _ := raw["reason"].(string)
		return ActionParameters{Forget: &ForgetParams{Key: key, Reason: reason}}, nil

	case ActionTool:
		name, ok := raw["tool_name"].(string)
		if !ok || name == "" {
			return ActionParameters{}, fmt.Errorf("TOOL requires non-empty tool_name")
		}
		args := map[string]graph.AttrValue{}
		if a, ok := raw["arguments"].(map[string]any); ok {
			for k, v := range a {
				args[k] = graph.FromAny(v)
			}
		}
		return ActionParameters{Tool: &ToolParams{ToolName: name, Arguments: args}}, nil

	case ActionDefer:
		reason, ok := raw["reason"].(string)
		if !ok || reason == "" {
			return ActionParameters{}, fmt.Errorf("DEFER requires non-empty reason")
		}
		return ActionParameters{Defer: &DeferParams{Reason: reason}}, nil

	case ActionReject:
		reason, ok := raw["reason"].(string)
		if !ok || reason == "" {
			return ActionParameters{}, fmt.Errorf("REJECT requires non-empty reason")
		}
		return ActionParameters{Reject: &RejectParams{Reason: reason}}, nil

	case ActionPonder:
		questionsRaw, ok := raw["key_questions"].([]any)
		if !ok || len(questionsRaw) == 0 {
			return ActionParameters{}, fmt.Errorf("PONDER requires non-empty key_questions")
		}
		questions := make([]string, 0, len(questionsRaw))
		for _, q := range questionsRaw {
			if s, ok := q.(string); ok {
				questions = append(questions, s)
			}
		}
		return ActionParameters{Ponder: &PonderParams{KeyQuestions: questions}}, nil

	case ActionTaskComplete:
		summary, ok := raw["summary"].(string)
		if !ok || summary == "" {
			return ActionParameters{}, fmt.Errorf("TASK_COMPLETE requires non-empty summary")
		}
		return ActionParameters{Complete: &TaskCompleteParams{Summary: summary}}, nil

	default:
		return ActionParameters{}, fmt.Errorf("unknown action %q", action)
	}
}
