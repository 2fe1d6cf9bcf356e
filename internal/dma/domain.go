package dma

import (
	"context"
	"fmt"

	"github.com/ciris-ai/ciris-core/internal/llm"
	"github.com/ciris-ai/ciris-core/internal/observability"
	"github.com/ciris-ai/ciris-core/internal/snapshot"
	"github.com/ciris-ai/ciris-core/internal/task"
	"github.com/ciris-ai/ciris-core/internal/thought"
)

// DomainEvaluator runs the DSDMA domain-specific stage. The domain
// identifier and prompt override come from the agent Profile; absent
// one, BaseDomain applies (spec.md §4.5).
type DomainEvaluator struct {
	LLM     llm.Service
	Metrics *observability.Metrics
	Config  Config
	Profile Profile
}

type domainWire struct {
	Domain            string   `json:"domain"`
	Score             float64  `json:"score"`
	RecommendedAction string   `json:"recommended_action"`
	Flags             []string `json:"flags"`
	Reasoning         string   `json:"reasoning"`
}

func (e *DomainEvaluator) Evaluate(ctx context.Context, th *thought.Thought, tsk *task.Task, snap *snapshot.SystemSnapshot) *DomainResult {
	domainID := e.Profile.DomainID
	if domainID == "" {
		domainID = BaseDomain
	}

	system := fmt.Sprintf("You are the %s-domain evaluation stage of an autonomous agent's decision pipeline. Respond only with the requested JSON object.", domainID)
	if e.Profile.DomainPromptOverride != "" {
		system = e.Profile.DomainPromptOverride
	}

	messages := []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: fmt.Sprintf("Task: %s\nThought: %s", tsk.Description, th.Content)},
	}

	text, err := structuredCall(ctx, e.LLM, e.Metrics, "dma.domain", messages, domainSchema, e.Config)
	if err != nil {
		return &DomainResult{
			Domain:    domainID,
			Score:     0,
			Flags:     []string{FlagInstructorValidationError},
			Reasoning: "domain evaluation failed: " + err.Error(),
		}
	}

	var w domainWire
	if err := llm.ExtractJSON(text, &w); err != nil {
		return &DomainResult{
			Domain:    domainID,
			Score:     0,
			Flags:     []string{FlagInstructorValidationError},
			Reasoning: "domain response unparseable: " + err.Error(),
		}
	}
	if w.Domain == "" {
		w.Domain = domainID
	}

	return &DomainResult{Domain: w.Domain, Score: w.Score, RecommendedAction: w.RecommendedAction, Flags: w.Flags, Reasoning: w.Reasoning}
}
