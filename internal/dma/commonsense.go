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

// CommonSenseEvaluator runs the CSDMA plausibility-check stage.
type CommonSenseEvaluator struct {
	LLM     llm.Service
	Metrics *observability.Metrics
	Config  Config
}

type commonSenseWire struct {
	PlausibilityScore float64  `json:"plausibility_score"`
	Flags             []string `json:"flags"`
	Reasoning         string   `json:"reasoning"`
}

func (e *CommonSenseEvaluator) Evaluate(ctx context.Context, th *thought.Thought, tsk *task.Task, snap *snapshot.SystemSnapshot) *CommonSenseResult {
	messages := []llm.Message{
		{Role: "system", Content: "You are the common-sense plausibility stage of an autonomous agent's decision pipeline. Judge whether the thought's premise is plausible given the task, and respond only with the requested JSON object."},
		{Role: "user", Content: fmt.Sprintf("Task: %s\nThought: %s", tsk.Description, th.Content)},
	}

	text, err := structuredCall(ctx, e.LLM, e.Metrics, "dma.commonsense", messages, commonSenseSchema, e.Config)
	if err != nil {
		return &CommonSenseResult{
			PlausibilityScore: 0,
			Flags:             []string{FlagInstructorValidationError},
			Reasoning:         "common-sense evaluation failed: " + err.Error(),
		}
	}

	var w commonSenseWire
	if err := llm.ExtractJSON(text, &w); err != nil {
		return &CommonSenseResult{
			PlausibilityScore: 0,
			Flags:             []string{FlagInstructorValidationError},
			Reasoning:         "common-sense response unparseable: " + err.Error(),
		}
	}

	return &CommonSenseResult{PlausibilityScore: w.PlausibilityScore, Flags: w.Flags, Reasoning: w.Reasoning}
}
