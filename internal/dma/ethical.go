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

// EthicalEvaluator runs the PDMA ethical-reasoning stage.
type EthicalEvaluator struct {
	LLM     llm.Service
	Metrics *observability.Metrics
	Config  Config
}

type ethicalWire struct {
	Context        string            `json:"context"`
	AlignmentCheck string            `json:"alignment_check"`
	Conflicts      []string          `json:"conflicts"`
	Resolution     string            `json:"resolution"`
	Decision       string            `json:"decision"`
	Monitoring     map[string]string `json:"monitoring"`
}

// Evaluate runs the ethical DMA. On exhausted retry budget it returns a
// fallback result flagged with FlagInstructorValidationError rather
// than an error, so the pipeline can still reach action selection with
// a PONDER-leaning signal (spec.md §4.5's failure policy).
func (e *EthicalEvaluator) Evaluate(ctx context.Context, th *thought.Thought, tsk *task.Task, snap *snapshot.SystemSnapshot) *EthicalResult {
	messages := []llm.Message{
		{Role: "system", Content: "You are the ethical reasoning stage of an autonomous agent's decision pipeline. Evaluate the thought for ethical alignment and respond only with the requested JSON object."},
		{Role: "user", Content: fmt.Sprintf("Task: %s\nThought: %s\nChannel: %s", tsk.Description, th.Content, snap.Channel.ChannelID)},
	}

	text, err := structuredCall(ctx, e.LLM, e.Metrics, "dma.ethical", messages, ethicalSchema, e.Config)
	if err != nil {
		return &EthicalResult{
			Context:        "ethical evaluation failed",
			AlignmentCheck: "unresolved",
			Decision:       "defer_to_ponder",
			Monitoring:     map[string]string{"flag": FlagInstructorValidationError, "error": err.Error()},
		}
	}

	var w ethicalWire
	if err := llm.ExtractJSON(text, &w); err != nil {
		return &EthicalResult{
			Context:        "ethical response unparseable",
			AlignmentCheck: "unresolved",
			Decision:       "defer_to_ponder",
			Monitoring:     map[string]string{"flag": FlagInstructorValidationError, "error": err.Error()},
		}
	}

	return &EthicalResult{
		Context:        w.Context,
		AlignmentCheck: w.AlignmentCheck,
		Conflicts:      w.Conflicts,
		Resolution:     w.Resolution,
		Decision:       w.Decision,
		Monitoring:     w.Monitoring,
	}
}
