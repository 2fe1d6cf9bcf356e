// Package llm defines the LLM service contract the DMA pipeline (C7)
// depends on, grounded on the teacher's llms.LLMService
// (pkg/llms/registry.go): a GenerateStructured call taking a JSON
// schema and returning raw text for the caller to decode, plus a
// capability probe.
package llm

import "context"

// Message is one turn in the prompt sent to the model.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// StructuredConfig requests the model constrain its output to a JSON
// schema, mirroring the teacher's StructuredOutputConfig{Format,Schema}.
type StructuredConfig struct {
	Schema map[string]any
}

// Usage reports token accounting for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Service is the contract every DMA evaluator calls through. Thread
// safe; a single Service may be shared across concurrently evaluating
// DMAs (spec.md §4.5: "DMA evaluators run concurrently"). Mirrors
// spec.md §6's call_llm_raw/call_llm_structured pair.
type Service interface {
	// GenerateRaw issues messages and returns free-form text, for
	// callers that don't need a schema-constrained response.
	GenerateRaw(ctx context.Context, messages []Message, maxTokens int, temperature float64) (text string, usage Usage, err error)

	// GenerateStructured issues messages and asks for output
	// constrained by cfg.Schema. Returns the raw (possibly
	// markdown-fenced) text; callers use ExtractJSON to recover the
	// object.
	GenerateStructured(ctx context.Context, messages []Message, cfg StructuredConfig) (text string, usage Usage, err error)

	// SupportsStructuredOutput reports whether this backend can
	// reliably constrain output to cfg.Schema, mirroring the
	// teacher's per-provider SupportsStructuredOutput().
	SupportsStructuredOutput() bool
}
