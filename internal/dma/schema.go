package dma

// JSON Schemas passed to llm.StructuredConfig for each evaluator's
// fixed response shape (spec.md §4.5). Kept minimal and flat: the DMA
// pipeline only needs the schema to constrain the model's output, the
// actual decoding happens against matching Go wire structs in each
// evaluator file.

var ethicalSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"context":         map[string]any{"type": "string"},
		"alignment_check": map[string]any{"type": "string"},
		"conflicts":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"resolution":      map[string]any{"type": "string"},
		"decision":        map[string]any{"type": "string"},
		"monitoring":      map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}},
	},
	"required": []string{"context", "alignment_check", "decision"},
}

var commonSenseSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"plausibility_score": map[string]any{"type": "number"},
		"flags":              map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"reasoning":          map[string]any{"type": "string"},
	},
	"required": []string{"plausibility_score", "reasoning"},
}

var domainSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"domain":             map[string]any{"type": "string"},
		"score":              map[string]any{"type": "number"},
		"recommended_action": map[string]any{"type": "string"},
		"flags":              map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"reasoning":          map[string]any{"type": "string"},
	},
	"required": []string{"domain", "score", "reasoning"},
}

var actionSelectionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"selected_action": map[string]any{"type": "string"},
		"action_parameters": map[string]any{"type": "object", "additionalProperties": true},
		"rationale":         map[string]any{"type": "string"},
		"monitoring":        map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}},
		"context_summary":   map[string]any{"type": "string"},
	},
	"required": []string{"selected_action", "action_parameters", "rationale"},
}
