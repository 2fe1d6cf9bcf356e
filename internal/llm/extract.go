package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ExtractJSON recovers a JSON object from a raw model response: it
// strips a markdown code fence if present, falls back to the first
// `{...}` span in the text, and as a last resort repairs
// single-quoted keys/strings into double quotes before parsing. This
// mirrors spec.md §6's "separate JSON-extraction helper" contract:
// structured calls must validate against the declared schema or
// return a typed ParseError.
func ExtractJSON(raw string, target any) error {
	candidates := []string{raw}

	if m := fencedBlock.FindStringSubmatch(raw); m != nil {
		candidates = append([]string{m[1]}, candidates...)
	}

	if start, end := strings.IndexByte(raw, '{'), strings.LastIndexByte(raw, '}'); start >= 0 && end > start {
		candidates = append(candidates, raw[start:end+1])
	}

	var lastErr error
	for _, c := range candidates {
		if err := json.Unmarshal([]byte(c), target); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	repaired := repairSingleQuotes(candidates[len(candidates)-1])
	if err := json.Unmarshal([]byte(repaired), target); err == nil {
		return nil
	}

	return &ParseError{Raw: raw, Cause: lastErr}
}

// repairSingleQuotes turns a Python-dict-literal-style string (single
// quotes around keys/values) into valid JSON. It is intentionally
// naive: it only swaps quote characters, it does not handle escaped
// quotes inside values, matching the "best effort recovery" framing
// of spec.md §6 rather than a full parser.
func repairSingleQuotes(s string) string {
	if !strings.Contains(s, "'") || strings.Contains(s, `"`) {
		return s
	}
	return strings.ReplaceAll(s, "'", `"`)
}
