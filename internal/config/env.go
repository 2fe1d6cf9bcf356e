package config

import (
	"os"
	"regexp"
)

// bracedEnvVar matches ${VAR} references inside YAML string values,
// grounded on the teacher's env.go expandEnvVars (trimmed to the
// braced form only; the spec has no use for the bare $VAR or
// ${VAR:-default} variants the teacher also supports).
var bracedEnvVar = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)

// expandEnvVars walks a decoded YAML document substituting ${VAR}
// references in every string value with the current process
// environment, so a committed config file can defer secrets like
// LLM endpoints to the environment.
func expandEnvVars(data any) any {
	switch v := data.(type) {
	case string:
		return bracedEnvVar.ReplaceAllStringFunc(v, func(match string) string {
			parts := bracedEnvVar.FindStringSubmatch(match)
			if len(parts) != 2 {
				return match
			}
			return os.Getenv(parts[1])
		})
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = expandEnvVars(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = expandEnvVars(val)
		}
		return out
	default:
		return v
	}
}
