// Package secrets implements the secrets filter (C4): detection and
// redaction of sensitive substrings before they reach an LLM, plus a
// vault for later retrieval by an authorized caller.
package secrets

import "regexp"

// Sensitivity classifies how dangerous a detected secret is, grounded
// on original_source's SensitivityLevel (schemas/config_schemas_v1.py).
type Sensitivity string

const (
	SensitivityLow      Sensitivity = "LOW"
	SensitivityMedium   Sensitivity = "MEDIUM"
	SensitivityHigh     Sensitivity = "HIGH"
	SensitivityCritical Sensitivity = "CRITICAL"
)

// Pattern is one named detector. Regex is compiled eagerly so a
// malformed custom pattern fails at registration time, not at scan
// time.
type Pattern struct {
	Name        string
	Regex       *regexp.Regexp
	Description string
	Sensitivity Sensitivity
	ContextHint string
	Enabled     bool
}

// NewPattern compiles expr and returns a Pattern, or an error if the
// regex is invalid.
func NewPattern(name, expr, description string, sensitivity Sensitivity, contextHint string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{
		Name:        name,
		Regex:       re,
		Description: description,
		Sensitivity: sensitivity,
		ContextHint: contextHint,
		Enabled:     true,
	}, nil
}

func mustPattern(name, expr, description string, sensitivity Sensitivity, contextHint string) Pattern {
	p, err := NewPattern(name, expr, description, sensitivity, contextHint)
	if err != nil {
		panic(err)
	}
	return p
}

// DefaultPatterns mirrors the builtin detector set from
// original_source's SecretsDetectionConfig.default_patterns
// (tests/ciris_engine/schemas/test_secrets_detection_config.py), used
// as the starting detector list unless a caller supplies its own.
func DefaultPatterns() []Pattern {
	return []Pattern{
		mustPattern("api_keys", `(?i)\b(api[_-]?key|apikey)["':= ]{1,3}[a-zA-Z0-9_\-]{16,64}\b`,
			"API Key", SensitivityHigh, "Generic API key assignment"),
		mustPattern("bearer_tokens", `(?i)\bbearer\s+[a-zA-Z0-9._\-]{16,}\b`,
			"Bearer Token", SensitivityHigh, "HTTP Authorization bearer token"),
		mustPattern("passwords", `(?i)\b(password|passwd|pwd)["':= ]{1,3}\S{6,}\b`,
			"Password", SensitivityCritical, "Plaintext password assignment"),
		mustPattern("urls_with_auth", `[a-zA-Z][a-zA-Z0-9+.\-]*://[^\s:@/]+:[^\s:@/]+@[^\s/]+`,
			"URL with embedded credentials", SensitivityHigh, "URL userinfo component"),
		mustPattern("private_keys", `-----BEGIN [A-Z ]*PRIVATE KEY-----`,
			"Private Key", SensitivityCritical, "PEM private key block"),
		mustPattern("credit_cards", `\b(?:\d[ -]*?){13,16}\b`,
			"Credit Card Number", SensitivityCritical, "Payment card number"),
		mustPattern("social_security", `\b\d{3}-\d{2}-\d{4}\b`,
			"Social Security Number", SensitivityCritical, "US SSN"),
		mustPattern("aws_access_key", `\bAKIA[0-9A-Z]{16}\b`,
			"AWS Access Key ID", SensitivityHigh, "AWS access key"),
		mustPattern("aws_secret_key", `(?i)aws_secret_access_key["':= ]{1,3}[a-zA-Z0-9/+=]{40}`,
			"AWS Secret Access Key", SensitivityCritical, "AWS secret key"),
		mustPattern("github_token", `\bgh[pousr]_[a-zA-Z0-9]{36,255}\b`,
			"GitHub Token", SensitivityHigh, "GitHub personal access / app token"),
		mustPattern("slack_token", `\bxox[baprs]-[a-zA-Z0-9-]{10,72}\b`,
			"Slack Token", SensitivityHigh, "Slack bot/user/app token"),
		mustPattern("discord_token", `\b[MN][a-zA-Z0-9_-]{23,25}\.[a-zA-Z0-9_-]{6}\.[a-zA-Z0-9_-]{27,}\b`,
			"Discord Token", SensitivityHigh, "Discord bot token"),
	}
}
