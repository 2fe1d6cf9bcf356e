package secrets

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Reference is what a caller keeps after a secret has been detected
// and replaced: enough to retrieve the original later, never the
// plaintext itself.
type Reference struct {
	UUID        string
	PatternName string
	Sensitivity Sensitivity
	ContextHint string
	CreatedAt   time.Time
}

// Filter holds the effective detector set (defaults plus custom,
// minus disabled) and performs detect/redact passes over text,
// grounded on original_source's SecretsDetectionConfig semantics
// (default_patterns + custom_patterns - disabled_patterns).
type Filter struct {
	mu       sync.RWMutex
	defaults []Pattern
	custom   []Pattern
	disabled map[string]bool
	version  int
	vault    Vault
}

// NewFilter builds a Filter backed by DefaultPatterns() and the given
// vault (for storing detected plaintext for later retrieval).
func NewFilter(vault Vault) *Filter {
	return &Filter{
		defaults: DefaultPatterns(),
		disabled: map[string]bool{},
		version:  1,
		vault:    vault,
	}
}

// AddCustomPattern registers an agent-supplied detector.
func (f *Filter) AddCustomPattern(p Pattern) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.custom = append(f.custom, p)
	f.version++
}

// DisablePattern removes a named default pattern from the effective
// set without deleting it from defaults (it can be re-enabled later).
func (f *Filter) DisablePattern(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disabled[name] = true
	f.version++
}

// Version returns the current filter configuration version, surfaced
// in SystemSnapshot's secrets_filter_version field.
func (f *Filter) Version() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.version
}

func (f *Filter) effectivePatterns() []Pattern {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Pattern, 0, len(f.defaults)+len(f.custom))
	for _, p := range f.defaults {
		if p.Enabled && !f.disabled[p.Name] {
			out = append(out, p)
		}
	}
	for _, p := range f.custom {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Redact scans text against the effective pattern set, replaces each
// match with a stable placeholder of the form
// `{SECRET:<pattern>:<uuid>}`, stores the plaintext in the vault, and
// returns the redacted text plus the references created. Safe to call
// on text with no matches (returns it unchanged, no references).
func (f *Filter) Redact(text string) (string, []Reference, error) {
	var refs []Reference
	redacted := text
	for _, p := range f.effectivePatterns() {
		redacted = p.Regex.ReplaceAllStringFunc(redacted, func(match string) string {
			id := uuid.NewString()
			ref := Reference{
				UUID:        id,
				PatternName: p.Name,
				Sensitivity: p.Sensitivity,
				ContextHint: p.ContextHint,
				CreatedAt:   time.Now(),
			}
			if f.vault != nil {
				if err := f.vault.Store(id, match, ref); err != nil {
					return match
				}
			}
			refs = append(refs, ref)
			return fmt.Sprintf("{SECRET:%s:%s}", p.Name, id)
		})
	}
	return redacted, refs, nil
}

// Detect reports the references that would be produced by Redact
// without mutating text or storing anything, used by conscience
// pre-flight checks that only need to know whether secrets are
// present.
func (f *Filter) Detect(text string) []Reference {
	var refs []Reference
	for _, p := range f.effectivePatterns() {
		for _, match := range p.Regex.FindAllString(text, -1) {
			refs = append(refs, Reference{
				PatternName: p.Name,
				Sensitivity: p.Sensitivity,
				ContextHint: p.ContextHint,
			})
			_ = match
		}
	}
	return refs
}
