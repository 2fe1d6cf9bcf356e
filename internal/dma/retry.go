package dma

import (
	"context"
	"time"

	"github.com/ciris-ai/ciris-core/internal/errs"
	"github.com/ciris-ai/ciris-core/internal/llm"
	"github.com/ciris-ai/ciris-core/internal/observability"
)

// Config bounds one evaluator's structured LLM call: retried up to
// RetryLimit times (default 3, DMA_RETRY_LIMIT), each attempt bounded
// by Timeout (default 30s, DMA_TIMEOUT_SECONDS).
type Config struct {
	RetryLimit int
	Timeout    time.Duration
}

// DefaultConfig returns spec.md §4.5's defaults.
func DefaultConfig() Config {
	return Config{RetryLimit: 3, Timeout: 30 * time.Second}
}

func (c Config) withDefaults() Config {
	if c.RetryLimit <= 0 {
		c.RetryLimit = DefaultConfig().RetryLimit
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultConfig().Timeout
	}
	return c
}

// structuredCall issues one structured LLM call, retrying transport
// failures up to cfg.RetryLimit times with a per-attempt timeout.
// Returns the raw text on success, or the last error once the retry
// budget (or the caller's context) is exhausted — the caller maps that
// into a fallback result (spec.md §4.5's failure policy).
func structuredCall(ctx context.Context, svc llm.Service, metrics *observability.Metrics, label string, messages []llm.Message, schema map[string]any, cfg Config) (string, error) {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 0; attempt <= cfg.RetryLimit; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		start := time.Now()
		text, usage, err := svc.GenerateStructured(callCtx, messages, llm.StructuredConfig{Schema: schema})
		cancel()

		if err == nil {
			metrics.RecordLLMCall(label, time.Since(start).Seconds(), usage.PromptTokens, usage.CompletionTokens)
			return text, nil
		}

		lastErr = err
		kind := llm.AsCoreError(err).Kind
		metrics.RecordLLMError(label, string(kind))

		// Only transport-class failures (connection, rate limit,
		// status) are worth retrying; a structured/parse failure means
		// the model answered but the answer doesn't fit the schema,
		// which another attempt at the same prompt is unlikely to fix.
		if kind != errs.KindLLMTransport {
			break
		}
	}
	return "", lastErr
}
