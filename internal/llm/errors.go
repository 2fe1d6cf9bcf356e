package llm

import "github.com/ciris-ai/ciris-core/internal/errs"

// TransportError wraps a network-level failure talking to the model
// backend (connection refused, DNS, timeout below the HTTP layer).
type TransportError struct{ Cause error }

func (e *TransportError) Error() string { return "llm transport error: " + e.Cause.Error() }
func (e *TransportError) Unwrap() error { return e.Cause }

// RateLimitError indicates the backend returned a 429 or equivalent.
type RateLimitError struct{ RetryAfterSeconds int }

func (e *RateLimitError) Error() string { return "llm rate limited" }

// StatusError wraps a non-2xx HTTP response from the backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string { return "llm returned non-2xx status" }

// ParseError indicates the response could not be recovered into valid
// JSON by ExtractJSON.
type ParseError struct {
	Raw   string
	Cause error
}

func (e *ParseError) Error() string { return "llm response is not valid json: " + e.Cause.Error() }
func (e *ParseError) Unwrap() error { return e.Cause }

// AsCoreError maps a transport-level error to the shared error kind
// taxonomy, used by callers (internal/dma) that need errs.KindOf to
// decide whether to retry or fall back to PONDER.
func AsCoreError(err error) *errs.Error {
	switch err.(type) {
	case *TransportError, *RateLimitError, *StatusError:
		return errs.Wrap(errs.KindLLMTransport, "llm call failed", err)
	case *ParseError:
		return errs.Wrap(errs.KindLLMStructured, "llm response failed schema validation", err)
	default:
		return errs.Wrap(errs.KindLLMTransport, "llm call failed", err)
	}
}
