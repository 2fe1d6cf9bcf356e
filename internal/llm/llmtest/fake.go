// Package llmtest provides a scripted llm.Service double for tests
// that exercise the DMA pipeline without a network call, following the
// queued-response test-double idiom used throughout the example pack's
// *_mock.go files (e.g. itsneelabh-gomind/ui/session_mock.go).
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ciris-ai/ciris-core/internal/llm"
)

// Response is one scripted reply, consumed in order.
type Response struct {
	Text string
	Err  error
}

// Fake is an llm.Service that replays a fixed queue of responses and
// records every call it received, for assertions on prompt content.
type Fake struct {
	mu          sync.Mutex
	queue       []Response
	calls       []Call
	structured  bool
	defaultText string
}

type Call struct {
	Messages []llm.Message
	Cfg      llm.StructuredConfig
}

var _ llm.Service = (*Fake)(nil)

// New builds a Fake that supports structured output and returns
// defaultText when the queue is empty.
func New(defaultText string) *Fake {
	return &Fake{structured: true, defaultText: defaultText}
}

func (f *Fake) SupportsStructuredOutput() bool { return f.structured }

// Enqueue appends scripted responses, returned in FIFO order.
func (f *Fake) Enqueue(resp ...Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, resp...)
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func (f *Fake) GenerateStructured(_ context.Context, messages []llm.Message, cfg llm.StructuredConfig) (string, llm.Usage, error) {
	return f.next(Call{Messages: messages, Cfg: cfg})
}

// GenerateRaw draws from the same scripted queue as GenerateStructured,
// since tests script both through the same Fake regardless of which
// half of the contract the code under test calls.
func (f *Fake) GenerateRaw(_ context.Context, messages []llm.Message, maxTokens int, temperature float64) (string, llm.Usage, error) {
	return f.next(Call{Messages: messages})
}

func (f *Fake) next(call Call) (string, llm.Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, call)

	if len(f.queue) == 0 {
		if f.defaultText == "" {
			return "", llm.Usage{}, fmt.Errorf("llmtest: response queue empty and no default set")
		}
		return f.defaultText, llm.Usage{PromptTokens: 1, CompletionTokens: 1}, nil
	}

	next := f.queue[0]
	f.queue = f.queue[1:]
	if next.Err != nil {
		return "", llm.Usage{}, next.Err
	}
	return next.Text, llm.Usage{PromptTokens: 1, CompletionTokens: 1}, nil
}
