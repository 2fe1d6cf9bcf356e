// Package httpllm implements llm.Service against an OpenAI-compatible
// chat completions endpoint, grounded on the teacher's OpenAIProvider
// (pkg/llms/openai.go): same internal/httpclient transport, same
// span-wrapped request/response shape, same "request JSON output via a
// schema, let the caller extract it" contract — simplified to the
// single chat/completions request style instead of the teacher's
// streaming Responses API, since spec.md's DMA pipeline only needs one
// blocking structured call per evaluation.
package httpllm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ciris-ai/ciris-core/internal/httpclient"
	"github.com/ciris-ai/ciris-core/internal/llm"
)

const tracerName = "ciris.llm"

// Config configures one backend endpoint.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	// Structured reports whether the backend honors response_format's
	// json_schema strict mode. When false, callers fall back to
	// llm.ExtractJSON's best-effort recovery.
	Structured bool
}

// Client is an llm.Service backed by one HTTP endpoint.
type Client struct {
	cfg  Config
	http *httpclient.Client
}

var _ llm.Service = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	hc := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(cfg.RetryDelay),
		httpclient.WithHeaderParser(httpclient.ParseOpenAIRateLimitHeaders),
	)
	return &Client{cfg: cfg, http: hc}
}

func (c *Client) SupportsStructuredOutput() bool { return c.cfg.Structured }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// GenerateRaw issues a plain chat completion with no response-format
// constraint, the Go rendering of spec.md §6's call_llm_raw.
func (c *Client) GenerateRaw(ctx context.Context, messages []llm.Message, maxTokens int, temperature float64) (string, llm.Usage, error) {
	return c.call(ctx, "llm.generate_raw", messages, nil)
}

func (c *Client) GenerateStructured(ctx context.Context, messages []llm.Message, cfg llm.StructuredConfig) (string, llm.Usage, error) {
	var format *responseFormat
	if c.cfg.Structured && cfg.Schema != nil {
		format = &responseFormat{
			Type:       "json_schema",
			JSONSchema: jsonSchema{Name: "response", Strict: true, Schema: cfg.Schema},
		}
	}
	return c.call(ctx, "llm.generate_structured", messages, format)
}

func (c *Client) call(ctx context.Context, spanName string, messages []llm.Message, format *responseFormat) (string, llm.Usage, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("llm.model", c.cfg.Model),
		attribute.Bool("llm.structured", format != nil),
	))
	defer span.End()

	req := chatRequest{Model: c.cfg.Model, ResponseFormat: format}
	for _, m := range messages {
		req.Messages = append(req.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fail(span, &llm.TransportError{Cause: err})
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fail(span, &llm.TransportError{Cause: err})
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	// httpclient.Client.Do returns a non-nil err alongside a non-nil
	// resp for both in-flight retryable statuses and the final
	// *httpclient.RetryableError once retries are exhausted; only a
	// nil resp means the request never reached the server.
	resp, doErr := c.http.Do(httpReq)
	if resp == nil {
		return fail(span, &llm.TransportError{Cause: doErr})
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(span, &llm.TransportError{Cause: err})
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		info := httpclient.ParseOpenAIRateLimitHeaders(resp.Header)
		return fail(span, &llm.RateLimitError{RetryAfterSeconds: int(info.RetryAfter.Seconds())})
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fail(span, &llm.StatusError{StatusCode: resp.StatusCode, Body: string(raw)})
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fail(span, &llm.TransportError{Cause: fmt.Errorf("decode chat response: %w", err)})
	}
	if len(parsed.Choices) == 0 {
		return fail(span, &llm.TransportError{Cause: fmt.Errorf("chat response has no choices")})
	}

	usage := llm.Usage{PromptTokens: parsed.Usage.PromptTokens, CompletionTokens: parsed.Usage.CompletionTokens}
	span.SetAttributes(
		attribute.Int("llm.tokens_prompt", usage.PromptTokens),
		attribute.Int("llm.tokens_completion", usage.CompletionTokens),
	)
	span.SetStatus(codes.Ok, "")
	return parsed.Choices[0].Message.Content, usage, nil
}

func fail(span trace.Span, err error) (string, llm.Usage, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return "", llm.Usage{}, err
}
