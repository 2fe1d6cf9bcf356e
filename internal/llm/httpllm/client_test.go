package httpllm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciris-ai/ciris-core/internal/llm"
)

func TestGenerateStructuredReturnsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.NotNil(t, req.ResponseFormat)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: `{"ok":true}`}}},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test-model", Structured: true})
	text, usage, err := c.GenerateStructured(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, llm.StructuredConfig{Schema: map[string]any{"type": "object"}})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, text)
	assert.Equal(t, 0, usage.PromptTokens)
}

func TestGenerateStructuredMapsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test-model"})
	_, _, err := c.GenerateStructured(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, llm.StructuredConfig{})
	require.Error(t, err)
	var statusErr *llm.StatusError
	assert.ErrorAs(t, err, &statusErr)
}

func TestGenerateRawReturnsContentWithoutResponseFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Nil(t, req.ResponseFormat)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: "plain text reply"}}},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test-model", Structured: true})
	text, _, err := c.GenerateRaw(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, 256, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "plain text reply", text)
}

func TestGenerateStructuredMapsRateLimitError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test-model", MaxRetries: 0, RetryDelay: time.Millisecond})
	_, _, err := c.GenerateStructured(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, llm.StructuredConfig{})
	require.Error(t, err)
	var rateErr *llm.RateLimitError
	assert.ErrorAs(t, err, &rateErr)
}
