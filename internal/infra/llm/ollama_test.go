// Tests for OllamaProvider against an httptest stand-in for the Ollama API.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOllama answers /api/chat with reply and records the last request body.
func fakeOllama(t *testing.T, reply ollamaChatResponse, got *ollamaChatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/chat":
			if got != nil {
				require.NoError(t, json.NewDecoder(r.Body).Decode(got))
			}
			w.Header().Set(headerContentType, mimeJSON)
			json.NewEncoder(w).Encode(reply) //nolint:errcheck
		case r.Method == http.MethodGet && r.URL.Path == "/api/tags":
			w.Write([]byte(`{"models":[]}`)) //nolint:errcheck
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaProvider_ChatCompletion(t *testing.T) {
	t.Parallel()

	var got ollamaChatRequest
	srv := fakeOllama(t, ollamaChatResponse{
		Message:         ollamaChatMessage{Role: "assistant", Content: "Étape 1: isoler x\nRéponse: x = 2"},
		DoneReason:      "stop",
		Done:            true,
		PromptEvalCount: 12,
		EvalCount:       30,
	}, &got)

	p := NewOllamaProvider(srv.URL, "qwen2-math:7b")
	resp, err := p.ChatCompletion(context.Background(), ChatRequest{
		Messages:    []Message{{Role: "user", Content: "Résolvez: 2x = 4"}},
		Temperature: 0.7,
		MaxTokens:   500,
	})
	require.NoError(t, err)

	assert.Equal(t, "Étape 1: isoler x\nRéponse: x = 2", resp.Content)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, "qwen2-math:7b", resp.Model, "model falls back to the requested one when the reply omits it")
	assert.Equal(t, 42, resp.Tokens)

	assert.Equal(t, "qwen2-math:7b", got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Résolvez: 2x = 4", got.Messages[0].Content)
	assert.InDelta(t, 0.7, got.Options["temperature"], 1e-6)
	assert.EqualValues(t, 500, got.Options["num_predict"])
}

func TestOllamaProvider_ChatCompletion_ModelOverride(t *testing.T) {
	t.Parallel()

	var got ollamaChatRequest
	srv := fakeOllama(t, ollamaChatResponse{Model: "llama3.2:1b", Message: ollamaChatMessage{Content: "x = 2"}}, &got)

	resp, err := NewOllamaProvider(srv.URL, "llama3.2:3b").ChatCompletion(context.Background(), ChatRequest{Model: "llama3.2:1b"})
	require.NoError(t, err)
	assert.Equal(t, "llama3.2:1b", got.Model)
	assert.Equal(t, "llama3.2:1b", resp.Model)
	assert.Nil(t, got.Options)
}

func TestOllamaProvider_ChatCompletion_Errors(t *testing.T) {
	t.Parallel()

	busy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "loading model", http.StatusServiceUnavailable)
	}))
	defer busy.Close()

	_, err := NewOllamaProvider(busy.URL, "m").ChatCompletion(context.Background(), ChatRequest{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.Equal(t, "ollama", se.Provider)

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not json")) //nolint:errcheck
	}))
	defer garbage.Close()
	_, err = NewOllamaProvider(garbage.URL, "m").ChatCompletion(context.Background(), ChatRequest{})
	assert.ErrorContains(t, err, "decode chat response")

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = NewOllamaProvider(slow.URL, "m").ChatCompletion(ctx, ChatRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOllamaProvider_HealthCheck(t *testing.T) {
	t.Parallel()

	srv := fakeOllama(t, ollamaChatResponse{}, nil)
	assert.NoError(t, NewOllamaProvider(srv.URL, "m").HealthCheck(context.Background()))

	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	assert.Error(t, NewOllamaProvider(down.URL, "m").HealthCheck(context.Background()))
}

func TestOllamaProvider_ModelInfo(t *testing.T) {
	t.Parallel()

	meta := NewOllamaProvider("http://localhost:11434", "llama3.2:3b").ModelInfo()
	assert.Equal(t, "llama3.2:3b", meta.ID)
	assert.Equal(t, "ollama", meta.Provider)
}

func TestBuildChatOptions(t *testing.T) {
	t.Parallel()

	assert.Nil(t, buildChatOptions(ChatRequest{}))
	assert.Equal(t, map[string]any{"temperature": float32(0.2)}, buildChatOptions(ChatRequest{Temperature: 0.2}))
	assert.Equal(t, map[string]any{"num_predict": 64}, buildChatOptions(ChatRequest{MaxTokens: 64}))
}
