package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tracking-support-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaProvider_Chat(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{Message: ollamaMessage{Role: "assistant", Content: "On it."}, Done: true})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL+"/", "llama3")
	out, err := p.Chat(context.Background(), []llm.Message{
		{Role: "system", Content: "be brief"},
		{Role: "model", Content: "hi"},
	}, llm.WithMaxTokens(80))

	require.NoError(t, err)
	assert.Equal(t, "On it.", out)
	assert.Equal(t, "llama3", got.Model)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	assert.Equal(t, 80, got.Options.NumPredict)
}

func TestOllamaProvider_EmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{Done: true})
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "m").Generate(context.Background(), "x")
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}

func TestOllamaProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "m").Generate(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
