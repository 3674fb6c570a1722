package ollama

import (
	"context"
	"os"
	"testing"
	"time"

	"tracking-support-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a local Ollama only when OLLAMA_BASE_URL is set
func TestOllamaProvider_Live(t *testing.T) {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	if baseURL == "" {
		t.Skip("Skipping integration test: OLLAMA_BASE_URL not set")
	}
	model := os.Getenv("LLM_MODEL")
	if model == "" {
		model = "llama3"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	start := time.Now()
	out, err := NewOllamaProvider(baseURL, model).Generate(ctx, "Reply with the single word: ready", llm.WithTemperature(0), llm.WithMaxTokens(10))
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	t.Logf("Response in %v: %q", time.Since(start), out)
}
