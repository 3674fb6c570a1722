package factory

import (
	"fmt"

	"tracking-support-be/pkg/llm"
	"tracking-support-be/pkg/llm/huggingface"
	"tracking-support-be/pkg/llm/ollama"
)

// Settings selects and configures a backend. Provider "none" returns a nil
// provider, which makes the renderer fall back to its templates.
type Settings struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

func NewLLMProvider(s Settings) (llm.LLMProvider, error) {
	switch s.Provider {
	case "ollama":
		baseURL := s.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.NewOllamaProvider(baseURL, s.Model), nil
	case "huggingface":
		if s.APIKey == "" {
			return nil, fmt.Errorf("huggingface provider needs an API key")
		}
		return huggingface.NewHuggingFaceProvider(s.APIKey, s.BaseURL, s.Model), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", s.Provider)
	}
}
