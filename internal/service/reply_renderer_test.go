package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"tracking-support-be/internal/pkg/logger"
	"tracking-support-be/pkg/llm"
	"tracking-support-be/pkg/store"
	"tracking-support-be/pkg/support/dialogue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	reply   string
	err     error
	history []llm.Message
}

func (f *fakeProvider) Chat(_ context.Context, history []llm.Message, _ ...llm.Option) (string, error) {
	f.history = history
	return f.reply, f.err
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, options...)
}

func TestTemplateRenderer_Guidance(t *testing.T) {
	renderer := NewTemplateRenderer()

	tests := []struct {
		name     string
		outcome  dialogue.Outcome
		contains []string
	}{
		{
			name:     "greeting",
			outcome:  dialogue.Outcome{Intent: dialogue.IntentGreeting},
			contains: []string{"Which container or BL number"},
		},
		{
			name: "step then clarification",
			outcome: dialogue.Outcome{
				Intent:        dialogue.IntentDiagnosis,
				Step:          &store.SolutionStep{Key: "confirm_carrier"},
				Clarification: store.ClarifyCarrierConfirmation,
			},
			contains: []string{"Please confirm which carrier", "Which one is correct?"},
		},
		{
			name:     "already escalated",
			outcome:  dialogue.Outcome{Intent: dialogue.IntentDiagnosis, Escalated: true},
			contains: []string{"already has this conversation"},
		},
		{
			name: "stalled clarification",
			outcome: dialogue.Outcome{
				Intent:        dialogue.IntentDiagnosis,
				Clarification: store.ClarifyCarrier,
				Stalled:       true,
			},
			contains: []string{"Which shipping line", "support specialist to take over"},
		},
		{
			name:     "nothing to say",
			outcome:  dialogue.Outcome{Intent: dialogue.IntentDiagnosis},
			contains: []string{"Could you tell me more"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := renderer.Render(context.Background(), tt.outcome)
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, reply, want)
			}
		})
	}
}

func TestTemplateRenderer_ResolutionSkipsClarification(t *testing.T) {
	reply, err := NewTemplateRenderer().Render(context.Background(), dialogue.Outcome{
		Intent:        dialogue.IntentResolution,
		Clarification: store.ClarifyDescription,
	})

	require.NoError(t, err)
	assert.Contains(t, reply, "working now")
	assert.NotContains(t, reply, "describe what looks wrong")
}

func TestLLMRenderer_Prompt(t *testing.T) {
	provider := &fakeProvider{reply: "  Please check the carrier.  "}
	renderer := NewLLMRenderer(provider, time.Second, logger.NewNopLogger())

	reply, err := renderer.Render(context.Background(), dialogue.Outcome{
		SessionID:   "s1",
		Intent:      dialogue.IntentDiagnosis,
		Issue:       store.Issue{Category: store.CategoryCarrierMismatch, Thread: "MSCU7364555"},
		Step:        &store.SolutionStep{Key: "confirm_carrier", Category: store.CategoryCarrierMismatch, Rank: 1},
		Frustration: store.FrustrationHigh,
		Threads:     []dialogue.ThreadSummary{{Key: "MSCU7364555", Carrier: "MSC"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "Please check the carrier.", reply)
	require.Len(t, provider.history, 2)
	assert.Equal(t, "system", provider.history[0].Role)

	prompt := provider.history[1].Content
	assert.Contains(t, prompt, "FACTS:")
	assert.Contains(t, prompt, `"carrier_mismatch"`)
	assert.Contains(t, prompt, `"MSCU7364555"`)
	assert.Contains(t, prompt, "GUIDANCE:\n1. The carrier you mentioned differs")
	assert.Contains(t, prompt, "The customer is upset")
}

func TestLLMRenderer_Failure(t *testing.T) {
	tests := []struct {
		name     string
		provider *fakeProvider
	}{
		{name: "provider error", provider: &fakeProvider{err: errors.New("connection refused")}},
		{name: "empty reply", provider: &fakeProvider{err: llm.ErrEmptyResponse}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			renderer := NewLLMRenderer(tt.provider, time.Second, logger.NewNopLogger())

			_, err := renderer.Render(context.Background(), dialogue.Outcome{Intent: dialogue.IntentGreeting})

			assert.ErrorIs(t, err, ErrRenderFailed)
		})
	}
}
