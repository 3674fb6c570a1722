package service

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tracking-support-be/internal/pkg/logger"
	"tracking-support-be/pkg/llm"
	"tracking-support-be/pkg/store"
	"tracking-support-be/pkg/support/dialogue"

	"gopkg.in/yaml.v3"
)

// ErrRenderFailed means the turn was committed but no reply text could be produced
var ErrRenderFailed = errors.New("reply rendering failed")

//go:embed replies.yaml
var repliesData []byte

type replyGuide struct {
	Intents          map[dialogue.Intent]string     `yaml:"intents"`
	Clarifications   map[store.Clarification]string `yaml:"clarifications"`
	Steps            map[string]string              `yaml:"steps"`
	AlreadyEscalated string                         `yaml:"already_escalated"`
	Stalled          string                         `yaml:"stalled"`
	Fallback         string                         `yaml:"fallback"`
}

func loadReplyGuide() replyGuide {
	var g replyGuide
	if err := yaml.Unmarshal(repliesData, &g); err != nil {
		panic(fmt.Sprintf("service: embedded reply guide is invalid: %v", err))
	}
	return g
}

// guidance lists what the reply has to convey, in order
func (g replyGuide) guidance(out dialogue.Outcome) []string {
	var parts []string
	switch out.Intent {
	case dialogue.IntentGreeting, dialogue.IntentClosing, dialogue.IntentResolution:
		if text := g.Intents[out.Intent]; text != "" {
			parts = append(parts, text)
		}
	}
	if out.Step != nil {
		if text := g.Steps[out.Step.Key]; text != "" {
			parts = append(parts, text)
		}
	} else if out.Escalated {
		parts = append(parts, g.AlreadyEscalated)
	}
	if out.Clarification != store.ClarifyNone && out.Intent != dialogue.IntentResolution {
		if text := g.Clarifications[out.Clarification]; text != "" {
			parts = append(parts, text)
		}
	}
	if out.Stalled && !out.Escalated && g.Stalled != "" {
		parts = append(parts, g.Stalled)
	}
	if len(parts) == 0 {
		parts = append(parts, g.Fallback)
	}
	return parts
}

// IReplyRenderer turns a turn outcome into the user-facing reply
type IReplyRenderer interface {
	Render(ctx context.Context, out dialogue.Outcome) (string, error)
}

type templateRenderer struct {
	guide replyGuide
}

// NewTemplateRenderer replies with the canned guidance text, no model involved
func NewTemplateRenderer() IReplyRenderer {
	return &templateRenderer{guide: loadReplyGuide()}
}

func (r *templateRenderer) Render(_ context.Context, out dialogue.Outcome) (string, error) {
	return strings.Join(r.guide.guidance(out), " "), nil
}

const systemPrompt = `You are the support assistant of a shipment tracking platform.
Write one short, friendly reply to the customer.
Convey exactly the points listed under GUIDANCE, in that order, and nothing else.
Never invent tracking events, dates or carrier data. Never offer other fixes.
Ask at most one question. No Markdown headings.`

type llmRenderer struct {
	provider llm.LLMProvider
	guide    replyGuide
	timeout  time.Duration
	logger   logger.ILogger
}

func NewLLMRenderer(provider llm.LLMProvider, timeout time.Duration, log logger.ILogger) IReplyRenderer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &llmRenderer{
		provider: provider,
		guide:    loadReplyGuide(),
		timeout:  timeout,
		logger:   log,
	}
}

func (r *llmRenderer) Render(ctx context.Context, out dialogue.Outcome) (string, error) {
	prompt, err := buildRenderPrompt(out, r.guide.guidance(out))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	reply, err := r.provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}, llm.WithTemperature(0.3), llm.WithMaxTokens(220))
	if err != nil {
		r.logger.Error("ReplyRenderer", "LLM render failed", map[string]interface{}{
			"session_id": out.SessionID,
			"turn_id":    out.TurnID,
			"error":      err.Error(),
		})
		return "", fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	return strings.TrimSpace(reply), nil
}

// buildRenderPrompt hands the model the structured outcome and the session's
// tracked shipments. The outcome is the only source of facts.
func buildRenderPrompt(out dialogue.Outcome, guidance []string) (string, error) {
	facts, err := json.MarshalIndent(struct {
		Intent        dialogue.Intent          `json:"intent"`
		Issue         store.Issue              `json:"issue"`
		Phase         store.Phase              `json:"phase"`
		Frustration   store.FrustrationLevel   `json:"frustration"`
		Step          *store.SolutionStep      `json:"step,omitempty"`
		Clarification store.Clarification      `json:"clarification,omitempty"`
		Conflicts     []store.Conflict         `json:"conflicts,omitempty"`
		Stalled       bool                     `json:"stalled,omitempty"`
		Shipments     []dialogue.ThreadSummary `json:"shipments"`
	}{
		Intent:        out.Intent,
		Issue:         out.Issue,
		Phase:         out.Phase,
		Frustration:   out.Frustration,
		Step:          out.Step,
		Clarification: out.Clarification,
		Conflicts:     out.Conflicts,
		Stalled:       out.Stalled,
		Shipments:     out.Threads,
	}, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("FACTS:\n")
	b.Write(facts)
	b.WriteString("\n\nGUIDANCE:\n")
	for i, g := range guidance {
		fmt.Fprintf(&b, "%d. %s\n", i+1, g)
	}
	if out.Frustration == store.FrustrationHigh {
		b.WriteString("\nThe customer is upset: acknowledge it in one sentence first.\n")
	}
	return b.String(), nil
}
