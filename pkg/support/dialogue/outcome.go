package dialogue

import (
	"tracking-support-be/pkg/store"
	"tracking-support-be/pkg/support/memory"
	"tracking-support-be/pkg/support/sla"
)

// StallLimit is how many turns in a row a thread may go without a new step
// before the outcome is flagged as stalled
const StallLimit = 3

// Intent is what the turn was about at the conversation level
type Intent string

const (
	IntentGreeting   Intent = "greeting"
	IntentDiagnosis  Intent = "diagnosis"
	IntentResolution Intent = "resolution"
	IntentClosing    Intent = "closing"
)

// Outcome is the structured result of one turn, handed to the renderer.
// Ambiguity, carrier conflicts, unknown carriers and unknown timing all show
// up here as data: Clarification, Conflicts, Issue and Verdict respectively.
type Outcome struct {
	SessionID     string                 `json:"session_id"`
	TurnID        string                 `json:"turn_id"`
	TurnIndex     int                    `json:"turn_index"`
	Intent        Intent                 `json:"intent"`
	Issue         store.Issue            `json:"issue"`
	Phase         store.Phase            `json:"phase"`
	Frustration   store.FrustrationLevel `json:"frustration"`
	Step          *store.SolutionStep    `json:"step,omitempty"`
	Escalated     bool                   `json:"escalated"`
	Clarification store.Clarification    `json:"clarification,omitempty"`
	Conflicts     []store.Conflict       `json:"conflicts,omitempty"`
	Verdict       *sla.Verdict           `json:"verdict,omitempty"`
	Touched       []string               `json:"touched,omitempty"`
	Stalled       bool                   `json:"stalled,omitempty"`
	Threads       []ThreadSummary        `json:"threads"`
}

// ThreadSummary is the renderer's view of one tracked identifier
type ThreadSummary struct {
	Key         string                 `json:"key"`
	Kind        store.EntityKind       `json:"kind,omitempty"`
	Carrier     string                 `json:"carrier,omitempty"`
	Issue       store.Category         `json:"issue,omitempty"`
	Phase       store.Phase            `json:"phase"`
	Frustration store.FrustrationLevel `json:"frustration"`
	Escalated   bool                   `json:"escalated"`
	Stalled     int                    `json:"stalled,omitempty"`
}

func summarize(mem *memory.Memory) []ThreadSummary {
	threads := mem.Threads()
	out := make([]ThreadSummary, 0, len(threads))
	for _, th := range threads {
		out = append(out, ThreadSummary{
			Key:         th.Key,
			Kind:        th.Kind,
			Carrier:     th.Carrier,
			Issue:       th.Issue,
			Phase:       th.Phase,
			Frustration: th.Frustration,
			Escalated:   th.Escalated,
			Stalled:     th.Stalled,
		})
	}
	return out
}
