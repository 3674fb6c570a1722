package store

import (
	"fmt"
	"time"
)

// Phase of a thread's conversation. Values are ordered.
type Phase int

const (
	PhaseDiagnosis Phase = iota
	PhaseSolution
	PhaseVerification
)

func (p Phase) String() string {
	switch p {
	case PhaseSolution:
		return "solution"
	case PhaseVerification:
		return "verification"
	default:
		return "diagnosis"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "diagnosis":
		*p = PhaseDiagnosis
	case "solution":
		*p = PhaseSolution
	case "verification":
		*p = PhaseVerification
	default:
		return fmt.Errorf("unknown phase %q", text)
	}
	return nil
}

// FrustrationLevel is the escalation level. Values are ordered.
type FrustrationLevel int

const (
	FrustrationNone FrustrationLevel = iota
	FrustrationMild
	FrustrationHigh
)

func (f FrustrationLevel) String() string {
	switch f {
	case FrustrationMild:
		return "mild"
	case FrustrationHigh:
		return "high"
	default:
		return "none"
	}
}

func (f FrustrationLevel) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *FrustrationLevel) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none":
		*f = FrustrationNone
	case "mild":
		*f = FrustrationMild
	case "high":
		*f = FrustrationHigh
	default:
		return fmt.Errorf("unknown frustration level %q", text)
	}
	return nil
}

// Turn is one processed user message. Immutable once appended to a Session.
type Turn struct {
	ID        string        `json:"id"`
	Index     int           `json:"index"`
	Text      string        `json:"text"`
	Timestamp time.Time     `json:"timestamp"`
	Entities  []Entity      `json:"entities"`
	Issue     Issue         `json:"issue"`
	Offered   *SolutionStep `json:"offered,omitempty"`
}
