// Package sla decides whether a carrier's expected update window has been exceeded.
package sla

import (
	"tracking-support-be/pkg/store"
	"tracking-support-be/pkg/support/carrier"
)

// Verdict is the result of one SLA check
type Verdict struct {
	Status         store.VerdictStatus `json:"status"`
	Tier           carrier.Tier        `json:"tier,omitempty"`
	ThresholdHours int                 `json:"threshold_hours,omitempty"`
	ElapsedHours   float64             `json:"elapsed_hours,omitempty"`
	ElapsedKnown   bool                `json:"elapsed_known"`
}

// Breach reports true only for a definite breach
func (v Verdict) Breach() bool {
	return v.Status == store.VerdictBreach
}

// Evaluate compares elapsed hours against the profile's maximum window.
// Unknown elapsed time or an unsupported tier is always indeterminate.
func Evaluate(profile carrier.Profile, elapsed float64, known bool) Verdict {
	v := Verdict{
		Status:         store.VerdictIndeterminate,
		Tier:           profile.Tier,
		ThresholdHours: profile.MaxHours,
		ElapsedHours:   elapsed,
		ElapsedKnown:   known,
	}
	if !known || !profile.Supported() {
		return v
	}
	if elapsed > float64(profile.MaxHours) {
		v.Status = store.VerdictBreach
	} else {
		v.Status = store.VerdictWithinWindow
	}
	return v
}

// Evaluator resolves the carrier before evaluating
type Evaluator struct {
	kb *carrier.KnowledgeBase
}

func NewEvaluator(kb *carrier.KnowledgeBase) *Evaluator {
	return &Evaluator{kb: kb}
}

// EvaluateCarrier is indeterminate when the carrier is unknown
func (e *Evaluator) EvaluateCarrier(name string, elapsed float64, known bool) Verdict {
	p, ok := e.kb.ResolveByName(name)
	if !ok {
		return Verdict{Status: store.VerdictIndeterminate, ElapsedHours: elapsed, ElapsedKnown: known}
	}
	return Evaluate(p, elapsed, known)
}
