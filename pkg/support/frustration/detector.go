// Package frustration scores escalation markers across recent user messages.
package frustration

import (
	"tracking-support-be/pkg/store"
	"tracking-support-be/pkg/support/lexicon"
)

const (
	currentWeight = 1.0
	historyWeight = 0.5
	historyDepth  = 2

	mildThreshold = 1.0
	highThreshold = 3.0
)

// Assessment is the detector output for one turn
type Assessment struct {
	Level          store.FrustrationLevel `json:"level"`
	Score          float64                `json:"score"`
	Signals        []string               `json:"signals,omitempty"`
	HumanRequested bool                   `json:"human_requested"`
}

type Detector struct {
	lx *lexicon.Lexicon
}

func NewDetector(lx *lexicon.Lexicon) *Detector {
	return &Detector{lx: lx}
}

// Assess scores the current message at full weight and up to two previous
// messages at half weight. The returned level never drops below prior.
func (d *Detector) Assess(current string, history []string, prior store.FrustrationLevel) Assessment {
	var a Assessment

	for _, m := range d.lx.Frustration(current) {
		a.Score += m.Weight * currentWeight
		a.Signals = append(a.Signals, m.Signal)
		if m.Immediate {
			a.HumanRequested = true
		}
	}

	if len(history) > historyDepth {
		history = history[len(history)-historyDepth:]
	}
	for _, msg := range history {
		for _, m := range d.lx.Frustration(msg) {
			a.Score += m.Weight * historyWeight
		}
	}

	switch {
	case a.HumanRequested || a.Score >= highThreshold:
		a.Level = store.FrustrationHigh
	case a.Score >= mildThreshold:
		a.Level = store.FrustrationMild
	}
	if prior > a.Level {
		a.Level = prior
	}
	return a
}
