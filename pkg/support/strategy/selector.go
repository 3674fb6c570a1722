// Package strategy picks the next solution step for a thread from a fixed
// per-category progression.
package strategy

import (
	_ "embed"
	"fmt"
	"os"

	"tracking-support-be/pkg/store"

	"gopkg.in/yaml.v3"
)

//go:embed steps.yaml
var defaultData []byte

type document struct {
	Handoff string                      `yaml:"handoff"`
	Steps   map[store.Category][]string `yaml:"steps"`
}

// Selector is read-only after construction
type Selector struct {
	table   map[store.Category][]store.SolutionStep
	handoff string
}

// Default returns the selector built from the embedded step table
func Default() *Selector {
	s, err := Parse(defaultData)
	if err != nil {
		panic(fmt.Sprintf("strategy: embedded step table is invalid: %v", err))
	}
	return s
}

// LoadFile reads a YAML step table, falling back to the embedded one when path is empty
func LoadFile(path string) (*Selector, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read step table: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Selector, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse step table: %w", err)
	}
	if doc.Handoff == "" {
		return nil, fmt.Errorf("step table has no handoff step")
	}

	s := &Selector{table: make(map[store.Category][]store.SolutionStep), handoff: doc.Handoff}
	for category, keys := range doc.Steps {
		if len(keys) == 0 {
			return nil, fmt.Errorf("category %s has no steps", category)
		}
		for i, key := range keys {
			s.table[category] = append(s.table[category], store.SolutionStep{Category: category, Rank: i + 1, Key: key})
		}
	}
	return s, nil
}

// Steps returns the ordered progression for a category, hand-off last
func (s *Selector) Steps(category store.Category) []store.SolutionStep {
	steps := append([]store.SolutionStep(nil), s.table[category]...)
	return append(steps, s.Handoff(category))
}

// Handoff is the terminal step; its rank sits above every regular step
func (s *Selector) Handoff(category store.Category) store.SolutionStep {
	return store.SolutionStep{
		Category: category,
		Rank:     len(s.table[category]) + 1,
		Key:      s.handoff,
		Terminal: true,
	}
}

// History is the offered-step record the selector reads
type History interface {
	HighestOffered(thread string, category store.Category) int
}

// Selection is the selector's decision. Step is nil when there is nothing to
// offer: an unclassified issue, or a thread already handed off.
type Selection struct {
	Step      *store.SolutionStep `json:"step,omitempty"`
	Escalate  bool                `json:"escalate"`
	Exhausted bool                `json:"exhausted,omitempty"`
}

// Select picks the lowest-rank step above the highest already offered for the
// thread and category. Exhausted steps or high frustration select hand-off.
func (s *Selector) Select(history History, thread string, category store.Category, level store.FrustrationLevel) Selection {
	handoff := s.Handoff(category)
	highest := history.HighestOffered(thread, category)
	if highest >= handoff.Rank {
		// Already handed off; offering it again would repeat a step
		return Selection{Escalate: true, Exhausted: true}
	}

	if level >= store.FrustrationHigh {
		return Selection{Step: &handoff, Escalate: true}
	}

	steps, ok := s.table[category]
	if !ok {
		return Selection{}
	}
	for _, step := range steps {
		if step.Rank > highest {
			st := step
			return Selection{Step: &st}
		}
	}
	return Selection{Step: &handoff, Escalate: true, Exhausted: true}
}
