// Package lexicon loads the phrase tables that drive signal detection:
// frustration markers, issue signals, ambiguous time phrases and port names.
package lexicon

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultData []byte

// Signal names a class of phrase in the signals table
type Signal string

const (
	SignalOutdated        Signal = "outdated"
	SignalCarrierMismatch Signal = "carrier_mismatch"
	SignalPortMismatch    Signal = "pol_pod"
	SignalDispatchDate    Signal = "dispatch_date"
	SignalBatch           Signal = "batch"
	SignalResolution      Signal = "resolution"
	SignalResolutionVeto  Signal = "resolution_negation"
	SignalGreeting        Signal = "greeting"
	SignalClosing         Signal = "closing"
)

// Marker is one frustration pattern
type Marker struct {
	Pattern   string  `yaml:"pattern"`
	Signal    string  `yaml:"signal"`
	Weight    float64 `yaml:"weight"`
	Immediate bool    `yaml:"immediate"`

	re *regexp.Regexp
}

// PortMention is a port name found in text
type PortMention struct {
	Code  string
	Raw   string
	Start int
	End   int
}

type portEntry struct {
	Code  string   `yaml:"code"`
	Names []string `yaml:"names"`
}

type document struct {
	Frustration      []Marker            `yaml:"frustration"`
	Signals          map[string][]string `yaml:"signals"`
	AmbiguousTime    []string            `yaml:"ambiguous_time"`
	Ports            []portEntry         `yaml:"ports"`
	PortRoles        map[string][]string `yaml:"port_roles"`
	CarrierStopwords []string            `yaml:"carrier_stopwords"`
}

type portPattern struct {
	code   string
	length int
	re     *regexp.Regexp
}

// Lexicon is immutable after Parse and safe for concurrent use
type Lexicon struct {
	markers   []Marker
	signals   map[Signal][]*regexp.Regexp
	ambiguous []*regexp.Regexp
	ports     []portPattern
	roles     map[string][]*regexp.Regexp
	stopwords map[string]struct{}
}

// Default returns the lexicon compiled into the binary
func Default() *Lexicon {
	lx, err := Parse(defaultData)
	if err != nil {
		panic(fmt.Sprintf("lexicon: embedded data is invalid: %v", err))
	}
	return lx
}

// LoadFile reads a YAML lexicon, falling back to the embedded one when path is empty
func LoadFile(path string) (*Lexicon, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lexicon: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Lexicon, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}

	lx := &Lexicon{
		signals:   make(map[Signal][]*regexp.Regexp),
		roles:     make(map[string][]*regexp.Regexp),
		stopwords: make(map[string]struct{}),
	}

	for _, m := range doc.Frustration {
		re, err := compile(m.Pattern)
		if err != nil {
			return nil, fmt.Errorf("frustration marker %q: %w", m.Pattern, err)
		}
		m.re = re
		lx.markers = append(lx.markers, m)
	}

	for name, patterns := range doc.Signals {
		for _, p := range patterns {
			re, err := compile(p)
			if err != nil {
				return nil, fmt.Errorf("signal %s pattern %q: %w", name, p, err)
			}
			lx.signals[Signal(name)] = append(lx.signals[Signal(name)], re)
		}
	}

	for _, p := range doc.AmbiguousTime {
		re, err := compile(p)
		if err != nil {
			return nil, fmt.Errorf("ambiguous time pattern %q: %w", p, err)
		}
		lx.ambiguous = append(lx.ambiguous, re)
	}

	for _, port := range doc.Ports {
		for _, name := range port.Names {
			words := strings.Fields(strings.ToLower(name))
			for i, w := range words {
				words[i] = regexp.QuoteMeta(w)
			}
			lx.ports = append(lx.ports, portPattern{
				code:   strings.ToUpper(port.Code),
				length: len(name),
				re:     regexp.MustCompile(`(?i)\b` + strings.Join(words, `\s+`) + `\b`),
			})
		}
	}
	sort.SliceStable(lx.ports, func(i, j int) bool { return lx.ports[i].length > lx.ports[j].length })

	for role, patterns := range doc.PortRoles {
		for _, p := range patterns {
			re, err := compile(p)
			if err != nil {
				return nil, fmt.Errorf("port role %s pattern %q: %w", role, p, err)
			}
			lx.roles[role] = append(lx.roles[role], re)
		}
	}

	for _, w := range doc.CarrierStopwords {
		lx.stopwords[strings.ToLower(w)] = struct{}{}
	}

	return lx, nil
}

func compile(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}

// Has reports whether any pattern of the signal matches text
func (lx *Lexicon) Has(signal Signal, text string) bool {
	for _, re := range lx.signals[signal] {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Signals returns every signal present in text
func (lx *Lexicon) Signals(text string) map[Signal]bool {
	out := make(map[Signal]bool)
	for name := range lx.signals {
		if lx.Has(name, text) {
			out[name] = true
		}
	}
	return out
}

// HasBefore reports whether the signal matches within the window of text ending at pos
func (lx *Lexicon) HasBefore(signal Signal, text string, pos, window int) bool {
	start := pos - window
	if start < 0 {
		start = 0
	}
	return lx.Has(signal, text[start:pos])
}

// Frustration returns the markers that match text
func (lx *Lexicon) Frustration(text string) []Marker {
	var out []Marker
	for _, m := range lx.markers {
		if m.re.MatchString(text) {
			out = append(out, m)
		}
	}
	return out
}

// AmbiguousTime returns the [start, end) spans of vague time phrases
func (lx *Lexicon) AmbiguousTime(text string) [][]int {
	var out [][]int
	for _, re := range lx.ambiguous {
		out = append(out, re.FindAllStringIndex(text, -1)...)
	}
	return out
}

// Ports finds non-overlapping port names, ordered by position
func (lx *Lexicon) Ports(text string) []PortMention {
	var out []PortMention
	taken := make([]bool, len(text))
	for _, pp := range lx.ports {
		for _, loc := range pp.re.FindAllStringIndex(text, -1) {
			free := true
			for i := loc[0]; i < loc[1]; i++ {
				if taken[i] {
					free = false
					break
				}
			}
			if !free {
				continue
			}
			for i := loc[0]; i < loc[1]; i++ {
				taken[i] = true
			}
			out = append(out, PortMention{Code: pp.code, Raw: text[loc[0]:loc[1]], Start: loc[0], End: loc[1]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// PortRole guesses "pol" or "pod" from cue words just before pos; "" when unclear
func (lx *Lexicon) PortRole(text string, pos int) string {
	start := pos - 24
	if start < 0 {
		start = 0
	}
	window := text[start:pos]

	best, bestAt := "", -1
	for role, patterns := range lx.roles {
		for _, re := range patterns {
			locs := re.FindAllStringIndex(window, -1)
			if len(locs) == 0 {
				continue
			}
			// The cue closest to the port name wins
			if at := locs[len(locs)-1][0]; at > bestAt || (at == bestAt && role < best) {
				best, bestAt = role, at
			}
		}
	}
	return best
}

// IsCarrierStopword reports whether word cannot be a carrier name after a carrier cue
func (lx *Lexicon) IsCarrierStopword(word string) bool {
	_, ok := lx.stopwords[strings.ToLower(word)]
	return ok
}
