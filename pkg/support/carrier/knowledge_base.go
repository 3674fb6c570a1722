// Package carrier holds the read-only carrier reference data: tiers, container
// prefixes, name aliases and expected update windows.
package carrier

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
	"gopkg.in/yaml.v3"
)

//go:embed carriers.yaml
var defaultData []byte

type Tier string

const (
	TierP1          Tier = "P1"
	TierP2          Tier = "P2"
	TierP3          Tier = "P3"
	TierUnsupported Tier = "UNSUPPORTED"
)

// Profile is the immutable description of one carrier
type Profile struct {
	Name      string   `json:"name"`
	Tier      Tier     `json:"tier"`
	Prefixes  []string `json:"prefixes"`
	Aliases   []string `json:"aliases"`
	MinHours  int      `json:"min_hours"`
	MaxHours  int      `json:"max_hours"`
	PrefersBL bool     `json:"prefers_bl"`
}

// Supported reports whether the platform tracks this carrier at all
func (p Profile) Supported() bool {
	return p.Tier != TierUnsupported && p.MaxHours > 0
}

// Mention is a carrier alias found in free text
type Mention struct {
	Carrier string
	Raw     string
	Start   int
	End     int
}

type window struct {
	MinHours int `yaml:"min_hours"`
	MaxHours int `yaml:"max_hours"`
}

type document struct {
	Tiers    map[string]window `yaml:"tiers"`
	Carriers []struct {
		Name      string   `yaml:"name"`
		Tier      string   `yaml:"tier"`
		Prefixes  []string `yaml:"prefixes"`
		Aliases   []string `yaml:"aliases"`
		PrefersBL bool     `yaml:"prefers_bl"`
		// Names that are also common words only match in free text as written
		ExactCase []string `yaml:"exact_case"`
	} `yaml:"carriers"`
}

type aliasPattern struct {
	carrier string
	length  int
	re      *regexp.Regexp
}

// KnowledgeBase is safe for concurrent reads; nothing mutates it after Load.
type KnowledgeBase struct {
	profiles  []Profile
	byName    map[string]int
	byPrefix  map[string]int
	aliasKeys []string
	aliasIdx  []int
	patterns  []aliasPattern
}

// Default returns the knowledge base compiled into the binary
func Default() *KnowledgeBase {
	kb, err := Parse(defaultData)
	if err != nil {
		panic(fmt.Sprintf("carrier: embedded data is invalid: %v", err))
	}
	return kb
}

// LoadFile reads a YAML knowledge base, falling back to the embedded one when path is empty
func LoadFile(path string) (*KnowledgeBase, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open carrier data: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*KnowledgeBase, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read carrier data: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*KnowledgeBase, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse carrier data: %w", err)
	}

	kb := &KnowledgeBase{
		byName:   make(map[string]int),
		byPrefix: make(map[string]int),
	}

	for _, c := range doc.Carriers {
		if c.Name == "" {
			return nil, fmt.Errorf("carrier entry without name")
		}
		tier := Tier(strings.ToUpper(c.Tier))
		w, ok := doc.Tiers[string(tier)]
		if !ok && tier != TierUnsupported {
			return nil, fmt.Errorf("carrier %s: unknown tier %q", c.Name, c.Tier)
		}

		p := Profile{
			Name:      c.Name,
			Tier:      tier,
			MinHours:  w.MinHours,
			MaxHours:  w.MaxHours,
			PrefersBL: c.PrefersBL,
		}
		idx := len(kb.profiles)

		for _, prefix := range c.Prefixes {
			prefix = strings.ToUpper(strings.TrimSpace(prefix))
			if len(prefix) != 4 {
				return nil, fmt.Errorf("carrier %s: prefix %q must be 4 letters", c.Name, prefix)
			}
			if other, dup := kb.byPrefix[prefix]; dup {
				return nil, fmt.Errorf("prefix %s registered to both %s and %s", prefix, kb.profiles[other].Name, c.Name)
			}
			kb.byPrefix[prefix] = idx
			p.Prefixes = append(p.Prefixes, prefix)
		}

		exact := make(map[string]bool, len(c.ExactCase))
		for _, e := range c.ExactCase {
			exact[normalize(e)] = true
		}

		names := append([]string{c.Name}, c.Aliases...)
		for _, alias := range names {
			key := normalize(alias)
			if key == "" {
				continue
			}
			if _, dup := kb.byName[key]; !dup {
				kb.byName[key] = idx
				kb.aliasKeys = append(kb.aliasKeys, key)
				kb.aliasIdx = append(kb.aliasIdx, idx)
				re := aliasRegexp(key)
				if exact[key] {
					re = exactRegexp(alias)
				}
				kb.patterns = append(kb.patterns, aliasPattern{
					carrier: c.Name,
					length:  len(key),
					re:      re,
				})
			}
			if alias != c.Name {
				p.Aliases = append(p.Aliases, alias)
			}
		}

		kb.profiles = append(kb.profiles, p)
	}

	// Longest aliases first so "cma cgm" wins over "cma"
	sort.SliceStable(kb.patterns, func(i, j int) bool {
		return kb.patterns[i].length > kb.patterns[j].length
	})

	return kb, nil
}

// Profiles returns a copy of every carrier profile
func (kb *KnowledgeBase) Profiles() []Profile {
	out := make([]Profile, len(kb.profiles))
	copy(out, kb.profiles)
	return out
}

// ResolveByName tolerates case, punctuation, aliases and small typos.
// A miss is an expected outcome, not an error.
func (kb *KnowledgeBase) ResolveByName(name string) (Profile, bool) {
	key := normalize(name)
	if key == "" {
		return Profile{}, false
	}
	if idx, ok := kb.byName[key]; ok {
		return kb.profiles[idx], true
	}

	// Fuzzy fallback only for inputs long enough to carry signal
	if len(key) < 4 {
		return Profile{}, false
	}
	matches := fuzzy.Find(key, kb.aliasKeys)
	for _, m := range matches {
		if len(m.Str) > len(key)+3 {
			continue
		}
		return kb.profiles[kb.aliasIdx[m.Index]], true
	}
	return Profile{}, false
}

// ResolveByPrefix matches the 4-letter owner code exactly
func (kb *KnowledgeBase) ResolveByPrefix(prefix string) (Profile, bool) {
	idx, ok := kb.byPrefix[strings.ToUpper(prefix)]
	if !ok {
		return Profile{}, false
	}
	return kb.profiles[idx], true
}

// Window returns the tier and expected update window for a carrier name
func (kb *KnowledgeBase) Window(name string) (Tier, int, int, bool) {
	p, ok := kb.ResolveByName(name)
	if !ok {
		return "", 0, 0, false
	}
	return p.Tier, p.MinHours, p.MaxHours, true
}

// Mentions finds non-overlapping carrier aliases in text, ordered by position
func (kb *KnowledgeBase) Mentions(text string) []Mention {
	var out []Mention
	taken := make([]bool, len(text))

	for _, ap := range kb.patterns {
		for _, loc := range ap.re.FindAllStringIndex(text, -1) {
			if overlaps(taken, loc[0], loc[1]) {
				continue
			}
			for i := loc[0]; i < loc[1]; i++ {
				taken[i] = true
			}
			out = append(out, Mention{
				Carrier: ap.carrier,
				Raw:     text[loc[0]:loc[1]],
				Start:   loc[0],
				End:     loc[1],
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func overlaps(taken []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if taken[i] {
			return true
		}
	}
	return false
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

func normalize(s string) string {
	return strings.TrimSpace(nonAlnum.ReplaceAllString(strings.ToLower(s), " "))
}

// aliasRegexp matches the alias words separated by spaces or hyphens, on word boundaries
func aliasRegexp(key string) *regexp.Regexp {
	words := strings.Fields(key)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b` + strings.Join(words, `[\s\-]+`) + `\b`)
}

func exactRegexp(alias string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.TrimSpace(alias)) + `\b`)
}
