// Package extract recognizes shipment identifiers, carriers, ports, dates and
// relative-time phrases in a single user message.
package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"tracking-support-be/pkg/store"
	"tracking-support-be/pkg/support/carrier"
	"tracking-support-be/pkg/support/lexicon"
)

var (
	blPattern        = regexp.MustCompile(`(?i)\b(?:m?bl|b/l|bol|bill of lading)\s*(?:no\.?|number|#)?\s*[:#]?\s*([a-z0-9]*\d[a-z0-9]*)\b`)
	containerPattern = regexp.MustCompile(`(?i)\b([a-z]{4})[\s-]?(\d{7})\b`)
	malformedPattern = regexp.MustCompile(`(?i)\b([a-z]{2,6})(\d{4,10})\b`)
	carrierCue       = regexp.MustCompile(`(?i)\b(?:carrier|shipping line|shipping company)\s+(?:is\s+|was\s+|name\s+is\s+|called\s+|:\s*|=\s*)?([a-z][a-z&\-]{1,24})\b`)
)

// Extractor is stateless apart from its read-only tables
type Extractor struct {
	kb *carrier.KnowledgeBase
	lx *lexicon.Lexicon
}

func NewExtractor(kb *carrier.KnowledgeBase, lx *lexicon.Lexicon) *Extractor {
	return &Extractor{kb: kb, lx: lx}
}

// spans tracks byte ranges already claimed by an earlier, more specific rule
type spans []bool

func (s spans) free(start, end int) bool {
	for i := start; i < end; i++ {
		if s[i] {
			return false
		}
	}
	return true
}

func (s spans) claim(start, end int) {
	for i := start; i < end; i++ {
		s[i] = true
	}
}

// Extract returns the entities of one message ordered by position. at anchors
// relative-time phrases and year-less dates.
func (e *Extractor) Extract(text string, at time.Time) []store.Entity {
	taken := make(spans, len(text))
	var out []store.Entity

	out = append(out, e.billsOfLading(text, taken)...)
	out = append(out, e.containers(text, taken)...)
	out = append(out, e.malformed(text, taken)...)
	carriers := e.carriers(text, taken)
	out = append(out, carriers...)
	out = append(out, e.relativeTimes(text, at, taken)...)
	out = append(out, e.ports(text, taken)...)
	out = append(out, e.dates(text, at, taken)...)

	e.attachCarriers(out, carriers)

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func (e *Extractor) billsOfLading(text string, taken spans) []store.Entity {
	var out []store.Entity
	for _, m := range blPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		raw := text[start:end]
		if len(raw) < 8 || len(raw) > 16 || !taken.free(start, end) {
			continue
		}
		taken.claim(start, end)

		ent := store.Entity{
			Kind:  store.KindBL,
			Raw:   raw,
			Value: strings.ToUpper(raw),
			Start: start,
			End:   end,
		}
		if len(ent.Value) >= 4 {
			if p, ok := e.kb.ResolveByPrefix(ent.Value[:4]); ok {
				ent.Carrier, ent.CarrierSource = p.Name, store.CarrierFromPrefix
			}
		}
		out = append(out, ent)
	}
	return out
}

func (e *Extractor) containers(text string, taken spans) []store.Entity {
	var out []store.Entity
	for _, m := range containerPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		if !taken.free(start, end) {
			continue
		}
		taken.claim(start, end)

		prefix := strings.ToUpper(text[m[2]:m[3]])
		ent := store.Entity{
			Kind:  store.KindContainer,
			Raw:   text[start:end],
			Value: prefix + text[m[4]:m[5]],
			Start: start,
			End:   end,
		}
		if p, ok := e.kb.ResolveByPrefix(prefix); ok {
			ent.Carrier, ent.CarrierSource = p.Name, store.CarrierFromPrefix
		}
		out = append(out, ent)
	}
	return out
}

func (e *Extractor) malformed(text string, taken spans) []store.Entity {
	var out []store.Entity
	for _, m := range malformedPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		if !taken.free(start, end) {
			continue
		}
		letters := strings.ToUpper(text[m[2]:m[3]])
		digits := text[m[4]:m[5]]
		if len(letters)+len(digits) < 8 {
			continue
		}
		taken.claim(start, end)

		ent := store.Entity{
			Kind:  store.KindMalformed,
			Raw:   text[start:end],
			Value: letters + digits,
			Start: start,
			End:   end,
		}
		if p, ok := e.kb.ResolveByName(letters); ok {
			ent.Carrier = p.Name
		} else if len(letters) == 4 {
			if p, ok := e.kb.ResolveByPrefix(letters); ok {
				ent.Carrier = p.Name
			}
		}
		out = append(out, ent)
	}
	return out
}

// MalformedReason describes why an identifier is not a valid container number
func MalformedReason(value string) string {
	letters := 0
	for letters < len(value) && value[letters] >= 'A' && value[letters] <= 'Z' {
		letters++
	}
	return fmt.Sprintf("expected 4 letters followed by 7 digits, found %d letters and %d digits", letters, len(value)-letters)
}

func (e *Extractor) carriers(text string, taken spans) []store.Entity {
	var out []store.Entity
	for _, m := range e.kb.Mentions(text) {
		if !taken.free(m.Start, m.End) {
			continue
		}
		taken.claim(m.Start, m.End)
		out = append(out, store.Entity{
			Kind:     store.KindCarrier,
			Raw:      m.Raw,
			Value:    m.Carrier,
			Start:    m.Start,
			End:      m.End,
			Resolved: true,
		})
	}

	// Names after an explicit cue that the alias scan did not recognize
	for _, m := range carrierCue.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		word := text[start:end]
		if e.lx.IsCarrierStopword(word) || !taken.free(start, end) {
			continue
		}
		taken.claim(start, end)

		ent := store.Entity{Kind: store.KindCarrier, Raw: word, Value: word, Start: start, End: end}
		if p, ok := e.kb.ResolveByName(word); ok {
			ent.Value, ent.Resolved = p.Name, true
		}
		out = append(out, ent)
	}
	return out
}

// attachCarriers links identifiers to carriers. The container prefix always
// wins; a stated carrier that disagrees is kept as ConflictingCarrier.
func (e *Extractor) attachCarriers(entities []store.Entity, carriers []store.Entity) {
	var stated []string
	seen := make(map[string]bool)
	for _, c := range carriers {
		if c.Resolved && !seen[c.Value] {
			seen[c.Value] = true
			stated = append(stated, c.Value)
		}
	}

	for i := range entities {
		ent := &entities[i]
		if ent.Kind != store.KindContainer && ent.Kind != store.KindBL {
			continue
		}
		if ent.CarrierSource == store.CarrierFromPrefix {
			for _, name := range stated {
				if name != ent.Carrier {
					ent.ConflictingCarrier = name
					break
				}
			}
			continue
		}
		if len(stated) == 1 {
			ent.Carrier, ent.CarrierSource = stated[0], store.CarrierFromStated
		}
	}
}

func (e *Extractor) ports(text string, taken spans) []store.Entity {
	var out []store.Entity
	for _, p := range e.lx.Ports(text) {
		if !taken.free(p.Start, p.End) {
			continue
		}
		taken.claim(p.Start, p.End)
		out = append(out, store.Entity{
			Kind:  store.KindPort,
			Raw:   p.Raw,
			Value: p.Code,
			Start: p.Start,
			End:   p.End,
			Role:  e.lx.PortRole(text, p.Start),
		})
	}
	return out
}
