// Package memory holds the per-session conversation state: one thread per
// tracked identifier plus session-wide counters.
package memory

import (
	"time"

	"tracking-support-be/pkg/store"
)

// GeneralThread collects context mentioned before any identifier is known
const GeneralThread = "*"

const recentLimit = 2

// Thread is the sub-conversation about one tracked identifier
type Thread struct {
	Key               string                 `json:"key"`
	Kind              store.EntityKind       `json:"kind"`
	Carrier           string                 `json:"carrier,omitempty"`
	CarrierSource     string                 `json:"carrier_source,omitempty"`
	PendingCarrier    string                 `json:"pending_carrier,omitempty"`
	UnresolvedCarrier string                 `json:"unresolved_carrier,omitempty"`
	Issue             store.Category         `json:"issue,omitempty"`
	Phase             store.Phase            `json:"phase"`
	Frustration       store.FrustrationLevel `json:"frustration"`
	TrackingSince     *time.Time             `json:"tracking_since,omitempty"`
	ElapsedUnknown    bool                   `json:"elapsed_unknown,omitempty"`
	Ports             []store.Entity         `json:"ports,omitempty"`
	DispatchDate      *time.Time             `json:"dispatch_date,omitempty"`
	Escalated         bool                   `json:"escalated,omitempty"`
	Stalled           int                    `json:"stalled,omitempty"`
	FirstTurn         int                    `json:"first_turn"`
	LastTurn          int                    `json:"last_turn"`

	offered map[store.Category][]int
	asked   map[store.Clarification]bool
}

// Offered returns the ranks already offered for a category, in offer order
func (t *Thread) Offered(category store.Category) []int {
	ranks := t.offered[category]
	out := make([]int, len(ranks))
	copy(out, ranks)
	return out
}

func (t *Thread) clone() *Thread {
	c := *t
	c.Ports = append([]store.Entity(nil), t.Ports...)
	if t.TrackingSince != nil {
		v := *t.TrackingSince
		c.TrackingSince = &v
	}
	if t.DispatchDate != nil {
		v := *t.DispatchDate
		c.DispatchDate = &v
	}
	c.offered = make(map[store.Category][]int, len(t.offered))
	for k, v := range t.offered {
		c.offered[k] = append([]int(nil), v...)
	}
	c.asked = make(map[store.Clarification]bool, len(t.asked))
	for k, v := range t.asked {
		c.asked[k] = v
	}
	return &c
}

// RecordResult reports what a RecordEntities call changed
type RecordResult struct {
	Touched   []string
	Created   []string
	Conflicts []store.Conflict
	Confirmed []string
}

// Memory is owned by exactly one Session and mutated only by the orchestrator
type Memory struct {
	threads map[string]*Thread
	order   []string
	active  string
	turns   int
	recent  []string

	// Clarification the last reply asked for, so a bare "no" is read as an answer
	awaiting store.Clarification
}

func New() *Memory {
	return &Memory{threads: make(map[string]*Thread)}
}

// Clone deep-copies the memory so a turn can be staged and committed atomically
func (m *Memory) Clone() *Memory {
	c := &Memory{
		threads: make(map[string]*Thread, len(m.threads)),
		order:   append([]string(nil), m.order...),
		active:  m.active,
		turns:   m.turns,
		recent:  append([]string(nil), m.recent...),

		awaiting: m.awaiting,
	}
	for k, t := range m.threads {
		c.threads[k] = t.clone()
	}
	return c
}

// BeginTurn increments the monotonic turn counter and returns the new turn index
func (m *Memory) BeginTurn() int {
	m.turns++
	return m.turns
}

func (m *Memory) TurnCount() int {
	return m.turns
}

// Thread returns the thread for a normalized identifier
func (m *Memory) Thread(key string) (*Thread, bool) {
	t, ok := m.threads[key]
	return t, ok
}

// Threads returns every thread in creation order
func (m *Memory) Threads() []*Thread {
	out := make([]*Thread, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.threads[k])
	}
	return out
}

// ActiveThread is the most recently touched thread; "" before any
func (m *Memory) ActiveThread() string {
	return m.active
}

func (m *Memory) thread(key string, kind store.EntityKind, turn int) (*Thread, bool) {
	if t, ok := m.threads[key]; ok {
		t.LastTurn = turn
		return t, false
	}
	t := &Thread{
		Key:       key,
		Kind:      kind,
		FirstTurn: turn,
		LastTurn:  turn,
		offered:   make(map[store.Category][]int),
		asked:     make(map[store.Clarification]bool),
	}
	m.threads[key] = t
	m.order = append(m.order, key)
	return t, true
}

// RecordEntities merges one turn's entities into memory. Identifiers are
// deduplicated by normalized value; other entities attach to the identifiers
// of the same message, else to the active thread, else to GeneralThread.
func (m *Memory) RecordEntities(turn int, at time.Time, entities []store.Entity) RecordResult {
	var res RecordResult
	seen := make(map[string]bool)
	touch := func(t *Thread, created bool) {
		if seen[t.Key] {
			return
		}
		seen[t.Key] = true
		res.Touched = append(res.Touched, t.Key)
		if created {
			res.Created = append(res.Created, t.Key)
		}
	}

	var targets []*Thread
	for _, ent := range entities {
		if !ent.IsIdentifier() {
			continue
		}
		t, created := m.thread(ent.Value, ent.Kind, turn)
		m.attachIdentifierCarrier(t, ent, &res)
		if created {
			m.adoptGeneral(t, &res)
		}
		touch(t, created)
		if !containsThread(targets, t) {
			targets = append(targets, t)
		}
	}

	identified := len(targets) > 0
	if !identified {
		key := m.active
		if key == "" {
			key = GeneralThread
		}
		t, created := m.thread(key, "", turn)
		targets = append(targets, t)
		touch(t, created)
	}

	for _, ent := range entities {
		switch ent.Kind {
		case store.KindCarrier:
			for _, t := range targets {
				if !ent.Resolved {
					t.UnresolvedCarrier = ent.Raw
					continue
				}
				t.UnresolvedCarrier = ""
				// Carriers named next to identifiers were attached by the extractor
				if !identified {
					m.applyStatedCarrier(t, ent.Value, &res)
				}
			}
		case store.KindRelativeTime:
			for _, t := range targets {
				if ent.ElapsedKnown {
					since := at.Add(-time.Duration(ent.ElapsedHours * float64(time.Hour)))
					t.TrackingSince = &since
					t.ElapsedUnknown = false
				} else if t.TrackingSince == nil {
					t.ElapsedUnknown = true
				}
			}
		case store.KindPort:
			for _, t := range targets {
				t.Ports = appendPort(t.Ports, ent)
			}
		case store.KindDate:
			if ent.Role != store.RoleDispatch {
				continue
			}
			for _, t := range targets {
				d := ent.Date
				t.DispatchDate = &d
			}
		}
	}

	m.active = targets[len(targets)-1].Key
	return res
}

func (m *Memory) attachIdentifierCarrier(t *Thread, ent store.Entity, res *RecordResult) {
	if ent.Carrier != "" {
		switch {
		case t.Carrier == "":
			t.Carrier, t.CarrierSource = ent.Carrier, ent.CarrierSource
		case t.Carrier != ent.Carrier:
			if t.PendingCarrier == ent.Carrier {
				m.confirmCarrier(t, res)
			} else {
				m.raiseConflict(t, ent.Carrier, res)
			}
		case t.PendingCarrier != "" && ent.CarrierSource == store.CarrierFromStated:
			// User restated the recorded carrier; the pending alternative is dropped
			t.PendingCarrier = ""
		}
	}
	if ent.ConflictingCarrier != "" && ent.ConflictingCarrier != t.Carrier {
		if t.PendingCarrier == ent.ConflictingCarrier {
			m.confirmCarrier(t, res)
		} else {
			m.raiseConflict(t, ent.ConflictingCarrier, res)
		}
	}
}

// adoptGeneral moves context given before any identifier onto the first new thread
func (m *Memory) adoptGeneral(t *Thread, res *RecordResult) {
	g, ok := m.threads[GeneralThread]
	if !ok || t.Key == GeneralThread {
		return
	}
	if t.TrackingSince == nil && g.TrackingSince != nil {
		v := *g.TrackingSince
		t.TrackingSince = &v
	}
	t.ElapsedUnknown = t.ElapsedUnknown || (g.ElapsedUnknown && t.TrackingSince == nil)
	if t.DispatchDate == nil && g.DispatchDate != nil {
		v := *g.DispatchDate
		t.DispatchDate = &v
	}
	for _, p := range g.Ports {
		t.Ports = appendPort(t.Ports, p)
	}
	if t.UnresolvedCarrier == "" {
		t.UnresolvedCarrier = g.UnresolvedCarrier
	}
	if t.Frustration < g.Frustration {
		t.Frustration = g.Frustration
	}
	switch {
	case g.Carrier == "" || g.Carrier == t.Carrier:
	case t.Carrier == "":
		t.Carrier, t.CarrierSource = g.Carrier, store.CarrierFromStated
	default:
		m.raiseConflict(t, g.Carrier, res)
	}
}

func (m *Memory) applyStatedCarrier(t *Thread, name string, res *RecordResult) {
	switch {
	case t.Carrier == "":
		t.Carrier, t.CarrierSource = name, store.CarrierFromStated
	case t.Carrier == name:
		t.PendingCarrier = ""
	case t.PendingCarrier == name:
		m.confirmCarrier(t, res)
	default:
		m.raiseConflict(t, name, res)
	}
}

// raiseConflict never overwrites the recorded carrier; the stated one waits for confirmation
func (m *Memory) raiseConflict(t *Thread, stated string, res *RecordResult) {
	t.PendingCarrier = stated
	for _, c := range res.Conflicts {
		if c.Thread == t.Key && c.Stated == stated {
			return
		}
	}
	res.Conflicts = append(res.Conflicts, store.Conflict{Thread: t.Key, Recorded: t.Carrier, Stated: stated})
}

// confirmCarrier applies a carrier the user named twice in a row against the record
func (m *Memory) confirmCarrier(t *Thread, res *RecordResult) {
	t.Carrier, t.CarrierSource = t.PendingCarrier, store.CarrierFromStated
	t.PendingCarrier = ""
	res.Confirmed = append(res.Confirmed, t.Key)
}

// Elapsed returns hours since tracking was added, as of now
func (m *Memory) Elapsed(key string, now time.Time) (float64, bool) {
	t, ok := m.threads[key]
	if !ok || t.TrackingSince == nil {
		return 0, false
	}
	h := now.Sub(*t.TrackingSince).Hours()
	if h < 0 {
		h = 0
	}
	return h, true
}

// CurrentPhase is the phase of the most advanced thread
func (m *Memory) CurrentPhase() store.Phase {
	phase := store.PhaseDiagnosis
	for _, t := range m.threads {
		if t.Issue != "" && t.Phase > phase {
			phase = t.Phase
		}
	}
	return phase
}

// BeginIssue records the thread's issue. A new distinct category restarts the
// thread at diagnosis; the same category keeps its phase. Reports whether the category changed.
func (m *Memory) BeginIssue(key string, category store.Category) bool {
	t, ok := m.threads[key]
	if !ok || t.Issue == category {
		return false
	}
	t.Issue = category
	t.Phase = store.PhaseDiagnosis
	return true
}

// AdvancePhase moves the thread forward only; earlier phases are ignored
func (m *Memory) AdvancePhase(key string, phase store.Phase) {
	if t, ok := m.threads[key]; ok && phase > t.Phase {
		t.Phase = phase
	}
}

// MarkSolutionOffered appends to the thread's offer history, which is never pruned
func (m *Memory) MarkSolutionOffered(key string, step store.SolutionStep) {
	t, ok := m.threads[key]
	if !ok {
		return
	}
	t.offered[step.Category] = append(t.offered[step.Category], step.Rank)
	if step.Terminal {
		t.Escalated = true
	}
}

func (m *Memory) HasBeenOffered(key string, step store.SolutionStep) bool {
	t, ok := m.threads[key]
	if !ok {
		return false
	}
	for _, r := range t.offered[step.Category] {
		if r == step.Rank {
			return true
		}
	}
	return false
}

// HighestOffered returns the highest rank offered for the category, 0 if none
func (m *Memory) HighestOffered(key string, category store.Category) int {
	t, ok := m.threads[key]
	if !ok {
		return 0
	}
	high := 0
	for _, r := range t.offered[category] {
		if r > high {
			high = r
		}
	}
	return high
}

// FrustrationLevel is the session-wide level: the highest of any thread
func (m *Memory) FrustrationLevel() store.FrustrationLevel {
	level := store.FrustrationNone
	for _, t := range m.threads {
		if t.Frustration > level {
			level = t.Frustration
		}
	}
	return level
}

// SetFrustrationLevel raises the thread's level; it never lowers it
func (m *Memory) SetFrustrationLevel(key string, level store.FrustrationLevel) store.FrustrationLevel {
	t, ok := m.threads[key]
	if !ok {
		return store.FrustrationNone
	}
	if level > t.Frustration {
		t.Frustration = level
	}
	return t.Frustration
}

// Resolve moves the thread to verification and clears its frustration
func (m *Memory) Resolve(key string) {
	t, ok := m.threads[key]
	if !ok {
		return
	}
	if t.Phase < store.PhaseVerification {
		t.Phase = store.PhaseVerification
	}
	t.Frustration = store.FrustrationNone
	t.Stalled = 0
}

// NoteProgress counts consecutive turns on a thread that moved nothing
// forward; any progress resets the count.
func (m *Memory) NoteProgress(key string, progressed bool) {
	t, ok := m.threads[key]
	if !ok {
		return
	}
	if progressed {
		t.Stalled = 0
		return
	}
	t.Stalled++
}

func (m *Memory) MarkAsked(key string, c store.Clarification) {
	if t, ok := m.threads[key]; ok {
		t.asked[c] = true
	}
}

func (m *Memory) WasAsked(key string, c store.Clarification) bool {
	t, ok := m.threads[key]
	return ok && t.asked[c]
}

// PushMessage keeps the last two user messages for the frustration detector
func (m *Memory) PushMessage(text string) {
	m.recent = append(m.recent, text)
	if len(m.recent) > recentLimit {
		m.recent = m.recent[len(m.recent)-recentLimit:]
	}
}

func (m *Memory) RecentMessages() []string {
	return append([]string(nil), m.recent...)
}

func (m *Memory) SetAwaiting(c store.Clarification) {
	m.awaiting = c
}

func (m *Memory) Awaiting() store.Clarification {
	return m.awaiting
}

func containsThread(list []*Thread, t *Thread) bool {
	for _, x := range list {
		if x == t {
			return true
		}
	}
	return false
}

func appendPort(ports []store.Entity, ent store.Entity) []store.Entity {
	for i, p := range ports {
		if p.Value == ent.Value {
			if ent.Role != "" {
				ports[i].Role = ent.Role
			}
			return ports
		}
	}
	return append(ports, ent)
}
