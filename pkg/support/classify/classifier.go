// Package classify maps conversation memory and the current message to one
// issue category per thread.
package classify

import (
	"time"

	"tracking-support-be/pkg/store"
	"tracking-support-be/pkg/support/carrier"
	"tracking-support-be/pkg/support/extract"
	"tracking-support-be/pkg/support/lexicon"
	"tracking-support-be/pkg/support/memory"
	"tracking-support-be/pkg/support/sla"
	"tracking-support-be/pkg/support/tracking"
)

// Input is everything the classifier reads for one turn. Memory is already
// updated with the turn's entities.
type Input struct {
	Text     string
	Now      time.Time
	Memory   *memory.Memory
	Record   memory.RecordResult
	Reported map[string]tracking.Snapshot
}

// Result holds the turn issue and the per-thread issues it was built from.
// For a batch, Issue wraps Threads; otherwise Issue equals Threads[0].
type Result struct {
	Issue    store.Issue            `json:"issue"`
	Threads  []store.Issue          `json:"threads"`
	Verdicts map[string]sla.Verdict `json:"verdicts,omitempty"`
}

type Classifier struct {
	kb *carrier.KnowledgeBase
	lx *lexicon.Lexicon
}

func NewClassifier(kb *carrier.KnowledgeBase, lx *lexicon.Lexicon) *Classifier {
	return &Classifier{kb: kb, lx: lx}
}

// turn carries per-call state through the thread checks
type turn struct {
	Input
	signals   map[lexicon.Signal]bool
	conflicts map[string]store.Conflict
	verdicts  map[string]sla.Verdict
}

// Classify is deterministic for a given memory and message
func (c *Classifier) Classify(in Input) Result {
	t := &turn{
		Input:     in,
		signals:   c.lx.Signals(in.Text),
		conflicts: make(map[string]store.Conflict),
		verdicts:  make(map[string]sla.Verdict),
	}
	for _, cf := range in.Record.Conflicts {
		t.conflicts[cf.Thread] = cf
	}

	keys := c.threadsToClassify(t)
	res := Result{Verdicts: t.verdicts}
	for _, key := range keys {
		th, ok := in.Memory.Thread(key)
		if !ok {
			continue
		}
		res.Threads = append(res.Threads, c.classifyThread(t, th))
	}

	switch len(res.Threads) {
	case 0:
		res.Issue = store.NewIssue("", store.Unclassified{Missing: store.ClarifyContainer})
		res.Threads = []store.Issue{res.Issue}
	case 1:
		res.Issue = res.Threads[0]
	default:
		res.Issue = store.NewIssue("", store.Batch{Items: res.Threads})
	}
	return res
}

// threadsToClassify is the threads touched this turn, widened to every
// identifier thread when the user talks about all of them at once
func (c *Classifier) threadsToClassify(t *turn) []string {
	keys := t.Record.Touched
	if !t.signals[lexicon.SignalBatch] {
		return keys
	}
	var all []string
	for _, th := range t.Memory.Threads() {
		if th.Key != memory.GeneralThread {
			all = append(all, th.Key)
		}
	}
	if len(all) >= 2 {
		return all
	}
	return keys
}

func (c *Classifier) classifyThread(t *turn, th *memory.Thread) store.Issue {
	general := th.Key == memory.GeneralThread

	if !general && th.Kind == store.KindMalformed {
		return c.formatMismatch(th)
	}
	if issue, ok := c.carrierNotSupported(th); ok {
		return issue
	}
	if general {
		return c.unclassified(t, th)
	}
	if issue, ok := c.carrierMismatch(t, th); ok {
		return issue
	}
	if issue, ok := c.portMismatch(t, th, t.signals[lexicon.SignalPortMismatch]); ok {
		return issue
	}
	if issue, ok := c.dispatchDateError(t, th, t.signals[lexicon.SignalDispatchDate]); ok {
		return issue
	}
	if t.signals[lexicon.SignalOutdated] {
		if issue, ok := c.outdatedData(t, th); ok {
			return issue
		}
	}
	if issue, ok := c.continuation(t, th); ok {
		return issue
	}
	return c.unclassified(t, th)
}

func (c *Classifier) formatMismatch(th *memory.Thread) store.Issue {
	fm := store.FormatMismatch{
		Raw:         th.Key,
		Reason:      extract.MalformedReason(th.Key),
		CarrierHint: th.Carrier,
	}
	if th.Carrier != "" {
		if p, ok := c.kb.ResolveByName(th.Carrier); ok {
			fm.SuggestedPrefixes = append(fm.SuggestedPrefixes, p.Prefixes...)
		}
	}
	return store.NewIssue(th.Key, fm)
}

func (c *Classifier) carrierNotSupported(th *memory.Thread) (store.Issue, bool) {
	if th.Carrier == "" && th.UnresolvedCarrier != "" {
		return store.NewIssue(th.Key, store.CarrierNotSupported{Name: th.UnresolvedCarrier}), true
	}
	if th.Carrier == "" {
		return store.Issue{}, false
	}
	p, ok := c.kb.ResolveByName(th.Carrier)
	if !ok {
		return store.NewIssue(th.Key, store.CarrierNotSupported{Name: th.Carrier}), true
	}
	if !p.Supported() {
		return store.NewIssue(th.Key, store.CarrierNotSupported{Name: p.Name, Tier: string(p.Tier)}), true
	}
	return store.Issue{}, false
}

func (c *Classifier) carrierMismatch(t *turn, th *memory.Thread) (store.Issue, bool) {
	if cf, ok := t.conflicts[th.Key]; ok {
		return store.NewIssue(th.Key, store.CarrierMismatch{Recorded: cf.Recorded, Stated: cf.Stated}), true
	}
	if th.PendingCarrier != "" {
		return store.NewIssue(th.Key, store.CarrierMismatch{Recorded: th.Carrier, Stated: th.PendingCarrier}), true
	}
	if t.signals[lexicon.SignalCarrierMismatch] && touched(t, th.Key) {
		return store.NewIssue(th.Key, store.CarrierMismatch{Recorded: th.Carrier}), true
	}
	if rep, ok := t.Reported[th.Key]; ok && rep.Carrier != "" && th.Carrier != "" {
		if p, ok := c.kb.ResolveByName(rep.Carrier); ok && p.Name != th.Carrier {
			return store.NewIssue(th.Key, store.CarrierMismatch{Recorded: th.Carrier, Stated: p.Name}), true
		}
	}
	return store.Issue{}, false
}

// portMismatch compares stated ports with carrier-reported ones. Without
// carrier data a port complaint in the message is enough.
func (c *Classifier) portMismatch(t *turn, th *memory.Thread, signalled bool) (store.Issue, bool) {
	pm := store.PortMismatch{}
	for _, p := range th.Ports {
		pm.Stated = append(pm.Stated, p.Value)
	}

	rep, known := t.Reported[th.Key]
	known = known && (rep.POL != "" || rep.POD != "")
	if known {
		pm.Reported = []string{rep.POL, rep.POD}
		for _, p := range th.Ports {
			if (p.Role == store.RolePOL && rep.POL != "" && p.Value != rep.POL) ||
				(p.Role == store.RolePOD && rep.POD != "" && p.Value != rep.POD) {
				return store.NewIssue(th.Key, pm), true
			}
		}
	}
	if signalled && touched(t, th.Key) {
		return store.NewIssue(th.Key, pm), true
	}
	return store.Issue{}, false
}

// dispatchDateError fires when the stated dispatch date is after the
// carrier's gate-in. A dispatch complaint counts only if gate-in is unknown.
func (c *Classifier) dispatchDateError(t *turn, th *memory.Thread, signalled bool) (store.Issue, bool) {
	de := store.DispatchDateError{Dispatch: th.DispatchDate}
	rep, ok := t.Reported[th.Key]
	if ok && rep.GateIn != nil {
		de.GateIn = rep.GateIn
		if th.DispatchDate != nil && th.DispatchDate.After(*rep.GateIn) {
			return store.NewIssue(th.Key, de), true
		}
		return store.Issue{}, false
	}
	if signalled && touched(t, th.Key) {
		return store.NewIssue(th.Key, de), true
	}
	return store.Issue{}, false
}

// outdatedData needs a known carrier; the SLA verdict may be indeterminate
func (c *Classifier) outdatedData(t *turn, th *memory.Thread) (store.Issue, bool) {
	if th.Carrier == "" {
		return store.Issue{}, false
	}
	p, ok := c.kb.ResolveByName(th.Carrier)
	if !ok {
		return store.Issue{}, false
	}
	elapsed, known := t.Memory.Elapsed(th.Key, t.Now)
	v := sla.Evaluate(p, elapsed, known)
	t.verdicts[th.Key] = v

	return store.NewIssue(th.Key, store.OutdatedData{
		Carrier:        p.Name,
		Tier:           string(p.Tier),
		ElapsedHours:   elapsed,
		ElapsedKnown:   known,
		Verdict:        v.Status,
		ThresholdHours: v.ThresholdHours,
	}), true
}

// continuation re-derives the thread's previous issue for follow-up messages
// that carry no new signal, so answers like "2 days ago" update the payload
func (c *Classifier) continuation(t *turn, th *memory.Thread) (store.Issue, bool) {
	if th.Phase == store.PhaseVerification {
		return store.Issue{}, false
	}
	switch th.Issue {
	case store.CategoryOutdatedData:
		return c.outdatedData(t, th)
	case store.CategoryCarrierMismatch:
		return store.NewIssue(th.Key, store.CarrierMismatch{Recorded: th.Carrier, Stated: th.PendingCarrier}), true
	case store.CategoryPortMismatch:
		return c.portMismatch(t, th, true)
	case store.CategoryDispatchDateError:
		if issue, ok := c.dispatchDateError(t, th, true); ok {
			return issue, true
		}
		return store.NewIssue(th.Key, store.DispatchDateError{Dispatch: th.DispatchDate}), true
	}
	return store.Issue{}, false
}

// unclassified picks the single most useful missing fact, preferring facts
// not yet asked for in this thread
func (c *Classifier) unclassified(t *turn, th *memory.Thread) store.Issue {
	var missing []store.Clarification
	if th.Key == memory.GeneralThread {
		missing = append(missing, store.ClarifyContainer)
	}
	if th.Carrier == "" {
		missing = append(missing, store.ClarifyCarrier)
	}
	if _, known := t.Memory.Elapsed(th.Key, t.Now); !known {
		missing = append(missing, store.ClarifyTimeframe)
	}
	if len(missing) == 0 {
		missing = append(missing, store.ClarifyDescription)
	}

	pick := missing[0]
	for _, m := range missing {
		if !t.Memory.WasAsked(th.Key, m) {
			pick = m
			break
		}
	}
	return store.NewIssue(th.Key, store.Unclassified{Missing: pick})
}

func touched(t *turn, key string) bool {
	for _, k := range t.Record.Touched {
		if k == key {
			return true
		}
	}
	return false
}
