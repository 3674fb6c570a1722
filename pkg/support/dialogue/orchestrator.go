// Package dialogue runs one user message through the diagnostic engine and
// commits the result to the session's memory.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tracking-support-be/internal/pkg/logger"
	"tracking-support-be/pkg/store"
	"tracking-support-be/pkg/support/carrier"
	"tracking-support-be/pkg/support/classify"
	"tracking-support-be/pkg/support/extract"
	"tracking-support-be/pkg/support/frustration"
	"tracking-support-be/pkg/support/lexicon"
	"tracking-support-be/pkg/support/memory"
	"tracking-support-be/pkg/support/strategy"
	"tracking-support-be/pkg/support/tracking"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const module = "DialogueOrchestrator"

// ErrTurnAbandoned means the turn was cancelled while queued behind another
// turn of the same session. Memory was not touched.
var ErrTurnAbandoned = errors.New("turn abandoned before processing")

// SessionStore owns session lifetimes. Eviction is the store's business.
type SessionStore interface {
	LoadOrCreate(id string, now time.Time) (*memory.Session, bool)
	Save(session *memory.Session)
}

// Escalation is the opaque hand-off notification
type Escalation struct {
	SessionID   string                 `json:"session_id"`
	Thread      string                 `json:"thread,omitempty"`
	Category    store.Category         `json:"category"`
	Reason      string                 `json:"reason"`
	Frustration store.FrustrationLevel `json:"frustration"`
	TurnIndex   int                    `json:"turn_index"`
	At          time.Time              `json:"at"`
}

type Escalator interface {
	Escalate(ctx context.Context, e Escalation) error
}

// TurnRecorder receives every committed turn, e.g. for an audit log
type TurnRecorder interface {
	RecordTurn(ctx context.Context, sessionID string, turn store.Turn, outcome Outcome) error
}

// Escalation reasons
const (
	ReasonHumanRequested = "human_requested"
	ReasonFrustration    = "high_frustration"
	ReasonExhausted      = "steps_exhausted"
)

type Config struct {
	KnowledgeBase *carrier.KnowledgeBase
	Lexicon       *lexicon.Lexicon
	Steps         *strategy.Selector
	Sessions      SessionStore
	Tracking      tracking.Lookup
	Escalator     Escalator
	Recorder      TurnRecorder
	Logger        logger.ILogger

	// LookupTimeout bounds each tracking call; a timeout degrades to no data
	LookupTimeout time.Duration
}

type Orchestrator struct {
	lx         *lexicon.Lexicon
	extractor  *extract.Extractor
	classifier *classify.Classifier
	detector   *frustration.Detector
	steps      *strategy.Selector
	sessions   SessionStore
	lookup     tracking.Lookup
	escalator  Escalator
	recorder   TurnRecorder
	logger     logger.ILogger
	timeout    time.Duration
	tracer     trace.Tracer
}

func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.KnowledgeBase == nil {
		cfg.KnowledgeBase = carrier.Default()
	}
	if cfg.Lexicon == nil {
		cfg.Lexicon = lexicon.Default()
	}
	if cfg.Steps == nil {
		cfg.Steps = strategy.Default()
	}
	if cfg.Tracking == nil {
		cfg.Tracking = tracking.Noop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 2 * time.Second
	}

	return &Orchestrator{
		lx:         cfg.Lexicon,
		extractor:  extract.NewExtractor(cfg.KnowledgeBase, cfg.Lexicon),
		classifier: classify.NewClassifier(cfg.KnowledgeBase, cfg.Lexicon),
		detector:   frustration.NewDetector(cfg.Lexicon),
		steps:      cfg.Steps,
		sessions:   cfg.Sessions,
		lookup:     cfg.Tracking,
		escalator:  cfg.Escalator,
		recorder:   cfg.Recorder,
		logger:     cfg.Logger,
		timeout:    cfg.LookupTimeout,
		tracer:     otel.Tracer("tracking-support/dialogue"),
	}
}

// ProcessTurn handles one message. Turns of the same session are serialized;
// a turn still queued when ctx ends returns ErrTurnAbandoned. Once a turn
// starts it runs to completion and commits atomically.
func (o *Orchestrator) ProcessTurn(ctx context.Context, sessionID, text string, at time.Time) (Outcome, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	session, _ := o.sessions.LoadOrCreate(sessionID, at)

	if err := session.Acquire(ctx); err != nil {
		o.logger.Warn(module, "Turn abandoned while queued", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return Outcome{}, fmt.Errorf("%w: %v", ErrTurnAbandoned, err)
	}
	defer session.Release()

	// Past this point cancellation no longer applies
	runCtx := context.WithoutCancel(ctx)
	runCtx, span := o.tracer.Start(runCtx, "dialogue.ProcessTurn", trace.WithAttributes(
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	staged := session.Memory().Clone()
	t := &turnState{
		staged:  staged,
		text:    text,
		at:      at,
		index:   staged.BeginTurn(),
		signals: o.lx.Signals(text),
	}

	var out Outcome
	switch {
	case t.index == 1 && t.signals[lexicon.SignalGreeting]:
		out = o.greet()
	case t.signals[lexicon.SignalClosing] && t.index > 1 && !awaitingAnswer(staged):
		out = o.close()
	default:
		out = o.diagnose(runCtx, t)
	}

	staged.PushMessage(text)
	staged.SetAwaiting(out.Clarification)

	turn := store.Turn{
		ID:        uuid.NewString(),
		Index:     t.index,
		Text:      text,
		Timestamp: at,
		Entities:  t.entities,
		Issue:     out.Issue,
		Offered:   out.Step,
	}
	session.Commit(staged, turn)
	o.sessions.Save(session)

	out.SessionID = sessionID
	out.TurnID = turn.ID
	out.TurnIndex = t.index
	out.Phase = staged.CurrentPhase()
	out.Frustration = staged.FrustrationLevel()
	out.Threads = summarize(staged)

	span.SetAttributes(
		attribute.Int("turn.index", t.index),
		attribute.String("turn.intent", string(out.Intent)),
		attribute.String("issue.category", string(out.Issue.Category)),
		attribute.Bool("turn.escalated", out.Escalated),
	)

	o.afterCommit(runCtx, turn, out, t.escalations)
	return out, nil
}

// turnState is the working set of one turn
type turnState struct {
	staged      *memory.Memory
	text        string
	at          time.Time
	index       int
	signals     map[lexicon.Signal]bool
	entities    []store.Entity
	escalations []Escalation
}

func (o *Orchestrator) greet() Outcome {
	return Outcome{Intent: IntentGreeting}
}

func (o *Orchestrator) close() Outcome {
	return Outcome{Intent: IntentClosing}
}

func (o *Orchestrator) diagnose(ctx context.Context, t *turnState) Outcome {
	t.entities = o.extractor.Extract(t.text, t.at)
	rec := t.staged.RecordEntities(t.index, t.at, t.entities)

	out := Outcome{
		Intent:    IntentDiagnosis,
		Touched:   rec.Touched,
		Conflicts: rec.Conflicts,
	}

	if o.resolved(t) {
		for _, key := range rec.Touched {
			t.staged.Resolve(key)
		}
		out.Intent = IntentResolution
		if th, ok := t.staged.Thread(t.staged.ActiveThread()); ok && th.Issue != "" {
			out.Issue = store.Issue{Category: th.Issue, Thread: th.Key}
		}
		return out
	}

	reported := o.lookupAll(ctx, t.staged, rec.Touched)
	res := o.classifier.Classify(classify.Input{
		Text:     t.text,
		Now:      t.at,
		Memory:   t.staged,
		Record:   rec,
		Reported: reported,
	})
	out.Issue = res.Issue

	// Frustration before strategy so a human request wins this very turn
	history := t.staged.RecentMessages()
	var human bool
	for _, issue := range res.Threads {
		key := threadKey(issue)
		th, ok := t.staged.Thread(key)
		if !ok {
			continue
		}
		a := o.detector.Assess(t.text, history, th.Frustration)
		t.staged.SetFrustrationLevel(key, a.Level)
		human = human || a.HumanRequested
	}

	for _, issue := range res.Threads {
		if issue.Category != store.CategoryUnclassified {
			t.staged.BeginIssue(threadKey(issue), issue.Category)
		}
	}

	if res.Issue.Category == store.CategoryBatch {
		o.selectBatch(t, res, human, &out)
	} else {
		o.selectSingle(t, res, human, &out)
	}
	if v, ok := res.Verdicts[threadKey(res.Issue)]; ok {
		out.Verdict = &v
	}

	for _, issue := range res.Threads {
		key := threadKey(issue)
		t.staged.NoteProgress(key, out.Step != nil)
		if th, ok := t.staged.Thread(key); ok && th.Stalled >= StallLimit && !th.Escalated {
			out.Stalled = true
		}
	}
	return out
}

// resolved reports a real resolution confirmation. Negated phrases, fresh
// complaints and frustration markers all keep the turn in diagnosis.
func (o *Orchestrator) resolved(t *turnState) bool {
	if !t.signals[lexicon.SignalResolution] ||
		t.signals[lexicon.SignalResolutionVeto] ||
		t.signals[lexicon.SignalOutdated] {
		return false
	}
	return len(o.lx.Frustration(t.text)) == 0
}

// selectSingle applies the strategy to one thread's issue
func (o *Orchestrator) selectSingle(t *turnState, res classify.Result, human bool, out *Outcome) {
	issue := res.Issue
	key := threadKey(issue)
	th, ok := t.staged.Thread(key)
	if !ok {
		if u, isU := issue.Payload.(store.Unclassified); isU {
			out.Clarification = u.Missing
		}
		return
	}
	level := th.Frustration

	switch p := issue.Payload.(type) {
	case store.Unclassified:
		out.Clarification = p.Missing
		t.staged.MarkAsked(key, p.Missing)
		if level < store.FrustrationHigh {
			return
		}
	case store.OutdatedData:
		// Never assert a breach without a timeframe; ask once, then move on
		if !p.ElapsedKnown && !t.staged.WasAsked(key, store.ClarifyTimeframe) && level < store.FrustrationHigh {
			out.Clarification = store.ClarifyTimeframe
			t.staged.MarkAsked(key, store.ClarifyTimeframe)
			return
		}
	case store.CarrierMismatch:
		if p.Stated != "" {
			out.Clarification = store.ClarifyCarrierConfirmation
		}
	}

	sel := o.steps.Select(t.staged, key, issue.Category, level)
	o.apply(t, []string{key}, issue.Category, sel, reason(human, sel), out)
}

// selectBatch offers one batch-level step recorded against every item thread
func (o *Orchestrator) selectBatch(t *turnState, res classify.Result, human bool, out *Outcome) {
	var keys []string
	level := store.FrustrationNone
	for _, issue := range res.Threads {
		key := threadKey(issue)
		th, ok := t.staged.Thread(key)
		if !ok {
			continue
		}
		keys = append(keys, key)
		if th.Frustration > level {
			level = th.Frustration
		}
	}

	sel := o.steps.Select(batchHistory{mem: t.staged, keys: keys}, "", store.CategoryBatch, level)
	o.apply(t, keys, store.CategoryBatch, sel, reason(human, sel), out)
}

func (o *Orchestrator) apply(t *turnState, keys []string, category store.Category, sel strategy.Selection, why string, out *Outcome) {
	out.Escalated = sel.Escalate
	if sel.Step == nil {
		return
	}
	out.Step = sel.Step

	for _, key := range keys {
		th, _ := t.staged.Thread(key)
		alreadyEscalated := th.Escalated

		t.staged.MarkSolutionOffered(key, *sel.Step)
		t.staged.AdvancePhase(key, store.PhaseSolution)

		if sel.Step.Terminal && !alreadyEscalated {
			t.escalations = append(t.escalations, Escalation{
				Thread:      key,
				Category:    category,
				Reason:      why,
				Frustration: th.Frustration,
				TurnIndex:   t.index,
				At:          t.at,
			})
		}
	}
}

func reason(human bool, sel strategy.Selection) string {
	switch {
	case human:
		return ReasonHumanRequested
	case sel.Exhausted:
		return ReasonExhausted
	default:
		return ReasonFrustration
	}
}

// lookupAll fetches carrier data for the identifier threads in parallel.
// Each call has its own timeout; failures just leave the thread without data.
func (o *Orchestrator) lookupAll(ctx context.Context, mem *memory.Memory, keys []string) map[string]tracking.Snapshot {
	out := make(map[string]tracking.Snapshot)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, key := range keys {
		th, ok := mem.Thread(key)
		if !ok || key == memory.GeneralThread || th.Kind == store.KindMalformed {
			continue
		}
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, o.timeout)
			defer cancel()

			snap, err := o.lookup.Snapshot(callCtx, key)
			if err != nil {
				if !errors.Is(err, tracking.ErrNotFound) {
					o.logger.Warn(module, "Tracking lookup failed", map[string]interface{}{
						"thread": key,
						"error":  err.Error(),
					})
				}
				return
			}
			mu.Lock()
			out[key] = snap
			mu.Unlock()
		}(key)
	}
	wg.Wait()
	return out
}

// afterCommit notifies collaborators. Their failures are logged only:
// the turn is already committed.
func (o *Orchestrator) afterCommit(ctx context.Context, turn store.Turn, out Outcome, escalations []Escalation) {
	if o.escalator != nil {
		for _, e := range escalations {
			e.SessionID = out.SessionID
			if err := o.escalator.Escalate(ctx, e); err != nil {
				o.logger.Error(module, "Escalation notification failed", map[string]interface{}{
					"session_id": out.SessionID,
					"thread":     e.Thread,
					"error":      err.Error(),
				})
			}
		}
	}
	if o.recorder != nil {
		if err := o.recorder.RecordTurn(ctx, out.SessionID, turn, out); err != nil {
			o.logger.Warn(module, "Turn audit failed", map[string]interface{}{
				"session_id": out.SessionID,
				"turn_id":    turn.ID,
				"error":      err.Error(),
			})
		}
	}
}

// batchHistory treats the batch as one progression shared by its items
type batchHistory struct {
	mem  *memory.Memory
	keys []string
}

func (b batchHistory) HighestOffered(_ string, category store.Category) int {
	high := 0
	for _, k := range b.keys {
		if r := b.mem.HighestOffered(k, category); r > high {
			high = r
		}
	}
	return high
}

// awaitingAnswer reports whether the last reply asked for a specific fact.
// An open "anything else?" does not count.
func awaitingAnswer(mem *memory.Memory) bool {
	c := mem.Awaiting()
	return c != store.ClarifyNone && c != store.ClarifyDescription
}

func threadKey(issue store.Issue) string {
	if issue.Thread == "" {
		return memory.GeneralThread
	}
	return issue.Thread
}
