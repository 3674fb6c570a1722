package dialogue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"tracking-support-be/pkg/store"
	"tracking-support-be/pkg/support/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type mapStore struct {
	mu       sync.Mutex
	sessions map[string]*memory.Session
}

func newMapStore() *mapStore {
	return &mapStore{sessions: make(map[string]*memory.Session)}
}

func (m *mapStore) LoadOrCreate(id string, now time.Time) (*memory.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, false
	}
	s := memory.NewSession(id, now)
	m.sessions[id] = s
	return s, true
}

func (m *mapStore) Save(s *memory.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

type recordingEscalator struct {
	mu    sync.Mutex
	calls []Escalation
}

func (r *recordingEscalator) Escalate(_ context.Context, e Escalation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, e)
	return nil
}

func (r *recordingEscalator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type harness struct {
	t     *testing.T
	orch  *Orchestrator
	store *mapStore
	esc   *recordingEscalator
	clock time.Time
}

func newHarness(t *testing.T) *harness {
	st := newMapStore()
	esc := &recordingEscalator{}
	return &harness{
		t:     t,
		orch:  NewOrchestrator(Config{Sessions: st, Escalator: esc}),
		store: st,
		esc:   esc,
		clock: time.Date(2024, time.May, 14, 9, 0, 0, 0, time.UTC),
	}
}

func (h *harness) say(session, text string) Outcome {
	h.clock = h.clock.Add(time.Minute)
	out, err := h.orch.ProcessTurn(context.Background(), session, text, h.clock)
	require.NoError(h.t, err)
	return out
}

func TestProcessTurn_OutdatedConversation(t *testing.T) {
	h := newHarness(t)

	out := h.say("s1", "Hi")
	assert.Equal(t, IntentGreeting, out.Intent)
	assert.Nil(t, out.Step)

	out = h.say("s1", "MSCU7364555 is not updating")
	assert.Equal(t, store.CategoryOutdatedData, out.Issue.Category)
	assert.Equal(t, store.ClarifyTimeframe, out.Clarification)
	require.NotNil(t, out.Verdict)
	assert.Equal(t, store.VerdictIndeterminate, out.Verdict.Status)
	assert.Nil(t, out.Step, "no solution before the timeframe is known")

	out = h.say("s1", "I added it 30 hours ago")
	assert.Equal(t, store.CategoryOutdatedData, out.Issue.Category)
	assert.True(t, out.Verdict.Breach())
	require.NotNil(t, out.Step)
	assert.Equal(t, "explain_update_window", out.Step.Key)
	assert.Equal(t, store.PhaseSolution, out.Phase)

	out = h.say("s1", "still not updating")
	require.NotNil(t, out.Step)
	assert.Equal(t, "verify_carrier_selection", out.Step.Key)
	assert.Equal(t, store.FrustrationMild, out.Frustration)

	out = h.say("s1", "this is useless, still not working")
	require.NotNil(t, out.Step)
	assert.True(t, out.Step.Terminal)
	assert.True(t, out.Escalated)
	assert.Equal(t, store.FrustrationHigh, out.Frustration)
	require.Equal(t, 1, h.esc.count())
	assert.Equal(t, ReasonFrustration, h.esc.calls[0].Reason)
	assert.Equal(t, "s1", h.esc.calls[0].SessionID)

	out = h.say("s1", "hello? any news")
	assert.Nil(t, out.Step, "hand-off is never offered twice")
	assert.True(t, out.Escalated)
	assert.Equal(t, 1, h.esc.count())
	assert.Equal(t, 6, out.TurnIndex)
}

func TestProcessTurn_OfferedRanksStrictlyIncrease(t *testing.T) {
	h := newHarness(t)

	h.say("s1", "MAEU1234567 no updates since yesterday")
	messages := []string{"still no updates", "any progress?", "nothing changed", "ok", "and now?"}
	for _, m := range messages {
		h.say("s1", m)
	}

	sess, _ := h.store.LoadOrCreate("s1", h.clock)
	snap, err := sess.Snapshot(context.Background())
	require.NoError(t, err)

	last := map[store.Category]int{}
	for _, turn := range snap.Turns {
		if turn.Offered == nil {
			continue
		}
		assert.Greater(t, turn.Offered.Rank, last[turn.Offered.Category], "turn %d", turn.Index)
		last[turn.Offered.Category] = turn.Offered.Rank
	}
	assert.Equal(t, 5, last[store.CategoryOutdatedData])
}

func TestProcessTurn_ConflictingCarrier(t *testing.T) {
	h := newHarness(t)

	h.say("s1", "MSCU7364555 with MSC is not updating")
	out := h.say("s1", "the carrier for MSCU7364555 is Maersk")

	assert.Equal(t, store.CategoryCarrierMismatch, out.Issue.Category)
	require.Len(t, out.Conflicts, 1)
	assert.Equal(t, "MSC", out.Conflicts[0].Recorded)
	assert.Equal(t, "Maersk", out.Conflicts[0].Stated)
	assert.Equal(t, store.ClarifyCarrierConfirmation, out.Clarification)
	require.NotNil(t, out.Step)
	assert.Equal(t, "confirm_carrier", out.Step.Key)
	require.Len(t, out.Threads, 1)
	assert.Equal(t, "MSC", out.Threads[0].Carrier)
}

func TestProcessTurn_FormatMismatch(t *testing.T) {
	h := newHarness(t)

	out := h.say("s1", "MSC1234567 not tracking")

	assert.Equal(t, store.CategoryFormatMismatch, out.Issue.Category)
	require.NotNil(t, out.Step)
	assert.Equal(t, "explain_container_format", out.Step.Key)
}

func TestProcessTurn_HumanRequestHandsOffImmediately(t *testing.T) {
	h := newHarness(t)

	out := h.say("s1", "MSCU7364555 not updating, let me talk to a human")

	require.NotNil(t, out.Step)
	assert.True(t, out.Step.Terminal)
	assert.Equal(t, store.FrustrationHigh, out.Frustration)
	require.Equal(t, 1, h.esc.count())
	assert.Equal(t, ReasonHumanRequested, h.esc.calls[0].Reason)
}

func TestProcessTurn_ResolutionMovesToVerification(t *testing.T) {
	h := newHarness(t)

	h.say("s1", "OOLU1234567 no updates for 2 days")
	h.say("s1", "still not updating")
	out := h.say("s1", "it's working now")
	assert.Equal(t, IntentResolution, out.Intent)
	assert.Equal(t, store.PhaseVerification, out.Phase)
	assert.Equal(t, store.FrustrationNone, out.Frustration)

	out = h.say("s1", "thanks")
	assert.Equal(t, store.PhaseVerification, out.Phase)
	assert.Nil(t, out.Step)

	out = h.say("s1", "no thanks")
	assert.Equal(t, IntentClosing, out.Intent)
}

func TestProcessTurn_NegatedResolutionKeepsDiagnosing(t *testing.T) {
	h := newHarness(t)

	h.say("s1", "MSCU7364555 is not updating")
	h.say("s1", "I added it 30 hours ago")
	out := h.say("s1", "still not updating")
	require.Equal(t, store.FrustrationMild, out.Frustration)

	out = h.say("s1", "This is useless, it is still not updating now")

	assert.Equal(t, IntentDiagnosis, out.Intent)
	assert.NotEqual(t, store.PhaseVerification, out.Phase)
	assert.Equal(t, store.FrustrationHigh, out.Frustration)
	assert.True(t, out.Escalated)
	assert.Equal(t, 1, h.esc.count())
}

func TestProcessTurn_FlagsStalledThread(t *testing.T) {
	h := newHarness(t)

	out := h.say("s1", "ABCU1234567 please check")
	require.Nil(t, out.Step)
	assert.False(t, out.Stalled)

	h.say("s1", "ABCU1234567?")
	out = h.say("s1", "ABCU1234567 please")

	assert.Nil(t, out.Step)
	assert.True(t, out.Stalled)
	var stalled int
	for _, th := range out.Threads {
		if th.Key == "ABCU1234567" {
			stalled = th.Stalled
		}
	}
	assert.Equal(t, StallLimit, stalled)
}

func TestProcessTurn_ClosingNotConfusedWithAnswer(t *testing.T) {
	h := newHarness(t)

	h.say("s1", "ABCU1234567 is stuck")
	out := h.say("s1", "no")
	assert.NotEqual(t, IntentClosing, out.Intent)
}

func TestProcessTurn_BatchSharesOneProgression(t *testing.T) {
	h := newHarness(t)

	out := h.say("s1", "MSCU7364555 and MAEU1234567 have no updates since yesterday")
	assert.Equal(t, store.CategoryBatch, out.Issue.Category)
	require.NotNil(t, out.Step)
	assert.Equal(t, "summarize_per_container", out.Step.Key)

	out = h.say("s1", "all of my containers are still not updating")
	require.NotNil(t, out.Step)
	assert.Equal(t, "bulk_refresh_request", out.Step.Key)
}

func TestProcessTurn_AbandonedWhileQueued(t *testing.T) {
	h := newHarness(t)
	sess, _ := h.store.LoadOrCreate("s1", h.clock)
	require.NoError(t, sess.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.orch.ProcessTurn(ctx, "s1", "MSCU7364555 not updating", h.clock)
	assert.ErrorIs(t, err, ErrTurnAbandoned)

	sess.Release()
	out := h.say("s1", "MSCU7364555 not updating")
	assert.Equal(t, 1, out.TurnIndex, "the abandoned turn left no trace")
}

func TestProcessTurn_ConcurrentSessions(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	const sessions, turns = 8, 6

	var wg sync.WaitGroup
	for s := 0; s < sessions; s++ {
		for i := 0; i < turns; i++ {
			wg.Add(1)
			go func(s int) {
				defer wg.Done()
				_, err := h.orch.ProcessTurn(context.Background(), fmt.Sprintf("s%d", s), "MSCU7364555 still no updates", h.clock)
				assert.NoError(t, err)
			}(s)
		}
	}
	wg.Wait()

	for s := 0; s < sessions; s++ {
		sess, _ := h.store.LoadOrCreate(fmt.Sprintf("s%d", s), h.clock)
		snap, err := sess.Snapshot(context.Background())
		require.NoError(t, err)
		require.Len(t, snap.Turns, turns)
		for i, turn := range snap.Turns {
			assert.Equal(t, i+1, turn.Index)
		}
	}
}
