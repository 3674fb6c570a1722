package memory

import (
	"context"
	"testing"
	"time"

	"tracking-support-be/pkg/store"
	"tracking-support-be/pkg/support/carrier"
	"tracking-support-be/pkg/support/extract"
	"tracking-support-be/pkg/support/lexicon"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, time.May, 14, 10, 0, 0, 0, time.UTC)

func newExtractor() *extract.Extractor {
	return extract.NewExtractor(carrier.Default(), lexicon.Default())
}

func record(m *Memory, ex *extract.Extractor, text string) RecordResult {
	turn := m.BeginTurn()
	return m.RecordEntities(turn, now, ex.Extract(text, now))
}

func TestRecordEntities_MergesByNormalizedValue(t *testing.T) {
	ex := newExtractor()
	m := New()

	first := record(m, ex, "mscu7364555 is not updating")
	second := record(m, ex, "any news on MSCU7364555?")

	assert.Equal(t, []string{"MSCU7364555"}, first.Created)
	assert.Empty(t, second.Created)
	assert.Equal(t, []string{"MSCU7364555"}, second.Touched)
	require.Len(t, m.Threads(), 1)

	th, ok := m.Thread("MSCU7364555")
	require.True(t, ok)
	assert.Equal(t, "MSC", th.Carrier)
	assert.Equal(t, 1, th.FirstTurn)
	assert.Equal(t, 2, th.LastTurn)
}

func TestRecordEntities_ConflictingCarrierAcrossTurns(t *testing.T) {
	ex := newExtractor()
	m := New()

	record(m, ex, "container MSCU7364555 with MSC is stuck")
	res := record(m, ex, "the carrier for MSCU7364555 is Maersk")

	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, store.Conflict{Thread: "MSCU7364555", Recorded: "MSC", Stated: "Maersk"}, res.Conflicts[0])

	th, _ := m.Thread("MSCU7364555")
	assert.Equal(t, "MSC", th.Carrier, "conflict must not overwrite the recorded carrier")
	assert.Equal(t, "Maersk", th.PendingCarrier)

	confirm := record(m, ex, "yes, it is Maersk")
	assert.Equal(t, []string{"MSCU7364555"}, confirm.Confirmed)
	assert.Equal(t, "Maersk", th.Carrier)
	assert.Empty(t, th.PendingCarrier)
}

func TestRecordEntities_RestatingRecordedCarrierDropsPending(t *testing.T) {
	ex := newExtractor()
	m := New()

	record(m, ex, "MSCU7364555 from MSC")
	record(m, ex, "MSCU7364555 is Maersk")
	res := record(m, ex, "sorry, MSC is right")

	assert.Empty(t, res.Conflicts)
	th, _ := m.Thread("MSCU7364555")
	assert.Equal(t, "MSC", th.Carrier)
	assert.Empty(t, th.PendingCarrier)
}

func TestRecordEntities_ContextAttachesToActiveThread(t *testing.T) {
	ex := newExtractor()
	m := New()

	record(m, ex, "MAEU1234567 shows nothing")
	record(m, ex, "I added it 2 days ago")

	elapsed, ok := m.Elapsed("MAEU1234567", now)
	require.True(t, ok)
	assert.InDelta(t, 48, elapsed, 0.001)
	_, general := m.Thread(GeneralThread)
	assert.False(t, general)
}

func TestRecordEntities_GeneralContextAdoptedByFirstIdentifier(t *testing.T) {
	ex := newExtractor()
	m := New()

	record(m, ex, "my shipment with Hapag-Lloyd stopped updating yesterday")
	record(m, ex, "it's HLXU1234567")

	th, ok := m.Thread("HLXU1234567")
	require.True(t, ok)
	assert.Equal(t, "Hapag-Lloyd", th.Carrier)
	elapsed, known := m.Elapsed("HLXU1234567", now)
	require.True(t, known)
	assert.InDelta(t, 24, elapsed, 0.001)
	assert.Equal(t, "HLXU1234567", m.ActiveThread())
}

func TestRecordEntities_AmbiguousTimeMarksUnknown(t *testing.T) {
	ex := newExtractor()
	m := New()

	record(m, ex, "OOLU1234567 was added a while ago")

	th, _ := m.Thread("OOLU1234567")
	assert.True(t, th.ElapsedUnknown)
	_, known := m.Elapsed("OOLU1234567", now)
	assert.False(t, known)
}

func TestPhase_NeverRegressesWithoutNewIssue(t *testing.T) {
	m := New()
	m.RecordEntities(m.BeginTurn(), now, []store.Entity{{Kind: store.KindContainer, Value: "MSCU7364555"}})

	assert.True(t, m.BeginIssue("MSCU7364555", store.CategoryOutdatedData))
	m.AdvancePhase("MSCU7364555", store.PhaseVerification)
	m.AdvancePhase("MSCU7364555", store.PhaseDiagnosis)
	m.AdvancePhase("MSCU7364555", store.PhaseSolution)
	assert.False(t, m.BeginIssue("MSCU7364555", store.CategoryOutdatedData))

	th, _ := m.Thread("MSCU7364555")
	assert.Equal(t, store.PhaseVerification, th.Phase)
	assert.Equal(t, store.PhaseVerification, m.CurrentPhase())

	assert.True(t, m.BeginIssue("MSCU7364555", store.CategoryPortMismatch))
	assert.Equal(t, store.PhaseDiagnosis, th.Phase)
}

func TestCurrentPhase_MostAdvancedThread(t *testing.T) {
	m := New()
	m.RecordEntities(m.BeginTurn(), now, []store.Entity{
		{Kind: store.KindContainer, Value: "MSCU7364555"},
		{Kind: store.KindContainer, Value: "MAEU1234567"},
	})
	m.BeginIssue("MSCU7364555", store.CategoryOutdatedData)
	m.BeginIssue("MAEU1234567", store.CategoryOutdatedData)
	m.AdvancePhase("MSCU7364555", store.PhaseSolution)

	assert.Equal(t, store.PhaseSolution, m.CurrentPhase())
}

func TestOfferedHistory_AppendOnly(t *testing.T) {
	m := New()
	m.RecordEntities(m.BeginTurn(), now, []store.Entity{{Kind: store.KindContainer, Value: "MSCU7364555"}})

	step1 := store.SolutionStep{Category: store.CategoryOutdatedData, Rank: 1, Key: "explain_update_window"}
	step2 := store.SolutionStep{Category: store.CategoryOutdatedData, Rank: 2, Key: "verify_carrier_selection"}
	m.MarkSolutionOffered("MSCU7364555", step1)
	m.MarkSolutionOffered("MSCU7364555", step2)

	assert.True(t, m.HasBeenOffered("MSCU7364555", step1))
	assert.True(t, m.HasBeenOffered("MSCU7364555", step2))
	assert.Equal(t, 2, m.HighestOffered("MSCU7364555", store.CategoryOutdatedData))
	assert.Equal(t, 0, m.HighestOffered("MSCU7364555", store.CategoryFormatMismatch))

	// A category change and back keeps the history
	m.BeginIssue("MSCU7364555", store.CategoryPortMismatch)
	m.BeginIssue("MSCU7364555", store.CategoryOutdatedData)
	assert.Equal(t, 2, m.HighestOffered("MSCU7364555", store.CategoryOutdatedData))
}

func TestFrustration_MonotonicUntilResolved(t *testing.T) {
	m := New()
	m.RecordEntities(m.BeginTurn(), now, []store.Entity{{Kind: store.KindContainer, Value: "MSCU7364555"}})

	assert.Equal(t, store.FrustrationHigh, m.SetFrustrationLevel("MSCU7364555", store.FrustrationHigh))
	assert.Equal(t, store.FrustrationHigh, m.SetFrustrationLevel("MSCU7364555", store.FrustrationNone))
	assert.Equal(t, store.FrustrationHigh, m.FrustrationLevel())

	m.Resolve("MSCU7364555")
	assert.Equal(t, store.FrustrationNone, m.FrustrationLevel())
	th, _ := m.Thread("MSCU7364555")
	assert.Equal(t, store.PhaseVerification, th.Phase)
}

func TestNoteProgress_CountsStalledTurns(t *testing.T) {
	m := New()
	m.RecordEntities(m.BeginTurn(), now, []store.Entity{{Kind: store.KindContainer, Value: "MSCU7364555"}})

	m.NoteProgress("MSCU7364555", false)
	m.NoteProgress("MSCU7364555", false)
	th, _ := m.Thread("MSCU7364555")
	assert.Equal(t, 2, th.Stalled)

	m.NoteProgress("MSCU7364555", true)
	assert.Equal(t, 0, th.Stalled)

	m.NoteProgress("MSCU7364555", false)
	m.Resolve("MSCU7364555")
	assert.Equal(t, 0, th.Stalled)

	m.NoteProgress("unknown", false)
	_, ok := m.Thread("unknown")
	assert.False(t, ok)
}

func TestClone_IsIndependent(t *testing.T) {
	m := New()
	m.RecordEntities(m.BeginTurn(), now, []store.Entity{{Kind: store.KindContainer, Value: "MSCU7364555"}})
	m.MarkAsked("MSCU7364555", store.ClarifyTimeframe)

	c := m.Clone()
	c.BeginTurn()
	c.MarkSolutionOffered("MSCU7364555", store.SolutionStep{Category: store.CategoryOutdatedData, Rank: 1})
	c.SetFrustrationLevel("MSCU7364555", store.FrustrationMild)
	c.PushMessage("hello")

	assert.Equal(t, 1, m.TurnCount())
	assert.Equal(t, 0, m.HighestOffered("MSCU7364555", store.CategoryOutdatedData))
	assert.Equal(t, store.FrustrationNone, m.FrustrationLevel())
	assert.Empty(t, m.RecentMessages())
	assert.True(t, c.WasAsked("MSCU7364555", store.ClarifyTimeframe))
}

func TestRecentMessages_KeepsLastTwo(t *testing.T) {
	m := New()
	m.PushMessage("one")
	m.PushMessage("two")
	m.PushMessage("three")

	assert.Equal(t, []string{"two", "three"}, m.RecentMessages())
}

func TestSession_AcquireHonorsContext(t *testing.T) {
	s := NewSession("abc", now)
	require.NoError(t, s.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Acquire(ctx), context.DeadlineExceeded)

	s.Release()
	require.NoError(t, s.Acquire(context.Background()))
	s.Release()
}

func TestSession_CommitSwapsMemory(t *testing.T) {
	s := NewSession("abc", now)
	require.NoError(t, s.Acquire(context.Background()))

	staged := s.Memory().Clone()
	idx := staged.BeginTurn()
	staged.RecordEntities(idx, now, []store.Entity{{Kind: store.KindContainer, Value: "MSCU7364555"}})
	assert.Empty(t, s.Memory().Threads())

	s.Commit(staged, store.Turn{Index: idx, Text: "MSCU7364555", Timestamp: now.Add(time.Minute)})
	s.Release()

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TurnCount)
	assert.Len(t, snap.Turns, 1)
	assert.Len(t, snap.Threads, 1)
	assert.Equal(t, now.Add(time.Minute), snap.LastActive)
}
