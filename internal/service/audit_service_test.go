package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"tracking-support-be/internal/dto"
	"tracking-support-be/internal/entity"
	"tracking-support-be/internal/pkg/logger"
	"tracking-support-be/internal/repository/specification"
	"tracking-support-be/pkg/store"
	"tracking-support-be/pkg/support/dialogue"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTurnLogRepository struct {
	mu   sync.Mutex
	logs []*entity.TurnLog
	err  error
}

func (r *fakeTurnLogRepository) Create(_ context.Context, log *entity.TurnLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.logs = append(r.logs, log)
	return nil
}

func (r *fakeTurnLogRepository) FindAll(context.Context, ...specification.Specification) ([]*entity.TurnLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entity.TurnLog(nil), r.logs...), nil
}

func (r *fakeTurnLogRepository) Count(context.Context, ...specification.Specification) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.logs)), nil
}

func (r *fakeTurnLogRepository) stored() []*entity.TurnLog {
	logs, _ := r.FindAll(context.Background())
	return logs
}

func testTurn() (store.Turn, dialogue.Outcome) {
	step := &store.SolutionStep{Category: store.CategoryOutdatedData, Rank: 2, Key: "verify_carrier_selection"}
	turn := store.Turn{
		ID:        uuid.NewString(),
		Index:     3,
		Text:      "still not updating",
		Timestamp: time.Date(2024, time.May, 14, 9, 0, 0, 0, time.UTC),
		Entities:  []store.Entity{},
		Issue:     store.Issue{Category: store.CategoryOutdatedData, Thread: "MSCU7364555"},
		Offered:   step,
	}
	out := dialogue.Outcome{
		Intent:      dialogue.IntentDiagnosis,
		Issue:       turn.Issue,
		Phase:       store.PhaseSolution,
		Frustration: store.FrustrationMild,
		Step:        step,
	}
	return turn, out
}

func TestTurnMessage(t *testing.T) {
	turn, out := testTurn()

	m, err := turnMessage("s1", turn, out)
	require.NoError(t, err)

	assert.Equal(t, "s1", m.SessionId)
	assert.Equal(t, 3, m.TurnIndex)
	assert.Equal(t, "outdated_data", m.Category)
	assert.Equal(t, "mild", m.Frustration)
	assert.Equal(t, "verify_carrier_selection", m.StepKey)
	assert.Equal(t, 2, m.StepRank)

	var issue map[string]interface{}
	require.NoError(t, json.Unmarshal(m.Issue, &issue))
	assert.Equal(t, "MSCU7364555", issue["thread"])

	log := turnLogFrom(m)
	assert.Equal(t, turn.ID, log.TurnId.String())
	require.NotNil(t, log.StepKey)
	assert.Equal(t, "verify_carrier_selection", *log.StepKey)
}

func TestTurnPublisher_RejectsUnencodableTurn(t *testing.T) {
	pubSub := newPubSub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	received, err := pubSub.Subscribe(ctx, TopicTurns)
	require.NoError(t, err)

	turn, out := testTurn()
	turn.Entities = []store.Entity{{Kind: store.KindRelativeTime, Raw: "ages ago", ElapsedHours: math.NaN()}}

	err = NewTurnPublisher(pubSub).RecordTurn(ctx, "s1", turn, out)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal turn entities")
	select {
	case msg := <-received:
		t.Fatalf("unexpected message %s", msg.UUID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTurnLogFrom_NoStep(t *testing.T) {
	turn, out := testTurn()
	turn.Offered = nil
	turn.ID = "not-a-uuid"

	m, err := turnMessage("s1", turn, out)
	require.NoError(t, err)
	log := turnLogFrom(m)

	assert.Nil(t, log.StepKey)
	assert.NotEqual(t, uuid.Nil, log.TurnId)
}

func TestTurnAuditConsumer_PersistsAndNotifies(t *testing.T) {
	pubSub := newPubSub(t)
	repo := &fakeTurnLogRepository{}
	console := &recordingConsole{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, NewTurnAuditConsumer(pubSub, repo, console, logger.NewNopLogger()).Consume(ctx))

	turn, out := testTurn()
	require.NoError(t, NewTurnPublisher(pubSub).RecordTurn(ctx, "s1", turn, out))

	require.Eventually(t, func() bool { return len(repo.stored()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "s1", repo.stored()[0].SessionId)
	_, watched := console.counts()
	assert.Equal(t, 1, watched)
}

func TestTurnAuditConsumer_DatabaseFailureDoesNotBlock(t *testing.T) {
	pubSub := newPubSub(t)
	repo := &fakeTurnLogRepository{err: errors.New("connection refused")}
	console := &recordingConsole{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, NewTurnAuditConsumer(pubSub, repo, console, nil).Consume(ctx))

	publisher := NewTurnPublisher(pubSub)
	turn, out := testTurn()
	require.NoError(t, publisher.RecordTurn(ctx, "s1", turn, out))
	require.NoError(t, publisher.RecordTurn(ctx, "s1", turn, out))

	assert.Eventually(t, func() bool {
		_, watched := console.counts()
		return watched == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTurnAuditConsumer_WithoutDatabase(t *testing.T) {
	pubSub := newPubSub(t)
	console := &recordingConsole{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, NewTurnAuditConsumer(pubSub, nil, console, nil).Consume(ctx))

	turn, out := testTurn()
	require.NoError(t, NewTurnPublisher(pubSub).RecordTurn(ctx, "s1", turn, out))

	assert.Eventually(t, func() bool {
		_, watched := console.counts()
		return watched == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTurnHistoryService_List(t *testing.T) {
	ctx := context.Background()

	_, err := NewTurnHistoryService(nil).List(ctx, &dto.TurnHistoryRequest{SessionId: "s1"})
	assert.ErrorIs(t, err, ErrAuditDisabled)

	repo := &fakeTurnLogRepository{}
	turn, out := testTurn()
	m, err := turnMessage("s1", turn, out)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, turnLogFrom(m)))

	res, err := NewTurnHistoryService(repo).List(ctx, &dto.TurnHistoryRequest{SessionId: "s1"})

	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Total)
	require.Len(t, res.Turns, 1)
	assert.Equal(t, "verify_carrier_selection", res.Turns[0].StepKey)
	assert.Equal(t, turn.ID, res.Turns[0].TurnId)
}
