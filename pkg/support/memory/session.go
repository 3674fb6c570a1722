package memory

import (
	"context"
	"time"

	"tracking-support-be/pkg/store"
)

// Session owns one Memory and the immutable turn log. Turns are serialized
// through lock; callers must Acquire before reading Memory for a new turn.
type Session struct {
	ID         string
	CreatedAt  time.Time
	LastActive time.Time

	mem   *Memory
	turns []store.Turn
	lock  chan struct{}
}

func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:         id,
		CreatedAt:  now,
		LastActive: now,
		mem:        New(),
		lock:       make(chan struct{}, 1),
	}
}

// Acquire waits for exclusive access to the session. A turn still queued when
// ctx is done returns ctx.Err() and leaves the session untouched.
func (s *Session) Acquire(ctx context.Context) error {
	// An already-cancelled caller must not win the race against a free lock
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) Release() {
	<-s.lock
}

// Memory returns the committed memory. Only valid while holding the lock.
func (s *Session) Memory() *Memory {
	return s.mem
}

// Commit swaps in the staged memory and appends the turn in one step
func (s *Session) Commit(staged *Memory, turn store.Turn) {
	s.mem = staged
	s.turns = append(s.turns, turn)
	s.LastActive = turn.Timestamp
}

// Snapshot is a read-only copy of a session for inspection endpoints
type Snapshot struct {
	ID          string                 `json:"id"`
	CreatedAt   time.Time              `json:"created_at"`
	LastActive  time.Time              `json:"last_active"`
	TurnCount   int                    `json:"turn_count"`
	Phase       store.Phase            `json:"phase"`
	Frustration store.FrustrationLevel `json:"frustration"`
	Threads     []Thread               `json:"threads"`
	Turns       []store.Turn           `json:"turns"`
}

// Snapshot copies the session state under the session lock
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := s.Acquire(ctx); err != nil {
		return Snapshot{}, err
	}
	defer s.Release()

	snap := Snapshot{
		ID:          s.ID,
		CreatedAt:   s.CreatedAt,
		LastActive:  s.LastActive,
		TurnCount:   s.mem.TurnCount(),
		Phase:       s.mem.CurrentPhase(),
		Frustration: s.mem.FrustrationLevel(),
		Turns:       append([]store.Turn(nil), s.turns...),
	}
	for _, t := range s.mem.Clone().Threads() {
		snap.Threads = append(snap.Threads, *t)
	}
	return snap, nil
}
