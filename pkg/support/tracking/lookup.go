// Package tracking is the boundary to live carrier tracking data. Lookups are
// optional context for the classifier; a miss or timeout is never fatal.
package tracking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when the tracking source has no record of an identifier
var ErrNotFound = errors.New("tracking record not found")

// Snapshot is what the carrier reports for one identifier
type Snapshot struct {
	Identifier  string     `json:"identifier"`
	Carrier     string     `json:"carrier,omitempty"`
	POL         string     `json:"pol,omitempty"`
	POD         string     `json:"pod,omitempty"`
	GateIn      *time.Time `json:"gate_in,omitempty"`
	LastEventAt *time.Time `json:"last_event_at,omitempty"`
}

// Lookup fetches carrier-reported data. Implementations must honor ctx.
type Lookup interface {
	Snapshot(ctx context.Context, identifier string) (Snapshot, error)
}

// Noop never knows anything
type Noop struct{}

func (Noop) Snapshot(context.Context, string) (Snapshot, error) {
	return Snapshot{}, ErrNotFound
}

// Static serves a fixed set of snapshots, keyed by upper-case identifier
type Static struct {
	mu      sync.RWMutex
	records map[string]Snapshot
}

func NewStatic(records ...Snapshot) *Static {
	s := &Static{records: make(map[string]Snapshot, len(records))}
	for _, r := range records {
		s.Put(r)
	}
	return s
}

func (s *Static) Put(r Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Identifier = strings.ToUpper(r.Identifier)
	s.records[r.Identifier] = r
}

func (s *Static) Snapshot(ctx context.Context, identifier string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[strings.ToUpper(identifier)]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return r, nil
}
