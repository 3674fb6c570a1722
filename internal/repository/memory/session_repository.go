package memory

import (
	"sync"
	"time"

	engine "tracking-support-be/pkg/support/memory"

	"github.com/patrickmn/go-cache"
)

// SessionRepository keeps conversation sessions in process memory. Every
// access slides the expiry forward; idle sessions are purged in the background.
type SessionRepository struct {
	cache *cache.Cache
	ttl   time.Duration
	mu    sync.Mutex
}

func NewSessionRepository(ttl time.Duration) *SessionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	// Purge expired items every 10 minutes
	c := cache.New(ttl, 10*time.Minute)
	return &SessionRepository{
		cache: c,
		ttl:   ttl,
	}
}

// LoadOrCreate returns the live session for id, creating it when absent or
// expired. The bool reports creation.
func (r *SessionRepository) LoadOrCreate(id string, now time.Time) (*engine.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if x, found := r.cache.Get(id); found {
		s := x.(*engine.Session)
		r.cache.Set(id, s, cache.DefaultExpiration)
		return s, false
	}
	s := engine.NewSession(id, now)
	r.cache.Set(id, s, cache.DefaultExpiration)
	return s, true
}

// Save refreshes the expiry of a live session. A session evicted while its
// turn was running stays evicted, and a newer session under the same id is
// never overwritten.
func (r *SessionRepository) Save(session *engine.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	x, found := r.cache.Get(session.ID)
	if !found || x.(*engine.Session) != session {
		return
	}
	_ = r.cache.Replace(session.ID, session, cache.DefaultExpiration)
}

func (r *SessionRepository) Get(sessionID string) (*engine.Session, bool) {
	if x, found := r.cache.Get(sessionID); found {
		return x.(*engine.Session), true
	}
	return nil, false
}

// Delete evicts a session. A turn already running on it still completes but
// its result is not reachable afterwards.
func (r *SessionRepository) Delete(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.cache.Get(sessionID); !found {
		return false
	}
	r.cache.Delete(sessionID)
	return true
}

func (r *SessionRepository) Count() int {
	return r.cache.ItemCount()
}
