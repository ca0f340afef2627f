package hichain

import (
	"fmt"
	"sync"

	"github.com/backkem/hichain/pkg/session"
	"github.com/backkem/hichain/pkg/status"
)

// entry is one registered session. mu serializes OnReceive so that a
// handle is never driven by two goroutines at once.
type entry struct {
	mu      sync.Mutex
	id      Identity
	groupID string
	traceID string
	params  *ProtocolParams
	sess    *session.Session
}

// registry maps host session ids to sessions.
//
// Ids are chosen by the host. NextID hands out ids for hosts without their
// own scheme, wrapping around and skipping ids that are in use.
type registry struct {
	sessions    map[uint64]*entry
	maxSessions int
	nextID      uint64

	mu sync.RWMutex
}

func newRegistry(maxSessions int) *registry {
	return &registry{
		sessions:    make(map[uint64]*entry),
		maxSessions: maxSessions,
		nextID:      1,
	}
}

// add registers e. A full registry returns status.ErrResourceExhausted.
func (r *registry) add(e *entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[e.id.SessionID]; exists {
		return fmt.Errorf("%w: %d", ErrSessionExists, e.id.SessionID)
	}
	if len(r.sessions) >= r.maxSessions {
		return fmt.Errorf("%w: %d sessions", status.ErrResourceExhausted, r.maxSessions)
	}
	r.sessions[e.id.SessionID] = e
	return nil
}

// remove drops the session. Missing ids are ignored.
func (r *registry) remove(id uint64) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.sessions[id]
	delete(r.sessions, id)
	return e
}

func (r *registry) find(id uint64) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// nextFreeID returns an id not currently registered, starting after the
// last one handed out. Zero is never returned.
func (r *registry) nextFreeID() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		id := r.nextID
		r.nextID++
		if r.nextID == 0 {
			r.nextID = 1
		}
		if _, exists := r.sessions[id]; !exists {
			return id
		}
	}
}

// drain removes and returns every session.
func (r *registry) drain() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entry, 0, len(r.sessions))
	for id, e := range r.sessions {
		out = append(out, e)
		delete(r.sessions, id)
	}
	return out
}
