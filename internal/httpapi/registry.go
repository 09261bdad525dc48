package httpapi

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdrpinto/gridpath"
)

// registry keeps path request handles pollable for ttl after they finish.
// Unfinished requests are never evicted.
type registry struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	requests map[uuid.UUID]*registryEntry
}

type registryEntry struct {
	request  *gridpath.PathRequest
	finished time.Time
}

func newRegistry(ttl time.Duration) *registry {
	return &registry{
		ttl:      ttl,
		now:      time.Now,
		requests: make(map[uuid.UUID]*registryEntry),
	}
}

func (r *registry) add(request *gridpath.PathRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	r.requests[request.ID] = &registryEntry{request: request}
}

func (r *registry) get(id uuid.UUID) (*gridpath.PathRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	entry, ok := r.requests[id]
	if !ok {
		return nil, false
	}
	return entry.request, true
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

// sweepLocked stamps newly finished requests and evicts expired ones.
func (r *registry) sweepLocked() {
	now := r.now()
	for id, entry := range r.requests {
		if entry.finished.IsZero() {
			select {
			case <-entry.request.Done():
				entry.finished = now
			default:
			}
			continue
		}
		if now.Sub(entry.finished) >= r.ttl {
			delete(r.requests, id)
		}
	}
}
