package core

import (
	"sync"
	"time"
)

// DefaultPendingTTL bounds how long an upload may sit in the mapping step.
const DefaultPendingTTL = 30 * time.Minute

// pendingUploads parks uploads between HTTP requests. Expired entries are
// dropped by the sweeper, when a new upload is parked, or on lookup.
type pendingUploads struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	uploads map[string]*pendingEntry
}

type pendingEntry struct {
	upload  *Upload
	expires time.Time
}

func newPendingUploads(ttl time.Duration, now func() time.Time) *pendingUploads {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &pendingUploads{ttl: ttl, now: now, uploads: make(map[string]*pendingEntry)}
}

// put parks a copy of u; later changes to u by the caller are not seen.
func (p *pendingUploads) put(u *Upload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked()
	p.uploads[u.ID] = &pendingEntry{upload: u.clone(), expires: p.now().Add(p.ttl)}
}

// sweep drops expired uploads and returns how many were removed.
func (p *pendingUploads) sweep() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sweepLocked()
}

func (p *pendingUploads) sweepLocked() int {
	now := p.now()
	n := 0
	for id, e := range p.uploads {
		if now.After(e.expires) {
			delete(p.uploads, id)
			n++
		}
	}
	return n
}

// get returns a snapshot of the upload taken under the lock.
func (p *pendingUploads) get(id string) (*Upload, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.live(id)
	if !ok {
		return nil, false
	}
	return e.upload.clone(), true
}

// update runs fn on the upload while holding the registry lock. fn must not
// keep the pointer it is given.
func (p *pendingUploads) update(id string, fn func(*Upload)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.live(id)
	if !ok {
		return false
	}
	fn(e.upload)
	return true
}

// take removes the upload so only one caller can process it. The returned
// upload is no longer shared.
func (p *pendingUploads) take(id string) (*Upload, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.live(id)
	if !ok {
		return nil, false
	}
	delete(p.uploads, id)
	return e.upload, true
}

func (p *pendingUploads) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.uploads)
}

// live must be called with mu held.
func (p *pendingUploads) live(id string) (*pendingEntry, bool) {
	e, ok := p.uploads[id]
	if !ok {
		return nil, false
	}
	if p.now().After(e.expires) {
		delete(p.uploads, id)
		return nil, false
	}
	return e, true
}
