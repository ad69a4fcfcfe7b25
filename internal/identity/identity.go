// Package identity implements the cross-version self_id namespace: v11 and
// v12 adapters in the same process share one registry so that a self_id
// connected under one protocol version is visibly occupied to the other.
package identity

import "sync"

// Registry tracks which protocol currently owns each connected self_id.
type Registry struct {
	mu      sync.Mutex
	claimed map[string]string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{claimed: map[string]string{}}
}

// Claim registers selfID as owned by owner (e.g. "v11" or "v12"), and
// reports whether the claim succeeded — it fails if selfID is already
// claimed by any owner, including the same one reconnecting.
func (r *Registry) Claim(selfID, owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.claimed[selfID]; exists {
		return false
	}
	r.claimed[selfID] = owner
	return true
}

// Release frees selfID, but only if it is still owned by owner.
func (r *Registry) Release(selfID, owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claimed[selfID] == owner {
		delete(r.claimed, selfID)
	}
}

// Owner returns who currently owns selfID, if anyone.
func (r *Registry) Owner(selfID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.claimed[selfID]
	return owner, ok
}
