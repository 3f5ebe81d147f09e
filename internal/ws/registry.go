package ws

import "sync"

// Registry is the process-wide set of open connections. It is the single
// source of truth for the current connection count used by readiness probes
// and stats snapshots. Injected into the server and dispatcher rather than
// held as a package global, so tests and multi-instance setups stay isolated.
type Registry struct {
	mu    sync.RWMutex
	conns map[*Conn]struct{}
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[*Conn]struct{}),
	}
}

// Add registers an open connection.
func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c] = struct{}{}
}

// Remove unregisters a connection. Removing an unknown connection is a no-op.
func (r *Registry) Remove(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c)
}

// Count returns the number of open connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Range calls fn for each open connection until fn returns false. The
// snapshot is taken under the lock; fn runs outside it so it may close
// connections without deadlocking.
func (r *Registry) Range(fn func(*Conn) bool) {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		if !fn(c) {
			return
		}
	}
}
