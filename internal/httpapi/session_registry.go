package httpapi

import "sync"

// SessionRegistry tracks live websocket connections (capture, displays,
// audio monitors) and supports graceful draining: once draining starts,
// new connections are refused while existing ones finish naturally.
type SessionRegistry struct {
	mu       sync.Mutex
	cond     *sync.Cond
	draining bool
	active   int
}

// NewSessionRegistry creates a new SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	r := &SessionRegistry{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Add registers a new connection. Returns false when draining; the check
// and the increment happen under one lock so no connection can slip in
// after StartDraining returns.
func (r *SessionRegistry) Add() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draining {
		return false
	}
	r.active++
	return true
}

// Done marks a connection as closed. Must be called exactly once per
// successful Add.
func (r *SessionRegistry) Done() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active > 0 {
		r.active--
	}
	if r.active == 0 {
		r.cond.Broadcast()
	}
}

// StartDraining makes all future Add calls return false.
func (r *SessionRegistry) StartDraining() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draining = true
	if r.active == 0 {
		r.cond.Broadcast()
	}
}

// IsDraining reports whether the registry is in draining mode.
func (r *SessionRegistry) IsDraining() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draining
}

// ActiveCount returns the number of currently tracked connections.
func (r *SessionRegistry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Wait blocks until every tracked connection has called Done.
func (r *SessionRegistry) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.active > 0 {
		r.cond.Wait()
	}
}
