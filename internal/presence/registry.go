// Package presence tracks which users are currently connected. The Registry
// is the single source of truth for "who is online": it maps a user ID to the
// set of live connection handles for that user, so a user with two open tabs
// or devices has one entry holding two handles. Only the connection lifecycle
// (join/leave) may mutate it.
package presence

import (
	"errors"
	"log"
	"sort"
	"sync"
)

// ErrConflict is returned when a handle is registered under a user ID while
// already being registered under a different one. The existing entry wins and
// the new registration is rejected. With a well-behaved connection layer this
// cannot happen; the guard exists so a protocol bug cannot corrupt presence.
var ErrConflict = errors.New("presence: handle already registered to another user")

// Handle is one live duplex connection to a client. It is owned exclusively
// by the connection session that created it; the registry only holds
// references for lookup and fan-out.
type Handle interface {
	WriteMessage(data []byte) error
}

// Registry maps user IDs to their sets of active connection handles.
// Invariant: an entry exists for a user if and only if at least one of their
// connections is currently open.
type Registry struct {
	mu     sync.RWMutex
	users  map[string]map[Handle]struct{}
	owners map[Handle]string

	// notifyMu is held across mutation and callback delivery so rosters and
	// transitions reach the callbacks in mutation order. Without it, two
	// racing disconnect/connect transitions could deliver their broadcasts
	// reordered and leave every client holding a stale roster.
	notifyMu sync.Mutex

	onChange     func(online []string)
	onTransition func(userID string, online bool)
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		users:  make(map[string]map[Handle]struct{}),
		owners: make(map[Handle]string),
	}
}

// SetOnChange registers a callback invoked after every state-changing
// register or deregister with the full updated online-user set. It is used to
// broadcast the presence roster. Callbacks for successive mutations are
// serialized and arrive in mutation order; they must not call back into the
// registry's mutating methods. Must be set before the registry receives
// traffic.
func (r *Registry) SetOnChange(fn func(online []string)) {
	r.onChange = fn
}

// SetOnTransition registers a callback invoked only when a user's online
// state flips: true when their first handle registers, false when their last
// handle deregisters. The same ordering and no-reentrancy contract as
// SetOnChange applies. Must be set before the registry receives traffic.
func (r *Registry) SetOnTransition(fn func(userID string, online bool)) {
	r.onTransition = fn
}

// Register adds a handle under the given user ID. Registering the same handle
// for the same user twice is a no-op and fires no callbacks. Returns
// ErrConflict if the handle is already owned by a different user.
func (r *Registry) Register(userID string, h Handle) error {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	if owner, ok := r.owners[h]; ok {
		r.mu.Unlock()
		if owner == userID {
			return nil
		}
		log.Printf("presence: rejected registration of handle owned by %q under %q", owner, userID)
		return ErrConflict
	}

	set, existed := r.users[userID]
	if !existed {
		set = make(map[Handle]struct{})
		r.users[userID] = set
	}
	set[h] = struct{}{}
	r.owners[h] = userID

	online := r.snapshotLocked()
	r.mu.Unlock()

	if !existed && r.onTransition != nil {
		r.onTransition(userID, true)
	}
	if r.onChange != nil {
		r.onChange(online)
	}
	return nil
}

// Deregister removes the handle from the user's entry. When the last handle
// for a user is removed, the user transitions to offline and the entry is
// deleted. Deregistering an unknown handle is a no-op.
func (r *Registry) Deregister(userID string, h Handle) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	set, ok := r.users[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, ok := set[h]; !ok {
		r.mu.Unlock()
		return
	}

	delete(set, h)
	delete(r.owners, h)
	wentOffline := len(set) == 0
	if wentOffline {
		delete(r.users, userID)
	}

	online := r.snapshotLocked()
	r.mu.Unlock()

	if wentOffline {
		log.Printf("presence: user %s offline", userID)
		if r.onTransition != nil {
			r.onTransition(userID, false)
		}
	}
	if r.onChange != nil {
		r.onChange(online)
	}
}

// Lookup returns the live handles for a user. It never blocks on I/O and
// returns an empty slice if the user is offline.
func (r *Registry) Lookup(userID string) []Handle {
	r.mu.RLock()
	set := r.users[userID]
	handles := make([]Handle, 0, len(set))
	for h := range set {
		handles = append(handles, h)
	}
	r.mu.RUnlock()
	return handles
}

// Online reports whether the user has at least one registered handle.
func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	_, ok := r.users[userID]
	r.mu.RUnlock()
	return ok
}

// Snapshot returns the IDs of all online users, sorted lexicographically so
// roster payloads are deterministic.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	online := r.snapshotLocked()
	r.mu.RUnlock()
	return online
}

// Count returns the number of online users.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.users)
	r.mu.RUnlock()
	return n
}

func (r *Registry) snapshotLocked() []string {
	online := make([]string, 0, len(r.users))
	for id := range r.users {
		online = append(online, id)
	}
	sort.Strings(online)
	return online
}
