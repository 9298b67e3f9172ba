// Package presence is the single source of truth for which users are
// reachable and on how many devices.
package presence

import (
	"sync"
	"time"

	"github.com/P-eter-shi/compow/internal/connection"
)

// UserPresence holds one user's live devices. A user has an entry if and only
// if the device set is non-empty.
type UserPresence struct {
	DisplayName string
	LastSeen    time.Time
	devices     map[string]connection.Device
}

// Offline is the signal that a user lost their last device. It carries the
// last display name seen on join so the offline broadcast can name the user.
type Offline struct {
	UserID      string
	DisplayName string
}

// Registry maps user identities to their live devices and each device back to
// its bound user. Both directions mutate under one lock, so no interleaving
// can observe a user with an empty device set or a binding without a matching
// set entry.
type Registry struct {
	mu       sync.RWMutex
	users    map[string]*UserPresence
	bindings map[string]string // connection ID -> userID
}

func NewRegistry() *Registry {
	return &Registry{
		users:    make(map[string]*UserPresence),
		bindings: make(map[string]string),
	}
}

// Register binds conn to userID, creating the user entry when absent.
// Idempotent for repeat joins from the same connection. A connection already
// bound to a different user is moved: removed from the old user's set first,
// which may take that user fully offline (returned as rebound).
//
// deviceCount is the user's device count after the join; cameOnline reports a
// true offline-to-online transition, never a device-count increase.
func (r *Registry) Register(conn connection.Device, userID, displayName string) (deviceCount int, cameOnline bool, rebound *Offline) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.bindings[conn.ID()]; ok && prev != userID {
		rebound = r.dropLocked(conn, prev)
	}

	user, ok := r.users[userID]
	if !ok {
		user = &UserPresence{devices: make(map[string]connection.Device)}
		r.users[userID] = user
		cameOnline = true
	}
	user.devices[conn.ID()] = conn
	user.DisplayName = displayName
	user.LastSeen = time.Now()
	r.bindings[conn.ID()] = userID

	return len(user.devices), cameOnline, rebound
}

// Unregister removes conn from its bound user. A no-op for unbound
// connections, so a close arriving twice is harmless. The returned Offline is
// non-nil only when the user's last device left.
func (r *Registry) Unregister(conn connection.Device) *Offline {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.bindings[conn.ID()]
	if !ok {
		return nil
	}
	delete(r.bindings, conn.ID())
	return r.dropLocked(conn, userID)
}

// dropLocked removes conn from userID's device set, deleting the user entry
// in the same step when the set empties. Caller holds the write lock.
func (r *Registry) dropLocked(conn connection.Device, userID string) *Offline {
	user, ok := r.users[userID]
	if !ok {
		return nil
	}
	delete(user.devices, conn.ID())
	if len(user.devices) > 0 {
		return nil
	}
	delete(r.users, userID)
	return &Offline{UserID: userID, DisplayName: user.DisplayName}
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

// ConnectionsOf returns a snapshot of the user's devices, read once under the
// lock so a recipient's fan-out is all-or-none with respect to joins and
// leaves. Nil for unknown users.
func (r *Registry) ConnectionsOf(userID string) []connection.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[userID]
	if !ok {
		return nil
	}
	devices := make([]connection.Device, 0, len(user.devices))
	for _, conn := range user.devices {
		devices = append(devices, conn)
	}
	return devices
}

// BindingOf returns the user a connection is currently bound to.
func (r *Registry) BindingOf(conn connection.Device) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.bindings[conn.ID()]
	return userID, ok
}

// UserCount is the number of users with at least one device online.
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// ConnectionCount is the number of bound devices across all users.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}
