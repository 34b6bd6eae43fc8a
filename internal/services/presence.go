package services

import (
	"context"
	"sync"
	"time"

	"github.com/lattice-im/lattice/internal/types"
)

// PresenceTracker is an in-memory Presence implementation.
type PresenceTracker struct {
	mu         sync.Mutex
	states     map[types.UserID]PresenceUpdate
	syncing    map[types.UserID]int
	lastActive map[types.UserID]time.Time
}

// NewPresenceTracker creates an empty presence tracker.
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{
		states:     make(map[types.UserID]PresenceUpdate),
		syncing:    make(map[types.UserID]int),
		lastActive: make(map[types.UserID]time.Time),
	}
}

// SetState implements Presence.
func (p *PresenceTracker) SetState(_ context.Context, user types.UserID, update PresenceUpdate) error {
	if !types.ValidPresence(update.Presence) {
		return types.NewError(types.CodeUnknown, "Invalid presence state")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[user] = update
	p.lastActive[user] = time.Now()
	return nil
}

// GetState returns the user's last declared presence, defaulting to offline.
func (p *PresenceTracker) GetState(user types.UserID) PresenceUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.states[user]; ok {
		return st
	}
	return PresenceUpdate{Presence: types.PresenceOffline}
}

// UserSyncing implements Presence. A user is considered online while at
// least one of their connections holds an unreleased marker.
func (p *PresenceTracker) UserSyncing(_ context.Context, user types.UserID, affectPresence bool) (func(), error) {
	if !affectPresence {
		return func() {}, nil
	}

	p.mu.Lock()
	p.syncing[user]++
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.syncing[user]--
			if p.syncing[user] <= 0 {
				delete(p.syncing, user)
			}
		})
	}, nil
}

// IsSyncing reports whether the user currently holds a syncing marker.
func (p *PresenceTracker) IsSyncing(user types.UserID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.syncing[user] > 0
}

// BumpActiveTime implements Presence.
func (p *PresenceTracker) BumpActiveTime(_ context.Context, user types.UserID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastActive[user] = time.Now()
	return nil
}

// LastActive returns the user's last recorded activity time.
func (p *PresenceTracker) LastActive(user types.UserID) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.lastActive[user]
	return t, ok
}
