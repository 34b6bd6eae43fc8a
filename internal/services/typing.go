package services

import (
	"context"
	"sync"
	"time"

	"github.com/lattice-im/lattice/internal/types"
)

type typingKey struct {
	user types.UserID
	room string
}

// TypingTracker is an in-memory Typing implementation. Indicators expire
// on their own timers so a crashed client does not type forever.
type TypingTracker struct {
	mu     sync.Mutex
	timers map[typingKey]*time.Timer
}

// NewTypingTracker creates an empty typing tracker.
func NewTypingTracker() *TypingTracker {
	return &TypingTracker{timers: make(map[typingKey]*time.Timer)}
}

// StartedTyping implements Typing.
func (t *TypingTracker) StartedTyping(_ context.Context, user types.UserID, roomID string, timeout time.Duration) error {
	key := typingKey{user: user, room: roomID}

	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[key]; ok {
		timer.Stop()
	}
	t.timers[key] = time.AfterFunc(timeout, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.timers, key)
	})
	return nil
}

// StoppedTyping implements Typing.
func (t *TypingTracker) StoppedTyping(_ context.Context, user types.UserID, roomID string) error {
	key := typingKey{user: user, room: roomID}

	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
	return nil
}

// IsTyping reports whether the user has an active indicator in the room.
func (t *TypingTracker) IsTyping(user types.UserID, roomID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[typingKey{user: user, room: roomID}]
	return ok
}

// Close stops all outstanding timers.
func (t *TypingTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
}
