package devserver

import (
	"strings"
	"sync"
	"time"
)

type lockoutEntry struct {
	failures  int
	expiresAt time.Time
}

// lockoutTracker counts failed logins per email and locks the account for a
// while once threshold is reached. Entries are dropped on success or when a
// lock expires.
type lockoutTracker struct {
	mu        sync.Mutex
	entries   map[string]*lockoutEntry
	threshold int
	duration  time.Duration
	now       func() time.Time
}

func newLockoutTracker(threshold int, duration time.Duration) *lockoutTracker {
	return &lockoutTracker{
		entries:   make(map[string]*lockoutEntry),
		threshold: threshold,
		duration:  duration,
		now:       time.Now,
	}
}

// recordFailure returns true if the account is now locked.
func (t *lockoutTracker) recordFailure(email string) bool {
	if t.threshold <= 0 {
		return false
	}
	key := strings.ToLower(email)

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok {
		entry = &lockoutEntry{}
		t.entries[key] = entry
	}
	now := t.now()
	if !entry.expiresAt.IsZero() {
		if now.Before(entry.expiresAt) {
			return true
		}
		*entry = lockoutEntry{}
	}

	entry.failures++
	if entry.failures >= t.threshold {
		entry.expiresAt = now.Add(t.duration)
		return true
	}
	return false
}

func (t *lockoutTracker) locked(email string) bool {
	key := strings.ToLower(email)

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok || entry.expiresAt.IsZero() {
		return false
	}
	if t.now().After(entry.expiresAt) {
		delete(t.entries, key)
		return false
	}
	return true
}

func (t *lockoutTracker) clear(email string) {
	t.mu.Lock()
	delete(t.entries, strings.ToLower(email))
	t.mu.Unlock()
}
