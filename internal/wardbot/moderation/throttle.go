package moderation

import (
	"sync"
	"time"
)

// Throttle suppresses duplicate group notifications for the same user
// within a configured cooldown window (§4.7.2 step 4). It is in-memory only
// and intentionally unpersisted — losing it across a restart has no
// correctness impact, only a brief burst of otherwise-suppressed notices
// (spec.md §9 "In-memory notification throttle").
//
// Grounded on the teacher's nlp.RateLimiter: same mutex-guarded map shape,
// specialized from a sliding-window call counter down to a single-timestamp
// cooldown per key, which is all §4.7.2 needs. Entries are overwritten on
// each allowed notice and never pruned.
type Throttle struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     map[int64]time.Time
}

// NewThrottle returns a Throttle suppressing repeat notifications for the
// same user within cooldown.
func NewThrottle(cooldown time.Duration) *Throttle {
	return &Throttle{
		cooldown: cooldown,
		last:     make(map[int64]time.Time),
	}
}

// Allow reports whether a group notification for userID may be sent at now,
// and records now as the new last-notified time when it does.
func (t *Throttle) Allow(userID int64, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.last[userID]; ok && now.Sub(last) < t.cooldown {
		return false
	}
	t.last[userID] = now
	return true
}
