package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrInvalidConfig = errors.New("invalid rate limit config")

// Limiter admits at most max requests per user within a sliding window.
// Rejected requests are not recorded, so a rejected burst does not extend
// the lockout.
type Limiter struct {
	mu       sync.Mutex
	max      int
	window   time.Duration
	requests map[int64][]time.Time
}

func New(max int, window time.Duration) (*Limiter, error) {
	if max <= 0 {
		return nil, fmt.Errorf("%w: max requests must be positive, got %d", ErrInvalidConfig, max)
	}
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %s", ErrInvalidConfig, window)
	}
	return &Limiter{
		max:      max,
		window:   window,
		requests: make(map[int64][]time.Time),
	}, nil
}

// Admit records now for userID and returns true if the user has fewer than
// max requests in (now-window, now]. A timestamp exactly window old has
// expired.
func (l *Limiter) Admit(userID int64, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)

	timestamps := l.requests[userID]
	pruned := timestamps[:0]
	for _, t := range timestamps {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}

	if len(pruned) >= l.max {
		l.requests[userID] = pruned
		return false
	}

	l.requests[userID] = append(pruned, now)
	return true
}

// Sweep forgets users with no request in the last idle period and returns
// how many were removed. The idle period is never shorter than the window,
// so a user still holding live timestamps is kept. Expired timestamps of
// kept users are pruned.
func (l *Limiter) Sweep(now time.Time, idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	idleCutoff := now.Add(-max(idle, l.window))
	windowCutoff := now.Add(-l.window)

	removed := 0
	for userID, timestamps := range l.requests {
		if len(timestamps) == 0 || !timestamps[len(timestamps)-1].After(idleCutoff) {
			delete(l.requests, userID)
			removed++
			continue
		}
		pruned := timestamps[:0]
		for _, t := range timestamps {
			if t.After(windowCutoff) {
				pruned = append(pruned, t)
			}
		}
		l.requests[userID] = pruned
	}
	return removed
}

func (l *Limiter) Users() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}
