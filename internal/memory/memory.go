// Package memory keeps a bounded, in-process conversation history per user.
//
// Each user's history holds at most 2*size turns (size exchange pairs). Once
// the cap is exceeded the oldest turns are evicted first. Nothing is
// persisted; history lives for the lifetime of the process or until the user
// is swept for inactivity.
package memory

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jusunglee/chatrelay/internal/llm"
)

type history struct {
	turns    []llm.Turn
	lastSeen time.Time
}

type Store struct {
	mu    sync.Mutex
	size  int
	users map[int64]*history

	// Clock stamps each user's last activity for Sweep. Defaults to
	// time.Now.
	Clock func() time.Time

	// OnEvict, if set, is called with the number of turns dropped by FIFO
	// eviction. It runs with the store lock held and must not call back
	// into the store.
	OnEvict func(n int)
}

// New returns a store retaining size exchange pairs per user. A size of zero
// disables retention entirely.
func New(size int) (*Store, error) {
	if size < 0 {
		return nil, fmt.Errorf("memory size must not be negative, got %d", size)
	}
	return &Store{
		size:  size,
		users: make(map[int64]*history),
		Clock: time.Now,
	}, nil
}

func (s *Store) capTurns() int {
	return 2 * s.size
}

// Append adds a single turn to the user's history.
func (s *Store) Append(userID int64, turn llm.Turn) {
	s.append(userID, turn)
}

// AppendExchange adds a user turn and the assistant reply as one unit, so a
// concurrent reader never observes half an exchange.
func (s *Store) AppendExchange(userID int64, user, assistant llm.Turn) {
	s.append(userID, user, assistant)
}

func (s *Store) append(userID int64, turns ...llm.Turn) {
	if s.size == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.users[userID]
	if !ok {
		h = &history{}
		s.users[userID] = h
	}
	h.turns = append(h.turns, turns...)
	h.lastSeen = s.Clock()

	if over := len(h.turns) - s.capTurns(); over > 0 {
		// Copy into a fresh slice so the evicted prefix can be collected.
		h.turns = slices.Clone(h.turns[over:])
		if s.OnEvict != nil {
			s.OnEvict(over)
		}
	}
}

// History returns a copy of the user's turns in conversation order.
func (s *Store) History(userID int64) []llm.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.users[userID]
	if !ok {
		return []llm.Turn{}
	}
	return slices.Clone(h.turns)
}

// Reset drops everything stored for the user.
func (s *Store) Reset(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
}

// Sweep drops users whose last append is at or before cutoff and returns how
// many were removed.
func (s *Store) Sweep(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for userID, h := range s.users {
		if !h.lastSeen.After(cutoff) {
			delete(s.users, userID)
			removed++
		}
	}
	return removed
}

func (s *Store) Users() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}
