// Package store holds in-memory client state fed by backend fetches and
// payment flows. Nothing here is persisted or authoritative.
//
// Each store carries a generation counter. A flow takes a Ticket before it
// starts and passes it back with its result; the result is dropped if the
// generation moved on in the meantime, for example because the user selected
// another contest or logged out.
package store

import (
	"sync"

	"github.com/xueqianLu/contestpay/internal/backend"
)

// ContestStore caches the contest list, the selected contest and the set of
// contests the user joined.
type ContestStore struct {
	mu       sync.RWMutex
	gen      uint64
	contests []backend.Contest
	selected string
	joined   map[string]bool
}

func NewContestStore() *ContestStore {
	return &ContestStore{joined: make(map[string]bool)}
}

// Ticket captures the current generation.
func (s *ContestStore) Ticket() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Select changes the selected contest and invalidates outstanding tickets.
func (s *ContestStore) Select(contestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = contestID
	s.gen++
}

// Replace sets the contest list unconditionally and invalidates outstanding tickets.
func (s *ContestStore) Replace(contests []backend.Contest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contests = append([]backend.Contest(nil), contests...)
	s.gen++
}

// ApplyContests sets the list fetched under ticket. It reports whether the
// result was applied.
func (s *ContestStore) ApplyContests(ticket uint64, contests []backend.Contest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket != s.gen {
		return false
	}
	s.contests = append([]backend.Contest(nil), contests...)
	return true
}

// MarkJoined records a join obtained under ticket.
func (s *ContestStore) MarkJoined(ticket uint64, contestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket != s.gen {
		return false
	}
	s.joined[contestID] = true
	return true
}

func (s *ContestStore) Contests() []backend.Contest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]backend.Contest(nil), s.contests...)
}

// Selected returns the selected contest if it is in the cached list.
func (s *ContestStore) Selected() (backend.Contest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.contests {
		if c.ID == s.selected {
			return c, true
		}
	}
	return backend.Contest{}, false
}

func (s *ContestStore) Joined(contestID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.joined[contestID]
}

// UserStore caches the logged-in user.
type UserStore struct {
	mu   sync.RWMutex
	gen  uint64
	user *backend.User
}

func NewUserStore() *UserStore {
	return &UserStore{}
}

func (s *UserStore) Ticket() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// SetUser stores u if ticket is still current.
func (s *UserStore) SetUser(ticket uint64, u backend.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket != s.gen {
		return false
	}
	s.user = &u
	return true
}

// Clear forgets the user and invalidates outstanding tickets.
func (s *UserStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.gen++
}

func (s *UserStore) User() (backend.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return backend.User{}, false
	}
	return *s.user, true
}
