// Package notify holds the session-scoped store of cross-board chat alerts.
//
// The store is created at sign-in, handed to consumers by reference, and
// dropped at sign-out. It is never a package-level singleton.
package notify

import (
	"sync"

	"github.com/google/uuid"

	"gopanel/domain"
)

// Store is an in-memory log of chat notifications with an unread counter.
// The counter always equals the number of entries whose Read flag is false.
type Store struct {
	mu      sync.Mutex
	entries []domain.Notification
	unread  int
}

// NewStore creates an empty notification store.
func NewStore() *Store {
	return &Store{}
}

// Add appends the notification with a generated id and marks it unread.
func (s *Store) Add(n domain.Notification) domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = uuid.NewString()
	n.Read = false
	s.entries = append(s.entries, n)
	s.unread++
	return n
}

// MarkAllRead flags every entry read and resets the unread counter. Entries
// are kept.
func (s *Store) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		s.entries[i].Read = true
	}
	s.unread = 0
}

// ClearForBoard removes every entry for the board. The unread counter drops
// by exactly the number of unread entries removed; read entries do not affect
// it.
func (s *Store) ClearForBoard(boardID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	removed := 0
	for _, n := range s.entries {
		if n.BoardID != boardID {
			kept = append(kept, n)
			continue
		}
		if !n.Read {
			removed++
		}
	}
	s.entries = kept
	s.unread -= removed
	if s.unread < 0 {
		s.unread = 0
	}
}

// ClearAll empties the store.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.unread = 0
}

// Notifications returns a snapshot of all entries in insertion order.
func (s *Store) Notifications() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Notification(nil), s.entries...)
}

// UnreadCount returns the number of unread entries.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}
