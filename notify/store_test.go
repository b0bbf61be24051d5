package notify

import (
	"testing"

	"gopanel/domain"
)

func TestAddIncrementsUnread(t *testing.T) {
	s := NewStore()
	n := s.Add(domain.Notification{BoardID: "b1", Message: "hello"})
	if n.ID == "" {
		t.Fatal("expected generated id")
	}
	if n.Read {
		t.Fatal("new notification must start unread")
	}
	if got := s.UnreadCount(); got != 1 {
		t.Fatalf("unread = %d, want 1", got)
	}
}

func TestMarkAllReadKeepsEntries(t *testing.T) {
	s := NewStore()
	s.Add(domain.Notification{BoardID: "b1"})
	s.Add(domain.Notification{BoardID: "b2"})
	s.MarkAllRead()

	if got := s.UnreadCount(); got != 0 {
		t.Fatalf("unread = %d, want 0", got)
	}
	entries := s.Notifications()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for _, n := range entries {
		if !n.Read {
			t.Fatalf("entry %s still unread", n.ID)
		}
	}
}

func TestClearForBoardCountsOnlyUnread(t *testing.T) {
	s := NewStore()
	s.Add(domain.Notification{BoardID: "x"})
	s.MarkAllRead() // the one read entry for board x
	s.Add(domain.Notification{BoardID: "x"})
	s.Add(domain.Notification{BoardID: "x"})
	s.Add(domain.Notification{BoardID: "x"})
	s.Add(domain.Notification{BoardID: "y"})

	before := s.UnreadCount()
	s.ClearForBoard("x")

	if got := before - s.UnreadCount(); got != 3 {
		t.Fatalf("unread decreased by %d, want 3", got)
	}
	for _, n := range s.Notifications() {
		if n.BoardID == "x" {
			t.Fatalf("entry for board x survived: %+v", n)
		}
	}
	if len(s.Notifications()) != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", len(s.Notifications()))
	}
}

func TestClearAll(t *testing.T) {
	s := NewStore()
	s.Add(domain.Notification{BoardID: "b"})
	s.ClearAll()
	if len(s.Notifications()) != 0 || s.UnreadCount() != 0 {
		t.Fatal("store not empty after ClearAll")
	}
}

func TestUnreadInvariant(t *testing.T) {
	s := NewStore()
	s.Add(domain.Notification{BoardID: "a"})
	s.Add(domain.Notification{BoardID: "b"})
	s.MarkAllRead()
	s.Add(domain.Notification{BoardID: "a"})
	s.ClearForBoard("b")

	unreadEntries := 0
	for _, n := range s.Notifications() {
		if !n.Read {
			unreadEntries++
		}
	}
	if got := s.UnreadCount(); got != unreadEntries {
		t.Fatalf("unread counter %d diverged from actual unread entries %d", got, unreadEntries)
	}
}
