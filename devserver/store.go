package devserver

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"gopanel/domain"
)

// Store errors surfaced to handlers.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("not a board member")
)

// MemStore is the in-memory backing state of the dev server. All access is
// serialized by one mutex; the dataset is a handful of boards, not a database.
type MemStore struct {
	mu       sync.Mutex
	boards   map[string]domain.Board
	order    []string
	members  map[string]map[string]bool
	tasks    map[string]domain.Task
	subtasks map[string]domain.Subtask
	messages map[string][]domain.ChatMessage
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		boards:   make(map[string]domain.Board),
		members:  make(map[string]map[string]bool),
		tasks:    make(map[string]domain.Task),
		subtasks: make(map[string]domain.Subtask),
		messages: make(map[string][]domain.ChatMessage),
	}
}

func (s *MemStore) memberLocked(boardID, userID string) bool {
	m, ok := s.members[boardID]
	return ok && m[userID]
}

// ListBoards returns the boards the user owns or joined, newest first.
func (s *MemStore) ListBoards(userID string) []domain.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Board{}
	for i := len(s.order) - 1; i >= 0; i-- {
		b := s.boards[s.order[i]]
		if s.memberLocked(b.ID, userID) {
			out = append(out, b)
		}
	}
	return out
}

// CreateBoard stores a new board owned by the user, with a generated id and
// invite code.
func (s *MemStore) CreateBoard(userID string, b domain.Board) domain.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = uuid.NewString()
	b.UserID = userID
	b.InviteCode = uuid.NewString()[:8]
	b.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	if !domain.ValidTemplate(b.Type) {
		b.Type = domain.TemplateStandard
	}
	s.boards[b.ID] = b
	s.order = append(s.order, b.ID)
	s.members[b.ID] = map[string]bool{userID: true}
	return b
}

// DeleteBoard removes the board and cascades to its tasks, subtasks and chat
// history. Only the owner may delete.
func (s *MemStore) DeleteBoard(userID, boardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[boardID]
	if !ok {
		return ErrNotFound
	}
	if b.UserID != userID {
		return ErrForbidden
	}
	delete(s.boards, boardID)
	delete(s.members, boardID)
	delete(s.messages, boardID)
	for i, id := range s.order {
		if id == boardID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	for id, t := range s.tasks {
		if t.BoardID == boardID {
			s.deleteTaskLocked(id)
		}
	}
	return nil
}

// JoinBoard adds the user to the board matching the invite code. Joining a
// board the user is already on is a no-op.
func (s *MemStore) JoinBoard(userID, inviteCode string) (domain.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.boards {
		if b.InviteCode == inviteCode {
			s.members[b.ID][userID] = true
			return b, nil
		}
	}
	return domain.Board{}, fmt.Errorf("invite code: %w", ErrNotFound)
}

// ListTasks returns the board's tasks in display order, subtasks attached.
func (s *MemStore) ListTasks(userID, boardID string) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if boardID != "" && !s.memberLocked(boardID, userID) {
		return nil, ErrForbidden
	}
	out := []domain.Task{}
	for _, t := range s.tasks {
		if boardID != "" && t.BoardID != boardID {
			continue
		}
		if boardID == "" && !s.memberLocked(t.BoardID, userID) {
			continue
		}
		out = append(out, s.withSubtasksLocked(t))
	}
	return domain.SortTasks(out), nil
}

func (s *MemStore) withSubtasksLocked(t domain.Task) domain.Task {
	t.Subtasks = nil
	for _, sub := range s.subtasks {
		if sub.TaskID == t.ID {
			t.Subtasks = append(t.Subtasks, sub)
		}
	}
	return t
}

// CreateTask stores a new task with a generated id.
func (s *MemStore) CreateTask(userID string, t domain.Task) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.BoardID != "" && !s.memberLocked(t.BoardID, userID) {
		return domain.Task{}, ErrForbidden
	}
	t.ID = uuid.NewString()
	t.UserID = userID
	t.Subtasks = nil
	if t.Status == "" {
		t.Status = domain.StatusTodo
	}
	s.tasks[t.ID] = t
	return t, nil
}

// PatchTask merges the patch into the stored task. Nil fields are untouched.
func (s *MemStore) PatchTask(id string, p domain.TaskPatch) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	t = t.Apply(p)
	s.tasks[id] = t
	return s.withSubtasksLocked(t), nil
}

// DeleteTask removes the task and its subtasks.
func (s *MemStore) DeleteTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return ErrNotFound
	}
	s.deleteTaskLocked(id)
	return nil
}

func (s *MemStore) deleteTaskLocked(id string) {
	delete(s.tasks, id)
	for sid, sub := range s.subtasks {
		if sub.TaskID == id {
			delete(s.subtasks, sid)
		}
	}
}

// DeleteTasksByStatus removes every task on the board in the given status and
// returns how many were removed.
func (s *MemStore) DeleteTasksByStatus(boardID, status string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, t := range s.tasks {
		if t.Status != status {
			continue
		}
		if boardID != "" && t.BoardID != boardID {
			continue
		}
		s.deleteTaskLocked(id)
		n++
	}
	return n
}

// CreateSubtask stores a new checklist entry under its parent task.
func (s *MemStore) CreateSubtask(sub domain.Subtask) (domain.Subtask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[sub.TaskID]; !ok {
		return domain.Subtask{}, fmt.Errorf("parent task: %w", ErrNotFound)
	}
	sub.ID = uuid.NewString()
	s.subtasks[sub.ID] = sub
	return sub, nil
}

// UpdateSubtask replaces the stored subtask.
func (s *MemStore) UpdateSubtask(sub domain.Subtask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.subtasks[sub.ID]
	if !ok {
		return ErrNotFound
	}
	sub.TaskID = existing.TaskID
	s.subtasks[sub.ID] = sub
	return nil
}

// DeleteSubtask removes one checklist entry.
func (s *MemStore) DeleteSubtask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subtasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.subtasks, id)
	return nil
}

// AppendMessage persists a chat message for history replay.
func (s *MemStore) AppendMessage(m domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.BoardID] = append(s.messages[m.BoardID], m)
}

// History returns the board's chat log in arrival order.
func (s *MemStore) History(boardID string) []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ChatMessage(nil), s.messages[boardID]...)
}
