// Package board maintains the client's authoritative in-memory task list for
// one board and reconciles optimistic mutations against server responses.
package board

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"gopanel/domain"
)

// API is the slice of the REST client the synchronizer persists through.
type API interface {
	ListTasks(ctx context.Context, boardID string) ([]domain.Task, error)
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) error
	DeleteTask(ctx context.Context, id string) error
	DeleteTasksByStatus(ctx context.Context, boardID, status string) error
	CreateSubtask(ctx context.Context, s domain.Subtask) (domain.Subtask, error)
	UpdateSubtask(ctx context.Context, s domain.Subtask) error
	DeleteSubtask(ctx context.Context, id string) error
}

// ErrColumnNotClearable is returned when a bulk clear targets any column but
// the terminal Done column.
var ErrColumnNotClearable = errors.New("only the Done column can be cleared")

// Synchronizer owns the task collection of a single board. Local state is
// mutated optimistically before each persist call; failures roll back to a
// snapshot or force an authoritative reload. All mutations are serialized
// through one lock, preserving the single-writer model even on a
// multi-threaded runtime.
type Synchronizer struct {
	api     API
	boardID string
	columns []string
	logger  *log.Logger

	mu     sync.Mutex
	tasks  []domain.Task
	loaded bool
}

// NewSynchronizer creates a synchronizer for the board. Columns must list the
// board's status set in display order, ending with the terminal Done column
// (see domain.TemplateColumns). The logger may be nil.
func NewSynchronizer(api API, boardID string, columns []string, logger *log.Logger) *Synchronizer {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if len(columns) == 0 {
		columns = domain.TemplateColumns(domain.TemplateStandard)
	}
	return &Synchronizer{
		api:     api,
		boardID: boardID,
		columns: columns,
		logger:  logger,
	}
}

// Tasks returns the current sorted task collection.
func (s *Synchronizer) Tasks() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.Clone()
	}
	return out
}

// Column returns the tasks rendering under the given column, in sorted order.
// Tasks with no status render under the first column.
func (s *Synchronizer) Column(column string) []domain.Task {
	return domain.TasksByColumn(s.Tasks(), column, s.columns)
}

// Load fetches the full task list and replaces local state with the sorted
// result. A failed refresh keeps the previously loaded state; only the
// initial load starts from nothing.
func (s *Synchronizer) Load(ctx context.Context) error {
	fetched, err := s.api.ListTasks(ctx, s.boardID)
	if err != nil {
		s.logger.WithFields(log.Fields{"board": s.boardID, "error": err}).Error("task load failed")
		return fmt.Errorf("load board %s: %w", s.boardID, err)
	}
	sorted := domain.SortTasks(fetched)
	s.mu.Lock()
	s.tasks = sorted
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// CreateTask inserts an optimistic placeholder under a temporary identity,
// then persists. Success triggers a full reload so the server-assigned id and
// position replace the placeholder; failure removes the placeholder only.
func (s *Synchronizer) CreateTask(ctx context.Context, input domain.Task) error {
	if input.Title == "" {
		return errors.New("task title is required")
	}
	input.BoardID = s.boardID

	tempID := uuid.NewString()
	pending := input.Clone()
	pending.ID = tempID
	pending.Pending = true

	s.mu.Lock()
	pending.Position = len(s.tasks)
	input.Position = pending.Position
	s.tasks = domain.SortTasks(append(s.tasks, pending))
	s.mu.Unlock()

	if _, err := s.api.CreateTask(ctx, input); err != nil {
		s.mu.Lock()
		s.tasks = removeTask(s.tasks, tempID)
		s.mu.Unlock()
		s.logger.WithFields(log.Fields{"board": s.boardID, "error": err}).Error("task create failed")
		return err
	}
	return s.Load(ctx)
}

// UpdateTaskFields merges the patch into local state immediately, preserving
// subtasks the patch does not touch, then persists it. On failure the only
// correct state is the server's, so a full reload replaces the local cache.
func (s *Synchronizer) UpdateTaskFields(ctx context.Context, id string, patch domain.TaskPatch) error {
	s.mu.Lock()
	idx := indexOf(s.tasks, id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("task %s not found", id)
	}
	s.tasks[idx] = s.tasks[idx].Apply(patch)
	s.tasks = domain.SortTasks(s.tasks)
	s.mu.Unlock()

	if err := s.api.UpdateTask(ctx, id, patch); err != nil {
		s.logger.WithFields(log.Fields{"board": s.boardID, "task": id, "error": err}).Error("task update failed, reloading")
		s.reload(ctx)
		return err
	}
	return nil
}

// DeleteTask removes the task locally, persists the delete, and restores the
// exact pre-delete snapshot when persistence fails.
func (s *Synchronizer) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	snapshot := append([]domain.Task(nil), s.tasks...)
	s.tasks = removeTask(s.tasks, id)
	s.mu.Unlock()

	if err := s.api.DeleteTask(ctx, id); err != nil {
		s.mu.Lock()
		s.tasks = snapshot
		s.mu.Unlock()
		s.logger.WithFields(log.Fields{"board": s.boardID, "task": id, "error": err}).Error("task delete failed")
		return err
	}
	return nil
}

// ClearColumn bulk-deletes every task in the terminal Done column. Other
// columns are rejected. On failure the pre-clear snapshot is restored.
func (s *Synchronizer) ClearColumn(ctx context.Context, status string) error {
	if status != domain.StatusDone {
		return ErrColumnNotClearable
	}

	s.mu.Lock()
	snapshot := append([]domain.Task(nil), s.tasks...)
	kept := s.tasks[:0:0]
	for _, t := range s.tasks {
		if t.Status != status {
			kept = append(kept, t)
		}
	}
	s.tasks = kept
	s.mu.Unlock()

	if err := s.api.DeleteTasksByStatus(ctx, s.boardID, status); err != nil {
		s.mu.Lock()
		s.tasks = snapshot
		s.mu.Unlock()
		s.logger.WithFields(log.Fields{"board": s.boardID, "status": status, "error": err}).Error("column clear failed")
		return fmt.Errorf("clear column %s: %w", status, err)
	}
	return nil
}

// MoveTask applies the result of a drag: activeID is the dragged task, overID
// the drop target (a column name or another task). Self-drops and drops
// within the task's current column change nothing; dropped cards snap back to
// the deterministic sort order. A cross-column drop updates only the status,
// persisting exactly an {id, status} patch.
func (s *Synchronizer) MoveTask(ctx context.Context, activeID, overID string) error {
	if overID == "" || activeID == overID {
		return nil
	}

	s.mu.Lock()
	idx := indexOf(s.tasks, activeID)
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}
	target := s.resolveColumnLocked(overID)
	if target == "" || s.effectiveStatusLocked(s.tasks[idx]) == target {
		// Same-column reorder is intentionally rejected: automatic
		// priority/due-date ordering is authoritative.
		s.mu.Unlock()
		return nil
	}
	s.tasks[idx].Status = target
	s.tasks = domain.SortTasks(s.tasks)
	s.mu.Unlock()

	patch := domain.TaskPatch{Status: &target}
	if err := s.api.UpdateTask(ctx, activeID, patch); err != nil {
		s.logger.WithFields(log.Fields{"board": s.boardID, "task": activeID, "target": target, "error": err}).Error("task move failed, reloading")
		s.reload(ctx)
		return err
	}
	return nil
}

// AddSubtask appends an optimistic checklist entry under a temporary id. On
// success the server-assigned row replaces the placeholder in place; on
// failure the placeholder stays until the next reload (accepted
// inconsistency window).
func (s *Synchronizer) AddSubtask(ctx context.Context, taskID, title string) error {
	if title == "" {
		return errors.New("subtask title is required")
	}

	tempID := uuid.NewString()
	pending := domain.Subtask{ID: tempID, TaskID: taskID, Title: title, Pending: true}

	s.mu.Lock()
	idx := indexOf(s.tasks, taskID)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("task %s not found", taskID)
	}
	pending.Position = len(s.tasks[idx].Subtasks)
	s.tasks[idx].Subtasks = append(s.tasks[idx].Subtasks, pending)
	s.mu.Unlock()

	created, err := s.api.CreateSubtask(ctx, domain.Subtask{TaskID: taskID, Title: title, Position: pending.Position})
	if err != nil {
		s.logger.WithFields(log.Fields{"task": taskID, "error": err}).Error("subtask create failed")
		return err
	}

	s.mu.Lock()
	if idx := indexOf(s.tasks, taskID); idx >= 0 {
		for i, sub := range s.tasks[idx].Subtasks {
			if sub.ID == tempID {
				s.tasks[idx].Subtasks[i] = created
				break
			}
		}
	}
	s.mu.Unlock()
	return nil
}

// ToggleSubtask flips the completion flag locally and persists the new state.
// Failures are logged, not rolled back.
func (s *Synchronizer) ToggleSubtask(ctx context.Context, taskID, subtaskID string) error {
	var updated domain.Subtask
	found := false

	s.mu.Lock()
	if idx := indexOf(s.tasks, taskID); idx >= 0 {
		for i, sub := range s.tasks[idx].Subtasks {
			if sub.ID == subtaskID {
				s.tasks[idx].Subtasks[i].IsCompleted = !sub.IsCompleted
				updated = s.tasks[idx].Subtasks[i]
				found = true
				break
			}
		}
	}
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("subtask %s not found", subtaskID)
	}
	if err := s.api.UpdateSubtask(ctx, updated); err != nil {
		s.logger.WithFields(log.Fields{"task": taskID, "subtask": subtaskID, "error": err}).Error("subtask update failed")
		return err
	}
	return nil
}

// RemoveSubtask drops the checklist entry locally and persists the delete.
// Failures are logged, not rolled back.
func (s *Synchronizer) RemoveSubtask(ctx context.Context, taskID, subtaskID string) error {
	s.mu.Lock()
	if idx := indexOf(s.tasks, taskID); idx >= 0 {
		subs := s.tasks[idx].Subtasks[:0:0]
		for _, sub := range s.tasks[idx].Subtasks {
			if sub.ID != subtaskID {
				subs = append(subs, sub)
			}
		}
		s.tasks[idx].Subtasks = subs
	}
	s.mu.Unlock()

	if err := s.api.DeleteSubtask(ctx, subtaskID); err != nil {
		s.logger.WithFields(log.Fields{"task": taskID, "subtask": subtaskID, "error": err}).Error("subtask delete failed")
		return err
	}
	return nil
}

// reload refetches server truth after a failed mutation. Its own failure only
// logs: local state stays at the last known good snapshot.
func (s *Synchronizer) reload(ctx context.Context) {
	if err := s.Load(ctx); err != nil {
		s.logger.WithFields(log.Fields{"board": s.boardID, "error": err}).Error("rollback reload failed")
	}
}

// resolveColumnLocked maps a drop target id to a column: either the column
// itself or the column of the task dropped onto.
func (s *Synchronizer) resolveColumnLocked(overID string) string {
	for _, col := range s.columns {
		if col == overID {
			return col
		}
	}
	if idx := indexOf(s.tasks, overID); idx >= 0 {
		return s.effectiveStatusLocked(s.tasks[idx])
	}
	return ""
}

func (s *Synchronizer) effectiveStatusLocked(t domain.Task) string {
	if t.Status == "" {
		return s.columns[0]
	}
	return t.Status
}

func indexOf(tasks []domain.Task, id string) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func removeTask(tasks []domain.Task, id string) []domain.Task {
	kept := tasks[:0:0]
	for _, t := range tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	return kept
}
