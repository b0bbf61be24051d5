package domain

import "strings"

// Task statuses. The set is extensible per board template; these are the
// defaults every template includes.
const (
	StatusTodo  = "Todo"
	StatusDoing = "Doing"
	StatusDone  = "Done"
)

// Task priorities.
const (
	PriorityLow    = "Low"
	PriorityMedium = "Medium"
	PriorityHigh   = "High"
)

// Task represents a single board item in the client's local cache.
//
// Pending marks an optimistic placeholder created locally and not yet
// confirmed by the server. A pending task carries a temporary id that is
// replaced by the server-assigned identity on the next authoritative reload.
type Task struct {
	ID          string    `json:"id,omitempty"`
	BoardID     string    `json:"board_id,omitempty"`
	Title       string    `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Status      string    `json:"status,omitempty"`
	Priority    string    `json:"priority,omitempty"`
	DueDate     *string   `json:"due_date,omitempty"`
	Position    int       `json:"position,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	AssigneeID  string    `json:"assignee_id,omitempty"`
	Subtasks    []Subtask `json:"subtasks,omitempty"`

	Pending bool `json:"-"`
}

// Subtask is a checklist entry owned by exactly one task.
type Subtask struct {
	ID          string `json:"id,omitempty"`
	TaskID      string `json:"task_id"`
	Title       string `json:"title"`
	IsCompleted bool   `json:"is_completed"`
	Position    int    `json:"position,omitempty"`

	Pending bool `json:"-"`
}

// TaskPatch is a partial task update. Nil fields are left untouched by the
// server; Status-only patches are what drag moves produce.
type TaskPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
	Position    *int    `json:"position,omitempty"`
}

// PriorityWeight maps a priority label to its sort weight. Matching is
// case-insensitive and accepts the localized spellings stored by older
// clients. Unknown or empty labels weigh zero and sort last.
func PriorityWeight(p string) int {
	switch strings.ToLower(p) {
	case "high", "yüksek":
		return 3
	case "medium", "orta":
		return 2
	case "low", "düşük":
		return 1
	default:
		return 0
	}
}

// Clone returns a deep copy of the task so optimistic mutations never alias
// the subtask slice of the cached original.
func (t Task) Clone() Task {
	c := t
	if t.Description != nil {
		d := *t.Description
		c.Description = &d
	}
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.Subtasks != nil {
		c.Subtasks = append([]Subtask(nil), t.Subtasks...)
	}
	return c
}

// Apply merges the patch into a copy of the task, preserving fields the patch
// does not mention. Subtasks are never touched by a task patch.
func (t Task) Apply(p TaskPatch) Task {
	c := t.Clone()
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Description != nil {
		c.Description = p.Description
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.Priority != nil {
		c.Priority = *p.Priority
	}
	if p.DueDate != nil {
		c.DueDate = p.DueDate
	}
	if p.Position != nil {
		c.Position = *p.Position
	}
	return c
}
