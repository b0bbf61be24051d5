package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"gopanel/domain"
)

// ListTasks fetches the full task list for a board, subtasks included.
func (c *Client) ListTasks(ctx context.Context, boardID string) ([]domain.Task, error) {
	q := url.Values{}
	if boardID != "" {
		q.Set("board_id", boardID)
	}
	var tasks []domain.Task
	if err := c.do(ctx, http.MethodGet, "/tasks", q, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask persists a new task and returns the server-assigned row.
func (c *Client) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	if t.Title == "" {
		return domain.Task{}, errors.New("task title is required")
	}
	t.ID = ""
	t.Pending = false
	var created domain.Task
	if err := c.do(ctx, http.MethodPost, "/tasks", nil, t, &created); err != nil {
		return domain.Task{}, err
	}
	return created, nil
}

// UpdateTask applies a partial update to the task. Nil patch fields are left
// untouched by the server.
func (c *Client) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) error {
	if id == "" {
		return errors.New("task id is required")
	}
	q := url.Values{"id": {id}}
	return c.do(ctx, http.MethodPatch, "/tasks", q, patch, nil)
}

// DeleteTask removes the task and its subtasks.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("task id is required")
	}
	q := url.Values{"id": {id}}
	return c.do(ctx, http.MethodDelete, "/tasks", q, nil, nil)
}

// DeleteTasksByStatus bulk-deletes every board task in the given status.
func (c *Client) DeleteTasksByStatus(ctx context.Context, boardID, status string) error {
	if status == "" {
		return errors.New("status is required")
	}
	q := url.Values{"status": {status}}
	if boardID != "" {
		q.Set("board_id", boardID)
	}
	return c.do(ctx, http.MethodDelete, "/tasks", q, nil, nil)
}

// CreateSubtask persists a new checklist entry for its parent task.
func (c *Client) CreateSubtask(ctx context.Context, s domain.Subtask) (domain.Subtask, error) {
	if s.TaskID == "" {
		return domain.Subtask{}, errors.New("subtask parent id is required")
	}
	s.ID = ""
	s.Pending = false
	var created domain.Subtask
	if err := c.do(ctx, http.MethodPost, "/subtasks", nil, s, &created); err != nil {
		return domain.Subtask{}, err
	}
	return created, nil
}

// UpdateSubtask persists the subtask's current state, typically a completion
// toggle.
func (c *Client) UpdateSubtask(ctx context.Context, s domain.Subtask) error {
	if s.ID == "" {
		return errors.New("subtask id is required")
	}
	q := url.Values{"id": {s.ID}}
	return c.do(ctx, http.MethodPatch, "/subtasks", q, s, nil)
}

// DeleteSubtask removes one checklist entry.
func (c *Client) DeleteSubtask(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("subtask id is required")
	}
	q := url.Values{"id": {id}}
	return c.do(ctx, http.MethodDelete, "/subtasks", q, nil, nil)
}
