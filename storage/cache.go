// Package storage caches last-known API reads in Redis so a reopened client
// can render boards immediately while the authoritative reload is in flight.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"gopanel/domain"
)

type backend interface {
	ListTasks(ctx context.Context, boardID string) ([]domain.Task, error)
	ListBoards(ctx context.Context) ([]domain.Board, error)
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) error
	DeleteTask(ctx context.Context, id string) error
	DeleteTasksByStatus(ctx context.Context, boardID, status string) error
	CreateSubtask(ctx context.Context, s domain.Subtask) (domain.Subtask, error)
	UpdateSubtask(ctx context.Context, s domain.Subtask) error
	DeleteSubtask(ctx context.Context, id string) error
	CreateBoard(ctx context.Context, b domain.Board) (domain.Board, error)
	DeleteBoard(ctx context.Context, id string) error
	JoinBoard(ctx context.Context, inviteCode string) (domain.Board, error)
}

// Cache wraps the API client with Redis-backed caching for read operations.
// Mutations pass through and evict the affected keys. On any Redis error the
// cache falls back to the network without failing the call.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base client is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) ListTasks(ctx context.Context, boardID string) ([]domain.Task, error) {
	if tasks, ok := c.loadTasks(ctx, boardID); ok {
		return tasks, nil
	}
	tasks, err := c.base.ListTasks(ctx, boardID)
	if err != nil {
		return nil, err
	}
	c.storeTasks(ctx, boardID, tasks)
	return tasks, nil
}

func (c *Cache) ListBoards(ctx context.Context) ([]domain.Board, error) {
	if boards, ok := c.loadBoards(ctx); ok {
		return boards, nil
	}
	boards, err := c.base.ListBoards(ctx)
	if err != nil {
		return nil, err
	}
	c.storeBoards(ctx, boards)
	return boards, nil
}

func (c *Cache) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	created, err := c.base.CreateTask(ctx, t)
	if err != nil {
		return domain.Task{}, err
	}
	c.evictTasks(ctx, created.BoardID, t.BoardID)
	return created, nil
}

func (c *Cache) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) error {
	if err := c.base.UpdateTask(ctx, id, patch); err != nil {
		return err
	}
	c.evictAllTasks(ctx)
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, id string) error {
	if err := c.base.DeleteTask(ctx, id); err != nil {
		return err
	}
	c.evictAllTasks(ctx)
	return nil
}

func (c *Cache) DeleteTasksByStatus(ctx context.Context, boardID, status string) error {
	if err := c.base.DeleteTasksByStatus(ctx, boardID, status); err != nil {
		return err
	}
	c.evictTasks(ctx, boardID)
	return nil
}

func (c *Cache) CreateSubtask(ctx context.Context, s domain.Subtask) (domain.Subtask, error) {
	created, err := c.base.CreateSubtask(ctx, s)
	if err != nil {
		return domain.Subtask{}, err
	}
	c.evictAllTasks(ctx)
	return created, nil
}

func (c *Cache) UpdateSubtask(ctx context.Context, s domain.Subtask) error {
	if err := c.base.UpdateSubtask(ctx, s); err != nil {
		return err
	}
	c.evictAllTasks(ctx)
	return nil
}

func (c *Cache) DeleteSubtask(ctx context.Context, id string) error {
	if err := c.base.DeleteSubtask(ctx, id); err != nil {
		return err
	}
	c.evictAllTasks(ctx)
	return nil
}

func (c *Cache) CreateBoard(ctx context.Context, b domain.Board) (domain.Board, error) {
	created, err := c.base.CreateBoard(ctx, b)
	if err != nil {
		return domain.Board{}, err
	}
	c.evictBoards(ctx)
	return created, nil
}

func (c *Cache) DeleteBoard(ctx context.Context, id string) error {
	if err := c.base.DeleteBoard(ctx, id); err != nil {
		return err
	}
	c.evictBoards(ctx)
	c.evictTasks(ctx, id)
	return nil
}

func (c *Cache) JoinBoard(ctx context.Context, inviteCode string) (domain.Board, error) {
	joined, err := c.base.JoinBoard(ctx, inviteCode)
	if err != nil {
		return domain.Board{}, err
	}
	c.evictBoards(ctx)
	return joined, nil
}

func (c *Cache) loadTasks(ctx context.Context, boardID string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(boardID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the network without failing.
			_ = c.redis.Del(ctx, tasksCacheKey(boardID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(boardID)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) loadBoards(ctx context.Context) ([]domain.Board, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, boardsCacheKey()).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, boardsCacheKey()).Err()
		}
		return nil, false
	}
	var boards []domain.Board
	if err := json.Unmarshal(data, &boards); err != nil {
		_ = c.redis.Del(ctx, boardsCacheKey()).Err()
		return nil, false
	}
	return boards, true
}

func (c *Cache) storeTasks(ctx context.Context, boardID string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, tasksCacheKey(boardID), data, c.ttl).Err()
}

func (c *Cache) storeBoards(ctx context.Context, boards []domain.Board) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(boards)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, boardsCacheKey(), data, c.ttl).Err()
}

func (c *Cache) evictTasks(ctx context.Context, boardIDs ...string) {
	if c.redis == nil {
		return
	}
	keys := make([]string, 0, len(boardIDs))
	seen := map[string]bool{}
	for _, id := range boardIDs {
		key := tasksCacheKey(id)
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	if len(keys) > 0 {
		_, _ = c.redis.Del(ctx, keys...).Result()
	}
}

// evictAllTasks drops every cached task list. Task and subtask mutations
// identify rows by id only, so the owning board is not known here.
func (c *Cache) evictAllTasks(ctx context.Context) {
	if c.redis == nil {
		return
	}
	iter := c.redis.Scan(ctx, 0, tasksCacheKey("*"), 0).Iterator()
	for iter.Next(ctx) {
		_ = c.redis.Del(ctx, iter.Val()).Err()
	}
}

func (c *Cache) evictBoards(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, boardsCacheKey()).Result()
}

func tasksCacheKey(boardID string) string {
	return "tasks:" + boardID
}

func boardsCacheKey() string {
	return "boards"
}
