package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"kanban-api/domain"
)

// backend is the persistence surface the cache wraps.
type backend interface {
	GetBoard(ctx context.Context, userID, id string) (domain.Board, error)
	ListBoards(ctx context.Context, userID string) ([]domain.Board, error)
	InsertBoard(ctx context.Context, b domain.Board) error
	UpdateBoard(ctx context.Context, userID, id string, patch domain.BoardPatch) (domain.Board, error)
	DeleteBoard(ctx context.Context, userID, id string) error
	DeleteBoards(ctx context.Context, userID string, ids []string) error

	GetColumn(ctx context.Context, userID, id string) (domain.Column, error)
	ListColumns(ctx context.Context, userID, boardID string) ([]domain.Column, error)
	InsertColumn(ctx context.Context, col domain.Column) error
	UpdateColumn(ctx context.Context, userID, id string, patch domain.ColumnPatch) (domain.Column, error)
	DeleteColumn(ctx context.Context, userID, id string) error
	DeleteColumnsByBoard(ctx context.Context, userID, boardID string) error

	GetTask(ctx context.Context, userID, id string) (domain.Task, error)
	ListTasks(ctx context.Context, userID, columnID string) ([]domain.Task, error)
	ListTasksByBoard(ctx context.Context, userID, boardID string) ([]domain.Task, error)
	InsertTask(ctx context.Context, task domain.Task) error
	UpdateTask(ctx context.Context, userID, id string, patch domain.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, userID, id string) error
	DeleteTasksByColumns(ctx context.Context, userID string, columnIDs []string) error

	EnqueueChanges(ctx context.Context, userID string, events []domain.ChangeEvent) error
}

// Cache wraps a backend with Redis-backed caching for the list reads that
// back board rendering. Any write for a user evicts everything cached for
// that user; cached keys are tracked in a per-user Redis set so eviction
// does not need to know which boards were cached.
type Cache struct {
	backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{backend: base, redis: client, ttl: ttl}
}

func boardsCacheKey(userID string) string { return "boards:" + userID }

func columnsCacheKey(userID, boardID string) string { return "columns:" + userID + ":" + boardID }

func boardTasksCacheKey(userID, boardID string) string { return "tasks:" + userID + ":" + boardID }

func trackedKeysKey(userID string) string { return "cachekeys:" + userID }

func (c *Cache) ListBoards(ctx context.Context, userID string) ([]domain.Board, error) {
	key := boardsCacheKey(userID)
	var cached []domain.Board
	if c.load(ctx, key, &cached) {
		return cached, nil
	}
	boards, err := c.backend.ListBoards(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, userID, key, boards)
	return boards, nil
}

func (c *Cache) ListColumns(ctx context.Context, userID, boardID string) ([]domain.Column, error) {
	key := columnsCacheKey(userID, boardID)
	var cached []domain.Column
	if c.load(ctx, key, &cached) {
		return cached, nil
	}
	columns, err := c.backend.ListColumns(ctx, userID, boardID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, userID, key, columns)
	return columns, nil
}

func (c *Cache) ListTasksByBoard(ctx context.Context, userID, boardID string) ([]domain.Task, error) {
	key := boardTasksCacheKey(userID, boardID)
	var cached []domain.Task
	if c.load(ctx, key, &cached) {
		return cached, nil
	}
	tasks, err := c.backend.ListTasksByBoard(ctx, userID, boardID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, userID, key, tasks)
	return tasks, nil
}

func (c *Cache) InsertBoard(ctx context.Context, b domain.Board) error {
	if err := c.backend.InsertBoard(ctx, b); err != nil {
		return err
	}
	c.evict(ctx, b.OwnerID)
	return nil
}

func (c *Cache) UpdateBoard(ctx context.Context, userID, id string, patch domain.BoardPatch) (domain.Board, error) {
	b, err := c.backend.UpdateBoard(ctx, userID, id, patch)
	if err != nil {
		return domain.Board{}, err
	}
	c.evict(ctx, userID)
	return b, nil
}

func (c *Cache) DeleteBoard(ctx context.Context, userID, id string) error {
	if err := c.backend.DeleteBoard(ctx, userID, id); err != nil {
		return err
	}
	c.evict(ctx, userID)
	return nil
}

func (c *Cache) DeleteBoards(ctx context.Context, userID string, ids []string) error {
	if err := c.backend.DeleteBoards(ctx, userID, ids); err != nil {
		return err
	}
	c.evict(ctx, userID)
	return nil
}

func (c *Cache) InsertColumn(ctx context.Context, col domain.Column) error {
	if err := c.backend.InsertColumn(ctx, col); err != nil {
		return err
	}
	c.evict(ctx, col.OwnerID)
	return nil
}

func (c *Cache) UpdateColumn(ctx context.Context, userID, id string, patch domain.ColumnPatch) (domain.Column, error) {
	col, err := c.backend.UpdateColumn(ctx, userID, id, patch)
	if err != nil {
		return domain.Column{}, err
	}
	c.evict(ctx, userID)
	return col, nil
}

func (c *Cache) DeleteColumn(ctx context.Context, userID, id string) error {
	if err := c.backend.DeleteColumn(ctx, userID, id); err != nil {
		return err
	}
	c.evict(ctx, userID)
	return nil
}

func (c *Cache) DeleteColumnsByBoard(ctx context.Context, userID, boardID string) error {
	if err := c.backend.DeleteColumnsByBoard(ctx, userID, boardID); err != nil {
		return err
	}
	c.evict(ctx, userID)
	return nil
}

func (c *Cache) InsertTask(ctx context.Context, task domain.Task) error {
	if err := c.backend.InsertTask(ctx, task); err != nil {
		return err
	}
	c.evict(ctx, task.OwnerID)
	return nil
}

func (c *Cache) UpdateTask(ctx context.Context, userID, id string, patch domain.TaskPatch) (domain.Task, error) {
	task, err := c.backend.UpdateTask(ctx, userID, id, patch)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, userID)
	return task, nil
}

func (c *Cache) DeleteTask(ctx context.Context, userID, id string) error {
	if err := c.backend.DeleteTask(ctx, userID, id); err != nil {
		return err
	}
	c.evict(ctx, userID)
	return nil
}

func (c *Cache) DeleteTasksByColumns(ctx context.Context, userID string, columnIDs []string) error {
	if err := c.backend.DeleteTasksByColumns(ctx, userID, columnIDs); err != nil {
		return err
	}
	c.evict(ctx, userID)
	return nil
}

// load returns true when key was present and decoded. Redis failures fall
// back to the backing storage without failing the read.
func (c *Cache) load(ctx context.Context, key string, out any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, userID, key string, val any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_, _ = c.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, c.ttl)
		pipe.SAdd(ctx, trackedKeysKey(userID), key)
		pipe.Expire(ctx, trackedKeysKey(userID), c.ttl)
		return nil
	})
}

func (c *Cache) evict(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	keys, err := c.redis.SMembers(ctx, trackedKeysKey(userID)).Result()
	if err != nil {
		return
	}
	keys = append(keys, trackedKeysKey(userID))
	_, _ = c.redis.Del(ctx, keys...).Result()
}
