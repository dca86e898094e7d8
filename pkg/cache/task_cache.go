package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"echoself/pkg/media"
)

const defaultTaskTTL = time.Hour

// TaskCache remembers the last observed remote state per task id so status
// endpoints can skip an immediate remote re-check. Entries expire; a miss
// means the caller must ask the remote service, never fabricate a state.
type TaskCache struct {
	client *redis.Client
	ttl    time.Duration
}

// Config for the Redis-backed cache.
type Config struct {
	Client *redis.Client
	TTL    time.Duration
}

// NewTaskCache builds the cache over an existing Redis client.
func NewTaskCache(cfg Config) (*TaskCache, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTaskTTL
	}
	return &TaskCache{client: cfg.Client, ttl: ttl}, nil
}

// Put stores the observation under the task id. ttl <= 0 uses the cache
// default.
func (c *TaskCache) Put(ctx context.Context, status media.TaskStatus, ttl time.Duration) error {
	if strings.TrimSpace(status.TaskID) == "" {
		return errors.New("task id required")
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	key := taskKey(status.TaskID)
	payload := map[string]any{
		"state":  string(status.State),
		"result": status.ResultURL,
		"error":  status.ErrorMessage,
	}
	if err := c.client.HSet(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	if err := c.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("cache expire: %w", err)
	}
	return nil
}

// Get returns the cached observation, reporting a miss with ok=false.
func (c *TaskCache) Get(ctx context.Context, taskID string) (media.TaskStatus, bool, error) {
	data, err := c.client.HGetAll(ctx, taskKey(taskID)).Result()
	if err != nil {
		return media.TaskStatus{}, false, fmt.Errorf("cache get: %w", err)
	}
	if len(data) == 0 {
		return media.TaskStatus{}, false, nil
	}
	return media.TaskStatus{
		TaskID:       taskID,
		State:        media.TaskState(data["state"]),
		ResultURL:    data["result"],
		ErrorMessage: data["error"],
	}, true, nil
}

// Delete drops the cached entry.
func (c *TaskCache) Delete(ctx context.Context, taskID string) error {
	if err := c.client.Del(ctx, taskKey(taskID)).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

func taskKey(taskID string) string {
	return "task:" + taskID
}
