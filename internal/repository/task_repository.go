// Package repository persists validation task snapshots in Redis. Tasks
// are owned by the orchestrator until terminal; the repository is the read
// path for status/result polling and survives nothing beyond its retention
// window (a process restart may discard in-flight tasks, which the service
// accepts).
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/archops/governor/pkg/domain"
)

type TaskRepository interface {
	Save(ctx context.Context, task *domain.ValidationTask) error
	Get(ctx context.Context, id string) (*domain.ValidationTask, error)
	CleanupExpired(ctx context.Context, limit int, before time.Time) (int, error)
}

// Retention is logical, enforced by the janitor over the TTL index; Redis
// native TTLs cannot expire single hash fields.
const taskRetention = 24 * time.Hour

type taskRedisRepo struct {
	rdb *redis.Client
	tz  *time.Location
	now func() time.Time
}

func NewTaskRepository(rdb *redis.Client, tz *time.Location, now func() time.Time) TaskRepository {
	if tz == nil {
		tz = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &taskRedisRepo{rdb: rdb, tz: tz, now: now}
}

func (r *taskRedisRepo) keyTasksHash() string { return "governor:validations" }     // HASH: field = id, value = JSON
func (r *taskRedisRepo) keyTTLIndex() string  { return "governor:validations:ttl" } // ZSET: member = id, score = expireAt

func (r *taskRedisRepo) Save(ctx context.Context, task *domain.ValidationTask) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("save: task id is required")
	}
	raw, err := json.Marshal(task)
	if err != nil {
		return err
	}
	expireAt := r.now().In(r.tz).Add(taskRetention).Unix()

	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, r.keyTasksHash(), task.ID, string(raw))
	pipe.ZAdd(ctx, r.keyTTLIndex(), &redis.Z{Score: float64(expireAt), Member: task.ID})
	_, err = pipe.Exec(ctx)
	return err
}

func (r *taskRedisRepo) Get(ctx context.Context, id string) (*domain.ValidationTask, error) {
	raw, err := r.rdb.HGet(ctx, r.keyTasksHash(), id).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("validation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var t domain.ValidationTask
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CleanupExpired drops snapshots whose retention window ended before the
// given instant, at most limit per call.
func (r *taskRedisRepo) CleanupExpired(ctx context.Context, limit int, before time.Time) (int, error) {
	if limit <= 0 {
		limit = 1000
	}
	if before.IsZero() {
		before = r.now()
	}
	max := strconv.FormatInt(before.Unix(), 10)

	ids, err := r.rdb.ZRangeByScore(ctx, r.keyTTLIndex(), &redis.ZRangeBy{
		Min: "-inf", Max: max, Count: int64(limit),
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	pipe := r.rdb.TxPipeline()
	pipe.HDel(ctx, r.keyTasksHash(), ids...)
	pipe.ZRem(ctx, r.keyTTLIndex(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}
