// Package queue provides the durable training job queue over Redis.
//
// A unit of work is a JSON payload stored under a handle-scoped key with a
// bounded TTL; the handle itself is pushed onto a list the worker blocks on.
// Cancellation is a marker key checked by the consumer before it starts a
// unit and watched while the unit runs.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"trainhub/internal/task"
)

const (
	queueKey = "training:queue"

	defaultTimeout   = 24 * time.Hour
	defaultRetention = 24 * time.Hour
	cancelMarkerTTL  = 24 * time.Hour
)

func payloadKey(handle string) string { return "training:job:" + handle }
func cancelKey(handle string) string  { return "training:cancel:" + handle }

// payload is the serialized unit of work.
type payload struct {
	Handle         string      `json:"handle"`
	TaskID         string      `json:"taskId"`
	Config         task.Config `json:"config"`
	TimeoutSeconds int         `json:"timeoutSeconds"`
	EnqueuedAt     time.Time   `json:"enqueuedAt"`
}

// NewClient creates a Redis client for the given address.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  30 * time.Second, // must exceed the consumer's blocking pop
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
	})
}

// RedisQueue is the Redis-backed implementation of task.Queue.
type RedisQueue struct {
	client *redis.Client
}

// New creates a RedisQueue on an existing client.
func New(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

// Enqueue submits a unit of work and returns its queue handle.
func (q *RedisQueue) Enqueue(ctx context.Context, taskID string, cfg task.Config, opts task.EnqueueOptions) (string, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.ResultRetention <= 0 {
		opts.ResultRetention = defaultRetention
	}

	handle := uuid.NewString()
	data, err := json.Marshal(payload{
		Handle:         handle,
		TaskID:         taskID,
		Config:         cfg,
		TimeoutSeconds: int(opts.Timeout.Seconds()),
		EnqueuedAt:     time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal job payload: %w", err)
	}

	// Payload first, then the handle: a consumer never pops a handle whose
	// payload is not yet readable.
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, payloadKey(handle), data, opts.ResultRetention)
		pipe.LPush(ctx, queueKey, handle)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("redis enqueue: %w", err)
	}
	return handle, nil
}

// Cancel best-effort cancels a queued or running unit. A still-queued handle
// is removed from the list; a running unit sees the marker through the
// consumer's cancel watch. Cancellation of an already-executing unit may
// race with its own completion.
func (q *RedisQueue) Cancel(ctx context.Context, handle string) (bool, error) {
	if handle == "" {
		return false, nil
	}
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, queueKey, 0, handle)
		pipe.Set(ctx, cancelKey(handle), "1", cancelMarkerTTL)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis cancel: %w", err)
	}
	return true, nil
}

// Ready verifies the queue backend is reachable.
func (q *RedisQueue) Ready(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Verify RedisQueue implements task.Queue
var _ task.Queue = (*RedisQueue)(nil)
