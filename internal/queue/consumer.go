package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"trainhub/internal/task"
	"trainhub/pkg/backoff"
)

const (
	popTimeout       = 5 * time.Second
	cancelPollPeriod = 2 * time.Second
)

// HandlerFunc executes one dequeued unit of work. It must not panic and
// should convert execution failures into task state rather than errors; a
// returned error is logged and the unit is not retried by this layer.
type HandlerFunc func(ctx context.Context, taskID string, cfg task.Config) error

// ConsumerOptions tune a Consumer.
type ConsumerOptions struct {
	// MaxRunTime caps the execution window of a single unit regardless of
	// the timeout it was enqueued with. Zero means no cap.
	MaxRunTime time.Duration
}

// Consumer blocks on the training queue and drives the handler once per
// dequeued unit. At-least-once delivery is the queue's concern; this loop
// never redelivers on handler error.
type Consumer struct {
	client     *redis.Client
	handler    HandlerFunc
	maxRunTime time.Duration
	logger     *slog.Logger
}

// NewConsumer creates a queue consumer.
func NewConsumer(client *redis.Client, handler HandlerFunc, opts ConsumerOptions) *Consumer {
	return &Consumer{
		client:     client,
		handler:    handler,
		maxRunTime: opts.MaxRunTime,
		logger:     slog.With("component", "queue-consumer"),
	}
}

// Run consumes units until ctx is cancelled. Transient Redis errors back off
// exponentially and the loop keeps going.
func (c *Consumer) Run(ctx context.Context) error {
	attempt := 0
	for {
		vals, err := c.client.BRPop(ctx, popTimeout, queueKey).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil // normal shutdown
			}
			if errors.Is(err, redis.Nil) {
				attempt = 0
				continue // queue empty
			}
			attempt++
			wait := backoff.Exponential(attempt, nil)
			c.logger.Error("Queue pop failed, backing off", "error", err, "wait", wait)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		attempt = 0

		// BRPop returns [key, value].
		if len(vals) != 2 {
			continue
		}
		c.process(ctx, vals[1])
	}
}

// process runs one unit of work identified by its handle.
func (c *Consumer) process(ctx context.Context, handle string) {
	logger := c.logger.With("queueHandle", handle)

	data, err := c.client.Get(ctx, payloadKey(handle)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			logger.Warn("Job payload expired before pickup, skipping")
		} else {
			logger.Error("Failed to load job payload", "error", err)
		}
		return
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		logger.Error("Malformed job payload, skipping", "error", err)
		return
	}
	logger = logger.With("taskId", p.TaskID)

	// Cancelled before pickup: the bridge already marked the row STOPPED.
	if cancelled, err := c.isCancelled(ctx, handle); err != nil {
		logger.Warn("Cancel marker check failed, proceeding", "error", err)
	} else if cancelled {
		logger.Info("Unit cancelled before pickup, skipping")
		return
	}

	timeout := time.Duration(p.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if c.maxRunTime > 0 && timeout > c.maxRunTime {
		timeout = c.maxRunTime
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Watch the cancel marker while the unit runs so a stop request reaches
	// a cancellation-aware callable.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go c.watchCancel(runCtx, cancel, handle, watchDone)

	logger.Info("Unit picked up")
	if err := c.handler(runCtx, p.TaskID, p.Config); err != nil {
		logger.Error("Handler returned error", "error", err)
	}
}

func (c *Consumer) watchCancel(ctx context.Context, cancel context.CancelFunc, handle string, done <-chan struct{}) {
	ticker := time.NewTicker(cancelPollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			cancelled, err := c.isCancelled(ctx, handle)
			if err != nil {
				continue
			}
			if cancelled {
				c.logger.Info("Cancel requested for running unit", "queueHandle", handle)
				cancel()
				return
			}
		}
	}
}

func (c *Consumer) isCancelled(ctx context.Context, handle string) (bool, error) {
	n, err := c.client.Exists(ctx, cancelKey(handle)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
