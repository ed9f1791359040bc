package watch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"trainhub/internal/apperrors"
	"trainhub/internal/task"
)

const defaultPollInterval = 500 * time.Millisecond

// MetricsRecorder is an optional interface for recording watch metrics.
type MetricsRecorder interface {
	RecordWatchSubscribed(ctx context.Context)
	RecordWatchUnsubscribed(ctx context.Context)
	RecordWatchMessage(ctx context.Context, msgType string)
	RecordWatchPollerCount(ctx context.Context, delta int64)
}

// Hub owns the per-task poll loops. A loop starts with a task's first
// subscriber, reads the row at a fixed interval, broadcasts only when one of
// the watched fields changed, and stops when the task reaches a terminal
// state or its last subscriber leaves. The Hub is an explicit, injectable
// object so tests can run isolated instances.
type Hub struct {
	store    task.Store
	registry *Registry
	interval time.Duration
	metrics  MetricsRecorder
	logger   *slog.Logger

	mu      sync.Mutex
	pollers map[string]chan struct{} // taskID -> poller stop channel
	closed  bool
	wg      sync.WaitGroup
}

// NewHub creates a hub polling the store at the given interval.
func NewHub(store task.Store, registry *Registry, interval time.Duration, metrics MetricsRecorder) *Hub {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Hub{
		store:    store,
		registry: registry,
		interval: interval,
		metrics:  metrics,
		logger:   slog.With("component", "watch-hub"),
		pollers:  make(map[string]chan struct{}),
	}
}

// Subscribe registers a subscriber for a task, sends the immediate connected
// acknowledgment, and ensures the task's poll loop is running. The task must
// exist; unknown ids return a not-found error before anything is registered.
func (h *Hub) Subscribe(ctx context.Context, taskID string, sub Subscriber) error {
	if _, err := h.store.GetTask(ctx, taskID); err != nil {
		return err
	}

	// Connected ack is independent of the poll cycle and always precedes
	// the first broadcast, so it goes out before registration.
	if err := sub.Send(Connected(taskID)); err != nil {
		return err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return apperrors.Unavailable("watch.subscribe", errors.New("hub is shut down"))
	}
	count := h.registry.Subscribe(taskID, sub)
	h.ensurePollerLocked(taskID)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RecordWatchSubscribed(ctx)
	}
	h.logger.Info("Subscriber attached", "taskId", taskID, "subscribers", count)
	return nil
}

// Unsubscribe removes a subscriber; the task's poll loop stops when nobody
// is left watching.
func (h *Hub) Unsubscribe(taskID string, sub Subscriber) {
	h.mu.Lock()
	remaining := h.registry.Unsubscribe(taskID, sub)
	if remaining == 0 {
		h.stopPollerLocked(taskID)
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RecordWatchUnsubscribed(context.Background())
	}
	h.logger.Info("Subscriber detached", "taskId", taskID, "subscribers", remaining)
}

// SubscriberCount returns the number of live subscribers for a task.
func (h *Hub) SubscriberCount(taskID string) int {
	return h.registry.Count(taskID)
}

// Close stops every poll loop and waits for them to exit, bounded by ctx.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for taskID := range h.pollers {
		h.stopPollerLocked(taskID)
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("Watch hub shut down")
		return nil
	case <-ctx.Done():
		h.logger.Warn("Watch hub shutdown timed out")
		return ctx.Err()
	}
}

// ensurePollerLocked starts the poll loop for a task if it is not running.
// Caller holds h.mu.
func (h *Hub) ensurePollerLocked(taskID string) {
	if _, running := h.pollers[taskID]; running {
		return
	}
	stop := make(chan struct{})
	h.pollers[taskID] = stop
	h.wg.Add(1)
	if h.metrics != nil {
		h.metrics.RecordWatchPollerCount(context.Background(), 1)
	}
	go h.poll(taskID, stop)
}

// stopPollerLocked signals a task's poll loop to exit. Caller holds h.mu.
func (h *Hub) stopPollerLocked(taskID string) {
	if stop, ok := h.pollers[taskID]; ok {
		close(stop)
		delete(h.pollers, taskID)
	}
}

// removePoller clears poller bookkeeping when a loop exits on its own
// (terminal task), as opposed to being stopped by the hub. Only the exiting
// loop's own entry is removed: an unsubscribe/resubscribe may have replaced
// it with a fresh loop in the meantime. A subscriber that registered between
// the loop committing to exit and this call saw the stale entry and started
// nothing, so a replacement loop is spun up for them here.
func (h *Hub) removePoller(taskID string, stop chan struct{}) {
	h.mu.Lock()
	if cur, ok := h.pollers[taskID]; ok && cur == stop {
		delete(h.pollers, taskID)
		if !h.closed && h.registry.Count(taskID) > 0 {
			h.ensurePollerLocked(taskID)
		}
	}
	h.mu.Unlock()
}

// lastSeen is the snapshot a poll loop diffs the row against. Only these
// named fields trigger a broadcast; writes to anything else are irrelevant
// to subscribers.
type lastSeen struct {
	valid  bool
	step   int
	loss   *float64
	metric *float64
	status task.Status
}

func (l *lastSeen) changed(t *task.Task) bool {
	if !l.valid {
		return true
	}
	return l.step != t.CurrentStep ||
		!floatPtrEqual(l.loss, t.CurrentLoss) ||
		!floatPtrEqual(l.metric, t.CurrentMetric) ||
		l.status != t.Status
}

func (l *lastSeen) record(t *task.Task) {
	l.valid = true
	l.step = t.CurrentStep
	l.loss = t.CurrentLoss
	l.metric = t.CurrentMetric
	l.status = t.Status
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// poll is the per-task loop. The first read happens immediately so a new
// watcher sees current state without waiting a full interval.
func (h *Hub) poll(taskID string, stop chan struct{}) {
	defer h.wg.Done()
	defer func() {
		if h.metrics != nil {
			h.metrics.RecordWatchPollerCount(context.Background(), -1)
		}
	}()

	logger := h.logger.With("taskId", taskID)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last lastSeen
	for {
		if done := h.pollOnce(taskID, &last, logger); done {
			h.removePoller(taskID, stop)
			return
		}
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// pollOnce reads the row, broadcasts a delta if a watched field changed, and
// reports whether the loop should end.
func (h *Hub) pollOnce(taskID string, last *lastSeen, logger *slog.Logger) bool {
	ctx, cancel := context.WithTimeout(context.Background(), h.interval)
	t, err := h.store.GetTask(ctx, taskID)
	cancel()
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Row vanished under a live watcher; tell them and shut down.
			h.broadcast(taskID, Error("task "+taskID+" no longer exists"))
			h.registry.Clear(taskID)
			return true
		}
		// Transient store error: keep polling, a later read may succeed.
		logger.Warn("Poll read failed", "error", err)
		return false
	}

	if last.changed(t) {
		h.broadcast(taskID, Progress(t))
		last.record(t)
	}

	if t.Status.Terminal() {
		h.broadcast(taskID, Finished(t))
		cleared := h.registry.Clear(taskID)
		logger.Info("Task finished, watch closed", "status", t.Status, "subscribers", cleared)
		return true
	}
	return false
}

func (h *Hub) broadcast(taskID string, msg Message) {
	sent := h.registry.Broadcast(taskID, msg)
	if h.metrics != nil && sent > 0 {
		h.metrics.RecordWatchMessage(context.Background(), msg.Type)
	}
}
