// Package watch distributes task progress to live subscribers: a registry of
// subscriber handles per task and one poll-and-diff loop per observed task.
package watch

import (
	"log/slog"
	"sync"
)

// Subscriber is a live transport connection registered for one task. Send
// must be safe for concurrent use and should fail fast once the underlying
// connection is gone.
type Subscriber interface {
	Send(msg Message) error
}

// Registry maps task ids to their live subscribers. The lock covers registry
// mutation only; sends happen outside it against a copied snapshot, so a
// slow subscriber never blocks registration.
type Registry struct {
	mu     sync.Mutex
	subs   map[string]map[Subscriber]struct{}
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		subs:   make(map[string]map[Subscriber]struct{}),
		logger: slog.With("component", "watch-registry"),
	}
}

// Subscribe adds a subscriber for a task and returns the new subscriber
// count for that task.
func (r *Registry) Subscribe(taskID string, sub Subscriber) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[taskID]
	if !ok {
		set = make(map[Subscriber]struct{})
		r.subs[taskID] = set
	}
	set[sub] = struct{}{}
	return len(set)
}

// Unsubscribe removes a subscriber and returns the remaining count for the
// task. Removing an unknown subscriber is a no-op.
func (r *Registry) Unsubscribe(taskID string, sub Subscriber) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[taskID]
	if !ok {
		return 0
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(r.subs, taskID)
		return 0
	}
	return len(set)
}

// Broadcast sends msg to every subscriber of the task. Failed handles are
// collected during iteration and removed in a follow-up locked step; one
// broken subscriber never aborts delivery to the rest. Broadcasting to a
// task with no subscribers is a no-op. Returns the number of successful
// sends.
func (r *Registry) Broadcast(taskID string, msg Message) int {
	r.mu.Lock()
	snapshot := make([]Subscriber, 0, len(r.subs[taskID]))
	for sub := range r.subs[taskID] {
		snapshot = append(snapshot, sub)
	}
	r.mu.Unlock()

	if len(snapshot) == 0 {
		return 0
	}

	var failed []Subscriber
	sent := 0
	for _, sub := range snapshot {
		if err := sub.Send(msg); err != nil {
			r.logger.Warn("Subscriber send failed, removing", "taskId", taskID, "error", err)
			failed = append(failed, sub)
			continue
		}
		sent++
	}

	if len(failed) > 0 {
		r.mu.Lock()
		if set, ok := r.subs[taskID]; ok {
			for _, sub := range failed {
				delete(set, sub)
			}
			if len(set) == 0 {
				delete(r.subs, taskID)
			}
		}
		r.mu.Unlock()
	}
	return sent
}

// Clear removes every subscriber for a task and returns how many there were.
func (r *Registry) Clear(taskID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.subs[taskID])
	delete(r.subs, taskID)
	return n
}

// Count returns the number of live subscribers for a task.
func (r *Registry) Count(taskID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[taskID])
}
