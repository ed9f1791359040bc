package task

import (
	"context"
	"fmt"
	"time"

	"trainhub/internal/apperrors"
)

// ApplyTransition moves a task to the next state, stamping the appropriate
// timestamp and merging upd into the same write. It is the single enforcement
// point for the transition table: both the submission path and the execution
// harness mutate status through it.
//
// A transition attempted on an already-terminal task returns an
// apperrors.InvalidState error and leaves the row unchanged.
func ApplyTransition(ctx context.Context, store Store, id string, next Status, upd Update) (*Task, error) {
	if !next.Valid() {
		return nil, apperrors.Internal("task.transition", fmt.Errorf("unknown status %q", next))
	}

	current, err := store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	if !current.Status.CanTransitionTo(next) {
		return nil, apperrors.InvalidState("task",
			fmt.Sprintf("task %s is %s, cannot transition to %s", id, current.Status, next))
	}

	now := time.Now().UTC()
	upd.Status = &next
	switch {
	case next == StatusRunning:
		upd.StartedAt = &now
	case next.Terminal():
		upd.CompletedAt = &now
	}

	if err := store.UpdateTask(ctx, id, upd); err != nil {
		return nil, err
	}
	return store.GetTask(ctx, id)
}
