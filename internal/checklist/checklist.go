// Package checklist serves a task's ordered subtasks and toggles their completion.
package checklist

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/nadmax/bordo/internal/auth"
	"github.com/nadmax/bordo/internal/changefeed"
	"github.com/nadmax/bordo/internal/repository"
	"github.com/nadmax/bordo/internal/task"
)

var ErrNotFound = errors.New("not found")

type Store interface {
	GetTask(ctx context.Context, taskID string) (*task.Task, error)
	ListSubtasks(ctx context.Context, taskID string) ([]task.Subtask, error)
	GetSubtask(ctx context.Context, subtaskID string) (*task.Subtask, error)
	ToggleSubtask(ctx context.Context, subtaskID string) (*task.Subtask, error)
}

type Checklist struct {
	store Store
	feed  changefeed.Publisher
}

func New(store Store, feed changefeed.Publisher) *Checklist {
	if feed == nil {
		feed = changefeed.Nop{}
	}

	return &Checklist{store: store, feed: feed}
}

// List returns the task's subtasks by ascending order_index.
func (c *Checklist) List(ctx context.Context, taskID string) ([]task.Subtask, error) {
	if _, err := c.ownedTask(ctx, taskID); err != nil {
		return nil, err
	}

	subtasks, err := c.store.ListSubtasks(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subtasks: %w", err)
	}

	return subtasks, nil
}

// Toggle flips a subtask's completion and returns the stored row. On failure nothing
// has changed.
func (c *Checklist) Toggle(ctx context.Context, subtaskID string) (*task.Subtask, error) {
	st, err := c.store.GetSubtask(ctx, subtaskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load subtask: %w", err)
	}

	owner, err := c.ownedTask(ctx, st.TaskID)
	if err != nil {
		return nil, err
	}

	toggled, err := c.store.ToggleSubtask(ctx, subtaskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to toggle subtask: %w", err)
	}

	ev := changefeed.NewEvent(changefeed.TableSubtasks, changefeed.EventUpdate, owner.UserID, toggled.ID)
	if err := c.feed.Publish(ctx, ev); err != nil {
		log.Printf("Failed to publish subtask toggle %s: %v", toggled.ID, err)
	}

	return toggled, nil
}

func (c *Checklist) ownedTask(ctx context.Context, taskID string) (*task.Task, error) {
	user, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	t, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	if t.UserID != user.ID {
		return nil, ErrNotFound
	}

	return t, nil
}
