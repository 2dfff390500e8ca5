// Package stats aggregates a user's tasks into dashboard totals and keeps them current
// from the change feed.
package stats

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/nadmax/bordo/internal/changefeed"
	"github.com/nadmax/bordo/internal/task"
)

type Stats struct {
	TotalTasks     int     `json:"total_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	HoursRemaining float64 `json:"hours_remaining"`
	HoursUsed      float64 `json:"hours_used"`
}

// Compute folds tasks into totals. Hours are rounded to one decimal, halves away from
// zero on the positive side. Remaining hours go negative when a user overruns.
func Compute(tasks []task.Task) Stats {
	var estimated, spent, completed int
	for _, t := range tasks {
		estimated += t.TotalEstimatedMinutes
		spent += t.TotalSpentMinutes
		if t.IsCompleted {
			completed++
		}
	}

	return Stats{
		TotalTasks:     len(tasks),
		CompletedTasks: completed,
		HoursRemaining: round1(float64(estimated-spent) / 60),
		HoursUsed:      round1(float64(spent) / 60),
	}
}

func round1(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}

type TaskLister interface {
	ListTasksByUser(ctx context.Context, userID string) ([]task.Task, error)
}

type Aggregator struct {
	tasks TaskLister
	feed  changefeed.Subscriber
}

func NewAggregator(tasks TaskLister, feed changefeed.Subscriber) *Aggregator {
	return &Aggregator{tasks: tasks, feed: feed}
}

func (a *Aggregator) Snapshot(ctx context.Context, userID string) (Stats, error) {
	tasks, err := a.tasks.ListTasksByUser(ctx, userID)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list tasks: %w", err)
	}

	return Compute(tasks), nil
}

// Watch pushes a fresh snapshot to fn right away and again after every change to the
// user's tasks. It blocks until ctx is cancelled or the feed closes, and releases the
// subscription on return.
func (a *Aggregator) Watch(ctx context.Context, userID string, fn func(Stats)) error {
	sub, err := a.feed.Subscribe(ctx, changefeed.Filter{Table: changefeed.TableTasks, UserID: userID})
	if err != nil {
		return fmt.Errorf("failed to subscribe to task changes: %w", err)
	}
	defer func() { _ = sub.Close() }()

	current, err := a.Snapshot(ctx, userID)
	if err != nil {
		return err
	}
	fn(current)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}

			switch ev.Type {
			case changefeed.EventInsert, changefeed.EventUpdate, changefeed.EventDelete:
			default:
				continue
			}

			current, err := a.Snapshot(ctx, userID)
			if err != nil {
				log.Printf("Failed to recompute stats for %s: %v", userID, err)
				continue
			}
			fn(current)
		}
	}
}
