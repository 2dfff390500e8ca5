package handlers

import (
	"context"
	"fmt"
	"log"

	"github.com/nadmax/bordo/internal/auth"
	"github.com/nadmax/bordo/internal/decompose"
	"github.com/nadmax/bordo/internal/queue"
	"github.com/nadmax/bordo/internal/repository/models"
	"github.com/nadmax/bordo/internal/task"
)

type Decomposer interface {
	BreakDown(ctx context.Context, req decompose.Request) ([]task.Subtask, error)
	NotifyFailure(ctx context.Context, userID, taskID string, cause error)
}

// BreakDownTaskHandler runs a queued decomposition as the task's owner. A failure is
// pushed to the owner's clients before it is returned to the worker.
func BreakDownTaskHandler(d Decomposer) func(ctx context.Context, job *queue.Job) error {
	return func(ctx context.Context, job *queue.Job) error {
		req, userID, err := decompose.RequestFromJob(job)
		if err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}

		ctx = auth.WithUser(ctx, &models.User{ID: userID})

		subtasks, err := d.BreakDown(ctx, req)
		if err != nil {
			d.NotifyFailure(context.WithoutCancel(ctx), userID, req.TaskID, err)
			return err
		}

		log.Printf("[Job %s] Task %s decomposed into %d subtasks", job.ID, req.TaskID, len(subtasks))
		return nil
	}
}
