// Package handlers provides job handlers for the worker.
// Each handler implements the work for one job type and is registered with the worker
// under that type.
package handlers

import (
	"context"
	"fmt"
	"log"

	"github.com/nadmax/bordo/internal/notify"
	"github.com/nadmax/bordo/internal/queue"
)

func SendEmailHandler(m notify.Mailer) func(ctx context.Context, job *queue.Job) error {
	return func(ctx context.Context, job *queue.Job) error {
		msg, err := notify.MessageFromJob(job)
		if err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}

		log.Printf("[Job %s] Sending %q to %s", job.ID, msg.Subject, msg.To)
		return m.Send(ctx, msg)
	}
}
