package decompose

import (
	"errors"

	"github.com/nadmax/bordo/internal/queue"
)

// NewJob builds the break_down_task job enqueued when a task is created.
func NewJob(userID string, req Request) *queue.Job {
	return queue.NewJob(queue.JobBreakDownTask, map[string]any{
		"task_id":         req.TaskID,
		"user_id":         userID,
		"title":           req.TaskTitle,
		"description":     req.TaskDescription,
		"available_hours": req.AvailableHours,
	})
}

// RequestFromJob reads a job built by NewJob back into a Request and the owning user.
func RequestFromJob(job *queue.Job) (Request, string, error) {
	userID, ok := job.String("user_id")
	if !ok || userID == "" {
		return Request{}, "", errors.New("missing 'user_id' field")
	}

	taskID, ok := job.String("task_id")
	if !ok || taskID == "" {
		return Request{}, "", errors.New("missing 'task_id' field")
	}

	title, ok := job.String("title")
	if !ok {
		return Request{}, "", errors.New("missing 'title' field")
	}

	hours, ok := job.Float("available_hours")
	if !ok {
		return Request{}, "", errors.New("missing 'available_hours' field")
	}

	description, _ := job.String("description")

	return Request{
		TaskTitle:       title,
		TaskDescription: description,
		AvailableHours:  hours,
		TaskID:          taskID,
	}, userID, nil
}
