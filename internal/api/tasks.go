package api

import (
	"errors"
	"log"
	"math"
	"net/http"
	"strings"

	"github.com/nadmax/bordo/internal/auth"
	"github.com/nadmax/bordo/internal/changefeed"
	"github.com/nadmax/bordo/internal/checklist"
	"github.com/nadmax/bordo/internal/decompose"
	"github.com/nadmax/bordo/internal/httputil"
	"github.com/nadmax/bordo/internal/task"
)

type CreateTaskRequest struct {
	Title          string  `json:"title"`
	Description    *string `json:"description"`
	EstimatedHours float64 `json:"estimated_hours"`
}

type CreateTaskResponse struct {
	Task  *task.Task `json:"task"`
	JobID string     `json:"job_id,omitempty"`
}

// createTask stores the task with the user's estimate and queues its decomposition. A
// queueing failure leaves the task in place without subtasks.
func (a *API) createTask(w http.ResponseWriter, r *http.Request) {
	user, err := auth.RequireUser(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var req CreateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		httputil.WriteJSONError(w, "Task title is required", http.StatusBadRequest)
		return
	}
	if req.EstimatedHours <= 0 {
		httputil.WriteJSONError(w, "Estimated hours must be positive", http.StatusBadRequest)
		return
	}

	if req.Description != nil && strings.TrimSpace(*req.Description) == "" {
		req.Description = nil
	}

	t := task.NewTask(user.ID, title, req.Description, int(math.Round(req.EstimatedHours*60)))
	if err := a.cfg.Tasks.CreateTask(r.Context(), t); err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	a.publish(r.Context(), changefeed.NewEvent(changefeed.TableTasks, changefeed.EventInsert, user.ID, t.ID))

	resp := CreateTaskResponse{Task: t}

	decomposeReq := decompose.Request{
		TaskTitle:      t.Title,
		AvailableHours: req.EstimatedHours,
		TaskID:         t.ID,
	}
	if t.Description != nil {
		decomposeReq.TaskDescription = *t.Description
	}

	job := decompose.NewJob(user.ID, decomposeReq)
	if err := a.cfg.Jobs.Enqueue(r.Context(), job); err != nil {
		log.Printf("Failed to queue decomposition for task %s: %v", t.ID, err)
	} else {
		resp.JobID = job.ID
	}

	httputil.WriteJSON(w, resp, http.StatusCreated)
}

func (a *API) listTasks(w http.ResponseWriter, r *http.Request) {
	user, err := auth.RequireUser(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	tasks, err := a.cfg.Tasks.ListTasksByUser(r.Context(), user.ID)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, tasks, http.StatusOK)
}

func (a *API) getTask(w http.ResponseWriter, r *http.Request) {
	t, ok := a.ownedTask(w, r)
	if !ok {
		return
	}

	httputil.WriteJSON(w, t, http.StatusOK)
}

func (a *API) listSubtasks(w http.ResponseWriter, r *http.Request) {
	subtasks, err := a.cfg.Checklist.List(r.Context(), r.PathValue("id"))
	if err != nil {
		writeChecklistError(w, err)
		return
	}

	httputil.WriteJSON(w, subtasks, http.StatusOK)
}

func (a *API) toggleSubtask(w http.ResponseWriter, r *http.Request) {
	subtask, err := a.cfg.Checklist.Toggle(r.Context(), r.PathValue("id"))
	if err != nil {
		writeChecklistError(w, err)
		return
	}

	httputil.WriteJSON(w, subtask, http.StatusOK)
}

func writeChecklistError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checklist.ErrNotFound):
		httputil.WriteJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, auth.ErrUnauthenticated):
		httputil.WriteJSONError(w, err.Error(), http.StatusUnauthorized)
	default:
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
	}
}
