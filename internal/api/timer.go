package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/nadmax/bordo/internal/httputil"
	"github.com/nadmax/bordo/internal/task"
	"github.com/nadmax/bordo/internal/timer"
)

type CompleteTaskResponse struct {
	Task    *task.Task       `json:"task"`
	Stopped timer.StopResult `json:"stopped"`
	Warning string           `json:"warning,omitempty"`
}

// engine resolves the timer engine for the path's task after checking ownership.
func (a *API) engine(w http.ResponseWriter, r *http.Request) (*timer.Engine, *task.Task, bool) {
	t, ok := a.ownedTask(w, r)
	if !ok {
		return nil, nil, false
	}

	e, err := a.cfg.Timers.Engine(r.Context(), t.UserID, t.ID)
	if err != nil {
		writeTimerError(w, err)
		return nil, nil, false
	}

	return e, t, true
}

// retryClosed runs op once more on a fresh engine when the first one was released by a
// concurrent request.
func (a *API) retryClosed(r *http.Request, t *task.Task, err error, op func(*timer.Engine) error) error {
	if !errors.Is(err, timer.ErrClosed) {
		return err
	}

	e, err := a.cfg.Timers.Engine(r.Context(), t.UserID, t.ID)
	if err != nil {
		return err
	}

	return op(e)
}

func (a *API) startTimer(w http.ResponseWriter, r *http.Request) {
	e, t, ok := a.engine(w, r)
	if !ok {
		return
	}

	if t.IsCompleted {
		httputil.WriteJSONError(w, "Task already completed", http.StatusConflict)
		return
	}

	var status timer.Status
	start := func(e *timer.Engine) (err error) {
		status, err = e.Start(r.Context())
		return err
	}

	if err := a.retryClosed(r, t, start(e), start); err != nil {
		writeTimerError(w, err)
		return
	}

	httputil.WriteJSON(w, status, http.StatusOK)
}

func (a *API) stopTimer(w http.ResponseWriter, r *http.Request) {
	e, t, ok := a.engine(w, r)
	if !ok {
		return
	}

	var result timer.StopResult
	stop := func(e *timer.Engine) (err error) {
		result, err = e.Stop(r.Context())
		return err
	}

	if err := a.retryClosed(r, t, stop(e), stop); err != nil {
		writeTimerError(w, err)
		return
	}

	a.cfg.Timers.Release(t.UserID, t.ID)
	httputil.WriteJSON(w, result, http.StatusOK)
}

func (a *API) timerStatus(w http.ResponseWriter, r *http.Request) {
	e, _, ok := a.engine(w, r)
	if !ok {
		return
	}

	httputil.WriteJSON(w, e.Status(), http.StatusOK)
}

func (a *API) completeTask(w http.ResponseWriter, r *http.Request) {
	e, t, ok := a.engine(w, r)
	if !ok {
		return
	}

	var (
		completed *task.Task
		result    timer.StopResult
	)
	complete := func(e *timer.Engine) (err error) {
		completed, result, err = e.Complete(r.Context())
		return err
	}

	err := a.retryClosed(r, t, complete(e), complete)

	var partial *timer.PartialStopError
	if err != nil && (completed == nil || !errors.As(err, &partial)) {
		writeTimerError(w, err)
		return
	}

	resp := CompleteTaskResponse{Task: completed, Stopped: result}
	if partial != nil {
		resp.Warning = partial.Error()
	}

	a.cfg.Timers.Release(t.UserID, t.ID)
	httputil.WriteJSON(w, resp, http.StatusOK)
}

func writeTimerError(w http.ResponseWriter, err error) {
	var partial *timer.PartialStopError

	switch {
	case errors.Is(err, timer.ErrAlreadyRunning):
		httputil.WriteJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, timer.ErrNoIdentity):
		httputil.WriteJSONError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, timer.ErrClosed):
		httputil.WriteJSONError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.As(err, &partial):
		log.Printf("Timer stop partially failed: %v", err)
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
	default:
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
	}
}
