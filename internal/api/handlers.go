// Package api wires the HTTP surface: auth, tasks, timers, checklist, dashboard, friends,
// reports, the realtime socket and the break-down function.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/nadmax/bordo/internal/auth"
	"github.com/nadmax/bordo/internal/changefeed"
	"github.com/nadmax/bordo/internal/checklist"
	"github.com/nadmax/bordo/internal/dashboard"
	"github.com/nadmax/bordo/internal/decompose"
	"github.com/nadmax/bordo/internal/friends"
	"github.com/nadmax/bordo/internal/httputil"
	"github.com/nadmax/bordo/internal/middleware"
	"github.com/nadmax/bordo/internal/queue"
	"github.com/nadmax/bordo/internal/report"
	"github.com/nadmax/bordo/internal/repository"
	"github.com/nadmax/bordo/internal/stats"
	"github.com/nadmax/bordo/internal/task"
	"github.com/nadmax/bordo/internal/timer"
)

const maxBodyBytes = 1 << 20

type Authenticator interface {
	middleware.SessionResolver
	SignUp(ctx context.Context, email, password, name string) (*auth.Session, error)
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	SignOut(ctx context.Context, token string) error
}

type Decomposer interface {
	BreakDown(ctx context.Context, req decompose.Request) ([]task.Subtask, error)
}

type JobQueue interface {
	Enqueue(ctx context.Context, job *queue.Job) error
	GetAllJobs(ctx context.Context) ([]*queue.Job, error)
}

type TaskStore interface {
	CreateTask(ctx context.Context, t *task.Task) error
	GetTask(ctx context.Context, taskID string) (*task.Task, error)
	ListTasksByUser(ctx context.Context, userID string) ([]task.Task, error)
	ListCompletedSince(ctx context.Context, userID string, since time.Time) ([]task.Task, error)
}

type Config struct {
	Tasks      TaskStore
	Auth       Authenticator
	Decomposer Decomposer
	Jobs       JobQueue
	Feed       changefeed.Publisher
	Timers     *timer.Registry
	Checklist  *checklist.Checklist
	Stats      *stats.Aggregator
	Friends    *friends.Service
	Reports    *report.Generator
	Realtime   http.Handler
}

type API struct {
	cfg     Config
	mux     *http.ServeMux
	handler http.Handler
}

func NewAPI(cfg Config) *API {
	if cfg.Feed == nil {
		cfg.Feed = changefeed.Nop{}
	}

	api := &API{
		cfg: cfg,
		mux: http.NewServeMux(),
	}

	api.setupRoutes()
	api.handler = middleware.MetricsMiddleware(middleware.CORS(api.mux))
	return api
}

func (a *API) setupRoutes() {
	requireAuth := middleware.RequireAuth(a.cfg.Auth)
	authed := func(h http.HandlerFunc) http.Handler {
		return requireAuth(h)
	}

	a.mux.HandleFunc("GET /health", a.health)

	a.mux.HandleFunc("POST /api/auth/signup", a.signUp)
	a.mux.HandleFunc("POST /api/auth/signin", a.signIn)
	a.mux.Handle("POST /api/auth/signout", authed(a.signOut))
	a.mux.Handle("GET /api/auth/session", authed(a.session))

	a.mux.Handle("POST /api/tasks", authed(a.createTask))
	a.mux.Handle("GET /api/tasks", authed(a.listTasks))
	a.mux.Handle("GET /api/tasks/{id}", authed(a.getTask))
	a.mux.Handle("GET /api/tasks/{id}/subtasks", authed(a.listSubtasks))
	a.mux.Handle("POST /api/subtasks/{id}/toggle", authed(a.toggleSubtask))

	a.mux.Handle("POST /api/tasks/{id}/timer/start", authed(a.startTimer))
	a.mux.Handle("POST /api/tasks/{id}/timer/stop", authed(a.stopTimer))
	a.mux.Handle("GET /api/tasks/{id}/timer", authed(a.timerStatus))
	a.mux.Handle("POST /api/tasks/{id}/complete", authed(a.completeTask))

	dash := dashboard.NewDashboard(a.cfg.Stats, a.cfg.Tasks, a.cfg.Jobs)
	a.mux.Handle("GET /api/stats", authed(dash.GetStats))
	a.mux.Handle("GET /api/dashboard/history", authed(dash.GetRecentTasks))
	a.mux.Handle("GET /api/dashboard/jobs", authed(dash.GetJobs))

	a.mux.Handle("GET /api/friends", authed(a.listFriends))
	a.mux.Handle("POST /api/friends", authed(a.addFriend))

	a.mux.Handle("GET /api/reports/timesheet", authed(a.timesheet))

	if a.cfg.Realtime != nil {
		a.mux.Handle("GET /api/realtime", requireAuth(a.cfg.Realtime))
	}

	a.mux.Handle("POST /functions/break-down-task", authed(a.breakDownTask))
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// decodeJSON reads a bounded JSON body into v, answering 400 itself on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		httputil.WriteJSONError(w, "Failed to read request body", http.StatusBadRequest)
		return false
	}

	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("failed to close request body: %v", err)
		}
	}()

	if err := json.Unmarshal(body, v); err != nil {
		httputil.WriteJSONError(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}

	return true
}

// ownedTask loads the path's task for the signed-in user. Tasks of other users are
// reported as missing.
func (a *API) ownedTask(w http.ResponseWriter, r *http.Request) (*task.Task, bool) {
	user, err := auth.RequireUser(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusUnauthorized)
		return nil, false
	}

	t, err := a.cfg.Tasks.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httputil.WriteJSONError(w, "Task not found", http.StatusNotFound)
			return nil, false
		}
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}

	if t.UserID != user.ID {
		httputil.WriteJSONError(w, "Task not found", http.StatusNotFound)
		return nil, false
	}

	return t, true
}

func (a *API) publish(ctx context.Context, ev changefeed.Event) {
	if err := a.cfg.Feed.Publish(ctx, ev); err != nil {
		log.Printf("Failed to publish %s %s event for %s: %v", ev.Table, ev.Type, ev.RecordID, err)
	}
}
