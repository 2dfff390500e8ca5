// Package dashboard serves the signed-in user's overview: totals, recently finished tasks
// and the state of their background decompositions.
package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/nadmax/bordo/internal/auth"
	"github.com/nadmax/bordo/internal/httputil"
	"github.com/nadmax/bordo/internal/queue"
	"github.com/nadmax/bordo/internal/stats"
	"github.com/nadmax/bordo/internal/task"
)

const historyWindow = 24 * time.Hour

type StatsSource interface {
	Snapshot(ctx context.Context, userID string) (stats.Stats, error)
}

type CompletedLister interface {
	ListCompletedSince(ctx context.Context, userID string, since time.Time) ([]task.Task, error)
}

type JobLister interface {
	GetAllJobs(ctx context.Context) ([]*queue.Job, error)
}

type Dashboard struct {
	stats StatsSource
	tasks CompletedLister
	jobs  JobLister
}

type TaskHistory struct {
	TaskID           string     `json:"task_id"`
	Title            string     `json:"title"`
	EstimatedMinutes int        `json:"estimated_minutes"`
	SpentMinutes     int        `json:"spent_minutes"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	Duration         string     `json:"duration"`
}

type JobStats struct {
	TotalJobs       int       `json:"total_jobs"`
	PendingJobs     int       `json:"pending_jobs"`
	RunningJobs     int       `json:"running_jobs"`
	CompletedJobs   int       `json:"completed_jobs"`
	FailedJobs      int       `json:"failed_jobs"`
	LastError       string    `json:"last_error,omitempty"`
	AverageWaitTime string    `json:"average_wait_time"`
	LastUpdated     time.Time `json:"last_updated"`
}

func NewDashboard(s StatsSource, tasks CompletedLister, jobs JobLister) *Dashboard {
	return &Dashboard{stats: s, tasks: tasks, jobs: jobs}
}

func (d *Dashboard) GetStats(w http.ResponseWriter, r *http.Request) {
	user, err := auth.RequireUser(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	s, err := d.stats.Snapshot(r.Context(), user.ID)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, s, http.StatusOK)
}

// GetRecentTasks lists the tasks the user completed in the last 24 hours, newest first.
func (d *Dashboard) GetRecentTasks(w http.ResponseWriter, r *http.Request) {
	user, err := auth.RequireUser(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	tasks, err := d.tasks.ListCompletedSince(r.Context(), user.ID, time.Now().Add(-historyWindow))
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	history := []TaskHistory{}
	for _, t := range tasks {
		if t.CompletedAt == nil {
			continue
		}

		history = append(history, TaskHistory{
			TaskID:           t.ID,
			Title:            t.Title,
			EstimatedMinutes: t.TotalEstimatedMinutes,
			SpentMinutes:     t.TotalSpentMinutes,
			CreatedAt:        t.CreatedAt,
			CompletedAt:      t.CompletedAt,
			Duration:         t.CompletedAt.Sub(t.CreatedAt).Round(time.Second).String(),
		})
	}

	httputil.WriteJSON(w, history, http.StatusOK)
}

// GetJobs summarises the user's queued decompositions.
func (d *Dashboard) GetJobs(w http.ResponseWriter, r *http.Request) {
	user, err := auth.RequireUser(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	jobs, err := d.jobs.GetAllJobs(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, summariseJobs(jobs, user.ID), http.StatusOK)
}

func summariseJobs(jobs []*queue.Job, userID string) JobStats {
	s := JobStats{LastUpdated: time.Now()}

	var totalWait time.Duration
	waitCount := 0
	var lastFailure time.Time

	for _, job := range jobs {
		if job.Type != queue.JobBreakDownTask {
			continue
		}
		if owner, _ := job.String("user_id"); owner != userID {
			continue
		}

		s.TotalJobs++
		switch job.Status {
		case queue.StatusPending:
			s.PendingJobs++
		case queue.StatusRunning:
			s.RunningJobs++
		case queue.StatusCompleted:
			s.CompletedJobs++
		case queue.StatusFailed:
			s.FailedJobs++
			if job.CompletedAt != nil && job.CompletedAt.After(lastFailure) {
				lastFailure = *job.CompletedAt
				s.LastError = job.Error
			}
		}

		if job.StartedAt != nil {
			totalWait += job.StartedAt.Sub(job.CreatedAt)
			waitCount++
		}
	}

	if waitCount > 0 {
		s.AverageWaitTime = (totalWait / time.Duration(waitCount)).Round(time.Millisecond).String()
	} else {
		s.AverageWaitTime = "N/A"
	}

	return s
}
