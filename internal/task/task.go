// Package task defines the core domain model shared by the stores, the timer and the
// decomposition service: tasks, their subtasks and the time entries logged against them.
package task

import (
	"math"
	"time"

	"github.com/google/uuid"
)

type (
	Task struct {
		ID                    string     `json:"id"`
		UserID                string     `json:"user_id"`
		Title                 string     `json:"title"`
		Description           *string    `json:"description,omitempty"`
		TotalEstimatedMinutes int        `json:"total_estimated_minutes"`
		TotalSpentMinutes     int        `json:"total_spent_minutes"`
		IsCompleted           bool       `json:"is_completed"`
		CompletedAt           *time.Time `json:"completed_at,omitempty"`
		CreatedAt             time.Time  `json:"created_at"`
		UpdatedAt             time.Time  `json:"updated_at"`
	}
	Subtask struct {
		ID               string    `json:"id"`
		TaskID           string    `json:"task_id"`
		Title            string    `json:"title"`
		EstimatedMinutes int       `json:"estimated_minutes"`
		SpentMinutes     int       `json:"spent_minutes"`
		IsCompleted      bool      `json:"is_completed"`
		OrderIndex       int       `json:"order_index"`
		CreatedAt        time.Time `json:"created_at"`
	}
	TimeEntry struct {
		ID              string     `json:"id"`
		TaskID          string     `json:"task_id"`
		UserID          string     `json:"user_id"`
		StartedAt       time.Time  `json:"started_at"`
		EndedAt         *time.Time `json:"ended_at,omitempty"`
		DurationMinutes *int       `json:"duration_minutes,omitempty"`
	}
)

func NewTask(userID, title string, description *string, estimatedMinutes int) *Task {
	now := time.Now()
	return &Task{
		ID:                    uuid.New().String(),
		UserID:                userID,
		Title:                 title,
		Description:           description,
		TotalEstimatedMinutes: estimatedMinutes,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func NewSubtask(taskID, title string, estimatedMinutes, orderIndex int) Subtask {
	return Subtask{
		ID:               uuid.New().String(),
		TaskID:           taskID,
		Title:            title,
		EstimatedMinutes: estimatedMinutes,
		OrderIndex:       orderIndex,
		CreatedAt:        time.Now(),
	}
}

func NewTimeEntry(taskID, userID string, startedAt time.Time) *TimeEntry {
	return &TimeEntry{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		UserID:    userID,
		StartedAt: startedAt,
	}
}

func (e *TimeEntry) IsOpen() bool {
	return e.EndedAt == nil
}

// MinutesFromSeconds converts a session length to whole minutes, rounding half up.
func MinutesFromSeconds(seconds int64) int {
	if seconds <= 0 {
		return 0
	}

	return int(math.Floor(float64(seconds)/60 + 0.5))
}

func SumEstimatedMinutes(subtasks []Subtask) int {
	total := 0
	for _, st := range subtasks {
		total += st.EstimatedMinutes
	}

	return total
}
