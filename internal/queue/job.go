package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

const (
	JobBreakDownTask = "break_down_task"
	JobSendEmail     = "send_email"
)

type Job struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload"`
	Status      JobStatus      `json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

func NewJob(jobType string, payload map[string]any) *Job {
	now := time.Now()
	return &Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Payload:     payload,
		Status:      StatusPending,
		CreatedAt:   now,
		ScheduledAt: now,
	}
}

func (j *Job) ToJSON() (string, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func JobFromJSON(data string) (*Job, error) {
	var j Job
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, err
	}

	return &j, nil
}

// String reads a string field from the payload, reporting whether it was present.
func (j *Job) String(key string) (string, bool) {
	v, ok := j.Payload[key].(string)
	return v, ok
}

// Float reads a numeric field from the payload. JSON numbers decode as float64.
func (j *Job) Float(key string) (float64, bool) {
	switch v := j.Payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
