// Package models contains data structures used by the repository layer that are not
// part of the task domain itself.
package models

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Friendship struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	FriendID  string    `json:"friend_id"`
	CreatedAt time.Time `json:"created_at"`
}

type FriendProgress struct {
	FriendID       string `json:"friend_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	TotalTasks     int    `json:"total_tasks"`
	CompletedTasks int    `json:"completed_tasks"`
}

type TimesheetRow struct {
	EntryID         string    `json:"entry_id"`
	TaskID          string    `json:"task_id"`
	TaskTitle       string    `json:"task_title"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DurationMinutes int       `json:"duration_minutes"`
}
