// Package repository declares the storage contracts for tasks, subtasks, time entries,
// users and friendships.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nadmax/bordo/internal/repository/models"
	"github.com/nadmax/bordo/internal/task"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

type TaskRepository interface {
	CreateTask(ctx context.Context, t *task.Task) error
	GetTask(ctx context.Context, taskID string) (*task.Task, error)
	ListTasksByUser(ctx context.Context, userID string) ([]task.Task, error)
	ListCompletedSince(ctx context.Context, userID string, since time.Time) ([]task.Task, error)
	UpdateEstimate(ctx context.Context, taskID string, minutes int) error
	AddSpentMinutes(ctx context.Context, taskID string, minutes int) error
	MarkCompleted(ctx context.Context, taskID string, at time.Time) (*task.Task, error)
}

type SubtaskRepository interface {
	InsertSubtasks(ctx context.Context, subtasks []task.Subtask) ([]task.Subtask, error)
	ListSubtasks(ctx context.Context, taskID string) ([]task.Subtask, error)
	GetSubtask(ctx context.Context, subtaskID string) (*task.Subtask, error)
	ToggleSubtask(ctx context.Context, subtaskID string) (*task.Subtask, error)
}

type TimeEntryRepository interface {
	CreateTimeEntry(ctx context.Context, e *task.TimeEntry) error
	CloseTimeEntry(ctx context.Context, entryID string, endedAt time.Time, durationMinutes int) error
	GetOpenTimeEntry(ctx context.Context, taskID, userID string) (*task.TimeEntry, error)
	ListStaleOpenEntries(ctx context.Context, startedBefore time.Time) ([]task.TimeEntry, error)
	CountOpenEntries(ctx context.Context) (int, error)
	ListTimesheet(ctx context.Context, userID string, from, to time.Time) ([]models.TimesheetRow, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type FriendRepository interface {
	AddFriendship(ctx context.Context, f *models.Friendship) error
	FriendshipExists(ctx context.Context, userID, friendID string) (bool, error)
	ListFriendProgress(ctx context.Context, userID string) ([]models.FriendProgress, error)
}

type Repository interface {
	TaskRepository
	SubtaskRepository
	TimeEntryRepository
	UserRepository
	FriendRepository
	Close() error
}
