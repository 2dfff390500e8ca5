// Package mocks provides an in-memory repository that records calls and can be told to
// fail, for use in service and handler tests.
package mocks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nadmax/bordo/internal/repository"
	"github.com/nadmax/bordo/internal/repository/models"
	"github.com/nadmax/bordo/internal/task"
)

type MockRepository struct {
	mu sync.Mutex

	Tasks       map[string]*task.Task
	Subtasks    map[string]*task.Subtask
	TimeEntries map[string]*task.TimeEntry
	Users       map[string]*models.User
	Friendships []models.Friendship

	CreateTaskCalls      []string
	UpdateEstimateCalls  []UpdateEstimateCall
	AddSpentMinutesCalls []AddSpentMinutesCall
	MarkCompletedCalls   []string
	InsertSubtasksCalls  [][]task.Subtask
	ToggleSubtaskCalls   []string
	CloseTimeEntryCalls  []CloseTimeEntryCall

	CreateTaskError      error
	GetTaskError         error
	ListTasksError       error
	UpdateEstimateError  error
	AddSpentMinutesError error
	MarkCompletedError   error
	InsertSubtasksError  error
	ListSubtasksError    error
	ToggleSubtaskError   error
	CreateTimeEntryError error
	CloseTimeEntryError  error
	CreateUserError      error
	AddFriendshipError   error
	ListTimesheetError   error
}

type UpdateEstimateCall struct {
	TaskID  string
	Minutes int
}

type AddSpentMinutesCall struct {
	TaskID  string
	Minutes int
}

type CloseTimeEntryCall struct {
	EntryID         string
	EndedAt         time.Time
	DurationMinutes int
}

var _ repository.Repository = (*MockRepository)(nil)

func NewMockRepository() *MockRepository {
	return &MockRepository{
		Tasks:       make(map[string]*task.Task),
		Subtasks:    make(map[string]*task.Subtask),
		TimeEntries: make(map[string]*task.TimeEntry),
		Users:       make(map[string]*models.User),
	}
}

// AddTask seeds a task without recording a call.
func (m *MockRepository) AddTask(t *task.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()

	taskCopy := *t
	m.Tasks[t.ID] = &taskCopy
}

// AddUser seeds a user without recording a call.
func (m *MockRepository) AddUser(u *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()

	userCopy := *u
	m.Users[u.ID] = &userCopy
}

func (m *MockRepository) AddTimeEntry(e *task.TimeEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entryCopy := *e
	m.TimeEntries[e.ID] = &entryCopy
}

func (m *MockRepository) TaskSnapshot(taskID string) (task.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.Tasks[taskID]
	if !ok {
		return task.Task{}, false
	}

	return *t, true
}

func (m *MockRepository) SubtasksFor(taskID string) []task.Subtask {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.subtasksFor(taskID)
}

func (m *MockRepository) subtasksFor(taskID string) []task.Subtask {
	result := []task.Subtask{}
	for _, st := range m.Subtasks {
		if st.TaskID == taskID {
			result = append(result, *st)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].OrderIndex < result[j].OrderIndex })
	return result
}

func (m *MockRepository) OpenEntries() []task.TimeEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var open []task.TimeEntry
	for _, e := range m.TimeEntries {
		if e.IsOpen() {
			open = append(open, *e)
		}
	}

	return open
}

func (m *MockRepository) TimeEntry(entryID string) (task.TimeEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.TimeEntries[entryID]
	if !ok {
		return task.TimeEntry{}, false
	}

	return *e, true
}

func (m *MockRepository) CreateTask(ctx context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateTaskCalls = append(m.CreateTaskCalls, t.ID)
	if m.CreateTaskError != nil {
		return m.CreateTaskError
	}

	taskCopy := *t
	m.Tasks[t.ID] = &taskCopy
	return nil
}

func (m *MockRepository) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetTaskError != nil {
		return nil, m.GetTaskError
	}

	t, ok := m.Tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, repository.ErrNotFound)
	}

	taskCopy := *t
	return &taskCopy, nil
}

func (m *MockRepository) ListTasksByUser(ctx context.Context, userID string) ([]task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListTasksError != nil {
		return nil, m.ListTasksError
	}

	tasks := []task.Task{}
	for _, t := range m.Tasks {
		if t.UserID == userID {
			tasks = append(tasks, *t)
		}
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	return tasks, nil
}

func (m *MockRepository) ListCompletedSince(ctx context.Context, userID string, since time.Time) ([]task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListTasksError != nil {
		return nil, m.ListTasksError
	}

	tasks := []task.Task{}
	for _, t := range m.Tasks {
		if t.UserID == userID && t.IsCompleted && t.CompletedAt != nil && t.CompletedAt.After(since) {
			tasks = append(tasks, *t)
		}
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CompletedAt.After(*tasks[j].CompletedAt) })
	return tasks, nil
}

func (m *MockRepository) UpdateEstimate(ctx context.Context, taskID string, minutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpdateEstimateCalls = append(m.UpdateEstimateCalls, UpdateEstimateCall{TaskID: taskID, Minutes: minutes})
	if m.UpdateEstimateError != nil {
		return m.UpdateEstimateError
	}

	t, ok := m.Tasks[taskID]
	if !ok {
		return repository.ErrNotFound
	}

	t.TotalEstimatedMinutes = minutes
	t.UpdatedAt = time.Now()
	return nil
}

func (m *MockRepository) AddSpentMinutes(ctx context.Context, taskID string, minutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AddSpentMinutesCalls = append(m.AddSpentMinutesCalls, AddSpentMinutesCall{TaskID: taskID, Minutes: minutes})
	if m.AddSpentMinutesError != nil {
		return m.AddSpentMinutesError
	}

	t, ok := m.Tasks[taskID]
	if !ok {
		return repository.ErrNotFound
	}

	t.TotalSpentMinutes += minutes
	t.UpdatedAt = time.Now()
	return nil
}

func (m *MockRepository) MarkCompleted(ctx context.Context, taskID string, at time.Time) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.MarkCompletedCalls = append(m.MarkCompletedCalls, taskID)
	if m.MarkCompletedError != nil {
		return nil, m.MarkCompletedError
	}

	t, ok := m.Tasks[taskID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	t.IsCompleted = true
	if t.CompletedAt == nil {
		completedAt := at
		t.CompletedAt = &completedAt
	}

	taskCopy := *t
	return &taskCopy, nil
}

func (m *MockRepository) InsertSubtasks(ctx context.Context, subtasks []task.Subtask) ([]task.Subtask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.InsertSubtasksCalls = append(m.InsertSubtasksCalls, subtasks)
	if m.InsertSubtasksError != nil {
		return nil, m.InsertSubtasksError
	}

	inserted := make([]task.Subtask, 0, len(subtasks))
	for _, st := range subtasks {
		stCopy := st
		m.Subtasks[st.ID] = &stCopy
		inserted = append(inserted, st)
	}

	return inserted, nil
}

func (m *MockRepository) ListSubtasks(ctx context.Context, taskID string) ([]task.Subtask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListSubtasksError != nil {
		return nil, m.ListSubtasksError
	}

	return m.subtasksFor(taskID), nil
}

func (m *MockRepository) GetSubtask(ctx context.Context, subtaskID string) (*task.Subtask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.Subtasks[subtaskID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	stCopy := *st
	return &stCopy, nil
}

func (m *MockRepository) ToggleSubtask(ctx context.Context, subtaskID string) (*task.Subtask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ToggleSubtaskCalls = append(m.ToggleSubtaskCalls, subtaskID)
	if m.ToggleSubtaskError != nil {
		return nil, m.ToggleSubtaskError
	}

	st, ok := m.Subtasks[subtaskID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	st.IsCompleted = !st.IsCompleted
	stCopy := *st
	return &stCopy, nil
}

func (m *MockRepository) CreateTimeEntry(ctx context.Context, e *task.TimeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateTimeEntryError != nil {
		return m.CreateTimeEntryError
	}

	entryCopy := *e
	m.TimeEntries[e.ID] = &entryCopy
	return nil
}

func (m *MockRepository) CloseTimeEntry(ctx context.Context, entryID string, endedAt time.Time, durationMinutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CloseTimeEntryCalls = append(m.CloseTimeEntryCalls, CloseTimeEntryCall{
		EntryID:         entryID,
		EndedAt:         endedAt,
		DurationMinutes: durationMinutes,
	})
	if m.CloseTimeEntryError != nil {
		return m.CloseTimeEntryError
	}

	e, ok := m.TimeEntries[entryID]
	if !ok || !e.IsOpen() {
		return repository.ErrNotFound
	}

	ended := endedAt
	duration := durationMinutes
	e.EndedAt = &ended
	e.DurationMinutes = &duration
	return nil
}

func (m *MockRepository) GetOpenTimeEntry(ctx context.Context, taskID, userID string) (*task.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *task.TimeEntry
	for _, e := range m.TimeEntries {
		if e.TaskID != taskID || e.UserID != userID || !e.IsOpen() {
			continue
		}
		if latest == nil || e.StartedAt.After(latest.StartedAt) {
			latest = e
		}
	}

	if latest == nil {
		return nil, repository.ErrNotFound
	}

	entryCopy := *latest
	return &entryCopy, nil
}

func (m *MockRepository) ListStaleOpenEntries(ctx context.Context, startedBefore time.Time) ([]task.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := []task.TimeEntry{}
	for _, e := range m.TimeEntries {
		if e.IsOpen() && e.StartedAt.Before(startedBefore) {
			entries = append(entries, *e)
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].StartedAt.Before(entries[j].StartedAt) })
	return entries, nil
}

func (m *MockRepository) CountOpenEntries(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, e := range m.TimeEntries {
		if e.IsOpen() {
			count++
		}
	}

	return count, nil
}

func (m *MockRepository) ListTimesheet(ctx context.Context, userID string, from, to time.Time) ([]models.TimesheetRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListTimesheetError != nil {
		return nil, m.ListTimesheetError
	}

	var sheet []models.TimesheetRow
	for _, e := range m.TimeEntries {
		if e.UserID != userID || e.IsOpen() || e.StartedAt.Before(from) || !e.StartedAt.Before(to) {
			continue
		}

		row := models.TimesheetRow{
			EntryID:   e.ID,
			TaskID:    e.TaskID,
			StartedAt: e.StartedAt,
			EndedAt:   *e.EndedAt,
		}
		if e.DurationMinutes != nil {
			row.DurationMinutes = *e.DurationMinutes
		}
		if t, ok := m.Tasks[e.TaskID]; ok {
			row.TaskTitle = t.Title
		}

		sheet = append(sheet, row)
	}

	sort.Slice(sheet, func(i, j int) bool { return sheet[i].StartedAt.Before(sheet[j].StartedAt) })
	return sheet, nil
}

func (m *MockRepository) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateUserError != nil {
		return m.CreateUserError
	}

	for _, existing := range m.Users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("%w: users_email_key", repository.ErrConflict)
		}
	}

	userCopy := *u
	m.Users[u.ID] = &userCopy
	return nil
}

func (m *MockRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.Users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	userCopy := *u
	return &userCopy, nil
}

func (m *MockRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.Users {
		if u.Email == email {
			userCopy := *u
			return &userCopy, nil
		}
	}

	return nil, repository.ErrNotFound
}

func (m *MockRepository) AddFriendship(ctx context.Context, f *models.Friendship) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AddFriendshipError != nil {
		return m.AddFriendshipError
	}

	for _, existing := range m.Friendships {
		if existing.UserID == f.UserID && existing.FriendID == f.FriendID {
			return repository.ErrConflict
		}
	}

	m.Friendships = append(m.Friendships, *f)
	return nil
}

func (m *MockRepository) FriendshipExists(ctx context.Context, userID, friendID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range m.Friendships {
		if f.UserID == userID && f.FriendID == friendID {
			return true, nil
		}
	}

	return false, nil
}

func (m *MockRepository) ListFriendProgress(ctx context.Context, userID string) ([]models.FriendProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	progress := []models.FriendProgress{}
	for _, f := range m.Friendships {
		if f.UserID != userID {
			continue
		}

		u, ok := m.Users[f.FriendID]
		if !ok {
			continue
		}

		p := models.FriendProgress{FriendID: u.ID, Name: u.Name, Email: u.Email}
		for _, t := range m.Tasks {
			if t.UserID != u.ID {
				continue
			}
			p.TotalTasks++
			if t.IsCompleted {
				p.CompletedTasks++
			}
		}

		progress = append(progress, p)
	}

	sort.Slice(progress, func(i, j int) bool { return progress[i].Name < progress[j].Name })
	return progress, nil
}

func (m *MockRepository) GetAddSpentMinutesCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.AddSpentMinutesCalls)
}

func (m *MockRepository) GetInsertSubtasksCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.InsertSubtasksCalls)
}

func (m *MockRepository) GetUpdateEstimateCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.UpdateEstimateCalls)
}

func (m *MockRepository) Close() error {
	return nil
}
