package decompose

import (
	"context"
	"errors"
	"testing"

	"github.com/nadmax/bordo/internal/ai"
	"github.com/nadmax/bordo/internal/auth"
	"github.com/nadmax/bordo/internal/changefeed"
	"github.com/nadmax/bordo/internal/repository/mocks"
	"github.com/nadmax/bordo/internal/repository/models"
	"github.com/nadmax/bordo/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	content string
	err     error
	calls   int
	system  string
	user    string
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	f.calls++
	f.system = system
	f.user = user
	return f.content, f.err
}

func setupService(t *testing.T, completer Completer) (*Service, *mocks.MockRepository, *changefeed.Local, *task.Task) {
	repo := mocks.NewMockRepository()
	feed := changefeed.NewLocal()

	tsk := task.NewTask("user-1", "Estudar para a prova", nil, 300)
	repo.AddTask(tsk)

	return NewService(completer, repo, feed), repo, feed, tsk
}

func TestBreakDown(t *testing.T) {
	completer := &fakeCompleter{
		content: "```json\n[" +
			`{"title":"Revisar anotações","estimated_minutes":60},` +
			`{"title":"Resolver exercícios","estimated_minutes":90},` +
			`{"title":"Simulado","estimated_minutes":30}` +
			"]\n```",
	}
	svc, repo, feed, tsk := setupService(t, completer)

	subtasks, err := svc.BreakDown(context.Background(), Request{
		TaskTitle:      tsk.Title,
		AvailableHours: 3,
		TaskID:         tsk.ID,
	})
	require.NoError(t, err)
	require.Len(t, subtasks, 3)

	for i, st := range subtasks {
		assert.Equal(t, i, st.OrderIndex)
		assert.Equal(t, tsk.ID, st.TaskID)
		assert.False(t, st.IsCompleted)
	}
	assert.Equal(t, "Revisar anotações", subtasks[0].Title)

	stored, ok := repo.TaskSnapshot(tsk.ID)
	require.True(t, ok)
	assert.Equal(t, 180, stored.TotalEstimatedMinutes)
	assert.Equal(t, task.SumEstimatedMinutes(repo.SubtasksFor(tsk.ID)), stored.TotalEstimatedMinutes)

	assert.Equal(t, 1, completer.calls)
	assert.Equal(t, systemPrompt, completer.system)
	assert.Contains(t, completer.user, "3 horas (180 minutos)")

	events := feed.Published()
	require.Len(t, events, 4)
	assert.Equal(t, changefeed.TableTasks, events[3].Table)
	assert.Equal(t, changefeed.EventUpdate, events[3].Type)
	assert.Equal(t, "user-1", events[3].UserID)
}

func TestBreakDown_OverwritesUserEstimate(t *testing.T) {
	completer := &fakeCompleter{content: `[{"title":"A","estimated_minutes":100}]`}
	svc, repo, _, tsk := setupService(t, completer)

	_, err := svc.BreakDown(context.Background(), Request{TaskTitle: "x", AvailableHours: 5, TaskID: tsk.ID})
	require.NoError(t, err)

	stored, _ := repo.TaskSnapshot(tsk.ID)
	assert.Equal(t, 100, stored.TotalEstimatedMinutes)
}

func TestBreakDown_ParseFailureWritesNothing(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"prose", "Desculpe, não entendi a tarefa."},
		{"null", "null"},
		{"empty array", "[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, feed, tsk := setupService(t, &fakeCompleter{content: tt.content})

			subtasks, err := svc.BreakDown(context.Background(), Request{TaskTitle: "x", AvailableHours: 1, TaskID: tsk.ID})
			assert.ErrorIs(t, err, ErrParse)
			assert.Nil(t, subtasks)

			assert.Equal(t, 0, repo.GetInsertSubtasksCallCount())
			assert.Equal(t, 0, repo.GetUpdateEstimateCallCount())
			assert.Empty(t, feed.Published())

			stored, _ := repo.TaskSnapshot(tsk.ID)
			assert.Equal(t, 300, stored.TotalEstimatedMinutes)
		})
	}
}

func TestBreakDown_CompletionErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"missing api key", ai.ErrMissingAPIKey},
		{"upstream error", &ai.APIError{Status: 429}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _, tsk := setupService(t, &fakeCompleter{err: tt.err})

			_, err := svc.BreakDown(context.Background(), Request{TaskTitle: "x", AvailableHours: 1, TaskID: tsk.ID})
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 0, repo.GetInsertSubtasksCallCount())
		})
	}
}

func TestBreakDown_InsertFailureSkipsEstimate(t *testing.T) {
	completer := &fakeCompleter{content: `[{"title":"A","estimated_minutes":60}]`}
	svc, repo, _, tsk := setupService(t, completer)
	repo.InsertSubtasksError = errors.New("duplicate key value")

	_, err := svc.BreakDown(context.Background(), Request{TaskTitle: "x", AvailableHours: 1, TaskID: tsk.ID})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate key value")
	assert.Equal(t, 0, repo.GetUpdateEstimateCallCount())
}

func TestBreakDown_Validation(t *testing.T) {
	svc, _, _, tsk := setupService(t, &fakeCompleter{})

	tests := []struct {
		name string
		req  Request
	}{
		{"empty title", Request{TaskTitle: " ", AvailableHours: 1, TaskID: tsk.ID}},
		{"zero hours", Request{TaskTitle: "x", AvailableHours: 0, TaskID: tsk.ID}},
		{"negative hours", Request{TaskTitle: "x", AvailableHours: -2, TaskID: tsk.ID}},
		{"missing task id", Request{TaskTitle: "x", AvailableHours: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.BreakDown(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestBreakDown_UnknownTask(t *testing.T) {
	completer := &fakeCompleter{content: "[]"}
	svc, _, _, _ := setupService(t, completer)

	_, err := svc.BreakDown(context.Background(), Request{TaskTitle: "x", AvailableHours: 1, TaskID: "missing"})
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.Equal(t, 0, completer.calls)
}

func TestBreakDown_RejectsOtherUsersTask(t *testing.T) {
	completer := &fakeCompleter{content: "[]"}
	svc, _, _, tsk := setupService(t, completer)

	ctx := auth.WithUser(context.Background(), &models.User{ID: "user-2"})
	_, err := svc.BreakDown(ctx, Request{TaskTitle: "x", AvailableHours: 1, TaskID: tsk.ID})
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.Equal(t, 0, completer.calls)
}

func TestNotifyFailure(t *testing.T) {
	svc, _, feed, tsk := setupService(t, &fakeCompleter{})

	svc.NotifyFailure(context.Background(), "user-1", tsk.ID, ErrParse)

	events := feed.Published()
	require.Len(t, events, 1)
	assert.Equal(t, changefeed.EventDecompositionFailed, events[0].Type)
	assert.Equal(t, "failed to parse AI response", events[0].Message)
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]task.Subtask{
		task.NewSubtask("task-1", "A", 30, 0),
		task.NewSubtask("task-1", "B", 45, 1),
	})

	assert.True(t, resp.Success)
	require.Len(t, resp.Subtasks, 2)
	assert.Equal(t, SubtaskView{TaskID: "task-1", Title: "B", EstimatedMinutes: 45, OrderIndex: 1}, resp.Subtasks[1])
}
