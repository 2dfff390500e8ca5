package friends

import (
	"context"
	"errors"
	"testing"

	"github.com/nadmax/bordo/internal/auth"
	"github.com/nadmax/bordo/internal/repository/mocks"
	"github.com/nadmax/bordo/internal/repository/models"
	"github.com/nadmax/bordo/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	calls []string
	err   error
}

func (n *recordingNotifier) FriendAdded(ctx context.Context, follower, followed *models.User) error {
	n.calls = append(n.calls, follower.ID+"->"+followed.ID)
	return n.err
}

func setupService(t *testing.T) (*Service, *mocks.MockRepository, *recordingNotifier, context.Context) {
	repo := mocks.NewMockRepository()
	repo.AddUser(&models.User{ID: "user-1", Name: "Ana", Email: "ana@example.com"})
	repo.AddUser(&models.User{ID: "user-2", Name: "Bia", Email: "bia@example.com"})
	repo.AddUser(&models.User{ID: "user-3", Name: "Caio", Email: "caio@example.com"})

	notifier := &recordingNotifier{}
	ctx := auth.WithUser(context.Background(), &models.User{ID: "user-1", Name: "Ana", Email: "ana@example.com"})

	return NewService(repo, notifier), repo, notifier, ctx
}

func TestAdd(t *testing.T) {
	svc, repo, notifier, ctx := setupService(t)

	friend, err := svc.Add(ctx, " BIA@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "user-2", friend.ID)

	require.Len(t, repo.Friendships, 1)
	assert.Equal(t, "user-1", repo.Friendships[0].UserID)
	assert.Equal(t, "user-2", repo.Friendships[0].FriendID)
	assert.Equal(t, []string{"user-1->user-2"}, notifier.calls)
}

func TestAdd_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr error
	}{
		{"unknown email", "nobody@example.com", ErrUserNotFound},
		{"self", "ana@example.com", ErrSelf},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, notifier, ctx := setupService(t)

			_, err := svc.Add(ctx, tt.email)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, repo.Friendships)
			assert.Empty(t, notifier.calls)
		})
	}
}

func TestAdd_Duplicate(t *testing.T) {
	svc, repo, _, ctx := setupService(t)

	_, err := svc.Add(ctx, "bia@example.com")
	require.NoError(t, err)

	_, err = svc.Add(ctx, "bia@example.com")
	assert.ErrorIs(t, err, ErrAlreadyFriends)
	assert.Len(t, repo.Friendships, 1)
}

func TestAdd_NotificationFailureIsNotFatal(t *testing.T) {
	svc, repo, notifier, ctx := setupService(t)
	notifier.err = errors.New("queue unavailable")

	_, err := svc.Add(ctx, "bia@example.com")
	require.NoError(t, err)
	assert.Len(t, repo.Friendships, 1)
}

func TestAdd_RequiresUser(t *testing.T) {
	svc, _, _, _ := setupService(t)

	_, err := svc.Add(context.Background(), "bia@example.com")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestList(t *testing.T) {
	svc, repo, _, ctx := setupService(t)

	for i := 0; i < 3; i++ {
		tsk := task.NewTask("user-2", "t", nil, 60)
		tsk.IsCompleted = i < 2
		repo.AddTask(tsk)
	}

	_, err := svc.Add(ctx, "bia@example.com")
	require.NoError(t, err)
	_, err = svc.Add(ctx, "caio@example.com")
	require.NoError(t, err)

	friends, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, friends, 2)

	assert.Equal(t, "Bia", friends[0].Name)
	assert.Equal(t, 3, friends[0].TotalTasks)
	assert.Equal(t, 2, friends[0].CompletedTasks)
	assert.Equal(t, 67, friends[0].CompletionPercentage)

	assert.Equal(t, "Caio", friends[1].Name)
	assert.Equal(t, 0, friends[1].CompletionPercentage)
}

func TestCompletionPercentage(t *testing.T) {
	assert.Equal(t, 0, completionPercentage(0, 0))
	assert.Equal(t, 50, completionPercentage(1, 2))
	assert.Equal(t, 33, completionPercentage(1, 3))
	assert.Equal(t, 100, completionPercentage(4, 4))
}
