package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nadmax/bordo/internal/changefeed"
	"github.com/nadmax/bordo/internal/repository/mocks"
	"github.com/nadmax/bordo/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taskWith(userID string, estimated, spent int) *task.Task {
	t := task.NewTask(userID, "t", nil, estimated)
	t.TotalSpentMinutes = spent
	return t
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name  string
		tasks []task.Task
		want  Stats
	}{
		{
			name:  "no tasks",
			tasks: nil,
			want:  Stats{},
		},
		{
			name:  "two tasks",
			tasks: []task.Task{*taskWith("u", 300, 120), *taskWith("u", 60, 60)},
			want:  Stats{TotalTasks: 2, HoursRemaining: 3.0, HoursUsed: 3.0},
		},
		{
			name:  "rounds to one decimal",
			tasks: []task.Task{*taskWith("u", 100, 25)},
			want:  Stats{TotalTasks: 1, HoursRemaining: 1.3, HoursUsed: 0.4},
		},
		{
			name:  "halves round up",
			tasks: []task.Task{*taskWith("u", 63, 3)},
			want:  Stats{TotalTasks: 1, HoursRemaining: 1.0, HoursUsed: 0.1},
		},
		{
			name:  "overrun goes negative",
			tasks: []task.Task{*taskWith("u", 60, 90)},
			want:  Stats{TotalTasks: 1, HoursRemaining: -0.5, HoursUsed: 1.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compute(tt.tasks))
		})
	}
}

func TestCompute_CountsCompleted(t *testing.T) {
	done := taskWith("u", 60, 60)
	done.IsCompleted = true

	got := Compute([]task.Task{*done, *taskWith("u", 30, 0)})
	assert.Equal(t, 2, got.TotalTasks)
	assert.Equal(t, 1, got.CompletedTasks)
}

func TestRound1(t *testing.T) {
	assert.Equal(t, 0.1, round1(0.05))
	assert.Equal(t, 2.5, round1(2.45))
	assert.Equal(t, -0.5, round1(-0.5))
	assert.Equal(t, 0.0, round1(0.04))
}

func TestSnapshot(t *testing.T) {
	repo := mocks.NewMockRepository()
	repo.AddTask(taskWith("user-1", 300, 120))
	repo.AddTask(taskWith("user-1", 60, 60))
	repo.AddTask(taskWith("user-2", 600, 0))

	agg := NewAggregator(repo, changefeed.NewLocal())

	got, err := agg.Snapshot(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalTasks: 2, HoursRemaining: 3.0, HoursUsed: 3.0}, got)
}

func TestSnapshot_Error(t *testing.T) {
	repo := mocks.NewMockRepository()
	repo.ListTasksError = errors.New("connection refused")

	_, err := NewAggregator(repo, changefeed.NewLocal()).Snapshot(context.Background(), "user-1")
	assert.Error(t, err)
}

func TestWatch_RecomputesOnChange(t *testing.T) {
	repo := mocks.NewMockRepository()
	feed := changefeed.NewLocal()
	agg := NewAggregator(repo, feed)

	first := taskWith("user-1", 120, 0)
	repo.AddTask(first)

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan Stats, 8)
	done := make(chan error, 1)

	go func() {
		done <- agg.Watch(ctx, "user-1", func(s Stats) { updates <- s })
	}()

	initial := <-updates
	assert.Equal(t, 1, initial.TotalTasks)

	second := taskWith("user-1", 60, 0)
	repo.AddTask(second)
	require.NoError(t, feed.Publish(ctx, changefeed.NewEvent(changefeed.TableTasks, changefeed.EventInsert, "user-1", second.ID)))

	select {
	case s := <-updates:
		assert.Equal(t, 2, s.TotalTasks)
		assert.Equal(t, 3.0, s.HoursRemaining)
	case <-time.After(2 * time.Second):
		t.Fatal("no recompute after insert")
	}

	require.NoError(t, feed.Publish(ctx, changefeed.NewEvent(changefeed.TableTasks, changefeed.EventDecompositionFailed, "user-1", second.ID)))
	require.NoError(t, feed.Publish(ctx, changefeed.NewEvent(changefeed.TableTasks, changefeed.EventInsert, "user-2", "other")))

	select {
	case s := <-updates:
		t.Fatalf("unexpected recompute: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return after cancel")
	}

	assert.Eventually(t, func() bool {
		return feed.SubscriberCount(changefeed.Filter{Table: changefeed.TableTasks, UserID: "user-1"}) == 0
	}, time.Second, 10*time.Millisecond)
}
