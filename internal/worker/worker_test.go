package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nadmax/bordo/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestWorker(t *testing.T) (*Worker, *queue.Queue, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	q, err := queue.NewQueue(mr.Addr())
	require.NoError(t, err)

	w := NewWorker("test-worker", q)

	return w, q, mr
}

func TestNewWorker(t *testing.T) {
	w, q, mr := setupTestWorker(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()

	assert.NotNil(t, w)
	assert.Equal(t, "test-worker", w.id)
	assert.NotNil(t, w.handlers)
	assert.Equal(t, defaultPollInterval, w.pollInterval)
}

func TestSetPollInterval_IgnoresNonPositive(t *testing.T) {
	w, q, mr := setupTestWorker(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()

	w.SetPollInterval(0)
	assert.Equal(t, defaultPollInterval, w.pollInterval)

	w.SetPollInterval(5 * time.Millisecond)
	assert.Equal(t, 5*time.Millisecond, w.pollInterval)
}

func TestRegisterHandler(t *testing.T) {
	w, q, mr := setupTestWorker(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()

	w.RegisterHandler(queue.JobBreakDownTask, func(ctx context.Context, job *queue.Job) error {
		return nil
	})

	assert.Contains(t, w.handlers, queue.JobBreakDownTask)
}

func TestProcessJob_Success(t *testing.T) {
	w, q, mr := setupTestWorker(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()

	ctx := context.Background()
	executed := false
	w.RegisterHandler(queue.JobBreakDownTask, func(ctx context.Context, job *queue.Job) error {
		executed = true
		return nil
	})

	job := queue.NewJob(queue.JobBreakDownTask, nil)
	require.NoError(t, q.Enqueue(ctx, job))

	w.processJob(ctx, job)

	assert.True(t, executed)

	updated, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, updated.Status)
	assert.NotNil(t, updated.StartedAt)
	assert.NotNil(t, updated.CompletedAt)
}

func TestProcessJob_FailureIsNotRetried(t *testing.T) {
	w, q, mr := setupTestWorker(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()

	ctx := context.Background()
	calls := 0
	w.RegisterHandler(queue.JobBreakDownTask, func(ctx context.Context, job *queue.Job) error {
		calls++
		return errors.New("AI API error: 429")
	})

	job := queue.NewJob(queue.JobBreakDownTask, nil)
	require.NoError(t, q.Enqueue(ctx, job))

	claimed, err := q.Dequeue(ctx)
	require.NoError(t, err)
	w.processJob(ctx, claimed)

	updated, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, updated.Status)
	assert.Equal(t, "AI API error: 429", updated.Error)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
	assert.Equal(t, 1, calls)
}

func TestProcessJob_NoHandler(t *testing.T) {
	w, q, mr := setupTestWorker(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()

	ctx := context.Background()
	job := queue.NewJob("unknown_job", nil)
	require.NoError(t, q.Enqueue(ctx, job))

	w.processJob(ctx, job)

	updated, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, updated.Status)
	assert.Contains(t, updated.Error, "no handler")
}

func TestWorkerStartStop(t *testing.T) {
	w, q, mr := setupTestWorker(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()

	w.SetPollInterval(10 * time.Millisecond)

	processed := make(chan string, 1)
	w.RegisterHandler(queue.JobBreakDownTask, func(ctx context.Context, job *queue.Job) error {
		processed <- job.ID
		return nil
	})

	go w.Start()

	job := queue.NewJob(queue.JobBreakDownTask, nil)
	require.NoError(t, q.Enqueue(context.Background(), job))

	select {
	case id := <-processed:
		assert.Equal(t, job.ID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("Job was not processed")
	}

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Worker did not stop")
	}
}

func TestWorkerStop_CancelsHandlerContext(t *testing.T) {
	w, q, mr := setupTestWorker(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()

	w.SetPollInterval(10 * time.Millisecond)

	started := make(chan struct{})
	w.RegisterHandler(queue.JobBreakDownTask, func(ctx context.Context, job *queue.Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	go w.Start()

	job := queue.NewJob(queue.JobBreakDownTask, nil)
	require.NoError(t, q.Enqueue(context.Background(), job))

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("Job was not started")
	}

	w.Stop()

	updated, err := q.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, updated.Status)
	assert.Contains(t, updated.Error, "context canceled")
}

func TestWorkerProcessMultipleJobs(t *testing.T) {
	w, q, mr := setupTestWorker(t)
	defer mr.Close()
	defer func() { _ = q.Close() }()

	ctx := context.Background()
	count := 0
	w.RegisterHandler(queue.JobSendEmail, func(ctx context.Context, job *queue.Job) error {
		count++
		return nil
	})

	for range 5 {
		_ = q.Enqueue(ctx, queue.NewJob(queue.JobSendEmail, nil))
	}

	for range 5 {
		job, _ := q.Dequeue(ctx)
		if job != nil {
			w.processJob(ctx, job)
		}
	}

	assert.Equal(t, 5, count)
}
