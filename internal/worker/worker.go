// Package worker provides the background job processor that consumes jobs from the queue
// and runs the handler registered for each job type.
package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nadmax/bordo/internal/metrics"
	"github.com/nadmax/bordo/internal/queue"
)

const defaultPollInterval = time.Second

type JobHandler func(ctx context.Context, job *queue.Job) error

type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	UpdateJob(ctx context.Context, job *queue.Job) error
}

type Worker struct {
	id           string
	queue        JobQueue
	handlers     map[string]JobHandler
	stop         chan struct{}
	done         chan struct{}
	pollInterval time.Duration
}

func NewWorker(id string, q JobQueue) *Worker {
	return &Worker{
		id:           id,
		queue:        q,
		handlers:     make(map[string]JobHandler),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		pollInterval: defaultPollInterval,
	}
}

func (w *Worker) RegisterHandler(jobType string, handler JobHandler) {
	w.handlers[jobType] = handler
}

func (w *Worker) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.pollInterval = d
	}
}

// Start polls until Stop is called. The context handed to handlers is cancelled on Stop.
func (w *Worker) Start() {
	defer close(w.done)
	log.Printf("Worker %s started", w.id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-w.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-w.stop:
			log.Printf("Worker %s stopped", w.id)
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			log.Printf("Worker %s failed to dequeue: %v", w.id, err)
		}
		if err != nil || job == nil {
			select {
			case <-w.stop:
				log.Printf("Worker %s stopped", w.id)
				return
			case <-time.After(w.pollInterval):
			}
			continue
		}

		w.processJob(ctx, job)
	}
}

// processJob runs a job once. Failed jobs are kept with their error and never retried.
func (w *Worker) processJob(ctx context.Context, job *queue.Job) {
	log.Printf("Worker %s processing job %s (type: %s)", w.id, job.ID, job.Type)

	now := time.Now()
	job.Status = queue.StatusRunning
	job.StartedAt = &now
	if err := w.queue.UpdateJob(ctx, job); err != nil {
		log.Printf("Failed to update job status to running: %v", err)
	}

	handler, exists := w.handlers[job.Type]
	if !exists {
		w.finish(ctx, job, fmt.Errorf("no handler for job type: %s", job.Type))
		return
	}

	w.finish(ctx, job, handler(ctx, job))
}

func (w *Worker) finish(ctx context.Context, job *queue.Job, err error) {
	completedAt := time.Now()
	job.CompletedAt = &completedAt

	if err != nil {
		job.Status = queue.StatusFailed
		job.Error = err.Error()
		log.Printf("Job %s failed: %v", job.ID, err)
	} else {
		job.Status = queue.StatusCompleted
		log.Printf("Job %s completed successfully", job.ID)
	}

	metrics.RecordJobProcessed(job.Type, string(job.Status))

	if updateErr := w.queue.UpdateJob(context.WithoutCancel(ctx), job); updateErr != nil {
		log.Printf("Failed to update %s job: %v", job.Status, updateErr)
	}
}

// Stop signals the poll loop and waits for the job in progress to finish.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}
