// Package decompose breaks a task into ordered subtasks using a chat-completion model,
// stores them and rewrites the task's estimate to their sum.
package decompose

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nadmax/bordo/internal/ai"
	"github.com/nadmax/bordo/internal/auth"
	"github.com/nadmax/bordo/internal/changefeed"
	"github.com/nadmax/bordo/internal/metrics"
	"github.com/nadmax/bordo/internal/repository"
	"github.com/nadmax/bordo/internal/task"
)

var (
	ErrInvalidRequest = errors.New("invalid decomposition request")
	ErrTaskNotFound   = errors.New("task not found")
)

type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Store interface {
	GetTask(ctx context.Context, taskID string) (*task.Task, error)
	InsertSubtasks(ctx context.Context, subtasks []task.Subtask) ([]task.Subtask, error)
	UpdateEstimate(ctx context.Context, taskID string, minutes int) error
}

type Request struct {
	TaskTitle       string  `json:"taskTitle"`
	TaskDescription string  `json:"taskDescription,omitempty"`
	AvailableHours  float64 `json:"availableHours"`
	TaskID          string  `json:"taskId"`
}

func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.TaskTitle) == "":
		return fmt.Errorf("%w: taskTitle is required", ErrInvalidRequest)
	case r.AvailableHours <= 0:
		return fmt.Errorf("%w: availableHours must be positive", ErrInvalidRequest)
	case r.TaskID == "":
		return fmt.Errorf("%w: taskId is required", ErrInvalidRequest)
	}

	return nil
}

type SubtaskView struct {
	TaskID           string `json:"task_id"`
	Title            string `json:"title"`
	EstimatedMinutes int    `json:"estimated_minutes"`
	OrderIndex       int    `json:"order_index"`
}

type Response struct {
	Success  bool          `json:"success"`
	Subtasks []SubtaskView `json:"subtasks"`
}

func NewResponse(subtasks []task.Subtask) Response {
	views := make([]SubtaskView, 0, len(subtasks))
	for _, st := range subtasks {
		views = append(views, SubtaskView{
			TaskID:           st.TaskID,
			Title:            st.Title,
			EstimatedMinutes: st.EstimatedMinutes,
			OrderIndex:       st.OrderIndex,
		})
	}

	return Response{Success: true, Subtasks: views}
}

type Service struct {
	completer Completer
	store     Store
	feed      changefeed.Publisher
}

func NewService(completer Completer, store Store, feed changefeed.Publisher) *Service {
	if feed == nil {
		feed = changefeed.Nop{}
	}

	return &Service{completer: completer, store: store, feed: feed}
}

// BreakDown runs one decomposition. Nothing is written unless the completion parses.
func (s *Service) BreakDown(ctx context.Context, req Request) ([]task.Subtask, error) {
	start := time.Now()

	subtasks, err := s.breakDown(ctx, req)
	metrics.RecordDecomposition(outcome(err), len(subtasks), time.Since(start))

	return subtasks, err
}

func (s *Service) breakDown(ctx context.Context, req Request) ([]task.Subtask, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	t, err := s.store.GetTask(ctx, req.TaskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	if user, ok := auth.UserFromContext(ctx); ok && user.ID != t.UserID {
		return nil, ErrTaskNotFound
	}

	log.Printf("Breaking down task %s: %s", t.ID, req.TaskTitle)

	content, err := s.completer.Complete(ctx, systemPrompt, userPrompt(req))
	if err != nil {
		return nil, err
	}

	suggestions, err := ParseSubtasks(content)
	if err != nil {
		log.Printf("Failed to parse AI response for task %s: %q", t.ID, content)
		return nil, err
	}

	batch := make([]task.Subtask, 0, len(suggestions))
	for i, sg := range suggestions {
		batch = append(batch, task.NewSubtask(t.ID, strings.TrimSpace(sg.Title), sg.Minutes(), i))
	}

	inserted, err := s.store.InsertSubtasks(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to insert subtasks: %w", err)
	}

	total := task.SumEstimatedMinutes(inserted)
	if err := s.store.UpdateEstimate(ctx, t.ID, total); err != nil {
		return inserted, fmt.Errorf("failed to update task estimate: %w", err)
	}

	for _, st := range inserted {
		s.publish(ctx, changefeed.NewEvent(changefeed.TableSubtasks, changefeed.EventInsert, t.UserID, st.ID))
	}
	s.publish(ctx, changefeed.NewEvent(changefeed.TableTasks, changefeed.EventUpdate, t.UserID, t.ID))

	log.Printf("Task %s broken down into %d subtasks (%d minutes)", t.ID, len(inserted), total)
	return inserted, nil
}

// NotifyFailure tells the task owner's clients that a background decomposition failed.
// The task itself stays usable.
func (s *Service) NotifyFailure(ctx context.Context, userID, taskID string, cause error) {
	ev := changefeed.NewEvent(changefeed.TableTasks, changefeed.EventDecompositionFailed, userID, taskID)
	ev.Message = cause.Error()
	s.publish(ctx, ev)
}

func (s *Service) publish(ctx context.Context, ev changefeed.Event) {
	if err := s.feed.Publish(ctx, ev); err != nil {
		log.Printf("Failed to publish %s %s event for %s: %v", ev.Table, ev.Type, ev.RecordID, err)
	}
}

func outcome(err error) string {
	var apiErr *ai.APIError

	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrTaskNotFound):
		return "rejected"
	case errors.Is(err, ai.ErrMissingAPIKey):
		return "not_configured"
	case errors.As(err, &apiErr):
		return "api_error"
	case errors.Is(err, ErrParse):
		return "parse_error"
	default:
		return "error"
	}
}
