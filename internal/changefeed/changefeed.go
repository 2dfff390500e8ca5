// Package changefeed carries row-change notifications for a user's tasks, subtasks and
// time entries to anything that wants to react to them: the statistics aggregator, the
// realtime endpoint and the worker.
package changefeed

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type EventType string

const (
	EventInsert              EventType = "INSERT"
	EventUpdate              EventType = "UPDATE"
	EventDelete              EventType = "DELETE"
	EventDecompositionFailed EventType = "DECOMPOSITION_FAILED"
)

const (
	TableTasks       = "tasks"
	TableSubtasks    = "subtasks"
	TableTimeEntries = "time_entries"
)

// subscriptionBuffer bounds how far a slow consumer may fall behind before events are
// dropped for it.
const subscriptionBuffer = 64

type Event struct {
	Table    string    `json:"table"`
	Type     EventType `json:"type"`
	UserID   string    `json:"user_id"`
	RecordID string    `json:"record_id"`
	Message  string    `json:"message,omitempty"`
	At       time.Time `json:"at"`
}

// Filter selects the events of one table owned by one user.
type Filter struct {
	Table  string
	UserID string
}

func (f Filter) Channel() string {
	return fmt.Sprintf("changes:%s:%s", f.Table, f.UserID)
}

func (f Filter) Validate() error {
	if f.Table == "" || f.UserID == "" {
		return fmt.Errorf("changefeed: filter needs table and user, got %q/%q", f.Table, f.UserID)
	}

	return nil
}

func NewEvent(table string, eventType EventType, userID, recordID string) Event {
	return Event{
		Table:    table,
		Type:     eventType,
		UserID:   userID,
		RecordID: recordID,
		At:       time.Now(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, filter Filter) (*Subscription, error)
}

type Feed interface {
	Publisher
	Subscriber
}

type Subscription struct {
	events  chan Event
	done    chan struct{}
	once    sync.Once
	release func()
}

func newSubscription(release func()) *Subscription {
	return &Subscription{
		events:  make(chan Event, subscriptionBuffer),
		done:    make(chan struct{}),
		release: release,
	}
}

// C yields events until the subscription is closed, after which it is closed too.
func (s *Subscription) C() <-chan Event {
	return s.events
}

func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		if s.release != nil {
			s.release()
		}
	})

	return nil
}

// Nop discards every event. Used where no feed is configured.
type Nop struct{}

func (Nop) Publish(ctx context.Context, ev Event) error {
	return nil
}
