package changefeed

import (
	"context"
	"log"
	"sync"
)

// HistorySize is how many recent events a Local feed keeps for Published.
const HistorySize = 256

// Local is an in-process feed for a single server process (`change_feed = "local"`).
// Events published by other processes, such as the worker, never reach it.
type Local struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	events []Event
}

func NewLocal() *Local {
	return &Local{subs: make(map[string]map[*Subscription]struct{})}
}

func (l *Local) Publish(ctx context.Context, ev Event) error {
	filter := Filter{Table: ev.Table, UserID: ev.UserID}
	if err := filter.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.events) == HistorySize {
		copy(l.events, l.events[1:])
		l.events = l.events[:HistorySize-1]
	}
	l.events = append(l.events, ev)
	for sub := range l.subs[filter.Channel()] {
		select {
		case sub.events <- ev:
		default:
			log.Printf("Subscriber on %s is full, dropping %s event", filter.Channel(), ev.Type)
		}
	}

	return nil
}

func (l *Local) Subscribe(ctx context.Context, filter Filter) (*Subscription, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	channel := filter.Channel()

	var sub *Subscription
	sub = newSubscription(func() {
		l.mu.Lock()
		delete(l.subs[channel], sub)
		if len(l.subs[channel]) == 0 {
			delete(l.subs, channel)
		}
		close(sub.events)
		l.mu.Unlock()
	})

	l.mu.Lock()
	if l.subs[channel] == nil {
		l.subs[channel] = make(map[*Subscription]struct{})
	}
	l.subs[channel][sub] = struct{}{}
	l.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Published returns a copy of the most recent events, oldest first.
func (l *Local) Published() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

func (l *Local) SubscriberCount(filter Filter) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.subs[filter.Channel()])
}
