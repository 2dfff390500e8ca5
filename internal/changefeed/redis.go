package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// RedisFeed fans events out over Redis pub/sub, one channel per table and owner.
type RedisFeed struct {
	client *redis.Client
}

func NewRedisFeed(client *redis.Client) *RedisFeed {
	return &RedisFeed{client: client}
}

func (f *RedisFeed) Publish(ctx context.Context, ev Event) error {
	filter := Filter{Table: ev.Table, UserID: ev.UserID}
	if err := filter.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := f.client.Publish(ctx, filter.Channel(), data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", filter.Channel(), err)
	}

	return nil
}

func (f *RedisFeed) Subscribe(ctx context.Context, filter Filter) (*Subscription, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	ps := f.client.Subscribe(ctx, filter.Channel())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", filter.Channel(), err)
	}

	sub := newSubscription(func() {
		if err := ps.Close(); err != nil {
			log.Printf("failed to close subscription %s: %v", filter.Channel(), err)
		}
	})

	go func() {
		defer close(sub.events)

		messages := ps.Channel()
		for {
			select {
			case <-sub.done:
				return
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}

				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Printf("Dropping malformed event on %s: %v", msg.Channel, err)
					continue
				}

				select {
				case sub.events <- ev:
				case <-sub.done:
					return
				}
			}
		}
	}()

	return sub, nil
}
