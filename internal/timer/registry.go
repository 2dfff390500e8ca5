package timer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nadmax/bordo/internal/changefeed"
	"github.com/nadmax/bordo/internal/metrics"
	"github.com/nadmax/bordo/internal/repository"
	"github.com/nadmax/bordo/internal/task"
)

const (
	DefaultTickInterval = time.Second
	DefaultOrphanAfter  = 12 * time.Hour
)

type Options struct {
	Clock        Clock
	TickInterval time.Duration
	OrphanAfter  time.Duration
	OnTick       func(Tick)
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = realClock{}
	}
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.OrphanAfter <= 0 {
		o.OrphanAfter = DefaultOrphanAfter
	}

	return o
}

type engineKey struct {
	userID string
	taskID string
}

// engineSlot holds an engine once its recovery has finished. ready is closed at that
// point; err is set if recovery failed.
type engineSlot struct {
	ready  chan struct{}
	engine *Engine
	err    error
}

func (s *engineSlot) loaded() (*Engine, bool) {
	select {
	case <-s.ready:
		return s.engine, s.err == nil
	default:
		return nil, false
	}
}

// Registry hands out one Engine per (user, task) so that concurrent requests in this
// process share a single running session. The registry lock only guards the map; store
// calls happen outside it.
type Registry struct {
	store Store
	feed  changefeed.Publisher
	opts  Options

	mu      sync.Mutex
	engines map[engineKey]*engineSlot
	closed  bool
}

func NewRegistry(store Store, feed changefeed.Publisher, opts Options) *Registry {
	return &Registry{
		store:   store,
		feed:    feed,
		opts:    opts.withDefaults(),
		engines: make(map[engineKey]*engineSlot),
	}
}

// Engine returns the engine for the pair, creating it and resuming any open entry the
// first time it is asked for. Callers for the same pair wait for that recovery; other
// pairs do not. A closed engine is replaced.
func (r *Registry) Engine(ctx context.Context, userID, taskID string) (*Engine, error) {
	key := engineKey{userID: userID, taskID: taskID}

	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrClosed
		}

		slot, ok := r.engines[key]
		if !ok {
			slot = &engineSlot{ready: make(chan struct{})}
			r.engines[key] = slot
			r.mu.Unlock()

			return r.load(ctx, key, slot)
		}
		r.mu.Unlock()

		select {
		case <-slot.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if slot.err != nil {
			return nil, slot.err
		}
		if !slot.engine.isClosed() {
			return slot.engine, nil
		}

		r.drop(key, slot)
	}
}

func (r *Registry) load(ctx context.Context, key engineKey, slot *engineSlot) (*Engine, error) {
	e := NewEngine(key.userID, key.taskID, r.store, r.feed, r.opts)
	err := e.Recover(ctx, r.opts.OrphanAfter)

	r.mu.Lock()
	if err == nil && r.closed {
		err = ErrClosed
	}
	if err != nil {
		if r.engines[key] == slot {
			delete(r.engines, key)
		}
		e.Close()
	}
	r.mu.Unlock()

	slot.engine, slot.err = e, err
	close(slot.ready)

	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *Registry) drop(key engineKey, slot *engineSlot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.engines[key] == slot {
		delete(r.engines, key)
	}
}

// Release closes and drops the engine for the pair if it is idle.
func (r *Registry) Release(userID, taskID string) {
	key := engineKey{userID: userID, taskID: taskID}

	r.mu.Lock()
	slot, ok := r.engines[key]
	r.mu.Unlock()
	if !ok {
		return
	}

	e, ok := slot.loaded()
	if !ok || !e.closeIfIdle() {
		return
	}

	r.drop(key, slot)
}

func (r *Registry) Running() int {
	count := 0
	for _, e := range r.snapshot() {
		if e.State() == Running {
			count++
		}
	}

	return count
}

func (r *Registry) snapshot() []*Engine {
	r.mu.Lock()
	defer r.mu.Unlock()

	engines := make([]*Engine, 0, len(r.engines))
	for _, slot := range r.engines {
		if e, ok := slot.loaded(); ok {
			engines = append(engines, e)
		}
	}

	return engines
}

func (r *Registry) Close() {
	engines := r.snapshot()

	r.mu.Lock()
	r.closed = true
	clear(r.engines)
	r.mu.Unlock()

	for _, e := range engines {
		e.Close()
	}
}

type SweepStore interface {
	ListStaleOpenEntries(ctx context.Context, startedBefore time.Time) ([]task.TimeEntry, error)
	CloseTimeEntry(ctx context.Context, entryID string, endedAt time.Time, durationMinutes int) error
}

// Sweeper closes time entries that have been open longer than the orphan threshold,
// without crediting any time.
type Sweeper struct {
	store       SweepStore
	feed        changefeed.Publisher
	clock       Clock
	orphanAfter time.Duration
}

func NewSweeper(store SweepStore, feed changefeed.Publisher, opts Options) *Sweeper {
	opts = opts.withDefaults()
	if feed == nil {
		feed = changefeed.Nop{}
	}

	return &Sweeper{store: store, feed: feed, clock: opts.Clock, orphanAfter: opts.OrphanAfter}
}

func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.clock.Now()

	entries, err := s.store.ListStaleOpenEntries(ctx, now.Add(-s.orphanAfter))
	if err != nil {
		return 0, fmt.Errorf("failed to list stale time entries: %w", err)
	}

	closed := 0
	for _, entry := range entries {
		if err := s.store.CloseTimeEntry(ctx, entry.ID, now, 0); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			log.Printf("Failed to close abandoned time entry %s: %v", entry.ID, err)
			continue
		}

		closed++
		ev := changefeed.NewEvent(changefeed.TableTimeEntries, changefeed.EventUpdate, entry.UserID, entry.ID)
		if err := s.feed.Publish(ctx, ev); err != nil {
			log.Printf("Failed to publish sweep of entry %s: %v", entry.ID, err)
		}
	}

	if closed > 0 {
		metrics.RecordOrphansClosed(closed)
		log.Printf("Closed %d abandoned time entries", closed)
	}

	return closed, nil
}
