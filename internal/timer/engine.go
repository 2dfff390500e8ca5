// Package timer tracks work sessions on a task. An Engine is the start/stop state machine
// for one (user, task) pair; the Registry owns the engines of a server process and the
// Sweeper closes sessions abandoned by processes that went away.
package timer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nadmax/bordo/internal/auth"
	"github.com/nadmax/bordo/internal/changefeed"
	"github.com/nadmax/bordo/internal/metrics"
	"github.com/nadmax/bordo/internal/repository"
	"github.com/nadmax/bordo/internal/task"
)

var (
	ErrNoIdentity     = errors.New("no authenticated user for this timer")
	ErrAlreadyRunning = errors.New("timer already running")
	ErrClosed         = errors.New("timer closed")
)

type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}

	return "idle"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "running":
		*s = Running
	case "idle":
		*s = Idle
	default:
		return fmt.Errorf("unknown timer state %q", text)
	}

	return nil
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Store interface {
	CreateTimeEntry(ctx context.Context, e *task.TimeEntry) error
	CloseTimeEntry(ctx context.Context, entryID string, endedAt time.Time, durationMinutes int) error
	GetOpenTimeEntry(ctx context.Context, taskID, userID string) (*task.TimeEntry, error)
	AddSpentMinutes(ctx context.Context, taskID string, minutes int) error
	MarkCompleted(ctx context.Context, taskID string, at time.Time) (*task.Task, error)
}

type Tick struct {
	TaskID         string `json:"task_id"`
	UserID         string `json:"user_id"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
}

type StopResult struct {
	EntryID         string `json:"entry_id,omitempty"`
	ElapsedSeconds  int64  `json:"elapsed_seconds"`
	DurationMinutes int    `json:"duration_minutes"`
}

type Status struct {
	TaskID         string     `json:"task_id"`
	State          State      `json:"state"`
	EntryID        string     `json:"entry_id,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	ElapsedSeconds int64      `json:"elapsed_seconds"`
}

// PartialStopError means the time entry was closed but the task's spent minutes were not
// incremented.
type PartialStopError struct {
	EntryID         string
	DurationMinutes int
	Err             error
}

func (e *PartialStopError) Error() string {
	return fmt.Sprintf("time entry %s closed but %d minutes were not credited: %v", e.EntryID, e.DurationMinutes, e.Err)
}

func (e *PartialStopError) Unwrap() error {
	return e.Err
}

type Engine struct {
	taskID string
	userID string

	store        Store
	feed         changefeed.Publisher
	clock        Clock
	tickInterval time.Duration
	onTick       func(Tick)

	mu       sync.Mutex
	state    State
	entry    *task.TimeEntry
	stopTick chan struct{}
	closed   bool
}

func NewEngine(userID, taskID string, store Store, feed changefeed.Publisher, opts Options) *Engine {
	opts = opts.withDefaults()
	if feed == nil {
		feed = changefeed.Nop{}
	}

	return &Engine{
		taskID:       taskID,
		userID:       userID,
		store:        store,
		feed:         feed,
		clock:        opts.Clock,
		tickInterval: opts.TickInterval,
		onTick:       opts.OnTick,
	}
}

// Start opens a time entry and starts ticking. The caller must be the engine's user.
func (e *Engine) Start(ctx context.Context) (Status, error) {
	user, ok := auth.UserFromContext(ctx)
	if !ok || user.ID != e.userID {
		return Status{}, ErrNoIdentity
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Status{}, ErrClosed
	}
	if e.state == Running {
		return Status{}, ErrAlreadyRunning
	}

	entry := task.NewTimeEntry(e.taskID, e.userID, e.clock.Now())
	if err := e.store.CreateTimeEntry(ctx, entry); err != nil {
		return Status{}, fmt.Errorf("failed to open time entry: %w", err)
	}

	e.runLocked(entry)
	metrics.RecordTimerStarted()
	e.publish(ctx, changefeed.NewEvent(changefeed.TableTimeEntries, changefeed.EventInsert, e.userID, entry.ID))

	log.Printf("Timer started for task %s (entry %s)", e.taskID, entry.ID)
	return e.statusLocked(), nil
}

// Stop closes the open entry and credits its rounded duration to the task. Stopping an
// idle engine does nothing.
func (e *Engine) Stop(ctx context.Context) (StopResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return StopResult{}, ErrClosed
	}

	return e.stopLocked(ctx)
}

// Complete stops a running timer and marks the task completed. A partial stop does not
// prevent completion; the *PartialStopError is returned alongside the task.
func (e *Engine) Complete(ctx context.Context) (*task.Task, StopResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, StopResult{}, ErrClosed
	}

	var partial *PartialStopError
	result, err := e.stopLocked(ctx)
	if err != nil && !errors.As(err, &partial) {
		return nil, StopResult{}, err
	}

	completed, err := e.store.MarkCompleted(ctx, e.taskID, e.clock.Now())
	if err != nil {
		return nil, result, fmt.Errorf("failed to complete task: %w", err)
	}

	metrics.RecordTaskCompleted()
	e.publish(ctx, changefeed.NewEvent(changefeed.TableTasks, changefeed.EventUpdate, e.userID, e.taskID))
	log.Printf("Task %s completed", e.taskID)

	if partial != nil {
		return completed, result, partial
	}

	return completed, result, nil
}

// Recover adopts an entry left open by an earlier process. Entries older than orphanAfter
// are closed with no credit instead.
func (e *Engine) Recover(ctx context.Context, orphanAfter time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.state == Running {
		return nil
	}

	entry, err := e.store.GetOpenTimeEntry(ctx, e.taskID, e.userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to look up open time entry: %w", err)
	}

	now := e.clock.Now()
	if orphanAfter > 0 && now.Sub(entry.StartedAt) > orphanAfter {
		if err := e.store.CloseTimeEntry(ctx, entry.ID, now, 0); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to close abandoned time entry: %w", err)
		}

		metrics.RecordOrphansClosed(1)
		e.publish(ctx, changefeed.NewEvent(changefeed.TableTimeEntries, changefeed.EventUpdate, e.userID, entry.ID))
		log.Printf("Closed abandoned time entry %s for task %s (started %s)", entry.ID, e.taskID, entry.StartedAt.Format(time.RFC3339))
		return nil
	}

	e.runLocked(entry)
	metrics.RecordTimerResumed()
	log.Printf("Resumed timer for task %s (entry %s)", e.taskID, entry.ID)
	return nil
}

// Close stops the ticker. An open entry stays open so a later engine can resume it.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	if e.state == Running {
		metrics.RecordTimerAbandoned()
	}
	e.haltTickerLocked()
	e.closed = true
}

// closeIfIdle closes the engine unless a session is running and reports whether it did.
func (e *Engine) closeIfIdle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Running {
		return false
	}

	e.haltTickerLocked()
	e.closed = true
	return true
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.closed
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.statusLocked()
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

func (e *Engine) stopLocked(ctx context.Context) (StopResult, error) {
	if e.state != Running || e.entry == nil {
		return StopResult{}, nil
	}

	entry := e.entry
	now := e.clock.Now()
	elapsed := elapsedSeconds(entry.StartedAt, now)
	minutes := task.MinutesFromSeconds(elapsed)

	if err := e.store.CloseTimeEntry(ctx, entry.ID, now, minutes); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Printf("Time entry %s was closed elsewhere, timer for task %s reset", entry.ID, e.taskID)
			e.resetLocked()
			metrics.RecordTimerAbandoned()
			return StopResult{}, nil
		}
		return StopResult{}, fmt.Errorf("failed to close time entry: %w", err)
	}

	result := StopResult{EntryID: entry.ID, ElapsedSeconds: elapsed, DurationMinutes: minutes}
	e.resetLocked()
	e.publish(ctx, changefeed.NewEvent(changefeed.TableTimeEntries, changefeed.EventUpdate, e.userID, entry.ID))

	if minutes > 0 {
		if err := e.store.AddSpentMinutes(ctx, e.taskID, minutes); err != nil {
			metrics.RecordTimerStopped("partial", 0)
			log.Printf("PARTIAL STOP: entry %s closed with %d minutes but task %s was not credited: %v",
				entry.ID, minutes, e.taskID, err)
			return result, &PartialStopError{EntryID: entry.ID, DurationMinutes: minutes, Err: err}
		}
		e.publish(ctx, changefeed.NewEvent(changefeed.TableTasks, changefeed.EventUpdate, e.userID, e.taskID))
	}

	metrics.RecordTimerStopped("stopped", minutes)
	log.Printf("Timer stopped for task %s: %ds, %d minutes", e.taskID, elapsed, minutes)
	return result, nil
}

func (e *Engine) runLocked(entry *task.TimeEntry) {
	e.entry = entry
	e.state = Running

	stop := make(chan struct{})
	e.stopTick = stop
	go e.tickLoop(stop)
}

func (e *Engine) tickLoop(stop chan struct{}) {
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.tick(stop)
		}
	}
}

func (e *Engine) tick(stop chan struct{}) {
	e.mu.Lock()
	if e.stopTick != stop || e.entry == nil {
		e.mu.Unlock()
		return
	}
	t := Tick{
		TaskID:         e.taskID,
		UserID:         e.userID,
		ElapsedSeconds: elapsedSeconds(e.entry.StartedAt, e.clock.Now()),
	}
	onTick := e.onTick
	e.mu.Unlock()

	if onTick != nil {
		onTick(t)
	}
}

func (e *Engine) resetLocked() {
	e.haltTickerLocked()
	e.entry = nil
	e.state = Idle
}

func (e *Engine) haltTickerLocked() {
	if e.stopTick != nil {
		close(e.stopTick)
		e.stopTick = nil
	}
}

func (e *Engine) statusLocked() Status {
	status := Status{TaskID: e.taskID, State: e.state}
	if e.state == Running && e.entry != nil {
		startedAt := e.entry.StartedAt
		status.EntryID = e.entry.ID
		status.StartedAt = &startedAt
		status.ElapsedSeconds = elapsedSeconds(startedAt, e.clock.Now())
	}

	return status
}

func (e *Engine) publish(ctx context.Context, ev changefeed.Event) {
	if err := e.feed.Publish(ctx, ev); err != nil {
		log.Printf("Failed to publish %s %s event for %s: %v", ev.Table, ev.Type, ev.RecordID, err)
	}
}

func elapsedSeconds(startedAt, now time.Time) int64 {
	elapsed := int64(now.Sub(startedAt) / time.Second)
	if elapsed < 0 {
		return 0
	}

	return elapsed
}
