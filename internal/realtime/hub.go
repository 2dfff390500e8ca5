// Package realtime pushes a signed-in user's row changes, statistics and timer ticks to
// their open WebSocket connections.
package realtime

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nadmax/bordo/internal/auth"
	"github.com/nadmax/bordo/internal/changefeed"
	"github.com/nadmax/bordo/internal/httputil"
	"github.com/nadmax/bordo/internal/metrics"
	"github.com/nadmax/bordo/internal/stats"
	"github.com/nadmax/bordo/internal/timer"
	"golang.org/x/sync/errgroup"
)

const (
	MessageChange = "change"
	MessageStats  = "stats"
	MessageTick   = "tick"
)

var errClientGone = errors.New("client disconnected")

var watchedTables = []string{
	changefeed.TableTasks,
	changefeed.TableSubtasks,
	changefeed.TableTimeEntries,
}

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type StatsWatcher interface {
	Watch(ctx context.Context, userID string, fn func(stats.Stats)) error
}

type Config struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 90 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}

	return c
}

type client struct {
	userID string
	send   chan Message
}

// push never blocks; a client that stops reading loses messages rather than stalling
// the publisher.
func (c *client) push(msg Message) {
	select {
	case c.send <- msg:
	default:
		log.Printf("Realtime client for %s is full, dropping %s message", c.userID, msg.Type)
	}
}

type Hub struct {
	feed     changefeed.Subscriber
	stats    StatsWatcher
	config   Config
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

func NewHub(feed changefeed.Subscriber, watcher StatsWatcher, config Config) *Hub {
	return &Hub{
		feed:   feed,
		stats:  watcher,
		config: config.withDefaults(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]map[*client]struct{}),
	}
}

// ServeHTTP upgrades an authenticated request and serves the connection until the
// client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, err := auth.RequireUser(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Realtime upgrade failed for %s: %v", user.ID, err)
		return
	}

	h.serve(r.Context(), conn, user.ID)
}

// NotifyTick forwards a running timer's elapsed time to the owner's connections.
func (h *Hub) NotifyTick(t timer.Tick) {
	h.broadcast(t.UserID, Message{Type: MessageTick, Payload: t})
}

func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients[userID])
}

func (h *Hub) broadcast(userID string, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[userID] {
		c.push(msg)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.mu.Unlock()

	metrics.UpdateRealtimeConnections(1)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients[c.userID], c)
	if len(h.clients[c.userID]) == 0 {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()

	metrics.UpdateRealtimeConnections(-1)
}

func (h *Hub) serve(parent context.Context, conn *websocket.Conn, userID string) {
	c := &client{userID: userID, send: make(chan Message, h.config.SendBuffer)}
	h.register(c)
	defer h.unregister(c)

	log.Printf("Realtime client connected for %s", userID)

	g, ctx := errgroup.WithContext(context.WithoutCancel(parent))

	for _, table := range watchedTables {
		g.Go(func() error {
			return h.forwardChanges(ctx, c, table)
		})
	}

	if h.stats != nil {
		g.Go(func() error {
			return h.stats.Watch(ctx, userID, func(s stats.Stats) {
				c.push(Message{Type: MessageStats, Payload: s})
			})
		})
	}

	g.Go(func() error {
		return h.writeLoop(ctx, conn, c)
	})
	g.Go(func() error {
		return h.readLoop(conn)
	})
	g.Go(func() error {
		<-ctx.Done()
		_ = conn.Close()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errClientGone) {
		log.Printf("Realtime connection for %s ended: %v", userID, err)
	}

	log.Printf("Realtime client disconnected for %s", userID)
}

func (h *Hub) forwardChanges(ctx context.Context, c *client, table string) error {
	sub, err := h.feed.Subscribe(ctx, changefeed.Filter{Table: table, UserID: c.userID})
	if err != nil {
		return err
	}
	defer func() { _ = sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			c.push(Message{Type: MessageChange, Payload: ev})
		}
	}
}

func (h *Hub) writeLoop(ctx context.Context, conn *websocket.Conn, c *client) error {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.config.WriteTimeout))
			return nil
		case msg := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				return err
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.config.WriteTimeout)); err != nil {
				return err
			}
		}
	}
}

// readLoop only watches for the client going away; clients do not send commands.
func (h *Hub) readLoop(conn *websocket.Conn) error {
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("Realtime read error: %v", err)
			}
			return errClientGone
		}

		_ = conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	}
}
