// Package auth implements email/password accounts with server-side sessions kept in
// Redis, and carries the resolved user through request contexts.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nadmax/bordo/internal/repository"
	"github.com/nadmax/bordo/internal/repository/models"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const (
	sessionKeyPrefix  = "session:"
	minPasswordLength = 6
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidSession     = errors.New("session expired or invalid")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrWeakPassword       = fmt.Errorf("password must have at least %d characters", minPasswordLength)
	ErrInvalidEmail       = errors.New("invalid email address")
)

type ChangeEvent string

const (
	EventSignedIn  ChangeEvent = "SIGNED_IN"
	EventSignedOut ChangeEvent = "SIGNED_OUT"
)

type Session struct {
	Token     string       `json:"access_token"`
	User      *models.User `json:"user"`
	ExpiresAt time.Time    `json:"expires_at"`
}

type StateChange struct {
	Event   ChangeEvent
	Session *Session
}

type storedSession struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Options struct {
	SessionTTL time.Duration
	BcryptCost int
}

func DefaultOptions() Options {
	return Options{
		SessionTTL: 7 * 24 * time.Hour,
		BcryptCost: bcrypt.DefaultCost,
	}
}

type Manager struct {
	users  repository.UserRepository
	client *redis.Client
	opts   Options

	mu        sync.RWMutex
	listeners map[int]func(StateChange)
	nextID    int
}

func NewManager(users repository.UserRepository, client *redis.Client, opts Options) *Manager {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultOptions().SessionTTL
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}

	return &Manager{
		users:     users,
		client:    client,
		opts:      opts,
		listeners: make(map[int]func(StateChange)),
	}
}

func (m *Manager) SignUp(ctx context.Context, email, password, name string) (*Session, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = email[:strings.Index(email, "@")]
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}

	if err := m.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Printf("User %s signed up", user.ID)
	return m.startSession(ctx, user)
}

func (m *Manager) SignIn(ctx context.Context, email, password string) (*Session, error) {
	user, err := m.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return m.startSession(ctx, user)
}

func (m *Manager) SignOut(ctx context.Context, token string) error {
	session, err := m.Session(ctx, token)
	if err != nil {
		return err
	}

	if err := m.client.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	m.notify(StateChange{Event: EventSignedOut, Session: session})
	return nil
}

// Session resolves a token to its session. Unknown or expired tokens yield
// ErrInvalidSession.
func (m *Manager) Session(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}

	data, err := m.client.Get(ctx, sessionKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var stored storedSession
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		return nil, ErrInvalidSession
	}

	user, err := m.users.GetUser(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("failed to load session user: %w", err)
	}

	return &Session{Token: token, User: user, ExpiresAt: stored.ExpiresAt}, nil
}

// OnChange registers fn for sign-in and sign-out events. The returned function removes it.
func (m *Manager) OnChange(fn func(StateChange)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Manager) startSession(ctx context.Context, user *models.User) (*Session, error) {
	session := &Session{
		Token:     uuid.New().String(),
		User:      user,
		ExpiresAt: time.Now().Add(m.opts.SessionTTL),
	}

	data, err := json.Marshal(storedSession{UserID: user.ID, ExpiresAt: session.ExpiresAt})
	if err != nil {
		return nil, err
	}

	if err := m.client.Set(ctx, sessionKeyPrefix+session.Token, data, m.opts.SessionTTL).Err(); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	m.notify(StateChange{Event: EventSignedIn, Session: session})
	return session, nil
}

func (m *Manager) notify(change StateChange) {
	m.mu.RLock()
	listeners := make([]func(StateChange), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.RUnlock()

	for _, fn := range listeners {
		fn(change)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
