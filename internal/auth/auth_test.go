package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nadmax/bordo/internal/repository/mocks"
	"github.com/nadmax/bordo/internal/repository/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setupManager(t *testing.T) (*Manager, *mocks.MockRepository, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := mocks.NewMockRepository()
	manager := NewManager(repo, client, Options{SessionTTL: time.Hour, BcryptCost: bcrypt.MinCost})

	return manager, repo, mr
}

func TestSignUp(t *testing.T) {
	manager, repo, mr := setupManager(t)
	ctx := context.Background()

	session, err := manager.SignUp(ctx, "  Ana@Example.com ", "secret1", "Ana")
	require.NoError(t, err)
	require.NotNil(t, session.User)
	assert.Equal(t, "ana@example.com", session.User.Email)
	assert.Equal(t, "Ana", session.User.Name)
	assert.NotEmpty(t, session.Token)

	stored, ok := repo.Users[session.User.ID]
	require.True(t, ok)
	assert.NotEqual(t, "secret1", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret1")))

	assert.True(t, mr.Exists("session:"+session.Token))
	assert.Equal(t, time.Hour, mr.TTL("session:"+session.Token))
}

func TestSignUp_Validation(t *testing.T) {
	manager, _, _ := setupManager(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"invalid email", "not-an-email", "secret1", ErrInvalidEmail},
		{"short password", "ana@example.com", "12345", ErrWeakPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manager.SignUp(ctx, tt.email, tt.password, "Ana")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSignUp_DefaultsNameToEmailLocalPart(t *testing.T) {
	manager, _, _ := setupManager(t)

	session, err := manager.SignUp(context.Background(), "bia@example.com", "secret1", "")
	require.NoError(t, err)
	assert.Equal(t, "bia", session.User.Name)
}

func TestSignUp_EmailTaken(t *testing.T) {
	manager, _, _ := setupManager(t)
	ctx := context.Background()

	_, err := manager.SignUp(ctx, "ana@example.com", "secret1", "Ana")
	require.NoError(t, err)

	_, err = manager.SignUp(ctx, "ana@example.com", "secret2", "Ana Two")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestSignUp_RepositoryError(t *testing.T) {
	manager, repo, _ := setupManager(t)
	repo.CreateUserError = errors.New("connection refused")

	_, err := manager.SignUp(context.Background(), "ana@example.com", "secret1", "Ana")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSignIn(t *testing.T) {
	manager, _, _ := setupManager(t)
	ctx := context.Background()

	_, err := manager.SignUp(ctx, "ana@example.com", "secret1", "Ana")
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		session, err := manager.SignIn(ctx, "ANA@example.com", "secret1")
		require.NoError(t, err)
		assert.Equal(t, "ana@example.com", session.User.Email)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := manager.SignIn(ctx, "ana@example.com", "wrong-password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := manager.SignIn(ctx, "nobody@example.com", "secret1")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestSession(t *testing.T) {
	manager, _, mr := setupManager(t)
	ctx := context.Background()

	created, err := manager.SignUp(ctx, "ana@example.com", "secret1", "Ana")
	require.NoError(t, err)

	t.Run("resolves token", func(t *testing.T) {
		session, err := manager.Session(ctx, created.Token)
		require.NoError(t, err)
		assert.Equal(t, created.User.ID, session.User.ID)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := manager.Session(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := manager.Session(ctx, "missing")
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("expired token", func(t *testing.T) {
		mr.FastForward(2 * time.Hour)

		_, err := manager.Session(ctx, created.Token)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})
}

func TestSignOut(t *testing.T) {
	manager, _, mr := setupManager(t)
	ctx := context.Background()

	session, err := manager.SignUp(ctx, "ana@example.com", "secret1", "Ana")
	require.NoError(t, err)

	require.NoError(t, manager.SignOut(ctx, session.Token))
	assert.False(t, mr.Exists("session:"+session.Token))

	err = manager.SignOut(ctx, session.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestOnChange(t *testing.T) {
	manager, _, _ := setupManager(t)
	ctx := context.Background()

	var events []ChangeEvent
	unsubscribe := manager.OnChange(func(change StateChange) {
		events = append(events, change.Event)
	})

	session, err := manager.SignUp(ctx, "ana@example.com", "secret1", "Ana")
	require.NoError(t, err)
	require.NoError(t, manager.SignOut(ctx, session.Token))

	assert.Equal(t, []ChangeEvent{EventSignedIn, EventSignedOut}, events)

	unsubscribe()
	_, err = manager.SignIn(ctx, "ana@example.com", "secret1")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestUserContext(t *testing.T) {
	ctx := context.Background()

	_, ok := UserFromContext(ctx)
	assert.False(t, ok)

	_, err := RequireUser(ctx)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	user := &models.User{ID: "user-1"}
	ctx = WithUser(ctx, user)

	got, ok := UserFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "user-1", got.ID)

	got, err = RequireUser(ctx)
	require.NoError(t, err)
	assert.Same(t, user, got)
}
