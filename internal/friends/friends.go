// Package friends lets a user follow other users by email and see how far along they are
// with their tasks.
package friends

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nadmax/bordo/internal/auth"
	"github.com/nadmax/bordo/internal/repository"
	"github.com/nadmax/bordo/internal/repository/models"
)

var (
	ErrUserNotFound   = errors.New("no user with this email")
	ErrSelf           = errors.New("you cannot add yourself as a friend")
	ErrAlreadyFriends = errors.New("already friends with this user")
)

type Store interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	AddFriendship(ctx context.Context, f *models.Friendship) error
	FriendshipExists(ctx context.Context, userID, friendID string) (bool, error)
	ListFriendProgress(ctx context.Context, userID string) ([]models.FriendProgress, error)
}

type Notifier interface {
	FriendAdded(ctx context.Context, follower, followed *models.User) error
}

type Friend struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Email                string `json:"email"`
	TotalTasks           int    `json:"total_tasks"`
	CompletedTasks       int    `json:"completed_tasks"`
	CompletionPercentage int    `json:"completion_percentage"`
}

type Service struct {
	store    Store
	notifier Notifier
}

func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

func (s *Service) Add(ctx context.Context, email string) (*models.User, error) {
	user, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	friend, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if friend.ID == user.ID {
		return nil, ErrSelf
	}

	exists, err := s.store.FriendshipExists(ctx, user.ID, friend.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check friendship: %w", err)
	}
	if exists {
		return nil, ErrAlreadyFriends
	}

	err = s.store.AddFriendship(ctx, &models.Friendship{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		FriendID:  friend.ID,
		CreatedAt: time.Now(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrAlreadyFriends
		}
		return nil, fmt.Errorf("failed to add friend: %w", err)
	}

	if s.notifier != nil {
		if err := s.notifier.FriendAdded(ctx, user, friend); err != nil {
			log.Printf("Failed to notify %s about new follower %s: %v", friend.ID, user.ID, err)
		}
	}

	return friend, nil
}

func (s *Service) List(ctx context.Context) ([]Friend, error) {
	user, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	progress, err := s.store.ListFriendProgress(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}

	friends := make([]Friend, 0, len(progress))
	for _, p := range progress {
		friends = append(friends, Friend{
			ID:                   p.FriendID,
			Name:                 p.Name,
			Email:                p.Email,
			TotalTasks:           p.TotalTasks,
			CompletedTasks:       p.CompletedTasks,
			CompletionPercentage: completionPercentage(p.CompletedTasks, p.TotalTasks),
		})
	}

	return friends, nil
}

func completionPercentage(completed, total int) int {
	if total <= 0 {
		return 0
	}

	return int(math.Round(float64(completed) / float64(total) * 100))
}
