// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/for-the-record/internal/domain"
)

// ErrNotFound is returned when an update or delete targets a missing record.
var ErrNotFound = errors.New("not found")

// Repository defines the interface for persisting users, stories and profiles.
// Every story and profile operation is scoped to userID.
type Repository interface {
	// GetUser retrieves a user by their user ID. A missing user is (nil, nil).
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// CreateStory stores a new story and returns its id. An empty story.ID is
	// assigned; a zero CreatedAt is set to now.
	CreateStory(ctx context.Context, userID string, story *domain.Story) (string, error)

	// GetStory returns one story, or (nil, nil) when it does not exist.
	GetStory(ctx context.Context, userID, storyID string) (*domain.Story, error)

	// ListStories returns the user's stories, newest first.
	ListStories(ctx context.Context, userID string) ([]*domain.Story, error)

	// UpdateStory overwrites the edited fields and returns the result.
	UpdateStory(ctx context.Context, userID, storyID string, update domain.StoryUpdate) (*domain.Story, error)

	// DeleteStory removes a story.
	DeleteStory(ctx context.Context, userID, storyID string) error

	// GetProfile returns the user's profile, or (nil, nil) when none was saved.
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)

	// UpsertProfile merges update into the stored profile and returns the result.
	UpsertProfile(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.Profile, error)

	// ListReminderProfiles returns profiles with notifications enabled at hhmm ("15:04").
	ListReminderProfiles(ctx context.Context, hhmm string) ([]*domain.Profile, error)

	// Ping verifies connectivity and returns an error if the backend is unreachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
