package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ashureev/for-the-record/internal/domain"
)

// Firestore layout: users/{uid}, users/{uid}/stories/{id}, users/{uid}/profile/data.
const (
	usersCollection   = "users"
	storiesCollection = "stories"
	profileCollection = "profile"
	profileDocID      = "data"
)

// FirestoreStore implements Repository on Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
	now    func() time.Time
}

var _ Repository = (*FirestoreStore)(nil)

type firestoreUser struct {
	Username   string    `firestore:"username"`
	LastSeenAt time.Time `firestore:"lastSeenAt"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

type firestoreTurn struct {
	Role    string `firestore:"role"`
	Content string `firestore:"content"`
}

type firestoreStory struct {
	Title             string          `firestore:"title"`
	Body              string          `firestore:"body"`
	ThreeWords        []string        `firestore:"threeWords"`
	Tags              []string        `firestore:"tags"`
	Mood              string          `firestore:"mood"`
	Themes            []string        `firestore:"themes"`
	Date              string          `firestore:"date"`
	CreatedAt         time.Time       `firestore:"createdAt"`
	SessionTranscript []firestoreTurn `firestore:"sessionTranscript"`
}

type firestoreProfile struct {
	NotificationsEnabled bool   `firestore:"notificationsEnabled"`
	NotificationTime     string `firestore:"notificationTime"`
}

// NewFirestore connects to the Firestore database of projectID.
func NewFirestore(ctx context.Context, projectID string) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, errors.New("firestore project id is required")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return &FirestoreStore{client: client, now: time.Now}, nil
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (s *FirestoreStore) user(userID string) *firestore.DocumentRef {
	return s.client.Collection(usersCollection).Doc(userID)
}

func (s *FirestoreStore) stories(userID string) *firestore.CollectionRef {
	return s.user(userID).Collection(storiesCollection)
}

func (s *FirestoreStore) profile(userID string) *firestore.DocumentRef {
	return s.user(userID).Collection(profileCollection).Doc(profileDocID)
}

func toFirestoreStory(story *domain.Story) firestoreStory {
	doc := firestoreStory{
		Title:             story.Title,
		Body:              story.Body,
		ThreeWords:        story.ThreeWords[:],
		Tags:              story.Tags,
		Mood:              story.Mood,
		Themes:            story.Themes,
		Date:              story.Date,
		CreatedAt:         story.CreatedAt,
		SessionTranscript: make([]firestoreTurn, 0, len(story.SessionTranscript)),
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	if doc.Themes == nil {
		doc.Themes = []string{}
	}
	for _, turn := range story.SessionTranscript {
		doc.SessionTranscript = append(doc.SessionTranscript, firestoreTurn{Role: string(turn.Role), Content: turn.Content})
	}
	return doc
}

func fromFirestoreStory(id string, doc firestoreStory) *domain.Story {
	story := &domain.Story{
		ID:        id,
		Title:     doc.Title,
		Body:      doc.Body,
		Tags:      doc.Tags,
		Mood:      doc.Mood,
		Themes:    doc.Themes,
		Date:      doc.Date,
		CreatedAt: doc.CreatedAt,
	}
	copy(story.ThreeWords[:], doc.ThreeWords)
	if story.Tags == nil {
		story.Tags = []string{}
	}
	if story.Themes == nil {
		story.Themes = []string{}
	}
	story.SessionTranscript = make([]domain.Turn, 0, len(doc.SessionTranscript))
	for _, turn := range doc.SessionTranscript {
		story.SessionTranscript = append(story.SessionTranscript, domain.Turn{Role: domain.Speaker(turn.Role), Content: turn.Content})
	}
	return story
}

// Ping reads a sentinel document to verify connectivity. A missing document is fine.
func (s *FirestoreStore) Ping(ctx context.Context) error {
	_, err := s.client.Collection("_health").Doc("ping").Get(ctx)
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// Close closes the Firestore client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

// GetUser retrieves a user by their user ID.
func (s *FirestoreStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	snap, err := s.user(userID).Get(ctx)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	var doc firestoreUser
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &domain.User{
		UserID:     userID,
		Username:   doc.Username,
		LastSeenAt: doc.LastSeenAt,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}, nil
}

// UpsertUser creates or updates a user record. createdAt is kept on update.
func (s *FirestoreStore) UpsertUser(ctx context.Context, user *domain.User) error {
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := s.user(user.UserID)
		doc := firestoreUser{
			Username:   user.Username,
			LastSeenAt: user.LastSeenAt,
			CreatedAt:  user.CreatedAt,
			UpdatedAt:  user.UpdatedAt,
		}
		snap, err := tx.Get(ref)
		switch {
		case isNotFound(err):
		case err != nil:
			return fmt.Errorf("read user: %w", err)
		default:
			var existing firestoreUser
			if err := snap.DataTo(&existing); err == nil && !existing.CreatedAt.IsZero() {
				doc.CreatedAt = existing.CreatedAt
			}
		}
		return tx.Set(ref, doc)
	})
}

// UpdateLastSeen updates the last seen timestamp for a user.
func (s *FirestoreStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	_, err := s.user(userID).Set(ctx, map[string]any{
		"lastSeenAt": lastSeen,
		"updatedAt":  s.now(),
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("update last seen: %w", err)
	}
	return nil
}

// CreateStory stores a new story for userID.
func (s *FirestoreStore) CreateStory(ctx context.Context, userID string, story *domain.Story) (string, error) {
	if story == nil {
		return "", errors.New("create story: nil story")
	}
	if story.ID == "" {
		story.ID = uuid.NewString()
	}
	if story.CreatedAt.IsZero() {
		story.CreatedAt = s.now()
	}
	if _, err := s.stories(userID).Doc(story.ID).Create(ctx, toFirestoreStory(story)); err != nil {
		return "", fmt.Errorf("create story: %w", err)
	}
	return story.ID, nil
}

// GetStory returns one story owned by userID.
func (s *FirestoreStore) GetStory(ctx context.Context, userID, storyID string) (*domain.Story, error) {
	snap, err := s.stories(userID).Doc(storyID).Get(ctx)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get story: %w", err)
	}
	var doc firestoreStory
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode story: %w", err)
	}
	return fromFirestoreStory(snap.Ref.ID, doc), nil
}

// ListStories returns every story owned by userID, newest first.
func (s *FirestoreStore) ListStories(ctx context.Context, userID string) ([]*domain.Story, error) {
	snaps, err := s.stories(userID).OrderBy("createdAt", firestore.Desc).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	stories := make([]*domain.Story, 0, len(snaps))
	for _, snap := range snaps {
		var doc firestoreStory
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode story %s: %w", snap.Ref.ID, err)
		}
		stories = append(stories, fromFirestoreStory(snap.Ref.ID, doc))
	}
	return stories, nil
}

// UpdateStory applies update to the stored story.
func (s *FirestoreStore) UpdateStory(ctx context.Context, userID, storyID string, update domain.StoryUpdate) (*domain.Story, error) {
	ref := s.stories(userID).Doc(storyID)
	var updates []firestore.Update
	if update.Title != nil {
		updates = append(updates, firestore.Update{Path: "title", Value: *update.Title})
	}
	if update.Body != nil {
		updates = append(updates, firestore.Update{Path: "body", Value: *update.Body})
	}
	if update.Tags != nil {
		tags := append([]string{}, (*update.Tags)...)
		updates = append(updates, firestore.Update{Path: "tags", Value: tags})
	}

	if len(updates) > 0 {
		if _, err := ref.Update(ctx, updates); err != nil {
			if isNotFound(err) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("update story: %w", err)
		}
	}

	story, err := s.GetStory(ctx, userID, storyID)
	if err != nil {
		return nil, err
	}
	if story == nil {
		return nil, ErrNotFound
	}
	return story, nil
}

// DeleteStory removes a story owned by userID.
func (s *FirestoreStore) DeleteStory(ctx context.Context, userID, storyID string) error {
	if _, err := s.stories(userID).Doc(storyID).Delete(ctx, firestore.Exists); err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete story: %w", err)
	}
	return nil
}

// GetProfile returns the stored profile for userID.
func (s *FirestoreStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	snap, err := s.profile(userID).Get(ctx)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	var doc firestoreProfile
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &domain.Profile{
		UserID:               userID,
		NotificationsEnabled: doc.NotificationsEnabled,
		NotificationTime:     doc.NotificationTime,
	}, nil
}

// UpsertProfile merges update into the stored profile.
func (s *FirestoreStore) UpsertProfile(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.Profile, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	var merged *domain.Profile
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := s.profile(userID)
		var current *domain.Profile
		snap, err := tx.Get(ref)
		switch {
		case isNotFound(err):
		case err != nil:
			return fmt.Errorf("read profile: %w", err)
		default:
			var doc firestoreProfile
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode profile: %w", err)
			}
			current = &domain.Profile{
				UserID:               userID,
				NotificationsEnabled: doc.NotificationsEnabled,
				NotificationTime:     doc.NotificationTime,
			}
		}
		merged = update.Merge(userID, current)
		return tx.Set(ref, firestoreProfile{
			NotificationsEnabled: merged.NotificationsEnabled,
			NotificationTime:     merged.NotificationTime,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return merged, nil
}

// ListReminderProfiles queries every profile document due at hhmm.
func (s *FirestoreStore) ListReminderProfiles(ctx context.Context, hhmm string) ([]*domain.Profile, error) {
	snaps, err := s.client.CollectionGroup(profileCollection).
		Where("notificationsEnabled", "==", true).
		Where("notificationTime", "==", hhmm).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list reminder profiles: %w", err)
	}

	profiles := make([]*domain.Profile, 0, len(snaps))
	for _, snap := range snaps {
		// users/{uid}/profile/data: the owning user is two levels up.
		userRef := snap.Ref.Parent.Parent
		if userRef == nil {
			continue
		}
		profiles = append(profiles, &domain.Profile{
			UserID:               userRef.ID,
			NotificationsEnabled: true,
			NotificationTime:     hhmm,
		})
	}
	return profiles, nil
}
