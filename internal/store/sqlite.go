package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ashureev/for-the-record/internal/domain"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite opens the database at dbPath and applies pending migrations.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, err
	}

	// WAL mode for concurrent readers while a save is in flight.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT user_id, username, last_seen_at, created_at, updated_at FROM users WHERE user_id = ?`

	var user domain.User
	var lastSeen, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at
	`
	return withRetry(ctx, "upsert user", func() error {
		_, err := s.db.ExecContext(ctx, query,
			user.UserID, user.Username, user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}
		return nil
	})
}

// UpdateLastSeen updates the last seen timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	return withRetry(ctx, "update last seen", func() error {
		if _, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), s.now().Unix(), userID); err != nil {
			return fmt.Errorf("update last seen: %w", err)
		}
		return nil
	})
}

const storyColumns = `id, title, body, three_words, tags, mood, themes, story_date, transcript, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStory(row rowScanner) (*domain.Story, error) {
	var story domain.Story
	var threeWords, tags, themes, transcript string
	var createdAt int64
	if err := row.Scan(&story.ID, &story.Title, &story.Body, &threeWords, &tags, &story.Mood,
		&themes, &story.Date, &transcript, &createdAt); err != nil {
		return nil, err
	}

	var words []string
	if err := json.Unmarshal([]byte(threeWords), &words); err != nil {
		return nil, fmt.Errorf("decode three_words: %w", err)
	}
	copy(story.ThreeWords[:], words)
	if err := json.Unmarshal([]byte(tags), &story.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(themes), &story.Themes); err != nil {
		return nil, fmt.Errorf("decode themes: %w", err)
	}
	if err := json.Unmarshal([]byte(transcript), &story.SessionTranscript); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	story.CreatedAt = time.Unix(0, createdAt)
	return &story, nil
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CreateStory stores a new story for userID.
func (s *SQLiteStore) CreateStory(ctx context.Context, userID string, story *domain.Story) (string, error) {
	if story == nil {
		return "", errors.New("create story: nil story")
	}
	if story.ID == "" {
		story.ID = uuid.NewString()
	}
	if story.CreatedAt.IsZero() {
		story.CreatedAt = s.now()
	}

	tags := story.Tags
	if tags == nil {
		tags = []string{}
	}
	themes := story.Themes
	if themes == nil {
		themes = []string{}
	}
	transcript := story.SessionTranscript
	if transcript == nil {
		transcript = []domain.Turn{}
	}

	threeWords, err := encodeJSON(story.ThreeWords[:])
	if err != nil {
		return "", fmt.Errorf("encode three_words: %w", err)
	}
	tagsJSON, err := encodeJSON(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	themesJSON, err := encodeJSON(themes)
	if err != nil {
		return "", fmt.Errorf("encode themes: %w", err)
	}
	transcriptJSON, err := encodeJSON(transcript)
	if err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}

	query := `INSERT INTO stories (user_id, ` + storyColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	err = withRetry(ctx, "create story", func() error {
		_, err := s.db.ExecContext(ctx, query, userID, story.ID, story.Title, story.Body, threeWords, tagsJSON,
			story.Mood, themesJSON, story.Date, transcriptJSON, story.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("create story: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return story.ID, nil
}

// GetStory returns one story owned by userID.
func (s *SQLiteStore) GetStory(ctx context.Context, userID, storyID string) (*domain.Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories WHERE user_id = ? AND id = ?`
	story, err := scanStory(s.db.QueryRowContext(ctx, query, userID, storyID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get story: %w", err)
	}
	return story, nil
}

// ListStories returns every story owned by userID, newest first.
func (s *SQLiteStore) ListStories(ctx context.Context, userID string) ([]*domain.Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer rows.Close()

	stories := []*domain.Story{}
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		stories = append(stories, story)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stories: %w", err)
	}
	return stories, nil
}

// UpdateStory applies update to the stored story.
func (s *SQLiteStore) UpdateStory(ctx context.Context, userID, storyID string, update domain.StoryUpdate) (*domain.Story, error) {
	story, err := s.GetStory(ctx, userID, storyID)
	if err != nil {
		return nil, err
	}
	if story == nil {
		return nil, ErrNotFound
	}
	if update.IsEmpty() {
		return story, nil
	}
	update.Apply(story)

	tags := story.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := encodeJSON(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}

	query := `UPDATE stories SET title = ?, body = ?, tags = ? WHERE user_id = ? AND id = ?`
	err = withRetry(ctx, "update story", func() error {
		res, err := s.db.ExecContext(ctx, query, story.Title, story.Body, tagsJSON, userID, storyID)
		if err != nil {
			return fmt.Errorf("update story: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return story, nil
}

// DeleteStory removes a story owned by userID.
func (s *SQLiteStore) DeleteStory(ctx context.Context, userID, storyID string) error {
	query := `DELETE FROM stories WHERE user_id = ? AND id = ?`
	return withRetry(ctx, "delete story", func() error {
		res, err := s.db.ExecContext(ctx, query, userID, storyID)
		if err != nil {
			return fmt.Errorf("delete story: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetProfile returns the stored profile for userID.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `SELECT user_id, notifications_enabled, notification_time FROM profiles WHERE user_id = ?`

	var profile domain.Profile
	var enabled int
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&profile.UserID, &enabled, &profile.NotificationTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	profile.NotificationsEnabled = enabled == 1
	return &profile, nil
}

// UpsertProfile merges update into the stored profile.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.Profile, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	var merged *domain.Profile
	err := withRetry(ctx, "upsert profile", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var current *domain.Profile
		var p domain.Profile
		var enabled int
		err = tx.QueryRowContext(ctx,
			`SELECT user_id, notifications_enabled, notification_time FROM profiles WHERE user_id = ?`, userID,
		).Scan(&p.UserID, &enabled, &p.NotificationTime)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return fmt.Errorf("read profile: %w", err)
		default:
			p.NotificationsEnabled = enabled == 1
			current = &p
		}

		merged = update.Merge(userID, current)
		enabledVal := 0
		if merged.NotificationsEnabled {
			enabledVal = 1
		}
		_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (user_id, notifications_enabled, notification_time, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			notifications_enabled = excluded.notifications_enabled,
			notification_time = excluded.notification_time,
			updated_at = excluded.updated_at
		`, userID, enabledVal, merged.NotificationTime, s.now().Unix())
		if err != nil {
			return fmt.Errorf("upsert profile: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// ListReminderProfiles returns profiles whose reminder fires at hhmm.
func (s *SQLiteStore) ListReminderProfiles(ctx context.Context, hhmm string) ([]*domain.Profile, error) {
	query := `SELECT user_id, notification_time FROM profiles WHERE notifications_enabled = 1 AND notification_time = ?`
	rows, err := s.db.QueryContext(ctx, query, hhmm)
	if err != nil {
		return nil, fmt.Errorf("list reminder profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*domain.Profile
	for rows.Next() {
		p := &domain.Profile{NotificationsEnabled: true}
		if err := rows.Scan(&p.UserID, &p.NotificationTime); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}
