package reminder

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/for-the-record/internal/domain"
)

const defaultInterval = 30 * time.Second

// ProfileLister finds profiles whose reminder is due at a "15:04" minute.
type ProfileLister interface {
	ListReminderProfiles(ctx context.Context, hhmm string) ([]*domain.Profile, error)
}

// Notifier pushes a message to a user's open connections and reports how many received it.
type Notifier interface {
	Notify(ctx context.Context, userID string, v any) int
}

// Recorder counts delivered reminders.
type Recorder interface {
	RecordReminderSent()
}

// Config configures the worker.
type Config struct {
	Profiles ProfileLister
	Notifier Notifier
	// Message wraps reminder text into the payload sent to the Notifier.
	Message func(text string) any
	Rotator *Rotator
	Metrics Recorder
	// Interval between sweeps; each minute is processed at most once.
	Interval time.Duration
	Location *time.Location
	Logger   *slog.Logger
	Now      func() time.Time
}

// Worker sends reminders to users whose notification time matches the current minute.
type Worker struct {
	cfg        Config
	lastMinute string
}

// NewWorker creates a Worker, filling unset fields with defaults.
func NewWorker(cfg Config) *Worker {
	if cfg.Rotator == nil {
		cfg.Rotator = NewRotator(Messages, nil)
	}
	if cfg.Message == nil {
		cfg.Message = func(text string) any { return text }
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Worker{cfg: cfg}
}

// Start runs the sweep loop in a background goroutine until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	go func() {
		defer ticker.Stop()
		w.cfg.Logger.Info("reminder worker started", "interval", w.cfg.Interval, "location", w.cfg.Location.String())

		w.Sweep(ctx, w.cfg.Now())
		for {
			select {
			case <-ticker.C:
				w.Sweep(ctx, w.cfg.Now())
			case <-ctx.Done():
				w.cfg.Logger.Info("reminder worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep delivers the reminders due at now's minute and returns how many users
// were reached. A minute already swept is skipped.
func (w *Worker) Sweep(ctx context.Context, now time.Time) int {
	minute := now.In(w.cfg.Location).Format(domain.ReminderTimeLayout)
	if minute == w.lastMinute {
		return 0
	}
	w.lastMinute = minute

	profiles, err := w.cfg.Profiles.ListReminderProfiles(ctx, minute)
	if err != nil {
		w.cfg.Logger.Error("reminder worker failed to list profiles", "minute", minute, "error", err)
		return 0
	}
	if len(profiles) == 0 {
		return 0
	}

	reached := 0
	for _, p := range profiles {
		text := w.cfg.Rotator.Next(p.UserID)
		delivered := w.cfg.Notifier.Notify(ctx, p.UserID, w.cfg.Message(text))
		w.cfg.Logger.Info("reminder due", "user_id", p.UserID, "minute", minute, "connections", delivered, "message", text)
		if delivered == 0 {
			continue
		}
		reached++
		if w.cfg.Metrics != nil {
			w.cfg.Metrics.RecordReminderSent()
		}
	}
	return reached
}
