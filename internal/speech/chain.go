package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// FallbackRecorder is told whenever a backend fails and the next one is tried.
type FallbackRecorder interface {
	RecordSpeechFallback(backend string)
}

type noopFallbackRecorder struct{}

func (noopFallbackRecorder) RecordSpeechFallback(string) {}

// Chain speaks through the first backend that succeeds, in order.
type Chain struct {
	backends []Backend
	recorder FallbackRecorder
	logger   *slog.Logger

	mu     sync.Mutex
	active Backend
}

// NewChain creates a chain over backends, preferred first.
func NewChain(recorder FallbackRecorder, logger *slog.Logger, backends ...Backend) *Chain {
	if recorder == nil {
		recorder = noopFallbackRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{backends: backends, recorder: recorder, logger: logger}
}

// Speak tries each backend until one finishes cleanly. Cancellation of ctx
// stops the chain without trying further backends. When every backend fails
// the returned error wraps ErrSpeechUnavailable.
func (c *Chain) Speak(ctx context.Context, text string) error {
	if len(c.backends) == 0 {
		return ErrSpeechUnavailable
	}

	var errs []error
	for i, b := range c.backends {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.setActive(b)
		err := b.Speak(ctx, text)
		c.setActive(nil)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		if i < len(c.backends)-1 {
			c.recorder.RecordSpeechFallback(b.Name())
			c.logger.Warn("speech backend failed, falling back",
				"backend", b.Name(),
				"next", c.backends[i+1].Name(),
				"error", err)
		}
	}
	return fmt.Errorf("%w: %w", ErrSpeechUnavailable, errors.Join(errs...))
}

// Stop cancels playback on whichever backend is active.
func (c *Chain) Stop() {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active != nil {
		active.Stop()
	}
}

func (c *Chain) setActive(b Backend) {
	c.mu.Lock()
	c.active = b
	c.mu.Unlock()
}
