package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/for-the-record/internal/story"
)

// Recorder receives conversational call outcomes.
type Recorder interface {
	RecordConverse(mode, outcome string, d time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) RecordConverse(string, string, time.Duration) {}

// Service asks Georgia for the next question or the finished story.
type Service struct {
	processor Processor
	timeout   time.Duration
	metrics   Recorder
	logger    *slog.Logger
}

// NewServiceWithProcessor creates a service around processor. A nil processor
// yields a service whose every call fails with ErrNotConfigured.
func NewServiceWithProcessor(processor Processor, timeout time.Duration, metrics Recorder, logger *slog.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	if metrics == nil {
		metrics = noopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		processor: processor,
		timeout:   timeout,
		metrics:   metrics,
		logger:    logger,
	}
}

// Enabled reports whether a conversational model is wired in.
func (s *Service) Enabled() bool {
	return s != nil && s.processor != nil
}

// Converse sends the full history to the model. With WrapUp or ForceStory set the
// reply is parsed as a story; text that does not parse falls back to an ordinary
// message, leaving it to the caller to decide whether a story was mandatory.
func (s *Service) Converse(ctx context.Context, req Request) (*Reply, error) {
	if !s.Enabled() {
		return nil, ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	mode := req.Mode()
	start := time.Now()
	text, err := s.processor.Complete(ctx, SystemPrompt, BuildMessages(req))
	if err != nil {
		s.metrics.RecordConverse(mode, "error", time.Since(start))
		return nil, fmt.Errorf("converse (%s): %w", mode, err)
	}

	if req.wantsStory() {
		if draft, ok := story.ParseDraft(text); ok {
			s.metrics.RecordConverse(mode, "story", time.Since(start))
			return &Reply{Story: draft}, nil
		}
		s.logger.Info("wrap-up reply did not contain a story", "mode", mode, "reply_length", len(text))
	}

	s.metrics.RecordConverse(mode, "message", time.Since(start))
	return &Reply{Message: text}, nil
}
