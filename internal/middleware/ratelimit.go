package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ashureev/for-the-record/internal/identity"
)

// RateLimiterConfig configures per-user request limits.
type RateLimiterConfig struct {
	// General applies to every API request.
	GeneralRate  rate.Limit
	GeneralBurst int
	// Upstream applies to routes that call the model or TTS provider.
	UpstreamRate  rate.Limit
	UpstreamBurst int

	CleanupInterval time.Duration
}

// DefaultRateLimiterConfig allows 120 req/min in general and 20 req/min upstream.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0),
		GeneralBurst:    120,
		UpstreamRate:    rate.Limit(20.0 / 60.0),
		UpstreamBurst:   20,
		CleanupInterval: 5 * time.Minute,
	}
}

type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet holds one limiter per user for a single class of traffic.
type limiterSet struct {
	name  string
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*userLimiter
}

func newLimiterSet(name string, limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{name: name, limit: limit, burst: burst, limiters: make(map[string]*userLimiter)}
}

func (s *limiterSet) get(userID string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ul, ok := s.limiters[userID]; ok {
		ul.lastAccess = now
		return ul.limiter
	}
	l := rate.NewLimiter(s.limit, s.burst)
	s.limiters[userID] = &userLimiter{limiter: l, lastAccess: now}
	return l
}

func (s *limiterSet) evict(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for userID, ul := range s.limiters {
		if ul.lastAccess.Before(cutoff) {
			delete(s.limiters, userID)
			n++
		}
	}
	return n
}

func (s *limiterSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// RateLimiter enforces per-user limits keyed by the anonymous identity.
type RateLimiter struct {
	config   RateLimiterConfig
	general  *limiterSet
	upstream *limiterSet
	logger   *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter creates a limiter and starts its cleanup loop. Call Stop to end it.
func NewRateLimiter(config RateLimiterConfig, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:   config,
		general:  newLimiterSet("general", config.GeneralRate, config.GeneralBurst),
		upstream: newLimiterSet("upstream", config.UpstreamRate, config.UpstreamBurst),
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop ends the cleanup loop.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// General returns middleware applying the general limit. It must run after identity.Middleware.
func (rl *RateLimiter) General() func(http.Handler) http.Handler {
	return rl.middleware(rl.general)
}

// Upstream returns middleware applying the upstream limit.
func (rl *RateLimiter) Upstream() func(http.Handler) http.Handler {
	return rl.middleware(rl.upstream)
}

// GeneralCount reports how many users hold a general limiter.
func (rl *RateLimiter) GeneralCount() int { return rl.general.count() }

func (rl *RateLimiter) middleware(set *limiterSet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := identity.UserIDFromContext(r.Context())
			if userID == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			if !set.get(userID, time.Now()).Allow() {
				rl.logger.Warn("rate limit exceeded", "user_id", userID, "limit_type", set.name)
				writeRateLimitResponse(w, set.limit)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup drops limiters idle for more than two cleanup intervals.
func (rl *RateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-2 * rl.config.CleanupInterval)
	if n := rl.general.evict(cutoff) + rl.upstream.evict(cutoff); n > 0 {
		rl.logger.Debug("evicted idle rate limiters", "count", n)
	}
}

// writeRateLimitResponse answers 429 with Retry-After set to the time one token takes to refill.
func writeRateLimitResponse(w http.ResponseWriter, limit rate.Limit) {
	retryAfter := 1
	if limit > 0 {
		retryAfter = max(1, int(math.Ceil(1.0/float64(limit))))
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "Too many requests. Please try again later."})
}
