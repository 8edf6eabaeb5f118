package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/cache"
	"github.com/smarttransit/rail-reservation/internal/models"
)

// RateLimitService throttles login attempts per email and per client IP
type RateLimitService struct {
	counter cache.AttemptCounter
	config  RateLimitConfig
	logger  *logrus.Logger
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	MaxEmailAttempts int           // Max login attempts per email
	EmailWindow      time.Duration // Time window for email rate limit
	MaxIPAttempts    int           // Max login attempts per IP
	IPWindow         time.Duration // Time window for IP rate limit
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxEmailAttempts: 5,                // 5 attempts
		EmailWindow:      15 * time.Minute, // per 15 minutes
		MaxIPAttempts:    20,               // 20 attempts
		IPWindow:         1 * time.Hour,    // per hour
	}
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	RetryAfter time.Duration
	Type       string // "email" or "ip"
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: too many login attempts for this %s, retry in %s",
		models.ErrRateLimited, e.Type, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error {
	return models.ErrRateLimited
}

// NewRateLimitService creates a new rate limit service
func NewRateLimitService(counter cache.AttemptCounter, cfg RateLimitConfig, logger *logrus.Logger) *RateLimitService {
	return &RateLimitService{counter: counter, config: cfg, logger: logger}
}

// CheckLoginAttempt records an attempt and rejects it once either limit is
// exceeded. Counter failures are logged and let the attempt through.
func (s *RateLimitService) CheckLoginAttempt(ctx context.Context, email, ip string) error {
	if email != "" {
		if err := s.check(ctx, emailAttemptKey(email), "email", s.config.MaxEmailAttempts, s.config.EmailWindow); err != nil {
			return err
		}
	}
	if ip != "" {
		if err := s.check(ctx, "login:ip:"+ip, "ip", s.config.MaxIPAttempts, s.config.IPWindow); err != nil {
			return err
		}
	}
	return nil
}

// ResetLogin clears the email counter after a successful login
func (s *RateLimitService) ResetLogin(ctx context.Context, email string) {
	if err := s.counter.Reset(ctx, emailAttemptKey(email)); err != nil {
		s.logger.WithError(err).Warn("Failed to reset login attempts")
	}
}

func (s *RateLimitService) check(ctx context.Context, key, kind string, max int, window time.Duration) error {
	if max <= 0 {
		return nil
	}

	count, retryAfter, err := s.counter.Hit(ctx, key, window)
	if err != nil {
		s.logger.WithError(err).WithField("type", kind).Warn("Rate limit counter unavailable")
		return nil
	}

	if count > max {
		s.logger.WithFields(logrus.Fields{
			"type":        kind,
			"attempts":    count,
			"retry_after": retryAfter.String(),
		}).Warn("Login rate limit exceeded")
		return &RateLimitError{RetryAfter: retryAfter, Type: kind}
	}
	return nil
}

func emailAttemptKey(email string) string {
	return "login:email:" + strings.ToLower(strings.TrimSpace(email))
}
