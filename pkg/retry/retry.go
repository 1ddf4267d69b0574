package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/apperrors"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64 // 0.0-1.0, default 0.1 for +/-10% jitter to prevent thundering herd
	MaxSameErrorType int     // After N consecutive same-type errors, treat as permanent (default: 3)
}

// DefaultConfig returns defaults for establishing a database connection:
// 3 retries with 200ms initial delay, capped at 5s, doubling each time, with 10% jitter
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     200 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 3,
	}
}

// applyJitter adds random jitter to a delay.
// Jitter is calculated as: delay +/- (delay * jitterFactor * random(-1 to +1))
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

func (c *Config) nextDelay(delay time.Duration) time.Duration {
	delay = time.Duration(float64(delay) * c.Multiplier)
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// wait sleeps for the jittered delay or until ctx is done.
func wait(ctx context.Context, delay time.Duration, jitter float64) error {
	timer := time.NewTimer(applyJitter(delay, jitter))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DoWithResultIfRetryable calls fn with exponential backoff and returns its
// result. Only transient errors are retried; permanent ones (bad credentials,
// missing privileges, malformed DSN) return immediately. After
// MaxSameErrorType consecutive failures of the same type the error is treated
// as permanent. Waits between attempts end early when ctx is done.
func DoWithResultIfRetryable[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error
	delay := cfg.InitialDelay
	sameErrorCount := 0
	var lastErrorType string

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		lastErr = err
		result = r

		if !IsRetryable(err) {
			return result, err
		}

		currentErrorType := classifyErrorType(err)
		if currentErrorType == lastErrorType {
			sameErrorCount++
			if cfg.MaxSameErrorType > 0 && sameErrorCount >= cfg.MaxSameErrorType {
				return result, fmt.Errorf("repeated error (%d times, type=%s): %w", sameErrorCount, currentErrorType, err)
			}
		} else {
			sameErrorCount = 1
			lastErrorType = currentErrorType
		}

		if attempt < cfg.MaxRetries {
			if err := wait(ctx, delay, cfg.JitterFactor); err != nil {
				return result, err
			}
			delay = cfg.nextDelay(delay)
		}
	}

	return result, lastErr
}

// RetryableError is an interface for errors that explicitly declare their retryability.
type RetryableError interface {
	error
	IsRetryable() bool
}

// IsRetryable determines if an error is transient and worth retrying.
//
// The function checks errors in this order:
//  1. errors declaring IsRetryable() decide for themselves
//  2. classified privilege, parameter and configuration errors are permanent
//  3. otherwise the message is matched against known transient failures
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	switch {
	case errors.Is(err, apperrors.ErrInsufficientPrivileges),
		errors.Is(err, apperrors.ErrInvalidParameters),
		errors.Is(err, apperrors.ErrConfiguration),
		errors.Is(err, apperrors.ErrUnsupportedFeature):
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range permanentPatterns {
		if strings.Contains(errStr, pattern) {
			return false
		}
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

var permanentPatterns = []string{
	"password authentication failed",
	"access denied",
	"login failed",
	"authentication failed",
	"permission denied",
	"does not exist",
	"unknown database",
}

var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"no route to host",
	"network is unreachable",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"too many clients",
	"the database system is starting up",
	"server closed the connection",
	"unexpected eof",
	"server selection error",
	"connection pool exhausted",
	"database is locked",
	"deadlock",
}

// classifyErrorType extracts a category from error for comparison.
// This is used to detect repeated failures of the same error type.
func classifyErrorType(err error) string {
	if err == nil {
		return "nil"
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "connection reset"):
		return "connection"
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out"):
		return "timeout"
	case strings.Contains(errStr, "broken pipe") || strings.Contains(errStr, "unexpected eof"):
		return "broken_pipe"
	case strings.Contains(errStr, "no such host") || strings.Contains(errStr, "no route to host") || strings.Contains(errStr, "unreachable"):
		return "dns"
	case strings.Contains(errStr, "too many"):
		return "capacity"
	case strings.Contains(errStr, "starting up"):
		return "starting"
	case strings.Contains(errStr, "locked"):
		return "locked"
	}
	return "unknown"
}
