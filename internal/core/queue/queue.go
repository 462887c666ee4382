package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/markdave123-py/talktrack/internal/config"
	"github.com/markdave123-py/talktrack/internal/core"
	"github.com/markdave123-py/talktrack/internal/logger"
)

// ErrBrokerNotConfigured means no usable broker URL was provided. Callers
// run with the pipeline disabled instead of failing.
var ErrBrokerNotConfigured = errors.New("queue broker not configured")

// Options holds the retry policy shared by every backend.
type Options struct {
	MaxAttempts     int
	Backoff         time.Duration
	BlockTimeout    time.Duration
	PromoteInterval time.Duration
	// HeartbeatTTL bounds how long a silent consumer keeps its active jobs
	// before another consumer recovers them.
	HeartbeatTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 5 * time.Second
	}
	if o.BlockTimeout <= 0 {
		o.BlockTimeout = time.Second
	}
	if o.PromoteInterval <= 0 {
		o.PromoteInterval = 500 * time.Millisecond
	}
	if o.HeartbeatTTL <= 0 {
		o.HeartbeatTTL = 30 * time.Second
	}
	return o
}

// backoffFor returns the delay before retry number attempts (1-based):
// Backoff, 2*Backoff, 4*Backoff, ...
func (o Options) backoffFor(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return o.Backoff << (attempts - 1)
}

// retryable reports whether a failed job should be delivered again.
func (o Options) retryable(err error, attempts int) bool {
	return !core.IsPermanent(err) && attempts < o.MaxAttempts
}

// ValidateBrokerURL trims quotes and whitespace and checks the scheme.
func ValidateBrokerURL(raw string) (string, error) {
	u := strings.Trim(strings.TrimSpace(raw), `"'`)
	if u == "" {
		return "", fmt.Errorf("%w: REDIS_URL is empty", ErrBrokerNotConfigured)
	}
	if !strings.HasPrefix(u, "redis://") && !strings.HasPrefix(u, "rediss://") {
		return "", fmt.Errorf("%w: REDIS_URL must start with redis:// or rediss://", ErrBrokerNotConfigured)
	}
	return u, nil
}

// New returns the backend named by QUEUE_BACKEND. When the redis backend
// has no valid URL the error wraps ErrBrokerNotConfigured.
func New(ctx context.Context, cfg *config.Config, log logger.AppLogger) (core.JobQueue, error) {
	opts := Options{MaxAttempts: cfg.QueueMaxAttempts, Backoff: cfg.QueueBackoff}

	switch cfg.QueueBackend {
	case "memory":
		return NewMemoryQueue(64, opts, log), nil
	case "redis", "":
		url, err := ValidateBrokerURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		q, err := NewRedisQueue(ctx, url, cfg.QueueName, opts, log)
		if err != nil {
			return nil, err
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
}
