package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Default settings used when Config leaves a field at its zero value.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	// MaxMultiplier caps the doubling of the base delay.
	MaxMultiplier = 8
)

// Config controls the retry loop.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// RetryFunc observes a failed attempt that is about to be retried after delay.
type RetryFunc func(attempt int, err error, delay time.Duration)

// Caller runs operations with bounded retries. It carries no per-call state
// and is safe for concurrent use.
type Caller struct {
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
	onRetry     RetryFunc
}

// Option customises a Caller.
type Option func(*Caller)

// WithOnRetry registers an observer called before each retry delay.
func WithOnRetry(fn RetryFunc) Option {
	return func(c *Caller) {
		c.onRetry = fn
	}
}

// NewCaller creates a Caller from cfg.
func NewCaller(cfg Config, logger *slog.Logger, opts ...Option) *Caller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = 0
	} else if cfg.BaseDelay == 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}

	c := &Caller{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		logger:      logger.With("component", "retry"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Delay returns the wait before the given 1-based retry:
// baseDelay * min(2^(retry-1), MaxMultiplier).
func (c *Caller) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	multiplier := 1
	for i := 1; i < retry && multiplier < MaxMultiplier; i++ {
		multiplier *= 2
	}
	if multiplier > MaxMultiplier {
		multiplier = MaxMultiplier
	}
	return c.baseDelay * time.Duration(multiplier)
}

// cappedBackOff is a backoff.BackOff producing the Caller's delay sequence.
type cappedBackOff struct {
	caller *Caller
	n      int
}

func (b *cappedBackOff) Reset() { b.n = 0 }

func (b *cappedBackOff) NextBackOff() time.Duration {
	b.n++
	return b.caller.Delay(b.n)
}

// Do runs op until it succeeds, fails permanently or the attempt budget is
// used up. The last observed failure is returned. Cancelling ctx stops any
// pending wait.
func Do[T any](ctx context.Context, c *Caller, op func(ctx context.Context) (T, error)) (T, error) {
	var (
		attempt int
		lastErr error
		zero    T
	)

	operation := func() (T, error) {
		attempt++
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err

		class := Classify(err)
		if !class.Retryable() {
			c.logger.DebugContext(ctx, "permanent failure, not retrying",
				"attempt", attempt,
				"error", err)
			return zero, backoff.Permanent(err)
		}
		return zero, fmt.Errorf("%s failure: %w", class, err)
	}

	notify := func(err error, delay time.Duration) {
		c.logger.WarnContext(ctx, "backend call failed, retrying",
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"delay", delay,
			"error", lastErr)
		if c.onRetry != nil {
			c.onRetry(attempt, lastErr, delay)
		}
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(&cappedBackOff{caller: c}),
		backoff.WithMaxTries(uint(c.maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err == nil {
		return res, nil
	}

	// Cancellation of the caller's context ends the loop with its cause.
	if ctxErr := context.Cause(ctx); ctxErr != nil && !errors.Is(err, lastErr) {
		return zero, ctxErr
	}
	if lastErr == nil {
		return zero, ErrExhausted
	}
	return zero, lastErr
}
