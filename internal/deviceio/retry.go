package deviceio

import (
	"time"

	"go.uber.org/zap"
)

// RetryPolicy controls how many times FileDeviceReader retries a failed
// sector read before falling back to the wipe policy. Uses a fixed
// inter-attempt delay since sector retries, unlike network calls, don't
// need exponential backoff against a shared remote.
type RetryPolicy struct {
	maxAttempts int
	delay       time.Duration
	logger      *zap.Logger
	onRetry     func()
}

type RetryOption func(*RetryPolicy)

// WithMaxRetries sets the number of retries after the first attempt
// (0-255, default 2).
func WithMaxRetries(n int) RetryOption {
	return func(p *RetryPolicy) { p.maxAttempts = n }
}

// WithRetryDelay sets the delay between retry attempts.
func WithRetryDelay(d time.Duration) RetryOption {
	return func(p *RetryPolicy) { p.delay = d }
}

// WithRetryLogger attaches a logger that records each retry attempt.
func WithRetryLogger(l *zap.Logger) RetryOption {
	return func(p *RetryPolicy) { p.logger = l }
}

// WithRetryObserver attaches a callback invoked once per retry attempt, for
// counting retries externally (e.g. a metrics collector) without this
// package depending on any particular metrics backend.
func WithRetryObserver(f func()) RetryOption {
	return func(p *RetryPolicy) { p.onRetry = f }
}

// NewRetryPolicy builds a policy with the tool's default of 2 retries and
// no inter-attempt delay.
func NewRetryPolicy(opts ...RetryOption) *RetryPolicy {
	p := &RetryPolicy{
		maxAttempts: 2,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *RetryPolicy) beforeRetry(attempt int, err error) {
	p.logger.Debug("sector read failed, retrying",
		zap.Int("attempt", attempt+1),
		zap.Int("maxAttempts", p.maxAttempts),
		zap.Error(err))
	if p.onRetry != nil {
		p.onRetry()
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
}
