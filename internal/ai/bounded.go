package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Observer is told about every finished model call.
type Observer func(kind Kind, elapsed time.Duration, err error)

// Bounded wraps an Inferrer with a per-call timeout and a request rate limit so a slow or
// throttled model can never stall the pipeline.
type Bounded struct {
	next    Inferrer
	timeout time.Duration
	limiter *rate.Limiter
	observe Observer
	logger  *zap.Logger
}

// BoundedOption configures a Bounded inferrer.
type BoundedOption func(*Bounded)

// WithRequestsPerMinute limits the call rate. Non-positive values disable the limit.
func WithRequestsPerMinute(rpm, burst int) BoundedOption {
	return func(b *Bounded) {
		if rpm <= 0 {
			b.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
	}
}

// WithObserver registers a callback for finished calls.
func WithObserver(observe Observer) BoundedOption {
	return func(b *Bounded) {
		b.observe = observe
	}
}

// NewBounded wraps next. A nil next makes every call fail with ErrUnavailable, which is how a
// configured but unreachable model is represented.
func NewBounded(next Inferrer, timeout time.Duration, logger *zap.Logger, opts ...BoundedOption) *Bounded {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bounded{next: next, timeout: timeout, logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Infer forwards the request within the configured rate and timeout. The timeout covers the
// wait for a rate-limit slot too; a call that cannot start or finish in time is reported as
// ErrUnavailable.
func (b *Bounded) Infer(ctx context.Context, kind Kind, text string, schema Schema) (*Result, error) {
	if b == nil {
		return nil, ErrUnavailable
	}
	if b.next == nil {
		if b.observe != nil {
			b.observe(kind, 0, ErrUnavailable)
		}
		return nil, ErrUnavailable
	}

	callCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	if b.limiter != nil {
		if err := b.limiter.Wait(callCtx); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("wait for model rate limit: %w", ctx.Err())
			}
			err = fmt.Errorf("%w: %s rate limited: %v", ErrUnavailable, kind, err)
			if b.observe != nil {
				b.observe(kind, 0, err)
			}
			b.logger.Debug("model call skipped", zap.String("kind", string(kind)), zap.Error(err))
			return nil, err
		}
	}

	started := time.Now()
	result, err := b.next.Infer(callCtx, kind, text, schema)
	elapsed := time.Since(started)

	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %s timed out after %s", ErrUnavailable, kind, b.timeout)
	}

	if b.observe != nil {
		b.observe(kind, elapsed, err)
	}

	if err != nil {
		b.logger.Debug("model call failed", zap.String("kind", string(kind)), zap.Duration("elapsed", elapsed), zap.Error(err))
		return nil, err
	}

	b.logger.Debug("model call finished", zap.String("kind", string(kind)), zap.Duration("elapsed", elapsed))
	return result, nil
}

// Provider names the wrapped provider, if it tells.
func (b *Bounded) Provider() string {
	if d, ok := b.next.(Describer); ok {
		return d.Provider()
	}
	return ""
}

// Model names the wrapped model, if it tells.
func (b *Bounded) Model() string {
	if d, ok := b.next.(Describer); ok {
		return d.Model()
	}
	return ""
}
