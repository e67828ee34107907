// Package retry runs an operation with a bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/eapache/go-resiliency/retrier"

	"github.com/valpere/paperdigest/internal/errs"
)

// MaxDelay caps a single backoff sleep.
const MaxDelay = 60 * time.Second

// Config holds the retry budget. MaxRetries counts retries after the first
// attempt, so an operation runs at most MaxRetries+1 times.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
}

type Engine struct {
	cfg     Config
	backoff []time.Duration
	logger  *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Engine {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = 0
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		cfg:     cfg,
		backoff: schedule(cfg),
		logger:  logger,
	}
}

// schedule returns min(base*2^(n-1), MaxDelay) for n = 1..MaxRetries.
func schedule(cfg Config) []time.Duration {
	out := make([]time.Duration, cfg.MaxRetries)
	d := cfg.BaseDelay
	for i := range out {
		if d > MaxDelay {
			d = MaxDelay
		}
		out[i] = d
		if d < MaxDelay {
			d *= 2
		}
	}
	return out
}

// Backoff returns the sleep before each retry.
func (e *Engine) Backoff() []time.Duration {
	return append([]time.Duration(nil), e.backoff...)
}

func (e *Engine) MaxRetries() int {
	return e.cfg.MaxRetries
}

// classifier retries everything except configuration errors and a
// cancelled context.
type classifier struct {
	ctx context.Context
}

func (c classifier) Classify(err error) retrier.Action {
	switch {
	case err == nil:
		return retrier.Succeed
	case c.ctx.Err() != nil,
		errors.Is(err, context.Canceled),
		errs.Is(err, errs.KindConfiguration):
		return retrier.Fail
	default:
		return retrier.Retry
	}
}

// Run calls fn until it succeeds or the budget is spent and returns the last
// error. Sleeps happen only between attempts and end early when ctx is done.
func (e *Engine) Run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	cls := classifier{ctx: ctx}
	r := retrier.New(e.backoff, cls)

	attempt := 0
	err := r.RunCtx(ctx, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || cls.Classify(err) != retrier.Retry {
			return err
		}
		if attempt <= len(e.backoff) {
			e.logger.Warn("attempt failed, retrying",
				"op", op,
				"retry", attempt,
				"max_retries", e.cfg.MaxRetries,
				"delay", e.backoff[attempt-1],
				"error", err)
		}
		return err
	})
	if err != nil {
		e.logger.Error("giving up", "op", op, "attempts", attempt, "error", err)
	}
	return err
}

// Do is Run for operations that produce a value.
func Do[T any](ctx context.Context, e *Engine, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Run(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
