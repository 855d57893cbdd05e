package timeouts

import (
	"context"
	"time"
)

const (
	// DefaultConnectTimeout bounds opening one physical database handle.
	DefaultConnectTimeout = 15 * time.Second
	// MaxStatementTimeout caps the per-statement busy timeout a session may set.
	MaxStatementTimeout = 10 * time.Minute
)

// WithConnectTimeout enforces a timeout only when the parent context lacks a deadline.
func WithConnectTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return withTimeout(ctx, timeout)
}

// WithStatementTimeout applies a session's busy timeout to one statement,
// again only when the parent context lacks a deadline. A non-positive
// timeout leaves the context unbounded.
func WithStatementTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		if ctx == nil {
			ctx = context.Background()
		}
		return ctx, func() {}
	}
	if timeout > MaxStatementTimeout {
		timeout = MaxStatementTimeout
	}
	return withTimeout(ctx, timeout)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), timeout)
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
