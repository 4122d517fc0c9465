// Package ratelimiter throttles how fast the accept loop hands new
// connections to the worker pool.
package ratelimiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket over accepted connections.
//
// A nil *Limiter is valid and never throttles, so callers can hold one
// unconditionally:
//
//	lim := ratelimiter.New(cfg.AcceptRate, cfg.AcceptBurst) // nil when rate is 0
//	for {
//	    conn, err := ln.Accept()
//	    ...
//	    if err := lim.Wait(ctx); err != nil {
//	        conn.Close()
//	        return
//	    }
//	}
//
// Connections over the rate are delayed, never dropped.
//
// Thread safety:
// All methods are safe for concurrent use.
type Limiter struct {
	limiter *rate.Limiter
}

// New returns a limiter admitting perSecond connections per second with
// bursts of up to burst. It returns nil, meaning unlimited, when perSecond
// is zero or negative. A burst below 1 is raised to 1 so that Wait can
// always make progress.
func New(perSecond float64, burst int) *Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Enabled reports whether the limiter throttles at all.
func (l *Limiter) Enabled() bool {
	return l != nil
}

// Wait blocks until a token is available or ctx ends.
//
// Returns:
//   - nil once a token was consumed
//   - the context error if ctx ended first
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	return l.limiter.Wait(ctx)
}

// Delay returns how long the next Wait would block right now, without
// consuming a token. The accept loop logs it before waiting.
func (l *Limiter) Delay() time.Duration {
	if l == nil {
		return 0
	}
	r := l.limiter.ReserveN(time.Now(), 1)
	if !r.OK() {
		return 0
	}
	d := r.Delay()
	r.Cancel()
	return d
}
