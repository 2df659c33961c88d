// Package ratelimit serializes all outbound archive requests behind a
// minimum inter-request interval. The interval is a hard requirement of
// the archive's terms of use and is deliberately not configurable.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MinInterval is the minimum wall-clock gap between throttled operations.
const MinInterval = 5 * time.Second

// Limiter is the single serialization point for remote traffic. All
// fetching call sites share one Limiter.
type Limiter struct {
	mu      sync.Mutex // serializes throttled operations
	stateMu sync.Mutex // guards last for advisory reads
	last    time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New() *Limiter {
	return &Limiter{
		now:   time.Now,
		sleep: sleepContext,
	}
}

// Throttle waits for this caller's turn, runs op, and returns its error.
// The operation slot is held for the whole call, so while one operation
// is waiting or executing every other caller blocks. The last-request
// timestamp advances even when op fails, so a failing call cannot enable
// a burst. A context cancelled during the wait returns before op runs
// and does not advance the timestamp.
func (l *Limiter) Throttle(ctx context.Context, op func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stateMu.Lock()
	last := l.last
	l.stateMu.Unlock()

	if !last.IsZero() {
		if wait := MinInterval - l.now().Sub(last); wait > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	defer func() {
		l.stateMu.Lock()
		l.last = l.now()
		l.stateMu.Unlock()
	}()

	return op()
}

// TimeUntilNext reports how long a new caller would wait right now. It
// does not consume a slot and may be stale by the time it is read;
// advisory use only.
func (l *Limiter) TimeUntilNext() time.Duration {
	l.stateMu.Lock()
	last := l.last
	l.stateMu.Unlock()

	if last.IsZero() {
		return 0
	}
	if wait := MinInterval - l.now().Sub(last); wait > 0 {
		return wait
	}
	return 0
}

// Reset clears the last-request timestamp. Test and debug use only.
func (l *Limiter) Reset() {
	l.stateMu.Lock()
	l.last = time.Time{}
	l.stateMu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
