package fetchlib

import (
	"sync"
	"time"
)

// Unlimited is the Budget limit meaning no execution time limit.
const Unlimited time.Duration = 0

// minRestoredLimit is the smallest limit handed back after a blocking call,
// so a nearly exhausted budget is not turned into Unlimited.
const minRestoredLimit = time.Second

// Budget is the execution-time budget of the surrounding process. Send and
// Session.Start lift the limit while they block and hand back the unused
// part afterwards.
type Budget interface {
	// Limit returns the current limit, Unlimited for none.
	Limit() time.Duration
	// Elapsed returns the time consumed since the limit was last set.
	Elapsed() time.Duration
	// SetLimit installs a new limit and restarts the elapsed clock.
	SetLimit(d time.Duration)
}

// ClockBudget is a wall-clock Budget.
type ClockBudget struct {
	mu    sync.Mutex
	limit time.Duration
	start time.Time
	now   func() time.Time
}

// NewClockBudget returns a budget of limit starting now.
func NewClockBudget(limit time.Duration) *ClockBudget {
	b := &ClockBudget{now: time.Now}
	b.SetLimit(limit)
	return b
}

func (b *ClockBudget) Limit() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit
}

func (b *ClockBudget) Elapsed() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().Sub(b.start)
}

func (b *ClockBudget) SetLimit(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limit = d
	b.start = b.now()
}

// Remaining returns the unused part of the limit, which is negative once
// the budget is exceeded. It returns Unlimited when no limit is set.
func (b *ClockBudget) Remaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit == Unlimited {
		return Unlimited
	}
	return b.limit - b.now().Sub(b.start)
}

// Expired reports whether a concrete limit has been used up.
func (b *ClockBudget) Expired() bool {
	return b.Limit() != Unlimited && b.Remaining() <= 0
}

// suspendBudget lifts the limit of b and returns the function restoring it.
// The restored limit is what remained when suspendBudget was called, with a
// floor of minRestoredLimit. A nil budget is a no-op.
func suspendBudget(b Budget) (restore func()) {
	if b == nil {
		return func() {}
	}
	limit := b.Limit()
	elapsed := b.Elapsed()
	b.SetLimit(Unlimited)
	return func() {
		if limit == Unlimited {
			b.SetLimit(Unlimited)
			return
		}
		remaining := limit - elapsed
		if remaining < minRestoredLimit {
			remaining = minRestoredLimit
		}
		b.SetLimit(remaining)
	}
}
