package pipeline

import (
	"context"
	"sync"
	"time"
)

// LLMBudget is the daily/monthly LLM call cap spec.md §5 names as a
// resource deep processing acquires alongside a deep permit and a
// container: "LLM calls have a separate budget tracker with daily and
// monthly caps; when exhausted, new deep sessions block until reset or
// the pipeline exits." Zero caps mean unlimited.
type LLMBudget struct {
	dailyCap   int
	monthlyCap int

	mu          sync.Mutex
	dailyUsed   int
	monthlyUsed int
	day         string
	month       string
}

// NewLLMBudget builds a tracker with the given caps. A non-positive cap
// disables that cap's check.
func NewLLMBudget(dailyCap, monthlyCap int) *LLMBudget {
	return &LLMBudget{dailyCap: dailyCap, monthlyCap: monthlyCap}
}

// Acquire blocks until a deep session is permitted to spend LLM budget,
// or ctx is cancelled. It rolls the day/month counters over against now
// and reports whether a slot was granted without ever spending more than
// the configured caps.
func (b *LLMBudget) Acquire(ctx context.Context, now time.Time) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		if b.tryReserve(now) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now = time.Now()
		}
	}
}

func (b *LLMBudget) tryReserve(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	day := now.Format("2006-01-02")
	month := now.Format("2006-01")
	if day != b.day {
		b.day = day
		b.dailyUsed = 0
	}
	if month != b.month {
		b.month = month
		b.monthlyUsed = 0
	}

	if b.dailyCap > 0 && b.dailyUsed >= b.dailyCap {
		return false
	}
	if b.monthlyCap > 0 && b.monthlyUsed >= b.monthlyCap {
		return false
	}

	b.dailyUsed++
	b.monthlyUsed++
	return true
}

// Release is a no-op: budget usage is monotonic within a day/month, not a
// concurrency slot, so there is nothing to give back. It exists so
// callers can acquire/release the three deep-processing resources
// (permit, container, budget) symmetrically in LIFO order per spec.md §5.
func (b *LLMBudget) Release() {}
