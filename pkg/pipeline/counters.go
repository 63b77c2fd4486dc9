package pipeline

import (
	"sync"

	"github.com/prbench/prbench/pkg/candidate"
)

// Counters is the pipeline's only other piece of shared mutable state
// besides the PrCache and the rate limiter (spec.md §5). Internally
// synchronized; safe for concurrent use from every stage goroutine.
type Counters struct {
	mu          sync.Mutex
	seen        int
	rejected    map[string]int // rejection reason -> count
	failed      map[string]int // failure reason -> count
	exported    int
	exportedBy  map[candidate.Difficulty]int
}

// NewCounters returns a zeroed Counters.
func NewCounters() *Counters {
	return &Counters{
		rejected:   make(map[string]int),
		failed:     make(map[string]int),
		exportedBy: make(map[candidate.Difficulty]int),
	}
}

func (c *Counters) incSeen() {
	c.mu.Lock()
	c.seen++
	c.mu.Unlock()
}

func (c *Counters) incRejected(reason string) {
	c.mu.Lock()
	c.rejected[reason]++
	c.mu.Unlock()
}

func (c *Counters) incFailed(reason string) {
	c.mu.Lock()
	c.failed[reason]++
	c.mu.Unlock()
}

func (c *Counters) incExported(d candidate.Difficulty) {
	c.mu.Lock()
	c.exported++
	c.exportedBy[d]++
	c.mu.Unlock()
}

// ExportedByDifficulty returns a snapshot of counts-so-far per difficulty,
// used by the admission-control check ("stops admitting new candidates to
// deep processing once all targets are met").
func (c *Counters) ExportedByDifficulty() map[candidate.Difficulty]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[candidate.Difficulty]int, len(c.exportedBy))
	for d, n := range c.exportedBy {
		out[d] = n
	}
	return out
}

// Summary is the final report spec.md §7 requires: "a final summary with
// counts by rejection reason."
type Summary struct {
	Seen           int
	Exported       int
	ExportedBy     map[candidate.Difficulty]int
	RejectedBy     map[string]int
	FailedBy       map[string]int
	TargetsMet     bool
}

// Snapshot renders the current Counters into a Summary.
func (c *Counters) Snapshot(targetsMet bool) Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	rejected := make(map[string]int, len(c.rejected))
	for k, v := range c.rejected {
		rejected[k] = v
	}
	failed := make(map[string]int, len(c.failed))
	for k, v := range c.failed {
		failed[k] = v
	}
	exportedBy := make(map[candidate.Difficulty]int, len(c.exportedBy))
	for k, v := range c.exportedBy {
		exportedBy[k] = v
	}
	return Summary{
		Seen:       c.seen,
		Exported:   c.exported,
		ExportedBy: exportedBy,
		RejectedBy: rejected,
		FailedBy:   failed,
		TargetsMet: targetsMet,
	}
}
