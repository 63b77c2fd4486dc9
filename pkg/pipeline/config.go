// Package pipeline implements the Orchestrator (spec.md §4.11): a
// streaming composition of every mining stage connected by bounded Go
// channels instead of chunked barriers, with one semaphore per stage
// guarding its concurrency. Grounded on the teacher's WorkerPool/Worker
// pair (pkg/queue/pool.go, pkg/queue/worker.go): the same start/stop and
// graceful-drain shape, generalized from a
// DB-polling claim loop over ent/Postgres session rows to an in-memory
// fan-out over a live candidate stream with no backing database.
package pipeline

import (
	"time"

	"github.com/prbench/prbench/pkg/candidate"
	"github.com/prbench/prbench/pkg/testgen"
)

// StagePermits is the semaphore discipline of spec.md §5: one semaphore
// per stage, permits {archive, enrich, pre, deep}.
type StagePermits struct {
	Archive int64
	Enrich  int64
	Pre     int64
	Deep    int64
}

// DefaultStagePermits mirrors the defaults named across spec.md §4: 8-way
// archive fan-out, 10 enrichment and 25 classification workers, and a
// smaller deep-processing concurrency of 8 since each deep session holds a
// whole container plus an LLM budget slot.
func DefaultStagePermits() StagePermits {
	return StagePermits{Archive: 8, Enrich: 10, Pre: 25, Deep: 8}
}

// DifficultyTargets is {easy: N1, medium: N2, hard: N3} from spec.md §6's
// mine CLI option of the same name. A nil or empty map means "no target,
// run until the source is exhausted or max_tasks is hit".
type DifficultyTargets map[candidate.Difficulty]int

// Config holds everything the Orchestrator needs beyond its stage
// dependencies (the Deps it is constructed with).
type Config struct {
	Permits           StagePermits
	BacklogMultiplier int // queue depth per stage = BacklogMultiplier * stage permits
	DifficultyTargets DifficultyTargets
	MaxTasks          int // 0 means unbounded; stops admitting once reached regardless of DifficultyTargets
	Model             string
	QMin              float64
	CacheRecoverGrace time.Duration
	RepoURLTemplate   string // e.g. "https://github.com/%s/%s.git"
	BaseImage         string
	SetupCommands     []string
	TestgenLimits     testgen.Config // turn/timeout/output/validation bounds passed to every TestGenerator session
}

// NewConfig fills zero-value fields with spec.md's stated defaults.
func NewConfig(cfg Config) Config {
	if cfg.Permits == (StagePermits{}) {
		cfg.Permits = DefaultStagePermits()
	}
	if cfg.BacklogMultiplier <= 0 {
		cfg.BacklogMultiplier = 4
	}
	if cfg.CacheRecoverGrace <= 0 {
		cfg.CacheRecoverGrace = 30 * time.Minute
	}
	if cfg.RepoURLTemplate == "" {
		cfg.RepoURLTemplate = "https://github.com/%s/%s.git"
	}
	if cfg.BaseImage == "" {
		cfg.BaseImage = "ubuntu-multi:latest"
	}
	return cfg
}

// targetsMet reports whether every configured difficulty target has been
// reached by counts.
func (t DifficultyTargets) targetsMet(counts map[candidate.Difficulty]int) bool {
	if len(t) == 0 {
		return false
	}
	for d, target := range t {
		if counts[d] < target {
			return false
		}
	}
	return true
}
