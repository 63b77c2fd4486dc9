package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prbench/prbench/pkg/candidate"
)

func TestNewConfigFillsDefaults(t *testing.T) {
	cfg := NewConfig(Config{})
	assert.Equal(t, DefaultStagePermits(), cfg.Permits)
	assert.Equal(t, 4, cfg.BacklogMultiplier)
	assert.Equal(t, 30*time.Minute, cfg.CacheRecoverGrace)
	assert.NotEmpty(t, cfg.RepoURLTemplate)
	assert.NotEmpty(t, cfg.BaseImage)
}

func TestDifficultyTargetsMet(t *testing.T) {
	targets := DifficultyTargets{candidate.DifficultyEasy: 2, candidate.DifficultyHard: 1}

	assert.False(t, targets.targetsMet(map[candidate.Difficulty]int{candidate.DifficultyEasy: 1}))
	assert.False(t, targets.targetsMet(map[candidate.Difficulty]int{candidate.DifficultyEasy: 2}))
	assert.True(t, targets.targetsMet(map[candidate.Difficulty]int{
		candidate.DifficultyEasy: 2,
		candidate.DifficultyHard: 1,
	}))

	var empty DifficultyTargets
	assert.False(t, empty.targetsMet(map[candidate.Difficulty]int{candidate.DifficultyEasy: 1000}))
}

func TestCountersSnapshot(t *testing.T) {
	c := NewCounters()
	c.incSeen()
	c.incSeen()
	c.incRejected("bot_author")
	c.incRejected("bot_author")
	c.incFailed("validation_failed")
	c.incExported(candidate.DifficultyEasy)

	summary := c.Snapshot(false)
	assert.Equal(t, 2, summary.Seen)
	assert.Equal(t, 1, summary.Exported)
	assert.Equal(t, 2, summary.RejectedBy["bot_author"])
	assert.Equal(t, 1, summary.FailedBy["validation_failed"])
	assert.Equal(t, 1, summary.ExportedBy[candidate.DifficultyEasy])
}

func TestLLMBudgetEnforcesDailyCap(t *testing.T) {
	budget := NewLLMBudget(1, 0)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, budget.Acquire(context.Background(), now))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := budget.Acquire(ctx, now)
	assert.Error(t, err, "second acquire should block past the daily cap and time out")
}

func TestLLMBudgetResetsOnNewDay(t *testing.T) {
	budget := NewLLMBudget(1, 0)
	day1 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 2, 0, 0, 1, 0, time.UTC)

	require.NoError(t, budget.Acquire(context.Background(), day1))
	require.NoError(t, budget.Acquire(context.Background(), day2))
}
