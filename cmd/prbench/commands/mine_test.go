package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prbench/prbench/pkg/candidate"
	"github.com/prbench/prbench/pkg/pipeline"
)

func TestParseDifficultyTargets(t *testing.T) {
	targets, err := parseDifficultyTargets("easy=20,medium=15,hard=5")
	require.NoError(t, err)
	assert.Equal(t, pipeline.DifficultyTargets{
		candidate.DifficultyEasy:   20,
		candidate.DifficultyMedium: 15,
		candidate.DifficultyHard:   5,
	}, targets)
}

func TestParseDifficultyTargetsEmpty(t *testing.T) {
	targets, err := parseDifficultyTargets("")
	require.NoError(t, err)
	assert.Nil(t, targets)
}

func TestParseDifficultyTargetsRejectsMalformed(t *testing.T) {
	_, err := parseDifficultyTargets("easy")
	assert.Error(t, err)

	_, err = parseDifficultyTargets("impossible=3")
	assert.Error(t, err)

	_, err = parseDifficultyTargets("easy=notanumber")
	assert.Error(t, err)
}

func TestApplyDifficultyAllowlistNoRestriction(t *testing.T) {
	targets, err := applyDifficultyAllowlist(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, targets)
}

func TestApplyDifficultyAllowlistZerosExcludedLabels(t *testing.T) {
	targets, err := applyDifficultyAllowlist(nil, []string{"hard"})
	require.NoError(t, err)
	assert.Equal(t, 0, targets[candidate.DifficultyEasy])
	assert.Equal(t, 0, targets[candidate.DifficultyMedium])
	_, hardPresent := targets[candidate.DifficultyHard]
	assert.False(t, hardPresent, "allowed label should stay unbounded when difficulty_targets gave it no count")
}

func TestApplyDifficultyAllowlistPreservesExplicitCounts(t *testing.T) {
	explicit := pipeline.DifficultyTargets{candidate.DifficultyHard: 5}
	targets, err := applyDifficultyAllowlist(explicit, []string{"hard"})
	require.NoError(t, err)
	assert.Equal(t, 5, targets[candidate.DifficultyHard])
	assert.Equal(t, 0, targets[candidate.DifficultyEasy])
}

func TestApplyDifficultyAllowlistRejectsUnknownLabel(t *testing.T) {
	_, err := applyDifficultyAllowlist(nil, []string{"impossible"})
	assert.Error(t, err)
}
