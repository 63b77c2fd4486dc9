package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/prbench/prbench/pkg/candidate"
)

func TestLimitsValidRequiresEveryField(t *testing.T) {
	full := Limits{CPUQuota: 100000, MemoryBytes: 1 << 30, PIDs: 128, StorageMB: 1024, Network: NetworkInternal}
	assert.True(t, full.Valid())

	cases := []struct {
		name string
		l    Limits
	}{
		{"zero value", Limits{}},
		{"missing cpu quota", Limits{MemoryBytes: 1 << 30, PIDs: 128, StorageMB: 1024, Network: NetworkInternal}},
		{"missing memory", Limits{CPUQuota: 100000, PIDs: 128, StorageMB: 1024, Network: NetworkInternal}},
		{"missing pids", Limits{CPUQuota: 100000, MemoryBytes: 1 << 30, StorageMB: 1024, Network: NetworkInternal}},
		{"missing storage", Limits{CPUQuota: 100000, MemoryBytes: 1 << 30, PIDs: 128, Network: NetworkInternal}},
		{"missing network", Limits{CPUQuota: 100000, MemoryBytes: 1 << 30, PIDs: 128, StorageMB: 1024}},
		{"negative cpu quota", Limits{CPUQuota: -1, MemoryBytes: 1 << 30, PIDs: 128, StorageMB: 1024, Network: NetworkInternal}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, tc.l.Valid())
		})
	}
}

func TestLimitsForDifficultyAreAlwaysValid(t *testing.T) {
	for _, d := range []candidate.Difficulty{candidate.DifficultyEasy, candidate.DifficultyMedium, candidate.DifficultyHard, candidate.Difficulty("unknown")} {
		assert.True(t, LimitsForDifficulty(d).Valid(), "difficulty %q must produce valid limits", d)
	}
}

func TestLimitsForDifficultyScalesUpWithDifficulty(t *testing.T) {
	easy := LimitsForDifficulty(candidate.DifficultyEasy)
	medium := LimitsForDifficulty(candidate.DifficultyMedium)
	hard := LimitsForDifficulty(candidate.DifficultyHard)

	assert.Less(t, easy.MemoryBytes, medium.MemoryBytes)
	assert.Less(t, medium.MemoryBytes, hard.MemoryBytes)
	assert.Less(t, easy.PIDs, hard.PIDs)
}
