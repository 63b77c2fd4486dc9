package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Harness-side defaults, referenced by mergeHarnessDefaults. Mine-side
// defaults live next to their structs in types.go since every field there
// is itself a struct (DefaultConcurrency/DefaultLimits); these three are
// scalars with no natural home besides the loader that applies them.
const (
	defaultAgentTimeout = 30 * time.Minute
	defaultTestTimeout  = 5 * time.Minute
	defaultParallel     = 4
)

// LoadMineConfig reads an optional YAML file at path (empty path skips the
// read), expands ${VAR}/$VAR environment references, merges CLI-flag
// overrides on top, applies package defaults for anything still unset, and
// validates the result. Mirrors the teacher's load -> merge -> validate
// pipeline, collapsed from multi-file registries to one flat struct.
func LoadMineConfig(path string, overrides MineConfig) (*MineConfig, error) {
	var fromFile MineConfig
	if path != "" {
		if err := loadYAMLFile(path, &fromFile); err != nil {
			return nil, err
		}
	}

	merged, err := mergeMineDefaults(overlayMine(fromFile, overrides))
	if err != nil {
		return nil, fmt.Errorf("merging mine config: %w", err)
	}

	if err := validateMineConfig(&merged); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	slog.Info("mine configuration loaded",
		"output_dir", merged.OutputDir,
		"cache_db", merged.CacheDB,
		"difficulty", merged.Difficulty)

	return &merged, nil
}

// LoadHarnessConfig is LoadMineConfig's counterpart for the harness verb.
func LoadHarnessConfig(path string, overrides HarnessConfig) (*HarnessConfig, error) {
	var fromFile HarnessConfig
	if path != "" {
		if err := loadYAMLFile(path, &fromFile); err != nil {
			return nil, err
		}
	}

	merged, err := mergeHarnessDefaults(overlayHarness(fromFile, overrides))
	if err != nil {
		return nil, fmt.Errorf("merging harness config: %w", err)
	}

	if err := validateHarnessConfig(&merged); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	slog.Info("harness configuration loaded",
		"input_dir", merged.InputDir,
		"agent_dir", merged.AgentDir,
		"parallel", merged.Parallel)

	return &merged, nil
}

// overlayMine lets non-zero fields in overrides (typically CLI flags) win
// over whatever the YAML file set, field by field. A full mergo pass isn't
// used here because overrides arrives already flag-populated with its own
// zero values meaning "not set by the user", same as the file.
func overlayMine(file, overrides MineConfig) MineConfig {
	out := file
	if overrides.OutputDir != "" {
		out.OutputDir = overrides.OutputDir
	}
	if overrides.PRFile != "" {
		out.PRFile = overrides.PRFile
	}
	if overrides.MaxTasks != 0 {
		out.MaxTasks = overrides.MaxTasks
	}
	if len(overrides.Difficulty) > 0 {
		out.Difficulty = overrides.Difficulty
	}
	if len(overrides.DifficultyTargets) > 0 {
		out.DifficultyTargets = overrides.DifficultyTargets
	}
	if overrides.MinStars != 0 {
		out.MinStars = overrides.MinStars
	}
	if len(overrides.Languages) > 0 {
		out.Languages = overrides.Languages
	}
	if overrides.Model != "" {
		out.Model = overrides.Model
	}
	if overrides.CacheDB != "" {
		out.CacheDB = overrides.CacheDB
	}
	out.Once = out.Once || overrides.Once
	out.JSON = out.JSON || overrides.JSON

	if overrides.Concurrency.Archive != 0 {
		out.Concurrency.Archive = overrides.Concurrency.Archive
	}
	if overrides.Concurrency.Enrich != 0 {
		out.Concurrency.Enrich = overrides.Concurrency.Enrich
	}
	if overrides.Concurrency.Pre != 0 {
		out.Concurrency.Pre = overrides.Concurrency.Pre
	}
	if overrides.Concurrency.Deep != 0 {
		out.Concurrency.Deep = overrides.Concurrency.Deep
	}
	if overrides.Concurrency.BacklogMultiplier != 0 {
		out.Concurrency.BacklogMultiplier = overrides.Concurrency.BacklogMultiplier
	}

	if overrides.Limits.TurnMax != 0 {
		out.Limits.TurnMax = overrides.Limits.TurnMax
	}
	if overrides.Limits.TurnTimeout != 0 {
		out.Limits.TurnTimeout = overrides.Limits.TurnTimeout
	}
	if overrides.Limits.OutputMaxBytes != 0 {
		out.Limits.OutputMaxBytes = overrides.Limits.OutputMaxBytes
	}
	if overrides.Limits.ValidationRetries != 0 {
		out.Limits.ValidationRetries = overrides.Limits.ValidationRetries
	}
	if overrides.Limits.QualityMin != 0 {
		out.Limits.QualityMin = overrides.Limits.QualityMin
	}
	if overrides.Limits.RateBudgetPerHour != 0 {
		out.Limits.RateBudgetPerHour = overrides.Limits.RateBudgetPerHour
	}
	if overrides.Limits.MaxFiles != 0 {
		out.Limits.MaxFiles = overrides.Limits.MaxFiles
	}

	return out
}

func overlayHarness(file, overrides HarnessConfig) HarnessConfig {
	out := file
	if overrides.InputDir != "" {
		out.InputDir = overrides.InputDir
	}
	if overrides.AgentDir != "" {
		out.AgentDir = overrides.AgentDir
	}
	if len(overrides.AgentCmd) > 0 {
		out.AgentCmd = overrides.AgentCmd
	}
	if overrides.AgentTimeout != 0 {
		out.AgentTimeout = overrides.AgentTimeout
	}
	if overrides.TestTimeout != 0 {
		out.TestTimeout = overrides.TestTimeout
	}
	if overrides.DockerImage != "" {
		out.DockerImage = overrides.DockerImage
	}
	if overrides.Parallel != 0 {
		out.Parallel = overrides.Parallel
	}
	out.KeepContainers = out.KeepContainers || overrides.KeepContainers
	out.JSON = out.JSON || overrides.JSON
	return out
}

func loadYAMLFile(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return NewLoadError(path, err)
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	return nil
}
