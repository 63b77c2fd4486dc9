// Package config loads and validates configuration for both CLI verbs,
// following the teacher's layered pattern: typed structs with yaml tags
// and validator tags, environment variable expansion, and defaults applied
// after merge, before validation.
package config

import "time"

// MineConfig is the fully resolved configuration for the `mine` verb.
// Field names match spec.md §6's recognized options for `mine`.
type MineConfig struct {
	OutputDir         string         `yaml:"output_dir" validate:"required"`
	PRFile            string         `yaml:"pr_file,omitempty"`
	MaxTasks          int            `yaml:"max_tasks,omitempty" validate:"omitempty,min=1"`
	Difficulty        []string       `yaml:"difficulty,omitempty"`
	DifficultyTargets map[string]int `yaml:"difficulty_targets,omitempty"`
	MinStars          int            `yaml:"min_stars,omitempty" validate:"omitempty,min=0"`
	Languages         []string       `yaml:"languages,omitempty"`
	Model             string         `yaml:"model,omitempty"`
	CacheDB           string         `yaml:"cache_db" validate:"required"`
	Once              bool           `yaml:"once,omitempty"`
	JSON              bool           `yaml:"json,omitempty"`

	Concurrency ConcurrencyConfig `yaml:"concurrency,omitempty"`
	Limits      LimitsConfig      `yaml:"limits,omitempty"`
}

// HarnessConfig is the fully resolved configuration for the `harness` verb.
type HarnessConfig struct {
	InputDir       string        `yaml:"input_dir" validate:"required"`
	AgentDir       string        `yaml:"agent_dir" validate:"required"`
	AgentCmd       []string      `yaml:"agent_cmd" validate:"required,min=1"`
	AgentTimeout   time.Duration `yaml:"agent_timeout,omitempty"`
	TestTimeout    time.Duration `yaml:"test_timeout,omitempty"`
	DockerImage    string        `yaml:"docker_image,omitempty"`
	Parallel       int           `yaml:"parallel,omitempty" validate:"omitempty,min=1"`
	KeepContainers bool          `yaml:"keep_containers,omitempty"`
	JSON           bool          `yaml:"json,omitempty"`
}

// ConcurrencyConfig holds the per-stage semaphore permits of §5.
type ConcurrencyConfig struct {
	Archive int `yaml:"archive,omitempty" validate:"omitempty,min=1"`
	Enrich  int `yaml:"enrich,omitempty" validate:"omitempty,min=1"`
	Pre     int `yaml:"pre,omitempty" validate:"omitempty,min=1"`
	Deep    int `yaml:"deep,omitempty" validate:"omitempty,min=1"`
	// BacklogMultiplier bounds per-stage queue depth as a multiple of that
	// stage's semaphore permits (spec.md §4.11).
	BacklogMultiplier int `yaml:"backlog_multiplier,omitempty" validate:"omitempty,min=1"`
}

// LimitsConfig holds the bounded constants named throughout spec.md §4.7.
type LimitsConfig struct {
	TurnMax           int           `yaml:"turn_max,omitempty" validate:"omitempty,min=1"`
	TurnTimeout       time.Duration `yaml:"turn_timeout,omitempty"`
	OutputMaxBytes    int           `yaml:"output_max_bytes,omitempty" validate:"omitempty,min=1024"`
	ValidationRetries int           `yaml:"validation_retries,omitempty" validate:"omitempty,min=0"`
	QualityMin        float64       `yaml:"quality_min,omitempty" validate:"omitempty,min=0,max=1"`
	RateBudgetPerHour int           `yaml:"rate_budget_per_hour,omitempty" validate:"omitempty,min=1"`
	MaxFiles          int           `yaml:"max_files,omitempty" validate:"omitempty,min=1"`
}

// DefaultConcurrency matches spec.md's stated defaults and resolves Open
// Question (a) in favor of the 10x figure (documented in DESIGN.md).
func DefaultConcurrency() ConcurrencyConfig {
	return ConcurrencyConfig{
		Archive:           8,
		Enrich:            10,
		Pre:               25,
		Deep:              8,
		BacklogMultiplier: 4,
	}
}

// DefaultLimits matches spec.md's stated defaults, including the bounded
// constant chosen for Open Question (c): ValidationRetries = 3.
func DefaultLimits() LimitsConfig {
	return LimitsConfig{
		TurnMax:           200,
		TurnTimeout:       60 * time.Second,
		OutputMaxBytes:    16 * 1024,
		ValidationRetries: 3,
		QualityMin:        0.30,
		RateBudgetPerHour: 5000,
		MaxFiles:          50,
	}
}
