package config

import "fmt"

// validateMineConfig checks the fields LoadMineConfig cannot default its
// way out of: the paths the operator must supply, plus the ranges of
// difficulty labels, min_stars, quality_min and concurrency.
func validateMineConfig(cfg *MineConfig) error {
	if cfg.OutputDir == "" {
		return NewValidationError("mine", "output_dir", "", ErrMissingRequiredField)
	}
	if cfg.CacheDB == "" {
		return NewValidationError("mine", "cache_db", "", ErrMissingRequiredField)
	}
	for _, d := range cfg.Difficulty {
		switch d {
		case "easy", "medium", "hard":
		default:
			return NewValidationError("mine", "difficulty", "", fmt.Errorf("%w: %q", ErrInvalidValue, d))
		}
	}
	if cfg.MinStars < 0 {
		return NewValidationError("mine", "min_stars", "", ErrInvalidValue)
	}
	if cfg.Limits.QualityMin < 0 || cfg.Limits.QualityMin > 1 {
		return NewValidationError("mine", "limits.quality_min", "", ErrInvalidValue)
	}
	if err := validateConcurrency(cfg.Concurrency); err != nil {
		return err
	}
	return nil
}

func validateConcurrency(c ConcurrencyConfig) error {
	for name, v := range map[string]int{
		"archive":            c.Archive,
		"enrich":             c.Enrich,
		"pre":                c.Pre,
		"deep":               c.Deep,
		"backlog_multiplier": c.BacklogMultiplier,
	} {
		if v < 1 {
			return NewValidationError("mine", "concurrency."+name, "", fmt.Errorf("%w: must be >= 1, got %d", ErrInvalidValue, v))
		}
	}
	return nil
}

// validateHarnessConfig checks the fields LoadHarnessConfig cannot default
// its way out of.
func validateHarnessConfig(cfg *HarnessConfig) error {
	if cfg.InputDir == "" {
		return NewValidationError("harness", "input_dir", "", ErrMissingRequiredField)
	}
	if cfg.AgentDir == "" {
		return NewValidationError("harness", "agent_dir", "", ErrMissingRequiredField)
	}
	if len(cfg.AgentCmd) == 0 {
		return NewValidationError("harness", "agent_cmd", "", ErrMissingRequiredField)
	}
	if cfg.Parallel < 1 {
		return NewValidationError("harness", "parallel", "", ErrInvalidValue)
	}
	return nil
}
