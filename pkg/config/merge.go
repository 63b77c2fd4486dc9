package config

import "dario.cat/mergo"

// mergeMineDefaults overlays user-supplied fields in cfg on top of the
// package defaults, leaving any field the user left zero-valued at its
// default. Mirrors the teacher's built-in/user merge pattern, generalized
// from named registries to a single flat config struct.
func mergeMineDefaults(cfg MineConfig) (MineConfig, error) {
	merged := MineConfig{
		Concurrency: DefaultConcurrency(),
		Limits:      DefaultLimits(),
	}
	if err := mergo.Merge(&merged, cfg, mergo.WithOverride); err != nil {
		return MineConfig{}, err
	}
	return merged, nil
}

// mergeHarnessDefaults applies harness-specific defaults. DockerImage has
// no default here: empty means defer to each task instance's own
// environment.base_image, a deliberate per-task fallback the harness
// itself implements (harness.New).
func mergeHarnessDefaults(cfg HarnessConfig) (HarnessConfig, error) {
	merged := HarnessConfig{
		AgentTimeout: defaultAgentTimeout,
		TestTimeout:  defaultTestTimeout,
		Parallel:     defaultParallel,
	}
	if err := mergo.Merge(&merged, cfg, mergo.WithOverride); err != nil {
		return HarnessConfig{}, err
	}
	return merged, nil
}
