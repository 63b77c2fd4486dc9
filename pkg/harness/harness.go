// Package harness implements EvaluationHarness (spec.md §4.12): replaying
// an exported task instance against an external coding agent inside a
// fresh, disposable container, then verifying its patch against the
// dual-commit test oracle. Grounded on pkg/sandbox for container
// lifecycle (itself grounded on the teacher's test/util/database.go
// testcontainers-go usage) and on pkg/testgen/validate.go's
// checkCommit/resetWorkspace shape for the sanity and verify passes,
// since both are "run these commands, compare exit codes" primitives.
package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/prbench/prbench/pkg/bencherrors"
	"github.com/prbench/prbench/pkg/candidate"
	"github.com/prbench/prbench/pkg/metrics"
	"github.com/prbench/prbench/pkg/sandbox"
)

// Status is the closed set of per-task harness outcomes spec.md §4.12
// names.
type Status string

const (
	StatusResolved   Status = "resolved"
	StatusUnresolved Status = "unresolved"
	StatusAgentError Status = "agent_error"
	StatusTestError  Status = "test_error"
	StatusSetupError Status = "setup_error"
	StatusSanityFail Status = "sanity_fail"
)

// Agent invokes an external coding agent against a mounted repository
// with a sanitized prompt. Implementations shell out to agent_cmd inside
// agent_dir per spec.md §6's harness CLI options.
type Agent interface {
	Run(ctx context.Context, prompt string, repoDir string) error
}

// Config bounds one task's evaluation run.
type Config struct {
	AgentTimeout   time.Duration
	CommandTimeout time.Duration // per fail_to_pass/pass_to_pass command, independent of AgentTimeout
	KeepContainers bool
}

const (
	defaultAgentTimeout   = 30 * time.Minute
	defaultCommandTimeout = 5 * time.Minute
)

// NewConfig fills unset fields with spec.md §5's "per-command timeout is
// independent of agent timeout" defaults.
func NewConfig(cfg Config) Config {
	if cfg.AgentTimeout <= 0 {
		cfg.AgentTimeout = defaultAgentTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	return cfg
}

// CommandResult is one command's outcome, included in Result for the
// harness's per-task JSON record (spec.md §7: "one JSON record per task
// with its status and per-command detail").
type CommandResult struct {
	Command      string  `json:"command"`
	ExitCode     int     `json:"exit_code"`
	Passed       bool    `json:"passed"`
	DurationSecs float64 `json:"duration_secs"`
}

// Result is one task's full evaluation outcome. AgentDurationSecs is left
// nil on every return path that precedes the agent actually running
// (setup_error, sanity_fail) — spec.md §3 distinguishes total task
// duration from the agent's own wall-clock time, and a null
// agent_duration_secs tells a reader the counts above don't attribute to
// the agent at all.
type Result struct {
	TaskID            string          `json:"task_id"`
	Status            Status          `json:"status"`
	Detail            string          `json:"detail,omitempty"`
	Sanity            []CommandResult `json:"sanity,omitempty"`
	Verify            []CommandResult `json:"verify,omitempty"`
	DurationSecs      float64         `json:"duration_secs"`
	AgentDurationSecs *float64        `json:"agent_duration_secs"`
}

// Harness evaluates one TaskInstance at a time, each in a fresh disposable
// container; containers never share state across tasks (spec.md §4.12).
type Harness struct {
	RepoURLTemplate string
	Image           string
	Config          Config
}

// New builds a Harness. image overrides the task's own base image when
// non-empty (the harness CLI's docker_image option, spec.md §6); an empty
// image defers to each task's workspace.yaml environment.base_image.
func New(repoURLTemplate, image string, cfg Config) *Harness {
	return &Harness{RepoURLTemplate: repoURLTemplate, Image: image, Config: NewConfig(cfg)}
}

// Evaluate runs the four-step protocol of spec.md §4.12 for one task
// against agent, inside a fresh container.
func (h *Harness) Evaluate(ctx context.Context, ti candidate.TaskInstance, agent Agent) Result {
	start := time.Now()
	result := Result{TaskID: ti.TaskID}
	defer func() { metrics.HarnessVerdicts.WithLabelValues(string(result.Status)).Inc() }()

	image := h.Image
	if image == "" {
		image = ti.Environment.BaseImage
	}

	limits := sandbox.LimitsForDifficulty(ti.Difficulty)
	sbox, err := sandbox.Start(ctx, image, limits)
	if err != nil {
		result.Status = StatusSetupError
		result.Detail = err.Error()
		result.DurationSecs = time.Since(start).Seconds()
		return result
	}
	if !h.Config.KeepContainers {
		defer sbox.Close(ctx)
	}

	repoURL := fmt.Sprintf(h.RepoURLTemplate, ti.Repo.Owner, ti.Repo.Name)
	if err := h.setup(ctx, sbox, repoURL, ti); err != nil {
		result.Status = StatusSetupError
		result.Detail = err.Error()
		result.DurationSecs = time.Since(start).Seconds()
		return result
	}

	sanity, ok := h.sanityCheck(ctx, sbox, ti.TestSpec)
	result.Sanity = sanity
	if !ok {
		result.Status = StatusSanityFail
		result.DurationSecs = time.Since(start).Seconds()
		return result
	}

	agentCtx, cancel := context.WithTimeout(ctx, h.Config.AgentTimeout)
	defer cancel()
	agentStart := time.Now()
	agentErr := agent.Run(agentCtx, ti.Prompt, ".")
	agentDurationSecs := time.Since(agentStart).Seconds()
	result.AgentDurationSecs = &agentDurationSecs
	if agentErr != nil {
		result.Status = StatusAgentError
		result.Detail = agentErr.Error()
		result.DurationSecs = time.Since(start).Seconds()
		return result
	}

	verify, status, err := h.verify(ctx, sbox, ti.TestSpec)
	result.Verify = verify
	result.Status = status
	if err != nil {
		result.Detail = err.Error()
	}
	result.DurationSecs = time.Since(start).Seconds()
	return result
}

// setup clones repoURL at base_commit and runs the task's setup commands,
// per spec.md §4.12 step 1.
func (h *Harness) setup(ctx context.Context, sbox *sandbox.Sandbox, repoURL string, ti candidate.TaskInstance) error {
	cloneTimeout := h.Config.CommandTimeout * 4
	clone := []string{"sh", "-c", fmt.Sprintf("git clone %s . && git checkout -f %s", repoURL, ti.BaseCommit)}
	res, err := sbox.Run(ctx, clone, cloneTimeout)
	if err != nil {
		return bencherrors.New(bencherrors.InfraFail, "clone/checkout failed", err)
	}
	if res.ExitCode != 0 {
		return bencherrors.New(bencherrors.InfraFail, "clone/checkout exited non-zero", fmt.Errorf("%s%s", res.Stdout, res.Stderr))
	}

	for _, cmd := range ti.Environment.Setup {
		res, err := sbox.Run(ctx, []string{"sh", "-c", cmd}, h.Config.CommandTimeout)
		if err != nil {
			return bencherrors.New(bencherrors.InfraFail, "setup command failed", err)
		}
		if res.ExitCode != 0 {
			return bencherrors.New(bencherrors.InfraFail, "setup command exited non-zero: "+cmd, fmt.Errorf("%s%s", res.Stdout, res.Stderr))
		}
	}
	return nil
}

// sanityCheck runs every fail_to_pass (must all exit non-zero at
// base_commit) and every pass_to_pass (must all exit zero), per spec.md
// §4.12 step 2. Returns false if the task itself is unsound.
func (h *Harness) sanityCheck(ctx context.Context, sbox *sandbox.Sandbox, spec candidate.TestSpec) ([]CommandResult, bool) {
	var results []CommandResult
	ok := true

	for _, cmd := range spec.FailToPass {
		cmdStart := time.Now()
		res, err := sbox.Run(ctx, []string{"sh", "-c", cmd}, h.Config.CommandTimeout)
		passed := err == nil && res.ExitCode != 0
		results = append(results, CommandResult{Command: cmd, ExitCode: res.ExitCode, Passed: passed, DurationSecs: time.Since(cmdStart).Seconds()})
		if !passed {
			ok = false
		}
	}
	for _, cmd := range spec.PassToPass {
		cmdStart := time.Now()
		res, err := sbox.Run(ctx, []string{"sh", "-c", cmd}, h.Config.CommandTimeout)
		passed := err == nil && res.ExitCode == 0
		results = append(results, CommandResult{Command: cmd, ExitCode: res.ExitCode, Passed: passed, DurationSecs: time.Since(cmdStart).Seconds()})
		if !passed {
			ok = false
		}
	}

	return results, ok
}

// verify runs every fail_to_pass and pass_to_pass again without resetting
// the repository, per spec.md §4.12 step 4. All must exit zero to count
// as resolved; a pass_to_pass regression or a still-failing fail_to_pass
// is unresolved; a harness-internal exception running the commands is
// test_error.
func (h *Harness) verify(ctx context.Context, sbox *sandbox.Sandbox, spec candidate.TestSpec) ([]CommandResult, Status, error) {
	var results []CommandResult
	allPassed := true

	for _, cmd := range spec.Commands() {
		cmdStart := time.Now()
		res, err := sbox.Run(ctx, []string{"sh", "-c", cmd}, h.Config.CommandTimeout)
		if err != nil {
			return results, StatusTestError, err
		}
		passed := res.ExitCode == 0
		results = append(results, CommandResult{Command: cmd, ExitCode: res.ExitCode, Passed: passed, DurationSecs: time.Since(cmdStart).Seconds()})
		if !passed {
			allPassed = false
		}
	}

	if allPassed {
		return results, StatusResolved, nil
	}
	return results, StatusUnresolved, nil
}
