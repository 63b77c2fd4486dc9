// Package testgen implements TestGenerator (spec.md §4.7), the hardest
// subsystem: a multi-turn agentic loop that explores a repository inside
// a disposable sandbox and produces a dual-commit-validated TestSpec for
// one patch. Grounded on the teacher's pkg/agent/controller iteration
// loops (react.go, iterating.go) for the turn/tool-call/observation
// shape, generalized from an open-ended investigation loop bound to
// arbitrary MCP tools down to a closed two-tool loop (shell, submit_tests)
// bound to a sandboxed shell and a terminal submission tool.
package testgen

import (
	"time"

	"github.com/prbench/prbench/pkg/candidate"
)

// State is one node of the generator's state machine
// (init → exploring → drafting → validating → {submitted | aborted}).
type State string

const (
	StateInit       State = "init"
	StateExploring  State = "exploring"
	StateDrafting   State = "drafting"
	StateValidating State = "validating"
	StateSubmitted  State = "submitted"
	StateAborted    State = "aborted"
)

// Failure reasons, spec.md §4.7's closed taxonomy.
const (
	ReasonDepInstallFailed = "dep_install_failed"
	ReasonNoTestsFound     = "no_tests_found"
	ReasonValidationFailed = "validation_failed"
	ReasonBudgetExhausted  = "budget_exhausted"
	ReasonToolError        = "tool_error"
)

// Config bounds one generator session. Zero-value fields are filled with
// the package defaults by NewConfig.
type Config struct {
	TurnMax          int           // T_max
	ShellTimeout     time.Duration // per shell(command) call
	OutputMaxBytes   int           // O_max, per-turn stdout/stderr truncation
	ValidationMax    int           // V_retries
	HistoryHighWater int           // approximate token count before oldest pairs are dropped

	// ToolServerBinary is the host path to the toolserverd binary. When
	// set, Generator.Run stages and starts it in the sandbox so read-only
	// shell(command) calls recognized as plain read_file/list_dir/grep
	// requests are served over the in-container tool server instead of a
	// full docker-exec round trip. Empty disables the optimization; the
	// shell tool still works, every command going straight to the sandbox.
	ToolServerBinary string
}

const (
	defaultTurnMax          = 200
	defaultShellTimeout     = 60 * time.Second
	defaultOutputMaxBytes   = 16 * 1024
	defaultValidationMax    = 3
	defaultHistoryHighWater = 32000
)

// NewConfig fills unset fields of cfg with package defaults.
func NewConfig(cfg Config) Config {
	if cfg.TurnMax <= 0 {
		cfg.TurnMax = defaultTurnMax
	}
	if cfg.ShellTimeout <= 0 {
		cfg.ShellTimeout = defaultShellTimeout
	}
	if cfg.OutputMaxBytes <= 0 {
		cfg.OutputMaxBytes = defaultOutputMaxBytes
	}
	if cfg.ValidationMax <= 0 {
		cfg.ValidationMax = defaultValidationMax
	}
	if cfg.HistoryHighWater <= 0 {
		cfg.HistoryHighWater = defaultHistoryHighWater
	}
	return cfg
}

// Result is the outcome of one generator session.
type Result struct {
	State       State
	TestSpec    candidate.TestSpec
	Reason      string // set when State == StateAborted
	TurnsUsed   int
	Validations int
}
