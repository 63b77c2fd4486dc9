package testgen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prbench/prbench/pkg/bencherrors"
	"github.com/prbench/prbench/pkg/candidate"
	"github.com/prbench/prbench/pkg/llm"
	"github.com/prbench/prbench/pkg/sandbox"
	"github.com/prbench/prbench/pkg/toolserver"
)

// systemPrompt is the fixed instruction set for every session. It must
// never reference patch contents or oracle test names — the agent
// discovers tests by exploring the repository (spec.md §4.7 anti-leak
// rules).
const systemPrompt = `You are investigating a software repository to produce a dual-commit
test oracle for a bug fix. You have exactly two tools: shell, to run
commands inside the checked-out repository, and submit_tests, to submit
your final answer.

Explore the repository and its test suite using shell. When you believe
you have found commands that fail before the fix and pass after it
("fail_to_pass"), and commands that pass on both sides ("pass_to_pass"),
call submit_tests. Do not guess — verify each command actually runs
before submitting it. If validation reports a failure, use the
diagnostic to refine your submission and try again.

Respond only by calling one of the two tools. A response with no tool
call will be discarded and you will be re-prompted.`

// Generator runs one TestGenerator session against a single sandboxed
// container, pinned for the session's lifetime.
type Generator struct {
	Sandbox *sandbox.Sandbox
	Client  llm.Client
	Model   string
	Config  Config

	toolClient *toolserver.Client // nil until initWorkspace starts the tool server; nil forever if Config.ToolServerBinary is unset or startup fails
}

// NewGenerator builds a Generator with defaults filled in for any unset
// Config field.
func NewGenerator(sbox *sandbox.Sandbox, client llm.Client, model string, cfg Config) *Generator {
	cfg = NewConfig(cfg)
	slog.Debug("test generator limits", "turn_max", cfg.TurnMax, "validation_max", cfg.ValidationMax)
	return &Generator{Sandbox: sbox, Client: client, Model: model, Config: cfg}
}

// Run drives the generator's state machine to completion: init clones and
// installs dependencies, exploring/drafting/validating iterate until the
// agent's submission survives dual-commit validation or the turn/retry
// budget is exhausted.
func (g *Generator) Run(ctx context.Context, repoURL string, cand candidate.Candidate, env candidate.Environment, taskStatement string) (Result, error) {
	if err := g.initWorkspace(ctx, repoURL, cand, env); err != nil {
		return Result{State: StateAborted, Reason: ReasonDepInstallFailed}, err
	}

	hist := newHistory(systemPrompt, taskStatement)
	validations := 0

	for turn := 0; turn < g.Config.TurnMax; turn++ {
		if err := hist.truncate(ctx, g.Client, g.Config.HistoryHighWater); err != nil {
			return Result{State: StateAborted, Reason: ReasonToolError, TurnsUsed: turn}, err
		}

		resp, err := g.Client.ChatWithTools(ctx, llm.ChatRequest{
			Model:    g.Model,
			Messages: hist.snapshot(),
			Tools:    toolDefinitions(),
		})
		if err != nil {
			if bencherrors.Is(err, bencherrors.Budget) {
				return Result{State: StateAborted, Reason: ReasonBudgetExhausted, TurnsUsed: turn, Validations: validations}, nil
			}
			return Result{State: StateAborted, Reason: ReasonToolError, TurnsUsed: turn, Validations: validations}, err
		}
		g.Client.ReportUsage(resp.Usage)

		call, ok := firstToolCall(resp)
		if !ok {
			hist.append(
				llm.Message{Role: llm.RoleAssistant, Content: resp.Message.Content},
				llm.Message{Role: llm.RoleUser, Content: "Your response must call exactly one tool (shell or submit_tests)."},
			)
			continue
		}
		hist.append(llm.Message{Role: llm.RoleAssistant, Content: resp.Message.Content, ToolCalls: []llm.ToolCall{call}})

		switch call.Name {
		case toolShell:
			observation := g.runShell(ctx, call)
			hist.append(llm.Message{Role: llm.RoleTool, Content: observation, ToolCallID: call.ID, ToolName: call.Name})

		case toolSubmitTests:
			args, parseErr := parseSubmitArgs(call.Arguments)
			if parseErr != nil {
				hist.append(llm.Message{Role: llm.RoleTool, Content: parseErr.Error(), ToolCallID: call.ID, ToolName: call.Name})
				continue
			}

			spec := candidate.TestSpec{FailToPass: args.FailToPass, PassToPass: args.PassToPass}

			if len(spec.Commands()) == 0 {
				hist.append(llm.Message{Role: llm.RoleTool, Content: "no tests found: submission named no commands", ToolCallID: call.ID, ToolName: call.Name})
				continue
			}

			validations++
			diag, valErr := validateDualCommit(ctx, g.Sandbox, env, cand.MergeCommit, cand.BaseCommit, spec, g.Config.ShellTimeout)
			if valErr != nil {
				return Result{State: StateAborted, Reason: ReasonToolError, TurnsUsed: turn + 1, Validations: validations}, valErr
			}

			if diag == nil {
				return Result{State: StateSubmitted, TestSpec: spec, TurnsUsed: turn + 1, Validations: validations}, nil
			}

			if validations >= g.Config.ValidationMax {
				return Result{State: StateAborted, Reason: ReasonValidationFailed, TurnsUsed: turn + 1, Validations: validations}, nil
			}

			hist.append(llm.Message{Role: llm.RoleTool, Content: formatDiagnostic(diag), ToolCallID: call.ID, ToolName: call.Name})

		default:
			hist.append(llm.Message{Role: llm.RoleTool, Content: fmt.Sprintf("unknown tool %q", call.Name), ToolCallID: call.ID, ToolName: call.Name})
		}
	}

	return Result{State: StateAborted, Reason: ReasonBudgetExhausted, TurnsUsed: g.Config.TurnMax, Validations: validations}, nil
}

// initWorkspace clones repoURL into the container's working directory and
// checks out merge_commit. The container image carries no pre-baked
// clone; cloning is part of session init, same as EvaluationHarness's
// setup step does for the external agent's run.
func (g *Generator) initWorkspace(ctx context.Context, repoURL string, cand candidate.Candidate, env candidate.Environment) error {
	cloneTimeout := g.Config.ShellTimeout * 4
	clone := []string{"sh", "-c", fmt.Sprintf("git clone %s .", repoURL)}
	res, err := g.Sandbox.Run(ctx, clone, cloneTimeout)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("dep_install_failed: git clone %s: %s", repoURL, truncateOutput(res.Stdout+res.Stderr, g.Config.OutputMaxBytes))
	}

	if g.Config.ToolServerBinary != "" {
		addr, startErr := g.Sandbox.StartToolServer(ctx, g.Config.ToolServerBinary, ".")
		if startErr != nil {
			slog.Warn("tool server unavailable, shell falls back to plain exec for every command", "error", startErr)
		} else {
			g.toolClient = toolserver.NewClient(addr, nil)
		}
	}

	return resetWorkspace(ctx, g.Sandbox, env, cand.MergeCommit, g.Config.ShellTimeout)
}

// runShell services the agent's one exploration tool. Per spec.md §4.6,
// the test-generation agent "does not shell out for structured
// operations": when a command is recognized as a plain read_file, list_dir,
// or grep and the tool server started successfully, it's served from
// there; anything else, including apply_patch-shaped edits the agent makes
// with redirection or patch utilities, goes straight to the sandboxed
// shell the same as before.
func (g *Generator) runShell(ctx context.Context, call llm.ToolCall) string {
	args, err := parseShellArgs(call.Arguments)
	if err != nil {
		return err.Error()
	}

	if g.toolClient != nil {
		if observation, handled := g.structuredObservation(ctx, args.Command); handled {
			return observation
		}
	}

	timeout := g.Config.ShellTimeout
	if args.TimeoutS > 0 {
		timeout = time.Duration(args.TimeoutS) * time.Second
	}

	res, runErr := g.Sandbox.Run(ctx, []string{"sh", "-c", args.Command}, timeout)
	if runErr != nil {
		return fmt.Sprintf("tool_error: %v", runErr)
	}

	return fmt.Sprintf("exit_code=%d\nstdout:\n%s\nstderr:\n%s",
		res.ExitCode,
		truncateOutput(res.Stdout, g.Config.OutputMaxBytes),
		truncateOutput(res.Stderr, g.Config.OutputMaxBytes),
	)
}

// structuredObservation recognizes a handful of common read-only shell
// idioms (cat one file, ls a directory, grep one pattern) and serves them
// from the in-container tool server instead of a docker-exec round trip.
// Anything it doesn't recognize falls through to a real shell exec.
func (g *Generator) structuredObservation(ctx context.Context, command string) (string, bool) {
	fields := strings.Fields(command)
	if len(fields) < 1 {
		return "", false
	}

	switch fields[0] {
	case "cat":
		if len(fields) != 2 {
			return "", false
		}
		resp, err := g.toolClient.ReadFile(ctx, fields[1])
		if err != nil {
			return "", false
		}
		if resp.Error != "" {
			return fmt.Sprintf("exit_code=1\nstdout:\n\nstderr:\n%s", resp.Error), true
		}
		return fmt.Sprintf("exit_code=0\nstdout:\n%s\nstderr:\n", truncateOutput(resp.Content, g.Config.OutputMaxBytes)), true

	case "ls":
		path := "."
		if len(fields) == 2 {
			path = fields[1]
		} else if len(fields) > 2 {
			return "", false
		}
		resp, err := g.toolClient.ListDir(ctx, path)
		if err != nil {
			return "", false
		}
		if resp.Error != "" {
			return fmt.Sprintf("exit_code=1\nstdout:\n\nstderr:\n%s", resp.Error), true
		}
		names := make([]string, len(resp.Entries))
		for i, e := range resp.Entries {
			names[i] = e.Name
		}
		return fmt.Sprintf("exit_code=0\nstdout:\n%s\nstderr:\n", strings.Join(names, "\n")), true

	case "grep":
		if len(fields) != 3 {
			return "", false
		}
		resp, err := g.toolClient.Grep(ctx, fields[1], fields[2])
		if err != nil {
			return "", false
		}
		if resp.Error != "" {
			return fmt.Sprintf("exit_code=1\nstdout:\n\nstderr:\n%s", resp.Error), true
		}
		var sb strings.Builder
		for _, m := range resp.Matches {
			fmt.Fprintf(&sb, "%s:%d:%s\n", m.Path, m.Line, m.Text)
		}
		return fmt.Sprintf("exit_code=0\nstdout:\n%s\nstderr:\n", truncateOutput(sb.String(), g.Config.OutputMaxBytes)), true

	default:
		return "", false
	}
}

func firstToolCall(resp *llm.ChatResponse) (llm.ToolCall, bool) {
	if len(resp.Message.ToolCalls) == 0 {
		return llm.ToolCall{}, false
	}
	return resp.Message.ToolCalls[0], true
}
