package testgen

import (
	"context"
	"fmt"
	"time"

	"github.com/prbench/prbench/pkg/candidate"
	"github.com/prbench/prbench/pkg/sandbox"
)

// Diagnostic is the structured feedback returned to the agent when a
// validation round fails, per spec.md §4.7 step 3: "which command, which
// commit, exit code, truncated output."
type Diagnostic struct {
	Commit   string // "merge" or "base"
	Command  string
	ExitCode int
	Output   string
	Expected string // "zero" or "nonzero"; set when the check was a polarity check
}

// validateDualCommit runs the spec's two-pass dual-commit oracle check:
// at merge_commit every listed command must exit 0; at base_commit every
// pass_to_pass command must exit 0 and every fail_to_pass command must
// exit non-zero (strict polarity — spec.md §4.7 step 2 requires ALL
// fail_to_pass commands to fail at base, not merely one). Returns a
// non-nil Diagnostic on the first failing check, nil on full success.
func validateDualCommit(
	ctx context.Context,
	sbox *sandbox.Sandbox,
	env candidate.Environment,
	mergeCommit, baseCommit string,
	spec candidate.TestSpec,
	cmdTimeout time.Duration,
) (*Diagnostic, error) {
	if diag, err := checkCommit(ctx, sbox, env, mergeCommit, "merge", spec.PassToPass, true, cmdTimeout); err != nil || diag != nil {
		return diag, err
	}
	if diag, err := checkCommit(ctx, sbox, env, mergeCommit, "merge", spec.FailToPass, true, cmdTimeout); err != nil || diag != nil {
		return diag, err
	}

	if diag, err := checkCommit(ctx, sbox, env, baseCommit, "base", spec.PassToPass, true, cmdTimeout); err != nil || diag != nil {
		return diag, err
	}
	if diag, err := checkCommit(ctx, sbox, env, baseCommit, "base", spec.FailToPass, false, cmdTimeout); err != nil || diag != nil {
		return diag, err
	}

	return nil, nil
}

// checkCommit resets the workspace to commit, reinstalls dependencies, and
// runs every command in cmds. wantZero controls the expected exit code
// polarity: true means every command must exit 0, false means every
// command must exit non-zero (the base-commit fail_to_pass check).
func checkCommit(
	ctx context.Context,
	sbox *sandbox.Sandbox,
	env candidate.Environment,
	commit, commitLabel string,
	cmds []string,
	wantZero bool,
	cmdTimeout time.Duration,
) (*Diagnostic, error) {
	if len(cmds) == 0 {
		return nil, nil
	}

	if err := resetWorkspace(ctx, sbox, env, commit, cmdTimeout); err != nil {
		return nil, err
	}

	for _, cmd := range cmds {
		res, err := sbox.Run(ctx, []string{"sh", "-c", cmd}, cmdTimeout)
		if err != nil {
			return nil, err
		}

		ok := res.ExitCode == 0
		if ok != wantZero {
			expected := "zero"
			if !wantZero {
				expected = "nonzero"
			}
			return &Diagnostic{
				Commit:   commitLabel,
				Command:  cmd,
				ExitCode: res.ExitCode,
				Output:   truncateOutput(res.Stdout+res.Stderr, defaultOutputMaxBytes),
				Expected: expected,
			}, nil
		}
	}

	return nil, nil
}

func resetWorkspace(ctx context.Context, sbox *sandbox.Sandbox, env candidate.Environment, commit string, timeout time.Duration) error {
	checkout := []string{"sh", "-c", fmt.Sprintf("git checkout -f %s && git clean -fdx", commit)}
	if res, err := sbox.Run(ctx, checkout, timeout); err != nil {
		return err
	} else if res.ExitCode != 0 {
		return fmt.Errorf("checkout %s failed: %s", commit, truncateOutput(res.Stdout+res.Stderr, defaultOutputMaxBytes))
	}

	for _, setupCmd := range env.Setup {
		res, err := sbox.Run(ctx, []string{"sh", "-c", setupCmd}, timeout)
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("dep_install_failed at %s: %s: %s", commit, setupCmd, truncateOutput(res.Stdout+res.Stderr, defaultOutputMaxBytes))
		}
	}

	return nil
}

// formatDiagnostic renders a Diagnostic as the observation text fed back
// to the agent after a failed validation round.
func formatDiagnostic(d *Diagnostic) string {
	if d.Expected != "" {
		return fmt.Sprintf(
			"Validation failed at commit=%s command=%q exit_code=%d expected=%s\noutput:\n%s",
			d.Commit, d.Command, d.ExitCode, d.Expected, d.Output,
		)
	}
	return fmt.Sprintf(
		"Validation failed at commit=%s command=%q exit_code=%d\noutput:\n%s",
		d.Commit, d.Command, d.ExitCode, d.Output,
	)
}
