package harness

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/prbench/prbench/pkg/bencherrors"
)

// ShellAgent invokes an external coding agent as a subprocess on the host,
// with AgentDir as its working directory and the sanitized prompt on
// stdin. Nothing from the sandbox container is mounted into AgentDir, and
// Run ignores its repoDir argument. Grounded on the teacher's pattern of
// shelling out to an external tool with a bounded context (pkg/mcp
// process transport), generalized from a long-lived MCP subprocess to a
// single run-to-completion invocation per task.
type ShellAgent struct {
	AgentCmd string // e.g. "aider --yes"
	AgentDir string // working directory the agent's subprocess runs in
}

// Run implements Agent: it executes AgentCmd with the prompt on stdin and
// AgentDir as the working directory, returning a non-zero-exit or
// execution error as a Classified InfraFail.
func (a *ShellAgent) Run(ctx context.Context, prompt string, _ string) error {
	fields := strings.Fields(a.AgentCmd)
	if len(fields) == 0 {
		return bencherrors.New(bencherrors.Fatal, "empty agent_cmd", nil)
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Dir = a.AgentDir
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return bencherrors.New(bencherrors.InfraFail, "agent_cmd exited non-zero", err)
	}
	return nil
}
