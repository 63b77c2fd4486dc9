package testgen

import (
	"encoding/json"
	"fmt"

	"github.com/prbench/prbench/pkg/llm"
)

const (
	toolShell       = "shell"
	toolSubmitTests = "submit_tests"
)

// toolDefinitions returns the closed two-tool set available in the
// exploring state: a sandboxed shell and the terminal submission tool.
// No other tool is ever offered to the model.
func toolDefinitions() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        toolShell,
			Description: "Run a shell command inside the task's repository checkout and return its output.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command":   map[string]any{"type": "string", "description": "shell command to execute"},
					"timeout_s": map[string]any{"type": "integer", "description": "optional per-command timeout override in seconds"},
				},
				"required": []string{"command"},
			},
		},
		{
			Name:        toolSubmitTests,
			Description: "Submit the discovered dual-commit test oracle for validation. Call this only once you have verified commands you believe fail before the fix and pass after it.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"fail_to_pass": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"pass_to_pass": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required": []string{"fail_to_pass", "pass_to_pass"},
			},
		},
	}
}

// shellArgs is the parsed argument payload of a shell tool call.
type shellArgs struct {
	Command  string `json:"command"`
	TimeoutS int    `json:"timeout_s"`
}

func parseShellArgs(raw string) (shellArgs, error) {
	var a shellArgs
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return shellArgs{}, fmt.Errorf("parsing shell arguments: %w", err)
	}
	if a.Command == "" {
		return shellArgs{}, fmt.Errorf("shell call missing command")
	}
	return a, nil
}

// submitArgs is the parsed argument payload of a submit_tests tool call.
type submitArgs struct {
	FailToPass []string `json:"fail_to_pass"`
	PassToPass []string `json:"pass_to_pass"`
}

func parseSubmitArgs(raw string) (submitArgs, error) {
	var a submitArgs
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return submitArgs{}, fmt.Errorf("parsing submit_tests arguments: %w", err)
	}
	if len(a.FailToPass) == 0 {
		return submitArgs{}, fmt.Errorf("submit_tests requires at least one fail_to_pass command")
	}
	return a, nil
}
