// Package quality implements QualityScorer (spec.md §4.8): a second-pass
// forced-tool-call LLM gate over a fully-built task candidate
// {title, sanitized_prompt, patch, test_spec}. Grounded on pkg/classifier's
// forced single-tool-call pattern, itself grounded on the teacher's
// pkg/agent/controller/scoring.go.
package quality

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prbench/prbench/pkg/bencherrors"
	"github.com/prbench/prbench/pkg/candidate"
	"github.com/prbench/prbench/pkg/llm"
)

const toolName = "score_quality"

// defaultQMin is Q_min, spec.md §4.8's default acceptance threshold.
const defaultQMin = 0.30

// Result is the forced tool-call payload.
type Result struct {
	Classification string  `json:"classification"`
	Score          float64 `json:"score"`
	Reasoning      string  `json:"reasoning"`
}

// Input is the material the scorer is allowed to see: never the raw PR
// body, only the already-sanitized prompt, so a leaked oracle test name
// in the original PR text can't reach this call either.
type Input struct {
	Title           string
	SanitizedPrompt string
	Patch           string
	TestSpec        candidate.TestSpec
}

// Score issues one forced tool call scoring in. A candidate passes the
// gate iff the returned score is >= qMin (pass qMin <= 0 to use the
// spec.md default of 0.30). A sub-threshold score is returned alongside a
// DataReject("rejected:quality") error so callers can cache the rejection
// reason directly.
func Score(ctx context.Context, client llm.Client, model string, in Input, qMin float64) (*Result, error) {
	if qMin <= 0 {
		qMin = defaultQMin
	}

	req := llm.ChatRequest{
		Model: model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You judge whether a generated software task (prompt, patch, and test oracle) is coherent and fair. Call " + toolName + " with your answer."},
			{Role: llm.RoleUser, Content: fmt.Sprintf(
				"Title: %s\n\nPrompt:\n%s\n\nPatch:\n%s\n\nFail-to-pass tests:\n%s\n\nPass-to-pass tests:\n%s",
				in.Title, in.SanitizedPrompt, in.Patch, joinLines(in.TestSpec.FailToPass), joinLines(in.TestSpec.PassToPass),
			)},
		},
		Tools:     []llm.ToolDefinition{scoreToolDef()},
		ForceTool: toolName,
	}

	resp, err := client.ChatWithTools(ctx, req)
	if err != nil {
		return nil, err
	}

	call, err := firstToolCall(resp)
	if err != nil {
		return nil, err
	}

	var result Result
	if err := json.Unmarshal([]byte(call.Arguments), &result); err != nil {
		return nil, bencherrors.New(bencherrors.InfraFail, "decoding score_quality arguments", err)
	}

	if result.Score < qMin {
		return &result, bencherrors.New(bencherrors.DataReject, "rejected:quality", nil)
	}

	return &result, nil
}

func firstToolCall(resp *llm.ChatResponse) (*llm.ToolCall, error) {
	for i := range resp.Message.ToolCalls {
		if resp.Message.ToolCalls[i].Name == toolName {
			return &resp.Message.ToolCalls[i], nil
		}
	}
	return nil, bencherrors.New(bencherrors.InfraFail, "no "+toolName+" tool call in response", nil)
}

func joinLines(lines []string) string {
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}

func scoreToolDef() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        toolName,
		Description: "Report a quality judgment for this generated task.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"classification": map[string]any{
					"type": "string",
					"enum": []string{"accept", "reject"},
				},
				"score": map[string]any{
					"type":    "number",
					"minimum": 0,
					"maximum": 1,
				},
				"reasoning": map[string]any{"type": "string"},
			},
			"required": []string{"classification", "score", "reasoning"},
		},
	}
}
