// Package classifier implements PreClassifier (spec.md §4.4): a coarse
// difficulty label from a PR's title and body via a forced LLM tool call.
// Grounded on pkg/agent/controller/scoring.go's pattern of a single forced
// tool-call turn whose arguments are parsed as the entire result, never
// free-form text.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prbench/prbench/pkg/bencherrors"
	"github.com/prbench/prbench/pkg/candidate"
	"github.com/prbench/prbench/pkg/llm"
)

const toolName = "classify_difficulty"

// Result is the forced tool-call payload, never parsed from free-form text
// per spec.md §9's "async trait objects" / "responses are parsed only from
// the first tool call's JSON arguments" rule.
type Result struct {
	Classification candidate.Difficulty `json:"classification"`
	Score          float64              `json:"score"`
	Reasoning      string               `json:"reasoning"`
}

// DifficultyTargets maps a difficulty label to its total export target. A
// candidate whose class already has at least that many tasks in metCounts
// is rejected as quota_full without proceeding to deep processing.
type DifficultyTargets map[candidate.Difficulty]int

// Classify issues one forced tool call to client, classifying cand's
// {title, body} only. If targets is non-nil and the resulting class's
// quota has already been met, returns a DataReject("quota_full") instead
// of the classification.
func Classify(ctx context.Context, client llm.Client, model string, cand candidate.Candidate, targets DifficultyTargets, metCounts map[candidate.Difficulty]int) (*Result, error) {
	req := llm.ChatRequest{
		Model: model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You classify the difficulty of fixing a reported issue given only its title and description. Call " + toolName + " with your answer."},
			{Role: llm.RoleUser, Content: fmt.Sprintf("Title: %s\n\nBody:\n%s", cand.Title, cand.Body)},
		},
		Tools:     []llm.ToolDefinition{classifyToolDef()},
		ForceTool: toolName,
	}

	resp, err := client.ChatWithTools(ctx, req)
	if err != nil {
		return nil, err
	}

	call, err := firstToolCall(resp, toolName)
	if err != nil {
		return nil, err
	}

	var result Result
	if err := json.Unmarshal([]byte(call.Arguments), &result); err != nil {
		return nil, bencherrors.New(bencherrors.InfraFail, "decoding classify_difficulty arguments", err)
	}
	if !validDifficulty(result.Classification) {
		return nil, bencherrors.New(bencherrors.InfraFail, "classify_difficulty returned invalid classification", nil)
	}

	if targets != nil {
		if quota, targeted := targets[result.Classification]; targeted && metCounts[result.Classification] >= quota {
			return &result, bencherrors.New(bencherrors.DataReject, "quota_full", nil)
		}
	}

	return &result, nil
}

func firstToolCall(resp *llm.ChatResponse, name string) (*llm.ToolCall, error) {
	for i := range resp.Message.ToolCalls {
		if resp.Message.ToolCalls[i].Name == name {
			return &resp.Message.ToolCalls[i], nil
		}
	}
	return nil, bencherrors.New(bencherrors.InfraFail, "no "+name+" tool call in response", nil)
}

func validDifficulty(d candidate.Difficulty) bool {
	switch d {
	case candidate.DifficultyEasy, candidate.DifficultyMedium, candidate.DifficultyHard:
		return true
	default:
		return false
	}
}

func classifyToolDef() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        toolName,
		Description: "Report the coarse difficulty classification of fixing this issue.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"classification": map[string]any{
					"type": "string",
					"enum": []string{"easy", "medium", "hard"},
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
