package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prbench/prbench/pkg/bencherrors"
	"github.com/prbench/prbench/pkg/candidate"
	"github.com/prbench/prbench/pkg/llm"
)

func scriptedResponse(t *testing.T, args string) llm.ScriptEntry {
	t.Helper()
	return llm.ScriptEntry{Response: &llm.ChatResponse{
		Message: llm.Message{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{
				ID: "call_1", Name: toolName, Arguments: args,
			}},
		},
		FinishReason: "tool_calls",
	}}
}

func TestClassifyParsesForcedToolCall(t *testing.T) {
	client := llm.NewMockClient(scriptedResponse(t, `{"classification":"medium","score":0.6,"reasoning":"moderate scope"}`))

	result, err := Classify(context.Background(), client, "gpt-test", candidate.Candidate{Title: "fix parser"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, candidate.DifficultyMedium, result.Classification)
	assert.InDelta(t, 0.6, result.Score, 0.0001)
}

func TestClassifyRejectsWhenQuotaFull(t *testing.T) {
	client := llm.NewMockClient(scriptedResponse(t, `{"classification":"easy","score":0.2,"reasoning":"trivial"}`))

	targets := DifficultyTargets{candidate.DifficultyEasy: 2}
	met := map[candidate.Difficulty]int{candidate.DifficultyEasy: 2}

	_, err := Classify(context.Background(), client, "gpt-test", candidate.Candidate{}, targets, met)
	require.Error(t, err)
	assert.Equal(t, "quota_full", bencherrors.ReasonOf(err))
}

func TestClassifyRejectsInvalidClassification(t *testing.T) {
	client := llm.NewMockClient(scriptedResponse(t, `{"classification":"impossible","score":0.5,"reasoning":"x"}`))

	_, err := Classify(context.Background(), client, "gpt-test", candidate.Candidate{}, nil, nil)
	require.Error(t, err)
	assert.True(t, bencherrors.Is(err, bencherrors.InfraFail))
}
