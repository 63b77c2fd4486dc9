package quality

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prbench/prbench/pkg/bencherrors"
	"github.com/prbench/prbench/pkg/candidate"
	"github.com/prbench/prbench/pkg/llm"
)

func scriptedResponse(args string) llm.ScriptEntry {
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

func TestScoreAcceptsAboveThreshold(t *testing.T) {
	client := llm.NewMockClient(scriptedResponse(`{"classification":"accept","score":0.75,"reasoning":"clear and verifiable"}`))

	result, err := Score(context.Background(), client, "gpt-test", Input{
		Title:           "fix off-by-one",
		SanitizedPrompt: "the loop overruns by one element",
		Patch:           "diff --git a/x.py b/x.py\n...",
		TestSpec:        candidate.TestSpec{FailToPass: []string{"pytest tests/test_x.py"}},
	}, 0)

	require.NoError(t, err)
	assert.InDelta(t, 0.75, result.Score, 0.0001)
}

func TestScoreRejectsBelowThreshold(t *testing.T) {
	client := llm.NewMockClient(scriptedResponse(`{"classification":"reject","score":0.1,"reasoning":"incoherent prompt"}`))

	result, err := Score(context.Background(), client, "gpt-test", Input{Title: "x"}, 0)
	require.Error(t, err)
	assert.Equal(t, "rejected:quality", bencherrors.ReasonOf(err))
	assert.InDelta(t, 0.1, result.Score, 0.0001)
}

func TestScoreUsesCustomThreshold(t *testing.T) {
	client := llm.NewMockClient(scriptedResponse(`{"classification":"accept","score":0.5,"reasoning":"ok"}`))

	_, err := Score(context.Background(), client, "gpt-test", Input{Title: "x"}, 0.9)
	require.Error(t, err)
	assert.Equal(t, "rejected:quality", bencherrors.ReasonOf(err))
}
