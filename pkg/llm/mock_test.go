package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prbench/prbench/pkg/bencherrors"
)

func TestMockClientPlaysBackInOrder(t *testing.T) {
	c := NewMockClient(
		ScriptEntry{Response: &ChatResponse{Message: Message{Role: RoleAssistant, Content: "first"}, FinishReason: "stop"}},
		ScriptEntry{Response: &ChatResponse{Message: Message{Role: RoleAssistant, Content: "second"}, FinishReason: "stop"}},
	)

	resp, err := c.ChatWithTools(context.Background(), ChatRequest{Model: "test"})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Message.Content)

	resp, err = c.ChatWithTools(context.Background(), ChatRequest{Model: "test"})
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Message.Content)

	assert.Equal(t, 2, c.Calls())
	assert.Len(t, c.Requests(), 2)
}

func TestMockClientExhaustedScriptIsFatal(t *testing.T) {
	c := NewMockClient()
	_, err := c.ChatWithTools(context.Background(), ChatRequest{Model: "test"})
	require.Error(t, err)
	assert.True(t, bencherrors.Is(err, bencherrors.Fatal))
}

func TestMockClientPropagatesScriptedError(t *testing.T) {
	wantErr := bencherrors.New(bencherrors.Transient, "rate limited", nil)
	c := NewMockClient(ScriptEntry{Err: wantErr})

	_, err := c.ChatWithTools(context.Background(), ChatRequest{Model: "test"})
	require.Error(t, err)
	assert.True(t, bencherrors.Is(err, bencherrors.Transient))
}

func TestMockClientCountTokens(t *testing.T) {
	c := NewMockClient()
	n, err := c.CountTokens(context.Background(), []Message{{Content: "twelve characters"}})
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}
