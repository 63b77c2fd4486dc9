package testgen

import (
	"context"

	"github.com/prbench/prbench/pkg/llm"
)

// history is ordered conversation state: index 0 is always the system
// prompt, index 1 is always the task statement. Everything after that is
// a sequence of assistant/tool-observation pairs that grows each turn.
// Truncate drops the oldest such pairs once the conversation exceeds the
// configured high-water token count; the first two messages are never
// dropped, per spec.md §4.7.
type history struct {
	messages []llm.Message
}

func newHistory(systemPrompt, taskStatement string) *history {
	return &history{messages: []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: taskStatement},
	}}
}

func (h *history) append(msgs ...llm.Message) {
	h.messages = append(h.messages, msgs...)
}

func (h *history) snapshot() []llm.Message {
	out := make([]llm.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// truncate drops the oldest assistant-observation pair (messages[2],
// messages[3]) while the conversation's estimated token count exceeds
// highWater, leaving the system prompt and task statement untouched.
func (h *history) truncate(ctx context.Context, client llm.Client, highWater int) error {
	for {
		tokens, err := client.CountTokens(ctx, h.messages)
		if err != nil {
			return err
		}
		if tokens <= highWater || len(h.messages) <= 4 {
			return nil
		}
		// Drop the oldest pair directly after the fixed system+task prefix.
		h.messages = append(h.messages[:2], h.messages[4:]...)
	}
}

// truncateOutput caps s to maxBytes, the O_max per-turn shell output bound.
func truncateOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes] + "\n...[truncated]"
}
