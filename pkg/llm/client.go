// Package llm provides a provider-agnostic capability-set interface for the
// chat-with-tools calls TestGenerator, PreClassifier, and QualityScorer all
// make, plus concrete openaicompat and mock implementations. Generalized
// from the teacher's gRPC LLMClient (pkg/agent/llm_client.go) to an
// interface of independent capabilities, since the gRPC wire format assumed
// a sidecar service this repo has no counterpart for.
package llm

import "context"

// Conversation message roles, unchanged from the teacher's convention.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn in a chat-with-tools conversation.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // set on assistant messages that invoke tools
	ToolCallID string     // set on tool-result messages
	ToolName   string     // set on tool-result messages
}

// ToolDefinition describes one tool the model may call.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema object
}

// ToolCall is a model's request to invoke a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// ChatRequest is one chat-with-tools call.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition // nil or empty disables tool calling
	ForceTool   string           // non-empty forces that specific tool to be called
	Temperature float64
	MaxTokens   int
}

// ChatResponse is the model's reply to a ChatRequest.
type ChatResponse struct {
	Message      Message
	FinishReason string // "stop", "tool_calls", "length", "content_filter"
	Usage        Usage
}

// Usage reports token consumption for a single call, passed to
// Client.ReportUsage.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client is the capability set every pipeline stage that talks to a model
// depends on. Stages request only the methods they need; TestGenerator,
// PreClassifier and QualityScorer use ChatWithTools, and TestGenerator also
// uses CountTokens (history truncation) and ReportUsage. The pipeline's
// LLMBudget counts deep sessions and uses neither.
type Client interface {
	// ChatWithTools sends a conversation, optionally with tool definitions,
	// and returns the model's reply. Implementations must translate
	// provider-specific transient failures (rate limits, timeouts, 5xx)
	// into bencherrors.Transient, and exhausted-budget conditions into
	// bencherrors.Budget.
	ChatWithTools(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// CountTokens estimates the token cost of a conversation before
	// sending it, used to drop old history once a conversation passes its
	// high-water token count, without waiting on a round trip.
	CountTokens(ctx context.Context, messages []Message) (int, error)

	// ReportUsage records the token usage of one ChatWithTools response.
	// Implementations only accumulate it; no caller decides on a budget
	// from it.
	ReportUsage(usage Usage)
}
