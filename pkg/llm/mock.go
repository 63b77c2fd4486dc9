package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/prbench/prbench/pkg/bencherrors"
)

// ScriptEntry is one scripted response for MockClient, grounded on the
// teacher's e2e ScriptedLLMClient (test/e2e/mock_llm.go): either a
// response or an error, consumed in call order.
type ScriptEntry struct {
	Response *ChatResponse
	Err      error
}

// MockClient implements Client by replaying a fixed script of responses in
// order, for deterministic tests of TestGenerator's agentic loop and the
// classifier/quality-scorer call sites without a live model.
type MockClient struct {
	mu       sync.Mutex
	script   []ScriptEntry
	index    int
	requests []ChatRequest
	usage    []Usage
}

// NewMockClient builds a MockClient that plays back script in order.
func NewMockClient(script ...ScriptEntry) *MockClient {
	return &MockClient{script: script}
}

// ChatWithTools implements Client.
func (m *MockClient) ChatWithTools(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if m.index >= len(m.script) {
		return nil, bencherrors.New(bencherrors.Fatal, fmt.Sprintf("mock script exhausted at call %d", m.index), nil)
	}
	entry := m.script[m.index]
	m.index++

	if entry.Err != nil {
		return nil, entry.Err
	}
	return entry.Response, nil
}

// CountTokens implements Client with the same four-characters-per-token
// heuristic as OpenAICompatClient, so budget-limit tests exercise the real
// arithmetic rather than a fixed stub value.
func (m *MockClient) CountTokens(_ context.Context, messages []Message) (int, error) {
	total := 0
	for _, msg := range messages {
		total += len(msg.Content) / 4
		for _, tc := range msg.ToolCalls {
			total += len(tc.Arguments) / 4
		}
	}
	return total, nil
}

// ReportUsage implements Client.
func (m *MockClient) ReportUsage(usage Usage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = append(m.usage, usage)
}

// Requests returns every ChatRequest this client received, in call order,
// for assertions on what TestGenerator actually sent.
func (m *MockClient) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChatRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of ChatWithTools calls made so far.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}
