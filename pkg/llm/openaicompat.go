package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/prbench/prbench/pkg/bencherrors"
)

// OpenAICompatClient talks to any OpenAI-chat-completions-compatible
// endpoint (the hosted API or a local proxy in front of another model).
// Retries transient failures with exponential backoff, mirroring the
// teacher's general "classify then retry" approach to external calls
// (pkg/services retries transient dependency errors the same way).
type OpenAICompatClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxRetries uint64

	totalTokens atomic.Int64
}

// NewOpenAICompatClient builds a client against baseURL (e.g.
// "https://api.openai.com/v1" or a self-hosted proxy) using apiKey as a
// bearer token.
func NewOpenAICompatClient(baseURL, apiKey string, httpClient *http.Client) *OpenAICompatClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &OpenAICompatClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		maxRetries: 3,
	}
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	ToolChoice  any           `json:"tool_choice,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func toWireMessages(msgs []Message) []wireMessage {
	out := make([]wireMessage, len(msgs))
	for i, m := range msgs {
		wm := wireMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID, Name: m.ToolName}
		for _, tc := range m.ToolCalls {
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = tc.Arguments
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out[i] = wm
	}
	return out
}

func fromWireMessage(wm wireMessage) Message {
	m := Message{Role: wm.Role, Content: wm.Content, ToolCallID: wm.ToolCallID, ToolName: wm.Name}
	for _, wtc := range wm.ToolCalls {
		m.ToolCalls = append(m.ToolCalls, ToolCall{
			ID:        wtc.ID,
			Name:      wtc.Function.Name,
			Arguments: wtc.Function.Arguments,
		})
	}
	return m
}

// ChatWithTools implements Client.
func (c *OpenAICompatClient) ChatWithTools(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	wireReq := wireRequest{
		Model:       req.Model,
		Messages:    toWireMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, t := range req.Tools {
		wt := wireTool{Type: "function"}
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.Parameters
		wireReq.Tools = append(wireReq.Tools, wt)
	}
	if req.ForceTool != "" {
		wireReq.ToolChoice = map[string]any{
			"type":     "function",
			"function": map[string]string{"name": req.ForceTool},
		}
	} else if len(wireReq.Tools) > 0 {
		wireReq.ToolChoice = "required"
	}

	var resp *wireResponse
	op := func() error {
		r, err := c.doRequest(ctx, wireReq)
		if err != nil {
			if !bencherrors.Is(err, bencherrors.Transient) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, bencherrors.New(bencherrors.InfraFail, "empty choices in chat completion response", nil)
	}
	choice := resp.Choices[0]
	usage := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	c.ReportUsage(usage)

	return &ChatResponse{
		Message:      fromWireMessage(choice.Message),
		FinishReason: choice.FinishReason,
		Usage:        usage,
	}, nil
}

func (c *OpenAICompatClient) doRequest(ctx context.Context, wireReq wireRequest) (*wireResponse, error) {
	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, bencherrors.New(bencherrors.Fatal, "encoding chat completion request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, bencherrors.New(bencherrors.Fatal, "building chat completion request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, bencherrors.New(bencherrors.Transient, "calling chat completion endpoint", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, bencherrors.New(bencherrors.Transient, "reading chat completion response", err)
	}

	var wireResp wireResponse
	if err := json.Unmarshal(raw, &wireResp); err != nil {
		return nil, bencherrors.New(bencherrors.InfraFail, "decoding chat completion response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, bencherrors.New(bencherrors.Transient, fmt.Sprintf("chat completion status %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		reason := fmt.Sprintf("chat completion status %d", resp.StatusCode)
		if wireResp.Error != nil {
			reason = wireResp.Error.Message
		}
		return nil, bencherrors.New(bencherrors.Fatal, reason, nil)
	}

	return &wireResp, nil
}

// CountTokens implements Client with a cheap heuristic: roughly four
// characters per token, which is the same order-of-magnitude estimate the
// teacher's summarization budget code uses before a real tokenizer call
// (pkg/agent/controller/summarize.go).
func (c *OpenAICompatClient) CountTokens(_ context.Context, messages []Message) (int, error) {
	total := 0
	for _, m := range messages {
		total += len(m.Content) / 4
		for _, tc := range m.ToolCalls {
			total += len(tc.Arguments) / 4
		}
	}
	return total, nil
}

// ReportUsage implements Client.
func (c *OpenAICompatClient) ReportUsage(usage Usage) {
	c.totalTokens.Add(int64(usage.TotalTokens))
}

// TotalTokens returns the cumulative TotalTokens reported across every
// ChatWithTools call this client has made, for budget accounting.
func (c *OpenAICompatClient) TotalTokens() int64 {
	return c.totalTokens.Load()
}
