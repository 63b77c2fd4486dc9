package toolserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/prbench/prbench/pkg/bencherrors"
)

// Client calls a running tool server, typically reached at a container's
// published localhost port from the agent loop's host process.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a Client targeting baseURL (e.g. "http://127.0.0.1:8751").
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

func (c *Client) post(ctx context.Context, path string, req, resp any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return bencherrors.New(bencherrors.Fatal, "encoding tool request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return bencherrors.New(bencherrors.Fatal, "building tool request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return bencherrors.New(bencherrors.InfraFail, "calling tool server", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return bencherrors.New(bencherrors.InfraFail, "reading tool server response", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return bencherrors.New(bencherrors.InfraFail, fmt.Sprintf("tool server returned %d", httpResp.StatusCode), nil)
	}

	if err := json.Unmarshal(data, resp); err != nil {
		return bencherrors.New(bencherrors.InfraFail, "decoding tool server response", err)
	}
	return nil
}

// ReadFile reads a workspace-relative file via the in-container tool server.
func (c *Client) ReadFile(ctx context.Context, path string) (ReadFileResponse, error) {
	var resp ReadFileResponse
	err := c.post(ctx, "/tools/read_file", ReadFileRequest{Path: path}, &resp)
	return resp, err
}

// ListDir lists a workspace-relative directory.
func (c *Client) ListDir(ctx context.Context, path string) (ListDirResponse, error) {
	var resp ListDirResponse
	err := c.post(ctx, "/tools/list_dir", ListDirRequest{Path: path}, &resp)
	return resp, err
}

// Grep searches the workspace (or a subtree of it) for a literal substring.
func (c *Client) Grep(ctx context.Context, pattern, path string) (GrepResponse, error) {
	var resp GrepResponse
	err := c.post(ctx, "/tools/grep", GrepRequest{Pattern: pattern, Path: path}, &resp)
	return resp, err
}

// ApplyPatch applies a unified diff to the workspace via `git apply`.
func (c *Client) ApplyPatch(ctx context.Context, patch string) (ApplyPatchResponse, error) {
	var resp ApplyPatchResponse
	err := c.post(ctx, "/tools/apply_patch", ApplyPatchRequest{Patch: patch}, &resp)
	return resp, err
}
