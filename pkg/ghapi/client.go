// Package ghapi implements the Enricher (spec.md §4.3): resolving a shallow
// candidate to authoritative PR metadata, repository metadata and the
// changed-file list via the code-hosting REST API, under a shared
// per-credential rate budget. It does not fetch the unified diff; pkg/patch
// renders that from a clone.
// Grounded on the teacher's pkg/runbook.GitHubClient (bearer-token GET
// requests against the GitHub API), generalized with a token-bucket
// limiter and classified-error backoff that runbook's fire-and-forget
// fetches never needed.
package ghapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/prbench/prbench/pkg/bencherrors"
	"github.com/prbench/prbench/pkg/candidate"
)

// Client fetches PR metadata, repository metadata, and changed files from
// a code-hosting REST API (GitHub-shaped: /repos/{owner}/{repo}/pulls/{number} and friends).
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limiter    *rate.Limiter
	maxRetries int
}

// New builds a Client against baseURL (e.g. "https://api.github.com")
// enforcing ratePerHour tokens/hour, shared across every call this client
// makes — the limiter is per-credential, so one Client per token.
func New(baseURL, token string, ratePerHour int, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      token,
		limiter:    rate.NewLimiter(rate.Limit(float64(ratePerHour)/3600.0), ratePerHour),
		maxRetries: 5,
	}
}

// prMetadata is the subset of the GitHub pulls API response the Enricher
// needs.
type prMetadata struct {
	Body string `json:"body"`
	Base struct {
		SHA string `json:"sha"`
	} `json:"base"`
	MergeCommitSHA string `json:"merge_commit_sha"`
}

type prFile struct {
	Filename string `json:"filename"`
}

type repoMetadata struct {
	Language      string `json:"language"`
	StargazersCnt int    `json:"stargazers_count"`
	Owner         struct {
		Type string `json:"type"`
	} `json:"owner"`
}

// Enrich fills in body, base/merge SHAs, star count, language, owner type,
// and changed files for cand, issuing three calls per candidate (PR, repo,
// PR files). It does not fetch the unified diff.
// Every call passes through the shared limiter first, then a retrying GET.
func (c *Client) Enrich(ctx context.Context, cand *candidate.Candidate) error {
	pr, err := c.fetchPRMetadata(ctx, cand.Repo, cand.Number)
	if err != nil {
		return err
	}
	cand.Body = pr.Body
	if pr.Base.SHA != "" {
		cand.BaseCommit = pr.Base.SHA
	}
	if pr.MergeCommitSHA != "" {
		cand.MergeCommit = pr.MergeCommitSHA
	}

	repoMeta, err := c.fetchRepoMetadata(ctx, cand.Repo)
	if err != nil {
		return err
	}
	cand.Stars = repoMeta.StargazersCnt
	cand.Language = repoMeta.Language
	cand.OwnerType = repoMeta.Owner.Type

	files, err := c.fetchChangedFiles(ctx, cand.Repo, cand.Number)
	if err != nil {
		return err
	}
	cand.ChangedFiles = files

	return nil
}

func (c *Client) fetchPRMetadata(ctx context.Context, repo candidate.Repo, number int) (*prMetadata, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.baseURL, repo.Owner, repo.Name, number)
	var out prMetadata
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) fetchRepoMetadata(ctx context.Context, repo candidate.Repo) (*repoMetadata, error) {
	url := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, repo.Owner, repo.Name)
	var out repoMetadata
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) fetchChangedFiles(ctx context.Context, repo candidate.Repo, number int) ([]string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/files", c.baseURL, repo.Owner, repo.Name, number)
	var files []prFile
	if err := c.getJSON(ctx, url, &files); err != nil {
		return nil, err
	}
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Filename
	}
	return out, nil
}

// getJSON performs a rate-limited, retrying GET and decodes the JSON body
// into target. Classifies failures per spec.md §4.3: 403/429/secondary
// rate-limit signals back off exponentially (base 2s, cap 60s, up to 5
// retries); a hard 404 is returned as a DataReject("gone") immediately,
// never retried.
func (c *Client) getJSON(ctx context.Context, url string, target any) error {
	var lastErr error
	backoffDelay := 2 * time.Second
	const maxBackoff = 60 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return bencherrors.New(bencherrors.Budget, "rate limiter wait cancelled", err)
		}

		status, body, err := c.doGet(ctx, url)
		if err != nil {
			return bencherrors.New(bencherrors.Transient, "enrichment HTTP call failed", err)
		}

		switch {
		case status == http.StatusOK:
			if err := json.Unmarshal(body, target); err != nil {
				return bencherrors.New(bencherrors.InfraFail, "decoding enrichment response", err)
			}
			return nil

		case status == http.StatusNotFound:
			return bencherrors.New(bencherrors.DataReject, "gone", nil)

		case status == http.StatusForbidden, status == http.StatusTooManyRequests, isSecondaryRateLimit(body):
			lastErr = fmt.Errorf("rate-limited (status %d)", status)
			if attempt == c.maxRetries {
				return bencherrors.New(bencherrors.Unsound, "enrich_failed", lastErr)
			}
			select {
			case <-time.After(backoffDelay):
			case <-ctx.Done():
				return bencherrors.New(bencherrors.Transient, "context cancelled during backoff", ctx.Err())
			}
			backoffDelay *= 2
			if backoffDelay > maxBackoff {
				backoffDelay = maxBackoff
			}
			continue

		default:
			return bencherrors.New(bencherrors.InfraFail, fmt.Sprintf("unexpected status %d", status), nil)
		}
	}

	return bencherrors.New(bencherrors.Unsound, "enrich_failed", lastErr)
}

func (c *Client) doGet(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	return resp.StatusCode, body, nil
}

func isSecondaryRateLimit(body []byte) bool {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	msg := strings.ToLower(payload.Message)
	return strings.Contains(msg, "secondary rate limit") || strings.Contains(msg, "abuse detection")
}
