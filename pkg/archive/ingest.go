// Package archive implements ArchiveIngest (spec.md §4.1): streaming
// hourly event-archive dumps into a lazy sequence of shallow Candidate
// PRs. Grounded on the teacher's WorkerPool start/stop shape
// (pkg/queue/pool.go) for the fan-out-with-bounded-concurrency pattern,
// generalized from a fixed worker count to an x/sync/semaphore-governed
// per-hour fetch. gzip/ndjson decoding itself has no counterpart anywhere
// in the retrieved pack (no example repo parses a compressed event dump),
// so it is built directly on compress/gzip + bufio.Scanner + encoding/json
// — the only stdlib-only piece of this package, justified in DESIGN.md.
package archive

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/prbench/prbench/pkg/bencherrors"
	"github.com/prbench/prbench/pkg/candidate"
)

// Source fetches one hour's dump. Satisfied by HTTPSource in production and
// by a fixture-backed fake in tests.
type Source interface {
	FetchHour(ctx context.Context, hour time.Time) (io.ReadCloser, error)
}

// HTTPSource fetches hourly dumps from a well-known base URL of the form
// "{base}/YYYY-MM-DD-H.json.gz", per spec.md §6.
type HTTPSource struct {
	BaseURL    string
	HTTPClient *http.Client
}

// FetchHour implements Source.
func (s *HTTPSource) FetchHour(ctx context.Context, hour time.Time) (io.ReadCloser, error) {
	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	url := fmt.Sprintf("%s/%s.json.gz", s.BaseURL, hour.UTC().Format("2006-01-02-15"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, bencherrors.New(bencherrors.Fatal, "building archive fetch request", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, bencherrors.New(bencherrors.Transient, "fetching archive hour "+url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, bencherrors.New(bencherrors.Transient, fmt.Sprintf("archive fetch status %d for %s", resp.StatusCode, url), nil)
	}
	return resp.Body, nil
}

// ghEvent is the subset of a GH Archive PullRequestEvent this ingest cares
// about. Every line is decoded into this struct; events of any other type,
// or not closed-and-merged, are then dropped.
type ghEvent struct {
	Type    string `json:"type"`
	Payload struct {
		Action      string `json:"action"`
		PullRequest struct {
			Merged   bool   `json:"merged"`
			Number   int    `json:"number"`
			MergedAt string `json:"merged_at"`
			Title    string `json:"title"`
			Base     struct {
				SHA string `json:"sha"`
			} `json:"base"`
			MergeCommit string `json:"merge_commit_sha"`
			User        struct {
				Login string `json:"login"`
				Type  string `json:"type"`
			} `json:"user"`
		} `json:"pull_request"`
	} `json:"payload"`
	Repo struct {
		Name string `json:"name"` // "owner/name"
	} `json:"repo"`
}

// Ingest streams shallow candidates for an inclusive range of archive
// hours, fanning up to maxInFlight hours out concurrently (default 8 per
// spec.md §4.1). A single failed hour logs a warning and is skipped; two
// consecutive failures within one fetch-and-scan pass surface as a
// Transient stage error via errs, without stopping the remaining hours.
func Ingest(ctx context.Context, src Source, start, end time.Time, maxInFlight int, out chan<- candidate.Candidate, errs chan<- error) {
	defer close(out)

	sem := semaphore.NewWeighted(int64(maxInFlight))
	hours := hourRange(start, end)

	done := make(chan struct{}, len(hours))
	var consecutiveFailures atomic.Int32

	for _, hour := range hours {
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func(hour time.Time) {
			defer sem.Release(1)
			defer func() { done <- struct{}{} }()
			if err := ingestHour(ctx, src, hour, out); err != nil {
				slog.Warn("archive hour fetch failed", "hour", hour, "error", err)
				if consecutiveFailures.Add(1) >= 2 {
					select {
					case errs <- bencherrors.New(bencherrors.Transient, "two consecutive archive hour failures", err):
					default:
					}
				}
			} else {
				consecutiveFailures.Store(0)
			}
		}(hour)
	}

	for range hours {
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
}

func ingestHour(ctx context.Context, src Source, hour time.Time, out chan<- candidate.Candidate) error {
	body, err := src.FetchHour(ctx, hour)
	if err != nil {
		return err
	}
	defer body.Close()

	gz, err := gzip.NewReader(body)
	if err != nil {
		return bencherrors.New(bencherrors.Transient, "decompressing archive hour "+hour.String(), err)
	}
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := scanner.Bytes()
		var ev ghEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue // malformed line, skip without aborting the hour
		}
		if ev.Type != "PullRequestEvent" || ev.Payload.Action != "closed" || !ev.Payload.PullRequest.Merged {
			continue
		}

		cand, ok := toCandidate(ev)
		if !ok {
			continue
		}

		select {
		case out <- cand:
		case <-ctx.Done():
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return bencherrors.New(bencherrors.Transient, "scanning archive hour "+hour.String(), err)
	}
	return nil
}

func toCandidate(ev ghEvent) (candidate.Candidate, bool) {
	owner, name, ok := splitRepoName(ev.Repo.Name)
	if !ok {
		return candidate.Candidate{}, false
	}

	mergedAt, err := time.Parse(time.RFC3339, ev.Payload.PullRequest.MergedAt)
	if err != nil {
		return candidate.Candidate{}, false
	}

	return candidate.Candidate{
		Repo:        candidate.Repo{Owner: owner, Name: name},
		Number:      ev.Payload.PullRequest.Number,
		MergedAt:    mergedAt,
		Title:       ev.Payload.PullRequest.Title,
		BaseCommit:  ev.Payload.PullRequest.Base.SHA,
		MergeCommit: ev.Payload.PullRequest.MergeCommit,
		AuthorLogin: ev.Payload.PullRequest.User.Login,
		AuthorType:  ev.Payload.PullRequest.User.Type,
	}, true
}

func splitRepoName(full string) (owner, name string, ok bool) {
	for i := 0; i < len(full); i++ {
		if full[i] == '/' {
			return full[:i], full[i+1:], true
		}
	}
	return "", "", false
}

func hourRange(start, end time.Time) []time.Time {
	var hours []time.Time
	for t := start; !t.After(end); t = t.Add(time.Hour) {
		hours = append(hours, t)
	}
	return hours
}
