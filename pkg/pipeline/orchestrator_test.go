package pipeline

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prbench/prbench/pkg/candidate"
	"github.com/prbench/prbench/pkg/ghapi"
	"github.com/prbench/prbench/pkg/llm"
	"github.com/prbench/prbench/pkg/prcache"
)

// oneHourSource is an archive.Source fake serving a single PullRequestEvent
// on hour, nothing on any other hour requested.
type oneHourSource struct {
	hour  time.Time
	event string
}

func (s *oneHourSource) FetchHour(_ context.Context, hour time.Time) (io.ReadCloser, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if hour.Equal(s.hour) {
		gz.Write([]byte(s.event))
		gz.Write([]byte("\n"))
	}
	gz.Close()
	return io.NopCloser(&buf), nil
}

const enrichCandidateEvent = `{"type":"PullRequestEvent","repo":{"name":"acme/widgets"},"payload":{"action":"closed","pull_request":{"merged":true,"number":7,"merged_at":"2024-01-01T00:00:00Z","title":"fix the widget","base":{"sha":"base000"},"merge_commit_sha":"merge000","user":{"login":"alice","type":"User"}}}}`

// countingGHAPIServer serves the three Enrich endpoints with org-owned,
// allowlisted-language, in-bounds metadata, counting how many times the
// PR-metadata endpoint (the first of the three Enrich calls) is hit.
func countingGHAPIServer(t *testing.T, stars int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"body":             "does the fix",
			"base":             map[string]string{"sha": "base000"},
			"merge_commit_sha": "merge000",
		})
	})
	mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"language":         "Python",
			"stargazers_count": stars,
			"owner":            map[string]string{"type": "Organization"},
		})
	})
	mux.HandleFunc("/repos/acme/widgets/pulls/7/files", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]string{{"filename": "widget.py"}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

type noopExporter struct{}

func (noopExporter) Export(candidate.TaskInstance) error { return nil }

func classifyScript(classification candidate.Difficulty) llm.ScriptEntry {
	args, _ := json.Marshal(map[string]any{"classification": classification, "score": 0.5, "reasoning": "test"})
	return llm.ScriptEntry{Response: &llm.ChatResponse{
		Message: llm.Message{ToolCalls: []llm.ToolCall{{Name: "classify_difficulty", Arguments: string(args)}}},
	}}
}

func newTestDeps(t *testing.T, src *oneHourSource, ghapiURL string, llmClient llm.Client) Deps {
	t.Helper()
	cache, err := prcache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	return Deps{
		Archive:   src,
		StartHour: src.hour,
		EndHour:   src.hour,
		GHAPI:     ghapi.New(ghapiURL, "", 5000, nil),
		LLMClient: llmClient,
		Cache:     cache,
		Exporter:  noopExporter{},
		Budget:    NewLLMBudget(100, 0),
	}
}

// TestOrchestratorRunEndToEnd exercises Run() through every pre-deep stage
// against real stage logic and fakes for the external dependencies: a
// single candidate clears preFilter, the dedup gate, enrichment (a real
// HTTP round trip to an httptest server), and the local filter, then is
// classified by a mocked LLM call. DifficultyTargets{easy: 0} is already
// satisfied, so pre-classification itself rejects the candidate as
// quota_full instead of forwarding it to deepStage — keeping this test
// free of libgit2 and Docker while still covering the full streaming
// pipeline wiring up through pre-classification.
func TestOrchestratorRunEndToEnd(t *testing.T) {
	hour := time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC)
	src := &oneHourSource{hour: hour, event: enrichCandidateEvent}
	srv, ghapiCalls := countingGHAPIServer(t, 500)

	llmClient := llm.NewMockClient(classifyScript(candidate.DifficultyEasy))

	deps := newTestDeps(t, src, srv.URL, llmClient)
	deps.LocalFilter.Languages = []string{"Python"}
	deps.LocalFilter.MaxFiles = 10

	o := NewOrchestrator(deps, Config{
		DifficultyTargets: DifficultyTargets{candidate.DifficultyEasy: 0},
	}, nil)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Seen)
	assert.Equal(t, 0, summary.Exported)
	assert.Equal(t, 1, summary.RejectedBy["quota_full"])
	assert.True(t, summary.TargetsMet)
	assert.Equal(t, int32(1), ghapiCalls.Load(), "enrichment should have run exactly once")
	assert.Equal(t, 1, llmClient.Calls(), "pre-classification should have run exactly once")
}

// TestOrchestratorDedupSkipsReEnrichOnRerun is the regression test for the
// cache-insert ordering fix: spec.md §5 requires the cache dedup check to
// happen before enrichment, so re-running Run() against the same cache
// must not spend a second enrichment call on a candidate the first run
// already recorded (here, rejected by the local filter's star floor).
func TestOrchestratorDedupSkipsReEnrichOnRerun(t *testing.T) {
	hour := time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC)
	src := &oneHourSource{hour: hour, event: enrichCandidateEvent}
	srv, ghapiCalls := countingGHAPIServer(t, 1) // below MinStars, rejected at local filter

	llmClient := llm.NewMockClient() // never reached if dedup/local-filter work correctly

	deps := newTestDeps(t, src, srv.URL, llmClient)
	deps.LocalFilter.Languages = []string{"Python"}
	deps.LocalFilter.MinStars = 100
	deps.LocalFilter.MaxFiles = 10

	cfg := Config{}

	o1 := NewOrchestrator(deps, cfg, nil)
	summary1, err := o1.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary1.Seen)
	assert.Equal(t, 1, summary1.RejectedBy["insufficient_stars"])
	require.Equal(t, int32(1), ghapiCalls.Load(), "first run enriches once")

	o2 := NewOrchestrator(deps, cfg, nil)
	summary2, err := o2.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary2.Seen, "ingest still reports the candidate as seen")
	assert.Equal(t, 0, summary2.RejectedBy["insufficient_stars"], "already-cached candidate is skipped, not rejected again")
	assert.Equal(t, int32(1), ghapiCalls.Load(), "second run must not re-enrich a candidate the cache already recorded")
}
