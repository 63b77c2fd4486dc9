package ghapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prbench/prbench/pkg/bencherrors"
	"github.com/prbench/prbench/pkg/candidate"
)

func TestEnrichPopulatesCandidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/pulls/42/files"):
			_ = json.NewEncoder(w).Encode([]map[string]string{{"filename": "src/x.py"}})
		case strings.HasSuffix(r.URL.Path, "/pulls/42"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"body":             "fixes the bug",
				"base":             map[string]string{"sha": "aaa"},
				"merge_commit_sha": "bbb",
			})
		case strings.HasSuffix(r.URL.Path, "/acme/foo"):
			_ = json.NewEncoder(w).Encode(map[string]any{"language": "Python", "stargazers_count": 100})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", 5000, nil)
	cand := &candidate.Candidate{Repo: candidate.Repo{Owner: "acme", Name: "foo"}, Number: 42}

	err := c.Enrich(context.Background(), cand)
	require.NoError(t, err)
	assert.Equal(t, "fixes the bug", cand.Body)
	assert.Equal(t, "bbb", cand.MergeCommit)
	assert.Equal(t, "Python", cand.Language)
	assert.Equal(t, 100, cand.Stars)
	assert.Equal(t, []string{"src/x.py"}, cand.ChangedFiles)
}

func TestEnrich404IsGoneDataReject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", 5000, nil)
	cand := &candidate.Candidate{Repo: candidate.Repo{Owner: "acme", Name: "foo"}, Number: 42}

	err := c.Enrich(context.Background(), cand)
	require.Error(t, err)
	assert.True(t, bencherrors.Is(err, bencherrors.DataReject))
	assert.Equal(t, "gone", bencherrors.ReasonOf(err))
}
