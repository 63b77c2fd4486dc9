package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prbench/prbench/pkg/candidate"
)

type fakeSource struct {
	hours map[time.Time][]string // hour -> ndjson lines (already valid JSON)
	fail  map[time.Time]bool
}

func (f *fakeSource) FetchHour(_ context.Context, hour time.Time) (io.ReadCloser, error) {
	if f.fail[hour] {
		return nil, assertErr
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	for _, line := range f.hours[hour] {
		gz.Write([]byte(line))
		gz.Write([]byte("\n"))
	}
	gz.Close()
	return io.NopCloser(&buf), nil
}

var assertErr = assertError("fetch failed")

type assertError string

func (e assertError) Error() string { return string(e) }

const mergedPREvent = `{"type":"PullRequestEvent","repo":{"name":"acme/foo"},"payload":{"action":"closed","pull_request":{"merged":true,"number":42,"merged_at":"2024-01-01T00:00:00Z","title":"fix bug","base":{"sha":"aaa"},"merge_commit_sha":"bbb","user":{"login":"alice","type":"User"}}}}`
const closedUnmergedEvent = `{"type":"PullRequestEvent","repo":{"name":"acme/foo"},"payload":{"action":"closed","pull_request":{"merged":false,"number":43}}}`
const pushEvent = `{"type":"PushEvent","repo":{"name":"acme/foo"}}`

func TestIngestFiltersToMergedPullRequests(t *testing.T) {
	hour := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{hours: map[time.Time][]string{
		hour: {mergedPREvent, closedUnmergedEvent, pushEvent},
	}}

	out := make(chan candidate.Candidate, 10)
	errs := make(chan error, 10)

	Ingest(context.Background(), src, hour, hour, 4, out, errs)

	var got []candidate.Candidate
	for c := range out {
		got = append(got, c)
	}
	require.Len(t, got, 1)
	assert.Equal(t, 42, got[0].Number)
	assert.Equal(t, "acme", got[0].Repo.Owner)
	assert.Equal(t, "foo", got[0].Repo.Name)
	assert.Equal(t, "bbb", got[0].MergeCommit)
}

func TestIngestSkipsFailedHourWithoutAbortingOthers(t *testing.T) {
	hour1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	hour2 := hour1.Add(time.Hour)
	src := &fakeSource{
		hours: map[time.Time][]string{hour2: {mergedPREvent}},
		fail:  map[time.Time]bool{hour1: true},
	}

	out := make(chan candidate.Candidate, 10)
	errs := make(chan error, 10)

	Ingest(context.Background(), src, hour1, hour2, 4, out, errs)

	var got []candidate.Candidate
	for c := range out {
		got = append(got, c)
	}
	require.Len(t, got, 1)
}
