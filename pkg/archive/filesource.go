package archive

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/prbench/prbench/pkg/bencherrors"
)

// FileSource replays a single local gzip JSON-lines dump through the same
// Ingest path as HTTPSource, for the mine CLI's pr_file option (spec.md
// §6): offline or fixture-driven mining runs without a live archive
// endpoint. The dump must use the same PullRequestEvent ndjson schema as
// the hourly archive files. Ingest asks for one FetchHour per hour in its
// configured range; FileSource serves the file's contents on the first
// call and io.EOF on every call after, so callers should pass a
// single-hour range when using it.
type FileSource struct {
	Path string

	mu     sync.Mutex
	served bool
}

// FetchHour implements Source.
func (s *FileSource) FetchHour(_ context.Context, _ time.Time) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return nil, io.EOF
	}
	s.served = true

	f, err := os.Open(s.Path)
	if err != nil {
		return nil, bencherrors.New(bencherrors.Fatal, "opening pr_file", err)
	}
	return f, nil
}
