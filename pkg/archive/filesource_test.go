package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGzipFixture(t *testing.T, lines ...string) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	for _, line := range lines {
		gz.Write([]byte(line))
		gz.Write([]byte("\n"))
	}
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "dump.json.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestFileSourceServesContentsOnce(t *testing.T) {
	path := writeGzipFixture(t, mergedPREvent)
	src := &FileSource{Path: path}

	rc, err := src.FetchHour(context.Background(), time.Now())
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.NotEmpty(t, body)
	rc.Close()

	_, err = src.FetchHour(context.Background(), time.Now())
	assert.ErrorIs(t, err, io.EOF)
}

func TestFileSourceMissingFile(t *testing.T) {
	src := &FileSource{Path: filepath.Join(t.TempDir(), "missing.json.gz")}
	_, err := src.FetchHour(context.Background(), time.Now())
	assert.Error(t, err)
}
