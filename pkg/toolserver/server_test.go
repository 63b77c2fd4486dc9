package toolserver

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, workspaceDir string) *Client {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(workspaceDir)
	go func() { _ = srv.StartWithListener(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return NewClient("http://"+ln.Addr().String(), nil)
}

func TestReadFileAndListDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	client := startTestServer(t, dir)

	readResp, err := client.ReadFile(context.Background(), "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", readResp.Content)

	listResp, err := client.ListDir(context.Background(), "")
	require.NoError(t, err)
	names := map[string]bool{}
	for _, e := range listResp.Entries {
		names[e.Name] = e.IsDir
	}
	assert.True(t, names["sub"])
	assert.False(t, names["a.txt"])
}

func TestReadFileRejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	client := startTestServer(t, dir)

	resp, err := client.ReadFile(context.Background(), "../../../etc/passwd")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Error)
	assert.Empty(t, resp.Content)
}

func TestGrepFindsMatches(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("def foo():\n    return needle\n"), 0o644))

	client := startTestServer(t, dir)

	resp, err := client.Grep(context.Background(), "needle", "")
	require.NoError(t, err)
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, "a.py", resp.Matches[0].Path)
	assert.Equal(t, 2, resp.Matches[0].Line)
}
