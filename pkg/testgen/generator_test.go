package testgen

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prbench/prbench/pkg/toolserver"
)

func startTestToolServer(t *testing.T, workspaceDir string) *toolserver.Client {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := toolserver.New(workspaceDir)
	go func() { _ = srv.StartWithListener(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return toolserver.NewClient("http://"+ln.Addr().String(), nil)
}

func TestStructuredObservationServesCatAndLs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	g := &Generator{Config: NewConfig(Config{}), toolClient: startTestToolServer(t, dir)}

	obs, handled := g.structuredObservation(context.Background(), "cat a.txt")
	require.True(t, handled)
	assert.Contains(t, obs, "exit_code=0")
	assert.Contains(t, obs, "hello")

	obs, handled = g.structuredObservation(context.Background(), "ls")
	require.True(t, handled)
	assert.Contains(t, obs, "sub")
}

func TestStructuredObservationFallsThroughForUnrecognizedCommands(t *testing.T) {
	g := &Generator{Config: NewConfig(Config{}), toolClient: startTestToolServer(t, t.TempDir())}

	_, handled := g.structuredObservation(context.Background(), "pytest tests/")
	assert.False(t, handled)

	_, handled = g.structuredObservation(context.Background(), "grep -r needle .")
	assert.False(t, handled, "flagged grep invocations fall back to a real shell exec")
}
