package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prbench/prbench/pkg/candidate"
)

func sampleTaskInstance() candidate.TaskInstance {
	r := candidate.Repo{Owner: "acme", Name: "widget"}
	return candidate.TaskInstance{
		TaskID:       candidate.NewTaskID(r, 42),
		Repo:         r,
		Number:       42,
		BaseCommit:   "base123",
		MergeCommit:  "merge456",
		Language:     "python",
		Difficulty:   candidate.DifficultyMedium,
		QualityScore: 0.8,
		Prompt:       "Fix the off-by-one bug.\n\nReference token (do not remove): canary-xyz",
		Patch:        candidate.Patch{Text: "diff --git a/x.py b/x.py\n", Files: []string{"x.py"}},
		TestSpec:     candidate.TestSpec{FailToPass: []string{"pytest tests/test_x.py::test_bug"}, PassToPass: []string{"pytest tests/test_y.py"}},
		Canary:       "canary-xyz",
		Environment:  candidate.Environment{BaseImage: "python:3.11", Setup: []string{"pip install -e ."}},
	}
}

func TestExportWritesAllFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)

	ti := sampleTaskInstance()
	require.NoError(t, w.Export(ti))

	taskDir := filepath.Join(dir, ti.DirName())
	assert.Equal(t, "acme-widget-42", ti.DirName())

	for _, name := range []string{"workspace.yaml", "prompt.md", "checks.txt", "patch.diff"} {
		_, err := os.Stat(filepath.Join(taskDir, name))
		assert.NoError(t, err, "expected %s to exist", name)
	}

	checks, err := os.ReadFile(filepath.Join(taskDir, "checks.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(checks), "[fail_to_pass]")
	assert.Contains(t, string(checks), "[pass_to_pass]")
	assert.Contains(t, string(checks), "pytest tests/test_x.py::test_bug")

	workspace, err := os.ReadFile(filepath.Join(taskDir, "workspace.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(workspace), "task_id: acme/widget-42")
	assert.Contains(t, string(workspace), "canary-xyz")
}

func TestExportOverwritesExistingDir(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)

	ti := sampleTaskInstance()
	require.NoError(t, w.Export(ti))

	ti.Prompt = "a different prompt entirely"
	require.NoError(t, w.Export(ti))

	prompt, err := os.ReadFile(filepath.Join(dir, ti.DirName(), "prompt.md"))
	require.NoError(t, err)
	assert.Equal(t, "a different prompt entirely", string(prompt))
}
