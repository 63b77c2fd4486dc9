// Package export writes a TaskInstance to the on-disk directory layout
// spec.md §6 fixes: workspace.yaml, prompt.md, checks.txt, patch.diff
// under a stable "owner-repo-number/" directory. Grounded on the
// teacher's config-loading use of gopkg.in/yaml.v3 for structured
// on-disk documents (config.yaml across the pack's cmd/ entrypoints),
// mirrored here for the write path instead of the read path.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/prbench/prbench/pkg/bencherrors"
	"github.com/prbench/prbench/pkg/candidate"
)

// Writer writes task instances under Root, one stable-named directory per
// task.
type Writer struct {
	Root string
}

// NewWriter builds a Writer rooted at dir, creating it if absent.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, bencherrors.New(bencherrors.InfraFail, "creating export root", err)
	}
	return &Writer{Root: dir}, nil
}

// workspaceDoc is workspace.yaml's schema, spec.md §6, verbatim field
// order and shape.
type workspaceDoc struct {
	TaskID       string      `yaml:"task_id"`
	Repo         string      `yaml:"repo"`
	BaseCommit   string      `yaml:"base_commit"`
	MergeCommit  string      `yaml:"merge_commit"`
	Language     string      `yaml:"language"`
	Difficulty   string      `yaml:"difficulty"`
	QualityScore float64     `yaml:"quality_score"`
	Environment  environment `yaml:"environment"`
	Canary       string      `yaml:"canary"`
}

type environment struct {
	BaseImage string   `yaml:"base_image"`
	Setup     []string `yaml:"setup"`
}

// Export writes every file of ti's on-disk task instance under
// Root/ti.DirName(), atomically enough that a process killed mid-write
// leaves a directory named with a ".partial" suffix rather than a
// half-written final one.
func (w *Writer) Export(ti candidate.TaskInstance) error {
	final := filepath.Join(w.Root, ti.DirName())
	partial := final + ".partial"

	if err := os.RemoveAll(partial); err != nil {
		return bencherrors.New(bencherrors.InfraFail, "clearing stale partial export dir", err)
	}
	if err := os.MkdirAll(partial, 0o755); err != nil {
		return bencherrors.New(bencherrors.InfraFail, "creating export dir", err)
	}

	if err := writeWorkspaceYAML(partial, ti); err != nil {
		return err
	}
	if err := writeFile(partial, "prompt.md", ti.Prompt); err != nil {
		return err
	}
	if err := writeFile(partial, "checks.txt", renderChecks(ti.TestSpec)); err != nil {
		return err
	}
	if err := writeFile(partial, "patch.diff", ti.Patch.Text); err != nil {
		return err
	}

	if err := os.RemoveAll(final); err != nil {
		return bencherrors.New(bencherrors.InfraFail, "clearing prior export dir", err)
	}
	if err := os.Rename(partial, final); err != nil {
		return bencherrors.New(bencherrors.InfraFail, "finalizing export dir", err)
	}

	return nil
}

func writeWorkspaceYAML(dir string, ti candidate.TaskInstance) error {
	doc := workspaceDoc{
		TaskID:       ti.TaskID,
		Repo:         ti.Repo.String(),
		BaseCommit:   ti.BaseCommit,
		MergeCommit:  ti.MergeCommit,
		Language:     ti.Language,
		Difficulty:   string(ti.Difficulty),
		QualityScore: ti.QualityScore,
		Environment:  environment{BaseImage: ti.Environment.BaseImage, Setup: ti.Environment.Setup},
		Canary:       ti.Canary,
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return bencherrors.New(bencherrors.InfraFail, "marshaling workspace.yaml", err)
	}
	return writeFile(dir, "workspace.yaml", string(raw))
}

// renderChecks renders checks.txt's two sections, one shell command per
// line, per spec.md §6.
func renderChecks(spec candidate.TestSpec) string {
	var b strings.Builder
	b.WriteString("[fail_to_pass]\n")
	for _, c := range spec.FailToPass {
		fmt.Fprintln(&b, c)
	}
	b.WriteString("\n[pass_to_pass]\n")
	for _, c := range spec.PassToPass {
		fmt.Fprintln(&b, c)
	}
	return b.String()
}

func writeFile(dir, name, content string) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return bencherrors.New(bencherrors.InfraFail, "writing "+name, err)
	}
	return nil
}
