package harness

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"golang.org/x/sync/semaphore"

	"github.com/prbench/prbench/pkg/bencherrors"
	"github.com/prbench/prbench/pkg/candidate"
)

// workspaceDoc mirrors pkg/export's on-disk workspace.yaml schema for the
// read path.
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

// LoadTaskInstance reads one exported task directory back into a
// candidate.TaskInstance.
func LoadTaskInstance(dir string) (candidate.TaskInstance, error) {
	var ti candidate.TaskInstance

	raw, err := os.ReadFile(filepath.Join(dir, "workspace.yaml"))
	if err != nil {
		return ti, bencherrors.New(bencherrors.Fatal, "reading workspace.yaml", err)
	}
	var doc workspaceDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return ti, bencherrors.New(bencherrors.Fatal, "parsing workspace.yaml", err)
	}

	owner, name, ok := splitRepo(doc.Repo)
	if !ok {
		return ti, bencherrors.New(bencherrors.Fatal, "malformed repo field in workspace.yaml: "+doc.Repo, nil)
	}

	prompt, err := os.ReadFile(filepath.Join(dir, "prompt.md"))
	if err != nil {
		return ti, bencherrors.New(bencherrors.Fatal, "reading prompt.md", err)
	}

	patchText, err := os.ReadFile(filepath.Join(dir, "patch.diff"))
	if err != nil {
		return ti, bencherrors.New(bencherrors.Fatal, "reading patch.diff", err)
	}

	spec, err := parseChecks(filepath.Join(dir, "checks.txt"))
	if err != nil {
		return ti, err
	}

	return candidate.TaskInstance{
		TaskID:       doc.TaskID,
		Repo:         candidate.Repo{Owner: owner, Name: name},
		BaseCommit:   doc.BaseCommit,
		MergeCommit:  doc.MergeCommit,
		Language:     doc.Language,
		Difficulty:   candidate.Difficulty(doc.Difficulty),
		QualityScore: doc.QualityScore,
		Prompt:       string(prompt),
		Patch:        candidate.Patch{Text: string(patchText)},
		TestSpec:     spec,
		Canary:       doc.Canary,
		Environment:  candidate.Environment{BaseImage: doc.Environment.BaseImage, Setup: doc.Environment.Setup},
	}, nil
}

func splitRepo(full string) (owner, name string, ok bool) {
	for i := 0; i < len(full); i++ {
		if full[i] == '/' {
			return full[:i], full[i+1:], true
		}
	}
	return "", "", false
}

// parseChecks reads checks.txt's "[fail_to_pass]"/"[pass_to_pass]"
// sections back into a TestSpec.
func parseChecks(path string) (candidate.TestSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return candidate.TestSpec{}, bencherrors.New(bencherrors.Fatal, "reading checks.txt", err)
	}
	defer f.Close()

	var spec candidate.TestSpec
	section := ""
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "[fail_to_pass]":
			section = "fail_to_pass"
		case line == "[pass_to_pass]":
			section = "pass_to_pass"
		case section == "fail_to_pass":
			spec.FailToPass = append(spec.FailToPass, line)
		case section == "pass_to_pass":
			spec.PassToPass = append(spec.PassToPass, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return candidate.TestSpec{}, bencherrors.New(bencherrors.Fatal, "scanning checks.txt", err)
	}
	return spec, nil
}

// DiscoverTaskDirs lists every exported task directory under root (every
// immediate subdirectory containing a workspace.yaml).
func DiscoverTaskDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, bencherrors.New(bencherrors.Fatal, "reading input_dir", err)
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(p, "workspace.yaml")); err == nil {
			dirs = append(dirs, p)
		}
	}
	return dirs, nil
}

// RunAll evaluates every task under dirs with up to `parallel` tasks
// concurrently, per spec.md §4.12's "up to parallel tasks concurrently;
// containers never share state." Grounded on the teacher's WorkerPool
// bounded-concurrency shape (pkg/queue/pool.go), generalized from a
// DB-claim loop to a plain semaphore-gated fan-out over a static task
// list, since the harness has no queue to poll — every task is already
// known up front.
func RunAll(ctx context.Context, h *Harness, dirs []string, parallel int, agentFor func(candidate.TaskInstance) Agent) []Result {
	if parallel <= 0 {
		parallel = 1
	}
	sem := semaphore.NewWeighted(int64(parallel))
	results := make([]Result, len(dirs))
	var wg sync.WaitGroup

	for i, dir := range dirs {
		ti, err := LoadTaskInstance(dir)
		if err != nil {
			results[i] = Result{TaskID: dir, Status: StatusSetupError, Detail: err.Error()}
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = Result{TaskID: ti.TaskID, Status: StatusSetupError, Detail: "cancelled before start"}
			continue
		}

		wg.Add(1)
		go func(i int, ti candidate.TaskInstance) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = h.Evaluate(ctx, ti, agentFor(ti))
		}(i, ti)
	}

	wg.Wait()
	return results
}
