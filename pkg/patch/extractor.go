// Package patch implements PatchExtractor (spec.md §4.5): given an
// enriched candidate, clone the repository at merge_commit, resolve
// base_commit as the true merge-base of the merge commit's two parents,
// and produce a unified diff of non-test files base..merge, verified by a
// dry-run apply. Repository open, commit lookup, and tree access go
// through the gitwrap.go types adapted from the teacher pack's pkg/gitlib
// wrapper (Sumatoshi-tech-codefang/pkg/gitlib). gitlib has no merge-base
// helper and its Diff type exposes no patch-text rendering or apply, so
// those three operations drop to the raw libgit2 handles via Native() —
// the same escape hatch gitlib's own diff.go uses internally for DiffBlobs.
package patch

import (
	"context"
	"fmt"
	"os"

	git2go "github.com/libgit2/git2go/v34"

	"github.com/prbench/prbench/pkg/bencherrors"
	"github.com/prbench/prbench/pkg/candidate"
	"github.com/prbench/prbench/pkg/filters"
)

// Extractor clones candidates into ephemeral workspaces under WorkDir,
// each deleted on every exit path per spec.md §4.5.
type Extractor struct {
	WorkDir string
}

// NewExtractor builds an Extractor that stages clones under workDir.
func NewExtractor(workDir string) *Extractor {
	return &Extractor{WorkDir: workDir}
}

// Extract clones repoURL, resolves the merge-base of cand.MergeCommit's
// two parents as the true base commit, and returns the non-test-file
// unified diff base..merge. Mutates cand.BaseCommit to the resolved value
// if it disagrees with the archive-reported one (the archive's base SHA
// can drift if the target branch moved after the PR was opened).
func (e *Extractor) Extract(ctx context.Context, repoURL string, cand *candidate.Candidate) (*candidate.Patch, error) {
	dir, err := os.MkdirTemp(e.WorkDir, "prbench-clone-*")
	if err != nil {
		return nil, bencherrors.New(bencherrors.InfraFail, "creating clone workspace", err)
	}
	defer os.RemoveAll(dir)

	repo, err := cloneRepo(ctx, repoURL, dir)
	if err != nil {
		return nil, bencherrors.New(bencherrors.Unsound, "clone_failed", err)
	}
	defer repo.Free()

	mergeHash, err := NewHash(cand.MergeCommit)
	if err != nil {
		return nil, bencherrors.New(bencherrors.Unsound, "base_unreachable", err)
	}
	mergeCommit, err := repo.LookupCommit(mergeHash)
	if err != nil {
		return nil, bencherrors.New(bencherrors.Unsound, "base_unreachable", err)
	}
	defer mergeCommit.Free()

	baseHash, err := resolveMergeBase(repo, mergeCommit)
	if err != nil {
		return nil, bencherrors.New(bencherrors.Unsound, "base_unreachable", err)
	}
	cand.BaseCommit = baseHash.String()

	baseCommit, err := repo.LookupCommit(baseHash)
	if err != nil {
		return nil, bencherrors.New(bencherrors.Unsound, "base_unreachable", err)
	}
	defer baseCommit.Free()

	baseTree, err := baseCommit.Tree()
	if err != nil {
		return nil, bencherrors.New(bencherrors.Unsound, "base_unreachable", err)
	}
	defer baseTree.Free()

	mergeTree, err := mergeCommit.Tree()
	if err != nil {
		return nil, bencherrors.New(bencherrors.InfraFail, "looking up merge tree", err)
	}
	defer mergeTree.Free()

	// DiffTreeToTree is the one gitlib-wrapped call that still returns a
	// raw *git2go.Diff: gitlib's own Diff type has no Native() accessor,
	// and ToBuf/ApplyDiff below need the libgit2 handle directly.
	diff, err := repo.DiffTreeToTree(baseTree, mergeTree)
	if err != nil {
		return nil, bencherrors.New(bencherrors.InfraFail, "diffing base..merge", err)
	}
	defer diff.Free()

	text, files, err := nonTestPatch(diff, cand.Language)
	if err != nil {
		return nil, bencherrors.New(bencherrors.InfraFail, "rendering patch", err)
	}

	if len(files) == 0 || text == "" {
		return nil, bencherrors.New(bencherrors.Unsound, "patch_empty", nil)
	}

	if err := dryRunApply(repo, baseTree, diff); err != nil {
		return nil, bencherrors.New(bencherrors.Unsound, "patch_conflict", err)
	}

	return &candidate.Patch{Text: text, Files: files}, nil
}

func cloneRepo(ctx context.Context, url, dir string) (*Repository, error) {
	opts := &git2go.CloneOptions{
		Bare: false,
		FetchOptions: &git2go.FetchOptions{
			DownloadTags: git2go.DownloadTagsNone,
		},
	}
	// git2go.Clone has no gitlib equivalent — gitlib only opens an
	// already-checked-out path (OpenRepository) — so clone raw, then
	// reopen through the wrapper for everything that follows.
	raw, err := git2go.Clone(url, dir, opts)
	if err != nil {
		return nil, fmt.Errorf("clone %s: %w", url, err)
	}
	raw.Free()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return OpenRepository(dir)
}

// resolveMergeBase computes the true base commit as the merge-base of a
// merge commit's two parents — the repository state immediately before
// the fix, independent of what the archive event happened to report for
// base_commit (which can drift if the target branch moved since). gitlib
// has no merge-base helper, so this is the first of the three places that
// drop to Native().
func resolveMergeBase(repo *Repository, mergeCommit *Commit) (Hash, error) {
	if mergeCommit.NumParents() < 2 {
		return Hash{}, fmt.Errorf("merge commit %s has fewer than two parents", mergeCommit.Native().Id().String())
	}
	p1 := mergeCommit.ParentHash(0).ToOid()
	p2 := mergeCommit.ParentHash(1).ToOid()
	baseOid, err := repo.Native().MergeBase(p1, p2)
	if err != nil {
		return Hash{}, err
	}
	return hashFromOid(baseOid), nil
}

// nonTestPatch renders diff as unified-diff text, excluding any file that
// matches the language's test-path heuristic (pkg/filters.IsTestPath), and
// returns the surviving file list.
func nonTestPatch(diff *git2go.Diff, language string) (string, []string, error) {
	numDeltas, err := diff.NumDeltas()
	if err != nil {
		return "", nil, err
	}

	var files []string
	for i := 0; i < numDeltas; i++ {
		delta, err := diff.Delta(i)
		if err != nil {
			return "", nil, err
		}
		path := delta.NewFile.Path
		if path == "" {
			path = delta.OldFile.Path
		}
		if filters.IsTestPath(path, language) {
			continue
		}
		files = append(files, path)
	}

	if len(files) == 0 {
		return "", nil, nil
	}

	// gitlib's Diff has no patch-text rendering at all (only NumDeltas,
	// Delta, ForEach, Stats) — ToBuf is the second drop to Native().
	raw, err := diff.ToBuf(git2go.DiffFormatPatch)
	if err != nil {
		return "", nil, err
	}

	return filterPatchToFiles(string(raw), files), files, nil
}

// dryRunApply verifies diff applies cleanly to baseTree without touching
// the working directory, satisfying spec.md §4.5's "verified by a dry-run
// apply" invariant. gitlib wraps no apply operation either — the third and
// last drop to Native().
func dryRunApply(repo *Repository, baseTree *Tree, diff *git2go.Diff) error {
	opts, err := git2go.DefaultApplyOptions()
	if err != nil {
		return err
	}
	idx, err := repo.Native().ApplyToTree(diff, baseTree.tree, opts)
	if err != nil {
		return err
	}
	idx.Free()
	return nil
}
