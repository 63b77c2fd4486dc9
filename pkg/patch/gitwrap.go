// gitwrap.go adapts the teacher pack's pkg/gitlib wrapper
// (Sumatoshi-tech-codefang/pkg/gitlib) into prbench's domain: thin Go types
// around libgit2 handles with explicit Free(), trimmed to the repository
// open / commit lookup / tree access that PatchExtractor needs. Repository
// and Commit expose Native() for the handful of operations gitlib itself never wraps
// (merge-base resolution, diff-to-patch-text rendering, diff application) —
// the same escape hatch gitlib's own diff.go uses for DiffBlobs.
package patch

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// Hash is a git object hash, ported from gitlib.Hash so extractor.go can
// move between hex strings and libgit2 Oids without touching git2go types
// directly outside the three gap operations.
type Hash [20]byte

// NewHash parses a hex-encoded SHA-1 into a Hash.
func NewHash(hex string) (Hash, error) {
	oid, err := git2go.NewOid(hex)
	if err != nil {
		return Hash{}, err
	}
	return hashFromOid(oid), nil
}

func hashFromOid(oid *git2go.Oid) Hash {
	var h Hash
	copy(h[:], oid[:])
	return h
}

// ToOid converts a Hash back to a libgit2 Oid, for the gap operations that
// still need the raw handle.
func (h Hash) ToOid() *git2go.Oid {
	oid := new(git2go.Oid)
	copy(oid[:], h[:])
	return oid
}

func (h Hash) String() string {
	return h.ToOid().String()
}

// Repository wraps a libgit2 repository.
type Repository struct {
	repo *git2go.Repository
}

// OpenRepository opens the repository checked out at path.
func OpenRepository(path string) (*Repository, error) {
	repo, err := git2go.OpenRepository(path)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	return &Repository{repo: repo}, nil
}

// Free releases the repository handle.
func (r *Repository) Free() {
	if r.repo != nil {
		r.repo.Free()
		r.repo = nil
	}
}

// Native returns the underlying libgit2 repository, for merge-base
// resolution and diff apply — neither has a gitlib wrapper.
func (r *Repository) Native() *git2go.Repository {
	return r.repo
}

// LookupCommit resolves hash to a Commit.
func (r *Repository) LookupCommit(hash Hash) (*Commit, error) {
	commit, err := r.repo.LookupCommit(hash.ToOid())
	if err != nil {
		return nil, fmt.Errorf("lookup commit %s: %w", hash, err)
	}
	return &Commit{commit: commit}, nil
}

// DiffTreeToTree computes the diff between two trees, mirroring gitlib's
// Repository.DiffTreeToTree.
func (r *Repository) DiffTreeToTree(oldTree, newTree *Tree) (*git2go.Diff, error) {
	opts, err := git2go.DefaultDiffOptions()
	if err != nil {
		return nil, fmt.Errorf("get diff options: %w", err)
	}
	return r.repo.DiffTreeToTree(oldTree.tree, newTree.tree, &opts)
}

// Commit wraps a libgit2 commit.
type Commit struct {
	commit *git2go.Commit
}

// Free releases the commit handle.
func (c *Commit) Free() {
	if c.commit != nil {
		c.commit.Free()
		c.commit = nil
	}
}

// NumParents returns the commit's parent count.
func (c *Commit) NumParents() int {
	return int(c.commit.ParentCount())
}

// ParentHash returns the hash of the nth parent.
func (c *Commit) ParentHash(n int) Hash {
	return hashFromOid(c.commit.ParentId(uint(n)))
}

// Tree returns the commit's tree.
func (c *Commit) Tree() (*Tree, error) {
	tree, err := c.commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("commit tree: %w", err)
	}
	return &Tree{tree: tree}, nil
}

// Native returns the underlying libgit2 commit, for merge-base resolution.
func (c *Commit) Native() *git2go.Commit {
	return c.commit
}

// Tree wraps a libgit2 tree.
type Tree struct {
	tree *git2go.Tree
}

// Free releases the tree handle.
func (t *Tree) Free() {
	if t.tree != nil {
		t.tree.Free()
		t.tree = nil
	}
}
