// Package candidate defines the data model shared across every pipeline
// stage: the shallow/enriched Candidate PR, the Unified Patch, the Test
// Spec, the exported Task Instance, and the PR cache entry. These
// types were ported from the teacher repo's ent/schema field definitions
// into plain structs, since the spec's cache and export formats are a
// single embedded KV file and a directory of flat files, not a relational
// schema — see DESIGN.md.
package candidate

import (
	"strconv"
	"time"
)

// Repo identifies an owner/name pair on the code-hosting archive.
type Repo struct {
	Owner string
	Name  string
}

// String renders "owner/name".
func (r Repo) String() string { return r.Owner + "/" + r.Name }

// Difficulty is the coarse label produced by PreClassifier and confirmed
// (or left as-is) by QualityScorer.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Candidate is a tentative mining target. It is created shallow by
// ArchiveIngest (no Body/ChangedFiles yet), then enriched in place by
// Enricher. After enrichment the only field still changed is BaseCommit,
// which PatchExtractor replaces with the resolved merge-base; otherwise
// downstream stages read it and build derived artifacts (Patch, TestSpec,
// TaskInstance) rather than mutating the Candidate itself.
type Candidate struct {
	Repo         Repo
	Number       int
	MergedAt     time.Time
	Title        string
	Body         string
	BaseCommit   string
	MergeCommit  string
	Language     string
	Stars        int
	ChangedFiles []string
	AuthorLogin  string
	AuthorType   string // "User" or "Organization" (PR author's account)
	OwnerType    string // "User" or "Organization" (repo owner's account)

	Enriched bool
}

// Key returns the PrCache dedup key for this candidate.
func (c Candidate) Key() CacheKey {
	return CacheKey{Owner: c.Repo.Owner, Name: c.Repo.Name, Number: c.Number}
}

// Valid enforces the Candidate PR invariant from spec.md §3: MergedAt is
// set, and BaseCommit != MergeCommit.
func (c Candidate) Valid() bool {
	return !c.MergedAt.IsZero() && c.BaseCommit != "" && c.MergeCommit != "" && c.BaseCommit != c.MergeCommit
}

// Patch is an immutable unified diff restricted to non-test files,
// base_commit..merge_commit.
type Patch struct {
	Text  string
	Files []string
}

// Empty reports whether the patch touches no files (e.g. after test-path
// exclusion removed everything).
func (p Patch) Empty() bool { return len(p.Files) == 0 || p.Text == "" }

// TestSpec is the dual-commit oracle: two ordered lists of shell commands.
type TestSpec struct {
	FailToPass []string
	PassToPass []string
}

// Commands returns every command in the spec, FailToPass first.
func (t TestSpec) Commands() []string {
	out := make([]string, 0, len(t.FailToPass)+len(t.PassToPass))
	out = append(out, t.FailToPass...)
	out = append(out, t.PassToPass...)
	return out
}

// Environment describes the container the task runs in.
type Environment struct {
	BaseImage string
	Setup     []string
}

// TaskInstance is the export unit consumed by the evaluation harness.
type TaskInstance struct {
	TaskID       string
	Repo         Repo
	Number       int
	BaseCommit   string
	MergeCommit  string
	Language     string
	Difficulty   Difficulty
	QualityScore float64
	Prompt       string
	Patch        Patch
	TestSpec     TestSpec
	Canary       string
	Environment  Environment
}

// DirName returns the stable on-disk directory name "owner-repo-number".
func (t TaskInstance) DirName() string {
	return t.Repo.Owner + "-" + t.Repo.Name + "-" + strconv.Itoa(t.Number)
}

// NewTaskID builds the stable "owner/repo-number" task identifier.
func NewTaskID(r Repo, number int) string {
	return r.Owner + "/" + r.Name + "-" + strconv.Itoa(number)
}

// CacheStatus is the PR Cache Entry lifecycle state.
type CacheStatus string

const (
	StatusSeen           CacheStatus = "seen"
	StatusRejected       CacheStatus = "rejected"
	StatusDeepInProgress CacheStatus = "deep_in_progress"
	StatusExported       CacheStatus = "exported"
	StatusFailed         CacheStatus = "failed"
)

// CacheKey is the PrCache dedup key.
type CacheKey struct {
	Owner  string
	Name   string
	Number int
}

// String renders "owner/name#number", the on-disk bbolt key form.
func (k CacheKey) String() string {
	return k.Owner + "/" + k.Name + "#" + strconv.Itoa(k.Number)
}

// CacheEntry is the persistent record for one CacheKey.
type CacheEntry struct {
	Key             CacheKey
	Status          CacheStatus
	RejectionReason string
	FirstSeenAt     time.Time
	LastUpdatedAt   time.Time
}
