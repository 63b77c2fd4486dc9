package candidate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCandidateValid(t *testing.T) {
	c := Candidate{
		MergedAt:    time.Now(),
		BaseCommit:  "a",
		MergeCommit: "b",
	}
	assert.True(t, c.Valid())

	same := c
	same.MergeCommit = "a"
	assert.False(t, same.Valid(), "base == merge must be invalid")

	noMerge := c
	noMerge.MergedAt = time.Time{}
	assert.False(t, noMerge.Valid())
}

func TestPatchEmpty(t *testing.T) {
	assert.True(t, Patch{}.Empty())
	assert.True(t, Patch{Text: "diff", Files: nil}.Empty())
	assert.False(t, Patch{Text: "diff", Files: []string{"a.py"}}.Empty())
}

func TestTaskIDAndDirName(t *testing.T) {
	r := Repo{Owner: "acme", Name: "foo"}
	id := NewTaskID(r, 42)
	assert.Equal(t, "acme/foo-42", id)

	ti := TaskInstance{TaskID: id, Repo: r, Number: 42}
	assert.Equal(t, "acme-foo-42", ti.DirName())
}

func TestCacheKeyString(t *testing.T) {
	k := CacheKey{Owner: "acme", Name: "foo", Number: 42}
	assert.Equal(t, "acme/foo#42", k.String())
}

func TestTestSpecCommands(t *testing.T) {
	ts := TestSpec{
		FailToPass: []string{"a"},
		PassToPass: []string{"b", "c"},
	}
	assert.Equal(t, []string{"a", "b", "c"}, ts.Commands())
}
