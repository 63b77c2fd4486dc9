package filters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prbench/prbench/pkg/bencherrors"
	"github.com/prbench/prbench/pkg/candidate"
)

func TestPreFilterRejectsBotAuthor(t *testing.T) {
	cand := candidate.Candidate{AuthorLogin: "dependabot[bot]"}
	err := PreFilter(cand, PreFilterConfig{BotAccounts: []string{"dependabot[bot]"}})
	require.Error(t, err)
	assert.Equal(t, "bot_author", bencherrors.ReasonOf(err))
}

func TestPreFilterRejectsBlocklisted(t *testing.T) {
	cand := candidate.Candidate{Repo: candidate.Repo{Owner: "acme", Name: "foo"}}
	err := PreFilter(cand, PreFilterConfig{Blocklist: []string{"acme/foo"}})
	require.Error(t, err)
	assert.Equal(t, "blocklisted", bencherrors.ReasonOf(err))
}

func TestPreFilterAccepts(t *testing.T) {
	cand := candidate.Candidate{AuthorLogin: "alice", Repo: candidate.Repo{Owner: "acme", Name: "foo"}}
	assert.NoError(t, PreFilter(cand, PreFilterConfig{}))
}

func TestRejectIfUserOwned(t *testing.T) {
	assert.Error(t, RejectIfUserOwned("User"))
	assert.NoError(t, RejectIfUserOwned("Organization"))
}

func TestLocalFilterRejectsLanguage(t *testing.T) {
	cand := candidate.Candidate{Language: "Ruby", Stars: 100, ChangedFiles: []string{"a.rb"}}
	err := LocalFilter(cand, LocalFilterConfig{Languages: []string{"python", "go"}, MaxFiles: 10})
	require.Error(t, err)
	assert.Equal(t, "language_not_allowed", bencherrors.ReasonOf(err))
}

func TestLocalFilterRejectsInsufficientStars(t *testing.T) {
	cand := candidate.Candidate{Language: "python", Stars: 1, ChangedFiles: []string{"a.py"}}
	err := LocalFilter(cand, LocalFilterConfig{Languages: []string{"python"}, MinStars: 50, MaxFiles: 10})
	require.Error(t, err)
	assert.Equal(t, "insufficient_stars", bencherrors.ReasonOf(err))
}

func TestLocalFilterRejectsTestOnly(t *testing.T) {
	cand := candidate.Candidate{
		Language:     "python",
		Stars:        100,
		ChangedFiles: []string{"tests/test_foo.py", "test_bar.py"},
	}
	err := LocalFilter(cand, LocalFilterConfig{Languages: []string{"python"}, MaxFiles: 10})
	require.Error(t, err)
	assert.Equal(t, "test_only", bencherrors.ReasonOf(err))
}

func TestLocalFilterAccepts(t *testing.T) {
	cand := candidate.Candidate{
		Language:     "python",
		Stars:        100,
		ChangedFiles: []string{"src/x.py", "tests/test_x.py"},
	}
	assert.NoError(t, LocalFilter(cand, LocalFilterConfig{Languages: []string{"python"}, MaxFiles: 10}))
}

func TestIsTestPath(t *testing.T) {
	assert.True(t, IsTestPath("tests/test_foo.py", "python"))
	assert.True(t, IsTestPath("pkg/foo_test.go", "go"))
	assert.False(t, IsTestPath("pkg/foo.go", "go"))
}
