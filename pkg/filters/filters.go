// Package filters implements the two-phase static/local filtering of
// spec.md §4.2: a pre-filter over shallow candidates (bot authors,
// non-org repos, blocklisted repos) and a local filter over enriched
// candidates (language allowlist, star floor, changed-file bounds,
// test-only changes). Grounded on the teacher's masking pattern-matching
// style (pkg/masking/pattern.go: small, independently testable predicate
// functions composed by a caller) rather than a generic rule engine.
package filters

import (
	"path"
	"strings"

	"github.com/prbench/prbench/pkg/bencherrors"
	"github.com/prbench/prbench/pkg/candidate"
)

// PreFilterConfig holds the configured bot-account set and repo blocklist
// the pre-filter checks shallow candidates against.
type PreFilterConfig struct {
	BotAccounts []string
	Blocklist   []string // "owner/name" entries
}

// PreFilter rejects shallow candidates before any enrichment API call is
// spent on them. Returns a DataReject error with the reason spec.md §4.2
// names, or nil if the candidate passes.
func PreFilter(cand candidate.Candidate, cfg PreFilterConfig) error {
	for _, bot := range cfg.BotAccounts {
		if strings.EqualFold(cand.AuthorLogin, bot) {
			return bencherrors.New(bencherrors.DataReject, "bot_author", nil)
		}
	}

	full := cand.Repo.String()
	for _, blocked := range cfg.Blocklist {
		if strings.EqualFold(full, blocked) {
			return bencherrors.New(bencherrors.DataReject, "blocklisted", nil)
		}
	}

	return nil
}

// RejectIfUserOwned rejects candidates whose repository is owned by a user
// account rather than an organization, per spec.md §4.2's "accepts only
// organization-owned repos" rule. ownerType is the code-hosting API's
// owner.type field ("User" or "Organization").
func RejectIfUserOwned(ownerType string) error {
	if strings.EqualFold(ownerType, "User") {
		return bencherrors.New(bencherrors.DataReject, "user_owned", nil)
	}
	return nil
}

// LocalFilterConfig holds the allowlists and bounds the local filter
// checks enriched candidates against.
type LocalFilterConfig struct {
	Languages []string
	MinStars  int
	MaxFiles  int
}

// LocalFilter rejects enriched candidates against the language allowlist,
// star floor, changed-file count bounds, and the test-only-change rule.
func LocalFilter(cand candidate.Candidate, cfg LocalFilterConfig) error {
	if !languageAllowed(cand.Language, cfg.Languages) {
		return bencherrors.New(bencherrors.DataReject, "language_not_allowed", nil)
	}
	if cand.Stars < cfg.MinStars {
		return bencherrors.New(bencherrors.DataReject, "insufficient_stars", nil)
	}
	n := len(cand.ChangedFiles)
	if n < 1 || (cfg.MaxFiles > 0 && n > cfg.MaxFiles) {
		return bencherrors.New(bencherrors.DataReject, "changed_files_out_of_bounds", nil)
	}
	if allTestFiles(cand.ChangedFiles, cand.Language) {
		return bencherrors.New(bencherrors.DataReject, "test_only", nil)
	}
	return nil
}

func languageAllowed(lang string, allowlist []string) bool {
	if len(allowlist) == 0 {
		return true
	}
	for _, l := range allowlist {
		if strings.EqualFold(lang, l) {
			return true
		}
	}
	return false
}

// testPathHeuristics maps a (lowercased) language name to substrings that,
// when found anywhere in a file's path, mark it as a test file. Mirrors
// the conventions SWE-bench-style datasets use per ecosystem.
var testPathHeuristics = map[string][]string{
	"python":     {"test_", "_test.py", "/tests/", "/test/"},
	"go":         {"_test.go"},
	"javascript": {".test.js", ".spec.js", "/__tests__/"},
	"typescript": {".test.ts", ".spec.ts", "/__tests__/"},
	"java":       {"/test/", "Test.java", "Tests.java"},
	"rust":       {"/tests/", "#[test]"},
}

// IsTestPath reports whether p matches the given language's test-path
// heuristic.
func IsTestPath(p, language string) bool {
	heuristics, ok := testPathHeuristics[strings.ToLower(language)]
	if !ok {
		return strings.Contains(p, "test")
	}
	base := path.Base(p)
	for _, h := range heuristics {
		if strings.Contains(p, h) || strings.Contains(base, h) {
			return true
		}
	}
	return false
}

func allTestFiles(files []string, language string) bool {
	if len(files) == 0 {
		return false
	}
	for _, f := range files {
		if !IsTestPath(f, language) {
			return false
		}
	}
	return true
}
