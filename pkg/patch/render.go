package patch

import "strings"

// filterPatchToFiles keeps only the per-file sections of a unified diff
// whose "diff --git a/<path> b/<path>" header path is in keep. git2go's
// Diff.ToBuf renders every delta in one buffer; the test-path exclusion
// the extractor applies happens at this text level rather than by asking
// libgit2 to re-diff with a pathspec, since the exclusion set depends on
// the language-specific heuristic in pkg/filters, not a plain glob.
func filterPatchToFiles(raw string, keep []string) string {
	keepSet := make(map[string]struct{}, len(keep))
	for _, f := range keep {
		keepSet[f] = struct{}{}
	}

	lines := strings.Split(raw, "\n")
	var out []string
	include := false

	for _, line := range lines {
		if strings.HasPrefix(line, "diff --git ") {
			include = sectionPathKept(line, keepSet)
		}
		if include {
			out = append(out, line)
		}
	}

	text := strings.Join(out, "\n")
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return text
}

// sectionPathKept reports whether a "diff --git a/<path> b/<path>" header
// line names a path present in keep.
func sectionPathKept(header string, keep map[string]struct{}) bool {
	fields := strings.Fields(header)
	for _, f := range fields {
		path := strings.TrimPrefix(strings.TrimPrefix(f, "a/"), "b/")
		if _, ok := keep[path]; ok {
			return true
		}
	}
	return false
}
