// Package rewriter implements PromptRewriter (spec.md §4.9): a
// deterministic, regex-and-section-rule transform from a PR body to the
// sanitized agent prompt. No LLM call — every rule here is a closed,
// reviewable text transformation, grounded on pkg/filters' same
// plain-regex/heuristic style (no external parsing library, since the
// input is unstructured markdown and the teacher pack has no markdown
// AST library in its dependency surface).
package rewriter

import (
	"regexp"
	"strings"
)

// testSectionHeader matches a markdown ATX header (or a bold-styled
// pseudo-header) whose text names a testing-related section: "Tests",
// "Test Plan", "How I tested this", "Verification", etc.
var testSectionHeader = regexp.MustCompile(`(?i)^(#{1,6}\s*|\*\*)\s*(tests?|testing|test\s*plan|how\s+(i|this\s+was)\s+tested|verification)\b`)

// tracebackStart matches the first line of a Python/Go/JS stack trace.
var tracebackStart = regexp.MustCompile(`(?i)^(traceback \(most recent call last\)|panic:|goroutine \d+ \[|\s+at .+\(.+:\d+\)$)`)

// diffHunkHeader matches a unified-diff hunk header or file marker.
var diffHunkHeader = regexp.MustCompile(`^(diff --git |index [0-9a-f]+\.\.[0-9a-f]+|--- |\+\+\+ |@@ )`)

// testFileName matches an inline reference to a test file by its
// conventional naming pattern across the languages spec.md targets.
var testFileName = regexp.MustCompile(`\b[\w./-]*(test_[\w./-]+\.py|[\w./-]+_test\.go|[\w./-]+\.test\.(js|ts|tsx)|[\w./-]*[Tt]est[\w./-]*\.java|[\w./-]+_test\.rs)\b`)

// tableSeparatorRow matches a markdown table's header/separator row
// ("| --- | --- |").
var tableSeparatorRow = regexp.MustCompile(`^\s*\|?[\s:|-]+\|[\s:|-]+\|?\s*$`)

// Rewrite transforms body into a sanitized agent prompt and embeds canary
// verbatim. The result never contains a fenced diff block, a stack trace,
// a test-output-shaped table, or an inline test file reference.
func Rewrite(body, canary string) string {
	lines := strings.Split(body, "\n")
	lines = dropFencedDiffAndTracebackBlocks(lines)
	lines = dropTestSections(lines)
	lines = dropTestOutputTables(lines)

	text := strings.Join(lines, "\n")
	text = testFileName.ReplaceAllString(text, "[test reference redacted]")
	text = collapseBlankLines(text)

	text = strings.TrimRight(text, "\n") + "\n\n" + canaryLine(canary)
	return text
}

// canaryLine renders the canary token's embedding, guaranteed to survive
// every transform above since it is appended last.
func canaryLine(canary string) string {
	return "Reference token (do not remove): " + canary
}

// dropFencedDiffAndTracebackBlocks removes ``` fenced code blocks whose
// content looks like a diff or stack trace, and removes unfenced
// traceback/diff-hunk lines found outside code blocks too.
func dropFencedDiffAndTracebackBlocks(lines []string) []string {
	var out []string
	inFence := false
	var fenceBuf []string
	fenceLooksLikeTestArtifact := false

	flushFence := func() {
		if !fenceLooksLikeTestArtifact {
			out = append(out, fenceBuf...)
		}
		fenceBuf = nil
		fenceLooksLikeTestArtifact = false
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			if inFence {
				fenceBuf = append(fenceBuf, line)
				flushFence()
				inFence = false
			} else {
				inFence = true
				fenceBuf = []string{line}
			}
			continue
		}

		if inFence {
			fenceBuf = append(fenceBuf, line)
			if diffHunkHeader.MatchString(trimmed) || tracebackStart.MatchString(line) {
				fenceLooksLikeTestArtifact = true
			}
			continue
		}

		if diffHunkHeader.MatchString(trimmed) || tracebackStart.MatchString(line) {
			continue
		}

		out = append(out, line)
	}

	if inFence { // unterminated fence — emit verbatim rather than silently eating the rest of the body
		out = append(out, fenceBuf...)
	}

	return out
}

// dropTestSections removes every markdown section (from a test-related
// header to the next header of equal-or-higher level, or end of body).
func dropTestSections(lines []string) []string {
	var out []string
	skipping := false
	skipLevel := 0

	headerLevel := func(line string) int {
		trimmed := strings.TrimLeft(line, " ")
		n := 0
		for n < len(trimmed) && trimmed[n] == '#' {
			n++
		}
		if n > 0 && n < len(trimmed) && trimmed[n] == ' ' {
			return n
		}
		return 0
	}

	for _, line := range lines {
		level := headerLevel(line)

		if skipping {
			if level > 0 && level <= skipLevel {
				skipping = false
			} else {
				continue
			}
		}

		if testSectionHeader.MatchString(strings.TrimSpace(line)) {
			skipping = true
			if level > 0 {
				skipLevel = level
			} else {
				skipLevel = 6 // bold-style pseudo-header: skip until the next real header
			}
			continue
		}

		out = append(out, line)
	}

	return out
}

// dropTestOutputTables removes markdown tables whose header row names
// testing concepts ("test", "expected", "actual", "pass", "fail").
func dropTestOutputTables(lines []string) []string {
	var out []string
	i := 0
	for i < len(lines) {
		if i+1 < len(lines) && strings.Contains(lines[i], "|") && tableSeparatorRow.MatchString(lines[i+1]) && looksLikeTestTableHeader(lines[i]) {
			i += 2
			for i < len(lines) && strings.Contains(lines[i], "|") {
				i++
			}
			continue
		}
		out = append(out, lines[i])
		i++
	}
	return out
}

var testTableKeyword = regexp.MustCompile(`(?i)\b(test|expected|actual|pass|fail)\b`)

func looksLikeTestTableHeader(headerRow string) bool {
	return testTableKeyword.MatchString(headerRow)
}

var multiBlankLines = regexp.MustCompile(`\n{3,}`)

func collapseBlankLines(text string) string {
	return multiBlankLines.ReplaceAllString(text, "\n\n")
}
