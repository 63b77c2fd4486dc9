package rewriter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleBody = `## Problem

The parser crashes on empty input.

## Steps to reproduce

Run the CLI with an empty file.

## Tests

See test_parser.py::test_empty_input for the failing case.

` + "```" + `diff
diff --git a/parser.py b/parser.py
--- a/parser.py
+++ b/parser.py
@@ -1,2 +1,2 @@
-old
+new
` + "```" + `

` + "```" + `
Traceback (most recent call last):
  File "parser.py", line 10, in parse
    raise ValueError
` + "```" + `

| test | expected | actual |
| --- | --- | --- |
| test_empty_input | pass | fail |
`

func TestRewriteDropsTestSection(t *testing.T) {
	out := Rewrite(sampleBody, "canary-123")
	assert.NotContains(t, out, "test_parser.py")
	assert.Contains(t, out, "parser crashes on empty input")
}

func TestRewriteDropsDiffBlock(t *testing.T) {
	out := Rewrite(sampleBody, "canary-123")
	assert.NotContains(t, out, "diff --git")
	assert.NotContains(t, out, "@@ -1,2")
}

func TestRewriteDropsTraceback(t *testing.T) {
	out := Rewrite(sampleBody, "canary-123")
	assert.NotContains(t, out, "Traceback (most recent call last)")
}

func TestRewriteDropsTestOutputTable(t *testing.T) {
	out := Rewrite(sampleBody, "canary-123")
	assert.NotContains(t, out, "test_empty_input | pass | fail")
}

func TestRewriteEmbedsCanaryVerbatim(t *testing.T) {
	out := Rewrite(sampleBody, "canary-123")
	assert.True(t, strings.Contains(out, "canary-123"))
}

func TestRewritePreservesProblemDescription(t *testing.T) {
	out := Rewrite(sampleBody, "canary-123")
	assert.Contains(t, out, "Steps to reproduce")
	assert.Contains(t, out, "Run the CLI with an empty file.")
}
