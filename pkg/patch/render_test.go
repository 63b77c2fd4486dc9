package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const samplePatch = `diff --git a/src/x.py b/src/x.py
index 111..222 100644
--- a/src/x.py
+++ b/src/x.py
@@ -1,2 +1,2 @@
-old
+new
diff --git a/tests/test_x.py b/tests/test_x.py
index 333..444 100644
--- a/tests/test_x.py
+++ b/tests/test_x.py
@@ -1,2 +1,2 @@
-old test
+new test
`

func TestFilterPatchToFilesKeepsOnlyListedSections(t *testing.T) {
	out := filterPatchToFiles(samplePatch, []string{"src/x.py"})
	assert.Contains(t, out, "src/x.py")
	assert.NotContains(t, out, "tests/test_x.py")
}

func TestFilterPatchToFilesEmptyKeepListYieldsEmpty(t *testing.T) {
	out := filterPatchToFiles(samplePatch, nil)
	assert.Empty(t, out)
}

func TestSectionPathKept(t *testing.T) {
	keep := map[string]struct{}{"src/x.py": {}}
	assert.True(t, sectionPathKept("diff --git a/src/x.py b/src/x.py", keep))
	assert.False(t, sectionPathKept("diff --git a/other.py b/other.py", keep))
}
