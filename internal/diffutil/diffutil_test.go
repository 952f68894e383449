package diffutil

import "testing"

const sampleDiff = `diff --git a/src/foo.py b/src/foo.py
index 1111111..2222222 100644
--- a/src/foo.py
+++ b/src/foo.py
@@ -10,3 +10,4 @@ def handler():
 context line
-old broken line
+new fixed line
+extra added line
diff --git a/src/bar.py b/src/bar.py
index 3333333..4444444 100644
--- a/src/bar.py
+++ b/src/bar.py
@@ -1,2 +1,2 @@
-print("old")
+print("new")
`

func TestFileListPreservesOrder(t *testing.T) {
	got := FileList(sampleDiff)
	want := []string{"src/foo.py", "src/bar.py"}
	if len(got) != len(want) {
		t.Fatalf("FileList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("FileList[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseUnifiedDiffCountsAddedRemoved(t *testing.T) {
	files := ParseUnifiedDiff(sampleDiff)
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].Added != 2 || files[0].Removed != 1 {
		t.Fatalf("foo.py added/removed = %d/%d, want 2/1", files[0].Added, files[0].Removed)
	}
}

func TestInlinePositionFindsAddedLine(t *testing.T) {
	_, ok := InlinePosition(sampleDiff, "src/foo.py", 11)
	if !ok {
		t.Fatal("expected to find an inline position for an added line")
	}
}

func TestInlinePositionMissingLineIsNotOK(t *testing.T) {
	if _, ok := InlinePosition(sampleDiff, "src/foo.py", 9999); ok {
		t.Fatal("expected no inline position for a line outside the diff")
	}
}

func TestQuoteMatchesExact(t *testing.T) {
	if !QuoteMatches("new fixed line", "new fixed line") {
		t.Fatal("expected exact quote to match")
	}
}

func TestQuoteMatchesRejectsFabrication(t *testing.T) {
	if QuoteMatches("new fixed line", "this was never in the file at all") {
		t.Fatal("expected fabricated evidence to not match")
	}
}

func TestTruncateForPromptAddsMarker(t *testing.T) {
	out := TruncateForPrompt("0123456789", 4)
	if len(out) <= 4 {
		t.Fatalf("expected truncation marker appended, got %q", out)
	}
}

func TestTruncateForPromptNoopWhenShort(t *testing.T) {
	if out := TruncateForPrompt("short", 100); out != "short" {
		t.Fatalf("expected no change for content under the limit, got %q", out)
	}
}
