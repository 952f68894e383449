// Package diffutil computes file-level diff information used by the
// Reviewer Runner (timeout-marker file lists, spec §4.3.4) and the
// Aggregator (anchoring inline comments to diff positions, spec §4.5.4).
package diffutil

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// FileDiff is one file's changes within a unified diff.
type FileDiff struct {
	Path     string
	Hunks    []Hunk
	Added    int
	Removed  int
}

// Hunk is one contiguous block of changes within a file.
type Hunk struct {
	OldStart, OldLines int
	NewStart, NewLines int
	Lines              []Line
}

// Line is one line within a hunk, tagged with its diff role.
type Line struct {
	Kind    LineKind
	Content string
	NewNo   int // 0 if not present on the new side (a pure removal)
}

// LineKind distinguishes context, added, and removed lines.
type LineKind int

const (
	LineContext LineKind = iota
	LineAdded
	LineRemoved
)

// ParseUnifiedDiff parses a standard unified diff (as produced by `git diff`)
// into per-file hunks. Malformed hunk headers are skipped rather than
// aborting the whole parse — a diff artifact is untrusted PR input and a
// partial file list is still useful for a timeout marker or comment anchor.
func ParseUnifiedDiff(diff string) []FileDiff {
	var files []FileDiff
	var cur *FileDiff
	var hunk *Hunk
	newLine := 0

	scanner := bufio.NewScanner(strings.NewReader(diff))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "+++ "):
			path := strings.TrimPrefix(line, "+++ ")
			path = strings.TrimPrefix(path, "b/")
			if cur != nil {
				files = append(files, *cur)
			}
			cur = &FileDiff{Path: path}
			hunk = nil
		case strings.HasPrefix(line, "@@ "):
			if cur == nil {
				continue
			}
			h, ok := parseHunkHeader(line)
			if !ok {
				continue
			}
			cur.Hunks = append(cur.Hunks, h)
			hunk = &cur.Hunks[len(cur.Hunks)-1]
			newLine = h.NewStart
		case hunk != nil && strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			hunk.Lines = append(hunk.Lines, Line{Kind: LineAdded, Content: line[1:], NewNo: newLine})
			cur.Added++
			newLine++
		case hunk != nil && strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			hunk.Lines = append(hunk.Lines, Line{Kind: LineRemoved, Content: line[1:]})
			cur.Removed++
		case hunk != nil && strings.HasPrefix(line, " "):
			hunk.Lines = append(hunk.Lines, Line{Kind: LineContext, Content: line[1:], NewNo: newLine})
			newLine++
		}
	}
	if cur != nil {
		files = append(files, *cur)
	}
	return files
}

func parseHunkHeader(line string) (Hunk, bool) {
	// @@ -oldStart,oldLines +newStart,newLines @@ optional context
	parts := strings.SplitN(line, "@@", 3)
	if len(parts) < 2 {
		return Hunk{}, false
	}
	fields := strings.Fields(strings.TrimSpace(parts[1]))
	if len(fields) < 2 {
		return Hunk{}, false
	}
	oldStart, oldLines, ok1 := parseRange(fields[0])
	newStart, newLines, ok2 := parseRange(fields[1])
	if !ok1 || !ok2 {
		return Hunk{}, false
	}
	return Hunk{OldStart: oldStart, OldLines: oldLines, NewStart: newStart, NewLines: newLines}, true
}

func parseRange(field string) (start, count int, ok bool) {
	field = strings.TrimLeft(field, "+-")
	sp := strings.SplitN(field, ",", 2)
	start, err := strconv.Atoi(sp[0])
	if err != nil {
		return 0, 0, false
	}
	count = 1
	if len(sp) == 2 {
		count, err = strconv.Atoi(sp[1])
		if err != nil {
			return 0, 0, false
		}
	}
	return start, count, true
}

// FileList returns just the file paths touched by the diff, in order of
// first appearance — used for the §4.3.4 timeout marker's "short list of
// files in the diff".
func FileList(diff string) []string {
	files := ParseUnifiedDiff(diff)
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Path)
	}
	return out
}

// InlinePosition computes the diff position (for a GitHub-style review
// comment anchor) of a given file:line, or ok=false if the line is not part
// of the added/context lines visible in the diff.
func InlinePosition(diff, file string, line int) (pos int, ok bool) {
	position := 0
	for _, fd := range ParseUnifiedDiff(diff) {
		if fd.Path != file {
			continue
		}
		for _, h := range fd.Hunks {
			for _, l := range h.Lines {
				position++
				if l.Kind != LineRemoved && l.NewNo == line {
					return position, true
				}
			}
		}
	}
	return 0, false
}

// QuoteMatches reports whether evidence appears verbatim in content. When it
// does not, it diffs the whole of content against evidence and accepts the
// quote if the differing characters number at most a tenth of the evidence
// length, so small drift is tolerated only when content is about as long
// as the quote; a quote that differs in whitespace from a passage of a
// longer content is not matched. Used to spot-check a finding's evidence
// quote against the actual diff text.
func QuoteMatches(content, evidence string) bool {
	evidence = strings.TrimSpace(evidence)
	if evidence == "" {
		return false
	}
	if strings.Contains(content, evidence) {
		return true
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(content, evidence, false)
	// A match with only a small number of non-equal characters relative to
	// the evidence length is treated as a fuzzy match (whitespace/line-ending
	// drift), not a fabricated quote.
	var mismatched int
	for _, d := range diffs {
		if d.Type != diffmatchpatch.DiffEqual {
			mismatched += len(d.Text)
		}
	}
	return mismatched <= len(evidence)/10
}

// TruncateForPrompt truncates content to maxBytes, appending a truncation
// marker, matching the §4.3.4 fast-path "truncated at 50 KiB" rule.
func TruncateForPrompt(content string, maxBytes int) string {
	if len(content) <= maxBytes {
		return content
	}
	return content[:maxBytes] + fmt.Sprintf("\n... [truncated, %d of %d bytes shown]\n", maxBytes, len(content))
}
