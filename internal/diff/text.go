package diff

import (
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"

	"github.com/keshon/sbvc/internal/sb3"
	"github.com/keshon/sbvc/internal/util"
)

// contextLines is the number of unchanged lines around each hunk.
const contextLines = 3

// unified returns a unified patch from a to b, or "" when they are equal.
func unified(name string, a, b []byte) string {
	if string(a) == string(b) {
		return ""
	}
	u := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(string(a)),
		B:        splitLinesKeepNL(string(b)),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  contextLines,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return ""
	}
	return s
}

// splitLinesKeepNL keeps the trailing "\n" on each line so hunks render
// cleanly.
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// textOf diffs the canonical JSON of two values. Nil and empty maps are
// the same thing here.
func textOf(path string, a, b any) []TextDiff {
	if isEmpty(a) && isEmpty(b) {
		return nil
	}
	if sb3.Equal(a, b) {
		return nil
	}
	ja, jb := canonical(a), canonical(b)
	patch := unified(path, ja, jb)
	if patch == "" {
		return nil
	}
	return []TextDiff{{Path: path, Patch: patch}}
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(x) == 0
	}
	return false
}

func canonical(v any) []byte {
	if isEmpty(v) {
		return nil
	}
	data, err := util.CanonicalJSON(v)
	if err != nil {
		return []byte(sb3.Text(v))
	}
	return data
}

// targetText collects the text fallbacks of a target present on both
// sides: blocks the model cannot read, comments and unknown keys.
func targetText(sa, sb *side, a, b *sb3.Target) []TextDiff {
	prefix := "targets/" + a.Name + "/"
	var out []TextDiff

	skip := unrecognized(sa.proj, sb.proj, a, b)
	if len(skip) > 0 {
		ra, rb := rawBlocks(sa.doc, a.Name, skip), rawBlocks(sb.doc, b.Name, skip)
		out = append(out, textOf(prefix+"blocks.unrecognized", ra, rb)...)
	}
	out = append(out, textOf(prefix+"comments", a.Comments, b.Comments)...)
	out = append(out, textOf(prefix+"extras", a.Extras, b.Extras)...)
	return out
}

// rawBlocks returns the manifest encoding of the listed blocks of a target.
func rawBlocks(doc map[string]any, target string, ids map[string]bool) map[string]any {
	out := map[string]any{}
	targets, _ := doc["targets"].([]any)
	for _, raw := range targets {
		obj, _ := raw.(map[string]any)
		if name, _ := obj["name"].(string); name != target {
			continue
		}
		blocks, _ := obj["blocks"].(map[string]any)
		for id, blk := range blocks {
			if ids[id] {
				out[id] = blk
			}
		}
	}
	return out
}
