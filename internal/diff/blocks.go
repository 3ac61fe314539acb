package diff

import (
	"sort"

	"github.com/keshon/sbvc/internal/sb3"
	"github.com/keshon/sbvc/internal/util"
)

// unrecognized returns the ids that must be compared as text: blocks that
// either side cannot model.
func unrecognized(pa, pb *sb3.Project, a, b *sb3.Target) map[string]bool {
	out := map[string]bool{}
	for id, blk := range a.Blocks {
		if !pa.Recognized(blk) {
			out[id] = true
		}
	}
	for id, blk := range b.Blocks {
		if !pb.Recognized(blk) {
			out[id] = true
		}
	}
	return out
}

func diffBlocks(pa, pb *sb3.Project, a, b *sb3.Target) BlockChanges {
	skip := unrecognized(pa, pb, a, b)
	var out BlockChanges
	for _, id := range util.UnionKeys(a.Blocks, b.Blocks) {
		if skip[id] {
			continue
		}
		ba, inA := a.Blocks[id]
		bb, inB := b.Blocks[id]
		switch {
		case !inA:
			out.Added = append(out.Added, BlockRef{ID: id, Opcode: bb.Opcode})
		case !inB:
			out.Removed = append(out.Removed, BlockRef{ID: id, Opcode: ba.Opcode})
		default:
			if deltas := blockDeltas(ba, bb); len(deltas) > 0 {
				out.Modified = append(out.Modified, BlockDiff{ID: id, Opcode: bb.Opcode, Deltas: deltas})
			}
		}
	}
	return out
}

func str(s string) *string { return &s }

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func text(v any, present bool, render func(any) string) *string {
	if !present {
		return nil
	}
	return str(render(v))
}

// blockDeltas lists what changed between two versions of the same block.
func blockDeltas(a, b *sb3.Block) []Delta {
	var out []Delta
	if a.Opcode != b.Opcode {
		out = append(out, Delta{Kind: KindOpcode, Old: str(a.Opcode), New: str(b.Opcode)})
	}

	if a.Primitive != nil || b.Primitive != nil {
		return append(out, primitiveDeltas(a, b)...)
	}

	for _, k := range util.UnionKeys(a.Inputs, b.Inputs) {
		va, inA := a.Inputs[k]
		vb, inB := b.Inputs[k]
		if inA && inB && sb3.Equal(va, vb) {
			continue
		}
		out = append(out, Delta{Kind: KindInput, Key: k, Old: text(va, inA, sb3.InputText), New: text(vb, inB, sb3.InputText)})
	}
	for _, k := range util.UnionKeys(a.Fields, b.Fields) {
		va, inA := a.Fields[k]
		vb, inB := b.Fields[k]
		if inA && inB && sb3.Equal(va, vb) {
			continue
		}
		out = append(out, Delta{Kind: KindField, Key: k, Old: text(va, inA, sb3.FieldText), New: text(vb, inB, sb3.FieldText)})
	}

	if a.Next != b.Next {
		out = append(out, Delta{Kind: KindLink, Key: "next", Old: optional(a.Next), New: optional(b.Next)})
	}
	if a.Parent != b.Parent {
		out = append(out, Delta{Kind: KindLink, Key: "parent", Old: optional(a.Parent), New: optional(b.Parent)})
	}
	if a.TopLevel != b.TopLevel {
		out = append(out, Delta{Kind: KindFlag, Key: "topLevel", Old: str(sb3.Text(a.TopLevel)), New: str(sb3.Text(b.TopLevel))})
	}
	if a.Shadow != b.Shadow {
		out = append(out, Delta{Kind: KindFlag, Key: "shadow", Old: str(sb3.Text(a.Shadow)), New: str(sb3.Text(b.Shadow))})
	}
	if !sb3.Equal(a.Mutation, b.Mutation) {
		out = append(out, Delta{Kind: KindMutation, Old: text(a.Mutation, a.Mutation != nil, sb3.Text), New: text(b.Mutation, b.Mutation != nil, sb3.Text)})
	}
	if a.Comment != b.Comment {
		out = append(out, Delta{Kind: KindComment, Old: optional(a.Comment), New: optional(b.Comment)})
	}
	out = append(out, positionDeltas(a.X, a.Y, b.X, b.Y)...)

	for _, k := range util.UnionKeys(a.Extras, b.Extras) {
		va, inA := a.Extras[k]
		vb, inB := b.Extras[k]
		if inA && inB && sb3.Equal(va, vb) {
			continue
		}
		out = append(out, Delta{Kind: KindOther, Key: k, Old: text(va, inA, sb3.Text), New: text(vb, inB, sb3.Text)})
	}
	return out
}

// primitiveDeltas compares array-encoded reporters: [type, value, id?, x?, y?].
func primitiveDeltas(a, b *sb3.Block) []Delta {
	at := func(arr []any, i int) (any, bool) {
		if i < len(arr) {
			return arr[i], true
		}
		return nil, false
	}
	var out []Delta
	for i, key := range []string{"value", "ref"} {
		va, inA := at(a.Primitive, i+1)
		vb, inB := at(b.Primitive, i+1)
		if inA && inB && sb3.Equal(va, vb) {
			continue
		}
		if !inA && !inB {
			continue
		}
		out = append(out, Delta{Kind: KindField, Key: key, Old: text(va, inA, sb3.Text), New: text(vb, inB, sb3.Text)})
	}
	return append(out, positionDeltas(a.X, a.Y, b.X, b.Y)...)
}

func positionDeltas(ax, ay, bx, by any) []Delta {
	var out []Delta
	if !sb3.Equal(ax, bx) {
		out = append(out, Delta{Kind: KindPosition, Key: "x", Old: text(ax, ax != nil, sb3.Text), New: text(bx, bx != nil, sb3.Text)})
	}
	if !sb3.Equal(ay, by) {
		out = append(out, Delta{Kind: KindPosition, Key: "y", Old: text(ay, ay != nil, sb3.Text), New: text(by, by != nil, sb3.Text)})
	}
	return out
}

// summarizeScripts groups block changes by the script they belong to. Added
// and modified blocks count toward their script on the new side, removed
// blocks toward their script on the old side.
func summarizeScripts(a, b *sb3.Target, bc BlockChanges) []ScriptChange {
	scripts := map[string]*ScriptChange{}
	get := func(t *sb3.Target, id string) *ScriptChange {
		root := t.ScriptOf(id)
		sc, ok := scripts[root]
		if !ok {
			sc = &ScriptChange{Root: root, Status: Modified}
			if blk, ok := t.Blocks[root]; ok {
				sc.Opcode = blk.Opcode
			}
			_, inA := a.Blocks[root]
			_, inB := b.Blocks[root]
			switch {
			case !inA:
				sc.Status = Added
			case !inB:
				sc.Status = Removed
			}
			scripts[root] = sc
		}
		return sc
	}
	for _, r := range bc.Added {
		get(b, r.ID).Added++
	}
	for _, r := range bc.Removed {
		get(a, r.ID).Removed++
	}
	for _, m := range bc.Modified {
		get(b, m.ID).Modified++
	}

	out := make([]ScriptChange, 0, len(scripts))
	for _, sc := range scripts {
		out = append(out, *sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Root < out[j].Root })
	if len(out) == 0 {
		return nil
	}
	return out
}
