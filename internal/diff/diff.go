// Package diff compares two working trees structurally: targets by name,
// blocks by id, variables and lists by id, assets by content id. Whatever
// has no structured comparison is diffed as text.
package diff

import (
	"errors"
	"fmt"
	"sort"

	"github.com/keshon/sbvc/internal/config"
	"github.com/keshon/sbvc/internal/errs"
	"github.com/keshon/sbvc/internal/sb3"
	"github.com/keshon/sbvc/internal/util"
	"github.com/keshon/sbvc/internal/worktree"
)

// side is one parsed tree. proj is nil when the manifest is kept opaque.
type side struct {
	tree     *worktree.Tree
	manifest []byte
	doc      map[string]any
	proj     *sb3.Project
	index    worktree.Index
}

func load(t *worktree.Tree) (*side, error) {
	s := &side{tree: t}
	var err error
	if s.manifest, err = t.Manifest(); err != nil {
		return nil, err
	}
	if s.index, err = t.Index(); err != nil {
		return nil, err
	}
	if s.doc, err = sb3.Decode(s.manifest); err != nil {
		return nil, err
	}
	s.proj, err = sb3.FromDocument(s.doc)
	if errors.Is(err, errs.ErrUnsupportedFormat) {
		return s, nil
	}
	return s, err
}

// Diff compares a (old) with b (new).
func Diff(a, b *worktree.Tree) (*Report, error) {
	sa, err := load(a)
	if err != nil {
		return nil, fmt.Errorf("diff: old side: %w", err)
	}
	sb, err := load(b)
	if err != nil {
		return nil, fmt.Errorf("diff: new side: %w", err)
	}

	r := &Report{}
	if r.Assets, err = diffAssets(sa, sb); err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}

	if sa.proj == nil || sb.proj == nil {
		if patch := unified(config.ManifestFile, sa.manifest, sb.manifest); patch != "" {
			r.Text = append(r.Text, TextDiff{Path: config.ManifestFile, Patch: patch})
		}
		return r, nil
	}

	pa, pb := sa.proj, sb.proj
	changedIDs := map[string]bool{}
	for _, c := range r.Assets.Added {
		changedIDs[c.ID] = true
	}
	for _, c := range r.Assets.Removed {
		changedIDs[c.ID] = true
	}

	namesA, namesB := targetSet(pa), targetSet(pb)
	for _, name := range util.UnionKeys(namesA, namesB) {
		ta, inA := namesA[name]
		tb, inB := namesB[name]
		switch {
		case !inA:
			r.Targets.Added = append(r.Targets.Added, name)
		case !inB:
			r.Targets.Removed = append(r.Targets.Removed, name)
		default:
			td := diffTarget(sa, sb, ta, tb, changedIDs)
			if !td.empty() {
				r.Targets.Modified = append(r.Targets.Modified, td)
			}
			r.Text = append(r.Text, targetText(sa, sb, ta, tb)...)
		}
	}

	r.Monitors = diffMonitors(pa.Monitors, pb.Monitors)
	r.Extensions = diffNames(pa.Extensions, pb.Extensions)

	r.Text = append(r.Text, textOf("meta", pa.Meta, pb.Meta)...)
	r.Text = append(r.Text, textOf("extras", pa.Extras, pb.Extras)...)
	sort.Slice(r.Text, func(i, j int) bool { return r.Text[i].Path < r.Text[j].Path })
	return r, nil
}

func targetSet(p *sb3.Project) map[string]*sb3.Target {
	out := make(map[string]*sb3.Target, len(p.Targets))
	for _, t := range p.Targets {
		out[t.Name] = t
	}
	return out
}

// contentID resolves a costume or sound to the id of its payload.
func (s *side) contentID(ref sb3.AssetRef) string {
	e, _ := s.index.Lookup(ref.File())
	return e.ID
}

// referenced maps content ids to the entries and labels referring to them.
// Opaque manifests count every indexed asset. A costume or sound missing
// from the index is an error.
func (s *side) referenced() (map[string]*AssetChange, error) {
	out := map[string]*AssetChange{}
	add := func(e worktree.Entry, use string) {
		if e.ID == "" {
			return
		}
		c, ok := out[e.ID]
		if !ok {
			c = &AssetChange{ID: e.ID, Type: e.Type}
			out[e.ID] = c
		}
		if !contains(c.Files, e.Name) {
			c.Files = append(c.Files, e.Name)
		}
		if use != "" && !contains(c.Uses, use) {
			c.Uses = append(c.Uses, use)
		}
	}

	if s.proj == nil {
		for _, e := range s.index.Assets {
			add(e, "")
		}
		return out, nil
	}
	for _, t := range s.proj.Targets {
		for _, ref := range append(append([]sb3.AssetRef{}, t.Costumes...), t.Sounds...) {
			e, ok := s.index.Lookup(ref.File())
			if !ok {
				return nil, fmt.Errorf("%w: %s referenced by %s/%s", errs.ErrMissingAsset, ref.File(), t.Name, ref.Name)
			}
			add(e, t.Name+"/"+ref.Name)
		}
	}
	return out, nil
}

func diffAssets(a, b *side) (AssetChanges, error) {
	var out AssetChanges
	ra, err := a.referenced()
	if err != nil {
		return out, err
	}
	rb, err := b.referenced()
	if err != nil {
		return out, err
	}
	for _, id := range util.UnionKeys(ra, rb) {
		ca, inA := ra[id]
		cb, inB := rb[id]
		switch {
		case !inA:
			out.Added = append(out.Added, sortedAsset(cb))
		case !inB:
			out.Removed = append(out.Removed, sortedAsset(ca))
		}
	}
	return out, nil
}

func sortedAsset(c *AssetChange) AssetChange {
	sort.Strings(c.Files)
	sort.Strings(c.Uses)
	return *c
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func diffTarget(sa, sb *side, a, b *sb3.Target, changedIDs map[string]bool) TargetDiff {
	td := TargetDiff{Name: a.Name}
	td.Properties = diffProps(a.Props, b.Props)
	td.Blocks = diffBlocks(sa.proj, sb.proj, a, b)
	td.Scripts = summarizeScripts(a, b, td.Blocks)
	td.Variables = diffVariables(a.Variables, b.Variables)
	td.Lists = diffLists(a.Lists, b.Lists)
	td.Broadcasts = diffBroadcasts(a.Broadcasts, b.Broadcasts)
	td.Costumes = diffAssetRefs(sa, sb, a.Costumes, b.Costumes, changedIDs)
	td.Sounds = diffAssetRefs(sa, sb, a.Sounds, b.Sounds, changedIDs)
	return td
}

func diffProps(a, b map[string]any) []ValueChange {
	var out []ValueChange
	for _, k := range util.UnionKeys(a, b) {
		va, inA := a[k]
		vb, inB := b[k]
		switch {
		case !inA:
			out = append(out, ValueChange{ID: k, Change: Added, New: vb})
		case !inB:
			out = append(out, ValueChange{ID: k, Change: Removed, Old: va})
		case !sb3.Equal(va, vb):
			out = append(out, ValueChange{ID: k, Change: Modified, Old: va, New: vb})
		}
	}
	return out
}

func diffVariables(a, b map[string]sb3.Variable) []ValueChange {
	var out []ValueChange
	for _, id := range util.UnionKeys(a, b) {
		va, inA := a[id]
		vb, inB := b[id]
		switch {
		case !inA:
			out = append(out, ValueChange{ID: id, Name: vb.Name, Change: Added, New: vb.Value})
		case !inB:
			out = append(out, ValueChange{ID: id, Name: va.Name, Change: Removed, Old: va.Value})
		default:
			if va.Name != vb.Name {
				out = append(out, ValueChange{ID: id, Name: vb.Name, Change: Renamed, Old: va.Name, New: vb.Name})
			}
			if !sb3.Equal(va.Value, vb.Value) {
				out = append(out, ValueChange{ID: id, Name: vb.Name, Change: Modified, Old: va.Value, New: vb.Value})
			}
			if va.Cloud != vb.Cloud {
				out = append(out, ValueChange{ID: id, Name: vb.Name, Change: Cloud, Old: va.Cloud, New: vb.Cloud})
			}
		}
	}
	return out
}

func diffLists(a, b map[string]sb3.List) []ValueChange {
	var out []ValueChange
	for _, id := range util.UnionKeys(a, b) {
		la, inA := a[id]
		lb, inB := b[id]
		switch {
		case !inA:
			out = append(out, ValueChange{ID: id, Name: lb.Name, Change: Added, New: lb.Values})
		case !inB:
			out = append(out, ValueChange{ID: id, Name: la.Name, Change: Removed, Old: la.Values})
		default:
			if la.Name != lb.Name {
				out = append(out, ValueChange{ID: id, Name: lb.Name, Change: Renamed, Old: la.Name, New: lb.Name})
			}
			if !sb3.Equal(la.Values, lb.Values) {
				out = append(out, ValueChange{ID: id, Name: lb.Name, Change: Modified, Old: la.Values, New: lb.Values})
			}
		}
	}
	return out
}

func diffBroadcasts(a, b map[string]string) []ValueChange {
	var out []ValueChange
	for _, id := range util.UnionKeys(a, b) {
		na, inA := a[id]
		nb, inB := b[id]
		switch {
		case !inA:
			out = append(out, ValueChange{ID: id, Name: nb, Change: Added})
		case !inB:
			out = append(out, ValueChange{ID: id, Name: na, Change: Removed})
		case na != nb:
			out = append(out, ValueChange{ID: id, Name: nb, Change: Renamed, Old: na, New: nb})
		}
	}
	return out
}

// diffAssetRefs compares costume or sound metadata by name. Entries whose
// payload appears in the asset section are left to it.
func diffAssetRefs(sa, sb *side, a, b []sb3.AssetRef, changedIDs map[string]bool) []ValueChange {
	byName := func(refs []sb3.AssetRef) map[string]sb3.AssetRef {
		m := make(map[string]sb3.AssetRef, len(refs))
		for _, r := range refs {
			m[r.Name] = r
		}
		return m
	}
	ma, mb := byName(a), byName(b)

	var out []ValueChange
	for _, name := range util.UnionKeys(ma, mb) {
		ra, inA := ma[name]
		rb, inB := mb[name]
		switch {
		case !inA:
			if !changedIDs[sb.contentID(rb)] {
				out = append(out, ValueChange{ID: name, Name: name, Change: Added, New: rb.File()})
			}
		case !inB:
			if !changedIDs[sa.contentID(ra)] {
				out = append(out, ValueChange{ID: name, Name: name, Change: Removed, Old: ra.File()})
			}
		default:
			idA, idB := sa.contentID(ra), sb.contentID(rb)
			if idA != idB && (changedIDs[idA] || changedIDs[idB]) {
				// Payload swap: reported under assets.
				continue
			}
			if idA != idB {
				out = append(out, ValueChange{ID: name, Name: name, Change: Modified, Old: ra.File(), New: rb.File()})
			}
			for _, k := range util.UnionKeys(ra.Raw, rb.Raw) {
				if k == "assetId" || k == "md5ext" || k == "dataFormat" {
					continue
				}
				if !sb3.Equal(ra.Raw[k], rb.Raw[k]) {
					out = append(out, ValueChange{ID: name + "." + k, Name: name, Change: Modified, Old: ra.Raw[k], New: rb.Raw[k]})
				}
			}
		}
	}

	order := func(refs []sb3.AssetRef) []string {
		var names []string
		for _, r := range refs {
			if _, ok := ma[r.Name]; !ok {
				continue
			}
			if _, ok := mb[r.Name]; !ok {
				continue
			}
			names = append(names, r.Name)
		}
		return names
	}
	if oa, ob := order(a), order(b); !sb3.Equal(oa, ob) {
		out = append(out, ValueChange{ID: "", Change: Reorder, Old: oa, New: ob})
	}
	return out
}

func diffMonitors(a, b map[string]map[string]any) []ValueChange {
	var out []ValueChange
	for _, id := range util.UnionKeys(a, b) {
		ma, inA := a[id]
		mb, inB := b[id]
		switch {
		case !inA:
			out = append(out, ValueChange{ID: id, Name: monitorName(mb), Change: Added})
		case !inB:
			out = append(out, ValueChange{ID: id, Name: monitorName(ma), Change: Removed})
		default:
			for _, k := range util.UnionKeys(ma, mb) {
				if !sb3.Equal(ma[k], mb[k]) {
					out = append(out, ValueChange{ID: id + "." + k, Name: monitorName(mb), Change: Modified, Old: ma[k], New: mb[k]})
				}
			}
		}
	}
	return out
}

func monitorName(m map[string]any) string {
	if params, ok := m["params"].(map[string]any); ok {
		for _, k := range []string{"VARIABLE", "LIST"} {
			if s, ok := params[k].(string); ok {
				return s
			}
		}
	}
	s, _ := m["opcode"].(string)
	return s
}

func diffNames(a, b []string) NameChanges {
	set := func(list []string) map[string]bool {
		m := make(map[string]bool, len(list))
		for _, s := range list {
			m[s] = true
		}
		return m
	}
	sa, sb := set(a), set(b)
	var out NameChanges
	for _, n := range util.UnionKeys(sa, sb) {
		switch {
		case !sa[n]:
			out.Added = append(out.Added, n)
		case !sb[n]:
			out.Removed = append(out.Removed, n)
		}
	}
	return out
}
