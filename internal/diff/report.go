package diff

import (
	"encoding/json"
)

// Change kinds used across sections.
const (
	Added    = "added"
	Removed  = "removed"
	Modified = "modified"
	Renamed  = "renamed"
	Reorder  = "order"
	Cloud    = "cloud"
)

// Delta kinds of a modified block.
const (
	KindOpcode   = "opcode"
	KindInput    = "input"
	KindField    = "field"
	KindLink     = "link"
	KindMutation = "mutation"
	KindPosition = "position"
	KindComment  = "comment"
	KindFlag     = "flag"
	KindOther    = "other"
)

// Report is the structured difference between two working trees. Every
// slice is sorted, so equal inputs give byte-identical JSON.
type Report struct {
	Targets    TargetChanges `json:"targets"`
	Monitors   []ValueChange `json:"monitors,omitempty"`
	Extensions NameChanges   `json:"extensions"`
	Assets     AssetChanges  `json:"assets"`
	Text       []TextDiff    `json:"text,omitempty"`
}

// TargetChanges lists targets by name. Only targets with at least one
// change appear under Modified.
type TargetChanges struct {
	Added    []string     `json:"added,omitempty"`
	Removed  []string     `json:"removed,omitempty"`
	Modified []TargetDiff `json:"modified,omitempty"`
}

// TargetDiff holds the changes inside one target present on both sides.
type TargetDiff struct {
	Name       string         `json:"name"`
	Properties []ValueChange  `json:"properties,omitempty"`
	Blocks     BlockChanges   `json:"blocks"`
	Scripts    []ScriptChange `json:"scripts,omitempty"`
	Variables  []ValueChange  `json:"variables,omitempty"`
	Lists      []ValueChange  `json:"lists,omitempty"`
	Broadcasts []ValueChange  `json:"broadcasts,omitempty"`
	Costumes   []ValueChange  `json:"costumes,omitempty"`
	Sounds     []ValueChange  `json:"sounds,omitempty"`
}

// BlockChanges lists blocks by id.
type BlockChanges struct {
	Added    []BlockRef  `json:"added,omitempty"`
	Removed  []BlockRef  `json:"removed,omitempty"`
	Modified []BlockDiff `json:"modified,omitempty"`
}

// BlockRef names a block.
type BlockRef struct {
	ID     string `json:"id"`
	Opcode string `json:"opcode"`
}

// BlockDiff is a block present on both sides with its field-level deltas.
type BlockDiff struct {
	ID     string  `json:"id"`
	Opcode string  `json:"opcode"`
	Deltas []Delta `json:"deltas"`
}

// Delta is one changed aspect of a block. A nil side means absent.
type Delta struct {
	Kind string  `json:"kind"`
	Key  string  `json:"key,omitempty"`
	Old  *string `json:"old"`
	New  *string `json:"new"`
}

// ScriptChange summarizes the block changes under one top-level block.
type ScriptChange struct {
	Root     string `json:"root"`
	Opcode   string `json:"opcode"`
	Status   string `json:"status"`
	Added    int    `json:"added"`
	Removed  int    `json:"removed"`
	Modified int    `json:"modified"`
}

// ValueChange is a keyed entry (variable, list, property, ...) that was
// added, removed or changed.
type ValueChange struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Change string `json:"change"`
	Old    any    `json:"old,omitempty"`
	New    any    `json:"new,omitempty"`
}

// NameChanges lists plain names that appeared or disappeared.
type NameChanges struct {
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// AssetChanges lists referenced asset payloads by content id.
type AssetChanges struct {
	Added   []AssetChange `json:"added,omitempty"`
	Removed []AssetChange `json:"removed,omitempty"`
}

// AssetChange is one asset payload. Files are the declared archive names
// and Uses the "target/costume" labels referring to it.
type AssetChange struct {
	ID    string   `json:"id"`
	Type  string   `json:"type"`
	Files []string `json:"files"`
	Uses  []string `json:"uses,omitempty"`
}

// TextDiff is a unified patch for a part of the manifest with no
// structured comparison.
type TextDiff struct {
	Path  string `json:"path"`
	Patch string `json:"patch"`
}

func (t TargetDiff) empty() bool {
	return len(t.Properties) == 0 && t.Blocks.empty() && len(t.Variables) == 0 &&
		len(t.Lists) == 0 && len(t.Broadcasts) == 0 && len(t.Costumes) == 0 && len(t.Sounds) == 0
}

func (b BlockChanges) empty() bool {
	return len(b.Added) == 0 && len(b.Removed) == 0 && len(b.Modified) == 0
}

// Empty reports whether the two sides were equivalent.
func (r *Report) Empty() bool {
	return len(r.Targets.Added) == 0 && len(r.Targets.Removed) == 0 && len(r.Targets.Modified) == 0 &&
		len(r.Monitors) == 0 && len(r.Extensions.Added) == 0 && len(r.Extensions.Removed) == 0 &&
		len(r.Assets.Added) == 0 && len(r.Assets.Removed) == 0 && len(r.Text) == 0
}

// Sections lists the keys of Counts in display order.
var Sections = []string{
	"targets", "properties", "blocks", "variables", "lists", "broadcasts",
	"costumes", "sounds", "monitors", "extensions", "assets", "text",
}

// Counts returns the number of changes per section.
func (r *Report) Counts() map[string]int {
	c := map[string]int{
		"targets":    len(r.Targets.Added) + len(r.Targets.Removed),
		"monitors":   len(r.Monitors),
		"extensions": len(r.Extensions.Added) + len(r.Extensions.Removed),
		"assets":     len(r.Assets.Added) + len(r.Assets.Removed),
		"text":       len(r.Text),
	}
	for _, t := range r.Targets.Modified {
		c["properties"] += len(t.Properties)
		c["blocks"] += len(t.Blocks.Added) + len(t.Blocks.Removed) + len(t.Blocks.Modified)
		c["variables"] += len(t.Variables)
		c["lists"] += len(t.Lists)
		c["broadcasts"] += len(t.Broadcasts)
		c["costumes"] += len(t.Costumes)
		c["sounds"] += len(t.Sounds)
	}
	return c
}

// JSON encodes the report.
func (r *Report) JSON() ([]byte, error) {
	return json.Marshal(r)
}
