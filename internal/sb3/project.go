// Package sb3 models the project manifest (project.json) of a Scratch 3 /
// TurboWarp project. The model is a parsed view: canonical storage keeps the
// raw document, so keys the model does not know survive untouched.
package sb3

import (
	"strings"
)

// SupportedMajor is the newest manifest schema major version understood.
const SupportedMajor = 3

// Project is a parsed manifest.
type Project struct {
	Targets    []*Target
	Monitors   map[string]map[string]any
	Extensions []string
	Meta       map[string]any
	// Extras holds top-level keys outside the model.
	Extras map[string]any
}

// Target is the stage or one sprite.
type Target struct {
	Name       string
	IsStage    bool
	Variables  map[string]Variable
	Lists      map[string]List
	Broadcasts map[string]string
	Blocks     map[string]*Block
	Costumes   []AssetRef
	Sounds     []AssetRef
	Comments   map[string]any
	// Props holds the known scalar properties (x, y, volume, ...).
	Props map[string]any
	// Extras holds target keys outside the model.
	Extras map[string]any
}

// Variable is a target-scoped variable. Cloud is set for cloud variables.
type Variable struct {
	Name  string
	Value any
	Cloud bool
}

// List is a target-scoped list.
type List struct {
	Name   string
	Values []any
}

// AssetRef is a costume or sound entry.
type AssetRef struct {
	Name       string
	AssetID    string
	DataFormat string
	MD5Ext     string
	Raw        map[string]any
}

// File returns the archive entry name the reference points at.
func (a AssetRef) File() string {
	if a.MD5Ext != "" {
		return a.MD5Ext
	}
	if a.AssetID == "" {
		return ""
	}
	return a.AssetID + "." + a.DataFormat
}

// Block is one node of a script. Top-level reporters stored as arrays keep
// the array in Primitive.
type Block struct {
	ID       string
	Opcode   string
	Next     string
	Parent   string
	Inputs   map[string]any
	Fields   map[string]any
	Shadow   bool
	TopLevel bool
	X        any
	Y        any
	Mutation any
	Comment  string
	// Primitive is non-nil for array-encoded blocks.
	Primitive []any
	// Extras holds block keys outside the model.
	Extras map[string]any
}

// Category returns the opcode prefix before the first underscore.
func (b *Block) Category() string {
	if i := strings.IndexByte(b.Opcode, '_'); i > 0 {
		return b.Opcode[:i]
	}
	return b.Opcode
}

// builtinExtensions are extensions shipped with the editor whose blocks use
// the ordinary block encoding.
var builtinExtensions = map[string]bool{
	"pen": true, "music": true, "videoSensing": true, "text2speech": true,
	"translate": true, "makeymakey": true, "microbit": true, "ev3": true,
	"boost": true, "wedo2": true, "gdxfor": true,
}

// Target returns the target with the given name, or nil.
func (p *Project) Target(name string) *Target {
	for _, t := range p.Targets {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// TargetNames returns target names in manifest order.
func (p *Project) TargetNames() []string {
	out := make([]string, 0, len(p.Targets))
	for _, t := range p.Targets {
		out = append(out, t.Name)
	}
	return out
}

// Recognized reports whether b can be compared structurally. Blocks of
// extensions listed in the manifest and unknown to the editor core are not.
func (p *Project) Recognized(b *Block) bool {
	cat := b.Category()
	if builtinExtensions[cat] {
		return true
	}
	for _, ext := range p.Extensions {
		if ext == cat {
			return false
		}
	}
	return true
}

// AssetRefs returns every costume and sound across targets in manifest order.
func (p *Project) AssetRefs() []AssetRef {
	var out []AssetRef
	for _, t := range p.Targets {
		out = append(out, t.Costumes...)
		out = append(out, t.Sounds...)
	}
	return out
}

// Scripts groups block ids by the top-level block they hang from.
func (t *Target) Scripts() map[string][]string {
	out := make(map[string][]string)
	for id := range t.Blocks {
		root := t.rootOf(id)
		out[root] = append(out[root], id)
	}
	return out
}

// ScriptOf returns the id of the top-level block id hangs from.
func (t *Target) ScriptOf(id string) string {
	return t.rootOf(id)
}

func (t *Target) rootOf(id string) string {
	seen := map[string]bool{}
	cur := id
	for {
		b, ok := t.Blocks[cur]
		if !ok || b.Parent == "" || seen[cur] {
			return cur
		}
		if _, ok := t.Blocks[b.Parent]; !ok {
			return cur
		}
		seen[cur] = true
		cur = b.Parent
	}
}
