// Package sb3test builds manifests and bundles for tests.
package sb3test

import (
	"archive/zip"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"testing"
)

// Project describes a manifest to build.
type Project struct {
	Targets    []Target
	Monitors   []map[string]any
	Extensions []string
	Semver     string
	Extra      map[string]any
}

// Target describes one stage or sprite.
type Target struct {
	Name       string
	IsStage    bool
	Blocks     map[string]any
	Variables  map[string][]any
	Lists      map[string][]any
	Broadcasts map[string]string
	Costumes   []Asset
	Sounds     []Asset
	Props      map[string]any
	Comments   map[string]any
}

// Asset is a costume or sound with its payload. Name defaults to
// md5(Data)+"."+Ext, as the editor names assets.
type Asset struct {
	Label string
	Ext   string
	Data  []byte
	Name  string
}

// File returns the declared archive entry name.
func (a Asset) File() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID() + "." + a.Ext
}

// ID returns the md5 asset id.
func (a Asset) ID() string {
	sum := md5.Sum(a.Data)
	return hex.EncodeToString(sum[:])
}

// Block returns a top-level block with the given fields.
func Block(opcode string, fields map[string]any) map[string]any {
	if fields == nil {
		fields = map[string]any{}
	}
	return map[string]any{
		"opcode":   opcode,
		"next":     nil,
		"parent":   nil,
		"inputs":   map[string]any{},
		"fields":   fields,
		"shadow":   false,
		"topLevel": true,
		"x":        0,
		"y":        0,
	}
}

// Child returns a non-top-level block under parent.
func Child(opcode, parent string, inputs map[string]any) map[string]any {
	b := Block(opcode, nil)
	b["parent"] = parent
	b["topLevel"] = false
	delete(b, "x")
	delete(b, "y")
	if inputs != nil {
		b["inputs"] = inputs
	}
	return b
}

// Field encodes a field value as the editor does.
func Field(v any) []any { return []any{v, nil} }

// NumberInput encodes a literal number input.
func NumberInput(v string) []any { return []any{1, []any{4, v}} }

func assetJSON(a Asset, sound bool) map[string]any {
	m := map[string]any{
		"name":       a.Label,
		"assetId":    a.ID(),
		"dataFormat": a.Ext,
		"md5ext":     a.File(),
	}
	if sound {
		m["rate"] = 48000
		m["sampleCount"] = 1
	} else {
		m["rotationCenterX"] = 0
		m["rotationCenterY"] = 0
	}
	return m
}

// Document returns the manifest as a generic document.
func (p Project) Document() map[string]any {
	semver := p.Semver
	if semver == "" {
		semver = "3.0.0"
	}
	targets := make([]any, 0, len(p.Targets))
	for _, t := range p.Targets {
		obj := map[string]any{
			"isStage":    t.IsStage,
			"name":       t.Name,
			"variables":  orEmpty(t.Variables),
			"lists":      orEmpty(t.Lists),
			"broadcasts": orEmpty(t.Broadcasts),
			"blocks":     orEmpty(t.Blocks),
			"comments":   orEmpty(t.Comments),
		}
		costumes := make([]any, 0, len(t.Costumes))
		for _, c := range t.Costumes {
			costumes = append(costumes, assetJSON(c, false))
		}
		sounds := make([]any, 0, len(t.Sounds))
		for _, s := range t.Sounds {
			sounds = append(sounds, assetJSON(s, true))
		}
		obj["costumes"] = costumes
		obj["sounds"] = sounds
		for k, v := range t.Props {
			obj[k] = v
		}
		targets = append(targets, obj)
	}
	monitors := make([]any, 0, len(p.Monitors))
	for _, m := range p.Monitors {
		monitors = append(monitors, m)
	}
	exts := p.Extensions
	if exts == nil {
		exts = []string{}
	}
	doc := map[string]any{
		"targets":    targets,
		"monitors":   monitors,
		"extensions": exts,
		"meta":       map[string]any{"semver": semver, "vm": "0.2.0", "agent": "sb3test"},
	}
	for k, v := range p.Extra {
		doc[k] = v
	}
	return doc
}

func orEmpty[V any](m map[string]V) map[string]V {
	if m == nil {
		return map[string]V{}
	}
	return m
}

// Manifest returns project.json bytes.
func (p Project) Manifest(tb testing.TB) []byte {
	tb.Helper()
	data, err := json.Marshal(p.Document())
	if err != nil {
		tb.Fatalf("marshal manifest: %v", err)
	}
	return data
}

// Bundle returns a zip bundle with the manifest and every asset.
func (p Project) Bundle(tb testing.TB) []byte {
	tb.Helper()
	files := map[string][]byte{"project.json": p.Manifest(tb)}
	for _, t := range p.Targets {
		for _, a := range append(append([]Asset{}, t.Costumes...), t.Sounds...) {
			files[a.File()] = a.Data
		}
	}
	return Zip(tb, files)
}

// Zip packs files into a zip container.
func Zip(tb testing.TB, files map[string][]byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range files {
		w, err := zw.Create(name)
		if err != nil {
			tb.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write(data); err != nil {
			tb.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// Stage returns a minimal stage target with one backdrop.
func Stage() Target {
	return Target{
		Name:     "Stage",
		IsStage:  true,
		Costumes: []Asset{{Label: "backdrop1", Ext: "svg", Data: []byte("<svg/>")}},
		Props:    map[string]any{"volume": 100, "tempo": 60, "layerOrder": 0},
	}
}

// Sprite returns a sprite target with one costume and the given blocks.
func Sprite(name string, blocks map[string]any) Target {
	return Target{
		Name:     name,
		Blocks:   blocks,
		Costumes: []Asset{{Label: "costume1", Ext: "svg", Data: []byte("<svg>" + name + "</svg>")}},
		Props:    map[string]any{"x": 0, "y": 0, "visible": true, "layerOrder": 1},
	}
}
