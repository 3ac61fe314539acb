package sb3

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/keshon/sbvc/internal/errs"
	"github.com/keshon/sbvc/internal/util"
)

var (
	projectKeys = map[string]bool{"targets": true, "monitors": true, "extensions": true, "meta": true}
	targetKeys  = map[string]bool{
		"name": true, "isStage": true, "variables": true, "lists": true, "broadcasts": true,
		"blocks": true, "comments": true, "costumes": true, "sounds": true,
	}
	blockKeys = map[string]bool{
		"opcode": true, "next": true, "parent": true, "inputs": true, "fields": true,
		"shadow": true, "topLevel": true, "x": true, "y": true, "mutation": true, "comment": true,
	}
)

// PropKeys are the scalar target properties compared one by one.
var PropKeys = map[string]bool{
	"x": true, "y": true, "size": true, "direction": true, "visible": true,
	"currentCostume": true, "volume": true, "layerOrder": true, "draggable": true,
	"rotationStyle": true, "tempo": true, "videoState": true, "videoTransparency": true,
	"textToSpeechLanguage": true,
}

// primitiveOpcodes maps the array encoding's type code to its block opcode.
var primitiveOpcodes = map[int]string{
	4: "math_number", 5: "math_positive_number", 6: "math_whole_number",
	7: "math_integer", 8: "math_angle", 9: "colour_picker", 10: "text",
	11: "event_broadcast_menu", 12: "data_variable", 13: "data_listcontents",
}

// Decode parses manifest JSON into a generic document with numbers kept as
// json.Number. Anything but a JSON object is a malformed archive.
func Decode(data []byte) (map[string]any, error) {
	var doc any
	if err := util.DecodeJSON(data, &doc); err != nil {
		return nil, errs.Wrapf(errs.ErrMalformedArchive, "parse manifest", "%v", err)
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, errs.Wrapf(errs.ErrMalformedArchive, "parse manifest", "manifest is not an object")
	}
	return m, nil
}

// Canonical returns the key-ordered, indented form of a manifest.
func Canonical(data []byte) ([]byte, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return util.CanonicalJSON(doc)
}

// Compact returns the single-line form the editor writes.
func Compact(data []byte) ([]byte, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return util.CompactJSON(doc)
}

// CheckFormat returns ErrUnsupportedFormat when doc is not a schema this
// package understands: no targets array, or a semver major above
// SupportedMajor.
func CheckFormat(doc map[string]any) error {
	if _, ok := doc["targets"].([]any); !ok {
		return errs.Wrapf(errs.ErrUnsupportedFormat, "parse manifest", "no targets array")
	}
	meta, _ := doc["meta"].(map[string]any)
	semver, _ := meta["semver"].(string)
	if semver == "" {
		return nil
	}
	major, err := strconv.Atoi(strings.SplitN(semver, ".", 2)[0])
	if err != nil {
		return errs.Wrapf(errs.ErrUnsupportedFormat, "parse manifest", "semver %q", semver)
	}
	if major > SupportedMajor {
		return errs.Wrapf(errs.ErrUnsupportedFormat, "parse manifest", "schema %s is newer than %d.x", semver, SupportedMajor)
	}
	return nil
}

// Parse decodes and models a manifest.
func Parse(data []byte) (*Project, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return FromDocument(doc)
}

// FromDocument models an already decoded manifest.
func FromDocument(doc map[string]any) (*Project, error) {
	if err := CheckFormat(doc); err != nil {
		return nil, err
	}

	p := &Project{
		Monitors: map[string]map[string]any{},
		Extras:   map[string]any{},
	}
	for k, v := range doc {
		if !projectKeys[k] {
			p.Extras[k] = v
		}
	}
	p.Meta, _ = doc["meta"].(map[string]any)

	if exts, ok := doc["extensions"].([]any); ok {
		for _, e := range exts {
			if s, ok := e.(string); ok {
				p.Extensions = append(p.Extensions, s)
			}
		}
	}

	if mons, ok := doc["monitors"].([]any); ok {
		for i, raw := range mons {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			id, _ := m["id"].(string)
			if id == "" {
				id = "#" + strconv.Itoa(i)
			}
			p.Monitors[id] = m
		}
	}

	seen := map[string]bool{}
	for i, raw := range doc["targets"].([]any) {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, errs.Wrapf(errs.ErrMalformedArchive, "parse manifest", "target %d is not an object", i)
		}
		t, err := parseTarget(obj)
		if err != nil {
			return nil, errs.Wrapf(errs.ErrMalformedArchive, "parse manifest", "target %d: %v", i, err)
		}
		if seen[t.Name] {
			return nil, errs.Wrapf(errs.ErrMalformedArchive, "parse manifest", "duplicate target name %q", t.Name)
		}
		seen[t.Name] = true
		p.Targets = append(p.Targets, t)
	}
	return p, nil
}

func parseTarget(obj map[string]any) (*Target, error) {
	name, ok := obj["name"].(string)
	if !ok {
		return nil, fmt.Errorf("missing name")
	}
	t := &Target{
		Name:       name,
		Variables:  map[string]Variable{},
		Lists:      map[string]List{},
		Broadcasts: map[string]string{},
		Blocks:     map[string]*Block{},
		Props:      map[string]any{},
		Extras:     map[string]any{},
	}
	t.IsStage, _ = obj["isStage"].(bool)
	t.Comments, _ = obj["comments"].(map[string]any)

	for k, v := range obj {
		switch {
		case targetKeys[k]:
		case PropKeys[k]:
			t.Props[k] = v
		default:
			t.Extras[k] = v
		}
	}

	vars, _ := obj["variables"].(map[string]any)
	for id, raw := range vars {
		arr, ok := raw.([]any)
		if !ok || len(arr) < 2 {
			return nil, fmt.Errorf("variable %s: want [name, value]", id)
		}
		v := Variable{Value: arr[1]}
		v.Name, _ = arr[0].(string)
		if len(arr) > 2 {
			v.Cloud, _ = arr[2].(bool)
		}
		t.Variables[id] = v
	}

	lists, _ := obj["lists"].(map[string]any)
	for id, raw := range lists {
		arr, ok := raw.([]any)
		if !ok || len(arr) < 2 {
			return nil, fmt.Errorf("list %s: want [name, values]", id)
		}
		l := List{}
		l.Name, _ = arr[0].(string)
		l.Values, _ = arr[1].([]any)
		t.Lists[id] = l
	}

	bcs, _ := obj["broadcasts"].(map[string]any)
	for id, raw := range bcs {
		s, _ := raw.(string)
		t.Broadcasts[id] = s
	}

	blocks, _ := obj["blocks"].(map[string]any)
	for id, raw := range blocks {
		b, err := parseBlock(id, raw)
		if err != nil {
			return nil, err
		}
		t.Blocks[id] = b
	}

	var err error
	if t.Costumes, err = parseAssetRefs(obj["costumes"]); err != nil {
		return nil, fmt.Errorf("costumes: %w", err)
	}
	if t.Sounds, err = parseAssetRefs(obj["sounds"]); err != nil {
		return nil, fmt.Errorf("sounds: %w", err)
	}
	return t, nil
}

func parseBlock(id string, raw any) (*Block, error) {
	b := &Block{ID: id, Extras: map[string]any{}}
	switch v := raw.(type) {
	case []any:
		if len(v) < 3 {
			return nil, fmt.Errorf("block %s: short primitive", id)
		}
		code, err := strconv.Atoi(Text(v[0]))
		if err != nil {
			return nil, fmt.Errorf("block %s: primitive type %v", id, v[0])
		}
		b.Opcode = primitiveOpcodes[code]
		if b.Opcode == "" {
			b.Opcode = "primitive_" + strconv.Itoa(code)
		}
		b.Primitive = v
		b.TopLevel = true
		if len(v) >= 5 {
			b.X, b.Y = v[3], v[4]
		}
		return b, nil
	case map[string]any:
		for k, val := range v {
			if !blockKeys[k] {
				b.Extras[k] = val
			}
		}
		b.Opcode, _ = v["opcode"].(string)
		b.Next, _ = v["next"].(string)
		b.Parent, _ = v["parent"].(string)
		b.Inputs, _ = v["inputs"].(map[string]any)
		b.Fields, _ = v["fields"].(map[string]any)
		b.Shadow, _ = v["shadow"].(bool)
		b.TopLevel, _ = v["topLevel"].(bool)
		b.X, b.Y = v["x"], v["y"]
		b.Mutation = v["mutation"]
		b.Comment, _ = v["comment"].(string)
		return b, nil
	}
	return nil, fmt.Errorf("block %s: unexpected %T", id, raw)
}

func parseAssetRefs(raw any) ([]AssetRef, error) {
	if raw == nil {
		return nil, nil
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("want an array")
	}
	out := make([]AssetRef, 0, len(arr))
	for i, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("entry %d is not an object", i)
		}
		a := AssetRef{Raw: obj}
		a.Name, _ = obj["name"].(string)
		a.AssetID, _ = obj["assetId"].(string)
		a.DataFormat, _ = obj["dataFormat"].(string)
		a.MD5Ext, _ = obj["md5ext"].(string)
		out = append(out, a)
	}
	return out, nil
}
