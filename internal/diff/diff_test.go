package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/sbvc/internal/archive"
	"github.com/keshon/sbvc/internal/errs"
	"github.com/keshon/sbvc/internal/sb3/sb3test"
	"github.com/keshon/sbvc/internal/worktree"
)

func build(t *testing.T, p sb3test.Project) *worktree.Tree {
	t.Helper()
	tree, err := archive.Ingest(p.Bundle(t), archive.Options{})
	require.NoError(t, err)
	return tree
}

func project(steps string) sb3test.Project {
	sprite := sb3test.Sprite("Sprite1", map[string]any{
		"b1": sb3test.Block("motion_movesteps", map[string]any{"STEPS": sb3test.Field(steps)}),
	})
	sprite.Variables = map[string][]any{"v1": {"score", 0}}
	return sb3test.Project{Targets: []sb3test.Target{sb3test.Stage(), sprite}}
}

func TestDiffIdentity(t *testing.T) {
	a := build(t, project("10"))
	r, err := Diff(a, a)
	require.NoError(t, err)
	assert.True(t, r.Empty())
	assert.Equal(t, "no changes\n", Render(r))

	b := build(t, project("10"))
	r, err = Diff(a, b)
	require.NoError(t, err)
	assert.True(t, r.Empty())
}

func TestDiffFieldChange(t *testing.T) {
	a, b := build(t, project("10")), build(t, project("20"))
	r, err := Diff(a, b)
	require.NoError(t, err)

	assert.Empty(t, r.Targets.Added)
	assert.Empty(t, r.Targets.Removed)
	assert.Empty(t, r.Assets.Added)
	assert.Empty(t, r.Assets.Removed)
	assert.Empty(t, r.Text)
	require.Len(t, r.Targets.Modified, 1)

	td := r.Targets.Modified[0]
	assert.Equal(t, "Sprite1", td.Name)
	assert.Empty(t, td.Properties)
	assert.Empty(t, td.Variables)
	assert.Empty(t, td.Blocks.Added)
	assert.Empty(t, td.Blocks.Removed)
	require.Len(t, td.Blocks.Modified, 1)

	bd := td.Blocks.Modified[0]
	assert.Equal(t, "b1", bd.ID)
	require.Len(t, bd.Deltas, 1)
	d := bd.Deltas[0]
	assert.Equal(t, KindField, d.Kind)
	assert.Equal(t, "STEPS", d.Key)
	require.NotNil(t, d.Old)
	require.NotNil(t, d.New)
	assert.Equal(t, "10", *d.Old)
	assert.Equal(t, "20", *d.New)

	assert.Equal(t, []ScriptChange{{Root: "b1", Opcode: "motion_movesteps", Status: Modified, Modified: 1}}, td.Scripts)
	assert.Contains(t, Render(r), "b1 field STEPS: 10 → 20")
}

func TestDiffSymmetric(t *testing.T) {
	p1 := project("10")
	p2 := project("10")
	p2.Targets = append(p2.Targets, sb3test.Sprite("Sprite2", nil))
	a, b := build(t, p1), build(t, p2)

	ab, err := Diff(a, b)
	require.NoError(t, err)
	ba, err := Diff(b, a)
	require.NoError(t, err)

	assert.Equal(t, []string{"Sprite2"}, ab.Targets.Added)
	assert.Equal(t, ab.Targets.Added, ba.Targets.Removed)
	assert.Equal(t, ab.Targets.Removed, ba.Targets.Added)
	require.Len(t, ab.Assets.Added, 1)
	assert.Equal(t, ab.Assets.Added, ba.Assets.Removed)
	assert.Equal(t, []string{"Sprite2/costume1"}, ab.Assets.Added[0].Uses)
}

func TestDiffVariablesOnly(t *testing.T) {
	p := project("10")
	a := build(t, p)
	p.Targets[1].Variables = map[string][]any{"v1": {"points", 5}, "v2": {"lives", 3}}
	b := build(t, p)

	r, err := Diff(a, b)
	require.NoError(t, err)
	require.Len(t, r.Targets.Modified, 1)
	td := r.Targets.Modified[0]
	assert.True(t, td.Blocks.empty())
	assert.Empty(t, td.Scripts)
	require.Len(t, td.Variables, 3)
	assert.Equal(t, "v1", td.Variables[0].ID)
	assert.Equal(t, Renamed, td.Variables[0].Change)
	assert.Equal(t, Modified, td.Variables[1].Change)
	assert.Equal(t, ValueChange{ID: "v2", Name: "lives", Change: Added, New: td.Variables[2].New}, td.Variables[2])
}

func TestDiffBlockAddedAndLinked(t *testing.T) {
	a := build(t, project("10"))

	p := project("10")
	blocks := p.Targets[1].Blocks
	b1 := blocks["b1"].(map[string]any)
	b1["next"] = "b2"
	b2 := sb3test.Child("motion_turnright", "b1", map[string]any{"DEGREES": sb3test.NumberInput("15")})
	blocks["b2"] = b2
	b := build(t, p)

	r, err := Diff(a, b)
	require.NoError(t, err)
	require.Len(t, r.Targets.Modified, 1)
	td := r.Targets.Modified[0]
	assert.Equal(t, []BlockRef{{ID: "b2", Opcode: "motion_turnright"}}, td.Blocks.Added)
	require.Len(t, td.Blocks.Modified, 1)
	assert.Equal(t, KindLink, td.Blocks.Modified[0].Deltas[0].Kind)
	assert.Equal(t, "next", td.Blocks.Modified[0].Deltas[0].Key)
	assert.Nil(t, td.Blocks.Modified[0].Deltas[0].Old)
	assert.Equal(t, []ScriptChange{{Root: "b1", Opcode: "motion_movesteps", Status: Modified, Added: 1, Modified: 1}}, td.Scripts)

	// Input edits render the literal value.
	p.Targets[1].Blocks["b2"].(map[string]any)["inputs"] = map[string]any{"DEGREES": sb3test.NumberInput("90")}
	c := build(t, p)
	r, err = Diff(b, c)
	require.NoError(t, err)
	assert.Contains(t, Render(r), "b2 input DEGREES: 15 → 90")
}

func TestDiffAssetAdded(t *testing.T) {
	p := project("10")
	a := build(t, p)
	x := sb3test.Asset{Label: "X", Ext: "png", Data: []byte("\x89PNG x")}
	p.Targets[1].Costumes = append(p.Targets[1].Costumes, x)
	b := build(t, p)

	r, err := Diff(a, b)
	require.NoError(t, err)
	assert.Empty(t, r.Targets.Modified)
	assert.Empty(t, r.Assets.Removed)
	assert.Empty(t, r.Text)
	require.Len(t, r.Assets.Added, 1)
	got := r.Assets.Added[0]
	assert.Equal(t, []string{x.File()}, got.Files)
	assert.Equal(t, []string{"Sprite1/X"}, got.Uses)
	assert.Equal(t, "image/png", got.Type)
}

func TestDiffCostumeReorder(t *testing.T) {
	p := project("10")
	c2 := sb3test.Asset{Label: "costume2", Ext: "svg", Data: []byte("<svg>2</svg>")}
	p.Targets[1].Costumes = append(p.Targets[1].Costumes, c2)
	a := build(t, p)

	costumes := p.Targets[1].Costumes
	p.Targets[1].Costumes = []sb3test.Asset{costumes[1], costumes[0]}
	b := build(t, p)

	r, err := Diff(a, b)
	require.NoError(t, err)
	assert.Empty(t, r.Assets.Added)
	require.Len(t, r.Targets.Modified, 1)
	require.Len(t, r.Targets.Modified[0].Costumes, 1)
	assert.Equal(t, Reorder, r.Targets.Modified[0].Costumes[0].Change)
}

func TestDiffUnrecognizedExtension(t *testing.T) {
	mk := func(v string) sb3test.Project {
		p := project("10")
		p.Extensions = []string{"myext"}
		p.Targets[1].Blocks["e1"] = sb3test.Block("myext_doThing", map[string]any{"MODE": sb3test.Field(v)})
		return p
	}
	a, b := build(t, mk("on")), build(t, mk("off"))

	r, err := Diff(a, b)
	require.NoError(t, err)
	assert.Empty(t, r.Targets.Modified)
	require.Len(t, r.Text, 1)
	assert.Equal(t, "targets/Sprite1/blocks.unrecognized", r.Text[0].Path)
	assert.Contains(t, r.Text[0].Patch, `"on"`)
	assert.Contains(t, r.Text[0].Patch, `"off"`)
}

func TestDiffExtensionsAndMonitors(t *testing.T) {
	p := project("10")
	a := build(t, p)
	p.Extensions = []string{"pen"}
	p.Monitors = []map[string]any{{"id": "v1", "opcode": "data_variable", "params": map[string]any{"VARIABLE": "score"}, "visible": true}}
	b := build(t, p)

	r, err := Diff(a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"pen"}, r.Extensions.Added)
	require.Len(t, r.Monitors, 1)
	assert.Equal(t, ValueChange{ID: "v1", Name: "score", Change: Added}, r.Monitors[0])
}

func TestDiffUnsupportedFallsBackToText(t *testing.T) {
	a := build(t, project("10"))
	p := project("20")
	p.Semver = "4.0.0"
	b := build(t, p)

	r, err := Diff(a, b)
	require.NoError(t, err)
	assert.Empty(t, r.Targets.Modified)
	require.Len(t, r.Text, 1)
	assert.Equal(t, "project.json", r.Text[0].Path)
	assert.Contains(t, r.Text[0].Patch, "--- a/project.json")
	assert.Empty(t, r.Assets.Added)
}

func TestDiffDeterministic(t *testing.T) {
	p1 := project("10")
	p2 := project("20")
	p2.Targets = append(p2.Targets, sb3test.Sprite("Sprite2", nil), sb3test.Sprite("Sprite3", nil))
	p2.Targets[1].Props["x"] = 40
	a, b := build(t, p1), build(t, p2)

	first, err := Diff(a, b)
	require.NoError(t, err)
	want, err := first.JSON()
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		r, err := Diff(a, b)
		require.NoError(t, err)
		got, err := r.JSON()
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got))
	}
	assert.Equal(t, []string{"Sprite2", "Sprite3"}, first.Targets.Added)
	assert.Equal(t, 2, first.Counts()["targets"])
}

func TestDiffAfterRoundTrip(t *testing.T) {
	a := build(t, project("10"))
	bundle, err := archive.Export(a)
	require.NoError(t, err)
	b, err := archive.Ingest(bundle, archive.Options{})
	require.NoError(t, err)

	r, err := Diff(a, b)
	require.NoError(t, err)
	assert.True(t, r.Empty())
}

func TestDiffCloudFlag(t *testing.T) {
	p := project("10")
	a := build(t, p)
	p.Targets[1].Variables = map[string][]any{"v1": {"score", 0, true}}
	b := build(t, p)

	r, err := Diff(a, b)
	require.NoError(t, err)
	require.Len(t, r.Targets.Modified, 1)
	td := r.Targets.Modified[0]
	require.Len(t, td.Variables, 1)
	assert.Equal(t, ValueChange{ID: "v1", Name: "score", Change: Cloud, Old: false, New: true}, td.Variables[0])
}

func TestDiffReportsDanglingAssetRef(t *testing.T) {
	a := build(t, project("10"))
	b := build(t, project("10"))
	ix, err := b.Index()
	require.NoError(t, err)
	require.NotEmpty(t, ix.Assets)
	ix.Assets = ix.Assets[1:]
	require.NoError(t, b.SetIndex(ix))

	_, err = Diff(a, b)
	assert.ErrorIs(t, err, errs.ErrMissingAsset)
	_, err = Diff(b, a)
	assert.ErrorIs(t, err, errs.ErrMissingAsset)
}
