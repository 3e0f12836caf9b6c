package merge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saunafleet/fleet-server/internal/model"
)

func mustDecode(t *testing.T, s string) model.Document {
	t.Helper()
	doc, err := model.DecodeDocument([]byte(s))
	require.NoError(t, err)
	return doc
}

func TestMerge(t *testing.T) {
	t.Run("nested objects merge key by key", func(t *testing.T) {
		base := mustDecode(t, `{"theme":{"accent":"#fff","bg":"#eee"},"saunas":["A","B"]}`)
		override := mustDecode(t, `{"theme":{"accent":"#000"}}`)

		out := Merge(base, override)

		theme := out["theme"].(map[string]any)
		assert.Equal(t, "#000", theme["accent"])
		assert.Equal(t, "#eee", theme["bg"])
		assert.Equal(t, []any{"A", "B"}, out["saunas"])
	})

	t.Run("arrays are replaced, not unioned", func(t *testing.T) {
		base := mustDecode(t, `{"theme":{"accent":"#fff","bg":"#eee"},"saunas":["A","B"]}`)
		override := mustDecode(t, `{"theme":{"accent":"#000"},"saunas":["C"]}`)

		out := Merge(base, override)

		assert.Equal(t, []any{"C"}, out["saunas"])
	})

	t.Run("scalar replaces object and object replaces scalar", func(t *testing.T) {
		base := mustDecode(t, `{"a":{"x":1},"b":"plain"}`)
		override := mustDecode(t, `{"a":"flat","b":{"y":2}}`)

		out := Merge(base, override)

		assert.Equal(t, "flat", out["a"])
		assert.Equal(t, map[string]any{"y": json.Number("2")}, out["b"])
	})

	t.Run("null in override replaces base value", func(t *testing.T) {
		base := mustDecode(t, `{"footer":"hello"}`)
		override := mustDecode(t, `{"footer":null}`)

		out := Merge(base, override)

		v, ok := out["footer"]
		assert.True(t, ok)
		assert.Nil(t, v)
	})

	t.Run("inputs are not modified", func(t *testing.T) {
		base := mustDecode(t, `{"theme":{"accent":"#fff"}}`)
		override := mustDecode(t, `{"theme":{"accent":"#000"}}`)

		out := Merge(base, override)
		out["theme"].(map[string]any)["accent"] = "#123"

		assert.Equal(t, "#fff", base["theme"].(map[string]any)["accent"])
		assert.Equal(t, "#000", override["theme"].(map[string]any)["accent"])
	})

	t.Run("nil override yields a copy of base", func(t *testing.T) {
		base := mustDecode(t, `{"version":3,"theme":{"accent":"#fff"}}`)

		out := Merge(base, nil)

		assert.Equal(t, base, out)
	})
}

func TestMergePresetSelection(t *testing.T) {
	base := mustDecode(t, `{
		"autoPlay": true,
		"activePreset": "Mon",
		"presets": {"Mon": {"rows": [1]}, "Tue": {"rows": [2]}}
	}`)

	t.Run("absent preset fields come from base", func(t *testing.T) {
		out := Merge(base, mustDecode(t, `{"activePreset":"Tue"}`))

		assert.Equal(t, true, out["autoPlay"])
		assert.Equal(t, base["presets"], out["presets"])
		assert.Equal(t, "Tue", out["activePreset"])
	})

	t.Run("null autoPlay and empty presets fall back to base", func(t *testing.T) {
		out := Merge(base, mustDecode(t, `{"autoPlay":null,"presets":{}}`))

		assert.Equal(t, true, out["autoPlay"])
		assert.Equal(t, base["presets"], out["presets"])
	})

	t.Run("explicit autoPlay false wins", func(t *testing.T) {
		out := Merge(base, mustDecode(t, `{"autoPlay":false}`))

		assert.Equal(t, false, out["autoPlay"])
	})

	t.Run("non-empty presets replace the whole map", func(t *testing.T) {
		out := Merge(base, mustDecode(t, `{"presets":{"Mon":{"rows":[9]}}}`))

		presets := out["presets"].(map[string]any)
		assert.Len(t, presets, 1)
		assert.Contains(t, presets, "Mon")
		assert.NotContains(t, presets, "Tue")
	})

	t.Run("base without preset fields stays without them", func(t *testing.T) {
		out := Merge(mustDecode(t, `{"x":1}`), mustDecode(t, `{"presets":{}}`))

		assert.NotContains(t, out, "presets")
		assert.NotContains(t, out, "autoPlay")
	})
}
