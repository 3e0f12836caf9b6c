// Package merge combines a global configuration document with a per-device
// override.
package merge

import (
	"github.com/saunafleet/fleet-server/internal/model"
)

// Merge returns a new document holding base with override applied on top.
// For every key in override: when both sides hold objects they are merged
// recursively, any other override value replaces the base value wholesale.
// Keys only in base are kept. Neither input is modified.
//
// The preset-selection fields at the root are not merged: autoPlay and
// presets come from override only when it sets them, otherwise from base.
// The version field is left to the caller.
func Merge(base, override model.Document) model.Document {
	out := mergeMaps(base, override)

	if _, ok := override.AutoPlay(); !ok {
		copyRootKey(out, base, model.KeyAutoPlay)
	}

	if len(override.Presets()) == 0 {
		copyRootKey(out, base, model.KeyPresets)
	} else {
		out[model.KeyPresets] = model.CloneValue(override[model.KeyPresets])
	}

	return model.Document(out)
}

func mergeMaps(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = model.CloneValue(v)
	}

	for k, ov := range override {
		bm, baseIsMap := asMap(out[k])
		om, overrideIsMap := asMap(ov)
		if baseIsMap && overrideIsMap {
			out[k] = mergeMaps(bm, om)
			continue
		}
		out[k] = model.CloneValue(ov)
	}

	return out
}

func copyRootKey(dst model.Document, base model.Document, key string) {
	if v, ok := base[key]; ok {
		dst[key] = model.CloneValue(v)
		return
	}
	delete(dst, key)
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case model.Document:
		return m, true
	}
	return nil, false
}
