package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// DocumentKind names one of the global documents.
type DocumentKind string

const (
	DocumentSettings DocumentKind = "settings"
	DocumentSchedule DocumentKind = "schedule"
)

// Root keys with known meaning. Everything else is opaque to the server.
const (
	KeyVersion      = "version"
	KeyAutoPlay     = "autoPlay"
	KeyPresets      = "presets"
	KeyActivePreset = "activePreset"
	KeyEvents       = "events"
)

// Document is an arbitrarily nested key/value tree with an integer version at its root.
// Values are map[string]any, []any, string, bool, json.Number or nil.
type Document map[string]any

// DecodeDocument parses a JSON object.
func DecodeDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("decode document: not a JSON object")
	}
	return doc, nil
}

// UnmarshalJSON keeps numbers as json.Number so integers round-trip without
// float conversion.
func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return err
	}
	*d = Document(m)
	return nil
}

// Encode returns the JSON form of the document.
func (d Document) Encode() ([]byte, error) {
	return json.Marshal(map[string]any(d))
}

// Version returns the root version, or 0 when absent or not an integer.
func (d Document) Version() int64 {
	v, _ := asInt(d[KeyVersion])
	return v
}

// WithVersion returns a deep copy of d with version set to v.
func (d Document) WithVersion(v int64) Document {
	out := d.Clone()
	if out == nil {
		out = Document{}
	}
	out[KeyVersion] = json.Number(strconv.FormatInt(v, 10))
	return out
}

// AutoPlay returns the autoPlay flag and whether it is set to a boolean.
func (d Document) AutoPlay() (value bool, ok bool) {
	switch v := d[KeyAutoPlay].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		return b, err == nil
	case json.Number:
		n, err := v.Int64()
		return n != 0, err == nil
	}
	return false, false
}

// Presets returns the weekday→schedule map, or nil when absent or not an object.
func (d Document) Presets() map[string]any {
	m, _ := d[KeyPresets].(map[string]any)
	return m
}

// ActivePreset returns the manually selected preset key, if any.
func (d Document) ActivePreset() PresetKey {
	s, _ := d[KeyActivePreset].(string)
	return PresetKey(s)
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneMap(d))
}

// CloneValue deep-copies a document value.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case Document:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	default:
		return v
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}
