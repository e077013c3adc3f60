// Package configstore keeps the bot's JSON config document: loading it,
// merging platform fields into it, and writing it back atomically.
package configstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// PlatformsKey is the top-level key holding per-platform entries.
const PlatformsKey = "platforms"

// ErrConfigUnparsable is returned when a config file exists but its root is
// not a JSON object.
var ErrConfigUnparsable = errors.New("config file is not a valid JSON object")

// Document is an in-memory JSON object tree. Numbers are kept as
// json.Number so values this program does not understand survive a
// load/save cycle unchanged.
type Document struct {
	root map[string]any
}

// NewDocument returns an empty document with an initialized platforms object.
func NewDocument() *Document {
	d := &Document{root: map[string]any{}}
	d.platforms()
	return d
}

// Parse decodes data into a Document. The root must be a JSON object.
func Parse(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigUnparsable, err)
	}
	if root == nil {
		return nil, fmt.Errorf("%w: root is null", ErrConfigUnparsable)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after root object", ErrConfigUnparsable)
	}

	d := &Document{root: root}
	d.platforms()
	return d, nil
}

// platforms returns the platforms object, creating or repairing it.
func (d *Document) platforms() map[string]any {
	p, ok := d.root[PlatformsKey].(map[string]any)
	if !ok {
		p = map[string]any{}
		d.root[PlatformsKey] = p
	}
	return p
}

// Merge inserts or overwrites fields inside platforms[platformID], creating
// the entry if missing. Other platforms and top-level keys are untouched.
func (d *Document) Merge(platformID string, fields map[string]any) *Document {
	platforms := d.platforms()

	entry, ok := platforms[platformID].(map[string]any)
	if !ok {
		entry = map[string]any{}
		platforms[platformID] = entry
	}

	for k, v := range fields {
		entry[k] = v
	}
	return d
}

// Platform returns a copy of the entry for platformID.
func (d *Document) Platform(platformID string) (map[string]any, bool) {
	entry, ok := d.platforms()[platformID].(map[string]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(entry))
	for k, v := range entry {
		out[k] = v
	}
	return out, true
}

// PlatformString returns a string field of a platform entry.
func (d *Document) PlatformString(platformID, field string) (string, bool) {
	entry, ok := d.platforms()[platformID].(map[string]any)
	if !ok {
		return "", false
	}
	s, ok := entry[field].(string)
	return s, ok
}

// PlatformInt returns an integer field of a platform entry.
func (d *Document) PlatformInt(platformID, field string) (int64, bool) {
	entry, ok := d.platforms()[platformID].(map[string]any)
	if !ok {
		return 0, false
	}
	switch v := entry[field].(type) {
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// PlatformIDs returns the keys of the platforms object, sorted.
func (d *Document) PlatformIDs() []string {
	platforms := d.platforms()
	ids := make([]string, 0, len(platforms))
	for id := range platforms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get returns a top-level value.
func (d *Document) Get(key string) (any, bool) {
	v, ok := d.root[key]
	return v, ok
}

// Marshal encodes the document with two-space indentation and a trailing
// newline. encoding/json sorts map keys, so output is stable.
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d.root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
