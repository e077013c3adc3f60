// Package diagnostics inspects a config file without modifying it: it flags
// duplicate keys and undecryptable secrets, and decrypts every protected value
// for display.
//
// The raw JSON is walked with gjson rather than decoded into maps, so
// duplicate object members stay visible.
package diagnostics

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"github.com/tidwall/gjson"

	"audiblezenbot/internal/configstore"
	"audiblezenbot/internal/protect"
)

// EncryptedValue is one ENC: value found under a platform.
type EncryptedValue struct {
	// Path is relative to the platform object, e.g. "oauth_token".
	Path string
	// Err is nil when the value decrypts.
	Err error
}

// PlatformReport holds the findings for one platforms.<id> object.
type PlatformReport struct {
	ID string

	// KeyCounts counts raw occurrences of each member key.
	KeyCounts map[string]int

	Encrypted []EncryptedValue

	// NotObject is set when the entry is not a JSON object.
	NotObject bool
}

// Duplicates returns the keys that occur more than once, sorted.
func (p PlatformReport) Duplicates() []string {
	var dups []string
	for k, n := range p.KeyCounts {
		if n > 1 {
			dups = append(dups, k)
		}
	}
	sort.Strings(dups)
	return dups
}

// Report is the result of Scan.
type Report struct {
	// PlatformsFound is false when the root has no platforms object.
	PlatformsFound bool

	Platforms []PlatformReport

	// RoundTripErr is nil when platforms survives decode and re-encode.
	RoundTripErr error
}

// Healthy reports whether the scan found nothing to complain about.
func (r *Report) Healthy() bool {
	if r.RoundTripErr != nil {
		return false
	}
	for _, p := range r.Platforms {
		if p.NotObject || len(p.Duplicates()) > 0 {
			return false
		}
		for _, e := range p.Encrypted {
			if e.Err != nil {
				return false
			}
		}
	}
	return true
}

// Scan checks data, the contents of a config file. It fails with
// configstore.ErrConfigUnparsable only when the root is not a JSON object;
// everything else is reported.
func Scan(data []byte, p protect.Protector) (*Report, error) {
	root, err := parseRoot(data)
	if err != nil {
		return nil, err
	}

	report := &Report{}

	platforms := root.Get(configstore.PlatformsKey)
	if platforms.IsObject() {
		report.PlatformsFound = true
		platforms.ForEach(func(key, value gjson.Result) bool {
			report.Platforms = append(report.Platforms, scanPlatform(key.String(), value, p))
			return true
		})
	}

	report.RoundTripErr = checkRoundTrip(data)
	return report, nil
}

func parseRoot(data []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("%w: invalid JSON", configstore.ErrConfigUnparsable)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return gjson.Result{}, fmt.Errorf("%w: root is not an object", configstore.ErrConfigUnparsable)
	}
	return root, nil
}

func scanPlatform(id string, value gjson.Result, p protect.Protector) PlatformReport {
	pr := PlatformReport{ID: id, KeyCounts: make(map[string]int)}
	if !value.IsObject() {
		pr.NotObject = true
		return pr
	}

	value.ForEach(func(key, member gjson.Result) bool {
		pr.KeyCounts[key.String()]++
		return true
	})

	walkStrings(value, "", func(path, s string) {
		if !protect.IsProtected(s) {
			return
		}
		_, err := protect.UnprotectString(p, s)
		pr.Encrypted = append(pr.Encrypted, EncryptedValue{Path: path, Err: err})
	})
	return pr
}

// checkRoundTrip decodes the document generically, re-encodes it and checks
// that platforms is unchanged.
func checkRoundTrip(data []byte) error {
	doc, err := configstore.Parse(data)
	if err != nil {
		return err
	}
	before, _ := doc.Get(configstore.PlatformsKey)

	out, err := doc.Marshal()
	if err != nil {
		return fmt.Errorf("re-encoding: %w", err)
	}
	again, err := configstore.Parse(out)
	if err != nil {
		return fmt.Errorf("re-decoding: %w", err)
	}
	after, _ := again.Get(configstore.PlatformsKey)

	if !reflect.DeepEqual(before, after) {
		return fmt.Errorf("%s changed across a round trip", configstore.PlatformsKey)
	}
	if raw := gjson.GetBytes(data, configstore.PlatformsKey); raw.Exists() && !raw.IsObject() {
		return fmt.Errorf("%s is %s, not an object", configstore.PlatformsKey, raw.Type)
	}
	return nil
}

// walkStrings calls fn for every string leaf below v with its dot path.
// Array elements use their index as path segment.
func walkStrings(v gjson.Result, prefix string, fn func(path, s string)) {
	switch {
	case v.IsObject():
		v.ForEach(func(key, child gjson.Result) bool {
			walkStrings(child, join(prefix, key.String()), fn)
			return true
		})
	case v.IsArray():
		i := 0
		v.ForEach(func(_, child gjson.Result) bool {
			walkStrings(child, join(prefix, strconv.Itoa(i)), fn)
			i++
			return true
		})
	case v.Type == gjson.String:
		fn(prefix, v.String())
	}
}

func join(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return prefix + "." + segment
}
