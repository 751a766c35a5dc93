package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DiffEntry records one leaf that differs between two environment documents.
// ValueA/ValueB carry the real serialized values; masking happens only when
// rendering for an operator, never in the structured result.
type DiffEntry struct {
	Path   string `json:"path"`
	ValueA string `json:"value_a"`
	ValueB string `json:"value_b"`
}

var sensitivePathPattern = regexp.MustCompile(`(?i)secret|password|key|token`)

// Sensitive reports whether any segment of the entry's path names a secret.
func (d DiffEntry) Sensitive() bool {
	for _, seg := range strings.Split(d.Path, ".") {
		if sensitivePathPattern.MatchString(seg) {
			return true
		}
	}
	return false
}

// Masked returns the entry with both values replaced by a mask when the path
// is sensitive. Used for human-readable output only.
func (d DiffEntry) Masked() DiffEntry {
	if !d.Sensitive() {
		return d
	}
	masked := d
	masked.ValueA = mask(d.ValueA)
	masked.ValueB = mask(d.ValueB)
	return masked
}

func mask(v string) string {
	if v == "" || v == "<absent>" {
		return v
	}
	return "********"
}

// MaskSecrets returns a copy of doc with every leaf under a sensitive key
// replaced by a mask. Human-readable rendering only; structured output keeps
// real values.
func MaskSecrets(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		if child, ok := v.(map[string]interface{}); ok {
			out[k] = MaskSecrets(child)
			continue
		}
		if sensitivePathPattern.MatchString(k) {
			out[k] = mask(serialize(v))
			continue
		}
		out[k] = v
	}
	return out
}

// DiffEnvironments produces a recursive structural diff of two environment
// documents. A leaf is reported when its serialized form differs; entries are
// sorted by path so output is stable.
func DiffEnvironments(rawA, rawB []byte) ([]DiffEntry, error) {
	var docA, docB map[string]interface{}
	if err := yaml.Unmarshal(rawA, &docA); err != nil {
		return nil, fmt.Errorf("failed to parse first document: %w", err)
	}
	if err := yaml.Unmarshal(rawB, &docB); err != nil {
		return nil, fmt.Errorf("failed to parse second document: %w", err)
	}

	var entries []DiffEntry
	diffValue("", docA, docB, &entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// absentMarker distinguishes "leaf missing on one side" from an empty value.
const absentMarker = "<absent>"

func diffValue(path string, a, b interface{}, entries *[]DiffEntry) {
	mapA, okA := a.(map[string]interface{})
	mapB, okB := b.(map[string]interface{})
	if okA && okB {
		keys := make(map[string]struct{})
		for k := range mapA {
			keys[k] = struct{}{}
		}
		for k := range mapB {
			keys[k] = struct{}{}
		}
		for k := range keys {
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			va, inA := mapA[k]
			vb, inB := mapB[k]
			switch {
			case inA && inB:
				diffValue(childPath, va, vb, entries)
			case inA:
				*entries = append(*entries, DiffEntry{Path: childPath, ValueA: serialize(va), ValueB: absentMarker})
			default:
				*entries = append(*entries, DiffEntry{Path: childPath, ValueA: absentMarker, ValueB: serialize(vb)})
			}
		}
		return
	}

	sa, sb := serialize(a), serialize(b)
	if sa != sb {
		*entries = append(*entries, DiffEntry{Path: path, ValueA: sa, ValueB: sb})
	}
}

func serialize(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case []interface{}:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = serialize(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", t)
	}
}
