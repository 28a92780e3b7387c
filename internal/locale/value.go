// Package locale resolves localized field values.
//
// A localized field is either absent (no opinion, inherit a fallback), an
// explicit clear (null), a plain string, or a mapping from locale code to
// string. A mapping whose entries are all blank counts as an explicit clear,
// never as absent: clearing a field must suppress lower-priority fallbacks.
//
// Nothing here reads an ambient "current locale"; callers pass it in.
package locale

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/and161185/sitecfg/internal/errs"
	"github.com/and161185/sitecfg/internal/tree"
)

// State is the shape of a Value.
type State uint8

// Value states.
const (
	StateAbsent State = iota
	StateNull
	StateText
	StateMap
)

// Value is a field that may hold a single string or per-locale strings.
type Value struct {
	state State
	text  string
	byLoc map[string]string
}

// Absent returns a value with no opinion.
func Absent() Value { return Value{} }

// Null returns an explicit clear.
func Null() Value { return Value{state: StateNull} }

// Text returns a plain, locale-independent string.
func Text(s string) Value { return Value{state: StateText, text: s} }

// Map returns a per-locale value. The map is copied.
func Map(m map[string]string) Value {
	return Value{state: StateMap, byLoc: maps.Clone(m)}
}

// State reports the value shape.
func (v Value) State() State { return v.state }

// IsAbsent reports whether v carries no opinion.
func (v Value) IsAbsent() bool { return v.state == StateAbsent }

// Locales returns the locales defined by a Map value, sorted.
func (v Value) Locales() []string {
	if v.state != StateMap {
		return nil
	}
	return slices.Sorted(maps.Keys(v.byLoc))
}

// Lookup returns the entry for loc and whether the Map defines it.
func (v Value) Lookup(loc string) (string, bool) {
	s, ok := v.byLoc[loc]
	return s, ok
}

// TextValue returns the payload of a Text value.
func (v Value) TextValue() string { return v.text }

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// IsEmpty reports whether v has no displayable content: absent, null, a blank
// string, or a map whose every entry is blank.
func IsEmpty(v Value) bool {
	switch v.state {
	case StateText:
		return blank(v.text)
	case StateMap:
		for _, s := range v.byLoc {
			if !blank(s) {
				return false
			}
		}
		return true
	}
	return true
}

// Resolve returns the first candidate that is not absent. A winning null or
// all-blank map resolves to Null, which reads as "". When every candidate is
// absent the result is Absent.
func Resolve(candidates ...Value) Value {
	for _, c := range candidates {
		switch c.state {
		case StateAbsent:
			continue
		case StateNull:
			return Null()
		case StateMap:
			if IsEmpty(c) {
				return Null()
			}
		}
		return c
	}
	return Absent()
}

// Read returns the string for loc, falling back to defaultLocale, then to the
// first non-blank entry in locale order, then to "".
func Read(v Value, loc, defaultLocale string) string {
	switch v.state {
	case StateText:
		if blank(v.text) {
			return ""
		}
		return v.text
	case StateMap:
		if s, ok := v.byLoc[loc]; ok && !blank(s) {
			return s
		}
		if s, ok := v.byLoc[defaultLocale]; ok && !blank(s) {
			return s
		}
		for _, l := range v.Locales() {
			if s := v.byLoc[l]; !blank(s) {
				return s
			}
		}
	}
	return ""
}

// ResolveString resolves candidates and reads the winner for loc.
func ResolveString(loc, defaultLocale string, candidates ...Value) string {
	return Read(Resolve(candidates...), loc, defaultLocale)
}

// Normalize turns a legacy plain string into a map holding it under
// defaultLocale. Other states are returned unchanged.
func Normalize(v Value, defaultLocale string) Value {
	if v.state != StateText {
		return v
	}
	return Map(map[string]string{defaultLocale: v.text})
}

// FoldLegacy merges legacy per-locale sibling fields into the canonical value.
// An override is used only for a locale the canonical map does not define;
// absent and null overrides are skipped. An explicit clear stays cleared.
func FoldLegacy(v Value, defaultLocale string, overrides map[string]Value) Value {
	if v.state == StateNull {
		return v
	}
	v = Normalize(v, defaultLocale)
	var out map[string]string
	if v.state == StateMap {
		out = maps.Clone(v.byLoc)
	}
	for _, loc := range slices.Sorted(maps.Keys(overrides)) {
		o := overrides[loc]
		if o.state != StateText {
			continue
		}
		if _, defined := out[loc]; defined {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[loc] = o.text
	}
	if out == nil {
		return v
	}
	return Value{state: StateMap, byLoc: out}
}

// FromNode reads a field value out of a document node.
func FromNode(n *tree.Node) (Value, error) {
	if n == nil {
		return Absent(), nil
	}
	switch n.Kind() {
	case tree.KindNull:
		return Null(), nil
	case tree.KindString:
		return Text(n.AsString()), nil
	case tree.KindObject:
		m := make(map[string]string, n.Len())
		for _, k := range n.Keys() {
			c := n.Get(k)
			switch c.Kind() {
			case tree.KindString:
				m[k] = c.AsString()
			case tree.KindNull:
				m[k] = ""
			default:
				return Value{}, fmt.Errorf("%w: locale %q holds %s", errs.ErrMalformedDocument, k, c.Kind())
			}
		}
		return Value{state: StateMap, byLoc: m}, nil
	}
	return Value{}, fmt.Errorf("%w: localized field holds %s", errs.ErrMalformedDocument, n.Kind())
}

// Node converts v into a document node; Absent yields nil.
func (v Value) Node() *tree.Node {
	switch v.state {
	case StateNull:
		return tree.Null()
	case StateText:
		return tree.String(v.text)
	case StateMap:
		fields := make(map[string]*tree.Node, len(v.byLoc))
		for k, s := range v.byLoc {
			fields[k] = tree.String(s)
		}
		return tree.Object(fields)
	}
	return nil
}

// LegacyFields collects legacy sibling fields of obj, such as "titleEn",
// named field+suffix and mapped by suffixes to a locale.
func LegacyFields(obj *tree.Node, field string, suffixes map[string]string) (map[string]Value, error) {
	out := make(map[string]Value)
	for suffix, loc := range suffixes {
		v, err := FromNode(obj.Get(field + suffix))
		if err != nil {
			return nil, fmt.Errorf("field %s%s: %w", field, suffix, err)
		}
		if !v.IsAbsent() {
			out[loc] = v
		}
	}
	return out, nil
}

// Field reads obj[field], folds its legacy siblings, and returns the result.
func Field(obj *tree.Node, field, defaultLocale string, suffixes map[string]string) (Value, error) {
	v, err := FromNode(obj.Get(field))
	if err != nil {
		return Value{}, fmt.Errorf("field %s: %w", field, err)
	}
	legacy, err := LegacyFields(obj, field, suffixes)
	if err != nil {
		return Value{}, err
	}
	if len(legacy) == 0 {
		return v, nil
	}
	return FoldLegacy(v, defaultLocale, legacy), nil
}
