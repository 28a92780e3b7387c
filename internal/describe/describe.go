// Package describe turns document paths into labels for people reviewing history.
package describe

import (
	"strconv"
	"strings"

	"github.com/and161185/sitecfg/internal/diff"
	"github.com/and161185/sitecfg/internal/pointer"
)

// DefaultSeparator joins labels when no key-specific separator is set.
const DefaultSeparator = " › "

// Describer maps path segments through a label dictionary.
type Describer struct {
	// Labels applies to every key.
	Labels map[string]string `yaml:"labels"`
	// KeyLabels overrides Labels per document key. The entry for the empty
	// segment labels the key itself.
	KeyLabels map[string]map[string]string `yaml:"key_labels"`
	// Separators overrides DefaultSeparator per document key.
	Separators map[string]string `yaml:"separators"`
}

// Describe renders path inside the document stored under key. Numeric
// segments become "item N" (1-based); unknown segments pass through.
func (d *Describer) Describe(key, path string) string {
	segs, err := pointer.Split(path)
	if err != nil {
		return path
	}
	if len(segs) == 0 {
		if l, ok := d.KeyLabels[key][""]; ok {
			return l
		}
		return key
	}
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = d.label(key, s)
	}
	return strings.Join(parts, d.separator(key))
}

// DescribeOps returns one label per op, in op order.
func (d *Describer) DescribeOps(key string, ops []diff.ChangeOp) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = d.Describe(key, op.Path)
	}
	return out
}

func (d *Describer) label(key, seg string) string {
	if l, ok := d.KeyLabels[key][seg]; ok {
		return l
	}
	if l, ok := d.Labels[seg]; ok {
		return l
	}
	if n, ok := pointer.ArrayIndex(seg); ok {
		return "item " + strconv.Itoa(n+1)
	}
	return seg
}

func (d *Describer) separator(key string) string {
	if s, ok := d.Separators[key]; ok {
		return s
	}
	return DefaultSeparator
}
