// Package diff computes structural differences between document trees.
//
// Arrays are compared by position: element i of the old array is compared
// with element i of the new one and no alignment is attempted, so inserting
// at the front reports a replace at every shifted index plus an add at the
// tail. Objects are compared over the union of their keys.
package diff

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/and161185/sitecfg/internal/pointer"
	"github.com/and161185/sitecfg/internal/tree"
)

// Op is the kind of a change.
type Op string

// Change kinds.
const (
	OpAdd     Op = "add"
	OpRemove  Op = "remove"
	OpReplace Op = "replace"
)

// ChangeOp is one path-addressed difference. Add carries only After, Remove
// only Before, Replace both.
type ChangeOp struct {
	Op     Op
	Path   string
	Before *tree.Node
	After  *tree.Node
}

type changeOpJSON struct {
	Op     Op              `json:"op"`
	Path   string          `json:"path"`
	Before json.RawMessage `json:"before,omitempty"`
	After  json.RawMessage `json:"after,omitempty"`
}

// MarshalJSON omits before/after when the op does not carry them.
func (c ChangeOp) MarshalJSON() ([]byte, error) {
	out := changeOpJSON{Op: c.Op, Path: c.Path}
	var err error
	if c.Op != OpAdd {
		if out.Before, err = json.Marshal(c.Before); err != nil {
			return nil, err
		}
	}
	if c.Op != OpRemove {
		if out.After, err = json.Marshal(c.After); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON keeps a carried JSON null distinct from an omitted side.
func (c *ChangeOp) UnmarshalJSON(data []byte) error {
	var in changeOpJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Op {
	case OpAdd, OpRemove, OpReplace:
	default:
		return fmt.Errorf("diff: unknown op %q", in.Op)
	}
	out := ChangeOp{Op: in.Op, Path: in.Path}
	var err error
	if out.Before, err = rawNode(in.Before); err != nil {
		return err
	}
	if out.After, err = rawNode(in.After); err != nil {
		return err
	}
	*c = out
	return nil
}

func rawNode(raw json.RawMessage) (*tree.Node, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	return tree.Parse(raw)
}

// Diff returns the changes that turn before into after. Either side may be
// nil (absent). The result is empty when both are equal.
func Diff(before, after *tree.Node) []ChangeOp {
	var ops []ChangeOp
	walk(pointer.Root, before, after, &ops)
	return ops
}

func walk(path string, before, after *tree.Node, ops *[]ChangeOp) {
	switch {
	case before == nil && after == nil:
		return
	case before == nil:
		*ops = append(*ops, ChangeOp{Op: OpAdd, Path: path, After: after})
		return
	case after == nil:
		*ops = append(*ops, ChangeOp{Op: OpRemove, Path: path, Before: before})
		return
	case before.Kind() != after.Kind():
		*ops = append(*ops, ChangeOp{Op: OpReplace, Path: path, Before: before, After: after})
		return
	}

	switch before.Kind() {
	case tree.KindArray:
		n := max(before.Len(), after.Len())
		for i := 0; i < n; i++ {
			walk(pointer.Index(path, i), before.At(i), after.At(i), ops)
		}
	case tree.KindObject:
		for _, k := range unionKeys(before, after) {
			walk(pointer.Join(path, k), before.Get(k), after.Get(k), ops)
		}
	default:
		if !tree.Equal(before, after) {
			*ops = append(*ops, ChangeOp{Op: OpReplace, Path: path, Before: before, After: after})
		}
	}
}

func unionKeys(a, b *tree.Node) []string {
	keys := a.Keys()
	for _, k := range b.Keys() {
		if !a.Has(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Stats counts ops per kind.
type Stats struct {
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Replaced int `json:"replaced"`
}

// Total returns the number of counted ops.
func (s Stats) Total() int { return s.Added + s.Removed + s.Replaced }

// Summarize counts ops per kind.
func Summarize(ops []ChangeOp) Stats {
	var s Stats
	for _, op := range ops {
		switch op.Op {
		case OpAdd:
			s.Added++
		case OpRemove:
			s.Removed++
		case OpReplace:
			s.Replaced++
		}
	}
	return s
}
