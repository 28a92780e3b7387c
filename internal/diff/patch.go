package diff

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/and161185/sitecfg/internal/pointer"
	"github.com/and161185/sitecfg/internal/tree"
)

// Invert returns the change set that undoes ops.
func Invert(ops []ChangeOp) []ChangeOp {
	out := make([]ChangeOp, 0, len(ops))
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		switch op.Op {
		case OpAdd:
			out = append(out, ChangeOp{Op: OpRemove, Path: op.Path, Before: op.After})
		case OpRemove:
			out = append(out, ChangeOp{Op: OpAdd, Path: op.Path, After: op.Before})
		default:
			out = append(out, ChangeOp{Op: OpReplace, Path: op.Path, Before: op.After, After: op.Before})
		}
	}
	return out
}

// Apply applies a positional change set, as produced by Diff or Invert, to a
// copy of doc. Replacements run first, then removals from the highest array
// index down, then additions from the lowest index up, so the result does not
// depend on the order of ops.
func Apply(doc *tree.Node, ops []ChangeOp) (*tree.Node, error) {
	type step struct {
		op   ChangeOp
		segs []string
	}
	var repl, rem, add []step
	for _, op := range ops {
		segs, err := pointer.Split(op.Path)
		if err != nil {
			return nil, fmt.Errorf("diff: apply: %w", err)
		}
		s := step{op: op, segs: segs}
		switch op.Op {
		case OpReplace:
			repl = append(repl, s)
		case OpRemove:
			rem = append(rem, s)
		case OpAdd:
			add = append(add, s)
		default:
			return nil, fmt.Errorf("diff: apply: unknown op %q", op.Op)
		}
	}
	slices.SortStableFunc(rem, func(a, b step) int { return -compareSegments(a.segs, b.segs) })
	slices.SortStableFunc(add, func(a, b step) int { return compareSegments(a.segs, b.segs) })

	out := doc.Clone()
	for _, group := range [][]step{repl, rem, add} {
		for _, s := range group {
			var err error
			if out, err = applyOne(out, s.op, s.segs); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func applyOne(doc *tree.Node, op ChangeOp, segs []string) (*tree.Node, error) {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("diff: apply %s %q: %s", op.Op, op.Path, fmt.Sprintf(format, args...))
	}
	if len(segs) == 0 {
		switch op.Op {
		case OpRemove:
			if doc == nil {
				return nil, fail("document is absent")
			}
			return nil, nil
		case OpReplace:
			if doc == nil {
				return nil, fail("document is absent")
			}
		}
		return op.After.Clone(), nil
	}

	parent := doc
	for _, seg := range segs[:len(segs)-1] {
		next, err := child(parent, seg)
		if err != nil {
			return nil, fail("%v", err)
		}
		parent = next
	}
	last := segs[len(segs)-1]

	switch parent.Kind() {
	case tree.KindObject:
		exists := parent.Has(last)
		switch op.Op {
		case OpAdd:
			parent.Set(last, op.After.Clone())
		case OpRemove:
			if !exists {
				return nil, fail("no field %q", last)
			}
			parent.Delete(last)
		case OpReplace:
			if !exists {
				return nil, fail("no field %q", last)
			}
			parent.Set(last, op.After.Clone())
		}
	case tree.KindArray:
		i, ok := pointer.ArrayIndex(last)
		if !ok {
			return nil, fail("bad array index %q", last)
		}
		switch op.Op {
		case OpAdd:
			if i > parent.Len() {
				return nil, fail("index %d beyond length %d", i, parent.Len())
			}
			parent.InsertAt(i, op.After.Clone())
		case OpRemove:
			if i >= parent.Len() {
				return nil, fail("index %d out of range", i)
			}
			parent.RemoveAt(i)
		case OpReplace:
			if i >= parent.Len() {
				return nil, fail("index %d out of range", i)
			}
			parent.SetAt(i, op.After.Clone())
		}
	default:
		return nil, fail("parent is %s", parent.Kind())
	}
	return doc, nil
}

func child(n *tree.Node, seg string) (*tree.Node, error) {
	switch n.Kind() {
	case tree.KindObject:
		if n.Has(seg) {
			return n.Get(seg), nil
		}
		return nil, fmt.Errorf("no field %q", seg)
	case tree.KindArray:
		i, ok := pointer.ArrayIndex(seg)
		if !ok || i >= n.Len() {
			return nil, fmt.Errorf("bad array index %q", seg)
		}
		return n.At(i), nil
	}
	return nil, fmt.Errorf("cannot descend into %s", n.Kind())
}

// compareSegments orders paths segment by segment, numerically where both
// segments are array indices. A path sorts before its extensions.
func compareSegments(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		ai, aok := pointer.ArrayIndex(a[i])
		bi, bok := pointer.ArrayIndex(b[i])
		var c int
		if aok && bok {
			c = cmp.Compare(ai, bi)
		} else {
			c = strings.Compare(a[i], b[i])
		}
		if c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}
