// Package tree defines the schema-less document value used by configuration
// channels: a tagged union of null, bool, number, string, array and object.
//
// A nil *Node stands for "absent" (no value at all), which is distinct from a
// present JSON null.
package tree

import (
	"fmt"
	"maps"
	"slices"
)

// Kind identifies the runtime shape of a Node.
type Kind uint8

// Node kinds.
const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Node is one value in a document tree.
type Node struct {
	kind Kind
	b    bool
	num  float64
	str  string
	arr  []*Node
	obj  map[string]*Node
}

// Null returns a present JSON null.
func Null() *Node { return &Node{kind: KindNull} }

// Bool returns a boolean node.
func Bool(v bool) *Node { return &Node{kind: KindBool, b: v} }

// Number returns a numeric node.
func Number(v float64) *Node { return &Node{kind: KindNumber, num: v} }

// String returns a string node.
func String(v string) *Node { return &Node{kind: KindString, str: v} }

// Array returns an array node holding items. Nil items are stored as null.
func Array(items ...*Node) *Node {
	arr := make([]*Node, len(items))
	for i, it := range items {
		arr[i] = orNull(it)
	}
	return &Node{kind: KindArray, arr: arr}
}

// Object returns an object node holding fields. Nil values are stored as null.
func Object(fields map[string]*Node) *Node {
	obj := make(map[string]*Node, len(fields))
	for k, v := range fields {
		obj[k] = orNull(v)
	}
	return &Node{kind: KindObject, obj: obj}
}

func orNull(n *Node) *Node {
	if n == nil {
		return Null()
	}
	return n
}

// Kind reports the node shape. Calling Kind on an absent node reports KindNull.
func (n *Node) Kind() Kind {
	if n == nil {
		return KindNull
	}
	return n.kind
}

// IsNull reports whether n is a present JSON null.
func (n *Node) IsNull() bool { return n != nil && n.kind == KindNull }

// AsBool returns the boolean payload.
func (n *Node) AsBool() bool { return n != nil && n.b }

// AsNumber returns the numeric payload.
func (n *Node) AsNumber() float64 {
	if n == nil {
		return 0
	}
	return n.num
}

// AsString returns the string payload.
func (n *Node) AsString() string {
	if n == nil {
		return ""
	}
	return n.str
}

// Len returns the number of array items or object fields.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	switch n.kind {
	case KindArray:
		return len(n.arr)
	case KindObject:
		return len(n.obj)
	}
	return 0
}

// At returns the i-th array item, or nil when out of range.
func (n *Node) At(i int) *Node {
	if n == nil || n.kind != KindArray || i < 0 || i >= len(n.arr) {
		return nil
	}
	return n.arr[i]
}

// Get returns the field named key, or nil when the field is absent.
func (n *Node) Get(key string) *Node {
	if n == nil || n.kind != KindObject {
		return nil
	}
	return n.obj[key]
}

// Has reports whether the object has a field named key.
func (n *Node) Has(key string) bool {
	if n == nil || n.kind != KindObject {
		return false
	}
	_, ok := n.obj[key]
	return ok
}

// Keys returns object field names in sorted order.
func (n *Node) Keys() []string {
	if n == nil || n.kind != KindObject {
		return nil
	}
	return slices.Sorted(maps.Keys(n.obj))
}

// Set stores v under key. n must be an object.
func (n *Node) Set(key string, v *Node) {
	if n.kind != KindObject {
		panic("tree: Set on " + n.kind.String())
	}
	if n.obj == nil {
		n.obj = make(map[string]*Node)
	}
	n.obj[key] = orNull(v)
}

// Delete removes the field named key. n must be an object.
func (n *Node) Delete(key string) {
	if n.kind != KindObject {
		panic("tree: Delete on " + n.kind.String())
	}
	delete(n.obj, key)
}

// SetAt replaces the i-th array item.
func (n *Node) SetAt(i int, v *Node) {
	if n.kind != KindArray {
		panic("tree: SetAt on " + n.kind.String())
	}
	n.arr[i] = orNull(v)
}

// InsertAt inserts v before index i; i == Len() appends.
func (n *Node) InsertAt(i int, v *Node) {
	if n.kind != KindArray {
		panic("tree: InsertAt on " + n.kind.String())
	}
	n.arr = slices.Insert(n.arr, i, orNull(v))
}

// RemoveAt deletes the i-th array item.
func (n *Node) RemoveAt(i int) {
	if n.kind != KindArray {
		panic("tree: RemoveAt on " + n.kind.String())
	}
	n.arr = slices.Delete(n.arr, i, i+1)
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{kind: n.kind, b: n.b, num: n.num, str: n.str}
	switch n.kind {
	case KindArray:
		c.arr = make([]*Node, len(n.arr))
		for i, it := range n.arr {
			c.arr[i] = it.Clone()
		}
	case KindObject:
		c.obj = make(map[string]*Node, len(n.obj))
		for k, v := range n.obj {
			c.obj[k] = v.Clone()
		}
	}
	return c
}

// Equal reports deep value equality. Two absent nodes are equal; an absent
// node never equals a present one, including a present null.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.num == b.num
	case KindString:
		return a.str == b.str
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for k, av := range a.obj {
			bv, ok := b.obj[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}
