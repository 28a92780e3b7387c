package tree

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/and161185/sitecfg/internal/errs"
)

// MaxDepth bounds nesting accepted from untrusted input. Deeper values are
// rejected as malformed, which also stops self-referencing Go values.
const MaxDepth = 512

// Parse decodes a single JSON value.
func Parse(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedDocument, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after document", errs.ErrMalformedDocument)
	}
	return FromValue(v)
}

// MustParse is Parse for literals in tests and fixtures.
func MustParse(s string) *Node {
	n, err := Parse([]byte(s))
	if err != nil {
		panic(err)
	}
	return n
}

// FromValue converts decoded JSON or YAML data into a tree.
func FromValue(v any) (*Node, error) { return fromValue(v, 0) }

func fromValue(v any, depth int) (*Node, error) {
	if depth > MaxDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", errs.ErrMalformedDocument, MaxDepth)
	}
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case *Node:
		if x == nil {
			return Null(), nil
		}
		return x.Clone(), nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: number %q: %v", errs.ErrMalformedDocument, x, err)
		}
		return Number(f), nil
	case float64:
		return checkedNumber(x)
	case float32:
		return checkedNumber(float64(x))
	case int:
		return Number(float64(x)), nil
	case int8:
		return Number(float64(x)), nil
	case int16:
		return Number(float64(x)), nil
	case int32:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case uint:
		return Number(float64(x)), nil
	case uint8:
		return Number(float64(x)), nil
	case uint16:
		return Number(float64(x)), nil
	case uint32:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case time.Time:
		return String(x.UTC().Format(time.RFC3339Nano)), nil
	case []any:
		out := &Node{kind: KindArray, arr: make([]*Node, len(x))}
		for i, it := range x {
			c, err := fromValue(it, depth+1)
			if err != nil {
				return nil, err
			}
			out.arr[i] = c
		}
		return out, nil
	case map[string]any:
		out := &Node{kind: KindObject, obj: make(map[string]*Node, len(x))}
		for k, it := range x {
			c, err := fromValue(it, depth+1)
			if err != nil {
				return nil, err
			}
			out.obj[k] = c
		}
		return out, nil
	case map[any]any:
		out := &Node{kind: KindObject, obj: make(map[string]*Node, len(x))}
		for k, it := range x {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("%w: non-string object key %v", errs.ErrMalformedDocument, k)
			}
			c, err := fromValue(it, depth+1)
			if err != nil {
				return nil, err
			}
			out.obj[ks] = c
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported value of type %T", errs.ErrMalformedDocument, v)
	}
}

func checkedNumber(f float64) (*Node, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: non-finite number", errs.ErrMalformedDocument)
	}
	return Number(f), nil
}

// Value converts n back to plain Go values (map[string]any, []any, float64,
// string, bool, nil).
func (n *Node) Value() any {
	if n == nil {
		return nil
	}
	switch n.kind {
	case KindBool:
		return n.b
	case KindNumber:
		return n.num
	case KindString:
		return n.str
	case KindArray:
		out := make([]any, len(n.arr))
		for i, it := range n.arr {
			out[i] = it.Value()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(n.obj))
		for k, v := range n.obj {
			out[k] = v.Value()
		}
		return out
	}
	return nil
}

// MarshalJSON encodes n with object keys sorted. An absent node encodes as null.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON value into n.
func (n *Node) UnmarshalJSON(data []byte) error {
	p, err := Parse(data)
	if err != nil {
		return err
	}
	*n = *p
	return nil
}

func (n *Node) writeJSON(buf *bytes.Buffer) error {
	if n == nil {
		buf.WriteString("null")
		return nil
	}
	switch n.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(n.b))
	case KindNumber:
		b, err := json.Marshal(n.num)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindString:
		b, err := json.Marshal(n.str)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindArray:
		buf.WriteByte('[')
		for i, it := range n.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, k := range n.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := n.obj[k].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// String returns the canonical JSON encoding, for logs and debugging.
func (n *Node) String() string {
	b, err := n.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid: %v>", err)
	}
	return string(b)
}

// Digest returns the hex blake2b-256 of the canonical encoding.
// Absent nodes have an empty digest.
func (n *Node) Digest() string {
	if n == nil {
		return ""
	}
	b, err := n.MarshalJSON()
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}
