package convert

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/sitecfg/internal/errs"
	"github.com/and161185/sitecfg/internal/tree"
)

// String returns s[name] when it is a string, else "".
func String(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

// Int returns s[name] as an integer. A missing field yields def; a
// non-integral or non-numeric value is a validation error.
func Int(s *structpb.Struct, name string, def int64) (int64, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return def, nil
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return def, nil
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum || n.NumberValue != math.Trunc(n.NumberValue) || math.Abs(n.NumberValue) > 1<<53 {
		return 0, fmt.Errorf("%w: %s must be an integer", errs.ErrValidation, name)
	}
	return int64(n.NumberValue), nil
}

// Node returns s[name] as a document tree; a missing field yields nil.
func Node(s *structpb.Struct, name string) (*tree.Node, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return nil, nil
	}
	n, err := ValueToNode(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

// NewRequest builds a request message from plain values.
func NewRequest(fields map[string]any) (*structpb.Struct, error) {
	return structpb.NewStruct(fields)
}
