// Package convert maps domain values to and from google.protobuf.Struct messages.
package convert

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/sitecfg/internal/diff"
	"github.com/and161185/sitecfg/internal/errs"
	"github.com/and161185/sitecfg/internal/model"
	"github.com/and161185/sitecfg/internal/tree"
)

// --- helpers ---

func ts(t time.Time) *structpb.Value {
	if t.IsZero() {
		return structpb.NewNullValue()
	}
	return structpb.NewStringValue(t.UTC().Format(time.RFC3339Nano))
}

func str(s string) *structpb.Value { return structpb.NewStringValue(s) }

func num[T int | int64 | float64](n T) *structpb.Value { return structpb.NewNumberValue(float64(n)) }

func obj(fields map[string]*structpb.Value) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

func list(vals []*structpb.Value) *structpb.Value {
	return structpb.NewListValue(&structpb.ListValue{Values: vals})
}

// --- documents ---

// NodeToValue converts a document tree. An absent node becomes null.
func NodeToValue(n *tree.Node) *structpb.Value {
	switch n.Kind() {
	case tree.KindBool:
		return structpb.NewBoolValue(n.AsBool())
	case tree.KindNumber:
		return structpb.NewNumberValue(n.AsNumber())
	case tree.KindString:
		return structpb.NewStringValue(n.AsString())
	case tree.KindArray:
		vals := make([]*structpb.Value, n.Len())
		for i := range vals {
			vals[i] = NodeToValue(n.At(i))
		}
		return list(vals)
	case tree.KindObject:
		fields := make(map[string]*structpb.Value, n.Len())
		for _, k := range n.Keys() {
			fields[k] = NodeToValue(n.Get(k))
		}
		return obj(fields)
	}
	return structpb.NewNullValue()
}

// ValueToNode converts a protobuf value into a document tree; nil yields nil.
func ValueToNode(v *structpb.Value) (*tree.Node, error) {
	if v == nil {
		return nil, nil
	}
	if v.GetKind() == nil {
		return nil, fmt.Errorf("%w: value without kind", errs.ErrMalformedDocument)
	}
	return tree.FromValue(v.AsInterface())
}

// DocumentToStruct renders {key, document, updatedAt}.
func DocumentToStruct(d *model.Document) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"key":       str(d.Key),
		"document":  NodeToValue(d.Value),
		"updatedAt": ts(d.UpdatedAt),
	}}
}

// --- revisions ---

// ChangeOpToValue renders one op; label is omitted when empty.
func ChangeOpToValue(op diff.ChangeOp, label string) *structpb.Value {
	f := map[string]*structpb.Value{
		"op":   str(string(op.Op)),
		"path": str(op.Path),
	}
	if op.Op != diff.OpAdd {
		f["before"] = NodeToValue(op.Before)
	}
	if op.Op != diff.OpRemove {
		f["after"] = NodeToValue(op.After)
	}
	if label != "" {
		f["label"] = str(label)
	}
	return obj(f)
}

// ActorToValue renders the commit actor.
func ActorToValue(a model.Actor) *structpb.Value {
	return obj(map[string]*structpb.Value{
		"id":       str(a.ID),
		"username": str(a.Username),
		"email":    str(a.Email),
		"role":     str(a.Role),
	})
}

// RevisionToStruct renders a revision. labels, when given, holds one
// human-readable label per diff op.
func RevisionToStruct(r model.Revision, labels []string) *structpb.Struct {
	ops := make([]*structpb.Value, len(r.Diff))
	for i, op := range r.Diff {
		var l string
		if i < len(labels) {
			l = labels[i]
		}
		ops[i] = ChangeOpToValue(op, l)
	}
	st := diff.Summarize(r.Diff)
	f := map[string]*structpb.Value{
		"id":         num(r.ID),
		"key":        str(r.Key),
		"value":      NodeToValue(r.Value),
		"diff":       list(ops),
		"action":     str(string(r.Action)),
		"actor":      ActorToValue(r.Actor),
		"sourcePath": str(r.SourcePath),
		"note":       str(r.Note),
		"createdAt":  ts(r.CreatedAt),
		"stats": obj(map[string]*structpb.Value{
			"added":    num(st.Added),
			"removed":  num(st.Removed),
			"replaced": num(st.Replaced),
		}),
	}
	if r.PreviousValue != nil {
		f["previousValue"] = NodeToValue(r.PreviousValue)
	}
	return &structpb.Struct{Fields: f}
}

// Labeler returns per-op labels for a revision.
type Labeler func(r model.Revision) []string

// RevisionsToStruct renders {revisions: [...]}. label may be nil.
func RevisionsToStruct(revs []model.Revision, label Labeler) *structpb.Struct {
	vals := make([]*structpb.Value, len(revs))
	for i, r := range revs {
		var labels []string
		if label != nil {
			labels = label(r)
		}
		vals[i] = structpb.NewStructValue(RevisionToStruct(r, labels))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{"revisions": list(vals)}}
}

// CommitResultToStruct renders {mode, revision|null}.
func CommitResultToStruct(res model.CommitResult, labels []string) *structpb.Struct {
	rev := structpb.NewNullValue()
	if res.Revision != nil {
		rev = structpb.NewStructValue(RevisionToStruct(*res.Revision, labels))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"mode":     str(string(res.Mode)),
		"revision": rev,
	}}
}

// ChainBreaksToStruct renders {ok, breaks: [...]}.
func ChainBreaksToStruct(breaks []model.ChainBreak) *structpb.Struct {
	vals := make([]*structpb.Value, len(breaks))
	for i, b := range breaks {
		vals[i] = obj(map[string]*structpb.Value{
			"revisionId":     num(b.RevisionID),
			"previousId":     num(b.PreviousID),
			"expectedDigest": str(b.ExpectedDigest),
			"actualDigest":   str(b.ActualDigest),
		})
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"ok":     structpb.NewBoolValue(len(breaks) == 0),
		"breaks": list(vals),
	}}
}
