package convert

import (
	"errors"
	"math"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/sitecfg/internal/diff"
	"github.com/and161185/sitecfg/internal/errs"
	"github.com/and161185/sitecfg/internal/model"
	"github.com/and161185/sitecfg/internal/tree"
)

func TestNodeValueRoundTrip(t *testing.T) {
	t.Parallel()

	doc := tree.MustParse(`{"hero":{"title":{"en":"Hi","de":null},"n":1.5,"on":true},"links":[{"href":"/a"},null,[]]}`)
	back, err := ValueToNode(NodeToValue(doc))
	if err != nil {
		t.Fatalf("ValueToNode: %v", err)
	}
	if !tree.Equal(doc, back) {
		t.Fatalf("round trip mismatch:\n%s\n%s", doc, back)
	}

	if n, err := ValueToNode(nil); err != nil || n != nil {
		t.Fatalf("nil value must stay absent: %v %v", n, err)
	}
	if _, ok := NodeToValue(nil).GetKind().(*structpb.Value_NullValue); !ok {
		t.Fatalf("absent node should render as null")
	}
	if _, err := ValueToNode(&structpb.Value{}); !errors.Is(err, errs.ErrMalformedDocument) {
		t.Fatalf("want ErrMalformedDocument for kindless value, got %v", err)
	}
}

func TestRevisionToStruct(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC)
	prev := tree.MustParse(`{"title":"A","gone":1}`)
	next := tree.MustParse(`{"title":"B"}`)
	rev := model.Revision{
		ID: 12, Key: "home", Value: next, PreviousValue: prev, Diff: diff.Diff(prev, next),
		Action: model.ActionUpdate, Actor: model.Actor{Username: "ed"}, Note: "n", CreatedAt: at,
	}
	s := RevisionToStruct(rev, []string{"Gone"})
	f := s.GetFields()

	if f["id"].GetNumberValue() != 12 || f["key"].GetStringValue() != "home" {
		t.Fatalf("id/key wrong: %v", s)
	}
	if f["createdAt"].GetStringValue() != "2026-04-01T08:30:00Z" {
		t.Fatalf("createdAt: %v", f["createdAt"])
	}
	if f["actor"].GetStructValue().GetFields()["username"].GetStringValue() != "ed" {
		t.Fatalf("actor missing")
	}
	ops := f["diff"].GetListValue().GetValues()
	if len(ops) != 2 {
		t.Fatalf("want 2 ops, got %d", len(ops))
	}
	rm := ops[0].GetStructValue().GetFields()
	if rm["op"].GetStringValue() != "remove" || rm["label"].GetStringValue() != "Gone" {
		t.Fatalf("remove op: %v", rm)
	}
	if _, ok := rm["after"]; ok {
		t.Fatalf("remove must not carry after")
	}
	rp := ops[1].GetStructValue().GetFields()
	if _, ok := rp["label"]; ok {
		t.Fatalf("missing labels must be omitted")
	}
	stats := f["stats"].GetStructValue().GetFields()
	if stats["removed"].GetNumberValue() != 1 || stats["replaced"].GetNumberValue() != 1 {
		t.Fatalf("stats: %v", stats)
	}

	first := RevisionToStruct(model.Revision{ID: 1, Value: next}, nil)
	if _, ok := first.GetFields()["previousValue"]; ok {
		t.Fatalf("first revision must not carry previousValue")
	}
}

func TestCommitResultAndBreaks(t *testing.T) {
	t.Parallel()

	s := CommitResultToStruct(model.CommitResult{Mode: model.ModeDegraded}, nil)
	if s.GetFields()["mode"].GetStringValue() != "degraded" {
		t.Fatalf("mode: %v", s)
	}
	if _, ok := s.GetFields()["revision"].GetKind().(*structpb.Value_NullValue); !ok {
		t.Fatalf("revision must be null")
	}

	b := ChainBreaksToStruct(nil)
	if !b.GetFields()["ok"].GetBoolValue() {
		t.Fatalf("empty chain breaks must be ok")
	}
	b = ChainBreaksToStruct([]model.ChainBreak{{RevisionID: 3, PreviousID: 2}})
	if b.GetFields()["ok"].GetBoolValue() || len(b.GetFields()["breaks"].GetListValue().GetValues()) != 1 {
		t.Fatalf("breaks: %v", b)
	}

	labeled := RevisionsToStruct([]model.Revision{{ID: 1, Diff: []diff.ChangeOp{{Op: diff.OpAdd, After: tree.Null()}}}},
		func(model.Revision) []string { return []string{"root"} })
	op := labeled.GetFields()["revisions"].GetListValue().GetValues()[0].
		GetStructValue().GetFields()["diff"].GetListValue().GetValues()[0].GetStructValue().GetFields()
	if op["label"].GetStringValue() != "root" {
		t.Fatalf("labeler not applied: %v", op)
	}
}

func TestFields(t *testing.T) {
	t.Parallel()

	req, err := NewRequest(map[string]any{"key": "home", "limit": 5, "bad": 1.5, "doc": map[string]any{"a": nil}, "nil": nil})
	if err != nil {
		t.Fatal(err)
	}
	if String(req, "key") != "home" || String(req, "missing") != "" {
		t.Fatalf("String")
	}
	if n, err := Int(req, "limit", 0); err != nil || n != 5 {
		t.Fatalf("Int: %d %v", n, err)
	}
	if n, err := Int(req, "missing", 7); err != nil || n != 7 {
		t.Fatalf("Int default: %d %v", n, err)
	}
	if n, err := Int(req, "nil", 7); err != nil || n != 7 {
		t.Fatalf("Int null: %d %v", n, err)
	}
	if _, err := Int(req, "bad", 0); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
	if _, err := Int(req, "key", 0); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation for string, got %v", err)
	}
	req.Fields["huge"] = structpb.NewNumberValue(math.Pow(2, 60))
	if _, err := Int(req, "huge", 0); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation for huge, got %v", err)
	}

	doc, err := Node(req, "doc")
	if err != nil || doc.String() != `{"a":null}` {
		t.Fatalf("Node: %v %v", doc, err)
	}
	if doc, err := Node(req, "missing"); err != nil || doc != nil {
		t.Fatalf("missing Node must be nil")
	}
}
