package repository

import (
	"encoding/json"
	"fmt"

	"github.com/and161185/sitecfg/internal/diff"
	"github.com/and161185/sitecfg/internal/errs"
	"github.com/and161185/sitecfg/internal/model"
	"github.com/and161185/sitecfg/internal/tree"
)

// NodeArg renders n as a JSON query argument; nil renders as SQL NULL.
func NodeArg(n *tree.Node) any {
	if n == nil {
		return nil
	}
	return n.String()
}

// DiffArg renders ops as a JSON array query argument. An empty diff is "[]".
func DiffArg(ops []diff.ChangeOp) (string, error) {
	if ops == nil {
		ops = []diff.ChangeOp{}
	}
	b, err := json.Marshal(ops)
	if err != nil {
		return "", fmt.Errorf("encode diff: %w", err)
	}
	return string(b), nil
}

// ScanNode decodes a stored JSON column; NULL yields nil.
func ScanNode(raw []byte) (*tree.Node, error) {
	if raw == nil {
		return nil, nil
	}
	return tree.Parse(raw)
}

// ScanDiff decodes a stored diff column.
func ScanDiff(raw []byte) ([]diff.ChangeOp, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ops []diff.ChangeOp
	if err := json.Unmarshal(raw, &ops); err != nil {
		return nil, fmt.Errorf("%w: diff: %v", errs.ErrMalformedDocument, err)
	}
	return ops, nil
}

// RevisionColumns is the column list shared by revision queries, in scan order.
const RevisionColumns = `id, key, value, previous_value, diff, action, actor_id, actor_username, actor_email, actor_role, source_path, note, created_at`

// RawRevision holds the undecoded JSON columns of a revision row.
type RawRevision struct {
	Value, PreviousValue, Diff []byte
}

// Decode fills the JSON-backed fields of rev from raw.
func (raw RawRevision) Decode(rev *model.Revision) error {
	var err error
	if rev.Value, err = ScanNode(raw.Value); err != nil {
		return fmt.Errorf("revision %d value: %w", rev.ID, err)
	}
	if rev.PreviousValue, err = ScanNode(raw.PreviousValue); err != nil {
		return fmt.Errorf("revision %d previous value: %w", rev.ID, err)
	}
	if rev.Diff, err = ScanDiff(raw.Diff); err != nil {
		return fmt.Errorf("revision %d: %w", rev.ID, err)
	}
	return nil
}
